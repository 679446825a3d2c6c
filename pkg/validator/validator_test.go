package validator_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thomasrohde/nixeval/pkg/diagnostics"
	"github.com/thomasrohde/nixeval/pkg/parser"
	"github.com/thomasrohde/nixeval/pkg/validator"
)

var globals = []string{"builtins", "true", "false", "null", "toString", "map", "import"}

func validate(t *testing.T, src string) []diagnostics.Diagnostic {
	t.Helper()
	expr, diags := parser.Parse(src, "test.nix")
	require.Empty(t, diags, "parse failed for %q", src)
	return validator.Validate(expr, globals)
}

func codes(diags []diagnostics.Diagnostic) []string {
	out := make([]string, len(diags))
	for i, d := range diags {
		out[i] = d.Code
	}
	return out
}

func TestValidPrograms(t *testing.T) {
	programs := []string{
		`1 + 2`,
		`let a = 1; b = a + 1; in b`,
		`rec { a = b; b = 1; }`,
		`{ a = 1; b = a; }.a or 3`,
		`x: y: x + y`,
		`{ a, b ? a, ... }@args: args.c or b`,
		`with { x = 1; }; x + y`,
		`let x = 1; in { inherit x; }`,
		`{ inherit ({ a = 1; }) a b; }`,
		`{ a.b = 1; a.c = 2; }`,
		`{ a = { b = 1; }; a.c = 2; }`,
		`{ a.c = 2; a = { b = 1; }; }`,
		`{ ${"a"} = 1; a = 2; }`,
		`let f = n: if n == 0 then 1 else n * f (n - 1); in f 5`,
		`map toString [ 1 2 ]`,
		`builtins.length [ ]`,
		`"${toString true} ${null}"`,
		`let { body = x; x = 1; }`,
		`assert true; 1`,
	}
	for _, src := range programs {
		t.Run(src, func(t *testing.T) {
			assert.Empty(t, validate(t, src))
		})
	}
}

func TestUndefinedVariable(t *testing.T) {
	tests := []struct {
		src  string
		name string
	}{
		{`x`, "x"},
		{`let a = b; in a`, "b"},
		{`{ a = 1; b = a; }`, "a"},
		{`x: y`, "y"},
		{`{ a ? b }: a`, "b"},
		{`let inherit y; in y`, "y"},
		{`rec { inherit a; }`, "a"},
		{`"${z}"`, "z"},
		{`{ a = 1; }.${k}`, "k"},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			diags := validate(t, tt.src)
			require.Len(t, diags, 1)
			assert.Equal(t, diagnostics.EUndefinedVar, diags[0].Code)
			assert.Contains(t, diags[0].Message, "'"+tt.name+"'")
			assert.NotNil(t, diags[0].Span)
		})
	}
}

func TestWithSuppressesUndefined(t *testing.T) {
	assert.Empty(t, validate(t, `e: with e; { a = foo; inherit bar; }`))
	assert.Empty(t, validate(t, `e: with e; let x = y; in x`))
}

func TestDuplicateFormals(t *testing.T) {
	diags := validate(t, `{ a, a }: a`)
	assert.Equal(t, []string{diagnostics.EDuplicateAttr}, codes(diags))

	diags = validate(t, `{ a, b }@a: a`)
	assert.Equal(t, []string{diagnostics.EDuplicateAttr}, codes(diags))
}

func TestDuplicateAttributes(t *testing.T) {
	tests := []struct {
		src  string
		path string
	}{
		{`{ a = 1; a = 2; }`, "a"},
		{`{ a.b = 1; a.b = 2; }`, "a.b"},
		{`{ a = 1; a.b = 2; }`, "a"},
		{`{ a.b = 1; a = 2; }`, "a"},
		{`{ a = { b = 1; }; a = { b = 2; }; }`, "a.b"},
		{`{ a = { b = 1; }; a.b = 2; }`, "a.b"},
		{`let a = 1; a = 2; in a`, "a"},
		{`{ inherit ({ x = 1; }) x; x = 2; }`, "x"},
		{`rec { a = rec { b = 1; }; a.c = 2; }`, "a"},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			diags := validate(t, tt.src)
			require.Len(t, diags, 1)
			assert.Equal(t, diagnostics.EDuplicateAttr, diags[0].Code)
			assert.Contains(t, diags[0].Message, "attribute '"+tt.path+"' already defined at test.nix:")
		})
	}
}

func TestNestedLiteralDuplicateReportedOnce(t *testing.T) {
	diags := validate(t, `{ a = { b = 1; b = 2; }; a.c = 3; }`)
	require.Len(t, diags, 1)
	assert.Contains(t, diags[0].Message, "attribute 'b'")
}

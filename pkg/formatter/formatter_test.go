package formatter_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thomasrohde/nixeval/pkg/evaluator"
	"github.com/thomasrohde/nixeval/pkg/formatter"
	"github.com/thomasrohde/nixeval/pkg/parser"
	"github.com/thomasrohde/nixeval/pkg/runtime"
)

func formatSource(t *testing.T, src string) string {
	t.Helper()
	expr, diags := parser.Parse(src, "test.nix")
	require.Empty(t, diags, "parse %q", src)
	return formatter.FormatExpr(expr)
}

func TestFormatExpr(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"1 + 2 * 3", "1 + 2 * 3"},
		{"(1 + 2) * 3", "(1 + 2) * 3"},
		{"a - (b - c)", "a - (b - c)"},
		{"(a - b) - c", "a - b - c"},
		{"a ++ b ++ c", "a ++ b ++ c"},
		{"(a ++ b) ++ c", "(a ++ b) ++ c"},
		{"a // b // c", "a // b // c"},
		{"f x y", "f x y"},
		{"f (g x)", "f (g x)"},
		{"(x: x) 1", "(x: x) 1"},
		{"-x", "-x"},
		{"!(a && b)", "!(a && b)"},
		{"a.b.c or d", "a.b.c or d"},
		{"a ? b.c", "a ? b.c"},
		{"{a=1;inherit b;inherit (c) d e;}", "{ a = 1; inherit b; inherit (c) d e; }"},
		{"rec { }", "rec { }"},
		{`{ "a b" = 1; ${x} = 2; }`, `{ "a b" = 1; ${x} = 2; }`},
		{"[1 (f x) [ ]]", "[ 1 (f x) [ ] ]"},
		{"x: y: x", "x: y: x"},
		{"{ a, b ? 1, ... }@args: a", "args@{ a, b ? 1, ... }: a"},
		{"{ }: 1", "{ }: 1"},
		{"let a = 1; in a", "let a = 1; in a"},
		{"let { body = 1; }", "let { body = 1; }"},
		{"if a then b else c", "if a then b else c"},
		{"with a; assert b; c", "with a; assert b; c"},
		{`"a${b}c\n"`, `"a${b}c\n"`},
		{"''\n  x\n''", `"x\n"`},
		{"1.5", "1.5"},
		{"2.0", "2.0"},
		{"<nixpkgs>", "<nixpkgs>"},
		{"./a/b", "./a/b"},
		{"a == b", "a == b"},
		{"a -> b -> c", "a -> b -> c"},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			got := formatSource(t, tt.src)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, formatSource(t, got), "formatting is idempotent")
		})
	}
}

func TestQuoteString(t *testing.T) {
	assert.Equal(t, `"plain"`, formatter.QuoteString("plain"))
	assert.Equal(t, `"a\"b\\c"`, formatter.QuoteString(`a"b\c`))
	assert.Equal(t, `"\${x} $y"`, formatter.QuoteString("${x} $y"))
	assert.Equal(t, `"tab\there\nnewline"`, formatter.QuoteString("tab\there\nnewline"))
}

func TestFormatAttrName(t *testing.T) {
	tests := map[string]string{
		"foo":    "foo",
		"a-b'_1": "a-b'_1",
		"if":     `"if"`,
		"1a":     `"1a"`,
		"a.b":    `"a.b"`,
		"":       `""`,
	}
	for name, want := range tests {
		assert.Equal(t, want, formatter.FormatAttrName(name), name)
	}
}

func TestFormatFloat(t *testing.T) {
	tests := map[float64]string{
		3.0:         "3",
		0.1:         "0.1",
		-2.5:        "-2.5",
		1e6:         "1e+06",
		123456789.0: "1.23457e+08",
		1.0 / 3.0:   "0.333333",
	}
	for f, want := range tests {
		assert.Equal(t, want, formatter.FormatFloat(f))
	}
}

func evalValue(t *testing.T, src string) (*runtime.Runtime, evaluator.Value) {
	t.Helper()
	rt := runtime.New(runtime.WithTrace(runtime.NewTraceWriter(&bytes.Buffer{}, nil)))
	v, err := rt.EvalString(context.Background(), src, "")
	require.NoError(t, err)
	return rt, v
}

func TestFormatValueStrict(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{`null`, "null"},
		{`[ true false ]`, "[ true false ]"},
		{`{ }`, "{ }"},
		{`[ ]`, "[ ]"},
		{`"a\nb"`, `"a\nb"`},
		{`{ "with space" = 1; "if" = 2; }`, `{ "if" = 2; "with space" = 1; }`},
		{`/a/b`, "/a/b"},
		{`1.0 * 3`, "3"},
		{`let x = { y = x; }; in x`, "{ y = «repeated»; }"},
		{`{ f = x: x; g = builtins.add; h = builtins.add 1; }`, "{ f = <LAMBDA>; g = <PRIMOP>; h = <PRIMOP-APP>; }"},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			rt, v := evalValue(t, tt.src)
			out, err := formatter.FormatValue(rt.Evaluator(), v, formatter.Options{Strict: true})
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestFormatValueExpanded(t *testing.T) {
	rt, v := evalValue(t, `{ a = [ 1 { } ]; b.c = "x"; }`)
	out, err := formatter.FormatValue(rt.Evaluator(), v, formatter.Options{Strict: true, Expanded: true})
	require.NoError(t, err)
	want := "{\n" +
		"  a = [\n" +
		"    1\n" +
		"    { }\n" +
		"  ];\n" +
		"  b = {\n" +
		"    c = \"x\";\n" +
		"  };\n" +
		"}"
	assert.Equal(t, want, out)
}

func TestFormatValueLazyMarksFailures(t *testing.T) {
	rt, v := evalValue(t, `{ a = throw "x"; b = 1 + 1; c = 3; }`)
	set := v.(*evaluator.AttrSet)
	th, _ := set.Get("a")
	_, err := th.Force()
	require.Error(t, err)

	out, err := formatter.FormatValue(rt.Evaluator(), v, formatter.Options{})
	require.NoError(t, err)
	assert.Equal(t, "{ a = «error»; b = «thunk»; c = 3; }", out)

	_, err = formatter.FormatValue(rt.Evaluator(), v, formatter.Options{Strict: true})
	assert.Error(t, err)
}

package parser_test

import (
	"testing"

	"github.com/thomasrohde/nixeval/pkg/parser"
)

// FuzzParse feeds random inputs to the parser to catch panics.
// Invalid input must produce diagnostics, never a panic.
func FuzzParse(f *testing.F) {
	seeds := []string{
		// Literals
		`42`,
		`1.5`,
		`"hello\nworld"`,
		`''
  indented
''`,
		`./foo/bar`,
		`<nixpkgs>`,
		`https://example.org`,
		// Collections
		`[ 1 2 (3 + 4) ]`,
		`{ a = 1; b.c = 2; "d" = 3; ${"e"} = 4; }`,
		`rec { a = 1; b = a; }`,
		`{ inherit a; inherit (b) c d; }`,
		// Functions
		`x: y: x + y`,
		`{ a, b ? 2, ... }: a`,
		`args@{ a }: a`,
		`{ a }@args: a`,
		`{ }: 1`,
		`(x: x) 1`,
		// Bindings
		`let a = 1; b = a; in a + b`,
		`let { a = 1; body = a; }`,
		`with builtins; length [ ]`,
		`assert true; 1`,
		`if a then b else c`,
		// Operators
		`1 + 2 * 3 - 4 / 5`,
		`a ++ b // c`,
		`!a && b || c -> d`,
		`a == b != c`,
		`-x`,
		`a ? b.c`,
		`a.b.c or d`,
		`a.${b}.c`,
		// Strings
		`"a${b}c"`,
		`"${"${x}"}"`,
		// Comments
		`# comment
42`,
		// Broken input
		``,
		`   `,
		`{`,
		`[ 1 2`,
		`"hello`,
		`let a = 1; in`,
		`let ${a} = 1; in a`,
		`x:`,
		`{ a, a }: a`,
		`if a then b`,
		`a.`,
		`1 +`,
		`(((`,
		`a == b == c`,
		`{ ... , a }: a`,
	}

	for _, s := range seeds {
		f.Add(s)
	}

	f.Fuzz(func(t *testing.T, input string) {
		func() {
			defer func() {
				if r := recover(); r != nil {
					t.Fatalf("parser.Parse panicked on input %q: %v", input, r)
				}
			}()
			parser.Parse(input, "fuzz.nix")
		}()
	})
}

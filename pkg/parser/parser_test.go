package parser_test

import (
	"fmt"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thomasrohde/nixeval/pkg/ast"
	"github.com/thomasrohde/nixeval/pkg/diagnostics"
	"github.com/thomasrohde/nixeval/pkg/parser"
)

func mustParse(t *testing.T, source string) ast.Expr {
	t.Helper()
	expr, diags := parser.Parse(source, "test.nix")
	require.Empty(t, diags, "source %q", source)
	require.NotNil(t, expr)
	return expr
}

func mustFail(t *testing.T, source string) diagnostics.Diagnostic {
	t.Helper()
	expr, diags := parser.Parse(source, "test.nix")
	require.Nil(t, expr, "source %q", source)
	require.Len(t, diags, 1, "source %q", source)
	return diags[0]
}

// sexp renders the tree in a fully parenthesised form so tests can pin
// down structure and associativity.
func sexp(e ast.Expr) string {
	switch n := e.(type) {
	case nil:
		return "<nil>"
	case *ast.IntLiteral:
		return strconv.FormatInt(n.Value, 10)
	case *ast.FloatLiteral:
		return "f" + strconv.FormatFloat(n.Value, 'g', -1, 64)
	case *ast.StringExpr:
		parts := []string{"str"}
		for _, p := range n.Parts {
			if p.Interp != nil {
				parts = append(parts, "${"+sexp(p.Interp)+"}")
			} else {
				parts = append(parts, strconv.Quote(p.Text))
			}
		}
		return "(" + strings.Join(parts, " ") + ")"
	case *ast.PathLiteral:
		return "path(" + n.Value + ")"
	case *ast.SearchPath:
		return "<" + n.Value + ">"
	case *ast.Ident:
		return n.Name
	case *ast.Select:
		s := "(sel " + sexp(n.Expr) + " " + path(n.Path)
		if n.Default != nil {
			s += " or " + sexp(n.Default)
		}
		return s + ")"
	case *ast.HasAttr:
		return "(has " + sexp(n.Expr) + " " + path(n.Path) + ")"
	case *ast.AttrSet:
		prefix := ""
		if n.Rec {
			prefix = "rec"
		}
		return prefix + "{" + bindings(n.Bindings) + "}"
	case *ast.ListExpr:
		items := make([]string, len(n.Items))
		for i, item := range n.Items {
			items[i] = sexp(item)
		}
		return "[" + strings.Join(items, " ") + "]"
	case *ast.Lambda:
		if n.Formals == nil {
			return "(fn " + n.Param + " " + sexp(n.Body) + ")"
		}
		var fs []string
		for _, f := range n.Formals.Entries {
			if f.Default != nil {
				fs = append(fs, f.Name+"?"+sexp(f.Default))
			} else {
				fs = append(fs, f.Name)
			}
		}
		if n.Formals.Ellipsis {
			fs = append(fs, "...")
		}
		head := "{" + strings.Join(fs, " ") + "}"
		if n.Formals.Bind != "" {
			head += "@" + n.Formals.Bind
		}
		return "(fn " + head + " " + sexp(n.Body) + ")"
	case *ast.Apply:
		return "(app " + sexp(n.Func) + " " + sexp(n.Arg) + ")"
	case *ast.BinaryExpr:
		return fmt.Sprintf("(%s %s %s)", n.Op, sexp(n.Left), sexp(n.Right))
	case *ast.UnaryExpr:
		if n.Op == ast.OpNeg {
			return "(neg " + sexp(n.Operand) + ")"
		}
		return "(! " + sexp(n.Operand) + ")"
	case *ast.IfExpr:
		return "(if " + sexp(n.Cond) + " " + sexp(n.Then) + " " + sexp(n.Else) + ")"
	case *ast.LetExpr:
		return "(let " + bindings(n.Bindings) + " " + sexp(n.Body) + ")"
	case *ast.LegacyLet:
		return "(letrec " + bindings(n.Bindings) + ")"
	case *ast.WithExpr:
		return "(with " + sexp(n.Scope) + " " + sexp(n.Body) + ")"
	case *ast.AssertExpr:
		return "(assert " + sexp(n.Cond) + " " + sexp(n.Body) + ")"
	}
	return fmt.Sprintf("<%T>", e)
}

func path(keys []ast.AttrKey) string {
	parts := make([]string, len(keys))
	for i, k := range keys {
		if k.Dynamic != nil {
			parts[i] = "${" + sexp(k.Dynamic) + "}"
		} else {
			parts[i] = k.Name
		}
	}
	return strings.Join(parts, ".")
}

func bindings(bs []ast.Binding) string {
	parts := make([]string, len(bs))
	for i, b := range bs {
		switch b := b.(type) {
		case *ast.AttrBinding:
			parts[i] = path(b.Path) + "=" + sexp(b.Value) + ";"
		case *ast.Inherit:
			s := "inherit"
			if b.From != nil {
				s += "(" + sexp(b.From) + ")"
			}
			parts[i] = s + " " + path(b.Names) + ";"
		}
	}
	return strings.Join(parts, " ")
}

func runShapes(t *testing.T, tests []struct{ src, want string }) {
	t.Helper()
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			assert.Equal(t, tt.want, sexp(mustParse(t, tt.src)))
		})
	}
}

func TestLiterals(t *testing.T) {
	runShapes(t, []struct{ src, want string }{
		{"42", "42"},
		{"1.5", "f1.5"},
		{"x", "x"},
		{"./a/b.nix", "path(./a/b.nix)"},
		{"~/x", "path(~/x)"},
		{"<nixpkgs>", "<nixpkgs>"},
		{"http://x.org/a", `(str "http://x.org/a")`},
		{`"hello"`, `(str "hello")`},
		{`""`, "(str)"},
	})
}

func TestOperatorPrecedence(t *testing.T) {
	runShapes(t, []struct{ src, want string }{
		{"1 + 2 * 3", "(+ 1 (* 2 3))"},
		{"(1 + 2) * 3", "(* (+ 1 2) 3)"},
		{"1 - 2 - 3", "(- (- 1 2) 3)"},
		{"8 / 4 / 2", "(/ (/ 8 4) 2)"},
		{"a ++ b ++ c", "(++ a (++ b c))"},
		{"a // b // c", "(// a (// b c))"},
		{"a -> b -> c", "(-> a (-> b c))"},
		{"a || b && c", "(|| a (&& b c))"},
		{"a && b || c", "(|| (&& a b) c)"},
		{"!a + b", "(! (+ a b))"},
		{"!a == b", "(== (! a) b)"},
		{"a // b == c", "(== (// a b) c)"},
		{"a < b == true", "(== (< a b) true)"},
		{"a ++ b * c", "(* (++ a b) c)"},
		{"-f x", "(neg (app f x))"},
		{"2 * -3", "(* 2 (neg 3))"},
		{"a ? b.c", "(has a b.c)"},
		{"a ? b && c", "(&& (has a b) c)"},
		{"x == y -> z", "(-> (== x y) z)"},
	})
}

func TestApplication(t *testing.T) {
	runShapes(t, []struct{ src, want string }{
		{"f x y", "(app (app f x) y)"},
		{"f a.b", "(app f (sel a b))"},
		{"f { a = 1; }", "(app f {a=1;})"},
		{"f [ 1 ] ./p", "(app (app f [1]) path(./p))"},
		{"(x: x) 1", "(app (fn x x) 1)"},
		{"f rec { }", "(app f rec{})"},
		{"f let { body = 1; }", "(app f (letrec body=1;))"},
	})
}

func TestSelect(t *testing.T) {
	runShapes(t, []struct{ src, want string }{
		{"a.b.c", "(sel a b.c)"},
		{"a.b or c", "(sel a b or c)"},
		{"a.b or c.d", "(sel a b or (sel c d))"},
		{`a."b c".d`, "(sel a b c.d)"},
		{"a.${b}.c", "(sel a ${b}.c)"},
		{`a."${b}x"`, `(sel a ${(str ${b} "x")})`},
		{"{ or = 1; }.or", "(sel {or=1;} or)"},
		{"(f x).y", "(sel (app f x) y)"},
	})
}

func TestLambdas(t *testing.T) {
	runShapes(t, []struct{ src, want string }{
		{"x: y: x", "(fn x (fn y x))"},
		{"x: x + 1", "(fn x (+ x 1))"},
		{"{ }: 1", "(fn {} 1)"},
		{"{ ... }: 1", "(fn {...} 1)"},
		{"{ a }: a", "(fn {a} a)"},
		{"{ a, b ? 1, ... }: a", "(fn {a b?1 ...} a)"},
		{"{ a ? x: x }: a", "(fn {a?(fn x x)} a)"},
		{"args@{ a }: a", "(fn {a}@args a)"},
		{"{ a }@args: a", "(fn {a}@args a)"},
		{"{ }@args: args", "(fn {}@args args)"},
	})
}

func TestAttrSets(t *testing.T) {
	runShapes(t, []struct{ src, want string }{
		{"{ }", "{}"},
		{"{ a = 1; }", "{a=1;}"},
		{"{ a.b.c = 1; }", "{a.b.c=1;}"},
		{`{ "d e" = 2; ${x} = 3; }`, "{d e=2; ${x}=3;}"},
		{`{ "${a}b" = 1; }`, `{${(str ${a} "b")}=1;}`},
		{"rec { a = 1; b = a; }", "rec{a=1; b=a;}"},
		{"{ inherit a b; inherit (c) d; }", "{inherit a b; inherit(c) d;}"},
		{`{ inherit "q"; }`, "{inherit q;}"},
	})
}

func TestLists(t *testing.T) {
	runShapes(t, []struct{ src, want string }{
		{"[ ]", "[]"},
		{"[ 1 (f x) a.b ]", "[1 (app f x) (sel a b)]"},
		{"[ f x ]", "[f x]"},
		{"[ [ 1 ] { } ]", "[[1] {}]"},
	})
}

func TestBindingForms(t *testing.T) {
	runShapes(t, []struct{ src, want string }{
		{"let a = 1; in a", "(let a=1; a)"},
		{"let a = 1; b.c = 2; inherit (x) y; in a", "(let a=1; b.c=2; inherit(x) y; a)"},
		{"let { body = 1; }", "(letrec body=1;)"},
		{"with a; b", "(with a b)"},
		{"assert a; b", "(assert a b)"},
		{"if a then b else c", "(if a b c)"},
		{"if a then b else if c then d else e", "(if a b (if c d e))"},
		{"with a; x: x", "(with a (fn x x))"},
	})
}

func TestStrings(t *testing.T) {
	runShapes(t, []struct{ src, want string }{
		{`"a${b}c"`, `(str "a" ${b} "c")`},
		{`"${a}${b}"`, "(str ${a} ${b})"},
		{`"a\nb"`, `(str "a\nb")`},
		{"''\n  a\n    b\n''", `(str "a\n  b\n")`},
		{"''\n  a ${b}\n''", `(str "a " ${b} "\n")`},
		{"''\n  ''${x}\n''", `(str "${x}\n")`},
		{"''a''\\nb''", `(str "a\nb")`},
		{"''\n\n  a\n''", `(str "\na\n")`},
		{"''''", "(str)"},
	})
}

func TestIndentedStringFlag(t *testing.T) {
	expr := mustParse(t, "''x''")
	str, ok := expr.(*ast.StringExpr)
	require.True(t, ok)
	assert.True(t, str.Indented)
	v, static := str.Static()
	assert.True(t, static)
	assert.Equal(t, "x", v)
}

func TestSpans(t *testing.T) {
	expr := mustParse(t, "1 +\n  22")
	span := expr.NodeSpan()
	assert.Equal(t, "test.nix", span.File)
	assert.Equal(t, 1, span.StartLine)
	assert.Equal(t, 1, span.StartCol)
	assert.Equal(t, 2, span.EndLine)
	assert.Equal(t, 5, span.EndCol)

	expr = mustParse(t, "let\n  a = 1;\nin a")
	let := expr.(*ast.LetExpr)
	b := let.Bindings[0].(*ast.AttrBinding)
	assert.Equal(t, 2, b.Span.StartLine)
	assert.Equal(t, 3, b.Span.StartCol)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"", "unexpected end of file"},
		{"{ a = 1 }", "unexpected '}', expected ';'"},
		{"a == b == c", "unexpected '==', operator is non-associative"},
		{"a < b < c", "unexpected '<', operator is non-associative"},
		{"{ a, a }: a", "duplicate formal function argument 'a'"},
		{"[ 1 2", "unexpected end of file, expected ']'"},
		{"{ a = 1;", "unexpected end of file, expected '}'"},
		{"{ inherit ${a}; }", "dynamic attributes not allowed in inherit"},
		{"rec 1", "unexpected '1', expected '{' after 'rec'"},
		{"1 )", "unexpected ')', expected end of file"},
		{"if a then b", "unexpected end of file, expected 'else'"},
		{"let a = 1;", "unexpected end of file, expected 'in'"},
		{"a.", "unexpected end of file, expected attribute name"},
		{"99999999999999999999", "invalid integer '99999999999999999999'"},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			d := mustFail(t, tt.src)
			assert.Equal(t, diagnostics.EParse, d.Code)
			assert.Equal(t, tt.want, d.Message)
		})
	}
}

func TestParseErrorLocation(t *testing.T) {
	d := mustFail(t, "let\n  a = ;\nin a")
	require.NotNil(t, d.Span)
	assert.Equal(t, "unexpected ';'", d.Message)
	assert.Equal(t, 2, d.Span.StartLine)
	assert.Equal(t, 7, d.Span.StartCol)
}

func TestLexErrorsSurfaceAsDiagnostics(t *testing.T) {
	d := mustFail(t, `"abc`)
	assert.Equal(t, diagnostics.ELex, d.Code)
	assert.Equal(t, "unterminated string literal", d.Message)
}

// Package formatter renders Nix values and expressions as canonical text.
package formatter

import (
	"strconv"
	"strings"

	"github.com/thomasrohde/nixeval/pkg/ast"
	"github.com/thomasrohde/nixeval/pkg/lexer"
)

// Precedence levels, higher binds tighter.
const (
	precLowest = iota
	precImpl
	precOr
	precAnd
	precEq
	precCompare
	precUpdate
	precNot
	precAdd
	precMul
	precConcat
	precHasAttr
	precNeg
	precApply
	precAtom
)

var binaryPrec = map[ast.BinaryOp]int{
	ast.OpImpl:   precImpl,
	ast.OpOr:     precOr,
	ast.OpAnd:    precAnd,
	ast.OpEq:     precEq,
	ast.OpNeq:    precEq,
	ast.OpLt:     precCompare,
	ast.OpLtEq:   precCompare,
	ast.OpGt:     precCompare,
	ast.OpGtEq:   precCompare,
	ast.OpUpdate: precUpdate,
	ast.OpAdd:    precAdd,
	ast.OpSub:    precAdd,
	ast.OpMul:    precMul,
	ast.OpDiv:    precMul,
	ast.OpConcat: precConcat,
}

func rightAssoc(op ast.BinaryOp) bool {
	switch op {
	case ast.OpImpl, ast.OpUpdate, ast.OpConcat:
		return true
	}
	return false
}

func nonAssoc(op ast.BinaryOp) bool {
	return binaryPrec[op] == precEq || binaryPrec[op] == precCompare
}

func precOf(e ast.Expr) int {
	switch n := e.(type) {
	case *ast.BinaryExpr:
		return binaryPrec[n.Op]
	case *ast.UnaryExpr:
		if n.Op == ast.OpNot {
			return precNot
		}
		return precNeg
	case *ast.HasAttr:
		return precHasAttr
	case *ast.Apply:
		return precApply
	case *ast.Lambda, *ast.LetExpr, *ast.WithExpr, *ast.IfExpr, *ast.AssertExpr:
		return precLowest
	}
	return precAtom
}

// FormatExpr prints an expression back as canonical single-line Nix
// source. Parentheses are added only where precedence requires them.
func FormatExpr(e ast.Expr) string {
	var sb strings.Builder
	writeExpr(&sb, e)
	return sb.String()
}

func writeOperand(sb *strings.Builder, e ast.Expr, parens bool) {
	if parens {
		sb.WriteByte('(')
		writeExpr(sb, e)
		sb.WriteByte(')')
		return
	}
	writeExpr(sb, e)
}

func writeExpr(sb *strings.Builder, e ast.Expr) {
	switch n := e.(type) {
	case *ast.IntLiteral:
		sb.WriteString(strconv.FormatInt(n.Value, 10))
	case *ast.FloatLiteral:
		sb.WriteString(formatFloatLiteral(n.Value))
	case *ast.StringExpr:
		writeStringExpr(sb, n)
	case *ast.PathLiteral:
		sb.WriteString(n.Value)
	case *ast.SearchPath:
		sb.WriteString("<" + n.Value + ">")
	case *ast.Ident:
		sb.WriteString(n.Name)
	case *ast.Select:
		writeOperand(sb, n.Expr, precOf(n.Expr) < precAtom)
		sb.WriteByte('.')
		writeAttrPath(sb, n.Path)
		if n.Default != nil {
			sb.WriteString(" or ")
			writeOperand(sb, n.Default, precOf(n.Default) < precAtom)
		}
	case *ast.HasAttr:
		writeOperand(sb, n.Expr, precOf(n.Expr) < precNeg)
		sb.WriteString(" ? ")
		writeAttrPath(sb, n.Path)
	case *ast.AttrSet:
		if n.Rec {
			sb.WriteString("rec ")
		}
		writeBindings(sb, "{", n.Bindings, "}")
	case *ast.ListExpr:
		if len(n.Items) == 0 {
			sb.WriteString("[ ]")
			return
		}
		sb.WriteString("[ ")
		for _, item := range n.Items {
			writeOperand(sb, item, precOf(item) < precAtom)
			sb.WriteByte(' ')
		}
		sb.WriteByte(']')
	case *ast.Lambda:
		writeLambdaHead(sb, n)
		sb.WriteString(": ")
		writeExpr(sb, n.Body)
	case *ast.Apply:
		writeOperand(sb, n.Func, precOf(n.Func) < precApply)
		sb.WriteByte(' ')
		writeOperand(sb, n.Arg, precOf(n.Arg) < precAtom)
	case *ast.BinaryExpr:
		p := binaryPrec[n.Op]
		lp, rp := precOf(n.Left), precOf(n.Right)
		writeOperand(sb, n.Left, lp < p || (lp == p && (rightAssoc(n.Op) || nonAssoc(n.Op))))
		sb.WriteString(" " + string(n.Op) + " ")
		writeOperand(sb, n.Right, rp < p || (rp == p && !rightAssoc(n.Op)))
	case *ast.UnaryExpr:
		sb.WriteString(string(n.Op))
		if n.Op == ast.OpNot {
			writeOperand(sb, n.Operand, precOf(n.Operand) < precNot)
		} else {
			writeOperand(sb, n.Operand, precOf(n.Operand) < precNeg)
		}
	case *ast.IfExpr:
		sb.WriteString("if ")
		writeExpr(sb, n.Cond)
		sb.WriteString(" then ")
		writeExpr(sb, n.Then)
		sb.WriteString(" else ")
		writeExpr(sb, n.Else)
	case *ast.LetExpr:
		writeBindings(sb, "let", n.Bindings, "in")
		sb.WriteByte(' ')
		writeExpr(sb, n.Body)
	case *ast.LegacyLet:
		writeBindings(sb, "let {", n.Bindings, "}")
	case *ast.WithExpr:
		sb.WriteString("with ")
		writeExpr(sb, n.Scope)
		sb.WriteString("; ")
		writeExpr(sb, n.Body)
	case *ast.AssertExpr:
		sb.WriteString("assert ")
		writeExpr(sb, n.Cond)
		sb.WriteString("; ")
		writeExpr(sb, n.Body)
	}
}

func writeLambdaHead(sb *strings.Builder, n *ast.Lambda) {
	if n.Formals == nil {
		sb.WriteString(n.Param)
		return
	}
	f := n.Formals
	if f.Bind != "" {
		sb.WriteString(f.Bind + "@")
	}
	if len(f.Entries) == 0 && !f.Ellipsis {
		sb.WriteString("{ }")
		return
	}
	sb.WriteString("{ ")
	for i, formal := range f.Entries {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(formal.Name)
		if formal.Default != nil {
			sb.WriteString(" ? ")
			writeExpr(sb, formal.Default)
		}
	}
	if f.Ellipsis {
		if len(f.Entries) > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("...")
	}
	sb.WriteString(" }")
}

func writeBindings(sb *strings.Builder, open string, bindings []ast.Binding, close string) {
	sb.WriteString(open)
	sb.WriteByte(' ')
	for _, b := range bindings {
		switch b := b.(type) {
		case *ast.AttrBinding:
			writeAttrPath(sb, b.Path)
			sb.WriteString(" = ")
			writeExpr(sb, b.Value)
			sb.WriteString("; ")
		case *ast.Inherit:
			sb.WriteString("inherit")
			if b.From != nil {
				sb.WriteString(" (")
				writeExpr(sb, b.From)
				sb.WriteByte(')')
			}
			for _, k := range b.Names {
				sb.WriteByte(' ')
				writeAttrKey(sb, k)
			}
			sb.WriteString("; ")
		}
	}
	sb.WriteString(close)
}

func writeAttrPath(sb *strings.Builder, path []ast.AttrKey) {
	for i, k := range path {
		if i > 0 {
			sb.WriteByte('.')
		}
		writeAttrKey(sb, k)
	}
}

func writeAttrKey(sb *strings.Builder, k ast.AttrKey) {
	switch {
	case k.Dynamic == nil:
		sb.WriteString(FormatAttrName(k.Name))
	case isStringExpr(k.Dynamic):
		writeExpr(sb, k.Dynamic)
	default:
		sb.WriteString("${")
		writeExpr(sb, k.Dynamic)
		sb.WriteByte('}')
	}
}

func isStringExpr(e ast.Expr) bool {
	_, ok := e.(*ast.StringExpr)
	return ok
}

func writeStringExpr(sb *strings.Builder, n *ast.StringExpr) {
	sb.WriteByte('"')
	for _, p := range n.Parts {
		if p.Interp != nil {
			sb.WriteString("${")
			writeExpr(sb, p.Interp)
			sb.WriteByte('}')
			continue
		}
		sb.WriteString(escapeString(p.Text))
	}
	sb.WriteByte('"')
}

func formatFloatLiteral(f float64) string {
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return s
}

// FormatAttrName quotes an attribute name unless it is a plain identifier.
func FormatAttrName(name string) string {
	if isIdentifier(name) {
		return name
	}
	return QuoteString(name)
}

func isIdentifier(s string) bool {
	if s == "" || lexer.IsReserved(s) {
		return false
	}
	for i, c := range s {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c == '_':
		case i > 0 && (c >= '0' && c <= '9' || c == '\'' || c == '-'):
		default:
			return false
		}
	}
	return true
}

// QuoteString renders s as a double-quoted Nix string literal.
func QuoteString(s string) string {
	return `"` + escapeString(s) + `"`
}

func escapeString(s string) string {
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '"':
			sb.WriteString(`\"`)
		case '\\':
			sb.WriteString(`\\`)
		case '\n':
			sb.WriteString(`\n`)
		case '\r':
			sb.WriteString(`\r`)
		case '\t':
			sb.WriteString(`\t`)
		case '$':
			if i+1 < len(s) && s[i+1] == '{' {
				sb.WriteString(`\${`)
				i++
			} else {
				sb.WriteByte('$')
			}
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String()
}

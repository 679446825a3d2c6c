// Package ast defines the Nix expression AST node types.
package ast

import "strings"

// Span represents a source location range.
type Span struct {
	File      string `json:"file"`
	StartLine int    `json:"startLine"`
	StartCol  int    `json:"startCol"`
	EndLine   int    `json:"endLine"`
	EndCol    int    `json:"endCol"`
}

// Node is the interface implemented by all AST nodes.
type Node interface {
	Kind() string
	NodeSpan() Span
}

// BinaryOp represents a binary operator.
type BinaryOp string

const (
	OpAdd    BinaryOp = "+"
	OpSub    BinaryOp = "-"
	OpMul    BinaryOp = "*"
	OpDiv    BinaryOp = "/"
	OpConcat BinaryOp = "++"
	OpUpdate BinaryOp = "//"
	OpEq     BinaryOp = "=="
	OpNeq    BinaryOp = "!="
	OpLt     BinaryOp = "<"
	OpLtEq   BinaryOp = "<="
	OpGt     BinaryOp = ">"
	OpGtEq   BinaryOp = ">="
	OpAnd    BinaryOp = "&&"
	OpOr     BinaryOp = "||"
	OpImpl   BinaryOp = "->"
)

// UnaryOp represents a unary operator.
type UnaryOp string

const (
	OpNeg UnaryOp = "-"
	OpNot UnaryOp = "!"
)

// --- Expr is the interface for all expression nodes ---

type Expr interface {
	Node
	exprNode() // sealed marker
}

// --- Binding is the interface for attribute set and let bindings ---

type Binding interface {
	Node
	bindingNode() // sealed marker
}

// --- Literal Expressions ---

type IntLiteral struct {
	Span  Span
	Value int64
}

func (n *IntLiteral) Kind() string   { return "IntLiteral" }
func (n *IntLiteral) NodeSpan() Span { return n.Span }
func (n *IntLiteral) exprNode()      {}

type FloatLiteral struct {
	Span  Span
	Value float64
}

func (n *FloatLiteral) Kind() string   { return "FloatLiteral" }
func (n *FloatLiteral) NodeSpan() Span { return n.Span }
func (n *FloatLiteral) exprNode()      {}

// StrPart is one piece of a string literal: either literal text or an
// interpolated expression.
type StrPart struct {
	Text   string
	Interp Expr
}

// StringExpr is a double-quoted or indented string. Indentation of
// indented strings has already been stripped by the parser.
type StringExpr struct {
	Span     Span
	Parts    []StrPart
	Indented bool
}

func (n *StringExpr) Kind() string   { return "StringExpr" }
func (n *StringExpr) NodeSpan() Span { return n.Span }
func (n *StringExpr) exprNode()      {}

// Static returns the literal value of a string without interpolation.
func (n *StringExpr) Static() (string, bool) {
	var sb strings.Builder
	for _, p := range n.Parts {
		if p.Interp != nil {
			return "", false
		}
		sb.WriteString(p.Text)
	}
	return sb.String(), true
}

// PathLiteral is a path as written in source: ./rel, ../rel, /abs or ~/home.
type PathLiteral struct {
	Span  Span
	Value string
}

func (n *PathLiteral) Kind() string   { return "PathLiteral" }
func (n *PathLiteral) NodeSpan() Span { return n.Span }
func (n *PathLiteral) exprNode()      {}

// SearchPath is a <name/sub> lookup through NIX_PATH.
type SearchPath struct {
	Span  Span
	Value string
}

func (n *SearchPath) Kind() string   { return "SearchPath" }
func (n *SearchPath) NodeSpan() Span { return n.Span }
func (n *SearchPath) exprNode()      {}

// --- Identifiers and selection ---

type Ident struct {
	Span Span
	Name string
}

func (n *Ident) Kind() string   { return "Ident" }
func (n *Ident) NodeSpan() Span { return n.Span }
func (n *Ident) exprNode()      {}

// AttrKey is one segment of an attribute path. Dynamic is set for
// ${expr} and interpolated string keys; otherwise Name holds the key.
type AttrKey struct {
	Span    Span
	Name    string
	Dynamic Expr
}

// AttrPathString renders an attribute path for messages.
func AttrPathString(path []AttrKey) string {
	parts := make([]string, len(path))
	for i, k := range path {
		if k.Dynamic != nil {
			parts[i] = "${...}"
		} else {
			parts[i] = k.Name
		}
	}
	return strings.Join(parts, ".")
}

type Select struct {
	Span    Span
	Expr    Expr
	Path    []AttrKey
	Default Expr // optional `or` fallback
}

func (n *Select) Kind() string   { return "Select" }
func (n *Select) NodeSpan() Span { return n.Span }
func (n *Select) exprNode()      {}

type HasAttr struct {
	Span Span
	Expr Expr
	Path []AttrKey
}

func (n *HasAttr) Kind() string   { return "HasAttr" }
func (n *HasAttr) NodeSpan() Span { return n.Span }
func (n *HasAttr) exprNode()      {}

// --- Compound Expressions ---

type AttrSet struct {
	Span     Span
	Rec      bool
	Bindings []Binding
}

func (n *AttrSet) Kind() string   { return "AttrSet" }
func (n *AttrSet) NodeSpan() Span { return n.Span }
func (n *AttrSet) exprNode()      {}

type ListExpr struct {
	Span  Span
	Items []Expr
}

func (n *ListExpr) Kind() string   { return "ListExpr" }
func (n *ListExpr) NodeSpan() Span { return n.Span }
func (n *ListExpr) exprNode()      {}

// --- Bindings ---

type AttrBinding struct {
	Span  Span
	Path  []AttrKey
	Value Expr
}

func (n *AttrBinding) Kind() string   { return "AttrBinding" }
func (n *AttrBinding) NodeSpan() Span { return n.Span }
func (n *AttrBinding) bindingNode()   {}

// Inherit is `inherit a b;` or `inherit (from) a b;`.
type Inherit struct {
	Span  Span
	From  Expr // nil for plain inherit
	Names []AttrKey
}

func (n *Inherit) Kind() string   { return "Inherit" }
func (n *Inherit) NodeSpan() Span { return n.Span }
func (n *Inherit) bindingNode()   {}

// --- Functions ---

// Formal is one named field of an attrs-pattern.
type Formal struct {
	Span    Span
	Name    string
	Default Expr
}

// Formals is an attrs-pattern `{ a, b ? 1, ... }` with an optional @-bind.
type Formals struct {
	Span     Span
	Entries  []Formal
	Ellipsis bool
	Bind     string
}

// Has reports whether name is one of the pattern's fields.
func (f *Formals) Has(name string) bool {
	for _, e := range f.Entries {
		if e.Name == name {
			return true
		}
	}
	return false
}

// Lambda is a single-parameter function. Exactly one of Param and Formals
// is set.
type Lambda struct {
	Span    Span
	Param   string
	Formals *Formals
	Body    Expr
}

func (n *Lambda) Kind() string   { return "Lambda" }
func (n *Lambda) NodeSpan() Span { return n.Span }
func (n *Lambda) exprNode()      {}

type Apply struct {
	Span Span
	Func Expr
	Arg  Expr
}

func (n *Apply) Kind() string   { return "Apply" }
func (n *Apply) NodeSpan() Span { return n.Span }
func (n *Apply) exprNode()      {}

// --- Operators ---

type BinaryExpr struct {
	Span  Span
	Op    BinaryOp
	Left  Expr
	Right Expr
}

func (n *BinaryExpr) Kind() string   { return "BinaryExpr" }
func (n *BinaryExpr) NodeSpan() Span { return n.Span }
func (n *BinaryExpr) exprNode()      {}

type UnaryExpr struct {
	Span    Span
	Op      UnaryOp
	Operand Expr
}

func (n *UnaryExpr) Kind() string   { return "UnaryExpr" }
func (n *UnaryExpr) NodeSpan() Span { return n.Span }
func (n *UnaryExpr) exprNode()      {}

// --- Control forms ---

type IfExpr struct {
	Span Span
	Cond Expr
	Then Expr
	Else Expr
}

func (n *IfExpr) Kind() string   { return "IfExpr" }
func (n *IfExpr) NodeSpan() Span { return n.Span }
func (n *IfExpr) exprNode()      {}

type LetExpr struct {
	Span     Span
	Bindings []Binding
	Body     Expr
}

func (n *LetExpr) Kind() string   { return "LetExpr" }
func (n *LetExpr) NodeSpan() Span { return n.Span }
func (n *LetExpr) exprNode()      {}

// LegacyLet is the old `let { ...; body = e; }` form.
type LegacyLet struct {
	Span     Span
	Bindings []Binding
}

func (n *LegacyLet) Kind() string   { return "LegacyLet" }
func (n *LegacyLet) NodeSpan() Span { return n.Span }
func (n *LegacyLet) exprNode()      {}

type WithExpr struct {
	Span  Span
	Scope Expr
	Body  Expr
}

func (n *WithExpr) Kind() string   { return "WithExpr" }
func (n *WithExpr) NodeSpan() Span { return n.Span }
func (n *WithExpr) exprNode()      {}

type AssertExpr struct {
	Span Span
	Cond Expr
	Body Expr
}

func (n *AssertExpr) Kind() string   { return "AssertExpr" }
func (n *AssertExpr) NodeSpan() Span { return n.Span }
func (n *AssertExpr) exprNode()      {}

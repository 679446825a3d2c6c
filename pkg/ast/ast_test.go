package ast_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/thomasrohde/nixeval/pkg/ast"
)

func TestNodeKinds(t *testing.T) {
	nodes := []ast.Node{
		&ast.IntLiteral{Value: 42},
		&ast.FloatLiteral{Value: 3.14},
		&ast.StringExpr{},
		&ast.PathLiteral{Value: "./a"},
		&ast.Ident{Name: "x"},
		&ast.AttrSet{},
		&ast.ListExpr{},
		&ast.Lambda{Param: "x"},
		&ast.Inherit{},
		&ast.AttrBinding{},
	}

	expected := []string{
		"IntLiteral", "FloatLiteral", "StringExpr", "PathLiteral",
		"Ident", "AttrSet", "ListExpr", "Lambda", "Inherit", "AttrBinding",
	}

	for i, node := range nodes {
		assert.Equal(t, expected[i], node.Kind(), "node %d", i)
	}
}

func TestStringExprStatic(t *testing.T) {
	s := &ast.StringExpr{Parts: []ast.StrPart{{Text: "foo"}, {Text: "bar"}}}
	v, ok := s.Static()
	assert.True(t, ok)
	assert.Equal(t, "foobar", v)

	s.Parts = append(s.Parts, ast.StrPart{Interp: &ast.Ident{Name: "x"}})
	_, ok = s.Static()
	assert.False(t, ok)
}

func TestAttrPathString(t *testing.T) {
	path := []ast.AttrKey{{Name: "a"}, {Dynamic: &ast.Ident{Name: "x"}}, {Name: "c"}}
	assert.Equal(t, "a.${...}.c", ast.AttrPathString(path))
}

func TestFormalsHas(t *testing.T) {
	f := &ast.Formals{Entries: []ast.Formal{{Name: "a"}, {Name: "b"}}}
	assert.True(t, f.Has("a"))
	assert.False(t, f.Has("c"))
}

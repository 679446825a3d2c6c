// Package validator implements static checks of Nix expressions that run
// before anything is evaluated.
package validator

import (
	"fmt"
	"strings"

	"github.com/thomasrohde/nixeval/pkg/ast"
	"github.com/thomasrohde/nixeval/pkg/diagnostics"
)

type scope struct {
	bindings map[string]bool
	with     bool
	parent   *scope
}

func newScope(parent *scope) *scope {
	return &scope{bindings: make(map[string]bool), parent: parent}
}

func newWithScope(parent *scope) *scope {
	return &scope{with: true, parent: parent}
}

func (s *scope) has(name string) bool {
	if s.bindings[name] {
		return true
	}
	if s.parent != nil {
		return s.parent.has(name)
	}
	return false
}

// dynamic reports whether a `with` may supply names unknown statically.
func (s *scope) dynamic() bool {
	for f := s; f != nil; f = f.parent {
		if f.with {
			return true
		}
	}
	return false
}

func (s *scope) add(name string) {
	s.bindings[name] = true
}

type validator struct {
	diags []diagnostics.Diagnostic
}

// Validate checks expr and returns diagnostics for undefined variables,
// duplicate formals and duplicate attributes. globals are the names bound
// at the top level.
func Validate(expr ast.Expr, globals []string) []diagnostics.Diagnostic {
	root := newScope(nil)
	for _, g := range globals {
		root.add(g)
	}
	v := &validator{}
	v.validateExpr(expr, root)
	return v.diags
}

func (v *validator) addDiag(code, msg string, span *ast.Span, hint string) {
	v.diags = append(v.diags, diagnostics.MakeDiag(code, msg, span, hint))
}

func (v *validator) validateExpr(expr ast.Expr, sc *scope) {
	switch e := expr.(type) {
	case nil:
	case *ast.IntLiteral, *ast.FloatLiteral, *ast.PathLiteral, *ast.SearchPath:
	case *ast.StringExpr:
		for _, part := range e.Parts {
			if part.Interp != nil {
				v.validateExpr(part.Interp, sc)
			}
		}
	case *ast.Ident:
		if !sc.has(e.Name) && !sc.dynamic() {
			span := e.Span
			v.addDiag(diagnostics.EUndefinedVar, fmt.Sprintf("undefined variable '%s'", e.Name), &span, "")
		}
	case *ast.Select:
		v.validateExpr(e.Expr, sc)
		v.validateKeys(e.Path, sc)
		v.validateExpr(e.Default, sc)
	case *ast.HasAttr:
		v.validateExpr(e.Expr, sc)
		v.validateKeys(e.Path, sc)
	case *ast.ListExpr:
		for _, item := range e.Items {
			v.validateExpr(item, sc)
		}
	case *ast.AttrSet:
		inner := sc
		if e.Rec {
			inner = v.bindingScope(e.Bindings, sc)
		}
		v.checkDuplicates(e.Bindings)
		v.validateBindings(e.Bindings, sc, inner)
	case *ast.LetExpr:
		inner := v.bindingScope(e.Bindings, sc)
		v.checkDuplicates(e.Bindings)
		v.validateBindings(e.Bindings, sc, inner)
		v.validateExpr(e.Body, inner)
	case *ast.LegacyLet:
		inner := v.bindingScope(e.Bindings, sc)
		v.checkDuplicates(e.Bindings)
		v.validateBindings(e.Bindings, sc, inner)
	case *ast.Lambda:
		v.validateLambda(e, sc)
	case *ast.Apply:
		v.validateExpr(e.Func, sc)
		v.validateExpr(e.Arg, sc)
	case *ast.BinaryExpr:
		v.validateExpr(e.Left, sc)
		v.validateExpr(e.Right, sc)
	case *ast.UnaryExpr:
		v.validateExpr(e.Operand, sc)
	case *ast.IfExpr:
		v.validateExpr(e.Cond, sc)
		v.validateExpr(e.Then, sc)
		v.validateExpr(e.Else, sc)
	case *ast.WithExpr:
		v.validateExpr(e.Scope, sc)
		v.validateExpr(e.Body, newWithScope(sc))
	case *ast.AssertExpr:
		v.validateExpr(e.Cond, sc)
		v.validateExpr(e.Body, sc)
	}
}

func (v *validator) validateKeys(keys []ast.AttrKey, sc *scope) {
	for _, k := range keys {
		if k.Dynamic != nil {
			v.validateExpr(k.Dynamic, sc)
		}
	}
}

// bindingScope creates the scope of a rec set or let: every static first
// path component and every inherited name is visible to all bindings.
func (v *validator) bindingScope(bindings []ast.Binding, outer *scope) *scope {
	sc := newScope(outer)
	for _, b := range bindings {
		switch bind := b.(type) {
		case *ast.AttrBinding:
			if len(bind.Path) > 0 && bind.Path[0].Dynamic == nil {
				sc.add(bind.Path[0].Name)
			}
		case *ast.Inherit:
			for _, k := range bind.Names {
				if k.Dynamic == nil {
					sc.add(k.Name)
				}
			}
		}
	}
	return sc
}

// validateBindings checks binding values in inner. Plain inherits resolve
// in outer, dynamic keys are evaluated in inner.
func (v *validator) validateBindings(bindings []ast.Binding, outer, inner *scope) {
	for _, b := range bindings {
		switch bind := b.(type) {
		case *ast.AttrBinding:
			v.validateKeys(bind.Path, inner)
			v.validateExpr(bind.Value, inner)
		case *ast.Inherit:
			if bind.From != nil {
				v.validateExpr(bind.From, inner)
				continue
			}
			for _, k := range bind.Names {
				if k.Dynamic != nil || outer.has(k.Name) || outer.dynamic() {
					continue
				}
				span := k.Span
				v.addDiag(diagnostics.EUndefinedVar, fmt.Sprintf("undefined variable '%s'", k.Name), &span, "")
			}
		}
	}
}

func (v *validator) validateLambda(e *ast.Lambda, sc *scope) {
	inner := newScope(sc)
	if e.Param != "" {
		inner.add(e.Param)
	}
	if f := e.Formals; f != nil {
		seen := make(map[string]bool, len(f.Entries))
		for _, formal := range f.Entries {
			if seen[formal.Name] {
				span := formal.Span
				v.addDiag(diagnostics.EDuplicateAttr, fmt.Sprintf("duplicate formal function argument '%s'", formal.Name), &span, "")
			}
			seen[formal.Name] = true
			inner.add(formal.Name)
		}
		if f.Bind != "" {
			if seen[f.Bind] {
				span := f.Span
				v.addDiag(diagnostics.EDuplicateAttr, fmt.Sprintf("duplicate formal function argument '%s'", f.Bind), &span, "")
			}
			inner.add(f.Bind)
		}
		for _, formal := range f.Entries {
			v.validateExpr(formal.Default, inner)
		}
	}
	v.validateExpr(e.Body, inner)
}

// keyNode is one level of the static attribute paths defined by a set
// literal or let.
type keyNode struct {
	children map[string]*keyNode
	leaf     bool
	span     ast.Span
	lit      *ast.AttrSet // nested literal not yet expanded into children
}

func newKeyNode(span ast.Span) *keyNode {
	return &keyNode{children: make(map[string]*keyNode), span: span}
}

// checkDuplicates reports static attribute paths defined twice where the
// definitions cannot be merged.
func (v *validator) checkDuplicates(bindings []ast.Binding) {
	root := newKeyNode(ast.Span{})
	v.insertBindings(root, nil, bindings, true)
}

func (v *validator) insertBindings(root *keyNode, prefix []string, bindings []ast.Binding, report bool) {
	for _, b := range bindings {
		switch bind := b.(type) {
		case *ast.AttrBinding:
			path, ok := staticPath(bind.Path)
			if !ok {
				continue
			}
			v.insert(root, prefix, path, bind.Value, bind.Span, report)
		case *ast.Inherit:
			for _, k := range bind.Names {
				if k.Dynamic == nil {
					v.insert(root, prefix, []string{k.Name}, nil, k.Span, report)
				}
			}
		}
	}
}

func staticPath(keys []ast.AttrKey) ([]string, bool) {
	path := make([]string, len(keys))
	for i, k := range keys {
		if k.Dynamic != nil {
			return nil, false
		}
		path[i] = k.Name
	}
	return path, true
}

func (v *validator) insert(root *keyNode, prefix, path []string, value ast.Expr, span ast.Span, report bool) {
	node := root
	for i, name := range path {
		full := append(append([]string{}, prefix...), path[:i+1]...)
		child, exists := node.children[name]
		last := i == len(path)-1
		if !exists {
			child = newKeyNode(span)
			node.children[name] = child
			if last {
				if lit, ok := value.(*ast.AttrSet); ok && !lit.Rec {
					child.lit = lit
				} else {
					child.leaf = true
				}
			}
			node = child
			continue
		}
		if child.leaf {
			v.duplicate(full, span, child.span, report)
			return
		}
		v.expand(child, full)
		if last {
			lit, ok := value.(*ast.AttrSet)
			if !ok || lit.Rec {
				v.duplicate(full, span, child.span, report)
				return
			}
			v.insertBindings(child, full, lit.Bindings, report)
			return
		}
		node = child
	}
}

// expand turns a pending nested literal into children. Its own duplicates
// are reported when the literal itself is validated.
func (v *validator) expand(node *keyNode, prefix []string) {
	if node.lit == nil {
		return
	}
	lit := node.lit
	node.lit = nil
	v.insertBindings(node, prefix, lit.Bindings, false)
}

func (v *validator) duplicate(path []string, span, prev ast.Span, report bool) {
	if !report {
		return
	}
	file := prev.File
	if file == "" {
		file = "«string»"
	}
	msg := fmt.Sprintf("attribute '%s' already defined at %s:%d:%d", strings.Join(path, "."), file, prev.StartLine, prev.StartCol)
	v.addDiag(diagnostics.EDuplicateAttr, msg, &span, "")
}

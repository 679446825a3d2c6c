package evaluator

import (
	"fmt"

	"github.com/thomasrohde/nixeval/pkg/ast"
	"github.com/thomasrohde/nixeval/pkg/diagnostics"
)

// pendingAttr is one member of a set under construction. It is a leaf
// (thunk set) or a nested set still accepting path bindings (nested set).
type pendingAttr struct {
	span   ast.Span
	thunk  *Thunk
	nested *pendingSet
	final  *Thunk

	// lit and litEnv keep a plain set literal leaf so that a later
	// `a.x = ...` can merge into it.
	lit    *ast.AttrSet
	litEnv *Env
}

type dynamicBinding struct {
	key    ast.AttrKey
	rest   []ast.AttrKey
	value  ast.Expr
	env    *Env
	span   ast.Span
	prefix string
}

type pendingSet struct {
	attrs   map[string]*pendingAttr
	dynamic []dynamicBinding
}

func newPendingSet() *pendingSet {
	return &pendingSet{attrs: make(map[string]*pendingAttr)}
}

func joinPath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

func duplicateError(path string, span, prev ast.Span) error {
	return newError(diagnostics.EDuplicateAttr, &span, "attribute '%s' already defined at %s", path, spanLocation(prev))
}

func spanLocation(s ast.Span) string {
	file := s.File
	if file == "" {
		file = "«string»"
	}
	return fmt.Sprintf("%s:%d:%d", file, s.StartLine, s.StartCol)
}

// plainSetLiteral returns expr when it is a non-recursive set literal.
func plainSetLiteral(expr ast.Expr) *ast.AttrSet {
	if set, ok := expr.(*ast.AttrSet); ok && !set.Rec {
		return set
	}
	return nil
}

// addBinding records one binding in ps. Values are evaluated in valueEnv;
// plain inherit resolves names in inheritEnv.
func (ev *Evaluator) addBinding(ps *pendingSet, b ast.Binding, valueEnv, inheritEnv *Env, prefix string) error {
	switch b := b.(type) {
	case *ast.AttrBinding:
		return ev.addPath(ps, b.Path, b.Value, valueEnv, b.Span, prefix)
	case *ast.Inherit:
		var from *Thunk
		if b.From != nil {
			from = ev.thunk(b.From, valueEnv)
		}
		for _, key := range b.Names {
			var th *Thunk
			if from == nil {
				th = ev.inheritThunk(inheritEnv, key)
			} else {
				th = inheritFromThunk(from, key)
			}
			if prev, ok := ps.attrs[key.Name]; ok {
				return duplicateError(joinPath(prefix, key.Name), key.Span, prev.span)
			}
			ps.attrs[key.Name] = &pendingAttr{span: key.Span, thunk: th}
		}
	}
	return nil
}

func (ev *Evaluator) addPath(ps *pendingSet, path []ast.AttrKey, value ast.Expr, env *Env, span ast.Span, prefix string) error {
	key := path[0]
	if key.Dynamic != nil {
		ps.dynamic = append(ps.dynamic, dynamicBinding{
			key: key, rest: path[1:], value: value, env: env, span: span, prefix: prefix,
		})
		return nil
	}
	return ev.addStaticPath(ps, key.Name, path[1:], value, env, span, prefix)
}

func (ev *Evaluator) addStaticPath(ps *pendingSet, name string, rest []ast.AttrKey, value ast.Expr, env *Env, span ast.Span, prefix string) error {
	full := joinPath(prefix, name)
	existing := ps.attrs[name]

	if len(rest) == 0 {
		lit := plainSetLiteral(value)
		if existing == nil {
			ps.attrs[name] = &pendingAttr{span: span, thunk: ev.thunk(value, env), lit: lit, litEnv: env}
			return nil
		}
		if lit == nil {
			return duplicateError(full, span, existing.span)
		}
		if err := ev.expand(existing, full, span); err != nil {
			return err
		}
		for _, b := range lit.Bindings {
			if err := ev.addBinding(existing.nested, b, env, env, full); err != nil {
				return err
			}
		}
		return nil
	}

	if existing == nil {
		existing = &pendingAttr{span: span, nested: newPendingSet()}
		ps.attrs[name] = existing
	} else if err := ev.expand(existing, full, span); err != nil {
		return err
	}
	return ev.addPath(existing.nested, rest, value, env, span, full)
}

// expand turns a set literal leaf into a nested pending set so further
// bindings can merge into it. Any other leaf is a duplicate.
func (ev *Evaluator) expand(attr *pendingAttr, full string, span ast.Span) error {
	if attr.nested != nil {
		return nil
	}
	if attr.lit == nil {
		return duplicateError(full, span, attr.span)
	}
	nested := newPendingSet()
	for _, b := range attr.lit.Bindings {
		if err := ev.addBinding(nested, b, attr.litEnv, attr.litEnv, full); err != nil {
			return err
		}
	}
	attr.nested, attr.thunk, attr.lit, attr.litEnv = nested, nil, nil, nil
	return nil
}

// finalThunk returns the member thunk. Nested sets are materialized when
// first forced.
func (ev *Evaluator) finalThunk(attr *pendingAttr) *Thunk {
	if attr.nested == nil {
		return attr.thunk
	}
	if attr.final == nil {
		nested := attr.nested
		attr.final = NewLazyThunk(func() (Value, error) {
			return ev.materialize(nested)
		})
	}
	return attr.final
}

// materialize resolves dynamic keys and produces the attribute set.
func (ev *Evaluator) materialize(ps *pendingSet) (*AttrSet, error) {
	dynamic := ps.dynamic
	ps.dynamic = nil
	for _, d := range dynamic {
		name, isNull, err := ev.attrName(d.key, d.env)
		if err != nil {
			return nil, err
		}
		if isNull {
			continue
		}
		full := joinPath(d.prefix, name)
		if prev, ok := ps.attrs[name]; ok {
			return nil, duplicateError(full, d.key.Span, prev.span)
		}
		if len(d.rest) == 0 {
			ps.attrs[name] = &pendingAttr{span: d.span, thunk: ev.thunk(d.value, d.env)}
			continue
		}
		attr := &pendingAttr{span: d.span, nested: newPendingSet()}
		ps.attrs[name] = attr
		if err := ev.addPath(attr.nested, d.rest, d.value, d.env, d.span, full); err != nil {
			return nil, err
		}
	}

	set := NewAttrSet()
	for name, attr := range ps.attrs {
		set.Set(name, ev.finalThunk(attr))
	}
	return set, nil
}

// buildAttrSet evaluates a set literal. For rec sets every static member
// is bound in a new frame before any member can be forced.
func (ev *Evaluator) buildAttrSet(node *ast.AttrSet, env *Env) (Value, error) {
	ps := newPendingSet()
	valueEnv := env
	var frame *Env
	if node.Rec {
		frame = NewEnv(env, make(map[string]*Thunk, len(node.Bindings)))
		valueEnv = frame
	}
	for _, b := range node.Bindings {
		if err := ev.addBinding(ps, b, valueEnv, env, ""); err != nil {
			return nil, err
		}
	}
	if frame != nil {
		for name, attr := range ps.attrs {
			frame.vars[name] = ev.finalThunk(attr)
		}
	}
	return ev.materialize(ps)
}

// buildLet creates the recursive frame of a let expression.
func (ev *Evaluator) buildLet(node *ast.LetExpr, env *Env) (*Env, error) {
	frame := NewEnv(env, make(map[string]*Thunk, len(node.Bindings)))
	ps := newPendingSet()
	for _, b := range node.Bindings {
		if err := ev.addBinding(ps, b, frame, env, ""); err != nil {
			return nil, err
		}
	}
	if len(ps.dynamic) > 0 {
		return nil, newError(diagnostics.EEval, &ps.dynamic[0].key.Span, "dynamic attributes not allowed in let")
	}
	for name, attr := range ps.attrs {
		frame.vars[name] = ev.finalThunk(attr)
	}
	return frame, nil
}

// inheritThunk binds `inherit x` to the thunk of x in env. Names that are
// only reachable through `with` are looked up when forced.
func (ev *Evaluator) inheritThunk(env *Env, key ast.AttrKey) *Thunk {
	if th, ok := env.LookupLexical(key.Name); ok {
		return th
	}
	span := key.Span
	return NewLazyThunk(func() (Value, error) {
		th, ok, err := env.Lookup(key.Name)
		if err != nil {
			return nil, withSpan(err, &span)
		}
		if !ok {
			return nil, newError(diagnostics.EUndefinedVar, &span, "undefined variable '%s'", key.Name)
		}
		return th.Force()
	})
}

func inheritFromThunk(from *Thunk, key ast.AttrKey) *Thunk {
	span := key.Span
	return NewLazyThunk(func() (Value, error) {
		v, err := from.Force()
		if err != nil {
			return nil, err
		}
		set, ok := v.(*AttrSet)
		if !ok {
			return nil, TypeError("a set", v, &span)
		}
		th, ok := set.Get(key.Name)
		if !ok {
			return nil, newError(diagnostics.EMissingAttr, &span, "attribute '%s' missing", key.Name)
		}
		return th.Force()
	})
}

package evaluator

import (
	"github.com/thomasrohde/nixeval/pkg/diagnostics"
)

// Apply calls fn with one argument. Lambdas bind the argument unforced,
// builtins collect arguments until their arity is reached and sets with
// __functor are called as `s.__functor s arg`.
func (ev *Evaluator) Apply(fn Value, arg *Thunk) (Value, error) {
	switch f := fn.(type) {
	case *Lambda:
		return ev.applyLambda(f, arg)
	case *Builtin:
		args := make([]*Thunk, len(f.Args)+1)
		copy(args, f.Args)
		args[len(f.Args)] = arg
		if len(args) < f.Arity {
			return &Builtin{Name: f.Name, Arity: f.Arity, Args: args, Impl: f.Impl}, nil
		}
		if err := ev.enter(); err != nil {
			return nil, err
		}
		defer ev.leave()
		return f.Impl(ev, args)
	case *AttrSet:
		if functor, ok := f.Get("__functor"); ok {
			fv, err := functor.Force()
			if err != nil {
				return nil, err
			}
			inner, err := ev.Apply(fv, NewValueThunk(f))
			if err != nil {
				return nil, err
			}
			return ev.Apply(inner, arg)
		}
	}
	return nil, &EvalError{
		Code:     diagnostics.ETypeMismatch,
		Message:  "attempt to call something which is not a function but " + describeType(fn),
		Expected: "lambda",
		Actual:   TypeName(fn),
	}
}

// Call applies fn to each argument in turn.
func (ev *Evaluator) Call(fn Value, args ...*Thunk) (Value, error) {
	v := fn
	for _, arg := range args {
		var err error
		if v, err = ev.Apply(v, arg); err != nil {
			return nil, err
		}
	}
	return v, nil
}

// CallValues is Call with already evaluated arguments.
func (ev *Evaluator) CallValues(fn Value, args ...Value) (Value, error) {
	thunks := make([]*Thunk, len(args))
	for i, a := range args {
		thunks[i] = NewValueThunk(a)
	}
	return ev.Call(fn, thunks...)
}

// IsCallable reports whether v can be applied.
func IsCallable(v Value) bool {
	if IsFunction(v) {
		return true
	}
	set, ok := v.(*AttrSet)
	return ok && set.Has("__functor")
}

func (ev *Evaluator) applyLambda(f *Lambda, arg *Thunk) (Value, error) {
	node := f.Node
	if node.Formals == nil {
		env := NewEnv(f.Env, map[string]*Thunk{node.Param: arg})
		return ev.eval(node.Body, env)
	}

	v, err := arg.Force()
	if err != nil {
		return nil, err
	}
	set, ok := v.(*AttrSet)
	if !ok {
		return nil, TypeError("a set", v, &node.Span)
	}
	formals := node.Formals
	vars := make(map[string]*Thunk, len(formals.Entries)+1)
	env := NewEnv(f.Env, vars)
	if formals.Bind != "" {
		vars[formals.Bind] = arg
	}
	for _, formal := range formals.Entries {
		if th, ok := set.Get(formal.Name); ok {
			vars[formal.Name] = th
			continue
		}
		if formal.Default != nil {
			vars[formal.Name] = ev.thunk(formal.Default, env)
			continue
		}
		return nil, newError(diagnostics.EMissingArg, &node.Span,
			"function 'anonymous lambda' called without required argument '%s'", formal.Name)
	}
	if !formals.Ellipsis {
		var (
			extra string
			found bool
		)
		set.Each(func(name string, _ *Thunk) bool {
			if !formals.Has(name) {
				extra, found = name, true
				return false
			}
			return true
		})
		if found {
			return nil, newError(diagnostics.EUnexpectedArg, &node.Span,
				"function 'anonymous lambda' called with unexpected argument '%s'", extra)
		}
	}
	return ev.eval(node.Body, env)
}

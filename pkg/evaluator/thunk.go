package evaluator

import (
	"github.com/thomasrohde/nixeval/pkg/ast"
	"github.com/thomasrohde/nixeval/pkg/diagnostics"
)

// ThunkState is the position of a thunk in its one-way lifecycle.
type ThunkState uint8

const (
	Unevaluated ThunkState = iota
	InProgress             // blackhole: forcing has started
	Evaluated
	Failed
)

func (s ThunkState) String() string {
	switch s {
	case Unevaluated:
		return "unevaluated"
	case InProgress:
		return "in progress"
	case Evaluated:
		return "evaluated"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Thunk is a deferred computation that is evaluated at most once. It wraps
// either an expression with its environment or a native computation.
type Thunk struct {
	state   ThunkState
	expr    ast.Expr
	env     *Env
	compute func() (Value, error)
	value   Value
	err     error
}

// NewThunk defers evaluation of expr in env.
func NewThunk(expr ast.Expr, env *Env) *Thunk {
	return &Thunk{expr: expr, env: env}
}

// NewLazyThunk defers a native computation.
func NewLazyThunk(compute func() (Value, error)) *Thunk {
	return &Thunk{compute: compute}
}

// NewValueThunk wraps an already evaluated value.
func NewValueThunk(v Value) *Thunk {
	return &Thunk{state: Evaluated, value: v}
}

// State returns the current lifecycle state.
func (t *Thunk) State() ThunkState {
	return t.state
}

// Value returns the cached value of an evaluated thunk, or nil.
func (t *Thunk) Value() Value {
	if t.state != Evaluated {
		return nil
	}
	return t.value
}

// Force evaluates the thunk on first use and returns the cached result on
// every later use. Re-entering a thunk that is still being forced fails
// with an infinite recursion error.
func (t *Thunk) Force() (Value, error) {
	switch t.state {
	case Evaluated:
		return t.value, nil
	case Failed:
		return nil, cloneError(t.err)
	case InProgress:
		var span *ast.Span
		if t.expr != nil {
			span = spanPtr(t.expr)
		}
		return nil, newError(diagnostics.EInfiniteRecursion, span, "infinite recursion encountered")
	}

	t.state = InProgress
	var v Value
	var err error
	if t.compute != nil {
		v, err = t.compute()
	} else {
		v, err = t.env.ev.eval(t.expr, t.env)
	}
	if err != nil {
		t.state = Failed
		t.err = cloneError(err)
	} else {
		t.state = Evaluated
		t.value = v
	}
	t.expr, t.env, t.compute = nil, nil, nil
	return v, err
}

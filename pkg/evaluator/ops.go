package evaluator

import (
	"math"
	"path/filepath"

	"github.com/thomasrohde/nixeval/pkg/ast"
	"github.com/thomasrohde/nixeval/pkg/diagnostics"
)

func (ev *Evaluator) evalBinary(e *ast.BinaryExpr, env *Env) (Value, error) {
	switch e.Op {
	case ast.OpAnd, ast.OpOr, ast.OpImpl:
		return ev.evalLogic(e, env)
	}
	l, err := ev.eval(e.Left, env)
	if err != nil {
		return nil, err
	}
	r, err := ev.eval(e.Right, env)
	if err != nil {
		return nil, err
	}
	v, err := ev.BinaryOp(e.Op, l, r)
	if err != nil {
		return nil, withSpan(err, &e.Span)
	}
	return v, nil
}

func (ev *Evaluator) evalLogic(e *ast.BinaryExpr, env *Env) (Value, error) {
	l, err := ev.evalBool(e.Left, env)
	if err != nil {
		return nil, err
	}
	switch e.Op {
	case ast.OpAnd:
		if !l {
			return Bool{Value: false}, nil
		}
	case ast.OpOr:
		if l {
			return Bool{Value: true}, nil
		}
	case ast.OpImpl:
		if !l {
			return Bool{Value: true}, nil
		}
	}
	r, err := ev.evalBool(e.Right, env)
	if err != nil {
		return nil, err
	}
	return Bool{Value: r}, nil
}

func (ev *Evaluator) evalUnary(e *ast.UnaryExpr, env *Env) (Value, error) {
	v, err := ev.eval(e.Operand, env)
	if err != nil {
		return nil, err
	}
	switch e.Op {
	case ast.OpNot:
		b, ok := v.(Bool)
		if !ok {
			return nil, TypeError("a Boolean", v, &e.Span)
		}
		return Bool{Value: !b.Value}, nil
	case ast.OpNeg:
		r, err := Arith(ast.OpSub, Int{Value: 0}, v)
		if err != nil {
			return nil, withSpan(err, &e.Span)
		}
		return r, nil
	}
	return nil, newError(diagnostics.EEval, &e.Span, "unknown operator %s", e.Op)
}

// BinaryOp applies a strict binary operator to two evaluated operands.
func (ev *Evaluator) BinaryOp(op ast.BinaryOp, l, r Value) (Value, error) {
	switch op {
	case ast.OpAdd:
		return ev.add(l, r)
	case ast.OpSub, ast.OpMul, ast.OpDiv:
		return Arith(op, l, r)
	case ast.OpConcat:
		a, ok := l.(List)
		if !ok {
			return nil, TypeError("a list", l, nil)
		}
		b, ok := r.(List)
		if !ok {
			return nil, TypeError("a list", r, nil)
		}
		items := make([]*Thunk, 0, len(a.Items)+len(b.Items))
		items = append(items, a.Items...)
		return List{Items: append(items, b.Items...)}, nil
	case ast.OpUpdate:
		a, ok := l.(*AttrSet)
		if !ok {
			return nil, TypeError("a set", l, nil)
		}
		b, ok := r.(*AttrSet)
		if !ok {
			return nil, TypeError("a set", r, nil)
		}
		return Update(a, b), nil
	case ast.OpEq, ast.OpNeq:
		eq, err := ev.Equal(l, r)
		if err != nil {
			return nil, err
		}
		return Bool{Value: eq == (op == ast.OpEq)}, nil
	case ast.OpLt:
		lt, err := ev.LessThan(l, r)
		return Bool{Value: lt}, err
	case ast.OpGt:
		lt, err := ev.LessThan(r, l)
		return Bool{Value: lt}, err
	case ast.OpLtEq:
		gt, err := ev.LessThan(r, l)
		return Bool{Value: !gt}, err
	case ast.OpGtEq:
		lt, err := ev.LessThan(l, r)
		return Bool{Value: !lt}, err
	}
	return nil, Errorf(diagnostics.EEval, "unknown operator %s", op)
}

// Update returns a // b: the attributes of a overridden by those of b.
func Update(a, b *AttrSet) *AttrSet {
	if b.Len() == 0 {
		return a
	}
	if a.Len() == 0 {
		return b
	}
	out := a.Copy()
	b.Each(func(name string, th *Thunk) bool {
		out.Set(name, th)
		return true
	})
	return out
}

func (ev *Evaluator) add(l, r Value) (Value, error) {
	switch a := l.(type) {
	case Int, Float:
		return Arith(ast.OpAdd, l, r)
	case Path:
		switch b := r.(type) {
		case Path:
			return Path{Value: filepath.Clean(a.Value + b.Value)}, nil
		case String:
			if len(b.Context) > 0 {
				return nil, Errorf(diagnostics.EEval, "a string that refers to a store path cannot be appended to a path")
			}
			return Path{Value: filepath.Clean(a.Value + b.Value)}, nil
		}
		return nil, operandError("a string or path", l, r)
	case String:
		s, err := ev.CoerceToString(r, false)
		if err != nil {
			return nil, err
		}
		return String{Value: a.Value + s.Value, Context: MergeContext(a.Context, s.Context)}, nil
	case *AttrSet:
		if _, ok := r.(String); ok {
			s, err := ev.CoerceToString(l, false)
			if err != nil {
				return nil, err
			}
			return ev.add(s, r)
		}
	}
	return nil, operandError("a number, string or path", l, r)
}

func operandError(expected string, l, r Value) error {
	return &EvalError{
		Code:     diagnostics.ETypeMismatch,
		Message:  "cannot add " + describeType(r) + " to " + describeType(l),
		Expected: expected,
		Actual:   TypeName(l),
	}
}

// Arith implements + - * / on numbers. Integers stay integers and overflow
// is an error; a float operand makes the result a float.
func Arith(op ast.BinaryOp, l, r Value) (Value, error) {
	ai, aInt := l.(Int)
	bi, bInt := r.(Int)
	if aInt && bInt {
		return intArith(op, ai.Value, bi.Value)
	}
	af, ok := toFloat(l)
	if !ok {
		return nil, TypeError("a number", l, nil)
	}
	bf, ok := toFloat(r)
	if !ok {
		return nil, TypeError("a number", r, nil)
	}
	switch op {
	case ast.OpAdd:
		return Float{Value: af + bf}, nil
	case ast.OpSub:
		return Float{Value: af - bf}, nil
	case ast.OpMul:
		return Float{Value: af * bf}, nil
	case ast.OpDiv:
		if bf == 0 {
			return nil, Errorf(diagnostics.EDivisionByZero, "division by zero")
		}
		return Float{Value: af / bf}, nil
	}
	return nil, Errorf(diagnostics.EEval, "unknown operator %s", op)
}

func intArith(op ast.BinaryOp, a, b int64) (Value, error) {
	switch op {
	case ast.OpAdd:
		c := a + b
		if (a > 0 && b > 0 && c < 0) || (a < 0 && b < 0 && c >= 0) {
			return nil, overflow(op, a, b)
		}
		return Int{Value: c}, nil
	case ast.OpSub:
		c := a - b
		if (a >= 0 && b < 0 && c < 0) || (a < 0 && b > 0 && c >= 0) {
			return nil, overflow(op, a, b)
		}
		return Int{Value: c}, nil
	case ast.OpMul:
		if a == 0 || b == 0 {
			return Int{Value: 0}, nil
		}
		c := a * b
		if c/b != a || (a == -1 && b == math.MinInt64) || (b == -1 && a == math.MinInt64) {
			return nil, overflow(op, a, b)
		}
		return Int{Value: c}, nil
	case ast.OpDiv:
		if b == 0 {
			return nil, Errorf(diagnostics.EDivisionByZero, "division by zero")
		}
		if a == math.MinInt64 && b == -1 {
			return nil, overflow(op, a, b)
		}
		return Int{Value: a / b}, nil
	}
	return nil, Errorf(diagnostics.EEval, "unknown operator %s", op)
}

func overflow(op ast.BinaryOp, a, b int64) error {
	return Errorf(diagnostics.EEval, "integer overflow in %d %s %d", a, op, b)
}

func toFloat(v Value) (float64, bool) {
	switch n := v.(type) {
	case Int:
		return float64(n.Value), true
	case Float:
		return n.Value, true
	}
	return 0, false
}

// Equal implements ==. Comparison is deep; ints and floats compare
// numerically, functions are never equal and derivations compare by
// outPath.
func (ev *Evaluator) Equal(l, r Value) (bool, error) {
	switch a := l.(type) {
	case Null:
		_, ok := r.(Null)
		return ok, nil
	case Bool:
		b, ok := r.(Bool)
		return ok && a.Value == b.Value, nil
	case Int:
		switch b := r.(type) {
		case Int:
			return a.Value == b.Value, nil
		case Float:
			return float64(a.Value) == b.Value, nil
		}
		return false, nil
	case Float:
		bf, ok := toFloat(r)
		return ok && a.Value == bf, nil
	case String:
		b, ok := r.(String)
		return ok && a.Value == b.Value, nil
	case Path:
		b, ok := r.(Path)
		return ok && a.Value == b.Value, nil
	case List:
		b, ok := r.(List)
		if !ok || len(a.Items) != len(b.Items) {
			return false, nil
		}
		for i := range a.Items {
			eq, err := ev.equalThunks(a.Items[i], b.Items[i])
			if err != nil || !eq {
				return false, err
			}
		}
		return true, nil
	case *AttrSet:
		b, ok := r.(*AttrSet)
		if !ok {
			return false, nil
		}
		if a == b {
			return true, nil
		}
		if eq, done, err := ev.equalDerivations(a, b); done || err != nil {
			return eq, err
		}
		if a.Len() != b.Len() {
			return false, nil
		}
		var result = true
		var ferr error
		a.Each(func(name string, th *Thunk) bool {
			other, ok := b.Get(name)
			if !ok {
				result = false
				return false
			}
			eq, err := ev.equalThunks(th, other)
			if err != nil || !eq {
				result, ferr = false, err
				return false
			}
			return true
		})
		return result, ferr
	}
	return false, nil
}

func (ev *Evaluator) equalThunks(a, b *Thunk) (bool, error) {
	if a == b {
		return true, nil
	}
	av, err := a.Force()
	if err != nil {
		return false, err
	}
	bv, err := b.Force()
	if err != nil {
		return false, err
	}
	return ev.Equal(av, bv)
}

// equalDerivations compares two derivations by outPath. done is false when
// either set is not a derivation.
func (ev *Evaluator) equalDerivations(a, b *AttrSet) (eq, done bool, err error) {
	isA, err := ev.IsDerivation(a)
	if err != nil || !isA {
		return false, false, err
	}
	isB, err := ev.IsDerivation(b)
	if err != nil || !isB {
		return false, false, err
	}
	pa, okA := a.Get("outPath")
	pb, okB := b.Get("outPath")
	if !okA || !okB {
		return false, false, nil
	}
	eq, err = ev.equalThunks(pa, pb)
	return eq, true, err
}

// IsDerivation reports whether set has type = "derivation".
func (ev *Evaluator) IsDerivation(set *AttrSet) (bool, error) {
	th, ok := set.Get("type")
	if !ok {
		return false, nil
	}
	v, err := th.Force()
	if err != nil {
		return false, err
	}
	s, ok := v.(String)
	return ok && s.Value == "derivation", nil
}

// LessThan implements <. Numbers, strings and paths compare naturally and
// lists lexicographically.
func (ev *Evaluator) LessThan(l, r Value) (bool, error) {
	switch a := l.(type) {
	case Int:
		if b, ok := r.(Int); ok {
			return a.Value < b.Value, nil
		}
		if b, ok := r.(Float); ok {
			return float64(a.Value) < b.Value, nil
		}
	case Float:
		if bf, ok := toFloat(r); ok {
			return a.Value < bf, nil
		}
	case String:
		if b, ok := r.(String); ok {
			return a.Value < b.Value, nil
		}
	case Path:
		if b, ok := r.(Path); ok {
			return a.Value < b.Value, nil
		}
	case List:
		if b, ok := r.(List); ok {
			for i := 0; ; i++ {
				if i == len(b.Items) {
					return false, nil
				}
				if i == len(a.Items) {
					return true, nil
				}
				x, err := a.Items[i].Force()
				if err != nil {
					return false, err
				}
				y, err := b.Items[i].Force()
				if err != nil {
					return false, err
				}
				eq, err := ev.Equal(x, y)
				if err != nil {
					return false, err
				}
				if !eq {
					return ev.LessThan(x, y)
				}
			}
		}
	}
	return false, &EvalError{
		Code:     diagnostics.ETypeMismatch,
		Message:  "cannot compare " + describeType(l) + " with " + describeType(r),
		Expected: TypeName(l),
		Actual:   TypeName(r),
	}
}

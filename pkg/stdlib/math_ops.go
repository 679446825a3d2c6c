package stdlib

import (
	"math"

	"github.com/thomasrohde/nixeval/pkg/ast"
	"github.com/thomasrohde/nixeval/pkg/diagnostics"
	"github.com/thomasrohde/nixeval/pkg/evaluator"
)

// add/sub/mul/div a b → number
func arith(op ast.BinaryOp) evaluator.BuiltinFunc {
	return func(ev *evaluator.Evaluator, args []*evaluator.Thunk) (evaluator.Value, error) {
		a, err := evaluator.ForceNumber(args[0])
		if err != nil {
			return nil, err
		}
		b, err := evaluator.ForceNumber(args[1])
		if err != nil {
			return nil, err
		}
		return evaluator.Arith(op, a, b)
	}
}

// bitAnd/bitOr/bitXor a b → int
func bitwise(fn func(a, b int64) int64) evaluator.BuiltinFunc {
	return func(ev *evaluator.Evaluator, args []*evaluator.Thunk) (evaluator.Value, error) {
		a, err := evaluator.ForceInt(args[0])
		if err != nil {
			return nil, err
		}
		b, err := evaluator.ForceInt(args[1])
		if err != nil {
			return nil, err
		}
		return evaluator.NewInt(fn(a, b)), nil
	}
}

// ceil/floor number → int
func rounding(up bool) evaluator.BuiltinFunc {
	return func(ev *evaluator.Evaluator, args []*evaluator.Thunk) (evaluator.Value, error) {
		v, err := evaluator.ForceNumber(args[0])
		if err != nil {
			return nil, err
		}
		f, ok := v.(evaluator.Float)
		if !ok {
			return v, nil
		}
		r := math.Floor(f.Value)
		if up {
			r = math.Ceil(f.Value)
		}
		if math.IsNaN(r) || r < math.MinInt64 || r >= math.MaxInt64 {
			return nil, evaluator.Errorf(diagnostics.EEval, "%v cannot be represented as an integer", f.Value)
		}
		return evaluator.NewInt(int64(r)), nil
	}
}

// lessThan a b → bool
func stdlibLessThan(ev *evaluator.Evaluator, args []*evaluator.Thunk) (evaluator.Value, error) {
	a, err := args[0].Force()
	if err != nil {
		return nil, err
	}
	b, err := args[1].Force()
	if err != nil {
		return nil, err
	}
	lt, err := ev.LessThan(a, b)
	if err != nil {
		return nil, err
	}
	return evaluator.NewBool(lt), nil
}

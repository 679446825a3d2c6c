package stdlib

import (
	"github.com/thomasrohde/nixeval/pkg/evaluator"
)

// isType builds the isX predicates from the name typeOf reports.
func isType(name string) evaluator.BuiltinFunc {
	return func(ev *evaluator.Evaluator, args []*evaluator.Thunk) (evaluator.Value, error) {
		v, err := args[0].Force()
		if err != nil {
			return nil, err
		}
		return evaluator.NewBool(evaluator.TypeName(v) == name), nil
	}
}

// typeOf x → string
func stdlibTypeOf(ev *evaluator.Evaluator, args []*evaluator.Thunk) (evaluator.Value, error) {
	v, err := args[0].Force()
	if err != nil {
		return nil, err
	}
	return evaluator.NewString(evaluator.TypeName(v)), nil
}

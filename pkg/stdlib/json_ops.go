package stdlib

import (
	"github.com/thomasrohde/nixeval/pkg/evaluator"
)

// fromJSON string → any
func stdlibFromJSON(ev *evaluator.Evaluator, args []*evaluator.Thunk) (evaluator.Value, error) {
	s, err := evaluator.ForceString(args[0])
	if err != nil {
		return nil, err
	}
	return evaluator.FromJSON(s.Value)
}

// toJSON any → string
func stdlibToJSON(ev *evaluator.Evaluator, args []*evaluator.Thunk) (evaluator.Value, error) {
	v, err := args[0].Force()
	if err != nil {
		return nil, err
	}
	s, ctx, err := ev.ToJSON(v)
	if err != nil {
		return nil, err
	}
	return evaluator.NewStringWithContext(s, ctx), nil
}

package stdlib

import (
	"github.com/thomasrohde/nixeval/pkg/evaluator"
)

// getContext string → { ref = { path = true; }; }
func stdlibGetContext(ev *evaluator.Evaluator, args []*evaluator.Thunk) (evaluator.Value, error) {
	s, err := evaluator.ForceString(args[0])
	if err != nil {
		return nil, err
	}
	out := evaluator.NewAttrSet()
	for _, ref := range s.Context {
		info := evaluator.NewAttrSet()
		info.SetValue("path", evaluator.NewBool(true))
		out.SetValue(ref, info)
	}
	return out, nil
}

// hasContext string → bool
func stdlibHasContext(ev *evaluator.Evaluator, args []*evaluator.Thunk) (evaluator.Value, error) {
	s, err := evaluator.ForceString(args[0])
	if err != nil {
		return nil, err
	}
	return evaluator.NewBool(len(s.Context) > 0), nil
}

// unsafeDiscardStringContext string → string without context
func stdlibDiscardContext(ev *evaluator.Evaluator, args []*evaluator.Thunk) (evaluator.Value, error) {
	s, err := evaluator.ForceString(args[0])
	if err != nil {
		return nil, err
	}
	return evaluator.NewString(s.Value), nil
}

package runtime

import (
	"fmt"
	"path/filepath"

	"github.com/thomasrohde/nixeval/pkg/diagnostics"
	"github.com/thomasrohde/nixeval/pkg/evaluator"
)

const flakeFile = "flake.nix"

func isFlake(path string) bool {
	return filepath.Base(path) == flakeFile
}

// resolveFlake turns the top-level set of a flake.nix into its outputs.
// Every input must name a local path; it is passed to outputs as
// { _type = "flake"; outPath; outputs; } where outputs is the resolved
// flake at that path. self is the result of outputs itself.
func (rt *Runtime) resolveFlake(path string, v evaluator.Value) (evaluator.Value, error) {
	flake, ok := v.(*evaluator.AttrSet)
	if !ok {
		return nil, evaluator.AddContext(evaluator.TypeError("a set", v, nil), fmt.Sprintf("while loading flake '%s'", path))
	}

	args := evaluator.NewAttrSet()
	if th, ok := flake.Get("inputs"); ok {
		inputs, err := evaluator.ForceAttrs(th)
		if err != nil {
			return nil, evaluator.AddContext(err, fmt.Sprintf("while evaluating the inputs of flake '%s'", path))
		}
		var inputErr error
		inputs.Each(func(name string, th *evaluator.Thunk) bool {
			input, err := rt.flakeInput(name, th)
			if err != nil {
				inputErr = evaluator.AddContext(err, fmt.Sprintf("while evaluating flake input '%s' of '%s'", name, path))
				return false
			}
			args.SetValue(name, input)
			return true
		})
		if inputErr != nil {
			return nil, inputErr
		}
	}

	outputsThunk, ok := flake.Get("outputs")
	if !ok {
		return nil, evaluator.Errorf(diagnostics.EMissingAttr, "flake '%s' does not provide attribute 'outputs'", path)
	}
	outputs, err := evaluator.ForceFunction(outputsThunk)
	if err != nil {
		return nil, evaluator.AddContext(err, fmt.Sprintf("while evaluating the outputs of flake '%s'", path))
	}

	var result *evaluator.Thunk
	result = evaluator.NewLazyThunk(func() (evaluator.Value, error) {
		args.Set("self", evaluator.NewLazyThunk(result.Force))
		return rt.ev.Apply(outputs, evaluator.NewValueThunk(args))
	})
	return result.Force()
}

func (rt *Runtime) flakeInput(name string, th *evaluator.Thunk) (evaluator.Value, error) {
	spec, err := evaluator.ForceAttrs(th)
	if err != nil {
		return nil, err
	}
	pathThunk, ok := spec.Get("path")
	if !ok {
		return nil, evaluator.Errorf(diagnostics.EEval, "flake input '%s' has no 'path' attribute; only local path inputs are supported", name)
	}
	dir, err := rt.ev.ForcePath(pathThunk)
	if err != nil {
		return nil, err
	}
	dir = filepath.Clean(dir)

	out := evaluator.NewAttrSet()
	out.SetValue("_type", evaluator.NewString("flake"))
	out.SetValue("outPath", evaluator.NewPath(dir))
	out.Set("outputs", evaluator.NewLazyThunk(func() (evaluator.Value, error) {
		return rt.Import(rt.ev, filepath.Join(dir, flakeFile))
	}))
	return out, nil
}

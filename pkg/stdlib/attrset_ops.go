package stdlib

import (
	"github.com/thomasrohde/nixeval/pkg/diagnostics"
	"github.com/thomasrohde/nixeval/pkg/evaluator"
)

// attrNames set → sorted list of names
func stdlibAttrNames(ev *evaluator.Evaluator, args []*evaluator.Thunk) (evaluator.Value, error) {
	set, err := evaluator.ForceAttrs(args[0])
	if err != nil {
		return nil, err
	}
	items := make([]*evaluator.Thunk, 0, set.Len())
	for _, name := range set.Keys() {
		items = append(items, evaluator.NewValueThunk(evaluator.NewString(name)))
	}
	return evaluator.NewList(items), nil
}

// attrValues set → values in name order
func stdlibAttrValues(ev *evaluator.Evaluator, args []*evaluator.Thunk) (evaluator.Value, error) {
	set, err := evaluator.ForceAttrs(args[0])
	if err != nil {
		return nil, err
	}
	items := make([]*evaluator.Thunk, 0, set.Len())
	set.Each(func(_ string, th *evaluator.Thunk) bool {
		items = append(items, th)
		return true
	})
	return evaluator.NewList(items), nil
}

// catAttrs name [sets] → values of name in the sets that have it
func stdlibCatAttrs(ev *evaluator.Evaluator, args []*evaluator.Thunk) (evaluator.Value, error) {
	name, err := evaluator.ForceString(args[0])
	if err != nil {
		return nil, err
	}
	list, err := evaluator.ForceList(args[1])
	if err != nil {
		return nil, err
	}
	var items []*evaluator.Thunk
	for _, th := range list.Items {
		set, err := evaluator.ForceAttrs(th)
		if err != nil {
			return nil, err
		}
		if v, ok := set.Get(name.Value); ok {
			items = append(items, v)
		}
	}
	return evaluator.NewList(items), nil
}

// functionArgs f → { formal = hasDefault; }
func stdlibFunctionArgs(ev *evaluator.Evaluator, args []*evaluator.Thunk) (evaluator.Value, error) {
	v, err := args[0].Force()
	if err != nil {
		return nil, err
	}
	set := evaluator.NewAttrSet()
	switch f := v.(type) {
	case *evaluator.Lambda:
		if f.Node.Formals != nil {
			for _, formal := range f.Node.Formals.Entries {
				set.SetValue(formal.Name, evaluator.NewBool(formal.Default != nil))
			}
		}
	case *evaluator.Builtin:
	default:
		return nil, evaluator.TypeError("a function", v, nil)
	}
	return set, nil
}

// getAttr name set → value
func stdlibGetAttr(ev *evaluator.Evaluator, args []*evaluator.Thunk) (evaluator.Value, error) {
	name, err := evaluator.ForceString(args[0])
	if err != nil {
		return nil, err
	}
	set, err := evaluator.ForceAttrs(args[1])
	if err != nil {
		return nil, err
	}
	th, ok := set.Get(name.Value)
	if !ok {
		return nil, evaluator.Errorf(diagnostics.EMissingAttr, "attribute '%s' missing", name.Value)
	}
	return th.Force()
}

// hasAttr name set → bool
func stdlibHasAttr(ev *evaluator.Evaluator, args []*evaluator.Thunk) (evaluator.Value, error) {
	name, err := evaluator.ForceString(args[0])
	if err != nil {
		return nil, err
	}
	set, err := evaluator.ForceAttrs(args[1])
	if err != nil {
		return nil, err
	}
	return evaluator.NewBool(set.Has(name.Value)), nil
}

// intersectAttrs e1 e2 → attributes of e2 whose names occur in e1
func stdlibIntersectAttrs(ev *evaluator.Evaluator, args []*evaluator.Thunk) (evaluator.Value, error) {
	left, err := evaluator.ForceAttrs(args[0])
	if err != nil {
		return nil, err
	}
	right, err := evaluator.ForceAttrs(args[1])
	if err != nil {
		return nil, err
	}
	out := evaluator.NewAttrSet()
	right.Each(func(name string, th *evaluator.Thunk) bool {
		if left.Has(name) {
			out.Set(name, th)
		}
		return true
	})
	return out, nil
}

// listToAttrs [ { name; value; } ] → set; the first occurrence of a name wins
func stdlibListToAttrs(ev *evaluator.Evaluator, args []*evaluator.Thunk) (evaluator.Value, error) {
	list, err := evaluator.ForceList(args[0])
	if err != nil {
		return nil, err
	}
	out := evaluator.NewAttrSet()
	for _, th := range list.Items {
		entry, err := evaluator.ForceAttrs(th)
		if err != nil {
			return nil, err
		}
		nameTh, ok := entry.Get("name")
		if !ok {
			return nil, evaluator.Errorf(diagnostics.EMissingAttr, "attribute 'name' missing in a call to 'listToAttrs'")
		}
		name, err := evaluator.ForceString(nameTh)
		if err != nil {
			return nil, err
		}
		value, ok := entry.Get("value")
		if !ok {
			return nil, evaluator.Errorf(diagnostics.EMissingAttr, "attribute 'value' missing in a call to 'listToAttrs'")
		}
		if !out.Has(name.Value) {
			out.Set(name.Value, value)
		}
	}
	return out, nil
}

// mapAttrs f set → { name = f name value; }, each value computed on demand
func stdlibMapAttrs(ev *evaluator.Evaluator, args []*evaluator.Thunk) (evaluator.Value, error) {
	set, err := evaluator.ForceAttrs(args[1])
	if err != nil {
		return nil, err
	}
	out := evaluator.NewAttrSet()
	set.Each(func(name string, th *evaluator.Thunk) bool {
		out.Set(name, applyLazily(ev, args[0], evaluator.NewValueThunk(evaluator.NewString(name)), th))
		return true
	})
	return out, nil
}

// removeAttrs set [names] → set without names
func stdlibRemoveAttrs(ev *evaluator.Evaluator, args []*evaluator.Thunk) (evaluator.Value, error) {
	set, err := evaluator.ForceAttrs(args[0])
	if err != nil {
		return nil, err
	}
	names, err := evaluator.ForceList(args[1])
	if err != nil {
		return nil, err
	}
	out := set.Copy()
	for _, th := range names.Items {
		name, err := evaluator.ForceString(th)
		if err != nil {
			return nil, err
		}
		out.Delete(name.Value)
	}
	return out, nil
}

// zipAttrsWith f [sets] → { name = f name [ values of name ]; }
func stdlibZipAttrsWith(ev *evaluator.Evaluator, args []*evaluator.Thunk) (evaluator.Value, error) {
	list, err := evaluator.ForceList(args[1])
	if err != nil {
		return nil, err
	}
	values := make(map[string][]*evaluator.Thunk)
	for _, th := range list.Items {
		set, err := evaluator.ForceAttrs(th)
		if err != nil {
			return nil, err
		}
		set.Each(func(name string, v *evaluator.Thunk) bool {
			values[name] = append(values[name], v)
			return true
		})
	}
	out := evaluator.NewAttrSet()
	for name, vs := range values {
		out.Set(name, applyLazily(ev, args[0],
			evaluator.NewValueThunk(evaluator.NewString(name)),
			evaluator.NewValueThunk(evaluator.NewList(vs))))
	}
	return out, nil
}

package stdlib

import (
	"sort"

	"github.com/thomasrohde/nixeval/pkg/diagnostics"
	"github.com/thomasrohde/nixeval/pkg/evaluator"
)

// applyLazily defers `f x` until the result is needed.
func applyLazily(ev *evaluator.Evaluator, f *evaluator.Thunk, args ...*evaluator.Thunk) *evaluator.Thunk {
	return evaluator.NewLazyThunk(func() (evaluator.Value, error) {
		fn, err := f.Force()
		if err != nil {
			return nil, err
		}
		return ev.Call(fn, args...)
	})
}

func callPredicate(ev *evaluator.Evaluator, fn evaluator.Value, args ...*evaluator.Thunk) (bool, error) {
	v, err := ev.Call(fn, args...)
	if err != nil {
		return false, err
	}
	b, ok := v.(evaluator.Bool)
	if !ok {
		return false, evaluator.TypeError("a Boolean", v, nil)
	}
	return b.Value, nil
}

// map f list → list, each element computed on demand
func stdlibMap(ev *evaluator.Evaluator, args []*evaluator.Thunk) (evaluator.Value, error) {
	list, err := evaluator.ForceList(args[1])
	if err != nil {
		return nil, err
	}
	items := make([]*evaluator.Thunk, len(list.Items))
	for i, item := range list.Items {
		items[i] = applyLazily(ev, args[0], item)
	}
	return evaluator.NewList(items), nil
}

// filter pred list → list
func stdlibFilter(ev *evaluator.Evaluator, args []*evaluator.Thunk) (evaluator.Value, error) {
	fn, err := evaluator.ForceFunction(args[0])
	if err != nil {
		return nil, err
	}
	list, err := evaluator.ForceList(args[1])
	if err != nil {
		return nil, err
	}
	var items []*evaluator.Thunk
	for _, item := range list.Items {
		keep, err := callPredicate(ev, fn, item)
		if err != nil {
			return nil, err
		}
		if keep {
			items = append(items, item)
		}
	}
	return evaluator.NewList(items), nil
}

// all/any pred list → bool
func quantifier(all bool) evaluator.BuiltinFunc {
	return func(ev *evaluator.Evaluator, args []*evaluator.Thunk) (evaluator.Value, error) {
		fn, err := evaluator.ForceFunction(args[0])
		if err != nil {
			return nil, err
		}
		list, err := evaluator.ForceList(args[1])
		if err != nil {
			return nil, err
		}
		for _, item := range list.Items {
			ok, err := callPredicate(ev, fn, item)
			if err != nil {
				return nil, err
			}
			if ok != all {
				return evaluator.NewBool(!all), nil
			}
		}
		return evaluator.NewBool(all), nil
	}
}

// concatLists [[a]] → [a]
func stdlibConcatLists(ev *evaluator.Evaluator, args []*evaluator.Thunk) (evaluator.Value, error) {
	outer, err := evaluator.ForceList(args[0])
	if err != nil {
		return nil, err
	}
	return concatThunks(outer.Items)
}

func concatThunks(lists []*evaluator.Thunk) (evaluator.Value, error) {
	var items []*evaluator.Thunk
	for _, th := range lists {
		inner, err := evaluator.ForceList(th)
		if err != nil {
			return nil, err
		}
		items = append(items, inner.Items...)
	}
	return evaluator.NewList(items), nil
}

// concatMap f list → concatLists (map f list)
func stdlibConcatMap(ev *evaluator.Evaluator, args []*evaluator.Thunk) (evaluator.Value, error) {
	list, err := evaluator.ForceList(args[1])
	if err != nil {
		return nil, err
	}
	mapped := make([]*evaluator.Thunk, len(list.Items))
	for i, item := range list.Items {
		mapped[i] = applyLazily(ev, args[0], item)
	}
	return concatThunks(mapped)
}

// elem x list → bool
func stdlibElem(ev *evaluator.Evaluator, args []*evaluator.Thunk) (evaluator.Value, error) {
	x, err := args[0].Force()
	if err != nil {
		return nil, err
	}
	list, err := evaluator.ForceList(args[1])
	if err != nil {
		return nil, err
	}
	for _, item := range list.Items {
		v, err := item.Force()
		if err != nil {
			return nil, err
		}
		eq, err := ev.Equal(x, v)
		if err != nil {
			return nil, err
		}
		if eq {
			return evaluator.NewBool(true), nil
		}
	}
	return evaluator.NewBool(false), nil
}

// elemAt list n → element n (0-based)
func stdlibElemAt(ev *evaluator.Evaluator, args []*evaluator.Thunk) (evaluator.Value, error) {
	list, err := evaluator.ForceList(args[0])
	if err != nil {
		return nil, err
	}
	n, err := evaluator.ForceInt(args[1])
	if err != nil {
		return nil, err
	}
	if n < 0 || n >= int64(len(list.Items)) {
		return nil, evaluator.Errorf(diagnostics.EEval, "list index %d is out of bounds", n)
	}
	return list.Items[n].Force()
}

// head list → first element
func stdlibHead(ev *evaluator.Evaluator, args []*evaluator.Thunk) (evaluator.Value, error) {
	list, err := evaluator.ForceList(args[0])
	if err != nil {
		return nil, err
	}
	if len(list.Items) == 0 {
		return nil, evaluator.Errorf(diagnostics.EEval, "'builtins.head' called on an empty list")
	}
	return list.Items[0].Force()
}

// tail list → list without its first element
func stdlibTail(ev *evaluator.Evaluator, args []*evaluator.Thunk) (evaluator.Value, error) {
	list, err := evaluator.ForceList(args[0])
	if err != nil {
		return nil, err
	}
	if len(list.Items) == 0 {
		return nil, evaluator.Errorf(diagnostics.EEval, "'builtins.tail' called on an empty list")
	}
	return evaluator.NewList(list.Items[1:]), nil
}

// length list → int
func stdlibLength(ev *evaluator.Evaluator, args []*evaluator.Thunk) (evaluator.Value, error) {
	list, err := evaluator.ForceList(args[0])
	if err != nil {
		return nil, err
	}
	return evaluator.NewInt(int64(len(list.Items))), nil
}

// foldl' op nul list → value, forcing the accumulator at every step
func stdlibFoldl(ev *evaluator.Evaluator, args []*evaluator.Thunk) (evaluator.Value, error) {
	fn, err := evaluator.ForceFunction(args[0])
	if err != nil {
		return nil, err
	}
	list, err := evaluator.ForceList(args[2])
	if err != nil {
		return nil, err
	}
	acc, err := args[1].Force()
	if err != nil {
		return nil, err
	}
	for _, item := range list.Items {
		if acc, err = ev.Call(fn, evaluator.NewValueThunk(acc), item); err != nil {
			return nil, err
		}
	}
	return acc, nil
}

// genList f n → [ (f 0) ... (f (n - 1)) ]
func stdlibGenList(ev *evaluator.Evaluator, args []*evaluator.Thunk) (evaluator.Value, error) {
	n, err := evaluator.ForceInt(args[1])
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, evaluator.Errorf(diagnostics.EEval, "cannot create list of size %d", n)
	}
	items := make([]*evaluator.Thunk, n)
	for i := range items {
		items[i] = applyLazily(ev, args[0], evaluator.NewValueThunk(evaluator.NewInt(int64(i))))
	}
	return evaluator.NewList(items), nil
}

// groupBy f list → { key = [ elements ]; }
func stdlibGroupBy(ev *evaluator.Evaluator, args []*evaluator.Thunk) (evaluator.Value, error) {
	fn, err := evaluator.ForceFunction(args[0])
	if err != nil {
		return nil, err
	}
	list, err := evaluator.ForceList(args[1])
	if err != nil {
		return nil, err
	}
	groups := make(map[string][]*evaluator.Thunk)
	var order []string
	for _, item := range list.Items {
		k, err := ev.Call(fn, item)
		if err != nil {
			return nil, err
		}
		key, ok := k.(evaluator.String)
		if !ok {
			return nil, evaluator.TypeError("a string", k, nil)
		}
		if _, seen := groups[key.Value]; !seen {
			order = append(order, key.Value)
		}
		groups[key.Value] = append(groups[key.Value], item)
	}
	set := evaluator.NewAttrSet()
	for _, key := range order {
		set.SetValue(key, evaluator.NewList(groups[key]))
	}
	return set, nil
}

// partition pred list → { right = [...]; wrong = [...]; }
func stdlibPartition(ev *evaluator.Evaluator, args []*evaluator.Thunk) (evaluator.Value, error) {
	fn, err := evaluator.ForceFunction(args[0])
	if err != nil {
		return nil, err
	}
	list, err := evaluator.ForceList(args[1])
	if err != nil {
		return nil, err
	}
	var right, wrong []*evaluator.Thunk
	for _, item := range list.Items {
		ok, err := callPredicate(ev, fn, item)
		if err != nil {
			return nil, err
		}
		if ok {
			right = append(right, item)
		} else {
			wrong = append(wrong, item)
		}
	}
	set := evaluator.NewAttrSet()
	set.SetValue("right", evaluator.NewList(right))
	set.SetValue("wrong", evaluator.NewList(wrong))
	return set, nil
}

// sort less list → list, stable
func stdlibSort(ev *evaluator.Evaluator, args []*evaluator.Thunk) (evaluator.Value, error) {
	fn, err := evaluator.ForceFunction(args[0])
	if err != nil {
		return nil, err
	}
	list, err := evaluator.ForceList(args[1])
	if err != nil {
		return nil, err
	}
	items := make([]*evaluator.Thunk, len(list.Items))
	copy(items, list.Items)

	var sortErr error
	sort.SliceStable(items, func(i, j int) bool {
		if sortErr != nil {
			return false
		}
		less, err := callPredicate(ev, fn, items[i], items[j])
		if err != nil {
			sortErr = err
			return false
		}
		return less
	})
	if sortErr != nil {
		return nil, sortErr
	}
	return evaluator.NewList(items), nil
}

package evaluator

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/thomasrohde/nixeval/pkg/diagnostics"
)

// CoerceToString converts v to a string the way interpolation does:
// strings pass through, paths become their text and sets convert through
// __toString or outPath. With more set (builtins.toString) numbers,
// Booleans, null and lists are converted too.
func (ev *Evaluator) CoerceToString(v Value, more bool) (String, error) {
	switch val := v.(type) {
	case String:
		return val, nil
	case Path:
		return String{Value: val.Value, Context: []string{val.Value}}, nil
	case *AttrSet:
		if fn, ok := val.Get("__toString"); ok {
			f, err := fn.Force()
			if err != nil {
				return String{}, err
			}
			r, err := ev.Apply(f, NewValueThunk(val))
			if err != nil {
				return String{}, err
			}
			return ev.CoerceToString(r, more)
		}
		if out, ok := val.Get("outPath"); ok {
			r, err := out.Force()
			if err != nil {
				return String{}, err
			}
			return ev.CoerceToString(r, more)
		}
	}
	if more {
		switch val := v.(type) {
		case Int:
			return String{Value: strconv.FormatInt(val.Value, 10)}, nil
		case Float:
			return String{Value: fmt.Sprintf("%f", val.Value)}, nil
		case Bool:
			if val.Value {
				return String{Value: "1"}, nil
			}
			return String{}, nil
		case Null:
			return String{}, nil
		case List:
			var sb strings.Builder
			var ctx []string
			for i, th := range val.Items {
				item, err := th.Force()
				if err != nil {
					return String{}, err
				}
				s, err := ev.CoerceToString(item, true)
				if err != nil {
					return String{}, err
				}
				sb.WriteString(s.Value)
				ctx = MergeContext(ctx, s.Context)
				if l, isList := item.(List); i < len(val.Items)-1 && (!isList || len(l.Items) > 0) {
					sb.WriteByte(' ')
				}
			}
			return String{Value: sb.String(), Context: ctx}, nil
		}
	}
	return String{}, &EvalError{
		Code:     diagnostics.ETypeMismatch,
		Message:  "cannot coerce " + describeType(v) + " to a string",
		Expected: "string",
		Actual:   TypeName(v),
	}
}

func forceAs[T Value](th *Thunk, expected string) (T, error) {
	var zero T
	v, err := th.Force()
	if err != nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, TypeError(expected, v, nil)
	}
	return t, nil
}

// ForceAttrs forces th and requires a set.
func ForceAttrs(th *Thunk) (*AttrSet, error) {
	return forceAs[*AttrSet](th, "a set")
}

// ForceList forces th and requires a list.
func ForceList(th *Thunk) (List, error) {
	return forceAs[List](th, "a list")
}

// ForceString forces th and requires a string, keeping its context.
func ForceString(th *Thunk) (String, error) {
	return forceAs[String](th, "a string")
}

// ForceInt forces th and requires an integer.
func ForceInt(th *Thunk) (int64, error) {
	n, err := forceAs[Int](th, "an integer")
	return n.Value, err
}

// ForceBool forces th and requires a Boolean.
func ForceBool(th *Thunk) (bool, error) {
	b, err := forceAs[Bool](th, "a Boolean")
	return b.Value, err
}

// ForceFunction forces th and requires something callable.
func ForceFunction(th *Thunk) (Value, error) {
	v, err := th.Force()
	if err != nil {
		return nil, err
	}
	if !IsCallable(v) {
		return nil, TypeError("a function", v, nil)
	}
	return v, nil
}

// ForceNumber forces th and requires an integer or a float.
func ForceNumber(th *Thunk) (Value, error) {
	v, err := th.Force()
	if err != nil {
		return nil, err
	}
	switch v.(type) {
	case Int, Float:
		return v, nil
	}
	return nil, TypeError("a number", v, nil)
}

// ForcePath forces th and returns the path it denotes. Strings are
// accepted when they hold an absolute path.
func (ev *Evaluator) ForcePath(th *Thunk) (string, error) {
	v, err := th.Force()
	if err != nil {
		return "", err
	}
	if p, ok := v.(Path); ok {
		return p.Value, nil
	}
	s, err := ev.CoerceToString(v, false)
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(s.Value, "/") {
		return "", Errorf(diagnostics.EEval, "string '%s' doesn't represent an absolute path", s.Value)
	}
	return s.Value, nil
}

// DeepForce forces v and everything reachable from it. Sets and lists
// already visited are skipped so cyclic structures terminate.
func (ev *Evaluator) DeepForce(v Value) error {
	return ev.deepForce(v, make(map[any]bool))
}

func (ev *Evaluator) deepForce(v Value, seen map[any]bool) error {
	switch val := v.(type) {
	case List:
		if len(val.Items) == 0 || seen[&val.Items[0]] {
			return nil
		}
		seen[&val.Items[0]] = true
		for _, th := range val.Items {
			item, err := th.Force()
			if err != nil {
				return err
			}
			if err := ev.deepForce(item, seen); err != nil {
				return err
			}
		}
	case *AttrSet:
		if seen[val] {
			return nil
		}
		seen[val] = true
		var ferr error
		val.Each(func(name string, th *Thunk) bool {
			item, err := th.Force()
			if err == nil {
				err = ev.deepForce(item, seen)
			}
			if err != nil {
				ferr = addFrame(err, nil, "while evaluating the attribute '%s'", name)
				return false
			}
			return true
		})
		return ferr
	}
	return nil
}

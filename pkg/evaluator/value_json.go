package evaluator

import (
	"bytes"
	"math"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/thomasrohde/nixeval/pkg/diagnostics"
)

// ToJSON forces v deeply and encodes it as JSON. Sets are encoded with
// sorted keys; derivations and sets with __toString or outPath become
// strings. The returned context collects the contexts of every string.
func (ev *Evaluator) ToJSON(v Value) (string, []string, error) {
	var ctx []string
	raw, err := ev.valueToRaw(v, &ctx, make(map[*AttrSet]bool))
	if err != nil {
		return "", nil, err
	}
	b, err := json.MarshalNoEscape(raw)
	if err != nil {
		return "", nil, Errorf(diagnostics.EEval, "cannot encode JSON: %v", err)
	}
	return string(b), ctx, nil
}

func (ev *Evaluator) valueToRaw(v Value, ctx *[]string, active map[*AttrSet]bool) (any, error) {
	switch val := v.(type) {
	case Null:
		return nil, nil
	case Bool:
		return val.Value, nil
	case Int:
		return val.Value, nil
	case Float:
		return json.Number(FormatJSONFloat(val.Value)), nil
	case String:
		*ctx = MergeContext(*ctx, val.Context)
		return val.Value, nil
	case Path:
		return val.Value, nil
	case List:
		items := make([]any, len(val.Items))
		for i, th := range val.Items {
			item, err := th.Force()
			if err != nil {
				return nil, err
			}
			if items[i], err = ev.valueToRaw(item, ctx, active); err != nil {
				return nil, err
			}
		}
		return items, nil
	case *AttrSet:
		if val.Has("__toString") {
			s, err := ev.CoerceToString(val, false)
			if err != nil {
				return nil, err
			}
			*ctx = MergeContext(*ctx, s.Context)
			return s.Value, nil
		}
		if out, ok := val.Get("outPath"); ok {
			o, err := out.Force()
			if err != nil {
				return nil, err
			}
			return ev.valueToRaw(o, ctx, active)
		}
		if active[val] {
			return nil, Errorf(diagnostics.EInfiniteRecursion, "cannot convert a cyclic attribute set to JSON")
		}
		active[val] = true
		defer delete(active, val)
		obj := make(map[string]any, val.Len())
		var ferr error
		val.Each(func(name string, th *Thunk) bool {
			item, err := th.Force()
			if err == nil {
				obj[name], err = ev.valueToRaw(item, ctx, active)
			}
			if err != nil {
				ferr = addFrame(err, nil, "while evaluating attribute '%s'", name)
				return false
			}
			return true
		})
		if ferr != nil {
			return nil, ferr
		}
		return obj, nil
	}
	return nil, Errorf(diagnostics.EEval, "cannot convert %s to JSON", describeType(v))
}

// FormatJSONFloat renders a float the way toJSON does: shortest form,
// always recognizable as a float.
func FormatJSONFloat(f float64) string {
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return "null"
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eEn") {
		s += ".0"
	}
	return s
}

// FromJSON decodes a JSON document into a value. Integral numbers become
// integers, all other numbers floats.
func FromJSON(data string) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(data)))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, Errorf(diagnostics.EEval, "invalid JSON: %v", err)
	}
	if dec.More() {
		return nil, Errorf(diagnostics.EEval, "invalid JSON: trailing data after value")
	}
	return anyToValue(raw)
}

func anyToValue(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case bool:
		return Bool{Value: val}, nil
	case string:
		return String{Value: val}, nil
	case json.Number:
		if !strings.ContainsAny(string(val), ".eE") {
			if n, err := val.Int64(); err == nil {
				return Int{Value: n}, nil
			}
		}
		f, err := val.Float64()
		if err != nil {
			return nil, Errorf(diagnostics.EEval, "invalid JSON number %s", val)
		}
		return Float{Value: f}, nil
	case []any:
		items := make([]*Thunk, len(val))
		for i, item := range val {
			x, err := anyToValue(item)
			if err != nil {
				return nil, err
			}
			items[i] = NewValueThunk(x)
		}
		return List{Items: items}, nil
	case map[string]any:
		set := NewAttrSet()
		for k, item := range val {
			x, err := anyToValue(item)
			if err != nil {
				return nil, err
			}
			set.SetValue(k, x)
		}
		return set, nil
	}
	return nil, Errorf(diagnostics.EEval, "unsupported JSON value %T", v)
}

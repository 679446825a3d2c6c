// Package evaluator implements the lazy Nix evaluator: values, thunks,
// environments, function application and attribute set construction.
package evaluator

import (
	"github.com/tidwall/btree"

	"github.com/thomasrohde/nixeval/pkg/ast"
)

// Value is the interface for all Nix runtime values.
// Use the sealed marker method to restrict implementations to this package.
type Value interface {
	nixValue() // sealed marker
}

// Null represents the null value.
type Null struct{}

func (Null) nixValue() {}

// Bool represents a boolean value.
type Bool struct {
	Value bool
}

func (Bool) nixValue() {}

// Int represents a 64-bit signed integer.
type Int struct {
	Value int64
}

func (Int) nixValue() {}

// Float represents a floating point number.
type Float struct {
	Value float64
}

func (Float) nixValue() {}

// String is a Nix string together with its context. The context is an
// order-preserving set of opaque references (paths the string was built
// from) and carries no further semantics.
type String struct {
	Value   string
	Context []string
}

func (String) nixValue() {}

// Path is an absolute, cleaned filesystem path.
type Path struct {
	Value string
}

func (Path) nixValue() {}

// List is an ordered sequence of lazily evaluated elements.
type List struct {
	Items []*Thunk
}

func (List) nixValue() {}

// AttrSet maps attribute names to lazily evaluated values. Iteration is
// always in byte order of the names.
type AttrSet struct {
	m *btree.Map[string, *Thunk]
}

func (*AttrSet) nixValue() {}

// Lambda is a user function closing over its defining environment.
type Lambda struct {
	Node *ast.Lambda
	Env  *Env
}

func (*Lambda) nixValue() {}

// BuiltinFunc implements a native function. It receives exactly Arity
// argument thunks and forces only the ones it needs.
type BuiltinFunc func(ev *Evaluator, args []*Thunk) (Value, error)

// Builtin is a native function, possibly partially applied.
type Builtin struct {
	Name  string
	Arity int
	Args  []*Thunk
	Impl  BuiltinFunc
}

func (*Builtin) nixValue() {}

// NewNull creates a null value.
func NewNull() Value {
	return Null{}
}

// NewBool creates a boolean value.
func NewBool(b bool) Value {
	return Bool{Value: b}
}

// NewInt creates an integer value.
func NewInt(n int64) Value {
	return Int{Value: n}
}

// NewFloat creates a float value.
func NewFloat(f float64) Value {
	return Float{Value: f}
}

// NewString creates a string value without context.
func NewString(s string) Value {
	return String{Value: s}
}

// NewStringWithContext creates a string value carrying ctx.
func NewStringWithContext(s string, ctx []string) Value {
	return String{Value: s, Context: ctx}
}

// NewPath creates a path value.
func NewPath(p string) Value {
	return Path{Value: p}
}

// NewList creates a list value.
func NewList(items []*Thunk) Value {
	return List{Items: items}
}

// NewAttrSet creates an empty attribute set.
func NewAttrSet() *AttrSet {
	return &AttrSet{m: btree.NewMap[string, *Thunk](0)}
}

// NewBuiltin creates an unapplied native function.
func NewBuiltin(name string, arity int, impl BuiltinFunc) *Builtin {
	return &Builtin{Name: name, Arity: arity, Impl: impl}
}

// Get looks up an attribute.
func (s *AttrSet) Get(name string) (*Thunk, bool) {
	return s.m.Get(name)
}

// Has reports whether the attribute exists.
func (s *AttrSet) Has(name string) bool {
	_, ok := s.m.Get(name)
	return ok
}

// Set binds an attribute. Sets are only mutated while they are being
// built, before they are published as values.
func (s *AttrSet) Set(name string, th *Thunk) {
	s.m.Set(name, th)
}

// SetValue binds an attribute to an already evaluated value.
func (s *AttrSet) SetValue(name string, v Value) {
	s.m.Set(name, NewValueThunk(v))
}

// Delete removes an attribute from a set under construction.
func (s *AttrSet) Delete(name string) {
	s.m.Delete(name)
}

// Len returns the number of attributes.
func (s *AttrSet) Len() int {
	return s.m.Len()
}

// Keys returns attribute names in sorted order.
func (s *AttrSet) Keys() []string {
	return s.m.Keys()
}

// Each calls fn for every attribute in sorted order until fn returns false.
func (s *AttrSet) Each(fn func(name string, th *Thunk) bool) {
	s.m.Scan(fn)
}

// Copy returns a shallow copy that can be extended independently.
func (s *AttrSet) Copy() *AttrSet {
	return &AttrSet{m: s.m.Copy()}
}

// TypeName returns the Nix type name of a value, as reported by
// builtins.typeOf.
func TypeName(v Value) string {
	switch v.(type) {
	case Null:
		return "null"
	case Bool:
		return "bool"
	case Int:
		return "int"
	case Float:
		return "float"
	case String:
		return "string"
	case Path:
		return "path"
	case List:
		return "list"
	case *AttrSet:
		return "set"
	case *Lambda, *Builtin:
		return "lambda"
	}
	return "unknown"
}

// describeType is TypeName phrased for error messages.
func describeType(v Value) string {
	switch v.(type) {
	case Null:
		return "null"
	case Bool:
		return "a Boolean"
	case Int:
		return "an integer"
	case Float:
		return "a float"
	case String:
		return "a string"
	case Path:
		return "a path"
	case List:
		return "a list"
	case *AttrSet:
		return "a set"
	case *Lambda:
		return "a function"
	case *Builtin:
		return "a built-in function"
	}
	return "an unknown value"
}

// IsFunction reports whether v is a lambda or a built-in. Sets with
// __functor are callable but are not functions.
func IsFunction(v Value) bool {
	switch v.(type) {
	case *Lambda, *Builtin:
		return true
	}
	return false
}

// MergeContext joins two string contexts preserving first-seen order.
func MergeContext(a, b []string) []string {
	if len(b) == 0 {
		return a
	}
	if len(a) == 0 {
		return b
	}
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, c := range a {
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	for _, c := range b {
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	return out
}

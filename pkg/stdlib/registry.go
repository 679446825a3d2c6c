// Package stdlib provides the registry of Nix built-in functions.
package stdlib

import (
	"sort"

	"github.com/thomasrohde/nixeval/pkg/evaluator"
)

// Fn describes one built-in. Functions have Arity > 0 and an Impl;
// constants have Arity 0 and a Const producing their value.
type Fn struct {
	Name   string
	Arity  int
	Impl   evaluator.BuiltinFunc
	Const  func(ev *evaluator.Evaluator) evaluator.Value
	Global bool // also bound without the builtins. prefix
}

// Registry holds registered built-ins.
type Registry struct {
	fns map[string]*Fn
}

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{
		fns: make(map[string]*Fn),
	}
}

// Register adds a built-in to the registry.
func (r *Registry) Register(fn Fn) {
	r.fns[fn.Name] = &fn
}

// Get retrieves a built-in by name.
func (r *Registry) Get(name string) *Fn {
	return r.fns[name]
}

// All returns all registered built-ins.
func (r *Registry) All() map[string]*Fn {
	return r.fns
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.fns))
	for name := range r.fns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Install builds the builtins set for ev and binds it, together with the
// global built-ins, into globals. globals must be the map ev was created
// with, and Install must run before anything is evaluated.
func (r *Registry) Install(ev *evaluator.Evaluator, globals map[string]*evaluator.Thunk) *evaluator.AttrSet {
	set := evaluator.NewAttrSet()
	for _, fn := range r.fns {
		th := fn.thunk(ev)
		set.Set(fn.Name, th)
		if fn.Global {
			globals[fn.Name] = th
		}
	}
	self := evaluator.NewValueThunk(set)
	set.Set("builtins", self)
	globals["builtins"] = self
	return set
}

func (fn *Fn) thunk(ev *evaluator.Evaluator) *evaluator.Thunk {
	if fn.Arity == 0 {
		c := fn.Const
		return evaluator.NewLazyThunk(func() (evaluator.Value, error) {
			return c(ev), nil
		})
	}
	return evaluator.NewValueThunk(evaluator.NewBuiltin(fn.Name, fn.Arity, fn.Impl))
}

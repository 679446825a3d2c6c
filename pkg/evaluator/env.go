package evaluator

// Env is a scope frame. A frame either holds lexical bindings or, for
// `with e; ...`, an overlay set that is only consulted once every lexical
// frame has failed to resolve a name.
type Env struct {
	vars   map[string]*Thunk
	with   *Thunk
	parent *Env
	ev     *Evaluator
}

// NewEnv creates a lexical frame holding vars. The map must not be
// modified once thunks closing over the frame may be forced.
func NewEnv(parent *Env, vars map[string]*Thunk) *Env {
	e := &Env{vars: vars, parent: parent}
	if parent != nil {
		e.ev = parent.ev
	}
	return e
}

// NewWithEnv creates an overlay frame whose names come from the set that
// scope evaluates to.
func NewWithEnv(parent *Env, scope *Thunk) *Env {
	return &Env{with: scope, parent: parent, ev: parent.ev}
}

// Evaluator returns the evaluator this environment belongs to.
func (e *Env) Evaluator() *Evaluator {
	return e.ev
}

// LookupLexical resolves name through lexical frames only, never forcing
// anything.
func (e *Env) LookupLexical(name string) (*Thunk, bool) {
	for f := e; f != nil; f = f.parent {
		if f.vars == nil {
			continue
		}
		if th, ok := f.vars[name]; ok {
			return th, true
		}
	}
	return nil, false
}

// Lookup resolves name: lexical frames first, then `with` overlays from the
// innermost outwards. Overlay sets are forced on demand.
func (e *Env) Lookup(name string) (*Thunk, bool, error) {
	if th, ok := e.LookupLexical(name); ok {
		return th, true, nil
	}
	for f := e; f != nil; f = f.parent {
		if f.with == nil {
			continue
		}
		v, err := f.with.Force()
		if err != nil {
			return nil, false, err
		}
		set, ok := v.(*AttrSet)
		if !ok {
			return nil, false, TypeError("a set", v, nil)
		}
		if th, ok := set.Get(name); ok {
			return th, true, nil
		}
	}
	return nil, false, nil
}

// HasWith reports whether any enclosing frame is a `with` overlay.
func (e *Env) HasWith() bool {
	for f := e; f != nil; f = f.parent {
		if f.with != nil {
			return true
		}
	}
	return false
}

// Names returns every lexically bound name visible from e, innermost
// binding first. Used by the REPL for completion.
func (e *Env) Names() []string {
	seen := make(map[string]bool)
	var names []string
	for f := e; f != nil; f = f.parent {
		for name := range f.vars {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	return names
}

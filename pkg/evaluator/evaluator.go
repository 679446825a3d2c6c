package evaluator

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/thomasrohde/nixeval/pkg/ast"
	"github.com/thomasrohde/nixeval/pkg/diagnostics"
)

// TraceSink receives the messages of builtins.trace and builtins.warn.
type TraceSink interface {
	Trace(msg string)
	Warn(msg string)
}

// Importer loads and evaluates a Nix file for builtins.import.
type Importer interface {
	Import(ev *Evaluator, path string) (Value, error)
}

// AccessPolicy decides which files and environment variables evaluation
// may read. A nil policy allows everything.
type AccessPolicy interface {
	CheckPath(path string) error
	CheckEnv(name string) error
}

// SearchPathEntry is one element of the Nix search path. An empty Prefix
// matches every <name>.
type SearchPathEntry struct {
	Prefix string
	Path   string
}

// Options configures an Evaluator.
type Options struct {
	// Globals are the names bound in the root environment.
	Globals  map[string]*Thunk
	Importer Importer
	Trace    TraceSink
	Policy   AccessPolicy
	NixPath  []SearchPathEntry
	Budget   Budget
	// TraceVerbose enables builtins.traceVerbose output.
	TraceVerbose bool
	// BaseDir anchors relative paths in sources that have no file, such as
	// -e expressions and stdin. Defaults to the working directory.
	BaseDir string
}

// Evaluator evaluates Nix expressions lazily. It is not safe for concurrent
// use.
type Evaluator struct {
	ctx     context.Context
	opts    Options
	root    *Env
	budget  Budget
	tracker BudgetTracker
}

// New creates an evaluator. The context is checked periodically and
// cancels a running evaluation.
func New(ctx context.Context, opts Options) *Evaluator {
	if ctx == nil {
		ctx = context.Background()
	}
	ev := &Evaluator{ctx: ctx, opts: opts, budget: opts.Budget}
	globals := opts.Globals
	if globals == nil {
		globals = map[string]*Thunk{}
	}
	ev.root = &Env{vars: globals, ev: ev}
	return ev
}

// Context returns the evaluator's context.
func (ev *Evaluator) Context() context.Context {
	return ev.ctx
}

// RootEnv returns the environment holding the globals.
func (ev *Evaluator) RootEnv() *Env {
	return ev.root
}

// NixPath returns the configured search path.
func (ev *Evaluator) NixPath() []SearchPathEntry {
	return ev.opts.NixPath
}

// Evaluate reduces expr to weak head normal form in env, or in the root
// environment when env is nil. Nested values stay unevaluated.
func (ev *Evaluator) Evaluate(expr ast.Expr, env *Env) (Value, error) {
	if env == nil {
		env = ev.root
	}
	return ev.eval(expr, env)
}

// Trace forwards a message to the trace sink.
func (ev *Evaluator) Trace(msg string) {
	if ev.opts.Trace != nil {
		ev.opts.Trace.Trace(msg)
	}
}

// Warn forwards a warning to the trace sink.
func (ev *Evaluator) Warn(msg string) {
	if ev.opts.Trace != nil {
		ev.opts.Trace.Warn(msg)
	}
}

// TraceVerbose reports whether builtins.traceVerbose prints.
func (ev *Evaluator) TraceVerbose() bool {
	return ev.opts.TraceVerbose
}

// SetContext replaces the context checked during evaluation.
func (ev *Evaluator) SetContext(ctx context.Context) {
	ev.ctx = ctx
}

// Import evaluates the file at path through the configured importer.
func (ev *Evaluator) Import(path string) (Value, error) {
	if ev.opts.Importer == nil {
		return nil, Errorf(diagnostics.EImport, "cannot import '%s': imports are not available", path)
	}
	return ev.opts.Importer.Import(ev, path)
}

// CheckPath fails with a restricted-evaluation error when path may not be
// read.
func (ev *Evaluator) CheckPath(path string) error {
	if ev.opts.Policy == nil {
		return nil
	}
	if err := ev.opts.Policy.CheckPath(path); err != nil {
		return Errorf(diagnostics.ERestricted, "access to path '%s' is forbidden in restricted mode: %v", path, err)
	}
	return nil
}

// CheckEnv fails with a restricted-evaluation error when the environment
// variable may not be read.
func (ev *Evaluator) CheckEnv(name string) error {
	if ev.opts.Policy == nil {
		return nil
	}
	if err := ev.opts.Policy.CheckEnv(name); err != nil {
		return Errorf(diagnostics.ERestricted, "access to environment variable '%s' is forbidden in restricted mode: %v", name, err)
	}
	return nil
}

func (ev *Evaluator) eval(expr ast.Expr, env *Env) (Value, error) {
	if err := ev.enter(); err != nil {
		return nil, withSpan(err, spanPtr(expr))
	}
	defer ev.leave()

	switch e := expr.(type) {
	case *ast.IntLiteral:
		return Int{Value: e.Value}, nil
	case *ast.FloatLiteral:
		return Float{Value: e.Value}, nil
	case *ast.StringExpr:
		return ev.evalString(e, env)
	case *ast.PathLiteral:
		return ev.evalPath(e)
	case *ast.SearchPath:
		p, err := ev.FindSearchPath(e.Value)
		if err != nil {
			return nil, withSpan(err, &e.Span)
		}
		return Path{Value: p}, nil
	case *ast.Ident:
		return ev.evalIdent(e, env)
	case *ast.Select:
		return ev.evalSelect(e, env)
	case *ast.HasAttr:
		return ev.evalHasAttr(e, env)
	case *ast.AttrSet:
		return ev.buildAttrSet(e, env)
	case *ast.ListExpr:
		items := make([]*Thunk, len(e.Items))
		for i, item := range e.Items {
			items[i] = ev.thunk(item, env)
		}
		return List{Items: items}, nil
	case *ast.Lambda:
		return &Lambda{Node: e, Env: env}, nil
	case *ast.Apply:
		return ev.evalApply(e, env)
	case *ast.BinaryExpr:
		return ev.evalBinary(e, env)
	case *ast.UnaryExpr:
		return ev.evalUnary(e, env)
	case *ast.IfExpr:
		cond, err := ev.evalBool(e.Cond, env)
		if err != nil {
			return nil, err
		}
		if cond {
			return ev.eval(e.Then, env)
		}
		return ev.eval(e.Else, env)
	case *ast.AssertExpr:
		ok, err := ev.evalBool(e.Cond, env)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, newError(diagnostics.EAssert, spanPtr(e.Cond), "assertion failed")
		}
		return ev.eval(e.Body, env)
	case *ast.WithExpr:
		return ev.eval(e.Body, NewWithEnv(env, ev.thunk(e.Scope, env)))
	case *ast.LetExpr:
		frame, err := ev.buildLet(e, env)
		if err != nil {
			return nil, err
		}
		return ev.eval(e.Body, frame)
	case *ast.LegacyLet:
		v, err := ev.buildAttrSet(&ast.AttrSet{Span: e.Span, Rec: true, Bindings: e.Bindings}, env)
		if err != nil {
			return nil, err
		}
		body, ok := v.(*AttrSet).Get("body")
		if !ok {
			return nil, newError(diagnostics.EMissingAttr, &e.Span, "attribute 'body' missing")
		}
		return body.Force()
	}
	return nil, newError(diagnostics.EEval, spanPtr(expr), "cannot evaluate %s", expr.Kind())
}

// thunk defers expr, building values directly for literals that need no
// environment lookups.
func (ev *Evaluator) thunk(expr ast.Expr, env *Env) *Thunk {
	switch e := expr.(type) {
	case *ast.IntLiteral:
		return NewValueThunk(Int{Value: e.Value})
	case *ast.FloatLiteral:
		return NewValueThunk(Float{Value: e.Value})
	case *ast.StringExpr:
		if s, ok := e.Static(); ok {
			return NewValueThunk(String{Value: s})
		}
	case *ast.Lambda:
		return NewValueThunk(&Lambda{Node: e, Env: env})
	}
	return NewThunk(expr, env)
}

func (ev *Evaluator) evalIdent(e *ast.Ident, env *Env) (Value, error) {
	th, ok, err := env.Lookup(e.Name)
	if err != nil {
		return nil, withSpan(err, &e.Span)
	}
	if !ok {
		return nil, newError(diagnostics.EUndefinedVar, &e.Span, "undefined variable '%s'", e.Name)
	}
	return th.Force()
}

func (ev *Evaluator) evalBool(expr ast.Expr, env *Env) (bool, error) {
	v, err := ev.eval(expr, env)
	if err != nil {
		return false, err
	}
	b, ok := v.(Bool)
	if !ok {
		return false, TypeError("a Boolean", v, spanPtr(expr))
	}
	return b.Value, nil
}

func (ev *Evaluator) evalString(e *ast.StringExpr, env *Env) (Value, error) {
	var sb strings.Builder
	var ctx []string
	for _, part := range e.Parts {
		if part.Interp == nil {
			sb.WriteString(part.Text)
			continue
		}
		v, err := ev.eval(part.Interp, env)
		if err != nil {
			return nil, err
		}
		s, err := ev.CoerceToString(v, false)
		if err != nil {
			return nil, withSpan(err, spanPtr(part.Interp))
		}
		sb.WriteString(s.Value)
		ctx = MergeContext(ctx, s.Context)
	}
	return String{Value: sb.String(), Context: ctx}, nil
}

// attrName evaluates one attribute path segment to its name. isNull is
// set when a dynamic key evaluated to null.
func (ev *Evaluator) attrName(key ast.AttrKey, env *Env) (name string, isNull bool, err error) {
	if key.Dynamic == nil {
		return key.Name, false, nil
	}
	v, err := ev.eval(key.Dynamic, env)
	if err != nil {
		return "", false, err
	}
	switch s := v.(type) {
	case String:
		return s.Value, false, nil
	case Null:
		return "", true, nil
	}
	return "", false, TypeError("a string", v, &key.Span)
}

func (ev *Evaluator) evalSelect(e *ast.Select, env *Env) (Value, error) {
	v, err := ev.eval(e.Expr, env)
	if err != nil {
		return nil, err
	}
	for i, key := range e.Path {
		set, ok := v.(*AttrSet)
		if !ok {
			if e.Default != nil {
				return ev.eval(e.Default, env)
			}
			return nil, TypeError("a set", v, &key.Span)
		}
		name, isNull, err := ev.attrName(key, env)
		if err != nil {
			return nil, err
		}
		if isNull {
			return nil, newError(diagnostics.ETypeMismatch, &key.Span, "attribute name is null while a string was expected")
		}
		th, ok := set.Get(name)
		if !ok {
			if e.Default != nil {
				return ev.eval(e.Default, env)
			}
			return nil, newError(diagnostics.EMissingAttr, &key.Span, "attribute '%s' missing", selectPath(e.Path[:i], name))
		}
		if v, err = th.Force(); err != nil {
			return nil, err
		}
	}
	return v, nil
}

func selectPath(prefix []ast.AttrKey, name string) string {
	if len(prefix) == 0 {
		return name
	}
	return ast.AttrPathString(prefix) + "." + name
}

func (ev *Evaluator) evalHasAttr(e *ast.HasAttr, env *Env) (Value, error) {
	v, err := ev.eval(e.Expr, env)
	if err != nil {
		return nil, err
	}
	for _, key := range e.Path {
		set, ok := v.(*AttrSet)
		if !ok {
			return Bool{Value: false}, nil
		}
		name, isNull, err := ev.attrName(key, env)
		if err != nil {
			return nil, err
		}
		if isNull {
			return Bool{Value: false}, nil
		}
		th, ok := set.Get(name)
		if !ok {
			return Bool{Value: false}, nil
		}
		if v, err = th.Force(); err != nil {
			return nil, err
		}
	}
	return Bool{Value: true}, nil
}

func (ev *Evaluator) evalApply(e *ast.Apply, env *Env) (Value, error) {
	fn, err := ev.eval(e.Func, env)
	if err != nil {
		return nil, err
	}
	v, err := ev.Apply(fn, ev.thunk(e.Arg, env))
	if err != nil {
		err = withSpan(err, &e.Span)
		return nil, addFrame(err, &e.Span, "while calling %s", calleeName(e.Func))
	}
	return v, nil
}

func calleeName(fn ast.Expr) string {
	switch f := fn.(type) {
	case *ast.Ident:
		return "'" + f.Name + "'"
	case *ast.Select:
		if id, ok := f.Expr.(*ast.Ident); ok {
			return "'" + id.Name + "." + ast.AttrPathString(f.Path) + "'"
		}
	case *ast.Apply:
		return calleeName(f.Func)
	}
	return "a function"
}

func (ev *Evaluator) evalPath(e *ast.PathLiteral) (Value, error) {
	p := e.Value
	switch {
	case strings.HasPrefix(p, "~/"):
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, newError(diagnostics.EEval, &e.Span, "cannot resolve '%s': %v", p, err)
		}
		p = filepath.Join(home, p[2:])
	case filepath.IsAbs(p):
		p = filepath.Clean(p)
	default:
		p = filepath.Join(ev.baseDir(e.Span.File), p)
	}
	return Path{Value: p}, nil
}

func (ev *Evaluator) baseDir(file string) string {
	if filepath.IsAbs(file) {
		return filepath.Dir(file)
	}
	if ev.opts.BaseDir != "" {
		return ev.opts.BaseDir
	}
	wd, err := os.Getwd()
	if err != nil {
		return "/"
	}
	return wd
}

// FindSearchPath resolves <name> against the search path. The first entry
// whose candidate exists wins. Candidates the access policy forbids are
// skipped without touching the filesystem.
func (ev *Evaluator) FindSearchPath(name string) (string, error) {
	for _, ent := range ev.opts.NixPath {
		var candidate string
		switch {
		case ent.Prefix == "":
			candidate = filepath.Join(ent.Path, name)
		case name == ent.Prefix:
			candidate = ent.Path
		case strings.HasPrefix(name, ent.Prefix+"/"):
			candidate = filepath.Join(ent.Path, name[len(ent.Prefix)+1:])
		default:
			continue
		}
		candidate = filepath.Clean(candidate)
		if ev.CheckPath(candidate) != nil {
			continue
		}
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", Errorf(diagnostics.EImport, "file '%s' was not found in the Nix search path (add it using $NIX_PATH or -I)", name)
}

// ParseSearchPath splits NIX_PATH style entries ("name=path" or "path").
func ParseSearchPath(entries []string) []SearchPathEntry {
	var out []SearchPathEntry
	for _, e := range entries {
		if e == "" {
			continue
		}
		if prefix, path, ok := strings.Cut(e, "="); ok {
			out = append(out, SearchPathEntry{Prefix: prefix, Path: path})
		} else {
			out = append(out, SearchPathEntry{Path: e})
		}
	}
	return out
}

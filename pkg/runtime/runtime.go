// Package runtime provides the top-level Nix evaluation orchestrator.
package runtime

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/thomasrohde/nixeval/pkg/ast"
	"github.com/thomasrohde/nixeval/pkg/capabilities"
	"github.com/thomasrohde/nixeval/pkg/diagnostics"
	"github.com/thomasrohde/nixeval/pkg/evaluator"
	"github.com/thomasrohde/nixeval/pkg/parser"
	"github.com/thomasrohde/nixeval/pkg/stdlib"
	"github.com/thomasrohde/nixeval/pkg/validator"
)

// Runtime wires together parser, validator, evaluator and built-ins. It
// owns one evaluator, so imported files are evaluated at most once for
// the lifetime of the runtime. A Runtime is not safe for concurrent use.
type Runtime struct {
	stdlib       *stdlib.Registry
	policy       *capabilities.Policy
	nixPath      []string
	logger       zerolog.Logger
	runID        string
	trace        evaluator.TraceSink
	budget       evaluator.Budget
	traceVerbose bool
	baseDir      string
	validate     bool

	ev       *evaluator.Evaluator
	globals  map[string]*evaluator.Thunk
	builtins *evaluator.AttrSet
	imports  map[string]*evaluator.Thunk
}

// Option is a functional option for configuring the Runtime.
type Option func(*Runtime)

// WithStdlib sets the built-ins registry.
func WithStdlib(r *stdlib.Registry) Option {
	return func(rt *Runtime) {
		rt.stdlib = r
	}
}

// WithPolicy restricts which paths and environment variables evaluation
// may read. Without it evaluation is unrestricted.
func WithPolicy(p *capabilities.Policy) Option {
	return func(rt *Runtime) {
		rt.policy = p
	}
}

// WithNixPath sets the search path used for <name> lookups, in NIX_PATH
// entry syntax.
func WithNixPath(entries ...string) Option {
	return func(rt *Runtime) {
		rt.nixPath = entries
	}
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(rt *Runtime) {
		rt.logger = l
	}
}

// WithRunID sets the run ID attached to log events.
func WithRunID(id string) Option {
	return func(rt *Runtime) {
		rt.runID = id
	}
}

// WithTrace sets where builtins.trace and builtins.warn messages go.
func WithTrace(sink evaluator.TraceSink) Option {
	return func(rt *Runtime) {
		rt.trace = sink
	}
}

// WithBudget sets evaluation resource limits.
func WithBudget(b evaluator.Budget) Option {
	return func(rt *Runtime) {
		rt.budget = b
	}
}

// WithTraceVerbose enables builtins.traceVerbose.
func WithTraceVerbose(on bool) Option {
	return func(rt *Runtime) {
		rt.traceVerbose = on
	}
}

// WithBaseDir anchors relative paths of expressions that have no file.
func WithBaseDir(dir string) Option {
	return func(rt *Runtime) {
		rt.baseDir = dir
	}
}

// WithoutValidation skips the static checks before evaluation.
func WithoutValidation() Option {
	return func(rt *Runtime) {
		rt.validate = false
	}
}

// New creates a new Runtime with the given options. By default all
// built-ins are registered, evaluation is unrestricted and trace output
// goes to stderr.
func New(opts ...Option) *Runtime {
	reg := stdlib.NewRegistry()
	stdlib.RegisterDefaults(reg)

	rt := &Runtime{
		stdlib:   reg,
		logger:   zerolog.Nop(),
		validate: true,
		imports:  make(map[string]*evaluator.Thunk),
	}
	for _, opt := range opts {
		opt(rt)
	}
	if rt.runID == "" {
		rt.runID = ulid.Make().String()
	}
	rt.logger = rt.logger.With().Str("run", rt.runID).Logger()
	if rt.trace == nil {
		rt.trace = NewTraceWriter(os.Stderr, nil)
	}

	rt.globals = make(map[string]*evaluator.Thunk)
	evOpts := evaluator.Options{
		Globals:      rt.globals,
		Importer:     rt,
		Trace:        rt.trace,
		NixPath:      evaluator.ParseSearchPath(rt.nixPath),
		Budget:       rt.budget,
		TraceVerbose: rt.traceVerbose,
		BaseDir:      rt.baseDir,
	}
	if rt.policy != nil {
		evOpts.Policy = rt.policy
	}
	rt.ev = evaluator.New(context.Background(), evOpts)
	rt.builtins = rt.stdlib.Install(rt.ev, rt.globals)
	return rt
}

// RunID returns the identifier attached to this runtime's log events.
func (rt *Runtime) RunID() string {
	return rt.runID
}

// Evaluator returns the runtime's evaluator.
func (rt *Runtime) Evaluator() *evaluator.Evaluator {
	return rt.ev
}

// Builtins returns the builtins attribute set.
func (rt *Runtime) Builtins() *evaluator.AttrSet {
	return rt.builtins
}

// BuiltinNames returns the names of all built-ins in sorted order.
func (rt *Runtime) BuiltinNames() []string {
	return rt.stdlib.Names()
}

// Globals returns the names bound without the builtins. prefix.
func (rt *Runtime) Globals() []string {
	var names []string
	for _, name := range rt.stdlib.Names() {
		if fn := rt.stdlib.Get(name); fn != nil && fn.Global {
			names = append(names, name)
		}
	}
	return append(names, "builtins")
}

// Parse parses source without validating or evaluating it.
func (rt *Runtime) Parse(source, filename string) (ast.Expr, error) {
	expr, diags := parser.Parse(source, filename)
	if len(diags) > 0 {
		return nil, &DiagnosticError{Diagnostics: diags}
	}
	return expr, nil
}

// Check parses and validates source without evaluating it.
func (rt *Runtime) Check(source, filename string) []diagnostics.Diagnostic {
	expr, diags := parser.Parse(source, filename)
	if len(diags) > 0 {
		return diags
	}
	return validator.Validate(expr, rt.Globals())
}

func (rt *Runtime) load(source, filename string) (ast.Expr, error) {
	expr, err := rt.Parse(source, filename)
	if err != nil {
		return nil, err
	}
	if rt.validate {
		if diags := validator.Validate(expr, rt.Globals()); len(diags) > 0 {
			return nil, &DiagnosticError{Diagnostics: diags}
		}
	}
	return expr, nil
}

// EvalString parses, validates and evaluates source to weak head normal
// form.
func (rt *Runtime) EvalString(ctx context.Context, source, filename string) (evaluator.Value, error) {
	expr, err := rt.load(source, filename)
	if err != nil {
		return nil, err
	}
	return rt.Eval(ctx, expr, nil)
}

// Eval evaluates an already parsed expression in env, or in the root
// environment when env is nil.
func (rt *Runtime) Eval(ctx context.Context, expr ast.Expr, env *evaluator.Env) (evaluator.Value, error) {
	rt.ev.SetContext(ctx)
	start := time.Now()
	rt.logger.Debug().Str("file", expr.NodeSpan().File).Msg("evaluation started")
	v, err := rt.ev.Evaluate(expr, env)
	stats := rt.ev.Stats()
	event := rt.logger.Debug().Dur("elapsed", time.Since(start)).Uint64("steps", stats.Steps)
	if err != nil {
		event = event.Str("code", evaluator.Code(err))
	}
	event.Msg("evaluation finished")
	return v, err
}

// EvalFile evaluates the file at path. A directory means its default.nix.
// The result is shared with later imports of the same file.
func (rt *Runtime) EvalFile(ctx context.Context, path string) (evaluator.Value, error) {
	rt.ev.SetContext(ctx)
	resolved, err := resolveImportPath(path)
	if err != nil {
		return nil, err
	}
	return rt.importThunk(resolved).Force()
}

// Import implements evaluator.Importer.
func (rt *Runtime) Import(ev *evaluator.Evaluator, path string) (evaluator.Value, error) {
	resolved, err := resolveImportPath(path)
	if err != nil {
		return nil, evaluator.ImportError(path, err)
	}
	if err := ev.CheckPath(resolved); err != nil {
		return nil, err
	}
	v, err := rt.importThunk(resolved).Force()
	if err != nil {
		return nil, evaluator.ImportError(resolved, err)
	}
	return v, nil
}

// importThunk returns the cached thunk evaluating the file at the
// canonical path, creating it on first use. A flake.nix evaluates to its
// resolved outputs.
func (rt *Runtime) importThunk(path string) *evaluator.Thunk {
	if th, ok := rt.imports[path]; ok {
		rt.logger.Debug().Str("path", path).Msg("import cache hit")
		return th
	}
	th := evaluator.NewLazyThunk(func() (evaluator.Value, error) {
		rt.logger.Debug().Str("path", path).Msg("importing")
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, evaluator.Errorf(diagnostics.EIO, "cannot read '%s': %v", path, err)
		}
		expr, err := rt.load(string(data), path)
		if err != nil {
			return nil, err
		}
		v, err := rt.ev.Evaluate(expr, nil)
		if err != nil || !isFlake(path) {
			return v, err
		}
		rt.logger.Debug().Str("path", path).Msg("resolving flake")
		return rt.resolveFlake(path, v)
	})
	rt.imports[path] = th
	return th
}

// resolveImportPath canonicalizes path, following symlinks and mapping a
// directory to its default.nix.
func resolveImportPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", evaluator.Errorf(diagnostics.EIO, "cannot resolve '%s': %v", path, err)
	}
	if real, err := filepath.EvalSymlinks(abs); err == nil {
		abs = real
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", evaluator.Errorf(diagnostics.EIO, "cannot read '%s': %v", abs, err)
	}
	if info.IsDir() {
		abs = filepath.Join(abs, "default.nix")
	}
	return abs, nil
}

// DiagnosticError wraps parse and validation diagnostics as an error.
type DiagnosticError struct {
	Diagnostics []diagnostics.Diagnostic
}

func (e *DiagnosticError) Error() string {
	msgs := make([]string, len(e.Diagnostics))
	for i, d := range e.Diagnostics {
		msgs[i] = fmt.Sprintf("%s: %s", d.Code, d.Message)
	}
	return strings.Join(msgs, "; ")
}

// Diagnostic returns the first diagnostic, with the others as trace
// entries.
func (e *DiagnosticError) Diagnostic() diagnostics.Diagnostic {
	if len(e.Diagnostics) == 0 {
		return diagnostics.MakeDiag(diagnostics.EParse, "invalid expression", nil, "")
	}
	d := e.Diagnostics[0]
	for _, other := range e.Diagnostics[1:] {
		d.Trace = append(d.Trace, diagnostics.Frame{Span: other.Span, Message: other.Code + ": " + other.Message})
	}
	return d
}

// TraceWriter prints trace messages like Nix does and optionally logs
// them.
type TraceWriter struct {
	w      io.Writer
	logger *zerolog.Logger
}

// NewTraceWriter creates a trace sink writing to w. When logger is not nil
// every message is also logged at info level.
func NewTraceWriter(w io.Writer, logger *zerolog.Logger) *TraceWriter {
	return &TraceWriter{w: w, logger: logger}
}

// Trace implements evaluator.TraceSink.
func (t *TraceWriter) Trace(msg string) {
	fmt.Fprintf(t.w, "trace: %s\n", msg)
	if t.logger != nil {
		t.logger.Info().Str("text", msg).Msg("trace")
	}
}

// Warn implements evaluator.TraceSink.
func (t *TraceWriter) Warn(msg string) {
	fmt.Fprintf(t.w, "warning: %s\n", msg)
	if t.logger != nil {
		t.logger.Warn().Str("text", msg).Msg("warning")
	}
}

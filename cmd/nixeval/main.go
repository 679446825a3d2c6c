// Command nixeval evaluates Nix expressions.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/alecthomas/chroma/v2/quick"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"golang.org/x/term"

	"github.com/thomasrohde/nixeval/internal/config"
	"github.com/thomasrohde/nixeval/pkg/capabilities"
	"github.com/thomasrohde/nixeval/pkg/diagnostics"
	"github.com/thomasrohde/nixeval/pkg/evaluator"
	"github.com/thomasrohde/nixeval/pkg/formatter"
	"github.com/thomasrohde/nixeval/pkg/runtime"
)

// Exit codes.
const (
	exitOK    = 0
	exitEval  = 1
	exitUsage = 2
	exitParse = 3
	exitIO    = 4
)

const usage = `usage: nixeval <command> [options]

commands:
  eval [--strict|--lazy] [--expanded] [--json] [-e EXPR | FILE | -]
  parse [--color] [-e EXPR | FILE | -]
  check [-e EXPR | FILE | -]
  builtins
  policy
  repl
  help

shared options:
  --config FILE   read settings from FILE
  --pretty        human-readable diagnostics (--pretty=false for JSON)
  --restrict      restrict file and environment access
  -I PATH         prepend PATH to the search path

Set COMP_INSTALL=1 and run nixeval to install shell completion.
`

func main() {
	completer.Complete("nixeval")

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(exitUsage)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var code int
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "eval":
		code = cmdEval(ctx, args)
	case "parse":
		code = cmdParse(args)
	case "check":
		code = cmdCheck(args)
	case "builtins":
		code = cmdBuiltins(args)
	case "policy":
		code = cmdPolicy(args)
	case "repl":
		code = cmdRepl(ctx, args)
	case "help", "--help", "-h":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n%s", cmd, usage)
		code = exitUsage
	}
	stop()
	os.Exit(code)
}

// stringList is a repeatable string flag.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ":") }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

// sharedFlags are accepted by every subcommand.
type sharedFlags struct {
	configPath string
	pretty     bool
	restrict   bool
	includes   stringList
}

func newFlagSet(name string) (*flag.FlagSet, *sharedFlags) {
	fs := flag.NewFlagSet("nixeval "+name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	sf := &sharedFlags{}
	fs.StringVar(&sf.configPath, "config", "", "config file")
	fs.BoolVar(&sf.pretty, "pretty", true, "human-readable diagnostics")
	fs.BoolVar(&sf.restrict, "restrict", false, "restricted evaluation")
	fs.Var(&sf.includes, "I", "search path entry")
	return fs, sf
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// app holds what a subcommand needs once flags and config are resolved.
type app struct {
	cfg     *config.Config
	logger  zerolog.Logger
	printer *diagnostics.Printer
	pretty  bool
	stdout  io.Writer
	stderr  io.Writer
}

func newApp(fs *flag.FlagSet, sf *sharedFlags) (*app, error) {
	cfg, err := config.Load(sf.configPath)
	if err != nil {
		return nil, err
	}
	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	if set["pretty"] {
		cfg.Pretty = sf.pretty
	}
	if sf.restrict {
		cfg.Restrict.Enabled = true
	}
	// -I entries take precedence over NIX_PATH and the config file.
	cfg.NixPath = append(append([]string{}, sf.includes...), cfg.NixPath...)

	a := &app{
		cfg:    cfg,
		logger: cfg.NewLogger(os.Stderr, isTerminal(os.Stderr)),
		pretty: cfg.Pretty,
		stdout: os.Stdout,
		stderr: os.Stderr,
	}
	a.printer = diagnostics.NewPrinter(os.Stderr, cfg.UseColor(isTerminal(os.Stderr)), cfg.Backtrace)
	a.logger.Debug().Str("config", cfg.Path).Strs("nixPath", cfg.NixPath).Bool("restrict", cfg.Restrict.Enabled).Msg("configured")
	return a, nil
}

// policy returns the access policy for evaluating files under dir, or nil
// when evaluation is unrestricted. Restrictions come from the config file
// when it lists any, otherwise from the project or user policy file.
func (a *app) policy(dir string) (*capabilities.Policy, error) {
	r := a.cfg.Restrict
	if !r.Enabled {
		return nil, nil
	}
	var (
		p   *capabilities.Policy
		err error
	)
	if len(r.AllowedPaths)+len(r.DeniedPaths)+len(r.AllowedEnv) > 0 {
		p, err = a.cfg.Policy()
	} else {
		p, _, err = capabilities.LoadPolicy(dir)
	}
	if err != nil {
		return nil, err
	}
	p.Allow(dir)
	return p, nil
}

func (a *app) runtime(baseDir string, opts ...runtime.Option) (*runtime.Runtime, error) {
	policy, err := a.policy(baseDir)
	if err != nil {
		return nil, err
	}
	all := []runtime.Option{
		runtime.WithLogger(a.logger),
		runtime.WithNixPath(a.cfg.NixPath...),
		runtime.WithBaseDir(baseDir),
		runtime.WithBudget(evaluator.Budget{MaxDepth: a.cfg.MaxDepth}),
	}
	if policy != nil {
		all = append(all, runtime.WithPolicy(policy))
	}
	if a.cfg.LogTrace {
		all = append(all, runtime.WithTrace(runtime.NewTraceWriter(a.stderr, &a.logger)))
	}
	return runtime.New(append(all, opts...)...), nil
}

// report prints err as diagnostics and returns the matching exit code.
func (a *app) report(err error) int {
	var diags []diagnostics.Diagnostic
	var de *runtime.DiagnosticError
	if errors.As(err, &de) && !evaluator.IsCode(err, diagnostics.EImport) {
		diags = de.Diagnostics
	} else {
		diags = []diagnostics.Diagnostic{diagnostics.FromError(err)}
	}
	a.printDiagnostics(diags)
	switch {
	case de != nil && !evaluator.IsCode(err, diagnostics.EImport):
		return exitParse
	case evaluator.IsCode(err, diagnostics.EIO):
		return exitIO
	}
	return exitEval
}

func (a *app) printDiagnostics(diags []diagnostics.Diagnostic) {
	if a.pretty {
		a.printer.Print(a.stderr, diags)
		return
	}
	fmt.Fprintln(a.stderr, diagnostics.FormatDiagnostics(diags, false))
}

// input is the expression source selected on the command line.
type input struct {
	source   string
	filename string // empty for -e
	path     string // set when reading a file
	baseDir  string
}

func readInput(fs *flag.FlagSet, expr string) (*input, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	if expr != "" {
		if fs.NArg() > 0 {
			return nil, errUsage
		}
		return &input{source: expr, baseDir: cwd}, nil
	}
	if fs.NArg() != 1 {
		return nil, errUsage
	}
	file := fs.Arg(0)
	if file == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, evaluator.Errorf(diagnostics.EIO, "cannot read stdin: %v", err)
		}
		return &input{source: string(data), filename: "<stdin>", baseDir: cwd}, nil
	}
	abs, err := filepath.Abs(file)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, evaluator.Errorf(diagnostics.EIO, "cannot read file: %s", file)
	}
	return &input{source: string(data), filename: file, path: abs, baseDir: filepath.Dir(abs)}, nil
}

var errUsage = errors.New("usage")

// setup parses args and builds the app and input for the commands that
// take an expression.
func setup(name string, args []string, extra func(fs *flag.FlagSet)) (*app, *input, int) {
	fs, sf := newFlagSet(name)
	var expr string
	fs.StringVar(&expr, "e", "", "evaluate EXPR instead of a file")
	if extra != nil {
		extra(fs)
	}
	if err := fs.Parse(args); err != nil {
		return nil, nil, exitUsage
	}
	a, err := newApp(fs, sf)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return nil, nil, exitUsage
	}
	in, err := readInput(fs, expr)
	switch {
	case errors.Is(err, errUsage):
		fmt.Fprintf(os.Stderr, "usage: nixeval %s [options] [-e EXPR | FILE | -]\n", name)
		return nil, nil, exitUsage
	case err != nil:
		return nil, nil, a.report(err)
	}
	return a, in, exitOK
}

func cmdEval(ctx context.Context, args []string) int {
	var strict, lazy, expanded, asJSON bool
	a, in, code := setup("eval", args, func(fs *flag.FlagSet) {
		fs.BoolVar(&strict, "strict", false, "force the result deeply (default)")
		fs.BoolVar(&lazy, "lazy", false, "print unevaluated parts as «thunk»")
		fs.BoolVar(&expanded, "expanded", false, "one member per line")
		fs.BoolVar(&asJSON, "json", false, "print the result as JSON")
	})
	if a == nil {
		return code
	}
	if strict && lazy {
		fmt.Fprintln(os.Stderr, "nixeval eval: --strict and --lazy are mutually exclusive")
		return exitUsage
	}

	rt, err := a.runtime(in.baseDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitUsage
	}
	var v evaluator.Value
	if in.path != "" {
		v, err = rt.EvalFile(ctx, in.path)
	} else {
		v, err = rt.EvalString(ctx, in.source, in.filename)
	}
	if err != nil {
		return a.report(err)
	}

	var out string
	if asJSON {
		out, _, err = rt.Evaluator().ToJSON(v)
	} else {
		out, err = formatter.FormatValue(rt.Evaluator(), v, formatter.Options{Strict: !lazy, Expanded: expanded})
	}
	if err != nil {
		return a.report(err)
	}
	fmt.Fprintln(a.stdout, out)
	stats := rt.Evaluator().Stats()
	a.logger.Debug().Uint64("steps", stats.Steps).Int("maxDepth", stats.MaxDepth).Msg("evaluated")
	return exitOK
}

func cmdParse(args []string) int {
	var color bool
	a, in, code := setup("parse", args, func(fs *flag.FlagSet) {
		fs.BoolVar(&color, "color", false, "highlight the output")
	})
	if a == nil {
		return code
	}
	rt, err := a.runtime(in.baseDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitUsage
	}
	expr, err := rt.Parse(in.source, in.filename)
	if err != nil {
		return a.report(err)
	}
	src := formatter.FormatExpr(expr) + "\n"
	if color || a.cfg.Color == config.ColorAlways {
		if err := quick.Highlight(a.stdout, src, "nix", "terminal256", "monokai"); err == nil {
			return exitOK
		}
	}
	fmt.Fprint(a.stdout, src)
	return exitOK
}

func cmdCheck(args []string) int {
	a, in, code := setup("check", args, nil)
	if a == nil {
		return code
	}
	rt, err := a.runtime(in.baseDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitUsage
	}
	if diags := rt.Check(in.source, in.filename); len(diags) > 0 {
		a.printDiagnostics(diags)
		return exitParse
	}
	if a.pretty {
		fmt.Fprintln(a.stdout, "No errors found.")
	} else {
		fmt.Fprintln(a.stdout, "[]")
	}
	return exitOK
}

func cmdBuiltins(args []string) int {
	fs, _ := newFlagSet("builtins")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	for _, name := range runtime.New().BuiltinNames() {
		fmt.Println(name)
	}
	return exitOK
}

// cmdPolicy prints the policy file restricted evaluation would use in the
// working directory.
func cmdPolicy(args []string) int {
	fs, _ := newFlagSet("policy")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitIO
	}
	_, pf, err := capabilities.LoadPolicy(cwd)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitIO
	}
	if pf == nil {
		fmt.Println("{}")
		return exitOK
	}
	b, _ := json.MarshalIndent(pf, "", "  ")
	fmt.Println(string(b))
	return exitOK
}

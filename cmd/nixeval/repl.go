package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/adrg/xdg"
	"github.com/peterh/liner"

	"github.com/thomasrohde/nixeval/internal/config"
	"github.com/thomasrohde/nixeval/pkg/evaluator"
	"github.com/thomasrohde/nixeval/pkg/formatter"
	"github.com/thomasrohde/nixeval/pkg/runtime"
)

const (
	replPrompt  = "nix-repl> "
	historyFile = config.AppName + "/history"
	replHelp    = `  <expr>         evaluate and print an expression
  <name> = <expr> bind a name in the session
  :p <expr>      evaluate strictly and print expanded
  :t <expr>      show the type of an expression
  :q             exit
`
)

// bindingRe matches `name = expr` but not `name == expr`.
var bindingRe = regexp.MustCompile(`^\s*([A-Za-z_][A-Za-z0-9_'-]*)\s*=([^=].*)$`)

// session is a REPL scope. Each binding pushes a new frame, so earlier
// thunks never see later bindings.
type session struct {
	rt    *runtime.Runtime
	scope *evaluator.Env
	names []string
	out   io.Writer
}

func newSession(rt *runtime.Runtime, out io.Writer) *session {
	return &session{rt: rt, scope: rt.Evaluator().RootEnv(), out: out}
}

// handle processes one input line and reports whether the session ends.
func (s *session) handle(ctx context.Context, line string) (bool, error) {
	line = strings.TrimSpace(line)
	switch {
	case line == "":
		return false, nil
	case line == ":q" || line == ":quit":
		return true, nil
	case line == ":?" || line == ":help":
		fmt.Fprint(s.out, replHelp)
		return false, nil
	case strings.HasPrefix(line, ":p "):
		return false, s.print(ctx, line[3:], formatter.Options{Strict: true, Expanded: true})
	case strings.HasPrefix(line, ":t "):
		v, err := s.eval(ctx, line[3:])
		if err != nil {
			return false, err
		}
		fmt.Fprintln(s.out, evaluator.TypeName(v))
		return false, nil
	case strings.HasPrefix(line, ":"):
		return false, fmt.Errorf("unknown command %q, try :?", strings.Fields(line)[0])
	}
	if m := bindingRe.FindStringSubmatch(line); m != nil {
		expr, err := s.rt.Parse(m[2], "")
		if err != nil {
			return false, err
		}
		name := m[1]
		th := evaluator.NewThunk(expr, s.scope)
		s.scope = evaluator.NewEnv(s.scope, map[string]*evaluator.Thunk{name: th})
		s.names = append(s.names, name)
		fmt.Fprintf(s.out, "Added %s.\n", name)
		return false, nil
	}
	return false, s.print(ctx, line, formatter.Options{Strict: true})
}

func (s *session) eval(ctx context.Context, source string) (evaluator.Value, error) {
	expr, err := s.rt.Parse(source, "")
	if err != nil {
		return nil, err
	}
	return s.rt.Eval(ctx, expr, s.scope)
}

func (s *session) print(ctx context.Context, source string, opts formatter.Options) error {
	v, err := s.eval(ctx, source)
	if err != nil {
		return err
	}
	out, err := formatter.FormatValue(s.rt.Evaluator(), v, opts)
	if err != nil {
		return err
	}
	fmt.Fprintln(s.out, out)
	return nil
}

// complete offers session names, globals and builtins.<name> for the last
// word of line.
func (s *session) complete(line string) []string {
	start := strings.LastIndexAny(line, " \t([{;=") + 1
	head, word := line[:start], line[start:]
	var candidates []string
	if strings.HasPrefix(word, "builtins.") {
		for _, name := range s.rt.BuiltinNames() {
			candidates = append(candidates, "builtins."+name)
		}
	} else {
		candidates = append(append(candidates, s.names...), s.rt.Globals()...)
	}
	var out []string
	for _, c := range candidates {
		if strings.HasPrefix(c, word) {
			out = append(out, head+c)
		}
	}
	sort.Strings(out)
	return out
}

func cmdRepl(ctx context.Context, args []string) int {
	fs, sf := newFlagSet("repl")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	a, err := newApp(fs, sf)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitUsage
	}
	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitIO
	}
	// The session keeps its own scope, so validation of single lines
	// against the globals alone would reject session names.
	rt, err := a.runtime(cwd, runtime.WithoutValidation())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitUsage
	}
	s := newSession(rt, a.stdout)

	if !isTerminal(os.Stdin) {
		return replPlain(ctx, a, s, os.Stdin)
	}

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)
	ln.SetCompleter(s.complete)

	histPath, histErr := xdg.StateFile(historyFile)
	if histErr == nil {
		if f, err := os.Open(histPath); err == nil {
			_, _ = ln.ReadHistory(f)
			f.Close()
		}
	}

	fmt.Fprintln(a.stdout, "Welcome to nixeval. Type :? for help.")
	for {
		line, err := ln.Prompt(replPrompt)
		if errors.Is(err, liner.ErrPromptAborted) {
			continue
		}
		if err != nil {
			fmt.Fprintln(a.stdout)
			break
		}
		if strings.TrimSpace(line) != "" {
			ln.AppendHistory(line)
		}
		done, err := s.handle(ctx, line)
		if err != nil {
			a.report(err)
		}
		if done {
			break
		}
	}

	if histErr == nil {
		if f, err := os.Create(histPath); err == nil {
			_, _ = ln.WriteHistory(f)
			f.Close()
		}
	}
	return exitOK
}

// replPlain reads lines from a non-terminal, e.g. a pipe.
func replPlain(ctx context.Context, a *app, s *session, r io.Reader) int {
	data, err := io.ReadAll(r)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitIO
	}
	code := exitOK
	for _, line := range strings.Split(string(data), "\n") {
		done, err := s.handle(ctx, line)
		if err != nil {
			code = a.report(err)
		}
		if done {
			break
		}
	}
	return code
}

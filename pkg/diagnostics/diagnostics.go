// Package diagnostics defines Nix diagnostic types for parse, validation and evaluation errors.
package diagnostics

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/goccy/go-json"
	"github.com/muesli/termenv"

	"github.com/thomasrohde/nixeval/pkg/ast"
)

// Diagnostic code constants.
const (
	ELex               = "E_LEX"
	EParse             = "E_PARSE"
	EUndefinedVar      = "E_UNDEFINED_VAR"
	ETypeMismatch      = "E_TYPE"
	EMissingAttr       = "E_MISSING_ATTR"
	EDuplicateAttr     = "E_DUP_ATTR"
	EInfiniteRecursion = "E_INFINITE_RECURSION"
	EMissingArg        = "E_MISSING_ARG"
	EUnexpectedArg     = "E_UNEXPECTED_ARG"
	EDivisionByZero    = "E_DIV_ZERO"
	EAssert            = "E_ASSERT"
	EThrow             = "E_THROW"
	EAbort             = "E_ABORT"
	EImport            = "E_IMPORT"
	EEval              = "E_EVAL"
	ERestricted        = "E_RESTRICTED"
	EBudget            = "E_BUDGET"
	EIO                = "E_IO"
)

// Frame is one backtrace entry attached to a diagnostic.
type Frame struct {
	Span    *ast.Span `json:"span,omitempty"`
	Message string    `json:"message"`
}

// Diagnostic represents a parse, validation, or evaluation diagnostic.
type Diagnostic struct {
	Code    string    `json:"code"`
	Message string    `json:"message"`
	Span    *ast.Span `json:"span,omitempty"`
	Hint    string    `json:"hint,omitempty"`
	Trace   []Frame   `json:"trace,omitempty"`
}

// MakeDiag creates a new Diagnostic.
func MakeDiag(code, message string, span *ast.Span, hint string) Diagnostic {
	return Diagnostic{
		Code:    code,
		Message: message,
		Span:    span,
		Hint:    hint,
	}
}

// Diagnoser is implemented by errors that carry their own diagnostic.
type Diagnoser interface {
	Diagnostic() Diagnostic
}

// FromError converts an error into a diagnostic. Errors that do not carry
// one become a generic evaluation diagnostic.
func FromError(err error) Diagnostic {
	var d Diagnoser
	if errors.As(err, &d) {
		return d.Diagnostic()
	}
	return MakeDiag(EEval, err.Error(), nil, "")
}

func location(span *ast.Span) string {
	if span == nil {
		return "<unknown>"
	}
	return fmt.Sprintf("%s:%d:%d", span.File, span.StartLine, span.StartCol)
}

// FormatDiagnostic formats a single diagnostic for display without colour
// and without a backtrace.
func FormatDiagnostic(d Diagnostic, pretty bool) string {
	if !pretty {
		b, _ := json.Marshal(d)
		return string(b)
	}
	return (&Printer{out: termenv.NewOutput(io.Discard, termenv.WithProfile(termenv.Ascii))}).Format(d)
}

// FormatDiagnostics formats a slice of diagnostics for display.
func FormatDiagnostics(diags []Diagnostic, pretty bool) string {
	if !pretty {
		b, _ := json.Marshal(diags)
		return string(b)
	}
	parts := make([]string, len(diags))
	for i, d := range diags {
		parts[i] = FormatDiagnostic(d, true)
	}
	return strings.Join(parts, "\n\n")
}

// Printer renders diagnostics for a terminal, optionally coloured and with
// the evaluation backtrace.
type Printer struct {
	out       *termenv.Output
	Backtrace bool
}

// NewPrinter creates a printer writing styles suitable for w. When color is
// false all styling is stripped.
func NewPrinter(w io.Writer, color, backtrace bool) *Printer {
	var out *termenv.Output
	if color {
		out = termenv.NewOutput(w)
	} else {
		out = termenv.NewOutput(w, termenv.WithProfile(termenv.Ascii))
	}
	return &Printer{out: out, Backtrace: backtrace}
}

// Format renders d in the `error[CODE]: msg` layout.
func (p *Printer) Format(d Diagnostic) string {
	var sb strings.Builder
	sb.WriteString(p.out.String(fmt.Sprintf("error[%s]", d.Code)).Foreground(p.out.Color("9")).Bold().String())
	sb.WriteString(": ")
	sb.WriteString(p.out.String(d.Message).Bold().String())
	sb.WriteString("\n  ")
	sb.WriteString(p.out.String("-->").Foreground(p.out.Color("12")).String())
	sb.WriteString(" " + location(d.Span))
	if p.Backtrace {
		for _, f := range d.Trace {
			sb.WriteString("\n  ")
			sb.WriteString(p.out.String("…").Faint().String())
			sb.WriteString(fmt.Sprintf(" while %s at %s", f.Message, location(f.Span)))
		}
	} else if len(d.Trace) > 0 {
		sb.WriteString("\n  ")
		sb.WriteString(p.out.String("(use NIX_BACKTRACE=1 to show the evaluation trace)").Faint().String())
	}
	if d.Hint != "" {
		sb.WriteString("\n  ")
		sb.WriteString(p.out.String("hint:").Foreground(p.out.Color("14")).String())
		sb.WriteString(" " + d.Hint)
	}
	return sb.String()
}

// Print writes all diagnostics separated by blank lines.
func (p *Printer) Print(w io.Writer, diags []Diagnostic) {
	for i, d := range diags {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintln(w, p.Format(d))
	}
}

package evaluator

import (
	"errors"
	"fmt"

	"github.com/thomasrohde/nixeval/pkg/ast"
	"github.com/thomasrohde/nixeval/pkg/diagnostics"
)

// Frame is one entry of an evaluation backtrace.
type Frame struct {
	Span        *ast.Span
	Description string
}

// EvalError represents an evaluation failure. Code is one of the
// diagnostics codes and identifies the error kind.
type EvalError struct {
	Code     string
	Message  string
	Expected string // TypeMismatch only
	Actual   string // TypeMismatch only
	Span     *ast.Span
	Frames   []Frame
	Err      error // wrapped cause, ImportError only
}

func (e *EvalError) Error() string {
	if e.Code == diagnostics.EImport && e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *EvalError) Unwrap() error {
	return e.Err
}

// Diagnostic converts the error for display.
func (e *EvalError) Diagnostic() diagnostics.Diagnostic {
	d := diagnostics.MakeDiag(e.Code, e.Message, e.Span, "")
	for _, f := range e.Frames {
		d.Trace = append(d.Trace, diagnostics.Frame{Span: f.Span, Message: f.Description})
	}
	if e.Code == diagnostics.EImport && e.Err != nil {
		inner := diagnostics.FromError(e.Err)
		d.Trace = append(d.Trace, diagnostics.Frame{Span: inner.Span, Message: "evaluating: " + inner.Message})
		d.Trace = append(d.Trace, inner.Trace...)
	}
	return d
}

// Code returns the kind of an evaluation error, or "" if err is not one.
func Code(err error) string {
	var ee *EvalError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return ""
}

// IsCode reports whether err is an evaluation error of the given kind.
func IsCode(err error, code string) bool {
	return Code(err) == code
}

func spanPtr(n ast.Node) *ast.Span {
	if n == nil {
		return nil
	}
	s := n.NodeSpan()
	return &s
}

func newError(code string, span *ast.Span, format string, args ...any) *EvalError {
	return &EvalError{Code: code, Message: fmt.Sprintf(format, args...), Span: span}
}

// Errorf creates an evaluation error of the given kind without position.
func Errorf(code string, format string, args ...any) error {
	return newError(code, nil, format, args...)
}

// ImportError reports that importing path failed because of cause.
func ImportError(path string, cause error) error {
	return &EvalError{
		Code:    diagnostics.EImport,
		Message: fmt.Sprintf("error while importing '%s'", path),
		Err:     cause,
	}
}

// TypeError reports that a value of the wrong type was supplied.
func TypeError(expected string, actual Value, span *ast.Span) error {
	return &EvalError{
		Code:     diagnostics.ETypeMismatch,
		Message:  fmt.Sprintf("value is %s while %s was expected", describeType(actual), expected),
		Expected: expected,
		Actual:   TypeName(actual),
		Span:     span,
	}
}

// withSpan fills in the position of an error raised without one.
func withSpan(err error, span *ast.Span) error {
	var ee *EvalError
	if errors.As(err, &ee) && ee.Span == nil && ee.Code != diagnostics.EImport {
		ee.Span = span
	}
	return err
}

// maxFrames bounds the backtrace kept on a single error.
const maxFrames = 64

// addFrame appends a backtrace frame to an evaluation error.
func addFrame(err error, span *ast.Span, format string, args ...any) error {
	var ee *EvalError
	if errors.As(err, &ee) && len(ee.Frames) < maxFrames {
		ee.Frames = append(ee.Frames, Frame{Span: span, Description: fmt.Sprintf(format, args...)})
	}
	return err
}

// cloneError detaches a cached error from later frame and span updates.
func cloneError(err error) error {
	ee, ok := err.(*EvalError)
	if !ok {
		return err
	}
	c := *ee
	c.Frames = append([]Frame(nil), ee.Frames...)
	return &c
}

// Recoverable reports whether tryEval may catch err.
func Recoverable(err error) bool {
	var ee *EvalError
	if !errors.As(err, &ee) {
		return false
	}
	switch ee.Code {
	case diagnostics.EThrow, diagnostics.EAssert:
		return true
	case diagnostics.EImport:
		return ee.Err != nil && Recoverable(ee.Err)
	}
	return false
}

// AddContext appends a backtrace frame carrying msg to an evaluation
// error.
func AddContext(err error, msg string) error {
	return addFrame(err, nil, "%s", msg)
}

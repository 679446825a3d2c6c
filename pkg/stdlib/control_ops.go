package stdlib

import (
	"github.com/thomasrohde/nixeval/pkg/diagnostics"
	"github.com/thomasrohde/nixeval/pkg/evaluator"
	"github.com/thomasrohde/nixeval/pkg/formatter"
)

func forceMessage(ev *evaluator.Evaluator, th *evaluator.Thunk) (string, error) {
	v, err := th.Force()
	if err != nil {
		return "", err
	}
	s, err := ev.CoerceToString(v, false)
	if err != nil {
		return "", err
	}
	return s.Value, nil
}

// abort message → never returns
func stdlibAbort(ev *evaluator.Evaluator, args []*evaluator.Thunk) (evaluator.Value, error) {
	msg, err := forceMessage(ev, args[0])
	if err != nil {
		return nil, err
	}
	return nil, evaluator.Errorf(diagnostics.EAbort, "evaluation aborted with the following error message: '%s'", msg)
}

// throw message → never returns; catchable by tryEval
func stdlibThrow(ev *evaluator.Evaluator, args []*evaluator.Thunk) (evaluator.Value, error) {
	msg, err := forceMessage(ev, args[0])
	if err != nil {
		return nil, err
	}
	return nil, evaluator.Errorf(diagnostics.EThrow, "%s", msg)
}

// addErrorContext message e → e, with message added to any error's backtrace
func stdlibAddErrorContext(ev *evaluator.Evaluator, args []*evaluator.Thunk) (evaluator.Value, error) {
	v, err := args[1].Force()
	if err == nil {
		return v, nil
	}
	if msg, merr := forceMessage(ev, args[0]); merr == nil {
		return nil, evaluator.AddContext(err, msg)
	}
	return nil, err
}

// seq a b → b, after forcing a to weak head normal form
func stdlibSeq(ev *evaluator.Evaluator, args []*evaluator.Thunk) (evaluator.Value, error) {
	if _, err := args[0].Force(); err != nil {
		return nil, err
	}
	return args[1].Force()
}

// deepSeq a b → b, after forcing a completely
func stdlibDeepSeq(ev *evaluator.Evaluator, args []*evaluator.Thunk) (evaluator.Value, error) {
	v, err := args[0].Force()
	if err != nil {
		return nil, err
	}
	if err := ev.DeepForce(v); err != nil {
		return nil, err
	}
	return args[1].Force()
}

func traceMessage(ev *evaluator.Evaluator, th *evaluator.Thunk) (string, error) {
	v, err := th.Force()
	if err != nil {
		return "", err
	}
	if s, ok := v.(evaluator.String); ok {
		return s.Value, nil
	}
	return formatter.FormatValue(ev, v, formatter.Options{})
}

// trace message e → e, printing message through the trace sink
func stdlibTrace(ev *evaluator.Evaluator, args []*evaluator.Thunk) (evaluator.Value, error) {
	msg, err := traceMessage(ev, args[0])
	if err != nil {
		return nil, err
	}
	ev.Trace(msg)
	return args[1].Force()
}

// traceVerbose message e → e; prints only when verbose tracing is enabled
func stdlibTraceVerbose(ev *evaluator.Evaluator, args []*evaluator.Thunk) (evaluator.Value, error) {
	if !ev.TraceVerbose() {
		return args[1].Force()
	}
	return stdlibTrace(ev, args)
}

// warn message e → e, emitting message as a warning
func stdlibWarn(ev *evaluator.Evaluator, args []*evaluator.Thunk) (evaluator.Value, error) {
	msg, err := evaluator.ForceString(args[0])
	if err != nil {
		return nil, err
	}
	ev.Warn(msg.Value)
	return args[1].Force()
}

// tryEval e → { success: bool; value: e or false }
func stdlibTryEval(ev *evaluator.Evaluator, args []*evaluator.Thunk) (evaluator.Value, error) {
	set := evaluator.NewAttrSet()
	v, err := args[0].Force()
	if err != nil {
		if !evaluator.Recoverable(err) {
			return nil, err
		}
		set.SetValue("success", evaluator.NewBool(false))
		set.SetValue("value", evaluator.NewBool(false))
		return set, nil
	}
	set.SetValue("success", evaluator.NewBool(true))
	set.SetValue("value", v)
	return set, nil
}

// import path → value of the Nix file at path
func stdlibImport(ev *evaluator.Evaluator, args []*evaluator.Thunk) (evaluator.Value, error) {
	p, err := ev.ForcePath(args[0])
	if err != nil {
		return nil, err
	}
	return ev.Import(p)
}

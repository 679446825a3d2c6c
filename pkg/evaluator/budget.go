package evaluator

import (
	"github.com/thomasrohde/nixeval/pkg/diagnostics"
)

// DefaultMaxDepth is the nesting limit used when Budget.MaxDepth is zero.
// It keeps runaway recursion from exhausting the goroutine stack.
const DefaultMaxDepth = 20000

// cancelCheckInterval is how many evaluation steps pass between checks of
// the evaluator's context.
const cancelCheckInterval = 1024

// Budget holds the resource limits for an evaluation.
type Budget struct {
	MaxDepth int
	MaxSteps uint64 // 0 means unlimited
}

// BudgetTracker tracks resource consumption during evaluation.
type BudgetTracker struct {
	Depth    int
	MaxDepth int
	Steps    uint64
}

func (ev *Evaluator) enter() error {
	t := &ev.tracker
	limit := ev.budget.MaxDepth
	if limit == 0 {
		limit = DefaultMaxDepth
	}
	if t.Depth >= limit {
		return Errorf(diagnostics.EBudget, "stack overflow: evaluation nested more than %d levels (possible infinite recursion)", limit)
	}
	t.Steps++
	if ev.budget.MaxSteps > 0 && t.Steps > ev.budget.MaxSteps {
		return Errorf(diagnostics.EBudget, "evaluation step budget exceeded (max %d)", ev.budget.MaxSteps)
	}
	if t.Steps%cancelCheckInterval == 0 {
		if err := ev.ctx.Err(); err != nil {
			return Errorf(diagnostics.EBudget, "evaluation interrupted: %v", err)
		}
	}
	t.Depth++
	if t.Depth > t.MaxDepth {
		t.MaxDepth = t.Depth
	}
	return nil
}

func (ev *Evaluator) leave() {
	ev.tracker.Depth--
}

// Stats returns the resource consumption so far.
func (ev *Evaluator) Stats() BudgetTracker {
	return ev.tracker
}

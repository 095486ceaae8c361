// Package campaign drives the fuzzing round loop: query marginals, select
// the top targets, delegate them to the target executor, fold the outcomes
// back into evidence, and periodically relax stale negative evidence.
package campaign

import (
	"context"
	"time"

	"bayzzer/internal/facts"
)

// OutcomeKind classifies one fuzzing attempt against one target.
type OutcomeKind int

const (
	// OutcomeNotReached: no input reached the target within budget.
	OutcomeNotReached OutcomeKind = iota
	// OutcomeReachedSafe: the target was reached but did not misbehave.
	OutcomeReachedSafe
	// OutcomeCrashed: an input triggered the vulnerability.
	OutcomeCrashed
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeCrashed:
		return "crashed"
	case OutcomeReachedSafe:
		return "reached_safe"
	default:
		return "not_reached"
	}
}

// Outcome is the executor's verdict for one target.
type Outcome struct {
	Kind   OutcomeKind
	Input  []byte // triggering input when Kind == OutcomeCrashed
	Detail string // executor diagnostics, reporting only
}

// Target is one selected alarm handed to the executor.
type Target struct {
	AlarmID     string
	Location    facts.SourceLocation
	Budget      time.Duration
	Probability float64
}

// TargetExecutor is the out-of-scope collaborator that compiles,
// instruments, and fuzzes one target within its budget. An error return is
// never fatal to the campaign; the orchestrator maps it to NotReached.
type TargetExecutor interface {
	Execute(ctx context.Context, t Target) (Outcome, error)
}

package campaign

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"bayzzer/internal/bayes"
	"bayzzer/internal/facts"
)

// Bug is one confirmed vulnerability.
type Bug struct {
	ID       string
	AlarmID  string
	Location facts.SourceLocation
	Round    int
	FoundAt  time.Time
	Input    []byte
}

// Feedback owns the evidence map and the per-alarm outcome state machine.
// Crashed confirms an alarm forever; NotReached sets negative evidence that
// reconstruction later relaxes; ReachedSafe is strictly neutral, since a
// safe execution does not prove the alarm predicate false.
type Feedback struct {
	evidence  bayes.Evidence
	confirmed map[string]Bug
	period    int
	log       *zap.Logger
}

// NewFeedback creates a controller with empty evidence. period is the round
// interval N at which negative evidence is cleared.
func NewFeedback(period int, log *zap.Logger) *Feedback {
	if log == nil {
		log = zap.NewNop()
	}
	return &Feedback{
		evidence:  bayes.NewEvidence(),
		confirmed: make(map[string]Bug),
		period:    period,
		log:       log,
	}
}

// Evidence exposes the live evidence map for inference queries. The caller
// must not mutate it; all writes go through Apply and Reconstruct.
func (f *Feedback) Evidence() bayes.Evidence { return f.evidence }

// Confirmed reports whether an alarm has a confirmed bug.
func (f *Feedback) Confirmed(alarmID string) bool {
	_, ok := f.confirmed[alarmID]
	return ok
}

// Apply folds one outcome into evidence. It returns the new bug when the
// outcome confirms a previously unconfirmed alarm.
func (f *Feedback) Apply(round int, t Target, o Outcome) *Bug {
	switch o.Kind {
	case OutcomeCrashed:
		if f.Confirmed(t.AlarmID) {
			return nil
		}
		f.evidence.Set(t.AlarmID, true)
		bug := Bug{
			ID:       uuid.NewString(),
			AlarmID:  t.AlarmID,
			Location: t.Location,
			Round:    round,
			FoundAt:  time.Now(),
			Input:    append([]byte(nil), o.Input...),
		}
		f.confirmed[t.AlarmID] = bug
		f.log.Info("bug confirmed",
			zap.String("alarm", t.AlarmID),
			zap.String("location", t.Location.String()),
			zap.Int("round", round))
		return &bug

	case OutcomeNotReached:
		// Confirmation is irreversible; never downgrade to negative.
		if f.Confirmed(t.AlarmID) {
			return nil
		}
		f.evidence.Set(t.AlarmID, false)
		f.log.Debug("negative evidence set", zap.String("alarm", t.AlarmID))

	case OutcomeReachedSafe:
		// Neutral.
	}
	return nil
}

// Reconstruct clears all negative evidence when the round counter is a
// multiple of the period, returning how many entries were cleared. Failure
// to reach a target within a bounded budget is not proof of unreachability.
func (f *Feedback) Reconstruct(round int) int {
	if f.period <= 0 || round%f.period != 0 {
		return 0
	}
	n := f.evidence.ClearNegative()
	if n > 0 {
		f.log.Info("reconstruction cleared negative evidence",
			zap.Int("round", round), zap.Int("cleared", n))
	}
	return n
}

// Bugs returns all confirmed bugs ordered by discovery round, then alarm
// identity.
func (f *Feedback) Bugs() []Bug {
	out := make([]Bug, 0, len(f.confirmed))
	for _, b := range f.confirmed {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Round != out[j].Round {
			return out[i].Round < out[j].Round
		}
		return out[i].AlarmID < out[j].AlarmID
	})
	return out
}

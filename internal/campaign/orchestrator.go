package campaign

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"bayzzer/internal/bayes"
	"bayzzer/internal/report"
	"bayzzer/internal/telemetry"
)

// Phase is the orchestrator lifecycle state.
type Phase int

const (
	PhaseInitializing Phase = iota
	PhaseRunning
	PhaseCompleted
	PhaseAborted
)

func (p Phase) String() string {
	switch p {
	case PhaseInitializing:
		return "initializing"
	case PhaseRunning:
		return "running"
	case PhaseCompleted:
		return "completed"
	case PhaseAborted:
		return "aborted"
	}
	return "unknown"
}

// minTargetBudget is the floor below which a per-target budget is not worth
// dispatching; the remaining campaign time is spent instead.
const minTargetBudget = 100 * time.Millisecond

// Options wires an orchestrator.
type Options struct {
	Model     *bayes.Model
	Inference *bayes.Engine
	Executor  TargetExecutor
	Feedback  *Feedback

	TotalBudget  time.Duration // overall campaign budget
	TargetBudget time.Duration // per-target budget (beta)
	Alpha        float64       // fraction of ranked targets per round
	Workers      int           // concurrent executions per round

	Report  *report.Store      // optional result sink
	Metrics *telemetry.Metrics // optional instrument set
	Log     *zap.Logger
}

// RoundSnapshot is one entry of the campaign history.
type RoundSnapshot struct {
	Round   int
	Elapsed time.Duration
	Targets int
	Bugs    int // cumulative
}

// Summary is the final campaign report.
type Summary struct {
	CampaignID string
	Phase      Phase
	Rounds     int
	Elapsed    time.Duration
	Bugs       []Bug
	History    []RoundSnapshot
}

// Orchestrator runs the campaign round loop. Evidence is mutated only
// between rounds, never concurrently with an inference query.
type Orchestrator struct {
	opts Options

	mu         sync.RWMutex
	phase      Phase
	campaignID string
}

// New validates the wiring and returns an orchestrator in the Initializing
// phase.
func New(opts Options) (*Orchestrator, error) {
	if opts.Model == nil || opts.Inference == nil {
		return nil, fmt.Errorf("campaign: model and inference engine are required")
	}
	if opts.Executor == nil {
		return nil, fmt.Errorf("campaign: target executor is required")
	}
	if opts.Feedback == nil {
		return nil, fmt.Errorf("campaign: feedback controller is required")
	}
	if opts.TotalBudget <= 0 || opts.TargetBudget <= 0 {
		return nil, fmt.Errorf("campaign: budgets must be positive")
	}
	if opts.Alpha <= 0 || opts.Alpha > 1 {
		return nil, fmt.Errorf("campaign: alpha %v outside (0,1]", opts.Alpha)
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	return &Orchestrator{
		opts:       opts,
		phase:      PhaseInitializing,
		campaignID: uuid.NewString(),
	}, nil
}

// Phase returns the current lifecycle phase.
func (o *Orchestrator) Phase() Phase {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.phase
}

func (o *Orchestrator) setPhase(p Phase) {
	o.mu.Lock()
	o.phase = p
	o.mu.Unlock()
}

// Run executes rounds until the budget is exhausted, every alarm is
// confirmed, or a fatal pipeline error aborts the campaign. The returned
// summary is non-nil whenever the campaign terminated normally, even with
// zero bugs.
func (o *Orchestrator) Run(ctx context.Context) (*Summary, error) {
	log := o.opts.Log
	o.setPhase(PhaseRunning)

	start := time.Now()
	ctx, cancel := context.WithDeadline(ctx, start.Add(o.opts.TotalBudget))
	defer cancel()

	if o.opts.Report != nil {
		if err := o.opts.Report.BeginCampaign(o.campaignID, start); err != nil {
			log.Warn("report store rejected campaign start", zap.Error(err))
		}
	}

	var history []RoundSnapshot
	round := 0

	for {
		if ctx.Err() != nil || time.Since(start) >= o.opts.TotalBudget {
			break
		}
		round++

		pending := o.pendingAlarms()
		if len(pending) == 0 {
			log.Info("all alarms confirmed, stopping early", zap.Int("round", round))
			round--
			break
		}

		selected, err := o.selectTargets(pending, time.Until(start.Add(o.opts.TotalBudget)))
		if err != nil {
			o.setPhase(PhaseAborted)
			return nil, fmt.Errorf("campaign aborted in round %d: %w", round, err)
		}
		log.Info("round targets selected",
			zap.Int("round", round),
			zap.Int("pending", len(pending)),
			zap.Int("selected", len(selected)))

		outcomes := o.delegate(ctx, selected)

		newBugs := 0
		for i, t := range selected {
			if outcomes[i] == nil {
				// Cancelled mid-flight by campaign expiry: no evidence update.
				continue
			}
			if bug := o.opts.Feedback.Apply(round, t, *outcomes[i]); bug != nil {
				newBugs++
				if o.opts.Metrics != nil {
					o.opts.Metrics.BugsFound.Inc()
				}
				if o.opts.Report != nil {
					if err := o.opts.Report.SaveBug(o.campaignID, bug.ID, bug.AlarmID,
						bug.Location.File, bug.Location.Line, bug.Round, bug.FoundAt, bug.Input); err != nil {
						log.Warn("failed to persist bug", zap.Error(err))
					}
				}
			}
		}

		cleared := o.opts.Feedback.Reconstruct(round)
		if cleared > 0 && o.opts.Metrics != nil {
			o.opts.Metrics.EvidenceCleared.Add(float64(cleared))
		}

		snap := RoundSnapshot{
			Round:   round,
			Elapsed: time.Since(start),
			Targets: len(selected),
			Bugs:    len(o.opts.Feedback.Bugs()),
		}
		history = append(history, snap)
		if o.opts.Metrics != nil {
			o.opts.Metrics.RoundsTotal.Inc()
		}
		if o.opts.Report != nil {
			if err := o.opts.Report.SaveRound(o.campaignID, snap.Round, snap.Elapsed, snap.Targets, snap.Bugs); err != nil {
				log.Warn("failed to persist round", zap.Error(err))
			}
		}
		log.Info("round complete",
			zap.Int("round", round),
			zap.Int("new_bugs", newBugs),
			zap.Int("total_bugs", snap.Bugs))
	}

	o.setPhase(PhaseCompleted)
	summary := &Summary{
		CampaignID: o.campaignID,
		Phase:      PhaseCompleted,
		Rounds:     round,
		Elapsed:    time.Since(start),
		Bugs:       o.opts.Feedback.Bugs(),
		History:    history,
	}
	if o.opts.Report != nil {
		if err := o.opts.Report.FinishCampaign(o.campaignID, time.Now(), summary.Rounds, len(summary.Bugs)); err != nil {
			log.Warn("failed to persist summary", zap.Error(err))
		}
	}
	log.Info("campaign completed",
		zap.Int("rounds", summary.Rounds),
		zap.Int("bugs", len(summary.Bugs)),
		zap.Duration("elapsed", summary.Elapsed))
	return summary, nil
}

// pendingAlarms returns the unconfirmed alarm identities, sorted.
func (o *Orchestrator) pendingAlarms() []string {
	var out []string
	for _, id := range o.opts.Model.Alarms() {
		if !o.opts.Feedback.Confirmed(id) {
			out = append(out, id)
		}
	}
	return out
}

// selectTargets queries marginals for the pending alarms and picks the top
// alpha fraction, ties broken by ascending identity. The per-target budget
// is clamped so one round cannot overrun the remaining campaign time.
func (o *Orchestrator) selectTargets(pending []string, remaining time.Duration) ([]Target, error) {
	qStart := time.Now()
	probs, err := o.opts.Inference.Marginals(pending, o.opts.Feedback.Evidence())
	if err != nil {
		return nil, err
	}
	if o.opts.Metrics != nil {
		o.opts.Metrics.InferenceSeconds.Observe(time.Since(qStart).Seconds())
	}

	ranked := append([]string(nil), pending...)
	sort.Slice(ranked, func(i, j int) bool {
		if probs[ranked[i]] != probs[ranked[j]] {
			return probs[ranked[i]] > probs[ranked[j]]
		}
		return ranked[i] < ranked[j]
	})

	n := int(float64(len(ranked)) * o.opts.Alpha)
	if n < 1 {
		n = 1
	}
	ranked = ranked[:n]

	budget := o.opts.TargetBudget
	if per := remaining / time.Duration(n); per < budget {
		budget = per
	}
	if budget < minTargetBudget {
		budget = remaining
	}

	targets := make([]Target, n)
	for i, id := range ranked {
		loc, _ := o.opts.Model.Location(id)
		targets[i] = Target{
			AlarmID:     id,
			Location:    loc,
			Budget:      budget,
			Probability: probs[id],
		}
	}
	return targets, nil
}

// delegate runs the selected targets through the executor on a bounded
// worker pool and waits for all of them: a join barrier, not a race. A nil
// slot means the execution was cancelled by campaign expiry and must not
// produce evidence. Executor-internal failures map to NotReached.
func (o *Orchestrator) delegate(ctx context.Context, targets []Target) []*Outcome {
	outcomes := make([]*Outcome, len(targets))

	var eg errgroup.Group
	eg.SetLimit(o.opts.Workers)
	for i, t := range targets {
		eg.Go(func() error {
			tctx, cancel := context.WithTimeout(ctx, t.Budget)
			defer cancel()

			if o.opts.Metrics != nil {
				o.opts.Metrics.TargetsFuzzed.Inc()
			}
			out, err := o.opts.Executor.Execute(tctx, t)
			if err != nil {
				if ctx.Err() != nil {
					// Campaign budget expired mid-flight.
					return nil
				}
				o.opts.Log.Debug("executor failure treated as not reached",
					zap.String("alarm", t.AlarmID), zap.Error(err))
				out = Outcome{Kind: OutcomeNotReached, Detail: err.Error()}
			}
			outcomes[i] = &out
			return nil
		})
	}
	_ = eg.Wait()
	return outcomes
}

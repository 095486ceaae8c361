package derivation

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"bayzzer/internal/facts"
)

// ErrNonConvergence means forward chaining did not reach a fixpoint within
// the configured pass limit. The rule set is fixed and the fact universe is
// finite, so this indicates a malformed rule set, not a normal outcome.
var ErrNonConvergence = errors.New("derivation: fixpoint not reached within pass limit")

// Engine runs forward chaining to the least fixpoint.
type Engine struct {
	maxPasses int
	log       *zap.Logger
}

// NewEngine creates a derivation engine. maxPasses bounds the number of full
// rule-application passes.
func NewEngine(maxPasses int, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{maxPasses: maxPasses, log: log}
}

// Run expands the extraction's facts (plus any already-known rule instances)
// into the full derivation graph. The result depends only on the input fact
// set, never on processing order.
func (e *Engine) Run(ex facts.Extraction, known []facts.Instance) (*Graph, error) {
	g := NewGraph()
	for _, f := range ex.Facts {
		g.AddFact(f)
	}

	for _, inst := range known {
		if err := validateInstance(g, inst); err != nil {
			return nil, err
		}
		g.AddFact(mustFactFromID(inst.Conclusion))
		g.AddInstance(inst)
	}

	passes := 0
	for {
		if passes >= e.maxPasses {
			return nil, fmt.Errorf("%w: %d passes, %d facts, %d instances",
				ErrNonConvergence, passes, g.Store().Len(), len(g.instances))
		}
		passes++

		changed := false
		for _, rule := range facts.AllRules {
			for _, inst := range facts.Ground(rule, g.Store()) {
				concl, err := conclusionFact(inst)
				if err != nil {
					return nil, err
				}
				if g.AddFact(concl) {
					changed = true
				}
				if g.AddInstance(inst) {
					changed = true
				}
			}
		}
		if !changed {
			break
		}
	}

	e.log.Info("derivation fixpoint reached",
		zap.Int("passes", passes),
		zap.Int("facts", g.Store().Len()),
		zap.Int("instances", len(g.instances)),
		zap.Int("alarms", len(g.Alarms())))
	return g, nil
}

// validateInstance checks that an externally supplied rule instance only
// references facts present in the graph.
func validateInstance(g *Graph, inst facts.Instance) error {
	if len(inst.Premises) == 0 {
		return fmt.Errorf("derivation: instance %s has no premises", inst.ID())
	}
	for _, p := range inst.Premises {
		if !g.Store().Has(p) {
			return fmt.Errorf("derivation: instance %s references unknown premise %s", inst.ID(), p)
		}
	}
	return nil
}

// conclusionFact reconstructs the conclusion fact of a grounding. Grounding
// always yields Taint or Alarm conclusions, so the identity is unambiguous.
func conclusionFact(inst facts.Instance) (facts.Fact, error) {
	f, ok := parseFactID(inst.Conclusion)
	if !ok {
		return facts.Fact{}, fmt.Errorf("derivation: instance %s has malformed conclusion %q", inst.ID(), inst.Conclusion)
	}
	return f, nil
}

func mustFactFromID(id string) facts.Fact {
	f, _ := parseFactID(id)
	return f
}

// parseFactID reverses facts.Fact.ID for the closed predicate set.
func parseFactID(id string) (facts.Fact, bool) {
	open := -1
	for i := 0; i < len(id); i++ {
		if id[i] == '(' {
			open = i
			break
		}
	}
	if open < 0 || id[len(id)-1] != ')' {
		return facts.Fact{}, false
	}
	pred := facts.Predicate(id[:open])
	switch pred {
	case facts.PredInput, facts.PredFlow, facts.PredMemory, facts.PredTaint, facts.PredAlarm:
	default:
		return facts.Fact{}, false
	}
	inner := id[open+1 : len(id)-1]
	var args []string
	for len(inner) > 0 {
		cut := len(inner)
		for i := 0; i+1 < len(inner); i++ {
			if inner[i] == ',' && inner[i+1] == ' ' {
				cut = i
				break
			}
		}
		args = append(args, inner[:cut])
		if cut == len(inner) {
			break
		}
		inner = inner[cut+2:]
	}
	return facts.Fact{Predicate: pred, Args: args}, true
}

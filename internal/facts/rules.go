package facts

import (
	"fmt"
	"strings"
)

// RuleID names one of the fixed inference rules. The rule set is closed by
// design; there is no plugin mechanism.
type RuleID string

const (
	RuleSource      RuleID = "R1" // Taint(v)   :- Input(v)
	RulePropagation RuleID = "R2" // Taint(dst) :- Taint(src), Flow(src, dst)
	RuleSink        RuleID = "R3" // Alarm(loc) :- Taint(v), Memory(v, loc)
)

// AllRules lists the rules in their fixed application order.
var AllRules = []RuleID{RuleSource, RulePropagation, RuleSink}

// Instance is a grounding of a rule against concrete facts: an ordered list
// of premise identities and a single conclusion identity.
type Instance struct {
	Rule       RuleID
	Premises   []string
	Conclusion string
}

// ID returns the canonical identity of the rule instance.
func (i Instance) ID() string {
	return fmt.Sprintf("%s[%s]=>%s", i.Rule, strings.Join(i.Premises, " & "), i.Conclusion)
}

func (i Instance) String() string { return i.ID() }

// Ground enumerates every one-step grounding of rule r against the current
// store contents, including groundings whose conclusion is already known.
// Iteration is over identity-sorted facts, so the result order is stable.
func Ground(r RuleID, s *Store) []Instance {
	switch r {
	case RuleSource:
		return groundSource(s)
	case RulePropagation:
		return groundPropagation(s)
	case RuleSink:
		return groundSink(s)
	default:
		return nil
	}
}

// groundSource: Taint(v) :- Input(v).
func groundSource(s *Store) []Instance {
	var out []Instance
	for _, in := range s.ByPredicate(PredInput) {
		out = append(out, Instance{
			Rule:       RuleSource,
			Premises:   []string{in.ID()},
			Conclusion: Taint(in.Args[0]).ID(),
		})
	}
	return out
}

// groundPropagation: Taint(dst) :- Taint(src), Flow(src, dst).
func groundPropagation(s *Store) []Instance {
	flows := s.ByPredicate(PredFlow)
	bySrc := make(map[string][]Fact)
	for _, fl := range flows {
		bySrc[fl.Args[0]] = append(bySrc[fl.Args[0]], fl)
	}
	var out []Instance
	for _, t := range s.ByPredicate(PredTaint) {
		for _, fl := range bySrc[t.Args[0]] {
			out = append(out, Instance{
				Rule:       RulePropagation,
				Premises:   []string{t.ID(), fl.ID()},
				Conclusion: Taint(fl.Args[1]).ID(),
			})
		}
	}
	return out
}

// groundSink: Alarm(loc) :- Taint(v), Memory(v, loc).
func groundSink(s *Store) []Instance {
	mems := s.ByPredicate(PredMemory)
	byVar := make(map[string][]Fact)
	for _, m := range mems {
		byVar[m.Args[0]] = append(byVar[m.Args[0]], m)
	}
	var out []Instance
	for _, t := range s.ByPredicate(PredTaint) {
		for _, m := range byVar[t.Args[0]] {
			out = append(out, Instance{
				Rule:       RuleSink,
				Premises:   []string{t.ID(), m.ID()},
				Conclusion: Alarm(m.Args[1]).ID(),
			})
		}
	}
	return out
}

package bayes

import (
	"fmt"
	"sort"

	"go.uber.org/zap"
)

// Engine answers exact marginal queries over a model via variable
// elimination. It is safe for concurrent use: the model is immutable and
// each query works on its own factor set.
type Engine struct {
	model *Model
	tol   float64
	log   *zap.Logger
}

// NewEngine creates an inference engine with the given numeric tolerance.
func NewEngine(m *Model, tol float64, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{model: m, tol: tol, log: log}
}

// Marginals computes P(target=true | evidence) for each target
// independently. Evidence is shared across the queries but each marginal is
// its own elimination run, not a joint query. A target that itself carries
// evidence short-circuits to that fixed value.
func (e *Engine) Marginals(targets []string, ev Evidence) (map[string]float64, error) {
	if err := e.checkEvidence(ev); err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(targets))
	for _, t := range targets {
		p, err := e.marginal(t, ev)
		if err != nil {
			return nil, err
		}
		out[t] = p
	}
	return out, nil
}

// Marginal computes a single P(target=true | evidence).
func (e *Engine) Marginal(target string, ev Evidence) (float64, error) {
	if err := e.checkEvidence(ev); err != nil {
		return 0, err
	}
	return e.marginal(target, ev)
}

func (e *Engine) checkEvidence(ev Evidence) error {
	for id := range ev {
		if _, ok := e.model.Node(id); !ok {
			return fmt.Errorf("%w: evidence key %s", ErrUnknownNode, id)
		}
		if !e.model.IsAlarm(id) {
			return fmt.Errorf("%w: %s", ErrEvidenceTarget, id)
		}
	}
	return nil
}

func (e *Engine) marginal(target string, ev Evidence) (float64, error) {
	if _, ok := e.model.Node(target); !ok {
		return 0, fmt.Errorf("%w: query target %s", ErrUnknownNode, target)
	}
	if v, ok := ev.Value(target); ok {
		if v {
			return 1.0, nil
		}
		return 0.0, nil
	}

	// Barren nodes integrate to one, so only the ancestral closure of the
	// query and the evidence contributes to the marginal. A target
	// disconnected from all evidence collapses to its prior here.
	relevant := e.ancestralClosure(target, ev)

	fs := make([]*factor, 0, len(relevant))
	order := make([]string, 0, len(relevant))
	for id := range relevant {
		order = append(order, id)
	}
	sort.Strings(order)
	for _, id := range order {
		n, _ := e.model.Node(id)
		f := e.model.cpt(n)
		for evID, evVal := range ev {
			if f.varIndex(evID) >= 0 {
				f = f.reduce(evID, boolToState(evVal))
			}
		}
		fs = append(fs, f)
	}

	for _, v := range eliminationOrder(relevant, target, ev, fs) {
		fs = eliminate(fs, v)
	}

	result := scalarFactor(1.0)
	for _, f := range fs {
		result = multiply(result, f)
	}
	if len(result.vars) != 1 || result.vars[0] != target {
		return 0, fmt.Errorf("%w: elimination for %s left scope %v", ErrMalformedModel, target, result.vars)
	}

	z := result.values[0] + result.values[1]
	if z <= 0 {
		return 0, fmt.Errorf("%w: zero normalization constant for %s under evidence", ErrProbabilityRange, target)
	}
	p := result.values[1] / z
	if p < -e.tol || p > 1+e.tol {
		return 0, fmt.Errorf("%w: P(%s)=%v (tolerance %v)", ErrProbabilityRange, target, p, e.tol)
	}
	return clamp01(p), nil
}

// ancestralClosure collects the target, every evidenced node, and all their
// ancestors.
func (e *Engine) ancestralClosure(target string, ev Evidence) map[string]struct{} {
	seen := make(map[string]struct{})
	stack := []string{target}
	for id := range ev {
		stack = append(stack, id)
	}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		if n, ok := e.model.Node(id); ok {
			stack = append(stack, n.Parents...)
		}
	}
	return seen
}

// eliminationOrder greedily picks the next variable with the fewest
// neighbors in the current factor interaction graph (min-degree), ties
// broken by identity. Query and evidence variables are never eliminated;
// evidence variables were already clamped out of factor scopes.
func eliminationOrder(relevant map[string]struct{}, target string, ev Evidence, fs []*factor) []string {
	remaining := make(map[string]struct{})
	for id := range relevant {
		if id == target {
			continue
		}
		if _, isEv := ev[id]; isEv {
			continue
		}
		remaining[id] = struct{}{}
	}

	// Interaction graph: variables co-occurring in a factor are neighbors.
	neighbors := make(map[string]map[string]struct{}, len(remaining))
	for id := range remaining {
		neighbors[id] = make(map[string]struct{})
	}
	connect := func(vars []string) {
		for _, a := range vars {
			if _, ok := remaining[a]; !ok {
				continue
			}
			for _, b := range vars {
				if a != b {
					neighbors[a][b] = struct{}{}
				}
			}
		}
	}
	for _, f := range fs {
		connect(f.vars)
	}

	order := make([]string, 0, len(remaining))
	for len(remaining) > 0 {
		best := ""
		bestDeg := -1
		ids := make([]string, 0, len(remaining))
		for id := range remaining {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			deg := len(neighbors[id])
			if bestDeg < 0 || deg < bestDeg {
				best, bestDeg = id, deg
			}
		}

		// Eliminating best connects its neighbors pairwise.
		nbrs := make([]string, 0, len(neighbors[best]))
		for n := range neighbors[best] {
			nbrs = append(nbrs, n)
		}
		connect(nbrs)
		for _, n := range nbrs {
			delete(neighbors[n], best)
		}
		delete(neighbors, best)
		delete(remaining, best)
		order = append(order, best)
	}
	return order
}

// eliminate sums a variable out of the product of all factors mentioning it.
func eliminate(fs []*factor, v string) []*factor {
	var keep []*factor
	var touched *factor
	for _, f := range fs {
		if f.varIndex(v) < 0 {
			keep = append(keep, f)
			continue
		}
		if touched == nil {
			touched = f
		} else {
			touched = multiply(touched, f)
		}
	}
	if touched != nil {
		keep = append(keep, touched.sumOut(v))
	}
	return keep
}

func boolToState(v bool) int {
	if v {
		return 1
	}
	return 0
}

func clamp01(p float64) float64 {
	switch {
	case p < 0:
		return 0
	case p > 1:
		return 1
	default:
		return p
	}
}

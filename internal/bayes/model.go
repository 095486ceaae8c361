// Package bayes converts a derivation graph into an acyclic probabilistic
// model and answers exact marginal queries over it. Fact nodes and rule
// nodes are binary variables; rule nodes carry Noisy-AND conditionals over
// their premises and derived fact nodes carry Deterministic-OR conditionals
// over their deriving rules.
package bayes

import (
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"bayzzer/internal/derivation"
	"bayzzer/internal/facts"
)

var (
	// ErrMalformedModel means a node references a nonexistent parent or the
	// builder produced an inconsistent structure. Fatal.
	ErrMalformedModel = errors.New("bayes: malformed model")

	// ErrProbabilityRange means a computed marginal fell outside [0,1] by
	// more than the configured tolerance. Fatal internal inconsistency.
	ErrProbabilityRange = errors.New("bayes: probability outside [0,1]")

	// ErrEvidenceTarget means evidence was set on a node that is not an
	// Alarm fact. Fatal.
	ErrEvidenceTarget = errors.New("bayes: evidence on non-alarm node")

	// ErrUnknownNode means a query or evidence key does not name a model
	// node. Fatal.
	ErrUnknownNode = errors.New("bayes: unknown node")
)

// NodeKind partitions model variables.
type NodeKind int

const (
	NodeFact NodeKind = iota
	NodeRule
)

// Node is one binary random variable plus its conditional-probability
// specification, implied by Kind and Parents.
type Node struct {
	ID        string
	Kind      NodeKind
	Predicate facts.Predicate // fact nodes only
	Parents   []string        // sorted; empty for priors

	// Prior applies to parentless fact nodes.
	Prior float64
	// Success applies to rule nodes: P(true | all premises true).
	Success float64
}

// Params are the probabilistic constants of the model.
type Params struct {
	Prior   float64 // parentless fact prior
	Success float64 // rule-success probability
}

// DroppedEdge records one edge removed during cycle breaking.
type DroppedEdge struct {
	From string
	To   string
}

// Model is the immutable acyclic probabilistic model.
type Model struct {
	nodes   map[string]*Node
	ids     []string // sorted
	alarms  []string // sorted alarm fact ids
	dropped []DroppedEdge
	locs    map[string]facts.SourceLocation
}

// Node returns the node with the given identity.
func (m *Model) Node(id string) (*Node, bool) {
	n, ok := m.nodes[id]
	return n, ok
}

// IDs returns all node identities, sorted.
func (m *Model) IDs() []string { return append([]string(nil), m.ids...) }

// Alarms returns the Alarm fact node identities, sorted.
func (m *Model) Alarms() []string { return append([]string(nil), m.alarms...) }

// Dropped returns the edges removed by cycle breaking.
func (m *Model) Dropped() []DroppedEdge { return append([]DroppedEdge(nil), m.dropped...) }

// Location returns source metadata for an alarm node, when known.
func (m *Model) Location(alarmID string) (facts.SourceLocation, bool) {
	l, ok := m.locs[alarmID]
	return l, ok
}

// IsAlarm reports whether id names an Alarm fact node.
func (m *Model) IsAlarm(id string) bool {
	n, ok := m.nodes[id]
	return ok && n.Kind == NodeFact && n.Predicate == facts.PredAlarm
}

// Build maps a derivation graph onto an acyclic model. Cycle breaking is
// deterministic: within each strongly-connected component the edge whose
// removal loses the fewest premises is dropped, ties broken by lowest
// rule-instance identity and then lowest edge-target identity.
func Build(g *derivation.Graph, ex facts.Extraction, p Params, log *zap.Logger) (*Model, error) {
	if log == nil {
		log = zap.NewNop()
	}

	ids := g.NodeIDs()
	parents := make(map[string][]string, len(ids))
	children := make(map[string][]string, len(ids))
	for _, id := range ids {
		parents[id] = g.Parents(id)
		children[id] = g.Children(id)
	}

	var dropped []DroppedEdge
	for {
		comp := cyclicComponent(ids, children)
		if comp == nil {
			break
		}
		edge, err := chooseDrop(g, comp, children)
		if err != nil {
			return nil, err
		}
		removeEdge(parents, edge.To, edge.From)
		removeEdge(children, edge.From, edge.To)
		dropped = append(dropped, edge)
		log.Debug("cycle broken", zap.String("from", edge.From), zap.String("to", edge.To))
	}

	m := &Model{
		nodes: make(map[string]*Node, len(ids)),
		ids:   ids,
		locs:  make(map[string]facts.SourceLocation),
	}
	for _, id := range ids {
		n := &Node{ID: id, Parents: parents[id]}
		if g.IsInstance(id) {
			n.Kind = NodeRule
			n.Success = p.Success
		} else {
			f, ok := g.Fact(id)
			if !ok {
				return nil, fmt.Errorf("%w: node %s is neither fact nor instance", ErrMalformedModel, id)
			}
			n.Kind = NodeFact
			n.Predicate = f.Predicate
			if len(n.Parents) == 0 {
				n.Prior = p.Prior
			}
		}
		m.nodes[id] = n
	}

	for _, n := range m.nodes {
		for _, pid := range n.Parents {
			if _, ok := m.nodes[pid]; !ok {
				return nil, fmt.Errorf("%w: node %s references nonexistent parent %s", ErrMalformedModel, n.ID, pid)
			}
		}
	}

	for _, f := range g.Alarms() {
		id := f.ID()
		m.alarms = append(m.alarms, id)
		if loc, ok := ex.Locations[f.Args[0]]; ok {
			m.locs[id] = loc
		}
	}
	sort.Strings(m.alarms)
	m.dropped = dropped

	log.Info("probabilistic model built",
		zap.Int("nodes", len(m.nodes)),
		zap.Int("alarms", len(m.alarms)),
		zap.Int("dropped_edges", len(dropped)))
	return m, nil
}

// cyclicComponent returns the members of one non-trivial strongly-connected
// component, or nil when the graph is acyclic. Components are discovered in
// sorted-node order, so the same graph always yields the same component.
func cyclicComponent(ids []string, children map[string][]string) map[string]struct{} {
	index := make(map[string]int, len(ids))
	low := make(map[string]int, len(ids))
	onStack := make(map[string]bool, len(ids))
	var stack []string
	next := 0
	var found map[string]struct{}

	var strongconnect func(v string)
	strongconnect = func(v string) {
		index[v] = next
		low[v] = next
		next++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range children[v] {
			if _, seen := index[w]; !seen {
				strongconnect(w)
				if low[w] < low[v] {
					low[v] = low[w]
				}
			} else if onStack[w] && index[w] < low[v] {
				low[v] = index[w]
			}
		}

		if low[v] == index[v] {
			comp := make(map[string]struct{})
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				comp[w] = struct{}{}
				if w == v {
					break
				}
			}
			if len(comp) > 1 && found == nil {
				found = comp
			}
		}
	}

	for _, id := range ids {
		if _, seen := index[id]; !seen {
			strongconnect(id)
		}
		if found != nil {
			return found
		}
	}
	return nil
}

// chooseDrop picks the edge to remove from a component. Dropping a
// premise->rule edge loses one premise; dropping a rule->conclusion edge
// loses every premise of that rule, so it costs the rule's full in-degree.
func chooseDrop(g *derivation.Graph, comp map[string]struct{}, children map[string][]string) (DroppedEdge, error) {
	type candidate struct {
		edge   DroppedEdge
		cost   int
		ruleID string
	}
	var cands []candidate
	for from := range comp {
		for _, to := range children[from] {
			if _, ok := comp[to]; !ok {
				continue
			}
			c := candidate{edge: DroppedEdge{From: from, To: to}}
			if g.IsInstance(to) {
				c.cost = 1
				c.ruleID = to
			} else if g.IsInstance(from) {
				inst, _ := g.Instance(from)
				c.cost = len(inst.Premises)
				c.ruleID = from
			} else {
				return DroppedEdge{}, fmt.Errorf("%w: edge %s -> %s joins two facts", ErrMalformedModel, from, to)
			}
			cands = append(cands, c)
		}
	}
	if len(cands) == 0 {
		return DroppedEdge{}, fmt.Errorf("%w: cyclic component with no internal edges", ErrMalformedModel)
	}
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].cost != cands[j].cost {
			return cands[i].cost < cands[j].cost
		}
		if cands[i].ruleID != cands[j].ruleID {
			return cands[i].ruleID < cands[j].ruleID
		}
		return cands[i].edge.To < cands[j].edge.To
	})
	return cands[0].edge, nil
}

func removeEdge(adj map[string][]string, key, member string) {
	list := adj[key]
	for i, v := range list {
		if v == member {
			adj[key] = append(list[:i:i], list[i+1:]...)
			return
		}
	}
}

// cpt materializes a node's conditional-probability specification as a
// factor over parents + node, with the node variable last (fastest).
func (m *Model) cpt(n *Node) *factor {
	if len(n.Parents) == 0 {
		if n.Kind == NodeRule {
			// Noisy-AND over an empty premise set is vacuously satisfied.
			return newFactor([]string{n.ID}, []float64{1 - n.Success, n.Success})
		}
		return newFactor([]string{n.ID}, []float64{1 - n.Prior, n.Prior})
	}

	vars := append(append([]string(nil), n.Parents...), n.ID)
	k := len(n.Parents)
	values := make([]float64, 1<<(k+1))
	for cfg := 0; cfg < 1<<k; cfg++ {
		var pTrue float64
		switch n.Kind {
		case NodeRule:
			if cfg == (1<<k)-1 { // all premises true
				pTrue = n.Success
			}
		case NodeFact:
			if cfg != 0 { // any deriving rule true
				pTrue = 1.0
			}
		}
		values[cfg<<1] = 1 - pTrue
		values[cfg<<1|1] = pTrue
	}
	return newFactor(vars, values)
}

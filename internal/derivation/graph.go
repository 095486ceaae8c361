// Package derivation computes the least fixpoint of the fixed taint rules
// and records every derivation as an explicit graph: premise fact -> rule
// instance -> conclusion fact. The graph may be cyclic when taint flows
// mutually between variables.
package derivation

import (
	"sort"

	"bayzzer/internal/facts"
)

// NodeKind distinguishes fact nodes from rule-instance nodes.
type NodeKind int

const (
	KindFact NodeKind = iota
	KindRule
)

// Edge is a directed dependency in the derivation graph.
type Edge struct {
	From string
	To   string
}

// Graph is the identity-keyed derivation graph. Facts and rule instances
// share one node namespace; edges run premise -> instance -> conclusion.
type Graph struct {
	store     *facts.Store
	instances map[string]facts.Instance
	out       map[string][]string
	in        map[string][]string
}

// NewGraph returns an empty derivation graph backed by a fresh fact store.
func NewGraph() *Graph {
	return &Graph{
		store:     facts.NewStore(),
		instances: make(map[string]facts.Instance),
		out:       make(map[string][]string),
		in:        make(map[string][]string),
	}
}

// AddFact inserts a fact node, reporting whether it was new.
func (g *Graph) AddFact(f facts.Fact) bool {
	return g.store.Add(f)
}

// AddInstance inserts a rule-instance node with its premise and conclusion
// edges, reporting whether it was new. All referenced facts must already be
// in the store.
func (g *Graph) AddInstance(inst facts.Instance) bool {
	id := inst.ID()
	if _, ok := g.instances[id]; ok {
		return false
	}
	g.instances[id] = inst
	for _, p := range inst.Premises {
		g.addEdge(p, id)
	}
	g.addEdge(id, inst.Conclusion)
	return true
}

func (g *Graph) addEdge(from, to string) {
	g.out[from] = append(g.out[from], to)
	g.in[to] = append(g.in[to], from)
}

// Store exposes the underlying fact store.
func (g *Graph) Store() *facts.Store { return g.store }

// Fact returns the fact node with the given identity.
func (g *Graph) Fact(id string) (facts.Fact, bool) { return g.store.Get(id) }

// Instance returns the rule-instance node with the given identity.
func (g *Graph) Instance(id string) (facts.Instance, bool) {
	inst, ok := g.instances[id]
	return inst, ok
}

// IsInstance reports whether id names a rule-instance node.
func (g *Graph) IsInstance(id string) bool {
	_, ok := g.instances[id]
	return ok
}

// NodeIDs returns all node identities (facts and instances), sorted.
func (g *Graph) NodeIDs() []string {
	ids := g.store.IDs()
	for id := range g.instances {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// InstanceIDs returns all rule-instance identities, sorted.
func (g *Graph) InstanceIDs() []string {
	ids := make([]string, 0, len(g.instances))
	for id := range g.instances {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Parents returns the sorted identities of nodes with an edge into id.
func (g *Graph) Parents(id string) []string {
	ps := append([]string(nil), g.in[id]...)
	sort.Strings(ps)
	return ps
}

// Children returns the sorted identities of nodes id has an edge to.
func (g *Graph) Children(id string) []string {
	cs := append([]string(nil), g.out[id]...)
	sort.Strings(cs)
	return cs
}

// Edges returns every edge, sorted by (from, to).
func (g *Graph) Edges() []Edge {
	var es []Edge
	for from, tos := range g.out {
		for _, to := range tos {
			es = append(es, Edge{From: from, To: to})
		}
	}
	sort.Slice(es, func(i, j int) bool {
		if es[i].From != es[j].From {
			return es[i].From < es[j].From
		}
		return es[i].To < es[j].To
	})
	return es
}

// Alarms returns all Alarm facts, ordered by identity.
func (g *Graph) Alarms() []facts.Fact {
	return g.store.ByPredicate(facts.PredAlarm)
}

// Ancestors returns the identity set of every node from which id is
// reachable. Used for derivation-path reporting.
func (g *Graph) Ancestors(id string) map[string]struct{} {
	seen := make(map[string]struct{})
	stack := append([]string(nil), g.in[id]...)
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		stack = append(stack, g.in[n]...)
	}
	return seen
}

package bayes

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"bayzzer/internal/derivation"
	"bayzzer/internal/facts"
)

func defaultParams() Params { return Params{Prior: 0.9, Success: 0.9} }

func chainExtraction() facts.Extraction {
	return facts.Extraction{
		Facts: []facts.Fact{
			facts.Input("x"),
			facts.Flow("x", "y"),
			facts.Memory("y", "L1"),
		},
		Locations: map[string]facts.SourceLocation{
			"L1": {File: "vuln.c", Line: 42},
		},
	}
}

func chainModel(t *testing.T) *Model {
	t.Helper()
	eng := derivation.NewEngine(100, nil)
	g, err := eng.Run(chainExtraction(), nil)
	if err != nil {
		t.Fatalf("derivation.Run() error = %v", err)
	}
	m, err := Build(g, chainExtraction(), defaultParams(), nil)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	return m
}

func TestBuildChain(t *testing.T) {
	m := chainModel(t)

	if got := m.Alarms(); len(got) != 1 || got[0] != "Alarm(L1)" {
		t.Fatalf("Alarms() = %v, want [Alarm(L1)]", got)
	}
	if len(m.Dropped()) != 0 {
		t.Errorf("Dropped() = %v, want none for acyclic chain", m.Dropped())
	}

	loc, ok := m.Location("Alarm(L1)")
	if !ok || loc.File != "vuln.c" || loc.Line != 42 {
		t.Errorf("Location(Alarm(L1)) = %v, %v, want vuln.c:42", loc, ok)
	}

	input, ok := m.Node("Input(x)")
	if !ok || input.Kind != NodeFact || len(input.Parents) != 0 || input.Prior != 0.9 {
		t.Errorf("Input(x) node = %+v, want parentless fact with prior 0.9", input)
	}

	rule, ok := m.Node("R2[Taint(x) & Flow(x, y)]=>Taint(y)")
	if !ok || rule.Kind != NodeRule || rule.Success != 0.9 {
		t.Fatalf("R2 node = %+v, want rule with success 0.9", rule)
	}
	wantPremises := []string{"Flow(x, y)", "Taint(x)"}
	if diff := cmp.Diff(wantPremises, rule.Parents); diff != "" {
		t.Errorf("R2 parents mismatch (-want +got):\n%s", diff)
	}

	alarm, _ := m.Node("Alarm(L1)")
	wantAlarmParents := []string{"R3[Taint(y) & Memory(y, L1)]=>Alarm(L1)"}
	if diff := cmp.Diff(wantAlarmParents, alarm.Parents); diff != "" {
		t.Errorf("Alarm(L1) parents mismatch (-want +got):\n%s", diff)
	}
	if !m.IsAlarm("Alarm(L1)") || m.IsAlarm("Taint(x)") {
		t.Error("IsAlarm() misclassifies nodes")
	}
}

func mutualTaintGraph() *derivation.Graph {
	g := derivation.NewGraph()
	g.AddFact(facts.Taint("a"))
	g.AddFact(facts.Taint("b"))
	g.AddInstance(facts.Instance{
		Rule:       facts.RulePropagation,
		Premises:   []string{"Taint(a)"},
		Conclusion: "Taint(b)",
	})
	g.AddInstance(facts.Instance{
		Rule:       facts.RulePropagation,
		Premises:   []string{"Taint(b)"},
		Conclusion: "Taint(a)",
	})
	return g
}

func TestBuildBreaksCycle(t *testing.T) {
	m, err := Build(mutualTaintGraph(), facts.Extraction{}, defaultParams(), nil)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	wantDropped := []DroppedEdge{{From: "Taint(a)", To: "R2[Taint(a)]=>Taint(b)"}}
	if diff := cmp.Diff(wantDropped, m.Dropped()); diff != "" {
		t.Errorf("Dropped() mismatch (-want +got):\n%s", diff)
	}

	// The rule stripped of its only premise becomes a root.
	orphan, ok := m.Node("R2[Taint(a)]=>Taint(b)")
	if !ok || len(orphan.Parents) != 0 {
		t.Fatalf("orphaned rule node = %+v, want parentless", orphan)
	}

	// Cycle breaking keeps a usable model: the downstream marginals follow.
	eng := NewEngine(m, 1e-6, nil)
	pb, err := eng.Marginal("Taint(b)", nil)
	if err != nil {
		t.Fatalf("Marginal(Taint(b)) error = %v", err)
	}
	if !closeTo(pb, 0.9) {
		t.Errorf("P(Taint(b)) = %v, want 0.9", pb)
	}
	pa, err := eng.Marginal("Taint(a)", nil)
	if err != nil {
		t.Fatalf("Marginal(Taint(a)) error = %v", err)
	}
	if !closeTo(pa, 0.81) {
		t.Errorf("P(Taint(a)) = %v, want 0.81", pa)
	}
}

func TestBuildDeterministic(t *testing.T) {
	a, err := Build(mutualTaintGraph(), facts.Extraction{}, defaultParams(), nil)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	b, err := Build(mutualTaintGraph(), facts.Extraction{}, defaultParams(), nil)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if diff := cmp.Diff(a.Dropped(), b.Dropped()); diff != "" {
		t.Errorf("cycle breaking is nondeterministic:\n%s", diff)
	}
	if diff := cmp.Diff(a.IDs(), b.IDs()); diff != "" {
		t.Errorf("node set is nondeterministic:\n%s", diff)
	}
}

func TestCPTNoisyAND(t *testing.T) {
	m := chainModel(t)
	n, _ := m.Node("R2[Taint(x) & Flow(x, y)]=>Taint(y)")
	f := m.cpt(n)

	if len(f.vars) != 3 || f.vars[2] != n.ID {
		t.Fatalf("cpt vars = %v, want [parents..., node]", f.vars)
	}
	// Rows in premise-configuration order, node toggling fastest. Only the
	// all-premises-true row succeeds with 0.9.
	want := []float64{1, 0, 1, 0, 1, 0, 0.1, 0.9}
	for i, v := range want {
		if !closeTo(f.values[i], v) {
			t.Fatalf("cpt values = %v, want %v", f.values, want)
		}
	}
}

func TestCPTDeterministicOR(t *testing.T) {
	g := mutualTaintGraph()
	// Give Taint(a) two deriving rules so the OR has two parents.
	g.AddFact(facts.Taint("c"))
	g.AddInstance(facts.Instance{
		Rule:       facts.RulePropagation,
		Premises:   []string{"Taint(c)"},
		Conclusion: "Taint(a)",
	})
	m, err := Build(g, facts.Extraction{}, defaultParams(), nil)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	n, _ := m.Node("Taint(a)")
	if len(n.Parents) != 2 {
		t.Fatalf("Taint(a) parents = %v, want 2 deriving rules", n.Parents)
	}
	f := m.cpt(n)
	want := []float64{1, 0, 0, 1, 0, 1, 0, 1}
	for i, v := range want {
		if !closeTo(f.values[i], v) {
			t.Fatalf("cpt values = %v, want %v", f.values, want)
		}
	}
}

func TestCPTRoots(t *testing.T) {
	m := chainModel(t)

	input, _ := m.Node("Input(x)")
	f := m.cpt(input)
	if !closeTo(f.values[0], 0.1) || !closeTo(f.values[1], 0.9) {
		t.Errorf("root fact cpt = %v, want [0.1 0.9]", f.values)
	}

	orphanRule := &Node{ID: "r", Kind: NodeRule, Success: 0.9}
	f = m.cpt(orphanRule)
	if !closeTo(f.values[0], 0.1) || !closeTo(f.values[1], 0.9) {
		t.Errorf("parentless rule cpt = %v, want [0.1 0.9]", f.values)
	}
}

func closeTo(got, want float64) bool {
	d := got - want
	return d < 1e-9 && d > -1e-9
}

package bayes

import (
	"errors"
	"testing"

	"bayzzer/internal/derivation"
	"bayzzer/internal/facts"
)

func chainEngine(t *testing.T) *Engine {
	t.Helper()
	return NewEngine(chainModel(t), 1e-6, nil)
}

func TestChainMarginal(t *testing.T) {
	eng := chainEngine(t)

	// Input, Flow and Memory roots at 0.9 each, three rule firings at 0.9
	// each: 0.9^6 end to end.
	p, err := eng.Marginal("Alarm(L1)", nil)
	if err != nil {
		t.Fatalf("Marginal() error = %v", err)
	}
	if !closeTo(p, 0.531441) {
		t.Errorf("P(Alarm(L1)) = %v, want 0.531441", p)
	}

	px, err := eng.Marginal("Taint(x)", nil)
	if err != nil {
		t.Fatalf("Marginal() error = %v", err)
	}
	if !closeTo(px, 0.81) {
		t.Errorf("P(Taint(x)) = %v, want 0.81", px)
	}
}

func TestMultipleDerivationsOr(t *testing.T) {
	// Taint(c) derived independently from Taint(a) and Taint(b): the
	// Deterministic-OR combines two 0.729 paths into 1-(1-0.729)^2.
	g := derivation.NewGraph()
	for _, f := range []facts.Fact{
		facts.Input("a"), facts.Input("b"),
		facts.Taint("a"), facts.Taint("b"), facts.Taint("c"),
	} {
		g.AddFact(f)
	}
	g.AddInstance(facts.Instance{Rule: facts.RuleSource, Premises: []string{"Input(a)"}, Conclusion: "Taint(a)"})
	g.AddInstance(facts.Instance{Rule: facts.RuleSource, Premises: []string{"Input(b)"}, Conclusion: "Taint(b)"})
	g.AddInstance(facts.Instance{Rule: facts.RulePropagation, Premises: []string{"Taint(a)"}, Conclusion: "Taint(c)"})
	g.AddInstance(facts.Instance{Rule: facts.RulePropagation, Premises: []string{"Taint(b)"}, Conclusion: "Taint(c)"})

	m, err := Build(g, facts.Extraction{}, defaultParams(), nil)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	eng := NewEngine(m, 1e-6, nil)
	p, err := eng.Marginal("Taint(c)", nil)
	if err != nil {
		t.Fatalf("Marginal() error = %v", err)
	}
	if !closeTo(p, 0.926559) {
		t.Errorf("P(Taint(c)) = %v, want 0.926559", p)
	}
}

func TestRootMarginalEqualsPrior(t *testing.T) {
	eng := chainEngine(t)
	p, err := eng.Marginal("Input(x)", nil)
	if err != nil {
		t.Fatalf("Marginal() error = %v", err)
	}
	if p != 0.9 {
		t.Errorf("P(Input(x)) = %v, want exactly the 0.9 prior", p)
	}
}

func TestDisconnectedTargetIgnoresEvidence(t *testing.T) {
	ex := chainExtraction()
	ex.Facts = append(ex.Facts, facts.Input("z")) // no flow out of z
	deng := derivation.NewEngine(100, nil)
	g, err := deng.Run(ex, nil)
	if err != nil {
		t.Fatalf("derivation.Run() error = %v", err)
	}
	m, err := Build(g, ex, defaultParams(), nil)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	eng := NewEngine(m, 1e-6, nil)

	ev := NewEvidence()
	ev.Set("Alarm(L1)", false)
	p, err := eng.Marginal("Input(z)", ev)
	if err != nil {
		t.Fatalf("Marginal() error = %v", err)
	}
	if !closeTo(p, 0.9) {
		t.Errorf("P(Input(z) | unrelated evidence) = %v, want 0.9", p)
	}
}

func TestNegativeEvidenceBackwardPropagation(t *testing.T) {
	eng := chainEngine(t)

	ev := NewEvidence()
	ev.Set("Alarm(L1)", false)
	p, err := eng.Marginal("Taint(x)", ev)
	if err != nil {
		t.Fatalf("Marginal() error = %v", err)
	}

	// P(Taint(x) | Alarm=false) = (0.81 - 0.531441) / (1 - 0.531441).
	want := (0.81 - 0.531441) / (1 - 0.531441)
	if !closeTo(p, want) {
		t.Errorf("P(Taint(x) | Alarm=false) = %v, want %v", p, want)
	}
	if p >= 0.81 {
		t.Errorf("negative evidence failed to lower ancestor marginal: %v", p)
	}
}

func TestEvidencedTargetShortCircuits(t *testing.T) {
	eng := chainEngine(t)

	ev := NewEvidence()
	ev.Set("Alarm(L1)", true)
	p, err := eng.Marginal("Alarm(L1)", ev)
	if err != nil {
		t.Fatalf("Marginal() error = %v", err)
	}
	if p != 1.0 {
		t.Errorf("P(Alarm | Alarm=true) = %v, want 1.0", p)
	}

	ev.Set("Alarm(L1)", false)
	p, err = eng.Marginal("Alarm(L1)", ev)
	if err != nil {
		t.Fatalf("Marginal() error = %v", err)
	}
	if p != 0.0 {
		t.Errorf("P(Alarm | Alarm=false) = %v, want 0.0", p)
	}
}

func TestEvidenceOnNonAlarmFails(t *testing.T) {
	eng := chainEngine(t)

	ev := NewEvidence()
	ev.Set("Taint(x)", false)
	if _, err := eng.Marginal("Alarm(L1)", ev); !errors.Is(err, ErrEvidenceTarget) {
		t.Errorf("Marginal() error = %v, want ErrEvidenceTarget", err)
	}

	ev = NewEvidence()
	ev.Set("Alarm(nope)", true)
	if _, err := eng.Marginal("Alarm(L1)", ev); !errors.Is(err, ErrUnknownNode) {
		t.Errorf("Marginal() error = %v, want ErrUnknownNode", err)
	}
}

func TestUnknownQueryTarget(t *testing.T) {
	eng := chainEngine(t)
	if _, err := eng.Marginal("Alarm(missing)", nil); !errors.Is(err, ErrUnknownNode) {
		t.Errorf("Marginal() error = %v, want ErrUnknownNode", err)
	}
}

func TestMarginalsCoversAllTargets(t *testing.T) {
	eng := chainEngine(t)
	targets := []string{"Alarm(L1)", "Taint(x)", "Taint(y)"}
	probs, err := eng.Marginals(targets, nil)
	if err != nil {
		t.Fatalf("Marginals() error = %v", err)
	}
	if len(probs) != len(targets) {
		t.Fatalf("Marginals() returned %d entries, want %d", len(probs), len(targets))
	}
	for _, id := range targets {
		if p := probs[id]; p <= 0 || p >= 1 {
			t.Errorf("P(%s) = %v, want interior probability", id, p)
		}
	}
	// Probability decays along the chain.
	if !(probs["Taint(x)"] > probs["Taint(y)"] && probs["Taint(y)"] > probs["Alarm(L1)"]) {
		t.Errorf("chain marginals not decreasing: %v", probs)
	}
}

package derivation

import (
	"strings"
	"testing"

	"bayzzer/internal/facts"
)

func TestCrossCheckAgrees(t *testing.T) {
	ex := facts.Extraction{
		Facts: []facts.Fact{
			facts.Input("x"),
			facts.Flow("x", "y"),
			facts.Flow("y", "x"),
			facts.Memory("y", "L1"),
		},
	}
	eng := NewEngine(100, nil)
	g, err := eng.Run(ex, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if err := CrossCheck(g); err != nil {
		t.Fatalf("CrossCheck() error = %v", err)
	}
}

func TestCrossCheckDetectsDivergence(t *testing.T) {
	// A graph holding base facts but no derived taint must diverge from the
	// Mangle fixpoint over the same facts.
	g := NewGraph()
	g.AddFact(facts.Input("x"))

	err := CrossCheck(g)
	if err == nil {
		t.Fatal("CrossCheck() error = nil, want divergence")
	}
	if !strings.Contains(err.Error(), "divergence") {
		t.Errorf("CrossCheck() error = %v, want divergence diagnostic", err)
	}
}

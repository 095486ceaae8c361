package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNewRegistersAllMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RoundsTotal.Inc()
	m.TargetsFuzzed.Inc()
	m.BugsFound.Inc()
	m.EvidenceCleared.Add(3)
	m.InferenceSeconds.Observe(0.05)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	got := make(map[string]bool, len(families))
	for _, f := range families {
		got[f.GetName()] = true
	}
	for _, name := range []string{
		"bayzzer_rounds_total",
		"bayzzer_targets_fuzzed_total",
		"bayzzer_bugs_found_total",
		"bayzzer_evidence_cleared_total",
		"bayzzer_inference_seconds",
	} {
		if !got[name] {
			t.Errorf("metric %s not registered", name)
		}
	}
}

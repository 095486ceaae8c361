// Package pipeline assembles the static half of a campaign: extraction ->
// derivation fixpoint -> probabilistic model -> inference engine. It runs
// exactly once per campaign; any failure here is fatal and halts before any
// round.
package pipeline

import (
	"fmt"

	"bayzzer/internal/bayes"
	"bayzzer/internal/config"
	"bayzzer/internal/derivation"
	"bayzzer/internal/facts"
	"bayzzer/internal/logging"
)

// Result is the immutable output of the static pipeline.
type Result struct {
	Graph     *derivation.Graph
	Model     *bayes.Model
	Inference *bayes.Engine
}

// Analyze runs the full static pipeline over an extraction.
func Analyze(ex facts.Extraction, cfg *config.Config) (*Result, error) {
	eng := derivation.NewEngine(cfg.Analysis.MaxFixpointPasses, logging.Get(logging.CategoryDerivation))
	graph, err := eng.Run(ex, nil)
	if err != nil {
		return nil, fmt.Errorf("derivation: %w", err)
	}

	if cfg.Analysis.CrossCheck {
		if err := derivation.CrossCheck(graph); err != nil {
			return nil, err
		}
	}

	model, err := bayes.Build(graph, ex, bayes.Params{
		Prior:   cfg.Analysis.PriorProbability,
		Success: cfg.Analysis.RuleProbability,
	}, logging.Get(logging.CategoryModel))
	if err != nil {
		return nil, fmt.Errorf("model build: %w", err)
	}

	inf := bayes.NewEngine(model, cfg.Inference.Tolerance, logging.Get(logging.CategoryInference))
	return &Result{Graph: graph, Model: model, Inference: inf}, nil
}

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	cfotel "github.com/Strob0t/MedForge/internal/adapter/otel"
	"github.com/Strob0t/MedForge/internal/domain/consensus"
	"github.com/Strob0t/MedForge/internal/domain/enrichment"
	"github.com/Strob0t/MedForge/internal/domain/safety"
	port "github.com/Strob0t/MedForge/internal/port/enrichment"
)

var errNoInteractionChecker = errors.New("no drug interaction checker configured")

// SafetyGate validates a consensus against the patient before release.
type SafetyGate struct {
	evaluator *safety.Evaluator
	drugs     port.DrugSafetyChecker
	threshold float64
	metrics   *cfotel.Metrics
}

// NewSafetyGate creates a SafetyGate. A nil evaluator uses the default rule set.
// drugs may be nil, in which case any needed interaction lookup counts as failed.
func NewSafetyGate(ev *safety.Evaluator, drugs port.DrugSafetyChecker, threshold float64) *SafetyGate {
	if ev == nil {
		ev = safety.NewEvaluator(nil)
	}
	if threshold <= 0 {
		threshold = safety.DefaultConfidenceThreshold
	}
	return &SafetyGate{evaluator: ev, drugs: drugs, threshold: threshold}
}

// SetMetrics sets the metrics recorder for gate verdicts.
func (g *SafetyGate) SetMetrics(m *cfotel.Metrics) { g.metrics = m }

// Validate runs every check. An unsafe verdict is data; Validate never fails.
func (g *SafetyGate) Validate(ctx context.Context, c consensus.Result, p safety.PatientContext) safety.Result {
	ctx, span := cfotel.StartSafetySpan(ctx, len(c.Recommendations))
	defer span.End()

	implied := g.evaluator.ImpliedDrugs(c.Recommendations)
	interactions, lookupErr := g.interactions(ctx, implied, p.Medications)
	if lookupErr != nil {
		slog.WarnContext(ctx, "drug interaction lookup failed", "error", lookupErr)
	}

	res := g.evaluator.Evaluate(safety.Input{
		Consensus:           &c,
		Patient:             p,
		Interactions:        interactions,
		InteractionCheckErr: lookupErr,
		ConfidenceThreshold: g.threshold,
	})
	g.metrics.RecordSafety(ctx, res.SafetyScore, res.RequiresHumanReview)
	return res
}

// interactions checks the recommended drugs against each other and the current
// medication list. Only interactions involving a recommended drug are returned.
func (g *SafetyGate) interactions(ctx context.Context, implied, current []string) ([]enrichment.Interaction, error) {
	if len(implied) == 0 {
		return nil, nil
	}
	drugs := append([]string(nil), implied...)
	for _, m := range current {
		if n := normalizeName(m); n != "" && !slices.Contains(drugs, n) {
			drugs = append(drugs, n)
		}
	}
	if len(drugs) < 2 {
		return nil, nil
	}
	if g.drugs == nil {
		return nil, errNoInteractionChecker
	}

	report, err := g.drugs.CheckInteractions(ctx, drugs)
	if err != nil {
		return nil, fmt.Errorf("check interactions: %w", err)
	}
	if report == nil {
		return nil, nil
	}
	var out []enrichment.Interaction
	for _, ix := range report.Interactions {
		if slices.Contains(implied, normalizeName(ix.DrugA)) || slices.Contains(implied, normalizeName(ix.DrugB)) {
			out = append(out, ix)
		}
	}
	return out, nil
}

func normalizeName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Package enrichment defines the ports for the external knowledge providers
// queried by the enrichment fan-out. Each provider is a single call.
package enrichment

import (
	"context"

	"github.com/Strob0t/MedForge/internal/domain/consensus"
	"github.com/Strob0t/MedForge/internal/domain/enrichment"
)

// RiskInput is what the early-warning scorer looks at.
type RiskInput struct {
	Age                int     `json:"age"`
	HeartRate          float64 `json:"heart_rate,omitempty"`
	SystolicBP         float64 `json:"systolic_bp,omitempty"`
	RespiratoryRate    float64 `json:"respiratory_rate,omitempty"`
	TemperatureC       float64 `json:"temperature_c,omitempty"`
	OxygenSaturation   float64 `json:"oxygen_saturation,omitempty"`
	SupplementalOxygen bool    `json:"supplemental_oxygen,omitempty"`
	Consciousness      string  `json:"consciousness,omitempty"`
}

// DifferentialInput is what the expert differential model looks at.
type DifferentialInput struct {
	Symptoms   []string `json:"symptoms"`
	Age        int      `json:"age"`
	Sex        string   `json:"sex,omitempty"`
	Conditions []string `json:"conditions,omitempty"`
}

// LiteratureSearcher finds articles relevant to the presenting symptoms.
type LiteratureSearcher interface {
	Search(ctx context.Context, terms []string, limit int) ([]enrichment.Article, error)
}

// DrugSafetyChecker reports pairwise interactions among a medication list.
type DrugSafetyChecker interface {
	CheckInteractions(ctx context.Context, drugs []string) (*enrichment.DrugSafetyReport, error)
}

// GuidelineLookup returns practice guidelines for suspected conditions.
type GuidelineLookup interface {
	Lookup(ctx context.Context, conditions []string) ([]enrichment.Guideline, error)
}

// RiskScorer computes an early-warning score.
type RiskScorer interface {
	Score(ctx context.Context, in RiskInput) (*enrichment.RiskAssessment, error)
}

// DifferentialModel proposes a ranked differential diagnosis.
type DifferentialModel interface {
	Differential(ctx context.Context, in DifferentialInput) ([]consensus.Diagnosis, error)
}

// ImagingAnalyzer runs AI analysis over submitted imaging studies.
type ImagingAnalyzer interface {
	Analyze(ctx context.Context, studies []enrichment.ImagingStudy) (*enrichment.ImagingFindings, error)
}

// Providers bundles the six knowledge providers. A nil field disables its branch.
type Providers struct {
	Literature   LiteratureSearcher
	DrugSafety   DrugSafetyChecker
	Guidelines   GuidelineLookup
	Risk         RiskScorer
	Differential DifferentialModel
	Imaging      ImagingAnalyzer
}

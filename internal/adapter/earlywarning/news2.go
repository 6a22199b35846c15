// Package earlywarning implements the risk scorer port with the National
// Early Warning Score 2 (NEWS2) computed locally from vitals.
package earlywarning

import (
	"context"
	"errors"
	"strings"

	"github.com/Strob0t/MedForge/internal/domain/enrichment"
	port "github.com/Strob0t/MedForge/internal/port/enrichment"
)

// ErrNoObservations is returned when none of the scored vitals were measured.
var ErrNoObservations = errors.New("no vital signs to score")

// Model is the name reported in assessments.
const Model = "NEWS2"

// Risk levels.
const (
	LevelLow       = "low"
	LevelLowMedium = "low_medium"
	LevelMedium    = "medium"
	LevelHigh      = "high"
)

// Scorer computes NEWS2. It holds no state.
type Scorer struct{}

var _ port.RiskScorer = Scorer{}

// NewScorer returns a NEWS2 scorer.
func NewScorer() Scorer { return Scorer{} }

// threshold maps an upper bound (inclusive) to points. Bands are checked in order.
type threshold struct {
	upTo   float64
	points int
}

var (
	respiratoryBands = []threshold{{8, 3}, {11, 1}, {20, 0}, {24, 2}}
	spo2Bands        = []threshold{{91, 3}, {93, 2}, {95, 1}}
	systolicBands    = []threshold{{90, 3}, {100, 2}, {110, 1}, {219, 0}}
	heartRateBands   = []threshold{{40, 3}, {50, 1}, {90, 0}, {110, 1}, {130, 2}}
	temperatureBands = []threshold{{35.0, 3}, {36.0, 1}, {38.0, 0}, {39.0, 1}}
)

// band returns the points for v; above the last bound scores top.
func band(v float64, bands []threshold, top int) int {
	for _, b := range bands {
		if v <= b.upTo {
			return b.points
		}
	}
	return top
}

// Score computes the aggregate NEWS2 score. Zero-valued vitals are treated as
// not measured and skipped.
func (Scorer) Score(_ context.Context, in port.RiskInput) (*enrichment.RiskAssessment, error) {
	var (
		total    int
		measured int
		extreme  bool
		triggers []string
	)
	add := func(name string, points int) {
		measured++
		total += points
		if points == 3 {
			extreme = true
		}
		if points > 0 {
			triggers = append(triggers, name)
		}
	}

	if in.RespiratoryRate > 0 {
		add("respiratory_rate", band(in.RespiratoryRate, respiratoryBands, 3))
	}
	if in.OxygenSaturation > 0 {
		add("oxygen_saturation", band(in.OxygenSaturation, spo2Bands, 0))
	}
	if in.SupplementalOxygen {
		total += 2
		triggers = append(triggers, "supplemental_oxygen")
	}
	if in.SystolicBP > 0 {
		add("systolic_bp", band(in.SystolicBP, systolicBands, 3))
	}
	if in.HeartRate > 0 {
		add("heart_rate", band(in.HeartRate, heartRateBands, 3))
	}
	if c := strings.ToLower(strings.TrimSpace(in.Consciousness)); c != "" {
		points := 0
		if c != "alert" && c != "a" {
			points = 3
		}
		add("consciousness", points)
	}
	if in.TemperatureC > 0 {
		add("temperature", band(in.TemperatureC, temperatureBands, 2))
	}

	if measured == 0 {
		return nil, ErrNoObservations
	}

	level := Level(total, extreme)
	return &enrichment.RiskAssessment{
		Score:      total,
		Level:      level,
		Model:      Model,
		Triggers:   triggers,
		Escalation: escalation[level],
	}, nil
}

// Level maps an aggregate score to a clinical risk level. A single parameter
// scoring 3 raises a low aggregate to low_medium.
func Level(total int, extreme bool) string {
	switch {
	case total >= 7:
		return LevelHigh
	case total >= 5:
		return LevelMedium
	case extreme:
		return LevelLowMedium
	default:
		return LevelLow
	}
}

var escalation = map[string]string{
	LevelLow:       "ward-based response; minimum 12-hourly observations",
	LevelLowMedium: "urgent ward-based review by a clinician",
	LevelMedium:    "key threshold for urgent response; hourly observations",
	LevelHigh:      "emergency response; continuous monitoring and critical care assessment",
}

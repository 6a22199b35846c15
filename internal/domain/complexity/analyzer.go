package complexity

import "math"

// Normalization ceilings. A sub-signal at or above its ceiling contributes 1.0.
const (
	ceilSymptomCount      = 10
	ceilSeverity          = 10
	ceilDurationDays      = 30
	ceilComorbidities     = 5
	ceilMedications       = 10
	ceilAllergies         = 5
	ceilTreatmentFailures = 3
	ceilSpecialties       = 4
	ceilDifferentials     = 10
	maxAge                = 120

	secondsPerAgent = 15
	bandWidth       = 0.2
)

// Analyzer computes complexity scores. It is stateless and safe for concurrent use.
type Analyzer struct {
	maxAgents int
	weights   Weights
}

// NewAnalyzer returns an Analyzer. A non-positive maxAgents falls back to DefaultMaxAgents.
func NewAnalyzer(maxAgents int, w Weights) *Analyzer {
	if maxAgents < 1 {
		maxAgents = DefaultMaxAgents
	}
	return &Analyzer{maxAgents: maxAgents, weights: w}
}

// MaxAgents returns the configured agent cap.
func (a *Analyzer) MaxAgents() int { return a.maxAgents }

// Analyze scores f. Out-of-range inputs are clamped.
func (a *Analyzer) Analyze(f Factors) Score {
	s := Score{
		Symptom:      symptomScore(f),
		ClinicalData: clinicalDataScore(f),
		Patient:      patientScore(f),
		Diagnostic:   diagnosticScore(f),
		Urgency:      urgencyScore(f),
	}

	w := a.weights
	s.Overall = s.Symptom*w.Symptoms +
		s.Urgency*w.Urgency +
		s.Patient*w.History +
		s.ClinicalData*w.DataVolume +
		s.Diagnostic*w.Specialties +
		s.Diagnostic*w.RareDisease
	s.Normalized = math.Min(s.Overall, 1)

	s.AgentCount = a.agentCount(s.Normalized)
	s.EstimatedProcessingTime = a.estimateSeconds(s.AgentCount, s.Normalized)
	return s
}

func symptomScore(f Factors) float64 {
	return 0.40*ratio(float64(f.SymptomCount), ceilSymptomCount) +
		0.35*ratio(f.SymptomSeverity, ceilSeverity) +
		0.25*ratio(float64(f.SymptomDurationDays), ceilDurationDays)
}

func clinicalDataScore(f Factors) float64 {
	return 0.35*clamp01(f.VitalsAbnormality) +
		0.35*clamp01(f.LabsAbnormality) +
		0.30*boolScore(f.ImagingRequired)
}

func patientScore(f Factors) float64 {
	return 0.30*AgeFactor(f.PatientAge) +
		0.25*ratio(float64(f.ComorbidityCount), ceilComorbidities) +
		0.20*ratio(float64(f.MedicationCount), ceilMedications) +
		0.10*ratio(float64(f.AllergyCount), ceilAllergies) +
		0.15*ratio(float64(f.PreviousTreatmentFailures), ceilTreatmentFailures)
}

func diagnosticScore(f Factors) float64 {
	return 0.30*ratio(float64(len(f.SpecialtiesRequired)), ceilSpecialties) +
		0.30*ratio(float64(f.DifferentialBreadth), ceilDifferentials) +
		0.25*clamp01(f.RareDiseaseSuspicion) +
		0.15*boolScore(f.MultiSystem)
}

func urgencyScore(f Factors) float64 {
	return 0.70*UrgencyFactor(f.Urgency) + 0.30*progressionFactor(f.Progression)
}

// AgeFactor maps age onto a U-shaped risk curve: children 0.8 falling to 0.5 at 18,
// adults 0.3 rising to 0.5 at 65, elderly 0.5 rising to 0.9 at 100 and beyond.
func AgeFactor(age int) float64 {
	a := float64(min(max(age, 0), maxAge))
	switch {
	case a < 18:
		return 0.8 - 0.3*(a/18)
	case a <= 65:
		return 0.3 + 0.2*((a-18)/47)
	default:
		return 0.5 + 0.4*math.Min((a-65)/35, 1)
	}
}

// UrgencyFactor is the fixed urgency lookup. Unknown tiers score as routine.
func UrgencyFactor(u Urgency) float64 {
	switch u {
	case UrgencyEmergent:
		return 1.0
	case UrgencyUrgent:
		return 0.6
	default:
		return 0.3
	}
}

func progressionFactor(p Progression) float64 {
	switch p {
	case ProgressionWorsening:
		return 1.0
	case ProgressionImproving:
		return 0.2
	default:
		return 0.5
	}
}

// band is one step of the agent-count function: scores in [start, start+bandWidth)
// interpolate from lo to hi.
type band struct {
	start  float64
	lo, hi int
}

// agentCount maps a normalized score to a recommendation in [1, maxAgents].
// Each band starts at the previous band's top value, so the function is
// non-decreasing across boundaries.
func (a *Analyzer) agentCount(s float64) int {
	s = clamp01(s)
	if s < 0.2 {
		return 1
	}
	bands := []band{
		{start: 0.8, lo: 8, hi: a.maxAgents},
		{start: 0.6, lo: 5, hi: 8},
		{start: 0.4, lo: 3, hi: 5},
		{start: 0.2, lo: 2, hi: 3},
	}
	for _, b := range bands {
		if s < b.start {
			continue
		}
		hi := max(b.hi, b.lo)
		steps := float64(hi - b.lo + 1)
		n := b.lo + int(math.Floor((s-b.start)/bandWidth*steps))
		return min(max(min(n, hi), 1), a.maxAgents)
	}
	return 1
}

func (a *Analyzer) estimateSeconds(agents int, s float64) int {
	n := float64(agents)
	secs := n * secondsPerAgent * (1 + s) * (0.7 + 0.3*n/float64(a.maxAgents))
	return int(math.Ceil(secs))
}

func ratio(v, ceiling float64) float64 {
	return clamp01(v / ceiling)
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func boolScore(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// Package complexity scores how hard a medical case is and recommends how many
// diagnostic agents should examine it.
package complexity

import "fmt"

// Urgency is the clinical urgency tier of a case.
type Urgency string

const (
	UrgencyRoutine  Urgency = "routine"
	UrgencyUrgent   Urgency = "urgent"
	UrgencyEmergent Urgency = "emergent"
)

// Progression is the trend of the presenting complaint.
type Progression string

const (
	ProgressionImproving Progression = "improving"
	ProgressionStable    Progression = "stable"
	ProgressionWorsening Progression = "worsening"
)

var validUrgencies = map[Urgency]bool{
	UrgencyRoutine:  true,
	UrgencyUrgent:   true,
	UrgencyEmergent: true,
}

var validProgressions = map[Progression]bool{
	ProgressionImproving: true,
	ProgressionStable:    true,
	ProgressionWorsening: true,
}

// ValidUrgency reports whether u is a known tier. The empty string is accepted as routine.
func ValidUrgency(u Urgency) bool { return u == "" || validUrgencies[u] }

// ValidProgression reports whether p is a known trend. The empty string is accepted as stable.
func ValidProgression(p Progression) bool { return p == "" || validProgressions[p] }

// Factors is the immutable snapshot of case signals the analyzer scores.
type Factors struct {
	SymptomCount              int         `json:"symptom_count"`
	SymptomSeverity           float64     `json:"symptom_severity"` // 0-10
	SymptomDurationDays       int         `json:"symptom_duration_days"`
	VitalsAbnormality         float64     `json:"vitals_abnormality"` // fraction 0-1
	LabsAbnormality           float64     `json:"labs_abnormality"`   // fraction 0-1
	ImagingRequired           bool        `json:"imaging_required"`
	PatientAge                int         `json:"patient_age"`
	ComorbidityCount          int         `json:"comorbidity_count"`
	MedicationCount           int         `json:"medication_count"`
	AllergyCount              int         `json:"allergy_count"`
	PreviousTreatmentFailures int         `json:"previous_treatment_failures"`
	Urgency                   Urgency     `json:"urgency"`
	SpecialtiesRequired       []string    `json:"specialties_required,omitempty"`
	DifferentialBreadth       int         `json:"differential_breadth"`
	RareDiseaseSuspicion      float64     `json:"rare_disease_suspicion"` // 0-1
	MultiSystem               bool        `json:"multi_system"`
	Progression               Progression `json:"progression"`
}

// Score is the analyzer output. All sub-scores are in [0,1].
type Score struct {
	Symptom                 float64 `json:"symptom"`
	ClinicalData            float64 `json:"clinical_data"`
	Patient                 float64 `json:"patient"`
	Diagnostic              float64 `json:"diagnostic"`
	Urgency                 float64 `json:"urgency"`
	Overall                 float64 `json:"overall"`
	Normalized              float64 `json:"normalized"`
	AgentCount              int     `json:"agent_count"`
	EstimatedProcessingTime int     `json:"estimated_processing_time_seconds"`
}

// Level buckets the normalized score for display and metrics labels.
func (s Score) Level() Level {
	switch {
	case s.Normalized >= 0.8:
		return LevelCritical
	case s.Normalized >= 0.6:
		return LevelHigh
	case s.Normalized >= 0.4:
		return LevelMedium
	default:
		return LevelLow
	}
}

func (s Score) String() string {
	return fmt.Sprintf("complexity %.3f (%s, %d agents, ~%ds)", s.Normalized, s.Level(), s.AgentCount, s.EstimatedProcessingTime)
}

// Level is a coarse complexity tier.
type Level string

const (
	LevelLow      Level = "low"
	LevelMedium   Level = "medium"
	LevelHigh     Level = "high"
	LevelCritical Level = "critical"
)

// Weights are the dimension weights of the overall score.
// The diagnostic sub-score is counted under both Specialties and RareDisease.
type Weights struct {
	Symptoms    float64
	Urgency     float64
	History     float64
	DataVolume  float64
	Specialties float64
	RareDisease float64
}

// DefaultWeights sum to 1.
func DefaultWeights() Weights {
	return Weights{
		Symptoms:    0.25,
		Urgency:     0.20,
		History:     0.15,
		DataVolume:  0.15,
		Specialties: 0.15,
		RareDisease: 0.10,
	}
}

// DefaultMaxAgents caps the agent recommendation when no limit is configured.
const DefaultMaxAgents = 12

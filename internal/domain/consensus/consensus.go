// Package consensus aggregates independent diagnostic opinions into one ranked result.
package consensus

import "fmt"

// UnableToDetermine is the primary condition reported when no agent named one.
const UnableToDetermine = "Unable to determine"

// RecommendationType classifies a recommendation.
type RecommendationType string

const (
	RecMedication RecommendationType = "medication"
	RecProcedure  RecommendationType = "procedure"
	RecLab        RecommendationType = "lab"
	RecImaging    RecommendationType = "imaging"
	RecReferral   RecommendationType = "referral"
	RecEducation  RecommendationType = "education"
	RecPreventive RecommendationType = "preventive"
)

// Priority ranks a recommendation.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// EvidenceStrength grades how well the panel supports the primary diagnosis.
type EvidenceStrength string

const (
	EvidenceWeak       EvidenceStrength = "weak"
	EvidenceModerate   EvidenceStrength = "moderate"
	EvidenceStrong     EvidenceStrength = "strong"
	EvidenceVeryStrong EvidenceStrength = "very_strong"
)

// Quality grades the consensus as a whole.
type Quality string

const (
	QualityPoor      Quality = "poor"
	QualityFair      Quality = "fair"
	QualityGood      Quality = "good"
	QualityExcellent Quality = "excellent"
)

// Diagnosis is a condition with an optional ICD-10 code.
type Diagnosis struct {
	Condition  string  `json:"condition"`
	Code       string  `json:"code,omitempty"`
	Confidence float64 `json:"confidence"`
}

// Recommendation is one suggested action. Medication orders carry the drug and dose
// so the safety gate can check them.
type Recommendation struct {
	Type            RecommendationType `json:"type"`
	Text            string             `json:"text"`
	Priority        Priority           `json:"priority,omitempty"`
	Drug            string             `json:"drug,omitempty"`
	DoseMg          float64            `json:"dose_mg,omitempty"`
	FrequencyPerDay int                `json:"frequency_per_day,omitempty"`
	Confidence      *float64           `json:"confidence,omitempty"`
}

// Critical reports whether the recommendation type acts on the patient directly.
func (r Recommendation) Critical() bool {
	return r.Type == RecMedication || r.Type == RecProcedure
}

// AgentMetadata describes how an opinion was produced.
type AgentMetadata struct {
	Model      string `json:"model,omitempty"`
	DurationMs int64  `json:"duration_ms,omitempty"`
	Tokens     int    `json:"tokens,omitempty"`
}

// AgentResult is one agent's independent opinion.
type AgentResult struct {
	AgentID          string           `json:"agent_id"`
	Specialty        string           `json:"specialty"`
	PrimaryDiagnosis *Diagnosis       `json:"primary_diagnosis,omitempty"`
	Differentials    []Diagnosis      `json:"differentials,omitempty"`
	Recommendations  []Recommendation `json:"recommendations,omitempty"`
	Findings         []string         `json:"findings,omitempty"`
	Concerns         []string         `json:"concerns,omitempty"`
	Confidence       float64          `json:"confidence"`
	Metadata         AgentMetadata    `json:"metadata,omitempty"`
}

// Primary is the consensus primary diagnosis.
type Primary struct {
	Condition        string           `json:"condition"`
	Code             string           `json:"code,omitempty"`
	Confidence       float64          `json:"confidence"`
	AgreementScore   float64          `json:"agreement_score"`
	EvidenceStrength EvidenceStrength `json:"evidence_strength"`
	SupportingAgents []string         `json:"supporting_agents,omitempty"`
}

// Dissent records an agent whose primary diagnosis differs from the consensus.
type Dissent struct {
	AgentID    string  `json:"agent_id"`
	Specialty  string  `json:"specialty,omitempty"`
	Condition  string  `json:"condition"`
	Confidence float64 `json:"confidence"`
}

// Result is the aggregated panel opinion.
type Result struct {
	Primary           Primary          `json:"primary_diagnosis"`
	Differentials     []Diagnosis      `json:"differentials"`
	Recommendations   []Recommendation `json:"recommendations"`
	OverallConfidence float64          `json:"overall_confidence"`
	Quality           Quality          `json:"consensus_quality"`
	AgentCount        int              `json:"agent_count"`
	Dissent           []Dissent        `json:"dissent,omitempty"`
	Findings          []string         `json:"findings,omitempty"`
	Concerns          []string         `json:"concerns,omitempty"`
}

// Determined reports whether the panel produced a primary diagnosis.
func (r *Result) Determined() bool {
	return r.Primary.Condition != UnableToDetermine
}

func (r *Result) String() string {
	return fmt.Sprintf("%s (agreement %.2f, confidence %.2f, %s)",
		r.Primary.Condition, r.Primary.AgreementScore, r.OverallConfidence, r.Quality)
}

// Undetermined returns the sentinel result used for empty panels and failed consultations.
func Undetermined() Result {
	return Result{
		Primary: Primary{
			Condition:        UnableToDetermine,
			EvidenceStrength: EvidenceWeak,
		},
		Differentials:   []Diagnosis{},
		Recommendations: []Recommendation{},
		Quality:         QualityPoor,
	}
}

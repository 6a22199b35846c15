// Package safety holds the medication safety rules and the verdict type
// produced when a consensus is gated before release.
package safety

import "strings"

// PatientContext is the case context the gate checks recommendations against.
type PatientContext struct {
	Medications []string `json:"medications,omitempty"`
	Allergies   []string `json:"allergies,omitempty"`
	Conditions  []string `json:"conditions,omitempty"`
	Pregnant    bool     `json:"pregnant,omitempty"`
	Age         int      `json:"age,omitempty"`
	WeightKg    float64  `json:"weight_kg,omitempty"`
}

// Severity grades an alert.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Category names the check that raised an alert.
type Category string

const (
	CategoryDose             Category = "dose"
	CategoryAllergy          Category = "allergy"
	CategoryContraindication Category = "contraindication"
	CategoryPregnancy        Category = "pregnancy"
	CategoryInteraction      Category = "interaction"
	CategoryConfidence       Category = "confidence"
)

// ViolationKind distinguishes penalty classes among violations.
type ViolationKind string

const (
	ViolationAbsoluteContraindication ViolationKind = "absolute_contraindication"
	ViolationOverdose                 ViolationKind = "overdose"
	ViolationCriticalInteraction      ViolationKind = "critical_interaction"
)

// Alert is one finding of the gate.
type Alert struct {
	Category Category      `json:"category"`
	Severity Severity      `json:"severity"`
	Kind     ViolationKind `json:"kind,omitempty"`
	Drug     string        `json:"drug,omitempty"`
	Message  string        `json:"message"`
}

// Risk is the overall risk tier.
type Risk string

const (
	RiskLow      Risk = "low"
	RiskMedium   Risk = "medium"
	RiskHigh     Risk = "high"
	RiskCritical Risk = "critical"
)

// Result is the gate verdict. An unsafe result is data, never an error.
type Result struct {
	Safe                bool     `json:"safe"`
	OverallRisk         Risk     `json:"overall_risk"`
	CriticalAlerts      []Alert  `json:"critical_alerts"`
	Warnings            []Alert  `json:"warnings"`
	Violations          []Alert  `json:"violations"`
	SafetyScore         int      `json:"safety_score"`
	RequiresHumanReview bool     `json:"requires_human_review"`
	ReviewReasons       []string `json:"review_reasons,omitempty"`
}

// Flagged reports whether the result must be surfaced for human attention.
func (r *Result) Flagged() bool {
	return !r.Safe || r.RequiresHumanReview
}

// Penalties subtracted from the starting score of 100.
const (
	PenaltyCriticalAlert            = 25
	PenaltyAbsoluteContraindication = 25
	PenaltyOverdose                 = 20
	PenaltyCriticalInteraction      = 15
	PenaltyHighWarning              = 10
	PenaltyMediumWarning            = 5
)

// DefaultConfidenceThreshold is the minimum confidence for unreviewed critical recommendations.
const DefaultConfidenceThreshold = 0.7

// normalizeDrug lowercases and trims a drug or allergy name.
func normalizeDrug(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

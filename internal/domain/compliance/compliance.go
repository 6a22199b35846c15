// Package compliance defines the regulatory pre-check and audit decision types.
package compliance

import "time"

// Action names an operation subject to compliance checks.
type Action string

const (
	ActionStartConsultation Action = "start_consultation"
	ActionReleaseResult     Action = "release_result"
)

// RiskLevel grades a compliance report.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Operation describes what is about to happen to patient data.
type Operation struct {
	Action         Action    `json:"action"`
	ConsultationID string    `json:"consultation_id,omitempty"`
	PatientID      string    `json:"patient_id"`
	RequestedBy    string    `json:"requested_by,omitempty"`
	Purpose        string    `json:"purpose,omitempty"`
	Consent        bool      `json:"consent"`
	DataCategories []string  `json:"data_categories,omitempty"`
	At             time.Time `json:"at"`
}

// Report is a compliance verdict.
type Report struct {
	Compliant  bool      `json:"compliant"`
	Violations []string  `json:"violations,omitempty"`
	Warnings   []string  `json:"warnings,omitempty"`
	RiskLevel  RiskLevel `json:"risk_level"`
}

// Decision is the audit record written once a consultation reaches a terminal state.
type Decision struct {
	ID                  string         `json:"id"`
	ConsultationID      string         `json:"consultation_id"`
	TaskID              string         `json:"task_id,omitempty"`
	PatientID           string         `json:"patient_id"`
	Actor               string         `json:"actor,omitempty"`
	Status              string         `json:"status"`
	PrimaryDiagnosis    string         `json:"primary_diagnosis"`
	AgreementScore      float64        `json:"agreement_score"`
	OverallConfidence   float64        `json:"overall_confidence"`
	AgentCount          int            `json:"agent_count"`
	Safe                bool           `json:"safe"`
	RequiresHumanReview bool           `json:"requires_human_review"`
	SafetyScore         int            `json:"safety_score"`
	Compliant           bool           `json:"compliant"`
	Details             map[string]any `json:"details,omitempty"`
	CreatedAt           time.Time      `json:"created_at"`
}

package messagequeue

import "time"

// ConsultationStartedPayload is the schema for consultations.started messages.
type ConsultationStartedPayload struct {
	ConsultationID  string    `json:"consultation_id"`
	TaskID          string    `json:"task_id"`
	AgentCount      int       `json:"agent_count"`
	ComplexityScore float64   `json:"complexity_score"`
	Urgency         string    `json:"urgency"`
	StartedAt       time.Time `json:"started_at"`
}

// ConsultationFinishedPayload is the schema for consultations.completed,
// consultations.failed, consultations.cancelled and consultations.review_required messages.
type ConsultationFinishedPayload struct {
	ConsultationID      string    `json:"consultation_id"`
	TaskID              string    `json:"task_id"`
	Status              string    `json:"status"`
	PrimaryDiagnosis    string    `json:"primary_diagnosis,omitempty"`
	AgreementScore      float64   `json:"agreement_score"`
	OverallConfidence   float64   `json:"overall_confidence"`
	Safe                bool      `json:"safe"`
	RequiresHumanReview bool      `json:"requires_human_review"`
	SafetyScore         int       `json:"safety_score"`
	Error               string    `json:"error,omitempty"`
	FinishedAt          time.Time `json:"finished_at"`
}

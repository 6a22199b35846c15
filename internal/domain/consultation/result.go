package consultation

import (
	"time"

	"github.com/Strob0t/MedForge/internal/domain/compliance"
	"github.com/Strob0t/MedForge/internal/domain/consensus"
	"github.com/Strob0t/MedForge/internal/domain/enrichment"
	"github.com/Strob0t/MedForge/internal/domain/safety"
)

// PendingResponse is returned while a consultation is still in flight.
type PendingResponse struct {
	ConsultationID           string    `json:"consultation_id"`
	TaskID                   string    `json:"task_id"`
	Status                   Status    `json:"status"`
	Progress                 int       `json:"progress"`
	CurrentStep              string    `json:"current_step,omitempty"`
	PollURL                  string    `json:"poll_url"`
	AgentCount               int       `json:"agent_count"`
	EstimatedDurationSeconds int       `json:"estimated_duration_seconds"`
	ComplexityScore          float64   `json:"complexity_score"`
	CreatedAt                time.Time `json:"created_at"`
	UpdatedAt                time.Time `json:"updated_at"`
}

// Result is the terminal outcome of a consultation. A failed consultation still
// carries a (sentinel) consensus, and an unsafe one is returned with Flagged set.
type Result struct {
	ConsultationID string             `json:"consultation_id"`
	TaskID         string             `json:"task_id"`
	Status         Status             `json:"status"`
	Consensus      consensus.Result   `json:"consensus"`
	Safety         safety.Result      `json:"safety"`
	Compliance     *compliance.Report `json:"compliance,omitempty"`
	Flagged        bool               `json:"flagged"`
	AgentCount     int                `json:"agent_count"`
	Complexity     float64            `json:"complexity_score"`
	Enrichment     enrichment.Summary `json:"enrichment"`
	Error          string             `json:"error,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
	CompletedAt    time.Time          `json:"completed_at"`
	DurationMs     int64              `json:"duration_ms"`
}

// Outcome is what a status query yields: exactly one of Pending or Final is set.
type Outcome struct {
	Pending *PendingResponse `json:"pending,omitempty"`
	Final   *Result          `json:"result,omitempty"`
}

// Done reports whether the consultation reached a terminal state.
func (o *Outcome) Done() bool { return o != nil && o.Final != nil }

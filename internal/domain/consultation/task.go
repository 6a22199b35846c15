package consultation

import (
	"time"

	"github.com/Strob0t/MedForge/internal/domain/complexity"
	"github.com/Strob0t/MedForge/internal/domain/enrichment"
	"github.com/Strob0t/MedForge/internal/domain/safety"
)

// Status is the lifecycle state of an orchestration task.
type Status string

const (
	StatusPending        Status = "pending"
	StatusSpawningAgents Status = "spawning_agents"
	StatusAnalyzing      Status = "analyzing"
	StatusCompleted      Status = "completed"
	StatusFailed         Status = "failed"
	StatusCancelled      Status = "cancelled"
)

// statusRank orders the lifecycle. Terminal states share the top rank.
var statusRank = map[Status]int{
	StatusPending:        0,
	StatusSpawningAgents: 1,
	StatusAnalyzing:      2,
	StatusCompleted:      3,
	StatusFailed:         3,
	StatusCancelled:      3,
}

// Terminal reports whether s ends the lifecycle.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Valid reports whether s is a known state.
func (s Status) Valid() bool {
	_, ok := statusRank[s]
	return ok
}

// AgentSpec describes one diagnostic agent the delegate should spawn.
type AgentSpec struct {
	Specialty string `json:"specialty"`
	Name      string `json:"name"`
	Focus     string `json:"focus,omitempty"`
}

// Task is the mutable orchestration record of one consultation.
type Task struct {
	ID          string                `json:"consultation_id"`
	TaskID      string                `json:"task_id"`
	Status      Status                `json:"status"`
	Progress    int                   `json:"progress"`
	CurrentStep string                `json:"current_step,omitempty"`
	AgentCount  int                   `json:"agent_count"`
	Agents      []AgentSpec           `json:"agents,omitempty"`
	Complexity  complexity.Score      `json:"complexity"`
	Enrichment  enrichment.Summary    `json:"enrichment"`
	Patient     safety.PatientContext `json:"-"`
	PatientID   string                `json:"-"`
	RequestedBy string                `json:"-"`
	Consent     bool                  `json:"-"`
	PollURL     string                `json:"poll_url,omitempty"`
	CreatedAt   time.Time             `json:"created_at"`
	UpdatedAt   time.Time             `json:"updated_at"`
	CompletedAt *time.Time            `json:"completed_at,omitempty"`
	Error       string                `json:"error,omitempty"`
}

// Advance moves the task forward. A transition to an earlier state, or any
// transition out of a terminal state, is ignored. Progress never decreases and
// is clamped to [0,100]. Returns whether anything changed.
func (t *Task) Advance(next Status, progress int, step string, now time.Time) bool {
	if t.Status.Terminal() || !next.Valid() {
		return false
	}
	changed := false
	if statusRank[next] > statusRank[t.Status] {
		t.Status = next
		changed = true
	}
	progress = min(max(progress, 0), 100)
	if next == StatusCompleted {
		progress = 100
	}
	if progress > t.Progress {
		t.Progress = progress
		changed = true
	}
	if step != "" && step != t.CurrentStep {
		t.CurrentStep = step
		changed = true
	}
	if t.Status.Terminal() {
		done := now
		t.CompletedAt = &done
	}
	if changed {
		t.UpdatedAt = now
	}
	return changed
}

// Fail moves the task to failed with a reason.
func (t *Task) Fail(reason string, now time.Time) {
	if t.Status.Terminal() {
		return
	}
	t.Advance(StatusFailed, t.Progress, "failed", now)
	t.Error = reason
}

// Clone returns a copy that shares no mutable state with t.
func (t *Task) Clone() *Task {
	c := *t
	c.Agents = append([]AgentSpec(nil), t.Agents...)
	c.Patient.Medications = append([]string(nil), t.Patient.Medications...)
	c.Patient.Allergies = append([]string(nil), t.Patient.Allergies...)
	c.Patient.Conditions = append([]string(nil), t.Patient.Conditions...)
	if t.CompletedAt != nil {
		done := *t.CompletedAt
		c.CompletedAt = &done
	}
	return &c
}

// Pending renders the task as a progress snapshot.
func (t *Task) Pending() *PendingResponse {
	return &PendingResponse{
		ConsultationID:           t.ID,
		TaskID:                   t.TaskID,
		Status:                   t.Status,
		Progress:                 t.Progress,
		CurrentStep:              t.CurrentStep,
		PollURL:                  t.PollURL,
		AgentCount:               t.AgentCount,
		EstimatedDurationSeconds: t.Complexity.EstimatedProcessingTime,
		ComplexityScore:          t.Complexity.Normalized,
		CreatedAt:                t.CreatedAt,
		UpdatedAt:                t.UpdatedAt,
	}
}

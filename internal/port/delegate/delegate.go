// Package delegate defines the port to the external multi-agent orchestration
// engine that spawns diagnostic agents and runs them to completion.
package delegate

import (
	"context"

	"github.com/Strob0t/MedForge/internal/domain/consensus"
	"github.com/Strob0t/MedForge/internal/domain/consultation"
)

// Task is the payload submitted to the delegate.
type Task struct {
	ConsultationID  string                   `json:"consultation_id"`
	Agents          []consultation.AgentSpec `json:"agents"`
	Priority        string                   `json:"priority"`
	Complexity      float64                  `json:"complexity_score"`
	DeadlineSeconds int                      `json:"deadline_seconds"`
	Context         map[string]any           `json:"context"`
}

// Submission acknowledges an accepted task.
type Submission struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
}

// Delegate task states.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// TaskStatus is a delegate status report. Results is populated once Status is completed.
type TaskStatus struct {
	TaskID      string                  `json:"task_id"`
	Status      string                  `json:"status"`
	Progress    int                     `json:"progress"`
	CurrentStep string                  `json:"current_step,omitempty"`
	Results     []consensus.AgentResult `json:"results,omitempty"`
	Error       string                  `json:"error,omitempty"`
}

// Orchestrator is the port interface for the delegate engine.
type Orchestrator interface {
	Submit(ctx context.Context, task Task) (*Submission, error)
	GetStatus(ctx context.Context, taskID string) (*TaskStatus, error)
	Cancel(ctx context.Context, taskID string) error
}

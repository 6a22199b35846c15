// Package notifier defines the port for alerting clinicians about consultations
// that need human review.
package notifier

import (
	"context"
	"errors"
)

// ErrNotConfigured is returned when a notifier is missing its endpoint.
var ErrNotConfigured = errors.New("notifier: not configured")

// Level is the urgency of an alert.
type Level string

const (
	LevelInfo     Level = "info"
	LevelWarning  Level = "warning"
	LevelCritical Level = "critical"
)

// Notification is the payload sent through a Notifier.
type Notification struct {
	Title          string `json:"title"`
	Message        string `json:"message"`
	Level          Level  `json:"level"`
	Source         string `json:"source"` // subject that triggered the alert
	ConsultationID string `json:"consultation_id,omitempty"`
	Link           string `json:"link,omitempty"` // where a reviewer can fetch the result
}

// Notifier is the port interface for sending alerts.
type Notifier interface {
	// Name returns the unique identifier for this notifier (e.g. "slack", "email").
	Name() string

	// Send delivers a notification.
	Send(ctx context.Context, n Notification) error
}

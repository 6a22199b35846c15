// Package compliance defines the ports for regulatory pre-checks and the
// audit trail of released decisions.
package compliance

import (
	"context"

	"github.com/Strob0t/MedForge/internal/domain/compliance"
)

// Checker validates an operation against data-protection policy.
type Checker interface {
	Validate(ctx context.Context, op compliance.Operation) (*compliance.Report, error)
}

// AuditLogger persists a decision record.
type AuditLogger interface {
	LogDecision(ctx context.Context, d compliance.Decision) error
}

// AuditReader lists persisted decisions for a consultation.
type AuditReader interface {
	ListDecisions(ctx context.Context, consultationID string) ([]compliance.Decision, error)
}

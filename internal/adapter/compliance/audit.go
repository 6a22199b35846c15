package compliance

import (
	"context"
	"errors"
	"log/slog"

	"github.com/Strob0t/MedForge/internal/domain/compliance"
	port "github.com/Strob0t/MedForge/internal/port/compliance"
)

// LogAuditor writes decisions to the structured log. The patient_id attribute
// is masked by the redacting log handler.
type LogAuditor struct{}

var _ port.AuditLogger = LogAuditor{}

// LogDecision logs d at info level.
func (LogAuditor) LogDecision(ctx context.Context, d compliance.Decision) error {
	slog.InfoContext(ctx, "audit decision",
		"consultation_id", d.ConsultationID,
		"task_id", d.TaskID,
		"patient_id", d.PatientID,
		"actor", d.Actor,
		"status", d.Status,
		"primary_diagnosis", d.PrimaryDiagnosis,
		"agreement_score", d.AgreementScore,
		"safe", d.Safe,
		"requires_human_review", d.RequiresHumanReview,
		"safety_score", d.SafetyScore,
		"compliant", d.Compliant,
	)
	return nil
}

// MultiAuditor fans a decision out to several loggers. Every logger is tried;
// the errors are joined.
type MultiAuditor []port.AuditLogger

// LogDecision writes d to every logger.
func (m MultiAuditor) LogDecision(ctx context.Context, d compliance.Decision) error {
	var errs []error
	for _, l := range m {
		if err := l.LogDecision(ctx, d); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Strob0t/MedForge/internal/domain/compliance"
	port "github.com/Strob0t/MedForge/internal/port/compliance"
)

// AuditStore persists consultation decisions in audit_decisions.
type AuditStore struct {
	db  dbtx
	now func() time.Time
}

var (
	_ port.AuditLogger = (*AuditStore)(nil)
	_ port.AuditReader = (*AuditStore)(nil)
)

// NewAuditStore creates an audit store over a pool (or any pgx querier).
func NewAuditStore(db dbtx) *AuditStore {
	return &AuditStore{db: db, now: time.Now}
}

// LogDecision inserts one decision. Missing IDs and timestamps are filled in.
func (s *AuditStore) LogDecision(ctx context.Context, d compliance.Decision) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = s.now().UTC()
	}
	details, err := jsonbObject(d.Details)
	if err != nil {
		return fmt.Errorf("log decision %s: %w", d.ConsultationID, err)
	}

	_, err = s.db.Exec(ctx,
		`INSERT INTO audit_decisions
		   (id, consultation_id, task_id, patient_id, actor, status, primary_diagnosis,
		    agreement_score, overall_confidence, agent_count, safe, requires_human_review,
		    safety_score, compliant, details, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		d.ID, d.ConsultationID, d.TaskID, d.PatientID, d.Actor, d.Status, d.PrimaryDiagnosis,
		d.AgreementScore, d.OverallConfidence, d.AgentCount, d.Safe, d.RequiresHumanReview,
		d.SafetyScore, d.Compliant, details, d.CreatedAt)
	if err != nil {
		return fmt.Errorf("log decision %s: %w", d.ConsultationID, err)
	}
	return nil
}

// ListDecisions returns the decisions recorded for a consultation, oldest first.
func (s *AuditStore) ListDecisions(ctx context.Context, consultationID string) ([]compliance.Decision, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, consultation_id, task_id, patient_id, actor, status, primary_diagnosis,
		        agreement_score, overall_confidence, agent_count, safe, requires_human_review,
		        safety_score, compliant, details, created_at
		 FROM audit_decisions WHERE consultation_id = $1 ORDER BY created_at`, consultationID)
	if err != nil {
		return nil, fmt.Errorf("list decisions %s: %w", consultationID, err)
	}
	defer rows.Close()

	var out []compliance.Decision
	for rows.Next() {
		d, err := scanDecision(rows)
		if err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list decisions %s: %w", consultationID, err)
	}
	return orEmpty(out), nil
}

func scanDecision(row scannable) (compliance.Decision, error) {
	var (
		d       compliance.Decision
		details []byte
	)
	err := row.Scan(&d.ID, &d.ConsultationID, &d.TaskID, &d.PatientID, &d.Actor, &d.Status,
		&d.PrimaryDiagnosis, &d.AgreementScore, &d.OverallConfidence, &d.AgentCount, &d.Safe,
		&d.RequiresHumanReview, &d.SafetyScore, &d.Compliant, &details, &d.CreatedAt)
	if err != nil {
		return d, err
	}
	if len(details) > 0 {
		if err := json.Unmarshal(details, &d.Details); err != nil {
			return d, fmt.Errorf("unmarshal details: %w", err)
		}
	}
	return d, nil
}

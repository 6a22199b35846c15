// Package service contains the application services of the consultation engine.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	cfotel "github.com/Strob0t/MedForge/internal/adapter/otel"
	"github.com/Strob0t/MedForge/internal/config"
	"github.com/Strob0t/MedForge/internal/domain"
	"github.com/Strob0t/MedForge/internal/domain/complexity"
	"github.com/Strob0t/MedForge/internal/domain/compliance"
	"github.com/Strob0t/MedForge/internal/domain/consensus"
	"github.com/Strob0t/MedForge/internal/domain/consultation"
	"github.com/Strob0t/MedForge/internal/domain/safety"
	"github.com/Strob0t/MedForge/internal/port/agentselect"
	"github.com/Strob0t/MedForge/internal/port/broadcast"
	"github.com/Strob0t/MedForge/internal/port/cache"
	compliancePort "github.com/Strob0t/MedForge/internal/port/compliance"
	"github.com/Strob0t/MedForge/internal/port/delegate"
	"github.com/Strob0t/MedForge/internal/port/messagequeue"
)

const (
	resultsNamespace  = "results"
	cancelGracePeriod = 5 * time.Second

	reviewAlertTimeout = 30 * time.Second
)

// PollOptions tunes PollConsultationUntilComplete. Zero values fall back to
// the configured poll interval and attempt limit.
type PollOptions struct {
	Interval    time.Duration
	MaxAttempts int
	OnProgress  func(*consultation.PendingResponse)
}

// ConsultationService is the orchestration task manager. It starts consultations,
// tracks them while the delegate runs the agent panel, and releases gated results.
type ConsultationService struct {
	analyzer *complexity.Analyzer
	enricher *EnrichmentService
	selector agentselect.Selector
	orch     delegate.Orchestrator
	gate     *SafetyGate
	checker  compliancePort.Checker
	auditor  compliancePort.AuditLogger
	cfg      *config.Consultation
	registry *TaskRegistry

	hub     broadcast.Broadcaster
	queue   messagequeue.Queue
	results cache.Cache
	metrics *cfotel.Metrics
	notify  *NotificationService

	now   func() time.Time
	newID func() string
}

// NewConsultationService creates a ConsultationService.
func NewConsultationService(
	analyzer *complexity.Analyzer,
	enricher *EnrichmentService,
	selector agentselect.Selector,
	orch delegate.Orchestrator,
	gate *SafetyGate,
	checker compliancePort.Checker,
	auditor compliancePort.AuditLogger,
	cfg *config.Consultation,
) *ConsultationService {
	return &ConsultationService{
		analyzer: analyzer,
		enricher: enricher,
		selector: selector,
		orch:     orch,
		gate:     gate,
		checker:  checker,
		auditor:  auditor,
		cfg:      cfg,
		registry: NewTaskRegistry(),
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// SetBroadcaster sets the WebSocket broadcaster for progress events.
func (s *ConsultationService) SetBroadcaster(b broadcast.Broadcaster) { s.hub = b }

// SetQueue sets the message queue for lifecycle events.
func (s *ConsultationService) SetQueue(q messagequeue.Queue) { s.queue = q }

// SetResultCache sets the cache that keeps released results retrievable.
func (s *ConsultationService) SetResultCache(c cache.Cache) { s.results = c }

// SetMetrics sets the metrics recorder.
func (s *ConsultationService) SetMetrics(m *cfotel.Metrics) { s.metrics = m }

// SetNotifications sets the channels alerted about results flagged for review.
func (s *ConsultationService) SetNotifications(n *NotificationService) { s.notify = n }

// SetClock overrides the time source.
func (s *ConsultationService) SetClock(now func() time.Time) { s.now = now }

// StartConsultation checks, scores, enriches and submits a consultation, then
// returns immediately with a pending snapshot to poll.
func (s *ConsultationService) StartConsultation(ctx context.Context, req *consultation.Request) (_ *consultation.PendingResponse, err error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	id := s.newID()
	ctx, span := cfotel.StartConsultationSpan(ctx, "start", id)
	defer func() { cfotel.EndSpan(span, err) }()

	report, err := s.checker.Validate(ctx, compliance.Operation{
		Action:         compliance.ActionStartConsultation,
		ConsultationID: id,
		PatientID:      req.Patient.ID,
		RequestedBy:    req.RequestedBy,
		Purpose:        req.Purpose,
		Consent:        req.Consent,
		DataCategories: dataCategories(req),
		At:             s.now(),
	})
	if err != nil {
		return nil, fmt.Errorf("compliance check: %w", err)
	}
	if report == nil {
		return nil, fmt.Errorf("%w: compliance check returned no report", domain.ErrComplianceRejected)
	}
	if !report.Compliant {
		slog.WarnContext(ctx, "consultation rejected by compliance check",
			"consultation_id", id, "violations", report.Violations)
		return nil, fmt.Errorf("%w: %s", domain.ErrComplianceRejected, strings.Join(report.Violations, "; "))
	}

	factors := req.Factors()
	score := s.analyzer.Analyze(factors)
	ec := s.enricher.Enrich(ctx, req)

	specs, err := s.selector.SelectAgents(ctx, score, req, ec)
	if err != nil {
		return nil, fmt.Errorf("select agents: %w", err)
	}
	task := s.selector.BuildTask(id, specs, score, req, ec)

	sub, err := s.orch.Submit(ctx, task)
	if err != nil {
		return nil, fmt.Errorf("submit consultation %s: %w", id, delegateErr(err))
	}

	now := s.now()
	t := &consultation.Task{
		ID:          id,
		TaskID:      sub.TaskID,
		Status:      consultation.StatusPending,
		CurrentStep: "submitted",
		AgentCount:  len(specs),
		Agents:      specs,
		Complexity:  score,
		Enrichment:  ec.Summarize(),
		Patient:     req.PatientContext(),
		PatientID:   req.Patient.ID,
		RequestedBy: req.RequestedBy,
		Consent:     req.Consent,
		PollURL:     s.cfg.PollURLPrefix + id,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.registry.Add(t)

	slog.InfoContext(ctx, "consultation started",
		"consultation_id", id,
		"task_id", sub.TaskID,
		"agents", len(specs),
		"complexity", score.Normalized,
		"level", score.Level(),
	)
	s.metrics.RecordStarted(ctx, string(score.Level()), score.Normalized, len(specs))
	s.publish(ctx, messagequeue.SubjectConsultationStarted, messagequeue.ConsultationStartedPayload{
		ConsultationID:  id,
		TaskID:          sub.TaskID,
		AgentCount:      len(specs),
		ComplexityScore: score.Normalized,
		Urgency:         string(factors.Urgency),
		StartedAt:       now,
	})

	pending := t.Pending()
	s.broadcast(ctx, broadcast.EventConsultationProgress, pending)
	return pending, nil
}

// GetConsultationStatus queries the delegate once and advances the task. A
// terminal delegate state is post-processed into the released result.
// A failing status query returns an error and leaves the task unchanged.
func (s *ConsultationService) GetConsultationStatus(ctx context.Context, id string) (*consultation.Outcome, error) {
	t, ok := s.registry.Get(id)
	if !ok {
		return s.finishedOutcome(ctx, id)
	}

	st, err := s.orch.GetStatus(ctx, t.TaskID)
	if err != nil {
		return nil, fmt.Errorf("consultation %s status: %w", id, delegateErr(err))
	}

	var next consultation.Status
	switch st.Status {
	case delegate.StatusPending:
		next = consultation.StatusSpawningAgents
	case delegate.StatusRunning:
		next = consultation.StatusAnalyzing
	case delegate.StatusCompleted:
		return &consultation.Outcome{Final: s.finalize(ctx, t, consultation.StatusCompleted, st.Results, "")}, nil
	case delegate.StatusFailed:
		reason := st.Error
		if reason == "" {
			reason = "delegate reported failure"
		}
		return &consultation.Outcome{Final: s.finalize(ctx, t, consultation.StatusFailed, nil, reason)}, nil
	case delegate.StatusCancelled:
		return &consultation.Outcome{Final: s.finalize(ctx, t, consultation.StatusCancelled, nil, "cancelled by delegate")}, nil
	default:
		slog.WarnContext(ctx, "unknown delegate status", "consultation_id", id, "status", st.Status)
		return &consultation.Outcome{Pending: t.Pending()}, nil
	}

	updated, changed, ok := s.registry.Update(id, func(t *consultation.Task) bool {
		return t.Advance(next, st.Progress, st.CurrentStep, s.now())
	})
	if !ok {
		return s.finishedOutcome(ctx, id)
	}
	pending := updated.Pending()
	if changed {
		slog.DebugContext(ctx, "consultation progressed",
			"consultation_id", id, "status", updated.Status, "progress", updated.Progress)
		s.broadcast(ctx, broadcast.EventConsultationProgress, pending)
	}
	return &consultation.Outcome{Pending: pending}, nil
}

// PollConsultationUntilComplete polls until the consultation is terminal.
// An unreachable delegate uses up an attempt; any other status error aborts.
// Past MaxAttempts the delegate task is cancelled on a best-effort basis, the
// consultation is recorded as failed and ErrPollTimeout is returned.
// Cancelling ctx stops waiting but leaves the consultation running.
func (s *ConsultationService) PollConsultationUntilComplete(ctx context.Context, id string, opts PollOptions) (*consultation.Result, error) {
	interval := opts.Interval
	if interval <= 0 {
		interval = s.cfg.PollInterval
	}
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = s.cfg.MaxPollAttempts
	}

	for attempt := 1; ; attempt++ {
		out, err := s.GetConsultationStatus(ctx, id)
		switch {
		case err == nil && out.Done():
			return out.Final, nil
		case err == nil:
			if opts.OnProgress != nil {
				opts.OnProgress(out.Pending)
			}
		case errors.Is(err, domain.ErrDelegateUnavailable):
			slog.WarnContext(ctx, "consultation status unavailable", "consultation_id", id, "attempt", attempt, "error", err)
		default:
			return nil, err
		}

		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if attempt >= maxAttempts {
			return nil, s.giveUp(ctx, id, attempt)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
		}
	}
}

func (s *ConsultationService) giveUp(ctx context.Context, id string, attempts int) error {
	timeoutErr := fmt.Errorf("consultation %s after %d attempts: %w", id, attempts, domain.ErrPollTimeout)
	t, ok := s.registry.Get(id)
	if !ok {
		return timeoutErr
	}

	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cancelGracePeriod)
	defer cancel()
	if err := s.orch.Cancel(cctx, t.TaskID); err != nil {
		slog.WarnContext(ctx, "cancel after poll timeout failed", "consultation_id", id, "task_id", t.TaskID, "error", err)
	}
	s.finalize(ctx, t, consultation.StatusFailed, nil, fmt.Sprintf("no result after %d status checks", attempts))
	return timeoutErr
}

// CancelConsultation cancels an in-flight consultation at the delegate and
// releases it as cancelled.
func (s *ConsultationService) CancelConsultation(ctx context.Context, id string) (*consultation.Result, error) {
	t, ok := s.registry.Get(id)
	if !ok {
		return nil, fmt.Errorf("consultation %s: %w", id, domain.ErrNotFound)
	}
	if err := s.orch.Cancel(ctx, t.TaskID); err != nil {
		return nil, fmt.Errorf("cancel consultation %s: %w", id, delegateErr(err))
	}
	slog.InfoContext(ctx, "consultation cancelled", "consultation_id", id, "task_id", t.TaskID)
	return s.finalize(ctx, t, consultation.StatusCancelled, nil, "cancelled by request"), nil
}

// ListActive returns snapshots of all in-flight consultations, oldest first.
func (s *ConsultationService) ListActive() []*consultation.PendingResponse {
	tasks := s.registry.List()
	out := make([]*consultation.PendingResponse, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t.Pending())
	}
	return out
}

// ActiveCount returns the number of in-flight consultations.
func (s *ConsultationService) ActiveCount() int { return s.registry.Len() }

// finishedOutcome looks up a released result for a consultation no longer in flight.
func (s *ConsultationService) finishedOutcome(ctx context.Context, id string) (*consultation.Outcome, error) {
	if res, ok := s.registry.Settled(id); ok {
		return &consultation.Outcome{Final: res}, nil
	}
	if res, ok := s.cachedResult(ctx, id); ok {
		return &consultation.Outcome{Final: res}, nil
	}
	return nil, fmt.Errorf("consultation %s: %w", id, domain.ErrNotFound)
}

func (s *ConsultationService) cachedResult(ctx context.Context, id string) (*consultation.Result, bool) {
	if s.results == nil {
		return nil, false
	}
	res, ok, err := cache.GetJSON[consultation.Result](ctx, s.results, cache.Key(resultsNamespace, id))
	if err != nil {
		slog.WarnContext(ctx, "result cache lookup failed", "consultation_id", id, "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	return &res, true
}

// finalize builds the released result for a terminal task. Only the caller
// that settles the task performs the side effects; a caller that loses that
// race returns the winner's result.
func (s *ConsultationService) finalize(ctx context.Context, t *consultation.Task, status consultation.Status, results []consensus.AgentResult, reason string) *consultation.Result {
	var (
		cons    consensus.Result
		verdict safety.Result
	)
	if status == consultation.StatusCompleted {
		cons = consensus.Build(results)
		verdict = s.gate.Validate(ctx, cons, t.Patient)
	} else {
		cons = consensus.Undetermined()
		verdict = unreleasedVerdict(status)
	}

	now := s.now()
	res := &consultation.Result{
		ConsultationID: t.ID,
		TaskID:         t.TaskID,
		Status:         status,
		Consensus:      cons,
		Safety:         verdict,
		Compliance:     s.releaseReport(ctx, t),
		Flagged:        verdict.Flagged(),
		AgentCount:     t.AgentCount,
		Complexity:     t.Complexity.Normalized,
		Enrichment:     t.Enrichment,
		Error:          reason,
		CreatedAt:      t.CreatedAt,
		CompletedAt:    now,
		DurationMs:     now.Sub(t.CreatedAt).Milliseconds(),
	}

	if !s.registry.Settle(t.ID, res) {
		if out, err := s.finishedOutcome(ctx, t.ID); err == nil {
			return out.Final
		}
		return res
	}

	// Side effects outlive a cancelled caller.
	ctx = context.WithoutCancel(ctx)
	s.audit(ctx, t, res)
	// The settled result stays parked in the registry unless the cache holds a copy.
	if s.results != nil {
		if err := cache.SetJSON(ctx, s.results, cache.Key(resultsNamespace, t.ID), res, s.cfg.ResultsTTL); err != nil {
			slog.WarnContext(ctx, "failed to cache consultation result, keeping it in memory", "consultation_id", t.ID, "error", err)
		} else {
			s.registry.Forget(t.ID)
		}
	}

	logAttrs := []any{
		"consultation_id", t.ID,
		"task_id", t.TaskID,
		"status", status,
		"primary_diagnosis", cons.Primary.Condition,
		"agreement", cons.Primary.AgreementScore,
		"safe", verdict.Safe,
		"requires_review", verdict.RequiresHumanReview,
		"duration_ms", res.DurationMs,
	}
	if status == consultation.StatusCompleted {
		slog.InfoContext(ctx, "consultation completed", logAttrs...)
	} else {
		slog.WarnContext(ctx, "consultation ended without result", append(logAttrs, "reason", reason)...)
	}

	s.metrics.RecordFinished(ctx, string(status), float64(res.DurationMs)/1000)
	payload := finishedPayload(res)
	switch status {
	case consultation.StatusCompleted:
		s.publish(ctx, messagequeue.SubjectConsultationCompleted, payload)
		if res.Flagged {
			s.publish(ctx, messagequeue.SubjectConsultationReviewRequired, payload)
			s.alertReview(ctx, payload)
		}
	case consultation.StatusCancelled:
		s.publish(ctx, messagequeue.SubjectConsultationCancelled, payload)
	default:
		s.publish(ctx, messagequeue.SubjectConsultationFailed, payload)
	}
	s.broadcast(ctx, broadcast.EventConsultationCompleted, payload)
	return res
}

// unreleasedVerdict is the gate verdict of a consultation that produced no
// consensus: never safe to act on and always routed to a human.
func unreleasedVerdict(status consultation.Status) safety.Result {
	return safety.Result{
		Safe:                false,
		OverallRisk:         safety.RiskHigh,
		CriticalAlerts:      []safety.Alert{},
		Warnings:            []safety.Alert{},
		Violations:          []safety.Alert{},
		RequiresHumanReview: true,
		ReviewReasons:       []string{"consultation " + string(status)},
	}
}

func (s *ConsultationService) releaseReport(ctx context.Context, t *consultation.Task) *compliance.Report {
	report, err := s.checker.Validate(ctx, compliance.Operation{
		Action:         compliance.ActionReleaseResult,
		ConsultationID: t.ID,
		PatientID:      t.PatientID,
		RequestedBy:    t.RequestedBy,
		Consent:        t.Consent,
		At:             s.now(),
	})
	if err != nil {
		slog.WarnContext(ctx, "release compliance check failed", "consultation_id", t.ID, "error", err)
		return nil
	}
	if report == nil {
		slog.WarnContext(ctx, "release compliance check returned no report", "consultation_id", t.ID)
	}
	return report
}

func (s *ConsultationService) audit(ctx context.Context, t *consultation.Task, res *consultation.Result) {
	if s.auditor == nil {
		return
	}
	d := compliance.Decision{
		ID:                  s.newID(),
		ConsultationID:      t.ID,
		TaskID:              t.TaskID,
		PatientID:           t.PatientID,
		Actor:               t.RequestedBy,
		Status:              string(res.Status),
		PrimaryDiagnosis:    res.Consensus.Primary.Condition,
		AgreementScore:      res.Consensus.Primary.AgreementScore,
		OverallConfidence:   res.Consensus.OverallConfidence,
		AgentCount:          res.AgentCount,
		Safe:                res.Safety.Safe,
		RequiresHumanReview: res.Safety.RequiresHumanReview,
		SafetyScore:         res.Safety.SafetyScore,
		Compliant:           res.Compliance != nil && res.Compliance.Compliant,
		Details: map[string]any{
			"quality":        res.Consensus.Quality,
			"overall_risk":   res.Safety.OverallRisk,
			"review_reasons": res.Safety.ReviewReasons,
			"complexity":     res.Complexity,
			"enrichment":     res.Enrichment.Contributed,
		},
		CreatedAt: res.CompletedAt,
	}
	if res.Error != "" {
		d.Details["error"] = res.Error
	}
	if err := s.auditor.LogDecision(ctx, d); err != nil {
		slog.ErrorContext(ctx, "failed to write audit decision", "consultation_id", t.ID, "error", err)
	}
}

// alertReview notifies reviewers in the background.
func (s *ConsultationService) alertReview(ctx context.Context, p messagequeue.ConsultationFinishedPayload) {
	if s.notify == nil || s.notify.NotifierCount() == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), reviewAlertTimeout)
	go func() {
		defer cancel()
		if err := s.notify.ReviewRequired(ctx, p); err != nil {
			slog.ErrorContext(ctx, "review alert not delivered", "consultation_id", p.ConsultationID, "error", err)
		}
	}()
}

func finishedPayload(res *consultation.Result) messagequeue.ConsultationFinishedPayload {
	return messagequeue.ConsultationFinishedPayload{
		ConsultationID:      res.ConsultationID,
		TaskID:              res.TaskID,
		Status:              string(res.Status),
		PrimaryDiagnosis:    res.Consensus.Primary.Condition,
		AgreementScore:      res.Consensus.Primary.AgreementScore,
		OverallConfidence:   res.Consensus.OverallConfidence,
		Safe:                res.Safety.Safe,
		RequiresHumanReview: res.Safety.RequiresHumanReview,
		SafetyScore:         res.Safety.SafetyScore,
		Error:               res.Error,
		FinishedAt:          res.CompletedAt,
	}
}

func (s *ConsultationService) publish(ctx context.Context, subject string, v any) {
	if s.queue == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		slog.ErrorContext(ctx, "marshal consultation event", "subject", subject, "error", err)
		return
	}
	if err := s.queue.Publish(ctx, subject, data); err != nil {
		slog.WarnContext(ctx, "failed to publish consultation event", "subject", subject, "error", err)
	}
}

func (s *ConsultationService) broadcast(ctx context.Context, eventType string, payload any) {
	if s.hub != nil {
		s.hub.BroadcastEvent(ctx, eventType, payload)
	}
}

// delegateErr makes sure a delegate transport error matches ErrDelegateUnavailable.
func delegateErr(err error) error {
	if errors.Is(err, domain.ErrDelegateUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrDelegateUnavailable, err)
}

// specialtyCategories maps requested specialties to special data categories.
var specialtyCategories = map[string]string{
	"medical_genetics": "genetic",
	"genetics":         "genetic",
	"psychiatry":       "mental_health",
	"addiction":        "substance_use",
}

// dataCategories lists the kinds of patient data the request shares with agents.
func dataCategories(req *consultation.Request) []string {
	cats := []string{"demographics", "symptoms"}
	if req.Vitals != nil {
		cats = append(cats, "vitals")
	}
	if len(req.Labs) > 0 {
		cats = append(cats, "labs")
	}
	if len(req.Imaging) > 0 {
		cats = append(cats, "imaging")
	}
	if len(req.Patient.Medications) > 0 {
		cats = append(cats, "medications")
	}
	if len(req.Patient.Allergies) > 0 {
		cats = append(cats, "allergies")
	}
	if len(req.Patient.Conditions) > 0 {
		cats = append(cats, "conditions")
	}
	for _, sp := range req.Specialties {
		if c, ok := specialtyCategories[normalizeName(sp)]; ok && !slices.Contains(cats, c) {
			cats = append(cats, c)
		}
	}
	return cats
}

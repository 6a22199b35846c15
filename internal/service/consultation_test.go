package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Strob0t/MedForge/internal/adapter/agentcatalog"
	complianceadapter "github.com/Strob0t/MedForge/internal/adapter/compliance"
	"github.com/Strob0t/MedForge/internal/adapter/earlywarning"
	"github.com/Strob0t/MedForge/internal/config"
	"github.com/Strob0t/MedForge/internal/domain"
	"github.com/Strob0t/MedForge/internal/domain/complexity"
	"github.com/Strob0t/MedForge/internal/domain/compliance"
	"github.com/Strob0t/MedForge/internal/domain/consensus"
	"github.com/Strob0t/MedForge/internal/domain/consultation"
	"github.com/Strob0t/MedForge/internal/port/broadcast"
	"github.com/Strob0t/MedForge/internal/port/delegate"
	port "github.com/Strob0t/MedForge/internal/port/enrichment"
	"github.com/Strob0t/MedForge/internal/port/messagequeue"
	"github.com/Strob0t/MedForge/internal/port/notifier"
)

// statusStep is one scripted answer of the fake orchestrator.
type statusStep struct {
	status *delegate.TaskStatus
	err    error
}

// fakeOrchestrator implements delegate.Orchestrator with a status script per task.
// The last step of a script repeats.
type fakeOrchestrator struct {
	mu        sync.Mutex
	next      int
	submitErr error
	cancelErr error
	submitted []delegate.Task
	cancelled []string
	scripts   map[string][]statusStep
	calls     map[string]int
}

func newFakeOrchestrator() *fakeOrchestrator {
	return &fakeOrchestrator{scripts: make(map[string][]statusStep), calls: make(map[string]int)}
}

func (f *fakeOrchestrator) Submit(_ context.Context, task delegate.Task) (*delegate.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	f.next++
	f.submitted = append(f.submitted, task)
	return &delegate.Submission{TaskID: fmt.Sprintf("task-%d", f.next), Status: delegate.StatusPending}, nil
}

func (f *fakeOrchestrator) GetStatus(_ context.Context, taskID string) (*delegate.TaskStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	script := f.scripts[taskID]
	if len(script) == 0 {
		return &delegate.TaskStatus{TaskID: taskID, Status: delegate.StatusPending}, nil
	}
	i := min(f.calls[taskID], len(script)-1)
	f.calls[taskID]++
	step := script[i]
	if step.err != nil {
		return nil, step.err
	}
	st := *step.status
	st.TaskID = taskID
	return &st, nil
}

func (f *fakeOrchestrator) Cancel(_ context.Context, taskID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancelErr != nil {
		return f.cancelErr
	}
	f.cancelled = append(f.cancelled, taskID)
	return nil
}

func (f *fakeOrchestrator) script(taskID string, steps ...statusStep) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripts[taskID] = steps
	f.calls[taskID] = 0
}

func (f *fakeOrchestrator) cancelledTasks() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.cancelled...)
}

func (f *fakeOrchestrator) submitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.submitted)
}

func running(progress int, step string) statusStep {
	return statusStep{status: &delegate.TaskStatus{Status: delegate.StatusRunning, Progress: progress, CurrentStep: step}}
}

func completed(results ...consensus.AgentResult) statusStep {
	return statusStep{status: &delegate.TaskStatus{Status: delegate.StatusCompleted, Progress: 100, Results: results}}
}

func failed(reason string) statusStep {
	return statusStep{status: &delegate.TaskStatus{Status: delegate.StatusFailed, Error: reason}}
}

// fakeAuditor records audit decisions.
type fakeAuditor struct {
	mu        sync.Mutex
	decisions []compliance.Decision
	err       error
}

func (a *fakeAuditor) LogDecision(_ context.Context, d compliance.Decision) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.decisions = append(a.decisions, d)
	return a.err
}

func (a *fakeAuditor) all() []compliance.Decision {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]compliance.Decision(nil), a.decisions...)
}

// fakeQueue records published subjects.
type fakeQueue struct {
	mu       sync.Mutex
	subjects []string
}

func (q *fakeQueue) Publish(_ context.Context, subject string, _ []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.subjects = append(q.subjects, subject)
	return nil
}

func (q *fakeQueue) Subscribe(context.Context, string, messagequeue.Handler) (func(), error) {
	return func() {}, nil
}
func (q *fakeQueue) Drain() error      { return nil }
func (q *fakeQueue) Close() error      { return nil }
func (q *fakeQueue) IsConnected() bool { return true }

func (q *fakeQueue) count(subject string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, s := range q.subjects {
		if s == subject {
			n++
		}
	}
	return n
}

// fakeHub records broadcast event types.
type fakeHub struct {
	mu     sync.Mutex
	events []string
}

func (h *fakeHub) BroadcastEvent(_ context.Context, eventType string, _ any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, eventType)
}

func (h *fakeHub) count(eventType string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, e := range h.events {
		if e == eventType {
			n++
		}
	}
	return n
}

// memCache is a map-backed cache.Cache.
type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemCache() *memCache { return &memCache{data: make(map[string][]byte)} }

func (c *memCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *memCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

func (c *memCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

// rejectingCache fails every write and never hits.
type rejectingCache struct{}

func (rejectingCache) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }
func (rejectingCache) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("value rejected")
}
func (rejectingCache) Delete(context.Context, string) error { return nil }

// silentChecker answers with neither a report nor an error.
type silentChecker struct{}

func (silentChecker) Validate(context.Context, compliance.Operation) (*compliance.Report, error) {
	return nil, nil
}

type harness struct {
	svc     *ConsultationService
	orch    *fakeOrchestrator
	auditor *fakeAuditor
	queue   *fakeQueue
	hub     *fakeHub
	results *memCache
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		orch:    newFakeOrchestrator(),
		auditor: &fakeAuditor{},
		queue:   &fakeQueue{},
		hub:     &fakeHub{},
		results: newMemCache(),
	}
	cfg := &config.Consultation{
		PollInterval:    time.Millisecond,
		MaxPollAttempts: 20,
		PollURLPrefix:   "/api/v1/consultations/",
		ResultsTTL:      time.Hour,
	}
	h.svc = NewConsultationService(
		complexity.NewAnalyzer(complexity.DefaultMaxAgents, complexity.DefaultWeights()),
		NewEnrichmentService(port.Providers{Risk: earlywarning.NewScorer()}, time.Second, 10),
		agentcatalog.NewSelector(),
		h.orch,
		NewSafetyGate(nil, &fakeDrugs{}, 0.7),
		complianceadapter.NewPolicyChecker(false),
		h.auditor,
		cfg,
	)
	h.svc.SetQueue(h.queue)
	h.svc.SetBroadcaster(h.hub)
	h.svc.SetResultCache(h.results)
	return h
}

func (h *harness) start(t *testing.T) *consultation.PendingResponse {
	t.Helper()
	p, err := h.svc.StartConsultation(context.Background(), pneumoniaRequest())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	return p
}

func opinion(agent, condition string, conf float64, recs ...consensus.Recommendation) consensus.AgentResult {
	return consensus.AgentResult{
		AgentID:          agent,
		Specialty:        "internal_medicine",
		PrimaryDiagnosis: &consensus.Diagnosis{Condition: condition, Confidence: conf},
		Recommendations:  recs,
		Confidence:       conf,
	}
}

func TestStartConsultation(t *testing.T) {
	h := newHarness(t)
	p := h.start(t)

	if p.Status != consultation.StatusPending || p.Progress != 0 {
		t.Fatalf("expected fresh pending snapshot, got %+v", p)
	}
	if p.TaskID != "task-1" || p.PollURL != "/api/v1/consultations/"+p.ConsultationID {
		t.Fatalf("unexpected ids: %+v", p)
	}
	if p.AgentCount < 1 || p.EstimatedDurationSeconds <= 0 {
		t.Fatalf("expected agents and estimate, got %+v", p)
	}

	sub := h.orch.submitted[0]
	if sub.ConsultationID != p.ConsultationID || len(sub.Agents) != p.AgentCount {
		t.Fatalf("submitted task does not match: %+v", sub)
	}
	if _, ok := sub.Context["enrichment"]; !ok {
		t.Error("enrichment evidence missing from delegate payload")
	}
	if h.svc.ActiveCount() != 1 {
		t.Fatalf("expected 1 active consultation, got %d", h.svc.ActiveCount())
	}
	if h.queue.count(messagequeue.SubjectConsultationStarted) != 1 {
		t.Error("started event not published")
	}
	if h.hub.count(broadcast.EventConsultationProgress) != 1 {
		t.Error("progress not broadcast")
	}
}

func TestStartConsultationRejections(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*consultation.Request)
		wantErr error
	}{
		{"missing patient", func(r *consultation.Request) { r.Patient.ID = "" }, domain.ErrValidation},
		{"no consent", func(r *consultation.Request) { r.Consent = false }, domain.ErrComplianceRejected},
		{"forbidden purpose", func(r *consultation.Request) { r.Purpose = "marketing" }, domain.ErrComplianceRejected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			req := pneumoniaRequest()
			tt.modify(req)

			_, err := h.svc.StartConsultation(context.Background(), req)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if h.orch.submitCount() != 0 || h.svc.ActiveCount() != 0 {
				t.Fatal("rejected consultation reached the delegate")
			}
		})
	}
}

func TestStartConsultationWithoutComplianceReport(t *testing.T) {
	h := newHarness(t)
	h.svc.checker = silentChecker{}

	_, err := h.svc.StartConsultation(context.Background(), pneumoniaRequest())
	if !errors.Is(err, domain.ErrComplianceRejected) {
		t.Fatalf("expected ErrComplianceRejected, got %v", err)
	}
	if h.orch.submitCount() != 0 {
		t.Fatal("consultation without a compliance report reached the delegate")
	}
}

func TestStartConsultationDelegateUnavailable(t *testing.T) {
	h := newHarness(t)
	h.orch.submitErr = errors.New("dial tcp: connection refused")

	_, err := h.svc.StartConsultation(context.Background(), pneumoniaRequest())
	if !errors.Is(err, domain.ErrDelegateUnavailable) {
		t.Fatalf("expected ErrDelegateUnavailable, got %v", err)
	}
	if h.svc.ActiveCount() != 0 {
		t.Fatal("failed submission must not register a task")
	}
}

func TestStatusTransitions(t *testing.T) {
	h := newHarness(t)
	p := h.start(t)
	ctx := context.Background()

	h.orch.script(p.TaskID,
		statusStep{status: &delegate.TaskStatus{Status: delegate.StatusPending, Progress: 5}},
		running(40, "agents reasoning"),
		// Stale report from the delegate.
		statusStep{status: &delegate.TaskStatus{Status: delegate.StatusPending, Progress: 10}},
	)

	want := []struct {
		status   consultation.Status
		progress int
	}{
		{consultation.StatusSpawningAgents, 5},
		{consultation.StatusAnalyzing, 40},
		{consultation.StatusAnalyzing, 40},
	}
	for i, w := range want {
		out, err := h.svc.GetConsultationStatus(ctx, p.ConsultationID)
		if err != nil {
			t.Fatalf("poll %d: %v", i, err)
		}
		if out.Done() {
			t.Fatalf("poll %d: unexpected final result", i)
		}
		if out.Pending.Status != w.status || out.Pending.Progress != w.progress {
			t.Errorf("poll %d: got %s/%d, want %s/%d", i, out.Pending.Status, out.Pending.Progress, w.status, w.progress)
		}
	}
}

func TestStatusErrorLeavesTaskUnchanged(t *testing.T) {
	h := newHarness(t)
	p := h.start(t)
	h.orch.script(p.TaskID, statusStep{err: errors.New("timeout")})

	_, err := h.svc.GetConsultationStatus(context.Background(), p.ConsultationID)
	if !errors.Is(err, domain.ErrDelegateUnavailable) {
		t.Fatalf("expected ErrDelegateUnavailable, got %v", err)
	}
	active := h.svc.ListActive()
	if len(active) != 1 || active[0].Status != consultation.StatusPending {
		t.Fatalf("task changed on failed status query: %+v", active)
	}
}

func TestStatusUnknownConsultation(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.GetConsultationStatus(context.Background(), "does-not-exist")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCompletedConsultation(t *testing.T) {
	h := newHarness(t)
	p := h.start(t)
	amox := prescribe("amoxicillin", 500, 3)
	h.orch.script(p.TaskID, completed(
		opinion("a1", "Community-acquired pneumonia", 0.9, amox),
		opinion("a2", "Community-acquired pneumonia", 0.8, amox),
		opinion("a3", "Acute bronchitis", 0.6),
	))

	out, err := h.svc.GetConsultationStatus(context.Background(), p.ConsultationID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	res := out.Final
	if res == nil || res.Status != consultation.StatusCompleted {
		t.Fatalf("expected completed result, got %+v", out)
	}
	if res.Consensus.Primary.Condition != "Community-acquired pneumonia" {
		t.Errorf("primary = %q", res.Consensus.Primary.Condition)
	}
	if len(res.Consensus.Dissent) != 1 {
		t.Errorf("expected one dissenting agent, got %+v", res.Consensus.Dissent)
	}
	if !res.Safety.Safe || res.Flagged {
		t.Errorf("clean amoxicillin course should pass the gate: %+v", res.Safety)
	}
	if res.Compliance == nil || !res.Compliance.Compliant {
		t.Errorf("expected compliant release report, got %+v", res.Compliance)
	}
	if h.svc.ActiveCount() != 0 {
		t.Error("completed consultation still active")
	}

	decisions := h.auditor.all()
	if len(decisions) != 1 {
		t.Fatalf("expected one audit decision, got %d", len(decisions))
	}
	if d := decisions[0]; d.PatientID != "P-100" || d.Status != "completed" || d.Actor != "dr.lee" {
		t.Errorf("unexpected audit decision %+v", d)
	}
	if h.queue.count(messagequeue.SubjectConsultationCompleted) != 1 {
		t.Error("completed event not published")
	}
	if h.hub.count(broadcast.EventConsultationCompleted) != 1 {
		t.Error("completion not broadcast")
	}

	// The released result stays retrievable.
	again, err := h.svc.GetConsultationStatus(context.Background(), p.ConsultationID)
	if err != nil || again.Final == nil {
		t.Fatalf("expected cached result, got %+v, %v", again, err)
	}
	if again.Final.Consensus.Primary.Condition != res.Consensus.Primary.Condition {
		t.Error("cached result differs")
	}
}

func TestCompletedUnsafeConsultationIsFlagged(t *testing.T) {
	h := newHarness(t)
	alerts := &mockNotifier{name: "pager"}
	h.svc.SetNotifications(NewNotificationService([]notifier.Notifier{alerts}, "/api/v1/consultations/"))
	req := pneumoniaRequest()
	req.Patient.Allergies = []string{"penicillin"}
	p, err := h.svc.StartConsultation(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	h.orch.script(p.TaskID, completed(
		opinion("a1", "Pneumonia", 0.9, prescribe("amoxicillin", 500, 3)),
	))

	out, err := h.svc.GetConsultationStatus(context.Background(), p.ConsultationID)
	if err != nil {
		t.Fatalf("unsafe result is data, not an error: %v", err)
	}
	if out.Final.Safety.Safe || !out.Final.Flagged {
		t.Fatalf("expected flagged unsafe result, got %+v", out.Final.Safety)
	}
	if h.queue.count(messagequeue.SubjectConsultationReviewRequired) != 1 {
		t.Error("review_required event not published")
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(alerts.notifications()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	sent := alerts.notifications()
	if len(sent) != 1 {
		t.Fatalf("expected one review alert, got %d", len(sent))
	}
	if sent[0].Level != notifier.LevelCritical || sent[0].ConsultationID != p.ConsultationID {
		t.Errorf("unexpected alert %+v", sent[0])
	}
}

func TestFailedConsultation(t *testing.T) {
	h := newHarness(t)
	p := h.start(t)
	h.orch.script(p.TaskID, failed("agent pool exhausted"))

	out, err := h.svc.GetConsultationStatus(context.Background(), p.ConsultationID)
	if err != nil {
		t.Fatalf("delegate failure is a result, not an error: %v", err)
	}
	res := out.Final
	if res.Status != consultation.StatusFailed || res.Error != "agent pool exhausted" {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.Consensus.Primary.Condition != consensus.UnableToDetermine {
		t.Errorf("expected sentinel consensus, got %q", res.Consensus.Primary.Condition)
	}
	if res.Safety.Safe || !res.Flagged {
		t.Error("failed consultation must be flagged")
	}
	if h.queue.count(messagequeue.SubjectConsultationFailed) != 1 {
		t.Error("failed event not published")
	}
	if len(h.auditor.all()) != 1 {
		t.Error("failed consultation must be audited")
	}
}

func TestResultKeptWhenCacheWriteFails(t *testing.T) {
	h := newHarness(t)
	h.svc.SetResultCache(rejectingCache{})
	p := h.start(t)
	h.orch.script(p.TaskID, completed(opinion("a1", "Pneumonia", 0.6, prescribe("amoxicillin", 500, 3))))

	first, err := h.svc.GetConsultationStatus(context.Background(), p.ConsultationID)
	if err != nil || first.Final == nil {
		t.Fatalf("expected final result, got %+v, %v", first, err)
	}
	again, err := h.svc.GetConsultationStatus(context.Background(), p.ConsultationID)
	if err != nil {
		t.Fatalf("released result lost after cache write failure: %v", err)
	}
	if again.Final == nil || again.Final.Flagged != first.Final.Flagged ||
		again.Final.Consensus.Primary.Condition != "Pneumonia" {
		t.Fatalf("expected the same result, got %+v", again.Final)
	}
}

func TestCachedResultLeavesRegistry(t *testing.T) {
	h := newHarness(t)
	p := h.start(t)
	h.orch.script(p.TaskID, completed(opinion("a1", "Pneumonia", 0.85)))

	if _, err := h.svc.GetConsultationStatus(context.Background(), p.ConsultationID); err != nil {
		t.Fatalf("status: %v", err)
	}
	if _, ok := h.svc.registry.Settled(p.ConsultationID); ok {
		t.Error("cached result should no longer be parked in the registry")
	}
}

func TestPollUntilComplete(t *testing.T) {
	h := newHarness(t)
	p := h.start(t)
	h.orch.script(p.TaskID,
		running(20, "spawning"),
		statusStep{err: errors.New("502 bad gateway")},
		running(70, "deliberating"),
		completed(opinion("a1", "Pneumonia", 0.85)),
	)

	var progress []int
	res, err := h.svc.PollConsultationUntilComplete(context.Background(), p.ConsultationID, PollOptions{
		OnProgress: func(p *consultation.PendingResponse) { progress = append(progress, p.Progress) },
	})
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if res.Status != consultation.StatusCompleted || res.Consensus.Primary.Condition != "Pneumonia" {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(progress) != 2 || progress[0] != 20 || progress[1] != 70 {
		t.Errorf("progress callbacks = %v, want [20 70]", progress)
	}
}

func TestPollTimeout(t *testing.T) {
	h := newHarness(t)
	p := h.start(t)
	h.orch.script(p.TaskID, running(50, "deliberating"))

	_, err := h.svc.PollConsultationUntilComplete(context.Background(), p.ConsultationID, PollOptions{MaxAttempts: 3})
	if !errors.Is(err, domain.ErrPollTimeout) {
		t.Fatalf("expected ErrPollTimeout, got %v", err)
	}
	if got := h.orch.cancelledTasks(); len(got) != 1 || got[0] != p.TaskID {
		t.Errorf("expected delegate cancel of %s, got %v", p.TaskID, got)
	}
	if h.svc.ActiveCount() != 0 {
		t.Error("timed out consultation still active")
	}

	out, err := h.svc.GetConsultationStatus(context.Background(), p.ConsultationID)
	if err != nil || out.Final.Status != consultation.StatusFailed {
		t.Fatalf("expected failed result after timeout, got %+v, %v", out, err)
	}
}

func TestPollStopsOnContextCancel(t *testing.T) {
	h := newHarness(t)
	p := h.start(t)
	h.orch.script(p.TaskID, running(50, "deliberating"))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := h.svc.PollConsultationUntilComplete(ctx, p.ConsultationID, PollOptions{
		Interval:    5 * time.Millisecond,
		MaxAttempts: 1000,
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if h.svc.ActiveCount() != 1 || len(h.orch.cancelledTasks()) != 0 {
		t.Fatal("abandoning the wait must leave the consultation running")
	}
}

func TestPollContextCancelledOnLastAttempt(t *testing.T) {
	h := newHarness(t)
	p := h.start(t)
	h.orch.script(p.TaskID, running(50, "deliberating"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_, err := h.svc.PollConsultationUntilComplete(ctx, p.ConsultationID, PollOptions{
		MaxAttempts: 1,
		OnProgress:  func(*consultation.PendingResponse) { cancel() },
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if h.svc.ActiveCount() != 1 || len(h.orch.cancelledTasks()) != 0 {
		t.Fatal("a cancelled wait must not cancel the consultation")
	}
}

func TestCancelConsultation(t *testing.T) {
	h := newHarness(t)
	p := h.start(t)

	res, err := h.svc.CancelConsultation(context.Background(), p.ConsultationID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if res.Status != consultation.StatusCancelled || !res.Flagged {
		t.Fatalf("unexpected result %+v", res)
	}
	if h.queue.count(messagequeue.SubjectConsultationCancelled) != 1 {
		t.Error("cancelled event not published")
	}
	if _, err := h.svc.CancelConsultation(context.Background(), p.ConsultationID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("second cancel: expected ErrNotFound, got %v", err)
	}
}

func TestCancelConsultationDelegateError(t *testing.T) {
	h := newHarness(t)
	p := h.start(t)
	h.orch.cancelErr = errors.New("503")

	if _, err := h.svc.CancelConsultation(context.Background(), p.ConsultationID); !errors.Is(err, domain.ErrDelegateUnavailable) {
		t.Fatalf("expected ErrDelegateUnavailable, got %v", err)
	}
	if h.svc.ActiveCount() != 1 {
		t.Fatal("consultation should stay active when the delegate refuses to cancel")
	}
}

func TestListActive(t *testing.T) {
	h := newHarness(t)
	clock := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	h.svc.SetClock(func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	})
	first := h.start(t)
	second := h.start(t)

	active := h.svc.ListActive()
	if len(active) != 2 || active[0].ConsultationID != first.ConsultationID || active[1].ConsultationID != second.ConsultationID {
		t.Fatalf("expected oldest first, got %+v", active)
	}
}

func TestConcurrentStatusSettlesOnce(t *testing.T) {
	h := newHarness(t)
	p := h.start(t)
	h.orch.script(p.TaskID, completed(opinion("a1", "Pneumonia", 0.9)))

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := h.svc.GetConsultationStatus(context.Background(), p.ConsultationID)
			if err != nil {
				errs <- err
				return
			}
			if !out.Done() {
				errs <- errors.New("expected final result")
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
	if n := len(h.auditor.all()); n != 1 {
		t.Fatalf("expected exactly one audit decision, got %d", n)
	}
}

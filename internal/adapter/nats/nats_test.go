package nats

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/Strob0t/MedForge/internal/logger"
	"github.com/Strob0t/MedForge/internal/port/messagequeue"
)

// fakeJetStream records published messages. Only PublishMsg is implemented.
type fakeJetStream struct {
	jetstream.JetStream

	mu         sync.Mutex
	publishErr error
	published  []*nats.Msg
}

func (f *fakeJetStream) PublishMsg(_ context.Context, msg *nats.Msg, _ ...jetstream.PublishOpt) (*jetstream.PubAck, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return nil, f.publishErr
	}
	f.published = append(f.published, msg)
	return &jetstream.PubAck{Stream: streamName}, nil
}

func (f *fakeJetStream) sent() []*nats.Msg {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*nats.Msg(nil), f.published...)
}

// fakeMsg is a delivered message that records how it was settled.
type fakeMsg struct {
	jetstream.Msg

	subject string
	data    []byte
	header  nats.Header
	settled string
}

func (m *fakeMsg) Subject() string      { return m.subject }
func (m *fakeMsg) Data() []byte         { return m.data }
func (m *fakeMsg) Headers() nats.Header { return m.header }

func (m *fakeMsg) Ack() error {
	m.settled = "ack"
	return nil
}

func (m *fakeMsg) Nak() error {
	m.settled = "nak"
	return nil
}

func (m *fakeMsg) Term() error {
	m.settled = "term"
	return nil
}

func finishedEvent(t *testing.T, id string) []byte {
	t.Helper()
	data, err := json.Marshal(messagequeue.ConsultationFinishedPayload{
		ConsultationID:      id,
		TaskID:              "task-7",
		Status:              "completed",
		PrimaryDiagnosis:    "Pulmonary embolism",
		RequiresHumanReview: true,
		SafetyScore:         55,
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}

func TestPublishCarriesRequestID(t *testing.T) {
	js := &fakeJetStream{}
	q := &Queue{js: js}
	ctx := logger.WithRequestID(context.Background(), "req-42")

	if err := q.Publish(ctx, messagequeue.SubjectConsultationStarted, []byte(`{"consultation_id":"c-1"}`)); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	sent := js.sent()
	if len(sent) != 1 || sent[0].Subject != messagequeue.SubjectConsultationStarted {
		t.Fatalf("unexpected publish %+v", sent)
	}
	if got := sent[0].Header.Get(headerRequestID); got != "req-42" {
		t.Errorf("request id header = %q, want req-42", got)
	}
}

func TestPublishWrapsError(t *testing.T) {
	q := &Queue{js: &fakeJetStream{publishErr: errors.New("no responders")}}
	err := q.Publish(context.Background(), messagequeue.SubjectConsultationFailed, []byte(`{}`))
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestHandleDeliversReviewRequired(t *testing.T) {
	js := &fakeJetStream{}
	q := &Queue{js: js}
	msg := &fakeMsg{
		subject: messagequeue.SubjectConsultationReviewRequired,
		data:    finishedEvent(t, "c-9"),
		header:  nats.Header{headerRequestID: []string{"req-9"}},
	}

	var got messagequeue.ConsultationFinishedPayload
	var gotReqID string
	q.handle(msg, func(ctx context.Context, subject string, data []byte) error {
		gotReqID = logger.RequestID(ctx)
		return json.Unmarshal(data, &got)
	})

	if msg.settled != "ack" {
		t.Fatalf("expected ack, got %q", msg.settled)
	}
	if got.ConsultationID != "c-9" || !got.RequiresHumanReview {
		t.Errorf("handler saw %+v", got)
	}
	if gotReqID != "req-9" {
		t.Errorf("request id = %q, want req-9", gotReqID)
	}
	if len(js.sent()) != 0 {
		t.Error("a handled message must not be republished")
	}
}

func TestHandleInvalidPayloadDeadLettered(t *testing.T) {
	tests := []struct {
		name    string
		subject string
		data    string
	}{
		{"not json", messagequeue.SubjectConsultationReviewRequired, "not-json"},
		{"started without id", messagequeue.SubjectConsultationStarted, `{"task_id":"task-1"}`},
		{"completed with wrong type", messagequeue.SubjectConsultationCompleted, `{"consultation_id":5}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			js := &fakeJetStream{}
			q := &Queue{js: js}
			msg := &fakeMsg{subject: tt.subject, data: []byte(tt.data), header: nats.Header{}}

			called := false
			q.handle(msg, func(context.Context, string, []byte) error {
				called = true
				return nil
			})

			if called {
				t.Fatal("handler ran for an invalid payload")
			}
			sent := js.sent()
			if len(sent) != 1 || sent[0].Subject != tt.subject+dlqSuffix || string(sent[0].Data) != tt.data {
				t.Fatalf("expected one dlq message, got %+v", sent)
			}
			if msg.settled != "term" {
				t.Errorf("expected term, got %q", msg.settled)
			}
		})
	}
}

func TestHandleFailureRetries(t *testing.T) {
	js := &fakeJetStream{}
	q := &Queue{js: js}
	msg := &fakeMsg{
		subject: messagequeue.SubjectConsultationCompleted,
		data:    finishedEvent(t, "c-2"),
		header:  nats.Header{headerRequestID: []string{"req-2"}},
	}

	q.handle(msg, func(context.Context, string, []byte) error { return errors.New("audit sink down") })

	sent := js.sent()
	if len(sent) != 1 || sent[0].Subject != messagequeue.SubjectConsultationCompleted {
		t.Fatalf("expected a retry on the same subject, got %+v", sent)
	}
	if got := retryCount(sent[0].Header); got != 1 {
		t.Errorf("retry count = %d, want 1", got)
	}
	if sent[0].Header.Get(headerRequestID) != "req-2" {
		t.Error("retry dropped the request id")
	}
	if msg.settled != "ack" {
		t.Errorf("original should be acked after republish, got %q", msg.settled)
	}
	if msg.header.Get(headerRetryCount) != "" {
		t.Error("retry mutated the delivered message headers")
	}
}

func TestHandleRetryExhaustionDeadLetters(t *testing.T) {
	js := &fakeJetStream{}
	q := &Queue{js: js}
	msg := &fakeMsg{
		subject: messagequeue.SubjectConsultationFailed,
		data:    finishedEvent(t, "c-3"),
		header:  nats.Header{headerRetryCount: []string{"3"}},
	}

	q.handle(msg, func(context.Context, string, []byte) error { return errors.New("still failing") })

	sent := js.sent()
	if len(sent) != 1 || sent[0].Subject != messagequeue.SubjectConsultationFailed+dlqSuffix {
		t.Fatalf("expected dlq after %d retries, got %+v", maxRetries, sent)
	}
	if msg.settled != "term" {
		t.Errorf("expected term, got %q", msg.settled)
	}
}

func TestHandleNaksWhenRepublishFails(t *testing.T) {
	q := &Queue{js: &fakeJetStream{publishErr: errors.New("stream unavailable")}}
	msg := &fakeMsg{
		subject: messagequeue.SubjectConsultationCancelled,
		data:    finishedEvent(t, "c-4"),
		header:  nats.Header{},
	}

	q.handle(msg, func(context.Context, string, []byte) error { return errors.New("boom") })

	if msg.settled != "nak" {
		t.Errorf("expected nak so the broker redelivers, got %q", msg.settled)
	}
}

func TestRetryCount(t *testing.T) {
	tests := []struct {
		name string
		val  string
		want int
	}{
		{"missing", "", 0},
		{"numeric", "2", 2},
		{"garbage", "two", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := nats.Header{}
			if tt.val != "" {
				h.Set(headerRetryCount, tt.val)
			}
			if got := retryCount(h); got != tt.want {
				t.Errorf("retryCount = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestCopyHeaderIsDeep(t *testing.T) {
	h := nats.Header{}
	h.Set(headerRequestID, "req-1")
	c := copyHeader(h)
	c.Set(headerRequestID, "req-2")
	if h.Get(headerRequestID) != "req-1" {
		t.Error("copy shares storage with the original header")
	}
}

// The tests below need a JetStream server at NATS_URL.

func connectServer(t *testing.T) *Queue {
	t.Helper()
	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("requires NATS_URL")
	}
	q, err := Connect(context.Background(), url)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { _ = q.Close() })
	return q
}

func TestServerReviewRequiredRoundTrip(t *testing.T) {
	q := connectServer(t)
	if !q.IsConnected() {
		t.Fatal("expected connection after Connect")
	}
	ctx := context.Background()
	id := "c-" + time.Now().Format("150405.000000")

	got := make(chan string, 16)
	stop, err := q.Subscribe(ctx, messagequeue.SubjectConsultationReviewRequired, func(ctx context.Context, _ string, data []byte) error {
		var p messagequeue.ConsultationFinishedPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return err
		}
		if p.ConsultationID == id {
			got <- logger.RequestID(ctx)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer stop()

	pubCtx := logger.WithRequestID(ctx, "req-"+id)
	if err := q.Publish(pubCtx, messagequeue.SubjectConsultationReviewRequired, finishedEvent(t, id)); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case reqID := <-got:
		if reqID != "req-"+id {
			t.Errorf("request id = %q, want %q", reqID, "req-"+id)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for review_required event")
	}
}

func TestServerResultsBucket(t *testing.T) {
	q := connectServer(t)
	ctx := context.Background()

	kv, err := q.KeyValue(ctx, "medforge-results-test", time.Minute)
	if err != nil {
		t.Fatalf("KeyValue: %v", err)
	}
	// A second call opens the existing bucket.
	if _, err := q.KeyValue(ctx, "medforge-results-test", time.Minute); err != nil {
		t.Fatalf("KeyValue reopen: %v", err)
	}

	if _, err := kv.Put(ctx, "results.c-1", finishedEvent(t, "c-1")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	entry, err := kv.Get(ctx, "results.c-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if err := messagequeue.Validate(messagequeue.SubjectConsultationCompleted, entry.Value()); err != nil {
		t.Errorf("stored result no longer validates: %v", err)
	}
	if err := kv.Delete(ctx, "results.c-1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
}

package restclient_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Strob0t/MedForge/internal/adapter/restclient"
	"github.com/Strob0t/MedForge/internal/logger"
	"github.com/Strob0t/MedForge/internal/resilience"
)

type echo struct {
	Name string `json:"name"`
}

func TestDoJSON_RoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/echo" {
			t.Fatalf("unexpected %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Fatalf("unexpected auth: %q", got)
		}
		if got := r.Header.Get("X-Request-ID"); got != "req-7" {
			t.Fatalf("expected request id to propagate, got %q", got)
		}
		var in echo
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			t.Fatalf("decode: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(echo{Name: in.Name + "!"})
	}))
	defer srv.Close()

	c := restclient.New("echo", srv.URL+"/", "test-key", time.Second)
	ctx := logger.WithRequestID(context.Background(), "req-7")

	var out echo
	if err := c.DoJSON(ctx, http.MethodPost, "/echo", echo{Name: "hi"}, &out); err != nil {
		t.Fatalf("DoJSON: %v", err)
	}
	if out.Name != "hi!" {
		t.Fatalf("expected hi!, got %q", out.Name)
	}
}

func TestDoJSON_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error":"bad agents"}`))
	}))
	defer srv.Close()

	c := restclient.New("delegate", srv.URL, "", time.Second)
	err := c.DoJSON(context.Background(), http.MethodGet, "/x", nil, nil)
	if !restclient.IsStatus(err, http.StatusUnprocessableEntity) {
		t.Fatalf("expected 422 status error, got %v", err)
	}
	var se *restclient.StatusError
	if !errors.As(err, &se) || se.Service != "delegate" {
		t.Fatalf("expected delegate StatusError, got %#v", err)
	}
}

func TestDoJSON_ClientErrorsDoNotTripBreaker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	b := resilience.NewBreaker(2, time.Minute)
	c := restclient.New("delegate", srv.URL, "", time.Second)
	c.SetBreaker(b)

	for range 5 {
		err := c.DoJSON(context.Background(), http.MethodGet, "/tasks/x", nil, nil)
		if !restclient.IsStatus(err, http.StatusNotFound) {
			t.Fatalf("expected 404, got %v", err)
		}
	}
	if b.State() != resilience.StateClosed {
		t.Fatalf("expected breaker closed, got %s", b.State())
	}
}

func TestDoJSON_ServerErrorsTripBreaker(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := restclient.New("delegate", srv.URL, "", time.Second)
	c.SetBreaker(resilience.NewBreaker(2, time.Minute))

	for range 2 {
		_ = c.DoJSON(context.Background(), http.MethodGet, "/", nil, nil)
	}
	err := c.DoJSON(context.Background(), http.MethodGet, "/", nil, nil)
	if !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected open breaker to short-circuit, server saw %d calls", calls.Load())
	}
}

func TestDoJSON_MalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{not json`))
	}))
	defer srv.Close()

	c := restclient.New("literature", srv.URL, "", time.Second)
	var out echo
	if err := c.DoJSON(context.Background(), http.MethodGet, "/", nil, &out); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestDoJSON_KeySource(t *testing.T) {
	var seen atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen.Store(r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	key := "first"
	c := restclient.New("rotating", srv.URL, "static", time.Second)
	c.SetKeySource(func() string { return key })

	for _, want := range []string{"first", "second"} {
		key = want
		if err := c.DoJSON(context.Background(), http.MethodGet, "/", nil, nil); err != nil {
			t.Fatalf("DoJSON: %v", err)
		}
		if got := seen.Load(); got != "Bearer "+want {
			t.Fatalf("expected bearer %q, got %v", want, got)
		}
	}

	c.SetKeySource(func() string { return "" })
	if err := c.DoJSON(context.Background(), http.MethodGet, "/", nil, nil); err != nil {
		t.Fatalf("DoJSON: %v", err)
	}
	if got := seen.Load(); got != "" {
		t.Fatalf("expected no auth header, got %v", got)
	}
}

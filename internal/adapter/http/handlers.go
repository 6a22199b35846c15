package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/Strob0t/MedForge/internal/domain/complexity"
	"github.com/Strob0t/MedForge/internal/domain/consultation"
	"github.com/Strob0t/MedForge/internal/middleware"
	compliancePort "github.com/Strob0t/MedForge/internal/port/compliance"
	"github.com/Strob0t/MedForge/internal/service"
)

const (
	defaultWait = 25 * time.Second
	maxWait     = 45 * time.Second
)

// Handlers holds the HTTP handler dependencies.
type Handlers struct {
	Consultations *service.ConsultationService
	Analyzer      *complexity.Analyzer
	Audit         compliancePort.AuditReader // nil when no audit store is configured
}

// StartConsultation handles POST /api/v1/consultations.
func (h *Handlers) StartConsultation(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[consultation.Request](w, r, maxRequestBodySize)
	if !ok {
		return
	}
	if req.RequestedBy == "" {
		if p := middleware.PrincipalFromContext(r.Context()); p != middleware.AnonymousPrincipal {
			req.RequestedBy = p
		}
	}

	pending, err := h.Consultations.StartConsultation(r.Context(), &req)
	if err != nil {
		writeDomainError(w, err, "consultation not found")
		return
	}
	w.Header().Set("Location", pending.PollURL)
	writeJSON(w, http.StatusAccepted, pending)
}

// ListConsultations handles GET /api/v1/consultations.
func (h *Handlers) ListConsultations(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.Consultations.ListActive())
}

// GetConsultation handles GET /api/v1/consultations/{id}.
// It answers 202 with progress while the consultation runs and 200 with the result.
func (h *Handlers) GetConsultation(w http.ResponseWriter, r *http.Request) {
	out, err := h.Consultations.GetConsultationStatus(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "consultation not found")
		return
	}
	writeOutcome(w, out)
}

// WaitConsultation handles POST /api/v1/consultations/{id}/wait?timeout=30s.
// It polls until the consultation finishes or the wait elapses, in which case
// the current progress is returned with 202.
func (h *Handlers) WaitConsultation(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	wait := defaultWait
	if v := r.URL.Query().Get("timeout"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			writeError(w, http.StatusBadRequest, "timeout must be a positive duration")
			return
		}
		wait = min(d, maxWait)
	}

	ctx, cancel := context.WithTimeout(r.Context(), wait)
	defer cancel()

	res, err := h.Consultations.PollConsultationUntilComplete(ctx, id, service.PollOptions{})
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, res)
	case errors.Is(err, context.DeadlineExceeded) && r.Context().Err() == nil:
		h.GetConsultation(w, r)
	default:
		writeDomainError(w, err, "consultation not found")
	}
}

// CancelConsultation handles DELETE /api/v1/consultations/{id}.
func (h *Handlers) CancelConsultation(w http.ResponseWriter, r *http.Request) {
	res, err := h.Consultations.CancelConsultation(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "consultation not found")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ListAuditDecisions handles GET /api/v1/consultations/{id}/audit.
func (h *Handlers) ListAuditDecisions(w http.ResponseWriter, r *http.Request) {
	if h.Audit == nil {
		writeError(w, http.StatusNotImplemented, "audit store not configured")
		return
	}
	decisions, err := h.Audit.ListDecisions(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, decisions)
}

type analyzeResponse struct {
	complexity.Score
	Level complexity.Level `json:"level"`
}

// AnalyzeComplexity handles POST /api/v1/complexity/analyze.
func (h *Handlers) AnalyzeComplexity(w http.ResponseWriter, r *http.Request) {
	f, ok := readJSON[complexity.Factors](w, r, maxRequestBodySize)
	if !ok {
		return
	}
	if !complexity.ValidUrgency(f.Urgency) || !complexity.ValidProgression(f.Progression) {
		writeError(w, http.StatusBadRequest, "invalid urgency or progression")
		return
	}
	score := h.Analyzer.Analyze(f)
	writeJSON(w, http.StatusOK, analyzeResponse{Score: score, Level: score.Level()})
}

type quickCheckRequest struct {
	SymptomCount     int                `json:"symptom_count"`
	Urgency          complexity.Urgency `json:"urgency"`
	ComorbidityCount int                `json:"comorbidity_count"`
}

// QuickCheck handles POST /api/v1/complexity/quick-check.
func (h *Handlers) QuickCheck(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[quickCheckRequest](w, r, maxRequestBodySize)
	if !ok {
		return
	}
	if req.SymptomCount < 0 || req.ComorbidityCount < 0 {
		writeError(w, http.StatusBadRequest, "counts must be non-negative")
		return
	}
	if !complexity.ValidUrgency(req.Urgency) {
		writeError(w, http.StatusBadRequest, "invalid urgency")
		return
	}
	writeJSON(w, http.StatusOK, h.Analyzer.QuickCheck(req.SymptomCount, req.Urgency, req.ComorbidityCount))
}

func writeOutcome(w http.ResponseWriter, out *consultation.Outcome) {
	if out.Done() {
		writeJSON(w, http.StatusOK, out.Final)
		return
	}
	writeJSON(w, http.StatusAccepted, out.Pending)
}

package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Version is reported by GET /api/v1/.
const Version = "0.1.0"

// MountRoutes registers all API routes on the given chi router.
func MountRoutes(r chi.Router, h *Handlers) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"version": Version})
		})

		// Consultations
		r.Post("/consultations", h.StartConsultation)
		r.Get("/consultations", h.ListConsultations)
		r.Get("/consultations/{id}", h.GetConsultation)
		r.Post("/consultations/{id}/wait", h.WaitConsultation)
		r.Delete("/consultations/{id}", h.CancelConsultation)
		r.Get("/consultations/{id}/audit", h.ListAuditDecisions)

		// Complexity
		r.Post("/complexity/analyze", h.AnalyzeComplexity)
		r.Post("/complexity/quick-check", h.QuickCheck)
	})
}

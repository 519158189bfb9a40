package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all portfolio optimization routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/portfolio/optimize", func(r chi.Router) {
		r.Get("/summary", h.HandleGetSummary)

		r.Post("/mean-variance", h.HandleMeanVariance)
		r.Post("/risk-parity", h.HandleRiskParity)
		r.Post("/black-litterman", h.HandleBlackLitterman)
		r.Post("/hrp", h.HandleHRP)
	})
}

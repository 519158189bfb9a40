// Package handlers provides HTTP handlers for portfolio optimization.
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/aristath/quantfusion/internal/api"
	"github.com/aristath/quantfusion/internal/modules/optimization"
	"github.com/aristath/quantfusion/internal/modules/statistics"
	"github.com/aristath/quantfusion/pkg/embedded"
	"github.com/rs/zerolog"
)

// Recorder observes the outcome of every optimization call.
type Recorder interface {
	Track(operation string) func(error)
}

// Handler handles portfolio optimization HTTP requests
type Handler struct {
	service  *optimization.Service
	decoder  *api.Decoder
	recorder Recorder
	log      zerolog.Logger
}

// NewHandler creates a new optimization handler. recorder may be nil.
func NewHandler(
	service *optimization.Service,
	decoder *api.Decoder,
	recorder Recorder,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		service:  service,
		decoder:  decoder,
		recorder: recorder,
		log:      log.With().Str("handler", "optimization").Logger(),
	}
}

type optimizeFunc func(context.Context, optimization.PortfolioRequest) (*optimization.PortfolioResult, error)

// HandleMeanVariance handles POST /api/portfolio/optimize/mean-variance
func (h *Handler) HandleMeanVariance(w http.ResponseWriter, r *http.Request) {
	h.handleOptimize(w, r, optimization.MethodMeanVariance, h.service.MeanVariance)
}

// HandleRiskParity handles POST /api/portfolio/optimize/risk-parity
func (h *Handler) HandleRiskParity(w http.ResponseWriter, r *http.Request) {
	h.handleOptimize(w, r, optimization.MethodRiskParity, h.service.RiskParity)
}

// HandleBlackLitterman handles POST /api/portfolio/optimize/black-litterman
func (h *Handler) HandleBlackLitterman(w http.ResponseWriter, r *http.Request) {
	h.handleOptimize(w, r, optimization.MethodBlackLitterman, h.service.BlackLitterman)
}

// HandleHRP handles POST /api/portfolio/optimize/hrp
func (h *Handler) HandleHRP(w http.ResponseWriter, r *http.Request) {
	h.handleOptimize(w, r, optimization.MethodHRP, h.service.HRP)
}

// HandleGetSummary handles GET /api/portfolio/optimize/summary
func (h *Handler) HandleGetSummary(w http.ResponseWriter, r *http.Request) {
	raw, err := embedded.Methods()
	if err != nil {
		api.Error(w, r, h.log, fmt.Errorf("failed to read method summary: %w", err))
		return
	}

	var summary map[string]interface{}
	if err := json.Unmarshal(raw, &summary); err != nil {
		api.Error(w, r, h.log, fmt.Errorf("failed to parse method summary: %w", err))
		return
	}

	api.Respond(w, r, http.StatusOK, summary)
}

func (h *Handler) handleOptimize(w http.ResponseWriter, r *http.Request, method string, run optimizeFunc) {
	var req PortfolioRequest
	if err := h.decoder.Decode(w, r, &req); err != nil {
		api.Error(w, r, h.log, err)
		return
	}

	done := h.track(method)
	result, err := run(r.Context(), req.toCore(method))
	done(err)
	if err != nil {
		api.Error(w, r, h.log, err)
		return
	}

	api.Respond(w, r, http.StatusOK, newPortfolioResponse(result))
}

func (h *Handler) track(method string) func(error) {
	if h.recorder == nil {
		return func(error) {}
	}
	return h.recorder.Track(method)
}

// toCore applies the documented defaults and converts the body into the
// core request. Black-Litterman inputs are only attached for that method.
func (req *PortfolioRequest) toCore(method string) optimization.PortfolioRequest {
	spec := optimization.DefaultConstraintSpec()
	if req.MinWeight != nil {
		spec.MinWeight = *req.MinWeight
	}
	if req.MaxWeight != nil {
		spec.MaxWeight = *req.MaxWeight
	}
	spec.Sectors = req.Sectors
	spec.SectorLimits = req.SectorLimits
	spec.BenchmarkWeights = req.BenchmarkWeights
	spec.TrackingErrorLimit = req.TrackingErrorLimit

	out := optimization.PortfolioRequest{
		Symbols:             req.Symbols,
		Returns:             req.Returns,
		RiskFreeRate:        DefaultRiskFreeRate,
		Constraints:         spec,
		CovarianceEstimator: statistics.CovarianceEstimator(req.CovarianceMethod),
		IncludePlot:         req.IncludePlot == nil || *req.IncludePlot,
		Plot: optimization.PlotOptions{
			Samples: req.FrontierSamples,
			Seed:    req.Seed,
		},
	}
	if req.RiskFreeRate != nil {
		out.RiskFreeRate = *req.RiskFreeRate
	}

	if method == optimization.MethodBlackLitterman {
		tau := optimization.DefaultTau
		if req.Tau != nil {
			tau = *req.Tau
		}
		out.BlackLitterman = &optimization.BlackLittermanInputs{
			MarketWeights: req.MarketWeights,
			Views:         req.views(),
			Tau:           tau,
		}
	}
	return out
}

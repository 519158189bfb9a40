// Package handlers provides HTTP handlers for risk analysis.
package handlers

import (
	"net/http"

	"github.com/aristath/quantfusion/internal/api"
	"github.com/aristath/quantfusion/internal/domain"
	"github.com/aristath/quantfusion/internal/modules/risk"
	"github.com/rs/zerolog"
)

// Recorder observes the outcome of every risk call.
type Recorder interface {
	Track(operation string) func(error)
}

// Handler handles risk analysis HTTP requests
type Handler struct {
	analyzer *risk.Analyzer
	decoder  *api.Decoder
	recorder Recorder
	log      zerolog.Logger
}

// NewHandler creates a new risk handler. recorder may be nil.
func NewHandler(
	analyzer *risk.Analyzer,
	decoder *api.Decoder,
	recorder Recorder,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		analyzer: analyzer,
		decoder:  decoder,
		recorder: recorder,
		log:      log.With().Str("handler", "risk").Logger(),
	}
}

// HandleAnalyze handles POST /api/risk/analyze
func (h *Handler) HandleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeRequest
	if err := h.decoder.Decode(w, r, &req); err != nil {
		api.Error(w, r, h.log, err)
		return
	}

	cov, err := symmetric("covariance", req.Covariance)
	if err != nil {
		api.Error(w, r, h.log, err)
		return
	}

	in := risk.AnalysisRequest{
		Prices:        req.Prices,
		Returns:       req.Returns,
		MarketReturns: req.MarketReturns,
		Weights:       req.Weights,
		Sectors:       req.Sectors,
		Confidence:    req.ConfidenceLevel,
		Method:        domain.RiskMethod(req.Method),
		Period:        req.Period,
		RollingWindow: req.RollingWindow,
	}
	// a typed nil would defeat the analyzer's nil check
	if cov != nil {
		in.Covariance = cov
	}

	done := h.track("risk_analyze")
	report, err := h.analyzer.Analyze(r.Context(), in)
	done(err)
	if err != nil {
		api.Error(w, r, h.log, err)
		return
	}

	api.Respond(w, r, http.StatusOK, roundReport(report))
}

// HandleAttribution handles POST /api/risk/attribution
func (h *Handler) HandleAttribution(w http.ResponseWriter, r *http.Request) {
	var req AttributionRequest
	if err := h.decoder.Decode(w, r, &req); err != nil {
		api.Error(w, r, h.log, err)
		return
	}
	if len(req.Symbols) > 0 && len(req.Symbols) != len(req.Weights) {
		api.Error(w, r, h.log, domain.NewValidationError("symbols", "got %d symbols for %d weights", len(req.Symbols), len(req.Weights)))
		return
	}

	cov, err := symmetric("covariance", req.Covariance)
	if err != nil {
		api.Error(w, r, h.log, err)
		return
	}

	done := h.track("risk_attribution")
	rc, err := risk.Attribution(req.Weights, cov)
	done(err)
	if err != nil {
		api.Error(w, r, h.log, err)
		return
	}

	resp := AttributionResponse{RiskContributions: api.RoundSlice(rc)}
	if len(req.Symbols) > 0 {
		resp.BySymbol = make(map[string]float64, len(rc))
		for i, s := range req.Symbols {
			resp.BySymbol[s] = resp.RiskContributions[i]
		}
	}
	api.Respond(w, r, http.StatusOK, resp)
}

// HandleVaR handles POST /api/risk/var
func (h *Handler) HandleVaR(w http.ResponseWriter, r *http.Request) {
	var req VaRRequest
	if err := h.decoder.Decode(w, r, &req); err != nil {
		api.Error(w, r, h.log, err)
		return
	}

	confidence := req.ConfidenceLevel
	if confidence == 0 {
		confidence = risk.DefaultConfidence
	}

	done := h.track("risk_var")
	tail, vol, err := h.analyzer.TailRisk(r.Context(), req.AssetPrices, confidence, domain.RiskMethod(req.Method))
	done(err)
	if err != nil {
		api.Error(w, r, h.log, err)
		return
	}

	api.Respond(w, r, http.StatusOK, VaRResponse{
		ConfidenceLevel: tail.Confidence,
		Method:          tail.Method,
		VaR:             api.Round(tail.VaR),
		CVaR:            api.Round(tail.CVaR),
		Volatility:      api.Round(vol),
	})
}

func (h *Handler) track(operation string) func(error) {
	if h.recorder == nil {
		return func(error) {}
	}
	return h.recorder.Track(operation)
}

func roundReport(rep *risk.Report) *risk.Report {
	out := *rep
	out.Volatility = api.Round(rep.Volatility)
	out.VaR = api.Round(rep.VaR)
	out.CVaR = api.Round(rep.CVaR)
	out.MaxDrawdown.Value = api.Round(rep.MaxDrawdown.Value)
	out.SectorExposure = api.RoundMap(rep.SectorExposure)
	out.RiskContributions = api.RoundSlice(rep.RiskContributions)
	out.RollingVolatility = api.RoundSlice(rep.RollingVolatility)
	if rep.Beta != nil {
		beta := api.Round(*rep.Beta)
		out.Beta = &beta
	}
	return &out
}

package handlers

import (
	"github.com/aristath/quantfusion/internal/api"
	"github.com/aristath/quantfusion/internal/domain"
	"github.com/aristath/quantfusion/internal/modules/optimization"
)

// DefaultRiskFreeRate applies when a request leaves risk_free_rate unset.
const DefaultRiskFreeRate = 0.01

// PortfolioRequest is the body of every optimize route. Returns has one
// row per symbol.
type PortfolioRequest struct {
	Symbols      []string    `json:"symbols" validate:"required,min=1,unique,dive,required"`
	Returns      [][]float64 `json:"returns" validate:"required,min=1,dive,min=2"`
	RiskFreeRate *float64    `json:"risk_free_rate"`
	MinWeight    *float64    `json:"min_weight"`
	MaxWeight    *float64    `json:"max_weight"`

	Sectors            []string           `json:"sectors"`
	SectorLimits       map[string]float64 `json:"sector_limits"`
	BenchmarkWeights   []float64          `json:"benchmark_weights"`
	TrackingErrorLimit *float64           `json:"tracking_error_limit" validate:"omitempty,gte=0"`

	// Black-Litterman only
	MarketWeights   []float64   `json:"market_weights"`
	ViewMatrix      [][]float64 `json:"view_matrix"`
	ViewVector      []float64   `json:"view_vector"`
	ViewUncertainty []float64   `json:"view_uncertainty"`
	Tau             *float64    `json:"tau" validate:"omitempty,gt=0"`

	CovarianceMethod string  `json:"covariance_method" validate:"omitempty,oneof=sample ledoit_wolf"`
	IncludePlot      *bool   `json:"include_plot"`
	FrontierSamples  int     `json:"frontier_samples" validate:"omitempty,gt=0,lte=100000"`
	Seed             *uint64 `json:"seed"`
}

func (req *PortfolioRequest) views() domain.ViewSpecification {
	return domain.ViewSpecification{
		Picks:         req.ViewMatrix,
		Returns:       req.ViewVector,
		Uncertainties: req.ViewUncertainty,
	}
}

// PortfolioResponse is the presented allocation, rounded to api.Precision.
type PortfolioResponse struct {
	Method                string             `json:"method"`
	OptimalWeights        map[string]float64 `json:"optimal_weights"`
	ExpectedReturn        float64            `json:"expected_return"`
	Volatility            float64            `json:"volatility"`
	SharpeRatio           float64            `json:"sharpe_ratio"`
	EfficientFrontierPlot string             `json:"efficient_frontier_plot,omitempty"`

	// Black-Litterman only
	ImpliedReturns   map[string]float64 `json:"implied_returns,omitempty"`
	PosteriorReturns map[string]float64 `json:"posterior_returns,omitempty"`
}

func newPortfolioResponse(res *optimization.PortfolioResult) PortfolioResponse {
	alloc := res.Allocation
	out := PortfolioResponse{
		Method:                alloc.Method,
		OptimalWeights:        api.RoundMap(alloc.WeightMap()),
		ExpectedReturn:        api.Round(alloc.ExpectedReturn),
		Volatility:            api.Round(alloc.Volatility),
		SharpeRatio:           api.Round(alloc.SharpeRatio),
		EfficientFrontierPlot: res.Plot,
	}
	if res.Estimate != nil {
		out.ImpliedReturns = bySymbol(alloc.Symbols, res.Estimate.Prior)
		out.PosteriorReturns = bySymbol(alloc.Symbols, res.Estimate.Posterior)
	}
	return out
}

func bySymbol(symbols []string, values []float64) map[string]float64 {
	out := make(map[string]float64, len(symbols))
	for i, s := range symbols {
		out[s] = api.Round(values[i])
	}
	return out
}

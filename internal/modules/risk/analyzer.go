package risk

import (
	"context"
	"time"

	"github.com/aristath/quantfusion/internal/domain"
	"github.com/aristath/quantfusion/internal/modules/statistics"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"
)

// DefaultConfidence is used when a request leaves the confidence level unset.
const DefaultConfidence = 0.95

// MinPrices is the shortest price series whose returns have a sample
// standard deviation.
const MinPrices = 3

// AnalysisRequest holds the inputs of a single risk analysis. Prices are
// required; Returns are derived from them when empty. Optional blocks are
// only evaluated when all of their inputs are present.
type AnalysisRequest struct {
	Prices        []float64
	Returns       []float64
	MarketReturns []float64

	Weights    []float64
	Sectors    []string
	Covariance mat.Symmetric

	Confidence float64
	Method     domain.RiskMethod

	// Period annualizes volatility; 0 means statistics.TradingDaysPerYear
	Period int
	// RollingWindow enables the rolling volatility series when positive
	RollingWindow int
}

// Report is the outcome of a risk analysis.
type Report struct {
	Volatility        float64            `json:"volatility"`
	Beta              *float64           `json:"beta,omitempty"`
	MaxDrawdown       domain.MaxDrawdown `json:"max_drawdown"`
	VaR               float64            `json:"var"`
	CVaR              float64            `json:"cvar"`
	Confidence        float64            `json:"confidence_level"`
	Method            domain.RiskMethod  `json:"method"`
	SectorExposure    map[string]float64 `json:"sector_exposure,omitempty"`
	RiskContributions []float64          `json:"risk_contributions,omitempty"`
	RollingVolatility []float64          `json:"rolling_volatility,omitempty"`
}

// Analyzer computes risk reports. It holds no state between calls.
type Analyzer struct {
	log zerolog.Logger
}

// NewAnalyzer creates a new risk analyzer.
func NewAnalyzer(log zerolog.Logger) *Analyzer {
	return &Analyzer{
		log: log.With().Str("service", "risk").Logger(),
	}
}

// Analyze computes the full risk report for one price series.
func (a *Analyzer) Analyze(ctx context.Context, req AnalysisRequest) (*Report, error) {
	start := time.Now()

	if err := ctx.Err(); err != nil {
		return nil, &domain.TimeoutError{Operation: "risk analysis", Err: err}
	}
	if len(req.Prices) < 2 {
		return nil, domain.NewValidationError("prices", "need at least 2 prices, got %d", len(req.Prices))
	}
	if len(req.Returns) == 0 && len(req.Prices) < MinPrices {
		return nil, domain.NewValidationError("prices", "need at least %d prices to derive returns, got %d", MinPrices, len(req.Prices))
	}

	returns := req.Returns
	if len(returns) == 0 {
		derived, err := statistics.PeriodReturns(req.Prices)
		if err != nil {
			return nil, err
		}
		returns = derived
	}

	confidence := req.Confidence
	if confidence == 0 {
		confidence = DefaultConfidence
	}

	vol, err := statistics.Volatility(returns, req.Period)
	if err != nil {
		return nil, err
	}

	dd, err := statistics.Drawdown(req.Prices)
	if err != nil {
		return nil, err
	}

	tail, err := statistics.TailRiskFromReturns(returns, confidence, req.Method)
	if err != nil {
		return nil, err
	}

	report := &Report{
		Volatility:  vol,
		MaxDrawdown: dd,
		VaR:         tail.VaR,
		CVaR:        tail.CVaR,
		Confidence:  tail.Confidence,
		Method:      tail.Method,
	}

	if len(req.MarketReturns) > 0 {
		beta, err := statistics.Beta(returns, req.MarketReturns)
		if err != nil {
			return nil, err
		}
		report.Beta = &beta
	}

	if len(req.Weights) > 0 && len(req.Sectors) > 0 {
		exposure, err := statistics.SectorExposure(req.Weights, req.Sectors)
		if err != nil {
			return nil, err
		}
		report.SectorExposure = exposure
	}

	if len(req.Weights) > 0 && req.Covariance != nil {
		rc, err := Attribution(req.Weights, req.Covariance)
		if err != nil {
			return nil, err
		}
		report.RiskContributions = rc
	}

	if req.RollingWindow > 0 {
		rolling, err := statistics.RollingVolatility(returns, req.RollingWindow, req.Period)
		if err != nil {
			return nil, err
		}
		report.RollingVolatility = rolling
	}

	a.log.Debug().
		Int("prices", len(req.Prices)).
		Float64("confidence", confidence).
		Str("method", string(report.Method)).
		Dur("duration", time.Since(start)).
		Msg("Risk analysis complete")

	return report, nil
}

// TailRisk answers the VaR route: VaR, CVaR and annualized volatility of a
// price series.
func (a *Analyzer) TailRisk(ctx context.Context, prices []float64, confidence float64, method domain.RiskMethod) (*statistics.TailRisk, float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, &domain.TimeoutError{Operation: "value at risk", Err: err}
	}

	if len(prices) < MinPrices {
		return nil, 0, domain.NewValidationError("asset_prices", "need at least %d prices, got %d", MinPrices, len(prices))
	}

	tail, err := statistics.TailRiskFromPrices(prices, confidence, method)
	if err != nil {
		return nil, 0, err
	}
	returns, err := statistics.PeriodReturns(prices)
	if err != nil {
		return nil, 0, err
	}
	vol, err := statistics.Volatility(returns, 0)
	if err != nil {
		return nil, 0, err
	}
	return &tail, vol, nil
}

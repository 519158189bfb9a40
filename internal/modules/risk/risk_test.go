package risk

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/aristath/quantfusion/internal/domain"
	"github.com/aristath/quantfusion/internal/modules/optimization"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

func TestAttribution_SumsToVolatility(t *testing.T) {
	cov := mat.NewSymDense(2, []float64{0.04, 0.01, 0.01, 0.09})
	w := []float64{0.6, 0.4}

	rc, err := Attribution(w, cov)
	require.NoError(t, err)

	// Σw = [0.028, 0.042], σ² = 0.0336
	sigma := math.Sqrt(0.0336)
	assert.InDelta(t, 0.6*0.028/sigma, rc[0], 1e-12)
	assert.InDelta(t, 0.4*0.042/sigma, rc[1], 1e-12)
	assert.InDelta(t, sigma, floats.Sum(rc), 1e-12)
}

func TestAttribution_Errors(t *testing.T) {
	_, err := Attribution([]float64{0.5, 0.5}, mat.NewSymDense(2, nil))
	var de *domain.DegenerateInputError
	assert.True(t, errors.As(err, &de))

	_, err = Attribution([]float64{0.5, 0.5}, mat.NewSymDense(3, nil))
	var ve *domain.ValidationError
	assert.True(t, errors.As(err, &ve))

	_, err = Attribution(nil, mat.NewSymDense(1, nil))
	assert.True(t, errors.As(err, &ve))
}

func TestAttribution_RiskParityRoundTrip(t *testing.T) {
	log := zerolog.Nop()
	solver := optimization.NewAugmentedLagrangian(optimization.DefaultSolverSettings(), log)
	rp := optimization.NewRiskParityOptimizer(solver, optimization.NewConstraintBuilder(log), log)

	cov := mat.NewSymDense(3, []float64{
		0.040, 0.006, 0.010,
		0.006, 0.025, 0.004,
		0.010, 0.004, 0.090,
	})
	alloc, err := rp.Optimize(context.Background(), optimization.Problem{
		Symbols:     []string{"A", "B", "C"},
		MeanReturns: []float64{0.01, 0.01, 0.01},
		Covariance:  cov,
	})
	require.NoError(t, err)

	rc, err := Attribution(alloc.Weights, cov)
	require.NoError(t, err)
	assert.Less(t, floats.Max(rc)-floats.Min(rc), 1e-4)
}

func TestAnalyzer_Analyze(t *testing.T) {
	a := NewAnalyzer(zerolog.Nop())
	prices := []float64{100, 90, 95, 80, 120}

	report, err := a.Analyze(context.Background(), AnalysisRequest{
		Prices:        prices,
		MarketReturns: []float64{-0.05, 0.03, -0.1, 0.3},
		Weights:       []float64{0.6, 0.4},
		Sectors:       []string{"tech", "energy"},
		Covariance:    mat.NewSymDense(2, []float64{0.04, 0.01, 0.01, 0.09}),
		RollingWindow: 3,
	})
	require.NoError(t, err)

	assert.InDelta(t, -0.2, report.MaxDrawdown.Value, 1e-12)
	assert.Equal(t, 0, report.MaxDrawdown.Start)
	assert.Equal(t, 3, report.MaxDrawdown.End)
	assert.Greater(t, report.Volatility, 0.0)
	assert.Equal(t, DefaultConfidence, report.Confidence)
	assert.Equal(t, domain.RiskMethodHistorical, report.Method)
	assert.GreaterOrEqual(t, report.CVaR, report.VaR)

	require.NotNil(t, report.Beta)
	assert.Equal(t, map[string]float64{"tech": 0.6, "energy": 0.4}, report.SectorExposure)
	assert.Len(t, report.RiskContributions, 2)
	assert.Len(t, report.RollingVolatility, 2)
}

func TestAnalyzer_BetaAgainstItself(t *testing.T) {
	a := NewAnalyzer(zerolog.Nop())
	returns := []float64{0.01, -0.02, 0.03}

	report, err := a.Analyze(context.Background(), AnalysisRequest{
		Prices:        []float64{100, 101, 98.98, 101.9494},
		Returns:       returns,
		MarketReturns: returns,
		Method:        domain.RiskMethodParametric,
		Confidence:    0.99,
	})
	require.NoError(t, err)
	require.NotNil(t, report.Beta)
	assert.InDelta(t, 1.0, *report.Beta, 1e-12)
	assert.Nil(t, report.SectorExposure)
	assert.Nil(t, report.RiskContributions)
	assert.Nil(t, report.RollingVolatility)
	assert.GreaterOrEqual(t, report.CVaR, report.VaR)
}

func TestAnalyzer_Errors(t *testing.T) {
	a := NewAnalyzer(zerolog.Nop())
	prices := []float64{100, 90, 95, 80, 120}

	tests := []struct {
		name   string
		req    AnalysisRequest
		target any
	}{
		{"too few prices", AnalysisRequest{Prices: []float64{100}}, new(*domain.ValidationError)},
		{"too few prices to derive returns", AnalysisRequest{Prices: []float64{100, 110}}, new(*domain.ValidationError)},
		{"non-positive price", AnalysisRequest{Prices: []float64{100, 0, 50}}, new(*domain.ValidationError)},
		{"bad confidence", AnalysisRequest{Prices: prices, Confidence: 1.5}, new(*domain.ValidationError)},
		{"bad method", AnalysisRequest{Prices: prices, Method: "monte_carlo"}, new(*domain.ValidationError)},
		{"beta length", AnalysisRequest{Prices: prices, MarketReturns: []float64{0.01}}, new(*domain.DegenerateInputError)},
		{"sector length", AnalysisRequest{Prices: prices, Weights: []float64{1}, Sectors: []string{"a", "b"}}, new(*domain.ValidationError)},
		{"window too wide", AnalysisRequest{Prices: prices, RollingWindow: 10}, new(*domain.ValidationError)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := a.Analyze(context.Background(), tt.req)
			require.Error(t, err)
			assert.True(t, errors.As(err, tt.target), "got %v", err)
		})
	}
}

func TestAnalyzer_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewAnalyzer(zerolog.Nop()).Analyze(ctx, AnalysisRequest{Prices: []float64{1, 2, 3}})
	var te *domain.TimeoutError
	assert.True(t, errors.As(err, &te))
}

func TestAnalyzer_TailRisk(t *testing.T) {
	a := NewAnalyzer(zerolog.Nop())

	tail, vol, err := a.TailRisk(context.Background(), []float64{100, 90, 95, 80, 120}, 0.95, "")
	require.NoError(t, err)
	assert.Equal(t, domain.RiskMethodHistorical, tail.Method)
	assert.GreaterOrEqual(t, tail.CVaR, tail.VaR)
	assert.Greater(t, vol, 0.0)

	_, _, err = a.TailRisk(context.Background(), []float64{100, 90}, 0, "")
	assert.Error(t, err)
}

func TestAnalyzer_ShortSeries(t *testing.T) {
	a := NewAnalyzer(zerolog.Nop())
	ctx := context.Background()

	_, _, err := a.TailRisk(ctx, []float64{100, 90}, 0.95, "")
	var ve *domain.ValidationError
	require.True(t, errors.As(err, &ve), "got %v", err)
	assert.Equal(t, "asset_prices", ve.Field)

	for _, method := range []domain.RiskMethod{domain.RiskMethodHistorical, domain.RiskMethodParametric} {
		tail, vol, err := a.TailRisk(ctx, []float64{100, 90, 99}, 0.95, method)
		require.NoError(t, err, "method=%s", method)
		assert.GreaterOrEqual(t, tail.CVaR, tail.VaR)
		assert.Greater(t, vol, 0.0)
	}

	// explicit returns only need two prices for the drawdown
	report, err := a.Analyze(ctx, AnalysisRequest{Prices: []float64{100, 80}, Returns: []float64{-0.2, 0.1}})
	require.NoError(t, err)
	assert.InDelta(t, -0.2, report.MaxDrawdown.Value, 1e-12)
}

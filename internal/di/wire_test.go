package di

import (
	"context"
	"testing"

	"github.com/aristath/quantfusion/internal/config"
	"github.com/aristath/quantfusion/internal/modules/optimization"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	return &config.Config{
		Port:       8001,
		HRPLinkage: "single",
		Solver: config.SolverConfig{
			MaxOuterIterations:   60,
			MaxInnerIterations:   500,
			Tolerance:            1e-8,
			FeasibilityTolerance: 1e-8,
		},
		Frontier: config.FrontierConfig{Samples: 200, Workers: 2, Seed: 7, Width: 400, Height: 300},
	}
}

func TestWire(t *testing.T) {
	container, err := Wire(testConfig(), zerolog.Nop())
	require.NoError(t, err)
	require.NotNil(t, container)

	// Verify container is fully populated
	assert.NotNil(t, container.Metrics)
	assert.NotNil(t, container.Decoder)
	assert.NotNil(t, container.Solver)
	assert.NotNil(t, container.HRP)
	assert.NotNil(t, container.ChartsService)
	assert.NotNil(t, container.OptimizationService)
	assert.NotNil(t, container.RiskAnalyzer)
	assert.Equal(t, 200, container.FrontierSampler.Samples())
}

func TestWire_EndToEndPlot(t *testing.T) {
	container, err := Wire(testConfig(), zerolog.Nop())
	require.NoError(t, err)

	res, err := container.OptimizationService.MeanVariance(context.Background(), optimization.PortfolioRequest{
		Symbols:      []string{"A", "B"},
		Returns:      [][]float64{{0.01, 0.02, -0.01}, {0.00, 0.01, 0.02}},
		RiskFreeRate: 0.01,
		Constraints:  optimization.DefaultConstraintSpec(),
		IncludePlot:  true,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, res.Plot)
}

func TestWire_UnknownLinkage(t *testing.T) {
	cfg := testConfig()
	cfg.HRPLinkage = "ward"

	_, err := Wire(cfg, zerolog.Nop())
	assert.ErrorContains(t, err, "ward")
}

package optimization

import (
	"context"
	"errors"
	"testing"

	"github.com/aristath/quantfusion/internal/domain"
	"github.com/aristath/quantfusion/internal/modules/statistics"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func newTestMV() *MVOptimizer {
	log := zerolog.Nop()
	return NewMVOptimizer(NewAugmentedLagrangian(DefaultSolverSettings(), log), NewConstraintBuilder(log), log)
}

// twoAssetProblem is built from returns [[0.01,0.02,-0.01],[0.00,0.01,0.02]].
func twoAssetProblem(t *testing.T) Problem {
	t.Helper()
	rm, err := domain.NewReturnMatrix([]string{"A", "B"}, [][]float64{{0.01, 0.02, -0.01}, {0.00, 0.01, 0.02}})
	require.NoError(t, err)
	cov, err := statistics.Covariance(rm, statistics.EstimatorSample)
	require.NoError(t, err)
	return Problem{
		Symbols:      rm.Symbols(),
		MeanReturns:  statistics.MeanReturns(rm),
		Covariance:   cov,
		RiskFreeRate: 0.01,
		Constraints:  DefaultConstraintSpec(),
	}
}

func assertFullyInvested(t *testing.T, weights []float64, lo, hi float64) {
	t.Helper()
	sum := 0.0
	for _, w := range weights {
		sum += w
		assert.GreaterOrEqual(t, w, lo-1e-9)
		assert.LessOrEqual(t, w, hi+1e-9)
	}
	assert.InDelta(t, 1.0, sum, 1e-6)
}

func TestMVOptimizer_TwoAssets(t *testing.T) {
	alloc, err := newTestMV().Optimize(context.Background(), twoAssetProblem(t))
	require.NoError(t, err)

	assert.Equal(t, MethodMeanVariance, alloc.Method)
	assertFullyInvested(t, alloc.Weights, 0, 1)

	// the minimum-variance point already clears the mean-return floor
	assert.InDelta(t, 0.375, alloc.Weights[0], 1e-3)
	assert.InDelta(t, 0.625, alloc.Weights[1], 1e-3)
	assert.InDelta(t, 0.00875, alloc.ExpectedReturn, 1e-5)
	assert.InDelta(t, 0.005, alloc.Volatility, 1e-4)
	assert.InDelta(t, (alloc.ExpectedReturn-0.01)/alloc.Volatility, alloc.SharpeRatio, 1e-9)

	wm := alloc.WeightMap()
	assert.Equal(t, alloc.Weights[0], wm["A"])
}

func TestMVOptimizer_EqualReturnsSymmetricCovariance(t *testing.T) {
	p := Problem{
		Symbols:     []string{"A", "B", "C"},
		MeanReturns: []float64{0.01, 0.01, 0.01},
		Covariance: mat.NewSymDense(3, []float64{
			0.04, 0.01, 0.01,
			0.01, 0.04, 0.01,
			0.01, 0.01, 0.04,
		}),
		Constraints: DefaultConstraintSpec(),
	}

	alloc, err := newTestMV().Optimize(context.Background(), p)
	require.NoError(t, err)
	for _, w := range alloc.Weights {
		assert.InDelta(t, 1.0/3, w, 1e-4)
	}
}

func TestMVOptimizer_ReturnFloorBinds(t *testing.T) {
	// the low-variance asset has the lowest return, so the floor pulls
	// weight towards the others
	p := Problem{
		Symbols:     []string{"LOW", "MID", "HIGH"},
		MeanReturns: []float64{0.00, 0.01, 0.02},
		Covariance:  mat.NewSymDense(3, []float64{0.01, 0, 0, 0, 0.04, 0, 0, 0, 0.09}),
		Constraints: DefaultConstraintSpec(),
	}

	alloc, err := newTestMV().Optimize(context.Background(), p)
	require.NoError(t, err)
	assertFullyInvested(t, alloc.Weights, 0, 1)
	assert.GreaterOrEqual(t, alloc.ExpectedReturn, 0.01-1e-6)
}

func TestMVOptimizer_Bounds(t *testing.T) {
	p := twoAssetProblem(t)
	p.Constraints.MaxWeight = 0.55

	alloc, err := newTestMV().Optimize(context.Background(), p)
	require.NoError(t, err)
	assertFullyInvested(t, alloc.Weights, 0, 0.55)
	assert.InDelta(t, 0.55, alloc.Weights[1], 1e-3)
}

func TestMVOptimizer_TrackingError(t *testing.T) {
	p := twoAssetProblem(t)
	limit := 0.002
	p.Constraints.BenchmarkWeights = []float64{0.5, 0.5}
	p.Constraints.TrackingErrorLimit = &limit

	alloc, err := newTestMV().Optimize(context.Background(), p)
	require.NoError(t, err)
	assertFullyInvested(t, alloc.Weights, 0, 1)

	// along w = (0.5-s, 0.5+s) the tracking variance is s²·(16/3)e-4
	assert.InDelta(t, 0.4134, alloc.Weights[0], 2e-3)
	assert.InDelta(t, 0.5866, alloc.Weights[1], 2e-3)
}

func TestMVOptimizer_InfeasibleSectorCap(t *testing.T) {
	p := twoAssetProblem(t)
	p.Constraints.Sectors = []string{"tech", "tech"}
	p.Constraints.SectorLimits = map[string]float64{"tech": 0.5}

	_, err := newTestMV().Optimize(context.Background(), p)
	var ie *domain.InfeasibleError
	require.True(t, errors.As(err, &ie), "got %v", err)
}

func TestMVOptimizer_InfeasibleBounds(t *testing.T) {
	p := twoAssetProblem(t)
	p.Constraints.MinWeight = 0.6

	_, err := newTestMV().Optimize(context.Background(), p)
	var ie *domain.InfeasibleError
	assert.True(t, errors.As(err, &ie), "got %v", err)
}

func TestMVOptimizer_ZeroVolatility(t *testing.T) {
	p := Problem{
		Symbols:     []string{"A", "B"},
		MeanReturns: []float64{0.01, 0.01},
		Covariance:  mat.NewSymDense(2, nil),
		Constraints: DefaultConstraintSpec(),
	}

	_, err := newTestMV().Optimize(context.Background(), p)
	var de *domain.DegenerateInputError
	assert.True(t, errors.As(err, &de), "got %v", err)
}

func TestProblem_Validate(t *testing.T) {
	tests := []struct {
		name string
		p    Problem
	}{
		{"no symbols", Problem{}},
		{"mean count", Problem{Symbols: []string{"A"}, MeanReturns: []float64{0, 0}, Covariance: mat.NewSymDense(1, nil)}},
		{"covariance size", Problem{Symbols: []string{"A"}, MeanReturns: []float64{0}, Covariance: mat.NewSymDense(2, nil)}},
		{"nil covariance", Problem{Symbols: []string{"A"}, MeanReturns: []float64{0}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ve *domain.ValidationError
			assert.True(t, errors.As(tt.p.Validate(), &ve))
		})
	}
}

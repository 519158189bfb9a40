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

type recordingPlotter struct {
	calls   int
	means   []float64
	optimal *FrontierPoint
	opts    PlotOptions
	err     error
}

func (r *recordingPlotter) PlotFrontier(_ context.Context, meanReturns []float64, _ mat.Symmetric, _ float64, optimal *FrontierPoint, opts PlotOptions) (string, error) {
	r.calls++
	r.opts = opts
	r.means = append([]float64(nil), meanReturns...)
	r.optimal = optimal
	return "plot", r.err
}

func newTestService(plotter FrontierPlotter) *Service {
	log := zerolog.Nop()
	solver := NewAugmentedLagrangian(DefaultSolverSettings(), log)
	builder := NewConstraintBuilder(log)
	mv := NewMVOptimizer(solver, builder, log)
	return NewService(
		mv,
		NewRiskParityOptimizer(solver, builder, log),
		NewBlackLittermanOptimizer(mv, log),
		NewHRPOptimizer(builder, LinkageSingle, log),
		plotter,
		log,
	)
}

func twoAssetRequest() PortfolioRequest {
	return PortfolioRequest{
		Symbols:             []string{"A", "B"},
		Returns:             [][]float64{{0.01, 0.02, -0.01}, {0.00, 0.01, 0.02}},
		RiskFreeRate:        0.01,
		Constraints:         DefaultConstraintSpec(),
		CovarianceEstimator: statistics.EstimatorSample,
	}
}

func TestService_AllMethods(t *testing.T) {
	svc := newTestService(nil)
	ctx := context.Background()

	runs := map[string]func(context.Context, PortfolioRequest) (*PortfolioResult, error){
		MethodMeanVariance: svc.MeanVariance,
		MethodRiskParity:   svc.RiskParity,
		MethodHRP:          svc.HRP,
	}
	for method, run := range runs {
		t.Run(method, func(t *testing.T) {
			res, err := run(ctx, twoAssetRequest())
			require.NoError(t, err)
			assert.Equal(t, method, res.Allocation.Method)
			assert.Equal(t, []string{"A", "B"}, res.Allocation.Symbols)
			assertFullyInvested(t, res.Allocation.Weights, 0, 1)
			assert.Empty(t, res.Plot)
		})
	}
}

func TestService_PlotUsesAllocationPoint(t *testing.T) {
	plotter := &recordingPlotter{}
	svc := newTestService(plotter)

	req := twoAssetRequest()
	req.IncludePlot = true
	seed := uint64(9)
	req.Plot = PlotOptions{Samples: 100, Seed: &seed}
	res, err := svc.MeanVariance(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, req.Plot, plotter.opts)

	assert.Equal(t, "plot", res.Plot)
	require.Equal(t, 1, plotter.calls)
	assert.Equal(t, res.Allocation.Point(), *plotter.optimal)
	assert.InDelta(t, 0.02/3, plotter.means[0], 1e-12)
}

func TestService_PlotFailure(t *testing.T) {
	plotter := &recordingPlotter{err: errors.New("boom")}
	svc := newTestService(plotter)

	req := twoAssetRequest()
	req.IncludePlot = true
	_, err := svc.RiskParity(context.Background(), req)
	assert.ErrorContains(t, err, "boom")
}

func TestService_BlackLitterman(t *testing.T) {
	plotter := &recordingPlotter{}
	svc := newTestService(plotter)

	req := twoAssetRequest()
	req.IncludePlot = true
	req.BlackLitterman = &BlackLittermanInputs{MarketWeights: []float64{0.5, 0.5}, Tau: DefaultTau}

	res, err := svc.BlackLitterman(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, res.Estimate)
	assert.InDeltaSlice(t, res.Estimate.Prior, res.Estimate.Posterior, 1e-10)

	// the frontier is drawn against the posterior returns
	assert.Equal(t, res.Estimate.Posterior, plotter.means)
}

func TestService_BlackLittermanNeedsInputs(t *testing.T) {
	_, err := newTestService(nil).BlackLitterman(context.Background(), twoAssetRequest())
	var ive *domain.InvalidViewError
	assert.True(t, errors.As(err, &ive))
}

func TestService_InvalidReturns(t *testing.T) {
	svc := newTestService(nil)

	req := twoAssetRequest()
	req.Returns = [][]float64{{0.01, 0.02}, {0.01}}
	_, err := svc.MeanVariance(context.Background(), req)
	var ve *domain.ValidationError
	assert.True(t, errors.As(err, &ve))

	req = twoAssetRequest()
	req.CovarianceEstimator = "unknown"
	_, err = svc.MeanVariance(context.Background(), req)
	assert.True(t, errors.As(err, &ve))
}

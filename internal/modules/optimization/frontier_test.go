package optimization

import (
	"context"
	"errors"
	"testing"

	"github.com/aristath/quantfusion/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestFrontierSampler_Defaults(t *testing.T) {
	fs := NewFrontierSampler(0, 0, zerolog.Nop())
	assert.Equal(t, DefaultFrontierSamples, fs.Samples())
}

func TestFrontierSampler_SameSeedSameCloud(t *testing.T) {
	mu := []float64{0.01, 0.02, 0.015}
	cov := mat.NewSymDense(3, []float64{0.04, 0.01, 0, 0.01, 0.09, 0.02, 0, 0.02, 0.16})

	// worker count must not change the result
	a, err := NewFrontierSampler(1200, 1, zerolog.Nop()).Sample(context.Background(), mu, cov, 0.01, 42)
	require.NoError(t, err)
	b, err := NewFrontierSampler(1200, 4, zerolog.Nop()).Sample(context.Background(), mu, cov, 0.01, 42)
	require.NoError(t, err)
	c, err := NewFrontierSampler(1200, 4, zerolog.Nop()).Sample(context.Background(), mu, cov, 0.01, 43)
	require.NoError(t, err)

	require.Len(t, a.Points, 1200)
	assert.Equal(t, a.Points, b.Points)
	assert.NotEqual(t, a.Points, c.Points)
	assert.Equal(t, uint64(42), a.Seed)
}

func TestFrontierSampler_PointsAreSimplexPortfolios(t *testing.T) {
	mu := []float64{0.01, 0.02, 0.015}
	cov := mat.NewSymDense(3, []float64{0.04, 0, 0, 0, 0.09, 0, 0, 0, 0.16})

	f, err := NewFrontierSampler(0, 0, zerolog.Nop()).SampleN(context.Background(), mu, cov, 0.01, 7, 300)
	require.NoError(t, err)
	require.Len(t, f.Points, 300)

	for _, pt := range f.Points {
		// convex combinations stay inside the range of asset returns
		assert.GreaterOrEqual(t, pt.Return, 0.01-1e-12)
		assert.LessOrEqual(t, pt.Return, 0.02+1e-12)
		assert.Greater(t, pt.Volatility, 0.0)
		assert.LessOrEqual(t, pt.Volatility, 0.4+1e-12)
		assert.InDelta(t, (pt.Return-0.01)/pt.Volatility, pt.Sharpe, 1e-12)
		assert.False(t, pt.Degenerate)
	}
}

func TestFrontierSampler_ZeroVolatilityIsFlagged(t *testing.T) {
	f, err := NewFrontierSampler(10, 1, zerolog.Nop()).Sample(context.Background(), []float64{0.01, 0.01}, mat.NewSymDense(2, nil), 0, 1)
	require.NoError(t, err)
	for _, pt := range f.Points {
		assert.True(t, pt.Degenerate)
		assert.Zero(t, pt.Sharpe)
	}
}

func TestFrontierSampler_InvalidInput(t *testing.T) {
	fs := NewFrontierSampler(10, 1, zerolog.Nop())

	_, err := fs.Sample(context.Background(), nil, mat.NewSymDense(1, nil), 0, 1)
	var ve *domain.ValidationError
	assert.True(t, errors.As(err, &ve))

	_, err = fs.Sample(context.Background(), []float64{0.01, 0.02}, mat.NewSymDense(3, nil), 0, 1)
	assert.True(t, errors.As(err, &ve))
}

func TestFrontierSampler_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewFrontierSampler(100, 1, zerolog.Nop()).Sample(ctx, []float64{0.01, 0.02}, mat.NewSymDense(2, []float64{0.04, 0, 0, 0.09}), 0, 1)
	var te *domain.TimeoutError
	assert.True(t, errors.As(err, &te))
}

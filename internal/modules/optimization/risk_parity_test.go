package optimization

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/aristath/quantfusion/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

func newTestRiskParity() *RiskParityOptimizer {
	log := zerolog.Nop()
	return NewRiskParityOptimizer(NewAugmentedLagrangian(DefaultSolverSettings(), log), NewConstraintBuilder(log), log)
}

func riskContributions(w []float64, cov mat.Symmetric) []float64 {
	n := len(w)
	s := mat.NewVecDense(n, nil)
	s.MulVec(cov, mat.NewVecDense(n, w))
	sigma := math.Sqrt(mat.Dot(mat.NewVecDense(n, w), s))
	rc := make([]float64, n)
	for i := range rc {
		rc[i] = w[i] * s.AtVec(i) / sigma
	}
	return rc
}

func TestRiskParity_DiagonalCovariance(t *testing.T) {
	cov := mat.NewSymDense(3, []float64{0.04, 0, 0, 0, 0.09, 0, 0, 0, 0.16})
	p := Problem{
		Symbols:     []string{"A", "B", "C"},
		MeanReturns: []float64{0.01, 0.02, 0.03},
		Covariance:  cov,
	}

	alloc, err := newTestRiskParity().Optimize(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, MethodRiskParity, alloc.Method)
	assertFullyInvested(t, alloc.Weights, 0, 1)

	// inverse-volatility weights 5 : 10/3 : 5/2
	assert.InDelta(t, 6.0/13, alloc.Weights[0], 1e-3)
	assert.InDelta(t, 4.0/13, alloc.Weights[1], 1e-3)
	assert.InDelta(t, 3.0/13, alloc.Weights[2], 1e-3)

	rc := riskContributions(alloc.Weights, cov)
	assert.Less(t, floats.Max(rc)-floats.Min(rc), 1e-4)
}

func TestRiskParity_CorrelatedAssets(t *testing.T) {
	cov := mat.NewSymDense(4, []float64{
		0.040, 0.006, 0.010, 0.002,
		0.006, 0.025, 0.004, 0.003,
		0.010, 0.004, 0.090, 0.012,
		0.002, 0.003, 0.012, 0.060,
	})
	p := Problem{
		Symbols:     []string{"A", "B", "C", "D"},
		MeanReturns: []float64{0.01, 0.008, 0.015, 0.012},
		Covariance:  cov,
	}

	alloc, err := newTestRiskParity().Optimize(context.Background(), p)
	require.NoError(t, err)
	assertFullyInvested(t, alloc.Weights, 0, 1)

	rc := riskContributions(alloc.Weights, cov)
	assert.Less(t, floats.Max(rc)-floats.Min(rc), 1e-4)
	assert.InDelta(t, alloc.Volatility, floats.Sum(rc), 1e-9)
}

func TestRiskParity_IgnoresCallerConstraints(t *testing.T) {
	cov := mat.NewSymDense(2, []float64{0.04, 0, 0, 0.01})
	p := Problem{
		Symbols:     []string{"A", "B"},
		MeanReturns: []float64{0.01, 0.01},
		Covariance:  cov,
		Constraints: ConstraintSpec{MinWeight: 0, MaxWeight: 0.5},
	}

	alloc, err := newTestRiskParity().Optimize(context.Background(), p)
	require.NoError(t, err)
	assert.InDelta(t, 1.0/3, alloc.Weights[0], 1e-3)
	assert.InDelta(t, 2.0/3, alloc.Weights[1], 1e-3)
}

func TestRiskParity_ZeroVariance(t *testing.T) {
	p := Problem{
		Symbols:     []string{"A", "B"},
		MeanReturns: []float64{0.01, 0.01},
		Covariance:  mat.NewSymDense(2, nil),
	}

	_, err := newTestRiskParity().Optimize(context.Background(), p)
	var de *domain.DegenerateInputError
	assert.True(t, errors.As(err, &de), "got %v", err)
}

func TestRiskParity_ObjectiveGradient(t *testing.T) {
	cov := mat.NewSymDense(3, []float64{0.04, 0.01, 0.0, 0.01, 0.09, 0.02, 0.0, 0.02, 0.16})
	obj := riskParityObjective(cov)

	x := []float64{0.5, 0.3, 0.2}
	grad := make([]float64, 3)
	obj.Grad(grad, x)

	const h = 1e-6
	for j := range x {
		xp := append([]float64(nil), x...)
		xm := append([]float64(nil), x...)
		xp[j] += h
		xm[j] -= h
		numeric := (obj.Func(xp) - obj.Func(xm)) / (2 * h)
		assert.InDelta(t, numeric, grad[j], 1e-6, "component %d", j)
	}
}

func TestRiskParity_ConvergenceFailure(t *testing.T) {
	log := zerolog.Nop()
	solver := NewAugmentedLagrangian(SolverSettings{MaxOuterIterations: 1, MaxInnerIterations: 2}, log)
	rp := NewRiskParityOptimizer(solver, NewConstraintBuilder(log), log)

	p := Problem{
		Symbols:     []string{"A", "B", "C"},
		MeanReturns: []float64{0.01, 0.02, 0.015},
		Covariance:  mat.NewSymDense(3, []float64{0.04, 0.01, 0.0, 0.01, 0.09, 0.02, 0.0, 0.02, 0.16}),
	}

	_, err := rp.Optimize(context.Background(), p)
	var ce *domain.ConvergenceError
	require.True(t, errors.As(err, &ce), "got %v", err)
	assert.Equal(t, "augmented_lagrangian", ce.Method)
	assert.Equal(t, 1, ce.Iterations)
	assert.Positive(t, ce.Residual)
	assert.Equal(t, "convergence", domain.ErrorKind(err))
}

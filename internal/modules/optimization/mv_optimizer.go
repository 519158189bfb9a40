package optimization

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"
)

// MVOptimizer performs mean-variance portfolio optimization.
type MVOptimizer struct {
	solver  Solver
	builder *ConstraintBuilder
	log     zerolog.Logger
}

// NewMVOptimizer creates a new mean-variance optimizer.
func NewMVOptimizer(solver Solver, builder *ConstraintBuilder, log zerolog.Logger) *MVOptimizer {
	return &MVOptimizer{
		solver:  solver,
		builder: builder,
		log:     log.With().Str("component", "mv_optimizer").Logger(),
	}
}

// Optimize solves the mean-variance problem.
//
// Mathematical formulation:
//   - minimize wᵀΣw
//   - Σw = 1
//   - lower_i ≤ w_i ≤ upper_i
//   - Σ(w in sector) ≤ sector_limit for every capped sector
//   - (w - w_b)ᵀΣ(w - w_b) ≤ TE² when a benchmark is given
//   - μᵀw ≥ mean(μ)
//
// The return floor is the unweighted average of the asset mean returns; it
// is not a caller parameter.
func (mvo *MVOptimizer) Optimize(ctx context.Context, p Problem) (*Allocation, error) {
	return mvo.optimize(ctx, MethodMeanVariance, p)
}

func (mvo *MVOptimizer) optimize(ctx context.Context, method string, p Problem) (*Allocation, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	cons, err := mvo.builder.Build(len(p.Symbols), p.Constraints, p.Covariance)
	if err != nil {
		return nil, fmt.Errorf("failed to build constraints: %w", err)
	}

	target := stat.Mean(p.MeanReturns, nil)
	cons = cons.WithReturnFloor(p.MeanReturns, target)

	weights, err := mvo.solver.MinimizeQuadratic(ctx, p.Covariance, cons, cons.InitialPoint())
	if err != nil {
		mvo.log.Warn().Err(err).Str("method", method).Int("assets", len(p.Symbols)).Msg("Mean-variance solve failed")
		return nil, fmt.Errorf("%s optimization failed: %w", method, err)
	}

	alloc, err := newAllocation(method, p, weights)
	if err != nil {
		return nil, err
	}

	mvo.log.Debug().
		Str("method", method).
		Float64("target_return", target).
		Float64("expected_return", alloc.ExpectedReturn).
		Float64("volatility", alloc.Volatility).
		Msg("Mean-variance optimization complete")

	return alloc, nil
}

package optimization

import (
	"context"
	"fmt"
	"math"

	"github.com/aristath/quantfusion/internal/domain"
	"github.com/aristath/quantfusion/internal/modules/statistics"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"
)

// RiskParityOptimizer equalizes per-asset risk contributions.
type RiskParityOptimizer struct {
	solver  Solver
	builder *ConstraintBuilder
	log     zerolog.Logger
}

// NewRiskParityOptimizer creates a new risk-parity optimizer.
func NewRiskParityOptimizer(solver Solver, builder *ConstraintBuilder, log zerolog.Logger) *RiskParityOptimizer {
	return &RiskParityOptimizer{
		solver:  solver,
		builder: builder,
		log:     log.With().Str("component", "risk_parity").Logger(),
	}
}

// Optimize minimizes Σ(RC_i - mean(RC))² with RC_i = w_i(Σw)_i / σ_p,
// subject to Σw = 1 and 0 ≤ w_i ≤ 1, starting from equal weights.
// Mean returns only feed the reported expected return and Sharpe ratio;
// p.Constraints is ignored.
func (rp *RiskParityOptimizer) Optimize(ctx context.Context, p Problem) (*Allocation, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	n := len(p.Symbols)

	cons, err := rp.builder.Build(n, DefaultConstraintSpec(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build constraints: %w", err)
	}

	x0 := cons.InitialPoint()
	if statistics.PortfolioVariance(x0, p.Covariance) <= 0 {
		return nil, &domain.DegenerateInputError{Quantity: "portfolio_volatility", Reason: "equal-weight portfolio has zero variance"}
	}

	weights, err := rp.solver.MinimizeNonlinear(ctx, riskParityObjective(p.Covariance), cons, x0)
	if err != nil {
		rp.log.Warn().Err(err).Int("assets", n).Msg("Risk parity solve failed")
		return nil, fmt.Errorf("risk parity optimization failed: %w", err)
	}

	return newAllocation(MethodRiskParity, p, weights)
}

// riskParityObjective returns the contribution dispersion and its gradient.
// The value is divided by the mean asset variance, which leaves the
// minimizer unchanged and keeps the scale independent of the return units.
//
// With s = Σw, v = wᵀs, σ = √v, RC_i = w_i s_i / σ and d_i = RC_i - mean(RC):
//
//	∂f/∂w_j = 2 [ d_j s_j / σ + (Σ(d∘w))_j / σ - (dᵀRC) s_j / v ]
func riskParityObjective(cov mat.Symmetric) Objective {
	n := cov.SymmetricDim()

	var scale float64
	for i := 0; i < n; i++ {
		scale += cov.At(i, i)
	}
	scale /= float64(n)
	if scale <= 0 {
		scale = 1
	}

	s := mat.NewVecDense(n, nil)
	dw := mat.NewVecDense(n, nil)
	sdw := mat.NewVecDense(n, nil)
	rc := make([]float64, n)
	d := make([]float64, n)

	// evaluate fills s, rc and d for x and returns v and σ.
	evaluate := func(x []float64) (float64, float64) {
		s.MulVec(cov, mat.NewVecDense(n, x))
		v := mat.Dot(mat.NewVecDense(n, x), s)
		sigma := math.Sqrt(math.Max(v, 1e-18))
		var mean float64
		for i := range rc {
			rc[i] = x[i] * s.AtVec(i) / sigma
			mean += rc[i]
		}
		mean /= float64(n)
		for i := range d {
			d[i] = rc[i] - mean
		}
		return math.Max(v, 1e-18), sigma
	}

	return Objective{
		Func: func(x []float64) float64 {
			evaluate(x)
			var f float64
			for _, di := range d {
				f += di * di
			}
			return f / scale
		},
		Grad: func(grad, x []float64) {
			v, sigma := evaluate(x)
			var dRC float64
			for i := range d {
				dRC += d[i] * rc[i]
				dw.SetVec(i, d[i]*x[i])
			}
			sdw.MulVec(cov, dw)
			for j := range grad {
				sj := s.AtVec(j)
				grad[j] = 2 * (d[j]*sj/sigma + sdw.AtVec(j)/sigma - dRC*sj/v) / scale
			}
		},
	}
}

// Package risk provides portfolio risk analysis and attribution.
package risk

import (
	"math"

	"github.com/aristath/quantfusion/internal/domain"
	"gonum.org/v1/gonum/mat"
)

// Attribution returns the per-asset risk contributions
//
//	RC_i = w_i (Σw)_i / σ_p
//
// which sum to the portfolio volatility σ_p.
func Attribution(weights []float64, cov mat.Symmetric) ([]float64, error) {
	n := len(weights)
	if n == 0 {
		return nil, domain.NewValidationError("weights", "at least one weight is required")
	}
	if cov == nil || cov.SymmetricDim() != n {
		return nil, domain.NewValidationError("covariance", "need a %dx%d covariance matrix", n, n)
	}

	w := mat.NewVecDense(n, weights)
	marginal := mat.NewVecDense(n, nil)
	marginal.MulVec(cov, w)

	variance := mat.Dot(w, marginal)
	sigma := math.Sqrt(math.Max(variance, 0))
	if !(sigma > 0) || math.IsInf(sigma, 0) {
		return nil, &domain.DegenerateInputError{Quantity: "portfolio_volatility", Reason: "portfolio volatility is zero"}
	}

	rc := make([]float64, n)
	for i := range rc {
		rc[i] = weights[i] * marginal.AtVec(i) / sigma
	}
	return rc, nil
}

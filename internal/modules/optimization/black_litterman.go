package optimization

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/aristath/quantfusion/internal/domain"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"
)

// DefaultTau is the default prior scaling for Black-Litterman.
const DefaultTau = 0.05

// pinvRcond matches the relative singular value cutoff of the reference
// least-squares pseudo-inverse.
const pinvRcond = 1e-15

// BlackLittermanInputs holds the method-specific Black-Litterman inputs.
type BlackLittermanInputs struct {
	MarketWeights []float64
	Views         domain.ViewSpecification
	Tau           float64
}

// BlackLittermanEstimate is the prior and the blended posterior.
type BlackLittermanEstimate struct {
	Prior     []float64 `json:"prior"`
	Posterior []float64 `json:"posterior"`
}

// BlackLittermanOptimizer blends equilibrium returns with investor views and
// runs mean-variance optimization on the posterior.
type BlackLittermanOptimizer struct {
	mv  *MVOptimizer
	log zerolog.Logger
}

// NewBlackLittermanOptimizer creates a new Black-Litterman optimizer on top
// of a mean-variance optimizer.
func NewBlackLittermanOptimizer(mv *MVOptimizer, log zerolog.Logger) *BlackLittermanOptimizer {
	return &BlackLittermanOptimizer{
		mv:  mv,
		log: log.With().Str("component", "black_litterman").Logger(),
	}
}

// Optimize replaces p.MeanReturns with the posterior returns and solves the
// mean-variance problem, including its constraints and return floor.
func (bl *BlackLittermanOptimizer) Optimize(ctx context.Context, p Problem, in BlackLittermanInputs) (*Allocation, *BlackLittermanEstimate, error) {
	if p.Covariance == nil || p.Covariance.SymmetricDim() != len(p.Symbols) {
		return nil, nil, domain.NewValidationError("covariance", "need a %dx%d covariance matrix", len(p.Symbols), len(p.Symbols))
	}

	est, err := bl.Estimate(p.Covariance, in)
	if err != nil {
		return nil, nil, err
	}

	posterior := p
	posterior.MeanReturns = est.Posterior
	alloc, err := bl.mv.optimize(ctx, MethodBlackLitterman, posterior)
	if err != nil {
		return nil, nil, err
	}
	return alloc, est, nil
}

// Estimate computes π = τΣw_mkt and
//
//	μ_BL = [ (τΣ)⁻¹ + PᵀΩ⁻¹P ]⁻¹ [ (τΣ)⁻¹π + PᵀΩ⁻¹Q ]
//
// with every inverse taken as a pseudo-inverse. With no views the
// posterior equals the prior.
func (bl *BlackLittermanOptimizer) Estimate(cov mat.Symmetric, in BlackLittermanInputs) (*BlackLittermanEstimate, error) {
	n := cov.SymmetricDim()
	if err := validateViews(n, in); err != nil {
		return nil, err
	}

	var tauSigma mat.Dense
	tauSigma.Scale(in.Tau, cov)

	prior := mat.NewVecDense(n, nil)
	prior.MulVec(&tauSigma, mat.NewVecDense(n, in.MarketWeights))

	precision, err := pseudoInverse(&tauSigma)
	if err != nil {
		return nil, fmt.Errorf("failed to invert prior covariance: %w", err)
	}

	lhs := mat.DenseCopyOf(precision)
	rhs := mat.NewVecDense(n, nil)
	rhs.MulVec(precision, prior)

	if k := in.Views.Len(); k > 0 {
		picks := mat.NewDense(k, n, nil)
		for i, row := range in.Views.Picks {
			picks.SetRow(i, row)
		}

		// Ω is diagonal, so its pseudo-inverse inverts the non-zero entries
		omegaInv := make([]float64, k)
		for i, u := range in.Views.Uncertainties {
			if u > 0 {
				omegaInv[i] = 1 / u
			}
		}
		omegaInvDiag := mat.NewDiagDense(k, omegaInv)

		var ptOmega mat.Dense
		ptOmega.Mul(picks.T(), omegaInvDiag)

		var viewPrecision mat.Dense
		viewPrecision.Mul(&ptOmega, picks)
		lhs.Add(lhs, &viewPrecision)

		viewTerm := mat.NewVecDense(n, nil)
		viewTerm.MulVec(&ptOmega, mat.NewVecDense(k, in.Views.Returns))
		rhs.AddVec(rhs, viewTerm)
	}

	lhsInv, err := pseudoInverse(lhs)
	if err != nil {
		return nil, fmt.Errorf("failed to invert posterior precision: %w", err)
	}
	posterior := mat.NewVecDense(n, nil)
	posterior.MulVec(lhsInv, rhs)

	est := &BlackLittermanEstimate{
		Prior:     mat.Col(nil, 0, prior),
		Posterior: mat.Col(nil, 0, posterior),
	}

	bl.log.Debug().
		Int("assets", n).
		Int("views", in.Views.Len()).
		Float64("tau", in.Tau).
		Msg("Computed Black-Litterman posterior")

	return est, nil
}

func validateViews(n int, in BlackLittermanInputs) error {
	k := in.Views.Len()
	shape := func(reason string) error {
		cols := 0
		if k > 0 {
			cols = len(in.Views.Picks[0])
		}
		return &domain.InvalidViewError{
			Assets:        n,
			Views:         k,
			Columns:       cols,
			Returns:       len(in.Views.Returns),
			Uncertainties: len(in.Views.Uncertainties),
			Reason:        reason,
		}
	}

	if len(in.MarketWeights) != n {
		return shape(fmt.Sprintf("got %d market weights for %d assets", len(in.MarketWeights), n))
	}
	if !(in.Tau > 0) || math.IsInf(in.Tau, 0) {
		return shape(fmt.Sprintf("tau must be positive, got %v", in.Tau))
	}
	for i, row := range in.Views.Picks {
		if len(row) != n {
			return shape(fmt.Sprintf("view %d has %d columns, expected %d", i, len(row), n))
		}
	}
	if len(in.Views.Returns) != k {
		return shape(fmt.Sprintf("got %d view returns for %d views", len(in.Views.Returns), k))
	}
	if len(in.Views.Uncertainties) != k {
		return shape(fmt.Sprintf("got %d view uncertainties for %d views", len(in.Views.Uncertainties), k))
	}
	for i, u := range in.Views.Uncertainties {
		if math.IsNaN(u) || u < 0 {
			return shape(fmt.Sprintf("view %d uncertainty must be a non-negative variance, got %v", i, u))
		}
	}
	return nil
}

// pseudoInverse returns the Moore-Penrose inverse V Σ⁺ Uᵀ of a, dropping
// singular values below pinvRcond times the largest one.
func pseudoInverse(a mat.Matrix) (*mat.Dense, error) {
	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDThin) {
		return nil, errors.New("singular value decomposition failed")
	}

	values := svd.Values(nil)
	cutoff := 0.0
	if len(values) > 0 {
		cutoff = pinvRcond * values[0]
	}
	inv := make([]float64, len(values))
	for i, s := range values {
		if s > cutoff {
			inv[i] = 1 / s
		}
	}

	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	var vs mat.Dense
	vs.Mul(&v, mat.NewDiagDense(len(inv), inv))

	var out mat.Dense
	out.Mul(&vs, u.T())
	return &out, nil
}

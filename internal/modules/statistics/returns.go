// Package statistics provides the pure numerical kernel shared by the
// optimizers and the risk analytics: mean vectors, covariance, volatility,
// beta, drawdown, tail risk and sector exposure.
package statistics

import (
	"math"

	"github.com/aristath/quantfusion/internal/domain"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// TradingDaysPerYear is the default annualization period.
const TradingDaysPerYear = 252

// CovarianceEstimator selects how the covariance matrix is estimated.
type CovarianceEstimator string

const (
	// EstimatorSample is the unbiased sample covariance (N-1 denominator)
	EstimatorSample CovarianceEstimator = "sample"
	// EstimatorLedoitWolf shrinks the sample covariance towards a constant
	// correlation target
	EstimatorLedoitWolf CovarianceEstimator = "ledoit_wolf"
)

// PeriodReturns converts a price series into simple period-over-period
// returns. Prices must be strictly positive.
func PeriodReturns(prices []float64) ([]float64, error) {
	if len(prices) < 2 {
		return nil, domain.NewValidationError("prices", "need at least 2 prices, got %d", len(prices))
	}
	for i, p := range prices {
		if !(p > 0) || math.IsInf(p, 0) {
			return nil, domain.NewValidationError("prices", "price at %d must be positive and finite, got %v", i, p)
		}
	}

	returns := make([]float64, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		returns[i-1] = prices[i]/prices[i-1] - 1
	}
	return returns, nil
}

// MeanReturns returns the arithmetic mean return of each asset.
func MeanReturns(rm *domain.ReturnMatrix) []float64 {
	means := make([]float64, rm.Assets())
	for i := range means {
		means[i] = stat.Mean(rm.Series(i), nil)
	}
	return means
}

// Covariance computes a fresh covariance matrix for the return matrix.
// An empty estimator means EstimatorSample.
func Covariance(rm *domain.ReturnMatrix, estimator CovarianceEstimator) (*mat.SymDense, error) {
	obs := rm.Observations()
	data := mat.NewDense(rm.Periods(), rm.Assets(), nil)
	for t, row := range obs {
		data.SetRow(t, row)
	}

	cov := mat.NewSymDense(rm.Assets(), nil)
	stat.CovarianceMatrix(cov, data, nil)

	switch estimator {
	case "", EstimatorSample:
		return cov, nil
	case EstimatorLedoitWolf:
		return ShrinkCovariance(cov), nil
	default:
		return nil, domain.NewValidationError("covariance_method", "unknown estimator %q", estimator)
	}
}

// ShrinkCovariance applies constant-correlation shrinkage to a sample
// covariance matrix: Σ' = (1-δ)Σ + δT, where T keeps the sample variances
// on the diagonal and uses the average pairwise correlation off it.
// The intensity δ is estimated from the dispersion of the sample entries
// around the target and capped at 0.5.
//
// Reference: Ledoit, O., & Wolf, M. (2004). "Honey, I shrunk the sample covariance matrix"
func ShrinkCovariance(sample mat.Symmetric) *mat.SymDense {
	n := sample.SymmetricDim()
	out := mat.NewSymDense(n, nil)
	if n < 2 {
		out.CopySym(sample)
		return out
	}

	vols := make([]float64, n)
	for i := range vols {
		vols[i] = math.Sqrt(math.Max(sample.At(i, i), 0))
	}

	var rhoSum float64
	var pairs int
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if vols[i] > 0 && vols[j] > 0 {
				rhoSum += sample.At(i, j) / (vols[i] * vols[j])
				pairs++
			}
		}
	}
	avgRho := 0.0
	if pairs > 0 {
		avgRho = rhoSum / float64(pairs)
	}

	target := func(i, j int) float64 {
		if i == j {
			return sample.At(i, i)
		}
		return avgRho * vols[i] * vols[j]
	}

	// Squared distance to the target against the spread of the entries
	var distSq, sum, sumSq float64
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			v := sample.At(i, j)
			d := v - target(i, j)
			distSq += d * d
			sum += v
			sumSq += v * v
		}
	}
	count := float64(n * n)
	spread := sumSq/count - (sum/count)*(sum/count)
	meanDist := distSq / count

	shrinkage := 0.2
	if spread > 0 && meanDist > 0 {
		shrinkage = math.Min(0.5, math.Max(0, spread/(spread+meanDist)))
	}

	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			out.SetSym(i, j, (1-shrinkage)*sample.At(i, j)+shrinkage*target(i, j))
		}
	}
	return out
}

// CorrelationFromCovariance converts a covariance matrix into a correlation
// matrix. Assets with zero variance get zero correlation with every other
// asset and 1 on the diagonal.
func CorrelationFromCovariance(cov mat.Symmetric) *mat.SymDense {
	n := cov.SymmetricDim()
	corr := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		corr.SetSym(i, i, 1)
		for j := i + 1; j < n; j++ {
			denom := math.Sqrt(cov.At(i, i) * cov.At(j, j))
			if denom > 0 {
				corr.SetSym(i, j, cov.At(i, j)/denom)
			}
		}
	}
	return corr
}

// PortfolioVariance returns wᵀΣw.
func PortfolioVariance(weights []float64, cov mat.Symmetric) float64 {
	w := mat.NewVecDense(len(weights), weights)
	return mat.Inner(w, cov, w)
}

// PortfolioReturn returns μᵀw.
func PortfolioReturn(weights, means []float64) float64 {
	return mat.Dot(mat.NewVecDense(len(weights), weights), mat.NewVecDense(len(means), means))
}

package optimization

import (
	"context"
	"math"

	"github.com/aristath/quantfusion/internal/domain"
	"github.com/aristath/quantfusion/internal/modules/statistics"
	"gonum.org/v1/gonum/mat"
)

// Method names used in results, logs and metrics.
const (
	MethodMeanVariance   = "mean_variance"
	MethodRiskParity     = "risk_parity"
	MethodBlackLitterman = "black_litterman"
	MethodHRP            = "hrp"
)

// Problem is the common input of every allocator. MeanReturns and
// Covariance are indexed in Symbols order.
type Problem struct {
	Symbols      []string
	MeanReturns  []float64
	Covariance   *mat.SymDense
	RiskFreeRate float64
	Constraints  ConstraintSpec
}

// Validate checks that all inputs agree on the asset count.
func (p Problem) Validate() error {
	n := len(p.Symbols)
	if n == 0 {
		return domain.NewValidationError("symbols", "at least one asset is required")
	}
	if len(p.MeanReturns) != n {
		return domain.NewValidationError("mean_returns", "got %d mean returns for %d assets", len(p.MeanReturns), n)
	}
	if p.Covariance == nil || p.Covariance.SymmetricDim() != n {
		return domain.NewValidationError("covariance", "need a %dx%d covariance matrix", n, n)
	}
	for i, m := range p.MeanReturns {
		if math.IsNaN(m) || math.IsInf(m, 0) {
			return domain.NewValidationError("mean_returns", "mean return %d is not finite", i)
		}
	}
	return nil
}

// Allocation is the result of an allocator run.
type Allocation struct {
	Method         string    `json:"method"`
	Symbols        []string  `json:"symbols"`
	Weights        []float64 `json:"weights"`
	ExpectedReturn float64   `json:"expected_return"`
	Volatility     float64   `json:"volatility"`
	SharpeRatio    float64   `json:"sharpe_ratio"`
}

// WeightMap returns the weights keyed by symbol.
func (a *Allocation) WeightMap() map[string]float64 {
	out := make(map[string]float64, len(a.Symbols))
	for i, s := range a.Symbols {
		out[s] = a.Weights[i]
	}
	return out
}

// Point returns the allocation's position in risk/return space.
func (a *Allocation) Point() FrontierPoint {
	return FrontierPoint{Return: a.ExpectedReturn, Volatility: a.Volatility, Sharpe: a.SharpeRatio}
}

// Allocator is implemented by every portfolio construction method that
// works from a Problem alone.
type Allocator interface {
	Optimize(ctx context.Context, p Problem) (*Allocation, error)
}

// newAllocation reports weights the same way for every method.
func newAllocation(method string, p Problem, weights []float64) (*Allocation, error) {
	ret := statistics.PortfolioReturn(weights, p.MeanReturns)
	variance := statistics.PortfolioVariance(weights, p.Covariance)
	vol := math.Sqrt(math.Max(variance, 0))

	sharpe, err := statistics.SharpeRatio(ret, vol, p.RiskFreeRate)
	if err != nil {
		return nil, err
	}

	return &Allocation{
		Method:         method,
		Symbols:        append([]string(nil), p.Symbols...),
		Weights:        weights,
		ExpectedReturn: ret,
		Volatility:     vol,
		SharpeRatio:    sharpe,
	}, nil
}

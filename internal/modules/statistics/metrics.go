package statistics

import (
	"fmt"
	"math"

	"github.com/aristath/quantfusion/internal/domain"
	"github.com/markcheno/go-talib"
	"gonum.org/v1/gonum/stat"
)

// Volatility returns the annualized standard deviation of returns, scaling
// the sample standard deviation by √period. A period of 0 means
// TradingDaysPerYear.
func Volatility(returns []float64, period int) (float64, error) {
	if len(returns) < 2 {
		return 0, domain.NewValidationError("returns", "need at least 2 returns, got %d", len(returns))
	}
	if period <= 0 {
		period = TradingDaysPerYear
	}
	return stat.StdDev(returns, nil) * math.Sqrt(float64(period)), nil
}

// RollingVolatility returns the annualized volatility over a sliding window.
// The result has len(returns)-window+1 entries, the first covering
// returns[0:window].
//
// The window standard deviation is the population one, as computed by TA-Lib.
func RollingVolatility(returns []float64, window, period int) ([]float64, error) {
	if window < 2 {
		return nil, domain.NewValidationError("rolling_window", "must be at least 2, got %d", window)
	}
	if len(returns) < window {
		return nil, domain.NewValidationError("rolling_window", "window %d exceeds %d returns", window, len(returns))
	}
	if period <= 0 {
		period = TradingDaysPerYear
	}

	raw := talib.StdDev(returns, window, 1.0)
	scale := math.Sqrt(float64(period))
	out := make([]float64, len(returns)-window+1)
	for i := range out {
		out[i] = raw[i+window-1] * scale
	}
	return out, nil
}

// Beta returns covariance(asset, market) / variance(market).
func Beta(asset, market []float64) (float64, error) {
	if len(asset) != len(market) {
		return 0, &domain.DegenerateInputError{
			Quantity: "beta",
			Reason:   fmt.Sprintf("asset has %d returns, market has %d", len(asset), len(market)),
		}
	}
	if len(market) < 2 {
		return 0, &domain.DegenerateInputError{Quantity: "beta", Reason: "need at least 2 returns"}
	}

	variance := stat.Variance(market, nil)
	if variance == 0 {
		return 0, &domain.DegenerateInputError{Quantity: "beta", Reason: "market variance is zero"}
	}
	return stat.Covariance(asset, market, nil) / variance, nil
}

// Drawdown tracks the running peak of a price series left to right and
// returns the largest relative decline from it.
//
// Args:
//   - prices: Price series in chronological order
//
// Returns:
//   - MaxDrawdown with a non-positive Value, the peak index and the trough index
func Drawdown(prices []float64) (domain.MaxDrawdown, error) {
	if len(prices) == 0 {
		return domain.MaxDrawdown{}, domain.NewValidationError("prices", "price series is empty")
	}

	var result domain.MaxDrawdown
	peak, peakIdx := prices[0], 0
	for i, p := range prices {
		if !(p > 0) || math.IsInf(p, 0) {
			return domain.MaxDrawdown{}, domain.NewValidationError("prices", "price at %d must be positive and finite, got %v", i, p)
		}
		if p > peak {
			peak, peakIdx = p, i
		}
		dd := (p - peak) / peak
		if dd < result.Value {
			result = domain.MaxDrawdown{Value: dd, Start: peakIdx, End: i}
		}
	}
	return result, nil
}

// SharpeRatio returns (ret - riskFree) / vol. A zero or non-finite
// volatility has no Sharpe ratio.
func SharpeRatio(ret, vol, riskFree float64) (float64, error) {
	if !(vol > 0) || math.IsInf(vol, 0) {
		return 0, &domain.DegenerateInputError{Quantity: "sharpe_ratio", Reason: "portfolio volatility is zero"}
	}
	return (ret - riskFree) / vol, nil
}

// SectorExposure sums weights per distinct sector label.
func SectorExposure(weights []float64, sectors []string) (map[string]float64, error) {
	if len(weights) != len(sectors) {
		return nil, domain.NewValidationError("sectors", "got %d sector labels for %d weights", len(sectors), len(weights))
	}
	exposure := make(map[string]float64)
	for i, s := range sectors {
		exposure[s] += weights[i]
	}
	return exposure, nil
}

package statistics

import (
	"math"
	"sort"

	"github.com/aristath/quantfusion/internal/domain"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// TailRisk holds Value-at-Risk and Conditional VaR as positive loss
// magnitudes for one confidence level.
type TailRisk struct {
	Confidence float64           `json:"confidence_level"`
	Method     domain.RiskMethod `json:"method"`
	VaR        float64           `json:"var"`
	CVaR       float64           `json:"cvar"`
}

// ValueAtRisk returns the one-period VaR of a price series as a positive
// loss magnitude.
func ValueAtRisk(prices []float64, confidence float64, method domain.RiskMethod) (float64, error) {
	tr, err := TailRiskFromPrices(prices, confidence, method)
	if err != nil {
		return 0, err
	}
	return tr.VaR, nil
}

// ConditionalVaR returns the expected loss beyond VaR as a positive loss
// magnitude. It is never smaller than ValueAtRisk for the same inputs.
func ConditionalVaR(prices []float64, confidence float64, method domain.RiskMethod) (float64, error) {
	tr, err := TailRiskFromPrices(prices, confidence, method)
	if err != nil {
		return 0, err
	}
	return tr.CVaR, nil
}

// TailRiskFromPrices derives period returns from prices and computes VaR and
// CVaR together.
func TailRiskFromPrices(prices []float64, confidence float64, method domain.RiskMethod) (TailRisk, error) {
	returns, err := PeriodReturns(prices)
	if err != nil {
		return TailRisk{}, err
	}
	return TailRiskFromReturns(returns, confidence, method)
}

// TailRiskFromReturns computes VaR and CVaR from a return series.
//
// Historical: VaR is the empirical quantile at 1-confidence, CVaR the mean of
// the returns at or below it.
// Parametric: returns are taken as N(μ, σ²) with sample moments,
// VaR = -(μ + zσ) and CVaR = -(μ - σφ(z)/(1-confidence)) with z = Φ⁻¹(1-confidence).
func TailRiskFromReturns(returns []float64, confidence float64, method domain.RiskMethod) (TailRisk, error) {
	if !(confidence > 0 && confidence < 1) {
		return TailRisk{}, domain.NewValidationError("confidence_level", "must be in (0, 1), got %v", confidence)
	}
	if method == "" {
		method = domain.RiskMethodHistorical
	}

	tr := TailRisk{Confidence: confidence, Method: method}
	alpha := 1 - confidence

	switch method {
	case domain.RiskMethodHistorical:
		if len(returns) == 0 {
			return TailRisk{}, domain.NewValidationError("returns", "return series is empty")
		}
		sorted := append([]float64(nil), returns...)
		sort.Float64s(sorted)

		q := stat.Quantile(alpha, stat.Empirical, sorted, nil)
		var sum float64
		var count int
		for _, r := range sorted {
			if r > q {
				break
			}
			sum += r
			count++
		}
		tr.VaR = -q
		tr.CVaR = -sum / float64(count)

	case domain.RiskMethodParametric:
		if len(returns) < 2 {
			return TailRisk{}, domain.NewValidationError("returns", "need at least 2 returns, got %d", len(returns))
		}
		mean, std := stat.MeanStdDev(returns, nil)
		z := distuv.UnitNormal.Quantile(alpha)
		tr.VaR = -(mean + z*std)
		tr.CVaR = -(mean - std*distuv.UnitNormal.Prob(z)/alpha)

	default:
		return TailRisk{}, domain.NewValidationError("method", "unknown method %q", method)
	}

	if math.IsNaN(tr.VaR) || math.IsNaN(tr.CVaR) {
		return TailRisk{}, &domain.DegenerateInputError{Quantity: "value_at_risk", Reason: "tail estimate is not finite"}
	}
	return tr, nil
}

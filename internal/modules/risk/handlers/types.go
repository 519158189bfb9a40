package handlers

import (
	"math"

	"github.com/aristath/quantfusion/internal/domain"
	"gonum.org/v1/gonum/mat"
)

// symmetryTolerance absorbs rounding in caller-supplied covariance matrices.
const symmetryTolerance = 1e-10

// AnalyzeRequest is the body of POST /api/risk/analyze.
type AnalyzeRequest struct {
	Prices        []float64 `json:"prices" validate:"required,min=2"`
	Returns       []float64 `json:"returns"`
	MarketReturns []float64 `json:"market_returns"`

	Weights    []float64   `json:"weights"`
	Sectors    []string    `json:"sectors"`
	Covariance [][]float64 `json:"covariance"`

	ConfidenceLevel float64 `json:"confidence_level" validate:"omitempty,gt=0,lt=1"`
	Method          string  `json:"method" validate:"omitempty,oneof=historical parametric"`
	Period          int     `json:"period" validate:"omitempty,gt=0"`
	RollingWindow   int     `json:"rolling_window" validate:"omitempty,gt=1"`
}

// AttributionRequest is the body of POST /api/risk/attribution.
type AttributionRequest struct {
	Symbols    []string    `json:"symbols" validate:"omitempty,unique"`
	Weights    []float64   `json:"weights" validate:"required,min=1"`
	Covariance [][]float64 `json:"covariance" validate:"required,min=1"`
}

// AttributionResponse lists each asset's share of portfolio volatility.
type AttributionResponse struct {
	RiskContributions []float64          `json:"risk_contributions"`
	BySymbol          map[string]float64 `json:"by_symbol,omitempty"`
}

// VaRRequest is the body of POST /api/risk/var.
type VaRRequest struct {
	AssetPrices     []float64 `json:"asset_prices" validate:"required,min=3"`
	ConfidenceLevel float64   `json:"confidence_level" validate:"omitempty,gt=0,lt=1"`
	Method          string    `json:"method" validate:"omitempty,oneof=historical parametric"`
}

// VaRResponse is the tail risk of a single price series.
type VaRResponse struct {
	ConfidenceLevel float64           `json:"confidence_level"`
	Method          domain.RiskMethod `json:"method"`
	VaR             float64           `json:"var"`
	CVaR            float64           `json:"cvar"`
	Volatility      float64           `json:"volatility"`
}

// symmetric converts rows into a covariance matrix. A nil or empty input
// yields nil.
func symmetric(field string, rows [][]float64) (*mat.SymDense, error) {
	n := len(rows)
	if n == 0 {
		return nil, nil
	}
	data := make([]float64, 0, n*n)
	for i, row := range rows {
		if len(row) != n {
			return nil, domain.NewValidationError(field, "row %d has %d entries, expected %d", i, len(row), n)
		}
		data = append(data, row...)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if math.Abs(rows[i][j]-rows[j][i]) > symmetryTolerance {
				return nil, domain.NewValidationError(field, "matrix is not symmetric at (%d,%d)", i, j)
			}
		}
	}
	return mat.NewSymDense(n, data), nil
}

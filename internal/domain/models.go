// Package domain provides core domain models and types.
package domain

import (
	"math"
)

// ReturnMatrix holds one return series per asset, in caller order.
// All series have the same length.
type ReturnMatrix struct {
	symbols []string
	series  [][]float64
}

// NewReturnMatrix validates and copies the given series.
func NewReturnMatrix(symbols []string, series [][]float64) (*ReturnMatrix, error) {
	if len(symbols) == 0 {
		return nil, NewValidationError("symbols", "at least one asset is required")
	}
	if len(symbols) != len(series) {
		return nil, NewValidationError("returns", "got %d series for %d symbols", len(series), len(symbols))
	}

	seen := make(map[string]struct{}, len(symbols))
	periods := len(series[0])
	rm := &ReturnMatrix{
		symbols: make([]string, len(symbols)),
		series:  make([][]float64, len(series)),
	}
	for i, sym := range symbols {
		if sym == "" {
			return nil, NewValidationError("symbols", "symbol %d is empty", i)
		}
		if _, dup := seen[sym]; dup {
			return nil, NewValidationError("symbols", "duplicate symbol %q", sym)
		}
		seen[sym] = struct{}{}

		if len(series[i]) != periods {
			return nil, NewValidationError("returns", "series %q has %d periods, expected %d", sym, len(series[i]), periods)
		}
		for t, v := range series[i] {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, NewValidationError("returns", "series %q has a non-finite value at %d", sym, t)
			}
		}
		rm.symbols[i] = sym
		rm.series[i] = append([]float64(nil), series[i]...)
	}
	if periods < 2 {
		return nil, NewValidationError("returns", "need at least 2 periods, got %d", periods)
	}
	return rm, nil
}

// Assets returns the number of assets.
func (rm *ReturnMatrix) Assets() int { return len(rm.symbols) }

// Periods returns the number of observations per asset.
func (rm *ReturnMatrix) Periods() int { return len(rm.series[0]) }

// Symbols returns a copy of the asset identifiers.
func (rm *ReturnMatrix) Symbols() []string {
	return append([]string(nil), rm.symbols...)
}

// Series returns a copy of the return series at index i.
func (rm *ReturnMatrix) Series(i int) []float64 {
	return append([]float64(nil), rm.series[i]...)
}

// Observations returns the data laid out one row per period and one column
// per asset.
func (rm *ReturnMatrix) Observations() [][]float64 {
	rows := make([][]float64, rm.Periods())
	for t := range rows {
		rows[t] = make([]float64, rm.Assets())
		for i := range rm.series {
			rows[t][i] = rm.series[i][t]
		}
	}
	return rows
}

// ViewSpecification describes investor views for Black-Litterman blending.
// Picks has one row per view and one column per asset, Returns holds the
// expected return of each view and Uncertainties the variance of each view.
type ViewSpecification struct {
	Picks         [][]float64
	Returns       []float64
	Uncertainties []float64
}

// Len returns the number of views.
func (v ViewSpecification) Len() int { return len(v.Picks) }

// MaxDrawdown describes the worst peak-to-trough decline of a price series.
type MaxDrawdown struct {
	Value float64 `json:"value"` // negative fraction, e.g. -0.2
	Start int     `json:"start"` // index of the peak
	End   int     `json:"end"`   // index of the trough
}

// RiskMethod selects how Value-at-Risk is estimated.
type RiskMethod string

const (
	// RiskMethodHistorical uses the empirical return distribution
	RiskMethodHistorical RiskMethod = "historical"
	// RiskMethodParametric assumes normally distributed returns
	RiskMethodParametric RiskMethod = "parametric"
)

// Valid reports whether m is a known method.
func (m RiskMethod) Valid() bool {
	return m == RiskMethodHistorical || m == RiskMethodParametric
}

package api

import (
	"math"

	"github.com/shopspring/decimal"
)

// Precision is the number of decimal places in presented figures.
const Precision = 4

// Round rounds v half away from zero to Precision places. Non-finite values
// pass through.
func Round(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	out, _ := decimal.NewFromFloat(v).Round(Precision).Float64()
	return out
}

// RoundSlice rounds every element into a new slice.
func RoundSlice(vs []float64) []float64 {
	if vs == nil {
		return nil
	}
	out := make([]float64, len(vs))
	for i, v := range vs {
		out[i] = Round(v)
	}
	return out
}

// RoundMap rounds every value into a new map.
func RoundMap(m map[string]float64) map[string]float64 {
	if m == nil {
		return nil
	}
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = Round(v)
	}
	return out
}

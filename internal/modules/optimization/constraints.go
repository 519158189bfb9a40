// Package optimization provides portfolio optimization functionality.
package optimization

import (
	"fmt"
	"math"
	"sort"

	"github.com/aristath/quantfusion/internal/domain"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"
)

// boundSlack absorbs rounding when comparing summed bounds against the budget.
const boundSlack = 1e-9

// ConstraintSpec describes the caller's portfolio restrictions before they
// are turned into solver constraints.
type ConstraintSpec struct {
	MinWeight float64
	MaxWeight float64

	// Per-asset bounds override MinWeight/MaxWeight when set.
	MinWeights []float64
	MaxWeights []float64

	// Sector caps apply only when both labels and limits are given.
	Sectors      []string
	SectorLimits map[string]float64

	// Tracking error applies only when both benchmark and limit are given.
	BenchmarkWeights   []float64
	TrackingErrorLimit *float64
}

// DefaultConstraintSpec is the long-only, fully invested spec.
func DefaultConstraintSpec() ConstraintSpec {
	return ConstraintSpec{MinWeight: 0, MaxWeight: 1}
}

// LinearConstraint is Coeffs·w = Bound when Equality is set and
// Coeffs·w <= Bound otherwise.
type LinearConstraint struct {
	Name     string
	Coeffs   []float64
	Bound    float64
	Equality bool
}

// QuadraticConstraint is (w - Center)ᵀ Matrix (w - Center) <= Bound.
type QuadraticConstraint struct {
	Name   string
	Matrix mat.Symmetric
	Center []float64
	Bound  float64
}

// ConstraintSet is the solver-facing form of a ConstraintSpec. The budget
// constraint is always the first linear constraint.
type ConstraintSet struct {
	Lower     []float64
	Upper     []float64
	Linear    []LinearConstraint
	Quadratic []QuadraticConstraint
}

// Assets returns the problem dimension.
func (cs *ConstraintSet) Assets() int { return len(cs.Lower) }

// Count returns the number of scalar constraints, bounds included.
func (cs *ConstraintSet) Count() int {
	return 2*len(cs.Lower) + len(cs.Linear) + len(cs.Quadratic)
}

// WithReturnFloor returns a copy of the set that also requires μᵀw >= target.
func (cs *ConstraintSet) WithReturnFloor(mu []float64, target float64) *ConstraintSet {
	out := cs.clone()
	neg := make([]float64, len(mu))
	for i, m := range mu {
		neg[i] = -m
	}
	out.Linear = append(out.Linear, LinearConstraint{Name: "return_floor", Coeffs: neg, Bound: -target})
	return out
}

func (cs *ConstraintSet) clone() *ConstraintSet {
	out := &ConstraintSet{
		Lower:     append([]float64(nil), cs.Lower...),
		Upper:     append([]float64(nil), cs.Upper...),
		Linear:    append([]LinearConstraint(nil), cs.Linear...),
		Quadratic: append([]QuadraticConstraint(nil), cs.Quadratic...),
	}
	return out
}

// InitialPoint returns the equal-weight vector moved inside the bounds.
func (cs *ConstraintSet) InitialPoint() []float64 {
	n := cs.Assets()
	x := make([]float64, n)
	for i := range x {
		x[i] = 1.0 / float64(n)
	}
	return cs.Project(x)
}

// Project clips w to the bounds and then spreads any budget shortfall or
// excess over the assets that still have room, in proportion to that room.
// The result satisfies the bounds exactly and sums to 1 whenever the bounds
// admit a fully invested portfolio.
func (cs *ConstraintSet) Project(w []float64) []float64 {
	out := make([]float64, len(w))
	var sum float64
	for i, v := range w {
		out[i] = math.Max(cs.Lower[i], math.Min(cs.Upper[i], v))
		sum += out[i]
	}

	residual := 1 - sum
	if residual == 0 {
		return out
	}

	room := make([]float64, len(out))
	var total float64
	for i := range out {
		if residual > 0 {
			room[i] = cs.Upper[i] - out[i]
		} else {
			room[i] = out[i] - cs.Lower[i]
		}
		total += room[i]
	}
	if total <= 0 {
		return out
	}

	share := math.Min(1, math.Abs(residual)/total)
	for i := range out {
		if residual > 0 {
			out[i] += room[i] * share
		} else {
			out[i] -= room[i] * share
		}
	}
	return out
}

// ConstraintBuilder translates a ConstraintSpec into a ConstraintSet.
type ConstraintBuilder struct {
	log zerolog.Logger
}

// NewConstraintBuilder creates a new constraint builder.
func NewConstraintBuilder(log zerolog.Logger) *ConstraintBuilder {
	return &ConstraintBuilder{
		log: log.With().Str("component", "constraints").Logger(),
	}
}

// Build creates the constraint set for n assets. The covariance matrix is
// only used by the tracking-error constraint and may be nil when no
// benchmark is given.
func (cb *ConstraintBuilder) Build(n int, spec ConstraintSpec, cov mat.Symmetric) (*ConstraintSet, error) {
	if n <= 0 {
		return nil, domain.NewValidationError("symbols", "at least one asset is required")
	}

	lower, upper, err := cb.weightBounds(n, spec)
	if err != nil {
		return nil, err
	}

	budget := make([]float64, n)
	for i := range budget {
		budget[i] = 1
	}
	cs := &ConstraintSet{
		Lower:  lower,
		Upper:  upper,
		Linear: []LinearConstraint{{Name: "budget", Coeffs: budget, Bound: 1, Equality: true}},
	}

	sectors, err := cb.sectorConstraints(n, spec)
	if err != nil {
		return nil, err
	}
	cs.Linear = append(cs.Linear, sectors...)

	if spec.BenchmarkWeights != nil && spec.TrackingErrorLimit != nil {
		te, err := cb.trackingErrorConstraint(n, spec, cov)
		if err != nil {
			return nil, err
		}
		cs.Quadratic = append(cs.Quadratic, te)
	}

	if err := cb.ValidateConstraints(cs); err != nil {
		return nil, err
	}

	cb.log.Debug().
		Int("assets", n).
		Int("linear", len(cs.Linear)).
		Int("quadratic", len(cs.Quadratic)).
		Msg("Built constraint set")

	return cs, nil
}

func (cb *ConstraintBuilder) weightBounds(n int, spec ConstraintSpec) ([]float64, []float64, error) {
	if spec.MinWeights != nil && len(spec.MinWeights) != n {
		return nil, nil, domain.NewValidationError("min_weights", "got %d bounds for %d assets", len(spec.MinWeights), n)
	}
	if spec.MaxWeights != nil && len(spec.MaxWeights) != n {
		return nil, nil, domain.NewValidationError("max_weights", "got %d bounds for %d assets", len(spec.MaxWeights), n)
	}

	lower := make([]float64, n)
	upper := make([]float64, n)
	for i := 0; i < n; i++ {
		lower[i], upper[i] = spec.MinWeight, spec.MaxWeight
		if spec.MinWeights != nil {
			lower[i] = spec.MinWeights[i]
		}
		if spec.MaxWeights != nil {
			upper[i] = spec.MaxWeights[i]
		}
		if math.IsNaN(lower[i]) || math.IsNaN(upper[i]) {
			return nil, nil, domain.NewValidationError("weights", "bound for asset %d is NaN", i)
		}
		if lower[i] > upper[i] {
			return nil, nil, domain.NewValidationError("weights", "asset %d has min %.4f above max %.4f", i, lower[i], upper[i])
		}
	}
	return lower, upper, nil
}

func (cb *ConstraintBuilder) sectorConstraints(n int, spec ConstraintSpec) ([]LinearConstraint, error) {
	if len(spec.Sectors) == 0 || len(spec.SectorLimits) == 0 {
		return nil, nil
	}
	if len(spec.Sectors) != n {
		return nil, domain.NewValidationError("sectors", "got %d sector labels for %d assets", len(spec.Sectors), n)
	}

	members := make(map[string][]int)
	for i, s := range spec.Sectors {
		members[s] = append(members[s], i)
	}

	// Sorted for a deterministic constraint order
	labels := make([]string, 0, len(spec.SectorLimits))
	for label := range spec.SectorLimits {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	var out []LinearConstraint
	for _, label := range labels {
		limit := spec.SectorLimits[label]
		if math.IsNaN(limit) || limit < 0 {
			return nil, domain.NewValidationError("sector_limits", "limit for %q must be non-negative, got %v", label, limit)
		}
		idx, ok := members[label]
		if !ok {
			cb.log.Debug().Str("sector", label).Msg("No assets in sector, skipping limit")
			continue
		}
		coeffs := make([]float64, n)
		for _, i := range idx {
			coeffs[i] = 1
		}
		out = append(out, LinearConstraint{Name: "sector:" + label, Coeffs: coeffs, Bound: limit})
	}
	return out, nil
}

func (cb *ConstraintBuilder) trackingErrorConstraint(n int, spec ConstraintSpec, cov mat.Symmetric) (QuadraticConstraint, error) {
	limit := *spec.TrackingErrorLimit
	if math.IsNaN(limit) || limit < 0 {
		return QuadraticConstraint{}, domain.NewValidationError("tracking_error_limit", "must be non-negative, got %v", limit)
	}
	if len(spec.BenchmarkWeights) != n {
		return QuadraticConstraint{}, domain.NewValidationError("benchmark_weights", "got %d weights for %d assets", len(spec.BenchmarkWeights), n)
	}
	if cov == nil || cov.SymmetricDim() != n {
		return QuadraticConstraint{}, domain.NewValidationError("covariance", "tracking error needs a %dx%d covariance matrix", n, n)
	}
	return QuadraticConstraint{
		Name:   "tracking_error",
		Matrix: cov,
		Center: append([]float64(nil), spec.BenchmarkWeights...),
		Bound:  limit * limit,
	}, nil
}

// ValidateConstraints rejects sets whose bounds cannot add up to a fully
// invested portfolio.
func (cb *ConstraintBuilder) ValidateConstraints(cs *ConstraintSet) error {
	var totalMin, totalMax float64
	for i := range cs.Lower {
		totalMin += cs.Lower[i]
		totalMax += cs.Upper[i]
	}
	if totalMin > 1+boundSlack {
		return &domain.InfeasibleError{
			Assets:      cs.Assets(),
			Constraints: cs.Count(),
			Violation:   totalMin - 1,
			Reason:      fmt.Sprintf("minimum weights sum to %.4f, above 1", totalMin),
		}
	}
	if totalMax < 1-boundSlack {
		return &domain.InfeasibleError{
			Assets:      cs.Assets(),
			Constraints: cs.Count(),
			Violation:   1 - totalMax,
			Reason:      fmt.Sprintf("maximum weights sum to %.4f, below 1", totalMax),
		}
	}
	return nil
}

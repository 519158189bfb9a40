package optimization

import (
	"context"
	"math"

	"github.com/aristath/quantfusion/internal/domain"
	"github.com/aristath/quantfusion/internal/modules/statistics"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"
)

// Linkage selects how the distance between two clusters is measured.
type Linkage string

const (
	LinkageSingle   Linkage = "single"
	LinkageComplete Linkage = "complete"
	LinkageAverage  Linkage = "average"
)

// HRPOptimizer performs Hierarchical Risk Parity allocation:
//  1. correlation from covariance
//  2. distance d_ij = sqrt((1 - ρ_ij) / 2)
//  3. agglomerative clustering with a deterministic tie-break
//  4. quasi-diagonal leaf order from the dendrogram
//  5. recursive bisection by inverse-variance cluster risk
//
// Box bounds are applied to the result; sector and tracking-error limits
// are not supported.
type HRPOptimizer struct {
	builder *ConstraintBuilder
	linkage Linkage
	log     zerolog.Logger
}

// NewHRPOptimizer creates a new HRP optimizer. An empty linkage means single.
func NewHRPOptimizer(builder *ConstraintBuilder, linkage Linkage, log zerolog.Logger) *HRPOptimizer {
	if linkage == "" {
		linkage = LinkageSingle
	}
	return &HRPOptimizer{
		builder: builder,
		linkage: linkage,
		log:     log.With().Str("component", "hrp").Logger(),
	}
}

type clusterNode struct {
	left, right *clusterNode
	leaves      []int
	minLeaf     int
}

// Optimize implements Allocator. The context is unused since HRP has no
// iterative solve.
func (hrp *HRPOptimizer) Optimize(_ context.Context, p Problem) (*Allocation, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if len(p.Constraints.SectorLimits) > 0 || p.Constraints.TrackingErrorLimit != nil {
		return nil, domain.NewValidationError("constraints", "hrp supports weight bounds only")
	}

	n := len(p.Symbols)
	cons, err := hrp.builder.Build(n, p.Constraints, p.Covariance)
	if err != nil {
		return nil, err
	}

	weights := make([]float64, n)
	for i := range weights {
		weights[i] = 1
	}

	if n > 1 {
		dist := correlationDistance(statistics.CorrelationFromCovariance(p.Covariance))
		order := hrp.buildDendrogram(dist).order()
		hrp.bisect(weights, p.Covariance, order)
	}

	var sum float64
	for _, w := range weights {
		sum += w
	}
	if !(sum > 0) || math.IsInf(sum, 0) {
		return nil, &domain.DegenerateInputError{Quantity: "hrp_weights", Reason: "allocated weights do not sum to a positive value"}
	}
	for i := range weights {
		weights[i] /= sum
	}

	hrp.log.Debug().Int("assets", n).Str("linkage", string(hrp.linkage)).Msg("HRP allocation complete")

	return newAllocation(MethodHRP, p, cons.Project(weights))
}

func correlationDistance(corr mat.Symmetric) *mat.SymDense {
	n := corr.SymmetricDim()
	dist := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			dist.SetSym(i, j, math.Sqrt(math.Max(0, (1-corr.At(i, j))/2)))
		}
	}
	return dist
}

func (hrp *HRPOptimizer) buildDendrogram(dist mat.Symmetric) *clusterNode {
	n := dist.SymmetricDim()
	clusters := make([]*clusterNode, n)
	for i := range clusters {
		clusters[i] = &clusterNode{leaves: []int{i}, minLeaf: i}
	}

	for len(clusters) > 1 {
		bi, bj := 0, 1
		best := hrp.clusterDistance(dist, clusters[0], clusters[1])
		for i := 0; i < len(clusters); i++ {
			for j := i + 1; j < len(clusters); j++ {
				d := hrp.clusterDistance(dist, clusters[i], clusters[j])
				if d < best || (d == best && pairLess(clusters[i], clusters[j], clusters[bi], clusters[bj])) {
					best, bi, bj = d, i, j
				}
			}
		}

		left, right := clusters[bi], clusters[bj]
		if right.minLeaf < left.minLeaf {
			left, right = right, left
		}
		merged := &clusterNode{
			left:    left,
			right:   right,
			leaves:  append(append([]int(nil), left.leaves...), right.leaves...),
			minLeaf: left.minLeaf,
		}

		next := make([]*clusterNode, 0, len(clusters)-1)
		for k, c := range clusters {
			if k != bi && k != bj {
				next = append(next, c)
			}
		}
		clusters = append(next, merged)
	}
	return clusters[0]
}

// pairLess orders cluster pairs by their smallest and then second smallest
// leaf index.
func pairLess(a1, b1, a2, b2 *clusterNode) bool {
	x1, y1 := a1.minLeaf, b1.minLeaf
	if y1 < x1 {
		x1, y1 = y1, x1
	}
	x2, y2 := a2.minLeaf, b2.minLeaf
	if y2 < x2 {
		x2, y2 = y2, x2
	}
	if x1 != x2 {
		return x1 < x2
	}
	return y1 < y2
}

func (hrp *HRPOptimizer) clusterDistance(dist mat.Symmetric, a, b *clusterNode) float64 {
	var acc float64
	switch hrp.linkage {
	case LinkageComplete:
		acc = math.Inf(-1)
	case LinkageAverage:
		acc = 0
	default:
		acc = math.Inf(1)
	}
	for _, i := range a.leaves {
		for _, j := range b.leaves {
			d := dist.At(i, j)
			switch hrp.linkage {
			case LinkageComplete:
				acc = math.Max(acc, d)
			case LinkageAverage:
				acc += d
			default:
				acc = math.Min(acc, d)
			}
		}
	}
	if hrp.linkage == LinkageAverage {
		acc /= float64(len(a.leaves) * len(b.leaves))
	}
	return acc
}

func (node *clusterNode) order() []int {
	if node.left == nil {
		return []int{node.leaves[0]}
	}
	return append(node.left.order(), node.right.order()...)
}

// bisect splits the ordered assets in halves and scales each half by the
// other half's share of the combined cluster variance.
func (hrp *HRPOptimizer) bisect(weights []float64, cov mat.Symmetric, order []int) {
	if len(order) <= 1 {
		return
	}
	left, right := order[:len(order)/2], order[len(order)/2:]

	vLeft := clusterVariance(cov, left)
	vRight := clusterVariance(cov, right)
	alpha := 0.5
	if vLeft+vRight > 0 {
		alpha = 1 - vLeft/(vLeft+vRight)
	}

	for _, i := range left {
		weights[i] *= alpha
	}
	for _, i := range right {
		weights[i] *= 1 - alpha
	}

	hrp.bisect(weights, cov, left)
	hrp.bisect(weights, cov, right)
}

// clusterVariance is the variance of the inverse-variance portfolio of the
// cluster.
func clusterVariance(cov mat.Symmetric, idx []int) float64 {
	const floor = 1e-12

	ivp := make([]float64, len(idx))
	var total float64
	for k, i := range idx {
		ivp[k] = 1 / math.Max(cov.At(i, i), floor)
		total += ivp[k]
	}

	var variance float64
	for a, i := range idx {
		for b, j := range idx {
			variance += ivp[a] / total * cov.At(i, j) * ivp[b] / total
		}
	}
	return math.Max(variance, 0)
}

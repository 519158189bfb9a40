package optimization

import (
	"context"
	"math"
	"math/rand/v2"
	"runtime"

	"github.com/aristath/quantfusion/internal/domain"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"
)

const (
	// DefaultFrontierSamples is the number of random portfolios drawn.
	DefaultFrontierSamples = 5000

	// frontierChunk is the number of samples drawn from one random stream.
	// Fixed so the cloud for a given seed does not depend on the worker count.
	frontierChunk = 500
)

// FrontierPoint is a portfolio in risk/return space. Degenerate is set for
// zero-volatility samples, whose Sharpe ratio is reported as 0.
type FrontierPoint struct {
	Return     float64 `json:"return"`
	Volatility float64 `json:"volatility"`
	Sharpe     float64 `json:"sharpe"`
	Degenerate bool    `json:"degenerate,omitempty"`
}

// Frontier is a Monte-Carlo cloud of long-only, fully invested portfolios.
type Frontier struct {
	Points       []FrontierPoint `json:"points"`
	RiskFreeRate float64         `json:"risk_free_rate"`
	Seed         uint64          `json:"seed"`
}

// PlotOptions tunes a single frontier plot. Zero values select the
// plotter's configured defaults; a nil Seed means a fresh seed.
type PlotOptions struct {
	Samples int
	Seed    *uint64
}

// FrontierPlotter is the visualization collaborator. It returns an opaque
// encoded artifact that callers pass through without inspecting.
type FrontierPlotter interface {
	PlotFrontier(ctx context.Context, meanReturns []float64, cov mat.Symmetric, riskFreeRate float64, optimal *FrontierPoint, opts PlotOptions) (string, error)
}

// FrontierSampler draws portfolios uniformly from the simplex via a
// symmetric Dirichlet(1, ..., 1) distribution.
type FrontierSampler struct {
	samples int
	workers int
	log     zerolog.Logger
}

// NewFrontierSampler creates a sampler. Non-positive values select
// DefaultFrontierSamples and one worker per CPU.
func NewFrontierSampler(samples, workers int, log zerolog.Logger) *FrontierSampler {
	if samples <= 0 {
		samples = DefaultFrontierSamples
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &FrontierSampler{
		samples: samples,
		workers: workers,
		log:     log.With().Str("component", "frontier_sampler").Logger(),
	}
}

// Samples returns the configured sample count.
func (fs *FrontierSampler) Samples() int { return fs.samples }

// Sample draws the configured number of portfolios. The same seed always
// produces the same cloud.
func (fs *FrontierSampler) Sample(ctx context.Context, meanReturns []float64, cov mat.Symmetric, riskFreeRate float64, seed uint64) (*Frontier, error) {
	return fs.SampleN(ctx, meanReturns, cov, riskFreeRate, seed, fs.samples)
}

// SampleN is Sample with an explicit sample count.
func (fs *FrontierSampler) SampleN(ctx context.Context, meanReturns []float64, cov mat.Symmetric, riskFreeRate float64, seed uint64, samples int) (*Frontier, error) {
	n := len(meanReturns)
	if n == 0 {
		return nil, domain.NewValidationError("mean_returns", "at least one asset is required")
	}
	if cov.SymmetricDim() != n {
		return nil, domain.NewValidationError("covariance", "need a %dx%d covariance matrix", n, n)
	}
	if samples <= 0 {
		samples = fs.samples
	}

	alpha := make([]float64, n)
	for i := range alpha {
		alpha[i] = 1
	}

	points := make([]FrontierPoint, samples)
	chunks := (samples + frontierChunk - 1) / frontierChunk

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fs.workers)
	for c := 0; c < chunks; c++ {
		start := c * frontierChunk
		end := min(start+frontierChunk, samples)
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			dir := distmv.NewDirichlet(alpha, rand.NewPCG(seed, uint64(c)))
			w := make([]float64, n)
			wv := mat.NewVecDense(n, w)
			mu := mat.NewVecDense(n, meanReturns)
			for i := start; i < end; i++ {
				dir.Rand(w)
				ret := mat.Dot(wv, mu)
				vol := math.Sqrt(math.Max(mat.Inner(wv, cov, wv), 0))
				pt := FrontierPoint{Return: ret, Volatility: vol}
				if vol > 0 {
					pt.Sharpe = (ret - riskFreeRate) / vol
				} else {
					pt.Degenerate = true
				}
				points[i] = pt
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, &domain.TimeoutError{Operation: "frontier sampling", Err: err}
	}

	fs.log.Debug().Int("samples", samples).Int("assets", n).Uint64("seed", seed).Msg("Sampled frontier")

	return &Frontier{Points: points, RiskFreeRate: riskFreeRate, Seed: seed}, nil
}

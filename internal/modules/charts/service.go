// Package charts renders efficient frontier plots.
package charts

import (
	"context"
	"encoding/base64"
	"fmt"
	"math"
	"time"

	"github.com/aristath/quantfusion/internal/modules/optimization"
	"github.com/rs/zerolog"
	gocharts "github.com/vicanso/go-charts/v2"
	"gonum.org/v1/gonum/mat"
)

const (
	defaultWidth   = 800
	defaultHeight  = 600
	defaultBuckets = 40
)

// Options configures the rendered image. A zero Seed means every plot is
// drawn from a fresh time-based seed.
type Options struct {
	Width  int
	Height int
	Seed   uint64
}

// Service draws the Monte-Carlo efficient frontier as a PNG.
type Service struct {
	sampler *optimization.FrontierSampler
	opts    Options
	log     zerolog.Logger
}

// NewService creates a new charts service
func NewService(sampler *optimization.FrontierSampler, opts Options, log zerolog.Logger) *Service {
	if opts.Width <= 0 {
		opts.Width = defaultWidth
	}
	if opts.Height <= 0 {
		opts.Height = defaultHeight
	}
	return &Service{
		sampler: sampler,
		opts:    opts,
		log:     log.With().Str("service", "charts").Logger(),
	}
}

// FrontierSeries is the line data behind a frontier plot. Labels are the
// volatility bucket midpoints; Envelope is the best sampled return per
// bucket and CML the capital market line through the best Sharpe sample.
type FrontierSeries struct {
	Labels    []string
	Envelope  []float64
	CML       []float64
	Optimal   []float64
	MaxSharpe optimization.FrontierPoint
}

// PlotFrontier implements optimization.FrontierPlotter. It returns the PNG
// encoded as standard base64.
func (s *Service) PlotFrontier(
	ctx context.Context,
	meanReturns []float64,
	cov mat.Symmetric,
	riskFreeRate float64,
	optimal *optimization.FrontierPoint,
	opts optimization.PlotOptions,
) (string, error) {
	seed := s.opts.Seed
	if opts.Seed != nil {
		seed = *opts.Seed
	}
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}

	frontier, err := s.sampler.SampleN(ctx, meanReturns, cov, riskFreeRate, seed, opts.Samples)
	if err != nil {
		return "", fmt.Errorf("failed to sample frontier: %w", err)
	}

	series := BuildSeries(frontier, optimal, defaultBuckets)
	png, err := s.render(series, riskFreeRate, optimal)
	if err != nil {
		return "", err
	}

	s.log.Debug().
		Int("samples", len(frontier.Points)).
		Uint64("seed", seed).
		Int("bytes", len(png)).
		Msg("Rendered efficient frontier")

	return base64.StdEncoding.EncodeToString(png), nil
}

// BuildSeries buckets the cloud by volatility. Empty buckets repeat the
// previous envelope value so the line stays continuous.
func BuildSeries(f *optimization.Frontier, optimal *optimization.FrontierPoint, buckets int) FrontierSeries {
	if buckets <= 0 {
		buckets = defaultBuckets
	}

	lo, hi := math.Inf(1), math.Inf(-1)
	var best optimization.FrontierPoint
	bestSharpe := math.Inf(-1)
	for _, pt := range f.Points {
		lo = math.Min(lo, pt.Volatility)
		hi = math.Max(hi, pt.Volatility)
		if !pt.Degenerate && pt.Sharpe > bestSharpe {
			bestSharpe, best = pt.Sharpe, pt
		}
	}
	if len(f.Points) == 0 || hi <= lo {
		buckets = 1
	}
	width := (hi - lo) / float64(buckets)

	bucketOf := func(vol float64) int {
		if width <= 0 {
			return 0
		}
		return min(int((vol-lo)/width), buckets-1)
	}

	out := FrontierSeries{
		Labels:    make([]string, buckets),
		Envelope:  make([]float64, buckets),
		CML:       make([]float64, buckets),
		Optimal:   make([]float64, buckets),
		MaxSharpe: best,
	}
	filled := make([]bool, buckets)
	for _, pt := range f.Points {
		b := bucketOf(pt.Volatility)
		if !filled[b] || pt.Return > out.Envelope[b] {
			out.Envelope[b] = pt.Return
			filled[b] = true
		}
	}

	for b := range out.Labels {
		mid := lo + (float64(b)+0.5)*width
		out.Labels[b] = fmt.Sprintf("%.1f%%", mid*100)
		if !filled[b] && b > 0 {
			out.Envelope[b] = out.Envelope[b-1]
		}
		if !math.IsInf(bestSharpe, -1) {
			out.CML[b] = f.RiskFreeRate + bestSharpe*mid
		}
		if optimal != nil {
			out.Optimal[b] = optimal.Return
		}
	}
	return out
}

func (s *Service) render(series FrontierSeries, riskFreeRate float64, optimal *optimization.FrontierPoint) ([]byte, error) {
	values := [][]float64{series.Envelope, series.CML}
	names := []string{"Efficient frontier", "Capital market line"}
	if optimal != nil {
		values = append(values, series.Optimal)
		names = append(names, "Optimal return")
	}

	seriesList := gocharts.NewSeriesListDataFromValues(values, gocharts.ChartTypeLine)
	for i := range seriesList {
		seriesList[i].Name = names[i]
	}

	subtitle := fmt.Sprintf("Risk-free %.2f%% | Max Sharpe %.2f", riskFreeRate*100, series.MaxSharpe.Sharpe)
	if optimal != nil {
		subtitle += fmt.Sprintf(" | Optimal: return %.2f%%, vol %.2f%%, Sharpe %.2f",
			optimal.Return*100, optimal.Volatility*100, optimal.Sharpe)
	}

	split := len(series.Labels) / 5
	if split < 1 {
		split = 1
	}

	p, err := gocharts.Render(gocharts.ChartOption{SeriesList: seriesList},
		gocharts.TitleTextOptionFunc("Efficient Frontier", subtitle),
		gocharts.XAxisOptionFunc(gocharts.XAxisOption{
			Data:        series.Labels,
			SplitNumber: split,
			BoundaryGap: gocharts.FalseFlag(),
		}),
		gocharts.YAxisOptionFunc(gocharts.YAxisOption{DivideCount: 5}),
		gocharts.LegendOptionFunc(gocharts.LegendOption{Data: names}),
		gocharts.ThemeOptionFunc(gocharts.ThemeLight),
		gocharts.WidthOptionFunc(s.opts.Width),
		gocharts.HeightOptionFunc(s.opts.Height),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to render chart: %w", err)
	}

	buf, err := p.Bytes()
	if err != nil {
		return nil, fmt.Errorf("failed to generate chart bytes: %w", err)
	}
	return buf, nil
}

package optimization

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/quantfusion/internal/domain"
	"github.com/aristath/quantfusion/internal/modules/statistics"
	"github.com/rs/zerolog"
)

// PortfolioRequest is the validated numeric input of an optimization call.
// Returns holds one series per symbol.
type PortfolioRequest struct {
	Symbols             []string
	Returns             [][]float64
	RiskFreeRate        float64
	Constraints         ConstraintSpec
	CovarianceEstimator statistics.CovarianceEstimator

	// Black-Litterman only
	BlackLitterman *BlackLittermanInputs

	// IncludePlot asks the plotter for a frontier artifact
	IncludePlot bool
	Plot        PlotOptions
}

// PortfolioResult is the full output of an optimization call.
type PortfolioResult struct {
	Allocation *Allocation
	Estimate   *BlackLittermanEstimate
	Plot       string
	Duration   time.Duration
}

// Service is the entry point for all portfolio construction methods. It
// holds no per-request state.
type Service struct {
	mv      *MVOptimizer
	rp      *RiskParityOptimizer
	bl      *BlackLittermanOptimizer
	hrp     *HRPOptimizer
	plotter FrontierPlotter
	log     zerolog.Logger
}

// NewService creates the optimization service. plotter may be nil, in which
// case no plots are produced.
func NewService(
	mv *MVOptimizer,
	rp *RiskParityOptimizer,
	bl *BlackLittermanOptimizer,
	hrp *HRPOptimizer,
	plotter FrontierPlotter,
	log zerolog.Logger,
) *Service {
	return &Service{
		mv:      mv,
		rp:      rp,
		bl:      bl,
		hrp:     hrp,
		plotter: plotter,
		log:     log.With().Str("service", "optimization").Logger(),
	}
}

// MeanVariance runs minimum-variance optimization with the return floor.
func (s *Service) MeanVariance(ctx context.Context, req PortfolioRequest) (*PortfolioResult, error) {
	return s.run(ctx, MethodMeanVariance, req, s.mv)
}

// RiskParity runs equal risk contribution allocation.
func (s *Service) RiskParity(ctx context.Context, req PortfolioRequest) (*PortfolioResult, error) {
	return s.run(ctx, MethodRiskParity, req, s.rp)
}

// HRP runs hierarchical risk parity allocation.
func (s *Service) HRP(ctx context.Context, req PortfolioRequest) (*PortfolioResult, error) {
	return s.run(ctx, MethodHRP, req, s.hrp)
}

// BlackLitterman blends views into the equilibrium returns and runs
// mean-variance optimization on the posterior.
func (s *Service) BlackLitterman(ctx context.Context, req PortfolioRequest) (*PortfolioResult, error) {
	start := time.Now()
	if req.BlackLitterman == nil {
		return nil, &domain.InvalidViewError{Assets: len(req.Symbols), Reason: "market weights and views are required"}
	}

	p, err := s.Problem(req)
	if err != nil {
		return nil, err
	}

	alloc, est, err := s.bl.Optimize(ctx, p, *req.BlackLitterman)
	if err != nil {
		return nil, err
	}

	p.MeanReturns = est.Posterior
	result := &PortfolioResult{Allocation: alloc, Estimate: est}
	if err := s.attachPlot(ctx, req, p, result); err != nil {
		return nil, err
	}
	result.Duration = time.Since(start)
	return result, nil
}

func (s *Service) run(ctx context.Context, method string, req PortfolioRequest, allocator Allocator) (*PortfolioResult, error) {
	start := time.Now()

	p, err := s.Problem(req)
	if err != nil {
		return nil, err
	}

	alloc, err := allocator.Optimize(ctx, p)
	if err != nil {
		return nil, err
	}

	result := &PortfolioResult{Allocation: alloc}
	if err := s.attachPlot(ctx, req, p, result); err != nil {
		return nil, err
	}
	result.Duration = time.Since(start)

	s.log.Info().
		Str("method", method).
		Int("assets", len(p.Symbols)).
		Dur("duration", result.Duration).
		Msg("Optimization complete")

	return result, nil
}

// Problem derives mean returns and a fresh covariance matrix from the
// request's return series.
func (s *Service) Problem(req PortfolioRequest) (Problem, error) {
	rm, err := domain.NewReturnMatrix(req.Symbols, req.Returns)
	if err != nil {
		return Problem{}, err
	}
	cov, err := statistics.Covariance(rm, req.CovarianceEstimator)
	if err != nil {
		return Problem{}, err
	}
	return Problem{
		Symbols:      rm.Symbols(),
		MeanReturns:  statistics.MeanReturns(rm),
		Covariance:   cov,
		RiskFreeRate: req.RiskFreeRate,
		Constraints:  req.Constraints,
	}, nil
}

func (s *Service) attachPlot(ctx context.Context, req PortfolioRequest, p Problem, result *PortfolioResult) error {
	if !req.IncludePlot || s.plotter == nil {
		return nil
	}
	point := result.Allocation.Point()
	plot, err := s.plotter.PlotFrontier(ctx, p.MeanReturns, p.Covariance, p.RiskFreeRate, &point, req.Plot)
	if err != nil {
		return fmt.Errorf("failed to plot efficient frontier: %w", err)
	}
	result.Plot = plot
	return nil
}

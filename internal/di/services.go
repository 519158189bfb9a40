package di

import (
	"fmt"

	"github.com/aristath/quantfusion/internal/api"
	"github.com/aristath/quantfusion/internal/config"
	"github.com/aristath/quantfusion/internal/metrics"
	"github.com/aristath/quantfusion/internal/modules/charts"
	"github.com/aristath/quantfusion/internal/modules/optimization"
	"github.com/aristath/quantfusion/internal/modules/risk"
	"github.com/rs/zerolog"
)

// InitializeInfrastructure creates the metrics registry and request decoder
func InitializeInfrastructure(container *Container, cfg *config.Config) {
	container.Metrics = metrics.New()
	container.Decoder = api.NewDecoder(cfg.MaxBodyBytes)
}

// InitializeOptimizers creates the solver and every allocator sharing it
func InitializeOptimizers(container *Container, cfg *config.Config, log zerolog.Logger) error {
	linkage := optimization.Linkage(cfg.HRPLinkage)
	switch linkage {
	case optimization.LinkageSingle, optimization.LinkageComplete, optimization.LinkageAverage:
	default:
		return fmt.Errorf("unknown HRP linkage %q", cfg.HRPLinkage)
	}

	container.Solver = optimization.NewAugmentedLagrangian(optimization.SolverSettings{
		MaxOuterIterations:   cfg.Solver.MaxOuterIterations,
		MaxInnerIterations:   cfg.Solver.MaxInnerIterations,
		Tolerance:            cfg.Solver.Tolerance,
		FeasibilityTolerance: cfg.Solver.FeasibilityTolerance,
	}, log)
	container.ConstraintBuilder = optimization.NewConstraintBuilder(log)

	container.MVOptimizer = optimization.NewMVOptimizer(container.Solver, container.ConstraintBuilder, log)
	container.RiskParity = optimization.NewRiskParityOptimizer(container.Solver, container.ConstraintBuilder, log)
	container.BlackLitterman = optimization.NewBlackLittermanOptimizer(container.MVOptimizer, log)
	container.HRP = optimization.NewHRPOptimizer(container.ConstraintBuilder, linkage, log)
	container.FrontierSampler = optimization.NewFrontierSampler(cfg.Frontier.Samples, cfg.Frontier.Workers, log)

	log.Debug().
		Str("hrp_linkage", string(linkage)).
		Int("frontier_samples", container.FrontierSampler.Samples()).
		Msg("Optimizers initialized")
	return nil
}

// InitializeServices creates the services the HTTP handlers call into
func InitializeServices(container *Container, cfg *config.Config, log zerolog.Logger) {
	container.ChartsService = charts.NewService(container.FrontierSampler, charts.Options{
		Width:  cfg.Frontier.Width,
		Height: cfg.Frontier.Height,
		Seed:   cfg.Frontier.Seed,
	}, log)

	container.OptimizationService = optimization.NewService(
		container.MVOptimizer,
		container.RiskParity,
		container.BlackLitterman,
		container.HRP,
		container.ChartsService,
		log,
	)

	container.RiskAnalyzer = risk.NewAnalyzer(log)
}

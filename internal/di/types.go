/**
 * Package di provides dependency injection type definitions.
 *
 * This package defines the Container type which holds all application dependencies.
 * The Container is the single source of truth for all service instances and is
 * passed to the server for access to services.
 */
package di

import (
	"github.com/aristath/quantfusion/internal/api"
	"github.com/aristath/quantfusion/internal/metrics"
	"github.com/aristath/quantfusion/internal/modules/charts"
	"github.com/aristath/quantfusion/internal/modules/optimization"
	"github.com/aristath/quantfusion/internal/modules/risk"
)

// Container holds all application dependencies
type Container struct {
	// Infrastructure
	Metrics *metrics.Metrics
	Decoder *api.Decoder

	// Optimization building blocks
	Solver            optimization.Solver
	ConstraintBuilder *optimization.ConstraintBuilder
	MVOptimizer       *optimization.MVOptimizer
	RiskParity        *optimization.RiskParityOptimizer
	BlackLitterman    *optimization.BlackLittermanOptimizer
	HRP               *optimization.HRPOptimizer
	FrontierSampler   *optimization.FrontierSampler

	// Services
	ChartsService       *charts.Service
	OptimizationService *optimization.Service
	RiskAnalyzer        *risk.Analyzer
}

// Package di provides dependency injection wiring and initialization.
package di

import (
	"fmt"

	"github.com/aristath/quantfusion/internal/config"
	"github.com/rs/zerolog"
)

// Wire initializes all dependencies and returns a fully configured container
// This is the main entry point for dependency injection
// Order of operations:
// 1. Initialize infrastructure (metrics, request decoding)
// 2. Initialize optimizers
// 3. Initialize services
func Wire(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container := &Container{}

	// Step 1: Initialize infrastructure
	InitializeInfrastructure(container, cfg)

	// Step 2: Initialize optimizers
	if err := InitializeOptimizers(container, cfg, log); err != nil {
		return nil, fmt.Errorf("failed to initialize optimizers: %w", err)
	}

	// Step 3: Initialize services
	InitializeServices(container, cfg, log)

	log.Info().Msg("Dependency injection wiring completed successfully")
	return container, nil
}

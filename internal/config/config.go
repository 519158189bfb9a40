// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// envPrefix is prepended to every environment variable, e.g. QUANT_PORT.
const envPrefix = "QUANT"

// Config holds application configuration
type Config struct {
	Port           int           `envconfig:"PORT" default:"8001"`
	LogLevel       string        `envconfig:"LOG_LEVEL" default:"info"`
	LogPretty      bool          `envconfig:"LOG_PRETTY" default:"true"`
	DevMode        bool          `envconfig:"DEV_MODE" default:"false"`
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"60s"`
	MaxBodyBytes   int64         `envconfig:"MAX_BODY_BYTES" default:"10485760"`
	RateLimitRPS   float64       `envconfig:"RATE_LIMIT_RPS" default:"50"`
	RateLimitBurst int           `envconfig:"RATE_LIMIT_BURST" default:"100"`
	CORSOrigins    []string      `envconfig:"CORS_ORIGINS" default:"*"`
	HRPLinkage     string        `envconfig:"HRP_LINKAGE" default:"single"`

	Solver   SolverConfig   `envconfig:"SOLVER"`
	Frontier FrontierConfig `envconfig:"FRONTIER"`
}

// SolverConfig bounds the work of a single numerical solve.
type SolverConfig struct {
	MaxOuterIterations   int     `envconfig:"MAX_OUTER_ITERATIONS" default:"60"`
	MaxInnerIterations   int     `envconfig:"MAX_INNER_ITERATIONS" default:"500"`
	Tolerance            float64 `envconfig:"TOLERANCE" default:"1e-8"`
	FeasibilityTolerance float64 `envconfig:"FEASIBILITY_TOLERANCE" default:"1e-8"`
}

// FrontierConfig controls efficient frontier sampling and plotting.
// Seed 0 draws a fresh seed for every plot.
type FrontierConfig struct {
	Samples int    `envconfig:"SAMPLES" default:"5000"`
	Workers int    `envconfig:"WORKERS" default:"0"`
	Seed    uint64 `envconfig:"SEED" default:"0"`
	Width   int    `envconfig:"WIDTH" default:"800"`
	Height  int    `envconfig:"HEIGHT" default:"600"`
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks that all values are usable
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive, got %s", c.RequestTimeout)
	}
	if c.MaxBodyBytes <= 0 {
		return fmt.Errorf("max body bytes must be positive, got %d", c.MaxBodyBytes)
	}
	if c.RateLimitRPS < 0 || c.RateLimitBurst < 0 {
		return fmt.Errorf("rate limit must not be negative")
	}
	switch c.HRPLinkage {
	case "single", "complete", "average":
	default:
		return fmt.Errorf("unknown HRP linkage %q", c.HRPLinkage)
	}
	if c.Solver.MaxOuterIterations <= 0 || c.Solver.MaxInnerIterations <= 0 {
		return fmt.Errorf("solver iteration limits must be positive")
	}
	if c.Solver.Tolerance <= 0 || c.Solver.FeasibilityTolerance <= 0 {
		return fmt.Errorf("solver tolerances must be positive")
	}
	if c.Frontier.Samples <= 0 {
		return fmt.Errorf("frontier samples must be positive, got %d", c.Frontier.Samples)
	}
	if c.Frontier.Workers < 0 {
		return fmt.Errorf("frontier workers must not be negative, got %d", c.Frontier.Workers)
	}
	return nil
}

// Package config provides configuration management functionality.
package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	LogLevel  string
	LogPretty bool

	// Solver settings
	SolverMaxIterations int     // iteration cap per solve
	SolverTolerance     float64 // objective convergence tolerance
	PenaltyWeight       float64 // penalty weight for equality constraints

	// Efficient frontier settings
	FrontierPoints      int     // number of target returns swept
	FrontierLowerFactor float64 // grid start = min asset return × this
	FrontierUpperFactor float64 // grid end = max asset return × this

	// Sensitivity analysis settings
	SensitivityStep float64 // parameter perturbation, absolute (0.01 = 1pp)

	// Workers caps concurrent solver invocations in frontier sweeps and
	// re-optimization sensitivity. 0 means one per available CPU.
	Workers int
}

// Load reads configuration from the environment, with an optional .env file.
func Load() *Config {
	// .env is optional; missing file is not an error
	_ = godotenv.Load()

	return &Config{
		LogLevel:            getEnv("MVP_LOG_LEVEL", "info"),
		LogPretty:           getEnvBool("MVP_LOG_PRETTY", false),
		SolverMaxIterations: getEnvInt("MVP_SOLVER_MAX_ITERATIONS", 1000),
		SolverTolerance:     getEnvFloat("MVP_SOLVER_TOLERANCE", 1e-9),
		PenaltyWeight:       getEnvFloat("MVP_SOLVER_PENALTY_WEIGHT", 1e6),
		FrontierPoints:      getEnvInt("MVP_FRONTIER_POINTS", 50),
		FrontierLowerFactor: getEnvFloat("MVP_FRONTIER_LOWER_FACTOR", 0.5),
		FrontierUpperFactor: getEnvFloat("MVP_FRONTIER_UPPER_FACTOR", 1.5),
		SensitivityStep:     getEnvFloat("MVP_SENSITIVITY_STEP", 0.01),
		Workers:             getEnvInt("MVP_WORKERS", 0),
	}
}

// getEnv retrieves an environment variable value, returning a fallback if the
// variable is not set or is empty.
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}

package config

import (
	"math"
	"os"
	"runtime"
	"strconv"
	"time"

	"clusterpval/internal/errors"
)

// Config represents the complete application configuration
type Config struct {
	Estimation EstimationConfig
	Server     ServerConfig
	LogLevel   string
}

// EstimationConfig holds Monte-Carlo estimation defaults
type EstimationConfig struct {
	NDraws  int
	Seed    uint64 // 0 means seed from the clock
	Workers int

	// Importance-sampling proposal, in units of the reference scale
	ProposalShift  float64
	ProposalSpread float64
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port          string
	OpsPort       string // health and readiness endpoints
	MaxConcurrent int64
	ReadTimeout   time.Duration
}

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	config := &Config{
		Estimation: loadEstimationConfig(),
		Server:     loadServerConfig(),
		LogLevel:   getEnvOrDefault("LOG_LEVEL", "INFO"),
	}

	if err := validateConfig(config); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}

	return config, nil
}

func loadEstimationConfig() EstimationConfig {
	return EstimationConfig{
		NDraws:         getEnvIntOrDefault("CLUSTERPVAL_NDRAWS", 2000),
		Seed:           getEnvUintOrDefault("CLUSTERPVAL_SEED", 0),
		Workers:        getEnvIntOrDefault("CLUSTERPVAL_WORKERS", runtime.GOMAXPROCS(0)),
		ProposalShift:  getEnvFloatOrDefault("CLUSTERPVAL_PROPOSAL_SHIFT", 0),
		ProposalSpread: getEnvFloatOrDefault("CLUSTERPVAL_PROPOSAL_SPREAD", 1),
	}
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Port:          getEnvOrDefault("PORT", "8080"),
		OpsPort:       getEnvOrDefault("OPS_PORT", "8081"),
		MaxConcurrent: int64(getEnvIntOrDefault("CLUSTERPVAL_MAX_CONCURRENT", 2)),
		ReadTimeout:   getEnvDurationOrDefault("CLUSTERPVAL_READ_TIMEOUT", 30*time.Second),
	}
}

func validateConfig(config *Config) error {
	e := config.Estimation
	if e.NDraws < 1 {
		return errors.ConfigInvalid("CLUSTERPVAL_NDRAWS must be at least 1")
	}
	if e.Workers < 1 {
		return errors.ConfigInvalid("CLUSTERPVAL_WORKERS must be at least 1")
	}
	if !(e.ProposalSpread > 0) || math.IsInf(e.ProposalSpread, 0) {
		return errors.ConfigInvalid("CLUSTERPVAL_PROPOSAL_SPREAD must be a positive finite number")
	}
	if math.IsNaN(e.ProposalShift) || math.IsInf(e.ProposalShift, 0) {
		return errors.ConfigInvalid("CLUSTERPVAL_PROPOSAL_SHIFT must be finite")
	}
	if config.Server.MaxConcurrent < 1 {
		return errors.ConfigInvalid("CLUSTERPVAL_MAX_CONCURRENT must be at least 1")
	}
	if config.Server.Port == "" {
		return errors.ConfigInvalid("PORT is required")
	}
	if config.Server.OpsPort == config.Server.Port {
		return errors.ConfigInvalid("OPS_PORT must differ from PORT")
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvUintOrDefault(key string, defaultValue uint64) uint64 {
	if value := os.Getenv(key); value != "" {
		if uintValue, err := strconv.ParseUint(value, 10, 64); err == nil {
			return uintValue
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

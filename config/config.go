// Package config loads the service configuration from a JSON or YAML file,
// applies environment overrides and validates the result.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"signal-engine/internal/api"
	"signal-engine/internal/cache"
	"signal-engine/internal/database"
	"signal-engine/internal/engine"
	"signal-engine/internal/logging"
	"signal-engine/internal/market"
	"signal-engine/internal/risk"
	"signal-engine/internal/sentiment"
	"signal-engine/internal/timeguard"
	"signal-engine/internal/validators"
	"signal-engine/internal/weights"
)

// Config is the complete service configuration
type Config struct {
	Server     api.ServerConfig  `json:"server" yaml:"server"`
	Logging    logging.Config    `json:"logging" yaml:"logging"`
	Engine     engine.Config     `json:"engine" yaml:"engine"`
	Risk       risk.Config       `json:"risk" yaml:"risk"`
	Validators validators.Config `json:"validators" yaml:"validators"`
	Weights    weights.Config    `json:"weights" yaml:"weights"`
	Guard      timeguard.Config  `json:"guard" yaml:"guard"`
	Sentiment  sentiment.Config  `json:"sentiment" yaml:"sentiment"`
	Market     MarketConfig      `json:"market" yaml:"market"`
	Redis      cache.Config      `json:"redis" yaml:"redis"`
	Database   database.Config   `json:"database" yaml:"database"`
	Metrics    MetricsConfig     `json:"metrics" yaml:"metrics"`
}

// MarketConfig selects and tunes the market-data provider
type MarketConfig struct {
	Provider           string        `json:"provider" yaml:"provider" default:"binance" validate:"oneof=binance file"`
	BaseURL            string        `json:"base_url" yaml:"base_url" default:"https://api.binance.com" validate:"omitempty,url"`
	DataFile           string        `json:"data_file" yaml:"data_file" validate:"required_if=Provider file"`
	Timeout            time.Duration `json:"timeout" yaml:"timeout" default:"5s"`
	MaxRetries         uint64        `json:"max_retries" yaml:"max_retries" default:"3" validate:"lte=10"`
	InitialBackoff     time.Duration `json:"initial_backoff" yaml:"initial_backoff" default:"200ms"`
	MaxBackoff         time.Duration `json:"max_backoff" yaml:"max_backoff" default:"2s"`
	BreakerFailures    uint32        `json:"breaker_failures" yaml:"breaker_failures" default:"5" validate:"gte=1"`
	BreakerOpenTimeout time.Duration `json:"breaker_open_timeout" yaml:"breaker_open_timeout" default:"30s"`
}

// Resilient returns the retry and breaker settings for the named provider
func (m MarketConfig) Resilient() market.ResilientConfig {
	return market.ResilientConfig{
		Name:                m.Provider,
		MaxRetries:          m.MaxRetries,
		InitialBackoff:      m.InitialBackoff,
		MaxBackoff:          m.MaxBackoff,
		ConsecutiveFailures: m.BreakerFailures,
		OpenTimeout:         m.BreakerOpenTimeout,
	}
}

// MetricsConfig toggles the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled" default:"true"`
}

// Default returns the configuration used when no file is present
func Default() *Config {
	cfg := &Config{
		Server:     api.DefaultServerConfig(),
		Logging:    logging.Config{Level: "INFO", Output: "stdout", JSONFormat: true},
		Engine:     engine.DefaultConfig(),
		Risk:       risk.DefaultConfig(),
		Validators: validators.DefaultConfig(),
		Weights:    weights.DefaultConfig(),
		Guard:      timeguard.DefaultConfig(),
		Sentiment:  sentiment.DefaultConfig(),
	}
	// Remaining sections come from their default tags
	if err := defaults.Set(cfg); err != nil {
		panic(fmt.Sprintf("config: invalid default tags: %v", err))
	}
	return cfg
}

var validate = validator.New()

// Load reads path (.yaml/.yml as YAML, anything else as JSON) over the
// defaults, applies environment overrides and validates. A missing file is
// not an error; an empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFromFile(path, cfg); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	// A .env file in the working directory feeds the overrides below
	_ = godotenv.Load()
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every section
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if len(c.Risk.RMultiples) != len(c.Risk.Allocations) {
		return fmt.Errorf("invalid configuration: risk.r_multiples and risk.allocations differ in length (%d vs %d)",
			len(c.Risk.RMultiples), len(c.Risk.Allocations))
	}
	return nil
}

func loadFromFile(filename string, cfg *Config) error {
	file, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(file, cfg)
	default:
		err = json.Unmarshal(file, cfg)
	}
	if err != nil {
		return fmt.Errorf("error parsing config file %s: %w", filename, err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides to the config
func applyEnvOverrides(cfg *Config) {
	// Server
	cfg.Server.Port = getEnvIntOrDefault("WEB_PORT", cfg.Server.Port)
	cfg.Server.Host = getEnvOrDefault("WEB_HOST", cfg.Server.Host)
	cfg.Server.ProductionMode = getEnvBoolOrDefault("SERVER_PRODUCTION", cfg.Server.ProductionMode)
	if origins := os.Getenv("SERVER_ALLOWED_ORIGINS"); origins != "" {
		cfg.Server.AllowOrigins = strings.Split(origins, ",")
	}
	cfg.Server.RatePerMinute = getEnvFloatOrDefault("SERVER_RATE_PER_MINUTE", cfg.Server.RatePerMinute)

	// Logging
	cfg.Logging.Level = getEnvOrDefault("LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Output = getEnvOrDefault("LOG_OUTPUT", cfg.Logging.Output)
	cfg.Logging.JSONFormat = getEnvBoolOrDefault("LOG_JSON", cfg.Logging.JSONFormat)
	cfg.Logging.IncludeFile = getEnvBoolOrDefault("LOG_INCLUDE_FILE", cfg.Logging.IncludeFile)

	// Engine
	cfg.Engine.Deadline = getEnvDurationOrDefault("ENGINE_DEADLINE", cfg.Engine.Deadline)
	cfg.Engine.FetchTimeout = getEnvDurationOrDefault("ENGINE_FETCH_TIMEOUT", cfg.Engine.FetchTimeout)
	cfg.Engine.MinAgents = getEnvIntOrDefault("ENGINE_MIN_AGENTS", cfg.Engine.MinAgents)
	cfg.Engine.MinConfidence = getEnvFloatOrDefault("ENGINE_MIN_CONFIDENCE", cfg.Engine.MinConfidence)
	cfg.Risk.MinRR = getEnvFloatOrDefault("RISK_MIN_RR", cfg.Risk.MinRR)

	// Weights
	cfg.Weights.Store = getEnvOrDefault("WEIGHTS_STORE", cfg.Weights.Store)
	cfg.Weights.DataDir = getEnvOrDefault("WEIGHTS_DATA_DIR", cfg.Weights.DataDir)

	// Guard and sentiment collaborators
	cfg.Guard.FeedURL = getEnvOrDefault("GUARD_FEED_URL", cfg.Guard.FeedURL)
	cfg.Sentiment.Enabled = getEnvBoolOrDefault("SENTIMENT_ENABLED", cfg.Sentiment.Enabled)
	cfg.Sentiment.FearGreed = getEnvBoolOrDefault("SENTIMENT_FEAR_GREED", cfg.Sentiment.FearGreed)

	// Market data
	cfg.Market.Provider = getEnvOrDefault("MARKET_PROVIDER", cfg.Market.Provider)
	cfg.Market.BaseURL = getEnvOrDefault("BINANCE_BASE_URL", cfg.Market.BaseURL)
	cfg.Market.DataFile = getEnvOrDefault("MARKET_DATA_FILE", cfg.Market.DataFile)

	// Redis
	cfg.Redis.Enabled = getEnvBoolOrDefault("REDIS_ENABLED", cfg.Redis.Enabled)
	cfg.Redis.Address = getEnvOrDefault("REDIS_ADDRESS", cfg.Redis.Address)
	cfg.Redis.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.Redis.Password)

	// Database
	cfg.Database.Host = getEnvOrDefault("DB_HOST", cfg.Database.Host)
	cfg.Database.Port = getEnvIntOrDefault("DB_PORT", cfg.Database.Port)
	cfg.Database.User = getEnvOrDefault("DB_USER", cfg.Database.User)
	cfg.Database.Password = getEnvOrDefault("DB_PASSWORD", cfg.Database.Password)
	cfg.Database.Database = getEnvOrDefault("DB_NAME", cfg.Database.Database)
	cfg.Database.SSLMode = getEnvOrDefault("DB_SSLMODE", cfg.Database.SSLMode)

	cfg.Metrics.Enabled = getEnvBoolOrDefault("METRICS_ENABLED", cfg.Metrics.Enabled)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
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

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// GenerateSampleConfig writes the default configuration to filename, as YAML
// for .yaml/.yml and JSON otherwise
func GenerateSampleConfig(filename string) error {
	cfg := Default()
	cfg.Database.Password = "change-me"

	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(cfg)
	default:
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return err
	}

	return os.WriteFile(filename, data, 0644)
}

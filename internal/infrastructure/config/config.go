// Package config provides centralized configuration management.
//
// Configuration can be loaded from:
//  1. YAML file (config.yaml)
//  2. Environment variables (fallback)
//
// Example usage:
//
//	cfg := config.LoadOrEnv()
//	dbPath := cfg.Storage.DatabasePath
//	floor := cfg.Matching.InclusionFloor
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the entire application configuration
type Config struct {
	Storage       StorageConfig       `yaml:"storage"`
	Files         FilesConfig         `yaml:"files"`
	Matching      MatchingConfig      `yaml:"matching"`
	Model         ModelConfig         `yaml:"model"`
	Merchant      MerchantConfig      `yaml:"merchant"`
	API           APIConfig           `yaml:"api"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// StorageConfig holds database configuration
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// FilesConfig holds the receipt file tree settings
type FilesConfig struct {
	// Root is the directory inbox/ and statements/ live under.
	Root string `yaml:"root"`
	// MoveAttempts bounds retries when relocating a receipt file.
	MoveAttempts int `yaml:"move_attempts"`
}

// MatchingConfig tunes candidate scoring. Zero values fall back to defaults.
type MatchingConfig struct {
	RuleWeight     float64 `yaml:"rule_weight"`
	LearnedWeight  float64 `yaml:"learned_weight"`
	InclusionFloor int     `yaml:"inclusion_floor"`
	// AllowCrossStatement widens an assigned receipt's pool to every statement.
	AllowCrossStatement bool `yaml:"allow_cross_statement"`
}

// ModelConfig holds confidence model training settings
type ModelConfig struct {
	// WeightsFile, when set, stores weights as YAML instead of in the database.
	WeightsFile  string  `yaml:"weights_file"`
	LearningRate float64 `yaml:"learning_rate"`
	Epochs       int     `yaml:"epochs"`
	MinSamples   int     `yaml:"min_samples"`
}

// MerchantConfig holds merchant normalization settings
type MerchantConfig struct {
	// RulesFile is an optional YAML file merged over the built-in rules.
	RulesFile string `yaml:"rules_file"`
}

// APIConfig holds HTTP server settings
type APIConfig struct {
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	Logging LoggingConfig `yaml:"logging"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	return &Config{
		Storage: StorageConfig{
			DatabasePath: "reconciler.db",
		},
		Files: FilesConfig{
			Root:         "receipts",
			MoveAttempts: 3,
		},
		Matching: MatchingConfig{
			RuleWeight:     0.4,
			LearnedWeight:  0.6,
			InclusionFloor: 25,
		},
		Model: ModelConfig{
			LearningRate: 0.01,
			Epochs:       100,
			MinSamples:   10,
		},
		API: APIConfig{
			Addr:           ":8085",
			AllowedOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		Observability: ObservabilityConfig{
			Logging: LoggingConfig{
				Level:  "info",
				Format: "text",
			},
		},
	}
}

// Load reads and parses the config file. Missing keys keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables (e.g., ${RECON_DB_PATH})
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables only
func LoadFromEnv() *Config {
	d := Default()
	return &Config{
		Storage: StorageConfig{
			DatabasePath: getEnv("RECON_DB_PATH", d.Storage.DatabasePath),
		},
		Files: FilesConfig{
			Root:         getEnv("RECON_STORAGE_ROOT", d.Files.Root),
			MoveAttempts: getEnvInt("RECON_MOVE_ATTEMPTS", d.Files.MoveAttempts),
		},
		Matching: MatchingConfig{
			RuleWeight:          getEnvFloat("RECON_RULE_WEIGHT", d.Matching.RuleWeight),
			LearnedWeight:       getEnvFloat("RECON_LEARNED_WEIGHT", d.Matching.LearnedWeight),
			InclusionFloor:      getEnvInt("RECON_INCLUSION_FLOOR", d.Matching.InclusionFloor),
			AllowCrossStatement: getEnvBool("RECON_CROSS_STATEMENT", false),
		},
		Model: ModelConfig{
			WeightsFile:  getEnv("RECON_WEIGHTS_FILE", ""),
			LearningRate: getEnvFloat("RECON_LEARNING_RATE", d.Model.LearningRate),
			Epochs:       getEnvInt("RECON_EPOCHS", d.Model.Epochs),
			MinSamples:   getEnvInt("RECON_MIN_SAMPLES", d.Model.MinSamples),
		},
		Merchant: MerchantConfig{
			RulesFile: getEnv("RECON_MERCHANT_RULES", ""),
		},
		API: APIConfig{
			Addr:           getEnv("RECON_API_ADDR", d.API.Addr),
			AllowedOrigins: getEnvList("RECON_ALLOWED_ORIGINS", d.API.AllowedOrigins),
		},
		Observability: ObservabilityConfig{
			Logging: LoggingConfig{
				Level:  getEnv("LOG_LEVEL", d.Observability.Logging.Level),
				Format: getEnv("LOG_FORMAT", d.Observability.Logging.Format),
			},
		},
	}
}

// LoadOrEnv tries to load from config.yaml, falls back to environment variables
func LoadOrEnv() *Config {
	return LoadOrEnvWithPath("config.yaml")
}

// LoadOrEnvWithPath tries to load from specified path, falls back to environment variables
func LoadOrEnvWithPath(path string) *Config {
	if cfg, err := Load(path); err == nil {
		return cfg
	}
	return LoadFromEnv()
}

// Validate rejects settings the engine cannot run with
func (c *Config) Validate() error {
	var errs []error

	if c.Storage.DatabasePath == "" {
		errs = append(errs, errors.New("storage.database_path is required"))
	}
	if c.Matching.RuleWeight < 0 || c.Matching.LearnedWeight < 0 {
		errs = append(errs, errors.New("matching weights must not be negative"))
	}
	if c.Matching.RuleWeight+c.Matching.LearnedWeight == 0 {
		errs = append(errs, errors.New("matching.rule_weight and matching.learned_weight cannot both be zero"))
	}
	if c.Matching.InclusionFloor < 0 || c.Matching.InclusionFloor > 100 {
		errs = append(errs, fmt.Errorf("matching.inclusion_floor %d out of range 0-100", c.Matching.InclusionFloor))
	}
	if c.Model.Epochs < 0 || c.Model.MinSamples < 0 || c.Model.LearningRate < 0 {
		errs = append(errs, errors.New("model settings must not be negative"))
	}
	switch c.Observability.Logging.Format {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("observability.logging.format %q must be text or json", c.Observability.Logging.Format))
	}

	return errors.Join(errs...)
}

// getEnv retrieves an environment variable with a fallback default
func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

// getEnvInt retrieves an integer environment variable with a fallback default
func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if result, err := strconv.Atoi(val); err == nil {
			return result
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		if result, err := strconv.ParseFloat(val, 64); err == nil {
			return result
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if result, err := strconv.ParseBool(val); err == nil {
			return result
		}
	}
	return fallback
}

// getEnvList splits a comma-separated variable
func getEnvList(key string, fallback []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

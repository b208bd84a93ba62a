// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (TRUENORTH_* / DATABASE_URL)
//  2. Config file (truenorth.yaml in the working directory or /etc/truenorth)
//  3. Default values
//
// Sensitive values (the database password) are never logged. Validation
// failures use sentinel errors so callers can check with errors.Is().
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

var (
	// ErrMissingProject indicates the GCP project id is not set.
	ErrMissingProject = errors.New("missing GCP project")

	// ErrMissingIndexEndpoint indicates the vector index endpoint is not set.
	ErrMissingIndexEndpoint = errors.New("missing index endpoint")

	// ErrMissingDeployedIndex indicates the deployed index id is not set.
	ErrMissingDeployedIndex = errors.New("missing deployed index id")

	// ErrInvalidDimensions indicates the embedding dimensionality is invalid.
	ErrInvalidDimensions = errors.New("invalid embedding dimensions")

	// ErrInvalidTopK indicates the neighbor count is out of range.
	ErrInvalidTopK = errors.New("invalid top-k")

	// ErrInvalidMaxInput indicates the maximum input length is invalid.
	ErrInvalidMaxInput = errors.New("invalid max input length")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidRateBurst indicates rate limiting is enabled with a burst
	// allowance that can never admit a request.
	ErrInvalidRateBurst = errors.New("invalid rate burst")
)

// Model and pipeline defaults. The embedding dimensionality must match
// the deployed vector index; both sides read the same config value.
const (
	DefaultHydeModel  = "gemini-2.5-flash"
	DefaultQAModel    = "gemini-2.5-flash"
	DefaultEmbedModel = "gemini-embedding-001"

	DefaultDimensions = 3072
	DefaultTopK       = 4
	DefaultMaxInput   = 200

	DefaultListenAddr = "127.0.0.1:5000"
)

// Config stores application configuration.
type Config struct {
	// Google Cloud identity
	Project  string `mapstructure:"project"`
	Location string `mapstructure:"location"`

	// Model identities
	HydeModel  string `mapstructure:"hyde_model"`
	QAModel    string `mapstructure:"qa_model"`
	EmbedModel string `mapstructure:"embed_model"`

	// Vector index
	Dimensions      int    `mapstructure:"dimensions"`
	IndexEndpoint   string `mapstructure:"index_endpoint"`
	DeployedIndexID string `mapstructure:"deployed_index_id"`

	// Pipeline knobs
	TopK     int `mapstructure:"top_k"`
	MaxInput int `mapstructure:"max_input"`

	// PostgreSQL connection
	PostgresHost     string `mapstructure:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password"`
	PostgresDBName   string `mapstructure:"postgres_dbname"`
	PostgresSSLMode  string `mapstructure:"postgres_sslmode"`

	// Server
	ListenAddr string `mapstructure:"listen_addr"`

	// Per-connection rate limiting (requests per second; 0 disables)
	RateLimit float64 `mapstructure:"rate_limit"`
	RateBurst int     `mapstructure:"rate_burst"`
}

// Load reads configuration from defaults, an optional config file and
// the environment.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("location", "us-central1")
	v.SetDefault("hyde_model", DefaultHydeModel)
	v.SetDefault("qa_model", DefaultQAModel)
	v.SetDefault("embed_model", DefaultEmbedModel)
	v.SetDefault("dimensions", DefaultDimensions)
	v.SetDefault("top_k", DefaultTopK)
	v.SetDefault("max_input", DefaultMaxInput)
	v.SetDefault("postgres_host", "127.0.0.1")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "truenorth")
	v.SetDefault("postgres_dbname", "truenorth")
	v.SetDefault("postgres_sslmode", "disable")
	v.SetDefault("listen_addr", DefaultListenAddr)
	v.SetDefault("rate_limit", 1.0)
	v.SetDefault("rate_burst", 3)

	v.SetConfigName("truenorth")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/truenorth")

	v.SetEnvPrefix("TRUENORTH")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// DATABASE_URL overrides individual postgres_* settings.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the configuration for the serve and ask commands.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Project) == "" {
		return ErrMissingProject
	}
	if strings.TrimSpace(c.IndexEndpoint) == "" {
		return ErrMissingIndexEndpoint
	}
	if strings.TrimSpace(c.DeployedIndexID) == "" {
		return ErrMissingDeployedIndex
	}
	if c.Dimensions <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidDimensions, c.Dimensions)
	}
	if c.TopK < 1 || c.TopK > 100 {
		return fmt.Errorf("%w: %d (must be 1-100)", ErrInvalidTopK, c.TopK)
	}
	if c.MaxInput < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidMaxInput, c.MaxInput)
	}
	if strings.TrimSpace(c.PostgresHost) == "" {
		return ErrInvalidPostgresHost
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if strings.TrimSpace(c.PostgresDBName) == "" {
		return ErrInvalidPostgresDBName
	}
	// A limiter with burst < 1 rejects every request.
	if c.RateLimit > 0 && c.RateBurst < 1 {
		return fmt.Errorf("%w: %d (must be >= 1 when rate limiting is enabled)", ErrInvalidRateBurst, c.RateBurst)
	}
	return nil
}

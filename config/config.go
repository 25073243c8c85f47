// Package config loads runtime settings from environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// DevJWTSecret is used outside production when no secret is configured.
const DevJWTSecret = "dev-only-insecure-key-change-in-prod"

// MinJWTSecretLength is the minimum accepted HMAC secret length.
const MinJWTSecretLength = 32

// Config holds every setting of the runtime and its outer surfaces.
type Config struct {
	Environment string `env:"DECISIONMESH_ENVIRONMENT" envDefault:"development"`
	Debug       bool   `env:"DECISIONMESH_DEBUG" envDefault:"false"`

	DBPath           string `env:"DECISIONMESH_DB_PATH" envDefault:"data/lre_core.db"`
	PersistenceQueue int    `env:"DECISIONMESH_PERSISTENCE_QUEUE" envDefault:"256"`

	LogLevel  string `env:"DECISIONMESH_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"DECISIONMESH_LOG_FORMAT" envDefault:"json"`
	// LogBackend selects slog or zap.
	LogBackend string `env:"DECISIONMESH_LOG_BACKEND" envDefault:"slog"`

	RoutesFile  string        `env:"DECISIONMESH_ROUTES_FILE"`
	RedisAddr   string        `env:"DECISIONMESH_REDIS_ADDR"`
	PresenceTTL time.Duration `env:"DECISIONMESH_PRESENCE_TTL" envDefault:"30s"`

	HTTPAddr  string `env:"DECISIONMESH_HTTP_ADDR" envDefault:":8080"`
	JWTSecret string `env:"DECISIONMESH_JWT_SECRET"`
	JWTIssuer string `env:"DECISIONMESH_JWT_ISSUER" envDefault:"decisionmesh"`
	// CORSOrigins enables CORS for the listed origins. Empty disables it.
	CORSOrigins []string `env:"DECISIONMESH_CORS_ORIGINS" envSeparator:","`

	OTelEndpoint string `env:"DECISIONMESH_OTEL_ENDPOINT"`

	ModelProvider   string `env:"DECISIONMESH_MODEL_PROVIDER"`
	ModelName       string `env:"DECISIONMESH_MODEL_NAME"`
	OpenAIAPIKey    string `env:"OPENAI_API_KEY"`
	AnthropicAPIKey string `env:"ANTHROPIC_API_KEY"`
}

// ParseEnv loads configuration from environment variables into target.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load parses the environment, applies the development secret fallback and
// validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}

	if cfg.JWTSecret == "" && !cfg.IsProduction() {
		cfg.JWTSecret = DevJWTSecret
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// IsProduction reports whether the environment is production.
func (c Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	var errs []error

	switch {
	case c.JWTSecret == "" && c.IsProduction():
		errs = append(errs, errors.New("DECISIONMESH_JWT_SECRET must be set in production"))
	case c.JWTSecret != "" && len(c.JWTSecret) < MinJWTSecretLength:
		errs = append(errs, fmt.Errorf("DECISIONMESH_JWT_SECRET must be at least %d characters", MinJWTSecretLength))
	case c.JWTSecret == DevJWTSecret && c.IsProduction():
		errs = append(errs, errors.New("development JWT secret is not allowed in production"))
	}

	if strings.TrimSpace(c.DBPath) == "" {
		errs = append(errs, errors.New("DECISIONMESH_DB_PATH must not be empty"))
	}

	switch strings.ToLower(c.ModelProvider) {
	case "", "none":
	case "openai":
		if c.OpenAIAPIKey == "" {
			errs = append(errs, errors.New("OPENAI_API_KEY is required for the openai model provider"))
		}
	case "anthropic":
		if c.AnthropicAPIKey == "" {
			errs = append(errs, errors.New("ANTHROPIC_API_KEY is required for the anthropic model provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown model provider %q", c.ModelProvider))
	}

	switch strings.ToLower(c.LogBackend) {
	case "", "slog", "zap":
	default:
		errs = append(errs, fmt.Errorf("unknown log backend %q", c.LogBackend))
	}

	return errors.Join(errs...)
}

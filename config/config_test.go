package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "data/lre_core.db", cfg.DBPath)
	assert.Equal(t, 256, cfg.PersistenceQueue)
	assert.Equal(t, 30*time.Second, cfg.PresenceTTL)
	assert.Equal(t, DevJWTSecret, cfg.JWTSecret)
	assert.False(t, cfg.IsProduction())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DECISIONMESH_DB_PATH", "/tmp/x.db")
	t.Setenv("DECISIONMESH_PRESENCE_TTL", "1m")
	t.Setenv("DECISIONMESH_DEBUG", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/x.db", cfg.DBPath)
	assert.Equal(t, time.Minute, cfg.PresenceTTL)
	assert.True(t, cfg.Debug)
}

func TestLoad_CORSOrigins(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Empty(t, cfg.CORSOrigins)

	t.Setenv("DECISIONMESH_CORS_ORIGINS", "http://localhost:3000,https://ops.example.com")

	cfg, err = Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"http://localhost:3000", "https://ops.example.com"}, cfg.CORSOrigins)
}

func TestLoad_ProductionRequiresSecret(t *testing.T) {
	t.Setenv("DECISIONMESH_ENVIRONMENT", "production")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be set in production")

	t.Setenv("DECISIONMESH_JWT_SECRET", strings.Repeat("s", 40))
	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
}

func TestValidate_ShortSecret(t *testing.T) {
	cfg := Config{DBPath: "x", JWTSecret: "short"}
	assert.ErrorContains(t, cfg.Validate(), "at least 32 characters")
}

func TestValidate_DevSecretInProduction(t *testing.T) {
	cfg := Config{Environment: "production", DBPath: "x", JWTSecret: DevJWTSecret}
	assert.ErrorContains(t, cfg.Validate(), "not allowed in production")
}

func TestValidate_ModelProvider(t *testing.T) {
	cfg := Config{DBPath: "x", ModelProvider: "openai"}
	assert.ErrorContains(t, cfg.Validate(), "OPENAI_API_KEY")

	cfg.ModelProvider = "mystery"
	assert.ErrorContains(t, cfg.Validate(), "unknown model provider")

	cfg.ModelProvider = "anthropic"
	cfg.AnthropicAPIKey = "k"
	assert.NoError(t, cfg.Validate())
}

func TestParseEnvError(t *testing.T) {
	t.Setenv("DECISIONMESH_PERSISTENCE_QUEUE", "not-an-int")

	var cfg Config
	err := ParseEnv(&cfg)
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "parse env:"))
}

package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Veolinan/triage/internal/config"
	"github.com/Veolinan/triage/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envOf(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestDefault_IsValid(t *testing.T) {
	cfg := config.Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, config.DriverBadger, cfg.Store.Driver)
	assert.Equal(t, domain.DefaultStageCatalog(), cfg.Stages)
}

func TestLoad_YAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "triage.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
store:
  driver: redis
  redis:
    addr: cache:6379
    session_ttl: 2h
log:
  level: debug
  format: json
stages:
  - type: postpartum
    ranges: ["1–4 weeks", "4–8 weeks", "8–20 weeks"]
`), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, config.DriverRedis, cfg.Store.Driver)
	assert.Equal(t, "cache:6379", cfg.Store.Redis.Addr)
	assert.Equal(t, 2*time.Hour, cfg.Store.Redis.SessionTTL)
	assert.Equal(t, "json", cfg.Log.Format)
	require.Len(t, cfg.Stages, 1)
	assert.Len(t, cfg.Stages[0].Ranges, 3)
	assert.Equal(t, ":8080", cfg.Server.Addr, "defaults survive partial files")
}

func TestApplyEnv_Overrides(t *testing.T) {
	cfg := config.Default()
	err := cfg.ApplyEnv(envOf(map[string]string{
		"TRIAGE_STORE_DRIVER":             "postgres",
		"TRIAGE_POSTGRES_DSN":             "postgres://localhost/triage",
		"TRIAGE_REDIS_DB":                 "3",
		"TRIAGE_SERVER_RATE_LIMIT":        "2.5",
		"TRIAGE_ENCRYPTION_FALLBACK_KEYS": "a, b,,c",
	}))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, config.DriverPostgres, cfg.Store.Driver)
	assert.Equal(t, 3, cfg.Store.Redis.DB)
	assert.Equal(t, 2.5, cfg.Server.RateLimit)
	assert.Equal(t, []string{"a", "b", "c"}, cfg.Encryption.FallbackKeys)
}

func TestApplyEnv_BadNumbers(t *testing.T) {
	cfg := config.Default()
	err := cfg.ApplyEnv(envOf(map[string]string{
		"TRIAGE_REDIS_DB":          "three",
		"TRIAGE_REDIS_SESSION_TTL": "soon",
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TRIAGE_REDIS_DB")
	assert.Contains(t, err.Error(), "TRIAGE_REDIS_SESSION_TTL")
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"unknown driver", func(c *config.Config) { c.Store.Driver = "mongo" }},
		{"file driver without path", func(c *config.Config) { c.Store.Driver = config.DriverFile; c.Store.Path = "" }},
		{"postgres without dsn", func(c *config.Config) { c.Store.Driver = config.DriverPostgres }},
		{"bad log format", func(c *config.Config) { c.Log.Format = "xml" }},
		{"empty catalog", func(c *config.Config) { c.Stages = nil }},
		{"stage without ranges", func(c *config.Config) { c.Stages = domain.StageCatalog{{Type: "pregnant"}} }},
		{"duplicate stage", func(c *config.Config) {
			c.Stages = append(c.Stages, domain.Stage{Type: domain.StagePregnant, Ranges: []string{"x"}})
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

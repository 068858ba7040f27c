// Package config loads the triage runtime configuration.
//
// Values come from three layers, later ones winning: built-in defaults, an
// optional YAML file and TRIAGE_* environment variables. Command-line flags
// are applied on top by the CLI.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Veolinan/triage/pkg/domain"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverFile     = "file"
	DriverBadger   = "badger"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
)

type Config struct {
	Store      StoreConfig         `yaml:"store"`
	Server     ServerConfig        `yaml:"server"`
	Log        LogConfig           `yaml:"log"`
	Encryption EncryptionConfig    `yaml:"encryption"`
	Stages     domain.StageCatalog `yaml:"stages" validate:"min=1,dive"`
}

type StoreConfig struct {
	Driver   string      `yaml:"driver" validate:"oneof=memory file badger redis postgres"`
	Path     string      `yaml:"path" validate:"required_if=Driver file,required_if=Driver badger"`
	Bank     string      `yaml:"bank"` // optional read-only Markdown question bank
	Redis    RedisConfig `yaml:"redis"`
	Postgres struct {
		DSN string `yaml:"dsn"`
	} `yaml:"postgres"`
}

type RedisConfig struct {
	Addr       string        `yaml:"addr"`
	Password   string        `yaml:"password"`
	DB         int           `yaml:"db" validate:"min=0"`
	Prefix     string        `yaml:"prefix"`
	SessionTTL time.Duration `yaml:"session_ttl"`
}

type ServerConfig struct {
	Addr      string  `yaml:"addr" validate:"required"`
	RateLimit float64 `yaml:"rate_limit" validate:"min=0"`
	Burst     int     `yaml:"burst" validate:"min=0"`
	JWTSecret string  `yaml:"jwt_secret"`
}

type LogConfig struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=debug info warn warning error"`
	Format string `yaml:"format" validate:"omitempty,oneof=text json"`
}

// EncryptionConfig enables the response persistence middleware.
// Keys are base64-encoded 32-byte AES keys.
type EncryptionConfig struct {
	ActiveKey    string   `yaml:"active_key"`
	FallbackKeys []string `yaml:"fallback_keys"`
	PIIPatterns  []string `yaml:"pii_patterns"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Store: StoreConfig{
			Driver: DriverBadger,
			Path:   ".triage",
			Redis: RedisConfig{
				Addr:       "localhost:6379",
				Prefix:     "triage:",
				SessionTTL: 24 * time.Hour,
			},
		},
		Server: ServerConfig{
			Addr:      ":8080",
			RateLimit: 20,
			Burst:     40,
		},
		Log:    LogConfig{Level: "info", Format: "text"},
		Stages: domain.DefaultStageCatalog(),
	}
}

// Load reads path (if non-empty) over the defaults, applies the environment
// and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from TRIAGE_* variables.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	var errs []error
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}

	str("TRIAGE_STORE_DRIVER", &c.Store.Driver)
	str("TRIAGE_STORE_PATH", &c.Store.Path)
	str("TRIAGE_BANK", &c.Store.Bank)
	str("TRIAGE_REDIS_ADDR", &c.Store.Redis.Addr)
	str("TRIAGE_REDIS_PASSWORD", &c.Store.Redis.Password)
	num("TRIAGE_REDIS_DB", &c.Store.Redis.DB)
	str("TRIAGE_REDIS_PREFIX", &c.Store.Redis.Prefix)
	str("TRIAGE_POSTGRES_DSN", &c.Store.Postgres.DSN)
	str("TRIAGE_SERVER_ADDR", &c.Server.Addr)
	num("TRIAGE_SERVER_BURST", &c.Server.Burst)
	str("TRIAGE_JWT_SECRET", &c.Server.JWTSecret)
	str("TRIAGE_LOG_LEVEL", &c.Log.Level)
	str("TRIAGE_LOG_FORMAT", &c.Log.Format)
	str("TRIAGE_ENCRYPTION_KEY", &c.Encryption.ActiveKey)

	if v, ok := lookup("TRIAGE_SERVER_RATE_LIMIT"); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("TRIAGE_SERVER_RATE_LIMIT: %w", err))
		} else {
			c.Server.RateLimit = f
		}
	}
	if v, ok := lookup("TRIAGE_REDIS_SESSION_TTL"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("TRIAGE_REDIS_SESSION_TTL: %w", err))
		} else {
			c.Store.Redis.SessionTTL = d
		}
	}
	if v, ok := lookup("TRIAGE_ENCRYPTION_FALLBACK_KEYS"); ok && v != "" {
		c.Encryption.FallbackKeys = splitList(v)
	}
	return errors.Join(errs...)
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks field constraints and the stage catalog.
func (c *Config) Validate() error {
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Store.Driver == DriverPostgres && c.Store.Postgres.DSN == "" {
		return errors.New("invalid config: store.postgres.dsn is required for the postgres driver")
	}
	seen := make(map[string]bool)
	for _, s := range c.Stages {
		if s.Type == "" || len(s.Ranges) == 0 {
			return fmt.Errorf("invalid config: stage %q needs a type and at least one range", s.Type)
		}
		if seen[s.Type] {
			return fmt.Errorf("invalid config: duplicate stage type %q", s.Type)
		}
		seen[s.Type] = true
	}
	return nil
}

package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/Veolinan/triage/internal/config"
	"github.com/Veolinan/triage/pkg/adapters/badger"
	"github.com/Veolinan/triage/pkg/adapters/file"
	"github.com/Veolinan/triage/pkg/adapters/loam"
	"github.com/Veolinan/triage/pkg/adapters/memory"
	"github.com/Veolinan/triage/pkg/adapters/postgres"
	"github.com/Veolinan/triage/pkg/adapters/redis"
	"github.com/Veolinan/triage/pkg/persistence/middleware"
	"github.com/Veolinan/triage/pkg/ports"
)

// Stores bundles the persistence adapters selected by the configuration.
type Stores struct {
	Nodes     ports.NodeReader
	Sessions  ports.SessionStore
	Responses ports.ResponseStore
	Locker    ports.DistributedLocker

	closers []func() error
}

// Close releases every backend in reverse order of opening.
func (s *Stores) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	s.closers = nil
	return errors.Join(errs...)
}

// OpenStores connects the configured driver, overlays the read-only Markdown
// bank when one is set and wraps the response store with the encryption and
// PII middlewares.
func OpenStores(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Stores, error) {
	s := &Stores{}
	if err := s.openDriver(ctx, cfg.Store, logger); err != nil {
		_ = s.Close()
		return nil, err
	}

	if cfg.Store.Bank != "" {
		bank, err := loam.Open(cfg.Store.Bank)
		if err != nil {
			_ = s.Close()
			return nil, err
		}
		s.Nodes = bank
	}

	mws, err := responseMiddlewares(cfg.Encryption)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	s.Responses = middleware.Chain(s.Responses, mws...)

	logger.Debug("stores opened", "driver", cfg.Store.Driver, "bank", cfg.Store.Bank, "middlewares", len(mws))
	return s, nil
}

func (s *Stores) openDriver(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) error {
	switch cfg.Driver {
	case config.DriverMemory:
		s.Nodes = memory.NewNodeStore()
		s.Sessions = memory.NewStore()
		s.Responses = memory.NewResponseStore()

	case config.DriverFile:
		st := file.New(cfg.Path)
		s.Nodes, s.Sessions, s.Responses = st, st, st

	case config.DriverBadger:
		bcfg := badger.DefaultConfig(cfg.Path)
		bcfg.Logger = logger
		st, err := badger.Open(bcfg)
		if err != nil {
			return err
		}
		s.closers = append(s.closers, st.Close)
		s.Nodes, s.Sessions, s.Responses = st, st, st

	case config.DriverRedis:
		st := redis.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB,
			redis.WithPrefix(cfg.Redis.Prefix),
			redis.WithTTL(cfg.Redis.SessionTTL),
		)
		s.closers = append(s.closers, st.Close)
		if err := st.Ping(ctx); err != nil {
			return fmt.Errorf("failed to reach redis at %s: %w", cfg.Redis.Addr, err)
		}
		s.Nodes, s.Sessions, s.Responses = st, st, st
		s.Locker = redis.NewLocker(st.Client(), cfg.Redis.Prefix)

	case config.DriverPostgres:
		st, err := postgres.Connect(ctx, cfg.Postgres.DSN, postgres.WithLogger(logger))
		if err != nil {
			return err
		}
		s.closers = append(s.closers, func() error { st.Close(); return nil })
		if err := st.Migrate(ctx); err != nil {
			return err
		}
		s.Nodes, s.Sessions, s.Responses = st, st, st

	default:
		return fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
	return nil
}

// responseMiddlewares returns PII masking before encryption so masked values
// are what gets sealed.
func responseMiddlewares(cfg config.EncryptionConfig) ([]middleware.Middleware, error) {
	var mws []middleware.Middleware
	if len(cfg.PIIPatterns) > 0 {
		for _, p := range cfg.PIIPatterns {
			if _, err := regexp.Compile(p); err != nil {
				return nil, fmt.Errorf("invalid pii pattern %q: %w", p, err)
			}
		}
		mws = append(mws, middleware.NewPIIMiddleware(cfg.PIIPatterns))
	}
	if cfg.ActiveKey != "" {
		active, err := middleware.ParseKey(cfg.ActiveKey)
		if err != nil {
			return nil, fmt.Errorf("encryption.active_key: %w", err)
		}
		enc := middleware.EncryptionConfig{ActiveKey: active}
		for i, k := range cfg.FallbackKeys {
			key, err := middleware.ParseKey(k)
			if err != nil {
				return nil, fmt.Errorf("encryption.fallback_keys[%d]: %w", i, err)
			}
			enc.FallbackKeys = append(enc.FallbackKeys, key)
		}
		mws = append(mws, middleware.NewEncryptionMiddleware(enc))
	} else if len(cfg.FallbackKeys) > 0 {
		return nil, errors.New("encryption.fallback_keys requires an active_key")
	}
	return mws, nil
}

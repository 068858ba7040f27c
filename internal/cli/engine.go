// Package cli wires configuration, storage and presentation for the triage
// command-line tool.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/Veolinan/triage"
	"github.com/Veolinan/triage/internal/config"
	"github.com/Veolinan/triage/internal/logging"
	"github.com/Veolinan/triage/internal/metrics"
	"github.com/Veolinan/triage/pkg/observability"
	"github.com/Veolinan/triage/pkg/ports"
)

// EngineOptions carries the per-command extras of NewEngine.
type EngineOptions struct {
	Identity ports.IdentityProvider
	Metrics  *metrics.Metrics
}

// NewLogger builds the application logger from the log section. Debug
// forces the debug level.
func NewLogger(cfg config.LogConfig, debug bool) (*slog.Logger, error) {
	level, err := logging.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	if debug {
		level = slog.LevelDebug
	}
	return logging.NewWithFormat(os.Stderr, level, logging.Format(cfg.Format)), nil
}

// NewEngine opens the configured stores and builds an engine over them.
// The caller owns the returned Stores and must close them.
func NewEngine(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts EngineOptions) (*triage.Engine, *Stores, error) {
	stores, err := OpenStores(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	engineOpts := []triage.Option{
		triage.WithLogger(logger),
		triage.WithCatalog(cfg.Stages),
		triage.WithNodeStore(stores.Nodes),
		triage.WithSessionStore(stores.Sessions),
		triage.WithResponseStore(stores.Responses),
		triage.WithLifecycleHooks(observability.LoggingHooks(logger)),
	}
	if stores.Locker != nil {
		engineOpts = append(engineOpts, triage.WithLocker(stores.Locker))
	}
	if opts.Identity != nil {
		engineOpts = append(engineOpts, triage.WithIdentity(opts.Identity))
	}
	if opts.Metrics != nil {
		engineOpts = append(engineOpts, triage.WithMetrics(opts.Metrics))
	}

	eng, err := triage.New(cfg.Store.Bank, engineOpts...)
	if err != nil {
		_ = stores.Close()
		return nil, nil, fmt.Errorf("error initializing engine: %w", err)
	}
	return eng, stores, nil
}

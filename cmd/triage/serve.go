package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Veolinan/triage"
	"github.com/Veolinan/triage/internal/auth"
	"github.com/Veolinan/triage/internal/cli"
	"github.com/Veolinan/triage/internal/metrics"
	triagehttp "github.com/Veolinan/triage/pkg/adapters/http"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Starts the triage engine as a JSON API over HTTP with Server-Sent Events,
Prometheus metrics on /metrics and the OpenAPI document on /openapi.yaml.
Authoring and review routes require a bearer token signed with server.jwt_secret.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		m := metrics.New(reg)

		eng, cfg, logger, cleanup, err := setup(cmd, cli.EngineOptions{
			Identity: auth.ContextIdentity{},
			Metrics:  m,
		})
		if err != nil {
			return err
		}
		defer cleanup()

		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			cfg.Server.Addr = addr
		}

		opts := []triagehttp.Option{
			triagehttp.WithLogger(logger),
			triagehttp.WithMetrics(m),
			triagehttp.WithVersion(strings.TrimSpace(triage.Version)),
		}
		if cfg.Server.JWTSecret != "" {
			opts = append(opts, triagehttp.WithAuthenticator(auth.NewAuthenticator(cfg.Server.JWTSecret)))
		} else {
			logger.Warn("server.jwt_secret is empty; authoring and review routes will reject every request")
		}
		if cfg.Server.RateLimit > 0 {
			opts = append(opts, triagehttp.WithRateLimit(cfg.Server.RateLimit, cfg.Server.Burst))
		}

		srv := &http.Server{
			Addr:              cfg.Server.Addr,
			Handler:           triagehttp.NewHandler(eng, opts...),
			ReadHeaderTimeout: 10 * time.Second,
		}

		ctx := cli.NewSignalContext(cmd.Context())
		defer ctx.Cancel()

		serverErrors := make(chan error, 1)
		go func() {
			logger.Info("starting triage server", "addr", srv.Addr, "store", cfg.Store.Driver)
			serverErrors <- srv.ListenAndServe()
		}()

		select {
		case err := <-serverErrors:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return fmt.Errorf("server error: %w", err)

		case <-ctx.Done():
			logger.Info("shutting down", "signal", ctx.Signal())
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("graceful shutdown did not complete", "timeout", shutdownTimeout, "err", err)
				return srv.Close()
			}
			logger.Info("triage server stopped gracefully")
			return nil
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", "", "Listen address (overrides server.addr)")
}

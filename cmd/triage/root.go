package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/Veolinan/triage"
	"github.com/Veolinan/triage/internal/cli"
	"github.com/Veolinan/triage/internal/config"
	"github.com/Veolinan/triage/pkg/domain"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "triage",
	Short: "Triage is a maternal-health questionnaire engine",
	Long: `Triage walks pregnant and postpartum respondents through a branching
questionnaire, scores their answers into a risk zone and lets clinical
operators author, validate and preview the question graphs.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to a YAML configuration file")
	rootCmd.PersistentFlags().String("store", "", "Store driver override (memory, file, badger, redis, postgres)")
	rootCmd.PersistentFlags().String("path", "", "Data directory override for the file and badger drivers")
	rootCmd.PersistentFlags().String("bank", "", "Read-only Markdown question bank directory")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging to stderr")
}

// loadConfig reads the configuration and applies the persistent flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if v, _ := cmd.Flags().GetString("store"); v != "" {
		cfg.Store.Driver = v
	}
	if v, _ := cmd.Flags().GetString("path"); v != "" {
		cfg.Store.Path = v
	}
	if v, _ := cmd.Flags().GetString("bank"); v != "" {
		cfg.Store.Bank = v
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setup loads the configuration and builds a logger and an engine. The
// returned cleanup closes the stores.
func setup(cmd *cobra.Command, opts cli.EngineOptions) (*triage.Engine, *config.Config, *slog.Logger, func(), error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	debug, _ := cmd.Flags().GetBool("debug")
	logger, err := cli.NewLogger(cfg.Log, debug)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	eng, stores, err := cli.NewEngine(cmd.Context(), cfg, logger, opts)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	cleanup := func() {
		if err := stores.Close(); err != nil {
			logger.Warn("failed to close stores", "err", err)
		}
	}
	return eng, cfg, logger, cleanup, nil
}

// partitionFlags registers --stage and --range on cmd.
func partitionFlags(cmd *cobra.Command) {
	cmd.Flags().String("stage", "", "Stage type (pregnant or postpartum)")
	cmd.Flags().String("range", "", "Stage range, e.g. \"1–3 months\"")
	_ = cmd.MarkFlagRequired("stage")
	_ = cmd.MarkFlagRequired("range")
}

func partitionFrom(cmd *cobra.Command) domain.Partition {
	stage, _ := cmd.Flags().GetString("stage")
	rng, _ := cmd.Flags().GetString("range")
	return domain.Partition{StageType: stage, StageRange: rng}
}

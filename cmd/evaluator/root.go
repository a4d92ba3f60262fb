package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"nlq_eval/internal/config"
	"nlq_eval/internal/logging"
)

var (
	envFiles []string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:           "evaluator",
	Short:         "Evaluate natural-language-to-SQL generation across prompt sets and models",
	SilenceUsage:  true,
	SilenceErrors: true,

	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.LoadEnvFiles(envFiles...); err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		cobra.OnFinalize(stop)
		cmd.SetContext(ctx)
		return nil
	},
}

func init() {
	pflags := rootCmd.PersistentFlags()
	pflags.StringSliceVar(&envFiles, "env-file", nil, "Env files to load before reading configuration (default .env)")
	pflags.StringVar(&logLevel, "log-level", "", "Override LOG_LEVEL")

	rootCmd.AddCommand(
		newRunCmd(),
		newFeedbackCmd(),
		newAnalyzeCmd(),
		newSuggestCmd(),
		newCatalogCmd(),
		newSecretCmd(),
	)
}

// loadConfig reads the configuration and applies the logging settings.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	logging.SetFormat(cfg.LogFormat)
	if err := logging.SetLogLevel(cfg.LogLevel); err != nil {
		return nil, err
	}
	return cfg, nil
}

// withApp loads configuration, builds the dependencies and tears them down
// after fn returns.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(ctx, a)
}

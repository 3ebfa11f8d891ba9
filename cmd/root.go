// Package cmd defines the radar CLI: the HTTP service and one-shot analyses.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/competition-radar/internal/analysis"
	"github.com/JakeFAU/competition-radar/internal/config"
	"github.com/JakeFAU/competition-radar/internal/logging"
	"github.com/JakeFAU/competition-radar/internal/server"
)

type appKeyType string

const appKey appKeyType = "app"

// App is the subset of *server.App the commands use.
type App interface {
	Run(ctx context.Context) error
	Analyze(ctx context.Context, ownerID, domain string) (analysis.Record, error)
	Close()
}

// newApp is the application factory, replaced in tests.
var newApp = func(ctx context.Context, configPath string) (App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(logging.Options{
		Development: cfg.Logging.Development,
		Level:       cfg.Logging.Level,
	})
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	app, err := server.Build(ctx, &cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}
	return app, nil
}

func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "radar",
		Short: "Competitor analysis service",
		Long: `radar crawls a competitor's website, asks a generative model for a
structured briefing and stores the result for the submitting user.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := newApp(cmd.Context(), cfgFile)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); RADAR_* env vars override it")
	cmd.AddCommand(newServeCmd(), newAnalyzeCmd())
	return cmd
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// Execute runs the root command.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

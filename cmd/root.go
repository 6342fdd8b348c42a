// Package cmd defines the book-harvester CLI.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/book-harvester/internal/config"
	"github.com/JakeFAU/book-harvester/internal/logging"
)

var (
	cfgFile string
	envFile string
)

type appKeyType string

const appKey appKeyType = "app"

// app carries the loaded configuration and logger to subcommands.
type app struct {
	cfg    config.Config
	logger *zap.Logger
}

func (a *app) Close() {
	_ = a.logger.Sync() //nolint:errcheck // stderr sync fails on some terminals
}

// newApp is a variable so tests can swap in a fixed configuration.
var newApp = func(cfgPath, dotenv string) (*app, error) {
	if err := loadDotenv(dotenv); err != nil {
		return nil, err
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	zap.ReplaceGlobals(logger)
	return &app{cfg: cfg, logger: logger}, nil
}

// loadDotenv reads KEY=value pairs into the environment. A missing file is
// not an error; variables already set are left alone.
func loadDotenv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "book-harvester",
		Short: "Builds a local corpus of public-domain books from the Gutendex catalog.",
		Long: `book-harvester walks the Gutendex catalog page by page, downloads each
book's text, keeps the ones long enough to be useful, and checkpoints its
progress so an interrupted run resumes where it left off.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cfgFile, envFile)
			if err != nil {
				return err
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, a))
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if a, ok := cmd.Context().Value(appKey).(*app); ok && a != nil {
				a.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML, TOML or JSON)")
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the environment is read")

	cmd.AddCommand(newHarvestCmd())
	cmd.AddCommand(newStatusCmd())
	return cmd
}

func resolveApp(ctx context.Context) (*app, error) {
	a, ok := ctx.Value(appKey).(*app)
	if !ok || a == nil {
		return nil, errors.New("application services not initialized")
	}
	return a, nil
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

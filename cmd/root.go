// Package cmd contains all the CLI commands for the application,
// built using the Cobra library.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/naka-gawa/loc-stats/internal/cache"
	"github.com/naka-gawa/loc-stats/internal/config"
	"github.com/naka-gawa/loc-stats/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "loc-stats",
	Short: "A CLI tool to count the lines of code a GitHub user has changed.",
	Long: `loc-stats sums the weekly additions and deletions a GitHub user made across
every repository their tokens can see, caches the per-week numbers between runs,
and reports them for the all-time, last-year, last-month and last-week windows.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to a YAML config file (default ./loc-stats.yaml)")
	// Add a persistent flag for verbose output, available to all commands.
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose/debug logging")
}

// setup loads the configuration and builds the logger every command shares.
func setup(cmd *cobra.Command) (*config.Config, zerolog.Logger, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, zerolog.Nop(), err
	}

	level := cfg.Log.Level
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = "debug"
	}
	logger := logging.New(logging.Options{
		Level:  level,
		Format: cfg.Log.Format,
		Writer: cmd.ErrOrStderr(),
		RunID:  uuid.NewString(),
	})
	return cfg, logger, nil
}

// openStore returns the configured cache backend and a function releasing it.
func openStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (cache.Store, func(), error) {
	switch cfg.Cache.Backend {
	case "postgres":
		store, err := cache.NewPostgresStore(ctx, cfg.Cache.DSN, logger)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	case "file", "":
		return cache.NewFileStore(cfg.Cache.Path, logger), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown cache backend %q", cfg.Cache.Backend)
	}
}

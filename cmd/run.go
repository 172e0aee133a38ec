package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/naka-gawa/loc-stats/internal/cache"
	"github.com/naka-gawa/loc-stats/internal/config"
	"github.com/naka-gawa/loc-stats/internal/domain"
	"github.com/naka-gawa/loc-stats/internal/gateway"
	"github.com/naka-gawa/loc-stats/internal/history"
	"github.com/naka-gawa/loc-stats/internal/metrics"
	"github.com/naka-gawa/loc-stats/internal/render"
	"github.com/naka-gawa/loc-stats/internal/usecase"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Refreshes the cache from GitHub and writes the SVG card",
	Long: `Lists every repository visible to the configured tokens, refreshes the cached
weekly statistics of each one, and prints and renders the per-window totals.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup(cmd)
		if err != nil {
			return err
		}

		// Flags take precedence over the config file and environment.
		if user, _ := cmd.Flags().GetString("user"); user != "" {
			cfg.User = user
		}
		if path, _ := cmd.Flags().GetString("cache"); path != "" {
			cfg.Cache.Path = path
		}
		if path, _ := cmd.Flags().GetString("output"); path != "" {
			cfg.Output.SVGPath = path
		}
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		if cfg.User == "" {
			return errors.New("no GitHub user configured: set --user or LOC_STATS_USER")
		}

		return runPipeline(cmd.Context(), cfg, logger, dryRun, cmd)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringP("user", "u", "", "GitHub login whose changes are counted")
	runCmd.Flags().String("cache", "", "Cache file path (file backend only)")
	runCmd.Flags().StringP("output", "o", "", "SVG output path")
	runCmd.Flags().Bool("dry-run", false, "Do not persist the refreshed cache")
}

func runPipeline(ctx context.Context, cfg *config.Config, logger zerolog.Logger, dryRun bool, cmd *cobra.Command) error {
	creds, err := cfg.ResolveCredentials(logger)
	if err != nil {
		logger.Error().Msg("no tokens configured; set LOC_STATS_TOKEN_PERSONAL or configure credentials")
		return err
	}

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	recorder := metrics.NewRecorder()

	sources := make([]usecase.Source, 0, len(creds))
	for _, cred := range creds {
		fetcher, err := gateway.NewGitHubGateway(cred, cfg.User, logger,
			gateway.WithAPIBaseURL(cfg.Stats.APIBaseURL),
			gateway.WithRateLimitFloor(cfg.Stats.RateLimitFloor),
			gateway.WithRequestTimeout(cfg.Stats.RequestTimeout),
			gateway.WithDiscovery(gateway.DiscoveryBackend(cfg.Discovery.Backend)),
			gateway.WithQuotaWaitHook(recorder.QuotaWait),
		)
		if err != nil {
			return fmt.Errorf("failed to create GitHub gateway for %s: %w", cred, err)
		}
		sources = append(sources, usecase.Source{Credential: cred, Fetcher: fetcher})
	}

	walker := history.NewWalker(cfg.User)
	walker.Timeout = cfg.History.Timeout
	if cfg.History.CloneBaseURL != "" {
		walker.CloneBaseURL = cfg.History.CloneBaseURL
	}
	if cfg.History.GitBinary != "" {
		walker.GitBinary = cfg.History.GitBinary
	}
	walker.OnWalk = recorder.Walk

	opts := []usecase.OrchestratorOption{
		usecase.WithPass2Delay(cfg.Stats.Pass2Wait),
		usecase.WithOutcomeHook(func(o usecase.Outcome) { recorder.Outcome(string(o)) }),
	}

	logger.Info().Str("user", cfg.User).Int("tokens", len(creds)).Msg("starting")
	repos := usecase.NewDiscoverer(sources, logger).Discover(ctx)

	// An unreadable cache is left in place: the run still reports totals
	// but nothing is written back over it.
	persist := !dryRun
	prior, err := store.Load(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("cache unavailable, refreshing from scratch without saving")
		persist = false
	}
	if cfg.Cache.Checkpoint && persist {
		opts = append(opts, usecase.WithCheckpoint(func(ctx context.Context, c domain.Cache) error {
			return save(ctx, store, c)
		}))
	}

	orchestrator := usecase.NewOrchestrator(sources, walker, cfg.User, logger, opts...)
	updated, report := orchestrator.Run(ctx, repos, prior)

	logger.Info().
		Int("repositories", len(repos)).
		Int("unchanged", report.Count(usecase.OutcomeUnchanged)).
		Int("ready", report.Count(usecase.OutcomeReady)).
		Int("zero", report.Count(usecase.OutcomeZero)).
		Int("fallback", report.Count(usecase.OutcomeFallback)).
		Int("stale", report.Count(usecase.OutcomeStale)).
		Int("failed", report.Count(usecase.OutcomeFailed)).
		Msg("collection finished")

	result := usecase.Aggregate(updated, time.Now())
	recorder.SetAggregate(result)
	for _, t := range result {
		logger.Info().Msg(render.Line(t))
	}
	render.Summary(cmd.OutOrStdout(), result)

	svgErr := render.WriteSVG(cfg.Output.SVGPath, result, cfg.Output.Title)
	if svgErr != nil {
		logger.Error().Err(svgErr).Str("path", cfg.Output.SVGPath).Msg("failed to write SVG")
	} else {
		logger.Info().Str("path", cfg.Output.SVGPath).Msg("SVG written")
	}

	var saveErr error
	switch {
	case dryRun:
		logger.Info().Msg("dry run, cache not saved")
	case !persist:
		logger.Warn().Msg("cache not saved")
	default:
		if saveErr = save(ctx, store, updated); saveErr == nil {
			logger.Info().Msg("cache saved")
		}
	}

	if cfg.Metrics.Textfile != "" {
		if err := recorder.WriteTextfile(cfg.Metrics.Textfile); err != nil {
			logger.Warn().Err(err).Msg("failed to write metrics textfile")
		}
	}
	return errors.Join(svgErr, saveErr)
}

// save stamps the cache with the current time and persists it.
func save(ctx context.Context, store cache.Store, c domain.Cache) error {
	c.LastUpdated = time.Now().UTC()
	if err := store.Save(ctx, c); err != nil {
		return fmt.Errorf("failed to save cache: %w", err)
	}
	return nil
}

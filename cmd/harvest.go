package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/book-harvester/internal/api"
	"github.com/JakeFAU/book-harvester/internal/catalog"
	"github.com/JakeFAU/book-harvester/internal/config"
	"github.com/JakeFAU/book-harvester/internal/extract"
	"github.com/JakeFAU/book-harvester/internal/fetch"
	"github.com/JakeFAU/book-harvester/internal/governor"
	"github.com/JakeFAU/book-harvester/internal/harvest"
	"github.com/JakeFAU/book-harvester/internal/policy/ratelimit"
	"github.com/JakeFAU/book-harvester/internal/store"
)

func newHarvestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "harvest",
		Short: "Download books until the target corpus size is reached",
		Long: `Walks the catalog, fetching and filtering books with bounded concurrency,
until the checkpoint holds the target number of accepted books or the
catalog runs out. Already collected books are never downloaded again.`,
		RunE: runHarvestCommand,
	}
	cmd.Flags().Int("target", 0, "override harvest.target_books")
	cmd.Flags().Int("min-words", 0, "override harvest.min_words")
	cmd.Flags().String("output-dir", "", "override output.dir")
	cmd.Flags().Int("concurrency", 0, "override harvest.concurrent_requests")
	cmd.Flags().String("status-addr", "", "serve progress and metrics on this address while harvesting")
	return cmd
}

func runHarvestCommand(cmd *cobra.Command, _ []string) error {
	a, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	cfg, err := applyHarvestFlags(cmd, a.cfg)
	if err != nil {
		return err
	}
	logger := a.logger

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res := &resources{logger: logger}
	defer res.Close()

	p, err := buildPipeline(ctx, cfg, res, logger)
	if err != nil {
		return err
	}

	serverCtx, stopServer := context.WithCancel(context.WithoutCancel(ctx))
	defer stopServer()
	serverDone := make(chan error, 1)
	if cfg.Server.Addr != "" {
		var runHandler *api.RunHandler
		if p.runs != nil {
			runHandler = api.NewRunHandler(p.runs, 0, logger.Named("api"))
		}
		srv := api.NewServer(p.harvester, runHandler, logger.Named("api"), api.Options{APIKey: cfg.Server.APIKey})
		go func() { serverDone <- srv.ListenAndServe(serverCtx, cfg.Server.Addr) }()
	} else {
		serverDone <- nil
	}

	summary, runErr := p.harvester.Run(ctx)
	renderSummary(cmd.OutOrStdout(), summary)

	stopServer()
	if err := <-serverDone; err != nil {
		logger.Warn("Status server stopped with error", zap.Error(err))
	}

	if runErr != nil {
		if errors.Is(runErr, context.Canceled) {
			logger.Warn("Harvest interrupted; progress is checkpointed")
		}
		return fmt.Errorf("harvest: %w", runErr)
	}
	return nil
}

func applyHarvestFlags(cmd *cobra.Command, cfg config.Config) (config.Config, error) {
	flags := cmd.Flags()
	if flags.Changed("target") {
		v, _ := flags.GetInt("target")
		cfg.Harvest.TargetBooks = v
	}
	if flags.Changed("min-words") {
		v, _ := flags.GetInt("min-words")
		cfg.Harvest.MinWords = v
	}
	if flags.Changed("output-dir") {
		v, _ := flags.GetString("output-dir")
		cfg.Output.Dir = v
	}
	if flags.Changed("concurrency") {
		v, _ := flags.GetInt("concurrency")
		cfg.Harvest.ConcurrentRequests = v
	}
	if flags.Changed("status-addr") {
		v, _ := flags.GetString("status-addr")
		cfg.Server.Addr = v
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid flags: %w", err)
	}
	return cfg, nil
}

type pipeline struct {
	harvester *harvest.Harvester
	runs      store.RunRepository
}

// buildPipeline assembles the fetch stack, governor, persistence and
// notification sinks into a Harvester.
func buildPipeline(ctx context.Context, cfg config.Config, res *resources, logger *zap.Logger) (*pipeline, error) {
	h := cfg.Harvest

	transport := fetch.NewCollyTransport(fetch.CollyConfig{
		UserAgent:      cfg.HTTP.UserAgent,
		RequestTimeout: cfg.HTTP.Timeout,
		MaxBodyBytes:   cfg.HTTP.MaxBodyBytes,
		MaxConns:       h.ConcurrentRequests,
	}, logger.Named("transport"))
	fetcher := fetch.New(transport, fetch.Config{
		RetryLimit:     h.RetryLimit,
		InitialBackoff: h.InitialBackoff,
	}, logger.Named("fetch"))

	govOpts := []governor.Option{
		governor.WithRobots(governor.NewRobotsPolicy(h.RespectRobots, cfg.HTTP.UserAgent, logger.Named("robots"))),
	}
	if limiter := ratelimit.New(ratelimit.Config{RPS: h.RateLimitRPS, Burst: h.RateLimitBurst}); limiter.Enabled() {
		govOpts = append(govOpts, governor.WithRateLimiter(limiter))
	}
	gov := governor.New(governor.Config{
		MaxConcurrent: h.ConcurrentRequests,
		Delay:         h.RequestsDelay,
	}, logger.Named("governor"), govOpts...)

	pool, err := openPool(ctx, cfg, res)
	if err != nil {
		return nil, err
	}
	cp, err := openCheckpoint(ctx, cfg, pool, logger)
	if err != nil {
		return nil, err
	}
	res.add(cp.Close)
	runs, err := openRunStore(ctx, cfg, pool)
	if err != nil {
		return nil, err
	}
	blobs, err := openBlobs(ctx, cfg, res, logger)
	if err != nil {
		return nil, err
	}
	pub, err := openPublisher(ctx, cfg, res)
	if err != nil {
		return nil, err
	}

	deps := harvest.Deps{
		Pages:      catalog.NewPaginator(fetcher, gov, logger.Named("catalog")),
		Fetcher:    fetcher,
		Governor:   gov,
		Extractor:  extract.New(),
		Checkpoint: cp,
		Blobs:      blobs,
		Publisher:  pub,
		Runs:       runs,
		Logger:     logger.Named("harvest"),
	}
	harvester, err := harvest.New(harvest.Config{
		TargetBooks: h.TargetBooks,
		MinWords:    h.MinWords,
		CatalogURL:  h.CatalogURL,
		ForceHTTPS:  h.ForceHTTPS,
		Topic:       h.Topic,
	}, deps)
	if err != nil {
		return nil, fmt.Errorf("init harvester: %w", err)
	}
	return &pipeline{harvester: harvester, runs: runs}, nil
}

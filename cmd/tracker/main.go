// Package main runs the wallet ledger tracker:
// - one poller per monitored program, supervised and restarted on failure
// - one poller per tracked wallet, plus optionally the most recently active ones
// - optional log subscriptions that wake pollers early
// - optional unrealized P&L refresh from a Redis price feed
// - HTTP endpoints for metrics, health, stats and wallet queries
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"solana-wallet-ledger/internal/config"
	"solana-wallet-ledger/internal/discovery"
	"solana-wallet-ledger/internal/ingestion"
	"solana-wallet-ledger/internal/ledger"
	"solana-wallet-ledger/internal/observability"
	"solana-wallet-ledger/internal/orchestrator"
	"solana-wallet-ledger/internal/pricefeed"
	"solana-wallet-ledger/internal/registry"
	"solana-wallet-ledger/internal/solana"
)

func main() {
	configPath := flag.String("config", os.Getenv("LEDGER_CONFIG"), "Path to a YAML or TOML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger, err := observability.NewLogger(cfg.Log.Level, cfg.Log.Format, os.Stdout)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger = logger.With().Str("service", "tracker").Logger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
		cancel()

		// A second signal or a stuck shutdown forces the exit.
		select {
		case sig := <-sigCh:
			logger.Warn().Str("signal", sig.String()).Msg("second signal, forcing exit")
			os.Exit(1)
		case <-time.After(cfg.Polling.StopTimeout.Duration + 10*time.Second):
			logger.Error().Msg("shutdown timed out, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()

	err = run(ctx, cfg, logger)
	close(done)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("tracker stopped")
	}
	logger.Info().Msg("shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics("ledger", reg)

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := syncTracked(ctx, st.tracked, cfg.Tracked, time.Now().UnixMilli()); err != nil {
		return err
	}
	if len(cfg.Tracked) > 0 {
		logger.Info().Int("wallets", len(cfg.Tracked)).Msg("tracked wallets synced")
	}

	rpc := solana.NewHTTPClient(cfg.RPC.Endpoint,
		solana.WithTimeout(cfg.RPC.Timeout.Duration),
		solana.WithMaxRetries(cfg.RPC.MaxRetries),
	)

	var notifier *ingestion.Notifier
	var release func()
	if cfg.RPC.WSEndpoint != "" {
		wsCfg := solana.DefaultWSConfig()
		wsCfg.Logger = logger
		ws, err := solana.NewWSClient(ctx, cfg.RPC.WSEndpoint, &wsCfg)
		if err != nil {
			// Polling alone is complete; wake-ups only cut latency.
			logger.Warn().Err(err).Msg("log subscriptions disabled")
		} else {
			notifier = ingestion.NewNotifier(ws, cfg.Polling.WakeDebounce.Duration, logger)
			release = func() { _ = ws.Close() }
		}
	}

	tokens := registry.New(st.tokens, registry.Options{
		Metadata: registry.NewRPCMetadataSource(rpc),
		Logger:   logger,
		Metrics:  metrics,
	})
	book := ledger.New(st.ledger, ledger.Options{Logger: logger, Metrics: metrics})
	classifier := discovery.NewClassifier(cfg.QuoteMints)

	newPoller := func(source *discovery.EventSource) (*ingestion.Poller, error) {
		return ingestion.NewPoller(ingestion.PollerOptions{
			Source:           source,
			RPC:              rpc,
			Classifier:       classifier,
			Registry:         tokens,
			Ledger:           book,
			Cursors:          st.cursors,
			Failed:           st.failed,
			Archive:          st.archive,
			Fills:            st.ledger,
			Notifier:         notifier,
			Interval:         cfg.Polling.Interval.Duration,
			BatchSize:        cfg.Polling.BatchSize,
			PollTimeout:      cfg.Polling.PollTimeout.Duration,
			FailedRetryLimit: cfg.Polling.FailedRetryLimit,
			TransportRetry:   cfg.Retry.Transport.Policy(),
			StorageRetry:     cfg.Retry.Storage.Policy(),
			Logger:           logger,
			Metrics:          metrics,
		})
	}

	var workers []orchestrator.Worker
	for _, src := range cfg.DomainSources() {
		source, err := discovery.NewEventSource(src)
		if err != nil {
			return err
		}
		p, err := newPoller(source)
		if err != nil {
			return err
		}
		workers = append(workers, p)
		logger.Info().Str("source", src.Name).Str("program", src.Address).Msg("monitoring source")
	}

	since := time.Now().Add(-cfg.Polling.WalletLookback.Duration).UnixMilli()
	wallets, err := watchedWallets(ctx, st.tracked, st.ledger, since, cfg.Polling.MaxRecentWallets, logger)
	if err != nil {
		return err
	}
	for _, source := range wallets {
		p, err := newPoller(source)
		if err != nil {
			return err
		}
		workers = append(workers, p)
	}
	if len(wallets) > 0 {
		logger.Info().Int("wallets", len(wallets)).Msg("monitoring wallets")
	}

	sup := orchestrator.New(orchestrator.Options{
		Workers:     workers,
		StopTimeout: cfg.Polling.StopTimeout.Duration,
		Release:     release,
		Logger:      logger,
		Metrics:     metrics,
	})

	if st.prices != nil && cfg.PriceRefresh.Schedule != "" {
		refresher, err := pricefeed.NewRefresher(pricefeed.RefresherOptions{
			Positions: st.ledger,
			Ledger:    book,
			Feed:      st.prices,
			Schedule:  cfg.PriceRefresh.Schedule,
			Logger:    logger,
			Metrics:   metrics,
		})
		if err != nil {
			return err
		}
		if err := refresher.Start(ctx); err != nil {
			return err
		}
		defer refresher.Stop()
	}

	api := newAPI(ledger.NewAnalytics(st.ledger, st.tracked), logger)
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", observability.Handler(reg))
	mux.Handle("GET /health", sup.HealthHandler())
	mux.Handle("GET /stats", sup.StatsHandler())
	api.register(mux)

	srv := &http.Server{Addr: cfg.HTTP.Addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	// A failed listener stops the pollers and vice versa.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("addr", cfg.HTTP.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		logger.Info().Str("run_id", sup.RunID()).Int("sources", len(workers)).Msg("tracker started")
		err := sup.Run(gctx)
		logger.Info().Interface("stats", sup.Stats()).Msg("final stats")
		if err == nil && ctx.Err() == nil {
			err = errors.New("supervisor exited")
		}
		return err
	})
	return g.Wait()
}

// Package main audits stored positions against their ledger event log.
//
// By default every position is replayed from the event log in Postgres and
// differences are reported. --repair writes the replayed positions back.
// --from clickhouse verifies positions against the ClickHouse archive copy
// of the log instead (read only).
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"solana-wallet-ledger/internal/config"
	"solana-wallet-ledger/internal/domain"
	"solana-wallet-ledger/internal/ledger"
	"solana-wallet-ledger/internal/observability"
	"solana-wallet-ledger/internal/replay"
	"solana-wallet-ledger/internal/storage"
	chstore "solana-wallet-ledger/internal/storage/clickhouse"
	pgstore "solana-wallet-ledger/internal/storage/postgres"
)

func main() {
	configPath := flag.String("config", os.Getenv("LEDGER_CONFIG"), "Path to a YAML or TOML config file")
	from := flag.String("from", "postgres", "Event log to replay: postgres or clickhouse")
	wallet := flag.String("wallet", "", "Replay a single wallet (requires --mint)")
	mint := flag.String("mint", "", "Replay a single mint (requires --wallet)")
	repair := flag.Bool("repair", false, "Write replayed positions back (postgres only)")
	outputJSON := flag.Bool("json", false, "Output as JSON")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := observability.NewLogger(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger = logger.With().Str("service", "replay").Logger()

	if (*wallet == "") != (*mint == "") {
		logger.Fatal().Msg("--wallet and --mint must be given together")
	}
	if cfg.Postgres.DSN == "" {
		logger.Fatal().Msg("postgres dsn is required (LEDGER_POSTGRES_DSN or config file)")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
		cancel()
	}()

	sum, err := run(ctx, cfg, *from, *wallet, *mint, *repair, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("replay failed")
	}

	if *outputJSON {
		out, _ := json.MarshalIndent(sum, "", "  ")
		fmt.Println(string(out))
	} else {
		printSummary(sum)
	}
	if !sum.Clean() {
		os.Exit(2)
	}
}

func run(ctx context.Context, cfg *config.Config, from, wallet, mint string, repair bool, logger zerolog.Logger) (replay.Summary, error) {
	pool, err := pgstore.NewPool(ctx, cfg.Postgres.DSN,
		pgstore.WithMaxConns(cfg.Postgres.MaxConns), pgstore.WithApplicationName("ledger-replay"))
	if err != nil {
		return replay.Summary{}, fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()
	store := pgstore.NewLedgerStore(pool)

	var archive storage.EventArchive
	switch from {
	case "postgres":
	case "clickhouse":
		if cfg.ClickHouse.DSN == "" {
			return replay.Summary{}, fmt.Errorf("clickhouse dsn is required for --from clickhouse")
		}
		conn, err := chstore.NewConn(ctx, cfg.ClickHouse.DSN)
		if err != nil {
			return replay.Summary{}, fmt.Errorf("connect clickhouse: %w", err)
		}
		defer conn.Close()
		archive = chstore.NewEventArchive(conn)
	default:
		return replay.Summary{}, fmt.Errorf("unknown event log %q", from)
	}

	runner, err := replay.NewRunner(replay.Options{
		Checker: ledger.New(store, ledger.Options{Logger: logger}),
		Store:   store,
		Archive: archive,
		Repair:  repair,
		Logger:  logger,
	})
	if err != nil {
		return replay.Summary{}, err
	}

	var keys []domain.PositionKey
	if wallet != "" {
		keys = []domain.PositionKey{{WalletAddress: wallet, Mint: mint}}
	}
	return runner.Run(ctx, keys)
}

func printSummary(s replay.Summary) {
	fmt.Printf("\n=== Replay Summary ===\n")
	fmt.Printf("Event log:   %s\n", s.Source)
	fmt.Printf("Pairs:       %d\n", s.Pairs)
	fmt.Printf("Events:      %d\n", s.Events)
	fmt.Printf("Oversells:   %d\n", s.Rejected)
	fmt.Printf("Drifted:     %d\n", s.Drifted)
	fmt.Printf("Repaired:    %d\n", s.Repaired)
	fmt.Printf("Failed:      %d\n", s.Failed)
	for _, d := range s.Drifts {
		fmt.Printf("  %s %s: balance %s -> %s, realized %s -> %s (repaired=%v)\n",
			d.Wallet, d.Mint, d.StoredBalance, d.ReplayedBalance, d.StoredPnL, d.ReplayedPnL, d.Repaired)
	}
}

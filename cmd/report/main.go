// Package main prints wallet analytics: top traders ranked by P&L with ROI,
// an optional single-wallet detail and recent rejected events.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"solana-wallet-ledger/internal/config"
	"solana-wallet-ledger/internal/ledger"
	"solana-wallet-ledger/internal/reporting"
	"solana-wallet-ledger/internal/storage"
	pgstore "solana-wallet-ledger/internal/storage/postgres"
)

func main() {
	configPath := flag.String("config", os.Getenv("LEDGER_CONFIG"), "Path to a YAML or TOML config file")
	minTrades := flag.Int("min-trades", ledger.DefaultMinTrades, "Minimum trades for a wallet to be ranked")
	limit := flag.Int("limit", 20, "Number of ranked wallets (0 for all)")
	wallet := flag.String("wallet", "", "Include the detail of this wallet")
	rejected := flag.Int("rejected", 0, "Include this many recent rejected events")
	outputDir := flag.String("output-dir", "", "Write REPORT.md and TOP_TRADERS.csv here instead of printing")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if cfg.Postgres.DSN == "" {
		fmt.Fprintln(os.Stderr, "Error: postgres dsn is required (LEDGER_POSTGRES_DSN or config file)")
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := pgstore.NewPool(ctx, cfg.Postgres.DSN,
		pgstore.WithMaxConns(cfg.Postgres.MaxConns), pgstore.WithApplicationName("ledger-report"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error connecting to postgres: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	analytics := ledger.NewAnalytics(pgstore.NewLedgerStore(pool), pgstore.NewTrackedWalletStore(pool))
	r, err := reporting.NewGenerator(analytics).Generate(ctx, reporting.Options{
		MinTrades:     *minTrades,
		Limit:         *limit,
		Wallet:        *wallet,
		RejectedLimit: *rejected,
	})
	if errors.Is(err, storage.ErrNotFound) {
		fmt.Fprintf(os.Stderr, "Error: wallet %s has no recorded trades\n", *wallet)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating report: %v\n", err)
		os.Exit(1)
	}

	md := reporting.RenderMarkdown(r)
	if *outputDir == "" {
		fmt.Print(md)
		return
	}

	if err := os.MkdirAll(*outputDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating output dir: %v\n", err)
		os.Exit(1)
	}
	files := map[string]string{
		"REPORT.md":       md,
		"TOP_TRADERS.csv": reporting.RenderCSV(r.Traders),
	}
	for name, content := range files {
		path := filepath.Join(*outputDir, name)
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing %s: %v\n", path, err)
			os.Exit(1)
		}
		fmt.Printf("  - %s\n", path)
	}
}

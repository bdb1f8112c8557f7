package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"solana-wallet-ledger/internal/config"
	"solana-wallet-ledger/internal/domain"
	"solana-wallet-ledger/internal/pricefeed"
	"solana-wallet-ledger/internal/storage"
	chstore "solana-wallet-ledger/internal/storage/clickhouse"
	"solana-wallet-ledger/internal/storage/memory"
	"solana-wallet-ledger/internal/storage/migrations"
	pgstore "solana-wallet-ledger/internal/storage/postgres"
)

// stores holds every backend the tracker writes to.
type stores struct {
	ledger  storage.LedgerStore
	tokens  storage.TokenStore
	cursors storage.CursorStore
	failed  storage.FailedSignatureStore
	tracked storage.TrackedWalletStore
	archive storage.EventArchive // nil without ClickHouse
	prices  pricefeed.Feed       // nil without Redis

	closers []func()
}

// Close releases connections in reverse order of opening.
func (s *stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func openStores(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*stores, error) {
	st := &stores{}

	if cfg.UseMemory {
		logger.Warn().Msg("using in-memory storage, state is lost on exit")
		st.ledger = memory.NewLedgerStore()
		st.tokens = memory.NewTokenStore()
		st.cursors = memory.NewCursorStore()
		st.failed = memory.NewFailedSignatureStore()
		st.tracked = memory.NewTrackedWalletStore()
	} else {
		pool, err := pgstore.NewPool(ctx, cfg.Postgres.DSN,
			pgstore.WithMaxConns(cfg.Postgres.MaxConns), pgstore.WithApplicationName("ledger-tracker"))
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		st.closers = append(st.closers, pool.Close)
		applied, err := migrations.RunPostgresMigrations(ctx, pool)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}
		if len(applied) > 0 {
			logger.Info().Strs("versions", applied).Msg("applied postgres migrations")
		}
		st.ledger = pgstore.NewLedgerStore(pool)
		st.tokens = pgstore.NewTokenStore(pool)
		st.cursors = pgstore.NewCursorStore(pool)
		st.failed = pgstore.NewFailedSignatureStore(pool)
		st.tracked = pgstore.NewTrackedWalletStore(pool)
	}

	if cfg.ClickHouse.DSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickHouse.DSN)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("connect clickhouse: %w", err)
		}
		st.closers = append(st.closers, func() { _ = conn.Close() })
		st.archive = chstore.NewEventArchive(conn)
		logger.Info().Msg("archiving ledger events to clickhouse")
	}

	if cfg.Redis.Addr != "" {
		rdb, err := pricefeed.Connect(ctx, pricefeed.RedisConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		st.closers = append(st.closers, func() { _ = rdb.Close() })
		st.prices = pricefeed.NewRedisFeed(rdb, cfg.PriceRefresh.MaxAge.Duration)
	}

	return st, nil
}

// syncTracked writes the configured watch list into the tracked wallet store.
// Entries missing from the config are left as they are.
func syncTracked(ctx context.Context, store storage.TrackedWalletStore, entries []config.TrackedConfig, nowMs int64) error {
	for _, t := range entries {
		w := &domain.TrackedWallet{
			Address: t.Address,
			Label:   t.Label,
			Reason:  t.Reason,
			Active:  !t.Disabled,
		}
		if _, err := store.Get(ctx, t.Address); errors.Is(err, storage.ErrNotFound) {
			w.CreatedAt = nowMs
		} else if err != nil {
			return fmt.Errorf("tracked wallet %s: %w", t.Address, err)
		}
		if err := store.Upsert(ctx, w); err != nil {
			return fmt.Errorf("tracked wallet %s: %w", t.Address, err)
		}
	}
	return nil
}

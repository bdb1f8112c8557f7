package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"solana-wallet-ledger/internal/discovery"
	"solana-wallet-ledger/internal/domain"
	"solana-wallet-ledger/internal/storage"
)

// activeWallets lists wallets with recent ledger activity.
type activeWallets interface {
	ListActiveWallets(ctx context.Context, sinceMs int64, limit int) ([]*domain.Wallet, error)
}

// watchedWallets builds one wallet source per active tracked wallet, followed by
// up to maxRecent wallets seen since sinceMs. Addresses that fail validation
// are logged and skipped.
func watchedWallets(
	ctx context.Context,
	tracked storage.TrackedWalletStore,
	recent activeWallets,
	sinceMs int64,
	maxRecent int,
	logger zerolog.Logger,
) ([]*discovery.EventSource, error) {
	seen := make(map[string]bool)
	var sources []*discovery.EventSource

	add := func(address string) {
		if seen[address] {
			return
		}
		seen[address] = true
		src, err := discovery.NewWalletSource(address)
		if err != nil {
			logger.Warn().Err(err).Str("wallet", address).Msg("skipping wallet source")
			return
		}
		sources = append(sources, src)
	}

	list, err := tracked.List(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("list tracked wallets: %w", err)
	}
	for _, w := range list {
		add(w.Address)
	}

	if maxRecent > 0 {
		wallets, err := recent.ListActiveWallets(ctx, sinceMs, maxRecent+len(seen))
		if err != nil {
			return nil, fmt.Errorf("list active wallets: %w", err)
		}
		added := 0
		for _, w := range wallets {
			if added == maxRecent {
				break
			}
			if seen[w.Address] {
				continue
			}
			before := len(sources)
			add(w.Address)
			if len(sources) > before {
				added++
			}
		}
	}
	return sources, nil
}

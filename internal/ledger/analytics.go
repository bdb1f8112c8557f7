package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"solana-wallet-ledger/internal/domain"
	"solana-wallet-ledger/internal/storage"
)

// DefaultMinTrades is the minimum trade count for the top traders list.
const DefaultMinTrades = 3

// DefaultActivityHours is the recent activity window used when none is given.
const DefaultActivityHours = 24

// TraderSummary is one row of the top traders list.
type TraderSummary struct {
	Wallet *domain.Wallet
	ROI    decimal.Decimal
}

// WalletDetail is a wallet with all of its positions.
type WalletDetail struct {
	Wallet    *domain.Wallet
	Positions []*domain.Position
	ROI       decimal.Decimal
	Tracked   *domain.TrackedWallet // nil when the wallet is not on the watch list
}

// Analytics serves read-side wallet queries.
type Analytics struct {
	store   storage.LedgerStore
	tracked storage.TrackedWalletStore
	now     func() time.Time
}

// NewAnalytics creates a query service. tracked may be nil.
func NewAnalytics(store storage.LedgerStore, tracked storage.TrackedWalletStore) *Analytics {
	return &Analytics{store: store, tracked: tracked, now: time.Now}
}

// WithClock sets the time source of windowed queries.
func (a *Analytics) WithClock(now func() time.Time) *Analytics {
	a.now = now
	return a
}

// TopTraders returns wallets with at least minTrades trades ordered by total P&L.
// A non-positive minTrades uses DefaultMinTrades.
func (a *Analytics) TopTraders(ctx context.Context, minTrades, limit int) ([]TraderSummary, error) {
	if minTrades <= 0 {
		minTrades = DefaultMinTrades
	}
	wallets, err := a.store.TopWallets(ctx, minTrades, limit)
	if err != nil {
		return nil, fmt.Errorf("top wallets: %w", err)
	}
	out := make([]TraderSummary, 0, len(wallets))
	for _, w := range wallets {
		out = append(out, TraderSummary{Wallet: w, ROI: w.ROI()})
	}
	return out, nil
}

// WalletDetail returns the wallet aggregates and positions of address.
// Returns storage.ErrNotFound for wallets that never traded.
func (a *Analytics) WalletDetail(ctx context.Context, address string) (*WalletDetail, error) {
	w, err := a.store.GetWallet(ctx, address)
	if err != nil {
		return nil, err
	}
	positions, err := a.store.ListPositions(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}

	d := &WalletDetail{Wallet: w, Positions: positions, ROI: w.ROI()}
	if a.tracked != nil {
		t, err := a.tracked.Get(ctx, address)
		switch {
		case err == nil:
			d.Tracked = t
		case !errors.Is(err, storage.ErrNotFound):
			return nil, fmt.Errorf("get tracked wallet: %w", err)
		}
	}
	return d, nil
}

// Rejected returns the most recent rejected events.
func (a *Analytics) Rejected(ctx context.Context, limit int) ([]*domain.RejectedEvent, error) {
	return a.store.ListRejected(ctx, limit)
}

// RecentActivity returns the events of the last hours, newest first.
// A non-positive hours uses DefaultActivityHours.
func (a *Analytics) RecentActivity(ctx context.Context, hours, limit int) ([]*domain.LedgerEvent, error) {
	if hours <= 0 {
		hours = DefaultActivityHours
	}
	since := a.now().Add(-time.Duration(hours) * time.Hour).UnixMilli()
	events, err := a.store.ListRecentEvents(ctx, since, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent events: %w", err)
	}
	return events, nil
}

// PartialOrders returns orders assembled from partial fills, latest first.
// An empty wallet covers every wallet.
func (a *Analytics) PartialOrders(ctx context.Context, wallet string, limit int) ([]*domain.PartialOrder, error) {
	orders, err := a.store.ListPartialOrders(ctx, wallet, limit)
	if err != nil {
		return nil, fmt.Errorf("list partial orders: %w", err)
	}
	return orders, nil
}

package pricefeed

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-wallet-ledger/internal/domain"
	"solana-wallet-ledger/internal/ledger"
	"solana-wallet-ledger/internal/observability"
	"solana-wallet-ledger/internal/storage/memory"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func trade(id, wallet, mint string, side domain.TradeSide, slot int64, amount, quote string) *domain.LedgerEvent {
	a, q := d(amount), d(quote)
	return &domain.LedgerEvent{
		EventID:       id,
		WalletAddress: wallet,
		Mint:          mint,
		Signature:     "sig-" + id,
		Side:          side,
		TokenAmount:   a,
		QuoteAmount:   q,
		QuoteMint:     domain.NativeSOL,
		UnitPrice:     q.DivRound(a, 18),
		Fee:           decimal.Zero,
		Slot:          slot,
		Timestamp:     slot * 1000,
	}
}

// seedLedger opens W1/A (1000 @ 0.01), W2/B (10 @ 1) and a closed W1/C.
func seedLedger(t *testing.T) (*ledger.Ledger, *memory.LedgerStore) {
	t.Helper()
	ctx := context.Background()
	store := memory.NewLedgerStore()
	l := ledger.New(store, ledger.Options{})

	for _, e := range []struct {
		token int64
		ev    *domain.LedgerEvent
	}{
		{1, trade("a1", "W1", "A", domain.SideBuy, 1, "1000", "10")},
		{2, trade("b1", "W2", "B", domain.SideBuy, 2, "10", "10")},
		{3, trade("c1", "W1", "C", domain.SideBuy, 3, "5", "5")},
		{3, trade("c2", "W1", "C", domain.SideSell, 4, "5", "6")},
	} {
		_, err := l.Apply(ctx, e.token, e.ev)
		require.NoError(t, err)
	}
	return l, store
}

func TestNewRefresher_Validation(t *testing.T) {
	l, store := seedLedger(t)

	_, err := NewRefresher(RefresherOptions{})
	assert.Error(t, err)

	_, err = NewRefresher(RefresherOptions{Positions: store, Ledger: l, Feed: NewStaticFeed(nil), Schedule: "not a schedule"})
	assert.Error(t, err)

	r, err := NewRefresher(RefresherOptions{Positions: store, Ledger: l, Feed: NewStaticFeed(nil)})
	require.NoError(t, err)
	assert.Equal(t, DefaultSchedule, r.schedule)
}

func TestRefresher_Refresh(t *testing.T) {
	ctx := context.Background()
	l, store := seedLedger(t)
	metrics := observability.NewMetrics("test", prometheus.NewRegistry())

	feed := NewStaticFeed(map[string]decimal.Decimal{
		"A": d("0.025"),
		"C": d("100"),
	})
	r, err := NewRefresher(RefresherOptions{
		Positions: store,
		Ledger:    l,
		Feed:      feed,
		Logger:    zerolog.Nop(),
		Metrics:   metrics,
	})
	require.NoError(t, err)

	res, err := r.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, RefreshResult{Positions: 2, Updated: 1, NoPrice: 1}, res)

	a, err := store.GetPosition(ctx, "W1", "A")
	require.NoError(t, err)
	assert.True(t, d("15").Equal(a.UnrealizedPnL), a.UnrealizedPnL.String())

	b, err := store.GetPosition(ctx, "W2", "B")
	require.NoError(t, err)
	assert.True(t, b.UnrealizedPnL.IsZero())

	c, err := store.GetPosition(ctx, "W1", "C")
	require.NoError(t, err)
	assert.True(t, c.UnrealizedPnL.IsZero(), "closed positions are never marked")

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.PositionsRefreshed))

	// A price drop marks the position below cost.
	feed.Set("A", d("0.005"))
	_, err = r.Refresh(ctx)
	require.NoError(t, err)
	a, err = store.GetPosition(ctx, "W1", "A")
	require.NoError(t, err)
	assert.True(t, d("-5").Equal(a.UnrealizedPnL), a.UnrealizedPnL.String())
}

type failingFeed struct{}

func (failingFeed) Prices(context.Context, []string) (map[string]decimal.Decimal, error) {
	return nil, errors.New("feed down")
}

func TestRefresher_FeedError(t *testing.T) {
	l, store := seedLedger(t)
	r, err := NewRefresher(RefresherOptions{Positions: store, Ledger: l, Feed: failingFeed{}, Logger: zerolog.Nop()})
	require.NoError(t, err)

	_, err = r.Refresh(context.Background())
	assert.ErrorContains(t, err, "feed down")
}

type failingUpdater struct{}

func (failingUpdater) RefreshUnrealized(context.Context, domain.PositionKey, decimal.Decimal) (domain.Position, error) {
	return domain.Position{}, errors.New("deadlock detected")
}

func TestRefresher_UpdateFailureSkipsPosition(t *testing.T) {
	_, store := seedLedger(t)
	r, err := NewRefresher(RefresherOptions{
		Positions: store,
		Ledger:    failingUpdater{},
		Feed:      NewStaticFeed(map[string]decimal.Decimal{"A": d("1"), "B": d("2")}),
		Logger:    zerolog.Nop(),
	})
	require.NoError(t, err)

	res, err := r.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Failed)
	assert.Equal(t, 0, res.Updated)
}

type countingFeed struct {
	calls atomic.Int32
}

func (f *countingFeed) Prices(context.Context, []string) (map[string]decimal.Decimal, error) {
	f.calls.Add(1)
	return map[string]decimal.Decimal{}, nil
}

func TestRefresher_StartStop(t *testing.T) {
	l, store := seedLedger(t)
	feed := &countingFeed{}
	r, err := NewRefresher(RefresherOptions{
		Positions: store,
		Ledger:    l,
		Feed:      feed,
		Schedule:  "@every 1s",
		Logger:    zerolog.Nop(),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, r.Start(ctx))
	assert.Error(t, r.Start(ctx))

	require.Eventually(t, func() bool { return feed.calls.Load() >= 1 }, 5*time.Second, 50*time.Millisecond)
	r.Stop()
	r.Stop()

	calls := feed.calls.Load()
	time.Sleep(1200 * time.Millisecond)
	assert.Equal(t, calls, feed.calls.Load())
}

func TestStaticFeed(t *testing.T) {
	f := NewStaticFeed(map[string]decimal.Decimal{"A": d("1")})
	f.Set("B", d("2"))

	got, err := f.Prices(context.Background(), []string{"A", "B", "C"})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.True(t, d("2").Equal(got["B"]))
}

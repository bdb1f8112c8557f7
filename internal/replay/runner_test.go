package replay

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-wallet-ledger/internal/domain"
	"solana-wallet-ledger/internal/ledger"
	"solana-wallet-ledger/internal/storage"
	"solana-wallet-ledger/internal/storage/memory"
)

var key = domain.PositionKey{WalletAddress: "W", Mint: "T", TokenID: 1}

func ev(id string, side domain.TradeSide, slot int64, amount, quote string) *domain.LedgerEvent {
	amt := decimal.RequireFromString(amount)
	q := decimal.RequireFromString(quote)
	return &domain.LedgerEvent{
		EventID:       id,
		WalletAddress: "W",
		Mint:          "T",
		Signature:     "sig-" + id,
		Side:          side,
		TokenAmount:   amt,
		QuoteAmount:   q,
		QuoteMint:     domain.NativeSOL,
		UnitPrice:     q.Div(amt),
		Slot:          slot,
		Timestamp:     slot * 1000,
	}
}

func seed(t *testing.T) (*ledger.Ledger, *memory.LedgerStore, []*domain.LedgerEvent) {
	t.Helper()
	store := memory.NewLedgerStore()
	book := ledger.New(store, ledger.Options{})
	events := []*domain.LedgerEvent{
		ev("b1", domain.SideBuy, 1, "1000", "10"),
		ev("s1", domain.SideSell, 2, "400", "8"),
	}
	for _, e := range events {
		_, err := book.Apply(context.Background(), 1, e)
		require.NoError(t, err)
	}
	return book, store, events
}

func corrupt(t *testing.T, store *memory.LedgerStore) {
	t.Helper()
	err := store.WithPosition(context.Background(), key, func(ctx context.Context, u storage.LedgerUnit) error {
		p := u.Position()
		p.CurrentBalance = decimal.NewFromInt(1)
		p.RealizedPnL = decimal.NewFromInt(99)
		return u.SavePosition(ctx, &p)
	})
	require.NoError(t, err)
}

func TestRunner_CleanStore(t *testing.T) {
	book, store, _ := seed(t)
	r, err := NewRunner(Options{Checker: book, Store: store})
	require.NoError(t, err)

	sum, err := r.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "store", sum.Source)
	assert.Equal(t, 1, sum.Pairs)
	assert.Equal(t, 2, sum.Events)
	assert.Zero(t, sum.Drifted)
	assert.True(t, sum.Clean())
}

func TestRunner_ReportsDriftWithoutWriting(t *testing.T) {
	book, store, _ := seed(t)
	corrupt(t, store)

	r, err := NewRunner(Options{Checker: book, Store: store})
	require.NoError(t, err)

	sum, err := r.Run(context.Background(), []domain.PositionKey{key})
	require.NoError(t, err)
	require.Equal(t, 1, sum.Drifted)
	assert.Zero(t, sum.Repaired)
	assert.False(t, sum.Clean())
	assert.Equal(t, "1", sum.Drifts[0].StoredBalance)
	assert.Equal(t, "600", sum.Drifts[0].ReplayedBalance)
	assert.Equal(t, "4", sum.Drifts[0].ReplayedPnL)

	p, err := store.GetPosition(context.Background(), "W", "T")
	require.NoError(t, err)
	assert.True(t, p.CurrentBalance.Equal(decimal.NewFromInt(1)), "verify mode must not write")
}

func TestRunner_Repair(t *testing.T) {
	book, store, _ := seed(t)
	corrupt(t, store)

	r, err := NewRunner(Options{Checker: book, Store: store, Repair: true})
	require.NoError(t, err)

	sum, err := r.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Drifted)
	assert.Equal(t, 1, sum.Repaired)
	assert.True(t, sum.Clean())

	p, err := store.GetPosition(context.Background(), "W", "T")
	require.NoError(t, err)
	assert.True(t, p.CurrentBalance.Equal(decimal.NewFromInt(600)))

	// A second pass finds nothing to repair.
	sum, err = r.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, sum.Drifted)
}

func TestRunner_VerifyAgainstArchive(t *testing.T) {
	ctx := context.Background()
	book, store, events := seed(t)

	archive := memory.NewEventArchive()
	require.NoError(t, archive.InsertBulk(ctx, events))

	r, err := NewRunner(Options{Checker: book, Store: store, Archive: archive})
	require.NoError(t, err)
	sum, err := r.Run(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, "archive", sum.Source)
	assert.Equal(t, 1, sum.Pairs)
	assert.Zero(t, sum.Drifted)

	// The archive lost the sell: the replay keeps the full balance.
	partial := memory.NewEventArchive()
	require.NoError(t, partial.InsertBulk(ctx, events[:1]))
	r, err = NewRunner(Options{Checker: book, Store: store, Archive: partial})
	require.NoError(t, err)
	sum, err = r.Run(ctx, nil)
	require.NoError(t, err)
	require.Equal(t, 1, sum.Drifted)
	assert.Equal(t, "1000", sum.Drifts[0].ReplayedBalance)
	assert.False(t, sum.Drifts[0].Repaired)
}

func TestNewRunner_Validation(t *testing.T) {
	book, store, _ := seed(t)

	_, err := NewRunner(Options{Store: store})
	assert.Error(t, err)

	_, err = NewRunner(Options{Checker: book, Store: store, Archive: memory.NewEventArchive(), Repair: true})
	assert.ErrorIs(t, err, ErrRepairFromArchive)
}

type failingChecker struct{}

func (failingChecker) Recompute(context.Context, domain.PositionKey, bool) (*ledger.Drift, error) {
	return nil, errors.New("boom")
}

func (failingChecker) Verify(context.Context, domain.PositionKey, []*domain.LedgerEvent) (*ledger.Drift, error) {
	return nil, errors.New("boom")
}

func TestRunner_CountsFailures(t *testing.T) {
	_, store, _ := seed(t)
	r, err := NewRunner(Options{Checker: failingChecker{}, Store: store})
	require.NoError(t, err)

	sum, err := r.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Failed)
	assert.False(t, sum.Clean())
}

func TestValidateOrder(t *testing.T) {
	a := ev("a", domain.SideBuy, 1, "1", "1")
	b := ev("b", domain.SideBuy, 2, "1", "1")

	assert.NoError(t, validateOrder([]*domain.LedgerEvent{a, b}))
	assert.NoError(t, validateOrder(nil))
	assert.ErrorIs(t, validateOrder([]*domain.LedgerEvent{b, a}), ErrInvalidOrdering)
}

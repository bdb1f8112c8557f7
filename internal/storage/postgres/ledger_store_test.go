package postgres

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-wallet-ledger/internal/domain"
	"solana-wallet-ledger/internal/storage"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func buyEvent(id, wallet, mint string, slot int64, amount string) *domain.LedgerEvent {
	return &domain.LedgerEvent{
		EventID:       id,
		WalletAddress: wallet,
		Mint:          mint,
		Signature:     "sig-" + id,
		Side:          domain.SideBuy,
		TokenAmount:   d(amount),
		QuoteAmount:   d("0.5"),
		QuoteMint:     domain.NativeSOL,
		UnitPrice:     d("0.000000123456789012"),
		Fee:           d("0.000005"),
		Timestamp:     1700000000000 + slot,
		Slot:          slot,
		Source:        "PumpSwap",
	}
}

// applyBuy is a reduced ledger step: it only tracks counts and balances.
func applyBuy(ctx context.Context, store *LedgerStore, key domain.PositionKey, e *domain.LedgerEvent) error {
	return store.WithPosition(ctx, key, func(ctx context.Context, u storage.LedgerUnit) error {
		p := u.Position()
		p.BuyCount++
		p.TotalBought = p.TotalBought.Add(e.TokenAmount)
		p.CurrentBalance = p.CurrentBalance.Add(e.TokenAmount)
		p.FirstBuyAt = ptr(e.Timestamp)
		p.LastBuyAt = ptr(e.Timestamp)
		p.UpdatedAt = e.Timestamp
		if err := u.SavePosition(ctx, &p); err != nil {
			return err
		}
		if err := u.AppendEvent(ctx, e); err != nil {
			return err
		}
		return u.RefreshWallet(ctx, func(w *domain.Wallet, positions []*domain.Position) {
			w.TotalTrades = 0
			for _, pos := range positions {
				w.TotalTrades += pos.BuyCount + pos.SellCount
			}
			w.LastSeen = e.Timestamp
		})
	})
}

func TestLedgerStore_WithPositionCommit(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	tokenID := seedToken(t, ctx, pool, "MintL")
	store := NewLedgerStore(pool)
	key := domain.PositionKey{WalletAddress: "W", Mint: "MintL", TokenID: tokenID}

	require.NoError(t, applyBuy(ctx, store, key, buyEvent("e2", "W", "MintL", 20, "1000.123456")))
	require.NoError(t, applyBuy(ctx, store, key, buyEvent("e1", "W", "MintL", 10, "0.000001")))

	p, err := store.GetPosition(ctx, "W", "MintL")
	require.NoError(t, err)
	assert.Equal(t, 2, p.BuyCount)
	assert.True(t, d("1000.123457").Equal(p.CurrentBalance), p.CurrentBalance.String())
	assert.Equal(t, tokenID, p.TokenID)
	assert.Equal(t, domain.PositionOpen, p.Status)
	require.NotNil(t, p.FirstBuyAt)

	w, err := store.GetWallet(ctx, "W")
	require.NoError(t, err)
	assert.Equal(t, 2, w.TotalTrades)
	assert.Equal(t, p.WalletID, w.ID)
	assert.NotNil(t, w.Tags)

	events, err := store.ListEvents(ctx, "W", "MintL")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "e1", events[0].EventID)
	assert.True(t, d("0.000000123456789012").Equal(events[0].UnitPrice))
	assert.Equal(t, domain.SideBuy, events[0].Side)
	assert.Nil(t, events[0].OrderID)
}

func TestLedgerStore_RollbackOnError(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	tokenID := seedToken(t, ctx, pool, "MintR")
	store := NewLedgerStore(pool)
	boom := errors.New("boom")

	err := store.WithPosition(ctx, domain.PositionKey{WalletAddress: "W", Mint: "MintR", TokenID: tokenID},
		func(ctx context.Context, u storage.LedgerUnit) error {
			p := u.Position()
			p.BuyCount = 1
			require.NoError(t, u.SavePosition(ctx, &p))
			require.NoError(t, u.AppendEvent(ctx, buyEvent("e1", "W", "MintR", 1, "1")))
			return boom
		})
	assert.ErrorIs(t, err, boom)

	_, err = store.GetPosition(ctx, "W", "MintR")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = store.GetWallet(ctx, "W")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	events, err := store.ListEvents(ctx, "W", "MintR")
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestLedgerStore_DuplicateEvent(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	tokenID := seedToken(t, ctx, pool, "MintD")
	store := NewLedgerStore(pool)
	key := domain.PositionKey{WalletAddress: "W", Mint: "MintD", TokenID: tokenID}

	e := buyEvent("dup", "W", "MintD", 1, "5")
	require.NoError(t, applyBuy(ctx, store, key, e))

	err := store.WithPosition(ctx, key, func(ctx context.Context, u storage.LedgerUnit) error {
		exists, err := u.HasEvent(ctx, "dup")
		require.NoError(t, err)
		assert.True(t, exists)
		return u.AppendEvent(ctx, e)
	})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	p, err := store.GetPosition(ctx, "W", "MintD")
	require.NoError(t, err)
	assert.Equal(t, 1, p.BuyCount)
}

func TestLedgerStore_ConcurrentSameKey(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	tokenID := seedToken(t, ctx, pool, "MintC")
	store := NewLedgerStore(pool)
	key := domain.PositionKey{WalletAddress: "W", Mint: "MintC", TokenID: tokenID}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := applyBuy(ctx, store, key, buyEvent(fmt.Sprintf("e%d", i), "W", "MintC", int64(i), "1"))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	p, err := store.GetPosition(ctx, "W", "MintC")
	require.NoError(t, err)
	assert.Equal(t, 20, p.BuyCount)
	assert.True(t, d("20").Equal(p.CurrentBalance))
}

func TestLedgerStore_ConcurrentMintsOfOneWallet(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewLedgerStore(pool)

	keys := make([]domain.PositionKey, 6)
	for i := range keys {
		mint := fmt.Sprintf("Mint%d", i)
		keys[i] = domain.PositionKey{WalletAddress: "W", Mint: mint, TokenID: seedToken(t, ctx, pool, mint)}
	}

	var wg sync.WaitGroup
	for i, key := range keys {
		wg.Add(1)
		go func(i int, key domain.PositionKey) {
			defer wg.Done()
			err := applyBuy(ctx, store, key, buyEvent(fmt.Sprintf("m%d", i), "W", key.Mint, int64(i), "1"))
			assert.NoError(t, err)
		}(i, key)
	}
	wg.Wait()

	w, err := store.GetWallet(ctx, "W")
	require.NoError(t, err)
	assert.Equal(t, len(keys), w.TotalTrades)

	positions, err := store.ListPositions(ctx, "W")
	require.NoError(t, err)
	assert.Len(t, positions, len(keys))

	allKeys, err := store.ListPositionKeys(ctx)
	require.NoError(t, err)
	assert.Len(t, allKeys, len(keys))

	open, err := store.ListOpenPositions(ctx)
	require.NoError(t, err)
	assert.Len(t, open, len(keys))
}

func TestLedgerStore_TopWallets(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	tokenID := seedToken(t, ctx, pool, "MintT")
	store := NewLedgerStore(pool)

	set := func(wallet string, trades int, pnl string) {
		err := store.WithPosition(ctx, domain.PositionKey{WalletAddress: wallet, Mint: "MintT", TokenID: tokenID},
			func(ctx context.Context, u storage.LedgerUnit) error {
				p := u.Position()
				p.BuyCount = trades
				if err := u.SavePosition(ctx, &p); err != nil {
					return err
				}
				return u.RefreshWallet(ctx, func(w *domain.Wallet, _ []*domain.Position) {
					w.TotalTrades = trades
					w.TotalProfitLoss = d(pnl)
					w.WinRate = 0.5
					w.Tags = []string{"tracked"}
				})
			})
		require.NoError(t, err)
	}
	set("A", 5, "1.5")
	set("B", 3, "10")
	set("C", 2, "100")

	top, err := store.TopWallets(ctx, 3, 10)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "B", top[0].Address)
	assert.Equal(t, "A", top[1].Address)
	assert.True(t, d("1.5").Equal(top[1].TotalProfitLoss))
	assert.InDelta(t, 0.5, top[0].WinRate, 1e-9)
	assert.Equal(t, []string{"tracked"}, top[0].Tags)
}

func TestLedgerStore_Rejected(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewLedgerStore(pool)

	e := buyEvent("sell1", "W", "MintX", 5, "700")
	e.Side = domain.SideSell
	r := &domain.RejectedEvent{ID: "r1", Event: *e, Reason: "oversell", Balance: d("600"), RejectedAt: 10}

	require.NoError(t, store.AppendRejected(ctx, r))
	assert.ErrorIs(t, store.AppendRejected(ctx, r), storage.ErrDuplicateKey)
	require.NoError(t, store.AppendRejected(ctx, &domain.RejectedEvent{ID: "r2", Event: *e, Reason: "oversell", Balance: d("0"), RejectedAt: 20}))

	got, err := store.ListRejected(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "r2", got[0].ID)
	assert.Equal(t, "r1", got[1].ID)
	assert.Equal(t, domain.SideSell, got[1].Event.Side)
	assert.True(t, d("600").Equal(got[1].Balance))
	assert.True(t, d("700").Equal(got[1].Event.TokenAmount))
}

func TestLedgerStore_InvalidKey(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	err := NewLedgerStore(pool).WithPosition(context.Background(), domain.PositionKey{WalletAddress: "W", Mint: "M"},
		func(context.Context, storage.LedgerUnit) error { return nil })
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestLedgerStore_NewestAndReinstate(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	tokenID := seedToken(t, ctx, pool, "MintN")
	store := NewLedgerStore(pool)
	key := domain.PositionKey{WalletAddress: "W", Mint: "MintN", TokenID: tokenID}

	require.NoError(t, applyBuy(ctx, store, key, buyEvent("b1", "W", "MintN", 1, "10")))
	sell := buyEvent("s3", "W", "MintN", 3, "20")
	sell.Side = domain.SideSell
	require.NoError(t, store.AppendRejected(ctx, &domain.RejectedEvent{ID: "r3", Event: *sell, Reason: "oversell", Balance: d("10"), RejectedAt: 5}))

	err := store.WithPosition(ctx, key, func(ctx context.Context, u storage.LedgerUnit) error {
		newest, err := u.Newest(ctx)
		require.NoError(t, err)
		require.NotNil(t, newest)
		assert.Equal(t, "s3", newest.EventID)

		rejected, err := u.Rejected(ctx)
		require.NoError(t, err)
		require.Len(t, rejected, 1)
		assert.Equal(t, "r3", rejected[0].ID)

		require.NoError(t, u.AppendEvent(ctx, sell))
		require.NoError(t, u.Reinstate(ctx, "r3"))

		events, err := u.Events(ctx)
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, "s3", events[1].EventID)

		rejected, err = u.Rejected(ctx)
		require.NoError(t, err)
		assert.Empty(t, rejected)
		return nil
	})
	require.NoError(t, err)

	got, err := store.ListRejected(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, got)

	err = store.WithPosition(ctx, domain.PositionKey{WalletAddress: "Fresh", Mint: "MintN", TokenID: tokenID},
		func(ctx context.Context, u storage.LedgerUnit) error {
			newest, err := u.Newest(ctx)
			require.NoError(t, err)
			assert.Nil(t, newest)
			return nil
		})
	require.NoError(t, err)
}

func TestLedgerStore_PartialOrdersAndRecent(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	tokenID := seedToken(t, ctx, pool, "MintP")
	store := NewLedgerStore(pool)
	key := domain.PositionKey{WalletAddress: "W", Mint: "MintP", TokenID: tokenID}

	fill := func(id string, slot int64, index int) *domain.LedgerEvent {
		e := buyEvent(id, "W", "MintP", slot, "100")
		order := "order-1"
		e.OrderID = &order
		e.PartialFillIndex = &index
		return e
	}
	require.NoError(t, applyBuy(ctx, store, key, fill("f1", 1, 1)))
	require.NoError(t, applyBuy(ctx, store, key, fill("f2", 2, 2)))
	require.NoError(t, applyBuy(ctx, store, domain.PositionKey{WalletAddress: "V", Mint: "MintP", TokenID: tokenID},
		buyEvent("v1", "V", "MintP", 3, "5")))
	require.NoError(t, store.AppendRejected(ctx, &domain.RejectedEvent{ID: "r3", Event: *fill("f3", 4, 3), Reason: "oversell", Balance: d("0"), RejectedAt: 9}))

	orders, err := store.ListPartialOrders(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	o := orders[0]
	assert.Equal(t, "order-1", o.OrderID)
	assert.Equal(t, 2, o.Fills)
	assert.True(t, d("200").Equal(o.TokenAmount), o.TokenAmount.String())
	assert.True(t, d("1").Equal(o.QuoteAmount), o.QuoteAmount.String())
	assert.True(t, d("0.005").Equal(o.AvgPrice()), o.AvgPrice().String())
	assert.Equal(t, int64(1700000000001), o.FirstAt)
	assert.Equal(t, int64(1700000000002), o.LastAt)

	orders, err = store.ListPartialOrders(ctx, "V", 10)
	require.NoError(t, err)
	assert.Empty(t, orders)

	highest, err := store.MaxFillIndex(ctx, "order-1")
	require.NoError(t, err)
	assert.Equal(t, 3, highest)
	highest, err = store.MaxFillIndex(ctx, "missing")
	require.NoError(t, err)
	assert.Equal(t, 0, highest)

	recent, err := store.ListRecentEvents(ctx, 1700000000002, 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "v1", recent[0].EventID)
	assert.Equal(t, "f2", recent[1].EventID)

	active, err := store.ListActiveWallets(ctx, 1700000000003, 10)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "V", active[0].Address)

	active, err = store.ListActiveWallets(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "V", active[0].Address)
	assert.Equal(t, "W", active[1].Address)
}

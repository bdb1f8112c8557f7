package discovery

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-wallet-ledger/internal/domain"
)

func fill(sig string, slot, ts int64, side domain.TradeSide) *domain.LedgerEvent {
	return &domain.LedgerEvent{
		EventID:       sig,
		WalletAddress: "Wallet1111111111",
		Mint:          "Mint111111111111",
		Signature:     sig,
		Side:          side,
		Slot:          slot,
		Timestamp:     ts,
	}
}

func TestSortLedgerEvents(t *testing.T) {
	events := []*domain.LedgerEvent{
		{Signature: "b", Slot: 2, Timestamp: 10},
		{Signature: "c", Slot: 1, Timestamp: 20, LegIndex: 1},
		{Signature: "c", Slot: 1, Timestamp: 20, LegIndex: 0},
		{Signature: "a", Slot: 1, Timestamp: 20},
		{Signature: "z", Slot: 1, Timestamp: 5},
	}

	SortLedgerEvents(events)

	var got []string
	for _, e := range events {
		got = append(got, e.Signature)
	}
	assert.Equal(t, []string{"z", "a", "c", "c", "b"}, got)
	assert.Equal(t, 0, events[2].LegIndex)
	assert.Equal(t, 1, events[3].LegIndex)
}

func TestGroupPartialFills_SameWindow(t *testing.T) {
	base := int64(1_700_000_100_000) // aligned inside one 5 minute bucket
	events := []*domain.LedgerEvent{
		fill("s2", 11, base+60_000, domain.SideBuy),
		fill("s1", 10, base, domain.SideBuy),
	}

	tagged := GroupPartialFills(events, DefaultFillWindow)
	require.Equal(t, 2, tagged)

	require.NotNil(t, events[0].OrderID)
	require.NotNil(t, events[1].OrderID)
	assert.Equal(t, *events[0].OrderID, *events[1].OrderID)

	// Indexes follow chronology, not input order.
	assert.Equal(t, 2, *events[0].PartialFillIndex)
	assert.Equal(t, 1, *events[1].PartialFillIndex)
}

func TestGroupPartialFills_Singletons(t *testing.T) {
	base := int64(1_700_000_100_000)
	events := []*domain.LedgerEvent{
		fill("buy", 10, base, domain.SideBuy),
		fill("sell", 11, base+1000, domain.SideSell),
		fill("later", 12, base+time.Hour.Milliseconds(), domain.SideBuy),
	}

	assert.Equal(t, 0, GroupPartialFills(events, DefaultFillWindow))
	for _, e := range events {
		assert.Nil(t, e.OrderID)
		assert.Nil(t, e.PartialFillIndex)
	}
}

func TestGroupPartialFills_SkipsTaggedAndUntimed(t *testing.T) {
	base := int64(1_700_000_100_000)
	existing := "intra-tx-order"
	one := 1

	tagged := fill("legs", 10, base, domain.SideBuy)
	tagged.OrderID = &existing
	tagged.PartialFillIndex = &one

	events := []*domain.LedgerEvent{
		tagged,
		fill("plain", 11, base+1000, domain.SideBuy),
		fill("untimed", 12, 0, domain.SideBuy),
	}

	assert.Equal(t, 0, GroupPartialFills(events, DefaultFillWindow))
	assert.Equal(t, "intra-tx-order", *events[0].OrderID)
	assert.Nil(t, events[1].OrderID)
	assert.Nil(t, events[2].OrderID)
}

func TestGroupPartialFills_DefaultWindow(t *testing.T) {
	base := int64(1_700_000_100_000)
	events := []*domain.LedgerEvent{
		fill("s1", 10, base, domain.SideSell),
		fill("s2", 11, base+1000, domain.SideSell),
	}

	assert.Equal(t, 2, GroupPartialFills(events, 0))
}

func TestContinuePartialFills_ResumesStoredOrder(t *testing.T) {
	base := int64(1_700_000_100_000)
	first := []*domain.LedgerEvent{
		fill("a1", 10, base, domain.SideBuy),
		fill("a2", 11, base+1000, domain.SideBuy),
	}
	_, err := ContinuePartialFills(first, DefaultFillWindow, nil)
	require.NoError(t, err)
	orderID := *first[0].OrderID

	recorded := map[string]int{orderID: 2}
	stored := func(id string) (int, error) { return recorded[id], nil }

	// The next batch brings a single fill of the same window.
	second := []*domain.LedgerEvent{fill("a3", 12, base+2000, domain.SideBuy)}
	tagged, err := ContinuePartialFills(second, DefaultFillWindow, stored)
	require.NoError(t, err)
	assert.Equal(t, 1, tagged)
	require.NotNil(t, second[0].OrderID)
	assert.Equal(t, orderID, *second[0].OrderID)
	assert.Equal(t, 3, *second[0].PartialFillIndex)

	// A lone fill of a window with nothing on record stays untagged.
	lone := []*domain.LedgerEvent{fill("b1", 20, base+time.Hour.Milliseconds(), domain.SideBuy)}
	tagged, err = ContinuePartialFills(lone, DefaultFillWindow, stored)
	require.NoError(t, err)
	assert.Zero(t, tagged)
	assert.Nil(t, lone[0].OrderID)
}

func TestContinuePartialFills_LookupError(t *testing.T) {
	base := int64(1_700_000_100_000)
	events := []*domain.LedgerEvent{
		fill("a1", 10, base, domain.SideBuy),
		fill("a2", 11, base+1000, domain.SideBuy),
	}
	boom := errors.New("db down")

	_, err := ContinuePartialFills(events, DefaultFillWindow, func(string) (int, error) { return 0, boom })
	assert.ErrorIs(t, err, boom)
	assert.Nil(t, events[0].OrderID)

	// The batch-local grouping still applies.
	assert.Equal(t, 2, GroupPartialFills(events, DefaultFillWindow))
}

package discovery

import (
	"fmt"
	"sort"
	"time"

	"solana-wallet-ledger/internal/domain"
	"solana-wallet-ledger/internal/idhash"
)

// DefaultFillWindow is the bucket width for grouping trades into one order.
const DefaultFillWindow = 5 * time.Minute

// SortLedgerEvents sorts events chronologically (slot, timestamp, signature, leg).
func SortLedgerEvents(events []*domain.LedgerEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Before(events[j])
	})
}

// StoredFills returns the highest partial fill index already recorded for
// an order id, 0 when none is.
type StoredFills func(orderID string) (int, error)

// GroupPartialFills assigns a shared order id to trades of the same wallet,
// mint and side that fall into the same time bucket. Events already carrying
// an order id and events without a timestamp are left alone; groups of one
// are not tagged. Returns the number of events tagged.
func GroupPartialFills(events []*domain.LedgerEvent, window time.Duration) int {
	tagged, _ := ContinuePartialFills(events, window, nil)
	return tagged
}

// ContinuePartialFills is GroupPartialFills for a batch whose orders may
// have begun in an earlier batch. Numbering resumes after the stored fills
// of the order, and a lone event joins an order that is already on record.
// On a lookup error the groups tagged so far stay tagged and the error is
// returned.
func ContinuePartialFills(events []*domain.LedgerEvent, window time.Duration, stored StoredFills) (int, error) {
	if window <= 0 {
		window = DefaultFillWindow
	}
	bucketMs := window.Milliseconds()

	type groupKey struct {
		wallet string
		mint   string
		side   domain.TradeSide
		bucket int64
	}

	groups := make(map[groupKey][]*domain.LedgerEvent)
	var keys []groupKey
	for _, ev := range events {
		if ev.OrderID != nil || ev.Timestamp <= 0 {
			continue
		}
		k := groupKey{wallet: ev.WalletAddress, mint: ev.Mint, side: ev.Side, bucket: ev.Timestamp / bucketMs}
		if _, ok := groups[k]; !ok {
			keys = append(keys, k)
		}
		groups[k] = append(groups[k], ev)
	}

	tagged := 0
	for _, k := range keys {
		group := groups[k]
		orderID := idhash.WindowOrderID(k.wallet, k.mint, string(k.side), k.bucket)

		offset := 0
		if stored != nil {
			n, err := stored(orderID)
			if err != nil {
				return tagged, fmt.Errorf("stored fills of %s: %w", orderID, err)
			}
			offset = n
		}
		if offset == 0 && len(group) < 2 {
			continue
		}
		SortLedgerEvents(group)

		for i, ev := range group {
			id := orderID
			idx := offset + i + 1
			ev.OrderID = &id
			ev.PartialFillIndex = &idx
			tagged++
		}
	}
	return tagged, nil
}

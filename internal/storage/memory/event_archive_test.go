package memory

import (
	"context"
	"testing"

	"solana-wallet-ledger/internal/domain"
)

func TestEventArchive_DedupesAndOrders(t *testing.T) {
	archive := NewEventArchive()
	ctx := context.Background()

	batch := []*domain.LedgerEvent{
		testEvent("e2", "w1", "m1", 20),
		testEvent("e1", "w1", "m1", 10),
		testEvent("e3", "w2", "m1", 5),
	}
	if err := archive.InsertBulk(ctx, batch); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}
	// Reprocessed batch.
	if err := archive.InsertBulk(ctx, batch[:2]); err != nil {
		t.Fatalf("InsertBulk (again) failed: %v", err)
	}

	events, err := archive.GetByPair(ctx, "w1", "m1")
	if err != nil {
		t.Fatalf("GetByPair failed: %v", err)
	}
	if len(events) != 2 || events[0].EventID != "e1" || events[1].EventID != "e2" {
		t.Errorf("unexpected events: %+v", events)
	}

	pairs, _ := archive.ListPairs(ctx)
	if len(pairs) != 2 || pairs[0].WalletAddress != "w1" || pairs[1].WalletAddress != "w2" {
		t.Errorf("unexpected pairs: %+v", pairs)
	}
}

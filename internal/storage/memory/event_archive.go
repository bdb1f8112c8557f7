package memory

import (
	"context"
	"sort"
	"sync"

	"solana-wallet-ledger/internal/domain"
	"solana-wallet-ledger/internal/storage"
)

// EventArchive is an in-memory implementation of storage.EventArchive.
type EventArchive struct {
	mu     sync.RWMutex
	events map[string]*domain.LedgerEvent
}

// NewEventArchive creates a new in-memory event archive.
func NewEventArchive() *EventArchive {
	return &EventArchive{events: make(map[string]*domain.LedgerEvent)}
}

// InsertBulk appends events, keeping the first copy of each event id.
func (a *EventArchive) InsertBulk(_ context.Context, events []*domain.LedgerEvent) error {
	for _, e := range events {
		if e == nil || e.EventID == "" {
			return storage.ErrInvalidInput
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	for _, e := range events {
		if _, exists := a.events[e.EventID]; exists {
			continue
		}
		eventCopy := *e
		a.events[e.EventID] = &eventCopy
	}
	return nil
}

// GetByPair returns the events of one pair in chronological order.
func (a *EventArchive) GetByPair(_ context.Context, wallet, mint string) ([]*domain.LedgerEvent, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	var result []*domain.LedgerEvent
	for _, e := range a.events {
		if e.WalletAddress == wallet && e.Mint == mint {
			eventCopy := *e
			result = append(result, &eventCopy)
		}
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].Before(result[j]) })
	return result, nil
}

// ListPairs returns every archived (wallet, mint) pair.
func (a *EventArchive) ListPairs(_ context.Context) ([]domain.PositionKey, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	seen := make(map[pairKey]bool)
	var keys []domain.PositionKey
	for _, e := range a.events {
		k := pairKey{e.WalletAddress, e.Mint}
		if seen[k] {
			continue
		}
		seen[k] = true
		keys = append(keys, domain.PositionKey{WalletAddress: e.WalletAddress, Mint: e.Mint})
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].WalletAddress != keys[j].WalletAddress {
			return keys[i].WalletAddress < keys[j].WalletAddress
		}
		return keys[i].Mint < keys[j].Mint
	})
	return keys, nil
}

// Verify interface compliance at compile time.
var _ storage.EventArchive = (*EventArchive)(nil)

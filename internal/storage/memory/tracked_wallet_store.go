package memory

import (
	"context"
	"sort"
	"sync"

	"solana-wallet-ledger/internal/domain"
	"solana-wallet-ledger/internal/storage"
)

// TrackedWalletStore is an in-memory implementation of storage.TrackedWalletStore.
type TrackedWalletStore struct {
	mu   sync.RWMutex
	data map[string]*domain.TrackedWallet
}

// NewTrackedWalletStore creates a new in-memory tracked wallet store.
func NewTrackedWalletStore() *TrackedWalletStore {
	return &TrackedWalletStore{data: make(map[string]*domain.TrackedWallet)}
}

// Upsert inserts or replaces the entry for w.Address.
func (s *TrackedWalletStore) Upsert(_ context.Context, w *domain.TrackedWallet) error {
	if w == nil || w.Address == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry := *w
	if prev, ok := s.data[w.Address]; ok && entry.CreatedAt == 0 {
		entry.CreatedAt = prev.CreatedAt
	}
	s.data[w.Address] = &entry
	return nil
}

// Get retrieves an entry by address. Returns ErrNotFound if not exists.
func (s *TrackedWalletStore) Get(_ context.Context, address string) (*domain.TrackedWallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.data[address]
	if !ok {
		return nil, storage.ErrNotFound
	}
	entry := *w
	return &entry, nil
}

// List returns entries ordered by address.
func (s *TrackedWalletStore) List(_ context.Context, activeOnly bool) ([]*domain.TrackedWallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.TrackedWallet
	for _, w := range s.data {
		if activeOnly && !w.Active {
			continue
		}
		entry := *w
		result = append(result, &entry)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Address < result[j].Address
	})
	return result, nil
}

// Verify interface compliance at compile time.
var _ storage.TrackedWalletStore = (*TrackedWalletStore)(nil)

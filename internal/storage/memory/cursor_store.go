package memory

import (
	"context"
	"sync"

	"solana-wallet-ledger/internal/domain"
	"solana-wallet-ledger/internal/storage"
)

// CursorStore is an in-memory implementation of storage.CursorStore.
type CursorStore struct {
	mu      sync.RWMutex
	cursors map[string]domain.SignatureCursor
}

// NewCursorStore creates a new in-memory cursor store.
func NewCursorStore() *CursorStore {
	return &CursorStore{cursors: make(map[string]domain.SignatureCursor)}
}

// Get returns the cursor of source. Returns ErrNotFound if none was saved.
func (s *CursorStore) Get(_ context.Context, source string) (domain.SignatureCursor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.cursors[source]
	if !ok {
		return domain.SignatureCursor{Source: source}, storage.ErrNotFound
	}
	return c, nil
}

// Save stores c unless the stored watermark is higher.
func (s *CursorStore) Save(_ context.Context, c domain.SignatureCursor) error {
	if c.Source == "" || c.Signature == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.cursors[c.Source]; ok && c.Slot < prev.Slot {
		return nil
	}
	s.cursors[c.Source] = c
	return nil
}

// Verify interface compliance at compile time.
var _ storage.CursorStore = (*CursorStore)(nil)

package memory

import (
	"context"
	"sync"

	"solana-wallet-ledger/internal/domain"
	"solana-wallet-ledger/internal/storage"
)

// TokenStore is an in-memory implementation of storage.TokenStore.
type TokenStore struct {
	mu     sync.RWMutex
	byMint map[string]*domain.Token
	byID   map[int64]*domain.Token
	nextID int64
}

// NewTokenStore creates a new in-memory token store.
func NewTokenStore() *TokenStore {
	return &TokenStore{
		byMint: make(map[string]*domain.Token),
		byID:   make(map[int64]*domain.Token),
	}
}

// Upsert inserts t unless its mint exists. Existing rows are never modified.
func (s *TokenStore) Upsert(_ context.Context, t *domain.Token) (int64, bool, error) {
	if t == nil || t.Mint == "" {
		return 0, false, storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.byMint[t.Mint]; ok {
		return existing.ID, false, nil
	}

	s.nextID++
	tokenCopy := *t
	tokenCopy.ID = s.nextID
	if tokenCopy.Status == "" {
		tokenCopy.Status = domain.TokenStatusActive
	}
	s.byMint[t.Mint] = &tokenCopy
	s.byID[tokenCopy.ID] = &tokenCopy
	return tokenCopy.ID, true, nil
}

// GetByMint retrieves a token by mint address. Returns ErrNotFound if not exists.
func (s *TokenStore) GetByMint(_ context.Context, mint string) (*domain.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.byMint[mint]
	if !ok {
		return nil, storage.ErrNotFound
	}
	tokenCopy := *t
	return &tokenCopy, nil
}

// GetByID retrieves a token by id. Returns ErrNotFound if not exists.
func (s *TokenStore) GetByID(_ context.Context, id int64) (*domain.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.byID[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	tokenCopy := *t
	return &tokenCopy, nil
}

// Verify interface compliance at compile time.
var _ storage.TokenStore = (*TokenStore)(nil)

package postgres

import (
	"context"
	"time"

	"solana-wallet-ledger/internal/domain"
	"solana-wallet-ledger/internal/storage"
)

// TrackedWalletStore is a PostgreSQL implementation of storage.TrackedWalletStore.
type TrackedWalletStore struct {
	pool *Pool
}

// NewTrackedWalletStore creates a new PostgreSQL tracked wallet store.
func NewTrackedWalletStore(pool *Pool) *TrackedWalletStore {
	return &TrackedWalletStore{pool: pool}
}

// Upsert inserts or replaces the entry for w.Address. created_at_ms is kept on update.
func (s *TrackedWalletStore) Upsert(ctx context.Context, w *domain.TrackedWallet) error {
	if w == nil || w.Address == "" {
		return storage.ErrInvalidInput
	}

	createdAt := w.CreatedAt
	if createdAt == 0 {
		createdAt = time.Now().UnixMilli()
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO tracked_wallets (address, label, reason, active, created_at_ms)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (address) DO UPDATE
		SET label = EXCLUDED.label,
		    reason = EXCLUDED.reason,
		    active = EXCLUDED.active
	`, w.Address, w.Label, w.Reason, w.Active, createdAt)
	return err
}

// Get retrieves an entry by address. Returns ErrNotFound if not exists.
func (s *TrackedWalletStore) Get(ctx context.Context, address string) (*domain.TrackedWallet, error) {
	var w domain.TrackedWallet
	err := s.pool.QueryRow(ctx, `
		SELECT address, label, reason, active, created_at_ms
		FROM tracked_wallets
		WHERE address = $1
	`, address).Scan(&w.Address, &w.Label, &w.Reason, &w.Active, &w.CreatedAt)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	return &w, nil
}

// List returns entries ordered by address.
func (s *TrackedWalletStore) List(ctx context.Context, activeOnly bool) ([]*domain.TrackedWallet, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT address, label, reason, active, created_at_ms
		FROM tracked_wallets
		WHERE active OR NOT $1
		ORDER BY address
	`, activeOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*domain.TrackedWallet
	for rows.Next() {
		var w domain.TrackedWallet
		if err := rows.Scan(&w.Address, &w.Label, &w.Reason, &w.Active, &w.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, &w)
	}
	return result, rows.Err()
}

// Verify interface compliance at compile time.
var _ storage.TrackedWalletStore = (*TrackedWalletStore)(nil)

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"solana-wallet-ledger/internal/domain"
	"solana-wallet-ledger/internal/storage"
)

// CursorStore is a PostgreSQL implementation of storage.CursorStore.
// One row per source in signature_cursors.
type CursorStore struct {
	pool *Pool
}

// NewCursorStore creates a new PostgreSQL cursor store.
func NewCursorStore(pool *Pool) *CursorStore {
	return &CursorStore{pool: pool}
}

// Get returns the cursor of source. Returns ErrNotFound if none was saved.
func (s *CursorStore) Get(ctx context.Context, source string) (domain.SignatureCursor, error) {
	c := domain.SignatureCursor{Source: source}
	err := s.pool.QueryRow(ctx, `
		SELECT signature, slot, updated_at_ms
		FROM signature_cursors
		WHERE source = $1
	`, source).Scan(&c.Signature, &c.Slot, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return c, storage.ErrNotFound
		}
		return c, err
	}
	return c, nil
}

// Save stores c. The WHERE clause keeps the slot watermark from moving backwards.
func (s *CursorStore) Save(ctx context.Context, c domain.SignatureCursor) error {
	if c.Source == "" || c.Signature == "" {
		return storage.ErrInvalidInput
	}

	updatedAt := c.UpdatedAt
	if updatedAt == 0 {
		updatedAt = time.Now().UnixMilli()
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO signature_cursors (source, signature, slot, updated_at_ms)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (source) DO UPDATE
		SET signature = EXCLUDED.signature,
		    slot = EXCLUDED.slot,
		    updated_at_ms = EXCLUDED.updated_at_ms
		WHERE signature_cursors.slot <= EXCLUDED.slot
	`, c.Source, c.Signature, c.Slot, updatedAt)

	return err
}

// Verify interface compliance at compile time.
var _ storage.CursorStore = (*CursorStore)(nil)

package postgres

import (
	"context"
	"fmt"
	"time"

	"solana-wallet-ledger/internal/storage"
)

// FailedSignatureStore is a PostgreSQL implementation of storage.FailedSignatureStore.
type FailedSignatureStore struct {
	pool *Pool
}

// NewFailedSignatureStore creates a new PostgreSQL failed signature queue.
func NewFailedSignatureStore(pool *Pool) *FailedSignatureStore {
	return &FailedSignatureStore{pool: pool}
}

// Add enqueues a signature. Adding a queued signature is a no-op.
func (s *FailedSignatureStore) Add(ctx context.Context, f *storage.FailedSignature) error {
	if f == nil || f.Source == "" || f.Signature == "" {
		return storage.ErrInvalidInput
	}

	now := time.Now().UnixMilli()
	firstFailed := f.FirstFailedAt
	if firstFailed == 0 {
		firstFailed = now
	}
	lastAttempt := f.LastAttemptAt
	if lastAttempt == 0 {
		lastAttempt = firstFailed
	}
	attempts := f.Attempts
	if attempts < 1 {
		attempts = 1
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO failed_signatures (
			source, signature, slot, attempts, last_error, first_failed_at_ms, last_attempt_at_ms
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (source, signature) DO NOTHING
	`, f.Source, f.Signature, f.Slot, attempts, f.LastError, firstFailed, lastAttempt)
	return err
}

// ListDue returns up to limit signatures of source, oldest slot first.
func (s *FailedSignatureStore) ListDue(ctx context.Context, source string, limit int) ([]*storage.FailedSignature, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.pool.Query(ctx, `
		SELECT source, signature, slot, attempts, last_error, first_failed_at_ms, last_attempt_at_ms
		FROM failed_signatures
		WHERE source = $1 AND attempts < $2
		ORDER BY slot ASC, signature ASC
		LIMIT $3
	`, source, storage.MaxSignatureAttempts, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*storage.FailedSignature
	for rows.Next() {
		var f storage.FailedSignature
		if err := rows.Scan(&f.Source, &f.Signature, &f.Slot, &f.Attempts, &f.LastError, &f.FirstFailedAt, &f.LastAttemptAt); err != nil {
			return nil, err
		}
		result = append(result, &f)
	}
	return result, rows.Err()
}

// Resolve removes a signature from the queue.
func (s *FailedSignatureStore) Resolve(ctx context.Context, source, signature string) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM failed_signatures WHERE source = $1 AND signature = $2
	`, source, signature)
	return err
}

// Bump records a failed attempt and drops the entry once attempts are exhausted.
func (s *FailedSignatureStore) Bump(ctx context.Context, source, signature, lastError string, nowMs int64) (bool, error) {
	var attempts int
	err := s.pool.QueryRow(ctx, `
		UPDATE failed_signatures
		SET attempts = attempts + 1,
		    last_error = $3,
		    last_attempt_at_ms = $4
		WHERE source = $1 AND signature = $2
		RETURNING attempts
	`, source, signature, lastError, nowMs).Scan(&attempts)
	if err != nil {
		if isNotFoundError(err) {
			return false, storage.ErrNotFound
		}
		return false, fmt.Errorf("bump failed signature: %w", err)
	}

	if attempts < storage.MaxSignatureAttempts {
		return false, nil
	}
	if err := s.Resolve(ctx, source, signature); err != nil {
		return true, err
	}
	return true, nil
}

// Verify interface compliance at compile time.
var _ storage.FailedSignatureStore = (*FailedSignatureStore)(nil)

package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"solana-wallet-ledger/internal/domain"
	"solana-wallet-ledger/internal/storage"
)

// TokenStore is a PostgreSQL implementation of storage.TokenStore.
type TokenStore struct {
	pool *Pool
}

// NewTokenStore creates a new PostgreSQL token store.
func NewTokenStore(pool *Pool) *TokenStore {
	return &TokenStore{pool: pool}
}

const tokenColumns = `
	id, mint, name, symbol, decimals, total_supply::text, program, source_name,
	creation_signature, creation_slot, created_at_ms, status, retain_until_ms, registered_at_ms`

// Upsert inserts t unless its mint exists. Existing rows are never modified.
func (s *TokenStore) Upsert(ctx context.Context, t *domain.Token) (int64, bool, error) {
	if t == nil || t.Mint == "" {
		return 0, false, storage.ErrInvalidInput
	}

	status := t.Status
	if status == "" {
		status = domain.TokenStatusActive
	}
	registeredAt := t.RegisteredAt
	if registeredAt == 0 {
		registeredAt = time.Now().UnixMilli()
	}

	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO tokens (
			mint, name, symbol, decimals, total_supply, program, source_name,
			creation_signature, creation_slot, created_at_ms, status, retain_until_ms, registered_at_ms
		) VALUES ($1, $2, $3, $4, $5::text::numeric, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (mint) DO NOTHING
		RETURNING id
	`,
		t.Mint, t.Name, t.Symbol, t.Decimals, nullNum(t.TotalSupply), t.Program, t.SourceName,
		t.CreationSignature, t.CreationSlot, t.CreatedAt, string(status), t.RetainUntil, registeredAt,
	).Scan(&id)
	if err == nil {
		return id, true, nil
	}
	if !isNotFoundError(err) {
		return 0, false, fmt.Errorf("insert token: %w", err)
	}

	// Conflict: another writer registered the mint first.
	err = s.pool.QueryRow(ctx, `SELECT id FROM tokens WHERE mint = $1`, t.Mint).Scan(&id)
	if err != nil {
		return 0, false, fmt.Errorf("select existing token: %w", err)
	}
	return id, false, nil
}

// GetByMint retrieves a token by mint address. Returns ErrNotFound if not exists.
func (s *TokenStore) GetByMint(ctx context.Context, mint string) (*domain.Token, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+tokenColumns+` FROM tokens WHERE mint = $1`, mint)
	return scanToken(row)
}

// GetByID retrieves a token by id. Returns ErrNotFound if not exists.
func (s *TokenStore) GetByID(ctx context.Context, id int64) (*domain.Token, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+tokenColumns+` FROM tokens WHERE id = $1`, id)
	return scanToken(row)
}

func scanToken(row pgx.Row) (*domain.Token, error) {
	var t domain.Token
	var supply decimal.NullDecimal
	var status string
	err := row.Scan(
		&t.ID, &t.Mint, &t.Name, &t.Symbol, &t.Decimals, &supply, &t.Program, &t.SourceName,
		&t.CreationSignature, &t.CreationSlot, &t.CreatedAt, &status, &t.RetainUntil, &t.RegisteredAt,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	if supply.Valid {
		t.TotalSupply = &supply.Decimal
	}
	t.Status = domain.TokenStatus(status)
	return &t, nil
}

// Verify interface compliance at compile time.
var _ storage.TokenStore = (*TokenStore)(nil)

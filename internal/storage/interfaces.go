package storage

import (
	"context"

	"solana-wallet-ledger/internal/domain"
)

// TokenStore provides access to the tokens registry table.
type TokenStore interface {
	// Upsert inserts t unless its mint already exists. Returns the id of the
	// stored row and whether this call created it. Existing rows are never modified.
	Upsert(ctx context.Context, t *domain.Token) (id int64, created bool, err error)

	// GetByMint retrieves a token by mint address. Returns ErrNotFound if not exists.
	GetByMint(ctx context.Context, mint string) (*domain.Token, error)

	// GetByID retrieves a token by internal id. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, id int64) (*domain.Token, error)
}

// LedgerUnit is one atomic unit of work on a single position.
// Nothing written through it is visible to other readers until the
// surrounding WithPosition call returns nil.
type LedgerUnit interface {
	// Position returns the current position, or an empty open position
	// when the pair has never traded.
	Position() domain.Position

	// HasEvent reports whether eventID is already recorded.
	HasEvent(ctx context.Context, eventID string) (bool, error)

	// SavePosition stages the new position state.
	SavePosition(ctx context.Context, p *domain.Position) error

	// AppendEvent stages an event for the append-only log.
	// Returns ErrDuplicateKey if the event id is already recorded.
	AppendEvent(ctx context.Context, e *domain.LedgerEvent) error

	// RefreshWallet recomputes the owning wallet. fn receives the wallet
	// and every position of it, including the staged one, and mutates the wallet.
	RefreshWallet(ctx context.Context, fn func(w *domain.Wallet, positions []*domain.Position)) error

	// Newest returns the chronologically last event of the pair among logged
	// and rejected events, or nil when there is none.
	Newest(ctx context.Context) (*domain.LedgerEvent, error)

	// Events returns the logged events of the pair, staged ones included,
	// in chronological order.
	Events(ctx context.Context) ([]*domain.LedgerEvent, error)

	// Rejected returns the rejected events of the pair in chronological order.
	Rejected(ctx context.Context) ([]*domain.RejectedEvent, error)

	// Reinstate stages the removal of a rejected event. The unit appends
	// the event itself to the log.
	Reinstate(ctx context.Context, rejectedID string) error
}

// LedgerStore provides access to wallets, positions and the ledger event log.
type LedgerStore interface {
	// WithPosition runs fn while holding an exclusive lock on key.
	// Any error from fn rolls back every change made through the unit.
	WithPosition(ctx context.Context, key domain.PositionKey, fn func(ctx context.Context, unit LedgerUnit) error) error

	// GetWallet retrieves a wallet by address. Returns ErrNotFound if not exists.
	GetWallet(ctx context.Context, address string) (*domain.Wallet, error)

	// GetPosition retrieves one position. Returns ErrNotFound if not exists.
	GetPosition(ctx context.Context, wallet, mint string) (*domain.Position, error)

	// ListPositions returns every position of a wallet ordered by mint.
	ListPositions(ctx context.Context, wallet string) ([]*domain.Position, error)

	// ListOpenPositions returns all open and partial positions.
	ListOpenPositions(ctx context.Context) ([]*domain.Position, error)

	// ListPositionKeys returns the keys of all stored positions.
	ListPositionKeys(ctx context.Context) ([]domain.PositionKey, error)

	// ListEvents returns the events of one pair in chronological order.
	ListEvents(ctx context.Context, wallet, mint string) ([]*domain.LedgerEvent, error)

	// TopWallets returns wallets with at least minTrades trades ordered by total P&L descending.
	TopWallets(ctx context.Context, minTrades, limit int) ([]*domain.Wallet, error)

	// ListActiveWallets returns wallets last seen at or after sinceMs, most recent first.
	ListActiveWallets(ctx context.Context, sinceMs int64, limit int) ([]*domain.Wallet, error)

	// AppendRejected records an event refused by the ledger.
	AppendRejected(ctx context.Context, r *domain.RejectedEvent) error

	// ListRejected returns the most recent rejected events, newest first.
	ListRejected(ctx context.Context, limit int) ([]*domain.RejectedEvent, error)

	// ListRecentEvents returns events with a timestamp at or after sinceMs, newest first.
	ListRecentEvents(ctx context.Context, sinceMs int64, limit int) ([]*domain.LedgerEvent, error)

	// ListPartialOrders returns orders assembled from partial fills, latest
	// start first. An empty wallet lists every wallet.
	ListPartialOrders(ctx context.Context, wallet string, limit int) ([]*domain.PartialOrder, error)

	// MaxFillIndex returns the highest partial fill index recorded for
	// orderID, logged or rejected, or 0 when the order is unknown.
	MaxFillIndex(ctx context.Context, orderID string) (int, error)
}

// CursorStore persists one signature cursor per source.
type CursorStore interface {
	// Get returns the cursor of source. Returns ErrNotFound if none was saved.
	Get(ctx context.Context, source string) (domain.SignatureCursor, error)

	// Save stores c. A cursor whose slot is below the stored watermark is ignored.
	Save(ctx context.Context, c domain.SignatureCursor) error
}

// TrackedWalletStore provides access to the operator watch list.
type TrackedWalletStore interface {
	// Upsert inserts or replaces the entry for w.Address.
	Upsert(ctx context.Context, w *domain.TrackedWallet) error

	// Get retrieves an entry by address. Returns ErrNotFound if not exists.
	Get(ctx context.Context, address string) (*domain.TrackedWallet, error)

	// List returns entries ordered by address, only active ones when activeOnly is set.
	List(ctx context.Context, activeOnly bool) ([]*domain.TrackedWallet, error)
}

// EventArchive is an append-only analytical copy of the ledger event log.
type EventArchive interface {
	// InsertBulk appends events. Re-inserting a known event id is harmless.
	InsertBulk(ctx context.Context, events []*domain.LedgerEvent) error

	// GetByPair returns the events of one pair in chronological order, one per event id.
	GetByPair(ctx context.Context, wallet, mint string) ([]*domain.LedgerEvent, error)

	// ListPairs returns every archived (wallet, mint) pair. TokenID is left zero.
	ListPairs(ctx context.Context) ([]domain.PositionKey, error)
}

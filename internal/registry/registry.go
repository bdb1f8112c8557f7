// Package registry maps token mints to internal token ids.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"solana-wallet-ledger/internal/discovery"
	"solana-wallet-ledger/internal/domain"
	"solana-wallet-ledger/internal/observability"
	"solana-wallet-ledger/internal/storage"
)

// ErrUnknownToken is returned by Lookup for a mint without a creation record.
var ErrUnknownToken = errors.New("unknown token")

// MetadataSource fetches static token metadata.
type MetadataSource interface {
	// Fetch returns metadata for mint, or nil, nil when the mint account does not exist.
	Fetch(ctx context.Context, mint string) (*Metadata, error)
}

// Options configures a Registry.
type Options struct {
	// Metadata enriches new tokens. Nil disables enrichment.
	Metadata MetadataSource
	Logger   zerolog.Logger
	Metrics  *observability.Metrics
	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// Registry is the idempotent token registry. Registration is first-write-wins:
// a mint that already exists is never modified.
type Registry struct {
	store    storage.TokenStore
	metadata MetadataSource
	log      zerolog.Logger
	metrics  *observability.Metrics
	now      func() time.Time

	mu    sync.RWMutex
	cache map[string]int64 // mint -> token id
}

// New creates a registry backed by store.
func New(store storage.TokenStore, opts Options) *Registry {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Registry{
		store:    store,
		metadata: opts.Metadata,
		log:      opts.Logger.With().Str("component", "registry").Logger(),
		metrics:  opts.Metrics,
		now:      opts.Now,
		cache:    make(map[string]int64),
	}
}

// Register returns the id of the token created by ev, persisting it when the
// mint is new. created reports whether this call inserted the row.
func (r *Registry) Register(ctx context.Context, ev discovery.CreationEvent) (id int64, created bool, err error) {
	if ev.Mint == "" {
		return 0, false, fmt.Errorf("register: %w", storage.ErrInvalidInput)
	}
	if id, ok := r.cached(ev.Mint); ok {
		return id, false, nil
	}

	existing, err := r.store.GetByMint(ctx, ev.Mint)
	switch {
	case err == nil:
		r.remember(ev.Mint, existing.ID)
		return existing.ID, false, nil
	case !errors.Is(err, storage.ErrNotFound):
		return 0, false, fmt.Errorf("get token %s: %w", ev.Mint, err)
	}

	token := &domain.Token{
		Mint:              ev.Mint,
		Decimals:          ev.Decimals,
		Program:           ev.Program,
		SourceName:        ev.SourceName,
		CreationSignature: ev.Signature,
		CreationSlot:      ev.Slot,
		CreatedAt:         ev.Timestamp,
		Status:            domain.TokenStatusActive,
		RegisteredAt:      r.now().UnixMilli(),
	}
	r.enrich(ctx, token)

	id, created, err = r.store.Upsert(ctx, token)
	if err != nil {
		return 0, false, fmt.Errorf("upsert token %s: %w", ev.Mint, err)
	}
	r.remember(ev.Mint, id)

	if created {
		r.metrics.RecordTokenRegistered(ev.SourceName)
		r.log.Info().
			Str("mint", ev.Mint).
			Str("source", ev.SourceName).
			Str("signature", ev.Signature).
			Int64("token_id", id).
			Msg("token registered")
	}
	return id, created, nil
}

// Lookup returns the token id of mint. Returns ErrUnknownToken when the mint
// has never been registered.
func (r *Registry) Lookup(ctx context.Context, mint string) (int64, error) {
	if id, ok := r.cached(mint); ok {
		return id, nil
	}
	t, err := r.store.GetByMint(ctx, mint)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, ErrUnknownToken
	}
	if err != nil {
		return 0, fmt.Errorf("get token %s: %w", mint, err)
	}
	r.remember(mint, t.ID)
	return t.ID, nil
}

func (r *Registry) cached(mint string) (int64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.cache[mint]
	return id, ok
}

func (r *Registry) remember(mint string, id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache[mint] = id
}

// enrich fills metadata fields of t. Failures are logged and never block registration.
func (r *Registry) enrich(ctx context.Context, t *domain.Token) {
	if r.metadata == nil {
		return
	}
	md, err := r.metadata.Fetch(ctx, t.Mint)
	if err != nil {
		r.log.Warn().Err(err).Str("mint", t.Mint).Msg("token metadata fetch failed")
		return
	}
	if md == nil {
		return
	}
	t.Name = md.Name
	t.Symbol = md.Symbol
	t.TotalSupply = md.Supply
	if t.Decimals == 0 && md.Decimals != nil {
		t.Decimals = *md.Decimals
	}
}

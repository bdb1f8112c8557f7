// Package replay audits stored positions against their event logs.
package replay

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"solana-wallet-ledger/internal/domain"
	"solana-wallet-ledger/internal/ledger"
	"solana-wallet-ledger/internal/storage"
)

// Checker compares positions with a replay of their events.
type Checker interface {
	Recompute(ctx context.Context, key domain.PositionKey, write bool) (*ledger.Drift, error)
	Verify(ctx context.Context, key domain.PositionKey, events []*domain.LedgerEvent) (*ledger.Drift, error)
}

// Options configures a Runner.
type Options struct {
	Checker Checker
	Store   storage.LedgerStore
	// Archive switches the runner to verify positions against the archive
	// copy of the event log. Nil replays the stored log.
	Archive storage.EventArchive
	// Repair writes replayed positions back. Stored log only.
	Repair bool
	Logger zerolog.Logger
}

// PairDrift is one position whose stored figures differ from its replay.
type PairDrift struct {
	Wallet          string `json:"wallet"`
	Mint            string `json:"mint"`
	Events          int    `json:"events"`
	StoredBalance   string `json:"stored_balance"`
	ReplayedBalance string `json:"replayed_balance"`
	StoredPnL       string `json:"stored_realized_pnl"`
	ReplayedPnL     string `json:"replayed_realized_pnl"`
	Repaired        bool   `json:"repaired"`
}

// Summary is the outcome of one audit.
type Summary struct {
	Source   string      `json:"source"` // "store" or "archive"
	Pairs    int         `json:"pairs"`
	Events   int         `json:"events"`
	Rejected int         `json:"rejected"` // oversells skipped during replay
	Drifted  int         `json:"drifted"`
	Repaired int         `json:"repaired"`
	Failed   int         `json:"failed"`
	Drifts   []PairDrift `json:"drifts,omitempty"`
}

// Clean reports whether every audited pair matched and none failed.
func (s Summary) Clean() bool {
	return s.Failed == 0 && s.Drifted == s.Repaired
}

// Runner replays event logs pair by pair.
type Runner struct {
	checker Checker
	store   storage.LedgerStore
	archive storage.EventArchive
	repair  bool
	log     zerolog.Logger
}

// NewRunner creates a runner.
func NewRunner(opts Options) (*Runner, error) {
	if opts.Checker == nil || opts.Store == nil {
		return nil, errors.New("replay: checker and store are required")
	}
	if opts.Repair && opts.Archive != nil {
		return nil, ErrRepairFromArchive
	}
	return &Runner{
		checker: opts.Checker,
		store:   opts.Store,
		archive: opts.Archive,
		repair:  opts.Repair,
		log:     opts.Logger.With().Str("component", "replay").Logger(),
	}, nil
}

// Pairs lists every pair known to the selected event log.
func (r *Runner) Pairs(ctx context.Context) ([]domain.PositionKey, error) {
	if r.archive != nil {
		return r.archive.ListPairs(ctx)
	}
	return r.store.ListPositionKeys(ctx)
}

// Run audits keys, or every known pair when keys is empty. A pair that fails
// is counted and logged; only a failure to list pairs aborts the run.
func (r *Runner) Run(ctx context.Context, keys []domain.PositionKey) (Summary, error) {
	sum := Summary{Source: "store"}
	if r.archive != nil {
		sum.Source = "archive"
	}

	if len(keys) == 0 {
		var err error
		if keys, err = r.Pairs(ctx); err != nil {
			return sum, fmt.Errorf("list pairs: %w", err)
		}
	}

	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		sum.Pairs++

		drift, err := r.check(ctx, key)
		if err != nil {
			sum.Failed++
			r.log.Error().Err(err).Str("wallet", key.WalletAddress).Str("mint", key.Mint).Msg("replay failed")
			continue
		}

		sum.Events += drift.Events
		sum.Rejected += drift.Rejected
		if !drift.Changed {
			continue
		}
		sum.Drifted++
		if drift.Repaired {
			sum.Repaired++
		}
		sum.Drifts = append(sum.Drifts, PairDrift{
			Wallet:          key.WalletAddress,
			Mint:            key.Mint,
			Events:          drift.Events,
			StoredBalance:   drift.Stored.CurrentBalance.String(),
			ReplayedBalance: drift.Replayed.CurrentBalance.String(),
			StoredPnL:       drift.Stored.RealizedPnL.String(),
			ReplayedPnL:     drift.Replayed.RealizedPnL.String(),
			Repaired:        drift.Repaired,
		})
	}

	r.log.Info().
		Str("source", sum.Source).
		Int("pairs", sum.Pairs).
		Int("drifted", sum.Drifted).
		Int("repaired", sum.Repaired).
		Int("failed", sum.Failed).
		Msg("replay finished")
	return sum, nil
}

func (r *Runner) check(ctx context.Context, key domain.PositionKey) (*ledger.Drift, error) {
	if r.archive == nil {
		return r.checker.Recompute(ctx, key, r.repair)
	}

	events, err := r.archive.GetByPair(ctx, key.WalletAddress, key.Mint)
	if err != nil {
		return nil, fmt.Errorf("archive events: %w", err)
	}
	if err := validateOrder(events); err != nil {
		return nil, err
	}
	return r.checker.Verify(ctx, key, events)
}

func validateOrder(events []*domain.LedgerEvent) error {
	for i := 1; i < len(events); i++ {
		if events[i].Before(events[i-1]) {
			return fmt.Errorf("%w: %s after %s", ErrInvalidOrdering, events[i].EventID, events[i-1].EventID)
		}
	}
	return nil
}

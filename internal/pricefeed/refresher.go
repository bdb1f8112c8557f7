package pricefeed

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"solana-wallet-ledger/internal/domain"
	"solana-wallet-ledger/internal/observability"
	"solana-wallet-ledger/internal/storage"
)

// Refresher defaults.
const (
	DefaultSchedule = "@every 1m"
	DefaultTimeout  = 30 * time.Second
)

// PositionLister lists positions that still hold tokens.
type PositionLister interface {
	ListOpenPositions(ctx context.Context) ([]*domain.Position, error)
}

// UnrealizedUpdater marks one position to a price atomically.
type UnrealizedUpdater interface {
	RefreshUnrealized(ctx context.Context, key domain.PositionKey, price decimal.Decimal) (domain.Position, error)
}

// RefresherOptions contains configuration for creating a Refresher.
type RefresherOptions struct {
	Positions PositionLister
	Ledger    UnrealizedUpdater
	Feed      Feed
	Schedule  string        // cron spec, default "@every 1m"
	Timeout   time.Duration // per refresh, default 30s

	Logger  zerolog.Logger
	Metrics *observability.Metrics
}

// RefreshResult counts what one refresh did.
type RefreshResult struct {
	Positions int // open positions seen
	Updated   int
	NoPrice   int
	Failed    int
}

// Refresher periodically marks open positions to the feed's prices.
type Refresher struct {
	positions PositionLister
	ledger    UnrealizedUpdater
	feed      Feed
	schedule  string
	timeout   time.Duration
	log       zerolog.Logger
	metrics   *observability.Metrics

	mu   sync.Mutex
	cron *cron.Cron
}

// NewRefresher creates a refresher. The schedule is validated up front.
func NewRefresher(opts RefresherOptions) (*Refresher, error) {
	if opts.Positions == nil || opts.Ledger == nil || opts.Feed == nil {
		return nil, errors.New("refresher: positions, ledger and feed are required")
	}
	if opts.Schedule == "" {
		opts.Schedule = DefaultSchedule
	}
	if _, err := cron.ParseStandard(opts.Schedule); err != nil {
		return nil, fmt.Errorf("refresher: schedule %q: %w", opts.Schedule, err)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Refresher{
		positions: opts.Positions,
		ledger:    opts.Ledger,
		feed:      opts.Feed,
		schedule:  opts.Schedule,
		timeout:   opts.Timeout,
		log:       opts.Logger.With().Str("component", "price_refresher").Logger(),
		metrics:   opts.Metrics,
	}, nil
}

// Refresh marks every open position to its latest price once.
// A position whose update fails is logged and skipped.
func (r *Refresher) Refresh(ctx context.Context) (RefreshResult, error) {
	var res RefreshResult
	start := time.Now()

	positions, err := r.positions.ListOpenPositions(ctx)
	if err != nil {
		err = fmt.Errorf("list open positions: %w", err)
		r.metrics.RecordPriceRefresh(0, time.Since(start), err)
		return res, err
	}
	res.Positions = len(positions)
	if len(positions) == 0 {
		r.metrics.RecordPriceRefresh(0, time.Since(start), nil)
		return res, nil
	}

	prices, err := r.feed.Prices(ctx, distinctMints(positions))
	if err != nil {
		err = fmt.Errorf("fetch prices: %w", err)
		r.metrics.RecordPriceRefresh(0, time.Since(start), err)
		return res, err
	}

	for _, p := range positions {
		price, ok := prices[p.Mint]
		if !ok {
			res.NoPrice++
			continue
		}
		_, err := r.ledger.RefreshUnrealized(ctx, p.Key(), price)
		switch {
		case err == nil:
			res.Updated++
		case errors.Is(err, storage.ErrNotFound):
			// Removed between list and update.
		default:
			res.Failed++
			r.log.Warn().Err(err).Str("wallet", p.WalletAddress).Str("mint", p.Mint).Msg("refresh unrealized failed")
		}
	}

	r.metrics.RecordPriceRefresh(res.Updated, time.Since(start), nil)
	r.log.Debug().
		Int("positions", res.Positions).
		Int("updated", res.Updated).
		Int("no_price", res.NoPrice).
		Int("failed", res.Failed).
		Msg("unrealized pnl refreshed")
	return res, nil
}

// Start schedules Refresh on the cron spec until Stop is called or ctx is done.
func (r *Refresher) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cron != nil {
		return errors.New("refresher: already started")
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	_, err := c.AddFunc(r.schedule, func() {
		runCtx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()
		if _, err := r.Refresh(runCtx); err != nil {
			r.log.Error().Err(err).Msg("price refresh failed")
		}
	})
	if err != nil {
		return fmt.Errorf("refresher: schedule %q: %w", r.schedule, err)
	}
	c.Start()
	r.cron = c
	r.log.Info().Str("schedule", r.schedule).Msg("price refresher started")
	return nil
}

// Stop stops the schedule and waits for a running refresh to finish.
func (r *Refresher) Stop() {
	r.mu.Lock()
	c := r.cron
	r.cron = nil
	r.mu.Unlock()

	if c == nil {
		return
	}
	<-c.Stop().Done()
	r.log.Info().Msg("price refresher stopped")
}

func distinctMints(positions []*domain.Position) []string {
	seen := make(map[string]bool, len(positions))
	var mints []string
	for _, p := range positions {
		if !seen[p.Mint] {
			seen[p.Mint] = true
			mints = append(mints, p.Mint)
		}
	}
	sort.Strings(mints)
	return mints
}

// Package ingestion polls monitored programs and feeds classified events
// into the token registry and the wallet ledger.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"solana-wallet-ledger/internal/discovery"
	"solana-wallet-ledger/internal/domain"
	"solana-wallet-ledger/internal/ledger"
	"solana-wallet-ledger/internal/observability"
	"solana-wallet-ledger/internal/registry"
	"solana-wallet-ledger/internal/solana"
	"solana-wallet-ledger/internal/storage"
)

// Poller defaults.
const (
	DefaultInterval         = 5 * time.Second
	DefaultBatchSize        = 10
	DefaultPollTimeout      = 60 * time.Second
	DefaultFailedRetryLimit = 10
)

// TokenRegistry resolves mints to token ids.
type TokenRegistry interface {
	Register(ctx context.Context, ev discovery.CreationEvent) (id int64, created bool, err error)
	Lookup(ctx context.Context, mint string) (int64, error)
}

// LedgerApplier records one ledger event atomically.
type LedgerApplier interface {
	Record(ctx context.Context, tokenID int64, e *domain.LedgerEvent) (ledger.Outcome, error)
}

// FillIndex reports the highest partial fill index stored for an order.
type FillIndex interface {
	MaxFillIndex(ctx context.Context, orderID string) (int, error)
}

// PollerOptions contains configuration for creating a Poller.
type PollerOptions struct {
	Source     *discovery.EventSource
	RPC        solana.RPCClient
	Classifier *discovery.Classifier
	Registry   TokenRegistry
	Ledger     LedgerApplier
	Cursors    storage.CursorStore

	// Failed is the retry queue for failed detail fetches. Nil drops them.
	Failed storage.FailedSignatureStore
	// Archive receives applied events after every poll. Optional.
	Archive storage.EventArchive
	// Notifier wakes the poller early on log notifications. Optional.
	Notifier *Notifier
	// Fills lets partial fill numbering continue across polls. Optional.
	Fills FillIndex

	Interval         time.Duration // default 5s
	BatchSize        int           // default 10
	PollTimeout      time.Duration // default 60s
	FailedRetryLimit int           // default 10
	FillWindow       time.Duration // default discovery.DefaultFillWindow

	TransportRetry RetryPolicy // backs off failed cycles
	StorageRetry   RetryPolicy // retries failed applies

	Logger  zerolog.Logger
	Metrics *observability.Metrics
	Now     func() time.Time
}

// PollResult counts what one poll did.
type PollResult struct {
	Scanned       int `json:"scanned"` // new signatures seen
	Skipped       int `json:"skipped"` // failed on chain
	Fetched       int `json:"fetched"`
	FetchFailed   int `json:"fetch_failed"`
	Ambiguous     int `json:"ambiguous"`
	Creations     int `json:"creations"`
	Registered    int `json:"registered"`
	Trades        int `json:"trades"`
	Applied       int `json:"applied"`
	Duplicates    int `json:"duplicates"`
	Rejected      int `json:"rejected"`
	UnknownToken  int `json:"unknown_token"`
	StorageFailed int `json:"storage_failed"`
	Retried       int `json:"retried"` // queued signatures retried
	Resolved      int `json:"resolved"`
	Exhausted     int `json:"exhausted"`
	Late          int `json:"late"`       // applied behind newer events of their pair
	Reinstated    int `json:"reinstated"` // earlier oversells made valid by a late buy
}

// Add accumulates o into r.
func (r *PollResult) Add(o PollResult) {
	r.Scanned += o.Scanned
	r.Skipped += o.Skipped
	r.Fetched += o.Fetched
	r.FetchFailed += o.FetchFailed
	r.Ambiguous += o.Ambiguous
	r.Creations += o.Creations
	r.Registered += o.Registered
	r.Trades += o.Trades
	r.Applied += o.Applied
	r.Duplicates += o.Duplicates
	r.Rejected += o.Rejected
	r.UnknownToken += o.UnknownToken
	r.StorageFailed += o.StorageFailed
	r.Retried += o.Retried
	r.Resolved += o.Resolved
	r.Exhausted += o.Exhausted
	r.Late += o.Late
	r.Reinstated += o.Reinstated
}

// Poller incrementally ingests one source. Its loop is sequential:
// poll, classify, apply, sleep, repeat.
type Poller struct {
	source     *discovery.EventSource
	rpc        solana.RPCClient
	classifier *discovery.Classifier
	registry   TokenRegistry
	ledger     LedgerApplier
	cursors    storage.CursorStore
	failed     storage.FailedSignatureStore
	archive    storage.EventArchive
	notifier   *Notifier
	fills      FillIndex

	interval         time.Duration
	batchSize        int
	pollTimeout      time.Duration
	failedRetryLimit int
	fillWindow       time.Duration
	transportRetry   RetryPolicy
	storageRetry     RetryPolicy

	log     zerolog.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

// NewPoller creates a poller for one source.
func NewPoller(opts PollerOptions) (*Poller, error) {
	if opts.Source == nil || opts.RPC == nil || opts.Registry == nil || opts.Ledger == nil || opts.Cursors == nil {
		return nil, errors.New("poller: source, rpc, registry, ledger and cursors are required")
	}
	if opts.Classifier == nil {
		opts.Classifier = discovery.NewClassifier(nil)
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = DefaultPollTimeout
	}
	if opts.FailedRetryLimit <= 0 {
		opts.FailedRetryLimit = DefaultFailedRetryLimit
	}
	if opts.FillWindow <= 0 {
		opts.FillWindow = discovery.DefaultFillWindow
	}
	if opts.TransportRetry == (RetryPolicy{}) {
		opts.TransportRetry = DefaultTransportPolicy()
	}
	if opts.StorageRetry == (RetryPolicy{}) {
		opts.StorageRetry = DefaultStoragePolicy()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Poller{
		source:           opts.Source,
		rpc:              opts.RPC,
		classifier:       opts.Classifier,
		registry:         opts.Registry,
		ledger:           opts.Ledger,
		cursors:          opts.Cursors,
		failed:           opts.Failed,
		archive:          opts.Archive,
		notifier:         opts.Notifier,
		fills:            opts.Fills,
		interval:         opts.Interval,
		batchSize:        opts.BatchSize,
		pollTimeout:      opts.PollTimeout,
		failedRetryLimit: opts.FailedRetryLimit,
		fillWindow:       opts.FillWindow,
		transportRetry:   opts.TransportRetry,
		storageRetry:     opts.StorageRetry,
		log:              opts.Logger.With().Str("component", "poller").Str("source", opts.Source.Name).Logger(),
		metrics:          opts.Metrics,
		now:              opts.Now,
	}, nil
}

// Name returns the source name.
func (p *Poller) Name() string {
	return p.source.Name
}

// LoadCursor returns the persisted cursor of the source, or an unset one.
func (p *Poller) LoadCursor(ctx context.Context) (domain.SignatureCursor, error) {
	c, err := p.cursors.Get(ctx, p.source.Name)
	if errors.Is(err, storage.ErrNotFound) {
		return domain.SignatureCursor{Source: p.source.Name}, nil
	}
	if err != nil {
		return domain.SignatureCursor{}, fmt.Errorf("load cursor: %w", err)
	}
	return c, nil
}

// Poll runs one cycle starting from cursor and returns the advanced cursor,
// which has already been persisted.
//
// The cursor moves to the newest signature of the batch even when some
// transactions yield nothing or fail to fetch; failed fetches go to the
// retry queue instead of holding the cursor back.
func (p *Poller) Poll(ctx context.Context, cursor domain.SignatureCursor) (domain.SignatureCursor, PollResult, error) {
	var res PollResult
	if cursor.Source == "" {
		cursor.Source = p.source.Name
	}

	p.retryFailed(ctx, &res)

	sigs, err := p.rpc.GetSignaturesForAddress(ctx, p.source.Address, &solana.SignaturesOpts{Limit: p.batchSize})
	if err != nil {
		return cursor, res, fmt.Errorf("get signatures: %w", err)
	}

	fresh := newSignatures(sigs, cursor)
	res.Scanned = len(fresh)
	p.metrics.RecordScanned(p.source.Name, len(fresh))
	if len(fresh) == 0 {
		return cursor, res, nil
	}

	// Oldest first, so events of one pair are applied chronologically.
	txs := make([]*solana.Transaction, 0, len(fresh))
	for i := len(fresh) - 1; i >= 0; i-- {
		sig := fresh[i]
		if sig.Err != nil {
			res.Skipped++
			continue
		}
		tx, err := p.fetch(ctx, sig.Signature)
		if err != nil {
			if ctx.Err() != nil {
				return cursor, res, ctx.Err()
			}
			res.FetchFailed++
			p.enqueueFailed(ctx, sig, err, &res)
			continue
		}
		res.Fetched++
		txs = append(txs, tx)
	}

	p.process(ctx, txs, &res)

	newest := fresh[0]
	next, moved := cursor.Advance(newest.Signature, newest.Slot, p.now().UnixMilli())
	if !moved {
		return cursor, res, nil
	}
	if err := p.cursors.Save(ctx, next); err != nil {
		return cursor, res, fmt.Errorf("save cursor: %w", err)
	}
	p.metrics.UpdateCursor(p.source.Name, next.Slot)
	return next, res, nil
}

// newSignatures returns the signatures of a newest-first batch that lie
// beyond cursor, newest first.
func newSignatures(sigs []solana.SignatureInfo, cursor domain.SignatureCursor) []solana.SignatureInfo {
	for i, s := range sigs {
		if cursor.Reached(s.Signature, s.Slot) {
			return sigs[:i]
		}
	}
	return sigs
}

// fetch retrieves transaction detail. A signature unknown to the node is an error.
func (p *Poller) fetch(ctx context.Context, signature string) (*solana.Transaction, error) {
	start := p.now()
	tx, err := p.rpc.GetTransaction(ctx, signature)
	p.metrics.RecordRPCLatency("getTransaction", p.now().Sub(start))
	if err != nil {
		p.metrics.RecordFetchError(p.source.Name)
		return nil, err
	}
	if tx == nil {
		p.metrics.RecordFetchError(p.source.Name)
		return nil, fmt.Errorf("transaction %s not available", signature)
	}
	if tx.Signature == "" {
		tx.Signature = signature
	}
	return tx, nil
}

// process classifies txs, registers creations and applies trades.
func (p *Poller) process(ctx context.Context, txs []*solana.Transaction, res *PollResult) {
	var (
		creations []discovery.CreationEvent
		trades    []*domain.LedgerEvent
	)
	for _, tx := range txs {
		events, err := p.classifier.Classify(p.source, tx)
		if err != nil {
			res.Ambiguous++
			p.metrics.RecordDropped(p.source.Name, "ambiguous")
			p.log.Debug().Err(err).Str("signature", tx.Signature).Msg("transaction skipped")
			continue
		}
		c, t := discovery.Split(events, p.source.Name)
		creations = append(creations, c...)
		trades = append(trades, t...)
	}

	for _, c := range creations {
		res.Creations++
		p.metrics.RecordClassified(p.source.Name, "creation")
		var created bool
		err := p.storageRetry.Do(ctx, func() error {
			var err error
			_, created, err = p.registry.Register(ctx, c)
			return err
		})
		if err != nil {
			res.StorageFailed++
			p.log.Error().Err(err).Str("mint", c.Mint).Str("signature", c.Signature).Msg("register token failed")
			continue
		}
		if created {
			res.Registered++
		}
	}

	p.groupFills(ctx, trades)
	discovery.SortLedgerEvents(trades)

	applied := make([]*domain.LedgerEvent, 0, len(trades))
	for _, e := range trades {
		res.Trades++
		p.metrics.RecordClassified(p.source.Name, string(e.Side))
		applied = append(applied, p.apply(ctx, e, res)...)
	}

	if p.archive != nil && len(applied) > 0 {
		if err := p.archive.InsertBulk(ctx, applied); err != nil {
			p.log.Error().Err(err).Int("events", len(applied)).Msg("archive events failed")
		}
	}
}

// groupFills tags partial fills, continuing orders already on record.
func (p *Poller) groupFills(ctx context.Context, trades []*domain.LedgerEvent) {
	if p.fills == nil {
		discovery.GroupPartialFills(trades, p.fillWindow)
		return
	}
	_, err := discovery.ContinuePartialFills(trades, p.fillWindow, func(orderID string) (int, error) {
		return p.fills.MaxFillIndex(ctx, orderID)
	})
	if err != nil {
		p.log.Warn().Err(err).Msg("stored fills unavailable, grouping within batch")
		discovery.GroupPartialFills(trades, p.fillWindow)
	}
}

// apply resolves the token of e and records it in the ledger. Returns the
// events that entered the log: e itself and any rejections it reinstated.
func (p *Poller) apply(ctx context.Context, e *domain.LedgerEvent, res *PollResult) []*domain.LedgerEvent {
	logEvent := func(ev *zerolog.Event) *zerolog.Event {
		return ev.Str("signature", e.Signature).Str("wallet", e.WalletAddress).Str("mint", e.Mint)
	}

	tokenID, err := p.registry.Lookup(ctx, e.Mint)
	if errors.Is(err, registry.ErrUnknownToken) {
		res.UnknownToken++
		p.metrics.RecordDropped(p.source.Name, "unknown_token")
		logEvent(p.log.Warn()).Msg("trade on unregistered token dropped")
		return nil
	}
	if err != nil {
		res.StorageFailed++
		logEvent(p.log.Error().Err(err)).Msg("token lookup failed")
		return nil
	}

	var out ledger.Outcome
	err = p.storageRetry.Do(ctx, func() error {
		var err error
		out, err = p.ledger.Record(ctx, tokenID, e)
		return err
	})
	switch {
	case err == nil:
		res.Applied++
		if out.Rebuilt {
			res.Late++
		}
		res.Reinstated += len(out.Reinstated)
		return append([]*domain.LedgerEvent{e}, out.Reinstated...)
	case errors.Is(err, ledger.ErrDuplicateEvent):
		res.Duplicates++
		logEvent(p.log.Debug()).Msg("event already applied")
	case errors.Is(err, ledger.ErrOverSell):
		res.Rejected++
	case errors.Is(err, ledger.ErrInvalidEvent):
		res.Ambiguous++
		p.metrics.RecordDropped(p.source.Name, "invalid_event")
		logEvent(p.log.Warn().Err(err)).Msg("invalid event dropped")
	default:
		res.StorageFailed++
		p.metrics.RecordDropped(p.source.Name, "storage")
		logEvent(p.log.Error().Err(err)).Str("event_id", e.EventID).Msg("apply event failed")
	}
	return nil
}

func (p *Poller) enqueueFailed(ctx context.Context, sig solana.SignatureInfo, cause error, res *PollResult) {
	p.log.Warn().Err(cause).Str("signature", sig.Signature).Msg("fetch transaction failed")
	if p.failed == nil {
		return
	}
	nowMs := p.now().UnixMilli()
	err := p.failed.Add(ctx, &storage.FailedSignature{
		Source:        p.source.Name,
		Signature:     sig.Signature,
		Slot:          sig.Slot,
		Attempts:      1,
		LastError:     cause.Error(),
		FirstFailedAt: nowMs,
		LastAttemptAt: nowMs,
	})
	if err != nil {
		p.log.Error().Err(err).Str("signature", sig.Signature).Msg("queue failed signature")
		return
	}
	p.metrics.RecordFailedSignature(p.source.Name, "queued")
}

// retryFailed refetches queued signatures before new ones are scanned.
// A resolved trade usually lands behind newer events of its pair; the
// ledger inserts it at its chronological place.
func (p *Poller) retryFailed(ctx context.Context, res *PollResult) {
	if p.failed == nil {
		return
	}
	due, err := p.failed.ListDue(ctx, p.source.Name, p.failedRetryLimit)
	if err != nil {
		p.log.Error().Err(err).Msg("list failed signatures")
		return
	}

	var txs []*solana.Transaction
	for _, f := range due {
		res.Retried++
		tx, err := p.fetch(ctx, f.Signature)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			exhausted, bumpErr := p.failed.Bump(ctx, f.Source, f.Signature, err.Error(), p.now().UnixMilli())
			switch {
			case bumpErr != nil:
				p.log.Error().Err(bumpErr).Str("signature", f.Signature).Msg("bump failed signature")
			case exhausted:
				res.Exhausted++
				p.metrics.RecordFailedSignature(p.source.Name, "exhausted")
				p.log.Error().Err(err).Str("signature", f.Signature).Int("attempts", storage.MaxSignatureAttempts).
					Msg("giving up on signature")
			default:
				p.metrics.RecordFailedSignature(p.source.Name, "retried")
			}
			continue
		}
		if err := p.failed.Resolve(ctx, f.Source, f.Signature); err != nil {
			p.log.Error().Err(err).Str("signature", f.Signature).Msg("resolve failed signature")
		}
		res.Resolved++
		p.metrics.RecordFailedSignature(p.source.Name, "resolved")
		txs = append(txs, tx)
	}

	if len(txs) > 0 {
		p.process(ctx, txs, res)
	}
}

// Run polls until ctx is done. A poll that is in flight when ctx is
// cancelled runs to completion, bounded by the poll timeout, so the
// persisted cursor always reflects a finished batch.
func (p *Poller) Run(ctx context.Context, onPoll func(PollResult, error)) error {
	cursor, err := p.loadCursorWithRetry(ctx)
	if err != nil {
		return err
	}

	var wake <-chan struct{}
	if p.notifier != nil {
		if wake, err = p.notifier.Wakeups(ctx, p.source.Address); err != nil {
			p.log.Warn().Err(err).Msg("log wake-ups unavailable, polling on interval")
			wake = nil
		}
	}

	p.log.Info().
		Str("address", p.source.Address).
		Str("cursor", cursor.Signature).
		Dur("interval", p.interval).
		Int("batch_size", p.batchSize).
		Msg("poller started")

	cycleBackoff := p.transportRetry.NewBackOff()
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			p.log.Info().Msg("poller stopped")
			return nil
		case _, ok := <-wake:
			if !ok {
				wake = nil
				continue
			}
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		case <-timer.C:
		}

		start := p.now()
		pollCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.pollTimeout)
		next, res, err := p.Poll(pollCtx, cursor)
		cancel()
		cursor = next
		p.metrics.RecordPoll(p.source.Name, p.now().Sub(start), err)
		if onPoll != nil {
			onPoll(res, err)
		}

		delay := p.interval
		if err != nil {
			delay = cycleBackoff.NextBackOff()
			if delay == backoffStop {
				delay = p.interval
			}
			p.log.Warn().Err(err).Str("kind", Classify(err).String()).Dur("retry_in", delay).Msg("poll failed")
		} else {
			cycleBackoff.Reset()
			p.log.Debug().
				Int("scanned", res.Scanned).
				Int("applied", res.Applied).
				Int("registered", res.Registered).
				Str("cursor", cursor.Signature).
				Msg("poll completed")
		}
		timer.Reset(delay)
	}
}

func (p *Poller) loadCursorWithRetry(ctx context.Context) (domain.SignatureCursor, error) {
	b := p.transportRetry.NewBackOff()
	for {
		cursor, err := p.LoadCursor(ctx)
		if err == nil {
			return cursor, nil
		}
		delay := b.NextBackOff()
		if delay == backoffStop {
			delay = p.interval
		}
		p.log.Error().Err(err).Dur("retry_in", delay).Msg("load cursor failed")
		select {
		case <-ctx.Done():
			return domain.SignatureCursor{}, ctx.Err()
		case <-time.After(delay):
		}
	}
}

package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"solana-wallet-ledger/internal/domain"
	"solana-wallet-ledger/internal/observability"
	"solana-wallet-ledger/internal/storage"
)

// ReasonOverSell is the rejection reason stored for oversell events.
const ReasonOverSell = "oversell"

// rejectedNamespace scopes deterministic rejected event ids.
var rejectedNamespace = uuid.MustParse("6f1c7a52-3d0e-4b8e-9a57-0c2f4f5d8e21")

// Options configures a Ledger.
type Options struct {
	Logger  zerolog.Logger
	Metrics *observability.Metrics
	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// Ledger applies ledger events to positions and keeps wallet aggregates current.
// Every update of one (wallet, token) pair runs as one atomic storage unit.
type Ledger struct {
	store   storage.LedgerStore
	log     zerolog.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

// New creates a ledger over store.
func New(store storage.LedgerStore, opts Options) *Ledger {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Ledger{
		store:   store,
		log:     opts.Logger.With().Str("component", "ledger").Logger(),
		metrics: opts.Metrics,
		now:     opts.Now,
	}
}

// Outcome describes what recording one event did to its pair.
type Outcome struct {
	Position domain.Position
	// Rebuilt is set when the event arrived behind newer events of the pair
	// and the position was replayed with it in chronological order.
	Rebuilt bool
	// Reinstated lists earlier rejected oversells the event made valid.
	// They are now part of the event log.
	Reinstated []*domain.LedgerEvent
}

// Apply records e against the position of (e.WalletAddress, tokenID) and
// returns the new position.
//
// Returns ErrDuplicateEvent when e was already applied, ErrOverSell when the
// sell exceeds the balance (the event is stored as rejected and the position
// is unchanged) and ErrInvalidEvent for malformed events.
func (l *Ledger) Apply(ctx context.Context, tokenID int64, e *domain.LedgerEvent) (domain.Position, error) {
	o, err := l.Record(ctx, tokenID, e)
	return o.Position, err
}

// Record is Apply with the full outcome. An event older than the newest
// logged or rejected event of its pair is inserted at its chronological
// place and the position is replayed, so late arrivals account exactly as
// if they had arrived in order.
func (l *Ledger) Record(ctx context.Context, tokenID int64, e *domain.LedgerEvent) (Outcome, error) {
	if e == nil {
		return Outcome{}, fmt.Errorf("%w: nil event", ErrInvalidEvent)
	}
	start := l.now()
	key := e.Key(tokenID)

	var (
		out      Outcome
		rejected *domain.RejectedEvent
	)
	err := l.store.WithPosition(ctx, key, func(ctx context.Context, u storage.LedgerUnit) error {
		out = Outcome{}
		rejected = nil

		seen, err := u.HasEvent(ctx, e.EventID)
		if err != nil {
			return err
		}
		if seen {
			return ErrDuplicateEvent
		}

		newest, err := u.Newest(ctx)
		if err != nil {
			return fmt.Errorf("newest event: %w", err)
		}
		if newest != nil && e.Before(newest) {
			return l.insertLate(ctx, key, u, e, &out, &rejected)
		}

		p := u.Position()
		balance := p.CurrentBalance
		if err := ApplyEvent(&p, e); err != nil {
			if errors.Is(err, ErrOverSell) {
				rejected = l.rejection(e, balance)
			}
			return err
		}

		if err := u.SavePosition(ctx, &p); err != nil {
			return fmt.Errorf("save position: %w", err)
		}
		if err := u.AppendEvent(ctx, e); err != nil {
			return fmt.Errorf("append event: %w", err)
		}
		if err := l.refreshWallet(ctx, u, e); err != nil {
			return err
		}
		out.Position = p
		return nil
	})

	switch {
	case err == nil:
		l.metrics.RecordApplied(string(e.Side), l.now().Sub(start))
		if out.Rebuilt {
			l.log.Info().
				Str("wallet", e.WalletAddress).
				Str("mint", e.Mint).
				Str("signature", e.Signature).
				Int("reinstated", len(out.Reinstated)).
				Msg("late event inserted, position replayed")
		}
		return out, nil
	case rejected != nil:
		l.reject(ctx, rejected)
		return Outcome{}, err
	case errors.Is(err, storage.ErrDuplicateKey):
		return Outcome{}, fmt.Errorf("%w: %s", ErrDuplicateEvent, e.EventID)
	default:
		return Outcome{}, err
	}
}

// insertLate replays the pair with e at its chronological place. Earlier
// oversells are retried, so a late buy revives the sells it covers. Logged
// events are never dropped: when e would leave one of them unbacked, e is
// rejected instead.
func (l *Ledger) insertLate(ctx context.Context, key domain.PositionKey, u storage.LedgerUnit, e *domain.LedgerEvent, out *Outcome, rejected **domain.RejectedEvent) error {
	logged, err := u.Events(ctx)
	if err != nil {
		return fmt.Errorf("list events: %w", err)
	}
	prior, err := u.Rejected(ctx)
	if err != nil {
		return fmt.Errorf("list rejected: %w", err)
	}

	candidates := make([]*domain.LedgerEvent, 0, len(logged)+len(prior)+1)
	candidates = append(candidates, logged...)
	for _, r := range prior {
		if r.Event.EventID != e.EventID {
			ev := r.Event
			candidates = append(candidates, &ev)
		}
	}
	candidates = append(candidates, e)

	stored := u.Position()
	if stored.TokenID != 0 {
		key.TokenID = stored.TokenID
	}
	replayed, refused, err := Replay(key, candidates)
	if err != nil {
		return err
	}

	refusedIDs := make(map[string]bool, len(refused))
	for _, r := range refused {
		refusedIDs[r.EventID] = true
	}
	breaksLog := false
	for _, le := range logged {
		if refusedIDs[le.EventID] {
			breaksLog = true
			break
		}
	}
	if breaksLog || refusedIDs[e.EventID] {
		*rejected = l.rejection(e, balanceBefore(key, logged, e))
		return ErrOverSell
	}

	for _, r := range prior {
		if refusedIDs[r.Event.EventID] {
			continue
		}
		if r.Event.EventID != e.EventID {
			ev := r.Event
			if err := u.AppendEvent(ctx, &ev); err != nil {
				return fmt.Errorf("append reinstated event: %w", err)
			}
			out.Reinstated = append(out.Reinstated, &ev)
		}
		if err := u.Reinstate(ctx, r.ID); err != nil {
			return fmt.Errorf("reinstate %s: %w", r.Event.EventID, err)
		}
	}
	if err := u.AppendEvent(ctx, e); err != nil {
		return fmt.Errorf("append event: %w", err)
	}

	replayed.WalletID = stored.WalletID
	if replayed.Status != domain.PositionClosed {
		replayed.UnrealizedPnL = stored.UnrealizedPnL
	}
	if err := u.SavePosition(ctx, &replayed); err != nil {
		return fmt.Errorf("save position: %w", err)
	}
	if err := l.refreshWallet(ctx, u, e); err != nil {
		return err
	}
	out.Position = replayed
	out.Rebuilt = true
	return nil
}

// balanceBefore is the balance the pair held just before e.
func balanceBefore(key domain.PositionKey, logged []*domain.LedgerEvent, e *domain.LedgerEvent) decimal.Decimal {
	var earlier []*domain.LedgerEvent
	for _, le := range logged {
		if le.Before(e) {
			earlier = append(earlier, le)
		}
	}
	p, _, err := Replay(key, earlier)
	if err != nil {
		return decimal.Zero
	}
	return p.CurrentBalance
}

func (l *Ledger) refreshWallet(ctx context.Context, u storage.LedgerUnit, e *domain.LedgerEvent) error {
	nowMs := l.now().UnixMilli()
	err := u.RefreshWallet(ctx, func(w *domain.Wallet, positions []*domain.Position) {
		WalletStats(w, positions)
		touchWallet(w, e.Timestamp)
		w.UpdatedAt = nowMs
	})
	if err != nil {
		return fmt.Errorf("refresh wallet: %w", err)
	}
	return nil
}

// rejection builds the rejected event record. The id is derived from the
// event id so reprocessing the same oversell stores it once.
func (l *Ledger) rejection(e *domain.LedgerEvent, balance decimal.Decimal) *domain.RejectedEvent {
	return &domain.RejectedEvent{
		ID:         uuid.NewSHA1(rejectedNamespace, []byte(e.EventID)).String(),
		Event:      *e,
		Reason:     ReasonOverSell,
		Balance:    balance,
		RejectedAt: l.now().UnixMilli(),
	}
}

func (l *Ledger) reject(ctx context.Context, r *domain.RejectedEvent) {
	l.metrics.RecordRejected(r.Reason)
	l.log.Warn().
		Str("wallet", r.Event.WalletAddress).
		Str("mint", r.Event.Mint).
		Str("signature", r.Event.Signature).
		Str("amount", r.Event.TokenAmount.String()).
		Str("balance", r.Balance.String()).
		Msg("sell exceeds balance, event rejected")

	err := l.store.AppendRejected(ctx, r)
	if err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
		l.log.Error().Err(err).Str("event_id", r.Event.EventID).Msg("store rejected event")
	}
}

// RefreshUnrealized marks the position of key to price. Closed positions get zero.
// Returns storage.ErrNotFound when the pair never traded.
func (l *Ledger) RefreshUnrealized(ctx context.Context, key domain.PositionKey, price decimal.Decimal) (domain.Position, error) {
	var result domain.Position
	err := l.store.WithPosition(ctx, key, func(ctx context.Context, u storage.LedgerUnit) error {
		p := u.Position()
		if p.IsEmpty() {
			return storage.ErrNotFound
		}
		p.UnrealizedPnL = UnrealizedPnL(&p, price)
		if err := u.SavePosition(ctx, &p); err != nil {
			return err
		}
		result = p
		return nil
	})
	return result, err
}

// UnrealizedPnL returns (price - avg_buy_price) * balance, zero for closed positions.
func UnrealizedPnL(p *domain.Position, price decimal.Decimal) decimal.Decimal {
	if p.Status == domain.PositionClosed || p.CurrentBalance.IsZero() {
		return decimal.Zero
	}
	return price.Sub(p.AvgBuyPrice).Mul(p.CurrentBalance)
}

// Drift compares a stored position with a replay of its event log.
type Drift struct {
	Key      domain.PositionKey
	Stored   domain.Position
	Replayed domain.Position
	Events   int
	Rejected int  // oversells skipped by the replay
	Changed  bool // accounting figures differ or a rejection became valid
	Repaired bool // the replayed position was written back

	// Reinstated are stored rejections the replay accepts.
	Reinstated []*domain.RejectedEvent
}

// Recompute replays the stored event log of key from an empty position,
// retrying the pair's rejected oversells at their chronological place.
// When write is set and the result differs, the stored position, the log
// and the wallet aggregates are brought in line; otherwise nothing is written.
func (l *Ledger) Recompute(ctx context.Context, key domain.PositionKey, write bool) (*Drift, error) {
	var drift *Drift
	err := l.store.WithPosition(ctx, key, func(ctx context.Context, u storage.LedgerUnit) error {
		events, err := u.Events(ctx)
		if err != nil {
			return fmt.Errorf("list events: %w", err)
		}
		prior, err := u.Rejected(ctx)
		if err != nil {
			return fmt.Errorf("list rejected: %w", err)
		}
		stored := u.Position()
		d, err := compare(key, stored, events, prior)
		if err != nil {
			return err
		}
		drift = d
		if !write || !d.Changed {
			return nil
		}

		for _, r := range d.Reinstated {
			ev := r.Event
			if err := u.AppendEvent(ctx, &ev); err != nil {
				return fmt.Errorf("append reinstated event: %w", err)
			}
			if err := u.Reinstate(ctx, r.ID); err != nil {
				return fmt.Errorf("reinstate %s: %w", ev.EventID, err)
			}
			events = append(events, &ev)
		}
		if err := u.SavePosition(ctx, &d.Replayed); err != nil {
			return fmt.Errorf("save position: %w", err)
		}
		nowMs := l.now().UnixMilli()
		if err := u.RefreshWallet(ctx, func(w *domain.Wallet, positions []*domain.Position) {
			WalletStats(w, positions)
			for _, e := range events {
				touchWallet(w, e.Timestamp)
			}
			w.UpdatedAt = nowMs
		}); err != nil {
			return fmt.Errorf("refresh wallet: %w", err)
		}
		d.Repaired = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if drift.Changed {
		l.log.Warn().
			Str("wallet", key.WalletAddress).
			Str("mint", key.Mint).
			Int("reinstated", len(drift.Reinstated)).
			Bool("repaired", drift.Repaired).
			Msg("position differs from event log replay")
	}
	return drift, nil
}

// Verify replays an externally supplied event log (an archive copy) against
// the stored position without writing anything.
func (l *Ledger) Verify(ctx context.Context, key domain.PositionKey, events []*domain.LedgerEvent) (*Drift, error) {
	stored, err := l.store.GetPosition(ctx, key.WalletAddress, key.Mint)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		empty := domain.NewPosition(key)
		stored = &empty
	case err != nil:
		return nil, err
	}
	return compare(key, *stored, events, nil)
}

func compare(key domain.PositionKey, stored domain.Position, events []*domain.LedgerEvent, prior []*domain.RejectedEvent) (*Drift, error) {
	if stored.TokenID != 0 {
		key.TokenID = stored.TokenID
	}

	candidates := make([]*domain.LedgerEvent, 0, len(events)+len(prior))
	candidates = append(candidates, events...)
	for _, r := range prior {
		ev := r.Event
		candidates = append(candidates, &ev)
	}
	replayed, refused, err := Replay(key, candidates)
	if err != nil {
		return nil, err
	}
	replayed.WalletID = stored.WalletID
	if replayed.Status != domain.PositionClosed {
		replayed.UnrealizedPnL = stored.UnrealizedPnL
	}

	refusedIDs := make(map[string]bool, len(refused))
	for _, r := range refused {
		refusedIDs[r.EventID] = true
	}
	var reinstated []*domain.RejectedEvent
	for _, r := range prior {
		if !refusedIDs[r.Event.EventID] {
			reinstated = append(reinstated, r)
		}
	}

	return &Drift{
		Key:        key,
		Stored:     stored,
		Replayed:   replayed,
		Events:     len(events),
		Rejected:   len(refused),
		Changed:    !SameAccounting(&stored, &replayed) || len(reinstated) > 0,
		Reinstated: reinstated,
	}, nil
}

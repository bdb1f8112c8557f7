package memory

import (
	"context"
	"slices"
	"sort"
	"sync"

	"solana-wallet-ledger/internal/domain"
	"solana-wallet-ledger/internal/storage"
)

type pairKey struct {
	wallet string
	mint   string
}

// LedgerStore is an in-memory implementation of storage.LedgerStore.
//
// Units on the same pair are serialized by a per-pair mutex; units on
// different pairs run concurrently and only meet at commit.
type LedgerStore struct {
	locksMu sync.Mutex
	locks   map[pairKey]*sync.Mutex

	mu           sync.RWMutex
	wallets      map[string]*domain.Wallet
	positions    map[pairKey]*domain.Position
	events       map[string]*domain.LedgerEvent
	pairEvents   map[pairKey][]string
	rejected     []*domain.RejectedEvent
	nextWalletID int64

	failMu      sync.Mutex
	failCommits int
	failErr     error
}

// NewLedgerStore creates a new in-memory ledger store.
func NewLedgerStore() *LedgerStore {
	return &LedgerStore{
		locks:      make(map[pairKey]*sync.Mutex),
		wallets:    make(map[string]*domain.Wallet),
		positions:  make(map[pairKey]*domain.Position),
		events:     make(map[string]*domain.LedgerEvent),
		pairEvents: make(map[pairKey][]string),
	}
}

// FailNextCommits makes the next n units fail at commit with err.
// Used by tests to simulate storage outages.
func (s *LedgerStore) FailNextCommits(n int, err error) {
	s.failMu.Lock()
	defer s.failMu.Unlock()
	s.failCommits = n
	s.failErr = err
}

func (s *LedgerStore) injectedFailure() error {
	s.failMu.Lock()
	defer s.failMu.Unlock()
	if s.failCommits <= 0 {
		return nil
	}
	s.failCommits--
	return s.failErr
}

func (s *LedgerStore) lockFor(k pairKey) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()

	l, ok := s.locks[k]
	if !ok {
		l = &sync.Mutex{}
		s.locks[k] = l
	}
	return l
}

// WithPosition runs fn under the pair lock and commits its staged changes on success.
func (s *LedgerStore) WithPosition(ctx context.Context, key domain.PositionKey, fn func(ctx context.Context, unit storage.LedgerUnit) error) error {
	if key.WalletAddress == "" || key.Mint == "" {
		return storage.ErrInvalidInput
	}
	k := pairKey{key.WalletAddress, key.Mint}

	l := s.lockFor(k)
	l.Lock()
	defer l.Unlock()

	s.mu.RLock()
	current := domain.NewPosition(key)
	if p, ok := s.positions[k]; ok {
		current = clonePosition(p)
	}
	s.mu.RUnlock()

	unit := &ledgerUnit{store: s, key: k, current: current}
	if err := fn(ctx, unit); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.commit(unit)
}

func (s *LedgerStore) commit(u *ledgerUnit) error {
	if err := s.injectedFailure(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range u.events {
		if _, exists := s.events[e.EventID]; exists {
			return storage.ErrDuplicateKey
		}
	}

	if u.staged == nil && len(u.events) == 0 && len(u.refresh) == 0 && len(u.reinstated) == 0 {
		return nil
	}

	if len(u.reinstated) > 0 {
		kept := s.rejected[:0]
		for _, r := range s.rejected {
			if !slices.Contains(u.reinstated, r.ID) {
				kept = append(kept, r)
			}
		}
		s.rejected = kept
	}

	w := s.walletLocked(u.key.wallet)

	if u.staged != nil {
		p := clonePosition(u.staged)
		p.WalletID = w.ID
		s.positions[u.key] = &p
	}
	for _, e := range u.events {
		s.events[e.EventID] = e
		s.pairEvents[u.key] = append(s.pairEvents[u.key], e.EventID)
	}

	for _, fn := range u.refresh {
		walletCopy := *w
		fn(&walletCopy, s.walletPositionsLocked(u.key.wallet))
		walletCopy.ID = w.ID
		walletCopy.Address = w.Address
		*w = walletCopy
	}
	return nil
}

// walletLocked returns the wallet row, creating it lazily. Caller holds s.mu.
func (s *LedgerStore) walletLocked(address string) *domain.Wallet {
	w, ok := s.wallets[address]
	if !ok {
		s.nextWalletID++
		w = &domain.Wallet{ID: s.nextWalletID, Address: address}
		s.wallets[address] = w
	}
	return w
}

func (s *LedgerStore) walletPositionsLocked(address string) []*domain.Position {
	var result []*domain.Position
	for k, p := range s.positions {
		if k.wallet == address {
			c := clonePosition(p)
			result = append(result, &c)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Mint < result[j].Mint })
	return result
}

// GetWallet retrieves a wallet by address. Returns ErrNotFound if not exists.
func (s *LedgerStore) GetWallet(_ context.Context, address string) (*domain.Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.wallets[address]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return cloneWallet(w), nil
}

// GetPosition retrieves one position. Returns ErrNotFound if not exists.
func (s *LedgerStore) GetPosition(_ context.Context, wallet, mint string) (*domain.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.positions[pairKey{wallet, mint}]
	if !ok {
		return nil, storage.ErrNotFound
	}
	c := clonePosition(p)
	return &c, nil
}

// ListPositions returns every position of a wallet ordered by mint.
func (s *LedgerStore) ListPositions(_ context.Context, wallet string) ([]*domain.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.walletPositionsLocked(wallet), nil
}

// ListOpenPositions returns all open and partial positions.
func (s *LedgerStore) ListOpenPositions(_ context.Context) ([]*domain.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Position
	for _, p := range s.positions {
		if p.Status == domain.PositionClosed {
			continue
		}
		c := clonePosition(p)
		result = append(result, &c)
	}
	sortPositions(result)
	return result, nil
}

// ListPositionKeys returns the keys of all stored positions.
func (s *LedgerStore) ListPositionKeys(_ context.Context) ([]domain.PositionKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]domain.PositionKey, 0, len(s.positions))
	for _, p := range s.positions {
		keys = append(keys, p.Key())
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].WalletAddress != keys[j].WalletAddress {
			return keys[i].WalletAddress < keys[j].WalletAddress
		}
		return keys[i].Mint < keys[j].Mint
	})
	return keys, nil
}

// ListEvents returns the events of one pair in chronological order.
func (s *LedgerStore) ListEvents(_ context.Context, wallet, mint string) ([]*domain.LedgerEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.pairEvents[pairKey{wallet, mint}]
	result := make([]*domain.LedgerEvent, 0, len(ids))
	for _, id := range ids {
		e := *s.events[id]
		result = append(result, &e)
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].Before(result[j]) })
	return result, nil
}

// TopWallets returns wallets with at least minTrades trades ordered by total P&L descending.
func (s *LedgerStore) TopWallets(_ context.Context, minTrades, limit int) ([]*domain.Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Wallet
	for _, w := range s.wallets {
		if w.TotalTrades >= minTrades {
			result = append(result, cloneWallet(w))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if c := result[i].TotalProfitLoss.Cmp(result[j].TotalProfitLoss); c != 0 {
			return c > 0
		}
		return result[i].Address < result[j].Address
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// ListActiveWallets returns wallets last seen at or after sinceMs, most recent first.
func (s *LedgerStore) ListActiveWallets(_ context.Context, sinceMs int64, limit int) ([]*domain.Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Wallet
	for _, w := range s.wallets {
		if w.LastSeen >= sinceMs {
			result = append(result, cloneWallet(w))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].LastSeen != result[j].LastSeen {
			return result[i].LastSeen > result[j].LastSeen
		}
		return result[i].Address < result[j].Address
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// AppendRejected records an event refused by the ledger.
func (s *LedgerStore) AppendRejected(_ context.Context, r *domain.RejectedEvent) error {
	if r == nil || r.ID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.rejected {
		if existing.ID == r.ID {
			return storage.ErrDuplicateKey
		}
	}
	entry := *r
	s.rejected = append(s.rejected, &entry)
	return nil
}

// ListRejected returns the most recent rejected events, newest first.
func (s *LedgerStore) ListRejected(_ context.Context, limit int) ([]*domain.RejectedEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.RejectedEvent
	for i := len(s.rejected) - 1; i >= 0; i-- {
		if limit > 0 && len(result) == limit {
			break
		}
		entry := *s.rejected[i]
		result = append(result, &entry)
	}
	return result, nil
}

// ListRecentEvents returns events with a timestamp at or after sinceMs, newest first.
func (s *LedgerStore) ListRecentEvents(_ context.Context, sinceMs int64, limit int) ([]*domain.LedgerEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.LedgerEvent
	for _, e := range s.events {
		if e.Timestamp >= sinceMs {
			c := *e
			result = append(result, &c)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[j].Before(result[i]) })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// ListPartialOrders returns orders assembled from partial fills, latest start first.
func (s *LedgerStore) ListPartialOrders(_ context.Context, wallet string, limit int) ([]*domain.PartialOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	orders := make(map[string]*domain.PartialOrder)
	for _, e := range s.events {
		if e.OrderID == nil || (wallet != "" && e.WalletAddress != wallet) {
			continue
		}
		o, ok := orders[*e.OrderID]
		if !ok {
			o = &domain.PartialOrder{
				OrderID:       *e.OrderID,
				WalletAddress: e.WalletAddress,
				Mint:          e.Mint,
				Side:          e.Side,
				FirstAt:       e.Timestamp,
				LastAt:        e.Timestamp,
			}
			orders[*e.OrderID] = o
		}
		o.Fills++
		o.TokenAmount = o.TokenAmount.Add(e.TokenAmount)
		o.QuoteAmount = o.QuoteAmount.Add(e.QuoteAmount)
		o.Fee = o.Fee.Add(e.Fee)
		o.FirstAt = min(o.FirstAt, e.Timestamp)
		o.LastAt = max(o.LastAt, e.Timestamp)
	}

	result := make([]*domain.PartialOrder, 0, len(orders))
	for _, o := range orders {
		result = append(result, o)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].FirstAt != result[j].FirstAt {
			return result[i].FirstAt > result[j].FirstAt
		}
		return result[i].OrderID < result[j].OrderID
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// MaxFillIndex returns the highest partial fill index recorded for orderID.
func (s *LedgerStore) MaxFillIndex(_ context.Context, orderID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	highest := 0
	note := func(e *domain.LedgerEvent) {
		if e.OrderID != nil && *e.OrderID == orderID && e.PartialFillIndex != nil {
			highest = max(highest, *e.PartialFillIndex)
		}
	}
	for _, e := range s.events {
		note(e)
	}
	for _, r := range s.rejected {
		note(&r.Event)
	}
	return highest, nil
}

// ledgerUnit stages writes until the owning WithPosition commits them.
type ledgerUnit struct {
	store      *LedgerStore
	key        pairKey
	current    domain.Position
	staged     *domain.Position
	events     []*domain.LedgerEvent
	reinstated []string
	refresh    []func(*domain.Wallet, []*domain.Position)
}

func (u *ledgerUnit) Position() domain.Position {
	if u.staged != nil {
		return clonePosition(u.staged)
	}
	return clonePosition(&u.current)
}

func (u *ledgerUnit) HasEvent(_ context.Context, eventID string) (bool, error) {
	for _, e := range u.events {
		if e.EventID == eventID {
			return true, nil
		}
	}
	u.store.mu.RLock()
	defer u.store.mu.RUnlock()
	_, ok := u.store.events[eventID]
	return ok, nil
}

func (u *ledgerUnit) SavePosition(_ context.Context, p *domain.Position) error {
	if p == nil || p.WalletAddress != u.key.wallet || p.Mint != u.key.mint {
		return storage.ErrInvalidInput
	}
	c := clonePosition(p)
	u.staged = &c
	return nil
}

func (u *ledgerUnit) AppendEvent(ctx context.Context, e *domain.LedgerEvent) error {
	if e == nil || e.EventID == "" {
		return storage.ErrInvalidInput
	}
	exists, err := u.HasEvent(ctx, e.EventID)
	if err != nil {
		return err
	}
	if exists {
		return storage.ErrDuplicateKey
	}
	eventCopy := *e
	u.events = append(u.events, &eventCopy)
	return nil
}

func (u *ledgerUnit) RefreshWallet(_ context.Context, fn func(*domain.Wallet, []*domain.Position)) error {
	u.refresh = append(u.refresh, fn)
	return nil
}

func (u *ledgerUnit) Newest(ctx context.Context) (*domain.LedgerEvent, error) {
	events, err := u.Events(ctx)
	if err != nil {
		return nil, err
	}
	rejected, err := u.Rejected(ctx)
	if err != nil {
		return nil, err
	}

	var newest *domain.LedgerEvent
	if len(events) > 0 {
		newest = events[len(events)-1]
	}
	if len(rejected) > 0 {
		last := &rejected[len(rejected)-1].Event
		if newest == nil || newest.Before(last) {
			newest = last
		}
	}
	return newest, nil
}

func (u *ledgerUnit) Events(_ context.Context) ([]*domain.LedgerEvent, error) {
	u.store.mu.RLock()
	ids := u.store.pairEvents[u.key]
	result := make([]*domain.LedgerEvent, 0, len(ids)+len(u.events))
	for _, id := range ids {
		e := *u.store.events[id]
		result = append(result, &e)
	}
	u.store.mu.RUnlock()

	for _, e := range u.events {
		c := *e
		result = append(result, &c)
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].Before(result[j]) })
	return result, nil
}

func (u *ledgerUnit) Rejected(_ context.Context) ([]*domain.RejectedEvent, error) {
	u.store.mu.RLock()
	defer u.store.mu.RUnlock()

	var result []*domain.RejectedEvent
	for _, r := range u.store.rejected {
		if r.Event.WalletAddress != u.key.wallet || r.Event.Mint != u.key.mint || slices.Contains(u.reinstated, r.ID) {
			continue
		}
		c := *r
		result = append(result, &c)
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].Event.Before(&result[j].Event) })
	return result, nil
}

func (u *ledgerUnit) Reinstate(_ context.Context, rejectedID string) error {
	if rejectedID == "" {
		return storage.ErrInvalidInput
	}
	if !slices.Contains(u.reinstated, rejectedID) {
		u.reinstated = append(u.reinstated, rejectedID)
	}
	return nil
}

func clonePosition(p *domain.Position) domain.Position {
	c := *p
	c.FirstBuyAt = cloneInt64(p.FirstBuyAt)
	c.LastBuyAt = cloneInt64(p.LastBuyAt)
	c.LastSellAt = cloneInt64(p.LastSellAt)
	return c
}

func cloneWallet(w *domain.Wallet) *domain.Wallet {
	c := *w
	if w.Tags != nil {
		c.Tags = append([]string(nil), w.Tags...)
	}
	return &c
}

func cloneInt64(v *int64) *int64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func sortPositions(ps []*domain.Position) {
	sort.Slice(ps, func(i, j int) bool {
		if ps[i].WalletAddress != ps[j].WalletAddress {
			return ps[i].WalletAddress < ps[j].WalletAddress
		}
		return ps[i].Mint < ps[j].Mint
	})
}

// Verify interface compliance at compile time.
var _ storage.LedgerStore = (*LedgerStore)(nil)

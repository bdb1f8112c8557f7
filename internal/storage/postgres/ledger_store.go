package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"solana-wallet-ledger/internal/domain"
	"solana-wallet-ledger/internal/storage"
)

// LedgerStore is a PostgreSQL implementation of storage.LedgerStore.
//
// WithPosition runs in one transaction. Lock order is position row first,
// wallet row last, so units on different mints of one wallet serialize only
// on the short wallet refresh.
type LedgerStore struct {
	pool *Pool
}

// NewLedgerStore creates a new PostgreSQL ledger store.
func NewLedgerStore(pool *Pool) *LedgerStore {
	return &LedgerStore{pool: pool}
}

const positionColumns = `
	wallet_id, token_id, wallet_address, mint, epoch,
	total_bought::text, total_sold::text, current_balance::text, total_cost::text, avg_buy_price::text,
	total_revenue::text, avg_sell_price::text, realized_pnl::text, unrealized_pnl::text, status,
	first_buy_ms, last_buy_ms, last_sell_ms, buy_count, sell_count,
	lifetime_invested::text, lifetime_realized_pnl::text, closed_epochs, winning_epochs,
	closed_realized_pnl::text, best_closed_pnl::text, worst_closed_pnl::text, updated_at_ms`

const rejectedColumns = `
	id, event_id, wallet_address, mint, signature, side,
	token_amount::text, quote_amount::text, quote_mint, unit_price::text, fee::text,
	timestamp_ms, slot, leg_index, order_id, partial_fill_index, source,
	reason, balance::text, rejected_at_ms`

const walletColumns = `
	id, address, total_trades, total_profit_loss::text, total_invested::text, win_rate,
	avg_profit_per_trade::text, best_trade::text, worst_trade::text,
	first_seen_ms, last_seen_ms, tags, updated_at_ms`

// pairEventFields are the raw event columns shared by ledger_events and rejected_events.
const pairEventFields = `
	event_id, wallet_address, mint, signature, side,
	token_amount, quote_amount, quote_mint, unit_price, fee,
	timestamp_ms, slot, leg_index, order_id, partial_fill_index, source`

const eventColumns = `
	event_id, wallet_address, mint, signature, side,
	token_amount::text, quote_amount::text, quote_mint, unit_price::text, fee::text,
	timestamp_ms, slot, leg_index, order_id, partial_fill_index, source`

// WithPosition runs fn inside one transaction holding FOR UPDATE on the position row.
func (s *LedgerStore) WithPosition(ctx context.Context, key domain.PositionKey, fn func(ctx context.Context, unit storage.LedgerUnit) error) error {
	if key.WalletAddress == "" || key.Mint == "" || key.TokenID == 0 {
		return storage.ErrInvalidInput
	}

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		walletID, err := ensureWallet(ctx, tx, key.WalletAddress)
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO positions (wallet_id, token_id, wallet_address, mint)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (wallet_id, token_id) DO NOTHING
		`, walletID, key.TokenID, key.WalletAddress, key.Mint)
		if err != nil {
			return fmt.Errorf("ensure position: %w", err)
		}

		current, err := scanPosition(tx.QueryRow(ctx, `
			SELECT `+positionColumns+`
			FROM positions
			WHERE wallet_id = $1 AND token_id = $2
			FOR UPDATE
		`, walletID, key.TokenID))
		if err != nil {
			return fmt.Errorf("lock position: %w", err)
		}

		unit := &ledgerUnit{tx: tx, walletID: walletID, tokenID: key.TokenID, current: *current}
		return fn(ctx, unit)
	})
	if isConflictError(err) {
		return fmt.Errorf("%w: %v", storage.ErrConflict, err)
	}
	return err
}

func ensureWallet(ctx context.Context, tx pgx.Tx, address string) (int64, error) {
	_, err := tx.Exec(ctx, `
		INSERT INTO wallets (address) VALUES ($1)
		ON CONFLICT (address) DO NOTHING
	`, address)
	if err != nil {
		return 0, fmt.Errorf("ensure wallet: %w", err)
	}

	var id int64
	if err := tx.QueryRow(ctx, `SELECT id FROM wallets WHERE address = $1`, address).Scan(&id); err != nil {
		return 0, fmt.Errorf("select wallet id: %w", err)
	}
	return id, nil
}

// GetWallet retrieves a wallet by address. Returns ErrNotFound if not exists.
func (s *LedgerStore) GetWallet(ctx context.Context, address string) (*domain.Wallet, error) {
	w, err := scanWallet(s.pool.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE address = $1`, address))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	return w, nil
}

// GetPosition retrieves one position. Returns ErrNotFound if not exists.
func (s *LedgerStore) GetPosition(ctx context.Context, wallet, mint string) (*domain.Position, error) {
	p, err := scanPosition(s.pool.QueryRow(ctx, `
		SELECT `+positionColumns+`
		FROM positions
		WHERE wallet_address = $1 AND mint = $2
	`, wallet, mint))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

// ListPositions returns every position of a wallet ordered by mint.
func (s *LedgerStore) ListPositions(ctx context.Context, wallet string) ([]*domain.Position, error) {
	return s.queryPositions(ctx, `
		SELECT `+positionColumns+`
		FROM positions
		WHERE wallet_address = $1
		ORDER BY mint
	`, wallet)
}

// ListOpenPositions returns all open and partial positions.
func (s *LedgerStore) ListOpenPositions(ctx context.Context) ([]*domain.Position, error) {
	return s.queryPositions(ctx, `
		SELECT `+positionColumns+`
		FROM positions
		WHERE status <> 'closed'
		ORDER BY wallet_address, mint
	`)
}

// ListPositionKeys returns the keys of all stored positions.
func (s *LedgerStore) ListPositionKeys(ctx context.Context) ([]domain.PositionKey, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT wallet_address, mint, token_id
		FROM positions
		ORDER BY wallet_address, mint
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []domain.PositionKey
	for rows.Next() {
		var k domain.PositionKey
		if err := rows.Scan(&k.WalletAddress, &k.Mint, &k.TokenID); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (s *LedgerStore) queryPositions(ctx context.Context, sql string, args ...any) ([]*domain.Position, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

// ListEvents returns the events of one pair in chronological order.
func (s *LedgerStore) ListEvents(ctx context.Context, wallet, mint string) ([]*domain.LedgerEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+eventColumns+`
		FROM ledger_events
		WHERE wallet_address = $1 AND mint = $2
		ORDER BY slot, timestamp_ms, signature, leg_index
	`, wallet, mint)
	if err != nil {
		return nil, err
	}
	return collectEvents(rows)
}

// TopWallets returns wallets with at least minTrades trades ordered by total P&L descending.
func (s *LedgerStore) TopWallets(ctx context.Context, minTrades, limit int) ([]*domain.Wallet, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+walletColumns+`
		FROM wallets
		WHERE total_trades >= $1
		ORDER BY total_profit_loss DESC, address
		LIMIT $2
	`, minTrades, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*domain.Wallet
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, w)
	}
	return result, rows.Err()
}

// ListActiveWallets returns wallets last seen at or after sinceMs, most recent first.
func (s *LedgerStore) ListActiveWallets(ctx context.Context, sinceMs int64, limit int) ([]*domain.Wallet, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+walletColumns+`
		FROM wallets
		WHERE last_seen_ms >= $1
		ORDER BY last_seen_ms DESC, address
		LIMIT $2
	`, sinceMs, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*domain.Wallet
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, w)
	}
	return result, rows.Err()
}

// AppendRejected records an event refused by the ledger.
func (s *LedgerStore) AppendRejected(ctx context.Context, r *domain.RejectedEvent) error {
	if r == nil || r.ID == "" {
		return storage.ErrInvalidInput
	}

	e := r.Event
	_, err := s.pool.Exec(ctx, `
		INSERT INTO rejected_events (
			id, event_id, wallet_address, mint, signature, side,
			token_amount, quote_amount, quote_mint, unit_price, fee,
			timestamp_ms, slot, leg_index, order_id, partial_fill_index, source,
			reason, balance, rejected_at_ms
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7::text::numeric, $8::text::numeric, $9, $10::text::numeric, $11::text::numeric,
			$12, $13, $14, $15, $16, $17,
			$18, $19::text::numeric, $20
		)
	`,
		r.ID, e.EventID, e.WalletAddress, e.Mint, e.Signature, string(e.Side),
		num(e.TokenAmount), num(e.QuoteAmount), e.QuoteMint, num(e.UnitPrice), num(e.Fee),
		e.Timestamp, e.Slot, e.LegIndex, e.OrderID, e.PartialFillIndex, e.Source,
		r.Reason, num(r.Balance), r.RejectedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return err
	}
	return nil
}

// ListRejected returns the most recent rejected events, newest first.
func (s *LedgerStore) ListRejected(ctx context.Context, limit int) ([]*domain.RejectedEvent, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+rejectedColumns+`
		FROM rejected_events
		ORDER BY rejected_at_ms DESC, id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	return collectRejected(rows)
}

// ListRecentEvents returns events with a timestamp at or after sinceMs, newest first.
func (s *LedgerStore) ListRecentEvents(ctx context.Context, sinceMs int64, limit int) ([]*domain.LedgerEvent, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+eventColumns+`
		FROM ledger_events
		WHERE timestamp_ms >= $1
		ORDER BY slot DESC, timestamp_ms DESC, signature DESC, leg_index DESC
		LIMIT $2
	`, sinceMs, limit)
	if err != nil {
		return nil, err
	}
	return collectEvents(rows)
}

// ListPartialOrders returns orders assembled from partial fills, latest start first.
func (s *LedgerStore) ListPartialOrders(ctx context.Context, wallet string, limit int) ([]*domain.PartialOrder, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.pool.Query(ctx, `
		SELECT order_id, wallet_address, mint, side, COUNT(*),
		       SUM(token_amount)::text, SUM(quote_amount)::text, SUM(fee)::text,
		       MIN(timestamp_ms), MAX(timestamp_ms)
		FROM ledger_events
		WHERE order_id IS NOT NULL AND ($1::text = '' OR wallet_address = $1)
		GROUP BY order_id, wallet_address, mint, side
		ORDER BY MIN(timestamp_ms) DESC, order_id
		LIMIT $2
	`, wallet, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*domain.PartialOrder
	for rows.Next() {
		var o domain.PartialOrder
		var side string
		err := rows.Scan(
			&o.OrderID, &o.WalletAddress, &o.Mint, &side, &o.Fills,
			&o.TokenAmount, &o.QuoteAmount, &o.Fee,
			&o.FirstAt, &o.LastAt,
		)
		if err != nil {
			return nil, err
		}
		o.Side = domain.TradeSide(side)
		result = append(result, &o)
	}
	return result, rows.Err()
}

// MaxFillIndex returns the highest partial fill index recorded for orderID.
func (s *LedgerStore) MaxFillIndex(ctx context.Context, orderID string) (int, error) {
	var highest int
	err := s.pool.QueryRow(ctx, `
		SELECT COALESCE(MAX(idx), 0) FROM (
			SELECT partial_fill_index AS idx FROM ledger_events WHERE order_id = $1
			UNION ALL
			SELECT partial_fill_index FROM rejected_events WHERE order_id = $1
		) fills
	`, orderID).Scan(&highest)
	return highest, err
}

// ledgerUnit writes through the transaction owned by WithPosition.
type ledgerUnit struct {
	tx       pgx.Tx
	walletID int64
	tokenID  int64
	current  domain.Position
}

func (u *ledgerUnit) Position() domain.Position {
	return u.current
}

func (u *ledgerUnit) HasEvent(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := u.tx.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM ledger_events WHERE event_id = $1)
	`, eventID).Scan(&exists)
	return exists, err
}

func (u *ledgerUnit) SavePosition(ctx context.Context, p *domain.Position) error {
	if p == nil || p.WalletAddress != u.current.WalletAddress || p.Mint != u.current.Mint {
		return storage.ErrInvalidInput
	}

	_, err := u.tx.Exec(ctx, `
		UPDATE positions SET
			epoch = $3,
			total_bought = $4::text::numeric,
			total_sold = $5::text::numeric,
			current_balance = $6::text::numeric,
			total_cost = $7::text::numeric,
			avg_buy_price = $8::text::numeric,
			total_revenue = $9::text::numeric,
			avg_sell_price = $10::text::numeric,
			realized_pnl = $11::text::numeric,
			unrealized_pnl = $12::text::numeric,
			status = $13,
			first_buy_ms = $14,
			last_buy_ms = $15,
			last_sell_ms = $16,
			buy_count = $17,
			sell_count = $18,
			lifetime_invested = $19::text::numeric,
			lifetime_realized_pnl = $20::text::numeric,
			closed_epochs = $21,
			winning_epochs = $22,
			closed_realized_pnl = $23::text::numeric,
			best_closed_pnl = $24::text::numeric,
			worst_closed_pnl = $25::text::numeric,
			updated_at_ms = $26
		WHERE wallet_id = $1 AND token_id = $2
	`,
		u.walletID, u.tokenID,
		p.Epoch,
		num(p.TotalBought), num(p.TotalSold), num(p.CurrentBalance), num(p.TotalCost), num(p.AvgBuyPrice),
		num(p.TotalRevenue), num(p.AvgSellPrice), num(p.RealizedPnL), num(p.UnrealizedPnL),
		string(p.Status), p.FirstBuyAt, p.LastBuyAt, p.LastSellAt,
		p.BuyCount, p.SellCount,
		num(p.LifetimeInvested), num(p.LifetimeRealizedPnL), p.ClosedEpochs, p.WinningEpochs,
		num(p.ClosedRealizedPnL), num(p.BestClosedPnL), num(p.WorstClosedPnL),
		p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update position: %w", err)
	}

	u.current = *p
	u.current.WalletID = u.walletID
	return nil
}

func (u *ledgerUnit) AppendEvent(ctx context.Context, e *domain.LedgerEvent) error {
	if e == nil || e.EventID == "" {
		return storage.ErrInvalidInput
	}

	_, err := u.tx.Exec(ctx, `
		INSERT INTO ledger_events (
			event_id, wallet_id, token_id, wallet_address, mint, signature, side,
			token_amount, quote_amount, quote_mint, unit_price, fee,
			timestamp_ms, slot, leg_index, order_id, partial_fill_index, source
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8::text::numeric, $9::text::numeric, $10, $11::text::numeric, $12::text::numeric,
			$13, $14, $15, $16, $17, $18
		)
	`,
		e.EventID, u.walletID, u.tokenID, e.WalletAddress, e.Mint, e.Signature, string(e.Side),
		num(e.TokenAmount), num(e.QuoteAmount), e.QuoteMint, num(e.UnitPrice), num(e.Fee),
		e.Timestamp, e.Slot, e.LegIndex, e.OrderID, e.PartialFillIndex, e.Source,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert ledger event: %w", err)
	}
	return nil
}

func (u *ledgerUnit) RefreshWallet(ctx context.Context, fn func(*domain.Wallet, []*domain.Position)) error {
	w, err := scanWallet(u.tx.QueryRow(ctx, `
		SELECT `+walletColumns+`
		FROM wallets
		WHERE id = $1
		FOR UPDATE
	`, u.walletID))
	if err != nil {
		return fmt.Errorf("lock wallet: %w", err)
	}

	rows, err := u.tx.Query(ctx, `
		SELECT `+positionColumns+`
		FROM positions
		WHERE wallet_id = $1
		ORDER BY mint
	`, u.walletID)
	if err != nil {
		return fmt.Errorf("load wallet positions: %w", err)
	}
	var positions []*domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			rows.Close()
			return err
		}
		positions = append(positions, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	fn(w, positions)

	_, err = u.tx.Exec(ctx, `
		UPDATE wallets SET
			total_trades = $2,
			total_profit_loss = $3::text::numeric,
			total_invested = $4::text::numeric,
			win_rate = $5,
			avg_profit_per_trade = $6::text::numeric,
			best_trade = $7::text::numeric,
			worst_trade = $8::text::numeric,
			first_seen_ms = $9,
			last_seen_ms = $10,
			tags = $11,
			updated_at_ms = $12
		WHERE id = $1
	`,
		u.walletID, w.TotalTrades, num(w.TotalProfitLoss), num(w.TotalInvested), w.WinRate,
		num(w.AvgProfitPerTrade), num(w.BestTrade), num(w.WorstTrade),
		w.FirstSeen, w.LastSeen, nonNilTags(w.Tags), w.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update wallet: %w", err)
	}
	return nil
}

func (u *ledgerUnit) Newest(ctx context.Context) (*domain.LedgerEvent, error) {
	e, err := scanEvent(u.tx.QueryRow(ctx, `
		SELECT `+eventColumns+`
		FROM (
			SELECT `+pairEventFields+` FROM ledger_events WHERE wallet_address = $1 AND mint = $2
			UNION ALL
			SELECT `+pairEventFields+` FROM rejected_events WHERE wallet_address = $1 AND mint = $2
		) pair
		ORDER BY slot DESC, timestamp_ms DESC, signature DESC, leg_index DESC
		LIMIT 1
	`, u.current.WalletAddress, u.current.Mint))
	if isNotFoundError(err) {
		return nil, nil
	}
	return e, err
}

// Events reads through the transaction, so rows inserted by this unit are included.
func (u *ledgerUnit) Events(ctx context.Context) ([]*domain.LedgerEvent, error) {
	rows, err := u.tx.Query(ctx, `
		SELECT `+eventColumns+`
		FROM ledger_events
		WHERE wallet_address = $1 AND mint = $2
		ORDER BY slot, timestamp_ms, signature, leg_index
	`, u.current.WalletAddress, u.current.Mint)
	if err != nil {
		return nil, err
	}
	return collectEvents(rows)
}

func (u *ledgerUnit) Rejected(ctx context.Context) ([]*domain.RejectedEvent, error) {
	rows, err := u.tx.Query(ctx, `
		SELECT `+rejectedColumns+`
		FROM rejected_events
		WHERE wallet_address = $1 AND mint = $2
		ORDER BY slot, timestamp_ms, signature, leg_index
	`, u.current.WalletAddress, u.current.Mint)
	if err != nil {
		return nil, err
	}
	return collectRejected(rows)
}

func (u *ledgerUnit) Reinstate(ctx context.Context, rejectedID string) error {
	if rejectedID == "" {
		return storage.ErrInvalidInput
	}
	if _, err := u.tx.Exec(ctx, `DELETE FROM rejected_events WHERE id = $1`, rejectedID); err != nil {
		return fmt.Errorf("delete rejected event: %w", err)
	}
	return nil
}

func nonNilTags(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

func scanPosition(row pgx.Row) (*domain.Position, error) {
	var p domain.Position
	var status string
	err := row.Scan(
		&p.WalletID, &p.TokenID, &p.WalletAddress, &p.Mint, &p.Epoch,
		&p.TotalBought, &p.TotalSold, &p.CurrentBalance, &p.TotalCost, &p.AvgBuyPrice,
		&p.TotalRevenue, &p.AvgSellPrice, &p.RealizedPnL, &p.UnrealizedPnL, &status,
		&p.FirstBuyAt, &p.LastBuyAt, &p.LastSellAt, &p.BuyCount, &p.SellCount,
		&p.LifetimeInvested, &p.LifetimeRealizedPnL, &p.ClosedEpochs, &p.WinningEpochs,
		&p.ClosedRealizedPnL, &p.BestClosedPnL, &p.WorstClosedPnL, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Status = domain.PositionStatus(status)
	return &p, nil
}

func scanWallet(row pgx.Row) (*domain.Wallet, error) {
	var w domain.Wallet
	err := row.Scan(
		&w.ID, &w.Address, &w.TotalTrades, &w.TotalProfitLoss, &w.TotalInvested, &w.WinRate,
		&w.AvgProfitPerTrade, &w.BestTrade, &w.WorstTrade,
		&w.FirstSeen, &w.LastSeen, &w.Tags, &w.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func scanEvent(row pgx.Row) (*domain.LedgerEvent, error) {
	var e domain.LedgerEvent
	var side string
	err := row.Scan(
		&e.EventID, &e.WalletAddress, &e.Mint, &e.Signature, &side,
		&e.TokenAmount, &e.QuoteAmount, &e.QuoteMint, &e.UnitPrice, &e.Fee,
		&e.Timestamp, &e.Slot, &e.LegIndex, &e.OrderID, &e.PartialFillIndex, &e.Source,
	)
	if err != nil {
		return nil, err
	}
	e.Side = domain.TradeSide(side)
	return &e, nil
}

func collectEvents(rows pgx.Rows) ([]*domain.LedgerEvent, error) {
	defer rows.Close()

	var result []*domain.LedgerEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

func collectRejected(rows pgx.Rows) ([]*domain.RejectedEvent, error) {
	defer rows.Close()

	var result []*domain.RejectedEvent
	for rows.Next() {
		var r domain.RejectedEvent
		var side string
		e := &r.Event
		err := rows.Scan(
			&r.ID, &e.EventID, &e.WalletAddress, &e.Mint, &e.Signature, &side,
			&e.TokenAmount, &e.QuoteAmount, &e.QuoteMint, &e.UnitPrice, &e.Fee,
			&e.Timestamp, &e.Slot, &e.LegIndex, &e.OrderID, &e.PartialFillIndex, &e.Source,
			&r.Reason, &r.Balance, &r.RejectedAt,
		)
		if err != nil {
			return nil, err
		}
		e.Side = domain.TradeSide(side)
		result = append(result, &r)
	}
	return result, rows.Err()
}

// Verify interface compliance at compile time.
var _ storage.LedgerStore = (*LedgerStore)(nil)

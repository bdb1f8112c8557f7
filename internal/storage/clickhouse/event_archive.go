package clickhouse

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"solana-wallet-ledger/internal/domain"
	"solana-wallet-ledger/internal/storage"
)

// EventArchive implements storage.EventArchive using ClickHouse.
// The table is a ReplacingMergeTree keyed by event id; reads use FINAL so a
// reprocessed batch never shows up twice.
type EventArchive struct {
	conn *Conn
}

// NewEventArchive creates a new EventArchive.
func NewEventArchive(conn *Conn) *EventArchive {
	return &EventArchive{conn: conn}
}

// Compile-time interface check.
var _ storage.EventArchive = (*EventArchive)(nil)

// InsertBulk appends events in one batch.
func (a *EventArchive) InsertBulk(ctx context.Context, events []*domain.LedgerEvent) error {
	if len(events) == 0 {
		return nil
	}
	for _, e := range events {
		if e == nil || e.EventID == "" {
			return storage.ErrInvalidInput
		}
	}

	batch, err := a.conn.PrepareBatch(ctx, `
		INSERT INTO ledger_events (
			event_id, wallet_address, mint, signature, side,
			token_amount, quote_amount, quote_mint, unit_price, fee,
			timestamp_ms, slot, leg_index, order_id, partial_fill_index, source
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, e := range events {
		var pfi *uint16
		if e.PartialFillIndex != nil {
			v := uint16(*e.PartialFillIndex)
			pfi = &v
		}
		err = batch.Append(
			e.EventID, e.WalletAddress, e.Mint, e.Signature, string(e.Side),
			e.TokenAmount, e.QuoteAmount, e.QuoteMint, e.UnitPrice, e.Fee,
			e.Timestamp, e.Slot, uint16(e.LegIndex), e.OrderID, pfi, e.Source,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByPair returns the events of one pair in chronological order.
func (a *EventArchive) GetByPair(ctx context.Context, wallet, mint string) ([]*domain.LedgerEvent, error) {
	rows, err := a.conn.Query(ctx, `
		SELECT
			event_id, wallet_address, mint, signature, side,
			token_amount, quote_amount, quote_mint, unit_price, fee,
			timestamp_ms, slot, leg_index, order_id, partial_fill_index, source
		FROM ledger_events FINAL
		WHERE wallet_address = ? AND mint = ?
		ORDER BY slot ASC, timestamp_ms ASC, signature ASC, leg_index ASC
	`, wallet, mint)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var result []*domain.LedgerEvent
	for rows.Next() {
		var (
			e                        domain.LedgerEvent
			side                     string
			tokenAmount, quoteAmount decimal.Decimal
			unitPrice, fee           decimal.Decimal
			legIndex                 uint16
			orderID                  *string
			partialFillIndex         *uint16
		)
		err := rows.Scan(
			&e.EventID, &e.WalletAddress, &e.Mint, &e.Signature, &side,
			&tokenAmount, &quoteAmount, &e.QuoteMint, &unitPrice, &fee,
			&e.Timestamp, &e.Slot, &legIndex, &orderID, &partialFillIndex, &e.Source,
		)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		e.Side = domain.TradeSide(side)
		e.TokenAmount, e.QuoteAmount = tokenAmount, quoteAmount
		e.UnitPrice, e.Fee = unitPrice, fee
		e.LegIndex = int(legIndex)
		e.OrderID = orderID
		if partialFillIndex != nil {
			v := int(*partialFillIndex)
			e.PartialFillIndex = &v
		}
		result = append(result, &e)
	}

	return result, rows.Err()
}

// ListPairs returns every archived (wallet, mint) pair.
func (a *EventArchive) ListPairs(ctx context.Context) ([]domain.PositionKey, error) {
	rows, err := a.conn.Query(ctx, `
		SELECT DISTINCT wallet_address, mint
		FROM ledger_events
		ORDER BY wallet_address, mint
	`)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var keys []domain.PositionKey
	for rows.Next() {
		var k domain.PositionKey
		if err := rows.Scan(&k.WalletAddress, &k.Mint); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

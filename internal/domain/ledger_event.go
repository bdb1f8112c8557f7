package domain

import "github.com/shopspring/decimal"

// TradeSide is the direction of a ledger event.
type TradeSide string

const (
	SideBuy  TradeSide = "buy"
	SideSell TradeSide = "sell"
)

// IsValid checks if the side is a valid value.
func (s TradeSide) IsValid() bool {
	return s == SideBuy || s == SideSell
}

// LedgerEvent is an immutable trade fact. Positions are derived from the
// ordered sequence of ledger events for their (wallet, mint) pair.
type LedgerEvent struct {
	EventID          string // deterministic, see idhash.ComputeEventID
	WalletAddress    string
	Mint             string
	Signature        string
	Side             TradeSide
	TokenAmount      decimal.Decimal
	QuoteAmount      decimal.Decimal // excludes fee
	QuoteMint        string          // NativeSOL or a quote mint
	UnitPrice        decimal.Decimal
	Fee              decimal.Decimal
	Timestamp        int64 // block time (ms)
	Slot             int64
	LegIndex         int     // position of the leg inside its transaction, from 0
	OrderID          *string // shared by legs of one order, nullable
	PartialFillIndex *int    // 1-based within OrderID, nullable
	Source           string  // source name that observed the event
}

// Key returns the position key of the event. TokenID is resolved by the registry.
func (e *LedgerEvent) Key(tokenID int64) PositionKey {
	return PositionKey{WalletAddress: e.WalletAddress, Mint: e.Mint, TokenID: tokenID}
}

// Before orders events chronologically: slot, then timestamp, then signature, then leg.
func (e *LedgerEvent) Before(o *LedgerEvent) bool {
	if e.Slot != o.Slot {
		return e.Slot < o.Slot
	}
	if e.Timestamp != o.Timestamp {
		return e.Timestamp < o.Timestamp
	}
	if e.Signature != o.Signature {
		return e.Signature < o.Signature
	}
	return e.LegIndex < o.LegIndex
}

// RejectedEvent is a ledger event refused by the accounting state machine.
type RejectedEvent struct {
	ID         string
	Event      LedgerEvent
	Reason     string
	Balance    decimal.Decimal // position balance at the time of rejection
	RejectedAt int64           // ms
}

// PartialOrder aggregates the fills that share one order id.
type PartialOrder struct {
	OrderID       string
	WalletAddress string
	Mint          string
	Side          TradeSide
	Fills         int
	TokenAmount   decimal.Decimal
	QuoteAmount   decimal.Decimal
	Fee           decimal.Decimal
	FirstAt       int64 // ms
	LastAt        int64 // ms
}

// AvgPrice returns quote per token over all fills.
func (o *PartialOrder) AvgPrice() decimal.Decimal {
	if o.TokenAmount.IsZero() {
		return decimal.Zero
	}
	return o.QuoteAmount.DivRound(o.TokenAmount, 18)
}

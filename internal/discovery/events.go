package discovery

import (
	"github.com/shopspring/decimal"

	"solana-wallet-ledger/internal/domain"
	"solana-wallet-ledger/internal/idhash"
)

// Event is one classified fact extracted from a transaction.
// The set of implementations is closed: CreationEvent, BuyEvent, SellEvent.
type Event interface {
	TxSignature() string
	isEvent()
}

// CreationEvent reports a mint first observed in a pool/token creation.
type CreationEvent struct {
	Mint       string
	Decimals   int
	Program    string // source program address
	SourceName string
	Creator    string // fee payer of the creation transaction
	Signature  string
	Slot       int64
	Timestamp  int64 // ms
}

// Trade carries the fields shared by buys and sells.
type Trade struct {
	Wallet           string
	Mint             string
	Signature        string
	TokenAmount      decimal.Decimal
	QuoteAmount      decimal.Decimal
	QuoteMint        string
	UnitPrice        decimal.Decimal
	Fee              decimal.Decimal
	Slot             int64
	Timestamp        int64 // ms
	Leg              int
	OrderID          *string
	PartialFillIndex *int
}

// BuyEvent is a token increase paid for with quote asset.
type BuyEvent struct{ Trade }

// SellEvent is a token decrease paid out in quote asset.
type SellEvent struct{ Trade }

func (e CreationEvent) TxSignature() string { return e.Signature }
func (e BuyEvent) TxSignature() string      { return e.Signature }
func (e SellEvent) TxSignature() string     { return e.Signature }

func (CreationEvent) isEvent() {}
func (BuyEvent) isEvent()      {}
func (SellEvent) isEvent()     {}

// LedgerEvent converts the buy into a ledger fact observed by source.
func (e BuyEvent) LedgerEvent(source string) *domain.LedgerEvent {
	return e.Trade.ledgerEvent(domain.SideBuy, source)
}

// LedgerEvent converts the sell into a ledger fact observed by source.
func (e SellEvent) LedgerEvent(source string) *domain.LedgerEvent {
	return e.Trade.ledgerEvent(domain.SideSell, source)
}

func (t Trade) ledgerEvent(side domain.TradeSide, source string) *domain.LedgerEvent {
	return &domain.LedgerEvent{
		EventID:          idhash.ComputeEventID(t.Signature, t.Wallet, t.Mint, t.Leg),
		WalletAddress:    t.Wallet,
		Mint:             t.Mint,
		Signature:        t.Signature,
		Side:             side,
		TokenAmount:      t.TokenAmount,
		QuoteAmount:      t.QuoteAmount,
		QuoteMint:        t.QuoteMint,
		UnitPrice:        t.UnitPrice,
		Fee:              t.Fee,
		Timestamp:        t.Timestamp,
		Slot:             t.Slot,
		LegIndex:         t.Leg,
		OrderID:          t.OrderID,
		PartialFillIndex: t.PartialFillIndex,
		Source:           source,
	}
}

// Split separates classified events into creations and ledger events.
func Split(events []Event, source string) ([]CreationEvent, []*domain.LedgerEvent) {
	var creations []CreationEvent
	var trades []*domain.LedgerEvent
	for _, ev := range events {
		switch e := ev.(type) {
		case CreationEvent:
			creations = append(creations, e)
		case BuyEvent:
			trades = append(trades, e.LedgerEvent(source))
		case SellEvent:
			trades = append(trades, e.LedgerEvent(source))
		}
	}
	return creations, trades
}

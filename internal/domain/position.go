package domain

import "github.com/shopspring/decimal"

// PositionStatus is the accounting state of a position.
type PositionStatus string

const (
	PositionOpen    PositionStatus = "open"    // no sell in the current epoch
	PositionPartial PositionStatus = "partial" // some, not all, sold
	PositionClosed  PositionStatus = "closed"  // fully sold
)

// PositionKey identifies a position.
type PositionKey struct {
	WalletAddress string
	Mint          string
	TokenID       int64
}

// Position is the average-cost state of one (wallet, token) pair.
//
// Epoch fields restart when a closed position is bought again; lifetime
// fields accumulate across epochs and feed the wallet aggregates.
type Position struct {
	WalletAddress string
	Mint          string
	TokenID       int64
	WalletID      int64

	// Current epoch.
	Epoch          int
	TotalBought    decimal.Decimal
	TotalSold      decimal.Decimal
	CurrentBalance decimal.Decimal
	TotalCost      decimal.Decimal
	AvgBuyPrice    decimal.Decimal
	TotalRevenue   decimal.Decimal
	AvgSellPrice   decimal.Decimal
	RealizedPnL    decimal.Decimal
	UnrealizedPnL  decimal.Decimal
	Status         PositionStatus
	FirstBuyAt     *int64 // ms
	LastBuyAt      *int64 // ms
	LastSellAt     *int64 // ms

	// Lifetime.
	BuyCount            int
	SellCount           int
	LifetimeInvested    decimal.Decimal
	LifetimeRealizedPnL decimal.Decimal
	ClosedEpochs        int
	WinningEpochs       int
	ClosedRealizedPnL   decimal.Decimal // sum of realized P&L of closed epochs
	BestClosedPnL       decimal.Decimal // valid when ClosedEpochs > 0
	WorstClosedPnL      decimal.Decimal // valid when ClosedEpochs > 0

	UpdatedAt int64 // ms
}

// Key returns the position key.
func (p *Position) Key() PositionKey {
	return PositionKey{WalletAddress: p.WalletAddress, Mint: p.Mint, TokenID: p.TokenID}
}

// NewPosition returns an empty open position for key.
func NewPosition(key PositionKey) Position {
	return Position{
		WalletAddress: key.WalletAddress,
		Mint:          key.Mint,
		TokenID:       key.TokenID,
		Status:        PositionOpen,
	}
}

// IsEmpty reports whether no event has ever been applied.
func (p *Position) IsEmpty() bool {
	return p.BuyCount == 0 && p.SellCount == 0
}

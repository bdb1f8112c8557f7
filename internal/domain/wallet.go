package domain

import "github.com/shopspring/decimal"

// Wallet holds aggregate trading statistics for one on-chain address.
// Aggregates are always recomputed from the wallet's positions.
type Wallet struct {
	ID                int64
	Address           string
	TotalTrades       int
	TotalProfitLoss   decimal.Decimal
	TotalInvested     decimal.Decimal
	WinRate           float64 // fraction in [0, 1]
	AvgProfitPerTrade decimal.Decimal
	BestTrade         decimal.Decimal
	WorstTrade        decimal.Decimal
	FirstSeen         int64 // ms
	LastSeen          int64 // ms
	Tags              []string
	UpdatedAt         int64 // ms
}

// ROI returns total profit divided by total invested, zero when nothing was invested.
func (w *Wallet) ROI() decimal.Decimal {
	if w.TotalInvested.IsZero() {
		return decimal.Zero
	}
	return w.TotalProfitLoss.Div(w.TotalInvested)
}

// TrackedWallet is an operator-maintained watch list entry.
type TrackedWallet struct {
	Address   string
	Label     string
	Reason    string
	Active    bool
	CreatedAt int64 // ms
}

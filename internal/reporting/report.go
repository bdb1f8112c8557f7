package reporting

import "time"

// Report is the wallet analytics report.
type Report struct {
	GeneratedAt time.Time
	MinTrades   int

	Summary  Summary
	ROI      Distribution
	Traders  []TraderRow    // ordered by total P&L descending
	Wallet   *WalletSection // set when a single wallet was requested
	Rejected []RejectedRow  // newest first
}

// Summary describes the ranked population.
type Summary struct {
	Wallets       int
	TotalTrades   int
	ProfitableCnt int
	TotalPnL      string
	TotalInvested string
}

// TraderRow is one ranked wallet.
type TraderRow struct {
	Rank              int
	Address           string
	TotalTrades       int
	TotalPnL          string
	TotalInvested     string
	ROI               string
	WinRate           float64
	AvgProfitPerTrade string
	BestTrade         string
	WorstTrade        string
	Tags              []string
}

// WalletSection details one wallet.
type WalletSection struct {
	Trader    TraderRow
	Label     string // watch list label, empty when untracked
	Positions []PositionRow
}

// PositionRow is one position of the detailed wallet.
type PositionRow struct {
	Mint          string
	Status        string
	Epoch         int
	Balance       string
	AvgBuyPrice   string
	AvgSellPrice  string
	RealizedPnL   string
	UnrealizedPnL string
	Trades        int
}

// RejectedRow is one event refused by the ledger.
type RejectedRow struct {
	Wallet     string
	Mint       string
	Signature  string
	Amount     string
	Balance    string
	Reason     string
	RejectedAt int64 // ms
}

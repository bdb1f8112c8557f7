package ledger

import (
	"github.com/shopspring/decimal"

	"solana-wallet-ledger/internal/domain"
)

// WalletStats recomputes the aggregate figures of w from all of its positions.
// Every closed epoch counts as one closed position. Identity, tags and
// first/last seen timestamps are left alone.
func WalletStats(w *domain.Wallet, positions []*domain.Position) {
	var (
		trades   int
		closed   int
		winning  int
		pnl      = decimal.Zero
		invested = decimal.Zero
		closedPL = decimal.Zero
		best     decimal.Decimal
		worst    decimal.Decimal
		haveBest bool
	)

	for _, p := range positions {
		trades += p.BuyCount + p.SellCount
		pnl = pnl.Add(p.LifetimeRealizedPnL)
		invested = invested.Add(p.LifetimeInvested)

		if p.ClosedEpochs == 0 {
			continue
		}
		closed += p.ClosedEpochs
		winning += p.WinningEpochs
		closedPL = closedPL.Add(p.ClosedRealizedPnL)
		if !haveBest {
			best, worst, haveBest = p.BestClosedPnL, p.WorstClosedPnL, true
			continue
		}
		best = decimal.Max(best, p.BestClosedPnL)
		worst = decimal.Min(worst, p.WorstClosedPnL)
	}

	w.TotalTrades = trades
	w.TotalProfitLoss = pnl
	w.TotalInvested = invested
	w.WinRate = 0
	w.AvgProfitPerTrade = decimal.Zero
	w.BestTrade = decimal.Zero
	w.WorstTrade = decimal.Zero
	if closed > 0 {
		w.WinRate = float64(winning) / float64(closed)
		w.AvgProfitPerTrade = closedPL.DivRound(decimal.NewFromInt(int64(closed)), pricePrecision)
		w.BestTrade = best
		w.WorstTrade = worst
	}
}

// touchWallet widens the first/last seen window of w to include ts.
func touchWallet(w *domain.Wallet, ts int64) {
	if ts <= 0 {
		return
	}
	if w.FirstSeen == 0 || ts < w.FirstSeen {
		w.FirstSeen = ts
	}
	if ts > w.LastSeen {
		w.LastSeen = ts
	}
}

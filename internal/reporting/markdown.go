package reporting

import (
	"fmt"
	"strings"
	"time"
)

// RenderMarkdown renders report as Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	sb.WriteString("# Wallet Report\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))

	sb.WriteString("## Summary\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Minimum Trades | %d |\n", r.MinTrades))
	sb.WriteString(fmt.Sprintf("| Ranked Wallets | %d |\n", r.Summary.Wallets))
	sb.WriteString(fmt.Sprintf("| Profitable Wallets | %d |\n", r.Summary.ProfitableCnt))
	sb.WriteString(fmt.Sprintf("| Total Trades | %d |\n", r.Summary.TotalTrades))
	sb.WriteString(fmt.Sprintf("| Total P&L | %s |\n", r.Summary.TotalPnL))
	sb.WriteString(fmt.Sprintf("| Total Invested | %s |\n", r.Summary.TotalInvested))
	sb.WriteString(fmt.Sprintf("| ROI Mean | %s |\n", r.ROI.Mean))
	sb.WriteString(fmt.Sprintf("| ROI Median | %s |\n", r.ROI.Median))
	sb.WriteString(fmt.Sprintf("| ROI P10 / P90 | %s / %s |\n", r.ROI.P10, r.ROI.P90))
	sb.WriteString("\n")

	sb.WriteString("## Top Traders\n\n")
	if len(r.Traders) == 0 {
		sb.WriteString("No wallet meets the minimum trade count.\n\n")
	} else {
		sb.WriteString("| # | Wallet | Trades | P&L | Invested | ROI | Win Rate |\n")
		sb.WriteString("|---|--------|--------|-----|----------|-----|----------|\n")
		for _, t := range r.Traders {
			sb.WriteString(fmt.Sprintf("| %d | %s | %d | %s | %s | %s | %.2f%% |\n",
				t.Rank, t.Address, t.TotalTrades, t.TotalPnL, t.TotalInvested, t.ROI, t.WinRate*100))
		}
		sb.WriteString("\n")
	}

	if w := r.Wallet; w != nil {
		sb.WriteString(fmt.Sprintf("## Wallet %s\n\n", w.Trader.Address))
		if w.Label != "" {
			sb.WriteString(fmt.Sprintf("Watch list: %s\n\n", w.Label))
		}
		sb.WriteString(fmt.Sprintf("Trades: %d | P&L: %s | ROI: %s | Win rate: %.2f%% | Best: %s | Worst: %s\n\n",
			w.Trader.TotalTrades, w.Trader.TotalPnL, w.Trader.ROI, w.Trader.WinRate*100,
			w.Trader.BestTrade, w.Trader.WorstTrade))
		sb.WriteString("| Mint | Status | Epoch | Balance | Avg Buy | Avg Sell | Realized | Unrealized | Trades |\n")
		sb.WriteString("|------|--------|-------|---------|---------|----------|----------|------------|--------|\n")
		for _, p := range w.Positions {
			sb.WriteString(fmt.Sprintf("| %s | %s | %d | %s | %s | %s | %s | %s | %d |\n",
				p.Mint, p.Status, p.Epoch, p.Balance, p.AvgBuyPrice, p.AvgSellPrice,
				p.RealizedPnL, p.UnrealizedPnL, p.Trades))
		}
		sb.WriteString("\n")
	}

	if len(r.Rejected) > 0 {
		sb.WriteString("## Rejected Events\n\n")
		for _, rej := range r.Rejected {
			sb.WriteString(fmt.Sprintf("- %s %s sold %s with balance %s (%s, %s)\n",
				rej.Wallet, rej.Mint, rej.Amount, rej.Balance, rej.Reason, rej.Signature))
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

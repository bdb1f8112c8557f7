package reporting

import (
	"bytes"
	"encoding/csv"
	"strconv"
	"strings"
)

// RenderCSV renders ranked traders as CSV.
func RenderCSV(rows []TraderRow) string {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	_ = w.Write([]string{
		"rank", "address", "total_trades", "total_pnl", "total_invested", "roi",
		"win_rate", "avg_profit_per_trade", "best_trade", "worst_trade", "tags",
	})
	for _, r := range rows {
		_ = w.Write([]string{
			strconv.Itoa(r.Rank),
			r.Address,
			strconv.Itoa(r.TotalTrades),
			r.TotalPnL,
			r.TotalInvested,
			r.ROI,
			strconv.FormatFloat(r.WinRate, 'f', 6, 64),
			r.AvgProfitPerTrade,
			r.BestTrade,
			r.WorstTrade,
			strings.Join(r.Tags, ";"),
		})
	}
	w.Flush()
	return buf.String()
}

package reporting

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"solana-wallet-ledger/internal/domain"
	"solana-wallet-ledger/internal/ledger"
)

// roiPlaces is the precision ROI figures are printed with.
const roiPlaces = 4

// Options selects what a report contains.
type Options struct {
	MinTrades     int    // default ledger.DefaultMinTrades
	Limit         int    // max ranked wallets, 0 for all
	Wallet        string // detail section for this wallet, optional
	RejectedLimit int    // recent rejected events, 0 omits the section
}

// Generator produces reports from the ledger read side.
type Generator struct {
	analytics *ledger.Analytics
	now       func() time.Time // Injectable clock for deterministic output
}

// NewGenerator creates a new report generator.
func NewGenerator(analytics *ledger.Analytics) *Generator {
	return &Generator{
		analytics: analytics,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate builds a report. A requested wallet that never traded yields
// storage.ErrNotFound.
func (g *Generator) Generate(ctx context.Context, opts Options) (*Report, error) {
	if opts.MinTrades <= 0 {
		opts.MinTrades = ledger.DefaultMinTrades
	}

	top, err := g.analytics.TopTraders(ctx, opts.MinTrades, opts.Limit)
	if err != nil {
		return nil, err
	}

	r := &Report{
		GeneratedAt: g.now(),
		MinTrades:   opts.MinTrades,
		Traders:     make([]TraderRow, 0, len(top)),
	}

	pnl, invested := decimal.Zero, decimal.Zero
	rois := make([]decimal.Decimal, 0, len(top))
	for i, t := range top {
		rois = append(rois, t.ROI)
		r.Traders = append(r.Traders, traderRow(i+1, t.Wallet))
		r.Summary.TotalTrades += t.Wallet.TotalTrades
		if t.Wallet.TotalProfitLoss.IsPositive() {
			r.Summary.ProfitableCnt++
		}
		pnl = pnl.Add(t.Wallet.TotalProfitLoss)
		invested = invested.Add(t.Wallet.TotalInvested)
	}
	r.Summary.Wallets = len(top)
	r.Summary.TotalPnL = pnl.String()
	r.Summary.TotalInvested = invested.String()
	r.ROI = roiDistribution(rois)

	if opts.Wallet != "" {
		detail, err := g.analytics.WalletDetail(ctx, opts.Wallet)
		if err != nil {
			return nil, fmt.Errorf("wallet %s: %w", opts.Wallet, err)
		}
		r.Wallet = walletSection(detail)
	}

	if opts.RejectedLimit > 0 {
		rejected, err := g.analytics.Rejected(ctx, opts.RejectedLimit)
		if err != nil {
			return nil, err
		}
		for _, rej := range rejected {
			r.Rejected = append(r.Rejected, RejectedRow{
				Wallet:     rej.Event.WalletAddress,
				Mint:       rej.Event.Mint,
				Signature:  rej.Event.Signature,
				Amount:     rej.Event.TokenAmount.String(),
				Balance:    rej.Balance.String(),
				Reason:     rej.Reason,
				RejectedAt: rej.RejectedAt,
			})
		}
	}

	return r, nil
}

func traderRow(rank int, w *domain.Wallet) TraderRow {
	return TraderRow{
		Rank:              rank,
		Address:           w.Address,
		TotalTrades:       w.TotalTrades,
		TotalPnL:          w.TotalProfitLoss.String(),
		TotalInvested:     w.TotalInvested.String(),
		ROI:               w.ROI().StringFixed(roiPlaces),
		WinRate:           w.WinRate,
		AvgProfitPerTrade: w.AvgProfitPerTrade.String(),
		BestTrade:         w.BestTrade.String(),
		WorstTrade:        w.WorstTrade.String(),
		Tags:              w.Tags,
	}
}

func walletSection(d *ledger.WalletDetail) *WalletSection {
	s := &WalletSection{Trader: traderRow(0, d.Wallet)}
	if d.Tracked != nil {
		s.Label = d.Tracked.Label
	}
	for _, p := range d.Positions {
		s.Positions = append(s.Positions, PositionRow{
			Mint:          p.Mint,
			Status:        string(p.Status),
			Epoch:         p.Epoch,
			Balance:       p.CurrentBalance.String(),
			AvgBuyPrice:   p.AvgBuyPrice.String(),
			AvgSellPrice:  p.AvgSellPrice.String(),
			RealizedPnL:   p.RealizedPnL.String(),
			UnrealizedPnL: p.UnrealizedPnL.String(),
			Trades:        p.BuyCount + p.SellCount,
		})
	}
	return s
}

package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"solana-wallet-ledger/internal/domain"
	"solana-wallet-ledger/internal/ledger"
	"solana-wallet-ledger/internal/storage"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

type api struct {
	analytics *ledger.Analytics
	log       zerolog.Logger
}

func newAPI(analytics *ledger.Analytics, logger zerolog.Logger) *api {
	return &api{analytics: analytics, log: logger.With().Str("component", "api").Logger()}
}

func (a *api) register(mux *http.ServeMux) {
	mux.HandleFunc("GET /wallets/top", a.topTraders)
	mux.HandleFunc("GET /wallets/{address}", a.walletDetail)
	mux.HandleFunc("GET /wallets/{address}/orders", a.walletOrders)
	mux.HandleFunc("GET /orders", a.orders)
	mux.HandleFunc("GET /activity", a.activity)
	mux.HandleFunc("GET /rejected", a.rejected)
}

type walletView struct {
	Address           string          `json:"address"`
	TotalTrades       int             `json:"total_trades"`
	TotalProfitLoss   decimal.Decimal `json:"total_profit_loss"`
	TotalInvested     decimal.Decimal `json:"total_invested"`
	ROI               decimal.Decimal `json:"roi"`
	WinRate           float64         `json:"win_rate"`
	AvgProfitPerTrade decimal.Decimal `json:"avg_profit_per_trade"`
	BestTrade         decimal.Decimal `json:"best_trade"`
	WorstTrade        decimal.Decimal `json:"worst_trade"`
	FirstSeen         int64           `json:"first_seen"`
	LastSeen          int64           `json:"last_seen"`
	Tags              []string        `json:"tags,omitempty"`
}

type positionView struct {
	Mint           string                `json:"mint"`
	Status         domain.PositionStatus `json:"status"`
	Epoch          int                   `json:"epoch"`
	CurrentBalance decimal.Decimal       `json:"current_balance"`
	TotalCost      decimal.Decimal       `json:"total_cost"`
	AvgBuyPrice    decimal.Decimal       `json:"avg_buy_price"`
	AvgSellPrice   decimal.Decimal       `json:"avg_sell_price"`
	RealizedPnL    decimal.Decimal       `json:"realized_pnl"`
	UnrealizedPnL  decimal.Decimal       `json:"unrealized_pnl"`
	BuyCount       int                   `json:"buy_count"`
	SellCount      int                   `json:"sell_count"`
	UpdatedAt      int64                 `json:"updated_at"`
}

type walletDetailView struct {
	Wallet    walletView     `json:"wallet"`
	Positions []positionView `json:"positions"`
	Label     string         `json:"label,omitempty"`
	Tracked   bool           `json:"tracked"`
}

type rejectedView struct {
	ID         string          `json:"id"`
	EventID    string          `json:"event_id"`
	Wallet     string          `json:"wallet"`
	Mint       string          `json:"mint"`
	Signature  string          `json:"signature"`
	Amount     decimal.Decimal `json:"amount"`
	Balance    decimal.Decimal `json:"balance"`
	Reason     string          `json:"reason"`
	RejectedAt int64           `json:"rejected_at"`
}

type eventView struct {
	EventID          string           `json:"event_id"`
	Wallet           string           `json:"wallet"`
	Mint             string           `json:"mint"`
	Signature        string           `json:"signature"`
	Side             domain.TradeSide `json:"side"`
	Amount           decimal.Decimal  `json:"amount"`
	Quote            decimal.Decimal  `json:"quote"`
	UnitPrice        decimal.Decimal  `json:"unit_price"`
	Fee              decimal.Decimal  `json:"fee"`
	Timestamp        int64            `json:"timestamp"`
	Slot             int64            `json:"slot"`
	OrderID          *string          `json:"order_id,omitempty"`
	PartialFillIndex *int             `json:"partial_fill_index,omitempty"`
	Source           string           `json:"source"`
}

type orderView struct {
	OrderID  string           `json:"order_id"`
	Wallet   string           `json:"wallet"`
	Mint     string           `json:"mint"`
	Side     domain.TradeSide `json:"side"`
	Fills    int              `json:"fills"`
	Amount   decimal.Decimal  `json:"amount"`
	Quote    decimal.Decimal  `json:"quote"`
	Fee      decimal.Decimal  `json:"fee"`
	AvgPrice decimal.Decimal  `json:"avg_price"`
	FirstAt  int64            `json:"first_at"`
	LastAt   int64            `json:"last_at"`
}

func newWalletView(w *domain.Wallet) walletView {
	return walletView{
		Address:           w.Address,
		TotalTrades:       w.TotalTrades,
		TotalProfitLoss:   w.TotalProfitLoss,
		TotalInvested:     w.TotalInvested,
		ROI:               w.ROI(),
		WinRate:           w.WinRate,
		AvgProfitPerTrade: w.AvgProfitPerTrade,
		BestTrade:         w.BestTrade,
		WorstTrade:        w.WorstTrade,
		FirstSeen:         w.FirstSeen,
		LastSeen:          w.LastSeen,
		Tags:              w.Tags,
	}
}

func (a *api) topTraders(w http.ResponseWriter, r *http.Request) {
	minTrades, err := intParam(r, "min_trades", ledger.DefaultMinTrades)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	limit, err := limitParam(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	top, err := a.analytics.TopTraders(r.Context(), minTrades, limit)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	out := make([]walletView, 0, len(top))
	for _, t := range top {
		out = append(out, newWalletView(t.Wallet))
	}
	a.write(w, out)
}

func (a *api) walletDetail(w http.ResponseWriter, r *http.Request) {
	detail, err := a.analytics.WalletDetail(r.Context(), r.PathValue("address"))
	if errors.Is(err, storage.ErrNotFound) {
		http.Error(w, "wallet not found", http.StatusNotFound)
		return
	}
	if err != nil {
		a.fail(w, r, err)
		return
	}

	view := walletDetailView{
		Wallet:    newWalletView(detail.Wallet),
		Positions: make([]positionView, 0, len(detail.Positions)),
	}
	for _, p := range detail.Positions {
		view.Positions = append(view.Positions, positionView{
			Mint:           p.Mint,
			Status:         p.Status,
			Epoch:          p.Epoch,
			CurrentBalance: p.CurrentBalance,
			TotalCost:      p.TotalCost,
			AvgBuyPrice:    p.AvgBuyPrice,
			AvgSellPrice:   p.AvgSellPrice,
			RealizedPnL:    p.RealizedPnL,
			UnrealizedPnL:  p.UnrealizedPnL,
			BuyCount:       p.BuyCount,
			SellCount:      p.SellCount,
			UpdatedAt:      p.UpdatedAt,
		})
	}
	if detail.Tracked != nil {
		view.Tracked = detail.Tracked.Active
		view.Label = detail.Tracked.Label
	}
	a.write(w, view)
}

func (a *api) activity(w http.ResponseWriter, r *http.Request) {
	hours, err := intParam(r, "hours", ledger.DefaultActivityHours)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	limit, err := limitParam(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	events, err := a.analytics.RecentActivity(r.Context(), hours, limit)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	out := make([]eventView, 0, len(events))
	for _, e := range events {
		out = append(out, eventView{
			EventID:          e.EventID,
			Wallet:           e.WalletAddress,
			Mint:             e.Mint,
			Signature:        e.Signature,
			Side:             e.Side,
			Amount:           e.TokenAmount,
			Quote:            e.QuoteAmount,
			UnitPrice:        e.UnitPrice,
			Fee:              e.Fee,
			Timestamp:        e.Timestamp,
			Slot:             e.Slot,
			OrderID:          e.OrderID,
			PartialFillIndex: e.PartialFillIndex,
			Source:           e.Source,
		})
	}
	a.write(w, out)
}

func (a *api) orders(w http.ResponseWriter, r *http.Request) {
	a.listOrders(w, r, "")
}

func (a *api) walletOrders(w http.ResponseWriter, r *http.Request) {
	a.listOrders(w, r, r.PathValue("address"))
}

func (a *api) listOrders(w http.ResponseWriter, r *http.Request, wallet string) {
	limit, err := limitParam(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	orders, err := a.analytics.PartialOrders(r.Context(), wallet, limit)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	out := make([]orderView, 0, len(orders))
	for _, o := range orders {
		out = append(out, orderView{
			OrderID:  o.OrderID,
			Wallet:   o.WalletAddress,
			Mint:     o.Mint,
			Side:     o.Side,
			Fills:    o.Fills,
			Amount:   o.TokenAmount,
			Quote:    o.QuoteAmount,
			Fee:      o.Fee,
			AvgPrice: o.AvgPrice(),
			FirstAt:  o.FirstAt,
			LastAt:   o.LastAt,
		})
	}
	a.write(w, out)
}

func (a *api) rejected(w http.ResponseWriter, r *http.Request) {
	limit, err := limitParam(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	rejected, err := a.analytics.Rejected(r.Context(), limit)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	out := make([]rejectedView, 0, len(rejected))
	for _, rej := range rejected {
		out = append(out, rejectedView{
			ID:         rej.ID,
			EventID:    rej.Event.EventID,
			Wallet:     rej.Event.WalletAddress,
			Mint:       rej.Event.Mint,
			Signature:  rej.Event.Signature,
			Amount:     rej.Event.TokenAmount,
			Balance:    rej.Balance,
			Reason:     rej.Reason,
			RejectedAt: rej.RejectedAt,
		})
	}
	a.write(w, out)
}

func (a *api) write(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.log.Warn().Err(err).Msg("encode response")
	}
}

func (a *api) fail(w http.ResponseWriter, r *http.Request, err error) {
	a.log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func intParam(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, errors.New("invalid " + name)
	}
	return n, nil
}

func limitParam(r *http.Request) (int, error) {
	limit, err := intParam(r, "limit", defaultListLimit)
	if err != nil {
		return 0, err
	}
	if limit == 0 || limit > maxListLimit {
		limit = maxListLimit
	}
	return limit, nil
}

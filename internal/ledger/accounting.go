// Package ledger implements average-cost position accounting for wallets.
package ledger

import (
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"solana-wallet-ledger/internal/domain"
)

// Accounting errors.
var (
	// ErrOverSell is returned when a sell exceeds the current balance.
	ErrOverSell = errors.New("sell exceeds position balance")

	// ErrDuplicateEvent is returned when an event id is already recorded.
	ErrDuplicateEvent = errors.New("duplicate ledger event")

	// ErrInvalidEvent is returned for events that can never be applied.
	ErrInvalidEvent = errors.New("invalid ledger event")
)

// pricePrecision is the number of decimal places kept for average prices.
const pricePrecision = 18

// ApplyEvent folds e into p. On error p is left unchanged.
//
// Averages are recomputed from cumulative totals so that applying events
// one at a time and replaying them from an empty position give identical results.
func ApplyEvent(p *domain.Position, e *domain.LedgerEvent) error {
	if err := validateEvent(p, e); err != nil {
		return err
	}

	switch e.Side {
	case domain.SideBuy:
		applyBuy(p, e)
	case domain.SideSell:
		if e.TokenAmount.GreaterThan(p.CurrentBalance) {
			return fmt.Errorf("%w: sell %s, balance %s", ErrOverSell, e.TokenAmount, p.CurrentBalance)
		}
		applySell(p, e)
	}

	if e.Timestamp > p.UpdatedAt {
		p.UpdatedAt = e.Timestamp
	}
	return nil
}

func validateEvent(p *domain.Position, e *domain.LedgerEvent) error {
	switch {
	case e == nil:
		return fmt.Errorf("%w: nil event", ErrInvalidEvent)
	case e.EventID == "":
		return fmt.Errorf("%w: empty event id", ErrInvalidEvent)
	case !e.Side.IsValid():
		return fmt.Errorf("%w: side %q", ErrInvalidEvent, e.Side)
	case !e.TokenAmount.IsPositive():
		return fmt.Errorf("%w: token amount %s", ErrInvalidEvent, e.TokenAmount)
	case e.QuoteAmount.IsNegative(), e.Fee.IsNegative(), e.UnitPrice.IsNegative():
		return fmt.Errorf("%w: negative quote, fee or price", ErrInvalidEvent)
	case e.WalletAddress != p.WalletAddress || e.Mint != p.Mint:
		return fmt.Errorf("%w: event %s/%s applied to position %s/%s",
			ErrInvalidEvent, e.WalletAddress, e.Mint, p.WalletAddress, p.Mint)
	}
	return nil
}

func applyBuy(p *domain.Position, e *domain.LedgerEvent) {
	if p.Status == domain.PositionClosed {
		startEpoch(p)
	}
	if p.Epoch == 0 {
		p.Epoch = 1
	}

	cost := e.QuoteAmount.Add(e.Fee)
	p.TotalCost = p.TotalCost.Add(cost)
	p.TotalBought = p.TotalBought.Add(e.TokenAmount)
	p.CurrentBalance = p.CurrentBalance.Add(e.TokenAmount)
	p.AvgBuyPrice = p.TotalCost.DivRound(p.TotalBought, pricePrecision)

	ts := e.Timestamp
	if p.FirstBuyAt == nil {
		p.FirstBuyAt = &ts
	}
	p.LastBuyAt = &ts

	p.BuyCount++
	p.LifetimeInvested = p.LifetimeInvested.Add(cost)

	if p.TotalSold.IsPositive() {
		p.Status = domain.PositionPartial
	} else {
		p.Status = domain.PositionOpen
	}
}

func applySell(p *domain.Position, e *domain.LedgerEvent) {
	if p.Epoch == 0 {
		p.Epoch = 1
	}

	gain := e.UnitPrice.Sub(p.AvgBuyPrice).Mul(e.TokenAmount)
	p.RealizedPnL = p.RealizedPnL.Add(gain)
	p.LifetimeRealizedPnL = p.LifetimeRealizedPnL.Add(gain)

	p.TotalSold = p.TotalSold.Add(e.TokenAmount)
	p.CurrentBalance = p.CurrentBalance.Sub(e.TokenAmount)
	p.TotalRevenue = p.TotalRevenue.Add(e.QuoteAmount).Sub(e.Fee)
	p.AvgSellPrice = p.TotalRevenue.DivRound(p.TotalSold, pricePrecision)

	ts := e.Timestamp
	p.LastSellAt = &ts
	p.SellCount++

	if !p.CurrentBalance.IsZero() {
		p.Status = domain.PositionPartial
		return
	}
	p.Status = domain.PositionClosed
	p.UnrealizedPnL = decimal.Zero
	closeEpoch(p)
}

func closeEpoch(p *domain.Position) {
	pnl := p.RealizedPnL
	if p.ClosedEpochs == 0 {
		p.BestClosedPnL = pnl
		p.WorstClosedPnL = pnl
	} else {
		p.BestClosedPnL = decimal.Max(p.BestClosedPnL, pnl)
		p.WorstClosedPnL = decimal.Min(p.WorstClosedPnL, pnl)
	}
	p.ClosedEpochs++
	p.ClosedRealizedPnL = p.ClosedRealizedPnL.Add(pnl)
	if pnl.IsPositive() {
		p.WinningEpochs++
	}
}

// startEpoch resets the per-epoch figures of a closed position. Lifetime
// figures carry over.
func startEpoch(p *domain.Position) {
	p.Epoch++
	p.TotalBought = decimal.Zero
	p.TotalSold = decimal.Zero
	p.CurrentBalance = decimal.Zero
	p.TotalCost = decimal.Zero
	p.AvgBuyPrice = decimal.Zero
	p.TotalRevenue = decimal.Zero
	p.AvgSellPrice = decimal.Zero
	p.RealizedPnL = decimal.Zero
	p.UnrealizedPnL = decimal.Zero
	p.FirstBuyAt = nil
	p.LastBuyAt = nil
	p.LastSellAt = nil
	p.Status = domain.PositionOpen
}

// Replay folds events into an empty position for key in chronological order.
// Oversells are skipped exactly as the live path rejects them and are returned.
// Repeated event ids are applied once.
func Replay(key domain.PositionKey, events []*domain.LedgerEvent) (domain.Position, []*domain.LedgerEvent, error) {
	ordered := make([]*domain.LedgerEvent, len(events))
	copy(ordered, events)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Before(ordered[j]) })

	p := domain.NewPosition(key)
	seen := make(map[string]struct{}, len(ordered))
	var rejected []*domain.LedgerEvent

	for _, e := range ordered {
		if _, dup := seen[e.EventID]; dup {
			continue
		}
		if err := ApplyEvent(&p, e); err != nil {
			if errors.Is(err, ErrOverSell) {
				rejected = append(rejected, e)
				continue
			}
			return domain.Position{}, nil, fmt.Errorf("replay %s: %w", e.EventID, err)
		}
		seen[e.EventID] = struct{}{}
	}
	return p, rejected, nil
}

// SameAccounting reports whether a and b carry identical accounting figures.
// Identity, unrealized P&L and timestamps of the last update are ignored.
func SameAccounting(a, b *domain.Position) bool {
	decimals := [][2]decimal.Decimal{
		{a.TotalBought, b.TotalBought},
		{a.TotalSold, b.TotalSold},
		{a.CurrentBalance, b.CurrentBalance},
		{a.TotalCost, b.TotalCost},
		{a.AvgBuyPrice, b.AvgBuyPrice},
		{a.TotalRevenue, b.TotalRevenue},
		{a.AvgSellPrice, b.AvgSellPrice},
		{a.RealizedPnL, b.RealizedPnL},
		{a.LifetimeInvested, b.LifetimeInvested},
		{a.LifetimeRealizedPnL, b.LifetimeRealizedPnL},
		{a.ClosedRealizedPnL, b.ClosedRealizedPnL},
		{a.BestClosedPnL, b.BestClosedPnL},
		{a.WorstClosedPnL, b.WorstClosedPnL},
	}
	for _, pair := range decimals {
		if !pair[0].Equal(pair[1]) {
			return false
		}
	}
	return a.Epoch == b.Epoch &&
		a.Status == b.Status &&
		a.BuyCount == b.BuyCount &&
		a.SellCount == b.SellCount &&
		a.ClosedEpochs == b.ClosedEpochs &&
		a.WinningEpochs == b.WinningEpochs &&
		equalTime(a.FirstBuyAt, b.FirstBuyAt) &&
		equalTime(a.LastBuyAt, b.LastBuyAt) &&
		equalTime(a.LastSellAt, b.LastSellAt)
}

func equalTime(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

package discovery

import (
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"solana-wallet-ledger/internal/domain"
	"solana-wallet-ledger/internal/idhash"
	"solana-wallet-ledger/internal/solana"
)

// ErrClassificationAmbiguous is returned when a transaction yields nothing
// classifiable or its balance data is malformed.
var ErrClassificationAmbiguous = errors.New("classification ambiguous")

// pricePrecision is the number of decimal places kept when dividing quote by tokens.
const pricePrecision = 18

// Classifier turns confirmed transactions into typed events.
// It has no side effects and is safe for concurrent use.
type Classifier struct {
	quoteMints map[string]bool
	quoteOrder []string
}

// NewClassifier creates a classifier treating quoteMints as the price side
// of trades. Nil uses domain.DefaultQuoteMints.
func NewClassifier(quoteMints []string) *Classifier {
	if quoteMints == nil {
		quoteMints = domain.DefaultQuoteMints()
	}
	c := &Classifier{quoteMints: make(map[string]bool, len(quoteMints))}
	for _, m := range quoteMints {
		if !c.quoteMints[m] {
			c.quoteMints[m] = true
			c.quoteOrder = append(c.quoteOrder, m)
		}
	}
	return c
}

// IsQuoteMint reports whether mint is a configured quote asset.
func (c *Classifier) IsQuoteMint(mint string) bool {
	return c.quoteMints[mint]
}

// Classify extracts creation, buy and sell events from tx.
//
// A failed transaction yields no events and no error. A successful one that
// yields nothing, or carries malformed balances, returns ErrClassificationAmbiguous.
func (c *Classifier) Classify(src *EventSource, tx *solana.Transaction) ([]Event, error) {
	if tx == nil || tx.Meta == nil {
		return nil, fmt.Errorf("%w: missing transaction meta", ErrClassificationAmbiguous)
	}
	if tx.Failed() {
		return nil, nil
	}

	tsMs := tx.BlockTime * 1000
	var events []Event

	if src != nil && src.MatchesCreation(tx.Meta.LogMessages) {
		for _, ev := range c.creations(src, tx, tsMs) {
			events = append(events, ev)
		}
	}

	trades, err := c.trades(tx, tsMs)
	if err != nil {
		return nil, err
	}
	events = append(events, trades...)

	if len(events) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrClassificationAmbiguous, tx.Signature)
	}
	return events, nil
}

// creations yields one event per distinct non-quote mint in post balances,
// first occurrence wins.
func (c *Classifier) creations(src *EventSource, tx *solana.Transaction, tsMs int64) []CreationEvent {
	creator := ""
	if tx.Message != nil && len(tx.Message.AccountKeys) > 0 {
		creator = tx.Message.AccountKeys[0]
	}

	seen := make(map[string]bool)
	var out []CreationEvent
	for _, b := range tx.Meta.PostTokenBalances {
		if b.Mint == "" || c.quoteMints[b.Mint] || seen[b.Mint] {
			continue
		}
		seen[b.Mint] = true
		out = append(out, CreationEvent{
			Mint:       b.Mint,
			Decimals:   b.Decimals,
			Program:    src.Address,
			SourceName: src.Name,
			Creator:    creator,
			Signature:  tx.Signature,
			Slot:       tx.Slot,
			Timestamp:  tsMs,
		})
	}
	return out
}

type ownerMint struct {
	owner string
	mint  string
}

type accountDelta struct {
	index int
	delta decimal.Decimal
}

// balanceDeltas computes per-account token deltas grouped by (owner, mint),
// in ascending account index order.
func balanceDeltas(meta *solana.TransactionMeta) (map[ownerMint][]accountDelta, []ownerMint, error) {
	pre := make(map[int]solana.TokenBalance, len(meta.PreTokenBalances))
	post := make(map[int]solana.TokenBalance, len(meta.PostTokenBalances))
	var indexes []int
	for _, b := range meta.PreTokenBalances {
		pre[b.AccountIndex] = b
		indexes = append(indexes, b.AccountIndex)
	}
	for _, b := range meta.PostTokenBalances {
		if _, ok := pre[b.AccountIndex]; !ok {
			indexes = append(indexes, b.AccountIndex)
		}
		post[b.AccountIndex] = b
	}
	sort.Ints(indexes)

	deltas := make(map[ownerMint][]accountDelta)
	var order []ownerMint
	for _, idx := range indexes {
		p, hasPre := pre[idx]
		q, hasPost := post[idx]

		ref := q
		if !hasPost {
			ref = p
		}
		if hasPre && hasPost && p.Mint != q.Mint {
			return nil, nil, fmt.Errorf("%w: account %d changed mint", ErrClassificationAmbiguous, idx)
		}
		if ref.Owner == "" || ref.Mint == "" {
			continue
		}

		before, err := tokenAmount(p, hasPre)
		if err != nil {
			return nil, nil, err
		}
		after, err := tokenAmount(q, hasPost)
		if err != nil {
			return nil, nil, err
		}

		d := after.Sub(before)
		if d.IsZero() {
			continue
		}

		key := ownerMint{owner: ref.Owner, mint: ref.Mint}
		if _, ok := deltas[key]; !ok {
			order = append(order, key)
		}
		deltas[key] = append(deltas[key], accountDelta{index: idx, delta: d})
	}
	return deltas, order, nil
}

func tokenAmount(b solana.TokenBalance, present bool) (decimal.Decimal, error) {
	if !present || b.Amount == "" {
		return decimal.Zero, nil
	}
	raw, err := decimal.NewFromString(b.Amount)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: token amount %q: %v", ErrClassificationAmbiguous, b.Amount, err)
	}
	return raw.Shift(-int32(b.Decimals)), nil
}

// trades classifies balance movements of on-curve owners.
func (c *Classifier) trades(tx *solana.Transaction, tsMs int64) ([]Event, error) {
	deltas, order, err := balanceDeltas(tx.Meta)
	if err != nil {
		return nil, err
	}

	var keys []string
	if tx.Message != nil {
		keys = tx.Message.AccountKeys
	}

	// Group mints per owner, preserving first appearance.
	byOwner := make(map[string][]ownerMint)
	var owners []string
	for _, k := range order {
		if _, ok := byOwner[k.owner]; !ok {
			owners = append(owners, k.owner)
		}
		byOwner[k.owner] = append(byOwner[k.owner], k)
	}

	var events []Event
	for _, owner := range owners {
		if !IsOnCurve(owner) {
			continue
		}

		var tokenKeys []ownerMint
		for _, k := range byOwner[owner] {
			if !c.quoteMints[k.mint] {
				tokenKeys = append(tokenKeys, k)
			}
		}
		// Quote can only be attributed when exactly one token moved.
		if len(tokenKeys) != 1 {
			continue
		}
		key := tokenKeys[0]

		quote, quoteMint := c.quoteDelta(owner, deltas, keys, tx.Meta)
		legs := tradeLegs(deltas[key])
		net := sumLegs(legs)

		var side domain.TradeSide
		switch {
		case net.IsPositive() && quote.IsNegative():
			side = domain.SideBuy
		case net.IsNegative() && quote.IsPositive():
			side = domain.SideSell
		default:
			continue
		}

		fee := decimal.Zero
		if len(keys) > 0 && keys[0] == owner && (quoteMint == domain.NativeSOL || quoteMint == domain.WSOLMint) {
			fee = decimal.New(int64(tx.Meta.Fee), -9)
		}

		events = append(events, buildLegs(side, owner, key.mint, quote.Abs(), quoteMint, fee, legs, tx, tsMs)...)
	}
	return events, nil
}

// quoteDelta returns the owner's quote movement: the first quote mint with a
// non-zero token delta, otherwise the native lamport delta excluding the fee.
func (c *Classifier) quoteDelta(owner string, deltas map[ownerMint][]accountDelta, keys []string, meta *solana.TransactionMeta) (decimal.Decimal, string) {
	for _, m := range c.quoteOrder {
		d := decimal.Zero
		for _, a := range deltas[ownerMint{owner: owner, mint: m}] {
			d = d.Add(a.delta)
		}
		if !d.IsZero() {
			return d, m
		}
	}

	for i, k := range keys {
		if k != owner {
			continue
		}
		if i >= len(meta.PreBalances) || i >= len(meta.PostBalances) {
			break
		}
		lamports := int64(meta.PostBalances[i]) - int64(meta.PreBalances[i])
		if i == 0 {
			lamports += int64(meta.Fee)
		}
		return decimal.New(lamports, -9), domain.NativeSOL
	}
	return decimal.Zero, ""
}

// tradeLegs returns one leg per account when all accounts moved the same way,
// otherwise a single netted leg.
func tradeLegs(accounts []accountDelta) []decimal.Decimal {
	if len(accounts) == 1 {
		return []decimal.Decimal{accounts[0].delta}
	}
	sign := accounts[0].delta.Sign()
	for _, a := range accounts[1:] {
		if a.delta.Sign() != sign {
			net := decimal.Zero
			for _, b := range accounts {
				net = net.Add(b.delta)
			}
			return []decimal.Decimal{net}
		}
	}
	legs := make([]decimal.Decimal, len(accounts))
	for i, a := range accounts {
		legs[i] = a.delta
	}
	return legs
}

func sumLegs(legs []decimal.Decimal) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range legs {
		sum = sum.Add(l)
	}
	return sum
}

// buildLegs splits quote across legs pro rata; the last leg takes the
// remainder so the legs sum exactly to quote. The fee rides on the first leg.
func buildLegs(side domain.TradeSide, owner, mint string, quote decimal.Decimal, quoteMint string, fee decimal.Decimal, legs []decimal.Decimal, tx *solana.Transaction, tsMs int64) []Event {
	total := sumLegs(legs).Abs()
	price := quote.DivRound(total, pricePrecision)

	var orderID *string
	if len(legs) > 1 {
		id := idhash.ComputeOrderID(tx.Signature, owner, mint)
		orderID = &id
	}

	events := make([]Event, 0, len(legs))
	allocated := decimal.Zero
	for i, leg := range legs {
		amount := leg.Abs()
		legQuote := quote.Sub(allocated)
		if i < len(legs)-1 {
			legQuote = quote.Mul(amount).DivRound(total, pricePrecision)
			allocated = allocated.Add(legQuote)
		}

		t := Trade{
			Wallet:      owner,
			Mint:        mint,
			Signature:   tx.Signature,
			TokenAmount: amount,
			QuoteAmount: legQuote,
			QuoteMint:   quoteMint,
			UnitPrice:   price,
			Fee:         decimal.Zero,
			Slot:        tx.Slot,
			Timestamp:   tsMs,
			Leg:         i,
			OrderID:     orderID,
		}
		if i == 0 {
			t.Fee = fee
		}
		if orderID != nil {
			idx := i + 1
			t.PartialFillIndex = &idx
		}

		if side == domain.SideBuy {
			events = append(events, BuyEvent{Trade: t})
		} else {
			events = append(events, SellEvent{Trade: t})
		}
	}
	return events
}

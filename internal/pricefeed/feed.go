// Package pricefeed supplies latest token prices and refreshes the
// unrealized P&L of open positions from them.
package pricefeed

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"
)

// Feed returns the latest known unit price (in quote asset) per mint.
// Mints without a price are omitted from the result.
type Feed interface {
	Prices(ctx context.Context, mints []string) (map[string]decimal.Decimal, error)
}

// StaticFeed is an in-memory Feed. Used in tests and for manual marks.
type StaticFeed struct {
	mu     sync.RWMutex
	prices map[string]decimal.Decimal
}

// NewStaticFeed creates a feed holding prices.
func NewStaticFeed(prices map[string]decimal.Decimal) *StaticFeed {
	f := &StaticFeed{prices: make(map[string]decimal.Decimal, len(prices))}
	for mint, p := range prices {
		f.prices[mint] = p
	}
	return f
}

// Set stores the price of mint.
func (f *StaticFeed) Set(mint string, price decimal.Decimal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prices[mint] = price
}

// Prices returns the stored prices of mints.
func (f *StaticFeed) Prices(_ context.Context, mints []string) (map[string]decimal.Decimal, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make(map[string]decimal.Decimal, len(mints))
	for _, m := range mints {
		if p, ok := f.prices[m]; ok {
			out[m] = p
		}
	}
	return out, nil
}

var (
	_ Feed = (*StaticFeed)(nil)
	_ Feed = (*RedisFeed)(nil)
)

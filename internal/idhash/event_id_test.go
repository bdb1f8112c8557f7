package idhash

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeEventID(t *testing.T) {
	tests := []struct {
		name      string
		signature string
		wallet    string
		mint      string
		leg       int
	}{
		{name: "first leg", signature: "Sig111", wallet: "WalletA", mint: "MintA", leg: 0},
		{name: "second leg", signature: "Sig111", wallet: "WalletA", mint: "MintA", leg: 1},
		{name: "other wallet", signature: "Sig111", wallet: "WalletB", mint: "MintA", leg: 0},
	}

	seen := make(map[string]string)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := ComputeEventID(tt.signature, tt.wallet, tt.mint, tt.leg)
			assert.Len(t, id, 64)
			assert.Equal(t, id, ComputeEventID(tt.signature, tt.wallet, tt.mint, tt.leg), "must be deterministic")

			if other, ok := seen[id]; ok {
				t.Errorf("collision between %q and %q", tt.name, other)
			}
			seen[id] = tt.name
		})
	}
}

func TestComputeOrderID(t *testing.T) {
	a := ComputeOrderID("Sig1", "WalletA", "MintA")
	b := ComputeOrderID("Sig1", "WalletA", "MintA")
	c := ComputeOrderID("Sig2", "WalletA", "MintA")

	assert.Len(t, a, 32)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestWindowOrderID(t *testing.T) {
	id := WindowOrderID("9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin", "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263", "buy", 5761234)
	assert.Equal(t, "9xQeWvG8_DezXAZ8z_buy_5761234", id)

	short := WindowOrderID("abc", "de", "sell", 1)
	assert.Equal(t, "abc_de_sell_1", short)
}

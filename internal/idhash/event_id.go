package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputeEventID computes a deterministic ledger event id using SHA256.
// Formula: SHA256(signature|wallet|mint|leg_index)
// Returns hex-encoded hash (64 characters).
func ComputeEventID(signature, wallet, mint string, legIndex int) string {
	data := fmt.Sprintf("%s|%s|%s|%d", signature, wallet, mint, legIndex)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// ComputeOrderID computes the order id shared by the legs of one transaction.
// Formula: SHA256(signature|wallet|mint), truncated to 32 hex characters.
func ComputeOrderID(signature, wallet, mint string) string {
	data := fmt.Sprintf("%s|%s|%s", signature, wallet, mint)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:16])
}

// WindowOrderID builds the order id for trades grouped across transactions:
// wallet[:8]_mint[:8]_side_window, where window is the bucket index.
func WindowOrderID(wallet, mint, side string, window int64) string {
	return fmt.Sprintf("%s_%s_%s_%d", prefix(wallet, 8), prefix(mint, 8), side, window)
}

func prefix(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

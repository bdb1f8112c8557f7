package discovery

import (
	"bytes"
	"crypto/ed25519"

	"github.com/mr-tron/base58"

	"solana-wallet-ledger/internal/solana"
)

// walletAddress returns a deterministic on-curve address.
func walletAddress(seed byte) string {
	priv := ed25519.NewKeyFromSeed(bytes.Repeat([]byte{seed}, ed25519.SeedSize))
	return base58.Encode(priv.Public().(ed25519.PublicKey))
}

// vaultAddress returns a deterministic off-curve address, like a pool vault authority.
func vaultAddress(seed string) string {
	return FindProgramAddress([][]byte{[]byte("vault"), []byte(seed)}, PumpFun)
}

func tokenBalance(index int, mint, owner, amount string, decimals int) solana.TokenBalance {
	return solana.TokenBalance{AccountIndex: index, Mint: mint, Owner: owner, Amount: amount, Decimals: decimals}
}

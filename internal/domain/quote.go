package domain

// Quote asset mints. Balance deltas in these mints are the price side of a trade.
const (
	WSOLMint = "So11111111111111111111111111111111111111112"
	USDCMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	USDTMint = "Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB"

	// LamportsPerSOL converts native balance deltas to SOL.
	LamportsPerSOL = 1_000_000_000

	// NativeSOL is the quote mint label used for native lamport deltas.
	NativeSOL = "SOL"
)

// DefaultQuoteMints returns the quote asset mints recognised out of the box.
func DefaultQuoteMints() []string {
	return []string{WSOLMint, USDCMint, USDTMint}
}

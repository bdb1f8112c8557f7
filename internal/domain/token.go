package domain

import "github.com/shopspring/decimal"

// TokenStatus is the lifecycle status of a registered token.
type TokenStatus string

const (
	TokenStatusActive   TokenStatus = "active"
	TokenStatusInactive TokenStatus = "inactive"
	TokenStatusArchived TokenStatus = "archived"
)

// Token represents a registered memecoin mint.
// Corresponds to the tokens table in PostgreSQL.
type Token struct {
	ID                int64
	Mint              string           // unique mint address
	Name              *string          // nullable until metadata is known
	Symbol            *string          // nullable until metadata is known
	Decimals          int              // token decimals
	TotalSupply       *decimal.Decimal // nullable
	Program           string           // creating program address
	SourceName        string           // display name of the creating source
	CreationSignature string
	CreationSlot      int64
	CreatedAt         int64 // block time of creation (ms)
	Status            TokenStatus
	RetainUntil       *int64 // retention deadline (ms), nullable
	RegisteredAt      int64  // row creation timestamp (ms)
}

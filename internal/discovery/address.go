package discovery

import (
	"crypto/sha256"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// IsValidAddress reports whether s is a base58 encoded 32-byte public key.
func IsValidAddress(s string) bool {
	b, err := base58.Decode(s)
	return err == nil && len(b) == 32
}

// IsValidSignature reports whether s is a base58 encoded 64-byte signature.
func IsValidSignature(s string) bool {
	b, err := base58.Decode(s)
	return err == nil && len(b) == 64
}

// IsOnCurve reports whether address decodes to a point on the ed25519 curve.
// Wallets are on the curve; program derived addresses (pool vault
// authorities, bonding curves) are not.
func IsOnCurve(address string) bool {
	b, err := base58.Decode(address)
	if err != nil || len(b) != 32 {
		return false
	}
	return isOnCurve(b)
}

func isOnCurve(point []byte) bool {
	if len(point) != 32 {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(point)
	return err == nil
}

// FindProgramAddress derives the program derived address for seeds,
// searching bumps from 255 down. Returns "" when no bump yields an off-curve point.
func FindProgramAddress(seeds [][]byte, programID string) string {
	program, err := base58.Decode(programID)
	if err != nil || len(program) != 32 {
		return ""
	}

	for bump := 255; bump >= 0; bump-- {
		h := sha256.New()
		for _, seed := range seeds {
			h.Write(seed)
		}
		h.Write([]byte{byte(bump)})
		h.Write(program)
		h.Write([]byte("ProgramDerivedAddress"))
		sum := h.Sum(nil)

		if !isOnCurve(sum) {
			return base58.Encode(sum)
		}
	}

	return ""
}

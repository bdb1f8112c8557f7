package storage

import "context"

// MaxSignatureAttempts is the number of fetch attempts after which a failed
// signature is dropped from the retry queue.
const MaxSignatureAttempts = 5

// FailedSignature is a signature whose transaction detail could not be fetched.
type FailedSignature struct {
	Source        string
	Signature     string
	Slot          int64
	Attempts      int
	LastError     string
	FirstFailedAt int64 // ms
	LastAttemptAt int64 // ms
}

// FailedSignatureStore is the durable retry queue for failed detail fetches.
// It lets the cursor move forward without losing the signatures it skipped.
type FailedSignatureStore interface {
	// Add enqueues a signature with one attempt. Adding a queued signature is a no-op.
	Add(ctx context.Context, f *FailedSignature) error

	// ListDue returns up to limit queued signatures of source, oldest slot first.
	ListDue(ctx context.Context, source string, limit int) ([]*FailedSignature, error)

	// Resolve removes a signature after a successful retry.
	Resolve(ctx context.Context, source, signature string) error

	// Bump records one more failed attempt. When the attempt count reaches
	// MaxSignatureAttempts the entry is removed and exhausted is true.
	Bump(ctx context.Context, source, signature, lastError string, nowMs int64) (exhausted bool, err error)
}

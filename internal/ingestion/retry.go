package ingestion

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/cenkalti/backoff/v4"

	"solana-wallet-ledger/internal/discovery"
	"solana-wallet-ledger/internal/ledger"
	"solana-wallet-ledger/internal/registry"
	"solana-wallet-ledger/internal/solana"
	"solana-wallet-ledger/internal/storage"
)

// FailureKind groups errors by how the poller reacts to them.
type FailureKind int

const (
	// FailurePermanent errors are dropped without retry.
	FailurePermanent FailureKind = iota
	// FailureTransport errors come from the RPC node and back off the whole cycle.
	FailureTransport
	// FailureStorage errors roll back one apply, which may be retried.
	FailureStorage
)

func (k FailureKind) String() string {
	switch k {
	case FailureTransport:
		return "transport"
	case FailureStorage:
		return "storage"
	default:
		return "permanent"
	}
}

// Classify maps err onto a failure kind.
func Classify(err error) FailureKind {
	var netErr net.Error
	switch {
	case err == nil,
		errors.Is(err, context.Canceled),
		errors.Is(err, ledger.ErrOverSell),
		errors.Is(err, ledger.ErrDuplicateEvent),
		errors.Is(err, ledger.ErrInvalidEvent),
		errors.Is(err, registry.ErrUnknownToken),
		errors.Is(err, discovery.ErrClassificationAmbiguous),
		errors.Is(err, storage.ErrInvalidInput),
		errors.Is(err, storage.ErrNotFound):
		return FailurePermanent
	case errors.Is(err, solana.ErrTransport),
		errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &netErr):
		return FailureTransport
	}
	var rpcErr *solana.RPCError
	if errors.As(err, &rpcErr) {
		return FailureTransport
	}
	return FailureStorage
}

// IsRetryable reports whether err may succeed when retried.
func IsRetryable(err error) bool {
	return Classify(err) != FailurePermanent
}

// RetryPolicy is a bounded exponential backoff.
type RetryPolicy struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
	MaxRetries int // retries after the first attempt
}

// DefaultTransportPolicy backs off failed poll cycles.
func DefaultTransportPolicy() RetryPolicy {
	return RetryPolicy{Initial: time.Second, Max: time.Minute, Multiplier: 2, MaxRetries: 0}
}

// DefaultStoragePolicy retries a failed apply exactly once more.
func DefaultStoragePolicy() RetryPolicy {
	return RetryPolicy{Initial: 100 * time.Millisecond, Max: time.Second, Multiplier: 2, MaxRetries: 1}
}

// NewBackOff returns a fresh backoff for the policy. MaxRetries 0 never stops.
func (p RetryPolicy) NewBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if p.Initial > 0 {
		b.InitialInterval = p.Initial
	}
	if p.Max > 0 {
		b.MaxInterval = p.Max
	}
	if p.Multiplier >= 1 {
		b.Multiplier = p.Multiplier
	}
	b.MaxElapsedTime = 0
	b.Reset()
	if p.MaxRetries > 0 {
		return backoff.WithMaxRetries(b, uint64(p.MaxRetries))
	}
	return b
}

// Do runs op until it succeeds, returns a non-retryable error, the retries
// are used up or ctx is done. The last error is returned.
func (p RetryPolicy) Do(ctx context.Context, op func() error) error {
	if p.MaxRetries <= 0 {
		return op()
	}
	return backoff.Retry(func() error {
		err := op()
		if err != nil && !IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(p.NewBackOff(), ctx))
}

// backoffStop is returned by NextBackOff when retries are used up.
const backoffStop = backoff.Stop

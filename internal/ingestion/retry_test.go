package ingestion

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-wallet-ledger/internal/discovery"
	"solana-wallet-ledger/internal/ledger"
	"solana-wallet-ledger/internal/registry"
	"solana-wallet-ledger/internal/solana"
	"solana-wallet-ledger/internal/storage"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want FailureKind
	}{
		{"nil", nil, FailurePermanent},
		{"canceled", context.Canceled, FailurePermanent},
		{"oversell", fmt.Errorf("apply: %w", ledger.ErrOverSell), FailurePermanent},
		{"duplicate", ledger.ErrDuplicateEvent, FailurePermanent},
		{"invalid event", ledger.ErrInvalidEvent, FailurePermanent},
		{"unknown token", registry.ErrUnknownToken, FailurePermanent},
		{"ambiguous", discovery.ErrClassificationAmbiguous, FailurePermanent},
		{"invalid input", storage.ErrInvalidInput, FailurePermanent},
		{"transport", fmt.Errorf("get signatures: %w", solana.ErrTransport), FailureTransport},
		{"deadline", context.DeadlineExceeded, FailureTransport},
		{"rpc error", &solana.RPCError{Code: -32005, Message: "rate limited"}, FailureTransport},
		{"storage", errors.New("connection reset by peer"), FailureStorage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestFailureKind_String(t *testing.T) {
	assert.Equal(t, "permanent", FailurePermanent.String())
	assert.Equal(t, "transport", FailureTransport.String())
	assert.Equal(t, "storage", FailureStorage.String())
}

func TestRetryPolicy_DoRetriesStorageErrors(t *testing.T) {
	p := RetryPolicy{Initial: time.Millisecond, Max: time.Millisecond, Multiplier: 1, MaxRetries: 2}

	calls := 0
	err := p.Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("connection reset")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryPolicy_DoGivesUp(t *testing.T) {
	p := RetryPolicy{Initial: time.Millisecond, Max: time.Millisecond, Multiplier: 1, MaxRetries: 1}
	boom := errors.New("connection reset")

	calls := 0
	err := p.Do(context.Background(), func() error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, calls)
}

func TestRetryPolicy_DoStopsOnPermanent(t *testing.T) {
	p := RetryPolicy{Initial: time.Millisecond, Max: time.Millisecond, Multiplier: 1, MaxRetries: 5}

	calls := 0
	err := p.Do(context.Background(), func() error {
		calls++
		return fmt.Errorf("apply: %w", ledger.ErrDuplicateEvent)
	})
	assert.ErrorIs(t, err, ledger.ErrDuplicateEvent)
	assert.Equal(t, 1, calls)
}

func TestRetryPolicy_NoRetries(t *testing.T) {
	calls := 0
	err := RetryPolicy{}.Do(context.Background(), func() error {
		calls++
		return errors.New("boom")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryPolicy_NewBackOff(t *testing.T) {
	b := RetryPolicy{Initial: 10 * time.Millisecond, Max: 20 * time.Millisecond, Multiplier: 2, MaxRetries: 2}.NewBackOff()
	assert.NotEqual(t, backoffStop, b.NextBackOff())
	assert.NotEqual(t, backoffStop, b.NextBackOff())
	assert.Equal(t, backoffStop, b.NextBackOff())

	unbounded := DefaultTransportPolicy().NewBackOff()
	for i := 0; i < 20; i++ {
		d := unbounded.NextBackOff()
		require.NotEqual(t, backoffStop, d)
		assert.LessOrEqual(t, d, time.Minute+time.Minute/2)
	}
}

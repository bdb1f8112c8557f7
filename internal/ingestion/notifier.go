package ingestion

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"solana-wallet-ledger/internal/solana"
)

// DefaultWakeDebounce is the minimum gap between two wake-ups of one poller.
const DefaultWakeDebounce = 2 * time.Second

// Notifier turns log notifications for a program address into poll wake-ups.
type Notifier struct {
	sub      solana.LogSubscriber
	debounce time.Duration
	log      zerolog.Logger
}

// NewNotifier creates a notifier on top of a log subscriber.
func NewNotifier(sub solana.LogSubscriber, debounce time.Duration, logger zerolog.Logger) *Notifier {
	if debounce <= 0 {
		debounce = DefaultWakeDebounce
	}
	return &Notifier{
		sub:      sub,
		debounce: debounce,
		log:      logger.With().Str("component", "notifier").Logger(),
	}
}

// Wakeups subscribes to logs mentioning address. The returned channel
// receives at most one pending wake-up and at most one per debounce window.
// It is closed when ctx is done or the subscription ends.
func (n *Notifier) Wakeups(ctx context.Context, address string) (<-chan struct{}, error) {
	notes, err := n.sub.SubscribeLogs(ctx, solana.LogsFilter{Mentions: []string{address}})
	if err != nil {
		return nil, fmt.Errorf("subscribe logs %s: %w", address, err)
	}

	wake := make(chan struct{}, 1)
	go func() {
		defer close(wake)
		var last time.Time
		for {
			select {
			case <-ctx.Done():
				return
			case note, ok := <-notes:
				if !ok {
					n.log.Warn().Str("address", address).Msg("log subscription closed")
					return
				}
				if note.Err != nil {
					continue
				}
				if now := time.Now(); now.Sub(last) >= n.debounce {
					select {
					case wake <- struct{}{}:
						last = now
					default:
					}
				}
			}
		}
	}()
	return wake, nil
}

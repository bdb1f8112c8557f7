package solana

import "context"

// LogSubscriber streams program log notifications.
type LogSubscriber interface {
	// SubscribeLogs subscribes to logs mentioning the filter's addresses.
	// The channel is closed when the subscriber is closed.
	SubscribeLogs(ctx context.Context, filter LogsFilter) (<-chan LogNotification, error)

	// Close closes the WebSocket connection.
	Close() error
}

// LogsFilter defines subscription filter for logs.
type LogsFilter struct {
	// Mentions filters logs that mention any of these addresses.
	// The RPC node accepts a single address per subscription.
	Mentions []string
}

// LogNotification represents a logs subscription message.
type LogNotification struct {
	Signature string
	Slot      int64
	Logs      []string
	Err       interface{}
}

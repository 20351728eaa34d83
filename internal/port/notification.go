package port

import "context"

// Notifier delivers fire-and-forget alerts to a human destination.
type Notifier interface {
	Send(ctx context.Context, destination, message string) error
}

package events

import (
	"context"
	"log/slog"
)

// Log is a per-actor activity history of published events. Event IDs are
// UUIDv7, so ID order is publish order.
type Log interface {
	// Append stores a published event.
	Append(ctx context.Context, e Event) error

	// Recent returns the actor's latest events, newest first.
	Recent(ctx context.Context, actorID string, limit int) ([]Event, error)

	// Since returns the actor's events published after afterID, oldest first.
	Since(ctx context.Context, actorID, afterID string, limit int) ([]Event, error)

	// Types returns the distinct event types recorded for the actor.
	Types(ctx context.Context, actorID string) ([]string, error)

	EnsureTable(ctx context.Context) error
}

// Recorder returns a bus hook appending every event to l. Failures are
// logged; the mutation that published the event has already committed.
func Recorder(l Log, logger *slog.Logger) Hook {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, e Event) {
		if err := l.Append(ctx, e); err != nil {
			logger.Warn("record event", "type", e.Type, "actor", e.ActorID, "error", err)
		}
	}
}

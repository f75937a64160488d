package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Hook runs synchronously inside Publish, before Publish returns.
type Hook func(ctx context.Context, e Event)

// Bus delivers mutation events. Hooks run in the publisher's goroutine, so
// their effects are visible to the publisher's next request; subscribers get
// a best-effort asynchronous copy.
type Bus struct {
	mu    sync.RWMutex
	hooks []Hook
	subs  map[chan Event]struct{}
}

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[chan Event]struct{})}
}

// OnPublish registers a synchronous hook.
func (b *Bus) OnPublish(h Hook) {
	b.mu.Lock()
	b.hooks = append(b.hooks[:len(b.hooks):len(b.hooks)], h)
	b.mu.Unlock()
}

// Publish stamps e, runs every hook, then fans out to all subscribers.
func (b *Bus) Publish(ctx context.Context, e Event) Event {
	if e.ID == "" {
		e.ID = uuid.Must(uuid.NewV7()).String()
	}
	if e.At.IsZero() {
		e.At = time.Now().UTC().Truncate(time.Microsecond)
	}

	b.mu.RLock()
	hooks := b.hooks
	b.mu.RUnlock()

	// Hooks run after the mutation committed; a client hanging up must not
	// abort them.
	hctx := context.WithoutCancel(ctx)
	for _, h := range hooks {
		h(hctx, e)
	}

	// Fan-out stays under the lock so Unsubscribe can't close a channel
	// mid-send; the sends never block.
	b.mu.RLock()
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
			// subscriber is behind; drop to avoid blocking Publish
		}
	}
	b.mu.RUnlock()
	return e
}

// Subscribe returns a buffered channel that receives all new events.
func (b *Bus) Subscribe() chan Event {
	ch := make(chan Event, 64)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Bus) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	delete(b.subs, ch)
	b.mu.Unlock()
	close(ch)
}

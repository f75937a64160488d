package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"project-api/pkg/cache"
	"project-api/pkg/events"
)

// generationTTL outlives any data entry so that a generation rarely expires
// underneath live data.
const generationTTL = 24 * time.Hour

// Aggregator serves dashboards through a cache. Each actor has a generation
// token; data entries are keyed by it, so invalidating an actor only needs to
// drop the token and every range computed before the change becomes
// unreachable.
type Aggregator struct {
	store  Store
	cache  cache.Cache
	ttl    time.Duration
	logger *slog.Logger
}

// NewAggregator creates an Aggregator. A ttl of zero or less disables caching.
func NewAggregator(store Store, c cache.Cache, ttl time.Duration, logger *slog.Logger) *Aggregator {
	if c == nil {
		c = cache.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{store: store, cache: c, ttl: ttl, logger: logger}
}

func generationKey(actorID string) string {
	return "dashboard:" + actorID + ":gen"
}

// Get returns the actor's metrics for r, computing them on a cache miss.
// Cache failures are logged and served from the store.
func (a *Aggregator) Get(ctx context.Context, actorID string, r Range) (*Metrics, error) {
	if a.ttl <= 0 {
		return a.store.Summarize(ctx, actorID, r)
	}

	gen, ok := a.generation(ctx, actorID)
	if !ok {
		return a.store.Summarize(ctx, actorID, r)
	}
	key := fmt.Sprintf("dashboard:%s:%s:%s", actorID, gen, r.key())

	raw, hit, err := a.cache.Get(ctx, key)
	if err != nil {
		a.logger.Warn("dashboard cache read failed", "actor", actorID, "error", err)
	}
	if hit {
		var m Metrics
		if err := json.Unmarshal(raw, &m); err == nil {
			return &m, nil
		}
		a.logger.Warn("dashboard cache entry corrupt", "actor", actorID, "key", key)
	}

	m, err := a.store.Summarize(ctx, actorID, r)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(m)
	if err != nil {
		return m, nil
	}
	if err := a.cache.Set(ctx, key, data, a.ttl); err != nil {
		a.logger.Warn("dashboard cache write failed", "actor", actorID, "error", err)
	}
	return m, nil
}

// generation returns the actor's current generation, creating one if none
// exists. ok is false when the cache is unusable.
func (a *Aggregator) generation(ctx context.Context, actorID string) (string, bool) {
	key := generationKey(actorID)
	raw, hit, err := a.cache.Get(ctx, key)
	if err != nil {
		a.logger.Warn("dashboard generation read failed", "actor", actorID, "error", err)
		return "", false
	}
	if hit && len(raw) > 0 {
		return string(raw), true
	}
	gen := uuid.NewString()
	if err := a.cache.Set(ctx, key, []byte(gen), generationTTL); err != nil {
		a.logger.Warn("dashboard generation write failed", "actor", actorID, "error", err)
		return "", false
	}
	return gen, true
}

// Invalidate makes every cached dashboard of the actor unreachable.
func (a *Aggregator) Invalidate(ctx context.Context, actorID string) {
	if actorID == "" {
		return
	}
	if err := a.cache.Invalidate(ctx, generationKey(actorID)); err != nil {
		a.logger.Warn("dashboard invalidation failed", "actor", actorID, "error", err)
	}
}

// Hook returns a bus hook that invalidates the publishing actor's dashboard.
// It runs before Publish returns, so the response to a mutation is never
// followed by a stale read.
func (a *Aggregator) Hook() events.Hook {
	return func(ctx context.Context, e events.Event) {
		a.Invalidate(ctx, e.ActorID)
	}
}

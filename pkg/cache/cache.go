// Package cache is a keyed byte store with per-entry TTL. Callers treat it as
// an optimization: every error is equivalent to a miss.
package cache

import (
	"context"
	"time"
)

// Cache is the contract for cache backends.
type Cache interface {
	// Get returns the value stored under key. ok is false on a miss or
	// an expired entry.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)

	// Set stores value under key for ttl.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Invalidate removes key. Removing a missing key is not an error.
	Invalidate(ctx context.Context, key string) error
}

// Nop never stores anything.
type Nop struct{}

func (Nop) Get(context.Context, string) ([]byte, bool, error)        { return nil, false, nil }
func (Nop) Set(context.Context, string, []byte, time.Duration) error { return nil }
func (Nop) Invalidate(context.Context, string) error                 { return nil }

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryExpiresEntries(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m := NewMemory()
	m.now = func() time.Time { return now }

	require.NoError(t, m.Set(ctx, "k", []byte("v"), time.Minute))
	v, ok, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), v)

	now = now.Add(time.Minute)
	_, ok, err = m.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok, "entry should expire at its TTL")
}

func TestMemoryInvalidate(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.Set(ctx, "k", []byte("v"), time.Hour))
	require.NoError(t, m.Invalidate(ctx, "k"))
	_, ok, _ := m.Get(ctx, "k")
	assert.False(t, ok)

	assert.NoError(t, m.Invalidate(ctx, "missing"))
}

func TestMemorySetCopiesValue(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	buf := []byte("abc")
	require.NoError(t, m.Set(ctx, "k", buf, time.Hour))
	buf[0] = 'z'

	v, _, _ := m.Get(ctx, "k")
	assert.Equal(t, []byte("abc"), v)
}

func TestMemoryPurge(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m := NewMemory()
	m.now = func() time.Time { return now }

	require.NoError(t, m.Set(ctx, "short", []byte("1"), time.Second))
	require.NoError(t, m.Set(ctx, "long", []byte("2"), time.Hour))
	now = now.Add(time.Minute)

	n, err := m.Purge(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	_, ok, _ := m.Get(ctx, "long")
	assert.True(t, ok)
}

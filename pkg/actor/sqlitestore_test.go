package actor_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"project-api/internal/testutil"
	"project-api/pkg/actor"
	"project-api/pkg/apperr"
)

func TestRegisterNormalizesEmail(t *testing.T) {
	s := testutil.NewStores(t)
	ctx := context.Background()

	a, err := s.Actors.Register(ctx, &actor.Actor{Email: " Ada@Example.COM ", PasswordHash: "x", Active: true})
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", a.Email)
	assert.Equal(t, "ada", a.FullName())

	got, err := s.Actors.ByEmail(ctx, "ADA@example.com")
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)
	assert.True(t, got.Active)

	_, err = s.Actors.Register(ctx, &actor.Actor{Email: "ada@example.com", PasswordHash: "y"})
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

func TestBumpTokenVersion(t *testing.T) {
	s := testutil.NewStores(t)
	ctx := context.Background()
	a := s.Actor(t)

	v, err := s.Actors.BumpTokenVersion(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.TokenVersion+1, v)

	got, err := s.Actors.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, v, got.TokenVersion)

	_, err = s.Actors.BumpTokenVersion(ctx, "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = s.Actors.Get(ctx, "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"project-api/internal/testutil"
	"project-api/pkg/apperr"
)

func newService(t *testing.T) (*Service, *testutil.Stores) {
	t.Helper()
	s := testutil.NewStores(t)
	svc, err := NewService(s.Actors, Config{Secret: "test-secret", BcryptCost: bcrypt.MinCost})
	require.NoError(t, err)
	return svc, s
}

func register(t *testing.T, svc *Service) {
	t.Helper()
	_, err := svc.Register(context.Background(), Registration{
		Email:           "Ada@Example.com",
		Password:        "correct horse",
		PasswordConfirm: "correct horse",
		FirstName:       "Ada",
	})
	require.NoError(t, err)
}

func TestRegisterValidation(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	cases := map[string]Registration{
		"bad email":  {Email: "nope", Password: "12345678", PasswordConfirm: "12345678"},
		"short":      {Email: "a@b.co", Password: "short", PasswordConfirm: "short"},
		"mismatch":   {Email: "a@b.co", Password: "12345678", PasswordConfirm: "87654321"},
		"empty mail": {Password: "12345678", PasswordConfirm: "12345678"},
	}
	for name, r := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Register(ctx, r)
			assert.ErrorIs(t, err, apperr.ErrInvalid)
		})
	}

	register(t, svc)
	_, err := svc.Register(ctx, Registration{Email: "ada@example.com", Password: "12345678", PasswordConfirm: "12345678"})
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

func TestLoginAndAuthenticate(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	register(t, svc)

	_, _, err := svc.Login(ctx, "ada@example.com", "wrong password")
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
	_, _, err = svc.Login(ctx, "nobody@example.com", "correct horse")
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)

	tokens, a, err := svc.Login(ctx, " ADA@example.com ", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", a.Email)

	got, err := svc.Authenticate(ctx, tokens.Access)
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)

	_, err = svc.Authenticate(ctx, tokens.Refresh)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized, "refresh token is not an access token")

	access, err := svc.Refresh(ctx, tokens.Refresh)
	require.NoError(t, err)
	_, err = svc.Authenticate(ctx, access)
	require.NoError(t, err)

	_, err = svc.Authenticate(ctx, tokens.Access+"x")
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
}

func TestLogoutRevokesTokens(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	register(t, svc)

	tokens, a, err := svc.Login(ctx, "ada@example.com", "correct horse")
	require.NoError(t, err)
	require.NoError(t, svc.Logout(ctx, a.ID))

	_, err = svc.Authenticate(ctx, tokens.Access)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
	_, err = svc.Refresh(ctx, tokens.Refresh)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)

	tokens, _, err = svc.Login(ctx, "ada@example.com", "correct horse")
	require.NoError(t, err)
	_, err = svc.Authenticate(ctx, tokens.Access)
	assert.NoError(t, err)
}

func TestExpiredToken(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	register(t, svc)

	tokens, _, err := svc.Login(ctx, "ada@example.com", "correct horse")
	require.NoError(t, err)

	svc.now = func() time.Time { return time.Now().Add(time.Hour) }
	_, err = svc.Authenticate(ctx, tokens.Access)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
	_, err = svc.Refresh(ctx, tokens.Refresh)
	assert.NoError(t, err)
}

func TestForeignSecretRejected(t *testing.T) {
	svc, s := newService(t)
	ctx := context.Background()
	register(t, svc)
	tokens, _, err := svc.Login(ctx, "ada@example.com", "correct horse")
	require.NoError(t, err)

	other, err := NewService(s.Actors, Config{Secret: "another-secret", BcryptCost: bcrypt.MinCost})
	require.NoError(t, err)
	_, err = other.Authenticate(ctx, tokens.Access)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
}

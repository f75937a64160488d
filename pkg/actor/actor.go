package actor

import (
	"context"
	"strings"
	"time"
)

// Actor is an authenticated account. Actors own projects.
type Actor struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	Phone        string    `json:"phone"`
	PasswordHash string    `json:"-"`
	Active       bool      `json:"-"`
	TokenVersion int       `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// FullName joins first and last name, falling back to the email local part.
func (a *Actor) FullName() string {
	name := strings.TrimSpace(a.FirstName + " " + a.LastName)
	if name != "" {
		return name
	}
	local, _, _ := strings.Cut(a.Email, "@")
	return local
}

// NormalizeEmail lowercases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Store is the contract for actor persistence.
type Store interface {
	// Register inserts a new actor. A duplicate email yields apperr.ErrConflict.
	Register(ctx context.Context, a *Actor) (*Actor, error)

	// Get returns an actor by ID.
	Get(ctx context.Context, id string) (*Actor, error)

	// ByEmail returns an actor by (normalized) email.
	ByEmail(ctx context.Context, email string) (*Actor, error)

	// BumpTokenVersion invalidates every token issued so far for the actor.
	BumpTokenVersion(ctx context.Context, id string) (int, error)

	// EnsureTable creates the actors table if it doesn't exist.
	EnsureTable(ctx context.Context) error
}

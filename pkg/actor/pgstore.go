package actor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"project-api/pkg/apperr"
)

const actorColumns = `id, email, first_name, last_name, phone, password_hash, active, token_version, created_at`

// PgStore is a PostgreSQL-backed actor store.
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore creates a PgStore.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// EnsureTable creates the actors table if it doesn't exist.
func (s *PgStore) EnsureTable(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS actors (
			id            TEXT PRIMARY KEY,
			email         TEXT NOT NULL,
			first_name    TEXT NOT NULL DEFAULT '',
			last_name     TEXT NOT NULL DEFAULT '',
			phone         TEXT NOT NULL DEFAULT '',
			password_hash TEXT NOT NULL,
			active        BOOLEAN NOT NULL DEFAULT TRUE,
			token_version INTEGER NOT NULL DEFAULT 0,
			created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `CREATE UNIQUE INDEX IF NOT EXISTS actors_email_idx ON actors(email)`)
	return err
}

// Register inserts a new actor.
func (s *PgStore) Register(ctx context.Context, a *Actor) (*Actor, error) {
	a.ID = uuid.Must(uuid.NewV7()).String()
	a.Email = NormalizeEmail(a.Email)
	a.CreatedAt = time.Now().Truncate(time.Microsecond)

	_, err := s.pool.Exec(ctx, `
		INSERT INTO actors (`+actorColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		a.ID, a.Email, a.FirstName, a.LastName, a.Phone, a.PasswordHash, a.Active, a.TokenVersion, a.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, apperr.Conflict("email %s already registered", a.Email)
		}
		return nil, fmt.Errorf("register actor %s: %w", a.Email, apperr.Classify(err))
	}
	return a, nil
}

// Get returns an actor by ID.
func (s *PgStore) Get(ctx context.Context, id string) (*Actor, error) {
	a, err := s.scanOne(ctx, `SELECT `+actorColumns+` FROM actors WHERE id = $1`, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("actor", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get actor %s: %w", id, apperr.Classify(err))
	}
	return a, nil
}

// ByEmail returns an actor by email.
func (s *PgStore) ByEmail(ctx context.Context, email string) (*Actor, error) {
	email = NormalizeEmail(email)
	a, err := s.scanOne(ctx, `SELECT `+actorColumns+` FROM actors WHERE email = $1`, email)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("actor", email)
	}
	if err != nil {
		return nil, fmt.Errorf("actor by email %s: %w", email, apperr.Classify(err))
	}
	return a, nil
}

// BumpTokenVersion increments the actor's token version.
func (s *PgStore) BumpTokenVersion(ctx context.Context, id string) (int, error) {
	var v int
	err := s.pool.QueryRow(ctx,
		`UPDATE actors SET token_version = token_version + 1 WHERE id = $1 RETURNING token_version`, id).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, apperr.NotFound("actor", id)
	}
	if err != nil {
		return 0, fmt.Errorf("bump token version %s: %w", id, apperr.Classify(err))
	}
	return v, nil
}

func (s *PgStore) scanOne(ctx context.Context, query string, args ...any) (*Actor, error) {
	var a Actor
	err := s.pool.QueryRow(ctx, query, args...).Scan(
		&a.ID, &a.Email, &a.FirstName, &a.LastName, &a.Phone, &a.PasswordHash, &a.Active, &a.TokenVersion, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

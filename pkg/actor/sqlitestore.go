package actor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"project-api/internal/db"
	"project-api/pkg/apperr"
)

// SQLiteStore is a SQLite-backed actor store.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore creates a SQLiteStore.
func NewSQLiteStore(conn *sqlx.DB) *SQLiteStore {
	return &SQLiteStore{db: conn}
}

type actorRow struct {
	ID           string `db:"id"`
	Email        string `db:"email"`
	FirstName    string `db:"first_name"`
	LastName     string `db:"last_name"`
	Phone        string `db:"phone"`
	PasswordHash string `db:"password_hash"`
	Active       bool   `db:"active"`
	TokenVersion int    `db:"token_version"`
	CreatedAt    string `db:"created_at"`
}

func (r actorRow) actor() *Actor {
	return &Actor{
		ID:           r.ID,
		Email:        r.Email,
		FirstName:    r.FirstName,
		LastName:     r.LastName,
		Phone:        r.Phone,
		PasswordHash: r.PasswordHash,
		Active:       r.Active,
		TokenVersion: r.TokenVersion,
		CreatedAt:    db.ParseTime(r.CreatedAt),
	}
}

// EnsureTable creates the actors table if it doesn't exist.
func (s *SQLiteStore) EnsureTable(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS actors (
			id            TEXT PRIMARY KEY,
			email         TEXT NOT NULL UNIQUE,
			first_name    TEXT NOT NULL DEFAULT '',
			last_name     TEXT NOT NULL DEFAULT '',
			phone         TEXT NOT NULL DEFAULT '',
			password_hash TEXT NOT NULL,
			active        INTEGER NOT NULL DEFAULT 1,
			token_version INTEGER NOT NULL DEFAULT 0,
			created_at    TEXT NOT NULL
		)`)
	return err
}

// Register inserts a new actor.
func (s *SQLiteStore) Register(ctx context.Context, a *Actor) (*Actor, error) {
	a.ID = uuid.Must(uuid.NewV7()).String()
	a.Email = NormalizeEmail(a.Email)
	a.CreatedAt = time.Now().UTC().Truncate(time.Microsecond)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO actors (`+actorColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Email, a.FirstName, a.LastName, a.Phone, a.PasswordHash, a.Active, a.TokenVersion, db.FormatTime(a.CreatedAt))
	if db.IsUniqueViolation(err) {
		return nil, apperr.Conflict("email %s already registered", a.Email)
	}
	if err != nil {
		return nil, fmt.Errorf("register actor %s: %w", a.Email, apperr.Classify(err))
	}
	return a, nil
}

// Get returns an actor by ID.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Actor, error) {
	var row actorRow
	err := s.db.GetContext(ctx, &row, `SELECT `+actorColumns+` FROM actors WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("actor", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get actor %s: %w", id, apperr.Classify(err))
	}
	return row.actor(), nil
}

// ByEmail returns an actor by email.
func (s *SQLiteStore) ByEmail(ctx context.Context, email string) (*Actor, error) {
	email = NormalizeEmail(email)
	var row actorRow
	err := s.db.GetContext(ctx, &row, `SELECT `+actorColumns+` FROM actors WHERE email = ?`, email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("actor", email)
	}
	if err != nil {
		return nil, fmt.Errorf("actor by email %s: %w", email, apperr.Classify(err))
	}
	return row.actor(), nil
}

// BumpTokenVersion increments the actor's token version.
func (s *SQLiteStore) BumpTokenVersion(ctx context.Context, id string) (int, error) {
	var v int
	err := s.db.GetContext(ctx, &v,
		`UPDATE actors SET token_version = token_version + 1 WHERE id = ? RETURNING token_version`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, apperr.NotFound("actor", id)
	}
	if err != nil {
		return 0, fmt.Errorf("bump token version %s: %w", id, apperr.Classify(err))
	}
	return v, nil
}

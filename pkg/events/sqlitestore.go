package events

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"project-api/internal/db"
	"project-api/pkg/apperr"
)

// SQLiteStore is a SQLite-backed event Log.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore creates a SQLiteStore.
func NewSQLiteStore(conn *sqlx.DB) *SQLiteStore {
	return &SQLiteStore{db: conn}
}

type eventRow struct {
	ID        string `db:"id"`
	Type      string `db:"type"`
	ActorID   string `db:"actor_id"`
	ProjectID string `db:"project_id"`
	TaskID    string `db:"task_id"`
	At        string `db:"at"`
}

// EnsureTable creates the events table if it doesn't exist.
func (s *SQLiteStore) EnsureTable(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS events (
			id         TEXT PRIMARY KEY,
			type       TEXT NOT NULL,
			actor_id   TEXT NOT NULL REFERENCES actors(id) ON DELETE CASCADE,
			project_id TEXT NOT NULL DEFAULT '',
			task_id    TEXT NOT NULL DEFAULT '',
			at         TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_events_actor_id ON events(actor_id, id);`)
	return err
}

// Append stores e.
func (s *SQLiteStore) Append(ctx context.Context, e Event) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO events (`+eventColumns+`)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.Type, e.ActorID, e.ProjectID, e.TaskID, db.FormatTime(e.At))
	if err != nil {
		return fmt.Errorf("inserting event: %w", apperr.Classify(err))
	}
	return nil
}

// Recent returns the actor's latest events, newest first.
func (s *SQLiteStore) Recent(ctx context.Context, actorID string, limit int) ([]Event, error) {
	return s.selectMany(ctx, `
		SELECT `+eventColumns+` FROM events
		WHERE actor_id = ? ORDER BY id DESC LIMIT ?`, actorID, limit)
}

// Since returns the actor's events after afterID.
func (s *SQLiteStore) Since(ctx context.Context, actorID, afterID string, limit int) ([]Event, error) {
	return s.selectMany(ctx, `
		SELECT `+eventColumns+` FROM events
		WHERE actor_id = ? AND id > ? ORDER BY id ASC LIMIT ?`, actorID, afterID, limit)
}

// Types returns the distinct event types recorded for the actor.
func (s *SQLiteStore) Types(ctx context.Context, actorID string) ([]string, error) {
	types := []string{}
	err := s.db.SelectContext(ctx, &types, `SELECT DISTINCT type FROM events WHERE actor_id = ? ORDER BY type`, actorID)
	if err != nil {
		return nil, fmt.Errorf("querying event types: %w", apperr.Classify(err))
	}
	return types, nil
}

func (s *SQLiteStore) selectMany(ctx context.Context, query string, args ...any) ([]Event, error) {
	var rows []eventRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("querying events: %w", apperr.Classify(err))
	}
	events := make([]Event, 0, len(rows))
	for _, r := range rows {
		events = append(events, Event{
			ID:        r.ID,
			Type:      r.Type,
			ActorID:   r.ActorID,
			ProjectID: r.ProjectID,
			TaskID:    r.TaskID,
			At:        db.ParseTime(r.At),
		})
	}
	return events, nil
}

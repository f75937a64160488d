package events

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"project-api/pkg/apperr"
)

const eventColumns = `id, type, actor_id, project_id, task_id, at`

// PgStore is a PostgreSQL-backed event Log.
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore creates a PgStore.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// EnsureTable creates the events table if it doesn't exist. The actors table
// must exist first.
func (s *PgStore) EnsureTable(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS events (
			id         TEXT PRIMARY KEY,
			type       TEXT NOT NULL,
			actor_id   TEXT NOT NULL REFERENCES actors(id) ON DELETE CASCADE,
			project_id TEXT NOT NULL DEFAULT '',
			task_id    TEXT NOT NULL DEFAULT '',
			at         TIMESTAMPTZ NOT NULL
		)`)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS idx_events_actor_id ON events(actor_id, id)`)
	return err
}

// Append stores e.
func (s *PgStore) Append(ctx context.Context, e Event) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO events (`+eventColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		e.ID, e.Type, e.ActorID, e.ProjectID, e.TaskID, e.At)
	if err != nil {
		return fmt.Errorf("insert event: %w", apperr.Classify(err))
	}
	return nil
}

// Recent returns the actor's latest events, newest first.
func (s *PgStore) Recent(ctx context.Context, actorID string, limit int) ([]Event, error) {
	return s.scanMany(ctx, `
		SELECT `+eventColumns+` FROM events
		WHERE actor_id = $1 ORDER BY id DESC LIMIT $2`, actorID, limit)
}

// Since returns the actor's events after afterID, for polling/SSE.
func (s *PgStore) Since(ctx context.Context, actorID, afterID string, limit int) ([]Event, error) {
	return s.scanMany(ctx, `
		SELECT `+eventColumns+` FROM events
		WHERE actor_id = $1 AND id > $2 ORDER BY id ASC LIMIT $3`, actorID, afterID, limit)
}

// Types returns the distinct event types recorded for the actor.
func (s *PgStore) Types(ctx context.Context, actorID string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT type FROM events WHERE actor_id = $1 ORDER BY type`, actorID)
	if err != nil {
		return nil, fmt.Errorf("event types: %w", apperr.Classify(err))
	}
	types, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("event types: %w", apperr.Classify(err))
	}
	return types, nil
}

func (s *PgStore) scanMany(ctx context.Context, query string, args ...any) ([]Event, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", apperr.Classify(err))
	}
	defer rows.Close()

	events := []Event{}
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.Type, &e.ActorID, &e.ProjectID, &e.TaskID, &e.At); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration: %w", apperr.Classify(err))
	}
	return events, nil
}

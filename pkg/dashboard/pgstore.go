package dashboard

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"project-api/pkg/apperr"
	"project-api/pkg/task"
)

// PgStore computes metrics from the PostgreSQL project and task tables.
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore creates a PgStore.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// Summarize runs the dashboard aggregates for one actor in a single
// read-only snapshot.
func (s *PgStore) Summarize(ctx context.Context, actorID string, r Range) (*Metrics, error) {
	m := newMetrics(r)

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", apperr.Classify(err))
	}
	defer tx.Rollback(ctx)

	if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM projects WHERE owner_id = $1`, actorID).Scan(&m.ProjectCount); err != nil {
		return nil, fmt.Errorf("count projects: %w", apperr.Classify(err))
	}

	rows, err := tx.Query(ctx, `
		SELECT t.status, COUNT(*), COALESCE(SUM(t.estimated_ns), 0)::BIGINT, COALESCE(SUM(t.spent_ns), 0)::BIGINT
		FROM tasks t JOIN projects p ON p.id = t.project_id
		WHERE p.owner_id = $1
		GROUP BY t.status`, actorID)
	if err != nil {
		return nil, fmt.Errorf("task totals: %w", apperr.Classify(err))
	}
	for rows.Next() {
		var status string
		var count int
		var estimated, spent int64
		if err := rows.Scan(&status, &count, &estimated, &spent); err != nil {
			rows.Close()
			return nil, err
		}
		m.TaskCounts[task.Status(status)] = count
		m.TaskCount += count
		m.TotalEstimated += time.Duration(estimated)
		m.TotalSpent += time.Duration(spent)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("task totals: %w", apperr.Classify(err))
	}

	var perProject string
	args := []any{actorID}
	if r.IsZero() {
		perProject = `
			SELECT p.id, p.title, COALESCE(SUM(t.spent_ns), 0)::BIGINT
			FROM projects p LEFT JOIN tasks t ON t.project_id = p.id
			WHERE p.owner_id = $1
			GROUP BY p.id, p.title
			ORDER BY p.title, p.id`
	} else {
		cond := ""
		if lo, ok := r.lower(); ok {
			args = append(args, lo)
			cond += fmt.Sprintf(" AND e.start_time >= $%d", len(args))
		}
		if hi, ok := r.upper(); ok {
			args = append(args, hi)
			cond += fmt.Sprintf(" AND e.start_time < $%d", len(args))
		}
		perProject = `
			SELECT p.id, p.title, COALESCE(SUM(e.duration_ns), 0)::BIGINT
			FROM projects p
			LEFT JOIN tasks t ON t.project_id = p.id
			LEFT JOIN time_entries e ON e.task_id = t.id` + cond + `
			WHERE p.owner_id = $1
			GROUP BY p.id, p.title
			ORDER BY p.title, p.id`
	}
	rows, err = tx.Query(ctx, perProject, args...)
	if err != nil {
		return nil, fmt.Errorf("time per project: %w", apperr.Classify(err))
	}
	for rows.Next() {
		var pt ProjectTime
		var ns int64
		if err := rows.Scan(&pt.ProjectID, &pt.Title, &ns); err != nil {
			rows.Close()
			return nil, err
		}
		pt.Spent = time.Duration(ns)
		m.PerProject = append(m.PerProject, pt)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("time per project: %w", apperr.Classify(err))
	}

	rows, err = tx.Query(ctx, `
		SELECT t.id, t.title, t.project_id, t.timer_started_at
		FROM tasks t JOIN projects p ON p.id = t.project_id
		WHERE p.owner_id = $1 AND t.timer_started_at IS NOT NULL
		ORDER BY t.timer_started_at, t.id`, actorID)
	if err != nil {
		return nil, fmt.Errorf("active timers: %w", apperr.Classify(err))
	}
	defer rows.Close()
	for rows.Next() {
		var at ActiveTimer
		if err := rows.Scan(&at.TaskID, &at.Title, &at.ProjectID, &at.StartedAt); err != nil {
			return nil, err
		}
		m.ActiveTimers = append(m.ActiveTimers, at)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("active timers: %w", apperr.Classify(err))
	}
	return m, nil
}

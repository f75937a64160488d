package dashboard

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"project-api/internal/db"
	"project-api/pkg/apperr"
	"project-api/pkg/task"
)

// SQLiteStore computes metrics from the SQLite project and task tables.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore creates a SQLiteStore.
func NewSQLiteStore(conn *sqlx.DB) *SQLiteStore {
	return &SQLiteStore{db: conn}
}

type statusRow struct {
	Status      string `db:"status"`
	Count       int    `db:"task_count"`
	EstimatedNS int64  `db:"estimated_ns"`
	SpentNS     int64  `db:"spent_ns"`
}

type projectTimeRow struct {
	ProjectID string `db:"project_id"`
	Title     string `db:"title"`
	SpentNS   int64  `db:"spent_ns"`
}

type activeRow struct {
	TaskID    string `db:"task_id"`
	Title     string `db:"title"`
	ProjectID string `db:"project_id"`
	StartedAt string `db:"started_at"`
}

// Summarize runs the dashboard aggregates for one actor inside one
// transaction so every figure comes from the same snapshot.
func (s *SQLiteStore) Summarize(ctx context.Context, actorID string, r Range) (*Metrics, error) {
	m := newMetrics(r)

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", apperr.Classify(err))
	}
	defer tx.Rollback()

	if err := tx.GetContext(ctx, &m.ProjectCount, `SELECT COUNT(*) FROM projects WHERE owner_id = ?`, actorID); err != nil {
		return nil, fmt.Errorf("counting projects: %w", apperr.Classify(err))
	}

	var statuses []statusRow
	err = tx.SelectContext(ctx, &statuses, `
		SELECT t.status AS status, COUNT(*) AS task_count,
			COALESCE(SUM(t.estimated_ns), 0) AS estimated_ns, COALESCE(SUM(t.spent_ns), 0) AS spent_ns
		FROM tasks t JOIN projects p ON p.id = t.project_id
		WHERE p.owner_id = ?
		GROUP BY t.status`, actorID)
	if err != nil {
		return nil, fmt.Errorf("querying task totals: %w", apperr.Classify(err))
	}
	for _, row := range statuses {
		m.TaskCounts[task.Status(row.Status)] = row.Count
		m.TaskCount += row.Count
		m.TotalEstimated += time.Duration(row.EstimatedNS)
		m.TotalSpent += time.Duration(row.SpentNS)
	}

	var query string
	var args []any
	if r.IsZero() {
		query = `
			SELECT p.id AS project_id, p.title AS title, COALESCE(SUM(t.spent_ns), 0) AS spent_ns
			FROM projects p LEFT JOIN tasks t ON t.project_id = p.id
			WHERE p.owner_id = ?
			GROUP BY p.id, p.title
			ORDER BY p.title, p.id`
		args = []any{actorID}
	} else {
		cond := ""
		if lo, ok := r.lower(); ok {
			cond += " AND e.start_time >= ?"
			args = append(args, db.FormatTime(lo))
		}
		if hi, ok := r.upper(); ok {
			cond += " AND e.start_time < ?"
			args = append(args, db.FormatTime(hi))
		}
		args = append(args, actorID)
		query = `
			SELECT p.id AS project_id, p.title AS title, COALESCE(SUM(e.duration_ns), 0) AS spent_ns
			FROM projects p
			LEFT JOIN tasks t ON t.project_id = p.id
			LEFT JOIN time_entries e ON e.task_id = t.id` + cond + `
			WHERE p.owner_id = ?
			GROUP BY p.id, p.title
			ORDER BY p.title, p.id`
	}
	var perProject []projectTimeRow
	if err := tx.SelectContext(ctx, &perProject, query, args...); err != nil {
		return nil, fmt.Errorf("querying time per project: %w", apperr.Classify(err))
	}
	for _, row := range perProject {
		m.PerProject = append(m.PerProject, ProjectTime{
			ProjectID: row.ProjectID,
			Title:     row.Title,
			Spent:     time.Duration(row.SpentNS),
		})
	}

	var active []activeRow
	err = tx.SelectContext(ctx, &active, `
		SELECT t.id AS task_id, t.title AS title, t.project_id AS project_id, t.timer_started_at AS started_at
		FROM tasks t JOIN projects p ON p.id = t.project_id
		WHERE p.owner_id = ? AND t.timer_started_at IS NOT NULL
		ORDER BY t.timer_started_at, t.id`, actorID)
	if err != nil {
		return nil, fmt.Errorf("querying active timers: %w", apperr.Classify(err))
	}
	for _, row := range active {
		m.ActiveTimers = append(m.ActiveTimers, ActiveTimer{
			TaskID:    row.TaskID,
			Title:     row.Title,
			ProjectID: row.ProjectID,
			StartedAt: db.ParseTime(row.StartedAt),
		})
	}
	return m, nil
}

package task

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"project-api/pkg/apperr"
)

const selectTask = `
	SELECT t.id AS id, t.project_id AS project_id, p.owner_id AS owner_id, t.title AS title,
		t.description AS description, t.status AS status, t.estimated_ns AS estimated_ns,
		t.spent_ns AS spent_ns, t.timer_started_at AS timer_started_at, t.version AS version,
		t.created_at AS created_at, t.updated_at AS updated_at
	FROM tasks t JOIN projects p ON p.id = t.project_id`

// PgStore is a PostgreSQL-backed task store.
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore creates a PgStore.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// EnsureTable creates the tasks and time_entries tables if they don't exist.
// The projects table must exist first.
func (s *PgStore) EnsureTable(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS tasks (
			id               TEXT PRIMARY KEY,
			project_id       TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
			title            TEXT NOT NULL,
			description      TEXT NOT NULL DEFAULT '',
			status           TEXT NOT NULL DEFAULT 'todo',
			estimated_ns     BIGINT NOT NULL DEFAULT 0 CHECK (estimated_ns >= 0),
			spent_ns         BIGINT NOT NULL DEFAULT 0 CHECK (spent_ns >= 0),
			timer_started_at TIMESTAMPTZ,
			version          BIGINT NOT NULL DEFAULT 1,
			created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS idx_tasks_project_status ON tasks(project_id, status)`)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS idx_tasks_active_timer ON tasks(project_id) WHERE timer_started_at IS NOT NULL`)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS time_entries (
			id          TEXT PRIMARY KEY,
			task_id     TEXT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
			start_time  TIMESTAMPTZ NOT NULL,
			end_time    TIMESTAMPTZ NOT NULL,
			duration_ns BIGINT NOT NULL CHECK (duration_ns >= 0)
		)`)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS idx_time_entries_task_start ON time_entries(task_id, start_time)`)
	return err
}

// Create inserts a new task with no running timer and nothing spent.
func (s *PgStore) Create(ctx context.Context, t *Task) (*Task, error) {
	if t.Status == "" {
		t.Status = StatusTodo
	}
	if err := validate(t); err != nil {
		return nil, err
	}
	t.ID = uuid.Must(uuid.NewV7()).String()
	t.Title = strings.TrimSpace(t.Title)
	now := time.Now().Truncate(time.Microsecond)
	t.CreatedAt = now
	t.UpdatedAt = now
	t.SpentTime = 0
	t.TimerStartedAt = nil
	t.Version = 1

	_, err := s.pool.Exec(ctx, `
		INSERT INTO tasks (id, project_id, title, description, status, estimated_ns, spent_ns, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, 0, 1, $7, $8)`,
		t.ID, t.ProjectID, t.Title, t.Description, string(t.Status), int64(t.EstimatedTime), t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("create task: %w", apperr.Classify(err))
	}
	return t, nil
}

// Get retrieves a single task by ID, including its project's owner.
func (s *PgStore) Get(ctx context.Context, id string) (*Task, error) {
	return getTask(ctx, s.pool, id)
}

// Update modifies the editable task fields and bumps the version.
func (s *PgStore) Update(ctx context.Context, id string, patch Patch) (*Task, error) {
	if err := validatePatch(patch); err != nil {
		return nil, err
	}
	now := time.Now().Truncate(time.Microsecond)

	setClauses := "updated_at = $1, version = version + 1"
	args := []any{now}
	add := func(col string, v any) {
		args = append(args, v)
		setClauses += fmt.Sprintf(", %s = $%d", col, len(args))
	}
	if patch.ProjectID != nil {
		add("project_id", *patch.ProjectID)
	}
	if patch.Title != nil {
		add("title", strings.TrimSpace(*patch.Title))
	}
	if patch.Description != nil {
		add("description", *patch.Description)
	}
	if patch.Status != nil {
		add("status", string(*patch.Status))
	}
	if patch.EstimatedTime != nil {
		add("estimated_ns", int64(*patch.EstimatedTime))
	}
	args = append(args, id)

	tag, err := s.pool.Exec(ctx, fmt.Sprintf("UPDATE tasks SET %s WHERE id = $%d", setClauses, len(args)), args...)
	if err != nil {
		return nil, fmt.Errorf("update task %s: %w", id, apperr.Classify(err))
	}
	if tag.RowsAffected() == 0 {
		return nil, apperr.NotFound("task", id)
	}
	return s.Get(ctx, id)
}

// Delete removes a task and its time entries.
func (s *PgStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete task %s: %w", id, apperr.Classify(err))
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("task", id)
	}
	return nil
}

// List returns one page of the owner's tasks and the total match count.
func (s *PgStore) List(ctx context.Context, f Filter) ([]Task, int, error) {
	order, err := orderBy(f.Ordering)
	if err != nil {
		return nil, 0, err
	}
	n := 0
	ph := func() string { n++; return fmt.Sprintf("$%d", n) }
	where, args := f.where(ph, "ILIKE")

	var total int
	err = s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM tasks t JOIN projects p ON p.id = t.project_id WHERE `+where, args...).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count tasks: %w", apperr.Classify(err))
	}

	query := selectTask + ` WHERE ` + where + ` ORDER BY ` + order
	if f.Limit > 0 {
		args = append(args, f.Limit, f.Offset)
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list tasks: %w", apperr.Classify(err))
	}
	defer rows.Close()

	tasks := []Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, 0, err
		}
		tasks = append(tasks, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("row iteration: %w", apperr.Classify(err))
	}
	return tasks, total, nil
}

// UpdateTimer compare-and-swaps the timer fields on version. The row lock
// taken by the UPDATE serializes concurrent transitions on the same task.
func (s *PgStore) UpdateTimer(ctx context.Context, id string, expectedVersion int64, f TimerFields, entry *TimeEntry) (*Task, error) {
	if f.SpentTime < 0 {
		return nil, apperr.Invalid("spent time must not be negative")
	}
	now := time.Now().Truncate(time.Microsecond)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", apperr.Classify(err))
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE tasks SET timer_started_at = $1, spent_ns = $2, status = $3, version = version + 1, updated_at = $4
		WHERE id = $5 AND version = $6`,
		f.StartedAt, int64(f.SpentTime), string(f.Status), now, id, expectedVersion)
	if err != nil {
		return nil, fmt.Errorf("update timer %s: %w", id, apperr.Classify(err))
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrVersionMismatch
	}

	if entry != nil {
		entry.ID = uuid.Must(uuid.NewV7()).String()
		entry.TaskID = id
		_, err = tx.Exec(ctx, `
			INSERT INTO time_entries (id, task_id, start_time, end_time, duration_ns)
			VALUES ($1, $2, $3, $4, $5)`,
			entry.ID, entry.TaskID, entry.StartTime, entry.EndTime, int64(entry.Duration))
		if err != nil {
			return nil, fmt.Errorf("insert time entry %s: %w", id, apperr.Classify(err))
		}
	}

	t, err := getTask(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit timer %s: %w", id, apperr.Classify(err))
	}
	return t, nil
}

// TimeEntries returns the task's most recent intervals, newest first.
func (s *PgStore) TimeEntries(ctx context.Context, taskID string, limit int) ([]TimeEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, task_id, start_time, end_time, duration_ns
		FROM time_entries WHERE task_id = $1 ORDER BY start_time DESC LIMIT $2`, taskID, limit)
	if err != nil {
		return nil, fmt.Errorf("time entries %s: %w", taskID, apperr.Classify(err))
	}
	defer rows.Close()

	entries := []TimeEntry{}
	for rows.Next() {
		var e TimeEntry
		var ns int64
		if err := rows.Scan(&e.ID, &e.TaskID, &e.StartTime, &e.EndTime, &ns); err != nil {
			return nil, err
		}
		e.Duration = time.Duration(ns)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func getTask(ctx context.Context, q querier, id string) (*Task, error) {
	t, err := scanTask(q.QueryRow(ctx, selectTask+` WHERE t.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("task", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get task %s: %w", id, apperr.Classify(err))
	}
	return t, nil
}

func scanTask(row pgx.Row) (*Task, error) {
	var t Task
	var status string
	var estimated, spent int64
	if err := row.Scan(&t.ID, &t.ProjectID, &t.OwnerID, &t.Title, &t.Description, &status,
		&estimated, &spent, &t.TimerStartedAt, &t.Version, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	t.Status = Status(status)
	t.EstimatedTime = time.Duration(estimated)
	t.SpentTime = time.Duration(spent)
	return &t, nil
}

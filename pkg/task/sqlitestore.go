package task

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"project-api/internal/db"
	"project-api/pkg/apperr"
)

// SQLiteStore is a SQLite-backed task store.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore creates a SQLiteStore.
func NewSQLiteStore(conn *sqlx.DB) *SQLiteStore {
	return &SQLiteStore{db: conn}
}

type taskRow struct {
	ID             string         `db:"id"`
	ProjectID      string         `db:"project_id"`
	OwnerID        string         `db:"owner_id"`
	Title          string         `db:"title"`
	Description    string         `db:"description"`
	Status         string         `db:"status"`
	EstimatedNS    int64          `db:"estimated_ns"`
	SpentNS        int64          `db:"spent_ns"`
	TimerStartedAt sql.NullString `db:"timer_started_at"`
	Version        int64          `db:"version"`
	CreatedAt      string         `db:"created_at"`
	UpdatedAt      string         `db:"updated_at"`
}

func (r taskRow) task() Task {
	return Task{
		ID:             r.ID,
		ProjectID:      r.ProjectID,
		OwnerID:        r.OwnerID,
		Title:          r.Title,
		Description:    r.Description,
		Status:         Status(r.Status),
		EstimatedTime:  time.Duration(r.EstimatedNS),
		SpentTime:      time.Duration(r.SpentNS),
		TimerStartedAt: db.ParseNullTime(r.TimerStartedAt),
		Version:        r.Version,
		CreatedAt:      db.ParseTime(r.CreatedAt),
		UpdatedAt:      db.ParseTime(r.UpdatedAt),
	}
}

type entryRow struct {
	ID         string `db:"id"`
	TaskID     string `db:"task_id"`
	StartTime  string `db:"start_time"`
	EndTime    string `db:"end_time"`
	DurationNS int64  `db:"duration_ns"`
}

// EnsureTable creates the tasks and time_entries tables if they don't exist.
func (s *SQLiteStore) EnsureTable(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS tasks (
			id               TEXT PRIMARY KEY,
			project_id       TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
			title            TEXT NOT NULL,
			description      TEXT NOT NULL DEFAULT '',
			status           TEXT NOT NULL DEFAULT 'todo',
			estimated_ns     INTEGER NOT NULL DEFAULT 0 CHECK (estimated_ns >= 0),
			spent_ns         INTEGER NOT NULL DEFAULT 0 CHECK (spent_ns >= 0),
			timer_started_at TEXT,
			version          INTEGER NOT NULL DEFAULT 1,
			created_at       TEXT NOT NULL,
			updated_at       TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_tasks_project_status ON tasks(project_id, status);
		CREATE INDEX IF NOT EXISTS idx_tasks_active_timer ON tasks(project_id) WHERE timer_started_at IS NOT NULL;

		CREATE TABLE IF NOT EXISTS time_entries (
			id          TEXT PRIMARY KEY,
			task_id     TEXT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
			start_time  TEXT NOT NULL,
			end_time    TEXT NOT NULL,
			duration_ns INTEGER NOT NULL CHECK (duration_ns >= 0)
		);
		CREATE INDEX IF NOT EXISTS idx_time_entries_task_start ON time_entries(task_id, start_time);`)
	return err
}

// Create inserts a new task with no running timer and nothing spent.
func (s *SQLiteStore) Create(ctx context.Context, t *Task) (*Task, error) {
	if t.Status == "" {
		t.Status = StatusTodo
	}
	if err := validate(t); err != nil {
		return nil, err
	}
	t.ID = uuid.Must(uuid.NewV7()).String()
	t.Title = strings.TrimSpace(t.Title)
	now := time.Now().UTC().Truncate(time.Microsecond)
	t.CreatedAt = now
	t.UpdatedAt = now
	t.SpentTime = 0
	t.TimerStartedAt = nil
	t.Version = 1

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (id, project_id, title, description, status, estimated_ns, spent_ns, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, 1, ?, ?)`,
		t.ID, t.ProjectID, t.Title, t.Description, string(t.Status), int64(t.EstimatedTime),
		db.FormatTime(now), db.FormatTime(now))
	if err != nil {
		return nil, fmt.Errorf("creating task: %w", apperr.Classify(err))
	}
	return t, nil
}

// Get retrieves a single task by ID, including its project's owner.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Task, error) {
	return getTaskSQLite(ctx, s.db, id)
}

// Update modifies the editable task fields and bumps the version.
func (s *SQLiteStore) Update(ctx context.Context, id string, patch Patch) (*Task, error) {
	if err := validatePatch(patch); err != nil {
		return nil, err
	}
	sets := []string{"updated_at = ?", "version = version + 1"}
	args := []any{db.FormatTime(time.Now().Truncate(time.Microsecond))}
	add := func(col string, v any) {
		sets = append(sets, col+" = ?")
		args = append(args, v)
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

	result, err := s.db.ExecContext(ctx, "UPDATE tasks SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return nil, fmt.Errorf("updating task %s: %w", id, apperr.Classify(err))
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return nil, apperr.NotFound("task", id)
	}
	return s.Get(ctx, id)
}

// Delete removes a task and its time entries.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM tasks WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting task %s: %w", id, apperr.Classify(err))
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return apperr.NotFound("task", id)
	}
	return nil
}

// List returns one page of the owner's tasks and the total match count.
func (s *SQLiteStore) List(ctx context.Context, f Filter) ([]Task, int, error) {
	order, err := orderBy(f.Ordering)
	if err != nil {
		return nil, 0, err
	}
	where, args := f.where(func() string { return "?" }, "LIKE")

	var total int
	err = s.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM tasks t JOIN projects p ON p.id = t.project_id WHERE "+where, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("counting tasks: %w", apperr.Classify(err))
	}

	query := selectTask + " WHERE " + where + " ORDER BY " + order
	if f.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, f.Limit, f.Offset)
	}
	var rows []taskRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, fmt.Errorf("querying tasks: %w", apperr.Classify(err))
	}

	tasks := make([]Task, 0, len(rows))
	for _, r := range rows {
		tasks = append(tasks, r.task())
	}
	return tasks, total, nil
}

// UpdateTimer compare-and-swaps the timer fields on version. The UPDATE is
// the first statement of the transaction so the write lock is taken before
// anything is read.
func (s *SQLiteStore) UpdateTimer(ctx context.Context, id string, expectedVersion int64, f TimerFields, entry *TimeEntry) (*Task, error) {
	if f.SpentTime < 0 {
		return nil, apperr.Invalid("spent time must not be negative")
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", apperr.Classify(err))
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE tasks SET timer_started_at = ?, spent_ns = ?, status = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`,
		db.FormatNullTime(f.StartedAt), int64(f.SpentTime), string(f.Status),
		db.FormatTime(time.Now().Truncate(time.Microsecond)), id, expectedVersion)
	if err != nil {
		return nil, fmt.Errorf("updating timer %s: %w", id, apperr.Classify(err))
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return nil, ErrVersionMismatch
	}

	if entry != nil {
		entry.ID = uuid.Must(uuid.NewV7()).String()
		entry.TaskID = id
		_, err = tx.ExecContext(ctx, `
			INSERT INTO time_entries (id, task_id, start_time, end_time, duration_ns)
			VALUES (?, ?, ?, ?, ?)`,
			entry.ID, entry.TaskID, db.FormatTime(entry.StartTime), db.FormatTime(entry.EndTime), int64(entry.Duration))
		if err != nil {
			return nil, fmt.Errorf("inserting time entry %s: %w", id, apperr.Classify(err))
		}
	}

	t, err := getTaskSQLite(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing timer %s: %w", id, apperr.Classify(err))
	}
	return t, nil
}

// TimeEntries returns the task's most recent intervals, newest first.
func (s *SQLiteStore) TimeEntries(ctx context.Context, taskID string, limit int) ([]TimeEntry, error) {
	var rows []entryRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, task_id, start_time, end_time, duration_ns
		FROM time_entries WHERE task_id = ? ORDER BY start_time DESC LIMIT ?`, taskID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying time entries %s: %w", taskID, apperr.Classify(err))
	}
	entries := make([]TimeEntry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, TimeEntry{
			ID:        r.ID,
			TaskID:    r.TaskID,
			StartTime: db.ParseTime(r.StartTime),
			EndTime:   db.ParseTime(r.EndTime),
			Duration:  time.Duration(r.DurationNS),
		})
	}
	return entries, nil
}

func getTaskSQLite(ctx context.Context, q sqlx.QueryerContext, id string) (*Task, error) {
	var row taskRow
	err := sqlx.GetContext(ctx, q, &row, selectTask+" WHERE t.id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("task", id)
	}
	if err != nil {
		return nil, fmt.Errorf("getting task %s: %w", id, apperr.Classify(err))
	}
	t := row.task()
	return &t, nil
}

package project

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

const selectProjectSQLite = `
	SELECT p.id AS id, p.title AS title, p.description AS description, p.owner_id AS owner_id,
		p.created_at AS created_at, p.updated_at AS updated_at,
		COUNT(t.id) AS task_count,
		COALESCE(SUM(t.estimated_ns), 0) AS estimated_ns,
		COALESCE(SUM(t.spent_ns), 0) AS spent_ns
	FROM projects p LEFT JOIN tasks t ON t.project_id = p.id`

// SQLiteStore is a SQLite-backed project store.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore creates a SQLiteStore.
func NewSQLiteStore(conn *sqlx.DB) *SQLiteStore {
	return &SQLiteStore{db: conn}
}

type projectRow struct {
	ID          string `db:"id"`
	Title       string `db:"title"`
	Description string `db:"description"`
	OwnerID     string `db:"owner_id"`
	CreatedAt   string `db:"created_at"`
	UpdatedAt   string `db:"updated_at"`
	TaskCount   int    `db:"task_count"`
	EstimatedNS int64  `db:"estimated_ns"`
	SpentNS     int64  `db:"spent_ns"`
}

func (r projectRow) project() Project {
	return Project{
		ID:             r.ID,
		Title:          r.Title,
		Description:    r.Description,
		OwnerID:        r.OwnerID,
		CreatedAt:      db.ParseTime(r.CreatedAt),
		UpdatedAt:      db.ParseTime(r.UpdatedAt),
		TaskCount:      r.TaskCount,
		TotalEstimated: time.Duration(r.EstimatedNS),
		TotalSpent:     time.Duration(r.SpentNS),
	}
}

// EnsureTable creates the projects table if it doesn't exist.
func (s *SQLiteStore) EnsureTable(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS projects (
			id          TEXT PRIMARY KEY,
			title       TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			owner_id    TEXT NOT NULL REFERENCES actors(id) ON DELETE CASCADE,
			created_at  TEXT NOT NULL,
			updated_at  TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_projects_owner_created ON projects(owner_id, created_at);
		CREATE INDEX IF NOT EXISTS idx_projects_title ON projects(title);`)
	return err
}

// Create inserts a new project.
func (s *SQLiteStore) Create(ctx context.Context, p *Project) (*Project, error) {
	if err := ValidateTitle(p.Title); err != nil {
		return nil, err
	}
	p.ID = uuid.Must(uuid.NewV7()).String()
	p.Title = strings.TrimSpace(p.Title)
	now := time.Now().UTC().Truncate(time.Microsecond)
	p.CreatedAt = now
	p.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO projects (id, title, description, owner_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.Title, p.Description, p.OwnerID, db.FormatTime(now), db.FormatTime(now))
	if err != nil {
		return nil, fmt.Errorf("creating project: %w", apperr.Classify(err))
	}
	return p, nil
}

// Get retrieves a single project with its task aggregates.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Project, error) {
	var row projectRow
	err := s.db.GetContext(ctx, &row, selectProjectSQLite+` WHERE p.id = ? GROUP BY p.id`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("project", id)
	}
	if err != nil {
		return nil, fmt.Errorf("getting project %s: %w", id, apperr.Classify(err))
	}
	p := row.project()
	return &p, nil
}

// Update modifies the project's title and/or description.
func (s *SQLiteStore) Update(ctx context.Context, id string, patch Patch) (*Project, error) {
	sets := []string{"updated_at = ?"}
	args := []any{db.FormatTime(time.Now().Truncate(time.Microsecond))}

	if patch.Title != nil {
		if err := ValidateTitle(*patch.Title); err != nil {
			return nil, err
		}
		sets = append(sets, "title = ?")
		args = append(args, strings.TrimSpace(*patch.Title))
	}
	if patch.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *patch.Description)
	}
	args = append(args, id)

	result, err := s.db.ExecContext(ctx, "UPDATE projects SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return nil, fmt.Errorf("updating project %s: %w", id, apperr.Classify(err))
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return nil, apperr.NotFound("project", id)
	}
	return s.Get(ctx, id)
}

// Delete removes a project; its tasks and time entries go with it.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM projects WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting project %s: %w", id, apperr.Classify(err))
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return apperr.NotFound("project", id)
	}
	return nil
}

// List returns one page of the owner's projects and the total match count.
func (s *SQLiteStore) List(ctx context.Context, f Filter) ([]Project, int, error) {
	order, err := orderBy(f.Ordering)
	if err != nil {
		return nil, 0, err
	}
	where, args := f.where(func() string { return "?" }, "LIKE", func(t time.Time) any { return db.FormatTime(t) })

	var total int
	if err := s.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM projects p WHERE "+where, args...); err != nil {
		return nil, 0, fmt.Errorf("counting projects: %w", apperr.Classify(err))
	}

	query := selectProjectSQLite + " WHERE " + where + " GROUP BY p.id ORDER BY " + order
	if f.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, f.Limit, f.Offset)
	}
	var rows []projectRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, fmt.Errorf("querying projects: %w", apperr.Classify(err))
	}

	projects := make([]Project, 0, len(rows))
	for _, r := range rows {
		projects = append(projects, r.project())
	}
	return projects, total, nil
}

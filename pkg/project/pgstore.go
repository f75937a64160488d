package project

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

const selectProject = `
	SELECT p.id, p.title, p.description, p.owner_id, p.created_at, p.updated_at,
		COUNT(t.id), COALESCE(SUM(t.estimated_ns), 0)::BIGINT, COALESCE(SUM(t.spent_ns), 0)::BIGINT
	FROM projects p LEFT JOIN tasks t ON t.project_id = p.id`

// PgStore is a PostgreSQL-backed project store.
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore creates a PgStore.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// EnsureTable creates the projects table if it doesn't exist. The actors
// table must exist first.
func (s *PgStore) EnsureTable(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS projects (
			id          TEXT PRIMARY KEY,
			title       TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			owner_id    TEXT NOT NULL REFERENCES actors(id) ON DELETE CASCADE,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS idx_projects_owner_created ON projects(owner_id, created_at)`)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS idx_projects_title ON projects(title)`)
	return err
}

// Create inserts a new project.
func (s *PgStore) Create(ctx context.Context, p *Project) (*Project, error) {
	if err := ValidateTitle(p.Title); err != nil {
		return nil, err
	}
	p.ID = uuid.Must(uuid.NewV7()).String()
	p.Title = strings.TrimSpace(p.Title)
	now := time.Now().Truncate(time.Microsecond)
	p.CreatedAt = now
	p.UpdatedAt = now

	_, err := s.pool.Exec(ctx, `
		INSERT INTO projects (id, title, description, owner_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		p.ID, p.Title, p.Description, p.OwnerID, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("create project: %w", apperr.Classify(err))
	}
	return p, nil
}

// Get retrieves a single project with its task aggregates.
func (s *PgStore) Get(ctx context.Context, id string) (*Project, error) {
	p, err := scanProject(s.pool.QueryRow(ctx, selectProject+` WHERE p.id = $1 GROUP BY p.id`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("project", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get project %s: %w", id, apperr.Classify(err))
	}
	return p, nil
}

// Update modifies the project's title and/or description.
func (s *PgStore) Update(ctx context.Context, id string, patch Patch) (*Project, error) {
	now := time.Now().Truncate(time.Microsecond)
	setClauses := "updated_at = $1"
	args := []any{now}

	if patch.Title != nil {
		if err := ValidateTitle(*patch.Title); err != nil {
			return nil, err
		}
		args = append(args, strings.TrimSpace(*patch.Title))
		setClauses += fmt.Sprintf(", title = $%d", len(args))
	}
	if patch.Description != nil {
		args = append(args, *patch.Description)
		setClauses += fmt.Sprintf(", description = $%d", len(args))
	}
	args = append(args, id)

	tag, err := s.pool.Exec(ctx, fmt.Sprintf("UPDATE projects SET %s WHERE id = $%d", setClauses, len(args)), args...)
	if err != nil {
		return nil, fmt.Errorf("update project %s: %w", id, apperr.Classify(err))
	}
	if tag.RowsAffected() == 0 {
		return nil, apperr.NotFound("project", id)
	}
	return s.Get(ctx, id)
}

// Delete removes a project; its tasks and time entries go with it.
func (s *PgStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM projects WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete project %s: %w", id, apperr.Classify(err))
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("project", id)
	}
	return nil
}

// List returns one page of the owner's projects and the total match count.
func (s *PgStore) List(ctx context.Context, f Filter) ([]Project, int, error) {
	order, err := orderBy(f.Ordering)
	if err != nil {
		return nil, 0, err
	}
	n := 0
	ph := func() string { n++; return fmt.Sprintf("$%d", n) }
	where, args := f.where(ph, "ILIKE", func(t time.Time) any { return t })

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM projects p WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count projects: %w", apperr.Classify(err))
	}

	query := selectProject + ` WHERE ` + where + ` GROUP BY p.id ORDER BY ` + order
	if f.Limit > 0 {
		args = append(args, f.Limit, f.Offset)
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list projects: %w", apperr.Classify(err))
	}
	defer rows.Close()

	projects := []Project{}
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, 0, err
		}
		projects = append(projects, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("row iteration: %w", apperr.Classify(err))
	}
	return projects, total, nil
}

func scanProject(row pgx.Row) (*Project, error) {
	var p Project
	var estimated, spent int64
	if err := row.Scan(&p.ID, &p.Title, &p.Description, &p.OwnerID, &p.CreatedAt, &p.UpdatedAt,
		&p.TaskCount, &estimated, &spent); err != nil {
		return nil, err
	}
	p.TotalEstimated = time.Duration(estimated)
	p.TotalSpent = time.Duration(spent)
	return &p, nil
}

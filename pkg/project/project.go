package project

import (
	"context"
	"fmt"
	"strings"
	"time"

	"project-api/pkg/apperr"
)

// Project groups tasks under a single owner.
type Project struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	OwnerID     string    `json:"owner_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	// Read-model aggregates over the project's tasks.
	TaskCount      int           `json:"task_count"`
	TotalEstimated time.Duration `json:"-"`
	TotalSpent     time.Duration `json:"-"`
}

// Patch holds the mutable fields of a project; nil means unchanged.
type Patch struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
}

// Filter narrows a project listing. OwnerID is always applied.
type Filter struct {
	OwnerID       string
	Search        string // title or description contains
	Title         string
	Description   string
	TaskStatus    string // projects having at least one task in this status
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
	Ordering      string // title, created, updated; "-" prefix for descending
	Limit         int
	Offset        int
}

// Store is the contract for project persistence.
type Store interface {
	Create(ctx context.Context, p *Project) (*Project, error)
	Get(ctx context.Context, id string) (*Project, error)
	Update(ctx context.Context, id string, patch Patch) (*Project, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, f Filter) ([]Project, int, error)
	EnsureTable(ctx context.Context) error
}

const maxTitleLen = 255

// ValidateTitle checks a project title.
func ValidateTitle(title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return apperr.Invalid("title is required")
	}
	if len(title) > maxTitleLen {
		return apperr.Invalid("title must be at most %d characters", maxTitleLen)
	}
	return nil
}

var orderColumns = map[string]string{
	"title":   "p.title",
	"created": "p.created_at",
	"updated": "p.updated_at",
}

// orderBy turns an ordering parameter into an ORDER BY clause, defaulting to
// newest first. Unknown fields are rejected.
func orderBy(ordering string) (string, error) {
	if ordering == "" {
		return "p.created_at DESC, p.id DESC", nil
	}
	dir := "ASC"
	field := ordering
	if strings.HasPrefix(ordering, "-") {
		dir = "DESC"
		field = ordering[1:]
	}
	col, ok := orderColumns[field]
	if !ok {
		return "", apperr.Invalid("unknown ordering %q", ordering)
	}
	return fmt.Sprintf("%s %s, p.id %s", col, dir, dir), nil
}

// where builds the WHERE clause for f. ph returns the next placeholder and
// like is the case-insensitive match operator of the dialect.
func (f Filter) where(ph func() string, like string, formatTime func(time.Time) any) (string, []any) {
	conds := []string{"p.owner_id = " + ph()}
	args := []any{f.OwnerID}

	if f.Search != "" {
		a, b := ph(), ph()
		conds = append(conds, fmt.Sprintf("(p.title %s %s OR p.description %s %s)", like, a, like, b))
		q := "%" + f.Search + "%"
		args = append(args, q, q)
	}
	if f.Title != "" {
		conds = append(conds, fmt.Sprintf("p.title %s %s", like, ph()))
		args = append(args, "%"+f.Title+"%")
	}
	if f.Description != "" {
		conds = append(conds, fmt.Sprintf("p.description %s %s", like, ph()))
		args = append(args, "%"+f.Description+"%")
	}
	if f.TaskStatus != "" {
		conds = append(conds, "EXISTS (SELECT 1 FROM tasks ts WHERE ts.project_id = p.id AND ts.status = "+ph()+")")
		args = append(args, f.TaskStatus)
	}
	if f.CreatedAfter != nil {
		conds = append(conds, "p.created_at >= "+ph())
		args = append(args, formatTime(*f.CreatedAfter))
	}
	if f.CreatedBefore != nil {
		conds = append(conds, "p.created_at <= "+ph())
		args = append(args, formatTime(*f.CreatedBefore))
	}
	return strings.Join(conds, " AND "), args
}

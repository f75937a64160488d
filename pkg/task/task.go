package task

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"project-api/pkg/apperr"
)

// Status is the workflow state of a task.
type Status string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in_progress"
	StatusDone       Status = "done"
)

// Statuses lists every status in workflow order.
var Statuses = []Status{StatusTodo, StatusInProgress, StatusDone}

// ParseStatus validates a status string.
func ParseStatus(s string) (Status, error) {
	for _, st := range Statuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", apperr.Invalid("unknown status %q", s)
}

// Task is a unit of work inside a project. SpentTime only changes when a
// timer stops; TimerStartedAt is set iff a timer is running.
type Task struct {
	ID             string        `json:"id"`
	ProjectID      string        `json:"project_id"`
	OwnerID        string        `json:"-"`
	Title          string        `json:"title"`
	Description    string        `json:"description"`
	Status         Status        `json:"status"`
	EstimatedTime  time.Duration `json:"-"`
	SpentTime      time.Duration `json:"-"`
	TimerStartedAt *time.Time    `json:"timer_started_at"`
	Version        int64         `json:"version"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// HasActiveTimer reports whether a timer is running on the task.
func (t *Task) HasActiveTimer() bool {
	return t.TimerStartedAt != nil
}

// TimeEntry is one completed timer interval.
type TimeEntry struct {
	ID        string        `json:"id"`
	TaskID    string        `json:"task_id"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"-"`
}

// Patch holds the user-editable fields of a task; nil means unchanged.
// Timer fields are not editable here.
type Patch struct {
	ProjectID     *string
	Title         *string
	Description   *string
	Status        *Status
	EstimatedTime *time.Duration
}

// TimerFields is the complete timer state written by UpdateTimer.
type TimerFields struct {
	StartedAt *time.Time
	SpentTime time.Duration
	Status    Status
}

// ErrVersionMismatch is returned by UpdateTimer when the task changed (or
// vanished) since it was read.
var ErrVersionMismatch = errors.New("task version mismatch")

// Filter narrows a task listing. OwnerID is always applied.
type Filter struct {
	OwnerID        string
	ProjectID      string
	Status         Status
	Search         string
	Title          string
	Description    string
	HasActiveTimer *bool
	Ordering       string // title, status, created, updated; "-" prefix for descending
	Limit          int
	Offset         int
}

// Store is the contract for task persistence.
type Store interface {
	Create(ctx context.Context, t *Task) (*Task, error)
	Get(ctx context.Context, id string) (*Task, error)
	Update(ctx context.Context, id string, patch Patch) (*Task, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, f Filter) ([]Task, int, error)

	// UpdateTimer writes the timer fields if the task still has
	// expectedVersion, and inserts entry (when non-nil) in the same
	// transaction. It returns ErrVersionMismatch when the version moved on.
	UpdateTimer(ctx context.Context, id string, expectedVersion int64, f TimerFields, entry *TimeEntry) (*Task, error)

	// TimeEntries returns the most recent completed intervals of a task.
	TimeEntries(ctx context.Context, taskID string, limit int) ([]TimeEntry, error)

	EnsureTable(ctx context.Context) error
}

const maxTitleLen = 255

func validate(t *Task) error {
	title := strings.TrimSpace(t.Title)
	if title == "" {
		return apperr.Invalid("title is required")
	}
	if len(title) > maxTitleLen {
		return apperr.Invalid("title must be at most %d characters", maxTitleLen)
	}
	if t.ProjectID == "" {
		return apperr.Invalid("project_id is required")
	}
	if t.EstimatedTime < 0 {
		return apperr.Invalid("estimated time must not be negative")
	}
	if _, err := ParseStatus(string(t.Status)); err != nil {
		return err
	}
	return nil
}

func validatePatch(p Patch) error {
	if p.Title != nil {
		title := strings.TrimSpace(*p.Title)
		if title == "" {
			return apperr.Invalid("title is required")
		}
		if len(title) > maxTitleLen {
			return apperr.Invalid("title must be at most %d characters", maxTitleLen)
		}
	}
	if p.Status != nil {
		if _, err := ParseStatus(string(*p.Status)); err != nil {
			return err
		}
	}
	if p.EstimatedTime != nil && *p.EstimatedTime < 0 {
		return apperr.Invalid("estimated time must not be negative")
	}
	if p.ProjectID != nil && *p.ProjectID == "" {
		return apperr.Invalid("project_id must not be empty")
	}
	return nil
}

var orderColumns = map[string]string{
	"title":   "t.title",
	"status":  "t.status",
	"created": "t.created_at",
	"updated": "t.updated_at",
}

func orderBy(ordering string) (string, error) {
	if ordering == "" {
		return "t.created_at DESC, t.id DESC", nil
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
	return fmt.Sprintf("%s %s, t.id %s", col, dir, dir), nil
}

func (f Filter) where(ph func() string, like string) (string, []any) {
	conds := []string{"p.owner_id = " + ph()}
	args := []any{f.OwnerID}

	if f.ProjectID != "" {
		conds = append(conds, "t.project_id = "+ph())
		args = append(args, f.ProjectID)
	}
	if f.Status != "" {
		conds = append(conds, "t.status = "+ph())
		args = append(args, string(f.Status))
	}
	if f.Search != "" {
		a, b := ph(), ph()
		conds = append(conds, fmt.Sprintf("(t.title %s %s OR t.description %s %s)", like, a, like, b))
		q := "%" + f.Search + "%"
		args = append(args, q, q)
	}
	if f.Title != "" {
		conds = append(conds, fmt.Sprintf("t.title %s %s", like, ph()))
		args = append(args, "%"+f.Title+"%")
	}
	if f.Description != "" {
		conds = append(conds, fmt.Sprintf("t.description %s %s", like, ph()))
		args = append(args, "%"+f.Description+"%")
	}
	if f.HasActiveTimer != nil {
		if *f.HasActiveTimer {
			conds = append(conds, "t.timer_started_at IS NOT NULL")
		} else {
			conds = append(conds, "t.timer_started_at IS NULL")
		}
	}
	return strings.Join(conds, " AND "), args
}

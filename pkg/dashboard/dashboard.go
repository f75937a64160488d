package dashboard

import (
	"context"
	"time"

	"project-api/pkg/apperr"
	"project-api/pkg/task"
)

const dateLayout = "2006-01-02"

// Range restricts time-entry based figures to calendar days (UTC), both
// ends inclusive. A nil end is open.
type Range struct {
	From *time.Time `json:"from,omitempty"`
	To   *time.Time `json:"to,omitempty"`
}

// ParseRange parses optional YYYY-MM-DD bounds.
func ParseRange(start, end string) (Range, error) {
	var r Range
	if start != "" {
		t, err := time.Parse(dateLayout, start)
		if err != nil {
			return Range{}, apperr.Invalid("invalid start_date format, use YYYY-MM-DD")
		}
		r.From = &t
	}
	if end != "" {
		t, err := time.Parse(dateLayout, end)
		if err != nil {
			return Range{}, apperr.Invalid("invalid end_date format, use YYYY-MM-DD")
		}
		r.To = &t
	}
	if r.From != nil && r.To != nil && r.From.After(*r.To) {
		return Range{}, apperr.Invalid("start_date must not be after end_date")
	}
	return r, nil
}

// IsZero reports whether the range is unbounded on both ends.
func (r Range) IsZero() bool {
	return r.From == nil && r.To == nil
}

// lower and upper return the half-open instant bounds [lower, upper).
func (r Range) lower() (time.Time, bool) {
	if r.From == nil {
		return time.Time{}, false
	}
	return r.From.UTC(), true
}

func (r Range) upper() (time.Time, bool) {
	if r.To == nil {
		return time.Time{}, false
	}
	return r.To.UTC().AddDate(0, 0, 1), true
}

// key renders the range for cache keys.
func (r Range) key() string {
	from, to := "", ""
	if r.From != nil {
		from = r.From.Format(dateLayout)
	}
	if r.To != nil {
		to = r.To.Format(dateLayout)
	}
	return from + ".." + to
}

// ProjectTime is the time spent on one project.
type ProjectTime struct {
	ProjectID string        `json:"project_id"`
	Title     string        `json:"title"`
	Spent     time.Duration `json:"spent_ns"`
}

// ActiveTimer is a task whose timer is running.
type ActiveTimer struct {
	TaskID    string    `json:"task_id"`
	Title     string    `json:"title"`
	ProjectID string    `json:"project_id"`
	StartedAt time.Time `json:"started_at"`
}

// Metrics is the dashboard of one actor.
type Metrics struct {
	ProjectCount   int                 `json:"project_count"`
	TaskCount      int                 `json:"task_count"`
	TaskCounts     map[task.Status]int `json:"task_counts"`
	TotalEstimated time.Duration       `json:"total_estimated_ns"`
	TotalSpent     time.Duration       `json:"total_spent_ns"`
	PerProject     []ProjectTime       `json:"per_project"`
	ActiveTimers   []ActiveTimer       `json:"active_timers"`
	Range          Range               `json:"range"`
	GeneratedAt    time.Time           `json:"generated_at"`
}

func newMetrics(r Range) *Metrics {
	m := &Metrics{
		TaskCounts:   make(map[task.Status]int, len(task.Statuses)),
		PerProject:   []ProjectTime{},
		ActiveTimers: []ActiveTimer{},
		Range:        r,
		GeneratedAt:  time.Now().UTC(),
	}
	for _, s := range task.Statuses {
		m.TaskCounts[s] = 0
	}
	return m
}

// Store computes metrics with aggregate queries scoped to one actor.
type Store interface {
	Summarize(ctx context.Context, actorID string, r Range) (*Metrics, error)
}

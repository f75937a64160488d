package api

import (
	"fmt"
	"time"

	"project-api/pkg/actor"
	"project-api/pkg/dashboard"
	"project-api/pkg/project"
	"project-api/pkg/task"
)

// hours renders d as zero-padded HH:MM; hours may exceed 24.
func hours(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	m := int64(d / time.Minute)
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}

func seconds(d time.Duration) int64 {
	return int64(d / time.Second)
}

type actorView struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	FullName  string    `json:"full_name"`
	Phone     string    `json:"phone"`
	CreatedAt time.Time `json:"created_at"`
}

func newActorView(a *actor.Actor) actorView {
	return actorView{
		ID:        a.ID,
		Email:     a.Email,
		FirstName: a.FirstName,
		LastName:  a.LastName,
		FullName:  a.FullName(),
		Phone:     a.Phone,
		CreatedAt: a.CreatedAt,
	}
}

type taskView struct {
	ID               string      `json:"id"`
	ProjectID        string      `json:"project_id"`
	Title            string      `json:"title"`
	Description      string      `json:"description"`
	Status           task.Status `json:"status"`
	EstimatedSeconds int64       `json:"estimated_seconds"`
	EstimatedHours   string      `json:"estimated_hours"`
	SpentSeconds     int64       `json:"spent_seconds"`
	SpentHours       string      `json:"spent_hours"`
	TimerStartedAt   *time.Time  `json:"timer_started_at"`
	HasActiveTimer   bool        `json:"has_active_timer"`
	Version          int64       `json:"version"`
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
	TimeEntries      []entryView `json:"time_entries,omitempty"`
}

func newTaskView(t *task.Task) taskView {
	return taskView{
		ID:               t.ID,
		ProjectID:        t.ProjectID,
		Title:            t.Title,
		Description:      t.Description,
		Status:           t.Status,
		EstimatedSeconds: seconds(t.EstimatedTime),
		EstimatedHours:   hours(t.EstimatedTime),
		SpentSeconds:     seconds(t.SpentTime),
		SpentHours:       hours(t.SpentTime),
		TimerStartedAt:   t.TimerStartedAt,
		HasActiveTimer:   t.HasActiveTimer(),
		Version:          t.Version,
		CreatedAt:        t.CreatedAt,
		UpdatedAt:        t.UpdatedAt,
	}
}

type entryView struct {
	ID              string    `json:"id"`
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
	DurationSeconds int64     `json:"duration_seconds"`
	DurationHours   string    `json:"duration_hours"`
}

func newEntryView(e *task.TimeEntry) entryView {
	return entryView{
		ID:              e.ID,
		StartTime:       e.StartTime,
		EndTime:         e.EndTime,
		DurationSeconds: seconds(e.Duration),
		DurationHours:   hours(e.Duration),
	}
}

type projectView struct {
	ID                    string     `json:"id"`
	Title                 string     `json:"title"`
	Description           string     `json:"description"`
	OwnerID               string     `json:"owner_id"`
	TaskCount             int        `json:"task_count"`
	TotalEstimatedSeconds int64      `json:"total_estimated_seconds"`
	TotalEstimatedHours   string     `json:"total_estimated_hours"`
	TotalSpentSeconds     int64      `json:"total_spent_seconds"`
	TotalSpentHours       string     `json:"total_spent_hours"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
	Tasks                 []taskView `json:"tasks,omitempty"`
}

func newProjectView(p *project.Project) projectView {
	return projectView{
		ID:                    p.ID,
		Title:                 p.Title,
		Description:           p.Description,
		OwnerID:               p.OwnerID,
		TaskCount:             p.TaskCount,
		TotalEstimatedSeconds: seconds(p.TotalEstimated),
		TotalEstimatedHours:   hours(p.TotalEstimated),
		TotalSpentSeconds:     seconds(p.TotalSpent),
		TotalSpentHours:       hours(p.TotalSpent),
		CreatedAt:             p.CreatedAt,
		UpdatedAt:             p.UpdatedAt,
	}
}

type projectTimeView struct {
	ProjectID    string `json:"project_id"`
	Title        string `json:"title"`
	SpentSeconds int64  `json:"spent_seconds"`
	SpentHours   string `json:"spent_hours"`
}

type activeTimerView struct {
	TaskID         string    `json:"task_id"`
	Title          string    `json:"title"`
	ProjectID      string    `json:"project_id"`
	StartedAt      time.Time `json:"started_at"`
	ElapsedSeconds int64     `json:"elapsed_seconds"`
}

type dateRangeView struct {
	StartDate string `json:"start_date,omitempty"`
	EndDate   string `json:"end_date,omitempty"`
}

type dashboardView struct {
	ProjectCount          int                 `json:"project_count"`
	TaskCount             int                 `json:"task_count"`
	TaskCounts            map[task.Status]int `json:"task_counts"`
	TotalEstimatedSeconds int64               `json:"total_estimated_seconds"`
	TotalEstimatedHours   string              `json:"total_estimated_hours"`
	TotalSpentSeconds     int64               `json:"total_spent_seconds"`
	TotalSpentHours       string              `json:"total_spent_hours"`
	TimeSpentPerProject   []projectTimeView   `json:"time_spent_per_project"`
	ActiveTimers          []activeTimerView   `json:"active_timers"`
	DateRange             *dateRangeView      `json:"date_range,omitempty"`
	GeneratedAt           time.Time           `json:"generated_at"`
}

func newDashboardView(m *dashboard.Metrics, now time.Time) dashboardView {
	v := dashboardView{
		ProjectCount:          m.ProjectCount,
		TaskCount:             m.TaskCount,
		TaskCounts:            m.TaskCounts,
		TotalEstimatedSeconds: seconds(m.TotalEstimated),
		TotalEstimatedHours:   hours(m.TotalEstimated),
		TotalSpentSeconds:     seconds(m.TotalSpent),
		TotalSpentHours:       hours(m.TotalSpent),
		TimeSpentPerProject:   make([]projectTimeView, 0, len(m.PerProject)),
		ActiveTimers:          make([]activeTimerView, 0, len(m.ActiveTimers)),
		GeneratedAt:           m.GeneratedAt,
	}
	for _, pt := range m.PerProject {
		v.TimeSpentPerProject = append(v.TimeSpentPerProject, projectTimeView{
			ProjectID:    pt.ProjectID,
			Title:        pt.Title,
			SpentSeconds: seconds(pt.Spent),
			SpentHours:   hours(pt.Spent),
		})
	}
	for _, at := range m.ActiveTimers {
		elapsed := now.Sub(at.StartedAt)
		if elapsed < 0 {
			elapsed = 0
		}
		v.ActiveTimers = append(v.ActiveTimers, activeTimerView{
			TaskID:         at.TaskID,
			Title:          at.Title,
			ProjectID:      at.ProjectID,
			StartedAt:      at.StartedAt,
			ElapsedSeconds: seconds(elapsed),
		})
	}
	if !m.Range.IsZero() {
		v.DateRange = &dateRangeView{}
		if m.Range.From != nil {
			v.DateRange.StartDate = m.Range.From.Format("2006-01-02")
		}
		if m.Range.To != nil {
			v.DateRange.EndDate = m.Range.To.Format("2006-01-02")
		}
	}
	return v
}

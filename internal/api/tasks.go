package api

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"project-api/pkg/apperr"
	"project-api/pkg/events"
	"project-api/pkg/task"
)

const recentEntries = 20

// ownedTask loads a task and checks that the actor owns its project.
func (s *Server) ownedTask(ctx context.Context, id, actorID string) (*task.Task, error) {
	t, err := s.Tasks.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.OwnerID != actorID {
		return nil, fmt.Errorf("task %s: %w", id, apperr.ErrForbidden)
	}
	return t, nil
}

// checkProject verifies a task may be placed in projectID.
func (s *Server) checkProject(ctx context.Context, projectID, actorID string) error {
	_, err := s.ownedProject(ctx, projectID, actorID)
	if errors.Is(err, apperr.ErrNotFound) || errors.Is(err, apperr.ErrForbidden) {
		return apperr.Invalid("project %s is not one of your projects", projectID)
	}
	return err
}

func (s *Server) handleTaskList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := task.Filter{
		OwnerID:     actorFrom(r.Context()).ID,
		ProjectID:   q.Get("project"),
		Search:      q.Get("search"),
		Title:       q.Get("title"),
		Description: q.Get("description"),
		Ordering:    q.Get("ordering"),
	}
	if st := q.Get("status"); st != "" {
		status, err := task.ParseStatus(st)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		f.Status = status
	}
	active, err := queryBool(r, "has_active_timer")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	f.HasActiveTimer = active
	pg := pageOf(r)
	f.Limit, f.Offset = pg.Size, pg.offset()

	tasks, total, err := s.Tasks.List(r.Context(), f)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	views := make([]taskView, 0, len(tasks))
	for i := range tasks {
		views = append(views, newTaskView(&tasks[i]))
	}
	writeJSON(w, 200, listResponse{Count: total, Page: pg.Number, PageSize: pg.Size, Results: views})
}

type taskRequest struct {
	ProjectID        *string      `json:"project_id"`
	Title            *string      `json:"title"`
	Description      *string      `json:"description"`
	Status           *task.Status `json:"status"`
	EstimatedSeconds *int64       `json:"estimated_seconds"`
}

// maxEstimatedSeconds is the largest estimate a time.Duration can hold.
const maxEstimatedSeconds = math.MaxInt64 / int64(time.Second)

func (req taskRequest) estimated() (*time.Duration, error) {
	if req.EstimatedSeconds == nil {
		return nil, nil
	}
	secs := *req.EstimatedSeconds
	if secs < 0 || secs > maxEstimatedSeconds {
		return nil, apperr.Invalid("estimated_seconds must be between 0 and %d", maxEstimatedSeconds)
	}
	d := time.Duration(secs) * time.Second
	return &d, nil
}

func (s *Server) handleTaskCreate(w http.ResponseWriter, r *http.Request) {
	var req taskRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if req.ProjectID == nil || *req.ProjectID == "" {
		s.fail(w, r, apperr.Invalid("project_id is required"))
		return
	}
	if req.Title == nil {
		s.fail(w, r, apperr.Invalid("title is required"))
		return
	}
	est, err := req.estimated()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	a := actorFrom(r.Context())
	if err := s.checkProject(r.Context(), *req.ProjectID, a.ID); err != nil {
		s.fail(w, r, err)
		return
	}

	t := &task.Task{ProjectID: *req.ProjectID, Title: *req.Title}
	if req.Description != nil {
		t.Description = *req.Description
	}
	if req.Status != nil {
		t.Status = *req.Status
	}
	if est != nil {
		t.EstimatedTime = *est
	}
	created, err := s.Tasks.Create(r.Context(), t)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.publish(r.Context(), events.TaskCreated, a.ID, created.ProjectID, created.ID)
	writeJSON(w, 201, newTaskView(created))
}

func (s *Server) handleTaskGet(w http.ResponseWriter, r *http.Request) {
	t, err := s.ownedTask(r.Context(), r.PathValue("id"), actorFrom(r.Context()).ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	entries, err := s.Tasks.TimeEntries(r.Context(), t.ID, recentEntries)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	v := newTaskView(t)
	v.TimeEntries = make([]entryView, 0, len(entries))
	for i := range entries {
		v.TimeEntries = append(v.TimeEntries, newEntryView(&entries[i]))
	}
	writeJSON(w, 200, v)
}

func (s *Server) handleTaskUpdate(w http.ResponseWriter, r *http.Request) {
	a := actorFrom(r.Context())
	id := r.PathValue("id")
	if _, err := s.ownedTask(r.Context(), id, a.ID); err != nil {
		s.fail(w, r, err)
		return
	}
	var req taskRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if r.Method == http.MethodPut && (req.Title == nil || req.ProjectID == nil) {
		s.fail(w, r, apperr.Invalid("title and project_id are required"))
		return
	}
	est, err := req.estimated()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if req.ProjectID != nil {
		if err := s.checkProject(r.Context(), *req.ProjectID, a.ID); err != nil {
			s.fail(w, r, err)
			return
		}
	}
	t, err := s.Tasks.Update(r.Context(), id, task.Patch{
		ProjectID:     req.ProjectID,
		Title:         req.Title,
		Description:   req.Description,
		Status:        req.Status,
		EstimatedTime: est,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.publish(r.Context(), events.TaskUpdated, a.ID, t.ProjectID, t.ID)
	writeJSON(w, 200, newTaskView(t))
}

func (s *Server) handleTaskDelete(w http.ResponseWriter, r *http.Request) {
	a := actorFrom(r.Context())
	id := r.PathValue("id")
	t, err := s.ownedTask(r.Context(), id, a.ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.Tasks.Delete(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	s.publish(r.Context(), events.TaskDeleted, a.ID, t.ProjectID, id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStartTimer(w http.ResponseWriter, r *http.Request) {
	res, err := s.Timers.Start(r.Context(), r.PathValue("id"), actorFrom(r.Context()).ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, 201, map[string]any{
		"message": "timer started",
		"task":    newTaskView(res.Task),
	})
}

func (s *Server) handleStopTimer(w http.ResponseWriter, r *http.Request) {
	res, err := s.Timers.Stop(r.Context(), r.PathValue("id"), actorFrom(r.Context()).ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, 200, map[string]any{
		"message":    "timer stopped",
		"task":       newTaskView(res.Task),
		"time_entry": newEntryView(res.Entry),
	})
}

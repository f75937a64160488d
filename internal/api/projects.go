package api

import (
	"context"
	"fmt"
	"net/http"

	"project-api/pkg/apperr"
	"project-api/pkg/events"
	"project-api/pkg/project"
	"project-api/pkg/task"
)

// ownedProject loads a project and checks that the actor owns it.
func (s *Server) ownedProject(ctx context.Context, id, actorID string) (*project.Project, error) {
	p, err := s.Projects.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.OwnerID != actorID {
		return nil, fmt.Errorf("project %s: %w", id, apperr.ErrForbidden)
	}
	return p, nil
}

func (s *Server) handleProjectList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := project.Filter{
		OwnerID:     actorFrom(r.Context()).ID,
		Search:      q.Get("search"),
		Title:       q.Get("title"),
		Description: q.Get("description"),
		Ordering:    q.Get("ordering"),
	}
	if st := q.Get("task_status"); st != "" {
		if _, err := task.ParseStatus(st); err != nil {
			s.fail(w, r, err)
			return
		}
		f.TaskStatus = st
	}
	var err error
	if f.CreatedAfter, err = queryTime(r, "created_after"); err != nil {
		s.fail(w, r, err)
		return
	}
	if f.CreatedBefore, err = queryTime(r, "created_before"); err != nil {
		s.fail(w, r, err)
		return
	}
	pg := pageOf(r)
	f.Limit, f.Offset = pg.Size, pg.offset()

	projects, total, err := s.Projects.List(r.Context(), f)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	views := make([]projectView, 0, len(projects))
	for i := range projects {
		views = append(views, newProjectView(&projects[i]))
	}
	writeJSON(w, 200, listResponse{Count: total, Page: pg.Number, PageSize: pg.Size, Results: views})
}

func (s *Server) handleProjectCreate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title       string `json:"title"`
		Description string `json:"description"`
	}
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	a := actorFrom(r.Context())
	p, err := s.Projects.Create(r.Context(), &project.Project{
		Title:       req.Title,
		Description: req.Description,
		OwnerID:     a.ID,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.publish(r.Context(), events.ProjectCreated, a.ID, p.ID, "")
	writeJSON(w, 201, newProjectView(p))
}

func (s *Server) handleProjectGet(w http.ResponseWriter, r *http.Request) {
	a := actorFrom(r.Context())
	p, err := s.ownedProject(r.Context(), r.PathValue("id"), a.ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	tasks, _, err := s.Tasks.List(r.Context(), task.Filter{OwnerID: a.ID, ProjectID: p.ID})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	v := newProjectView(p)
	v.Tasks = make([]taskView, 0, len(tasks))
	for i := range tasks {
		v.Tasks = append(v.Tasks, newTaskView(&tasks[i]))
	}
	writeJSON(w, 200, v)
}

func (s *Server) handleProjectUpdate(w http.ResponseWriter, r *http.Request) {
	a := actorFrom(r.Context())
	id := r.PathValue("id")
	if _, err := s.ownedProject(r.Context(), id, a.ID); err != nil {
		s.fail(w, r, err)
		return
	}
	var patch project.Patch
	if err := decode(w, r, &patch); err != nil {
		s.fail(w, r, err)
		return
	}
	if r.Method == http.MethodPut && patch.Title == nil {
		s.fail(w, r, apperr.Invalid("title is required"))
		return
	}
	p, err := s.Projects.Update(r.Context(), id, patch)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.publish(r.Context(), events.ProjectUpdated, a.ID, p.ID, "")
	writeJSON(w, 200, newProjectView(p))
}

func (s *Server) handleProjectDelete(w http.ResponseWriter, r *http.Request) {
	a := actorFrom(r.Context())
	id := r.PathValue("id")
	if _, err := s.ownedProject(r.Context(), id, a.ID); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.Projects.Delete(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	s.publish(r.Context(), events.ProjectDeleted, a.ID, id, "")
	w.WriteHeader(http.StatusNoContent)
}

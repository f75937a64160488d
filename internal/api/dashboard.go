package api

import (
	"net/http"
	"time"

	"project-api/pkg/dashboard"
)

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rng, err := dashboard.ParseRange(q.Get("start_date"), q.Get("end_date"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	m, err := s.Dashboard.Get(r.Context(), actorFrom(r.Context()).ID, rng)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, 200, newDashboardView(m, time.Now()))
}

package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"project-api/internal/testutil"
	"project-api/pkg/auth"
	"project-api/pkg/cache"
	"project-api/pkg/dashboard"
	"project-api/pkg/events"
	"project-api/pkg/timer"
)

type fixture struct {
	t      *testing.T
	server *Server
	stores *testutil.Stores
	now    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	stores := testutil.NewStores(t)
	f := &fixture{t: t, stores: stores, now: time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)}

	bus := events.NewBus()
	agg := dashboard.NewAggregator(stores.Dashboard, cache.NewMemory(), time.Hour, nil)
	bus.OnPublish(agg.Hook())
	bus.OnPublish(events.Recorder(stores.Events, nil))
	authSvc, err := auth.NewService(stores.Actors, auth.Config{Secret: "s3cret", BcryptCost: bcrypt.MinCost})
	require.NoError(t, err)

	f.server = New(Deps{
		Projects:  stores.Projects,
		Tasks:     stores.Tasks,
		Timers:    timer.New(stores.Tasks, bus, timer.WithClock(func() time.Time { return f.now })),
		Dashboard: agg,
		Auth:      authSvc,
		Bus:       bus,
		Events:    stores.Events,
	})
	return f
}

func (f *fixture) do(method, path, token string, body any) *httptest.ResponseRecorder {
	f.t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(f.t, err)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) login(email string) string {
	f.t.Helper()
	rec := f.do("POST", "/api/auth/register", "", map[string]string{
		"email": email, "password": "password1", "password_confirm": "password1",
	})
	require.Equal(f.t, 201, rec.Code, rec.Body.String())
	rec = f.do("POST", "/api/token", "", map[string]string{"email": email, "password": "password1"})
	require.Equal(f.t, 200, rec.Code, rec.Body.String())
	var out struct {
		Access string `json:"access"`
	}
	require.NoError(f.t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out.Access
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	rec := f.do("GET", "/health", "", nil)
	assert.Equal(t, 200, rec.Code)
}

func TestAuthFlow(t *testing.T) {
	f := newFixture(t)

	rec := f.do("GET", "/api/projects", "", nil)
	assert.Equal(t, 401, rec.Code)

	token := f.login("grace@example.com")
	rec = f.do("GET", "/api/auth/me", token, nil)
	require.Equal(t, 200, rec.Code)
	me := decodeBody[actorView](t, rec)
	assert.Equal(t, "grace@example.com", me.Email)

	rec = f.do("POST", "/api/auth/register", "", map[string]string{
		"email": "grace@example.com", "password": "password1", "password_confirm": "password1",
	})
	assert.Equal(t, 409, rec.Code)

	rec = f.do("POST", "/api/token", "", map[string]string{"email": "grace@example.com", "password": "nope"})
	assert.Equal(t, 401, rec.Code)

	rec = f.do("POST", "/api/auth/logout", token, nil)
	assert.Equal(t, 204, rec.Code)
	rec = f.do("GET", "/api/auth/me", token, nil)
	assert.Equal(t, 401, rec.Code)
}

func TestProjectCRUD(t *testing.T) {
	f := newFixture(t)
	token := f.login("a@example.com")
	other := f.login("b@example.com")

	rec := f.do("POST", "/api/projects", token, map[string]string{"title": ""})
	assert.Equal(t, 400, rec.Code)

	for _, title := range []string{"Gamma", "Alpha", "Beta"} {
		rec = f.do("POST", "/api/projects", token, map[string]string{"title": title})
		require.Equal(t, 201, rec.Code, rec.Body.String())
	}
	created := decodeBody[projectView](t, rec)

	rec = f.do("GET", "/api/projects?ordering=title&page_size=2", token, nil)
	require.Equal(t, 200, rec.Code)
	list := decodeBody[struct {
		Count   int           `json:"count"`
		Results []projectView `json:"results"`
	}](t, rec)
	assert.Equal(t, 3, list.Count)
	require.Len(t, list.Results, 2)
	assert.Equal(t, "Alpha", list.Results[0].Title)

	rec = f.do("GET", "/api/projects?search=alp", token, nil)
	list = decodeBody[struct {
		Count   int           `json:"count"`
		Results []projectView `json:"results"`
	}](t, rec)
	assert.Equal(t, 1, list.Count)

	rec = f.do("GET", "/api/projects", other, nil)
	list = decodeBody[struct {
		Count   int           `json:"count"`
		Results []projectView `json:"results"`
	}](t, rec)
	assert.Equal(t, 0, list.Count)

	rec = f.do("GET", "/api/projects/"+created.ID, other, nil)
	assert.Equal(t, 403, rec.Code)
	rec = f.do("DELETE", "/api/projects/"+created.ID, other, nil)
	assert.Equal(t, 403, rec.Code)

	rec = f.do("PATCH", "/api/projects/"+created.ID, token, map[string]string{"description": "second"})
	require.Equal(t, 200, rec.Code)
	assert.Equal(t, "second", decodeBody[projectView](t, rec).Description)

	rec = f.do("DELETE", "/api/projects/"+created.ID, token, nil)
	assert.Equal(t, 204, rec.Code)
	rec = f.do("GET", "/api/projects/"+created.ID, token, nil)
	assert.Equal(t, 404, rec.Code)
}

func TestTaskTimerAndDashboard(t *testing.T) {
	f := newFixture(t)
	token := f.login("a@example.com")
	other := f.login("b@example.com")

	rec := f.do("POST", "/api/projects", token, map[string]string{"title": "Site"})
	require.Equal(t, 201, rec.Code)
	p := decodeBody[projectView](t, rec)

	rec = f.do("POST", "/api/tasks", other, map[string]any{"project_id": p.ID, "title": "sneaky"})
	assert.Equal(t, 400, rec.Code)

	rec = f.do("POST", "/api/tasks", token, map[string]any{
		"project_id": p.ID, "title": "Build", "estimated_seconds": 7200,
	})
	require.Equal(t, 201, rec.Code, rec.Body.String())
	tk := decodeBody[taskView](t, rec)
	assert.Equal(t, "02:00", tk.EstimatedHours)
	assert.Equal(t, "todo", string(tk.Status))

	rec = f.do("GET", "/api/dashboard", token, nil)
	require.Equal(t, 200, rec.Code)
	d := decodeBody[dashboardView](t, rec)
	assert.Equal(t, 1, d.TaskCount)
	assert.Equal(t, int64(0), d.TotalSpentSeconds)

	rec = f.do("POST", "/api/tasks/"+tk.ID+"/start-timer", other, nil)
	assert.Equal(t, 403, rec.Code)

	rec = f.do("POST", "/api/tasks/"+tk.ID+"/start-timer", token, nil)
	require.Equal(t, 201, rec.Code, rec.Body.String())
	rec = f.do("POST", "/api/tasks/"+tk.ID+"/start-timer", token, nil)
	assert.Equal(t, 409, rec.Code)

	rec = f.do("GET", "/api/tasks?has_active_timer=true", token, nil)
	require.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), tk.ID)

	f.now = f.now.Add(120 * time.Second)
	rec = f.do("POST", "/api/tasks/"+tk.ID+"/stop-timer", token, nil)
	require.Equal(t, 200, rec.Code, rec.Body.String())
	stopped := decodeBody[struct {
		Task      taskView  `json:"task"`
		TimeEntry entryView `json:"time_entry"`
	}](t, rec)
	assert.Equal(t, int64(120), stopped.Task.SpentSeconds)
	assert.False(t, stopped.Task.HasActiveTimer)
	assert.Equal(t, "in_progress", string(stopped.Task.Status))

	rec = f.do("POST", "/api/tasks/"+tk.ID+"/stop-timer", token, nil)
	assert.Equal(t, 409, rec.Code)

	rec = f.do("GET", "/api/dashboard", token, nil)
	require.Equal(t, 200, rec.Code)
	d = decodeBody[dashboardView](t, rec)
	assert.Equal(t, int64(120), d.TotalSpentSeconds)
	assert.Equal(t, "00:02", d.TotalSpentHours)
	assert.Equal(t, 1, d.TaskCounts["in_progress"])

	rec = f.do("GET", "/api/dashboard?start_date=2026-04-02&end_date=2026-04-02", token, nil)
	require.Equal(t, 200, rec.Code)
	d = decodeBody[dashboardView](t, rec)
	require.Len(t, d.TimeSpentPerProject, 1)
	assert.Equal(t, int64(120), d.TimeSpentPerProject[0].SpentSeconds)
	require.NotNil(t, d.DateRange)

	rec = f.do("GET", "/api/dashboard", other, nil)
	d = decodeBody[dashboardView](t, rec)
	assert.Equal(t, 0, d.TaskCount)

	rec = f.do("GET", "/api/dashboard?start_date=2026-13-01", token, nil)
	assert.Equal(t, 400, rec.Code)

	rec = f.do("GET", "/api/tasks/"+tk.ID, token, nil)
	require.Equal(t, 200, rec.Code)
	assert.Len(t, decodeBody[taskView](t, rec).TimeEntries, 1)

	rec = f.do("DELETE", "/api/tasks/"+tk.ID, token, nil)
	assert.Equal(t, 204, rec.Code)
	rec = f.do("GET", "/api/dashboard", token, nil)
	assert.Equal(t, 0, decodeBody[dashboardView](t, rec).TaskCount)
}

func TestEventStream(t *testing.T) {
	f := newFixture(t)
	token := f.login("a@example.com")
	ts := httptest.NewServer(f.server)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, "GET", ts.URL+"/api/events/stream", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, 200, resp.StatusCode)

	rec := f.do("POST", "/api/projects", token, map[string]string{"title": "Streamed"})
	require.Equal(t, 201, rec.Code)

	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		if strings.HasPrefix(sc.Text(), "event: ") {
			assert.Equal(t, "event: project.created", sc.Text())
			return
		}
	}
	t.Fatal("no event received")
}

func TestEventLog(t *testing.T) {
	f := newFixture(t)
	token := f.login("a@example.com")
	other := f.login("b@example.com")

	for _, title := range []string{"One", "Two"} {
		rec := f.do("POST", "/api/projects", token, map[string]string{"title": title})
		require.Equal(t, 201, rec.Code)
	}
	rec := f.do("POST", "/api/projects", other, map[string]string{"title": "Theirs"})
	require.Equal(t, 201, rec.Code)

	rec = f.do("GET", "/api/events", token, nil)
	require.Equal(t, 200, rec.Code)
	recent := decodeBody[[]events.Event](t, rec)
	require.Len(t, recent, 2)
	assert.Equal(t, "project.created", recent[0].Type)

	rec = f.do("GET", "/api/events?after="+recent[1].ID, token, nil)
	require.Equal(t, 200, rec.Code)
	since := decodeBody[[]events.Event](t, rec)
	require.Len(t, since, 1)
	assert.Equal(t, recent[0].ID, since[0].ID)

	rec = f.do("GET", "/api/events?after=nope", token, nil)
	assert.Equal(t, 400, rec.Code)

	rec = f.do("GET", "/api/events/types", token, nil)
	require.Equal(t, 200, rec.Code)
	assert.Equal(t, []string{"project.created"}, decodeBody[[]string](t, rec))
}

func TestEventStreamReplay(t *testing.T) {
	f := newFixture(t)
	token := f.login("a@example.com")

	var ids []string
	for _, title := range []string{"Missed", "Also missed"} {
		rec := f.do("POST", "/api/projects", token, map[string]string{"title": title})
		require.Equal(t, 201, rec.Code)
	}
	for _, e := range decodeBody[[]events.Event](t, f.do("GET", "/api/events", token, nil)) {
		ids = append(ids, e.ID)
	}
	require.Len(t, ids, 2)

	ts := httptest.NewServer(f.server)
	defer ts.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, "GET", ts.URL+"/api/events/stream", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	// Resume after the older of the two.
	req.Header.Set("Last-Event-ID", ids[1])
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, 200, resp.StatusCode)

	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		if strings.HasPrefix(sc.Text(), "id: ") {
			assert.Equal(t, "id: "+ids[0], sc.Text())
			return
		}
	}
	t.Fatal("no replayed event")
}

func TestTaskEstimateBounds(t *testing.T) {
	f := newFixture(t)
	token := f.login("a@example.com")
	rec := f.do("POST", "/api/projects", token, map[string]string{"title": "Site"})
	require.Equal(t, 201, rec.Code)
	p := decodeBody[projectView](t, rec)

	for _, secs := range []int64{-1, 20_000_000_000} {
		rec = f.do("POST", "/api/tasks", token, map[string]any{
			"project_id": p.ID, "title": "Build", "estimated_seconds": secs,
		})
		assert.Equal(t, 400, rec.Code, "estimated_seconds=%d", secs)
	}

	rec = f.do("POST", "/api/tasks", token, map[string]any{
		"project_id": p.ID, "title": "Build", "estimated_seconds": 3600,
	})
	require.Equal(t, 201, rec.Code, rec.Body.String())
	tk := decodeBody[taskView](t, rec)

	rec = f.do("PATCH", "/api/tasks/"+tk.ID, token, map[string]any{"estimated_seconds": 20_000_000_000})
	assert.Equal(t, 400, rec.Code)
	rec = f.do("GET", "/api/tasks/"+tk.ID, token, nil)
	assert.Equal(t, "01:00", decodeBody[taskView](t, rec).EstimatedHours)
}

func TestHugePageIsEmpty(t *testing.T) {
	f := newFixture(t)
	token := f.login("a@example.com")
	rec := f.do("POST", "/api/projects", token, map[string]string{"title": "Site"})
	require.Equal(t, 201, rec.Code)

	rec = f.do("GET", "/api/projects?page=92233720368547758&page_size=100", token, nil)
	require.Equal(t, 200, rec.Code, rec.Body.String())
	list := decodeBody[struct {
		Count   int           `json:"count"`
		Page    int           `json:"page"`
		Results []projectView `json:"results"`
	}](t, rec)
	assert.Equal(t, 1, list.Count)
	assert.Empty(t, list.Results)
	assert.Equal(t, maxPage, list.Page)
}

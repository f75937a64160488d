package cli

import (
	"bytes"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"project-api/pkg/dashboard"
	"project-api/pkg/task"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestCreateUserSeedDashboard(t *testing.T) {
	t.Setenv("PROJECTAPI_DATABASE_DRIVER", "sqlite")
	t.Setenv("PROJECTAPI_DATABASE_PATH", filepath.Join(t.TempDir(), "cli.db"))
	t.Setenv("PROJECTAPI_LOG_LEVEL", "error")

	out, err := run(t, "create-user", "--demo")
	require.NoError(t, err)
	assert.Contains(t, out, demoEmail)

	_, err = run(t, "create-user", "--demo")
	assert.Error(t, err, "duplicate email")

	out, err = run(t, "seed", "--projects", "2", "--tasks-per-project", "3")
	require.NoError(t, err)
	assert.Contains(t, out, "2 projects, 6 tasks")

	out, err = run(t, "dashboard", "--email", demoEmail)
	require.NoError(t, err)
	assert.Contains(t, out, "DASHBOARD")
	assert.Contains(t, out, "Website Redesign")
	assert.Contains(t, out, "Mobile App")

	_, err = run(t, "dashboard", "--email", "nobody@example.com")
	assert.Error(t, err)

	_, err = run(t, "dashboard", "--start-date", "yesterday")
	assert.Error(t, err)
}

func TestCreateUserRequiresCredentials(t *testing.T) {
	t.Setenv("PROJECTAPI_DATABASE_DRIVER", "sqlite")
	t.Setenv("PROJECTAPI_DATABASE_PATH", filepath.Join(t.TempDir(), "cli.db"))
	_, err := run(t, "create-user", "--email", "x@example.com")
	assert.Error(t, err)
}

func TestFormatDashboard(t *testing.T) {
	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m := &dashboard.Metrics{
		ProjectCount:   1,
		TaskCount:      3,
		TaskCounts:     map[task.Status]int{task.StatusTodo: 1, task.StatusInProgress: 1, task.StatusDone: 1},
		TotalEstimated: 5 * time.Hour,
		TotalSpent:     90 * time.Minute,
		PerProject:     []dashboard.ProjectTime{{ProjectID: "p1", Title: "Alpha", Spent: 90 * time.Minute}},
		ActiveTimers:   []dashboard.ActiveTimer{{TaskID: "t1", Title: "Write docs", ProjectID: "p1", StartedAt: now.Add(-30 * time.Minute)}},
		Range:          dashboard.Range{From: &from},
	}
	out := FormatDashboard("ada@example.com", m, now)

	assert.Contains(t, out, "05:00")
	assert.Contains(t, out, "01:30")
	assert.Contains(t, out, "Alpha")
	assert.Contains(t, out, "Write docs")
	assert.Contains(t, out, "00:30")
	assert.Contains(t, out, "2026-01-01")
	assert.True(t, strings.Contains(out, "1 done"))
}

func TestHoursMinutes(t *testing.T) {
	assert.Equal(t, "00:00", HoursMinutes(-time.Minute))
	assert.Equal(t, "00:02", HoursMinutes(150*time.Second))
	assert.Equal(t, "26:05", HoursMinutes(26*time.Hour+5*time.Minute))
}

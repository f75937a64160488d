package task_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"project-api/internal/testutil"
	"project-api/pkg/apperr"
	"project-api/pkg/task"
)

func TestCreateDefaultsToTodo(t *testing.T) {
	s := testutil.NewStores(t)
	p := s.Project(t, s.Actor(t).ID, "Site")

	tk := s.Task(t, p.ID, "  Build  ")
	assert.Equal(t, task.StatusTodo, tk.Status)
	assert.Equal(t, "Build", tk.Title)
	assert.Equal(t, int64(1), tk.Version)
	assert.False(t, tk.HasActiveTimer())

	got, err := s.Tasks.Get(context.Background(), tk.ID)
	require.NoError(t, err)
	assert.Equal(t, p.OwnerID, got.OwnerID)
}

func TestCreateValidates(t *testing.T) {
	s := testutil.NewStores(t)
	p := s.Project(t, s.Actor(t).ID, "Site")
	ctx := context.Background()

	_, err := s.Tasks.Create(ctx, &task.Task{ProjectID: p.ID, Title: " "})
	assert.ErrorIs(t, err, apperr.ErrInvalid)
	_, err = s.Tasks.Create(ctx, &task.Task{ProjectID: p.ID, Title: "x", Status: "blocked"})
	assert.ErrorIs(t, err, apperr.ErrInvalid)
	_, err = s.Tasks.Create(ctx, &task.Task{ProjectID: p.ID, Title: "x", EstimatedTime: -time.Second})
	assert.ErrorIs(t, err, apperr.ErrInvalid)
}

func TestUpdateBumpsVersion(t *testing.T) {
	s := testutil.NewStores(t)
	p := s.Project(t, s.Actor(t).ID, "Site")
	tk := s.Task(t, p.ID, "Build")
	ctx := context.Background()

	done := task.StatusDone
	est := 90 * time.Minute
	got, err := s.Tasks.Update(ctx, tk.ID, task.Patch{Status: &done, EstimatedTime: &est})
	require.NoError(t, err)
	assert.Equal(t, task.StatusDone, got.Status)
	assert.Equal(t, est, got.EstimatedTime)
	assert.Equal(t, int64(2), got.Version)

	_, err = s.Tasks.Update(ctx, "missing", task.Patch{Status: &done})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestUpdateTimerComparesVersion(t *testing.T) {
	s := testutil.NewStores(t)
	p := s.Project(t, s.Actor(t).ID, "Site")
	tk := s.Task(t, p.ID, "Build")
	ctx := context.Background()

	start := time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)
	started, err := s.Tasks.UpdateTimer(ctx, tk.ID, tk.Version, task.TimerFields{
		StartedAt: &start, Status: task.StatusInProgress,
	}, nil)
	require.NoError(t, err)
	require.NotNil(t, started.TimerStartedAt)
	assert.True(t, started.TimerStartedAt.Equal(start))

	// A stale version writes nothing, including the entry.
	entry := &task.TimeEntry{StartTime: start, EndTime: start.Add(time.Minute), Duration: time.Minute}
	_, err = s.Tasks.UpdateTimer(ctx, tk.ID, tk.Version, task.TimerFields{
		SpentTime: time.Minute, Status: task.StatusInProgress,
	}, entry)
	assert.ErrorIs(t, err, task.ErrVersionMismatch)
	entries, err := s.Tasks.TimeEntries(ctx, tk.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, entries)

	stopped, err := s.Tasks.UpdateTimer(ctx, tk.ID, started.Version, task.TimerFields{
		SpentTime: time.Minute, Status: task.StatusInProgress,
	}, entry)
	require.NoError(t, err)
	assert.Nil(t, stopped.TimerStartedAt)
	assert.Equal(t, time.Minute, stopped.SpentTime)

	entries, err = s.Tasks.TimeEntries(ctx, tk.ID, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, time.Minute, entries[0].Duration)
	assert.True(t, entries[0].StartTime.Equal(start))

	_, err = s.Tasks.UpdateTimer(ctx, tk.ID, stopped.Version, task.TimerFields{SpentTime: -1, Status: task.StatusInProgress}, nil)
	assert.ErrorIs(t, err, apperr.ErrInvalid)
}

func TestListFilters(t *testing.T) {
	s := testutil.NewStores(t)
	owner := s.Actor(t)
	other := s.Actor(t)
	p := s.Project(t, owner.ID, "Site")
	q := s.Project(t, owner.ID, "Docs")
	s.Project(t, other.ID, "Elsewhere")
	ctx := context.Background()

	a := s.Task(t, p.ID, "Write copy")
	s.Task(t, p.ID, "Deploy")
	s.Task(t, q.ID, "Write guide")

	now := time.Now().UTC()
	_, err := s.Tasks.UpdateTimer(ctx, a.ID, a.Version, task.TimerFields{StartedAt: &now, Status: task.StatusInProgress}, nil)
	require.NoError(t, err)

	_, total, err := s.Tasks.List(ctx, task.Filter{OwnerID: owner.ID})
	require.NoError(t, err)
	assert.Equal(t, 3, total)

	_, total, err = s.Tasks.List(ctx, task.Filter{OwnerID: other.ID})
	require.NoError(t, err)
	assert.Equal(t, 0, total)

	list, total, err := s.Tasks.List(ctx, task.Filter{OwnerID: owner.ID, Search: "write", Ordering: "title"})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, "Write copy", list[0].Title)

	_, total, err = s.Tasks.List(ctx, task.Filter{OwnerID: owner.ID, ProjectID: p.ID})
	require.NoError(t, err)
	assert.Equal(t, 2, total)

	active := true
	list, _, err = s.Tasks.List(ctx, task.Filter{OwnerID: owner.ID, HasActiveTimer: &active})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, a.ID, list[0].ID)

	list, _, err = s.Tasks.List(ctx, task.Filter{OwnerID: owner.ID, Status: task.StatusTodo, Limit: 1})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, _, err = s.Tasks.List(ctx, task.Filter{OwnerID: owner.ID, Ordering: "estimated"})
	assert.ErrorIs(t, err, apperr.ErrInvalid)
}

func TestDeleteCascadesEntries(t *testing.T) {
	s := testutil.NewStores(t)
	p := s.Project(t, s.Actor(t).ID, "Site")
	tk := s.Task(t, p.ID, "Build")
	ctx := context.Background()

	start := time.Now().UTC().Add(-time.Minute)
	_, err := s.Tasks.UpdateTimer(ctx, tk.ID, tk.Version, task.TimerFields{Status: task.StatusInProgress},
		&task.TimeEntry{StartTime: start, EndTime: start.Add(time.Minute), Duration: time.Minute})
	require.NoError(t, err)

	require.NoError(t, s.Tasks.Delete(ctx, tk.ID))
	entries, err := s.Tasks.TimeEntries(ctx, tk.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.ErrorIs(t, s.Tasks.Delete(ctx, tk.ID), apperr.ErrNotFound)
}

package events_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"project-api/internal/testutil"
	"project-api/pkg/events"
)

func TestSQLiteLog(t *testing.T) {
	s := testutil.NewStores(t)
	ctx := context.Background()
	alice, bob := s.Actor(t), s.Actor(t)

	bus := events.NewBus()
	bus.OnPublish(events.Recorder(s.Events, nil))

	first := bus.Publish(ctx, events.Event{Type: events.ProjectCreated, ActorID: alice.ID, ProjectID: "p1"})
	second := bus.Publish(ctx, events.Event{Type: events.TaskCreated, ActorID: alice.ID, ProjectID: "p1", TaskID: "t1"})
	bus.Publish(ctx, events.Event{Type: events.ProjectCreated, ActorID: bob.ID, ProjectID: "p2"})

	recent, err := s.Events.Recent(ctx, alice.ID, 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, second.ID, recent[0].ID)
	assert.Equal(t, "t1", recent[0].TaskID)
	assert.True(t, recent[1].At.Equal(first.At))

	since, err := s.Events.Since(ctx, alice.ID, first.ID, 10)
	require.NoError(t, err)
	require.Len(t, since, 1)
	assert.Equal(t, second.ID, since[0].ID)

	types, err := s.Events.Types(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{events.ProjectCreated, events.TaskCreated}, types)

	types, err = s.Events.Types(ctx, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{events.ProjectCreated}, types)
}

type failingLog struct{ events.Log }

func (failingLog) Append(context.Context, events.Event) error { return errors.New("disk full") }

func TestRecorderSwallowsFailures(t *testing.T) {
	bus := events.NewBus()
	bus.OnPublish(events.Recorder(failingLog{}, nil))
	e := bus.Publish(context.Background(), events.Event{Type: events.TaskDeleted, ActorID: "a"})
	assert.NotEmpty(t, e.ID)
}

func TestRecorderKeepsEventOfCancelledRequest(t *testing.T) {
	s := testutil.NewStores(t)
	alice := s.Actor(t)

	bus := events.NewBus()
	bus.OnPublish(events.Recorder(s.Events, nil))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e := bus.Publish(ctx, events.Event{Type: events.TimerStopped, ActorID: alice.ID, TaskID: "t1"})

	recent, err := s.Events.Recent(context.Background(), alice.ID, 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, e.ID, recent[0].ID)
}

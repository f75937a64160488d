// Package timer starts and stops task timers. Transitions are optimistic:
// the task is read, the transition decided, and the write applied only if
// the task's version is unchanged.
package timer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"project-api/pkg/apperr"
	"project-api/pkg/events"
	"project-api/pkg/task"
)

const defaultRetries = 3

// Result is the outcome of a transition. Entry is set only by Stop.
type Result struct {
	Task  *task.Task
	Entry *task.TimeEntry
}

// Controller applies timer transitions to tasks.
type Controller struct {
	tasks   task.Store
	bus     *events.Bus
	now     func() time.Time
	retries int
}

// Option configures a Controller.
type Option func(*Controller)

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithRetries sets how many times a transition is re-decided after losing
// a version race.
func WithRetries(n int) Option {
	return func(c *Controller) { c.retries = n }
}

// New creates a Controller. bus may be nil.
func New(tasks task.Store, bus *events.Bus, opts ...Option) *Controller {
	c := &Controller{tasks: tasks, bus: bus, now: time.Now, retries: defaultRetries}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Start begins a timer on the task. A todo task moves to in_progress.
func (c *Controller) Start(ctx context.Context, taskID, actorID string) (*Result, error) {
	for attempt := 0; ; attempt++ {
		t, err := c.load(ctx, taskID, actorID)
		if err != nil {
			return nil, err
		}
		if t.HasActiveTimer() {
			return nil, apperr.Conflict("timer already running on task %s", taskID)
		}

		now := c.clock()
		status := t.Status
		if status == task.StatusTodo {
			status = task.StatusInProgress
		}
		updated, err := c.tasks.UpdateTimer(ctx, taskID, t.Version, task.TimerFields{
			StartedAt: &now,
			SpentTime: t.SpentTime,
			Status:    status,
		}, nil)
		if errors.Is(err, task.ErrVersionMismatch) {
			if attempt < c.retries {
				continue
			}
			return nil, apperr.Conflict("task %s changed concurrently", taskID)
		}
		if err != nil {
			return nil, fmt.Errorf("start timer %s: %w", taskID, err)
		}

		c.publish(ctx, events.TimerStarted, actorID, updated)
		return &Result{Task: updated}, nil
	}
}

// Stop ends the running timer, adds the elapsed time to the task and records
// the interval as a time entry.
func (c *Controller) Stop(ctx context.Context, taskID, actorID string) (*Result, error) {
	for attempt := 0; ; attempt++ {
		t, err := c.load(ctx, taskID, actorID)
		if err != nil {
			return nil, err
		}
		if !t.HasActiveTimer() {
			return nil, apperr.Conflict("no timer running on task %s", taskID)
		}

		now := c.clock()
		started := *t.TimerStartedAt
		elapsed := now.Sub(started)
		if elapsed < 0 {
			elapsed = 0
		}
		entry := &task.TimeEntry{StartTime: started, EndTime: now, Duration: elapsed}

		updated, err := c.tasks.UpdateTimer(ctx, taskID, t.Version, task.TimerFields{
			StartedAt: nil,
			SpentTime: t.SpentTime + elapsed,
			Status:    t.Status,
		}, entry)
		if errors.Is(err, task.ErrVersionMismatch) {
			if attempt < c.retries {
				continue
			}
			return nil, apperr.Conflict("task %s changed concurrently", taskID)
		}
		if err != nil {
			return nil, fmt.Errorf("stop timer %s: %w", taskID, err)
		}

		c.publish(ctx, events.TimerStopped, actorID, updated)
		return &Result{Task: updated, Entry: entry}, nil
	}
}

func (c *Controller) load(ctx context.Context, taskID, actorID string) (*task.Task, error) {
	t, err := c.tasks.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if t.OwnerID != actorID {
		return nil, fmt.Errorf("task %s: %w", taskID, apperr.ErrForbidden)
	}
	return t, nil
}

func (c *Controller) clock() time.Time {
	return c.now().UTC().Truncate(time.Microsecond)
}

func (c *Controller) publish(ctx context.Context, typ, actorID string, t *task.Task) {
	if c.bus == nil {
		return
	}
	c.bus.Publish(ctx, events.Event{
		Type:      typ,
		ActorID:   actorID,
		ProjectID: t.ProjectID,
		TaskID:    t.ID,
	})
}

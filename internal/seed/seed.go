// Package seed fills a database with sample projects, tasks and tracked time.
package seed

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"project-api/pkg/project"
	"project-api/pkg/task"
	"project-api/pkg/timer"
)

var (
	projectNames = []string{
		"Website Redesign", "Mobile App", "Billing Migration", "Data Warehouse",
		"Onboarding Flow", "Search Revamp", "Internal Tools", "API Gateway",
	}
	taskVerbs   = []string{"Design", "Implement", "Review", "Test", "Document", "Deploy", "Refactor"}
	taskObjects = []string{"login page", "database schema", "REST endpoints", "CI pipeline", "reports", "cache layer", "settings screen"}
)

// Options controls how much data Run creates.
type Options struct {
	OwnerID         string
	Projects        int
	TasksPerProject int
	// Now anchors generated time entries; they fall in the preceding week.
	Now  time.Time
	Rand *rand.Rand
}

// Summary counts what Run created.
type Summary struct {
	Projects int
	Tasks    int
	Entries  int
}

// Run creates sample data for opts.OwnerID. Time is tracked through the
// timer controller so every entry is consistent with its task's total.
func Run(ctx context.Context, projects project.Store, tasks task.Store, opts Options) (Summary, error) {
	var sum Summary
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewPCG(uint64(opts.Now.UnixNano()), 1))
	}

	clock := opts.Now
	ctrl := timer.New(tasks, nil, timer.WithClock(func() time.Time { return clock }))

	for i := 0; i < opts.Projects; i++ {
		name := projectNames[i%len(projectNames)]
		if i >= len(projectNames) {
			name = fmt.Sprintf("%s %d", name, i/len(projectNames)+1)
		}
		p, err := projects.Create(ctx, &project.Project{
			Title:       name,
			Description: "Sample project " + name,
			OwnerID:     opts.OwnerID,
		})
		if err != nil {
			return sum, fmt.Errorf("seed project %d: %w", i, err)
		}
		sum.Projects++

		for j := 0; j < opts.TasksPerProject; j++ {
			title := fmt.Sprintf("%s %s", taskVerbs[rng.IntN(len(taskVerbs))], taskObjects[rng.IntN(len(taskObjects))])
			t, err := tasks.Create(ctx, &task.Task{
				ProjectID:     p.ID,
				Title:         title,
				EstimatedTime: time.Duration(1+rng.IntN(16)) * 30 * time.Minute,
			})
			if err != nil {
				return sum, fmt.Errorf("seed task %d/%d: %w", i, j, err)
			}
			sum.Tasks++

			// Most tasks get a few tracked intervals over the last week.
			sessions := rng.IntN(4)
			for k := 0; k < sessions; k++ {
				clock = opts.Now.Add(-time.Duration(rng.IntN(7*24)) * time.Hour)
				if _, err := ctrl.Start(ctx, t.ID, opts.OwnerID); err != nil {
					return sum, fmt.Errorf("seed timer start: %w", err)
				}
				clock = clock.Add(time.Duration(10+rng.IntN(170)) * time.Minute)
				if _, err := ctrl.Stop(ctx, t.ID, opts.OwnerID); err != nil {
					return sum, fmt.Errorf("seed timer stop: %w", err)
				}
				sum.Entries++
			}

			if rng.IntN(3) == 0 {
				done := task.StatusDone
				if _, err := tasks.Update(ctx, t.ID, task.Patch{Status: &done}); err != nil {
					return sum, fmt.Errorf("seed task status: %w", err)
				}
			}
		}
	}
	return sum, nil
}

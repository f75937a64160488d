// Package testutil builds in-memory SQLite stores and fixtures for tests.
package testutil

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"project-api/internal/db"
	"project-api/pkg/actor"
	"project-api/pkg/dashboard"
	"project-api/pkg/events"
	"project-api/pkg/project"
	"project-api/pkg/task"
)

// Stores groups the SQLite stores sharing one in-memory database.
type Stores struct {
	DB        *sqlx.DB
	Actors    *actor.SQLiteStore
	Projects  *project.SQLiteStore
	Tasks     *task.SQLiteStore
	Dashboard *dashboard.SQLiteStore
	Events    *events.SQLiteStore
}

// NewStores opens a fresh in-memory database with every table created.
// It is closed when the test ends.
func NewStores(t testing.TB) *Stores {
	t.Helper()
	conn, err := db.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	s := &Stores{
		DB:        conn,
		Actors:    actor.NewSQLiteStore(conn),
		Projects:  project.NewSQLiteStore(conn),
		Tasks:     task.NewSQLiteStore(conn),
		Dashboard: dashboard.NewSQLiteStore(conn),
		Events:    events.NewSQLiteStore(conn),
	}
	ctx := context.Background()
	require.NoError(t, s.Actors.EnsureTable(ctx))
	require.NoError(t, s.Projects.EnsureTable(ctx))
	require.NoError(t, s.Tasks.EnsureTable(ctx))
	require.NoError(t, s.Events.EnsureTable(ctx))
	return s
}

// Actor registers an actor with a unique email.
func (s *Stores) Actor(t testing.TB) *actor.Actor {
	t.Helper()
	a, err := s.Actors.Register(context.Background(), &actor.Actor{
		Email:        fmt.Sprintf("user-%s@example.com", uuid.NewString()[:8]),
		FirstName:    "Test",
		LastName:     "User",
		PasswordHash: "x",
		Active:       true,
	})
	require.NoError(t, err)
	return a
}

// Project creates a project owned by ownerID.
func (s *Stores) Project(t testing.TB, ownerID, title string) *project.Project {
	t.Helper()
	p, err := s.Projects.Create(context.Background(), &project.Project{Title: title, OwnerID: ownerID})
	require.NoError(t, err)
	return p
}

// Task creates a todo task in projectID.
func (s *Stores) Task(t testing.TB, projectID, title string) *task.Task {
	t.Helper()
	tk, err := s.Tasks.Create(context.Background(), &task.Task{ProjectID: projectID, Title: title})
	require.NoError(t, err)
	return tk
}

package cli

import (
	"context"
	"fmt"
	"log/slog"

	"project-api/internal/config"
	"project-api/internal/db"
	"project-api/pkg/actor"
	"project-api/pkg/cache"
	"project-api/pkg/dashboard"
	"project-api/pkg/events"
	"project-api/pkg/project"
	"project-api/pkg/task"
)

// Backend is the set of stores behind one database.
type Backend struct {
	Actors    actor.Store
	Projects  project.Store
	Tasks     task.Store
	Dashboard dashboard.Store
	Events    events.Log
	Cache     cache.Cache

	// Purge drops expired cache entries; nil when the cache expires lazily.
	Purge func(ctx context.Context) (int64, error)
	Ping  func(ctx context.Context) error
	Close func()
}

type ensurer interface {
	EnsureTable(ctx context.Context) error
}

// OpenBackend connects to the configured database, picks the cache and
// creates missing tables.
func OpenBackend(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Backend, error) {
	var b *Backend
	var tables []ensurer

	switch cfg.Database.Driver {
	case "postgres":
		pool, err := db.Connect(ctx, cfg.Database.URL)
		if err != nil {
			return nil, fmt.Errorf("connect: %w", err)
		}
		actors, projects, tasks := actor.NewPgStore(pool), project.NewPgStore(pool), task.NewPgStore(pool)
		b = &Backend{
			Actors:    actors,
			Projects:  projects,
			Tasks:     tasks,
			Dashboard: dashboard.NewPgStore(pool),
			Events:    events.NewPgStore(pool),
			Ping:      pool.Ping,
			Close:     pool.Close,
		}
		tables = []ensurer{actors, projects, tasks, b.Events}
		if cfg.Cache.Backend == "postgres" {
			pc := cache.NewPgCache(pool)
			b.Cache = pc
			b.Purge = pc.Purge
			tables = append(tables, pc)
		}
		logger.Info("using postgres", "cache", cfg.Cache.Backend)
	case "sqlite":
		conn, err := db.OpenSQLite(cfg.Database.Path)
		if err != nil {
			return nil, err
		}
		actors, projects, tasks := actor.NewSQLiteStore(conn), project.NewSQLiteStore(conn), task.NewSQLiteStore(conn)
		b = &Backend{
			Actors:    actors,
			Projects:  projects,
			Tasks:     tasks,
			Dashboard: dashboard.NewSQLiteStore(conn),
			Events:    events.NewSQLiteStore(conn),
			Ping:      conn.PingContext,
			Close:     func() { conn.Close() },
		}
		tables = []ensurer{actors, projects, tasks, b.Events}
		logger.Info("using sqlite", "path", cfg.Database.Path, "cache", cfg.Cache.Backend)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}

	switch cfg.Cache.Backend {
	case "memory":
		m := cache.NewMemory()
		b.Cache = m
		b.Purge = m.Purge
	case "none":
		b.Cache = cache.Nop{}
	}

	for _, t := range tables {
		if err := t.EnsureTable(ctx); err != nil {
			b.Close()
			return nil, fmt.Errorf("ensure tables: %w", err)
		}
	}
	return b, nil
}

package cli

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"project-api/internal/api"
	"project-api/pkg/auth"
	"project-api/pkg/dashboard"
	"project-api/pkg/events"
	"project-api/pkg/timer"
)

const purgeInterval = time.Minute

func newServeCmd(app *App) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			cfg := app.Config
			if addr != "" {
				cfg.Server.Addr = addr
			}
			b, err := OpenBackend(ctx, cfg, app.Logger)
			if err != nil {
				return err
			}
			defer b.Close()

			authSvc, err := auth.NewService(b.Actors, auth.Config{
				Secret:     cfg.Auth.Secret,
				AccessTTL:  cfg.Auth.AccessTTL,
				RefreshTTL: cfg.Auth.RefreshTTL,
			})
			if err != nil {
				return err
			}

			bus := events.NewBus()
			agg := dashboard.NewAggregator(b.Dashboard, b.Cache, cfg.Cache.TTL, app.Logger)
			bus.OnPublish(agg.Hook())
			bus.OnPublish(events.Recorder(b.Events, app.Logger))

			server := api.New(api.Deps{
				Projects:  b.Projects,
				Tasks:     b.Tasks,
				Timers:    timer.New(b.Tasks, bus),
				Dashboard: agg,
				Auth:      authSvc,
				Bus:       bus,
				Events:    b.Events,
				Logger:    app.Logger,
				Ping:      b.Ping,
			})

			if b.Purge != nil {
				go purgeLoop(ctx, app, b.Purge)
			}

			srv := &http.Server{
				Addr:              cfg.Server.Addr,
				Handler:           server,
				ReadHeaderTimeout: 10 * time.Second,
				// Request contexts end with ctx so open event streams close on shutdown.
				BaseContext: func(net.Listener) context.Context { return ctx },
			}
			errCh := make(chan error, 1)
			go func() {
				app.Logger.Info("project-api listening", "addr", cfg.Server.Addr)
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			case <-ctx.Done():
			}

			app.Logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides server.addr)")
	return cmd
}

func purgeLoop(ctx context.Context, app *App, purge func(context.Context) (int64, error)) {
	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := purge(ctx)
			if err != nil {
				app.Logger.Warn("cache purge failed", "error", err)
				continue
			}
			if n > 0 {
				app.Logger.Debug("cache purged", "entries", n)
			}
		}
	}
}

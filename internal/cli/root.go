// Package cli implements the project-api command line.
package cli

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"project-api/internal/config"
)

// App carries state shared by every subcommand.
type App struct {
	ConfigPath string
	Config     *config.Config
	Logger     *slog.Logger
	Out        io.Writer
}

// NewRootCmd creates the top-level "project-api" command.
func NewRootCmd() *cobra.Command {
	app := &App{Out: os.Stdout}
	root := &cobra.Command{
		Use:           "project-api",
		Short:         "Project and task tracking API",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(app.ConfigPath)
			if err != nil {
				return err
			}
			app.Config = cfg
			app.Logger = newLogger(cfg.Log, cmd.ErrOrStderr())
			app.Out = cmd.OutOrStdout()
			slog.SetDefault(app.Logger)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&app.ConfigPath, "config", "", "Path to a YAML config file")

	root.AddCommand(
		newServeCmd(app),
		newSeedCmd(app),
		newCreateUserCmd(app),
		newDashboardCmd(app),
	)
	return root
}

func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"project-api/internal/seed"
)

func newSeedCmd(app *App) *cobra.Command {
	var owner string
	var projects, tasksPerProject int

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create sample projects, tasks and tracked time",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			b, err := OpenBackend(ctx, app.Config, app.Logger)
			if err != nil {
				return err
			}
			defer b.Close()

			a, err := b.Actors.ByEmail(ctx, owner)
			if err != nil {
				return fmt.Errorf("owner %s: %w", owner, err)
			}
			sum, err := seed.Run(ctx, b.Projects, b.Tasks, seed.Options{
				OwnerID:         a.ID,
				Projects:        projects,
				TasksPerProject: tasksPerProject,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(app.Out, "%s %d projects, %d tasks, %d time entries for %s\n",
				StyleGreen.Render("seeded"), sum.Projects, sum.Tasks, sum.Entries, Bold(a.Email))
			return nil
		},
	}

	cmd.Flags().StringVar(&owner, "owner", demoEmail, "Email of the account that owns the data")
	cmd.Flags().IntVar(&projects, "projects", 5, "Number of projects")
	cmd.Flags().IntVar(&tasksPerProject, "tasks-per-project", 8, "Tasks per project")
	return cmd
}

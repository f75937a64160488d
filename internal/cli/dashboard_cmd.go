package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"project-api/pkg/dashboard"
)

func newDashboardCmd(app *App) *cobra.Command {
	var email, startDate, endDate string

	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Print an account's dashboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rng, err := dashboard.ParseRange(startDate, endDate)
			if err != nil {
				return err
			}
			b, err := OpenBackend(ctx, app.Config, app.Logger)
			if err != nil {
				return err
			}
			defer b.Close()

			a, err := b.Actors.ByEmail(ctx, email)
			if err != nil {
				return fmt.Errorf("account %s: %w", email, err)
			}
			agg := dashboard.NewAggregator(b.Dashboard, b.Cache, app.Config.Cache.TTL, app.Logger)
			m, err := agg.Get(ctx, a.ID, rng)
			if err != nil {
				return err
			}
			fmt.Fprint(app.Out, FormatDashboard(a.Email, m, time.Now()))
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", demoEmail, "Account email")
	cmd.Flags().StringVar(&startDate, "start-date", "", "Only count time entries from this day (YYYY-MM-DD)")
	cmd.Flags().StringVar(&endDate, "end-date", "", "Only count time entries up to this day (YYYY-MM-DD)")
	return cmd
}

package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"project-api/pkg/auth"
)

const (
	demoEmail    = "demo@example.com"
	demoPassword = "demo12345"
)

func newCreateUserCmd(app *App) *cobra.Command {
	var email, password, firstName, lastName string
	var demo bool

	cmd := &cobra.Command{
		Use:   "create-user",
		Short: "Register an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			if demo {
				email, password = demoEmail, demoPassword
				if firstName == "" {
					firstName, lastName = "Demo", "User"
				}
			}
			if email == "" || password == "" {
				return fmt.Errorf("--email and --password are required (or use --demo)")
			}

			b, err := OpenBackend(cmd.Context(), app.Config, app.Logger)
			if err != nil {
				return err
			}
			defer b.Close()

			a, err := auth.Register(cmd.Context(), b.Actors, auth.Registration{
				Email:           email,
				Password:        password,
				PasswordConfirm: password,
				FirstName:       firstName,
				LastName:        lastName,
			}, 0)
			if err != nil {
				return err
			}
			fmt.Fprintf(app.Out, "%s %s (%s)\n", StyleGreen.Render("created"), Bold(a.Email), Dim(a.ID))
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Account email")
	cmd.Flags().StringVar(&password, "password", "", "Account password (at least 8 characters)")
	cmd.Flags().StringVar(&firstName, "first-name", "", "First name")
	cmd.Flags().StringVar(&lastName, "last-name", "", "Last name")
	cmd.Flags().BoolVar(&demo, "demo", false, "Create the demo account "+demoEmail)
	return cmd
}

package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mmeshcher/palmastro/internal/apierr"
)

var errNotLoggedIn = errors.New("not logged in, run: palmastro login")

func (c *CLI) loginCmd() *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the access token",
		Long: `Sign in with email and password. The password can also be passed
through the PALMASTRO_PASSWORD environment variable.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				password = os.Getenv("PALMASTRO_PASSWORD")
			}

			u, err := c.app.auth.Login(cmd.Context(), email, password)
			if err != nil {
				return err
			}

			if c.jsonOutput {
				return c.printJSON(u)
			}
			fmt.Fprintf(c.out, "Logged in as %s (%s)\n", u.DisplayName(), u.Email)
			return nil
		},
	}

	cmd.Flags().StringVarP(&email, "email", "e", "", "account email")
	cmd.Flags().StringVarP(&password, "password", "p", "", "account password")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}

func (c *CLI) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget stored tokens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.app.auth.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(c.out, "Logged out")
			return nil
		},
	}
}

func (c *CLI) profileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "profile",
		Short: "Show the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !c.app.creds.Authenticated() {
				return errNotLoggedIn
			}

			u, err := c.app.auth.RefreshProfile(cmd.Context())
			if errors.Is(err, apierr.ErrNotAuthenticated) {
				return errNotLoggedIn
			}
			if err != nil {
				return err
			}
			return c.printUser(u)
		},
	}
}

func (c *CLI) dashboardCmd() *cobra.Command {
	var realtime bool

	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Show reading statistics and recent activity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if realtime {
				d, err := c.app.api.DashboardRealtime(cmd.Context())
				if err != nil {
					return err
				}
				return c.printRealtime(d)
			}

			d, err := c.app.api.Dashboard(cmd.Context())
			if err != nil {
				return err
			}
			return c.printDashboard(d)
		},
	}

	cmd.Flags().BoolVar(&realtime, "realtime", false, "only report the reading count and last update time")

	return cmd
}

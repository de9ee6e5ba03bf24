package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/mmeshcher/palmastro/internal/apierr"
	"github.com/mmeshcher/palmastro/internal/fixtures"
	"github.com/mmeshcher/palmastro/internal/model"
)

func (c *CLI) signupCmd() *cobra.Command {
	var req model.SignupRequest

	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account and sign in",
		Long: `Create an account. The password must be at least 8 characters and be
repeated with --confirm; the terms of service must be accepted with --accept-terms.
The password can also be passed through the PALMASTRO_PASSWORD environment variable.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if req.Password == "" {
				req.Password = os.Getenv("PALMASTRO_PASSWORD")
			}
			if !cmd.Flags().Changed("confirm") {
				req.ConfirmPassword = req.Password
			}

			u, err := c.app.auth.Signup(cmd.Context(), req)
			if err != nil {
				return err
			}

			if c.jsonOutput {
				return c.printJSON(u)
			}
			fmt.Fprintf(c.out, "Account created for %s (%s), plan %s\n", u.DisplayName(), u.Email, u.Plan)
			return nil
		},
	}

	cmd.Flags().StringVar(&req.FullName, "name", "", "full name")
	cmd.Flags().StringVarP(&req.Email, "email", "e", "", "account email")
	cmd.Flags().StringVarP(&req.Password, "password", "p", "", "account password")
	cmd.Flags().StringVar(&req.ConfirmPassword, "confirm", "", "password confirmation (defaults to --password)")
	cmd.Flags().BoolVar(&req.AcceptedTerms, "accept-terms", false, "accept the terms of service")
	cmd.Flags().BoolVar(&req.SubscribeNewsletter, "newsletter", false, "subscribe to the newsletter")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}

func (c *CLI) planCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "List membership plans or change the current one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.printPlans(fixtures.Plans())
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "upgrade <plan>",
		Short: "Switch the signed-in user to another plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !c.app.creds.Authenticated() {
				return errNotLoggedIn
			}

			res, err := c.app.auth.UpgradePlan(cmd.Context(), args[0])
			if errors.Is(err, apierr.ErrNotAuthenticated) {
				return errNotLoggedIn
			}
			if err != nil {
				return err
			}

			if c.jsonOutput {
				return c.printJSON(res)
			}
			fmt.Fprintln(c.out, res.Message)
			for _, f := range res.Plan.Features {
				fmt.Fprintf(c.out, "  + %s\n", f)
			}
			return nil
		},
	})

	return cmd
}

func (c *CLI) predictionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "predictions",
		Short: "Show the most confident predictions from saved readings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !c.app.creds.Authenticated() {
				return errNotLoggedIn
			}

			list, err := c.app.api.Predictions(cmd.Context())
			if errors.Is(err, apierr.ErrNotAuthenticated) {
				return errNotLoggedIn
			}
			if err != nil {
				return err
			}
			return c.printPredictions(list)
		},
	}
}

func (c *CLI) printPlans(plans []model.Plan) error {
	if c.jsonOutput {
		return c.printJSON(plans)
	}

	current := ""
	if u, ok := c.app.auth.CurrentUser(); ok {
		current = u.Plan
	}
	for _, p := range plans {
		marker := " "
		if p.Name == current {
			marker = "*"
		}
		fmt.Fprintf(c.out, "%s %-16s %s\n", marker, p.Name, p.DisplayName)
		fmt.Fprintf(c.out, "    %s\n", strings.Join(p.Features, ", "))
	}
	return nil
}

func (c *CLI) printPredictions(list *model.PredictionList) error {
	if c.jsonOutput {
		return c.printJSON(list)
	}
	if list.Count == 0 {
		fmt.Fprintln(c.out, "No predictions yet.")
		return nil
	}

	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CONFIDENCE\tAREA\tTIMEFRAME\tPREDICTION")
	for _, p := range list.Results {
		fmt.Fprintf(tw, "%.0f%%\t%s\t%s\t%s\n", p.Confidence, p.Area, p.Timeframe, p.Prediction)
	}
	return tw.Flush()
}

func (c *CLI) printRealtime(d *model.DashboardRealtime) error {
	if c.jsonOutput {
		return c.printJSON(d)
	}
	fmt.Fprintf(c.out, "Readings:     %d\n", d.ReadingsCount)
	if d.LastUpdate != nil {
		fmt.Fprintf(c.out, "Last update:  %s\n", d.LastUpdate.Local().Format(time.DateTime))
	}
	fmt.Fprintf(c.out, "Has updates:  %t\n", d.HasUpdates)
	return nil
}

package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func (c *CLI) settingsCmd() *cobra.Command {
	var (
		useMock  bool
		language string
	)

	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change stored client settings",
		Long: `Show or change stored client settings. A stored mock mode overrides
PALMASTRO_USE_MOCK_API; the --mock flag still overrides both.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := c.app.creds.Settings()
			if err != nil {
				return err
			}

			changed := false
			if cmd.Flags().Changed("use-mock") {
				st.UseMockAPI = &useMock
				changed = true
			}
			if cmd.Flags().Changed("language") {
				st.Language = language
				changed = true
			}
			if changed {
				if err := c.app.creds.SaveSettings(st); err != nil {
					return err
				}
			}

			if c.jsonOutput {
				return c.printJSON(st)
			}
			mock := "default"
			if st.UseMockAPI != nil {
				mock = fmt.Sprint(*st.UseMockAPI)
			}
			lang := st.Language
			if lang == "" {
				lang = "default"
			}
			fmt.Fprintf(c.out, "mock mode: %s\nlanguage:  %s\n", mock, lang)
			return nil
		},
	}

	cmd.Flags().BoolVar(&useMock, "use-mock", true, "store the mock mode preference")
	cmd.Flags().StringVar(&language, "language", "", "store the preferred language")

	return cmd
}

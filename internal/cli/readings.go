package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mmeshcher/palmastro/internal/apierr"
	"github.com/mmeshcher/palmastro/internal/model"
	"github.com/mmeshcher/palmastro/internal/store"
)

// watchProgress печатает прогресс анализа, пока не будет вызвана возвращённая функция.
func (c *CLI) watchProgress(w io.Writer) func() {
	events, cancel := c.app.readings.Subscribe(16)
	done := make(chan struct{})

	go func() {
		defer close(done)
		last := -1
		for ev := range events {
			if ev.Kind != store.EventProgress || ev.Snapshot.Progress == last {
				continue
			}
			last = ev.Snapshot.Progress
			fmt.Fprintf(w, "\rworking... %3d%%", last)
		}
		if last >= 0 {
			fmt.Fprintln(w)
		}
	}()

	return func() {
		cancel()
		<-done
	}
}

func (c *CLI) progressWriter(cmd *cobra.Command) io.Writer {
	if c.jsonOutput {
		return io.Discard
	}
	return cmd.ErrOrStderr()
}

func (c *CLI) palmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "palm <image>",
		Short: "Analyze a palm photo (JPEG, PNG or WebP)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read image: %w", err)
			}
			img := model.Image{
				Name:        filepath.Base(path),
				ContentType: mime.TypeByExtension(filepath.Ext(path)),
				Data:        data,
			}

			stop := c.watchProgress(c.progressWriter(cmd))
			r, err := c.app.orch.AnalyzePalm(cmd.Context(), img)
			stop()
			if err != nil {
				return err
			}
			return c.printReading(r)
		},
	}
}

func (c *CLI) astrologyCmd() *cobra.Command {
	var (
		personal model.PersonalInfo
		birth    model.BirthDetails
		prefs    model.Preferences
		quick    bool
	)

	cmd := &cobra.Command{
		Use:   "astrology",
		Short: "Generate an astrology reading",
		Long: `Generate an astrology reading. By default the reading goes through the
step-by-step session (personal info, birth details, preferences, generation).
--quick uses the single-request endpoint instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			stop := c.watchProgress(c.progressWriter(cmd))
			defer stop()

			if quick {
				r, err := c.app.orch.QuickAstrology(ctx, model.AstrologyIntake{Personal: personal, Birth: birth, Preferences: prefs})
				if err != nil {
					return err
				}
				stop()
				return c.printReading(r)
			}

			sess, err := c.app.orch.BeginAstrology(ctx, personal)
			if err != nil {
				return err
			}
			c.app.logger.Sugar().Debugw("astrology session opened", "session_id", sess.ID())

			if err := sess.SubmitBirthDetails(ctx, birth); err != nil {
				return err
			}
			if err := sess.SubmitPreferences(ctx, prefs); err != nil {
				return err
			}

			r, err := sess.Generate(ctx)
			if err != nil {
				return err
			}
			stop()
			return c.printReading(r)
		},
	}

	f := cmd.Flags()
	f.StringVar(&personal.Name, "name", "", "name")
	f.StringVar(&personal.Gender, "gender", "", "gender")
	f.BoolVar(&personal.Consent, "consent", false, "allow the backend to store personal data")
	f.StringVar(&birth.Date, "birth-date", "", "birth date, YYYY-MM-DD")
	f.StringVar(&birth.Time, "birth-time", "", "birth time, HH:MM (optional)")
	f.StringVar(&birth.Place, "birth-place", "", "birth place")
	f.StringVar(&birth.Timezone, "timezone", "", "IANA timezone of the birth place (optional)")
	f.StringSliceVar(&prefs.FocusAreas, "focus", nil, "focus areas, e.g. career,love")
	f.StringVar(&prefs.ReadingDepth, "depth", "", "reading depth")
	f.StringVar(&prefs.Question, "question", "", "question for the reading")
	f.BoolVar(&quick, "quick", false, "use the single-request endpoint")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("birth-date")
	_ = cmd.MarkFlagRequired("birth-place")

	return cmd
}

func (c *CLI) numerologyCmd() *cobra.Command {
	var req model.NumerologyRequest

	cmd := &cobra.Command{
		Use:   "numerology",
		Short: "Calculate a numerology reading",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			stop := c.watchProgress(c.progressWriter(cmd))
			r, err := c.app.orch.RunNumerology(cmd.Context(), req)
			stop()
			if err != nil {
				return err
			}
			return c.printReading(r)
		},
	}

	cmd.Flags().StringVar(&req.FullName, "name", "", "full name")
	cmd.Flags().StringVar(&req.BirthDate, "birth-date", "", "birth date, YYYY-MM-DD")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("birth-date")

	return cmd
}

func (c *CLI) historyCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List saved readings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !c.app.creds.Authenticated() {
				return errNotLoggedIn
			}
			if err := c.app.readings.LoadReadings(cmd.Context(), limit); err != nil {
				if errors.Is(err, apierr.ErrNotAuthenticated) {
					return errNotLoggedIn
				}
				return err
			}
			return c.printHistory(c.app.readings.History(), c.app.readings.Stats())
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of readings")

	return cmd
}

func (c *CLI) saveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "save <reading.json>",
		Short: "Save a reading printed with --json to the account history",
		Long: `Save a completed reading printed with --json to the account history.
In mock mode the reading is kept in the credentials file next to the tokens,
so it shows up in history until that file is removed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read reading: %w", err)
			}

			var r model.Reading
			if err := json.Unmarshal(data, &r); err != nil {
				return fmt.Errorf("decode reading: %w", err)
			}
			if r.Status != model.StatusCompleted {
				return fmt.Errorf("only completed readings can be saved, got %q", r.Status)
			}

			source := r.SourceID
			if source == "" {
				source = r.ID
			}
			res, err := c.app.api.SaveReading(cmd.Context(), model.SaveReadingRequest{
				Kind:            r.Kind,
				Result:          r.Result,
				Accuracy:        r.Accuracy,
				SourceID:        source,
				PalmReferenceID: r.PalmReferenceID,
			})
			if errors.Is(err, apierr.ErrNotAuthenticated) {
				return errNotLoggedIn
			}
			if err != nil {
				return err
			}

			if c.jsonOutput {
				return c.printJSON(res)
			}
			fmt.Fprintf(c.out, "Saved %s as %s\n", r.Kind, res.Data.ID)
			return nil
		},
	}
}

package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/mmeshcher/palmastro/internal/model"
	"github.com/mmeshcher/palmastro/internal/store"
)

var kindTitles = map[model.ReadingKind]string{
	model.KindPalm:       "Palm reading",
	model.KindAstrology:  "Astrology reading",
	model.KindNumerology: "Numerology reading",
}

func (c *CLI) printJSON(v any) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatAccuracy(acc *float64) string {
	if acc == nil {
		return "-"
	}
	return fmt.Sprintf("%.1f%%", *acc)
}

func (c *CLI) printReading(r *model.Reading) error {
	if c.jsonOutput {
		return c.printJSON(r)
	}

	w := c.out
	fmt.Fprintf(w, "%s %s\n", kindTitles[r.Kind], r.ID)
	fmt.Fprintf(w, "  status:   %s\n", r.Status)
	fmt.Fprintf(w, "  accuracy: %s\n", formatAccuracy(r.Accuracy))
	fmt.Fprintf(w, "  created:  %s\n", r.CreatedAt.Local().Format(time.DateTime))
	if r.PalmReferenceID != "" {
		fmt.Fprintf(w, "  palm:     %s\n", r.PalmReferenceID)
	}

	printResultSummary(w, r.Result)

	if r.Display != nil {
		for _, m := range r.Display.Compatibility {
			fmt.Fprintf(w, "  compatibility %-12s %3d%% %s\n", m.Sign, m.Match, m.Label)
		}
		for _, t := range r.Display.Traits {
			fmt.Fprintf(w, "  trait %-20s %3d\n", t.Name, t.Score)
		}
	}
	return nil
}

// printResultSummary печатает верхнеуровневые скалярные поля результата в алфавитном порядке.
func printResultSummary(w io.Writer, raw json.RawMessage) {
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return
	}

	keys := make([]string, 0, len(fields))
	for k, v := range fields {
		switch v.(type) {
		case string, float64, bool:
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	for _, k := range keys {
		v := fmt.Sprint(fields[k])
		if len(v) > 80 {
			v = v[:77] + "..."
		}
		fmt.Fprintf(w, "  %s: %s\n", strings.ReplaceAll(k, "_", " "), v)
	}
}

func (c *CLI) printUser(u *model.User) error {
	if c.jsonOutput {
		return c.printJSON(u)
	}
	fmt.Fprintf(c.out, "%s <%s>\n", u.DisplayName(), u.Email)
	fmt.Fprintf(c.out, "  plan:          %s\n", u.Plan)
	fmt.Fprintf(c.out, "  readings:      %d\n", u.TotalReadings)
	fmt.Fprintf(c.out, "  accuracy:      %.1f%%\n", u.AccuracyScore)
	if !u.MemberSince.IsZero() {
		fmt.Fprintf(c.out, "  member since:  %s\n", u.MemberSince.Format(time.DateOnly))
	}
	return nil
}

func (c *CLI) printHistory(history []model.Reading, st store.Stats) error {
	if c.jsonOutput {
		return c.printJSON(struct {
			Readings []model.Reading `json:"readings"`
			Stats    store.Stats     `json:"stats"`
		}{history, st})
	}

	if len(history) == 0 {
		fmt.Fprintln(c.out, "No readings yet.")
		return nil
	}

	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tSTATUS\tACCURACY\tCREATED")
	for _, r := range history {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.ID, r.Kind, r.Status, formatAccuracy(r.Accuracy), r.CreatedAt.Local().Format(time.DateTime))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(c.out, "\n%d readings, %d completed, mean accuracy %.1f%%, median %.1f%%\n",
		st.Total, st.Completed, st.MeanAccuracy, st.MedianAccuracy)
	return nil
}

func (c *CLI) printDashboard(d *model.Dashboard) error {
	if c.jsonOutput {
		return c.printJSON(d)
	}

	s := d.UserStats
	fmt.Fprintf(c.out, "Total readings:   %d\n", s.TotalReadings)
	fmt.Fprintf(c.out, "This month:       %d\n", s.ReadingsThisMonth)
	fmt.Fprintf(c.out, "This week:        %d\n", s.ReadingsThisWeek)
	fmt.Fprintf(c.out, "Average accuracy: %.1f%%\n", s.AverageAccuracy)
	if s.FavoriteReadingType != "" {
		fmt.Fprintf(c.out, "Favorite type:    %s\n", s.FavoriteReadingType)
	}

	if len(d.WeeklyActivity) > 0 {
		fmt.Fprintln(c.out, "\nWeekly activity:")
		for _, day := range d.WeeklyActivity {
			fmt.Fprintf(c.out, "  %-3s %s %d\n", day.Day, strings.Repeat("#", day.Readings), day.Readings)
		}
	}

	if len(d.RecentReadings) > 0 {
		fmt.Fprintln(c.out, "\nRecent readings:")
		for _, r := range d.RecentReadings {
			fmt.Fprintf(c.out, "  %-18s %-10s %s\n", r.Kind, r.Status, formatAccuracy(r.Accuracy))
		}
	}
	return nil
}

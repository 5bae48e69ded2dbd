package formatter

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"saleharvest/internal/harvest"
	"saleharvest/internal/scheduler"
)

// SummaryTable renders one row per round.
func SummaryTable(summaries ...harvest.Summary) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Round", "Outcome", "Attempts", "Found", "New products", "New banners",
		"Duplicates", "Skipped", "Degraded", "Duration", "Error"})
	for _, s := range summaries {
		t.AppendRow(table.Row{
			s.Round, s.Outcome, s.Attempts, s.Found, s.AcceptedProducts, s.AcceptedBanners,
			s.Duplicates(), s.Failed, s.Degraded, time.Duration(s.Duration).Round(time.Millisecond), s.Error,
		})
	}
	t.SetColumnConfigs([]table.ColumnConfig{{Number: 11, WidthMax: 50}})
	return t.Render()
}

// ReportTable renders the totals of a monitoring run.
func ReportTable(r scheduler.Report) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetTitle("Monitoring")
	t.AppendRows([]table.Row{
		{"Rounds", r.Rounds},
		{"Rounds with new items", r.NewItemRounds},
		{"Rounds without new items", r.NoNewRounds},
		{"Failed rounds", r.FailedRounds},
		{"Items accepted", r.Accepted},
		{"Stopped early", fmt.Sprint(r.Stopped)},
	})
	return t.Render()
}

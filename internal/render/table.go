package render

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/naka-gawa/loc-stats/internal/domain"
)

// Summary writes one row per window: additions, deletions, total and the
// weekly distribution.
func Summary(w io.Writer, result domain.AggregateResult) {
	tbl := table.NewWriter()
	tbl.SetOutputMirror(w)
	tbl.SetStyle(table.StyleLight)
	tbl.Style().Options.DrawBorder = false
	tbl.Style().Options.SeparateColumns = false

	tbl.AppendHeader(table.Row{"Window", "Additions", "Deletions", "Total", "Weekly mean", "Weekly median", "Peak week"})
	for _, t := range result {
		tbl.AppendRow(table.Row{
			t.Window,
			"+" + humanize.Comma(int64(t.Additions)),
			"-" + humanize.Comma(int64(t.Deletions)),
			humanize.Comma(int64(t.Total)),
			fmt.Sprintf("%.1f", t.WeeklyMean),
			fmt.Sprintf("%.1f", t.WeeklyMedian),
			humanize.Comma(int64(t.PeakWeek)),
		})
	}
	tbl.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
		{Number: 7, Align: text.AlignRight},
	})
	tbl.Render()
}

// Line formats one window the way the run log prints it.
func Line(t domain.WindowTotal) string {
	return fmt.Sprintf("%-12s +%s / -%s = %s lines",
		t.Window+":",
		humanize.Comma(int64(t.Additions)),
		humanize.Comma(int64(t.Deletions)),
		humanize.Comma(int64(t.Total)))
}

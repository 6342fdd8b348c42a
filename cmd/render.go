package cmd

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/JakeFAU/book-harvester/internal/checkpoint"
	"github.com/JakeFAU/book-harvester/internal/harvest"
	"github.com/JakeFAU/book-harvester/internal/store"
)

func newTable(out io.Writer, title string) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleLight)
	t.SetTitle(title)
	return t
}

func renderSummary(out io.Writer, s harvest.Summary) {
	t := newTable(out, "Harvest summary")
	t.AppendRows([]table.Row{
		{"Run", s.RunID},
		{"Collected", fmt.Sprintf("%d / %d", s.Accepted, s.Target)},
		{"Saved this run", s.SavedThisRun},
		{"Skipped (already collected)", s.Skipped},
		{"Dropped (no text or too short)", s.Dropped},
		{"Errors", s.Errors},
		{"Catalog pages", s.Pages},
		{"Catalog exhausted", s.Exhausted},
		{"Duration", s.Duration.Round(time.Millisecond)},
	})
	t.SetColumnConfigs([]table.ColumnConfig{{Number: 2, Align: text.AlignRight}})
	t.Render()
}

func renderCheckpoint(out io.Writer, records []checkpoint.Record, target, recent int) {
	var words int
	var last time.Time
	for _, r := range records {
		words += r.WordCount
		if r.SavedAt.After(last) {
			last = r.SavedAt
		}
	}
	lastSaved := "never"
	if !last.IsZero() {
		lastSaved = last.Format(time.RFC3339)
	}

	t := newTable(out, "Checkpoint")
	t.AppendRows([]table.Row{
		{"Collected", fmt.Sprintf("%d / %d", len(records), target)},
		{"Total words", words},
		{"Last saved", lastSaved},
	})
	t.Render()

	if recent <= 0 || len(records) == 0 {
		return
	}
	byTime := make([]checkpoint.Record, len(records))
	copy(byTime, records)
	sort.SliceStable(byTime, func(i, j int) bool { return byTime[i].SavedAt.After(byTime[j].SavedAt) })
	if len(byTime) > recent {
		byTime = byTime[:recent]
	}

	rt := newTable(out, "Recently saved")
	rt.AppendHeader(table.Row{"ID", "Title", "Authors", "Words", "Saved"})
	for _, r := range byTime {
		rt.AppendRow(table.Row{r.ID, truncate(r.Title, 48), truncate(strings.Join(r.AuthorNames(), "; "), 32), r.WordCount, r.SavedAt.Format(time.RFC3339)})
	}
	rt.Render()
}

func renderRuns(out io.Writer, runs []store.Run) {
	t := newTable(out, "Recent runs")
	t.AppendHeader(table.Row{"Run", "Started", "Status", "Saved", "Collected", "Target", "Error"})
	for _, r := range runs {
		errMsg := ""
		if r.ErrorMessage != nil {
			errMsg = truncate(*r.ErrorMessage, 40)
		}
		t.AppendRow(table.Row{r.ID.String(), r.StartedAt.Format(time.RFC3339), string(r.Status), r.Saved, r.Accepted, r.Target, errMsg})
	}
	t.Render()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

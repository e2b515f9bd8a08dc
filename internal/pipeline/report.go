package pipeline

import (
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"omop-lite/internal/engine"
)

// RenderReport writes the per-file summary table and the run's final state.
func RenderReport(w io.Writer, r *Report) {
	if len(r.Jobs) > 0 {
		t := table.NewWriter()
		t.SetOutputMirror(w)
		t.SetStyle(table.StyleLight)
		t.AppendHeader(table.Row{"#", "Table", "File", "Rows", "Status", "Time", "Error"})

		var total int64
		for i, j := range r.Jobs {
			errMsg := ""
			if j.Err != nil {
				errMsg = text.WrapSoft(j.Err.Error(), 60)
			}
			status := j.Status
			if status == "" {
				status = "NOT RUN"
			}
			t.AppendRow(table.Row{i + 1, j.Table, j.Path, j.Rows, status, j.Elapsed.Round(time.Millisecond), errMsg})
			total += j.Rows
		}
		t.AppendFooter(table.Row{"", "", "Total", total, fmt.Sprintf("%d failed", len(engine.Failures(r.Jobs))), "", ""})
		t.Render()
	}

	switch r.State {
	case Success:
		fmt.Fprintf(w, "Done: %s in %s\n", r.State, r.Elapsed.Round(time.Millisecond))
	case PartialFailure:
		fmt.Fprintf(w, "Done: %s in %s (%d files failed)\n", r.State, r.Elapsed.Round(time.Millisecond), len(r.Failed()))
		if r.ConstraintsSkipped {
			fmt.Fprintln(w, "Constraints and indices were not applied.")
		}
	case Fatal:
		fmt.Fprintf(w, "Aborted during %s: %v\n", r.Phase, r.Err)
	}
}

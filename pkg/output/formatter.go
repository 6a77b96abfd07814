package output

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/ritzau/emit-scheduler/pkg/model"
)

var (
	bold   = color.New(color.Bold)
	red    = color.New(color.FgRed)
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	cyan   = color.New(color.FgCyan)
)

// PrintAffected lists the files that must be re-emitted after file changed.
func PrintAffected(w io.Writer, file string, affected []string) {
	bold.Fprintf(w, "Affected by %s\n", file)
	for _, f := range affected {
		marker := " "
		if f == file {
			marker = "*"
		}
		fmt.Fprintf(w, "  %s %s\n", marker, f)
	}
	switch len(affected) {
	case 0:
		yellow.Fprintln(w, "No emittable files affected")
	case 1:
		green.Fprintln(w, "Shape unchanged: 1 file")
	default:
		cyan.Fprintf(w, "%d files\n", len(affected))
	}
}

// PrintDependents lists the files that reference file directly.
func PrintDependents(w io.Writer, file string, dependents []string) {
	bold.Fprintf(w, "Dependents of %s\n", file)
	if len(dependents) == 0 {
		green.Fprintln(w, "  none")
		return
	}
	for _, f := range dependents {
		fmt.Fprintf(w, "    %s\n", f)
	}
}

// PrintReport prints one emit report with the artifacts it produced.
func PrintReport(w io.Writer, r *model.EmitReport) {
	kind := cyan
	if r.Kind == model.ChangeRemoved {
		kind = red
	}
	kind.Fprintf(w, "[%s] ", r.Kind)
	bold.Fprintf(w, "%s", r.Trigger)
	fmt.Fprintf(w, " (%d affected, %d ms)\n", len(r.Affected), r.DurationMs)

	for _, e := range r.Emitted {
		bom := ""
		if e.BOM {
			bom = ", bom"
		}
		green.Fprintf(w, "  -> %s", e.Path)
		fmt.Fprintf(w, " (%d bytes%s)\n", e.Bytes, bom)
	}
	for _, s := range r.Skipped {
		yellow.Fprintf(w, "  skipped %s\n", s)
	}
}

// PrintBatch prints every report of a batch followed by a summary line.
func PrintBatch(w io.Writer, b *model.BatchReport) {
	if len(b.Reports) == 0 {
		return
	}
	for _, r := range b.Reports {
		PrintReport(w, r)
	}
	summary := fmt.Sprintf("Batch %s: %d change(s), %d file(s) emitted", shortID(b.BatchID), len(b.Reports), b.EmittedCount())
	if b.Refreshed {
		summary += ", project refreshed"
	}
	bold.Fprintln(w, summary)
}

// PrintCycles prints the reference cycles of the project.
func PrintCycles(w io.Writer, cycles []model.Cycle) {
	if len(cycles) == 0 {
		green.Fprintln(w, "✓ No reference cycles")
		return
	}
	red.Fprintf(w, "Found %d reference cycle(s):\n", len(cycles))
	for i, c := range cycles {
		yellow.Fprintf(w, "  Cycle %d (%d files)\n", i+1, len(c.Files))
		for _, f := range c.Files {
			fmt.Fprintf(w, "    %s\n", f)
		}
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

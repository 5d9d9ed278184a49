package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"
	"github.com/olekukonko/tablewriter"

	"github.com/lkarlslund/gwprobe/pkg/analyze"
	"github.com/lkarlslund/gwprobe/pkg/logutil"
)

type RenderOptions struct {
	// Verbose adds the latency plot.
	Verbose bool
}

const ruleWidth = 60

type styles struct {
	pass, fail, warn, info, title lipgloss.Style
}

func newStyles(w io.Writer) styles {
	re := lipgloss.NewRenderer(w)
	return styles{
		pass:  re.NewStyle().Foreground(lipgloss.Color("2")).Bold(true),
		fail:  re.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
		warn:  re.NewStyle().Foreground(lipgloss.Color("3")),
		info:  re.NewStyle().Foreground(lipgloss.Color("6")),
		title: re.NewStyle().Bold(true),
	}
}

// Render writes the run summary. The output depends only on r and opts;
// styling is dropped automatically when w is not a terminal.
func Render(w io.Writer, r *Result, opts RenderOptions) error {
	st := newStyles(w)
	var b strings.Builder
	rule := strings.Repeat("=", ruleWidth)

	fmt.Fprintln(&b, rule)
	fmt.Fprintln(&b, st.title.Render(fmt.Sprintf("gwprobe %s results", r.Suite)))
	fmt.Fprintf(&b, "Target: %s\nRun:    %s", r.Target, r.RunID)
	if r.Harness != "" {
		fmt.Fprintf(&b, " (%s)", r.Harness)
	}
	b.WriteString("\n")
	fmt.Fprintln(&b, rule)

	for _, c := range r.Checks {
		tag := st.pass.Render("[PASS]")
		switch {
		case c.Errored:
			tag = st.fail.Render("[ERR ]")
		case !c.Passed:
			tag = st.fail.Render("[FAIL]")
		}
		fmt.Fprintf(&b, "  %s %s: %s\n", tag, c.Name, c.Message)
	}

	if subtotals := r.Subtotals(); len(subtotals) > 0 {
		b.WriteString("\n")
		t := newTable(&b, []string{"Category", "Passed", "Failed", "Total"})
		for _, s := range subtotals {
			t.Append([]string{string(s.Category), strconv.Itoa(s.Passed), strconv.Itoa(s.Failed), strconv.Itoa(s.Passed + s.Failed)})
		}
		t.Render()
	}

	if len(r.Distribution) > 0 {
		renderDistribution(&b, r.Distribution)
	}
	if r.Timing != nil && r.Timing.Count > 0 {
		renderTiming(&b, r.Timing, opts.Verbose)
	}

	if len(r.Notes) > 0 {
		b.WriteString("\nNotes:\n")
		for _, n := range r.Notes {
			tag := st.info.Render("[INFO]")
			if n.Status == analyze.StatusWarn {
				tag = st.warn.Render("[WARN]")
			}
			fmt.Fprintf(&b, "  %s %s: %s\n", tag, n.Name, n.Message)
		}
	}

	b.WriteString("\n")
	summary := fmt.Sprintf("Results: %d/%d passed", r.Passed(), r.TestsRun())
	if r.Failed() > 0 {
		summary += ", " + st.fail.Render(fmt.Sprintf("%d failed", r.Failed()))
	}
	if r.Interrupted {
		summary += " (interrupted)"
	}
	fmt.Fprintln(&b, summary)
	if !r.Finished.IsZero() {
		fmt.Fprintf(&b, "Duration: %s\n", logutil.FormatDuration(r.Finished.Sub(r.Started)))
	}
	fmt.Fprintln(&b, rule)

	_, err := io.WriteString(w, b.String())
	return err
}

func newTable(w io.Writer, header []string) *tablewriter.Table {
	t := tablewriter.NewWriter(w)
	t.SetHeader(header)
	t.SetAutoFormatHeaders(false)
	t.SetAutoWrapText(false)
	t.SetAlignment(tablewriter.ALIGN_LEFT)
	return t
}

func renderDistribution(b *strings.Builder, rows []analyze.ModelCount) {
	total := 0
	for _, row := range rows {
		total += row.Count
	}
	b.WriteString("\nRunner distribution:\n")
	t := newTable(b, []string{"Model", "Requests", "Share"})
	for _, row := range rows {
		share := 0.0
		if total > 0 {
			share = float64(row.Count) * 100 / float64(total)
		}
		t.Append([]string{row.Model, strconv.Itoa(row.Count), fmt.Sprintf("%.1f%%", share)})
	}
	t.Render()
}

func renderTiming(b *strings.Builder, tm *Timing, verbose bool) {
	b.WriteString("\nTiming:\n")
	fmt.Fprintf(b, "  Wall clock:      %s\n", logutil.FormatDuration(tm.WallClock))
	fmt.Fprintf(b, "  Sum of requests: %s\n", logutil.FormatDuration(tm.SumLatency))
	fmt.Fprintf(b, "  Average:         %s\n", logutil.FormatDuration(tm.Mean))
	fmt.Fprintf(b, "  Std deviation:   %s\n", logutil.FormatDuration(tm.StdDev))
	fmt.Fprintf(b, "  Min / Max:       %s / %s\n", logutil.FormatDuration(tm.Min), logutil.FormatDuration(tm.Max))
	if !verbose || len(tm.Latencies) < 2 {
		return
	}
	data := make([]float64, 0, len(tm.Latencies))
	for _, l := range tm.Latencies {
		data = append(data, float64(l.Milliseconds()))
	}
	b.WriteString("\n")
	b.WriteString(asciigraph.Plot(data,
		asciigraph.Height(8),
		asciigraph.Width(min(max(len(data)*2, 20), 72)),
		asciigraph.Caption("latency per request (ms)"),
	))
	b.WriteString("\n")
}

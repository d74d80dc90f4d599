package report

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/obsidianstack/siteuptime/pkg/types"
	"github.com/obsidianstack/siteuptime/reporter/internal/compute"
)

// WriteText writes the line-oriented report: window, ranked services, the
// untrimmed average, both removal lists and the trimmed average.
func WriteText(w io.Writer, win types.Window, rep *compute.Report) error {
	bw := bufio.NewWriter(w)
	pct := formatTrim(rep.TrimPercentage)

	fmt.Fprintf(bw, "Uptime from %s to %s: %d days, %d timeslots\n",
		win.Start.Format(types.DateLayout), win.End.Format(types.DateLayout), rep.Days, rep.Timeslots)
	fmt.Fprintln(bw)

	for _, e := range rep.Ranked {
		fmt.Fprintln(bw, entryLine(e))
	}

	fmt.Fprintln(bw)
	fmt.Fprintf(bw, "Average uptime across %d monitors: %s\n", rep.All.Count, rep.All)

	fmt.Fprintln(bw)
	fmt.Fprintf(bw, "Removing top %s%% (%d) of uptimes...\n", pct, rep.TrimCount)
	for _, e := range rep.TopTrimmed {
		fmt.Fprintf(bw, "Removing %s\n", entryLine(e))
	}

	fmt.Fprintln(bw)
	fmt.Fprintf(bw, "Removing bottom %s%% (%d) of uptimes...\n", pct, rep.TrimCount)
	for _, e := range rep.BottomTrimmed {
		fmt.Fprintf(bw, "Removing %s\n", entryLine(e))
	}

	fmt.Fprintln(bw)
	fmt.Fprintf(bw, "Average uptime after trimming top and bottom %s%%, %d monitors: %s\n",
		pct, rep.Trimmed.Count, rep.Trimmed)

	if err := bw.Flush(); err != nil {
		return fmt.Errorf("report: write text: %w", err)
	}
	return nil
}

func entryLine(e compute.Entry) string {
	return fmt.Sprintf("%s: %d downs, %s", e.Name, e.Downs, e.Percent)
}

// formatTrim prints a trim percentage with at least one decimal: 1.0, 2.5.
func formatTrim(p float64) string {
	s := strconv.FormatFloat(p, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// Summary is a short plain-text digest of a report for chat notifications.
func Summary(win types.Window, rep *compute.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "SiteUptime report %s (%d days)\n", win, rep.Days)
	fmt.Fprintf(&b, "Average uptime across %d monitors: %s\n", rep.All.Count, rep.All)
	fmt.Fprintf(&b, "Trimmed average (top and bottom %s%%), %d monitors: %s",
		formatTrim(rep.TrimPercentage), rep.Trimmed.Count, rep.Trimmed)

	if len(rep.Ranked) > 0 {
		worst := rep.Ranked[0]
		fmt.Fprintf(&b, "\nMost downs: %s", entryLine(worst))
	}
	return b.String()
}

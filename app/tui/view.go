package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/umputun/syncview/app/backend"
	"github.com/umputun/syncview/app/schedule"
)

var (
	styleTitle    = lipgloss.NewStyle().Bold(true)
	styleUp       = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	styleDown     = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	styleColumns  = lipgloss.NewStyle().Faint(true)
	styleSelected = lipgloss.NewStyle().Reverse(true)
	styleRunning  = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	styleIdle     = lipgloss.NewStyle().Faint(true)
	styleOdd      = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	styleWarn     = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	styleMuted    = lipgloss.NewStyle().Faint(true)
)

const helpLine = "[1] run once  [2] scheduler  [3] interactive  [s] start  [x] stop  [d] delete  [r] refresh  [q] quit"

// jobRow is one line of the jobs table
type jobRow struct {
	id, name, kind string
	schedule, next string
	status         string
	running        bool
	known          bool // recognized status value
}

// buildRows derives table rows from the polled jobs. Unknown types keep the
// raw type string as the schedule, unknown statuses render highlighted.
func buildRows(jobs []backend.Job) []jobRow {
	rows := make([]jobRow, 0, len(jobs))
	now := time.Now()
	for _, j := range jobs {
		row := jobRow{
			id:      j.ID,
			name:    j.Name,
			kind:    j.Type,
			status:  j.Status,
			running: j.Running(),
			known:   j.Status == "idle" || j.Status == "running",
		}
		spec, err := schedule.FromJob(j)
		if err != nil {
			row.schedule = j.Type
		} else {
			row.schedule = spec.Summary()
		}
		row.next = nextRunText(j, spec, err == nil, now)
		rows = append(rows, row)
	}
	return rows
}

// nextRunText prefers the backend-reported stamp and falls back to a local
// estimate marked with "~"
func nextRunText(j backend.Job, spec schedule.Spec, specOK bool, now time.Time) string {
	if j.NextRun != "" {
		if ts, ok := j.NextRunTime(); ok {
			return ts.Format("Jan 2, 15:04")
		}
		return j.NextRun // unparseable stamp renders as-is
	}
	if specOK {
		if next, err := spec.Next(now); err == nil {
			return "~" + next.Format("Jan 2, 15:04")
		}
	}
	return "not scheduled"
}

// View renders the full frame
func (c *Console) View() string {
	var b strings.Builder
	b.WriteString(c.renderHeader())
	b.WriteString("\n\n")
	b.WriteString(c.renderJobs())
	b.WriteString("\n")
	b.WriteString(c.renderLog())
	b.WriteString("\n")
	if c.status != "" {
		b.WriteString(styleMuted.Render(c.status))
	}
	b.WriteString("\n")
	b.WriteString(styleMuted.Render(helpLine))

	// hard clamp so the frame never overflows the terminal
	out := b.String()
	if lines := strings.Split(out, "\n"); c.height > 0 && len(lines) > c.height {
		out = strings.Join(lines[:c.height], "\n")
	}
	return out
}

func (c *Console) renderHeader() string {
	badge := styleUp.Render("backend up")
	if !c.snap.BackendUp {
		badge = styleDown.Render("backend down")
	}
	polled := "never"
	if !c.snap.LastPoll.IsZero() {
		polled = c.snap.LastPoll.Format("15:04:05")
	}
	return fmt.Sprintf("%s  %s  %s",
		styleTitle.Render("syncview "+c.version), badge, styleMuted.Render("polled "+polled))
}

func (c *Console) renderJobs() string {
	if !c.snap.JobsLoaded {
		return styleMuted.Render("loading jobs...") + "\n"
	}
	if len(c.rows) == 0 {
		return styleMuted.Render("No jobs yet") + "\n"
	}

	running := 0
	for _, r := range c.rows {
		if r.running {
			running++
		}
	}

	var b strings.Builder
	b.WriteString(styleTitle.Render(fmt.Sprintf("jobs (%d, %d running)", len(c.rows), running)))
	b.WriteString("\n")
	b.WriteString(styleColumns.Render(fmt.Sprintf("  %-24s %-9s %-20s %-9s %s",
		"NAME", "TYPE", "SCHEDULE", "STATUS", "NEXT RUN")))
	b.WriteString("\n")
	for i, r := range c.rows {
		b.WriteString(c.renderRow(i, r))
		b.WriteString("\n")
	}
	return b.String()
}

func (c *Console) renderRow(i int, r jobRow) string {
	if i == c.cursor {
		line := fmt.Sprintf("> %-24s %-9s %-20s %-9s %s",
			clip(r.name, 24), clip(r.kind, 9), clip(r.schedule, 20), clip(r.status, 9), r.next)
		return styleSelected.Render(line)
	}

	statusCell := fmt.Sprintf("%-9s", clip(r.status, 9))
	switch {
	case r.running:
		statusCell = styleRunning.Render(statusCell)
	case r.known:
		statusCell = styleIdle.Render(statusCell)
	default:
		statusCell = styleOdd.Render(statusCell)
	}
	return fmt.Sprintf("  %-24s %-9s %-20s %s %s",
		clip(r.name, 24), clip(r.kind, 9), clip(r.schedule, 20), statusCell, r.next)
}

func (c *Console) renderLog() string {
	var b strings.Builder
	b.WriteString(styleTitle.Render("runner log"))
	b.WriteString(styleMuted.Render("  " + c.runStatus()))
	b.WriteString("\n")

	lines := c.snap.Runner
	if max := c.logHeight(); len(lines) > max {
		lines = lines[len(lines)-max:] // pinned to the newest
	}
	for _, ln := range lines {
		if warnLine(ln) {
			b.WriteString(styleWarn.Render("  " + clip(ln, c.width-2)))
		} else {
			b.WriteString("  " + clip(ln, c.width-2))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// runStatus renders the last manual trigger for the log panel title
func (c *Console) runStatus() string {
	st := c.snap.LastRun
	if st.Mode == "" {
		return "idle"
	}
	if st.Failed {
		return fmt.Sprintf("%s failed: %s", st.Mode, st.Err)
	}
	return fmt.Sprintf("%s started %s", st.Mode, st.At.Format("15:04:05"))
}

// logHeight is the vertical budget left for the tail after the fixed chrome
// and the jobs table
func (c *Console) logHeight() int {
	h := c.height - 7 - len(c.rows)
	if h < 3 {
		h = 3
	}
	return h
}

// warnLine reports whether a log line should render highlighted
func warnLine(line string) bool {
	return strings.Contains(line, "warning:") || strings.Contains(line, "⚠")
}

// clip truncates a string to n bytes with an ellipsis
func clip(s string, n int) string {
	if n < 0 {
		n = 0
	}
	if len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}

// Package output provides terminal output for stackup.
//
// This package includes:
//   - Table rendering for units, runs, backups, health results and credentials
//   - A Console that reports install progress
//   - A spinner for waits of unknown length
//
// Tables use box-drawing rulers and ANSI colors, which are dropped when
// stdout is not a terminal or NO_COLOR is set.
package output

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"github.com/blackwell-systems/stackup/internal/catalog"
	"github.com/blackwell-systems/stackup/internal/credentials"
	"github.com/blackwell-systems/stackup/internal/health"
	"github.com/blackwell-systems/stackup/internal/runner"
	"github.com/blackwell-systems/stackup/internal/store"
)

const (
	colorReset  = "\033[0m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorRed    = "\033[31m"
	colorGray   = "\033[90m"
)

// IsColorEnabled returns true if ANSI color codes should be emitted.
// It checks that os.Stdout is a TTY and that the NO_COLOR env var is not set.
func IsColorEnabled() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return isatty.IsTerminal(os.Stdout.Fd())
}

func colorize(color, text string) string {
	if IsColorEnabled() {
		return color + text + colorReset
	}
	return text
}

func ruler(sb *strings.Builder, width int) {
	sb.WriteString(strings.Repeat("─", width))
	sb.WriteString("\n")
}

// UnitStatus is one row of the status table.
type UnitStatus struct {
	Name          string
	Description   string
	Installed     bool
	ProbeError    string
	LastInstalled time.Time
	Dependencies  []string
}

// RenderStatusTable renders installed state per unit, sorted by name.
func RenderStatusTable(rows []UnitStatus) string {
	if len(rows) == 0 {
		return "No units in catalog.\n"
	}

	sorted := make([]UnitStatus, len(rows))
	copy(sorted, rows)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Name < sorted[j].Name
	})

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%-18s %-15s %-16s %s\n", "Unit", "Status", "Last Install", "Requires"))
	ruler(&sb, 72)

	for _, r := range sorted {
		status := colorize(colorGray, fmt.Sprintf("%-15s", "not installed"))
		switch {
		case r.ProbeError != "":
			status = colorize(colorYellow, fmt.Sprintf("%-15s", "probe error"))
		case r.Installed:
			status = colorize(colorGreen, fmt.Sprintf("%-15s", "✓ installed"))
		}

		sb.WriteString(fmt.Sprintf("%-18s %s %-16s %s\n",
			truncate(r.Name, 18),
			status,
			formatRelativeTime(r.LastInstalled),
			formatList(r.Dependencies)))
	}

	return sb.String()
}

// RenderCatalogTable renders catalog definitions, with the units that
// require each one.
func RenderCatalogTable(c *catalog.Catalog) string {
	units := c.Units()
	if len(units) == 0 {
		return "No units in catalog.\n"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%-18s %-11s %-28s %s\n", "Unit", "Probe", "Requires", "Optional"))
	ruler(&sb, 80)

	for _, u := range units {
		sb.WriteString(fmt.Sprintf("%-18s %-11s %-28s %s\n",
			truncate(u.Name, 18),
			u.Probe.Kind,
			truncate(formatList(u.Dependencies), 28),
			formatList(u.Optional)))
		if u.Description != "" {
			sb.WriteString(colorize(colorGray, "  "+u.Description))
			sb.WriteString("\n")
		}
		if dependents := c.Dependents(u.Name); len(dependents) > 0 {
			sb.WriteString(colorize(colorGray, "  required by "+strings.Join(dependents, ", ")))
			sb.WriteString("\n")
		}
	}

	return sb.String()
}

// RenderPlan renders what an install would do.
func RenderPlan(p *runner.Plan) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Plan for %s:\n", p.Unit))
	for i, name := range p.Install {
		marker := "install"
		if name == p.Unit {
			marker = "install (requested)"
		}
		line := fmt.Sprintf("  %d. %-18s %s", i+1, name, marker)
		if msg, ok := p.ProbeErrors[name]; ok {
			line += colorize(colorYellow, " (probe failed: "+msg+")")
		}
		sb.WriteString(line + "\n")
	}

	if len(p.Present) > 0 {
		sb.WriteString(fmt.Sprintf("Already installed: %s\n", strings.Join(p.Present, ", ")))
	}
	if len(p.Optional) > 0 {
		sb.WriteString(fmt.Sprintf("Optional, offered afterwards: %s\n", strings.Join(p.Optional, ", ")))
	}

	return sb.String()
}

var summaryBox = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	Padding(0, 1)

// RenderSummary renders the outcome of an install in a box.
func RenderSummary(res *runner.Result) string {
	var lines []string

	title := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
	headline := fmt.Sprintf("%s installed in %s", res.Unit, formatDuration(res.Duration))
	if !res.OK() {
		title = title.Foreground(lipgloss.Color("196"))
		headline = fmt.Sprintf("%s failed at %s", res.Unit, res.FailedUnit)
	}
	lines = append(lines, title.Render(headline))

	add := func(label string, names []string) {
		if len(names) > 0 {
			lines = append(lines, fmt.Sprintf("%-19s %s", label+":", strings.Join(names, ", ")))
		}
	}
	add("Installed", res.Installed)
	add("Already present", res.Skipped)
	add("Continued past", res.Overridden)
	add("Optional added", res.OptionalInstalled)
	add("Optional declined", res.OptionalDeclined)
	add("Optional failed", res.OptionalFailed)

	return summaryBox.Render(strings.Join(lines, "\n")) + "\n"
}

// RenderHistoryTable renders install runs, newest first.
func RenderHistoryTable(runs []*store.Run) string {
	if len(runs) == 0 {
		return "No install runs recorded.\n"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%-10s %-18s %-10s %-16s %-9s %s\n", "Run", "Unit", "Status", "Started", "Took", "Error"))
	ruler(&sb, 90)

	for _, r := range runs {
		took := "-"
		if r.FinishedAt != nil {
			took = formatDuration(r.FinishedAt.Sub(r.StartedAt))
		}

		status := fmt.Sprintf("%-10s", r.Status)
		switch r.Status {
		case store.RunSucceeded:
			status = colorize(colorGreen, status)
		case store.RunFailed:
			status = colorize(colorRed, status)
		}

		sb.WriteString(fmt.Sprintf("%-10s %-18s %s %-16s %-9s %s\n",
			shortID(r.ID),
			truncate(r.Unit, 18),
			status,
			formatRelativeTime(r.StartedAt),
			took,
			truncate(r.Error, 40)))
	}

	return sb.String()
}

// RenderEventTable renders the steps of one run in order.
func RenderEventTable(events []*store.InstallEvent) string {
	if len(events) == 0 {
		return "No events recorded for this run.\n"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%-9s %-18s %-18s %-9s %-5s %s\n", "Time", "Unit", "Parent", "Step", "Exit", "Message"))
	ruler(&sb, 90)

	for _, e := range events {
		exit := "-"
		if e.Kind == store.EventInstall || e.Kind == store.EventFail || e.Kind == store.EventOverride {
			exit = fmt.Sprintf("%d", e.ExitCode)
		}
		parent := e.Parent
		if parent == "" {
			parent = "-"
		}
		sb.WriteString(fmt.Sprintf("%-9s %-18s %-18s %-9s %-5s %s\n",
			e.Timestamp.Local().Format("15:04:05"),
			truncate(e.Unit, 18),
			truncate(parent, 18),
			e.Kind,
			exit,
			truncate(e.Message, 40)))
	}

	return sb.String()
}

// RenderBackupTable renders backups, newest first.
func RenderBackupTable(backups []*store.Backup) string {
	if len(backups) == 0 {
		return "No backups found.\n"
	}

	sorted := make([]*store.Backup, len(backups))
	copy(sorted, backups)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%-5s %-17s %-7s %-9s %s\n", "ID", "Created", "Units", "Size", "Reason"))
	ruler(&sb, 80)

	for _, b := range sorted {
		size := "missing"
		if info, err := os.Stat(b.Path); err == nil {
			size = humanize.Bytes(uint64(info.Size()))
		}
		sb.WriteString(fmt.Sprintf("%-5d %-17s %-7d %-9s %s\n",
			b.ID,
			formatRelativeTime(b.CreatedAt),
			b.UnitCount,
			size,
			truncate(b.Reason, 40)))
	}

	return sb.String()
}

// RenderHealthTable renders health results in the given order.
func RenderHealthTable(results []*health.Result) string {
	if len(results) == 0 {
		return "No units to check.\n"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%-18s %-14s %-9s %s\n", "Unit", "Health", "Latency", "Detail"))
	ruler(&sb, 80)

	up := 0
	for _, r := range results {
		label := fmt.Sprintf("%-14s", r.Status)
		switch r.Status {
		case health.StatusHealthy:
			up++
			label = colorize(colorGreen, label)
		case health.StatusUnhealthy, health.StatusUnreachable:
			label = colorize(colorRed, label)
		default:
			label = colorize(colorGray, label)
		}

		latency := "-"
		if r.Latency > 0 {
			latency = fmt.Sprintf("%dms", r.Latency.Milliseconds())
		}

		sb.WriteString(fmt.Sprintf("%-18s %s %-9s %s\n",
			truncate(r.Unit, 18),
			label,
			latency,
			truncate(r.Detail, 50)))
	}

	sb.WriteString(fmt.Sprintf("\n%d of %d healthy\n", up, len(results)))
	return sb.String()
}

// RenderCredentialTable renders one app's credentials, masked unless
// reveal is set.
func RenderCredentialTable(app string, creds map[string]string, reveal bool) string {
	if len(creds) == 0 {
		return fmt.Sprintf("No credentials stored for %s.\n", app)
	}

	keys := make([]string, 0, len(creds))
	for k := range creds {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s:\n", app))
	for _, k := range keys {
		v := creds[k]
		if !reveal {
			v = credentials.Mask(v)
		}
		sb.WriteString(fmt.Sprintf("  %-28s %s\n", k, v))
	}
	return sb.String()
}

func formatRelativeTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return humanize.Time(t)
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	default:
		return d.Round(time.Second).String()
	}
}

func formatList(items []string) string {
	if len(items) == 0 {
		return "—"
	}
	return strings.Join(items, ", ")
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// truncate truncates a string to maxLen, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}

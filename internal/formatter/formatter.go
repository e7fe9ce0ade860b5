// package formatter renders sync entities for terminal output
package formatter

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"tunesync/internal/auth"
	"tunesync/internal/models"
	"tunesync/internal/store"
)

// Palette is a simple stylesheet built with named [lipgloss.Style] fields.
type Palette struct {
	title lipgloss.Style
	ok    lipgloss.Style
	err   lipgloss.Style
	warn  lipgloss.Style
	dim   lipgloss.Style
}

var styles = NewPalette("#7D56F4", "#04B575", "#FF0000", "#FFA500", "#626262")

func NewPalette(t, s, e, w, d string) *Palette {
	return &Palette{
		title: newBold(t),
		ok:    newBold(s),
		err:   newBold(e),
		warn:  newStyle(w),
		dim:   newStyle(d).Italic(true),
	}
}

func newStyle(fg string) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(fg))
}

func newBold(fg string) lipgloss.Style {
	return newStyle(fg).Bold(true)
}

func statusStyle(status models.RunStatus) lipgloss.Style {
	switch status {
	case models.StatusCompleted:
		return styles.ok
	case models.StatusFailed:
		return styles.err
	case models.StatusRunning:
		return styles.warn
	default:
		return styles.dim
	}
}

// FormatConnections renders per-provider connection status lines.
func FormatConnections(statuses []*auth.ConnectionStatus) string {
	var b strings.Builder
	b.WriteString(styles.title.Render("Connections"))
	b.WriteString("\n")

	if len(statuses) == 0 {
		b.WriteString(styles.dim.Render("no providers connected"))
		b.WriteString("\n")
		return b.String()
	}

	for _, status := range statuses {
		state := styles.err.Render("disconnected")
		if status.Connected {
			state = styles.ok.Render("connected")
		}

		detail := ""
		if status.ExpiresAt != nil {
			detail = styles.dim.Render(" expires " + status.ExpiresAt.Format(time.RFC3339))
		}
		if status.LastRefreshResult != "" {
			detail += styles.dim.Render(" (" + status.LastRefreshResult + ")")
		}

		fmt.Fprintf(&b, "  %-12s %s%s\n", status.Provider, state, detail)
	}
	return b.String()
}

// FormatProfile renders a sync profile with its mappings and schedule.
func FormatProfile(profile *models.SyncProfile) string {
	var b strings.Builder
	b.WriteString(styles.title.Render("Sync Profile"))
	b.WriteString("\n")
	fmt.Fprintf(&b, "  Direction: %s\n", profile.Direction)
	fmt.Fprintf(&b, "  Likes:     %s\n", profile.LikesBehavior)

	if profile.ScheduleEnabled {
		fmt.Fprintf(&b, "  Schedule:  %s (%s)\n", profile.ScheduleCron, profile.ScheduleTimeZone)
	} else {
		fmt.Fprintf(&b, "  Schedule:  %s\n", styles.dim.Render("disabled"))
	}

	if len(profile.PlaylistMappings) == 0 {
		fmt.Fprintf(&b, "  Mappings:  %s\n", styles.dim.Render("none"))
		return b.String()
	}

	b.WriteString("  Mappings:\n")
	for _, mapping := range profile.PlaylistMappings {
		target := mapping.TargetPlaylistID
		if target == "" {
			target = styles.dim.Render("(named after source)")
		}
		fmt.Fprintf(&b, "    %s:%s -> %s:%s\n",
			mapping.SourceProvider, mapping.SourcePlaylistID,
			mapping.TargetProvider, target)
	}
	return b.String()
}

// FormatRun renders one run with counts and error, if any.
func FormatRun(run *store.RunView) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s  %s  imported=%d exported=%d skipped=%d",
		statusStyle(run.Status).Render(strings.ToUpper(string(run.Status))),
		run.StartedAt.Format(time.RFC3339),
		run.ImportedCount, run.ExportedCount, run.SkippedCount)

	if run.IdempotencyKey != "" {
		b.WriteString(styles.dim.Render("  key=" + run.IdempotencyKey))
	}
	if run.Error != "" {
		b.WriteString("\n  ")
		b.WriteString(styles.err.Render(run.Error))
	}
	return b.String()
}

// FormatRuns renders run history, most recent first.
func FormatRuns(runs []*store.RunView) string {
	var b strings.Builder
	b.WriteString(styles.title.Render("Sync Runs"))
	b.WriteString("\n")

	if len(runs) == 0 {
		b.WriteString(styles.dim.Render("no runs recorded"))
		b.WriteString("\n")
		return b.String()
	}

	for _, run := range runs {
		b.WriteString(FormatRun(run))
		b.WriteString("\n")
	}
	return b.String()
}

// FormatJob renders the outcome of a just-executed job.
func FormatJob(job *models.SyncJob) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s  job=%s key=%s imported=%d exported=%d skipped=%d",
		statusStyle(job.Status).Render(strings.ToUpper(string(job.Status))),
		job.ID, job.IdempotencyKey,
		job.ImportedCount, job.ExportedCount, job.SkippedCount)
	if job.Error != "" {
		b.WriteString("\n  ")
		b.WriteString(styles.err.Render(job.Error))
	}
	return b.String()
}

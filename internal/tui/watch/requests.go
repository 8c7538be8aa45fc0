package watch

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/mattjoyce/hooky/internal/store"
)

// maxRequests bounds how many captures the viewer keeps in memory.
const maxRequests = 200

const previewWidth = 48

func requestColumns(width int) []table.Column {
	preview := width - 2 - 8 - 12 - 16 - 12
	if preview < 10 {
		preview = 10
	}
	return []table.Column{
		{Title: "Method", Width: 8},
		{Title: "When", Width: 12},
		{Title: "Source", Width: 16},
		{Title: "Size", Width: 12},
		{Title: "Body", Width: preview},
	}
}

// mergeRequests adds incoming to existing, newest first, skipping ids that
// are already present.
func mergeRequests(existing []store.CapturedRequest, incoming ...store.CapturedRequest) []store.CapturedRequest {
	seen := make(map[string]struct{}, len(existing))
	for _, r := range existing {
		seen[r.ID] = struct{}{}
	}
	out := append([]store.CapturedRequest(nil), existing...)
	for _, r := range incoming {
		if _, ok := seen[r.ID]; ok {
			continue
		}
		seen[r.ID] = struct{}{}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CapturedAt.After(out[j].CapturedAt.Time)
	})
	if len(out) > maxRequests {
		out = out[:maxRequests]
	}
	return out
}

func requestRows(reqs []store.CapturedRequest, now time.Time) []table.Row {
	rows := make([]table.Row, 0, len(reqs))
	for _, r := range reqs {
		rows = append(rows, table.Row{
			r.Method,
			humanize.RelTime(r.CapturedAt.Time, now, "ago", "from now"),
			r.SourceIP,
			humanize.Bytes(uint64(bodyLen(r))),
			bodyPreview(r.Body, previewWidth),
		})
	}
	return rows
}

func bodyLen(r store.CapturedRequest) int {
	if r.Body == nil {
		return 0
	}
	return len(*r.Body)
}

// bodyPreview flattens body onto one line and truncates it to n runes.
func bodyPreview(body *string, n int) string {
	if body == nil || *body == "" {
		return "(empty)"
	}
	s := strings.Join(strings.Fields(*body), " ")
	runes := []rune(s)
	if len(runes) > n {
		return string(runes[:n-3]) + "..."
	}
	return s
}

// renderDetail is the full view of one captured request shown in the
// detail pane.
func renderDetail(r store.CapturedRequest, theme Theme) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s %s\n", theme.Header.Render(r.Method), theme.Dim.Render(r.ID))
	fmt.Fprintf(&b, "Captured  %s (%s)\n",
		r.CapturedAt.Local().Format("2006-01-02 15:04:05"),
		humanize.Time(r.CapturedAt.Time))
	fmt.Fprintf(&b, "Source    %s\n", r.SourceIP)
	if r.UserAgent != nil {
		fmt.Fprintf(&b, "Agent     %s\n", *r.UserAgent)
	}

	writeSection(&b, theme, "Query", r.QueryParams)
	writeSection(&b, theme, "Headers", r.Headers)

	b.WriteString("\n" + theme.Title.Render("Body") + "\n")
	if r.Body == nil || *r.Body == "" {
		b.WriteString(theme.Dim.Render("(empty)"))
	} else {
		b.WriteString(*r.Body)
	}
	return b.String()
}

func writeSection(b *strings.Builder, theme Theme, title string, m store.StringMap) {
	if len(m) == 0 {
		return
	}
	b.WriteString("\n" + theme.Title.Render(title) + "\n")
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(b, "  %s: %s\n", theme.Highlight.Render(k), m[k])
	}
}

func renderEmpty(theme Theme, width int) string {
	content := lipgloss.JoinVertical(lipgloss.Left,
		theme.Title.Render("REQUESTS"),
		theme.Dim.Render("  Waiting for requests..."),
	)
	return theme.Border.Width(width - 4).Render(content)
}

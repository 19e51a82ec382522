package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"bridgefund/internal/planner"
	"bridgefund/internal/research"
	"bridgefund/internal/schema"
	"bridgefund/internal/store"
)

var (
	destructive = lipgloss.Color("#e53935")
	success     = lipgloss.Color("#8BC34A")
	warning     = lipgloss.Color("#FFC107")
	muted       = lipgloss.Color("#888888")

	errorStyle   = lipgloss.NewStyle().Foreground(destructive).Bold(true)
	noticeStyle  = lipgloss.NewStyle().Foreground(warning).Italic(true)
	successStyle = lipgloss.NewStyle().Foreground(success).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(muted)
)

// renderMarkdown renders md for the terminal, falling back to the raw text
// when no renderer can be built.
func renderMarkdown(md string) string {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(80),
	)
	if err != nil {
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return out
}

// statusLine styles a planner message as a notice or an error.
func statusLine(msg string) string {
	if msg == "" {
		return ""
	}
	if planner.IsNotice(msg) {
		return noticeStyle.Render(msg)
	}
	return errorStyle.Render(msg)
}

// bundleMarkdown lays out the reader-facing parts of a bundle.
func bundleMarkdown(b *schema.Bundle, sources []research.Source) string {
	if b == nil {
		return ""
	}
	var sb strings.Builder

	if bs := b.BridgeStory; bs != nil {
		fmt.Fprintf(&sb, "# %s\n\n", bs.ThinEdge)
		sb.WriteString(bs.Markdown())
		sb.WriteString("\n\n")
		if bs.Emphasis != "" {
			fmt.Fprintf(&sb, "_Emphasis: %s_\n\n", bs.Emphasis)
		}
	}

	if b.Goals != nil && len(b.Goals.Goals) > 0 {
		sb.WriteString("## Goals\n\n")
		for _, g := range b.Goals.Goals {
			fmt.Fprintf(&sb, "- **%s**: %s\n", g.Title, g.Measure)
		}
		sb.WriteString("\n")
	}

	if items := planner.ToVerifyItems(b); len(items) > 0 {
		sb.WriteString("## To verify\n\n")
		for _, c := range items {
			fmt.Fprintf(&sb, "- %s\n", c)
		}
		sb.WriteString("\n")
	}

	if sn := b.SafetyNotes; sn != nil {
		fmt.Fprintf(&sb, "## Tone: %s\n\n", sn.Overall)
		fmt.Fprintf(&sb, "heat %.1f, empathy %.1f, respect %.1f\n\n",
			sn.Scores.Heat, sn.Scores.Empathy, sn.Scores.Respect)
		for _, n := range sn.Notes {
			fmt.Fprintf(&sb, "- \"%s\": %s (try: %s)\n", n.Excerpt, n.Concern, n.Suggestion)
		}
		sb.WriteString("\n")
	}

	writeSources(&sb, sources)
	return sb.String()
}

// projectMarkdown lays out a stored project.
func projectMarkdown(p *store.Project) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", p.Title)
	if p.Summary != "" {
		fmt.Fprintf(&sb, "> %s\n\n", p.Summary)
	}
	if p.Description != "" {
		sb.WriteString(p.Description)
		sb.WriteString("\n\n")
	}
	if len(p.ToVerify) > 0 {
		sb.WriteString("## To verify\n\n")
		for _, c := range p.ToVerify {
			fmt.Fprintf(&sb, "- %s\n", c)
		}
		sb.WriteString("\n")
	}
	if p.ToneScores != nil {
		fmt.Fprintf(&sb, "_Tone: heat %.1f, empathy %.1f, respect %.1f_\n\n",
			p.ToneScores.Heat, p.ToneScores.Empathy, p.ToneScores.Respect)
	}
	writeSources(&sb, p.Sources)
	return sb.String()
}

func writeSources(sb *strings.Builder, sources []research.Source) {
	if len(sources) == 0 {
		return
	}
	sb.WriteString("## Sources\n\n")
	for _, s := range sources {
		fmt.Fprintf(sb, "- [%s](%s)\n", s.Label, s.URL)
	}
	sb.WriteString("\n")
}

// projectHeader is the one-line status shown above a rendered project.
func projectHeader(p *store.Project) string {
	status := mutedStyle.Render(p.Status)
	if p.Status == store.StatusPublished {
		status = successStyle.Render(p.Status)
	}
	return fmt.Sprintf("%s  %s  %s", p.ID, status,
		mutedStyle.Render("updated "+p.UpdatedAt.Format("2006-01-02 15:04")))
}

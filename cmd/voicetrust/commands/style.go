package commands

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/AIINA17/Livekit-Biometric/pkg/decision"
	"github.com/AIINA17/Livekit-Biometric/pkg/voicetrust"
)

// theme is the color scheme of the text output format.
type theme struct {
	Primary lipgloss.Color
	Dim     lipgloss.Color
	Accept  lipgloss.Color
	Warn    lipgloss.Color
	Reject  lipgloss.Color
}

var defaultTheme = theme{
	Primary: lipgloss.Color("#00ff9f"),
	Dim:     lipgloss.Color("#6e7681"),
	Accept:  lipgloss.Color("#3fb950"),
	Warn:    lipgloss.Color("#d29922"),
	Reject:  lipgloss.Color("#f85149"),
}

type styles struct {
	Title lipgloss.Style
	Label lipgloss.Style
	Dim   lipgloss.Style
	theme theme
}

func newStyles(t theme) styles {
	return styles{
		Title: lipgloss.NewStyle().Bold(true).Foreground(t.Primary),
		Label: lipgloss.NewStyle().Foreground(t.Dim),
		Dim:   lipgloss.NewStyle().Foreground(t.Dim),
		theme: t,
	}
}

// decision renders d in its outcome color.
func (s styles) decision(d decision.Decision) string {
	c := s.theme.Reject
	switch d {
	case decision.Verified:
		c = s.theme.Accept
	case decision.Repeat:
		c = s.theme.Warn
	}
	return lipgloss.NewStyle().Bold(true).Foreground(c).Render(d.String())
}

// fields renders aligned "label  value" rows.
func (s styles) fields(rows [][2]string) string {
	width := 0
	for _, r := range rows {
		width = max(width, lipgloss.Width(r[0]))
	}
	var b strings.Builder
	for _, r := range rows {
		pad := strings.Repeat(" ", width-lipgloss.Width(r[0]))
		b.WriteString("  " + s.Label.Render(r[0]) + pad + "  " + r[1] + "\n")
	}
	return b.String()
}

// renderText formats the values that support the text format.
func renderText(v any) (string, bool) {
	s := newStyles(defaultTheme)
	switch v := v.(type) {
	case *voicetrust.Result:
		return renderResult(s, v), true
	case []userSummary:
		return renderUsers(s, v), true
	case eerOutput:
		return s.fields([][2]string{
			{"threshold", fmt.Sprintf("%.4f", v.Threshold)},
			{"eer", fmt.Sprintf("%.2f%%", 100*v.EER)},
			{"genuine", fmt.Sprint(v.Genuine)},
			{"impostor", fmt.Sprint(v.Impostor)},
		}), true
	}
	return "", false
}

func renderResult(s styles, r *voicetrust.Result) string {
	var b strings.Builder
	b.WriteString(s.Title.Render(r.UserID) + " " + s.decision(r.Decision) + " " + s.Dim.Render(r.Reason) + "\n")

	behavior := "-"
	if r.BehaviorScore != nil {
		behavior = fmt.Sprintf("%.3f", *r.BehaviorScore)
	}
	update := "yes"
	if !r.ProfileUpdated {
		update = "no"
		if r.UpdateRefusal != "" {
			update += " (" + r.UpdateRefusal + ")"
		}
	}
	b.WriteString(s.fields([][2]string{
		{"speaker", fmt.Sprintf("%.3f (accept ≥ %.3f)", r.SpeakerScore, r.Thresholds.VoiceAccept)},
		{"label", r.BestLabel},
		{"spoof", fmt.Sprintf("%.3f genuine", r.SpoofProb)},
		{"replay", fmt.Sprintf("%.3f (deny ≥ %.3f)", r.ReplayProb, r.Thresholds.ReplayDeny)},
		{"behavior", behavior},
		{"prosody", fmt.Sprintf("%.1f Hz, %.2f onsets/s", r.Pitch, r.Rate)},
		{"learned", update},
	}))
	b.WriteString(s.Dim.Render("attempt "+r.AttemptID) + "\n")
	return b.String()
}

func renderUsers(s styles, users []userSummary) string {
	if len(users) == 0 {
		return s.Dim.Render("no enrolled users") + "\n"
	}
	rows := make([][2]string, 0, len(users))
	for _, u := range users {
		rows = append(rows, [2]string{u.UserID, strings.Join(u.Enrollments, ", ")})
	}
	return s.fields(rows)
}

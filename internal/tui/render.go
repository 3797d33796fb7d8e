package tui

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"tutor/internal/course"
	"tutor/internal/domain"
)

var (
	userStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	tutorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	refHeaderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	refBodyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).PaddingLeft(2)
	doneStepStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	curStepStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	pendStepStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// RenderTranscript renders the visible conversation. Hidden messages are
// skipped. Assistant bodies go through markdown when it is non-nil.
func RenderTranscript(msgs []domain.Message, showRefs bool, markdown func(string) string) string {
	var b strings.Builder
	for _, m := range msgs {
		if m.Hidden {
			continue
		}
		switch m.Role {
		case domain.RoleUser:
			b.WriteString(userStyle.Render("You:") + " " + m.Text() + "\n")
			if u := m.ImageURL(); u != "" {
				b.WriteString("Attached Image: " + u + "\n")
			}
		case domain.RoleAssistant:
			b.WriteString(tutorStyle.Render("Tutor:") + "\n")
			body := m.Text()
			if markdown != nil {
				body = markdown(body)
			}
			b.WriteString(strings.TrimRight(body, "\n") + "\n")
			b.WriteString(renderReferences(m.References, showRefs))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func renderReferences(refs []domain.Reference, show bool) string {
	if len(refs) == 0 {
		return ""
	}
	if !show {
		return refHeaderStyle.Render(fmt.Sprintf("[%d references, ctrl+r to show]", len(refs))) + "\n"
	}
	var b strings.Builder
	for i, r := range refs {
		b.WriteString(refHeaderStyle.Render(fmt.Sprintf("Reference %d (Relevance Score: %.2f)", i+1, r.Score)) + "\n")
		b.WriteString(refBodyStyle.Render(r.Text) + "\n")
		if label := youtubeLabel(r.Source); label != "" {
			b.WriteString(refBodyStyle.Render(label+" "+r.Source) + "\n")
		} else if r.Source != "" {
			b.WriteString(refBodyStyle.Render(r.Source) + "\n")
		}
	}
	return b.String()
}

// youtubeLabel names a YouTube source by its video id, or returns "".
func youtubeLabel(source string) string {
	u, err := url.Parse(source)
	if err != nil || u.Host == "" {
		return ""
	}
	host := strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	var id string
	switch {
	case host == "youtu.be":
		id = strings.Trim(u.Path, "/")
	case host == "youtube.com" || strings.HasSuffix(host, ".youtube.com"):
		id = u.Query().Get("v")
		if id == "" && strings.HasPrefix(u.Path, "/embed/") {
			id = strings.TrimPrefix(u.Path, "/embed/")
		}
	}
	if id == "" {
		return ""
	}
	return fmt.Sprintf("YouTube Video (ID: %s)", id)
}

// renderSteps lists every objective with its progress marker.
func renderSteps(c course.Course, current int, completed bool) string {
	var b strings.Builder
	for i, title := range c.Titles() {
		line := fmt.Sprintf("%2d. %s", i+1, title)
		switch {
		case i < current || (i == current && completed):
			b.WriteString(doneStepStyle.Render("✓ " + line))
		case i == current:
			b.WriteString(curStepStyle.Render("▶ " + line))
		default:
			b.WriteString(pendStepStyle.Render("  " + line))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// congratulations is shown once the current objective is completed.
func congratulations(c course.Course, objective int, isLast bool) string {
	if isLast {
		return "Congratulations! You've completed all objectives!"
	}
	o, err := c.Objective(objective)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("Congratulations! You've completed the objective: %s. Type /next to continue.", o.Title)
}

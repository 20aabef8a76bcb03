package cmd

import (
	"strings"

	"github.com/charmbracelet/lipgloss/v2"
	"github.com/kernel/rally/pkg/rally"
)

var (
	badgeStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1).Foreground(lipgloss.Color("#FFFFFF"))

	greenBadge = badgeStyle.Background(lipgloss.Color("#1FA382"))
	amberBadge = badgeStyle.Background(lipgloss.Color("#F59E0B"))
	greyBadge  = badgeStyle.Background(lipgloss.Color("#808080"))
)

// stateBadge renders a run state for the terminal.
func stateBadge(s rally.RunState) string {
	label := strings.ToUpper(s.String())
	switch s {
	case rally.Running:
		return greenBadge.Render(label)
	case rally.Paused:
		return amberBadge.Render(label)
	default:
		return greyBadge.Render(label)
	}
}

// signUpBadge renders whether the participant completed sign-up.
func signUpBadge(complete bool) string {
	if complete {
		return greenBadge.Render("SIGNED UP")
	}
	return amberBadge.Render("NOT SIGNED UP")
}

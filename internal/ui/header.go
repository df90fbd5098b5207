package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/five82/fiscal/internal/api"
	"github.com/five82/fiscal/internal/state"
)

// renderHeader renders the status bar: identity, connectivity, counts and
// the last refresh time.
func (m Model) renderHeader() string {
	styles := m.theme.Styles().WithBackground(m.theme.Surface)
	bg := NewBgStyle(m.theme.Surface)
	compact := m.width < 100

	parts := []string{bg.Render("fiscal", styles.Logo)}

	if m.snapshot.IsOffline {
		parts = append(parts, bg.Render("● Modo offline", styles.WarningText.Bold(true)))
	} else {
		parts = append(parts, bg.Render("● online", styles.SuccessText))
	}

	if id := m.snapshot.Identity; id != nil {
		parts = append(parts, bg.Render(truncate(id.DisplayName(), 24), styles.Text))
	} else {
		parts = append(parts, bg.Render("sem sessão", styles.DangerText))
	}

	counts := m.snapshot.StatusCounts()
	for _, st := range api.Statuses {
		label := string(st)
		if compact {
			label = abbreviateStatus(st)
		}
		color := lipgloss.NewStyle().Foreground(lipgloss.Color(m.theme.StatusColor(st)))
		parts = append(parts,
			bg.Field(label+":", fmt.Sprintf("%d", counts[st]), styles.MutedText, color))
	}

	if m.snapshot.Loading {
		parts = append(parts, bg.Render(m.spinner.View(), styles.AccentText))
	}

	freshness := m.snapshot.TargetFreshness
	stamp := humanizeAgo(m.snapshot.LastUpdated, m.now)
	if freshness == state.StaleOffline {
		stamp = "cache · " + stamp
	}
	parts = append(parts, bg.Render(stamp, styles.MutedText))

	if m.snapshot.LastError != nil {
		maxErr := 60
		if compact {
			maxErr = 30
		}
		parts = append(parts,
			bg.Field("ERRO", truncate(m.snapshot.LastError.Error(), maxErr), styles.DangerText.Bold(true), styles.DangerText))
	}

	return styles.Header.Width(m.width).Render(bg.Join(parts, "  "))
}

func abbreviateStatus(s api.Status) string {
	switch s {
	case api.StatusNotStarted:
		return "NI"
	case api.StatusInProgress:
		return "EA"
	case api.StatusDone:
		return "OK"
	}
	return string(s)
}

// renderFilterBar shows the active filters or the ART input while editing,
// followed by any flash message.
func (m Model) renderFilterBar() string {
	styles := m.theme.Styles().WithBackground(m.theme.Background)
	bg := NewBgStyle(m.theme.Background)

	var line string
	if m.editingArt {
		line = m.artInput.View()
	} else {
		f := m.snapshot.Filters
		status := f.Status
		if status == "" {
			status = "todos"
		}
		parts := []string{
			bg.Field("ART", orDash(f.NumeroArt), styles.MutedText, styles.Text),
			bg.Field("Status", status, styles.MutedText, styles.Text),
			bg.Field("Equipe", m.teamLabel(f.TeamID), styles.MutedText, styles.Text),
		}
		line = bg.Join(parts, "  ")
	}

	if m.flash != "" {
		flashStyle := styles.InfoText
		if m.flashError {
			flashStyle = styles.DangerText
		}
		line += bg.Spaces(3) + bg.Render(truncate(m.flash, max(m.width/2, 10)), flashStyle)
	}

	return lipgloss.NewStyle().
		Background(lipgloss.Color(m.theme.Background)).
		Padding(0, 1).
		Width(m.width).
		Render(line)
}

// renderCommandBar renders the command hints bar.
func (m Model) renderCommandBar() string {
	styles := m.theme.Styles().WithBackground(m.theme.Surface)
	bg := NewBgStyle(m.theme.Surface)

	assignedLabel := "Mostrar atribuídos"
	if m.showAssigned {
		assignedLabel = "Ocultar atribuídos"
	}
	type cmd struct{ key, desc string }
	commands := []cmd{
		{"space", "Selecionar"},
		{"A", "Todos"},
		{"a", "Atribuir"},
		{"/", "ART"},
		{"s", "Status"},
		{"f", "Equipe"},
		{"v", assignedLabel},
		{"r", "Reconectar"},
		{"?", "Mais"},
	}
	if m.editingArt {
		commands = []cmd{{"enter", "Aplicar"}, {"esc", "Fechar"}}
	}

	colon := bg.Sep(":")
	segments := make([]string, 0, len(commands)+1)
	for _, c := range commands {
		segments = append(segments,
			bg.Render(c.key, styles.AccentText)+colon+bg.Render(c.desc, styles.MutedText))
	}
	segments = append(segments,
		bg.Render("T", styles.AccentText)+colon+bg.Render(m.theme.Name, styles.FaintText))

	return styles.Header.Width(m.width).Render(strings.Join(segments, bg.Spaces(2)))
}

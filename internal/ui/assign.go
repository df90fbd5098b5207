package ui

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// assignModal asks for the team that receives the selected targets.
type assignModal struct {
	open    bool
	count   int
	pending bool
	err     string
	input   textinput.Model
}

func newAssignModal() assignModal {
	in := textinput.New()
	in.Placeholder = "id da equipe"
	in.Prompt = "Equipe: "
	in.CharLimit = 12
	return assignModal{input: in}
}

// Open shows the modal for n selected targets.
func (a *assignModal) Open(n int) tea.Cmd {
	a.open = true
	a.count = n
	a.pending = false
	a.err = ""
	a.input.SetValue("")
	return a.input.Focus()
}

func (a *assignModal) close() {
	a.open = false
	a.pending = false
	a.input.Blur()
}

func parseTeamID(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, errors.New("informe o id da equipe")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("id de equipe inválido: %q", raw)
	}
	return id, nil
}

func (m Model) handleAssignKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.assign.pending {
		return m, nil
	}
	switch {
	case key.Matches(msg, m.keys.Escape):
		m.assign.close()
		return m, nil

	case key.Matches(msg, m.keys.Confirm):
		teamID, err := parseTeamID(m.assign.input.Value())
		if err != nil {
			m.assign.err = err.Error()
			return m, nil
		}
		if m.assigner == nil {
			m.assign.err = "atribuição indisponível"
			return m, nil
		}
		m.assign.pending = true
		m.assign.err = ""
		return m, m.assignCmd(teamID, m.selectedIDs())
	}

	var cmd tea.Cmd
	m.assign.input, cmd = m.assign.input.Update(msg)
	return m, cmd
}

func (m Model) assignCmd(teamID int64, ids []int64) tea.Cmd {
	assigner := m.assigner
	ctx := m.ctx
	return func() tea.Msg {
		err := assigner.AssignTargets(ctx, teamID, ids)
		return assignResultMsg{teamID: teamID, ids: ids, err: err}
	}
}

func (m Model) handleAssignResult(msg assignResultMsg) (tea.Model, tea.Cmd) {
	m.assign.pending = false
	if msg.err != nil {
		m.log.Warn().Err(msg.err).Int64("team_id", msg.teamID).Int("targets", len(msg.ids)).Msg("assign targets")
		if m.assign.open {
			m.assign.err = msg.err.Error()
		} else {
			m.setFlash("Falha ao atribuir: "+msg.err.Error(), true)
		}
		return m, nil
	}

	m.log.Info().Int64("team_id", msg.teamID).Int("targets", len(msg.ids)).Msg("targets assigned")
	m.assign.close()
	for _, id := range msg.ids {
		delete(m.selected, id)
	}
	m.setFlash(fmt.Sprintf("%d alvos atribuídos à equipe %s", len(msg.ids), m.teamLabel(strconv.FormatInt(msg.teamID, 10))), false)
	return m, m.fetchTargetsCmd()
}

// renderAssign renders the modal centered over the screen.
func (m Model) renderAssign() string {
	styles := m.theme.Styles()

	var b strings.Builder
	b.WriteString(styles.Text.Bold(true).Render(fmt.Sprintf("Atribuir %d alvos", m.assign.count)))
	b.WriteString("\n")
	b.WriteString(styles.FaintText.Render(strings.Repeat("─", 30)))
	b.WriteString("\n\n")
	b.WriteString(m.assign.input.View())
	b.WriteString("\n")

	if teams := m.teamChoices(); len(teams) > 0 {
		b.WriteString("\n")
		b.WriteString(styles.MutedText.Render("Equipes conhecidas"))
		b.WriteString("\n")
		for i, t := range teams {
			if i == 6 {
				b.WriteString(styles.FaintText.Render(fmt.Sprintf("+%d", len(teams)-i)))
				b.WriteString("\n")
				break
			}
			b.WriteString(styles.AccentText.Render(padRight(t.ID, 6)))
			b.WriteString(styles.Text.Render(truncate(t.Name, 28)))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	switch {
	case m.assign.pending:
		b.WriteString(styles.WarningText.Render(m.spinner.View() + " enviando..."))
	case m.assign.err != "":
		b.WriteString(styles.DangerText.Render(m.assign.err))
	default:
		b.WriteString(styles.FaintText.Render("enter confirma · esc cancela"))
	}

	modal := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(m.theme.Accent)).
		Padding(1, 2).
		Width(44)

	return lipgloss.Place(
		m.width,
		m.height,
		lipgloss.Center,
		lipgloss.Center,
		modal.Render(b.String()),
		lipgloss.WithWhitespaceChars(" "),
		lipgloss.WithWhitespaceForeground(lipgloss.Color(m.theme.Background)),
	)
}

package ui

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/five82/fiscal/internal/api"
)

// teamChoice is one entry of the team filter cycle.
type teamChoice struct {
	ID   string
	Name string
}

// visibleTargets returns the snapshot targets in display order, hiding
// assigned ones unless showAssigned is set.
func (m Model) visibleTargets() []api.Target {
	out := make([]api.Target, 0, len(m.snapshot.Targets))
	for _, t := range m.snapshot.Targets {
		if !m.showAssigned && t.Assigned() {
			continue
		}
		out = append(out, t)
	}
	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := statusRank(out[i].NormalizedStatus()), statusRank(out[j].NormalizedStatus())
		if ri != rj {
			return ri < rj
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// statusRank orders pending work first.
func statusRank(s api.Status) int {
	for i, st := range api.Statuses {
		if s == st {
			return i
		}
	}
	return len(api.Statuses)
}

func (m Model) selectedTarget() *api.Target {
	targets := m.visibleTargets()
	if m.selectedRow < 0 || m.selectedRow >= len(targets) {
		return nil
	}
	t := targets[m.selectedRow]
	return &t
}

func (m *Model) clampSelection() {
	count := len(m.visibleTargets())
	if m.selectedRow >= count {
		m.selectedRow = count - 1
	}
	if m.selectedRow < 0 {
		m.selectedRow = 0
	}
}

// toggleSelected flips selection of the highlighted target. Assigned
// targets cannot be selected.
func (m *Model) toggleSelected() {
	t := m.selectedTarget()
	if t == nil {
		return
	}
	if t.Assigned() {
		m.setFlash(fmt.Sprintf("Alvo #%d já pertence a %s", t.ID, orDash(t.TeamName())), true)
		return
	}
	if m.selected[t.ID] {
		delete(m.selected, t.ID)
	} else {
		m.selected[t.ID] = true
	}
}

// toggleSelectAll selects every visible unassigned target, or clears the
// selection when all of them are already selected.
func (m *Model) toggleSelectAll() {
	var unassigned []int64
	for _, t := range m.visibleTargets() {
		if !t.Assigned() {
			unassigned = append(unassigned, t.ID)
		}
	}
	all := len(unassigned) > 0
	for _, id := range unassigned {
		if !m.selected[id] {
			all = false
			break
		}
	}
	if all {
		for _, id := range unassigned {
			delete(m.selected, id)
		}
		return
	}
	for _, id := range unassigned {
		m.selected[id] = true
	}
}

func (m Model) selectedIDs() []int64 {
	ids := make([]int64, 0, len(m.selected))
	for id := range m.selected {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (m *Model) learnTeams(targets []api.Target) {
	for _, t := range targets {
		if !t.Assigned() {
			continue
		}
		id := strconv.FormatInt(*t.TeamID, 10)
		name := t.TeamName()
		if name == "" {
			name = "Equipe " + id
		}
		m.knownTeams[id] = name
	}
}

// teamChoices lists teams seen in targets, sorted by name.
func (m Model) teamChoices() []teamChoice {
	out := make([]teamChoice, 0, len(m.knownTeams))
	for id, name := range m.knownTeams {
		out = append(out, teamChoice{ID: id, Name: name})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (m Model) teamLabel(id string) string {
	if id == "" {
		return "todas"
	}
	if name, ok := m.knownTeams[id]; ok {
		return name
	}
	return "#" + id
}

// nextTeamFilter cycles "" -> each team -> "".
func nextTeamFilter(choices []teamChoice, current string) string {
	if current == "" {
		if len(choices) == 0 {
			return ""
		}
		return choices[0].ID
	}
	for i, c := range choices {
		if c.ID == current {
			if i+1 < len(choices) {
				return choices[i+1].ID
			}
			return ""
		}
	}
	return ""
}

// nextStatusFilter cycles "" -> each canonical status -> "".
func nextStatusFilter(current string) string {
	if strings.TrimSpace(current) == "" {
		return string(api.Statuses[0])
	}
	cur := api.NormalizeStatus(current)
	for i, st := range api.Statuses {
		if st == cur {
			if i+1 < len(api.Statuses) {
				return string(api.Statuses[i+1])
			}
			return ""
		}
	}
	return ""
}

func (m Model) tableHeight() int {
	// header, filter bar, command bar, box borders and column header
	return max(m.height-3-2-1, 1)
}

// renderMain renders the full screen: header, filters, table + detail,
// command bar.
func (m Model) renderMain() string {
	bodyHeight := max(m.height-3, 3)

	tableWidth := m.width * 60 / 100
	if m.width < 100 {
		tableWidth = m.width
	}
	detailWidth := m.width - tableWidth

	table := m.renderTitledBox(m.tableTitle(), m.renderTargetsTable(tableWidth-2), tableWidth, bodyHeight, true)
	body := table
	if detailWidth > 20 {
		detail := m.renderTitledBox("Detalhes", m.renderDetail(detailWidth-4), detailWidth, bodyHeight, false)
		body = lipgloss.JoinHorizontal(lipgloss.Top, table, detail)
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderHeader(),
		m.renderFilterBar(),
		body,
		m.renderCommandBar(),
	)
}

func (m Model) tableTitle() string {
	visible := len(m.visibleTargets())
	title := fmt.Sprintf("Alvos (%d", visible)
	if hidden := len(m.snapshot.Targets) - visible; hidden > 0 {
		title += fmt.Sprintf(", %d atribuídos ocultos", hidden)
	}
	title += ")"
	if n := len(m.selected); n > 0 {
		title += fmt.Sprintf(" · %d selecionados", n)
	}
	return title
}

// renderTargetsTable renders the visible targets as styled rows.
func (m Model) renderTargetsTable(width int) string {
	styles := m.theme.Styles()
	targets := m.visibleTargets()
	if len(targets) == 0 {
		msg := "Nenhum alvo"
		if m.snapshot.Loading {
			msg = "Carregando alvos..."
		}
		return styles.MutedText.Background(lipgloss.Color(m.theme.FocusBg)).Render(msg)
	}

	bg := NewBgStyle(m.theme.FocusBg)
	header := bg.Render(padRight("   ", 4)+padRight("ID", 7)+padRight("ART", 16)+padRight("EQUIPE", 16)+"STATUS", styles.FaintText.Bold(true))
	lines := []string{header}

	height := m.tableHeight()
	offset := 0
	if m.selectedRow >= height {
		offset = m.selectedRow - height + 1
	}
	end := min(offset+height, len(targets))
	for i := offset; i < end; i++ {
		t := targets[i]
		selected := i == m.selectedRow
		rowBg := m.theme.FocusBg
		if selected {
			rowBg = m.theme.SelectionBg
		}
		lines = append(lines, lipgloss.NewStyle().
			Background(lipgloss.Color(rowBg)).
			Width(width).
			Render(m.formatTargetRow(t, width, rowBg, selected)))
	}
	return strings.Join(lines, "\n")
}

// formatTargetRow formats one row: "[x] #ID ART TEAM STATUS".
func (m Model) formatTargetRow(t api.Target, width int, bgColor string, selected bool) string {
	bg := NewBgStyle(bgColor)
	styles := m.theme.Styles()

	mark := "[ ]"
	switch {
	case t.Assigned():
		mark = " · "
	case m.selected[t.ID]:
		mark = "[x]"
	}

	var markStyle, idStyle, textStyle, statusStyle lipgloss.Style
	if selected {
		sel := lipgloss.NewStyle().Foreground(lipgloss.Color(m.theme.SelectionText))
		markStyle, idStyle, textStyle, statusStyle = sel, sel, sel, sel.Bold(true)
	} else {
		markStyle = styles.AccentText
		idStyle = styles.MutedText
		textStyle = styles.Text
		statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(m.theme.StatusColor(t.Status)))
	}

	team := orDash(t.TeamName())
	if team == "-" && t.Assigned() {
		team = "#" + strconv.FormatInt(*t.TeamID, 10)
	}
	status := string(t.NormalizedStatus())
	if status == "" {
		status = "-"
	}

	row := bg.Render(padRight(mark, 4), markStyle) +
		bg.Render(padRight(fmt.Sprintf("#%d", t.ID), 7), idStyle) +
		bg.Render(padRight(truncate(orDash(t.NumeroArt), 15), 16), textStyle) +
		bg.Render(padRight(truncate(team, 15), 16), textStyle) +
		bg.Render(truncate(status, max(width-43, 4)), statusStyle)
	return row
}

// renderDetail renders the highlighted target's fields.
func (m Model) renderDetail(width int) string {
	styles := m.theme.Styles().WithBackground(m.theme.SurfaceAlt)
	bg := NewBgStyle(m.theme.SurfaceAlt)

	t := m.selectedTarget()
	if t == nil {
		return bg.Render("Selecione um alvo", styles.MutedText)
	}

	rows := []struct{ label, value string }{
		{"ART", t.NumeroArt},
		{"Tipo", t.TipoArt},
		{"Profissional", t.NomeProfissional},
		{"Título", t.TituloProfissional},
		{"Empresa", t.Empresa},
		{"CNPJ", t.CNPJ},
		{"Contratante", t.Contratante},
		{"Proprietário", t.NomeProprietario},
		{"Telefone", t.TelefoneProprietario},
		{"Endereço", t.EnderecoObra},
		{"Capacidade", t.CapacidadeObra},
		{"Coordenadas", coordinates(*t)},
		{"Equipe", t.TeamName()},
	}

	valueWidth := max(width-14, 8)
	lines := []string{
		bg.Field(fmt.Sprintf("Alvo #%d", t.ID), string(t.NormalizedStatus()),
			styles.AccentText.Bold(true), lipgloss.NewStyle().Foreground(lipgloss.Color(m.theme.StatusColor(t.Status)))),
		"",
	}
	for _, r := range rows {
		lines = append(lines,
			bg.Render(padRight(r.label, 14), styles.MutedText)+
				bg.Render(truncate(orDash(r.value), valueWidth), styles.Text))
	}
	if updated := t.ParsedUpdatedAt(); !updated.IsZero() {
		lines = append(lines, "",
			bg.Render(padRight("Atualizado", 14), styles.MutedText)+
				bg.Render(humanizeAgo(updated, m.now), styles.FaintText))
	}
	return strings.Join(lines, "\n")
}

func coordinates(t api.Target) string {
	lat, lng := strings.TrimSpace(t.Latitude), strings.TrimSpace(t.Longitude)
	if lat == "" || lng == "" {
		return ""
	}
	return lat + ", " + lng
}

// renderTitledBox renders content in a box with the title embedded in the
// top border: ┌─── Title ───┐
func (m Model) renderTitledBox(title, content string, width, height int, focused bool) string {
	var borderColorStr, bgColorStr string
	if focused {
		borderColorStr = m.theme.BorderFocus
		bgColorStr = m.theme.FocusBg
	} else {
		borderColorStr = m.theme.Border
		bgColorStr = m.theme.SurfaceAlt
	}
	bg := NewBgStyle(bgColorStr)
	borderStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(borderColorStr))
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(m.theme.Text))

	innerWidth := max(width-2, 1)
	title = truncate(title, max(innerWidth-4, 1))
	titleLen := lipgloss.Width(title)
	leftPad := max((innerWidth-titleLen-2)/2, 0)
	rightPad := max(innerWidth-titleLen-2-leftPad, 0)

	topBorder := bg.Render("┌", borderStyle) +
		bg.Render(strings.Repeat("─", leftPad), borderStyle) +
		bg.Render(" "+title+" ", titleStyle) +
		bg.Render(strings.Repeat("─", rightPad), borderStyle) +
		bg.Render("┐", borderStyle)

	bottomBorder := bg.Render("└", borderStyle) +
		bg.Render(strings.Repeat("─", innerWidth), borderStyle) +
		bg.Render("┘", borderStyle)

	contentStyle := lipgloss.NewStyle().Width(innerWidth).MaxWidth(innerWidth).Background(lipgloss.Color(bgColorStr))
	contentLines := strings.Split(content, "\n")
	boxHeight := max(height-2, 0)

	padded := make([]string, 0, boxHeight)
	for i := 0; i < boxHeight; i++ {
		var line string
		if i < len(contentLines) {
			line = contentLines[i]
		}
		padded = append(padded,
			bg.Render("│", borderStyle)+contentStyle.Render(line)+bg.Render("│", borderStyle))
	}

	return topBorder + "\n" + strings.Join(padded, "\n") + "\n" + bottomBorder
}

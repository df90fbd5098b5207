package ui

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"github.com/five82/fiscal/internal/api"
	"github.com/five82/fiscal/internal/prefs"
	"github.com/five82/fiscal/internal/state"
)

// Provider is the slice of *state.Provider the UI uses.
type Provider interface {
	Snapshot() state.Snapshot
	Subscribe(fn func(state.Snapshot)) func()
	UpdateFilters(fn func(api.Filters) api.Filters)
	FetchTargets(ctx context.Context) error
}

// Assigner assigns targets to teams.
type Assigner interface {
	AssignTargets(ctx context.Context, teamID int64, targetIDs []int64) error
}

// Options configures the UI.
type Options struct {
	Context  context.Context
	Provider Provider
	Assigner Assigner
	// Reconnect asks the connectivity monitor to emit a restored event.
	Reconnect    func()
	ThemeName    string
	PrefsPath    string
	ShowAssigned bool
	Logger       zerolog.Logger
}

// Model is the root application state for Bubble Tea.
type Model struct {
	ctx       context.Context
	provider  Provider
	assigner  Assigner
	reconnect func()
	prefsPath string
	log       zerolog.Logger
	keys      keyMap
	feed      *snapshotFeed

	// UI state
	theme    Theme
	width    int
	height   int
	ready    bool
	showHelp bool
	spinner  spinner.Model
	now      time.Time

	// Data state
	snapshot state.Snapshot

	// Table state
	selectedRow  int
	showAssigned bool
	selected     map[int64]bool
	knownTeams   map[string]string // team id -> name, from every snapshot seen

	// Filter input
	artInput   textinput.Model
	editingArt bool

	// Assign modal
	assign assignModal

	// Transient status line
	flash      string
	flashError bool
}

// New creates a new Bubble Tea model.
func New(opts Options) Model {
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}

	themeName := opts.ThemeName
	if themeName == "" {
		themeName = "Dracula"
	}
	prefsPath := opts.PrefsPath
	if prefsPath == "" {
		prefsPath = prefs.DefaultPath
	}

	art := textinput.New()
	art.Placeholder = "número ART"
	art.Prompt = "ART: "
	art.CharLimit = 64

	spin := spinner.New()
	spin.Spinner = spinner.Dot

	m := Model{
		ctx:          ctx,
		provider:     opts.Provider,
		assigner:     opts.Assigner,
		reconnect:    opts.Reconnect,
		prefsPath:    prefsPath,
		log:          opts.Logger,
		keys:         DefaultKeyMap(),
		theme:        GetTheme(themeName),
		spinner:      spin,
		now:          time.Now(),
		showAssigned: opts.ShowAssigned,
		selected:     make(map[int64]bool),
		knownTeams:   make(map[string]string),
		artInput:     art,
		assign:       newAssignModal(),
	}
	if opts.Provider != nil {
		m.snapshot = opts.Provider.Snapshot()
		m.learnTeams(m.snapshot.Targets)
		m.artInput.SetValue(m.snapshot.Filters.NumeroArt)
	}
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		tea.EnterAltScreen,
		tickCmd(time.Second),
		m.spinner.Tick,
	}
	if m.feed != nil {
		cmds = append(cmds, waitForSnapshot(m.feed))
	}
	return tea.Batch(cmds...)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.clampSelection()
		return m, nil

	case tickMsg:
		m.now = time.Time(msg)
		return m, tickCmd(time.Second)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case snapshotMsg:
		m.applySnapshot(state.Snapshot(msg))
		if m.feed != nil {
			return m, waitForSnapshot(m.feed)
		}
		return m, nil

	case assignResultMsg:
		return m.handleAssignResult(msg)

	case errMsg:
		m.setFlash(msg.err.Error(), true)
		return m, nil
	}

	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	if m.showHelp {
		return m.renderHelp()
	}
	if m.assign.open {
		return m.renderAssign()
	}
	return m.renderMain()
}

func (m *Model) applySnapshot(snap state.Snapshot) {
	var selectedID int64
	if t := m.selectedTarget(); t != nil {
		selectedID = t.ID
	}
	m.snapshot = snap
	m.learnTeams(snap.Targets)

	// Drop selections that vanished or got assigned elsewhere.
	present := make(map[int64]bool, len(snap.Targets))
	for _, t := range snap.Targets {
		if !t.Assigned() {
			present[t.ID] = true
		}
	}
	for id := range m.selected {
		if !present[id] {
			delete(m.selected, id)
		}
	}

	if selectedID != 0 {
		for i, t := range m.visibleTargets() {
			if t.ID == selectedID {
				m.selectedRow = i
				return
			}
		}
	}
	m.clampSelection()
}

func (m *Model) setFlash(text string, isErr bool) {
	m.flash = text
	m.flashError = isErr
}

// handleKey processes keyboard input.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.showHelp {
		// Any key closes help
		m.showHelp = false
		return m, nil
	}
	if m.assign.open {
		return m.handleAssignKey(msg)
	}
	if m.editingArt {
		return m.handleArtInputKey(msg)
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.showHelp = true
		return m, nil

	case key.Matches(msg, m.keys.CycleTheme):
		m.theme = GetTheme(NextTheme(m.theme.Name))
		return m, m.savePrefsCmd()

	case key.Matches(msg, m.keys.ToggleAssigned):
		m.showAssigned = !m.showAssigned
		m.clampSelection()
		return m, m.savePrefsCmd()

	case key.Matches(msg, m.keys.Reconnect):
		m.setFlash("Reconectando...", false)
		return m, m.reconnectCmd()

	case key.Matches(msg, m.keys.Refresh):
		return m, m.fetchTargetsCmd()

	case key.Matches(msg, m.keys.SearchArt):
		m.editingArt = true
		m.artInput.SetValue(m.snapshot.Filters.NumeroArt)
		m.artInput.CursorEnd()
		cmd := m.artInput.Focus()
		return m, cmd

	case key.Matches(msg, m.keys.CycleStatus):
		next := nextStatusFilter(m.snapshot.Filters.Status)
		m.snapshot.Filters.Status = next
		return m, m.updateFiltersCmd(func(f api.Filters) api.Filters {
			f.Status = next
			return f
		})

	case key.Matches(msg, m.keys.CycleTeam):
		next := nextTeamFilter(m.teamChoices(), m.snapshot.Filters.TeamID)
		m.snapshot.Filters.TeamID = next
		return m, m.updateFiltersCmd(func(f api.Filters) api.Filters {
			f.TeamID = next
			return f
		})

	case key.Matches(msg, m.keys.ClearFilters):
		m.snapshot.Filters = api.Filters{}
		m.artInput.SetValue("")
		return m, m.updateFiltersCmd(func(api.Filters) api.Filters { return api.Filters{} })

	case key.Matches(msg, m.keys.ToggleSelect):
		m.toggleSelected()
		return m, nil

	case key.Matches(msg, m.keys.SelectAll):
		m.toggleSelectAll()
		return m, nil

	case key.Matches(msg, m.keys.Assign):
		if len(m.selected) == 0 {
			m.setFlash("Selecione alvos sem equipe com espaço", true)
			return m, nil
		}
		cmd := m.assign.Open(len(m.selected))
		return m, cmd

	case key.Matches(msg, m.keys.Escape):
		m.flash = ""
		return m, nil
	}

	return m.handleTableKey(msg)
}

func (m Model) handleArtInputKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Confirm), key.Matches(msg, m.keys.Escape):
		m.editingArt = false
		m.artInput.Blur()
		return m, nil
	}

	before := m.artInput.Value()
	var cmd tea.Cmd
	m.artInput, cmd = m.artInput.Update(msg)
	value := m.artInput.Value()
	if value == before {
		return m, cmd
	}
	m.snapshot.Filters.NumeroArt = value
	return m, tea.Batch(cmd, m.updateFiltersCmd(func(f api.Filters) api.Filters {
		f.NumeroArt = value
		return f
	}))
}

func (m Model) handleTableKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	count := len(m.visibleTargets())
	page := max(m.tableHeight()-1, 1)
	switch {
	case key.Matches(msg, m.keys.Up):
		if m.selectedRow > 0 {
			m.selectedRow--
		}
	case key.Matches(msg, m.keys.Down):
		if m.selectedRow < count-1 {
			m.selectedRow++
		}
	case key.Matches(msg, m.keys.Top):
		m.selectedRow = 0
	case key.Matches(msg, m.keys.Bottom):
		m.selectedRow = max(count-1, 0)
	case key.Matches(msg, m.keys.PageUp):
		m.selectedRow = max(m.selectedRow-page, 0)
	case key.Matches(msg, m.keys.PageDown):
		m.selectedRow = min(m.selectedRow+page, max(count-1, 0))
	}
	return m, nil
}

func (m Model) savePrefsCmd() tea.Cmd {
	path := m.prefsPath
	p := prefs.Prefs{Theme: m.theme.Name, ShowAssigned: m.showAssigned}
	logger := m.log
	return func() tea.Msg {
		if err := prefs.Save(path, p); err != nil {
			logger.Warn().Err(err).Msg("save prefs")
			return errMsg{err}
		}
		return nil
	}
}

// Run starts the Bubble Tea program and blocks until it exits.
func Run(opts Options) error {
	m := New(opts)
	if opts.Provider != nil {
		m.feed = newSnapshotFeed()
		unsubscribe := opts.Provider.Subscribe(m.feed.push)
		defer unsubscribe()
	}

	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}
	p := tea.NewProgram(m, tea.WithContext(ctx))
	_, err := p.Run()
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}

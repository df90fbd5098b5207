package ui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/five82/fiscal/internal/api"
	"github.com/five82/fiscal/internal/state"
)

type tickMsg time.Time

type snapshotMsg state.Snapshot

type assignResultMsg struct {
	teamID int64
	ids    []int64
	err    error
}

type errMsg struct{ err error }

func tickCmd(every time.Duration) tea.Cmd {
	return tea.Tick(every, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// snapshotFeed hands provider snapshots to the program. Only the newest
// pending snapshot is kept, so push never blocks the provider.
type snapshotFeed struct {
	ch chan state.Snapshot
}

func newSnapshotFeed() *snapshotFeed {
	return &snapshotFeed{ch: make(chan state.Snapshot, 1)}
}

func (f *snapshotFeed) push(s state.Snapshot) {
	for {
		select {
		case f.ch <- s:
			return
		default:
		}
		select {
		case <-f.ch:
		default:
		}
	}
}

func waitForSnapshot(f *snapshotFeed) tea.Cmd {
	return func() tea.Msg {
		return snapshotMsg(<-f.ch)
	}
}

// Provider calls run as commands: they notify subscribers synchronously,
// and the feed must be drained by the event loop.

func (m Model) updateFiltersCmd(fn func(api.Filters) api.Filters) tea.Cmd {
	p := m.provider
	if p == nil {
		return nil
	}
	return func() tea.Msg {
		p.UpdateFilters(fn)
		return nil
	}
}

func (m Model) fetchTargetsCmd() tea.Cmd {
	p := m.provider
	ctx := m.ctx
	if p == nil {
		return nil
	}
	return func() tea.Msg {
		// Failures surface through the snapshot's offline flag.
		_ = p.FetchTargets(ctx)
		return nil
	}
}

func (m Model) reconnectCmd() tea.Cmd {
	if m.reconnect == nil {
		return m.fetchTargetsCmd()
	}
	fn := m.reconnect
	return func() tea.Msg {
		fn()
		return nil
	}
}

// Package ledgerreader is a terminal viewer for transaction ledger files.
package ledgerreader

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"txkernel/pkg/concurrency/transaction"
	"txkernel/pkg/debug/ui"
	"txkernel/pkg/primitives"
)

const visibleRows = 20

type keyMap struct {
	Up     key.Binding
	Down   key.Binding
	Select key.Binding
	Back   key.Binding
	Filter key.Binding
	Reload key.Binding
	Quit   key.Binding
}

var keys = keyMap{
	Up:     ui.CommonKeys.Up,
	Down:   ui.CommonKeys.Down,
	Select: ui.CommonKeys.Select,
	Back:   ui.CommonKeys.Back,
	Filter: ui.CommonKeys.Filter,
	Reload: ui.CommonKeys.Reload,
	Quit:   ui.CommonKeys.Quit,
}

// entry is one row of the list view.
type entry struct {
	xid    primitives.XID
	status transaction.Status
}

type model struct {
	path       string
	snapshot   *transaction.Snapshot
	entries    []entry
	activeOnly bool
	cursor     int
	selected   *entry
	viewport   viewport.Model
	width      int
	height     int
	detailMode bool
	err        error
}

func initialModel(path string) model {
	return model{path: path}
}

func (m model) Init() tea.Cmd {
	return loadSnapshot(m.path)
}

type snapshotLoadedMsg struct {
	snapshot *transaction.Snapshot
	err      error
}

func loadSnapshot(path string) tea.Cmd {
	return func() tea.Msg {
		snap, err := transaction.Inspect(path)
		return snapshotLoadedMsg{snapshot: snap, err: err}
	}
}

// rebuild refreshes the visible rows from the snapshot and the filter.
func (m *model) rebuild() {
	m.entries = nil
	if m.snapshot == nil {
		return
	}
	for i, st := range m.snapshot.Statuses {
		if m.activeOnly && st != transaction.StatusActive {
			continue
		}
		m.entries = append(m.entries, entry{xid: primitives.XID(i + 1), status: st})
	}
	if m.cursor >= len(m.entries) {
		m.cursor = max(0, len(m.entries)-1)
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case snapshotLoadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.snapshot = msg.snapshot
		m.rebuild()
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport = viewport.New(msg.Width-4, msg.Height-10)
		return m, nil

	case tea.KeyMsg:
		if m.err != nil || m.detailMode {
			switch {
			case key.Matches(msg, keys.Quit):
				return m, tea.Quit
			case key.Matches(msg, keys.Back):
				m.detailMode = false
				return m, nil
			}
		} else {
			switch {
			case key.Matches(msg, keys.Quit):
				return m, tea.Quit
			case key.Matches(msg, keys.Up):
				if m.cursor > 0 {
					m.cursor--
				}
			case key.Matches(msg, keys.Down):
				if m.cursor < len(m.entries)-1 {
					m.cursor++
				}
			case key.Matches(msg, keys.Filter):
				m.activeOnly = !m.activeOnly
				m.rebuild()
			case key.Matches(msg, keys.Reload):
				return m, loadSnapshot(m.path)
			case key.Matches(msg, keys.Select):
				if m.cursor < len(m.entries) {
					e := m.entries[m.cursor]
					m.selected = &e
					m.detailMode = true
					m.viewport.SetContent(m.renderDetailView())
				}
			}
		}
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m model) View() string {
	if m.err != nil {
		return ui.RenderError(m.err)
	}
	if m.snapshot == nil {
		return "Loading ledger...\n"
	}

	var b strings.Builder
	b.WriteString(ui.TitleStyle.Render("🗂  Transaction Ledger Viewer") + "\n\n")

	if m.detailMode {
		b.WriteString(m.viewport.View())
		b.WriteString("\n\n")
		b.WriteString(ui.HelpStyle.Render("Press esc to go back | q to quit"))
	} else {
		b.WriteString(m.renderListView())
	}

	b.WriteString("\n" + m.renderStatusBar())
	return b.String()
}

func (m model) renderListView() string {
	var b strings.Builder

	counts := m.snapshot.Counts()
	header := fmt.Sprintf(" Counter: %d │ Active: %d │ Committed: %d │ Aborted: %d ",
		counts.Counter, counts.Active, counts.Committed, counts.Aborted)
	b.WriteString(ui.HeaderStyle.Render(header) + "\n\n")

	if len(m.entries) == 0 {
		b.WriteString(ui.ItemStyle.Render("  no transactions") + "\n")
	}

	visibleStart := max(0, m.cursor-visibleRows/2)
	visibleEnd := min(len(m.entries), visibleStart+visibleRows)
	for i := visibleStart; i < visibleEnd; i++ {
		line := m.formatEntryLine(m.entries[i])
		if i == m.cursor {
			line = ui.SelectedItemStyle.Render("▶ " + line)
		} else {
			line = ui.ItemStyle.Render("  " + line)
		}
		b.WriteString(line + "\n")
	}

	b.WriteString("\n")
	b.WriteString(ui.HelpStyle.Render("↑/↓: navigate | enter: details | a: active only | r: reload | q: quit"))
	return b.String()
}

func (m model) formatEntryLine(e entry) string {
	xid := ui.LabelStyle.Render("XID:") + " " + ui.ValueStyle.Render(fmt.Sprintf("%-8d", uint64(e.xid)))
	return fmt.Sprintf("%s │ %s", xid, ui.StatusBadge(e.status.String()))
}

func (m model) renderDetailView() string {
	if m.selected == nil {
		return "No transaction selected"
	}

	e := m.selected
	offset := int64(transaction.HeaderSize) + int64(e.xid-1)
	inFile := offset < m.snapshot.Size

	var b strings.Builder
	b.WriteString(ui.LabelStyle.Render("Status: ") + ui.StatusBadge(e.status.String()) + "\n\n")
	b.WriteString(ui.RenderKeyValue("Transaction ID", e.xid.String()))
	b.WriteString(ui.RenderKeyValue("Byte Offset", fmt.Sprintf("%d", offset)))
	b.WriteString(ui.RenderKeyValue("Raw Byte", fmt.Sprintf("%#02x", byte(e.status))))
	if !inFile {
		b.WriteString(ui.RenderKeyValue("Note", "status byte past end of file, read as active"))
	}
	return ui.DetailStyle.Render(b.String())
}

func (m model) renderStatusBar() string {
	position := fmt.Sprintf("%d/%d", min(m.cursor+1, len(m.entries)), len(m.entries))

	if m.detailMode {
		return ui.StatusBarStyle.Render(fmt.Sprintf(" Detail View | Position: %s ", position))
	}

	filter := "all"
	if m.activeOnly {
		filter = "active"
	}
	return ui.StatusBarStyle.Render(fmt.Sprintf(" List View | %s | Position: %s | %s ", filter, position, m.path))
}

// Run opens the viewer on the ledger at path and blocks until the user quits.
func Run(path string) error {
	p := tea.NewProgram(
		initialModel(path),
		tea.WithAltScreen(),
	)

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running ledger viewer: %w", err)
	}
	return nil
}

package ledgerreader

import (
	"path/filepath"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"txkernel/pkg/concurrency/transaction"
	"txkernel/pkg/logging"
)

func newLedgerFile(t *testing.T) string {
	t.Helper()
	logging.Discard()

	base := filepath.Join(t.TempDir(), "view")
	l, err := transaction.Create(base)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	defer l.Close()

	x1, _ := l.Begin()
	x2, _ := l.Begin()
	_, _ = l.Begin()
	if err := l.Commit(x1); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if err := l.Abort(x2); err != nil {
		t.Fatalf("Abort failed: %v", err)
	}
	return base
}

func loaded(t *testing.T, path string) model {
	t.Helper()
	m := initialModel(path)
	msg := m.Init()()
	next, _ := m.Update(msg)
	return next.(model)
}

func press(m model, keys string) model {
	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(keys)})
	return next.(model)
}

func TestModelLoadsSnapshot(t *testing.T) {
	m := loaded(t, newLedgerFile(t))

	if m.err != nil {
		t.Fatalf("unexpected error: %v", m.err)
	}
	if len(m.entries) != 3 {
		t.Fatalf("Expected 3 entries, got %d", len(m.entries))
	}

	view := m.View()
	for _, want := range []string{"Counter: 3", "COMMITTED", "ABORTED", "ACTIVE"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestModelActiveFilter(t *testing.T) {
	m := loaded(t, newLedgerFile(t))

	m = press(m, "a")
	if !m.activeOnly {
		t.Fatal("filter key should enable active-only mode")
	}
	if len(m.entries) != 1 || m.entries[0].xid != 3 {
		t.Fatalf("Expected only xid 3, got %+v", m.entries)
	}

	m = press(m, "a")
	if len(m.entries) != 3 {
		t.Errorf("Expected all entries after toggling back, got %d", len(m.entries))
	}
}

func TestModelNavigation(t *testing.T) {
	m := loaded(t, newLedgerFile(t))

	m = press(m, "j")
	m = press(m, "j")
	m = press(m, "j")
	if m.cursor != 2 {
		t.Errorf("cursor should stop at the last entry, got %d", m.cursor)
	}

	m = press(m, "k")
	if m.cursor != 1 {
		t.Errorf("Expected cursor 1, got %d", m.cursor)
	}
}

func TestModelMissingFile(t *testing.T) {
	m := loaded(t, filepath.Join(t.TempDir(), "absent"))
	if m.err == nil {
		t.Fatal("Expected an error for a missing ledger")
	}
	if !strings.Contains(m.View(), "Error") {
		t.Error("error view should mention the error")
	}
}

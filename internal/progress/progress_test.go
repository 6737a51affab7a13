package progress

import (
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/icemetrics/icemetrics/internal/catalog"
	"github.com/icemetrics/icemetrics/internal/collector"
)

func update(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	result, _ := m.Update(msg)
	return result.(Model)
}

func TestModel_Enumerating(t *testing.T) {
	m := NewModel("wh", nil)
	if !strings.Contains(m.View(), "Enumerating") {
		t.Error("view should show enumeration before tables are known")
	}
}

func TestModel_Progress(t *testing.T) {
	m := NewModel("wh", nil)
	m = update(t, m, discoveredMsg{total: 3})
	m = update(t, m, tableMsg{Table: catalog.TableIdentifier{Namespace: "sales", Name: "orders"}})
	m = update(t, m, tableMsg{
		Table: catalog.TableIdentifier{Namespace: "logs", Name: "events"},
		Err:   errors.New("metadata missing"),
	})

	v := m.View()
	for _, want := range []string{"2 / 3 tables", "1 ok", "1 failed", "logs.events: metadata missing"} {
		if !strings.Contains(v, want) {
			t.Errorf("view missing %q:\n%s", want, v)
		}
	}
}

func TestModel_FailureListBounded(t *testing.T) {
	m := NewModel("wh", nil)
	m = update(t, m, discoveredMsg{total: 10})
	for i := 0; i < 8; i++ {
		m = update(t, m, tableMsg{Table: catalog.TableIdentifier{Namespace: "ns", Name: string(rune('a' + i))}, Err: collector.ErrCancelled})
	}
	if len(m.failures) != recentFailures {
		t.Errorf("expected %d recent failures, got %d", recentFailures, len(m.failures))
	}
	if m.failed != 8 {
		t.Errorf("expected 8 failed, got %d", m.failed)
	}
}

func TestModel_InterruptCancelsOnce(t *testing.T) {
	calls := 0
	m := NewModel("wh", func() { calls++ })
	m = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	m = update(t, m, tea.KeyMsg{Type: tea.KeyCtrlC})
	if !m.Interrupted() {
		t.Error("q should interrupt")
	}
	if calls != 1 {
		t.Errorf("expected cancel to be called once, got %d", calls)
	}
}

func TestModel_Done(t *testing.T) {
	m := NewModel("wh", nil)
	result, cmd := m.Update(doneMsg{})
	if !result.(Model).Done() {
		t.Error("done message should finish the model")
	}
	if cmd == nil {
		t.Error("expected quit command")
	}
}

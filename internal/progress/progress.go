package progress

import (
	"fmt"
	"io"
	"strings"
	"time"

	progressbar "github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/icemetrics/icemetrics/internal/collector"
)

const recentFailures = 5

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

type discoveredMsg struct{ total int }

type tableMsg collector.TableEvent

type doneMsg struct{}

// Model is the bubbletea model of the progress view.
type Model struct {
	warehouse string
	spinner   spinner.Model
	bar       progressbar.Model
	cancel    func()

	total       int
	done        int
	failed      int
	started     time.Time
	last        string
	failures    []string
	interrupted bool
	finished    bool
}

// NewModel creates the view. cancel is called when the user presses q or
// ctrl+c.
func NewModel(warehouse string, cancel func()) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return Model{
		warehouse: warehouse,
		spinner:   s,
		bar:       progressbar.New(progressbar.WithDefaultGradient(), progressbar.WithWidth(50)),
		cancel:    cancel,
		started:   time.Now(),
	}
}

func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.bar.Width = min(max(msg.Width-30, 10), 80)
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			if !m.interrupted && m.cancel != nil {
				m.cancel()
			}
			m.interrupted = true
		}
		return m, nil

	case discoveredMsg:
		m.total = msg.total
		return m, nil

	case tableMsg:
		m.done++
		m.last = msg.Table.String()
		if msg.Err != nil {
			m.failed++
			m.failures = append(m.failures, fmt.Sprintf("%s: %v", msg.Table, msg.Err))
			if len(m.failures) > recentFailures {
				m.failures = m.failures[1:]
			}
		}
		return m, nil

	case doneMsg:
		m.finished = true
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Collecting " + m.warehouse))
	b.WriteString("\n\n")

	if m.total == 0 && !m.finished {
		b.WriteString(fmt.Sprintf("  %s Enumerating namespaces and tables...\n", m.spinner.View()))
		return b.String()
	}

	pct := 1.0
	if m.total > 0 {
		pct = float64(m.done) / float64(m.total)
	}
	b.WriteString("  " + m.bar.ViewAs(pct) + "\n")
	b.WriteString(fmt.Sprintf("  %d / %d tables  %s  %s\n",
		m.done, m.total,
		successStyle.Render(fmt.Sprintf("%d ok", m.done-m.failed)),
		failedText(m.failed)))
	b.WriteString(dimStyle.Render(fmt.Sprintf("  Elapsed: %s", time.Since(m.started).Round(time.Second))))
	b.WriteString("\n")

	if m.last != "" && !m.finished {
		b.WriteString(fmt.Sprintf("  %s %s\n", m.spinner.View(), dimStyle.Render(m.last)))
	}

	if len(m.failures) > 0 {
		b.WriteString("\n")
		b.WriteString(errStyle.Render("  Recent failures:"))
		b.WriteString("\n")
		for _, f := range m.failures {
			b.WriteString("    - " + f + "\n")
		}
	}

	b.WriteString("\n")
	if m.interrupted && !m.finished {
		b.WriteString(warnStyle.Render("  Interrupted: finishing tables in flight, skipping the rest"))
	} else if !m.finished {
		b.WriteString(dimStyle.Render("  q: stop after tables in flight"))
	}
	b.WriteString("\n")
	return b.String()
}

// Done reports whether the run finished.
func (m Model) Done() bool {
	return m.finished
}

// Interrupted reports whether the user asked to stop.
func (m Model) Interrupted() bool {
	return m.interrupted
}

func failedText(n int) string {
	if n == 0 {
		return dimStyle.Render("0 failed")
	}
	return errStyle.Render(fmt.Sprintf("%d failed", n))
}

// View drives a Model from collector callbacks.
type View struct {
	program *tea.Program
}

// NewView creates a progress view writing to out.
func NewView(warehouse string, cancel func(), out io.Writer) *View {
	return &View{program: tea.NewProgram(NewModel(warehouse, cancel), tea.WithOutput(out))}
}

// Run blocks until Finish is called.
func (v *View) Run() error {
	_, err := v.program.Run()
	return err
}

// Discovered is a collector.Collector OnDiscovered callback.
func (v *View) Discovered(total int) {
	v.program.Send(discoveredMsg{total: total})
}

// Table is a collector.Collector OnTable callback.
func (v *View) Table(ev collector.TableEvent) {
	v.program.Send(tableMsg(ev))
}

// Finish stops the view.
func (v *View) Finish() {
	v.program.Send(doneMsg{})
}

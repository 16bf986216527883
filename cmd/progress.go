package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Messages the exporter pushes into the TUI.
type exportPhaseMsg struct {
	phase string
}

type partitionDoneMsg struct {
	path    string
	bytes   int64
	skipped bool
}

type exportDoneMsg struct {
	summary ExportSummary
}

type exportErrMsg struct {
	err error
}

var (
	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#626262")).
			Margin(0, 2)

	stageStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#04B575")).
			Margin(0, 2)

	pathStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888")).
			Margin(0, 2)
)

type exportModel struct {
	phase      string
	spin       spinner.Model
	bar        progress.Model
	paths      []string
	skipped    int
	bytes      int64
	expected   int
	done       bool
	err        error
	summary    ExportSummary
	startTime  time.Time
	width      int
	cancelFunc context.CancelFunc
}

func newExportModel(expected int, cancel context.CancelFunc) exportModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	bar := progress.New(
		progress.WithDefaultGradient(),
		progress.WithWidth(60),
	)

	return exportModel{
		phase:      "Starting...",
		spin:       s,
		bar:        bar,
		expected:   expected,
		startTime:  time.Now(),
		cancelFunc: cancel,
	}
}

func (m exportModel) Init() tea.Cmd {
	return m.spin.Tick
}

func (m exportModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			if m.cancelFunc != nil {
				m.cancelFunc()
			}
			return m, tea.Quit
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case exportPhaseMsg:
		m.phase = msg.phase
		return m, nil

	case partitionDoneMsg:
		m.paths = append(m.paths, msg.path)
		m.bytes += msg.bytes
		if msg.skipped {
			m.skipped++
		}
		return m, nil

	case exportDoneMsg:
		m.done = true
		m.summary = msg.summary
		return m, tea.Quit

	case exportErrMsg:
		m.done = true
		m.err = msg.err
		return m, tea.Quit
	}

	return m, nil
}

func (m exportModel) View() string {
	if m.done {
		return ""
	}

	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(stageStyle.Render(fmt.Sprintf("%s %s", m.spin.View(), m.phase)))
	b.WriteString("\n\n")

	if m.expected > 0 {
		ratio := float64(len(m.paths)) / float64(m.expected)
		if ratio > 1 {
			ratio = 1
		}
		b.WriteString("  " + m.bar.ViewAs(ratio))
		b.WriteString("\n")
		b.WriteString(pathStyle.Render(fmt.Sprintf("%d/%d partitions · %.2f MB · %s elapsed",
			len(m.paths), m.expected,
			float64(m.bytes)/(1024*1024),
			time.Since(m.startTime).Round(time.Second))))
		b.WriteString("\n")
	}

	// tail of recently written objects
	start := len(m.paths) - 5
	if start < 0 {
		start = 0
	}
	for _, path := range m.paths[start:] {
		b.WriteString(pathStyle.Render("✅ " + path))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(helpStyle.Render("Press q or ctrl+c to cancel"))
	b.WriteString("\n")
	return b.String()
}

// runExportWithProgress drives an export under the TUI. The exporter
// runs in its own goroutine and streams messages into the program.
func runExportWithProgress(ctx context.Context, config *Config, exporter *Exporter) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	expected := config.Workers
	model := newExportModel(expected, cancel)
	p := tea.NewProgram(model, tea.WithoutSignalHandler())
	exporter.SetNotify(p.Send)

	errChan := make(chan error, 1)
	go func() {
		err := exporter.Run(ctx)
		errChan <- err
		if err != nil {
			p.Send(exportErrMsg{err: err})
		} else {
			p.Send(exportDoneMsg{})
		}
	}()

	if _, err := p.Run(); err != nil {
		cancel()
		<-errChan
		return fmt.Errorf("progress display failed: %w", err)
	}
	cancel()
	return <-errChan
}

package tui

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/sokinpui/xmlpatch/xmlpatch"
)

type emitDoneMsg struct{ xmlpatch.ProcessingComplete }

// Progress shows emission progress while run executes. Session events are
// forwarded to it with tea.Program.Send.
type Progress struct {
	run       func() (xmlpatch.ProcessingComplete, error)
	spinner   spinner.Model
	bar       progress.Model
	started   bool
	processed int
	total     int
	done      bool
	result    xmlpatch.ProcessingComplete
	err       error
}

// NewProgress creates a progress view around run.
func NewProgress(run func() (xmlpatch.ProcessingComplete, error)) Progress {
	return Progress{
		run:     run,
		spinner: newSpinner(),
		bar:     progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
	}
}

// Result returns the emission result once the program has exited.
func (m Progress) Result() (xmlpatch.ProcessingComplete, error) {
	return m.result, m.err
}

func (m Progress) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, func() tea.Msg {
		res, err := m.run()
		if err != nil {
			return errorMsg{err}
		}
		return emitDoneMsg{res}
	})
}

func (m Progress) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.err = errors.New("interrupted")
			return m, tea.Quit
		}

	case xmlpatch.ProcessingStarted:
		m.started = true

	case xmlpatch.ProcessingProgress:
		m.processed, m.total = msg.Processed, msg.Total

	case emitDoneMsg:
		m.done = true
		m.result = msg.ProcessingComplete
		return m, tea.Quit

	case errorMsg:
		m.err = msg.err
		return m, tea.Quit

	default:
		var cmd tea.Cmd
		if !m.done {
			m.spinner, cmd = m.spinner.Update(msg)
		}
		return m, cmd
	}
	return m, nil
}

func (m Progress) View() string {
	if m.err != nil {
		return errorStyle.Render("Error: ", m.err.Error()) + "\n"
	}
	if m.done {
		return successStyle.Render(fmt.Sprintf("Serialized %d file(s), %d skipped.", m.result.Included, m.result.Skipped)) + "\n"
	}
	if !m.started || m.total == 0 {
		return fmt.Sprintf("%s Scanning workspace...", m.spinner.View())
	}
	percent := float64(m.processed) / float64(m.total)
	return fmt.Sprintf("%s Serializing %s %d/%d", m.spinner.View(), m.bar.ViewAs(percent), m.processed, m.total)
}

package tui

import (
	"context"
	"fmt"
	"os/exec"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/sokinpui/xmlpatch/internal/diff"
	"github.com/sokinpui/xmlpatch/model"
	"github.com/sokinpui/xmlpatch/xmlpatch"
)

type reviewState int

const (
	stateBrowsing reviewState = iota
	statePreview
	stateApplying
	stateSummary
	stateCancelled
	stateError
)

type appliedMsg struct{ xmlpatch.ChangesApplied }

type diffMsg struct{ xmlpatch.DiffOpened }

type editorClosedMsg struct{ err error }

// Review lets the user pick which changes of a batch to apply.
type Review struct {
	ctx      context.Context
	session  *xmlpatch.Session
	changes  []model.FileChange
	stats    []diff.Stats
	warnings []string
	selected map[int]bool
	cursor   int
	state    reviewState
	spinner  spinner.Model
	preview  string
	status   string
	summary  model.Summary
	err      error
}

// NewReview creates a review over the session's pending changes.
func NewReview(ctx context.Context, session *xmlpatch.Session, warnings []string) Review {
	changes := session.Pending()
	selected := make(map[int]bool, len(changes))
	stats := make([]diff.Stats, len(changes))
	for i, c := range changes {
		selected[c.Index] = c.Selected
		stats[i] = diff.LineStats(c)
	}
	return Review{
		ctx:      ctx,
		session:  session,
		changes:  changes,
		stats:    stats,
		warnings: warnings,
		selected: selected,
		spinner:  newSpinner(),
	}
}

func (m Review) Init() tea.Cmd {
	return nil
}

// Summary returns the apply summary and whether an apply happened.
func (m Review) Summary() (model.Summary, bool) {
	return m.summary, m.state == stateSummary
}

// Err returns the error that ended the review, if any.
func (m Review) Err() error {
	return m.err
}

func (m Review) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case appliedMsg:
		m.state = stateSummary
		m.summary = msg.Summary
		return m, tea.Quit

	case diffMsg:
		if msg.Shown {
			m.status = fmt.Sprintf("Opened %s in neovim", msg.Title)
			return m, nil
		}
		if path, err := exec.LookPath("nvim"); err == nil {
			c := exec.Command(path, "-R", "-d", msg.Before, msg.After)
			return m, tea.ExecProcess(c, func(err error) tea.Msg { return editorClosedMsg{err} })
		}
		m.state = statePreview
		m.preview = msg.Preview
		return m, nil

	case editorClosedMsg:
		if msg.err != nil {
			m.status = errorStyle.Render("nvim: " + msg.err.Error())
		}
		return m, nil

	case errorMsg:
		if m.state == stateApplying {
			m.state = stateError
			m.err = msg.err
			return m, tea.Quit
		}
		m.status = errorStyle.Render(msg.Error())
		return m, nil

	default:
		var cmd tea.Cmd
		if m.state == stateApplying {
			m.spinner, cmd = m.spinner.Update(msg)
		}
		return m, cmd
	}
}

func (m Review) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		m.session.Handle(m.ctx, xmlpatch.CancelChanges{})
		m.state = stateCancelled
		return m, tea.Quit
	}

	switch m.state {
	case statePreview:
		switch msg.String() {
		case "q", "esc", "enter":
			m.state = stateBrowsing
			m.preview = ""
		}
		return m, nil
	case stateBrowsing:
	default:
		return m, nil
	}

	m.status = ""
	switch msg.String() {
	case "q", "esc":
		m.session.Handle(m.ctx, xmlpatch.CancelChanges{})
		m.state = stateCancelled
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.changes)-1 {
			m.cursor++
		}
	case " ", "x":
		if len(m.changes) > 0 {
			idx := m.changes[m.cursor].Index
			m.selected[idx] = !m.selected[idx]
		}
	case "a":
		all := !m.allSelected()
		for _, c := range m.changes {
			m.selected[c.Index] = all
		}
	case "d":
		if len(m.changes) > 0 {
			return m, m.viewDiff(m.changes[m.cursor].Index)
		}
	case "enter":
		m.state = stateApplying
		return m, tea.Batch(m.spinner.Tick, m.apply(m.selectedIndexes()))
	}
	return m, nil
}

func (m Review) allSelected() bool {
	for _, c := range m.changes {
		if !m.selected[c.Index] {
			return false
		}
	}
	return true
}

func (m Review) selectedIndexes() []int {
	var idx []int
	for i, on := range m.selected {
		if on {
			idx = append(idx, i)
		}
	}
	sort.Ints(idx)
	return idx
}

func (m Review) apply(selected []int) tea.Cmd {
	return func() tea.Msg {
		applied, err := xmlpatch.Expect[xmlpatch.ChangesApplied](m.session.Handle(m.ctx, xmlpatch.ConfirmApply{Selected: selected}))
		if err != nil {
			return errorMsg{err}
		}
		return appliedMsg{applied}
	}
}

func (m Review) viewDiff(index int) tea.Cmd {
	return func() tea.Msg {
		opened, err := xmlpatch.Expect[xmlpatch.DiffOpened](m.session.Handle(m.ctx, xmlpatch.ViewDiff{Index: index}))
		if err != nil {
			return errorMsg{err}
		}
		return diffMsg{opened}
	}
}

func (m Review) View() string {
	switch m.state {
	case stateApplying:
		return fmt.Sprintf("%s Applying...", m.spinner.View())
	case stateError:
		return errorStyle.Render("Error: ", m.err.Error())
	case stateSummary:
		return renderSummary(m.summary)
	case stateCancelled:
		return faintStyle.Render("Changes discarded.") + "\n"
	case statePreview:
		return m.preview + "\n" + faintStyle.Render("esc: back")
	}

	var b strings.Builder
	b.WriteString(headerStyle.Render(fmt.Sprintf("Review %d change(s)", len(m.changes))))
	b.WriteString("\n")
	for _, w := range m.warnings {
		b.WriteString(warnStyle.Render("! " + w))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	for i, c := range m.changes {
		cursor := "  "
		if i == m.cursor {
			cursor = cursorStyle.Render("> ")
		}
		check := "[ ]"
		if m.selected[c.Index] {
			check = "[x]"
		}
		stats := successStyle.Render(fmt.Sprintf("+%d", m.stats[i].Added)) + " " +
			errorStyle.Render(fmt.Sprintf("-%d", m.stats[i].Removed))
		b.WriteString(fmt.Sprintf("%s%s %-7s %s %s\n", cursor, check, c.Action, pathStyle.Render(c.FilePath), stats))
		if i == m.cursor && c.Description != "" {
			b.WriteString(faintStyle.Render("      " + c.Description))
			b.WriteString("\n")
		}
	}

	if m.status != "" {
		b.WriteString("\n")
		b.WriteString(m.status)
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(faintStyle.Render("space: toggle  a: all  d: diff  enter: apply  q: cancel"))
	return b.String()
}

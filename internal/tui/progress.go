package tui

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fakeyudi/howl/internal/pipeline"
)

var (
	doneMarkStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
)

type progressMsg pipeline.Progress

type finishedMsg struct{ err error }

// ProgressModel shows a spinner next to the current pipeline status and a
// check mark next to each finished phase.
type ProgressModel struct {
	spinner  spinner.Model
	current  pipeline.Progress
	finished []string
	err      error
	done     bool
	cancel   context.CancelFunc
}

// NewProgress returns a progress view. cancel is called when the user
// interrupts with ctrl+c.
func NewProgress(cancel context.CancelFunc) ProgressModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	return ProgressModel{spinner: s, cancel: cancel}
}

func (m ProgressModel) Init() tea.Cmd { return m.spinner.Tick }

func (m ProgressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			if m.cancel != nil {
				m.cancel()
			}
			return m, tea.Quit
		}
	case progressMsg:
		p := pipeline.Progress(msg)
		// per-step updates replace each other; anything else retires the old line
		stepUpdate := p.Step > 0 && m.current.Step > 0 && p.State == m.current.State
		if m.current.Message != "" && !stepUpdate && p.State != pipeline.StateError {
			m.finished = append(m.finished, m.current.Message)
		}
		m.current = p
		if p.State == pipeline.StateError {
			m.err = p.Err
		}
	case finishedMsg:
		m.done = true
		if msg.err != nil {
			m.err = msg.err
		} else if m.current.Message != "" {
			m.finished = append(m.finished, m.current.Message)
			m.current = pipeline.Progress{}
		}
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m ProgressModel) View() string {
	var sb strings.Builder
	for _, line := range m.finished {
		sb.WriteString(doneMarkStyle.Render("  ✓ ") + line + "\n")
	}
	switch {
	case m.err != nil:
		sb.WriteString(errorStyle.Render("  ✗ Error: "+m.err.Error()) + "\n")
	case m.current.Message != "":
		sb.WriteString("  " + m.spinner.View() + " " + m.current.Message + "\n")
	}
	return sb.String()
}

// RunProgress runs work while showing its progress. work registers report
// with the pipeline; ctrl+c cancels the context passed to it.
func RunProgress(ctx context.Context, work func(ctx context.Context, report pipeline.ProgressListener) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(NewProgress(cancel))
	errc := make(chan error, 1)
	go func() {
		err := work(ctx, func(pr pipeline.Progress) { p.Send(progressMsg(pr)) })
		errc <- err
		p.Send(finishedMsg{err: err})
	}()

	if _, err := p.Run(); err != nil {
		cancel()
		<-errc
		return err
	}
	return <-errc
}

// PlainProgress prints each update as one line, for non-interactive output.
func PlainProgress(w io.Writer) pipeline.ProgressListener {
	return func(p pipeline.Progress) {
		fmt.Fprintln(w, p.String())
	}
}

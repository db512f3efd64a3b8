// Package tui provides Bubble Tea views for browsing guides and following
// generation progress.
package tui

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fakeyudi/howl/internal/guide"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 2)

	activeTabStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	inactiveTabStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("245")).
				Background(lipgloss.Color("235")).
				Padding(0, 1)

	tabSepStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("238")).
			Background(lipgloss.Color("235"))

	sectionHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("33")).
			Bold(true)

	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	timeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("178"))
	bulletStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	stepNoStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Bold(true)
	keyStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)

	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("235")).
			Foreground(lipgloss.Color("245")).
			Padding(0, 1)

	selectedRowStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("15")).
				Background(lipgloss.Color("237"))
)

type tabID int

const (
	tabOverview tabID = iota
	tabSteps
	tabTimeline
	tabCount
)

var tabNames = [tabCount]string{"Overview", "Steps", "Timeline"}

// Model is the root Bubble Tea model of the guide viewer.
type Model struct {
	guide     *guide.Guide
	filename  string
	activeTab tabID
	viewports [tabCount]viewport.Model
	width     int
	height    int
	ready     bool
	sortAsc   bool
	// Steps tab
	cursor   int
	expanded map[int]bool
}

// New creates a viewer for g, loaded from filename.
func New(g *guide.Guide, filename string) Model {
	return Model{
		guide:    g,
		filename: filepath.Base(filename),
		sortAsc:  true,
		expanded: make(map[int]bool),
	}
}

func (m Model) Init() tea.Cmd { return nil }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "tab", "l", "right":
			m.activeTab = (m.activeTab + 1) % tabCount
		case "shift+tab", "h", "left":
			m.activeTab = (m.activeTab - 1 + tabCount) % tabCount
		case "1", "2", "3":
			m.activeTab = tabID(msg.String()[0] - '1')
		case "s":
			if m.activeTab == tabTimeline {
				m.sortAsc = !m.sortAsc
				m.refresh(tabTimeline)
				m.viewports[tabTimeline].GotoTop()
			}
		case "up", "k":
			if m.activeTab == tabSteps && m.cursor > 0 {
				m.cursor--
				m.refresh(tabSteps)
				return m, nil
			}
		case "down", "j":
			if m.activeTab == tabSteps && m.cursor < len(m.guide.Steps)-1 {
				m.cursor++
				m.refresh(tabSteps)
				return m, nil
			}
		case "enter", " ":
			if m.activeTab == tabSteps && len(m.guide.Steps) > 0 {
				if m.expanded[m.cursor] {
					delete(m.expanded, m.cursor)
				} else {
					m.expanded[m.cursor] = true
				}
				m.refresh(tabSteps)
				return m, nil
			}
		}
		var cmd tea.Cmd
		m.viewports[m.activeTab], cmd = m.viewports[m.activeTab].Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.initViewports()
		return m, nil
	}
	return m, nil
}

func (m Model) View() string {
	if !m.ready {
		return "Loading…"
	}

	title := titleStyle.Width(m.width).Render("  howl  " + m.filename)

	var tabParts []string
	for i := tabID(0); i < tabCount; i++ {
		label := fmt.Sprintf(" %d %s ", i+1, tabNames[i])
		if i == m.activeTab {
			tabParts = append(tabParts, activeTabStyle.Render(label))
		} else {
			tabParts = append(tabParts, inactiveTabStyle.Render(label))
		}
		if i < tabCount-1 {
			tabParts = append(tabParts, tabSepStyle.Render("│"))
		}
	}
	tabRow := lipgloss.NewStyle().
		Background(lipgloss.Color("235")).
		Width(m.width).
		Render(lipgloss.JoinHorizontal(lipgloss.Top, tabParts...))

	content := m.viewports[m.activeTab].View()

	hint := "  ←/→ tab  ↑/↓ scroll  1-3 jump  q quit"
	switch m.activeTab {
	case tabSteps:
		hint += "  ↑/↓ select  enter details"
	case tabTimeline:
		dir := "newest first"
		if m.sortAsc {
			dir = "oldest first"
		}
		hint += "  s sort (" + dir + ")"
	}
	pct := fmt.Sprintf("%3.0f%%", m.viewports[m.activeTab].ScrollPercent()*100)
	pad := max(m.width-lipgloss.Width(hint)-len(pct)-2, 1)
	statusBar := statusBarStyle.Width(m.width).Render(hint + strings.Repeat(" ", pad) + pct)

	return lipgloss.JoinVertical(lipgloss.Left, title, tabRow, content, statusBar)
}

func (m *Model) initViewports() {
	// title, tab row and status bar take one row each
	vpHeight := max(m.height-3, 1)
	for i := tabID(0); i < tabCount; i++ {
		vp := viewport.New(m.width, vpHeight)
		vp.SetContent(m.renderTab(i))
		m.viewports[i] = vp
	}
}

func (m *Model) refresh(t tabID) {
	m.viewports[t].SetContent(m.renderTab(t))
}

func (m *Model) renderTab(t tabID) string {
	switch t {
	case tabOverview:
		return m.renderOverview()
	case tabSteps:
		return m.renderSteps()
	case tabTimeline:
		return m.renderTimeline()
	}
	return ""
}

func heading(s string) string {
	return "\n" + sectionHeader.Render("  "+s) + "\n\n"
}

func bullet(text string) string {
	return bulletStyle.Render("  •") + "  " + text + "\n"
}

func (m *Model) renderOverview() string {
	g := m.guide
	var sb strings.Builder
	sb.WriteString(heading(g.Title))
	if g.Summary != "" {
		sb.WriteString("  " + g.Summary + "\n\n")
	}

	row := func(label, value string) {
		sb.WriteString(labelStyle.Render(fmt.Sprintf("  %-14s", label)) + "  " + value + "\n")
	}
	row("Recorded:", g.CreatedAt.Format("2006-01-02 15:04:05 MST"))
	row("Duration:", g.Duration)
	row("Steps:", fmt.Sprintf("%d", len(g.Steps)))
	if len(g.Applications) > 0 {
		row("Applications:", strings.Join(g.Applications, ", "))
	}
	if g.Author != "" {
		row("Author:", g.Author)
	}
	row("Session:", g.SessionID)

	if len(g.Prerequisites) > 0 {
		sb.WriteString(heading("Prerequisites"))
		for _, p := range g.Prerequisites {
			sb.WriteString(bullet(p))
		}
	}
	return sb.String()
}

func (m *Model) renderSteps() string {
	var sb strings.Builder
	sb.WriteString(heading(fmt.Sprintf("Steps (%d)", len(m.guide.Steps))))
	if len(m.guide.Steps) == 0 {
		sb.WriteString(dimStyle.Render("  (none)") + "\n")
		return sb.String()
	}
	for i, s := range m.guide.Steps {
		toggle := dimStyle.Render("  ▶ ")
		if m.expanded[i] {
			toggle = dimStyle.Render("  ▼ ")
		}
		row := toggle + stepNoStyle.Render(fmt.Sprintf("%2d.", s.Number)) + "  " + s.Instruction
		if i == m.cursor {
			row = selectedRowStyle.Width(max(m.width-2, 1)).Render(row)
		}
		sb.WriteString(row + "\n")
		if m.expanded[i] {
			sb.WriteString(renderStepDetails(s))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func renderStepDetails(s guide.Step) string {
	var sb strings.Builder
	row := func(label, value string) {
		sb.WriteString("       " + labelStyle.Render(fmt.Sprintf("%-11s", label)) + " " + value + "\n")
	}
	row("Window:", s.WindowTitle)
	row("Time:", timeStyle.Render(s.Timestamp.Format("15:04:05")))
	if s.Screenshot != "" {
		row("Screenshot:", s.Screenshot)
	}
	if s.TextEntered != "" {
		row("Typed:", fmt.Sprintf("%q", s.TextEntered))
	}
	if len(s.Shortcuts) > 0 {
		keys := make([]string, len(s.Shortcuts))
		for i, k := range s.Shortcuts {
			keys[i] = keyStyle.Render(k)
		}
		row("Shortcuts:", strings.Join(keys, " "))
	}
	return sb.String()
}

func (m *Model) renderTimeline() string {
	var sb strings.Builder
	dir := "newest first"
	if m.sortAsc {
		dir = "oldest first"
	}
	sb.WriteString(heading(fmt.Sprintf("Timeline (%s)", dir)))

	steps := make([]guide.Step, 0, len(m.guide.Steps))
	for _, s := range m.guide.Steps {
		if !s.Timestamp.IsZero() {
			steps = append(steps, s)
		}
	}
	if len(steps) == 0 {
		sb.WriteString(dimStyle.Render("  (no timestamped steps in this guide)") + "\n")
		return sb.String()
	}
	sort.SliceStable(steps, func(i, j int) bool {
		if m.sortAsc {
			return steps[i].Timestamp.Before(steps[j].Timestamp)
		}
		return steps[i].Timestamp.After(steps[j].Timestamp)
	})

	for _, s := range steps {
		ts := timeStyle.Render(s.Timestamp.Format("15:04:05"))
		no := stepNoStyle.Render(fmt.Sprintf("  #%-3d", s.Number))
		sb.WriteString(ts + no + "  " + s.WindowTitle + "\n\n")
	}
	return sb.String()
}

// Run opens the viewer for g.
func Run(g *guide.Guide, filename string) error {
	p := tea.NewProgram(New(g, filename), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

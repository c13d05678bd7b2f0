package tui

import (
	"fmt"
	"os"
	"strings"

	"charm.land/bubbles/v2/spinner"
	"charm.land/bubbles/v2/viewport"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"github.com/kiva-corp/localrun/internal/session"
)

const (
	maxTrafficEntries = 100
	minSplitWidth     = 100
	leftPanelPct      = 35
)

type focusedPanel int

const (
	panelLeft focusedPanel = iota
	panelRight
)

type connState string

const (
	connConnecting   connState = "connecting"
	connConnected    connState = "connected"
	connReconnecting connState = "reconnecting"
	connClosed       connState = "disconnected"
)

// Model is the root Bubble Tea model for the localrun terminal UI. It renders one
// Session's status alongside its traffic log.
type Model struct {
	sess *session.Session

	originPort int
	status     connState
	url        string
	lastError  string
	breakerOn  bool

	traffic   []string
	spinner   spinner.Model
	trafficVP viewport.Model
	ready     bool
	quitting  bool
	width     int
	height    int

	focus     focusedPanel
	showSplit bool

	printRequests bool
	autoOpen      bool
	opened        bool
}

// WithPrintRequests enables echoing each traffic entry to stderr as it arrives.
func (m Model) WithPrintRequests() Model {
	m.printRequests = true
	return m
}

// WithAutoOpen makes the model open the public URL in a browser the first time it connects.
func (m Model) WithAutoOpen() Model {
	m.autoOpen = true
	return m
}

// NewModel creates a TUI model observing sess, whose local origin listens on originPort.
func NewModel(sess *session.Session, originPort int) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))

	return Model{
		sess:       sess,
		originPort: originPort,
		status:     connConnecting,
		traffic:    make([]string, 0, maxTrafficEntries),
		spinner:    s,
		focus:      panelRight,
	}
}

func (m Model) renderLeftPanel() string {
	status := string(m.status)
	if m.breakerOn {
		status = "circuit-breaker-open"
	}
	card := fmt.Sprintf("  %s\n\n", titleStyle.Render("localrun"))
	if m.url != "" {
		card += fmt.Sprintf("  %s  %s\n", labelStyle.Render("URL"), urlStyle.Render(m.url))
	}
	card += fmt.Sprintf("  %s  localhost:%d\n", labelStyle.Render("Origin"), m.originPort)
	card += fmt.Sprintf("  %s  %s\n", labelStyle.Render("Status"), StyledTunnelStatus(status))
	if m.lastError != "" {
		card += fmt.Sprintf("  %s  %s\n", labelStyle.Render("Last error"), errorStyle.Render(m.lastError))
	}
	return card
}

func (m Model) renderFooter() string {
	if m.showSplit {
		hint := "  q quit | b open browser | tab switch panel"
		if m.focus == panelRight && m.ready && len(m.traffic) > 0 {
			pct := m.trafficVP.ScrollPercent()
			hint += fmt.Sprintf(" | ↑↓ scroll | %3.0f%%", pct*100)
		}
		return dimStyle.Render(hint)
	}
	return dimStyle.Render("  q quit | b open browser")
}

func (m *Model) syncLayout() {
	if m.width == 0 || m.height == 0 {
		return
	}

	m.showSplit = m.width >= minSplitWidth
	if !m.showSplit {
		return
	}

	const footerLines = 1
	borderV, borderH := 2, 2

	leftWidth := m.width * leftPanelPct / 100
	rightWidth := m.width - leftWidth
	bodyHeight := m.height - footerLines

	vpWidth := rightWidth - borderH
	vpHeight := bodyHeight - borderV
	if vpWidth < 1 {
		vpWidth = 1
	}
	if vpHeight < 1 {
		vpHeight = 1
	}

	if !m.ready {
		m.trafficVP = viewport.New(
			viewport.WithWidth(vpWidth),
			viewport.WithHeight(vpHeight),
		)
		m.trafficVP.MouseWheelEnabled = true
		m.trafficVP.MouseWheelDelta = 3
		m.updateViewportContent()
		m.ready = true
	} else {
		m.trafficVP.SetWidth(vpWidth)
		m.trafficVP.SetHeight(vpHeight)
	}
}

// Init starts the event listener, spinner, and redraw ticker.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tickEvery(), listenForEvents(m.sess))
}

// Update handles messages and updates model state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			m.sess.Close()
			return m, tea.Quit
		case "b":
			if m.status == connConnected && m.url != "" {
				return m, openBrowser(m.url)
			}
		case "tab":
			if m.showSplit {
				if m.focus == panelLeft {
					m.focus = panelRight
				} else {
					m.focus = panelLeft
				}
			}
		}

	case openBrowserMsg:
		// Nothing to do — could surface the error in a future iteration.

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.syncLayout()

	case tickMsg:
		cmds = append(cmds, tickEvery())

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case sessionEventMsg:
		switch msg.Type {
		case "url":
			m.url = msg.URL
			m.status = connConnected
			if m.autoOpen && !m.opened {
				m.opened = true
				cmds = append(cmds, openBrowser(m.url))
			}

		case "error":
			if msg.Err != nil {
				m.lastError = msg.Err.Error()
			}

		case "close":
			m.status = connClosed

		case "circuit-breaker-open":
			m.breakerOn = true

		case "circuit-breaker-closed":
			m.breakerOn = false

		case "traffic":
			if msg.Traffic != nil {
				line := RenderTrafficLine(msg.Traffic.Method, msg.Traffic.Path, msg.Traffic.Status, msg.Traffic.Duration, msg.Traffic.Timestamp)
				if m.printRequests {
					fmt.Fprintln(os.Stderr, line)
				}
				m.traffic = append(m.traffic, line)
				if len(m.traffic) > maxTrafficEntries {
					m.traffic = m.traffic[len(m.traffic)-maxTrafficEntries:]
				}
				if m.ready {
					m.updateViewportContent()
					m.trafficVP.GotoBottom()
				}
			}
		}

		cmds = append(cmds, listenForEvents(m.sess))
	}

	if m.ready && m.showSplit && m.focus == panelRight {
		var vpCmd tea.Cmd
		m.trafficVP, vpCmd = m.trafficVP.Update(msg)
		cmds = append(cmds, vpCmd)
	}

	return m, tea.Batch(cmds...)
}

func (m *Model) updateViewportContent() {
	if !m.ready {
		return
	}
	content := strings.Join(m.traffic, "\n")
	if len(m.traffic) == 0 {
		content = dimStyle.Render(" Waiting for requests...")
	}
	m.trafficVP.SetContent(content)
}

// View renders the TUI display.
func (m Model) View() tea.View {
	if m.quitting {
		return tea.NewView("")
	}

	var content string
	if !m.showSplit {
		content = m.renderNarrowView()
	} else {
		content = m.renderSplitView()
	}

	if m.height > 0 {
		content = lipgloss.PlaceVertical(m.height, lipgloss.Top, content)
	}

	v := tea.NewView(content)
	v.AltScreen = true
	v.MouseMode = tea.MouseModeCellMotion
	return v
}

func (m Model) renderNarrowView() string {
	return lipgloss.JoinVertical(lipgloss.Left, m.renderLeftPanel(), "", m.renderFooter())
}

func (m Model) renderSplitView() string {
	const footerLines = 1
	borderV, borderH := 2, 2

	leftWidth := m.width * leftPanelPct / 100
	rightWidth := m.width - leftWidth
	bodyHeight := m.height - footerLines

	leftContent := m.renderLeftPanel()

	var rightContent string
	if m.ready {
		rightContent = m.trafficVP.View()
	} else {
		rightContent = dimStyle.Render(" Initializing...")
	}

	leftStyle := blurredBorderStyle()
	rightStyle := blurredBorderStyle()
	leftTitle := dimStyle.Render(" Session ")
	rightTitle := dimStyle.Render(" Traffic ")

	if m.focus == panelLeft {
		leftStyle = focusedBorderStyle()
		leftTitle = panelTitleStyle.Render(" Session ")
	} else {
		rightStyle = focusedBorderStyle()
		rightTitle = panelTitleStyle.Render(" Traffic ")
	}

	leftInnerW := leftWidth - borderH
	leftInnerH := bodyHeight - borderV
	rightInnerW := rightWidth - borderH
	rightInnerH := bodyHeight - borderV
	if leftInnerW < 1 {
		leftInnerW = 1
	}
	if leftInnerH < 1 {
		leftInnerH = 1
	}
	if rightInnerW < 1 {
		rightInnerW = 1
	}
	if rightInnerH < 1 {
		rightInnerH = 1
	}

	leftPanel := leftStyle.
		Width(leftInnerW).
		Height(leftInnerH).
		BorderTop(true).
		BorderBottom(true).
		BorderLeft(true).
		BorderRight(true).
		Render(leftContent)
	leftPanel = injectBorderTitle(leftPanel, leftTitle)

	rightPanel := rightStyle.
		Width(rightInnerW).
		Height(rightInnerH).
		BorderTop(true).
		BorderBottom(true).
		BorderLeft(true).
		BorderRight(true).
		Render(rightContent)
	rightPanel = injectBorderTitle(rightPanel, rightTitle)

	body := lipgloss.JoinHorizontal(lipgloss.Top, leftPanel, rightPanel)
	footer := m.renderFooter()

	return lipgloss.JoinVertical(lipgloss.Left, body, footer)
}

// injectBorderTitle replaces the beginning of the first line (after the corner)
// with a styled title string, producing a "─ Title ─────" border top.
func injectBorderTitle(rendered string, title string) string {
	lines := strings.SplitN(rendered, "\n", 2)
	if len(lines) == 0 {
		return rendered
	}

	topLine := lines[0]
	runes := []rune(topLine)
	titleRunes := []rune(title)

	if len(runes) < len(titleRunes)+2 {
		return rendered
	}

	copy(runes[1:], titleRunes)
	lines[0] = string(runes)
	return strings.Join(lines, "\n")
}

// ViewString returns the View content as a plain string (for testing).
func (m Model) ViewString() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	switch m.status {
	case connConnected:
		b.WriteString(RenderBanner(m.url, m.originPort, m.width))
	case connConnecting:
		b.WriteString(fmt.Sprintf("\n  %s\n", StyledTunnelStatus("connecting")))
	case connReconnecting:
		b.WriteString(fmt.Sprintf("\n  %s\n", StyledTunnelStatus("reconnecting")))
	case connClosed:
		b.WriteString(fmt.Sprintf("\n  %s\n", StyledTunnelStatus("disconnected")))
	}

	for _, line := range m.traffic {
		b.WriteString(line + "\n")
	}

	return b.String()
}

package tui

import (
	"fmt"
	"strings"

	"charm.land/bubbles/v2/spinner"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"
)

// state represents the phase of a one-shot command.
type state int

const (
	stateInit    state = iota
	stateWorking       // backend call in progress
	stateDone          // command finished
	stateError         // fatal error
	stateExpired       // session invalidated
)

// statusKind distinguishes line types in the status log.
type statusKind int

const (
	statusOK   statusKind = iota
	statusWarn            // warning / non-fatal
	statusInfo            // neutral info
)

// statusLine is one row in the scrolling status log.
type statusLine struct {
	kind statusKind
	text string
}

// Model is the BubbleTea model shown while a one-shot command runs.
type Model struct {
	state   state
	spinner spinner.Model
	width   int
	height  int

	action string
	errMsg string

	statusLines []statusLine
}

// Lipgloss styles shared by every view.
var (
	styleTitleBox = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("99")).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("99")).
			Padding(0, 2)

	styleSelected = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("228"))

	styleOK   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	styleWarn = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	styleErr  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	styleDim  = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	styleBold = lipgloss.NewStyle().Bold(true)
)

func newSpinner() spinner.Model {
	return spinner.New(
		spinner.WithSpinner(spinner.Dot),
		spinner.WithStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("99"))),
	)
}

// NewModel creates the status model for one-shot commands.
func NewModel() Model {
	return Model{
		state:   stateInit,
		spinner: newSpinner(),
	}
}

// Init starts the spinner animation.
func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update handles all incoming messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyPressMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		return m, nil

	case MsgBanner:
		return m, nil

	case MsgWorking:
		m.state = stateWorking
		m.action = msg.Action
		return m, nil

	case MsgLoggedIn:
		m.state = stateDone
		m.addStatus(statusOK, fmt.Sprintf("Logged in as %s <%s>", msg.User.UserName, msg.User.Email))
		return m, nil

	case MsgRegistered:
		m.state = stateDone
		m.addStatus(statusOK, fmt.Sprintf("Account created for %s", msg.User.UserName))
		return m, nil

	case MsgSignedOut:
		m.state = stateDone
		m.addStatus(statusOK, "Logged out")
		return m, nil

	case MsgWhoami:
		m.state = stateDone
		m.addStatus(statusInfo, fmt.Sprintf("%s <%s> (%s)", msg.User.UserName, msg.User.Email, msg.User.Role))
		return m, nil

	case MsgMovies:
		m.state = stateDone
		for _, mv := range msg.Movies {
			m.addStatus(statusInfo, formatMovie(mv))
		}
		m.addStatus(statusOK, fmt.Sprintf("Loaded %d of %d pages", msg.Pages, msg.TotalPages))
		return m, nil

	case MsgBoard:
		m.state = stateDone
		m.addStatus(statusOK, formatDetailHeader(msg.Detail))
		for _, c := range msg.Comments {
			m.addStatus(statusInfo, formatComment(c))
		}
		return m, nil

	case MsgCommentPosted:
		m.state = stateDone
		m.addStatus(statusOK, fmt.Sprintf("Comment #%d posted", msg.Comment.ID))
		return m, nil

	case MsgLoggedOut:
		m.state = stateExpired
		return m, nil

	case MsgFatal:
		m.errMsg = msg.Err.Error()
		m.state = stateError
		return m, nil
	}

	return m, nil
}

// View renders the TUI.
func (m Model) View() tea.View {
	return tea.NewView(m.render())
}

func (m Model) render() string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString(styleTitleBox.Render("  " + AppName + "  "))
	b.WriteString("\n\n")

	switch m.state {
	case stateWorking:
		b.WriteString(m.spinner.View())
		b.WriteString(" " + m.action + "...\n")
	case stateError:
		b.WriteString(styleErr.Render("  ✗ " + m.errMsg))
		b.WriteString("\n")
	case stateExpired:
		b.WriteString(viewExpired())
	case stateDone:
	default:
		b.WriteString(m.spinner.View())
		b.WriteString(" Starting...\n")
	}

	b.WriteString(m.viewStatusLog())
	return b.String()
}

// viewStatusLog renders the scrolling status log.
func (m Model) viewStatusLog() string {
	if len(m.statusLines) == 0 {
		return ""
	}

	var b strings.Builder
	for _, line := range m.statusLines {
		switch line.kind {
		case statusOK:
			b.WriteString(styleOK.Render("  ✓ " + line.text))
		case statusWarn:
			b.WriteString(styleWarn.Render("  ⚠ " + line.text))
		default:
			b.WriteString(styleDim.Render("  · " + line.text))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// addStatus appends a line to the status log.
func (m *Model) addStatus(kind statusKind, text string) {
	m.statusLines = append(m.statusLines, statusLine{kind: kind, text: text})
}

func viewExpired() string {
	return styleWarn.Render("  ⚠ Session expired, run `cinesync login` to sign in again") + "\n"
}

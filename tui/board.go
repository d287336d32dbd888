package tui

import (
	"context"
	"strings"

	"charm.land/bubbles/v2/spinner"
	"charm.land/bubbles/v2/textinput"
	tea "charm.land/bubbletea/v2"

	"github.com/cinesync/cli/board"
	"github.com/cinesync/cli/paging"
	"github.com/cinesync/cli/token"
)

// maxCommentLength matches the backend's column size.
const maxCommentLength = 1000

// BoardModel is the interactive view of one movie's message board.
type BoardModel struct {
	ctx        context.Context
	board      *board.Board
	logout     *token.Subscription
	standalone bool

	spinner   spinner.Model
	input     textinput.Model
	composing bool
	expired   bool
	notice    string
}

// NewBoardModel returns the board view. A standalone board quits on esc;
// otherwise esc returns to the list that opened it.
func NewBoardModel(ctx context.Context, b *board.Board, logout *token.Subscription, standalone bool) *BoardModel {
	ti := textinput.New()
	ti.Placeholder = "Write a comment"
	ti.CharLimit = maxCommentLength
	return &BoardModel{
		ctx:        ctx,
		board:      b,
		logout:     logout,
		standalone: standalone,
		spinner:    newSpinner(),
		input:      ti,
	}
}

// Init loads the board.
func (m *BoardModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.load(), waitLogout(m.ctx, m.logout))
}

func (m *BoardModel) load() tea.Cmd {
	b, ctx := m.board, m.ctx
	return func() tea.Msg {
		return boardLoadedMsg{err: b.Load(ctx)}
	}
}

func (m *BoardModel) refresh() tea.Cmd {
	b, ctx := m.board, m.ctx
	return func() tea.Msg {
		return boardLoadedMsg{err: b.Refresh(ctx)}
	}
}

func (m *BoardModel) more() tea.Cmd {
	b, ctx := m.board, m.ctx
	return func() tea.Msg {
		_, err := b.LoadMoreComments(ctx)
		return commentsMoreMsg{err: err}
	}
}

func (m *BoardModel) send(content string) tea.Cmd {
	b, ctx := m.board, m.ctx
	return func() tea.Msg {
		c, err := b.PostComment(ctx, content)
		return commentSentMsg{comment: c, err: err}
	}
}

// Update handles all incoming messages.
func (m *BoardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case MsgLoggedOut:
		m.expired = true
		m.composing = false
		m.input.Blur()
		return m, nil

	case boardLoadedMsg, commentsMoreMsg:
		return m, nil

	case commentSentMsg:
		if msg.err != nil {
			m.notice = "Posting failed: " + msg.err.Error()
			return m, nil
		}
		m.notice = "Comment posted"
		return m, nil

	case tea.KeyPressMsg:
		return m, m.handleKey(msg)
	}

	if m.composing {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *BoardModel) handleKey(msg tea.KeyPressMsg) tea.Cmd {
	key := msg.String()
	if key == "ctrl+c" {
		return tea.Quit
	}

	if m.composing {
		switch key {
		case "esc":
			m.composing = false
			m.input.Blur()
			return nil
		case "enter":
			content := m.input.Value()
			m.composing = false
			m.input.Blur()
			m.input.Reset()
			m.notice = ""
			return m.send(content)
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return cmd
	}

	switch key {
	case "esc", "q":
		if m.standalone {
			return tea.Quit
		}
		return func() tea.Msg { return backMsg{} }
	}
	if m.expired {
		return nil
	}

	st := m.board.Snapshot()
	switch key {
	case "n":
		if st.Phase == board.PhaseReady && st.Comments.HasMore() && !st.Comments.InFlight {
			return m.more()
		}
	case "r":
		m.notice = ""
		return m.refresh()
	case "c":
		if st.Phase == board.PhaseReady {
			m.composing = true
			m.notice = ""
			return m.input.Focus()
		}
	}
	return nil
}

// View renders the board.
func (m *BoardModel) View() tea.View {
	return tea.NewView(m.render())
}

func (m *BoardModel) render() string {
	var b strings.Builder
	b.WriteString("\n")

	if m.expired {
		b.WriteString(styleTitleBox.Render("  " + AppName + "  "))
		b.WriteString("\n\n")
		b.WriteString(viewExpired())
		b.WriteString(styleDim.Render("  esc back · q quit"))
		b.WriteString("\n")
		return b.String()
	}

	st := m.board.Snapshot()
	switch st.Phase {
	case board.PhaseLoading:
		b.WriteString(m.spinner.View() + " Loading board...\n")
		return b.String()
	case board.PhaseFailed:
		b.WriteString(styleErr.Render("  ✗ Could not load board: " + errText(st.Err)))
		b.WriteString("\n\n")
		b.WriteString(styleDim.Render("  r retry · esc back"))
		b.WriteString("\n")
		return b.String()
	}

	if st.Detail != nil {
		b.WriteString(styleTitleBox.Render(formatDetailHeader(*st.Detail)))
		b.WriteString("\n")
		if st.Detail.Overview != "" {
			b.WriteString(styleDim.Render(st.Detail.Overview))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if len(st.Comments.Items) == 0 {
		b.WriteString(styleDim.Render("  No comments yet"))
		b.WriteString("\n")
	}
	for _, c := range st.Comments.Items {
		b.WriteString("  " + formatComment(c) + "\n")
	}

	switch st.Comments.Phase {
	case paging.PhaseFetchingNextPage:
		b.WriteString(m.spinner.View() + " Loading more comments...\n")
	case paging.PhaseReadyWithTrailingError:
		b.WriteString(styleWarn.Render("  ⚠ Loading more failed: " + errText(st.Comments.Err)))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	switch {
	case m.composing:
		b.WriteString(m.input.View())
		b.WriteString("\n")
		b.WriteString(styleDim.Render("  enter send · esc cancel"))
		b.WriteString("\n")
		return b.String()
	case st.Post.Phase == board.PostPending:
		b.WriteString(m.spinner.View() + " Posting...\n")
	case m.notice != "" && st.Post.Phase == board.PostFailed:
		b.WriteString(styleErr.Render("  ✗ " + m.notice))
		b.WriteString("\n")
	case m.notice != "":
		b.WriteString(styleOK.Render("  ✓ " + m.notice))
		b.WriteString("\n")
	}

	help := "  c comment · r refresh · esc back"
	if st.Comments.HasMore() {
		help = "  n more ·" + help[1:]
	}
	b.WriteString(styleDim.Render(help))
	b.WriteString("\n")
	return b.String()
}

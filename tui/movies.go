package tui

import (
	"context"
	"fmt"
	"strings"

	"charm.land/bubbles/v2/spinner"
	tea "charm.land/bubbletea/v2"

	"github.com/cinesync/cli/api"
	"github.com/cinesync/cli/board"
	"github.com/cinesync/cli/paging"
	"github.com/cinesync/cli/token"
)

// visibleRows is how many movies are shown around the cursor.
const visibleRows = 15

// BoardOpener builds the board for a movie picked from the list.
type BoardOpener func(movieID int64) *board.Board

// MoviesModel is the interactive popular movies list.
type MoviesModel struct {
	ctx       context.Context
	movies    *paging.Controller[int64, api.Movie]
	openBoard BoardOpener
	logout    *token.Subscription

	spinner spinner.Model
	cursor  int
	expired bool
	child   *BoardModel
}

// NewMoviesModel returns the list view. movies should be a fresh controller
// over the popular listing; logout may be nil.
func NewMoviesModel(
	ctx context.Context,
	movies *paging.Controller[int64, api.Movie],
	openBoard BoardOpener,
	logout *token.Subscription,
) *MoviesModel {
	return &MoviesModel{
		ctx:       ctx,
		movies:    movies,
		openBoard: openBoard,
		logout:    logout,
		spinner:   newSpinner(),
	}
}

// Init loads the first page.
func (m *MoviesModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.loadNext(), waitLogout(m.ctx, m.logout))
}

func (m *MoviesModel) loadNext() tea.Cmd {
	ctrl := m.movies
	ctx := m.ctx
	return func() tea.Msg {
		_, err := ctrl.LoadNextPage(ctx)
		return moviesFetchedMsg{err: err}
	}
}

// Update handles all incoming messages.
func (m *MoviesModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case spinner.TickMsg:
		// each spinner ignores ticks carrying another spinner's id
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		if m.child != nil {
			_, childCmd := m.child.Update(msg)
			cmd = tea.Batch(cmd, childCmd)
		}
		return m, cmd

	case MsgLoggedOut:
		m.expired = true
		if m.child != nil {
			m.child.expired = true
		}
		return m, nil

	case backMsg:
		if m.child != nil {
			m.child.board.Close()
			m.child = nil
		}
		return m, nil

	case moviesFetchedMsg:
		return m, nil
	}

	if m.child != nil {
		if key, ok := msg.(tea.KeyPressMsg); ok && key.String() == "ctrl+c" {
			return m, tea.Quit
		}
		_, cmd := m.child.Update(msg)
		return m, cmd
	}

	key, ok := msg.(tea.KeyPressMsg)
	if !ok {
		return m, nil
	}
	return m, m.handleKey(key.String())
}

func (m *MoviesModel) handleKey(key string) tea.Cmd {
	switch key {
	case "ctrl+c", "q":
		return tea.Quit
	}
	if m.expired {
		return nil
	}

	st := m.movies.Snapshot()
	switch key {
	case "j", "down":
		if m.cursor < len(st.Items)-1 {
			m.cursor++
			return nil
		}
		// scrolling past the end asks for more
		if st.HasMore() && !st.InFlight {
			return m.loadNext()
		}
	case "k", "up":
		if m.cursor > 0 {
			m.cursor--
		}
	case "n":
		if st.HasMore() && !st.InFlight {
			return m.loadNext()
		}
	case "r":
		if st.Outcome == paging.OutcomeFailed && !st.InFlight {
			return m.loadNext()
		}
	case "enter":
		if m.cursor < len(st.Items) && m.openBoard != nil {
			m.child = NewBoardModel(m.ctx, m.openBoard(st.Items[m.cursor].ID), nil, false)
			return m.child.Init()
		}
	}
	return nil
}

// View renders the list or the open board.
func (m *MoviesModel) View() tea.View {
	return tea.NewView(m.render())
}

func (m *MoviesModel) render() string {
	if m.child != nil {
		return m.child.render()
	}

	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(styleTitleBox.Render("  " + AppName + " · Popular  "))
	b.WriteString("\n\n")

	if m.expired {
		b.WriteString(viewExpired())
		b.WriteString(styleDim.Render("  q quit"))
		b.WriteString("\n")
		return b.String()
	}

	st := m.movies.Snapshot()
	switch st.Phase {
	case paging.PhaseInitial, paging.PhaseFetchingFirstPage:
		b.WriteString(m.spinner.View() + " Loading popular movies...\n")
		return b.String()
	case paging.PhaseFailedFirstPage:
		b.WriteString(styleErr.Render("  ✗ Could not load movies: " + errText(st.Err)))
		b.WriteString("\n\n")
		b.WriteString(styleDim.Render("  r retry · q quit"))
		b.WriteString("\n")
		return b.String()
	}

	start := max(0, m.cursor-visibleRows/2)
	end := min(len(st.Items), start+visibleRows)
	for i := start; i < end; i++ {
		line := formatMovie(st.Items[i])
		if i == m.cursor {
			b.WriteString(styleSelected.Render("▸ " + line))
		} else {
			b.WriteString("  " + line)
		}
		b.WriteString("\n")
	}
	if len(st.Items) == 0 {
		b.WriteString(styleDim.Render("  No movies"))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	switch st.Phase {
	case paging.PhaseFetchingNextPage:
		b.WriteString(m.spinner.View() + " Loading more...\n")
	case paging.PhaseReadyWithTrailingError:
		b.WriteString(styleWarn.Render("  ⚠ Loading more failed: " + errText(st.Err) + " (r to retry)"))
		b.WriteString("\n")
	}
	b.WriteString(styleDim.Render(fmt.Sprintf(
		"  page %d/%d · j/k move · n more · enter open · q quit",
		st.CurrentPage, st.TotalPages,
	)))
	b.WriteString("\n")
	return b.String()
}

// waitLogout delivers MsgLoggedOut once the session is invalidated.
func waitLogout(ctx context.Context, sub *token.Subscription) tea.Cmd {
	if sub == nil {
		return nil
	}
	return func() tea.Msg {
		select {
		case <-sub.C:
			return MsgLoggedOut{}
		case <-ctx.Done():
			return nil
		}
	}
}

func errText(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}

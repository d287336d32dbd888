package tui

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	tea "charm.land/bubbletea/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cinesync/cli/api"
	"github.com/cinesync/cli/api/apitest"
	"github.com/cinesync/cli/board"
	"github.com/cinesync/cli/paging"
	"github.com/cinesync/cli/token"
	"github.com/cinesync/cli/transport"
)

func key(s string) tea.KeyPressMsg {
	switch s {
	case "enter":
		return tea.KeyPressMsg{Code: tea.KeyEnter}
	case "esc":
		return tea.KeyPressMsg{Code: tea.KeyEscape}
	}
	return tea.KeyPressMsg{Code: []rune(s)[0], Text: s}
}

// run executes cmd synchronously and feeds its message back into model.
func run(t *testing.T, model tea.Model, cmd tea.Cmd) tea.Model {
	t.Helper()
	require.NotNil(t, cmd)
	model, _ = model.Update(cmd())
	return model
}

type fixture struct {
	srv    *apitest.Server
	client *api.Client
	store  *token.Store
}

func newFixture(t *testing.T, movies int) fixture {
	t.Helper()
	srv := apitest.New()
	t.Cleanup(srv.Close)
	for i := 1; i <= movies; i++ {
		srv.AddMovies(api.Movie{ID: int64(i), Title: fmt.Sprintf("Movie %d", i), ReleaseDate: "2001-01-01"})
	}
	store := token.NewStore()
	require.NoError(t, store.Init(token.NewMemoryBackend()))
	hc := &http.Client{Transport: &transport.Auth{Store: store, Logger: zerolog.Nop()}}
	return fixture{srv: srv, client: api.NewClient(srv.URL, hc, zerolog.Nop()), store: store}
}

func (f fixture) moviesController() *paging.Controller[int64, api.Movie] {
	return paging.NewController[int64, api.Movie](func(ctx context.Context, page int) (paging.Page[api.Movie], error) {
		p, err := f.client.PopularMovies(ctx, page, "")
		if err != nil {
			return paging.Page[api.Movie]{}, err
		}
		return paging.Page[api.Movie]{Items: p.Results, Number: p.Page, TotalPages: p.TotalPages}, nil
	})
}

func (f fixture) opener() BoardOpener {
	return func(id int64) *board.Board {
		return board.New(id, f.client, board.Options{})
	}
}

func TestMoviesModel_LoadsAndPages(t *testing.T) {
	f := newFixture(t, 3)
	m := NewMoviesModel(context.Background(), f.moviesController(), f.opener(), nil)

	assert.Contains(t, m.render(), "Loading popular movies")
	run(t, m, m.loadNext())

	view := m.render()
	assert.Contains(t, view, "Movie 1")
	assert.Contains(t, view, "Movie 2")
	assert.NotContains(t, view, "Movie 3")
	assert.Contains(t, view, "page 1/2")

	_, cmd := m.Update(key("j"))
	assert.Nil(t, cmd, "cursor moves within the loaded items")
	_, cmd = m.Update(key("j"))
	run(t, m, cmd)

	view = m.render()
	assert.Contains(t, view, "Movie 3")
	assert.Contains(t, view, "page 2/2")

	_, cmd = m.Update(key("n"))
	assert.Nil(t, cmd, "no more pages")
}

func TestMoviesModel_FirstPageFailureAndRetry(t *testing.T) {
	f := newFixture(t, 2)
	f.srv.Fail("/api/movies/popular", http.StatusServiceUnavailable)
	m := NewMoviesModel(context.Background(), f.moviesController(), f.opener(), nil)

	run(t, m, m.loadNext())
	view := m.render()
	assert.Contains(t, view, "Could not load movies")
	assert.Contains(t, view, "r retry")

	f.srv.Fail("/api/movies/popular", 0)
	_, cmd := m.Update(key("r"))
	run(t, m, cmd)
	assert.Contains(t, m.render(), "Movie 1")
}

func TestMoviesModel_TrailingError(t *testing.T) {
	f := newFixture(t, 3)
	m := NewMoviesModel(context.Background(), f.moviesController(), f.opener(), nil)
	run(t, m, m.loadNext())

	f.srv.Fail("/api/movies/popular", http.StatusBadGateway)
	_, cmd := m.Update(key("n"))
	run(t, m, cmd)

	view := m.render()
	assert.Contains(t, view, "Movie 1", "loaded items stay visible")
	assert.Contains(t, view, "Loading more failed")
}

func TestMoviesModel_OpenBoardAndBack(t *testing.T) {
	f := newFixture(t, 1)
	f.srv.AddComments("1", "first!")
	m := NewMoviesModel(context.Background(), f.moviesController(), f.opener(), nil)
	run(t, m, m.loadNext())

	_, cmd := m.Update(key("enter"))
	require.NotNil(t, cmd)
	require.NotNil(t, m.child)
	run(t, m, m.child.load())

	view := m.render()
	assert.Contains(t, view, "Movie 1")
	assert.Contains(t, view, "first!")

	_, cmd = m.Update(key("esc"))
	run(t, m, cmd)
	assert.Nil(t, m.child)
	assert.Contains(t, m.render(), "Popular")
}

func TestMoviesModel_ChildSpinnerTicks(t *testing.T) {
	f := newFixture(t, 1)
	m := NewMoviesModel(context.Background(), f.moviesController(), f.opener(), nil)
	run(t, m, m.loadNext())

	m.Update(key("enter"))
	require.NotNil(t, m.child)

	before := m.child.spinner.View()
	_, cmd := m.Update(m.child.spinner.Tick())
	assert.NotNil(t, cmd)
	assert.NotEqual(t, before, m.child.spinner.View())
}

func TestMoviesModel_LoggedOut(t *testing.T) {
	f := newFixture(t, 1)
	m := NewMoviesModel(context.Background(), f.moviesController(), f.opener(), nil)
	run(t, m, m.loadNext())

	m.Update(MsgLoggedOut{})
	assert.Contains(t, m.render(), "Session expired")

	_, cmd := m.Update(key("n"))
	assert.Nil(t, cmd)
}

func TestWaitLogout(t *testing.T) {
	f := newFixture(t, 0)
	sub := f.store.Subscribe()
	defer f.store.Unsubscribe(sub)

	cmd := waitLogout(context.Background(), sub)
	f.store.NotifyLogout()
	assert.Equal(t, MsgLoggedOut{}, cmd())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Nil(t, waitLogout(ctx, sub)())
	assert.Nil(t, waitLogout(ctx, nil))
}

func TestBoardModel_ComposeAndPost(t *testing.T) {
	f := newFixture(t, 1)
	f.srv.AddAccount("a@b.com", "alice", "x")
	resp, err := f.client.Login(context.Background(), api.LoginRequest{Email: "a@b.com", Password: "x"})
	require.NoError(t, err)
	require.NoError(t, f.store.SaveCredential(resp.Token, "", 0))

	b := board.New(1, f.client, board.Options{})
	defer b.Close()
	m := NewBoardModel(context.Background(), b, nil, true)
	run(t, m, m.load())
	assert.Contains(t, m.render(), "No comments yet")

	m.Update(key("c"))
	require.True(t, m.composing)
	m.input.SetValue("hello there")

	_, cmd := m.Update(key("enter"))
	assert.False(t, m.composing)
	run(t, m, cmd)

	view := m.render()
	assert.Contains(t, view, "hello there")
	assert.Contains(t, view, "Comment posted")
}

func TestBoardModel_PostFailureShown(t *testing.T) {
	f := newFixture(t, 1)
	b := board.New(1, f.client, board.Options{})
	defer b.Close()
	m := NewBoardModel(context.Background(), b, nil, true)
	run(t, m, m.load())

	m.Update(key("c"))
	m.input.SetValue("anonymous")
	_, cmd := m.Update(key("enter"))
	run(t, m, cmd)

	assert.Contains(t, m.render(), "Posting failed")
}

func TestBoardModel_FailedLoad(t *testing.T) {
	f := newFixture(t, 1)
	f.srv.Fail("/api/movies/detail", http.StatusNotFound)
	b := board.New(1, f.client, board.Options{})
	defer b.Close()
	m := NewBoardModel(context.Background(), b, nil, true)
	run(t, m, m.load())

	assert.Contains(t, m.render(), "Could not load board")

	_, cmd := m.Update(key("c"))
	assert.Nil(t, cmd, "cannot compose on a failed board")
	assert.False(t, m.composing)

	f.srv.Fail("/api/movies/detail", 0)
	_, cmd = m.Update(key("r"))
	run(t, m, cmd)
	assert.Contains(t, m.render(), "Movie 1")
}

func TestBoardModel_EscQuitsWhenStandalone(t *testing.T) {
	f := newFixture(t, 1)
	b := board.New(1, f.client, board.Options{})
	defer b.Close()
	m := NewBoardModel(context.Background(), b, nil, true)

	_, cmd := m.Update(key("esc"))
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestModel_StatusFlow(t *testing.T) {
	var m tea.Model = NewModel()
	m, _ = m.Update(MsgWorking{Action: "Logging in"})
	assert.Contains(t, m.(Model).render(), "Logging in...")

	m, _ = m.Update(MsgLoggedIn{User: api.User{UserName: "alice", Email: "a@b.com"}})
	view := m.(Model).render()
	assert.NotContains(t, view, "Logging in...")
	assert.Contains(t, view, "Logged in as alice <a@b.com>")

	m, _ = m.Update(MsgFatal{Err: errors.New("boom")})
	assert.Contains(t, m.(Model).render(), "boom")

	m, _ = m.Update(MsgLoggedOut{})
	assert.Contains(t, m.(Model).render(), "Session expired")
}

func TestPlainDisplayer(t *testing.T) {
	var buf bytes.Buffer
	d := NewPlainDisplayer(&buf)

	d.Movies([]api.Movie{{ID: 603, Title: "The Matrix", ReleaseDate: "1999-03-31"}}, 1, 5)
	d.Board(api.MovieDetail{Title: "The Matrix", ReleaseDate: "1999-03-31"}, nil, false)
	d.SessionExpired()

	out := buf.String()
	assert.Contains(t, out, "603")
	assert.Contains(t, out, "1999  The Matrix")
	assert.Contains(t, out, "page 1 of 5")
	assert.Contains(t, out, "The Matrix (1999)")
	assert.Contains(t, out, "No comments yet")
	assert.Contains(t, out, "cinesync login")
}

func TestPlainDisplayer_Banner(t *testing.T) {
	var buf bytes.Buffer
	NewPlainDisplayer(&buf).Banner()
	assert.NotEmpty(t, buf.String())
}

var _ Displayer = NoopDisplayer{}
var _ Displayer = (*ProgramDisplayer)(nil)

package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/term"

	"github.com/cinesync/cli/api"
	"github.com/cinesync/cli/board"
	"github.com/cinesync/cli/paging"
	"github.com/cinesync/cli/session"
	"github.com/cinesync/cli/token"
	"github.com/cinesync/cli/tui"
)

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

var (
	errNotLoggedIn = errors.New("not logged in, run `cinesync login <email>` first")
	errUsage       = errors.New("invalid arguments")
)

// app carries everything the commands need.
type app struct {
	cfg     *config
	store   *token.Store
	client  *api.Client
	session *session.Manager
	logger  zerolog.Logger

	stdin     *bufio.Reader
	stdinFd   int
	stdinTTY  bool
	promptOut io.Writer
}

// runner executes a prepared command, reporting through d.
type runner func(ctx context.Context, d tui.Displayer) error

// prepare validates arguments and collects interactive input (passwords)
// before any UI starts.
func (a *app) prepare(command string, args []string) (runner, error) {
	switch command {
	case "login":
		if len(args) != 1 {
			return nil, fmt.Errorf("%w: login <email>", errUsage)
		}
		email := args[0]
		password, err := a.promptPassword("Password: ")
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context, d tui.Displayer) error {
			d.Working("Logging in")
			u, err := a.session.Login(ctx, email, password)
			if err != nil {
				return err
			}
			d.LoggedIn(*u)
			return nil
		}, nil

	case "register":
		if len(args) != 2 {
			return nil, fmt.Errorf("%w: register <email> <username>", errUsage)
		}
		email, userName := args[0], args[1]
		password, err := a.promptPassword("Choose a password: ")
		if err != nil {
			return nil, err
		}
		confirm, err := a.promptPassword("Repeat password: ")
		if err != nil {
			return nil, err
		}
		if password != confirm {
			return nil, errors.New("passwords do not match")
		}
		return func(ctx context.Context, d tui.Displayer) error {
			d.Working("Creating account")
			u, err := a.session.Register(ctx, email, userName, password)
			if err != nil {
				return err
			}
			d.Registered(*u)
			return nil
		}, nil

	case "logout":
		return func(_ context.Context, d tui.Displayer) error {
			if err := a.session.Logout(); err != nil {
				return err
			}
			d.SignedOut()
			return nil
		}, nil

	case "whoami":
		return func(ctx context.Context, d tui.Displayer) error {
			if !a.session.LoggedIn() {
				return errNotLoggedIn
			}
			d.Working("Fetching profile")
			u, err := a.session.Whoami(ctx)
			if err != nil {
				return err
			}
			d.Whoami(*u)
			return nil
		}, nil

	case "movies":
		fs := flag.NewFlagSet("movies", flag.ContinueOnError)
		fs.SetOutput(a.promptOut)
		pages := fs.Int("pages", 1, "number of pages to list")
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		if *pages < 1 {
			return nil, fmt.Errorf("%w: -pages must be at least 1", errUsage)
		}
		return func(ctx context.Context, d tui.Displayer) error {
			return a.listMovies(ctx, d, *pages)
		}, nil

	case "board":
		movieID, err := parseMovieID(args, 1, "board <movieID>")
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context, d tui.Displayer) error {
			b := a.newBoard(movieID)
			defer b.Close()
			d.Working("Loading board")
			if err := b.Load(ctx); err != nil {
				return err
			}
			st := b.Snapshot()
			d.Board(*st.Detail, st.Comments.Items, st.Comments.HasMore())
			return nil
		}, nil

	case "comment":
		movieID, err := parseMovieID(args, 2, "comment <movieID> <text>")
		if err != nil {
			return nil, err
		}
		content := strings.Join(args[1:], " ")
		return func(ctx context.Context, d tui.Displayer) error {
			if !a.session.LoggedIn() {
				return errNotLoggedIn
			}
			b := a.newBoard(movieID)
			defer b.Close()
			d.Working("Posting comment")
			c, err := b.PostComment(ctx, content)
			if err != nil {
				return err
			}
			d.CommentPosted(*c)
			return nil
		}, nil
	}

	return nil, fmt.Errorf("%w: unknown command %q", errUsage, command)
}

func (a *app) listMovies(ctx context.Context, d tui.Displayer, pages int) error {
	ctrl := a.newMoviesController()
	defer ctrl.Close()
	d.Working("Loading popular movies")
	for range pages {
		fetched, err := ctrl.LoadNextPage(ctx)
		if err != nil {
			return err
		}
		if !fetched {
			break
		}
	}
	st := ctrl.Snapshot()
	d.Movies(st.Items, st.CurrentPage, st.TotalPages)
	return nil
}

func (a *app) newMoviesController() *paging.Controller[int64, api.Movie] {
	client, language := a.client, a.cfg.Language
	return paging.NewController[int64, api.Movie](
		func(ctx context.Context, page int) (paging.Page[api.Movie], error) {
			p, err := client.PopularMovies(ctx, page, language)
			if err != nil {
				return paging.Page[api.Movie]{}, err
			}
			return paging.Page[api.Movie]{
				Items:      p.Results,
				Number:     p.Page,
				TotalPages: p.TotalPages,
			}, nil
		},
		paging.WithFirstPage(1),
	)
}

func (a *app) newBoard(movieID int64) *board.Board {
	return board.New(movieID, a.client, board.Options{
		Language: a.cfg.Language,
		Logger:   a.logger,
	})
}

// promptPassword reads a password without echo from a terminal, or one line
// from stdin otherwise so the CLI can be scripted.
func (a *app) promptPassword(prompt string) (string, error) {
	if a.stdinTTY {
		fmt.Fprint(a.promptOut, prompt)
		pw, err := readPassword(a.stdinFd)
		fmt.Fprintln(a.promptOut)
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return string(pw), nil
	}
	line, err := a.stdin.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func parseMovieID(args []string, minArgs int, use string) (int64, error) {
	if len(args) < minArgs {
		return 0, fmt.Errorf("%w: %s", errUsage, use)
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: movie id must be a positive number, got %q", errUsage, args[0])
	}
	return id, nil
}

// report shows err to the user the way its kind deserves.
func report(d tui.Displayer, err error) {
	if api.IsUnauthorized(err) {
		d.SessionExpired()
		return
	}
	d.Fatal(err)
}

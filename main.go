package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	tea "charm.land/bubbletea/v2"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"golang.org/x/term"

	"github.com/cinesync/cli/api"
	"github.com/cinesync/cli/session"
	"github.com/cinesync/cli/token"
	"github.com/cinesync/cli/transport"
	"github.com/cinesync/cli/tui"
)

func main() {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()
	os.Exit(run(os.Args[1:]))
}

// isTTY reports whether stderr is a character device (interactive terminal).
// We check stderr because the TUI renders to stderr, allowing stdout to be piped.
func isTTY() bool {
	fi, err := os.Stderr.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}

func run(args []string) int {
	cfg, err := parseConfig(args, os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	tty := isTTY()
	logger, closer, err := newLogger(cfg, tty, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer closer.Close()

	if isPlainHTTP(cfg.ServerURL) {
		fmt.Fprintln(
			os.Stderr,
			"⚠️  WARNING: Using HTTP instead of HTTPS. Tokens will be transmitted in plaintext!",
		)
	}
	if cfg.storeKeyDerived {
		logger.Warn().Msg("STORE_KEY not set, using a key derived from host and user name")
	}

	a, err := newApp(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	if tty && interactive(cfg) {
		if err := runInteractive(a, cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		return 0
	}

	cmd, err := a.prepare(cfg.Command, cfg.Args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if tty {
		return runWithProgram(ctx, cmd)
	}
	d := tui.NewPlainDisplayer(os.Stdout)
	if cfg.Command == "login" || cfg.Command == "register" {
		d.Banner()
	}
	if err := cmd(ctx, d); err != nil {
		report(d, err)
		logger.Debug().Err(err).Str("command", cfg.Command).Msg("command failed")
		return 1
	}
	return 0
}

func newApp(cfg *config, logger zerolog.Logger) (*app, error) {
	store := token.NewStore(token.WithLogger(logger))
	backend, err := token.NewFileBackend(cfg.TokenFile, []byte(cfg.StoreKey))
	if err != nil {
		return nil, fmt.Errorf("failed to open credential store: %w", err)
	}
	if err := store.Init(backend); err != nil {
		return nil, err
	}

	retryClient, err := transport.NewRetryClient(transport.NewBaseClient())
	if err != nil {
		return nil, err
	}
	client := api.NewClient(cfg.ServerURL, transport.New(store, retryClient, logger), logger)

	stdinFd := int(os.Stdin.Fd())
	return &app{
		cfg:       cfg,
		store:     store,
		client:    client,
		session:   session.New(client, store, logger),
		logger:    logger,
		stdin:     bufio.NewReader(os.Stdin),
		stdinFd:   stdinFd,
		stdinTTY:  term.IsTerminal(stdinFd),
		promptOut: os.Stderr,
	}, nil
}

// interactive reports whether the command has a full-screen view.
func interactive(cfg *config) bool {
	switch cfg.Command {
	case "movies":
		return len(cfg.Args) == 0
	case "board":
		return len(cfg.Args) == 1
	}
	return false
}

func runInteractive(a *app, cfg *config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub := a.store.Subscribe()
	defer a.store.Unsubscribe(sub)

	var model tea.Model
	switch cfg.Command {
	case "movies":
		ctrl := a.newMoviesController()
		defer ctrl.Close()
		model = tui.NewMoviesModel(ctx, ctrl, a.newBoard, sub)
	default:
		movieID, err := parseMovieID(cfg.Args, 1, "board <movieID>")
		if err != nil {
			return err
		}
		b := a.newBoard(movieID)
		defer b.Close()
		model = tui.NewBoardModel(ctx, b, sub, true)
	}

	p := tea.NewProgram(model, tea.WithOutput(os.Stderr))
	_, err := p.Run()
	return err
}

// runWithProgram shows a one-shot command's progress in the status TUI.
func runWithProgram(ctx context.Context, cmd runner) int {
	// WithInput(nil): disable stdin/keyboard input so BubbleTea skips terminal
	// capability queries. Ctrl+C is handled by signal.NotifyContext.
	p := tea.NewProgram(tui.NewModel(), tea.WithOutput(os.Stderr), tea.WithInput(nil))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if _, err := p.Run(); err != nil {
			fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
		}
	}()

	d := tui.NewProgramDisplayer(p)
	d.Banner()
	runErr := cmd(ctx, d)
	if runErr != nil {
		report(d, runErr)
	}
	p.Quit() // let BubbleTea drain terminal query responses before exiting
	wg.Wait()

	if runErr != nil {
		return 1
	}
	return 0
}

package tui

import (
	"fmt"
	"io"
	"strings"

	tea "charm.land/bubbletea/v2"
	"github.com/common-nighthawk/go-figure"

	"github.com/cinesync/cli/api"
)

// AppName is shown in the banner.
const AppName = "CineSync"

// Displayer abstracts all output from one-shot commands.
type Displayer interface {
	Banner()
	Working(action string)
	LoggedIn(u api.User)
	Registered(u api.User)
	SignedOut()
	Whoami(u api.User)
	Movies(movies []api.Movie, pages, totalPages int)
	Board(detail api.MovieDetail, comments []api.Comment, hasMore bool)
	CommentPosted(c api.Comment)
	SessionExpired()
	Fatal(err error)
}

// PlainDisplayer writes plain text output to w.
// Used when stderr is not a TTY (pipes, CI, SSH without pty).
type PlainDisplayer struct {
	w io.Writer
}

// NewPlainDisplayer creates a PlainDisplayer that writes to w.
func NewPlainDisplayer(w io.Writer) *PlainDisplayer {
	return &PlainDisplayer{w: w}
}

func (p *PlainDisplayer) Banner() {
	fmt.Fprint(p.w, figure.NewFigure(AppName, "cybermedium", true).String())
	fmt.Fprintln(p.w)
}

func (p *PlainDisplayer) Working(action string) {
	fmt.Fprintf(p.w, "%s...\n", action)
}

func (p *PlainDisplayer) LoggedIn(u api.User) {
	fmt.Fprintf(p.w, "Logged in as %s <%s>\n", u.UserName, u.Email)
}

func (p *PlainDisplayer) Registered(u api.User) {
	fmt.Fprintf(p.w, "Account created for %s <%s>, you are logged in\n", u.UserName, u.Email)
}

func (p *PlainDisplayer) SignedOut() {
	fmt.Fprintln(p.w, "Logged out")
}

func (p *PlainDisplayer) Whoami(u api.User) {
	fmt.Fprintf(p.w, "%s <%s> (%s)\n", u.UserName, u.Email, u.Role)
}

func (p *PlainDisplayer) Movies(movies []api.Movie, pages, totalPages int) {
	for _, m := range movies {
		fmt.Fprintln(p.w, formatMovie(m))
	}
	fmt.Fprintf(p.w, "-- %d movies, page %d of %d --\n", len(movies), pages, totalPages)
}

func (p *PlainDisplayer) Board(detail api.MovieDetail, comments []api.Comment, hasMore bool) {
	fmt.Fprintln(p.w, formatDetailHeader(detail))
	if detail.Overview != "" {
		fmt.Fprintln(p.w, detail.Overview)
	}
	fmt.Fprintln(p.w, strings.Repeat("-", 40))
	if len(comments) == 0 {
		fmt.Fprintln(p.w, "No comments yet")
	}
	for _, c := range comments {
		fmt.Fprintln(p.w, formatComment(c))
	}
	if hasMore {
		fmt.Fprintln(p.w, "(more comments available)")
	}
}

func (p *PlainDisplayer) CommentPosted(c api.Comment) {
	fmt.Fprintf(p.w, "Comment #%d posted\n", c.ID)
}

func (p *PlainDisplayer) SessionExpired() {
	fmt.Fprintln(p.w, "Session expired, run `cinesync login` to sign in again")
}

func (p *PlainDisplayer) Fatal(err error) {
	fmt.Fprintf(p.w, "Error: %v\n", err)
}

// NoopDisplayer is a no-op implementation used in tests.
type NoopDisplayer struct{}

func (NoopDisplayer) Banner()                                    {}
func (NoopDisplayer) Working(string)                             {}
func (NoopDisplayer) LoggedIn(api.User)                          {}
func (NoopDisplayer) Registered(api.User)                        {}
func (NoopDisplayer) SignedOut()                                 {}
func (NoopDisplayer) Whoami(api.User)                            {}
func (NoopDisplayer) Movies([]api.Movie, int, int)               {}
func (NoopDisplayer) Board(api.MovieDetail, []api.Comment, bool) {}
func (NoopDisplayer) CommentPosted(api.Comment)                  {}
func (NoopDisplayer) SessionExpired()                            {}
func (NoopDisplayer) Fatal(error)                                {}

// ProgramDisplayer sends BubbleTea messages to a running tea.Program.
type ProgramDisplayer struct {
	p *tea.Program
}

// NewProgramDisplayer creates a ProgramDisplayer that sends messages to p.
func NewProgramDisplayer(p *tea.Program) *ProgramDisplayer {
	return &ProgramDisplayer{p: p}
}

func (t *ProgramDisplayer) Banner() {
	t.p.Send(MsgBanner{})
}

func (t *ProgramDisplayer) Working(action string) {
	t.p.Send(MsgWorking{Action: action})
}

func (t *ProgramDisplayer) LoggedIn(u api.User) {
	t.p.Send(MsgLoggedIn{User: u})
}

func (t *ProgramDisplayer) Registered(u api.User) {
	t.p.Send(MsgRegistered{User: u})
}

func (t *ProgramDisplayer) SignedOut() {
	t.p.Send(MsgSignedOut{})
}

func (t *ProgramDisplayer) Whoami(u api.User) {
	t.p.Send(MsgWhoami{User: u})
}

func (t *ProgramDisplayer) Movies(movies []api.Movie, pages, totalPages int) {
	t.p.Send(MsgMovies{Movies: movies, Pages: pages, TotalPages: totalPages})
}

func (t *ProgramDisplayer) Board(detail api.MovieDetail, comments []api.Comment, hasMore bool) {
	t.p.Send(MsgBoard{Detail: detail, Comments: comments, HasMore: hasMore})
}

func (t *ProgramDisplayer) CommentPosted(c api.Comment) {
	t.p.Send(MsgCommentPosted{Comment: c})
}

func (t *ProgramDisplayer) SessionExpired() {
	t.p.Send(MsgLoggedOut{})
}

func (t *ProgramDisplayer) Fatal(err error) {
	t.p.Send(MsgFatal{Err: err})
}

func formatMovie(m api.Movie) string {
	year := m.Year()
	if year == "" {
		year = "----"
	}
	return fmt.Sprintf("%-8d %s  %s", m.ID, year, m.Title)
}

func formatDetailHeader(d api.MovieDetail) string {
	var b strings.Builder
	b.WriteString(d.Title)
	if len(d.ReleaseDate) >= 4 {
		b.WriteString(" (" + d.ReleaseDate[:4] + ")")
	}
	if g := d.GenreNames(); g != "" {
		b.WriteString("  " + g)
	}
	return b.String()
}

func formatComment(c api.Comment) string {
	when := ""
	if c.CreatedAt != nil && !c.CreatedAt.IsZero() {
		when = " " + c.CreatedAt.Format("2006-01-02 15:04")
	}
	return fmt.Sprintf("[%s%s] %s", c.UserName, when, c.Content)
}

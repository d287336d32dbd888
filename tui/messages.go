package tui

import (
	"github.com/cinesync/cli/api"
)

// MsgBanner signals that the banner/title should be displayed.
type MsgBanner struct{}

// MsgWorking signals that a backend call has started.
type MsgWorking struct{ Action string }

// MsgLoggedIn signals a successful login.
type MsgLoggedIn struct{ User api.User }

// MsgRegistered signals a successful registration.
type MsgRegistered struct{ User api.User }

// MsgSignedOut signals that the user logged out on request.
type MsgSignedOut struct{}

// MsgWhoami carries the current user.
type MsgWhoami struct{ User api.User }

// MsgMovies carries one rendered slice of the popular listing.
type MsgMovies struct {
	Movies     []api.Movie
	Pages      int
	TotalPages int
}

// MsgBoard carries a loaded movie board.
type MsgBoard struct {
	Detail   api.MovieDetail
	Comments []api.Comment
	HasMore  bool
}

// MsgCommentPosted signals that a comment was published.
type MsgCommentPosted struct{ Comment api.Comment }

// MsgLoggedOut signals that the session was invalidated, either by the
// backend rejecting the token or by an explicit logout elsewhere.
type MsgLoggedOut struct{}

// MsgFatal signals a fatal error that should terminate the command.
type MsgFatal struct{ Err error }

// Internal messages of the interactive views.
type (
	moviesFetchedMsg struct{ err error }
	boardLoadedMsg   struct{ err error }
	commentsMoreMsg  struct{ err error }
	commentSentMsg   struct {
		comment *api.Comment
		err     error
	}
	backMsg struct{}
)

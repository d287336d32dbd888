// Package transport holds the http.RoundTripper chain used for every call to
// the CineSync backend.
package transport

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

// maxDrainBytes bounds how much of a rejected body is read before closing so
// the connection can be reused.
const maxDrainBytes = 4 << 10

// ErrUnauthorized is matched by every *UnauthorizedError via errors.Is.
var ErrUnauthorized = errors.New("unauthorized: token expired or invalid")

// UnauthorizedError reports that the backend rejected the stored credential.
// The credential has already been cleared and logout published.
type UnauthorizedError struct {
	Method string
	URL    string
}

func (e *UnauthorizedError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Method, e.URL, ErrUnauthorized)
}

func (e *UnauthorizedError) Is(target error) bool {
	return target == ErrUnauthorized
}

// Credentials is the part of the token store the auth transport needs.
type Credentials interface {
	OAuth2Token() *oauth2.Token
	ClearToken() error
	NotifyLogout()
}

// Auth attaches the stored bearer token to each request and invalidates the
// session when the backend answers 401 to an authenticated request.
type Auth struct {
	Store  Credentials
	Next   http.RoundTripper
	Logger zerolog.Logger
}

func (a *Auth) next() http.RoundTripper {
	if a.Next != nil {
		return a.Next
	}
	return http.DefaultTransport
}

// RoundTrip implements http.RoundTripper.
func (a *Auth) RoundTrip(req *http.Request) (*http.Response, error) {
	tok := a.Store.OAuth2Token()
	if tok != nil {
		// RoundTrippers must not modify the caller's request.
		req = req.Clone(req.Context())
		tok.SetAuthHeader(req)
	}

	resp, err := a.next().RoundTrip(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusUnauthorized || tok == nil {
		return resp, nil
	}

	_, _ = io.CopyN(io.Discard, resp.Body, maxDrainBytes)
	resp.Body.Close()

	if err := a.Store.ClearToken(); err != nil {
		a.Logger.Error().Err(err).Msg("failed to clear rejected token")
	}
	a.Store.NotifyLogout()
	a.Logger.Warn().
		Str("method", req.Method).
		Str("path", req.URL.Path).
		Msg("access token rejected, session cleared")

	return nil, &UnauthorizedError{Method: req.Method, URL: req.URL.Redacted()}
}

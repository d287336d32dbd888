// Package api is a typed client for the CineSync REST backend.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/cinesync/cli/transport"
)

// Defaults matching the backend's own.
const (
	DefaultLanguage        = "en-US"
	DefaultCommentPageSize = 5
)

// maxErrorBody bounds how much of an error response is kept.
const maxErrorBody = 64 << 10

// Client talks to one backend. It is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewClient returns a client for baseURL. httpClient should carry the
// transport chain from package transport.
func NewClient(baseURL string, httpClient *http.Client, logger zerolog.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
	}
}

// Login exchanges credentials for a token.
func (c *Client) Login(ctx context.Context, in LoginRequest) (*AuthResponse, error) {
	var out AuthResponse
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", nil, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Register creates an account and returns a token for it.
func (c *Client) Register(ctx context.Context, in RegisterRequest) (*AuthResponse, error) {
	var out AuthResponse
	if err := c.do(ctx, http.MethodPost, "/api/auth/register", nil, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Me returns the logged-in user.
func (c *Client) Me(ctx context.Context) (*User, error) {
	var out User
	if err := c.do(ctx, http.MethodGet, "/api/users/me", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PopularMovies returns one 1-based page of popular movies.
func (c *Client) PopularMovies(ctx context.Context, page int, language string) (*MoviePage, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("language", languageOrDefault(language))

	var out MoviePage
	if err := c.do(ctx, http.MethodGet, "/api/movies/popular", q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// MovieDetail returns the details of one movie.
func (c *Client) MovieDetail(ctx context.Context, movieID int64, language string) (*MovieDetail, error) {
	q := url.Values{}
	q.Set("language", languageOrDefault(language))

	var out MovieDetail
	path := "/api/movies/detail/" + strconv.FormatInt(movieID, 10)
	if err := c.do(ctx, http.MethodGet, path, q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateComment posts a comment as the logged-in user.
func (c *Client) CreateComment(ctx context.Context, in CommentRequest) (*Comment, error) {
	var out Comment
	if err := c.do(ctx, http.MethodPost, "/api/comments", nil, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Comments returns one 0-based page of a movie's comments.
func (c *Client) Comments(ctx context.Context, movieID string, page, pageSize int) (*CommentPage, error) {
	if pageSize <= 0 {
		pageSize = DefaultCommentPageSize
	}
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("pageSize", strconv.Itoa(pageSize))

	var out CommentPage
	path := "/api/comments/movie/" + url.PathEscape(movieID)
	if err := c.do(ctx, http.MethodGet, path, q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func languageOrDefault(language string) string {
	if language == "" {
		return DefaultLanguage
	}
	return language
}

// do sends one request and decodes a 2xx JSON answer into out.
func (c *Client) do(
	ctx context.Context,
	method, path string,
	query url.Values,
	in, out any,
) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		var unauthorized *transport.UnauthorizedError
		if errors.As(err, &unauthorized) {
			return unauthorized
		}
		return &NetworkError{Op: method + " " + path, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		apiErr := newAPIError(resp.StatusCode, data)
		c.logger.Debug().
			Int("status", resp.StatusCode).
			Str("path", path).
			Str("message", apiErr.Message).
			Msg("backend error")
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &NetworkError{Op: "decode " + path, Err: err}
	}
	return nil
}

// Package board drives one movie's message board: the movie detail and its
// paged comments, plus posting new comments.
package board

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/cinesync/cli/api"
	"github.com/cinesync/cli/paging"
)

// ErrEmptyComment is returned by PostComment for blank content.
var ErrEmptyComment = errors.New("comment content is empty")

// Backend is the subset of api.Client the board uses.
type Backend interface {
	MovieDetail(ctx context.Context, movieID int64, language string) (*api.MovieDetail, error)
	Comments(ctx context.Context, movieID string, page, pageSize int) (*api.CommentPage, error)
	CreateComment(ctx context.Context, in api.CommentRequest) (*api.Comment, error)
}

// Phase of the whole board.
type Phase int

const (
	PhaseLoading Phase = iota
	PhaseReady
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseLoading:
		return "loading"
	case PhaseReady:
		return "ready"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// PostPhase tracks the latest PostComment call.
type PostPhase int

const (
	PostIdle PostPhase = iota
	PostPending
	PostDone
	PostFailed
)

// PostState is the outcome of the latest PostComment call.
type PostState struct {
	Phase   PostPhase
	Comment *api.Comment
	Err     error
}

// State is a point-in-time copy of the board.
type State struct {
	Phase    Phase
	Detail   *api.MovieDetail
	Comments paging.State[api.Comment]
	Err      error
	Post     PostState
}

// Options configures a Board.
type Options struct {
	Language string
	PageSize int
	Logger   zerolog.Logger
}

// Board is safe for concurrent use.
type Board struct {
	movieID  int64
	backend  Backend
	language string
	logger   zerolog.Logger
	comments *paging.Controller[int64, api.Comment]

	mu     sync.Mutex
	phase  Phase
	detail *api.MovieDetail
	err    error
	post   PostState
}

// New returns a board in PhaseLoading. Call Load to fetch it.
func New(movieID int64, backend Backend, opts Options) *Board {
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = api.DefaultCommentPageSize
	}
	b := &Board{
		movieID:  movieID,
		backend:  backend,
		language: opts.Language,
		logger:   opts.Logger.With().Int64("movie_id", movieID).Logger(),
	}
	key := strconv.FormatInt(movieID, 10)
	b.comments = paging.NewController[int64, api.Comment](
		func(ctx context.Context, page int) (paging.Page[api.Comment], error) {
			p, err := backend.Comments(ctx, key, page, pageSize)
			if err != nil {
				return paging.Page[api.Comment]{}, err
			}
			return paging.Page[api.Comment]{
				Items:      p.Content,
				Number:     p.Number,
				TotalPages: p.TotalPages,
			}, nil
		},
		paging.WithFirstPage(0),
	)
	return b
}

// MovieID returns the movie this board belongs to.
func (b *Board) MovieID() int64 {
	return b.movieID
}

// Load fetches the movie detail and the first comment page concurrently.
// The board is Ready only when both succeed; otherwise it is Failed with the
// first error. Comments loaded before the call are discarded.
func (b *Board) Load(ctx context.Context) error {
	b.comments.Reset()
	b.mu.Lock()
	b.phase = PhaseLoading
	b.err = nil
	b.mu.Unlock()

	var detail *api.MovieDetail
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		d, err := b.backend.MovieDetail(gctx, b.movieID, b.language)
		if err != nil {
			return err
		}
		detail = d
		return nil
	})
	g.Go(func() error {
		_, err := b.comments.LoadNextPage(gctx)
		return err
	})
	err := g.Wait()

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.phase = PhaseFailed
		b.err = err
		b.logger.Warn().Err(err).Msg("board load failed")
		return err
	}
	b.phase = PhaseReady
	b.detail = detail
	return nil
}

// LoadMoreComments fetches the next comment page. It is a no-op unless the
// board is Ready.
func (b *Board) LoadMoreComments(ctx context.Context) (bool, error) {
	b.mu.Lock()
	ready := b.phase == PhaseReady
	b.mu.Unlock()
	if !ready {
		return false, nil
	}
	fetched, err := b.comments.LoadNextPage(ctx)
	if err != nil {
		b.logger.Warn().Err(err).Msg("loading more comments failed")
	}
	return fetched, err
}

// Refresh discards the detail and all comments and loads both again.
func (b *Board) Refresh(ctx context.Context) error {
	b.mu.Lock()
	b.detail = nil
	b.mu.Unlock()
	return b.Load(ctx)
}

// PostComment publishes content and, on success, refreshes the board so the
// new comment shows.
func (b *Board) PostComment(ctx context.Context, content string) (*api.Comment, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		b.setPost(PostState{Phase: PostFailed, Err: ErrEmptyComment})
		return nil, ErrEmptyComment
	}

	b.setPost(PostState{Phase: PostPending})
	c, err := b.backend.CreateComment(ctx, api.CommentRequest{
		MovieID: strconv.FormatInt(b.movieID, 10),
		Content: content,
	})
	if err != nil {
		b.setPost(PostState{Phase: PostFailed, Err: err})
		return nil, err
	}
	b.setPost(PostState{Phase: PostDone, Comment: c})

	if err := b.Refresh(ctx); err != nil {
		// posted fine; the board itself shows the refresh failure
		b.logger.Warn().Err(err).Msg("refresh after posting failed")
	}
	return c, nil
}

func (b *Board) setPost(p PostState) {
	b.mu.Lock()
	b.post = p
	b.mu.Unlock()
}

// Snapshot returns a copy of the board state.
func (b *Board) Snapshot() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return State{
		Phase:    b.phase,
		Detail:   b.detail,
		Comments: b.comments.Snapshot(),
		Err:      b.err,
		Post:     b.post,
	}
}

// Close cancels in-flight comment fetches; late results are dropped.
func (b *Board) Close() {
	b.comments.Close()
}

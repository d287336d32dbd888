// Package paging accumulates page-by-page listings into one de-duplicated
// collection and tracks the state of the fetch that feeds it.
package paging

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by operations on a closed controller.
var ErrClosed = errors.New("paging: controller closed")

// Identifiable items are de-duplicated by Key.
type Identifiable[K comparable] interface {
	Key() K
}

// Page is one backend page. Number is in the backend's own numbering
// (see WithFirstPage).
type Page[T any] struct {
	Items      []T
	Number     int
	TotalPages int
}

// FetchFunc loads the page with the given backend page number.
type FetchFunc[T any] func(ctx context.Context, page int) (Page[T], error)

// Merge appends incoming to existing, dropping any incoming item whose key
// is already present. The first occurrence wins; accepted items keep their
// order. existing is not modified.
func Merge[K comparable, T Identifiable[K]](existing, incoming []T) []T {
	seen := make(map[K]struct{}, len(existing)+len(incoming))
	out := make([]T, 0, len(existing)+len(incoming))
	for _, it := range existing {
		seen[it.Key()] = struct{}{}
		out = append(out, it)
	}
	for _, it := range incoming {
		k := it.Key()
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, it)
	}
	return out
}

// Phase is the controller's position in its state machine.
type Phase int

const (
	PhaseInitial Phase = iota
	PhaseFetchingFirstPage
	PhaseReady
	PhaseFailedFirstPage
	PhaseFetchingNextPage
	PhaseReadyWithTrailingError
)

func (p Phase) String() string {
	switch p {
	case PhaseInitial:
		return "initial"
	case PhaseFetchingFirstPage:
		return "fetching-first-page"
	case PhaseReady:
		return "ready"
	case PhaseFailedFirstPage:
		return "failed-first-page"
	case PhaseFetchingNextPage:
		return "fetching-next-page"
	case PhaseReadyWithTrailingError:
		return "ready-with-trailing-error"
	default:
		return "unknown"
	}
}

// Outcome is the state of the latest fetch.
type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomePending
	OutcomeOK
	OutcomeFailed
)

// State is a point-in-time copy of a controller.
type State[T any] struct {
	Phase       Phase
	Items       []T
	CurrentPage int // pages loaded so far
	TotalPages  int
	InFlight    bool
	Outcome     Outcome
	Err         error // reason of the latest failed fetch
}

// HasMore reports whether another page can be requested.
func (s State[T]) HasMore() bool {
	return s.CurrentPage < s.TotalPages
}

// Controller drives sequential page fetches for one listing. It is safe for
// concurrent use; at most one fetch is in flight at any time.
type Controller[K comparable, T Identifiable[K]] struct {
	fetch     FetchFunc[T]
	firstPage int

	mu          sync.Mutex
	items       []T
	currentPage int
	totalPages  int
	inFlight    bool
	outcome     Outcome
	err         error
	gen         uint64
	cancel      context.CancelFunc
	closed      bool
}

// Option configures a Controller.
type Option func(*options)

type options struct {
	firstPage int
}

// WithFirstPage sets the backend number of the first page: 1 for 1-based
// listings (the default), 0 for 0-based ones.
func WithFirstPage(n int) Option {
	return func(o *options) { o.firstPage = n }
}

// NewController returns a controller in PhaseInitial. No fetch is issued
// until LoadNextPage is called.
func NewController[K comparable, T Identifiable[K]](fetch FetchFunc[T], opts ...Option) *Controller[K, T] {
	o := options{firstPage: 1}
	for _, opt := range opts {
		opt(&o)
	}
	return &Controller[K, T]{
		fetch:      fetch,
		firstPage:  o.firstPage,
		totalPages: 1, // unknown until the first page arrives; allows one fetch
	}
}

// LoadNextPage fetches the page after the last one loaded and merges it.
// It reports false without fetching when a fetch is already in flight or
// every page has been loaded. On failure the collection is left as it was,
// so calling again retries the same page.
func (c *Controller[K, T]) LoadNextPage(ctx context.Context) (bool, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false, ErrClosed
	}
	if c.inFlight || c.currentPage >= c.totalPages {
		c.mu.Unlock()
		return false, nil
	}
	fetchCtx, gen, page := c.beginLocked(ctx)
	c.mu.Unlock()

	return c.complete(ctx, fetchCtx, gen, page)
}

// beginLocked marks a fetch of the next page in flight and returns what
// complete needs to finish it.
func (c *Controller[K, T]) beginLocked(ctx context.Context) (context.Context, uint64, int) {
	c.inFlight = true
	c.outcome = OutcomePending
	fetchCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	return fetchCtx, c.gen, c.firstPage + c.currentPage
}

// complete runs the fetch reserved by beginLocked and applies its result
// unless the controller moved to a newer generation meanwhile.
func (c *Controller[K, T]) complete(ctx, fetchCtx context.Context, gen uint64, page int) (bool, error) {
	result, err := c.fetch(fetchCtx, page)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.gen != gen {
		// refreshed or closed while fetching; the new generation owns the state
		return false, context.Canceled
	}
	c.cancel()
	c.inFlight = false
	c.cancel = nil

	if err == nil && ctx.Err() != nil {
		// caller gave up; do not apply a result nobody is waiting for
		err = ctx.Err()
	}
	if err != nil {
		c.outcome = OutcomeFailed
		c.err = err
		return true, err
	}

	c.items = Merge[K](c.items, result.Items)
	c.currentPage = max(result.Number-c.firstPage+1, c.currentPage+1)
	c.totalPages = max(result.TotalPages, c.currentPage)
	c.outcome = OutcomeOK
	c.err = nil
	return true, nil
}

// Refresh discards everything loaded so far, abandons any in-flight fetch
// and loads the first page again.
func (c *Controller[K, T]) Refresh(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.resetLocked()
	fetchCtx, gen, page := c.beginLocked(ctx)
	c.mu.Unlock()

	_, err := c.complete(ctx, fetchCtx, gen, page)
	return err
}

// Reset discards everything loaded so far without fetching.
func (c *Controller[K, T]) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetLocked()
}

func (c *Controller[K, T]) resetLocked() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.gen++
	c.items = nil
	c.currentPage = 0
	c.totalPages = 1
	c.inFlight = false
	c.outcome = OutcomeNone
	c.err = nil
}

// Close cancels any in-flight fetch. Its result, if it arrives, is dropped,
// and further loads return ErrClosed.
func (c *Controller[K, T]) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.gen++
	c.inFlight = false
	c.closed = true
}

// Snapshot returns a copy of the current state.
func (c *Controller[K, T]) Snapshot() State[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State[T]{
		Phase:       c.phaseLocked(),
		Items:       append([]T(nil), c.items...),
		CurrentPage: c.currentPage,
		TotalPages:  c.totalPages,
		InFlight:    c.inFlight,
		Outcome:     c.outcome,
		Err:         c.err,
	}
}

func (c *Controller[K, T]) phaseLocked() Phase {
	loaded := c.currentPage > 0
	switch {
	case c.inFlight && !loaded:
		return PhaseFetchingFirstPage
	case c.inFlight:
		return PhaseFetchingNextPage
	case c.outcome == OutcomeFailed && !loaded:
		return PhaseFailedFirstPage
	case c.outcome == OutcomeFailed:
		return PhaseReadyWithTrailingError
	case loaded:
		return PhaseReady
	default:
		return PhaseInitial
	}
}

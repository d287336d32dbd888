// Package token owns the session credential: the access token, the refresh
// token and the absolute expiry, persisted in a durable key-value backend.
package token

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

// Backend keys
const (
	keyAccessToken  = "access_token"
	keyRefreshToken = "refresh_token"
	keyExpiresAt    = "expires_at"
)

var (
	// ErrUninitializedStore is the panic value for any Store call made before Init.
	ErrUninitializedStore = errors.New("token store used before Init")
	// ErrAlreadyInitialized is returned by a second call to Init.
	ErrAlreadyInitialized = errors.New("token store already initialized")
)

// Backend is a durable key-value storage handle.
type Backend interface {
	Get(key string) (string, bool, error)
	Set(values map[string]string) error
	Delete(keys ...string) error
}

// Store is the single authority for reading and writing the credential.
// It is created once per running application and passed to every component
// that needs it.
type Store struct {
	mu      sync.RWMutex
	backend Backend
	now     func() time.Time
	logger  zerolog.Logger
	logout  *Signal
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLogger sets the logger used for backend read failures.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// NewStore creates an uninitialized store. Init must be called before use.
func NewStore(opts ...Option) *Store {
	s := &Store{
		now:    time.Now,
		logger: zerolog.Nop(),
		logout: NewSignal(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Init binds the store to its backend. It must be called exactly once.
func (s *Store) Init(backend Backend) error {
	if backend == nil {
		return errors.New("token store backend is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.backend != nil {
		return ErrAlreadyInitialized
	}
	s.backend = backend
	return nil
}

func (s *Store) mustBackend() Backend {
	if s.backend == nil {
		panic(ErrUninitializedStore)
	}
	return s.backend
}

// SaveCredential stores the access token. A positive expiresIn is stored as
// the absolute instant now+expiresIn; a non-empty refreshToken is stored too.
func (s *Store) SaveCredential(accessToken, refreshToken string, expiresIn time.Duration) error {
	var expiresAt time.Time
	if expiresIn > 0 {
		expiresAt = s.now().Add(expiresIn)
	}
	return s.SaveCredentialUntil(accessToken, refreshToken, expiresAt)
}

// SaveCredentialUntil is SaveCredential with an absolute expiry, stored as
// given even when already past. A zero expiresAt stores no expiry.
func (s *Store) SaveCredentialUntil(accessToken, refreshToken string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.mustBackend()

	values := map[string]string{keyAccessToken: accessToken}
	if !expiresAt.IsZero() {
		values[keyExpiresAt] = expiresAt.UTC().Format(time.RFC3339Nano)
	}
	if refreshToken != "" {
		values[keyRefreshToken] = refreshToken
	}
	if err := b.Set(values); err != nil {
		return err
	}
	if expiresAt.IsZero() {
		// A new token without a lifetime must not inherit the previous expiry.
		return b.Delete(keyExpiresAt)
	}
	return nil
}

func (s *Store) read(key string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok, err := s.mustBackend().Get(key)
	if err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("token store read failed")
		return ""
	}
	if !ok {
		return ""
	}
	return v
}

// Token returns the access token, or "" when absent.
func (s *Store) Token() string {
	return s.read(keyAccessToken)
}

// RefreshToken returns the refresh token, or "" when absent.
func (s *Store) RefreshToken() string {
	return s.read(keyRefreshToken)
}

// Expiry returns the absolute expiry, or the zero time when none is set.
func (s *Store) Expiry() time.Time {
	raw := s.read(keyExpiresAt)
	if raw == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		s.logger.Warn().Err(err).Str("value", raw).Msg("malformed stored expiry")
		return time.Time{}
	}
	return t
}

// IsExpired reports whether an expiry is set and has been reached.
func (s *Store) IsExpired() bool {
	exp := s.Expiry()
	return !exp.IsZero() && !s.now().Before(exp)
}

// HasValidCredential reports whether a non-expired access token is stored.
func (s *Store) HasValidCredential() bool {
	return s.Token() != "" && !s.IsExpired()
}

// ClearToken removes the access token and expiry. The refresh token is kept.
func (s *Store) ClearToken() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mustBackend().Delete(keyAccessToken, keyExpiresAt)
}

// ClearAll removes every stored credential field.
func (s *Store) ClearAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mustBackend().Delete(keyAccessToken, keyRefreshToken, keyExpiresAt)
}

// NotifyLogout publishes one logout event to the current subscribers.
func (s *Store) NotifyLogout() {
	s.checkInit()
	s.logout.Publish()
}

// Subscribe registers for logout events published after this call.
func (s *Store) Subscribe() *Subscription {
	s.checkInit()
	return s.logout.Subscribe()
}

// Unsubscribe stops delivery to sub.
func (s *Store) Unsubscribe(sub *Subscription) {
	s.logout.Unsubscribe(sub)
}

func (s *Store) checkInit() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	s.mustBackend()
}

// OAuth2Token returns the stored credential as an oauth2.Token, or nil when
// no access token is stored.
func (s *Store) OAuth2Token() *oauth2.Token {
	access := s.Token()
	if access == "" {
		return nil
	}
	return &oauth2.Token{
		AccessToken:  access,
		RefreshToken: s.RefreshToken(),
		TokenType:    "Bearer",
		Expiry:       s.Expiry(),
	}
}

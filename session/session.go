// Package session logs users in and out and keeps the token store in step
// with the backend's answers.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/cinesync/cli/api"
	"github.com/cinesync/cli/token"
)

// Input validation errors, returned before any request is made.
var (
	ErrInvalidEmail  = errors.New("a valid email address is required")
	ErrEmptyPassword = errors.New("password is required")
	ErrEmptyUserName = errors.New("user name is required")
	ErrEmptyToken    = errors.New("backend returned an empty token")
)

// Backend is the subset of api.Client used here.
type Backend interface {
	Login(ctx context.Context, in api.LoginRequest) (*api.AuthResponse, error)
	Register(ctx context.Context, in api.RegisterRequest) (*api.AuthResponse, error)
	Me(ctx context.Context) (*api.User, error)
}

// Manager ties the backend to the token store.
type Manager struct {
	backend Backend
	store   *token.Store
	logger  zerolog.Logger
}

// New returns a Manager. store must be initialized.
func New(backend Backend, store *token.Store, logger zerolog.Logger) *Manager {
	return &Manager{backend: backend, store: store, logger: logger}
}

// Login authenticates and stores the returned token.
func (m *Manager) Login(ctx context.Context, email, password string) (*api.User, error) {
	email = strings.TrimSpace(email)
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if password == "" {
		return nil, ErrEmptyPassword
	}

	resp, err := m.backend.Login(ctx, api.LoginRequest{Email: email, Password: password})
	if err != nil {
		return nil, err
	}
	if err := m.save(resp); err != nil {
		return nil, err
	}
	m.logger.Info().Str("user", resp.User.UserName).Msg("logged in")
	return &resp.User, nil
}

// Register creates an account and stores the returned token.
func (m *Manager) Register(ctx context.Context, email, userName, password string) (*api.User, error) {
	email = strings.TrimSpace(email)
	userName = strings.TrimSpace(userName)
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if userName == "" {
		return nil, ErrEmptyUserName
	}
	if password == "" {
		return nil, ErrEmptyPassword
	}

	resp, err := m.backend.Register(ctx, api.RegisterRequest{
		Email:    email,
		UserName: userName,
		Password: password,
	})
	if err != nil {
		return nil, err
	}
	if err := m.save(resp); err != nil {
		return nil, err
	}
	m.logger.Info().Str("user", resp.User.UserName).Msg("registered")
	return &resp.User, nil
}

func (m *Manager) save(resp *api.AuthResponse) error {
	if resp.Token == "" {
		return ErrEmptyToken
	}
	// Opaque tokens carry no expiry; the backend's 401 ends them.
	expiresAt, _ := token.ExpiryFromJWT(resp.Token)
	if err := m.store.SaveCredentialUntil(resp.Token, "", expiresAt); err != nil {
		return fmt.Errorf("failed to save credential: %w", err)
	}
	return nil
}

// Logout forgets every credential and tells subscribers.
func (m *Manager) Logout() error {
	err := m.store.ClearAll()
	m.store.NotifyLogout()
	if err != nil {
		return fmt.Errorf("failed to clear credential: %w", err)
	}
	m.logger.Info().Msg("logged out")
	return nil
}

// Whoami returns the user the stored token belongs to.
func (m *Manager) Whoami(ctx context.Context) (*api.User, error) {
	return m.backend.Me(ctx)
}

// LoggedIn reports whether a usable credential is stored.
func (m *Manager) LoggedIn() bool {
	return m.store.HasValidCredential()
}

func validateEmail(email string) error {
	at := strings.Index(email, "@")
	if at <= 0 || at == len(email)-1 {
		return ErrInvalidEmail
	}
	return nil
}

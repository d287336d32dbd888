// Package apitest runs an in-memory CineSync backend on httptest for tests.
package apitest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/cinesync/cli/api"
)

// Account is a registered user with its password.
type Account struct {
	User     api.User
	Password string
}

// Server is a fake backend. Fields may be set before the first request;
// use the methods afterwards.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	accounts map[string]Account // by email
	tokens   map[string]int64   // token -> user id
	movies   []api.Movie
	details  map[int64]api.MovieDetail
	comments map[string][]api.Comment
	failures map[string]int // path prefix -> status to return
	nextID   int64
	seq      int64

	// MoviesPerPage sizes the popular listing. Default 2.
	MoviesPerPage int
	// TokenFunc mints tokens. Default "tok-<n>".
	TokenFunc func(user api.User) string

	requests atomic.Int64
}

// New starts a fake backend. Close it when done.
func New() *Server {
	s := &Server{
		accounts:      make(map[string]Account),
		tokens:        make(map[string]int64),
		details:       make(map[int64]api.MovieDetail),
		comments:      make(map[string][]api.Comment),
		failures:      make(map[string]int),
		MoviesPerPage: 2,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login", s.login)
	mux.HandleFunc("POST /api/auth/register", s.register)
	mux.HandleFunc("GET /api/users/me", s.me)
	mux.HandleFunc("GET /api/movies/popular", s.popular)
	mux.HandleFunc("GET /api/movies/detail/{id}", s.detail)
	mux.HandleFunc("POST /api/comments", s.createComment)
	mux.HandleFunc("GET /api/comments/movie/{movieId}", s.listComments)
	s.Server = httptest.NewServer(s.intercept(mux))
	return s
}

// AddAccount registers a user directly.
func (s *Server) AddAccount(email, userName, password string) api.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addAccountLocked(email, userName, password)
}

func (s *Server) addAccountLocked(email, userName, password string) api.User {
	s.nextID++
	u := api.User{ID: s.nextID, UserName: userName, Email: email, Role: api.RoleUser}
	s.accounts[email] = Account{User: u, Password: password}
	return u
}

// AddMovies appends movies to the popular listing and creates a detail
// record for each.
func (s *Server) AddMovies(movies ...api.Movie) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range movies {
		s.movies = append(s.movies, m)
		s.details[m.ID] = api.MovieDetail{
			ID:          m.ID,
			Title:       m.Title,
			Overview:    m.Overview,
			ReleaseDate: m.ReleaseDate,
			Genres:      []api.Genre{{ID: 18, Name: "Drama"}},
		}
	}
}

// AddComments seeds comments for a movie.
func (s *Server) AddComments(movieID string, contents ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range contents {
		s.nextID++
		s.comments[movieID] = append(s.comments[movieID], api.Comment{
			ID:       s.nextID,
			MovieID:  movieID,
			UserName: "seed",
			Content:  c,
		})
	}
}

// Fail makes every request whose path starts with prefix answer status.
// A status of 0 clears the failure.
func (s *Server) Fail(prefix string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if status == 0 {
		delete(s.failures, prefix)
		return
	}
	s.failures[prefix] = status
}

// Revoke invalidates every issued token.
func (s *Server) Revoke() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = make(map[string]int64)
}

// Requests returns the number of requests served.
func (s *Server) Requests() int64 {
	return s.requests.Load()
}

func (s *Server) intercept(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.requests.Add(1)
		s.mu.Lock()
		status := 0
		for prefix, st := range s.failures {
			if strings.HasPrefix(r.URL.Path, prefix) {
				status = st
			}
		}
		s.mu.Unlock()
		if status != 0 {
			writeError(w, status, "injected failure")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var in api.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}
	s.mu.Lock()
	acc, ok := s.accounts[in.Email]
	if !ok || acc.Password != in.Password {
		s.mu.Unlock()
		writeError(w, http.StatusUnauthorized, "invalid email or password")
		return
	}
	tok := s.issueLocked(acc.User)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"token": tok, "user": acc.User})
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var in api.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}
	s.mu.Lock()
	if _, exists := s.accounts[in.Email]; exists {
		s.mu.Unlock()
		writeError(w, http.StatusConflict, "email already registered")
		return
	}
	u := s.addAccountLocked(in.Email, in.UserName, in.Password)
	tok := s.issueLocked(u)
	s.mu.Unlock()
	// older backends answer with "users"
	writeJSON(w, http.StatusOK, map[string]any{"token": tok, "users": u})
}

func (s *Server) issueLocked(u api.User) string {
	s.seq++
	tok := fmt.Sprintf("tok-%d", s.seq)
	if s.TokenFunc != nil {
		tok = s.TokenFunc(u)
	}
	s.tokens[tok] = u.ID
	return tok
}

// authenticate resolves the bearer token, answering 401 on failure.
func (s *Server) authenticate(w http.ResponseWriter, r *http.Request) (api.User, bool) {
	tok, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	s.mu.Lock()
	defer s.mu.Unlock()
	id, known := s.tokens[tok]
	if !ok || !known {
		writeError(w, http.StatusUnauthorized, "token expired or invalid")
		return api.User{}, false
	}
	for _, acc := range s.accounts {
		if acc.User.ID == id {
			return acc.User, true
		}
	}
	writeError(w, http.StatusUnauthorized, "unknown user")
	return api.User{}, false
}

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	u, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) popular(w http.ResponseWriter, r *http.Request) {
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page < 1 {
		writeError(w, http.StatusBadRequest, "page must be >= 1")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	per := max(s.MoviesPerPage, 1)
	total := (len(s.movies) + per - 1) / per
	start := min((page-1)*per, len(s.movies))
	end := min(start+per, len(s.movies))
	writeJSON(w, http.StatusOK, api.MoviePage{
		Page:         page,
		Results:      append([]api.Movie{}, s.movies[start:end]...),
		TotalPages:   total,
		TotalResults: len(s.movies),
	})
}

func (s *Server) detail(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad id")
		return
	}
	s.mu.Lock()
	d, ok := s.details[id]
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "movie not found")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) createComment(w http.ResponseWriter, r *http.Request) {
	u, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	var in api.CommentRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || strings.TrimSpace(in.Content) == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}
	s.mu.Lock()
	s.nextID++
	c := api.Comment{
		ID:       s.nextID,
		MovieID:  in.MovieID,
		UserID:   u.ID,
		UserName: u.UserName,
		Content:  in.Content,
	}
	// newest first, like the real listing
	s.comments[in.MovieID] = append([]api.Comment{c}, s.comments[in.MovieID]...)
	s.mu.Unlock()
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) listComments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := strconv.Atoi(q.Get("page"))
	if err != nil || page < 0 {
		writeError(w, http.StatusBadRequest, "page must be >= 0")
		return
	}
	size, err := strconv.Atoi(q.Get("pageSize"))
	if err != nil || size < 1 {
		size = api.DefaultCommentPageSize
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.comments[r.PathValue("movieId")]
	total := (len(all) + size - 1) / size
	start := min(page*size, len(all))
	end := min(start+size, len(all))
	writeJSON(w, http.StatusOK, api.CommentPage{
		Content:       append([]api.Comment{}, all[start:end]...),
		TotalElements: int64(len(all)),
		TotalPages:    total,
		Number:        page,
		Size:          size,
		First:         page == 0,
		Last:          page >= total-1,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}

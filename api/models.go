package api

import (
	"encoding/json"
	"strings"
	"time"
)

// Role is a user's role on the backend.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// User is the account record returned by auth and /users/me.
type User struct {
	ID       int64  `json:"id"`
	UserName string `json:"userName"`
	Email    string `json:"email"`
	Role     Role   `json:"role"`
}

// UnmarshalJSON also accepts the older "usersRole" field name.
func (u *User) UnmarshalJSON(data []byte) error {
	type plain User
	var raw struct {
		plain
		UsersRole Role `json:"usersRole"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*u = User(raw.plain)
	if u.Role == "" {
		u.Role = raw.UsersRole
	}
	return nil
}

// LoginRequest is the body of POST /api/auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterRequest is the body of POST /api/auth/register.
type RegisterRequest struct {
	Email    string `json:"email"`
	UserName string `json:"userName"`
	Password string `json:"password"`
}

// AuthResponse is returned by login and register.
type AuthResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// UnmarshalJSON accepts both "user" and the older "users" key.
func (a *AuthResponse) UnmarshalJSON(data []byte) error {
	var raw struct {
		Token string `json:"token"`
		User  *User  `json:"user"`
		Users *User  `json:"users"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	a.Token = raw.Token
	switch {
	case raw.User != nil:
		a.User = *raw.User
	case raw.Users != nil:
		a.User = *raw.Users
	}
	return nil
}

// Movie is one entry of the popular movies listing.
type Movie struct {
	ID          int64   `json:"id"`
	Title       string  `json:"title"`
	Overview    string  `json:"overview"`
	PosterPath  string  `json:"posterPath"`
	ReleaseDate string  `json:"releaseDate"`
	VoteAverage float64 `json:"voteAverage"`
}

// Key identifies the movie for de-duplication across pages.
func (m Movie) Key() int64 { return m.ID }

// Year returns the release year, or "" when unknown.
func (m Movie) Year() string {
	if len(m.ReleaseDate) < 4 {
		return ""
	}
	return m.ReleaseDate[:4]
}

// MoviePage is one page of GET /api/movies/popular. Page is 1-based.
type MoviePage struct {
	Page         int     `json:"page"`
	Results      []Movie `json:"results"`
	TotalPages   int     `json:"totalPages"`
	TotalResults int     `json:"totalResults"`
}

// Genre of a movie.
type Genre struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// ProductionCompany of a movie.
type ProductionCompany struct {
	ID       int    `json:"id"`
	LogoPath string `json:"logoPath"`
	Name     string `json:"name"`
}

// MovieDetail is returned by GET /api/movies/detail/{id}.
type MovieDetail struct {
	ID                  int64               `json:"id"`
	BackdropPath        string              `json:"backdropPath"`
	Budget              int64               `json:"budget"`
	Genres              []Genre             `json:"genres"`
	ReleaseDate         string              `json:"releaseDate"`
	Overview            string              `json:"overview"`
	Title               string              `json:"title"`
	ProductionCompanies []ProductionCompany `json:"productionCompanies"`
}

// GenreNames joins the genre names with ", ".
func (d MovieDetail) GenreNames() string {
	names := make([]string, 0, len(d.Genres))
	for _, g := range d.Genres {
		names = append(names, g.Name)
	}
	return strings.Join(names, ", ")
}

// Comment is a message board entry.
type Comment struct {
	ID        int64      `json:"id"`
	MovieID   string     `json:"movieId"`
	UserID    int64      `json:"userId"`
	UserName  string     `json:"userName"`
	Content   string     `json:"content"`
	CreatedAt *Timestamp `json:"createdAt,omitempty"`
	UpdatedAt *Timestamp `json:"updatedAt,omitempty"`
}

// Key identifies the comment for de-duplication across pages.
func (c Comment) Key() int64 { return c.ID }

// CommentRequest is the body of POST /api/comments.
type CommentRequest struct {
	MovieID string `json:"movieId"`
	Content string `json:"content"`
}

// CommentPage is one page of GET /api/comments/movie/{movieId}.
// Number is 0-based.
type CommentPage struct {
	Content       []Comment `json:"content"`
	TotalElements int64     `json:"totalElements"`
	TotalPages    int       `json:"totalPages"`
	Number        int       `json:"number"`
	Size          int       `json:"size"`
	First         bool      `json:"first"`
	Last          bool      `json:"last"`
}

// Timestamp decodes the backend's zone-less local date-times
// ("2024-05-01T10:20:30" or with fractional seconds) as well as RFC 3339.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	var lastErr error
	for _, layout := range timestampLayouts {
		parsed, err := time.Parse(layout, s)
		if err == nil {
			t.Time = parsed
			return nil
		}
		lastErr = err
	}
	return lastErr
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Format("2006-01-02T15:04:05"))
}

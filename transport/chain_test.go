package transport

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestID_StampsMissingID(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get(RequestIDHeader)
	}))
	defer srv.Close()

	c := &http.Client{Transport: &RequestID{Logger: zerolog.Nop()}}
	resp, err := c.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()

	_, err = uuid.Parse(got)
	assert.NoError(t, err, "request id %q is not a uuid", got)
}

func TestRequestID_KeepsExistingID(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get(RequestIDHeader)
	}))
	defer srv.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	req.Header.Set(RequestIDHeader, "fixed-id")

	c := &http.Client{Transport: &RequestID{Logger: zerolog.Nop()}}
	resp, err := c.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "fixed-id", got)
}

func TestNew_FullChain(t *testing.T) {
	var (
		mu      sync.Mutex
		headers []http.Header
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		headers = append(headers, r.Header.Clone())
		mu.Unlock()
		if r.URL.Path == "/expired" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store := newStore(t)
	require.NoError(t, store.SaveCredential("t1", "", time.Hour))

	retryClient, err := NewRetryClient(NewBaseClient())
	require.NoError(t, err)
	c := New(store, retryClient, zerolog.Nop())

	resp, err := c.Get(srv.URL + "/ok")
	require.NoError(t, err)
	resp.Body.Close()

	_, err = c.Get(srv.URL + "/expired")
	assert.True(t, errors.Is(err, ErrUnauthorized))
	assert.False(t, store.HasValidCredential())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, headers, 2)
	for _, h := range headers {
		assert.Equal(t, "Bearer t1", h.Get("Authorization"))
		assert.NotEmpty(t, h.Get(RequestIDHeader))
	}
}

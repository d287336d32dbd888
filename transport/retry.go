package transport

import (
	"crypto/tls"
	"fmt"
	"net/http"
	"time"

	retry "github.com/appleboy/go-httpretry"
)

// Client tuning for the base HTTP client.
const (
	requestTimeout      = 30 * time.Second
	maxIdleConns        = 10
	idleConnTimeout     = 90 * time.Second
	tlsHandshakeTimeout = 10 * time.Second
)

// NewBaseClient returns the plain HTTP client every chain ends in.
func NewBaseClient() *http.Client {
	return &http.Client{
		Timeout: requestTimeout,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
			MaxIdleConns:        maxIdleConns,
			IdleConnTimeout:     idleConnTimeout,
			TLSHandshakeTimeout: tlsHandshakeTimeout,
		},
	}
}

// NewRetryClient wraps base with go-httpretry's default policy.
func NewRetryClient(base *http.Client) (*retry.Client, error) {
	c, err := retry.NewClient(retry.WithHTTPClient(base))
	if err != nil {
		return nil, fmt.Errorf("failed to create retry client: %w", err)
	}
	return c, nil
}

// Retry turns a go-httpretry client into an http.RoundTripper so it can sit
// underneath Auth: transient failures are retried before the 401 check runs.
type Retry struct {
	Client *retry.Client
}

// RoundTrip implements http.RoundTripper.
func (r *Retry) RoundTrip(req *http.Request) (*http.Response, error) {
	return r.Client.DoWithContext(req.Context(), req)
}

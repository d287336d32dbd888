package transport

import (
	"net/http"

	retry "github.com/appleboy/go-httpretry"
	"github.com/rs/zerolog"
)

// New builds the client used for all backend calls:
// RequestID -> Auth -> Retry -> base client.
func New(store Credentials, retryClient *retry.Client, logger zerolog.Logger) *http.Client {
	return &http.Client{
		Transport: &RequestID{
			Logger: logger,
			Next: &Auth{
				Store:  store,
				Logger: logger,
				Next:   &Retry{Client: retryClient},
			},
		},
	}
}

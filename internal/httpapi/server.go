package httpapi

import (
	"net/http"
	"time"

	"github.com/hbl-templ/bakerloo-line-extension/internal/config"
)

// NewServer wraps handler with request ids and access logging.
// The write timeout leaves room for a full retry budget against the census API.
func NewServer(cfg config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           requestID(requestLogger(handler)),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      2 * time.Minute,
	}
}

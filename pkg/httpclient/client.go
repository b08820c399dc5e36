package httpclient

import (
	"net/http"
	"time"
)

// New builds an *http.Client whose Timeout bounds a single logical call,
// retries included.
func New(timeout time.Duration, opts Options) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: NewRetryingTransport(nil, opts),
	}
}

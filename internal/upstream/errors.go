// Package upstream implements the client contract the sync core requires of
// the external multi-dimensional table service (spec §6.2): paginated
// record listing, batched attachment resolution, and a table revision
// probe. HTTP transport and error classification live here; retry/backoff
// is applied by callers through internal/retry using Classify, and token
// acquisition is delegated to an oauth2.TokenSource.
package upstream

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/acme-retail/tablesync/internal/retry"
)

// Sentinel errors for HTTP status classification. Use errors.Is to check.
var (
	ErrBadRequest  = errors.New("upstream: bad request")
	ErrUnauthorized = errors.New("upstream: unauthorized")
	ErrForbidden   = errors.New("upstream: forbidden")
	ErrNotFound    = errors.New("upstream: not found")
	ErrGone        = errors.New("upstream: resource gone")
	ErrThrottled   = errors.New("upstream: throttled")
	ErrServerError = errors.New("upstream: server error")
)

// Error wraps a sentinel error with the HTTP status code, request id, and
// response body for debugging. Implements errors.Unwrap for errors.Is.
type Error struct {
	StatusCode int
	RequestID  string
	Message    string
	Err        error
}

func (e *Error) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("upstream: HTTP %d (request-id: %s): %s", e.StatusCode, e.RequestID, e.Message)
	}

	return fmt.Sprintf("upstream: HTTP %d: %s", e.StatusCode, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// classifyStatus maps an HTTP status code to a sentinel error. Returns nil
// for 2xx.
func classifyStatus(code int) error {
	switch code {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusGone:
		return ErrGone
	case http.StatusTooManyRequests:
		return ErrThrottled
	default:
		if code >= http.StatusInternalServerError {
			return ErrServerError
		}

		return nil
	}
}

// isRetryable reports whether the given HTTP status code should be retried
// per the TransientUpstream taxonomy in spec §7.
func isRetryable(code int) bool {
	switch code {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// Classify implements retry.Classifier for errors returned by this package,
// per the TransientUpstream / AuthExpired / PermanentUpstream taxonomy in
// spec §7.
func Classify(err error) retry.Classification {
	if err == nil {
		return retry.Classification{}
	}

	var apiErr *Error
	if errors.As(err, &apiErr) {
		switch {
		case errors.Is(apiErr.Err, ErrUnauthorized):
			return retry.Classification{AuthExpired: true}
		case errors.Is(apiErr.Err, ErrThrottled), errors.Is(apiErr.Err, ErrServerError), isRetryable(apiErr.StatusCode):
			return retry.Classification{Retryable: true}
		default:
			// 404/400/410/403: PermanentUpstream — record-level failure, not retried.
			return retry.Classification{Fatal: true}
		}
	}

	// Network-level errors (timeouts, connection resets) are retryable.
	return retry.Classification{Retryable: true}
}

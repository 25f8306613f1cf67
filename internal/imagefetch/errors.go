package imagefetch

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"

	"github.com/acme-retail/tablesync/internal/retry"
)

// ErrURLExpired names the expired-signed-URL condition. No download path
// returns it: an expired URL surfaces as a *downloadError with status
// 401/403, which looksExpired detects.
var ErrURLExpired = errors.New("imagefetch: signed url expired")

// ErrUnverifiedFormat is returned when downloaded bytes don't match any
// recognized magic-byte signature (spec §4.2 step 3).
var ErrUnverifiedFormat = errors.New("imagefetch: content does not match a known image signature")

// downloadError wraps a non-2xx HTTP response from a signed download URL.
type downloadError struct {
	StatusCode int
	Body       []byte
}

func (e *downloadError) Error() string {
	return fmt.Sprintf("imagefetch: download failed with status %d", e.StatusCode)
}

// expiryMarkers are substrings the upstream table's signed-URL error body
// is known to contain when a URL has expired.
var expiryMarkers = [][]byte{[]byte("expired"), []byte("Expired"), []byte("EXPIRED")}

func looksExpired(statusCode int, body []byte) bool {
	if statusCode != http.StatusUnauthorized && statusCode != http.StatusForbidden {
		return false
	}

	for _, marker := range expiryMarkers {
		if bytes.Contains(body, marker) {
			return true
		}
	}

	// Any 401/403 on a signed URL (as opposed to an authenticated API
	// call) is treated as expiry: signed URLs carry their own embedded
	// auth, so these statuses have no other meaning here.
	return true
}

// classifyDownloadErr adapts a download failure into retry.Classification.
// Expired URLs are handled by a single re-resolve in the caller, not by
// retrying: a 401/403 classifies as fatal, so the retry loop stops at once
// and the caller then re-resolves the token and downloads again.
func classifyDownloadErr(err error) retry.Classification {
	if err == nil {
		return retry.Classification{}
	}

	var de *downloadError
	if errors.As(err, &de) {
		if de.StatusCode >= 500 || de.StatusCode == http.StatusTooManyRequests {
			return retry.Classification{Retryable: true}
		}

		return retry.Classification{Fatal: true}
	}

	if errors.Is(err, ErrUnverifiedFormat) {
		return retry.Classification{Fatal: true}
	}

	// Transport-level errors (timeouts, connection reset) are retryable.
	return retry.Classification{Retryable: true}
}

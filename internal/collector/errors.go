package collector

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind classifies a fetch failure.
type Kind int

const (
	// KindTransient covers network, status, decode and empty-data failures.
	KindTransient Kind = iota
	// KindRateLimited means the provider asked us to slow down.
	KindRateLimited
)

func (k Kind) String() string {
	switch k {
	case KindRateLimited:
		return "rate_limited"
	default:
		return "transient"
	}
}

// FetchError is returned by every Fetcher implementation.
type FetchError struct {
	Kind       Kind
	StatusCode int // 0 when no HTTP response was received
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s (status %d): %v", e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// RateLimited wraps err as a rate-limit failure.
func RateLimited(err error) *FetchError {
	return &FetchError{Kind: KindRateLimited, StatusCode: http.StatusTooManyRequests, Err: err}
}

// Transient wraps err as a transient failure.
func Transient(err error) *FetchError {
	return &FetchError{Kind: KindTransient, Err: err}
}

// statusError builds the FetchError for a non-200 provider response.
func statusError(provider string, code int, body []byte) *FetchError {
	kind := KindTransient
	if code == http.StatusTooManyRequests {
		kind = KindRateLimited
	}
	return &FetchError{
		Kind:       kind,
		StatusCode: code,
		Err:        fmt.Errorf("%s: status %d, body: %s", provider, code, truncate(string(body), 200)),
	}
}

// Classify returns the kind of a fetch failure. Errors that are not a
// *FetchError fall back to looking for a 429 in the message, which is how some
// providers report throttling inside an otherwise successful response.
func Classify(err error) Kind {
	if err == nil {
		return KindTransient
	}
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	if strings.Contains(err.Error(), "429") {
		return KindRateLimited
	}
	return KindTransient
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

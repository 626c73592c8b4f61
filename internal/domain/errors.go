package domain

import (
	"context"
	"errors"
)

var (
	// ErrNotSupported is returned when a site name is not in the registry
	ErrNotSupported = errors.New("site not supported")

	// ErrBlocked is returned when a retailer answers with an anti-bot response
	ErrBlocked = errors.New("blocked by site")

	// ErrTimeout is returned when a pipeline exceeds its time budget
	ErrTimeout = errors.New("site timed out")

	// ErrFetchFailed is returned on transport-level failures
	ErrFetchFailed = errors.New("failed to fetch page")

	// ErrNoMatch is returned when a page was parsed but no product could be derived.
	// It is surfaced as a degraded success, never as an error result.
	ErrNoMatch = errors.New("no matching product")

	// ErrInvalidRequest is returned when request parameters are invalid
	ErrInvalidRequest = errors.New("invalid request parameters")

	// ErrCacheMiss is returned when no fresh entry exists for a key
	ErrCacheMiss = errors.New("cache miss")

	// ErrCacheUnavailable is returned when the cache backend cannot be reached
	ErrCacheUnavailable = errors.New("cache service unavailable")
)

// ReasonKind is the machine-readable failure reason on an error SiteResult.
type ReasonKind string

const (
	ReasonNotSupported ReasonKind = "not-supported"
	ReasonBlocked      ReasonKind = "blocked"
	ReasonTimeout      ReasonKind = "timeout"
	ReasonFetchFailed  ReasonKind = "fetch-failed"
)

// Message returns the human-readable text shown next to a failed site.
func (r ReasonKind) Message() string {
	switch r {
	case ReasonNotSupported:
		return "Site not supported"
	case ReasonBlocked:
		return "Site blocked the request"
	case ReasonTimeout:
		return "Site took too long to respond"
	default:
		return "Failed to fetch data"
	}
}

// ReasonFor maps a pipeline error to its reason kind. Unknown errors are
// reported as fetch failures.
func ReasonFor(err error) ReasonKind {
	switch {
	case errors.Is(err, ErrNotSupported):
		return ReasonNotSupported
	case errors.Is(err, ErrBlocked):
		return ReasonBlocked
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return ReasonTimeout
	default:
		return ReasonFetchFailed
	}
}

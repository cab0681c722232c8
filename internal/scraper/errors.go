package scraper

import (
	"context"
	"errors"
	"fmt"
	"net"
)

var (
	ErrAlreadyRunning = errors.New("scraper job already running")
	ErrDisallowed     = errors.New("disallowed by robots.txt")
	ErrJobCancelled   = errors.New("scraper job cancelled")
	ErrJobNotRunning  = errors.New("scraper job not running")
	ErrInvalidParams  = errors.New("invalid scraper job parameters")
)

type FetchErrorKind string

const (
	KindTimeout      FetchErrorKind = "timeout"
	KindRateLimited  FetchErrorKind = "rate_limited"
	KindServerError  FetchErrorKind = "server_error"
	KindNetworkError FetchErrorKind = "network_error"
	// KindClientError covers 4xx responses other than 429. Never retried.
	KindClientError FetchErrorKind = "client_error"
)

// FetchError is the only error type a PageFetcher returns.
type FetchError struct {
	Kind   FetchErrorKind
	Status int
	URL    string
	Err    error
}

func (e *FetchError) Error() string {
	if e == nil {
		return ""
	}
	msg := fmt.Sprintf("fetch %s: kind=%s", e.URL, e.Kind)
	if e.Status > 0 {
		msg += fmt.Sprintf(" status=%d", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FetchError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Retryable reports whether another attempt may succeed.
func (e *FetchError) Retryable() bool {
	if e == nil {
		return false
	}
	return e.Kind != KindClientError
}

func fetchErrorFromStatus(url string, status int) *FetchError {
	switch {
	case status == 429:
		return &FetchError{Kind: KindRateLimited, Status: status, URL: url}
	case status >= 500:
		return &FetchError{Kind: KindServerError, Status: status, URL: url}
	case status >= 400:
		return &FetchError{Kind: KindClientError, Status: status, URL: url}
	default:
		return nil
	}
}

// classifyTransportError maps a transport level failure to a FetchError.
// parent is the caller's context: if it is done, the failure is cancellation,
// not a page timeout.
func classifyTransportError(parent context.Context, url string, err error) *FetchError {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe
	}
	if errors.Is(err, context.DeadlineExceeded) && parent.Err() == nil {
		return &FetchError{Kind: KindTimeout, URL: url, Err: err}
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return &FetchError{Kind: KindTimeout, URL: url, Err: err}
	}
	return &FetchError{Kind: KindNetworkError, URL: url, Err: err}
}

package resilix

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for gate rejections that never reach the network.
var (
	// ErrOffline is returned when the connectivity monitor reports offline
	// and the request is failed before any transport attempt.
	ErrOffline = errors.New("resilix: offline, no attempt made")

	// ErrThrottled is returned when the local rate limiter rejects a request.
	ErrThrottled = errors.New("resilix: local rate limit exceeded")

	// ErrCircuitOpen is returned when the circuit breaker is in open state.
	ErrCircuitOpen = errors.New("resilix: circuit open")
)

// ErrorKind is the closed classification of a failed request outcome.
// Retryability is an intrinsic property of the kind, not a separate lookup.
type ErrorKind int

const (
	// KindNetwork is a connection-level failure: no response was received.
	KindNetwork ErrorKind = iota
	// KindTimeout is a transport attempt that timed out before a response.
	KindTimeout
	// KindServer is an HTTP 5xx response.
	KindServer
	// KindRateLimited is a server-reported HTTP 429.
	KindRateLimited
	// KindRateLimitedLocally is a client-side throttle rejection; the
	// request never reached the network.
	KindRateLimitedLocally
	// KindUnauthorized is an HTTP 401; the caller is expected to run its
	// re-authentication flow.
	KindUnauthorized
	// KindClient is any other HTTP 4xx.
	KindClient
	// KindUnknown is anything the classifier cannot place.
	KindUnknown
)

// Retryable reports whether the retry policy may schedule another attempt
// for this kind. A local throttle rejection is never retried: without
// waiting for the window to reset it would immediately fail again.
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindNetwork, KindTimeout, KindServer, KindRateLimited:
		return true
	default:
		return false
	}
}

func (k ErrorKind) String() string {
	switch k {
	case KindNetwork:
		return "Network"
	case KindTimeout:
		return "Timeout"
	case KindServer:
		return "Server"
	case KindRateLimited:
		return "RateLimited"
	case KindRateLimitedLocally:
		return "RateLimitedLocally"
	case KindUnauthorized:
		return "Unauthorized"
	case KindClient:
		return "Client"
	default:
		return "Unknown"
	}
}

// RequestError is the terminal failure surfaced by the pipeline. It wraps
// the original cause unmodified and annotates it with the classified kind,
// retryability and the number of transport attempts actually made.
type RequestError struct {
	Kind       ErrorKind
	Message    string
	Cause      error
	RequestID  string
	Method     string
	URL        string
	Endpoint   string
	StatusCode int
	Attempts   int
	MaxRetries int
	Duration   time.Duration
	Timestamp  time.Time
}

// Error implements the error interface.
func (e *RequestError) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.Cause != nil {
		msg = fmt.Sprintf("%s (%v)", msg, e.Cause)
	}
	if e.RequestID != "" {
		msg = fmt.Sprintf("[%s] %s", e.RequestID, msg)
	}
	if e.Attempts > 0 {
		msg = fmt.Sprintf("%s (attempts %d, max retries %d)", msg, e.Attempts, e.MaxRetries)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *RequestError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is matches RequestErrors by kind for errors.Is.
func (e *RequestError) Is(target error) bool {
	if e == nil {
		return false
	}
	if t, ok := target.(*RequestError); ok {
		return e.Kind == t.Kind
	}
	return false
}

// Retryable reports whether the classified kind is retryable.
func (e *RequestError) Retryable() bool {
	if e == nil {
		return false
	}
	return e.Kind.Retryable()
}

// IsTransient reports whether err represents a failure that might succeed
// on a later attempt. Gate rejections (offline, local throttle, open
// circuit) are transient in the sense that the caller can try again later,
// but the pipeline itself never retries them.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrOffline) || errors.Is(err, ErrThrottled) || errors.Is(err, ErrCircuitOpen) {
		return true
	}
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr.Retryable()
	}
	return false
}

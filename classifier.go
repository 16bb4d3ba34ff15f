package resilix

import (
	"context"
	"errors"
	"net"
	"net/http"
)

// Classify maps a transport outcome to an ErrorKind. It is a pure, total
// function: every (response, error) pair maps to exactly one kind.
//
// Rules, in order:
//  1. No response at all: KindTimeout if the error is a timeout, else
//     KindNetwork.
//  2. Status 500-599: KindServer.
//  3. Status 429: KindRateLimited.
//  4. Status 401: KindUnauthorized.
//  5. Any other 4xx: KindClient.
//  6. Anything else: KindUnknown. A 2xx reaching the classifier is a
//     contract violation by the caller, not a classification failure.
func Classify(resp *http.Response, err error) ErrorKind {
	if err != nil {
		if isTimeout(err) {
			return KindTimeout
		}
		return KindNetwork
	}
	if resp == nil {
		return KindNetwork
	}

	switch {
	case resp.StatusCode >= 500 && resp.StatusCode <= 599:
		return KindServer
	case resp.StatusCode == http.StatusTooManyRequests:
		return KindRateLimited
	case resp.StatusCode == http.StatusUnauthorized:
		return KindUnauthorized
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return KindClient
	default:
		return KindUnknown
	}
}

// isTimeout reports whether a transport error was a timeout rather than a
// general connection failure. Both classify as retryable; the distinction
// only affects the reported kind.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}

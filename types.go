package resilix

import "net/http"

// Middleware wraps the transport call; middlewares run in registration
// order, each deciding whether to call next.
type Middleware func(req *http.Request, next RoundTripper) (*http.Response, error)

// RoundTripper is the transport contract the pipeline composes around: an
// opaque send(request) -> (response, error).
type RoundTripper interface {
	RoundTrip(*http.Request) (*http.Response, error)
}

// RoundTripperFunc adapts a function to the RoundTripper interface.
type RoundTripperFunc func(*http.Request) (*http.Response, error)

func (f RoundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// Option configures a Client.
type Option func(*Client)

// DebugConfig selects which pipeline stages emit debug logs.
type DebugConfig struct {
	Enabled      bool
	LogRequests  bool
	LogRetries   bool
	LogRateLimit bool
	LogDedup     bool
	LogCircuit   bool
	LogCache     bool
	RequestIDGen func() string
}

// DefaultDebugConfig enables all stage logs once debugging is turned on.
func DefaultDebugConfig() *DebugConfig {
	return &DebugConfig{
		Enabled:      false,
		LogRequests:  true,
		LogRetries:   true,
		LogRateLimit: true,
		LogDedup:     true,
		LogCircuit:   true,
		LogCache:     true,
		RequestIDGen: DefaultRequestIDGen,
	}
}

// endpointFromRequest reduces a request to the host+path endpoint string
// used for rate limiting, metrics and logging.
func endpointFromRequest(req *http.Request) string {
	if req.URL == nil {
		return "unknown"
	}
	endpoint := req.URL.Host
	if req.URL.Path != "" && req.URL.Path != "/" {
		endpoint += req.URL.Path
	} else {
		endpoint += "/"
	}
	return endpoint
}

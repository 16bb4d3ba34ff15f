package resilix

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-cleanhttp"
)

// Client is the request pipeline: it composes the connectivity gate, rate
// limiter, circuit breaker, de-duplication tracker and retry policy around
// the HTTP transport. It is safe for concurrent use.
type Client struct {
	httpClient     *http.Client
	monitor        *ConnectivityMonitor
	rateLimiter    *RateLimiter
	retryPolicy    *RetryPolicy
	circuitBreaker *CircuitBreaker

	deduplication  *DeduplicationTracker
	dedupKeyFunc   DeduplicationKeyFunc
	dedupCondition DeduplicationCondition

	cache          Cache
	cacheTTL       time.Duration
	cacheKeyFunc   func(*http.Request) string
	cacheCondition CacheCondition

	middleware []Middleware
	metrics    *MetricsCollector
	debug      *DebugConfig
	logger     Logger

	validationError error
}

// New constructs a Client from functional options. Validation runs at
// construction; call IsValid / ValidationError to inspect the result.
func New(options ...Option) *Client {
	client := &Client{
		httpClient:     cleanhttp.DefaultPooledClient(),
		monitor:        NewConnectivityMonitor(),
		rateLimiter:    NewRateLimiter(nil, DefaultRateConfig),
		retryPolicy:    NewRetryPolicy(DefaultRetryConfig),
		circuitBreaker: NewCircuitBreaker(CircuitBreakerConfig{}),
		dedupKeyFunc:   DefaultDeduplicationKeyFunc,
		dedupCondition: DefaultDeduplicationCondition,
		cacheTTL:       5 * time.Minute,
		cacheKeyFunc:   DefaultCacheKeyFunc,
		cacheCondition: DefaultCacheCondition,
		middleware:     []Middleware{},
		debug:          DefaultDebugConfig(),
	}
	client.httpClient.Timeout = 30 * time.Second

	for _, option := range options {
		option(client)
	}

	// WithDebugConfig accepts nil; Do reads debug fields unconditionally.
	if client.debug == nil {
		client.debug = DefaultDebugConfig()
	}

	if client.metrics != nil {
		client.metrics.RecordConnectivity(client.monitor.IsOnline())
		client.monitor.Subscribe(client.metrics.RecordConnectivity)
	}

	if err := client.ValidateConfiguration(); err != nil {
		client.validationError = err
	}

	return client
}

// Monitor returns the connectivity monitor so the platform signal source
// can feed it online/offline events.
func (c *Client) Monitor() *ConnectivityMonitor {
	return c.monitor
}

// Limiter returns the rate limiter, mainly for Remaining inspection.
func (c *Client) Limiter() *RateLimiter {
	return c.rateLimiter
}

// IsValid reports whether configuration validation passed at construction.
func (c *Client) IsValid() bool {
	return c.validationError == nil
}

// ValidationError returns the configuration validation error, if any.
func (c *Client) ValidationError() error {
	return c.validationError
}

// Get performs an HTTP GET with context.
func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	return c.Do(req)
}

// Head performs an HTTP HEAD with context.
func (c *Client) Head(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return nil, err
	}
	return c.Do(req)
}

// Post performs an HTTP POST with the given content type.
func (c *Client) Post(ctx context.Context, url, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	return c.Do(req)
}

// Put performs an HTTP PUT with the given content type.
func (c *Client) Put(ctx context.Context, url, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	return c.Do(req)
}

// Delete performs an HTTP DELETE with context.
func (c *Client) Delete(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return nil, err
	}
	return c.Do(req)
}

// Do executes a prepared request through the pipeline. Gate order is
// fixed: connectivity, rate limit, circuit breaker, de-duplication,
// transport. Failed outcomes (transport errors and 4xx/5xx statuses)
// surface as *RequestError annotated with the classified kind and the
// attempts made; when a response exists it is returned alongside the
// error so callers can still read the body.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	start := time.Now()
	endpoint := endpointFromRequest(req)

	var requestID string
	if c.debug != nil && c.debug.Enabled && c.debug.RequestIDGen != nil {
		requestID = c.debug.RequestIDGen()
	}
	if c.debugEnabled(c.debug.LogRequests) {
		c.logger.Debug("starting request", "requestID", requestID, "method", req.Method, "url", req.URL.String(), "endpoint", endpoint)
	}

	c.metrics.RecordRequestStart(req.Method, endpoint)
	defer c.metrics.RecordRequestEnd(req.Method, endpoint)

	// Offline fast-fail: no transport attempt, no retry.
	if !c.monitor.IsOnline() {
		c.metrics.RecordOfflineRejection(req.Method, endpoint)
		c.metrics.RecordError(KindNetwork, req.Method, endpoint)
		return nil, c.newRequestError(KindNetwork, "offline, request not attempted", ErrOffline, requestID, req, 0, 0, time.Since(start))
	}

	// Local throttle: a rejection here never consumed a network slot and
	// is not retried; retrying before the window resets would fail again.
	if !c.rateLimiter.Allow(endpoint) {
		if c.debugEnabled(c.debug.LogRateLimit) {
			c.logger.Warn("rate limit exceeded", "requestID", requestID, "endpoint", endpoint)
		}
		c.metrics.RecordThrottled(endpoint)
		c.metrics.RecordError(KindRateLimitedLocally, req.Method, endpoint)
		return nil, c.newRequestError(KindRateLimitedLocally, "local rate limit exceeded", ErrThrottled, requestID, req, 0, 0, time.Since(start))
	}
	c.metrics.RecordRateLimitRemaining(endpoint, c.rateLimiter.Remaining(endpoint))

	if !c.circuitBreaker.Allow() {
		if c.debugEnabled(c.debug.LogCircuit) {
			c.logger.Warn("circuit breaker open", "requestID", requestID, "endpoint", endpoint)
		}
		c.metrics.RecordError(KindUnknown, req.Method, endpoint)
		return nil, c.newRequestError(KindUnknown, "circuit breaker is open", ErrCircuitOpen, requestID, req, 0, 0, time.Since(start))
	}

	dedupEnabled := c.deduplication != nil && c.dedupCondition(req)
	var dedupKey string
	if dedupEnabled {
		dedupKey = c.dedupKeyFunc(req)
		entry, leader := c.deduplication.GetOrCreateEntry(dedupKey)
		if !leader {
			// Waiters share the leader's outcome and never retry on
			// their own.
			if c.debugEnabled(c.debug.LogDedup) {
				c.logger.Debug("joined in-flight request", "requestID", requestID, "dedupKey", dedupKey)
			}
			c.metrics.RecordDeduplicationHit(req.Method, endpoint)
			resp, err := entry.Wait(req.Context())
			c.recordOutcome(req.Method, endpoint, resp, time.Since(start))
			return resp, err
		}
	}

	cacheEnabled := c.cache != nil && c.cacheCondition(req)
	if cacheEnabled {
		cacheKey := c.cacheKeyFunc(req)
		if entry, found := c.cache.Get(cacheKey); found {
			if c.debugEnabled(c.debug.LogCache) {
				c.logger.Debug("cache hit", "requestID", requestID, "cacheKey", cacheKey)
			}
			c.metrics.RecordCacheHit(req.Method, endpoint)
			resp := newResponseFromCache(entry)
			if dedupEnabled {
				resp, _ = c.deduplication.Complete(dedupKey, resp, nil)
			}
			c.recordOutcome(req.Method, endpoint, resp, time.Since(start))
			return resp, nil
		}
		c.metrics.RecordCacheMiss(req.Method, endpoint)
	}

	resp, err := c.doWithRetry(req, requestID, endpoint, start)

	if dedupEnabled {
		resp, err = c.deduplication.Complete(dedupKey, resp, err)
	}

	if cacheEnabled && err == nil && resp != nil {
		c.cache.Set(c.cacheKeyFunc(req), newCacheEntry(resp), c.cacheTTL)
	}

	c.recordOutcome(req.Method, endpoint, resp, time.Since(start))
	return resp, err
}

// doWithRetry runs the transport attempt loop for the leader path. The
// AttemptState belongs to this logical request and survives across
// retries.
func (c *Client) doWithRetry(req *http.Request, requestID, endpoint string, start time.Time) (*http.Response, error) {
	attempt := &AttemptState{}

	// A retried attempt re-sends the body from the start, so the request
	// must be rewindable. Streaming bodies without GetBody are buffered
	// once up front.
	if req.Body != nil && req.GetBody == nil {
		buffered, err := io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			return nil, c.newRequestError(KindNetwork, "failed to buffer request body", err, requestID, req, 0, 0, time.Since(start))
		}
		req.ContentLength = int64(len(buffered))
		req.Body = io.NopCloser(bytes.NewReader(buffered))
		req.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(buffered)), nil
		}
	}

	for {
		resp, err := c.executeMiddleware(req)

		// The breaker watches transport errors and 5xx only; 4xx means
		// the server is healthy.
		if err != nil || (resp != nil && resp.StatusCode >= 500) {
			c.circuitBreaker.RecordFailure()
		} else {
			c.circuitBreaker.RecordSuccess()
		}
		c.metrics.RecordCircuitBreakerState("default", c.circuitBreaker.State())

		if err == nil && resp.StatusCode < 400 {
			return resp, nil
		}

		kind := Classify(resp, err)
		c.metrics.RecordError(kind, req.Method, endpoint)

		delay, retry := c.retryPolicy.ShouldRetry(attempt, kind)
		if !retry {
			statusCode := 0
			if resp != nil {
				statusCode = resp.StatusCode
			}
			return resp, c.newRequestError(kind, failureMessage(kind), err, requestID, req, statusCode, attempt.Attempts(), time.Since(start))
		}

		if resp != nil {
			// Drain so the connection can be reused for the retry.
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}

		// The retry event is the pipeline's one observability side
		// channel besides the response itself.
		if c.logger != nil {
			c.logger.Info("retry scheduled",
				"endpoint", endpoint,
				"attempt", attempt.RetryCount,
				"maxRetries", c.retryPolicy.Config().MaxRetries,
				"delayMs", delay.Milliseconds())
		}
		c.metrics.RecordRetry(req.Method, endpoint, attempt.RetryCount)

		select {
		case <-time.After(delay):
		case <-req.Context().Done():
			return nil, c.newRequestError(KindNetwork, "request cancelled during backoff", req.Context().Err(), requestID, req, 0, attempt.Attempts(), time.Since(start))
		}

		if req.GetBody != nil {
			body, bodyErr := req.GetBody()
			if bodyErr != nil {
				return nil, c.newRequestError(KindNetwork, "failed to rewind request body", bodyErr, requestID, req, 0, attempt.Attempts(), time.Since(start))
			}
			req.Body = body
		}
	}
}

// executeMiddleware runs the transport through the middleware chain in
// registration order.
func (c *Client) executeMiddleware(req *http.Request) (*http.Response, error) {
	if len(c.middleware) == 0 {
		return c.httpClient.Do(req)
	}

	current := RoundTripperFunc(c.httpClient.Do)
	for i := len(c.middleware) - 1; i >= 0; i-- {
		middleware := c.middleware[i]
		next := current
		current = RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
			return middleware(r, next)
		})
	}
	return current.RoundTrip(req)
}

func (c *Client) recordOutcome(method, endpoint string, resp *http.Response, duration time.Duration) {
	statusCode := 0
	if resp != nil {
		statusCode = resp.StatusCode
	}
	c.metrics.RecordRequest(method, endpoint, statusCode, duration)
}

func (c *Client) debugEnabled(stage bool) bool {
	return c.debug != nil && c.debug.Enabled && stage && c.logger != nil
}

func (c *Client) newRequestError(kind ErrorKind, message string, cause error, requestID string, req *http.Request, statusCode, attempts int, duration time.Duration) *RequestError {
	return &RequestError{
		Kind:       kind,
		Message:    message,
		Cause:      cause,
		RequestID:  requestID,
		Method:     req.Method,
		URL:        req.URL.String(),
		Endpoint:   endpointFromRequest(req),
		StatusCode: statusCode,
		Attempts:   attempts,
		MaxRetries: c.retryPolicy.Config().MaxRetries,
		Duration:   duration,
		Timestamp:  time.Now(),
	}
}

func failureMessage(kind ErrorKind) string {
	switch kind {
	case KindNetwork:
		return "no response received"
	case KindTimeout:
		return "request timed out"
	case KindServer:
		return "server error"
	case KindRateLimited:
		return "rate limited by server"
	case KindUnauthorized:
		return "unauthorized"
	case KindClient:
		return "client error"
	default:
		return "request failed"
	}
}

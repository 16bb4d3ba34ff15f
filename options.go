package resilix

import (
	"fmt"
	"net/http"
	"time"
)

// WithRateLimit registers a per-endpoint rate limit rule. Rules are
// matched as substrings of the endpoint in the order they are added; the
// first match wins.
func WithRateLimit(pattern string, maxRequests int, window time.Duration) Option {
	return func(c *Client) {
		c.rateLimiter.rules = append(c.rateLimiter.rules, RateRule{
			Pattern: pattern,
			Config:  RateConfig{MaxRequests: maxRequests, Window: window},
		})
	}
}

// WithDefaultRateLimit sets the fallback limit for endpoints no rule
// matches.
func WithDefaultRateLimit(maxRequests int, window time.Duration) Option {
	return func(c *Client) {
		c.rateLimiter.fallback = RateConfig{MaxRequests: maxRequests, Window: window}
	}
}

// WithRateLimiter injects a pre-built rate limiter, replacing rules added
// so far.
func WithRateLimiter(rl *RateLimiter) Option {
	return func(c *Client) {
		c.rateLimiter = rl
	}
}

// WithRetryConfig sets the retry policy configuration.
func WithRetryConfig(config RetryConfig) Option {
	return func(c *Client) {
		c.retryPolicy = NewRetryPolicy(config)
	}
}

// WithRetryPolicy injects a pre-built retry policy.
func WithRetryPolicy(policy *RetryPolicy) Option {
	return func(c *Client) {
		c.retryPolicy = policy
	}
}

// WithConnectivityMonitor injects a connectivity monitor shared with the
// platform signal source.
func WithConnectivityMonitor(m *ConnectivityMonitor) Option {
	return func(c *Client) {
		c.monitor = m
	}
}

// WithCircuitBreaker sets the circuit breaker configuration.
func WithCircuitBreaker(config CircuitBreakerConfig) Option {
	return func(c *Client) {
		c.circuitBreaker = NewCircuitBreaker(config)
	}
}

// WithDeduplication enables de-duplication of concurrent identical reads.
func WithDeduplication() Option {
	return func(c *Client) {
		c.deduplication = NewDeduplicationTracker()
	}
}

// WithDeduplicationKeyFunc sets a custom de-duplication key function.
func WithDeduplicationKeyFunc(fn DeduplicationKeyFunc) Option {
	return func(c *Client) {
		c.dedupKeyFunc = fn
	}
}

// WithDeduplicationCondition sets a custom de-duplication condition.
func WithDeduplicationCondition(fn DeduplicationCondition) Option {
	return func(c *Client) {
		c.dedupCondition = fn
	}
}

// WithCache enables response caching with the default in-memory cache.
func WithCache(ttl time.Duration) Option {
	return func(c *Client) {
		c.cache = NewInMemoryCache()
		c.cacheTTL = ttl
	}
}

// WithCustomCache sets a custom cache implementation.
func WithCustomCache(cache Cache, ttl time.Duration) Option {
	return func(c *Client) {
		c.cache = cache
		c.cacheTTL = ttl
	}
}

// WithCacheCondition sets a custom cache condition.
func WithCacheCondition(fn CacheCondition) Option {
	return func(c *Client) {
		c.cacheCondition = fn
	}
}

// WithMiddleware appends middleware to the transport chain.
func WithMiddleware(middleware ...Middleware) Option {
	return func(c *Client) {
		c.middleware = append(c.middleware, middleware...)
	}
}

// WithHTTPClient sets a custom HTTP client as the transport.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTimeout sets the per-attempt transport timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithMetrics enables Prometheus metrics on the default registerer.
func WithMetrics() Option {
	return func(c *Client) {
		c.metrics = NewMetricsCollector()
	}
}

// WithMetricsCollector sets a custom metrics collector.
func WithMetricsCollector(collector *MetricsCollector) Option {
	return func(c *Client) {
		c.metrics = collector
	}
}

// WithLogger sets the structured logging sink.
func WithLogger(logger Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithSimpleLogger enables debug logging with a console logger.
func WithSimpleLogger() Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.Enabled = true
		c.logger = NewSimpleLogger()
	}
}

// WithDebug enables debug logging with the default configuration.
func WithDebug() Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.Enabled = true
	}
}

// WithDebugConfig sets a custom debug configuration.
func WithDebugConfig(config *DebugConfig) Option {
	return func(c *Client) {
		c.debug = config
	}
}

// ValidateConfiguration checks the client's configuration invariants and
// returns a single error aggregating every violation.
func (c *Client) ValidateConfiguration() error {
	var problems []string

	problems = append(problems, c.validateRetryConfig()...)
	problems = append(problems, c.validateRateLimiterConfig()...)
	problems = append(problems, c.validateCircuitBreakerConfig()...)
	problems = append(problems, c.validateCacheConfig()...)
	problems = append(problems, c.validateDeduplicationConfig()...)
	problems = append(problems, c.validateTransportConfig()...)

	if len(problems) > 0 {
		return &RequestError{
			Kind:    KindUnknown,
			Message: "configuration validation failed",
			Cause:   fmt.Errorf("validation errors: %v", problems),
		}
	}
	return nil
}

func (c *Client) validateRetryConfig() []string {
	var problems []string
	config := c.retryPolicy.Config()

	if config.MaxRetries < 0 {
		problems = append(problems, "MaxRetries must be non-negative")
	}
	if config.BaseDelay <= 0 {
		problems = append(problems, "BaseDelay must be positive")
	}
	if config.MaxDelay < config.BaseDelay {
		problems = append(problems, "MaxDelay must be greater than or equal to BaseDelay")
	}
	return problems
}

func (c *Client) validateRateLimiterConfig() []string {
	var problems []string

	check := func(name string, config RateConfig) {
		if config.MaxRequests <= 0 {
			problems = append(problems, fmt.Sprintf("rate limit %q: MaxRequests must be positive", name))
		}
		if config.Window <= 0 {
			problems = append(problems, fmt.Sprintf("rate limit %q: Window must be positive", name))
		}
	}
	for _, rule := range c.rateLimiter.rules {
		check(rule.Pattern, rule.Config)
	}
	check("default", c.rateLimiter.fallback)
	return problems
}

func (c *Client) validateCircuitBreakerConfig() []string {
	var problems []string
	if c.circuitBreaker != nil {
		if c.circuitBreaker.config.FailureThreshold <= 0 {
			problems = append(problems, "circuit breaker FailureThreshold must be positive")
		}
		if c.circuitBreaker.config.RecoveryTimeout <= 0 {
			problems = append(problems, "circuit breaker RecoveryTimeout must be positive")
		}
		if c.circuitBreaker.config.SuccessThreshold <= 0 {
			problems = append(problems, "circuit breaker SuccessThreshold must be positive")
		}
	}
	return problems
}

func (c *Client) validateCacheConfig() []string {
	if c.cache != nil && c.cacheTTL <= 0 {
		return []string{"cacheTTL must be positive when cache is enabled"}
	}
	return nil
}

func (c *Client) validateDeduplicationConfig() []string {
	var problems []string
	if c.deduplication != nil {
		if c.dedupKeyFunc == nil {
			problems = append(problems, "deduplication key function must be set when deduplication is enabled")
		}
		if c.dedupCondition == nil {
			problems = append(problems, "deduplication condition must be set when deduplication is enabled")
		}
	}
	return problems
}

func (c *Client) validateTransportConfig() []string {
	var problems []string
	if c.httpClient == nil {
		problems = append(problems, "HTTP client cannot be nil")
	}
	if c.monitor == nil {
		problems = append(problems, "connectivity monitor cannot be nil")
	}
	for i, m := range c.middleware {
		if m == nil {
			problems = append(problems, fmt.Sprintf("middleware[%d] cannot be nil", i))
		}
	}
	return problems
}

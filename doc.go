// Package resilix is a client-side request resilience layer that sits in
// front of an API client and hardens every outbound HTTP call:
//
//   - Per-endpoint rate limiting with fixed time windows
//   - Retries with exponential backoff + jitter for transient failures
//   - De-duplication of concurrent identical read requests
//   - Connectivity tracking with an offline fast-fail gate
//   - Circuit breaker (open / half-open / closed states)
//   - Optional in-memory response caching for reads
//   - Middleware chain for cross-cutting concerns (auth, tracing, etc.)
//   - Prometheus metrics and lightweight structured debug logging
//
// Design goals:
//   - Small surface area: functional options configure everything
//   - No hidden globals: limiter, tracker, monitor and breaker are explicit
//     instances owned by the Client and injectable for tests
//   - Safe concurrent use of a single *Client instance
//
// Typical usage:
//
//	client := resilix.New(
//	    resilix.WithRateLimit("/login", 3, time.Second),
//	    resilix.WithDefaultRateLimit(60, time.Minute),
//	    resilix.WithRetryConfig(resilix.RetryConfig{
//	        MaxRetries: 2,
//	        BaseDelay:  100 * time.Millisecond,
//	        MaxDelay:   time.Second,
//	    }),
//	    resilix.WithDeduplication(),
//	)
//	resp, err := client.Get(ctx, "https://api.example.com/data")
//
// The pipeline applies its gates in a fixed, visible order: connectivity,
// rate limit, circuit breaker, de-duplication, transport. Failures are
// classified into a closed ErrorKind set; only Network, Timeout, Server and
// RateLimited kinds are ever retried. Terminal failures surface as
// *RequestError carrying the kind, retryability and attempts made.
package resilix

// Package metrics provides the Prometheus metrics surface for the harvester.
// All metrics are defined in their respective packages (client, cache,
// ratelimit, harvest) via promauto to maintain modularity; this package
// documents them and exposes the optional scrape endpoint for long runs.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by the harvester.
var Registry = prometheus.DefaultRegisterer

// StartServer exposes /metrics on addr. Intended for multi-hour scrapes
// where operators want live progress; short runs can skip it entirely.
func StartServer(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return server.ListenAndServe()
}

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - jira_requests_total{endpoint, status} (Counter): Requests by endpoint and HTTP status
//   - jira_request_duration_seconds{endpoint} (Histogram): Request duration by endpoint
//   - jira_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network)
//
// Retry Metrics (pkg/client):
//   - jira_retries_total{error_class} (Counter): Retry attempts by error class
//   - jira_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - jira_retry_exhausted_total{error_class} (Counter): Calls that exhausted max attempts
//
// Rate Limit Metrics (pkg/ratelimit):
//   - jira_rate_limit_remaining (Gauge): Requests remaining in the current window
//   - jira_rate_limit_blocks_total (Counter): Waits taken for window resets
//   - jira_rate_limit_throttles_total (Counter): Throttle pauses between requests
//
// Cache Metrics (pkg/cache):
//   - jira_cache_hits_total{layer} (Counter): Response cache hits
//   - jira_cache_misses_total (Counter): Response cache misses
//   - jira_304_responses_total (Counter): 304 Not Modified responses
//   - jira_conditional_requests_total (Counter): Conditional requests sent
//   - jira_cache_errors_total{operation} (Counter): Cache operation errors
//
// Harvest Metrics (pkg/harvest):
//   - harvest_issues_total{project, outcome} (Counter): Issues by outcome (emitted, skipped, failed)
//   - harvest_projects_failed_total (Counter): Projects abandoned after pagination failure
//
// Example Prometheus Queries:
//
//   # Emission rate
//   sum(rate(harvest_issues_total{outcome="emitted"}[5m]))
//
//   # Retry pressure by error class
//   rate(jira_retries_total[5m])
//
//   # P95 request latency
//   histogram_quantile(0.95, rate(jira_request_duration_seconds_bucket[5m]))

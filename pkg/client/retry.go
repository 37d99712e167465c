package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for retry operations.
var (
	jiraRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jira_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	jiraRetryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "jira_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error class",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"error_class"})

	jiraRetryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jira_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error class",
	}, []string{"error_class"})
)

// RetryConfig holds the configuration for retry logic.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts per call site
	// (including the initial request).
	MaxAttempts int

	// InitialBackoff is the backoff before the second attempt.
	InitialBackoff time.Duration

	// MaxBackoff caps the exponential backoff.
	MaxBackoff time.Duration

	// BackoffMultiplier is the multiplier for exponential backoff.
	BackoffMultiplier float64
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       5,
		InitialBackoff:    1 * time.Second,
		MaxBackoff:        60 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// Executor wraps a single HTTP call with bounded retries, exponential
// backoff, and rate-limit-aware waiting.
//
// Classification:
//   - transport failure: retryable, exponential backoff
//   - HTTP 429: retryable, waits for the Retry-After header value when
//     present and parseable, exponential default otherwise
//   - HTTP 5xx: retryable, exponential backoff
//   - other HTTP 4xx: terminal on the first attempt, status and body preserved
//   - HTTP 2xx: success
type Executor struct {
	config RetryConfig
	logger zerolog.Logger

	// sleep blocks for the given duration or until the context is done.
	// Overridable in tests to observe waits without real delays.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewExecutor creates a retry executor with the given configuration.
// Zero-valued fields fall back to DefaultRetryConfig.
func NewExecutor(config RetryConfig) *Executor {
	def := DefaultRetryConfig()
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = def.MaxAttempts
	}
	if config.InitialBackoff <= 0 {
		config.InitialBackoff = def.InitialBackoff
	}
	if config.MaxBackoff <= 0 {
		config.MaxBackoff = def.MaxBackoff
	}
	if config.BackoffMultiplier <= 0 {
		config.BackoffMultiplier = def.BackoffMultiplier
	}

	return &Executor{
		config: config,
		logger: log.With().Str("component", "retry").Logger(),
		sleep:  sleepContext,
	}
}

// Do executes requestFn with bounded retries. requestFn performs exactly one
// network call. On success the response is returned with its body unread.
// On a terminal failure the last response body has been closed.
func (e *Executor) Do(ctx context.Context, requestFn func() (*http.Response, error)) (*http.Response, error) {
	var lastErr error
	var lastClass ErrorClass

	for attempt := 1; attempt <= e.config.MaxAttempts; attempt++ {
		resp, err := requestFn()

		// Transport failure: timeout, DNS, connection reset.
		if err != nil {
			lastErr = err
			lastClass = ErrorClassNetwork
		} else if resp.StatusCode < 400 {
			// Success
			if attempt > 1 {
				e.logger.Info().
					Int("attempt", attempt).
					Int("status_code", resp.StatusCode).
					Msg("Request succeeded after retry")
			}
			return resp, nil
		} else {
			class := classifyStatus(resp.StatusCode)
			body := readBodyForError(resp)

			apiErr := &APIError{
				StatusCode: resp.StatusCode,
				Class:      class,
				Body:       body,
			}

			if !shouldRetry(class) {
				// Non-429 4xx: fail immediately, surfacing status and body.
				return nil, apiErr
			}

			lastErr = apiErr
			lastClass = class

			// 429 with a parseable Retry-After header overrides the
			// exponential default for this attempt.
			if class == ErrorClassRateLimit {
				if wait, ok := parseRetryAfter(resp.Header); ok && attempt < e.config.MaxAttempts {
					jiraRetriesTotal.WithLabelValues(string(class)).Inc()
					jiraRetryBackoffSeconds.WithLabelValues(string(class)).Observe(wait.Seconds())

					e.logger.Warn().
						Int("attempt", attempt).
						Dur("backoff", wait).
						Msg("Rate limited, honoring Retry-After")

					if err := e.sleep(ctx, wait); err != nil {
						return nil, fmt.Errorf("%w: %v", ErrContextCancelled, err)
					}
					continue
				}
			}
		}

		// Last attempt: no wait, fall through to exhaustion.
		if attempt >= e.config.MaxAttempts {
			break
		}

		backoff := e.backoffFor(attempt)
		jiraRetriesTotal.WithLabelValues(string(lastClass)).Inc()
		jiraRetryBackoffSeconds.WithLabelValues(string(lastClass)).Observe(backoff.Seconds())

		e.logger.Warn().
			Str("error_class", string(lastClass)).
			Int("attempt", attempt).
			Dur("backoff", backoff).
			Err(lastErr).
			Msg("Retrying request after backoff")

		if err := e.sleep(ctx, backoff); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrContextCancelled, err)
		}
	}

	// All retries exhausted
	jiraRetryExhaustedTotal.WithLabelValues(string(lastClass)).Inc()
	e.logger.Warn().
		Str("error_class", string(lastClass)).
		Int("max_attempts", e.config.MaxAttempts).
		Msg("Retry attempts exhausted")

	return nil, fmt.Errorf("%w after %d attempts: %v", ErrRetriesExhausted, e.config.MaxAttempts, lastErr)
}

// backoffFor returns base * multiplier^(attempt-1), capped at MaxBackoff.
// attempt is 1-indexed.
func (e *Executor) backoffFor(attempt int) time.Duration {
	backoff := e.config.InitialBackoff
	for i := 1; i < attempt; i++ {
		backoff = time.Duration(float64(backoff) * e.config.BackoffMultiplier)
		if backoff >= e.config.MaxBackoff {
			return e.config.MaxBackoff
		}
	}
	if backoff > e.config.MaxBackoff {
		backoff = e.config.MaxBackoff
	}
	return backoff
}

// parseRetryAfter extracts a wait duration from the Retry-After header.
// Supports the delay-seconds form; HTTP-date values are ignored.
func parseRetryAfter(headers http.Header) (time.Duration, bool) {
	value := headers.Get("Retry-After")
	if value == "" {
		return 0, false
	}
	seconds, err := strconv.ParseFloat(value, 64)
	if err != nil || seconds < 0 {
		return 0, false
	}
	return time.Duration(seconds * float64(time.Second)), true
}

// readBodyForError drains and closes the response body, returning up to 4KiB
// of it for error reporting.
func readBodyForError(resp *http.Response) string {
	if resp.Body == nil {
		return ""
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return ""
	}
	return string(data)
}

// sleepContext blocks for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

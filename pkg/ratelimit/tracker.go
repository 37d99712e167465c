package ratelimit

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for rate limit tracking.
var (
	jiraRateLimitRemaining = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "jira_rate_limit_remaining",
		Help: "Requests remaining in the current Jira rate limit window",
	})

	jiraRateLimitBlocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "jira_rate_limit_blocks_total",
		Help: "Total number of waits taken because the rate limit budget was critical",
	})

	jiraRateLimitThrottlesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "jira_rate_limit_throttles_total",
		Help: "Total number of throttle pauses inserted between requests",
	})
)

// maxStateAge is how long observed headers stay authoritative.
const maxStateAge = 2 * time.Minute

// Tracker monitors Jira rate limit headers and gates outgoing requests.
// Safe for use from a single fetch loop; the mutex only guards against
// concurrent header updates from shared HTTP transports.
type Tracker struct {
	mu     sync.Mutex
	state  State
	logger zerolog.Logger

	// sleep is overridable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewTracker creates a rate limit tracker.
func NewTracker(logger zerolog.Logger) *Tracker {
	return &Tracker{
		logger: logger,
		sleep: func(ctx context.Context, d time.Duration) error {
			timer := time.NewTimer(d)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-timer.C:
				return nil
			}
		},
	}
}

// State returns a copy of the current rate limit state.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// UpdateFromHeaders parses rate limit headers from a Jira response and
// records the new window state. Responses without the headers leave the
// state untouched.
func (t *Tracker) UpdateFromHeaders(headers http.Header) {
	remainStr := headers.Get("X-RateLimit-Remaining")
	if remainStr == "" {
		return
	}

	remaining, err := strconv.Atoi(remainStr)
	if err != nil {
		t.logger.Debug().Str("value", remainStr).Msg("Unparseable X-RateLimit-Remaining header")
		return
	}

	resetAt := parseReset(headers.Get("X-RateLimit-Reset"))

	t.mu.Lock()
	t.state = State{
		Remaining:  remaining,
		ResetAt:    resetAt,
		LastUpdate: time.Now(),
		Known:      true,
	}
	t.mu.Unlock()

	jiraRateLimitRemaining.Set(float64(remaining))

	if remaining < RemainingThresholdWarning {
		t.logger.Warn().
			Int("remaining", remaining).
			Time("reset_at", resetAt).
			Msg("Rate limit budget low")
	}
}

// Wait blocks before the next request when the observed budget requires it.
// With a critical budget it waits until the window resets; with a low budget
// it inserts a short throttle pause. Unknown or stale state never waits.
func (t *Tracker) Wait(ctx context.Context) error {
	t.mu.Lock()
	state := t.state
	if state.Known && state.IsStale(maxStateAge) {
		t.state.Known = false
		state.Known = false
	}
	t.mu.Unlock()

	if state.NeedsBlock() {
		wait := time.Until(state.ResetAt)
		jiraRateLimitBlocksTotal.Inc()
		t.logger.Warn().
			Int("remaining", state.Remaining).
			Dur("wait", wait).
			Msg("Rate limit budget critical, waiting for window reset")
		return t.sleep(ctx, wait)
	}

	if state.NeedsThrottle() {
		jiraRateLimitThrottlesTotal.Inc()
		t.logger.Debug().
			Int("remaining", state.Remaining).
			Dur("wait", ThrottleDelay).
			Msg("Throttling request")
		return t.sleep(ctx, ThrottleDelay)
	}

	return nil
}

// parseReset accepts the X-RateLimit-Reset header either as an RFC 3339
// timestamp (Jira Cloud) or as delay seconds.
func parseReset(value string) time.Time {
	if value == "" {
		return time.Now().Add(time.Minute)
	}
	if ts, err := time.Parse(time.RFC3339, value); err == nil {
		return ts
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Now().Add(time.Duration(secs) * time.Second)
	}
	return time.Now().Add(time.Minute)
}

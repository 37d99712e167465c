// Package ratelimit tracks Jira rate limit headers and gates requests.
// It monitors the X-RateLimit-Remaining and X-RateLimit-Reset headers so the
// scraper can slow down before the server starts returning 429s.
package ratelimit

import (
	"time"
)

// Thresholds for rate limit decisions.
const (
	// RemainingThresholdCritical blocks requests until the window resets when
	// the remaining budget falls below this value.
	RemainingThresholdCritical = 2

	// RemainingThresholdWarning applies throttling when the remaining budget
	// falls below this value.
	RemainingThresholdWarning = 10

	// ThrottleDelay is the pause inserted between requests while throttled.
	ThrottleDelay = 500 * time.Millisecond
)

// State represents the most recently observed rate limit window.
type State struct {
	// Remaining is the number of requests left in the current window.
	// Extracted from the X-RateLimit-Remaining header.
	Remaining int

	// ResetAt is when the window resets. From the X-RateLimit-Reset header.
	ResetAt time.Time

	// LastUpdate is when this state was last refreshed from response headers.
	LastUpdate time.Time

	// Known is false until the server has sent rate limit headers at least
	// once. Unknown state never gates requests.
	Known bool
}

// IsStale returns true if the state is older than maxAge. Stale state is
// treated as unknown since the window has likely rolled over.
func (s *State) IsStale(maxAge time.Duration) bool {
	return time.Since(s.LastUpdate) > maxAge
}

// NeedsBlock returns true if requests should pause until ResetAt.
func (s *State) NeedsBlock() bool {
	return s.Known && s.Remaining < RemainingThresholdCritical && time.Now().Before(s.ResetAt)
}

// NeedsThrottle returns true if requests should be slowed down.
func (s *State) NeedsThrottle() bool {
	return s.Known && s.Remaining < RemainingThresholdWarning
}

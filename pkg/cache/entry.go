// Package cache provides optional Redis-backed caching of Jira responses
// with ETag support for conditional requests. It cuts down on re-fetching
// unchanged issue details across resumed runs.
package cache

import (
	"time"
)

// Entry represents a cached Jira response.
type Entry struct {
	// Data is the response body
	Data []byte `json:"data"`

	// ETag for conditional requests (If-None-Match)
	ETag string `json:"etag"`

	// StatusCode is the HTTP status code of the cached response
	StatusCode int `json:"status_code"`

	// CachedAt is when we cached this response
	CachedAt time.Time `json:"cached_at"`
}

// Age returns how long ago the entry was cached.
func (e *Entry) Age() time.Duration {
	return time.Since(e.CachedAt)
}

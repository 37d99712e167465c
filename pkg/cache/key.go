package cache

import (
	"net/url"
	"sort"
	"strings"
)

// Key represents a unique identifier for a cached Jira response.
type Key struct {
	// Endpoint is the API path (e.g., "/rest/api/2/issue/SPARK-12345")
	Endpoint string

	// QueryParams are the request query parameters (e.g., {"expand": "comments"})
	QueryParams url.Values
}

// String generates a deterministic cache key string.
// Format: jira:endpoint:query1=val1:query2=val2
//
// Example:
//
//	jira:rest/api/2/issue/SPARK-12345:expand=comments
func (k Key) String() string {
	parts := []string{"jira"}

	endpoint := strings.Trim(k.Endpoint, "/")
	if endpoint != "" {
		parts = append(parts, endpoint)
	}

	// Query params sorted for determinism
	if len(k.QueryParams) > 0 {
		names := make([]string, 0, len(k.QueryParams))
		for name := range k.QueryParams {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			parts = append(parts, name+"="+strings.Join(k.QueryParams[name], ","))
		}
	}

	return strings.Join(parts, ":")
}

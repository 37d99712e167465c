// Package testutil provides testing utilities for the Jira harvester.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"
)

// MockResponse defines the behavior for one mock Jira response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockIssue is a minimal issue the mock search and issue endpoints serve.
type MockIssue struct {
	Key         string
	Summary     string
	Description string
	IssueType   string
	Status      string
	Comments    []string
}

// MockJira is a configurable mock Jira server for testing.
type MockJira struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]http.HandlerFunc
	queues   map[string][]MockResponse
	projects map[string][]MockIssue

	// Tracking
	RequestCount int
	pathCounts   map[string]int
}

// NewMockJira creates a new mock Jira server. Projects registered via
// SetProject get auto-paginating /search and per-issue /issue/{key}
// behavior; explicit handlers and queued responses take precedence.
func NewMockJira() *MockJira {
	mock := &MockJira{
		handlers:   make(map[string]http.HandlerFunc),
		queues:     make(map[string][]MockResponse),
		projects:   make(map[string][]MockIssue),
		pathCounts: make(map[string]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.pathCounts[r.URL.Path]++

		// Queued responses are consumed one per request.
		if queue := mock.queues[r.URL.Path]; len(queue) > 0 {
			resp := queue[0]
			mock.queues[r.URL.Path] = queue[1:]
			mock.mu.Unlock()
			writeMockResponse(w, resp)
			return
		}

		handler := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		if handler != nil {
			handler(w, r)
			return
		}

		mock.defaultHandler(w, r)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockJira) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockJira) Close() {
	m.server.Close()
}

// SetHandler sets a custom handler for a specific path.
func (m *MockJira) SetHandler(path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a fixed response for a path.
func (m *MockJira) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		writeMockResponse(w, resp)
	})
}

// QueueResponses scripts a sequence of responses for a path, consumed in
// order; later requests fall through to the handler or default behavior.
func (m *MockJira) QueueResponses(path string, responses ...MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queues[path] = append(m.queues[path], responses...)
}

// SetProject registers issues served by the auto-paginating /search handler
// and by the per-issue detail endpoint.
func (m *MockJira) SetProject(key string, issues []MockIssue) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.projects[key] = issues
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockJira) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// RequestsFor returns the number of requests made to the given path.
func (m *MockJira) RequestsFor(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pathCounts[path]
}

// defaultHandler serves registered projects Jira-style.
func (m *MockJira) defaultHandler(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/search":
		m.handleSearch(w, r)
	case len(r.URL.Path) > len("/issue/") && r.URL.Path[:len("/issue/")] == "/issue/":
		m.handleIssue(w, r, r.URL.Path[len("/issue/"):])
	default:
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"errorMessages":["not found"]}`)
	}
}

func (m *MockJira) handleSearch(w http.ResponseWriter, r *http.Request) {
	project := projectFromJQL(r.URL.Query().Get("jql"))

	m.mu.RLock()
	issues, ok := m.projects[project]
	m.mu.RUnlock()

	if !ok {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprintf(w, `{"errorMessages":["project %s does not exist"]}`, project)
		return
	}

	startAt, _ := strconv.Atoi(r.URL.Query().Get("startAt"))
	maxResults, _ := strconv.Atoi(r.URL.Query().Get("maxResults"))
	if maxResults <= 0 {
		maxResults = 50
	}

	end := startAt + maxResults
	if startAt > len(issues) {
		startAt = len(issues)
	}
	if end > len(issues) {
		end = len(issues)
	}

	page := map[string]any{
		"startAt":    startAt,
		"maxResults": maxResults,
		"total":      len(issues),
		"issues":     issuesJSON(issues[startAt:end], false),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(page)
}

func (m *MockJira) handleIssue(w http.ResponseWriter, r *http.Request, key string) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, issues := range m.projects {
		for _, issue := range issues {
			if issue.Key == key {
				w.Header().Set("Content-Type", "application/json")
				json.NewEncoder(w).Encode(issueJSON(issue, true))
				return
			}
		}
	}

	w.WriteHeader(http.StatusNotFound)
	fmt.Fprintf(w, `{"errorMessages":["issue %s does not exist"]}`, key)
}

// projectFromJQL pulls the project key out of "project=KEY order by key asc".
func projectFromJQL(jql string) string {
	const prefix = "project="
	if len(jql) < len(prefix) || jql[:len(prefix)] != prefix {
		return ""
	}
	rest := jql[len(prefix):]
	for i := 0; i < len(rest); i++ {
		if rest[i] == ' ' {
			return rest[:i]
		}
	}
	return rest
}

func issuesJSON(issues []MockIssue, withComments bool) []map[string]any {
	out := make([]map[string]any, 0, len(issues))
	for _, issue := range issues {
		out = append(out, issueJSON(issue, withComments))
	}
	return out
}

func issueJSON(issue MockIssue, withComments bool) map[string]any {
	fields := map[string]any{
		"summary":     issue.Summary,
		"description": issue.Description,
		"labels":      []string{},
	}
	if issue.IssueType != "" {
		fields["issuetype"] = map[string]any{"name": issue.IssueType}
	}
	if issue.Status != "" {
		fields["status"] = map[string]any{"name": issue.Status}
	}
	if withComments {
		comments := make([]map[string]any, 0, len(issue.Comments))
		for _, body := range issue.Comments {
			comments = append(comments, map[string]any{"body": body})
		}
		fields["comment"] = map[string]any{"comments": comments}
	}

	return map[string]any{
		"key":    issue.Key,
		"fields": fields,
	}
}

func writeMockResponse(w http.ResponseWriter, resp MockResponse) {
	if resp.Delay > 0 {
		time.Sleep(resp.Delay)
	}
	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		w.Write([]byte(resp.Body))
	}
}

// NewRateLimitResponse creates a 429 response with a Retry-After header.
func NewRateLimitResponse(retryAfterSeconds int) MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"errorMessages":["rate limit exceeded"]}`,
		Headers: map[string]string{
			"Retry-After":  strconv.Itoa(retryAfterSeconds),
			"Content-Type": "application/json",
		},
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"errorMessages":["internal server error"]}`,
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
	}
}

// Package client provides the core Jira REST client with retry, rate limit
// awareness, optional response caching, and error classification.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/corpustools/jira-harvest/pkg/cache"
	"github.com/corpustools/jira-harvest/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for Jira client operations.
var (
	jiraRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jira_requests_total",
		Help: "Total Jira requests by endpoint and status",
	}, []string{"endpoint", "status"})

	jiraRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "jira_request_duration_seconds",
		Help:    "Jira request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	jiraErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jira_errors_total",
		Help: "Total Jira errors by class",
	}, []string{"class"})
)

// DefaultBaseURL is the public Apache Jira REST API root.
const DefaultBaseURL = "https://issues.apache.org/jira/rest/api/2"

// searchFields is the fixed field selection for listing queries. Fields not
// requested come back absent and normalize to explicit nulls downstream.
const searchFields = "summary,description,issuetype,status,priority,assignee,reporter,created,updated,labels"

// Config holds the client configuration.
type Config struct {
	// BaseURL is the Jira REST API root (default: DefaultBaseURL).
	BaseURL string

	// UserAgent identifies the scraper to the server.
	UserAgent string

	// Timeout applies per HTTP call, not per project.
	Timeout time.Duration

	// Retry configures the retry executor.
	Retry RetryConfig

	// Cache is the optional Redis-backed response cache for issue detail
	// fetches. Nil disables caching.
	Cache *cache.Manager
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(userAgent string) Config {
	return Config{
		BaseURL:   DefaultBaseURL,
		UserAgent: userAgent,
		Timeout:   30 * time.Second,
		Retry:     DefaultRetryConfig(),
	}
}

// Client is the Jira REST client.
type Client struct {
	httpClient  *http.Client
	executor    *Executor
	rateLimiter *ratelimit.Tracker
	cache       *cache.Manager
	config      Config
	logger      zerolog.Logger
}

// New creates a new Jira client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")

	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	logger := log.With().Str("component", "jira-client").Logger()

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		executor:    NewExecutor(cfg.Retry),
		rateLimiter: ratelimit.NewTracker(logger),
		cache:       cfg.Cache,
		config:      cfg,
		logger:      logger,
	}, nil
}

// SearchPage is one page of listing results from the search endpoint.
type SearchPage struct {
	StartAt    int     `json:"startAt"`
	MaxResults int     `json:"maxResults"`
	Total      int     `json:"total"`
	Issues     []Issue `json:"issues"`
}

// Issue is the raw Jira issue representation, for both listing summaries and
// full detail responses.
type Issue struct {
	Key    string      `json:"key"`
	Fields IssueFields `json:"fields"`
}

// IssueFields holds the requested issue fields. Optional upstream fields are
// pointers so absence survives into normalization.
type IssueFields struct {
	Summary     *string       `json:"summary"`
	Description *string       `json:"description"`
	IssueType   *NamedField   `json:"issuetype"`
	Status      *NamedField   `json:"status"`
	Priority    *NamedField   `json:"priority"`
	Reporter    *UserField    `json:"reporter"`
	Assignee    *UserField    `json:"assignee"`
	Created     *string       `json:"created"`
	Updated     *string       `json:"updated"`
	Labels      []string      `json:"labels"`
	Project     *ProjectField `json:"project"`
	Comment     *CommentBlock `json:"comment"`
}

// NamedField is a Jira object referenced by display name (status, priority,
// issue type).
type NamedField struct {
	Name string `json:"name"`
}

// UserField is a Jira user reference.
type UserField struct {
	DisplayName string `json:"displayName"`
}

// ProjectField is a Jira project reference.
type ProjectField struct {
	Key string `json:"key"`
}

// CommentBlock is the comment container on a detailed issue.
type CommentBlock struct {
	Comments []Comment `json:"comments"`
}

// Comment is a single issue comment.
type Comment struct {
	Body string `json:"body"`
}

// SearchIssues queries one page of issues for a project, ordered by key so
// pagination is deterministic.
func (c *Client) SearchIssues(ctx context.Context, project string, startAt, maxResults int) (*SearchPage, error) {
	if project == "" {
		return nil, fmt.Errorf("project key cannot be empty")
	}

	query := url.Values{}
	query.Set("jql", fmt.Sprintf("project=%s order by key asc", project))
	query.Set("startAt", strconv.Itoa(startAt))
	query.Set("maxResults", strconv.Itoa(maxResults))
	query.Set("fields", searchFields)

	body, err := c.getJSON(ctx, "search", "/search", query, false)
	if err != nil {
		return nil, err
	}

	var page SearchPage
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	return &page, nil
}

// GetIssue fetches the full detail (including comments) for one issue.
// Detail responses go through the response cache when one is configured.
func (c *Client) GetIssue(ctx context.Context, issueKey string) (*Issue, error) {
	if issueKey == "" {
		return nil, fmt.Errorf("issue key cannot be empty")
	}

	query := url.Values{}
	query.Set("expand", "comments")

	body, err := c.getJSON(ctx, "issue", "/issue/"+issueKey, query, true)
	if err != nil {
		return nil, err
	}

	var issue Issue
	if err := json.Unmarshal(body, &issue); err != nil {
		return nil, fmt.Errorf("decode issue %s: %w", issueKey, err)
	}

	return &issue, nil
}

// getJSON performs one logical GET with rate limiting, optional caching, and
// retry, returning the response body.
func (c *Client) getJSON(ctx context.Context, endpoint, path string, query url.Values, cacheable bool) ([]byte, error) {
	startTime := time.Now()
	defer func() {
		jiraRequestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	// Back off pre-emptively when the observed budget is low.
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	requestURL := c.config.BaseURL + path + "?" + query.Encode()

	var cachedEntry *cache.Entry
	if cacheable && c.cache != nil {
		key := cache.Key{Endpoint: path, QueryParams: query}

		entry, err := c.cache.Get(ctx, key)
		if err != nil && !errors.Is(err, cache.ErrCacheMiss) {
			c.logger.Warn().Err(err).Str("endpoint", path).Msg("Cache get error")
		}
		cachedEntry = entry
	}

	c.logger.Debug().
		Str("endpoint", path).
		Msg("Executing Jira request")

	resp, err := c.executor.Do(ctx, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("User-Agent", c.config.UserAgent)
		req.Header.Set("Accept", "application/json")

		if cache.ShouldMakeConditionalRequest(cachedEntry) {
			cache.AddConditionalHeaders(req, cachedEntry)
			cache.ConditionalRequestsSent.Inc()
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			jiraErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
			jiraRequestsTotal.WithLabelValues(endpoint, "network_error").Inc()
			return nil, err
		}

		c.rateLimiter.UpdateFromHeaders(resp.Header)

		if resp.StatusCode >= 400 {
			class := classifyStatus(resp.StatusCode)
			jiraErrorsTotal.WithLabelValues(string(class)).Inc()
		}
		jiraRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

		return resp, nil
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	// 304 Not Modified: serve the cached body.
	if resp.StatusCode == http.StatusNotModified && cachedEntry != nil {
		cache.NotModifiedResponses.Inc()
		c.logger.Debug().Str("endpoint", path).Msg("304 Not Modified, using cached response")
		return cachedEntry.Data, nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if cacheable && c.cache != nil && resp.StatusCode == http.StatusOK {
		entry := &cache.Entry{
			Data:       body,
			ETag:       resp.Header.Get("ETag"),
			StatusCode: resp.StatusCode,
			CachedAt:   time.Now(),
		}
		key := cache.Key{Endpoint: path, QueryParams: query}
		if err := c.cache.Set(ctx, key, entry); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to cache response")
		}
	}

	return body, nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// SetExecutor replaces the retry executor (for testing with small backoffs).
func (c *Client) SetExecutor(executor *Executor) {
	c.executor = executor
}

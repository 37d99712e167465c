// Package harvest composes the Jira client, paginated fetcher, checkpoint
// store, and corpus sink into the sequential scrape run.
package harvest

import (
	"context"

	"github.com/corpustools/jira-harvest/pkg/checkpoint"
	"github.com/corpustools/jira-harvest/pkg/client"
	"github.com/corpustools/jira-harvest/pkg/pagination"
	"github.com/corpustools/jira-harvest/pkg/transform"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for harvest runs.
var (
	harvestIssuesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "harvest_issues_total",
		Help: "Issues handled per project by outcome (emitted, skipped, failed)",
	}, []string{"project", "outcome"})

	harvestProjectsFailedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "harvest_projects_failed_total",
		Help: "Projects abandoned because their pagination terminally failed",
	})
)

// State labels a project's position in the run.
type State string

const (
	StateStarting       State = "starting"
	StatePaging         State = "paging"
	StateFetchingDetail State = "fetching_detail"
	StateEmitting       State = "emitting"
	StateCheckpointing  State = "checkpointing"
	StateDone           State = "done"
	StateFailed         State = "failed"
)

// API is the Jira surface the orchestrator drives. *client.Client implements it.
type API interface {
	SearchIssues(ctx context.Context, project string, startAt, maxResults int) (*client.SearchPage, error)
	GetIssue(ctx context.Context, issueKey string) (*client.Issue, error)
}

// Sink receives normalized records. *corpus.Writer implements it.
type Sink interface {
	Append(record transform.NormalizedIssue) error
}

// Config holds the run parameters.
type Config struct {
	// Projects are scraped in the given order.
	Projects []string

	// PageSize is the listing page size.
	PageSize int

	// MaxIssues is the process-wide emission budget across all projects.
	// Zero means unlimited.
	MaxIssues int
}

// ProjectSummary reports one project's outcome.
type ProjectSummary struct {
	Project string
	State   State
	Emitted int
	Skipped int
	Failed  int
}

// Orchestrator runs the fetch-normalize-emit-checkpoint loop.
type Orchestrator struct {
	api    API
	store  checkpoint.Store
	sink   Sink
	config Config
	logger zerolog.Logger
}

// New creates an orchestrator. The checkpoint store must already be loaded;
// corrupt checkpoints are rejected at Open time, before any network call.
func New(api API, store checkpoint.Store, sink Sink, config Config) *Orchestrator {
	if config.PageSize <= 0 {
		config.PageSize = 100
	}
	return &Orchestrator{
		api:    api,
		store:  store,
		sink:   sink,
		config: config,
		logger: log.With().Str("component", "harvest").Logger(),
	}
}

// Run scrapes every configured project in order. A project whose pagination
// terminally fails is abandoned and the run moves on; the returned error is
// reserved for conditions that invalidate the whole run (sink or checkpoint
// write failures, context cancellation).
func (o *Orchestrator) Run(ctx context.Context) ([]ProjectSummary, error) {
	summaries := make([]ProjectSummary, 0, len(o.config.Projects))
	budget := o.config.MaxIssues

	for _, project := range o.config.Projects {
		summary, err := o.runProject(ctx, project, &budget)
		summaries = append(summaries, summary)
		if err != nil {
			return summaries, err
		}

		o.logger.Info().
			Str("project", summary.Project).
			Str("state", string(summary.State)).
			Int("emitted", summary.Emitted).
			Int("skipped", summary.Skipped).
			Int("failed", summary.Failed).
			Msg("Project finished")

		// Budget exhausted: the whole run is done regardless of
		// remaining pages or projects.
		if o.config.MaxIssues > 0 && budget <= 0 {
			break
		}
	}

	return summaries, nil
}

// runProject drives one project from Paging to Done or Failed. budget is the
// shared emission counter across projects.
func (o *Orchestrator) runProject(ctx context.Context, project string, budget *int) (ProjectSummary, error) {
	summary := ProjectSummary{Project: project, State: StatePaging}
	logger := o.logger.With().Str("project", project).Logger()

	fetcher := pagination.NewFetcher(o.api, project, o.config.PageSize)

	for {
		// Budget check precedes the page pull so an exhausted run makes no
		// further network calls.
		if o.config.MaxIssues > 0 && *budget <= 0 {
			summary.State = StateDone
			return summary, nil
		}

		if !fetcher.Scan(ctx) {
			break
		}

		issueKey := fetcher.Issue().Key

		// FetchingDetail: checkpointed issues skip without a network call.
		if o.store.Has(issueKey) {
			summary.Skipped++
			harvestIssuesTotal.WithLabelValues(project, "skipped").Inc()
			logger.Debug().Str("issue_key", issueKey).Msg("Already processed, skipping")
			continue
		}

		detail, err := o.api.GetIssue(ctx, issueKey)
		if err != nil {
			if ctx.Err() != nil {
				return summary, ctx.Err()
			}
			// Per-item failure: log, do not checkpoint, keep going.
			summary.Failed++
			harvestIssuesTotal.WithLabelValues(project, "failed").Inc()
			logger.Warn().
				Err(err).
				Str("issue_key", issueKey).
				Msg("Failed to fetch issue detail, skipping")
			continue
		}

		// Emitting
		record := transform.Normalize(*detail)
		if err := o.sink.Append(record); err != nil {
			return summary, err
		}

		// Checkpointing: only after the record is durably appended.
		if err := o.store.MarkProcessed(issueKey); err != nil {
			return summary, err
		}

		summary.Emitted++
		harvestIssuesTotal.WithLabelValues(project, "emitted").Inc()
		if o.config.MaxIssues > 0 {
			*budget--
		}
	}

	if err := fetcher.Err(); err != nil {
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}
		// Pagination terminally failed: abandon this project, keep the run.
		summary.State = StateFailed
		harvestProjectsFailedTotal.Inc()
		logger.Error().
			Err(err).
			Msg("Pagination failed, abandoning project")
		return summary, nil
	}

	summary.State = StateDone
	return summary, nil
}

// AnyFailed reports whether any project ended in the Failed state.
func AnyFailed(summaries []ProjectSummary) bool {
	for _, s := range summaries {
		if s.State == StateFailed {
			return true
		}
	}
	return false
}

package pagination

import (
	"context"

	"github.com/corpustools/jira-harvest/pkg/client"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Searcher fetches a single page of issue summaries for a project.
// *client.Client implements it.
type Searcher interface {
	SearchIssues(ctx context.Context, project string, startAt, maxResults int) (*client.SearchPage, error)
}

// Fetcher iterates over all issue summaries of one project, page by page.
// Not safe for concurrent use and not restartable.
type Fetcher struct {
	searcher Searcher
	project  string
	pageSize int
	logger   zerolog.Logger

	offset     int
	total      int
	totalKnown bool

	buf     []client.Issue
	bufPos  int
	current client.Issue
	done    bool
	err     error
}

// NewFetcher creates a fetcher for one project listing.
func NewFetcher(searcher Searcher, project string, pageSize int) *Fetcher {
	return &Fetcher{
		searcher: searcher,
		project:  project,
		pageSize: pageSize,
		logger:   log.With().Str("component", "pagination").Str("project", project).Logger(),
	}
}

// Scan advances to the next issue summary. It returns false when the listing
// is exhausted or a page fetch terminally failed; Err distinguishes the two.
func (f *Fetcher) Scan(ctx context.Context) bool {
	if f.done || f.err != nil {
		return false
	}

	if f.bufPos >= len(f.buf) {
		if !f.fetchPage(ctx) {
			return false
		}
	}

	f.current = f.buf[f.bufPos]
	f.bufPos++
	return true
}

// Issue returns the summary yielded by the last successful Scan.
func (f *Fetcher) Issue() client.Issue {
	return f.current
}

// Err returns the terminal error that stopped iteration, or nil on normal
// exhaustion. Issues yielded before the failure are not retracted.
func (f *Fetcher) Err() error {
	return f.err
}

// Total returns the server-reported total issue count and whether a page has
// been fetched yet.
func (f *Fetcher) Total() (int, bool) {
	return f.total, f.totalKnown
}

// fetchPage loads the next page into the buffer. Returns false when the
// iteration ends, either by exhaustion or by terminal error.
func (f *Fetcher) fetchPage(ctx context.Context) bool {
	// Server total reached; trust it only after at least one page.
	if f.totalKnown && f.offset >= f.total {
		f.done = true
		return false
	}

	page, err := f.searcher.SearchIssues(ctx, f.project, f.offset, f.pageSize)
	if err != nil {
		f.err = err
		return false
	}

	if !f.totalKnown {
		f.total = page.Total
		f.totalKnown = true
		f.logger.Info().
			Int("total", page.Total).
			Msg("Project listing started")
	}

	// Empty page ends iteration even if the stale total says otherwise.
	if len(page.Issues) == 0 {
		f.done = true
		return false
	}

	f.logger.Debug().
		Int("offset", f.offset).
		Int("page_len", len(page.Issues)).
		Msg("Fetched listing page")

	f.buf = page.Issues
	f.bufPos = 0
	f.offset += len(page.Issues)
	return true
}

package pagination

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/corpustools/jira-harvest/pkg/client"
)

// scriptedSearcher serves canned pages keyed by startAt offset.
type scriptedSearcher struct {
	pages map[int]*client.SearchPage
	errs  map[int]error
	calls []int
}

func (s *scriptedSearcher) SearchIssues(ctx context.Context, project string, startAt, maxResults int) (*client.SearchPage, error) {
	s.calls = append(s.calls, startAt)
	if err, ok := s.errs[startAt]; ok {
		return nil, err
	}
	page, ok := s.pages[startAt]
	if !ok {
		return &client.SearchPage{StartAt: startAt, MaxResults: maxResults, Total: 0}, nil
	}
	return page, nil
}

func makeIssues(keys ...string) []client.Issue {
	issues := make([]client.Issue, 0, len(keys))
	for _, key := range keys {
		issues = append(issues, client.Issue{Key: key})
	}
	return issues
}

func collectKeys(ctx context.Context, f *Fetcher) []string {
	var keys []string
	for f.Scan(ctx) {
		keys = append(keys, f.Issue().Key)
	}
	return keys
}

func TestFetcher_MultiplePages(t *testing.T) {
	searcher := &scriptedSearcher{pages: map[int]*client.SearchPage{
		0: {StartAt: 0, Total: 5, Issues: makeIssues("HARV-1", "HARV-2")},
		2: {StartAt: 2, Total: 5, Issues: makeIssues("HARV-3", "HARV-4")},
		4: {StartAt: 4, Total: 5, Issues: makeIssues("HARV-5")},
	}}

	fetcher := NewFetcher(searcher, "HARV", 2)
	keys := collectKeys(context.Background(), fetcher)

	expected := []string{"HARV-1", "HARV-2", "HARV-3", "HARV-4", "HARV-5"}
	if len(keys) != len(expected) {
		t.Fatalf("Got %d issues %v, want %d", len(keys), keys, len(expected))
	}
	for i, want := range expected {
		if keys[i] != want {
			t.Errorf("Issue %d = %q, want %q (listing order must be preserved)", i, keys[i], want)
		}
	}
	if err := fetcher.Err(); err != nil {
		t.Errorf("Err() = %v, want nil", err)
	}

	// Offsets advance by the page length actually received.
	wantCalls := []int{0, 2, 4}
	if fmt.Sprint(searcher.calls) != fmt.Sprint(wantCalls) {
		t.Errorf("Search offsets = %v, want %v", searcher.calls, wantCalls)
	}
}

func TestFetcher_EmptyProject(t *testing.T) {
	searcher := &scriptedSearcher{pages: map[int]*client.SearchPage{
		0: {StartAt: 0, Total: 0, Issues: nil},
	}}

	fetcher := NewFetcher(searcher, "HARV", 50)
	keys := collectKeys(context.Background(), fetcher)

	if len(keys) != 0 {
		t.Errorf("Got %v, want no issues", keys)
	}
	if err := fetcher.Err(); err != nil {
		t.Errorf("Err() = %v, want nil for an empty project", err)
	}
	if len(searcher.calls) != 1 {
		t.Errorf("Search calls = %d, want 1", len(searcher.calls))
	}
}

func TestFetcher_EmptyPageEndsIterationDespiteTotal(t *testing.T) {
	// The server claims 10 issues but runs dry after 2: issues deleted
	// between pages. The empty page wins over the stale total.
	searcher := &scriptedSearcher{pages: map[int]*client.SearchPage{
		0: {StartAt: 0, Total: 10, Issues: makeIssues("HARV-1", "HARV-2")},
		2: {StartAt: 2, Total: 10, Issues: nil},
	}}

	fetcher := NewFetcher(searcher, "HARV", 2)
	keys := collectKeys(context.Background(), fetcher)

	if len(keys) != 2 {
		t.Errorf("Got %v, want the 2 issues that existed", keys)
	}
	if err := fetcher.Err(); err != nil {
		t.Errorf("Err() = %v, want nil", err)
	}
}

func TestFetcher_StopsAtServerTotal(t *testing.T) {
	searcher := &scriptedSearcher{pages: map[int]*client.SearchPage{
		0: {StartAt: 0, Total: 2, Issues: makeIssues("HARV-1", "HARV-2")},
	}}

	fetcher := NewFetcher(searcher, "HARV", 2)
	keys := collectKeys(context.Background(), fetcher)

	if len(keys) != 2 {
		t.Fatalf("Got %v, want 2 issues", keys)
	}
	// The total says we are done; no probe request for an empty page.
	if len(searcher.calls) != 1 {
		t.Errorf("Search calls = %v, want just the first page", searcher.calls)
	}
}

func TestFetcher_MidIterationFailure(t *testing.T) {
	fetchErr := errors.New("retry attempts exhausted")
	searcher := &scriptedSearcher{
		pages: map[int]*client.SearchPage{
			0: {StartAt: 0, Total: 4, Issues: makeIssues("HARV-1", "HARV-2")},
		},
		errs: map[int]error{2: fetchErr},
	}

	fetcher := NewFetcher(searcher, "HARV", 2)
	keys := collectKeys(context.Background(), fetcher)

	// Issues yielded before the failure stand.
	if len(keys) != 2 || keys[0] != "HARV-1" || keys[1] != "HARV-2" {
		t.Errorf("Got %v, want the first page's issues", keys)
	}
	if !errors.Is(fetcher.Err(), fetchErr) {
		t.Errorf("Err() = %v, want the page fetch error", fetcher.Err())
	}

	// A failed fetcher stays stopped.
	if fetcher.Scan(context.Background()) {
		t.Error("Scan returned true after terminal failure")
	}
}

func TestFetcher_Total(t *testing.T) {
	searcher := &scriptedSearcher{pages: map[int]*client.SearchPage{
		0: {StartAt: 0, Total: 7, Issues: makeIssues("HARV-1")},
	}}

	fetcher := NewFetcher(searcher, "HARV", 50)

	if _, known := fetcher.Total(); known {
		t.Error("Total known before any page was fetched")
	}

	fetcher.Scan(context.Background())

	total, known := fetcher.Total()
	if !known || total != 7 {
		t.Errorf("Total() = %d, %v; want 7, true", total, known)
	}
}

// Package pagination drives repeated paged calls against the Jira search
// endpoint until a project's listing is exhausted.
//
// The fetcher is a pull iterator in the bufio.Scanner style:
//
//	fetcher := pagination.NewFetcher(jiraClient, "SPARK", 100)
//	for fetcher.Scan(ctx) {
//		issue := fetcher.Issue()
//		// ...
//	}
//	if err := fetcher.Err(); err != nil {
//		// pagination failed part-way; already-yielded issues stand
//	}
//
// Pages are fetched strictly in order, one at a time. The iteration
// terminates on the first empty page or once the server-reported total has
// been reached, whichever comes first. An upstream total that drifts during
// a long scrape (issues added or removed) therefore cannot cause an
// infinite loop: the empty page ends the iteration regardless of the stale
// total.
//
// A fetcher holds only in-memory offset state and is not restartable;
// construct a fresh one to scan again.
package pagination

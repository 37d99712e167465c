// Package checkpoint persists the set of already-processed issue identifiers
// so interrupted runs resume where they left off.
package checkpoint

import (
	"errors"
	"strings"
)

// ErrCorrupt indicates a checkpoint file that exists but cannot be parsed.
// It is surfaced to the caller rather than treated as empty: silently
// re-processing everything would make data loss ambiguous.
var ErrCorrupt = errors.New("corrupt checkpoint")

// Store is the persistence interface for processed issue identifiers.
// There is exactly one writer during a run; implementations persist each
// insertion durably before MarkProcessed returns, so a crash immediately
// after a successful call still observes the identifier on the next load.
type Store interface {
	// Has reports whether the identifier was already processed.
	Has(id string) bool

	// MarkProcessed records the identifier and persists it synchronously.
	// Idempotent: marking an already-present identifier is a no-op.
	MarkProcessed(id string) error

	// Len returns the number of processed identifiers.
	Len() int

	// Close releases the underlying resources.
	Close() error
}

// Open loads a checkpoint store for the given path, creating state on first
// use. The backend is chosen by path suffix: .db or .sqlite selects SQLite,
// anything else the JSON file store. outputPath is recorded alongside the
// identifiers so a checkpoint stays tied to the sink it describes.
//
// A missing file yields an empty store; an unreadable one fails with
// ErrCorrupt.
func Open(path, outputPath string) (Store, error) {
	if strings.HasSuffix(path, ".db") || strings.HasSuffix(path, ".sqlite") {
		return OpenSQLiteStore(path, outputPath)
	}
	return OpenFileStore(path, outputPath)
}

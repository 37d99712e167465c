// Package corpus implements the append-only JSONL output sink.
package corpus

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/corpustools/jira-harvest/pkg/transform"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Writer appends one complete NormalizedIssue JSON object per line. Each
// record goes to the file as a single write call of the full line including
// the trailing newline, so a partially written line is never left behind by
// interleaving; every append is synced before the caller checkpoints it.
type Writer struct {
	file   *os.File
	path   string
	logger zerolog.Logger
}

// NewWriter opens the output file in append mode, creating parent
// directories as needed.
func NewWriter(path string) (*Writer, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create output directory: %w", err)
		}
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open output file: %w", err)
	}

	return &Writer{
		file:   file,
		path:   path,
		logger: log.With().Str("component", "corpus").Str("path", path).Logger(),
	}, nil
}

// Path returns the output file path.
func (w *Writer) Path() string {
	return w.path
}

// Append writes one record as a full JSONL line and syncs it to disk.
func (w *Writer) Append(record transform.NormalizedIssue) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode record %s: %w", record.IssueKey, err)
	}

	line := append(data, '\n')
	if _, err := w.file.Write(line); err != nil {
		return fmt.Errorf("append record %s: %w", record.IssueKey, err)
	}

	// Durable before the checkpoint records the identifier.
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("sync output: %w", err)
	}

	w.logger.Debug().Str("issue_key", record.IssueKey).Msg("Appended record")
	return nil
}

// Close closes the output file.
func (w *Writer) Close() error {
	return w.file.Close()
}

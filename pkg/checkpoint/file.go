package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// fileState is the on-disk JSON layout.
type fileState struct {
	// Output is the sink path this checkpoint corresponds to.
	Output string `json:"output"`

	// Processed is the array of processed issue identifiers.
	Processed []string `json:"processed"`
}

// FileStore persists the processed set as a JSON file. Every insertion
// rewrites the file through a temp-file-then-rename sequence so a crash can
// never leave a truncated checkpoint behind.
type FileStore struct {
	path       string
	outputPath string
	processed  map[string]struct{}
	logger     zerolog.Logger
}

// OpenFileStore loads the JSON checkpoint at path. A missing file yields an
// empty store; an unparseable one fails with ErrCorrupt.
func OpenFileStore(path, outputPath string) (*FileStore, error) {
	store := &FileStore{
		path:       path,
		outputPath: outputPath,
		processed:  make(map[string]struct{}),
		logger:     log.With().Str("component", "checkpoint").Str("path", path).Logger(),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			store.logger.Debug().Msg("No checkpoint file, starting empty")
			return store, nil
		}
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}

	var state fileState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, path, err)
	}

	for _, id := range state.Processed {
		store.processed[id] = struct{}{}
	}
	if state.Output != "" {
		store.outputPath = state.Output
	}

	store.logger.Info().
		Int("processed", len(store.processed)).
		Msg("Loaded checkpoint")

	return store, nil
}

// Has reports whether the identifier was already processed.
func (s *FileStore) Has(id string) bool {
	_, ok := s.processed[id]
	return ok
}

// Len returns the number of processed identifiers.
func (s *FileStore) Len() int {
	return len(s.processed)
}

// OutputPath returns the sink path associated with this checkpoint.
func (s *FileStore) OutputPath() string {
	return s.outputPath
}

// MarkProcessed records the identifier and persists the updated set before
// returning. Marking a known identifier is a no-op.
func (s *FileStore) MarkProcessed(id string) error {
	if _, ok := s.processed[id]; ok {
		return nil
	}

	s.processed[id] = struct{}{}
	if err := s.persist(); err != nil {
		// Roll back the in-memory insert so memory and disk stay in step.
		delete(s.processed, id)
		return err
	}
	return nil
}

// persist writes the full state to a temp file, syncs it, and renames it
// over the checkpoint path.
func (s *FileStore) persist() error {
	ids := make([]string, 0, len(s.processed))
	for id := range s.processed {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	data, err := json.Marshal(fileState{
		Output:    s.outputPath,
		Processed: ids,
	})
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".checkpoint-*.tmp")
	if err != nil {
		return fmt.Errorf("create checkpoint temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close checkpoint temp file: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace checkpoint: %w", err)
	}

	return nil
}

// Close is a no-op for the file store; every mutation is already durable.
func (s *FileStore) Close() error {
	return nil
}

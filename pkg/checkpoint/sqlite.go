package checkpoint

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// SQLiteStore persists the processed set in a SQLite database. It suits
// large scrapes where rewriting a JSON array on every issue would get
// quadratic; each insertion is a single synchronous INSERT.
type SQLiteStore struct {
	db         *sql.DB
	outputPath string
	processed  map[string]struct{}
	logger     zerolog.Logger
}

// OpenSQLiteStore opens (or creates) the checkpoint database at dbPath and
// loads the processed identifier set into memory. A file that is not a
// usable database fails with ErrCorrupt.
func OpenSQLiteStore(dbPath, outputPath string) (*SQLiteStore, error) {
	// synchronous=FULL: MarkProcessed must be durable before it returns.
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=FULL&_busy_timeout=60000", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint database: %w", err)
	}

	// Single sequential writer.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{
		db:         db,
		outputPath: outputPath,
		processed:  make(map[string]struct{}),
		logger:     log.With().Str("component", "checkpoint").Str("path", dbPath).Logger(),
	}

	if err := store.createTable(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, dbPath, err)
	}

	if err := store.loadProcessed(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, dbPath, err)
	}

	store.logger.Info().
		Int("processed", len(store.processed)).
		Msg("Loaded checkpoint")

	return store, nil
}

func (s *SQLiteStore) createTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS processed_issues (
		id TEXT PRIMARY KEY,
		output TEXT NOT NULL,
		marked_at DATETIME NOT NULL
	);
	`
	_, err := s.db.Exec(query)
	return err
}

func (s *SQLiteStore) loadProcessed() error {
	rows, err := s.db.Query(`SELECT id FROM processed_issues`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return err
		}
		s.processed[id] = struct{}{}
	}
	return rows.Err()
}

// Has reports whether the identifier was already processed.
func (s *SQLiteStore) Has(id string) bool {
	_, ok := s.processed[id]
	return ok
}

// Len returns the number of processed identifiers.
func (s *SQLiteStore) Len() int {
	return len(s.processed)
}

// MarkProcessed inserts the identifier. INSERT OR IGNORE keeps repeated
// marks a no-op.
func (s *SQLiteStore) MarkProcessed(id string) error {
	if _, ok := s.processed[id]; ok {
		return nil
	}

	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO processed_issues (id, output, marked_at) VALUES (?, ?, ?)`,
		id, s.outputPath, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("mark processed %s: %w", id, err)
	}

	s.processed[id] = struct{}{}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

package corpus

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/corpustools/jira-harvest/pkg/transform"
)

func record(key string) transform.NormalizedIssue {
	title := "title for " + key
	return transform.NormalizedIssue{
		IssueKey: key,
		Title:    &title,
		Labels:   []string{},
		Comments: []string{},
	}
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	return lines
}

func TestWriter_AppendsOneLinePerRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corpus.jsonl")

	writer, err := NewWriter(path)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}

	for _, key := range []string{"HARV-1", "HARV-2", "HARV-3"} {
		if err := writer.Append(record(key)); err != nil {
			t.Fatalf("Append(%s): %v", key, err)
		}
	}
	writer.Close()

	lines := readLines(t, path)
	if len(lines) != 3 {
		t.Fatalf("Got %d lines, want 3", len(lines))
	}

	// Every line is a complete, parseable JSON object.
	for i, line := range lines {
		var parsed transform.NormalizedIssue
		if err := json.Unmarshal([]byte(line), &parsed); err != nil {
			t.Fatalf("Line %d not valid JSON: %v", i, err)
		}
	}

	var first transform.NormalizedIssue
	json.Unmarshal([]byte(lines[0]), &first)
	if first.IssueKey != "HARV-1" {
		t.Errorf("First record = %q, want HARV-1", first.IssueKey)
	}
}

func TestWriter_ReopenAppendsAfterExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corpus.jsonl")

	writer, err := NewWriter(path)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if err := writer.Append(record("HARV-1")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	writer.Close()

	// An interrupted run reopens the same file and continues appending.
	resumed, err := NewWriter(path)
	if err != nil {
		t.Fatalf("Reopen: %v", err)
	}
	if err := resumed.Append(record("HARV-2")); err != nil {
		t.Fatalf("Append after reopen: %v", err)
	}
	resumed.Close()

	lines := readLines(t, path)
	if len(lines) != 2 {
		t.Fatalf("Got %d lines, want 2 (existing line preserved)", len(lines))
	}
}

func TestWriter_CreatesParentDirectories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "out", "corpus.jsonl")

	writer, err := NewWriter(path)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	defer writer.Close()

	if writer.Path() != path {
		t.Errorf("Path() = %q, want %q", writer.Path(), path)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("Output file not created: %v", err)
	}
}

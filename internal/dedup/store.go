// Package dedup persists the last-issued alert per process so repeated
// incidents collapse and recoveries can be auto-resolved.
package dedup

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Entry records the last alert issued for a process.
type Entry struct {
	DedupKey  string `json:"dedupKey"`
	AlertedAt string `json:"alertedAt"`
	Severity  string `json:"severity"`
}

// Store is the persistence boundary for alert state. Load tolerates a
// missing or corrupt backing store by returning an empty map.
type Store interface {
	Load() (map[string]Entry, error)
	Save(map[string]Entry) error
}

// FileStore keeps the alert state as a JSON object on local disk.
type FileStore struct {
	Path   string
	Logger *slog.Logger
}

// NewFileStore creates a file-backed store at the given path.
func NewFileStore(path string, logger *slog.Logger) *FileStore {
	return &FileStore{Path: path, Logger: logger}
}

// Load reads the state file. A missing file or undecodable content yields
// an empty map, never an error: a broken store means fresh-start semantics.
func (s *FileStore) Load() (map[string]Entry, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.Logger.Warn("alert state unreadable, starting fresh", "path", s.Path, "error", err)
		}
		return map[string]Entry{}, nil
	}

	var entries map[string]Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		s.Logger.Warn("alert state corrupt, starting fresh", "path", s.Path, "error", err)
		return map[string]Entry{}, nil
	}
	if entries == nil {
		entries = map[string]Entry{}
	}
	return entries, nil
}

// Save writes the state file, creating parent directories as needed.
func (s *FileStore) Save(entries map[string]Entry) error {
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o755); err != nil {
		return fmt.Errorf("creating state dir: %w", err)
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding alert state: %w", err)
	}
	if err := os.WriteFile(s.Path, data, 0o644); err != nil {
		return fmt.Errorf("writing alert state: %w", err)
	}
	return nil
}

// MemStore is an in-memory Store for tests.
type MemStore struct {
	Entries map[string]Entry
	Saves   int
}

func NewMemStore() *MemStore {
	return &MemStore{Entries: map[string]Entry{}}
}

func (s *MemStore) Load() (map[string]Entry, error) {
	out := make(map[string]Entry, len(s.Entries))
	for k, v := range s.Entries {
		out[k] = v
	}
	return out, nil
}

func (s *MemStore) Save(entries map[string]Entry) error {
	s.Entries = entries
	s.Saves++
	return nil
}

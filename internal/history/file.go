package history

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// maxFileTurns bounds the JSON file so it never grows without limit; only
// the most recent turns are kept.
const maxFileTurns = 50

// Compile-time interface check.
var _ Store = (*FileStore)(nil)

// FileStore is a [Store] backed by a single JSON file. Every Append rereads
// and rewrites the whole file, which is fine at the scale this store is for
// (one learner, at most maxFileTurns turns).
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates a [FileStore] at path, creating the parent directory
// if needed. The file itself is created on first Append.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("history: path must not be empty")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("history: create dir %s: %w", dir, err)
		}
	}
	return &FileStore{path: path}, nil
}

// Append implements [Store]. The log is trimmed to the most recent
// maxFileTurns turns on every write.
func (s *FileStore) Append(ctx context.Context, turn Turn) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	turns := s.load()
	turns = append(turns, turn)
	if len(turns) > maxFileTurns {
		turns = turns[len(turns)-maxFileTurns:]
	}

	data, err := json.MarshalIndent(turns, "", "  ")
	if err != nil {
		return fmt.Errorf("history: marshal: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("history: write %s: %w", s.path, err)
	}
	return nil
}

// ReadAll implements [Store].
func (s *FileStore) ReadAll(ctx context.Context) ([]Turn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(), nil
}

// Clear implements [Store]. Clearing a store that was never written is not
// an error.
func (s *FileStore) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("history: remove %s: %w", s.path, err)
	}
	return nil
}

// load reads the current log. A missing or corrupt file reads as empty so a
// damaged log never blocks the conversation. Must be called with s.mu held.
func (s *FileStore) load() []Turn {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("history file unreadable, starting empty", "path", s.path, "error", err)
		}
		return []Turn{}
	}
	var turns []Turn
	if err := json.Unmarshal(data, &turns); err != nil {
		slog.Warn("history file corrupt, starting empty", "path", s.path, "error", err)
		return []Turn{}
	}
	return turns
}

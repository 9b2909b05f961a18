package eventstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"streamview/telemetry/internal/shared"
)

// FileStore persists the slot as a JSON file. Writes go through a temp file
// and rename so a crash mid-write never leaves a truncated slot behind.
//
// One file is one slot; concurrent manager instances pointed at the same
// path will clobber each other's backstop, mirroring the single-client
// orientation of the pipeline.
type FileStore struct {
	path string
	mu   sync.Mutex
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates a FileStore at the given path. The parent directory
// is created on first save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// DefaultPath returns the conventional slot location under the user cache
// directory.
func DefaultPath() (string, error) {
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate user cache dir: %w", err)
	}
	return filepath.Join(cacheDir, "streamview", "pending-events.json"), nil
}

func (s *FileStore) Load(ctx context.Context) ([]shared.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read event slot: %w", err)
	}

	if len(data) == 0 {
		return nil, nil
	}

	var events []shared.Event
	if err := json.Unmarshal(data, &events); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return events, nil
}

func (s *FileStore) Save(ctx context.Context, events []shared.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(events)
	if err != nil {
		return fmt.Errorf("failed to encode event slot: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create slot directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "pending-events-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp slot file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write temp slot file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp slot file: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace event slot: %w", err)
	}
	return nil
}

func (s *FileStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to clear event slot: %w", err)
	}
	return nil
}

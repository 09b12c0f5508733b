package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"mrsync/pkg/logger"
	"mrsync/pkg/storage"
)

// FileStore keeps properties in a single JSON object on disk.
// Every Set rewrites the file atomically.
type FileStore struct {
	path   string
	mu     sync.Mutex
	logger logger.Logger
}

// NewFileStore creates a store backed by <dir>/state.json
func NewFileStore(dir string, log logger.Logger) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &FileStore{
		path:   filepath.Join(dir, "state.json"),
		logger: log,
	}, nil
}

// Path returns the location of the state file
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) Get(ctx context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	props, err := s.read()
	if err != nil {
		return "", false, err
	}
	v, ok := props[key]
	return v, ok, nil
}

func (s *FileStore) Set(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	props, err := s.read()
	if err != nil {
		return err
	}
	props[key] = value

	data, err := json.MarshalIndent(props, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}
	if err := storage.WriteFileAtomic(s.path, data, 0644); err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}

	s.logger.DebugWithFields("State property saved", map[string]interface{}{
		"key": key,
	})
	return nil
}

func (s *FileStore) read() (map[string]string, error) {
	props := make(map[string]string)

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return props, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}
	if len(data) == 0 {
		return props, nil
	}
	if err := json.Unmarshal(data, &props); err != nil {
		return nil, fmt.Errorf("failed to parse state file %s: %w", s.path, err)
	}
	return props, nil
}

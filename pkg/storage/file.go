package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"time"
)

// FileStore keeps each snapshot document as a file under <dir>/snapshots.
// The handle is the file name.
type FileStore struct {
	dir string
	seq atomic.Uint64
	now func() time.Time
}

// NewFileStore creates a snapshot store rooted at dir
func NewFileStore(dir string) (*FileStore, error) {
	snapshotDir := filepath.Join(dir, "snapshots")
	if err := os.MkdirAll(snapshotDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	return &FileStore{
		dir: snapshotDir,
		now: time.Now,
	}, nil
}

// Dir returns the directory snapshots are written to
func (s *FileStore) Dir() string {
	return s.dir
}

func (s *FileStore) CreateAndStore(ctx context.Context, name string, content []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	ext := filepath.Ext(name)
	base := strings.TrimSuffix(filepath.Base(name), ext)
	if ext == "" {
		ext = ".json"
	}
	handle := fmt.Sprintf("%s-%s-%04d%s", base, s.now().UTC().Format("20060102T150405.000000000"), s.seq.Add(1)%10000, ext)

	if err := WriteFileAtomic(filepath.Join(s.dir, handle), content, 0644); err != nil {
		return "", err
	}
	return handle, nil
}

func (s *FileStore) Open(ctx context.Context, handle string) ([]byte, error) {
	path, err := s.path(handle)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, handle)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	return data, nil
}

func (s *FileStore) Delete(ctx context.Context, handle string) error {
	path, err := s.path(handle)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	return nil
}

// List returns the stored handles, oldest first
func (s *FileStore) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}

	var handles []string
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		handles = append(handles, entry.Name())
	}
	sort.Strings(handles)
	return handles, nil
}

// path rejects handles that would escape the snapshot directory
func (s *FileStore) path(handle string) (string, error) {
	if handle == "" || handle != filepath.Base(handle) || handle == "." || handle == ".." {
		return "", fmt.Errorf("%w: invalid handle %q", ErrNotFound, handle)
	}
	return filepath.Join(s.dir, handle), nil
}

package checkpoint

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"mrsync/pkg/errors"
	"mrsync/pkg/logger"
)

// Locker guards a sync run against overlapping invocations
type Locker interface {
	// Lock fails fast with a locked error when another run holds the lock
	Lock(ctx context.Context) (unlock func() error, err error)
}

// FileLock is a lock file created with O_EXCL. A lock older than TTL is
// considered abandoned by a crashed run and is taken over.
type FileLock struct {
	path   string
	ttl    time.Duration
	now    func() time.Time
	logger logger.Logger
}

// NewFileLock creates a lock at <dir>/sync.lock
func NewFileLock(dir string, ttl time.Duration, log logger.Logger) *FileLock {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &FileLock{
		path:   filepath.Join(dir, "sync.lock"),
		ttl:    ttl,
		now:    time.Now,
		logger: log,
	}
}

func (l *FileLock) Lock(ctx context.Context) (func() error, error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if err == nil {
			fmt.Fprintf(f, "%d %d\n", os.Getpid(), l.now().Unix())
			f.Close()
			return func() error {
				if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
					return fmt.Errorf("failed to release lock: %w", err)
				}
				return nil
			}, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("failed to create lock file: %w", err)
		}

		if !l.stale() {
			break
		}
		l.logger.WarnWithFields("Removing stale sync lock", map[string]interface{}{
			"path": l.path,
			"ttl":  l.ttl,
		})
		if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to remove stale lock: %w", err)
		}
	}

	return nil, errors.New(errors.KindLocked, "acquire lock",
		fmt.Sprintf("another sync run holds %s", l.path))
}

func (l *FileLock) stale() bool {
	if l.ttl <= 0 {
		return false
	}

	acquired := time.Time{}
	if data, err := os.ReadFile(l.path); err == nil {
		fields := strings.Fields(string(data))
		if len(fields) == 2 {
			if sec, err := strconv.ParseInt(fields[1], 10, 64); err == nil {
				acquired = time.Unix(sec, 0)
			}
		}
	}
	if acquired.IsZero() {
		info, err := os.Stat(l.path)
		if err != nil {
			return os.IsNotExist(err)
		}
		acquired = info.ModTime()
	}

	return l.now().Sub(acquired) > l.ttl
}

// NopLocker never blocks
type NopLocker struct{}

func (NopLocker) Lock(ctx context.Context) (func() error, error) {
	return func() error { return nil }, nil
}

package checkpoint

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"mrsync/pkg/errors"
	"mrsync/pkg/models"
)

// Property keys of the sync state
const (
	KeyStartDate     = "GITLAB_START_DATE"
	KeyEndDate       = "GITLAB_END_DATE"
	KeyCurrentCursor = "GITLAB_CURRENT_CURSOR"
	KeyHasNextPage   = "GITLAB_HAS_NEXT_PAGE"
	KeyFileID        = "GITLAB_FILE_ID"
)

// TimeLayout is how window bounds are persisted
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

// Store is a durable string key/value store
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// FormatTime renders t in UTC with millisecond precision
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime accepts FormatTime output and plain RFC3339
func ParseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// LoadState reads the sync state. A store without a window has never been
// reset, which is reported as a config error.
func LoadState(ctx context.Context, s Store) (models.SyncState, error) {
	var state models.SyncState

	start, okStart, err := s.Get(ctx, KeyStartDate)
	if err != nil {
		return state, fmt.Errorf("read %s: %w", KeyStartDate, err)
	}
	end, okEnd, err := s.Get(ctx, KeyEndDate)
	if err != nil {
		return state, fmt.Errorf("read %s: %w", KeyEndDate, err)
	}
	if !okStart || !okEnd || start == "" || end == "" {
		return state, errors.Configf("no sync window recorded; run 'mrsync reset' first")
	}

	if state.Window.Start, err = ParseTime(start); err != nil {
		return state, errors.Configf("invalid %s %q: %v", KeyStartDate, start, err)
	}
	if state.Window.End, err = ParseTime(end); err != nil {
		return state, errors.Configf("invalid %s %q: %v", KeyEndDate, end, err)
	}

	cursor, _, err := s.Get(ctx, KeyCurrentCursor)
	if err != nil {
		return state, fmt.Errorf("read %s: %w", KeyCurrentCursor, err)
	}
	state.Cursor.Token = cursor

	hasNext, ok, err := s.Get(ctx, KeyHasNextPage)
	if err != nil {
		return state, fmt.Errorf("read %s: %w", KeyHasNextPage, err)
	}
	state.Cursor.HasMore = true
	if ok {
		if state.Cursor.HasMore, err = strconv.ParseBool(hasNext); err != nil {
			return state, errors.Configf("invalid %s %q", KeyHasNextPage, hasNext)
		}
	}

	handle, _, err := s.Get(ctx, KeyFileID)
	if err != nil {
		return state, fmt.Errorf("read %s: %w", KeyFileID, err)
	}
	state.SnapshotHandle = handle

	return state, nil
}

// SaveWindow persists both window bounds
func SaveWindow(ctx context.Context, s Store, w models.SyncWindow) error {
	if err := s.Set(ctx, KeyStartDate, FormatTime(w.Start)); err != nil {
		return fmt.Errorf("write %s: %w", KeyStartDate, err)
	}
	if err := s.Set(ctx, KeyEndDate, FormatTime(w.End)); err != nil {
		return fmt.Errorf("write %s: %w", KeyEndDate, err)
	}
	return nil
}

// SaveCursor persists the pagination position. Both values are always
// written, including HasMore=false which ends the cycle.
func SaveCursor(ctx context.Context, s Store, c models.PageCursor) error {
	if err := s.Set(ctx, KeyCurrentCursor, c.Token); err != nil {
		return fmt.Errorf("write %s: %w", KeyCurrentCursor, err)
	}
	if err := s.Set(ctx, KeyHasNextPage, strconv.FormatBool(c.HasMore)); err != nil {
		return fmt.Errorf("write %s: %w", KeyHasNextPage, err)
	}
	return nil
}

// SaveHandle persists the snapshot handle
func SaveHandle(ctx context.Context, s Store, handle string) error {
	if err := s.Set(ctx, KeyFileID, handle); err != nil {
		return fmt.Errorf("write %s: %w", KeyFileID, err)
	}
	return nil
}

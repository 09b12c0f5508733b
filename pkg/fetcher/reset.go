package fetcher

import (
	"context"
	"time"

	"mrsync/pkg/checkpoint"
	"mrsync/pkg/errors"
	"mrsync/pkg/models"
	"mrsync/pkg/storage"
)

// Reset starts a new cycle: the window becomes [now - spanDays, now], the
// snapshot is replaced by an empty document and the cursor goes back to the
// first page. Progress of a running cycle is discarded.
func Reset(ctx context.Context, props checkpoint.Store, snapshots storage.SnapshotStore, spanDays int, now time.Time) (models.SyncState, error) {
	if spanDays <= 0 {
		return models.SyncState{}, errors.Configf("span must be a positive number of days, got %d", spanDays)
	}

	end := now.UTC()
	state := models.SyncState{
		Window: models.SyncWindow{
			Start: end.Add(-time.Duration(spanDays) * 24 * time.Hour),
			End:   end,
		},
		Cursor: models.InitialCursor(),
	}

	if err := checkpoint.SaveWindow(ctx, props, state.Window); err != nil {
		return state, err
	}

	handle, err := storage.SaveSnapshot(ctx, snapshots, nil)
	if err != nil {
		return state, err
	}
	if err := checkpoint.SaveHandle(ctx, props, handle); err != nil {
		return state, err
	}
	state.SnapshotHandle = handle

	if err := checkpoint.SaveCursor(ctx, props, state.Cursor); err != nil {
		return state, err
	}
	return state, nil
}

// Reset runs Reset under the run lock and prunes the old snapshot when configured
func (f *Fetcher) Reset(ctx context.Context, spanDays int, now time.Time) (models.SyncState, error) {
	unlock, err := f.locker.Lock(ctx)
	if err != nil {
		return models.SyncState{}, err
	}
	defer unlock()

	previous := ""
	if old, err := checkpoint.LoadState(ctx, f.props); err == nil {
		previous = old.SnapshotHandle
	}

	state, err := Reset(ctx, f.props, f.snapshots, spanDays, now)
	if err != nil {
		return state, err
	}

	if f.prune && previous != "" && previous != state.SnapshotHandle {
		if err := f.snapshots.Delete(ctx, previous); err != nil {
			f.logger.WithError(err).Warn("Failed to prune previous snapshot")
		}
	}

	f.logger.InfoWithFields("Sync cycle reset", map[string]interface{}{
		"window_start": state.Window.Start,
		"window_end":   state.Window.End,
		"span_days":    spanDays,
		"handle":       state.SnapshotHandle,
	})
	return state, nil
}

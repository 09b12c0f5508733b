package fetcher

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mrsync/pkg/checkpoint"
	"mrsync/pkg/errors"
	"mrsync/pkg/models"
	"mrsync/pkg/storage"
)

func TestReset(t *testing.T) {
	ctx := context.Background()
	props := checkpoint.NewMemoryStore()
	snapshots := storage.NewMemoryStore()

	state, err := Reset(ctx, props, snapshots, 30, testNow)
	require.NoError(t, err)

	assert.Equal(t, testNow, state.Window.End)
	assert.Equal(t, testNow.Add(-30*24*time.Hour), state.Window.Start)
	assert.Equal(t, models.InitialCursor(), state.Cursor)
	require.NotEmpty(t, state.SnapshotHandle)

	loaded, err := checkpoint.LoadState(ctx, props)
	require.NoError(t, err)
	assert.Equal(t, state, loaded)

	records, err := storage.LoadSnapshot(ctx, snapshots, state.SnapshotHandle)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestResetIsIdempotent(t *testing.T) {
	ctx := context.Background()
	props := checkpoint.NewMemoryStore()
	snapshots := storage.NewMemoryStore()

	first, err := Reset(ctx, props, snapshots, 30, testNow)
	require.NoError(t, err)
	second, err := Reset(ctx, props, snapshots, 30, testNow)
	require.NoError(t, err)

	assert.Equal(t, first.Window, second.Window)
	assert.Equal(t, first.Cursor, second.Cursor)
}

func TestResetDiscardsProgress(t *testing.T) {
	h := newHarness(t)
	_, err := h.fetcher(newPagedSource(230), WithMaxItemsPerRun(150)).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, h.snapshot(t), 150)

	previous := h.state(t).SnapshotHandle
	later := testNow.Add(24 * time.Hour)
	state, err := h.fetcher(nil, WithPruneSnapshots(true)).Reset(context.Background(), 90, later)
	require.NoError(t, err)

	assert.Equal(t, later, state.Window.End)
	assert.Equal(t, models.InitialCursor(), h.state(t).Cursor)
	assert.Empty(t, h.snapshot(t))
	_, err = h.snapshots.Open(context.Background(), previous)
	assert.ErrorIs(t, err, storage.ErrNotFound, "previous snapshot is pruned")
}

func TestResetRejectsSpan(t *testing.T) {
	props := checkpoint.NewMemoryStore()
	_, err := Reset(context.Background(), props, storage.NewMemoryStore(), 0, testNow)
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindConfig))
	assert.Zero(t, props.Writes())
}

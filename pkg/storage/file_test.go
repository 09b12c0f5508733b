package storage

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"mrsync/pkg/errors"
	"mrsync/pkg/models"
)

func sampleRecords() []models.MergeRequest {
	created := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	merged := created.Add(36 * time.Hour)
	return []models.MergeRequest{
		{
			ID:          "gid://gitlab/MergeRequest/1",
			ProjectID:   "gid://gitlab/Project/42",
			ProjectName: "payments-api",
			Title:       "Add refunds",
			CreatedAt:   created,
			MergedAt:    &merged,
			Author:      models.Person{Name: "John Doe", Username: "jdoe"},
			MergeUser:   &models.Person{Name: "Ana*", Username: "ana"},
			Approvals:   []models.Person{{Name: "Ana*"}},
			Comments:    []models.Person{},
			Squad:       "payments",
			State:       "merged",
		},
		{
			ID:        "gid://gitlab/MergeRequest/2",
			ProjectID: "gid://gitlab/Project/7",
			CreatedAt: created,
			State:     "opened",
		},
	}
}

func TestFileStoreCreateOpenDelete(t *testing.T) {
	ctx := context.Background()
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	h1, err := s.CreateAndStore(ctx, SnapshotName, []byte("[]"))
	require.NoError(t, err)
	h2, err := s.CreateAndStore(ctx, SnapshotName, []byte(`[{"id":"x"}]`))
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2, "every store mints a new handle")

	data, err := s.Open(ctx, h1)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))

	handles, err := s.List()
	require.NoError(t, err)
	assert.Equal(t, []string{h1, h2}, handles)

	require.NoError(t, s.Delete(ctx, h1))
	_, err = s.Open(ctx, h1)
	assert.True(t, stderrors.Is(err, ErrNotFound))
	assert.NoError(t, s.Delete(ctx, h1), "deleting twice is fine")
}

func TestFileStoreRejectsPathHandles(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	for _, h := range []string{"", "../state.json", "a/b.json", ".."} {
		_, err := s.Open(context.Background(), h)
		assert.True(t, stderrors.Is(err, ErrNotFound), h)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	handle, err := SaveSnapshot(ctx, s, sampleRecords())
	require.NoError(t, err)

	loaded, err := LoadSnapshot(ctx, s, handle)
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, "payments", loaded[0].Squad)
	assert.True(t, loaded[0].IsMerged())
	assert.Equal(t, 36*time.Hour, loaded[0].LeadTime())
	assert.Nil(t, loaded[1].MergedAt)
	assert.Nil(t, loaded[1].MergeUser)
}

func TestEncodeEmptySnapshot(t *testing.T) {
	data, err := EncodeSnapshot(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))
}

func TestLoadSnapshotFailuresAreTransient(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	s.Put("corrupt", []byte("{\"truncated\": "))

	tests := []struct {
		name   string
		handle string
	}{
		{"no handle", ""},
		{"missing", "gone"},
		{"corrupt", "corrupt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadSnapshot(ctx, s, tt.handle)
			require.Error(t, err)
			assert.True(t, errors.IsKind(err, errors.KindTransientIO))
		})
	}
}

func TestWriteFileAtomicReplaces(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "out.csv")

	require.NoError(t, WriteFileAtomic(path, []byte("old"), 0644))
	require.NoError(t, WriteFileAtomic(path, []byte("new"), 0644))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"mrsync/pkg/storage"
)

// SnapshotStore is a storage.SnapshotStore backed by mrsync_snapshots.
// Handles are row ids.
type SnapshotStore struct {
	pool *pgxpool.Pool
}

func NewSnapshotStore(pool *pgxpool.Pool) *SnapshotStore {
	return &SnapshotStore{pool: pool}
}

func (s *SnapshotStore) CreateAndStore(ctx context.Context, name string, content []byte) (string, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO mrsync_snapshots (name, content) VALUES ($1, $2::jsonb) RETURNING id`,
		name, string(content)).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("failed to insert snapshot: %w", err)
	}
	return strconv.FormatInt(id, 10), nil
}

func (s *SnapshotStore) Open(ctx context.Context, handle string) ([]byte, error) {
	id, err := strconv.ParseInt(handle, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid handle %q", storage.ErrNotFound, handle)
	}

	var content string
	err = s.pool.QueryRow(ctx, `SELECT content::text FROM mrsync_snapshots WHERE id = $1`, id).Scan(&content)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, handle)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	return []byte(content), nil
}

func (s *SnapshotStore) Delete(ctx context.Context, handle string) error {
	id, err := strconv.ParseInt(handle, 10, 64)
	if err != nil {
		return nil
	}
	_, err = s.pool.Exec(ctx, `DELETE FROM mrsync_snapshots WHERE id = $1`, id)
	return err
}

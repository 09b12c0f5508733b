package storage

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"

	"mrsync/pkg/errors"
	"mrsync/pkg/models"
)

// ErrNotFound is returned by Open for an unknown handle
var ErrNotFound = stderrors.New("snapshot not found")

// SnapshotName is the logical name of the merge request snapshot document
const SnapshotName = "gitlab.json"

// SnapshotStore stores whole documents under opaque handles.
// A new handle is minted on every CreateAndStore.
type SnapshotStore interface {
	CreateAndStore(ctx context.Context, name string, content []byte) (string, error)
	Open(ctx context.Context, handle string) ([]byte, error)
	Delete(ctx context.Context, handle string) error
}

// LoadSnapshot opens and decodes the snapshot behind handle.
// Missing, unreadable or malformed documents yield a transient IO error;
// callers treat that as an empty snapshot.
func LoadSnapshot(ctx context.Context, s SnapshotStore, handle string) ([]models.MergeRequest, error) {
	if handle == "" {
		return nil, errors.New(errors.KindTransientIO, "open snapshot", "no snapshot handle recorded")
	}

	data, err := s.Open(ctx, handle)
	if err != nil {
		return nil, errors.Wrap(errors.KindTransientIO, "open snapshot "+handle, err)
	}

	records, err := DecodeSnapshot(data)
	if err != nil {
		return nil, errors.Wrap(errors.KindTransientIO, "parse snapshot "+handle, err)
	}
	return records, nil
}

// SaveSnapshot encodes records and stores them as a new document
func SaveSnapshot(ctx context.Context, s SnapshotStore, records []models.MergeRequest) (string, error) {
	data, err := EncodeSnapshot(records)
	if err != nil {
		return "", errors.Wrap(errors.KindSerialization, "encode snapshot", err)
	}

	handle, err := s.CreateAndStore(ctx, SnapshotName, data)
	if err != nil {
		return "", errors.Wrap(errors.KindSerialization, "store snapshot", err)
	}
	return handle, nil
}

// EncodeSnapshot renders records as an indented JSON array, never null
func EncodeSnapshot(records []models.MergeRequest) ([]byte, error) {
	if records == nil {
		records = []models.MergeRequest{}
	}
	return json.MarshalIndent(records, "", "  ")
}

// DecodeSnapshot parses a JSON array of merge requests
func DecodeSnapshot(data []byte) ([]models.MergeRequest, error) {
	var records []models.MergeRequest
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("invalid snapshot document: %w", err)
	}
	return records, nil
}

package report

import (
	"context"
	"errors"
	"fmt"

	"mrsync/pkg/checkpoint"
	"mrsync/pkg/config"
	"mrsync/pkg/logger"
	"mrsync/pkg/storage"
)

// Writer renders the current snapshot into the three report tables
type Writer struct {
	props     checkpoint.Store
	snapshots storage.SnapshotStore
	sink      Sink
	tables    config.TablesConfig
	limit     int
	logger    logger.Logger
}

func NewWriter(props checkpoint.Store, snapshots storage.SnapshotStore, sink Sink, cfg config.ReportsConfig, log logger.Logger) *Writer {
	if log == nil {
		log = logger.NewNopLogger()
	}
	tables := cfg.Tables
	if tables.WIP == "" {
		tables.WIP = "gitlab_wip"
	}
	if tables.Changelog == "" {
		tables.Changelog = "gitlab_changelog"
	}
	if tables.Projects == "" {
		tables.Projects = "gitlab_projects"
	}
	return &Writer{
		props:     props,
		snapshots: snapshots,
		sink:      sink,
		tables:    tables,
		limit:     cfg.ProjectLimit,
		logger:    log,
	}
}

// WriteAll loads the snapshot and window and overwrites every report table.
// A table that fails does not stop the others.
func (w *Writer) WriteAll(ctx context.Context) error {
	state, err := checkpoint.LoadState(ctx, w.props)
	if err != nil {
		return err
	}

	records, err := storage.LoadSnapshot(ctx, w.snapshots, state.SnapshotHandle)
	if err != nil {
		w.logger.WithError(err).Error("Cannot write reports without a snapshot")
		return err
	}

	reports := []struct {
		table  string
		report Report
	}{
		{w.tables.WIP, WIP(records)},
		{w.tables.Changelog, Changelog(records)},
		{w.tables.Projects, ProjectStats(records, state.Window, w.limit)},
	}

	var errs []error
	for _, r := range reports {
		if err := w.sink.Write(ctx, r.table, r.report.Columns, r.report.Rows); err != nil {
			w.logger.WithError(err).ErrorWithFields("Failed to write report", map[string]interface{}{
				"table": r.table,
			})
			errs = append(errs, fmt.Errorf("%s: %w", r.table, err))
			continue
		}
		w.logger.InfoWithFields("Report written", map[string]interface{}{
			"table": r.table,
			"rows":  len(r.report.Rows),
		})
	}
	return errors.Join(errs...)
}

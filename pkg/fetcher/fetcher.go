// Package fetcher runs the budgeted, resumable merge request fetch loop.
package fetcher

import (
	"context"
	"fmt"
	"time"

	"mrsync/pkg/checkpoint"
	"mrsync/pkg/enrich"
	"mrsync/pkg/errors"
	"mrsync/pkg/logger"
	"mrsync/pkg/models"
	"mrsync/pkg/storage"
)

const (
	DefaultPageSize       = 100
	DefaultMaxItemsPerRun = 1500
)

// Result summarizes a run
type Result struct {
	Window        models.SyncWindow
	Pages         int
	Fetched       int
	SnapshotSize  int
	TotalCount    int
	Cursor        models.PageCursor
	Handle        string
	Complete      bool
	CompletionRan bool
	Elapsed       time.Duration
}

// Fetcher pulls pages from a Source into the snapshot, one budgeted run at a time
type Fetcher struct {
	source     Source
	props      checkpoint.Store
	snapshots  storage.SnapshotStore
	locker     checkpoint.Locker
	squads     SquadLoader
	names      *enrich.Dictionary
	onComplete CompletionFunc
	progress   ProgressFunc
	logger     logger.Logger

	group    string
	pageSize int
	maxItems int
	prune    bool
}

// Option configures a Fetcher
type Option func(*Fetcher)

func WithGroup(path string) Option          { return func(f *Fetcher) { f.group = path } }
func WithPageSize(n int) Option             { return func(f *Fetcher) { f.pageSize = n } }
func WithMaxItemsPerRun(n int) Option       { return func(f *Fetcher) { f.maxItems = n } }
func WithLocker(l checkpoint.Locker) Option { return func(f *Fetcher) { f.locker = l } }
func WithSquads(l SquadLoader) Option       { return func(f *Fetcher) { f.squads = l } }
func WithDictionary(d *enrich.Dictionary) Option {
	return func(f *Fetcher) { f.names = d }
}
func WithCompletion(fn CompletionFunc) Option { return func(f *Fetcher) { f.onComplete = fn } }
func WithProgress(fn ProgressFunc) Option     { return func(f *Fetcher) { f.progress = fn } }
func WithLogger(l logger.Logger) Option       { return func(f *Fetcher) { f.logger = l } }

// WithPruneSnapshots deletes the previous snapshot after a new one is recorded
func WithPruneSnapshots(prune bool) Option { return func(f *Fetcher) { f.prune = prune } }

// New creates a Fetcher. Without WithSquads every run fails with a config error.
func New(source Source, props checkpoint.Store, snapshots storage.SnapshotStore, opts ...Option) *Fetcher {
	f := &Fetcher{
		source:    source,
		props:     props,
		snapshots: snapshots,
		locker:    checkpoint.NopLocker{},
		squads: func(ctx context.Context) (enrich.SquadMap, error) {
			return nil, errors.Configf("no squad mapping configured")
		},
		names:    enrich.NewDictionary(nil, enrich.DefaultUnknownMarker),
		logger:   logger.NewNopLogger(),
		pageSize: DefaultPageSize,
		maxItems: DefaultMaxItemsPerRun,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.pageSize <= 0 {
		f.pageSize = DefaultPageSize
	}
	if f.maxItems <= 0 {
		f.maxItems = DefaultMaxItemsPerRun
	}
	return f
}

// Run fetches pages until the source runs dry, the per-run budget is spent
// or a page fails. Records from successful pages are enriched, appended to
// the prior snapshot and stored even when a later page fails; the failure is
// returned afterwards.
func (f *Fetcher) Run(ctx context.Context) (*Result, error) {
	started := time.Now()

	unlock, err := f.locker.Lock(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := unlock(); err != nil {
			f.logger.WithError(err).Warn("Failed to release sync lock")
		}
	}()

	state, err := checkpoint.LoadState(ctx, f.props)
	if err != nil {
		return nil, err
	}

	squads, err := f.squads(ctx)
	if err != nil {
		return nil, err
	}
	enricher := enrich.NewEnricher(squads, f.names)

	prior, err := storage.LoadSnapshot(ctx, f.snapshots, state.SnapshotHandle)
	if err != nil {
		f.logger.WithError(err).WarnWithFields("Prior snapshot unavailable, starting from empty", map[string]interface{}{
			"handle": state.SnapshotHandle,
		})
		prior = nil
	}

	res := &Result{
		Window: state.Window,
		Cursor: state.Cursor,
		Handle: state.SnapshotHandle,
	}

	f.logger.InfoWithFields("Starting sync run", map[string]interface{}{
		"group":        f.group,
		"window_start": state.Window.Start,
		"window_end":   state.Window.End,
		"cursor":       state.Cursor.Token,
		"has_more":     state.Cursor.HasMore,
		"prior_size":   len(prior),
		"budget":       f.maxItems,
	})
	f.emit(Event{Type: EventRunStarted, Budget: f.maxItems, HasMore: state.Cursor.HasMore})

	// A cancelled run still records what it already fetched.
	persistCtx := context.WithoutCancel(ctx)

	fetched, cursor, stopErr := f.fetchPages(ctx, persistCtx, state, res)
	res.Cursor = cursor
	res.Fetched = len(fetched)

	if res.TotalCount > 0 {
		f.logger.InfoWithFields("Merge requests to retrieve", map[string]interface{}{
			"count": res.TotalCount,
		})
	}

	res.SnapshotSize = len(prior)
	if len(fetched) > 0 {
		merged := make([]models.MergeRequest, 0, len(prior)+len(fetched))
		merged = append(merged, prior...)
		merged = append(merged, enricher.EnrichAll(fetched)...)

		handle, err := f.store(persistCtx, merged)
		if err != nil {
			f.logger.WithError(err).ErrorWithFields("Failed to store snapshot; records of this run are lost", map[string]interface{}{
				"fetched":  len(fetched),
				"handle":   state.SnapshotHandle,
				"cursor":   cursor.Token,
				"has_more": cursor.HasMore,
			})
			if stopErr != nil {
				f.logger.WithError(stopErr).Warn("Run had also stopped early")
			}
			res.Elapsed = time.Since(started)
			f.emit(Event{Type: EventRunFinished, Fetched: res.Fetched, Budget: f.maxItems, HasMore: cursor.HasMore, Err: err, Result: res})
			return res, err
		}

		if f.prune && state.SnapshotHandle != "" && state.SnapshotHandle != handle {
			if err := f.snapshots.Delete(persistCtx, state.SnapshotHandle); err != nil {
				f.logger.WithError(err).WarnWithFields("Failed to prune previous snapshot", map[string]interface{}{
					"handle": state.SnapshotHandle,
				})
			}
		}

		res.Handle = handle
		res.SnapshotSize = len(merged)
	}

	res.Complete = !cursor.HasMore
	res.Elapsed = time.Since(started)
	logger.LogRunSummary(f.logger, res.Fetched, res.SnapshotSize, res.Complete, res.Elapsed, stopErr)

	if stopErr != nil {
		f.emit(Event{Type: EventRunFinished, Fetched: res.Fetched, Budget: f.maxItems, HasMore: cursor.HasMore, Err: stopErr, Result: res})
		return res, stopErr
	}

	if state.Cursor.HasMore && res.Complete && f.onComplete != nil {
		f.logger.Info("All merge requests retrieved, running completion")
		if err := f.onComplete(ctx); err != nil {
			err = fmt.Errorf("completion: %w", err)
			f.emit(Event{Type: EventRunFinished, Fetched: res.Fetched, Budget: f.maxItems, Err: err, Result: res})
			return res, err
		}
		res.CompletionRan = true
	}

	f.emit(Event{Type: EventRunFinished, Fetched: res.Fetched, Budget: f.maxItems, HasMore: cursor.HasMore, Result: res})
	return res, nil
}

// fetchPages is the loop proper. The cursor is persisted after every
// successful page; a failed page leaves it where it was.
func (f *Fetcher) fetchPages(ctx, persistCtx context.Context, state models.SyncState, res *Result) ([]models.MergeRequest, models.PageCursor, error) {
	var fetched []models.MergeRequest
	cursor := state.Cursor

	for cursor.HasMore && len(fetched) < f.maxItems {
		if err := ctx.Err(); err != nil {
			f.logger.WithError(err).Warn("Sync run cancelled")
			return fetched, cursor, err
		}

		first := f.pageSize
		if remaining := f.maxItems - len(fetched); first > remaining {
			first = remaining
		}

		page, err := f.source.FetchMergeRequests(ctx, models.PageRequest{
			GroupPath:     f.group,
			After:         cursor.Token,
			CreatedAfter:  state.Window.Start,
			CreatedBefore: state.Window.End,
			First:         first,
		})
		if err == nil && page == nil {
			err = errors.Source(errors.SourceShape, 0, "source returned no page")
		}
		if err == nil && page.HasNextPage && page.EndCursor == "" {
			err = errors.Source(errors.SourceShape, 0, "page reports more results without an end cursor")
		}
		if err == nil && page.HasNextPage && cursor.Token != "" && page.EndCursor == cursor.Token {
			err = errors.Source(errors.SourceShape, 0, fmt.Sprintf("end cursor %q did not advance", page.EndCursor))
		}
		if err == nil && len(page.Records) > first {
			err = errors.Source(errors.SourceShape, 0, fmt.Sprintf("page has %d records, requested %d", len(page.Records), first))
		}
		if err != nil {
			f.logger.WithError(err).WarnWithFields("Stopping run at last good page", map[string]interface{}{
				"page":    res.Pages + 1,
				"cursor":  cursor.Token,
				"fetched": len(fetched),
			})
			f.emit(Event{Type: EventStopped, Page: res.Pages + 1, Fetched: len(fetched), Budget: f.maxItems, HasMore: true, Err: err})
			return fetched, cursor, err
		}

		next := models.PageCursor{Token: page.EndCursor, HasMore: page.HasNextPage}
		if next.Token == "" {
			next.Token = cursor.Token
		}
		if err := checkpoint.SaveCursor(persistCtx, f.props, next); err != nil {
			// The page is dropped so it is fetched again from the old cursor.
			f.logger.WithError(err).Error("Failed to persist cursor")
			return fetched, cursor, errors.Wrap(errors.KindSerialization, "save cursor", err)
		}

		fetched = append(fetched, page.Records...)
		cursor = next
		res.Pages++
		res.TotalCount = page.TotalCount

		logger.LogPage(f.logger, res.Pages, len(page.Records), len(fetched), f.maxItems, cursor.HasMore)
		f.emit(Event{
			Type:       EventPage,
			Page:       res.Pages,
			Records:    len(page.Records),
			Fetched:    len(fetched),
			Budget:     f.maxItems,
			TotalCount: page.TotalCount,
			HasMore:    cursor.HasMore,
		})
	}

	if cursor.HasMore {
		f.logger.InfoWithFields("Reached the per-run item budget", map[string]interface{}{
			"budget": f.maxItems,
		})
	}
	return fetched, cursor, nil
}

func (f *Fetcher) store(ctx context.Context, records []models.MergeRequest) (string, error) {
	handle, err := storage.SaveSnapshot(ctx, f.snapshots, records)
	if err != nil {
		return "", err
	}
	if err := checkpoint.SaveHandle(ctx, f.props, handle); err != nil {
		return "", errors.Wrap(errors.KindSerialization, "save snapshot handle", err)
	}
	return handle, nil
}

// RunUntilComplete repeats Run until the cycle completes, a run fails or
// maxRuns runs have been made (0 means no limit).
func (f *Fetcher) RunUntilComplete(ctx context.Context, maxRuns int) ([]*Result, error) {
	var results []*Result
	for i := 0; maxRuns <= 0 || i < maxRuns; i++ {
		res, err := f.Run(ctx)
		if res != nil {
			results = append(results, res)
		}
		if err != nil {
			return results, err
		}
		if res.Complete {
			return results, nil
		}
	}
	return results, nil
}

func (f *Fetcher) emit(ev Event) {
	if f.progress != nil {
		f.progress(ev)
	}
}

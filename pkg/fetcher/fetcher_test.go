package fetcher

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mrsync/pkg/checkpoint"
	"mrsync/pkg/config"
	"mrsync/pkg/enrich"
	"mrsync/pkg/errors"
	"mrsync/pkg/models"
	"mrsync/pkg/storage"
)

var testNow = time.Date(2024, 6, 30, 12, 0, 0, 0, time.UTC)

// pagedSource serves a fixed sequence of records, honoring First and After
type pagedSource struct {
	mu       sync.Mutex
	records  []models.MergeRequest
	failAt   map[int]error
	requests []models.PageRequest
}

func newPagedSource(n int) *pagedSource {
	src := &pagedSource{failAt: map[int]error{}}
	for i := 0; i < n; i++ {
		src.records = append(src.records, models.MergeRequest{
			ID:        fmt.Sprintf("gid://gitlab/MergeRequest/%d", i+1),
			ProjectID: "gid://gitlab/Project/42",
			Title:     fmt.Sprintf("MR %d", i+1),
			Author:    models.Person{Name: "jdoe", Username: "jdoe"},
		})
	}
	return src
}

func (s *pagedSource) FetchMergeRequests(ctx context.Context, req models.PageRequest) (*models.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	call := len(s.requests)
	s.requests = append(s.requests, req)
	if err, ok := s.failAt[call]; ok {
		return nil, err
	}

	offset := 0
	if req.After != "" {
		fmt.Sscanf(req.After, "cursor-%d", &offset)
	}
	end := offset + req.First
	if end > len(s.records) {
		end = len(s.records)
	}

	page := &models.Page{
		Records:     append([]models.MergeRequest(nil), s.records[offset:end]...),
		HasNextPage: end < len(s.records),
		TotalCount:  len(s.records),
	}
	if end > offset {
		page.EndCursor = fmt.Sprintf("cursor-%d", end)
	}
	return page, nil
}

func (s *pagedSource) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

// scriptedSource returns canned pages in order
type scriptedSource struct {
	pages []*models.Page
	errs  []error
	calls int
}

func (s *scriptedSource) FetchMergeRequests(ctx context.Context, req models.PageRequest) (*models.Page, error) {
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	if i >= len(s.pages) {
		return nil, stderrors.New("unexpected call")
	}
	return s.pages[i], nil
}

type failingSnapshots struct {
	*storage.MemoryStore
	failWrites bool
}

func (s *failingSnapshots) CreateAndStore(ctx context.Context, name string, content []byte) (string, error) {
	if s.failWrites {
		return "", stderrors.New("quota exceeded")
	}
	return s.MemoryStore.CreateAndStore(ctx, name, content)
}

func squads(ctx context.Context) (enrich.SquadMap, error) {
	return enrich.SquadMap{"42": "payments"}, nil
}

type harness struct {
	props     *checkpoint.MemoryStore
	snapshots *failingSnapshots
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		props:     checkpoint.NewMemoryStore(),
		snapshots: &failingSnapshots{MemoryStore: storage.NewMemoryStore()},
	}
	_, err := Reset(context.Background(), h.props, h.snapshots, 90, testNow)
	require.NoError(t, err)
	return h
}

func (h *harness) fetcher(src Source, opts ...Option) *Fetcher {
	base := []Option{
		WithGroup("acme"),
		WithSquads(squads),
		WithDictionary(enrich.NewDictionary(map[string]string{"jdoe": "John Doe"}, "*")),
	}
	return New(src, h.props, h.snapshots, append(base, opts...)...)
}

func (h *harness) state(t *testing.T) models.SyncState {
	t.Helper()
	state, err := checkpoint.LoadState(context.Background(), h.props)
	require.NoError(t, err)
	return state
}

func (h *harness) snapshot(t *testing.T) []models.MergeRequest {
	t.Helper()
	records, err := storage.LoadSnapshot(context.Background(), h.snapshots, h.state(t).SnapshotHandle)
	require.NoError(t, err)
	return records
}

func TestRunFetchesWholeCycle(t *testing.T) {
	h := newHarness(t)
	src := newPagedSource(230)

	completions := 0
	f := h.fetcher(src, WithCompletion(func(ctx context.Context) error {
		completions++
		return nil
	}))

	res, err := f.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, res.Pages)
	assert.Equal(t, 230, res.Fetched)
	assert.Equal(t, 230, res.SnapshotSize)
	assert.Equal(t, 230, res.TotalCount)
	assert.True(t, res.Complete)
	assert.True(t, res.CompletionRan)
	assert.Equal(t, 1, completions)

	for _, req := range src.requests {
		assert.Equal(t, "acme", req.GroupPath)
		assert.Equal(t, testNow, req.CreatedBefore)
		assert.Equal(t, testNow.AddDate(0, 0, -90), req.CreatedAfter)
	}
	assert.Empty(t, src.requests[0].After)
	assert.Equal(t, "cursor-100", src.requests[1].After)

	state := h.state(t)
	assert.False(t, state.Cursor.HasMore)
	assert.Equal(t, "cursor-230", state.Cursor.Token)

	records := h.snapshot(t)
	require.Len(t, records, 230)
	assert.Equal(t, "payments", records[0].Squad)
	assert.Equal(t, "John Doe", records[0].Author.Name)
	assert.Equal(t, "MR 230", records[229].Title)
}

func TestRunRespectsBudget(t *testing.T) {
	h := newHarness(t)
	src := newPagedSource(230)
	f := h.fetcher(src, WithMaxItemsPerRun(150))

	res, err := f.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, src.requests, 2)
	assert.Equal(t, 100, src.requests[0].First)
	assert.Equal(t, 50, src.requests[1].First, "last request is trimmed to the remaining budget")
	assert.Equal(t, 150, res.Fetched)
	assert.False(t, res.Complete)
	assert.False(t, res.CompletionRan)

	state := h.state(t)
	assert.True(t, state.Cursor.HasMore)
	assert.Equal(t, "cursor-150", state.Cursor.Token)
	assert.Len(t, h.snapshot(t), 150)
}

func TestRunResumesAcrossRuns(t *testing.T) {
	h := newHarness(t)
	src := newPagedSource(230)

	completions := 0
	f := h.fetcher(src, WithMaxItemsPerRun(150), WithCompletion(func(ctx context.Context) error {
		completions++
		return nil
	}))

	first, err := f.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, first.Complete)
	assert.Zero(t, completions)

	second, err := f.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 80, second.Fetched)
	assert.True(t, second.Complete)
	assert.Equal(t, 1, completions)
	assert.Equal(t, "cursor-150", src.requests[2].After)

	records := h.snapshot(t)
	require.Len(t, records, 230)
	for i, rec := range records {
		assert.Equal(t, fmt.Sprintf("MR %d", i+1), rec.Title)
	}

	calls := src.calls()
	third, err := f.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, calls, src.calls(), "a completed cycle makes no requests")
	assert.Zero(t, third.Fetched)
	assert.True(t, third.Complete)
	assert.Equal(t, 1, completions, "completion fires once per cycle")
	assert.Len(t, h.snapshot(t), 230)
}

func TestRunCapsScriptedPages(t *testing.T) {
	h := newHarness(t)
	src := &scriptedSource{pages: []*models.Page{
		{Records: make([]models.MergeRequest, 100), EndCursor: "a", HasNextPage: true},
		{Records: make([]models.MergeRequest, 50), EndCursor: "b", HasNextPage: true},
		{Records: make([]models.MergeRequest, 30), EndCursor: "c", HasNextPage: false},
	}}
	f := h.fetcher(src, WithMaxItemsPerRun(150))

	res, err := f.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, src.calls)
	assert.Equal(t, 150, res.Fetched)
	assert.Equal(t, models.PageCursor{Token: "b", HasMore: true}, h.state(t).Cursor)
}

func TestRunStopsOnSourceError(t *testing.T) {
	h := newHarness(t)
	src := newPagedSource(300)
	src.failAt[1] = errors.Source(errors.SourceServer, 502, "bad gateway")

	completions := 0
	f := h.fetcher(src, WithCompletion(func(ctx context.Context) error {
		completions++
		return nil
	}))

	res, err := f.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindSource))
	require.NotNil(t, res)
	assert.Equal(t, 100, res.Fetched)
	assert.False(t, res.Complete)
	assert.Zero(t, completions)

	state := h.state(t)
	assert.Equal(t, "cursor-100", state.Cursor.Token, "cursor stays at the last good page")
	assert.True(t, state.Cursor.HasMore)
	assert.Len(t, h.snapshot(t), 100, "records from good pages are kept")

	delete(src.failAt, 1)
	res, err = f.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Complete)
	assert.Len(t, h.snapshot(t), 300)
}

func TestRunRejectsMissingEndCursor(t *testing.T) {
	h := newHarness(t)
	src := &scriptedSource{pages: []*models.Page{
		{Records: make([]models.MergeRequest, 10), EndCursor: "", HasNextPage: true},
	}}
	f := h.fetcher(src)

	res, err := f.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindSource))
	assert.Zero(t, res.Fetched)
	assert.Equal(t, models.InitialCursor(), h.state(t).Cursor)
}

// stuckSource keeps answering with the same cursor and no records
type stuckSource struct {
	calls int
}

func (s *stuckSource) FetchMergeRequests(ctx context.Context, req models.PageRequest) (*models.Page, error) {
	s.calls++
	if req.After == "" {
		return &models.Page{Records: make([]models.MergeRequest, 3), EndCursor: "same", HasNextPage: true}, nil
	}
	return &models.Page{EndCursor: "same", HasNextPage: true}, nil
}

func TestRunRejectsCursorThatDoesNotAdvance(t *testing.T) {
	h := newHarness(t)
	src := &stuckSource{}
	f := h.fetcher(src)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	res, err := f.Run(ctx)
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindSource))
	assert.Contains(t, err.Error(), "did not advance")
	assert.Equal(t, 2, src.calls)
	assert.Equal(t, 3, res.Fetched)
	assert.Equal(t, models.PageCursor{Token: "same", HasMore: true}, h.state(t).Cursor)
	assert.Len(t, h.snapshot(t), 3)
}

func TestRunRejectsOversizedPage(t *testing.T) {
	h := newHarness(t)
	src := &scriptedSource{pages: []*models.Page{
		{Records: make([]models.MergeRequest, 100), EndCursor: "a", HasNextPage: true},
		{Records: make([]models.MergeRequest, 100), EndCursor: "b", HasNextPage: true},
	}}
	f := h.fetcher(src, WithMaxItemsPerRun(150))

	res, err := f.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindSource))
	assert.Equal(t, 100, res.Fetched, "a run never exceeds its budget")
	assert.Equal(t, models.PageCursor{Token: "a", HasMore: true}, h.state(t).Cursor,
		"the oversized page is requested again next run")
}

func TestRunResumableAtAnyBudget(t *testing.T) {
	tests := []struct {
		total  int
		budget int
	}{
		{230, 150},
		{536, 1},
		{536, 7},
		{536, 99},
		{536, 100},
		{536, 101},
		{536, 250},
		{536, 268},
		{536, 536},
		{536, 537},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d_by_%d", tt.total, tt.budget), func(t *testing.T) {
			h := newHarness(t)
			src := newPagedSource(tt.total)

			completions := 0
			f := h.fetcher(src, WithMaxItemsPerRun(tt.budget), WithCompletion(func(ctx context.Context) error {
				completions++
				return nil
			}))

			results, err := f.RunUntilComplete(context.Background(), 0)
			require.NoError(t, err)

			assert.Len(t, results, (tt.total+tt.budget-1)/tt.budget)
			for _, res := range results {
				assert.LessOrEqual(t, res.Fetched, tt.budget)
			}
			assert.Equal(t, 1, completions)

			records := h.snapshot(t)
			require.Len(t, records, tt.total)
			for i, rec := range records {
				assert.Equal(t, fmt.Sprintf("MR %d", i+1), rec.Title)
			}
		})
	}
}

func TestRunKeepsCursorOnEmptyFinalPage(t *testing.T) {
	h := newHarness(t)
	src := &scriptedSource{pages: []*models.Page{
		{Records: make([]models.MergeRequest, 5), EndCursor: "a", HasNextPage: true},
		{EndCursor: "", HasNextPage: false},
	}}
	f := h.fetcher(src)

	res, err := f.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Complete)
	assert.Equal(t, models.PageCursor{Token: "a", HasMore: false}, h.state(t).Cursor)
}

func TestRunTreatsCorruptSnapshotAsEmpty(t *testing.T) {
	h := newHarness(t)
	handle := h.state(t).SnapshotHandle
	h.snapshots.Put(handle, []byte("{not json"))

	f := h.fetcher(newPagedSource(20))
	res, err := f.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 20, res.SnapshotSize)
	assert.Len(t, h.snapshot(t), 20)
}

func TestRunWithoutRecordsSkipsWrite(t *testing.T) {
	h := newHarness(t)
	before := h.state(t).SnapshotHandle
	docs := h.snapshots.Len()

	src := &scriptedSource{pages: []*models.Page{{HasNextPage: false}}}
	res, err := h.fetcher(src).Run(context.Background())
	require.NoError(t, err)

	assert.Zero(t, res.Fetched)
	assert.Equal(t, before, res.Handle)
	assert.Equal(t, before, h.state(t).SnapshotHandle)
	assert.Equal(t, docs, h.snapshots.Len())
}

func TestRunSnapshotWriteFailure(t *testing.T) {
	h := newHarness(t)
	before := h.state(t).SnapshotHandle
	h.snapshots.failWrites = true

	completions := 0
	f := h.fetcher(newPagedSource(20), WithCompletion(func(ctx context.Context) error {
		completions++
		return nil
	}))

	res, err := f.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindSerialization))
	assert.Equal(t, before, res.Handle)
	assert.Equal(t, before, h.state(t).SnapshotHandle, "handle keeps pointing at the prior snapshot")
	assert.Zero(t, completions)
}

func TestRunRequiresSquads(t *testing.T) {
	h := newHarness(t)
	src := newPagedSource(10)

	f := New(src, h.props, h.snapshots)
	_, err := f.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindConfig))

	f = h.fetcher(src, WithSquads(func(ctx context.Context) (enrich.SquadMap, error) {
		return enrich.LoadSquads(config.SquadsConfig{})
	}))
	_, err = f.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindConfig))
	assert.Zero(t, src.calls(), "nothing is fetched without a squad map")
}

func TestRunRequiresWindow(t *testing.T) {
	f := New(newPagedSource(1), checkpoint.NewMemoryStore(), storage.NewMemoryStore(), WithSquads(squads))
	_, err := f.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindConfig))
}

type busyLocker struct{}

func (busyLocker) Lock(ctx context.Context) (func() error, error) {
	return nil, errors.New(errors.KindLocked, "acquire lock", "held by another run")
}

func TestRunHonorsLock(t *testing.T) {
	h := newHarness(t)
	src := newPagedSource(10)

	_, err := h.fetcher(src, WithLocker(busyLocker{})).Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindLocked))
	assert.Zero(t, src.calls())
}

func TestRunCancelledContext(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())

	src := newPagedSource(300)
	f := h.fetcher(src, WithProgress(func(ev Event) {
		if ev.Type == EventPage && ev.Page == 1 {
			cancel()
		}
	}))

	res, err := f.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 100, res.Fetched)
	assert.Len(t, h.snapshot(t), 100, "fetched pages are stored after cancellation")
	assert.Equal(t, "cursor-100", h.state(t).Cursor.Token)
}

func TestRunCompletionError(t *testing.T) {
	h := newHarness(t)
	f := h.fetcher(newPagedSource(5), WithCompletion(func(ctx context.Context) error {
		return stderrors.New("report sink down")
	}))

	res, err := f.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "completion")
	assert.True(t, res.Complete)
	assert.False(t, res.CompletionRan)
	assert.Len(t, h.snapshot(t), 5)
}

func TestRunProgressEvents(t *testing.T) {
	h := newHarness(t)
	var events []Event
	f := h.fetcher(newPagedSource(150), WithProgress(func(ev Event) { events = append(events, ev) }))

	_, err := f.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, events, 4)
	assert.Equal(t, EventRunStarted, events[0].Type)
	assert.Equal(t, EventPage, events[1].Type)
	assert.Equal(t, 100, events[1].Fetched)
	assert.Equal(t, 150, events[2].Fetched)
	assert.False(t, events[2].HasMore)
	assert.Equal(t, EventRunFinished, events[3].Type)
	require.NotNil(t, events[3].Result)
}

func TestRunPrunesPreviousSnapshot(t *testing.T) {
	h := newHarness(t)
	first := h.state(t).SnapshotHandle

	_, err := h.fetcher(newPagedSource(5), WithPruneSnapshots(true)).Run(context.Background())
	require.NoError(t, err)

	_, err = h.snapshots.Open(context.Background(), first)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.Equal(t, 1, h.snapshots.Len())
}

func TestRunUntilComplete(t *testing.T) {
	h := newHarness(t)
	src := newPagedSource(230)
	f := h.fetcher(src, WithMaxItemsPerRun(100))

	results, err := f.RunUntilComplete(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.True(t, results[2].Complete)
	assert.Len(t, h.snapshot(t), 230)

	h = newHarness(t)
	f = h.fetcher(newPagedSource(230), WithMaxItemsPerRun(100))
	results, err = f.RunUntilComplete(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.False(t, results[1].Complete)
}

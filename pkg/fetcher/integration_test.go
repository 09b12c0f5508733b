package fetcher_test

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mrsync/pkg/checkpoint"
	"mrsync/pkg/config"
	"mrsync/pkg/enrich"
	"mrsync/pkg/fetcher"
	"mrsync/pkg/gitlab"
	"mrsync/pkg/logger"
	"mrsync/pkg/models"
	"mrsync/pkg/report"
	"mrsync/pkg/storage"
)

// mockGitLab serves the group merge request connection over /api/graphql,
// paging through total records with "c<offset>" cursors
type mockGitLab struct {
	server *httptest.Server
	total  int

	mu      sync.Mutex
	afters  []string
	failOn  int
	calls   int
	created time.Time
}

func newMockGitLab(t *testing.T, total int) *mockGitLab {
	t.Helper()
	m := &mockGitLab{total: total, failOn: -1, created: time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/graphql", m.handleGraphQL)
	m.server = httptest.NewServer(mux)
	t.Cleanup(m.server.Close)
	return m
}

func (m *mockGitLab) handleGraphQL(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Variables map[string]interface{} `json:"variables"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	m.mu.Lock()
	call := m.calls
	m.calls++
	after, _ := body.Variables["after"].(string)
	m.afters = append(m.afters, after)
	m.mu.Unlock()

	if call == m.failOn {
		w.WriteHeader(http.StatusBadGateway)
		return
	}

	offset := 0
	if after != "" {
		offset, _ = strconv.Atoi(after[1:])
	}
	first := int(body.Variables["first"].(float64))
	end := offset + first
	if end > m.total {
		end = m.total
	}

	nodes := make([]map[string]interface{}, 0, end-offset)
	for i := offset; i < end; i++ {
		nodes = append(nodes, m.node(i))
	}

	cursor := fmt.Sprintf("c%d", end)
	resp := map[string]interface{}{
		"data": map[string]interface{}{
			"group": map[string]interface{}{
				"mergeRequests": map[string]interface{}{
					"count":    m.total,
					"pageInfo": map[string]interface{}{"endCursor": cursor, "hasNextPage": end < m.total},
					"nodes":    nodes,
				},
			},
		},
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (m *mockGitLab) node(i int) map[string]interface{} {
	created := m.created.Add(time.Duration(i) * time.Hour)
	n := map[string]interface{}{
		"id":          fmt.Sprintf("gid://gitlab/MergeRequest/%d", 1000+i),
		"iid":         strconv.Itoa(i + 1),
		"title":       fmt.Sprintf("Change %d", i+1),
		"description": nil,
		"project":     map[string]interface{}{"id": "gid://gitlab/Project/42", "name": "payments-api"},
		"createdAt":   created.Format(time.RFC3339),
		"author":      map[string]interface{}{"name": "John Doe", "username": "jdoe"},
		"mergedAt":    nil,
		"mergeUser":   nil,
		"approvedBy":  map[string]interface{}{"nodes": []interface{}{}},
		"commenters":  map[string]interface{}{"nodes": []interface{}{}},
		"state":       "opened",
		"webUrl":      fmt.Sprintf("https://gitlab.example.com/acme/payments-api/-/merge_requests/%d", i+1),
	}
	if i%2 == 0 {
		n["mergedAt"] = created.Add(24 * time.Hour).Format(time.RFC3339)
		n["mergeUser"] = map[string]interface{}{"name": "Ana", "username": "ana"}
		n["state"] = "merged"
	}
	return n
}

func (m *mockGitLab) requestedAfters() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.afters...)
}

type stack struct {
	props     *checkpoint.FileStore
	snapshots *storage.FileStore
	sink      *report.CSVSink
	reports   string
}

func newStack(t *testing.T) *stack {
	t.Helper()
	dir := t.TempDir()
	log := logger.NewNopLogger()

	props, err := checkpoint.NewFileStore(dir, log)
	require.NoError(t, err)
	snapshots, err := storage.NewFileStore(filepath.Join(dir, "snapshots"))
	require.NoError(t, err)
	reports := filepath.Join(dir, "reports")
	sink, err := report.NewCSVSink(reports, "")
	require.NoError(t, err)

	return &stack{props: props, snapshots: snapshots, sink: sink, reports: reports}
}

func (s *stack) newFetcher(t *testing.T, srv *mockGitLab, dir string, opts ...fetcher.Option) *fetcher.Fetcher {
	t.Helper()
	log := logger.NewNopLogger()
	client := gitlab.NewClient(config.GitLabConfig{URL: srv.server.URL, Token: "glpat-test", Timeout: 5 * time.Second})
	writer := report.NewWriter(s.props, s.snapshots, s.sink, config.ReportsConfig{ProjectLimit: report.DefaultLimit}, log)

	base := []fetcher.Option{
		fetcher.WithGroup("acme"),
		fetcher.WithPageSize(2),
		fetcher.WithMaxItemsPerRun(4),
		fetcher.WithLocker(checkpoint.NewFileLock(dir, time.Minute, log)),
		fetcher.WithSquads(func(ctx context.Context) (enrich.SquadMap, error) {
			return enrich.SquadMap{"42": "payments"}, nil
		}),
		fetcher.WithDictionary(enrich.NewDictionary(map[string]string{"jdoe": "John Doe"}, "")),
		fetcher.WithCompletion(writer.WriteAll),
		fetcher.WithLogger(log),
	}
	return fetcher.New(client, s.props, s.snapshots, append(base, opts...)...)
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestEndToEndCycleWritesReports(t *testing.T) {
	ctx := context.Background()
	srv := newMockGitLab(t, 10)
	s := newStack(t)
	lockDir := t.TempDir()

	_, err := fetcher.Reset(ctx, s.props, s.snapshots, 30, time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	f := s.newFetcher(t, srv, lockDir)
	results, err := f.RunUntilComplete(ctx, 0)
	require.NoError(t, err)

	require.Len(t, results, 3)
	assert.Equal(t, 4, results[0].Fetched)
	assert.Equal(t, 4, results[1].Fetched)
	assert.Equal(t, 2, results[2].Fetched)
	assert.True(t, results[2].Complete)
	assert.True(t, results[2].CompletionRan)
	assert.Equal(t, 10, results[2].SnapshotSize)

	assert.Equal(t, []string{"", "c2", "c4", "c6", "c8"}, srv.requestedAfters())

	state, err := checkpoint.LoadState(ctx, s.props)
	require.NoError(t, err)
	assert.False(t, state.Cursor.HasMore)
	assert.Equal(t, "c10", state.Cursor.Token)

	records, err := storage.LoadSnapshot(ctx, s.snapshots, state.SnapshotHandle)
	require.NoError(t, err)
	require.Len(t, records, 10)
	seen := map[string]bool{}
	for _, mr := range records {
		assert.False(t, seen[mr.ID], "duplicate %s", mr.ID)
		seen[mr.ID] = true
		assert.Equal(t, "payments", mr.Squad)
	}

	wip := readCSV(t, s.sink.Path("gitlab_wip"))
	assert.Len(t, wip, 11)

	projects := readCSV(t, s.sink.Path("gitlab_projects"))
	require.Len(t, projects, 2)
	assert.Equal(t, "payments-api", projects[1][0])
}

func TestEndToEndResumesAfterServerError(t *testing.T) {
	ctx := context.Background()
	srv := newMockGitLab(t, 6)
	srv.failOn = 1
	s := newStack(t)
	lockDir := t.TempDir()

	_, err := fetcher.Reset(ctx, s.props, s.snapshots, 30, time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	f := s.newFetcher(t, srv, lockDir)
	res, err := f.Run(ctx)
	require.Error(t, err)
	assert.Equal(t, 2, res.Fetched)
	assert.False(t, res.Complete)

	state, err := checkpoint.LoadState(ctx, s.props)
	require.NoError(t, err)
	assert.Equal(t, models.PageCursor{Token: "c2", HasMore: true}, state.Cursor)

	_, err = os.Stat(s.sink.Path("gitlab_wip"))
	assert.True(t, os.IsNotExist(err), "reports wait for a complete cycle")

	results, err := f.RunUntilComplete(ctx, 0)
	require.NoError(t, err)
	last := results[len(results)-1]
	assert.True(t, last.Complete)
	assert.Equal(t, 6, last.SnapshotSize)

	afters := srv.requestedAfters()
	assert.Equal(t, "c2", afters[2], "the failed page is requested again")
}

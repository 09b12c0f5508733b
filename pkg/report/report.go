// Package report projects a merge request snapshot into the WIP, changelog
// and per-project tables and writes them to a Sink.
package report

import (
	"fmt"
	"sort"
	"time"

	"mrsync/pkg/models"
)

const (
	Tool             = "gitlab"
	DefaultLimit     = 500
	monthForAverages = 30 * 24 * time.Hour
)

// Changelog actions
const (
	ActionCreated  = "mr criado"
	ActionApproved = "mr aprovado"
	ActionComment  = "comentário"
	ActionMerged   = "merge"
)

// ColumnType drives how a sink stores a value
type ColumnType int

const (
	Text ColumnType = iota
	Integer
	Float
	Timestamp
)

type Column struct {
	Name string
	Type ColumnType
}

// Report is a header plus rows. Cells hold string, int, float64,
// time.Time or nil for an empty cell.
type Report struct {
	Columns []Column
	Rows    [][]any
}

// Header returns the column names
func (r Report) Header() []string {
	names := make([]string, len(r.Columns))
	for i, c := range r.Columns {
		names[i] = c.Name
	}
	return names
}

var wipColumns = []Column{
	{"merge_id", Text},
	{"project_id", Text},
	{"squad", Text},
	{"created_at", Timestamp},
	{"approvals", Integer},
	{"comments", Integer},
	{"merged_at", Timestamp},
	{"lead_time_days", Float},
	{"title", Text},
	{"description", Text},
	{"state", Text},
	{"author", Text},
	{"merged_by", Text},
	{"web_url", Text},
}

var changelogColumns = []Column{
	{"merge_id", Text},
	{"date", Timestamp},
	{"tool", Text},
	{"project", Text},
	{"squad", Text},
	{"person", Text},
	{"action", Text},
	{"detail", Text},
}

var projectColumns = []Column{
	{"project", Text},
	{"project_id", Text},
	{"squad", Text},
	{"merges", Integer},
	{"latest_merge", Timestamp},
	{"avg_lead_time_days", Float},
	{"merges_per_month", Float},
}

// WIP has one row per merge request
func WIP(records []models.MergeRequest) Report {
	r := Report{Columns: wipColumns, Rows: make([][]any, 0, len(records))}
	for _, mr := range records {
		var mergedAt, lead any
		mergedBy := ""
		if mr.IsMerged() {
			mergedAt = *mr.MergedAt
			lead = days(mr.LeadTime())
		}
		if mr.MergeUser != nil {
			mergedBy = mr.MergeUser.Name
		}

		r.Rows = append(r.Rows, []any{
			mr.NumericID(),
			mr.NumericProjectID(),
			mr.Squad,
			mr.CreatedAt,
			len(mr.Approvals),
			len(mr.Comments),
			mergedAt,
			lead,
			mr.Title,
			mr.Description,
			mr.State,
			mr.Author.Name,
			mergedBy,
			mr.WebURL,
		})
	}
	return r
}

// Changelog has one row per event: creation, each approval, each comment and
// the merge. Approvals and comments carry the creation date.
func Changelog(records []models.MergeRequest) Report {
	r := Report{Columns: changelogColumns}
	for _, mr := range records {
		id := "gitlab-" + mr.NumericID()
		row := func(at time.Time, person, action, detail string) []any {
			return []any{id, at, Tool, mr.ProjectName, mr.Squad, person, action, fmt.Sprintf(detail, mr.Title, id)}
		}

		r.Rows = append(r.Rows, row(mr.CreatedAt, mr.Author.Name, ActionCreated, "criação de %s - %s"))
		for _, p := range mr.Approvals {
			r.Rows = append(r.Rows, row(mr.CreatedAt, p.Name, ActionApproved, "aprovação de %s - %s"))
		}
		for _, p := range mr.Comments {
			r.Rows = append(r.Rows, row(mr.CreatedAt, p.Name, ActionComment, "comentário em %s - %s"))
		}
		if mr.IsMerged() {
			mergedBy := ""
			if mr.MergeUser != nil {
				mergedBy = mr.MergeUser.Name
			}
			r.Rows = append(r.Rows, row(*mr.MergedAt, mergedBy, ActionMerged, "merge de %s - %s"))
		}
	}
	return r
}

type projectStats struct {
	name      string
	id        string
	squad     string
	merges    int
	merged    int
	latest    *time.Time
	totalLead time.Duration
}

// ProjectStats aggregates records per project. Merges counts every record;
// the lead time average only merged ones. Rows are sorted by merges
// descending, ties in first-seen order, and capped at limit.
func ProjectStats(records []models.MergeRequest, window models.SyncWindow, limit int) Report {
	if limit <= 0 {
		limit = DefaultLimit
	}

	var order []*projectStats
	byID := make(map[string]*projectStats)
	for _, mr := range records {
		id := mr.NumericProjectID()
		st, ok := byID[id]
		if !ok {
			st = &projectStats{name: mr.ProjectName, id: id, squad: mr.Squad}
			byID[id] = st
			order = append(order, st)
		}

		st.merges++
		if mr.IsMerged() {
			st.merged++
			st.totalLead += mr.LeadTime()
			if st.latest == nil || mr.MergedAt.After(*st.latest) {
				t := *mr.MergedAt
				st.latest = &t
			}
		}
	}

	sort.SliceStable(order, func(i, j int) bool { return order[i].merges > order[j].merges })
	if len(order) > limit {
		order = order[:limit]
	}

	months := float64(window.Duration()) / float64(monthForAverages)

	r := Report{Columns: projectColumns, Rows: make([][]any, 0, len(order))}
	for _, st := range order {
		avg := 0.0
		if st.merged > 0 {
			avg = days(st.totalLead) / float64(st.merged)
		}
		perMonth := 0.0
		if months > 0 {
			perMonth = float64(st.merges) / months
		}
		var latest any
		if st.latest != nil {
			latest = *st.latest
		}
		r.Rows = append(r.Rows, []any{st.name, st.id, st.squad, st.merges, latest, avg, perMonth})
	}
	return r
}

func days(d time.Duration) float64 {
	return d.Hours() / 24
}

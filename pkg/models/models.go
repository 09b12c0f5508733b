package models

import (
	"strings"
	"time"
)

// SyncWindow bounds the creation dates of the merge requests fetched in a cycle
type SyncWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Duration returns the length of the window
func (w SyncWindow) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

// IsZero reports whether the window was never set
func (w SyncWindow) IsZero() bool {
	return w.Start.IsZero() && w.End.IsZero()
}

// PageCursor is the pagination position of the data source
type PageCursor struct {
	Token   string `json:"token"`
	HasMore bool   `json:"has_more"`
}

// InitialCursor is the cursor of a freshly reset cycle
func InitialCursor() PageCursor {
	return PageCursor{Token: "", HasMore: true}
}

// SyncState is everything a run needs to resume a cycle
type SyncState struct {
	Window         SyncWindow `json:"window"`
	Cursor         PageCursor `json:"cursor"`
	SnapshotHandle string     `json:"snapshot_handle"`
}

// Person is a GitLab user as referenced by a merge request
type Person struct {
	Name     string `json:"name"`
	Username string `json:"username,omitempty"`
}

// MergeRequest is a single fetched and (optionally) enriched record
type MergeRequest struct {
	ID          string     `json:"id"`
	IID         string     `json:"iid,omitempty"`
	ProjectID   string     `json:"projectId"`
	ProjectName string     `json:"projectName"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	State       string     `json:"state"`
	CreatedAt   time.Time  `json:"createdAt"`
	MergedAt    *time.Time `json:"mergedAt,omitempty"`
	Author      Person     `json:"author"`
	MergeUser   *Person    `json:"mergeUser,omitempty"`
	Approvals   []Person   `json:"approvals"`
	Comments    []Person   `json:"comments"`
	Squad       string     `json:"squad,omitempty"`
	WebURL      string     `json:"webUrl"`
}

// NumericID returns the trailing segment of the global merge request ID
func (mr MergeRequest) NumericID() string {
	return LastSegment(mr.ID)
}

// NumericProjectID returns only the digits of the global project ID
func (mr MergeRequest) NumericProjectID() string {
	return Digits(mr.ProjectID)
}

// IsMerged reports whether the merge request has a merge timestamp
func (mr MergeRequest) IsMerged() bool {
	return mr.MergedAt != nil && !mr.MergedAt.IsZero()
}

// LeadTime is the time between creation and merge, zero when not merged
func (mr MergeRequest) LeadTime() time.Duration {
	if !mr.IsMerged() {
		return 0
	}
	return mr.MergedAt.Sub(mr.CreatedAt)
}

// PageRequest describes one call to the data source
type PageRequest struct {
	GroupPath     string
	After         string
	CreatedAfter  time.Time
	CreatedBefore time.Time
	First         int
}

// Page is one page of results returned by the data source
type Page struct {
	Records     []MergeRequest
	EndCursor   string
	HasNextPage bool
	TotalCount  int
}

// LastSegment returns the part of a GitLab global ID after the last slash
func LastSegment(id string) string {
	if i := strings.LastIndex(id, "/"); i >= 0 {
		return id[i+1:]
	}
	return id
}

// Digits strips every non-digit character from s
func Digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

package fetcher

import (
	"context"

	"mrsync/pkg/enrich"
	"mrsync/pkg/models"
)

// Source returns one page of merge requests per call
type Source interface {
	FetchMergeRequests(ctx context.Context, req models.PageRequest) (*models.Page, error)
}

// SquadLoader loads the squad map at the start of every run
type SquadLoader func(ctx context.Context) (enrich.SquadMap, error)

// CompletionFunc runs once when a cycle has fetched its last page
type CompletionFunc func(ctx context.Context) error

// EventType tells progress listeners what happened
type EventType int

const (
	EventRunStarted EventType = iota
	EventPage
	EventStopped
	EventRunFinished
)

// Event is a progress notification from a run
type Event struct {
	Type       EventType
	Page       int
	Records    int
	Fetched    int
	Budget     int
	TotalCount int
	HasMore    bool
	Err        error
	Result     *Result
}

// ProgressFunc receives progress events synchronously from the fetch loop
type ProgressFunc func(Event)

// Package enrich attaches squads and canonical user names to merge requests.
package enrich

import "mrsync/pkg/models"

// Enricher is a pure record transform
type Enricher struct {
	squads SquadMap
	names  *Dictionary
}

func NewEnricher(squads SquadMap, names *Dictionary) *Enricher {
	if names == nil {
		names = NewDictionary(nil, DefaultUnknownMarker)
	}
	return &Enricher{squads: squads, names: names}
}

// Enrich returns a copy of rec with squad and normalized names; rec is not modified
func (e *Enricher) Enrich(rec models.MergeRequest) models.MergeRequest {
	out := rec

	if squad, ok := e.squads.Lookup(rec.ProjectID); ok {
		out.Squad = squad
	}

	out.Author = e.person(rec.Author)
	if rec.MergeUser != nil {
		mu := e.person(*rec.MergeUser)
		out.MergeUser = &mu
	}
	out.Approvals = e.people(rec.Approvals)
	out.Comments = e.people(rec.Comments)
	if rec.MergedAt != nil {
		t := *rec.MergedAt
		out.MergedAt = &t
	}

	return out
}

// EnrichAll enriches records in order
func (e *Enricher) EnrichAll(recs []models.MergeRequest) []models.MergeRequest {
	out := make([]models.MergeRequest, len(recs))
	for i, rec := range recs {
		out[i] = e.Enrich(rec)
	}
	return out
}

func (e *Enricher) person(p models.Person) models.Person {
	p.Name = e.names.Normalize(p.Name).Value
	return p
}

func (e *Enricher) people(in []models.Person) []models.Person {
	if in == nil {
		return nil
	}
	out := make([]models.Person, len(in))
	for i, p := range in {
		out[i] = e.person(p)
	}
	return out
}

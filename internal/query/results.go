package query

import "sort"

// ScoredDoc is one hit: the stored fields plus the engine score. ID and
// Shard order hits deterministically after a merge; neither is part of the
// wire format.
type ScoredDoc struct {
	Score *float64               `json:"score,omitempty"`
	Doc   map[string]interface{} `json:"doc"`

	ID    string `json:"-"`
	Shard int    `json:"-"`
}

// Facet is one aggregation bucket: the facet value and its count.
type Facet struct {
	Field string `json:"field"`
	Value uint64 `json:"value"`
}

// SearchResults is the mergeable response of one or more participants.
// Partial is reserved for reporting failed participants in a future
// revision; it stays empty today so adding it later cannot break readers.
type SearchResults struct {
	Hits    uint64      `json:"hits"`
	Docs    []ScoredDoc `json:"docs"`
	Facets  []Facet     `json:"facets,omitempty"`
	Partial []string    `json:"partial,omitempty"`
}

// Merge folds other into r: hit counts sum, docs concatenate, facet counts
// sum per field. Merge is associative and commutative up to doc order, and
// the zero SearchResults is its identity; Rank restores the canonical order
// after the last fold.
func (r *SearchResults) Merge(other SearchResults) {
	r.Hits += other.Hits
	r.Docs = append(r.Docs, other.Docs...)
	if len(other.Facets) == 0 {
		return
	}
	counts := make(map[string]uint64, len(r.Facets)+len(other.Facets))
	order := make([]string, 0, len(r.Facets)+len(other.Facets))
	for _, f := range append(r.Facets, other.Facets...) {
		if _, seen := counts[f.Field]; !seen {
			order = append(order, f.Field)
		}
		counts[f.Field] += f.Value
	}
	sort.Strings(order)
	merged := make([]Facet, 0, len(order))
	for _, field := range order {
		merged = append(merged, Facet{Field: field, Value: counts[field]})
	}
	r.Facets = merged
}

// Rank sorts docs by score descending with ties broken by (shard asc, doc id
// asc) and truncates to limit. Hits keeps the pre-truncation total.
func (r *SearchResults) Rank(limit int) {
	sort.SliceStable(r.Docs, func(i, j int) bool {
		a, b := r.Docs[i], r.Docs[j]
		as, bs := 0.0, 0.0
		if a.Score != nil {
			as = *a.Score
		}
		if b.Score != nil {
			bs = *b.Score
		}
		if as != bs {
			return as > bs
		}
		if a.Shard != b.Shard {
			return a.Shard < b.Shard
		}
		return a.ID < b.ID
	})
	if limit > 0 && len(r.Docs) > limit {
		r.Docs = r.Docs[:limit]
	}
}

package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func doc(score float64, shard int, id string) ScoredDoc {
	return ScoredDoc{Score: &score, Shard: shard, ID: id, Doc: map[string]interface{}{"id": id}}
}

func results(hits uint64, docs ...ScoredDoc) SearchResults {
	return SearchResults{Hits: hits, Docs: docs}
}

// ranked merges all inputs in the given order, then ranks with the given
// limit (0 means no truncation).
func ranked(limit int, parts ...SearchResults) SearchResults {
	var merged SearchResults
	for _, p := range parts {
		merged.Merge(p)
	}
	merged.Rank(limit)
	return merged
}

func TestMergeIdentity(t *testing.T) {
	a := results(2, doc(0.9, 0, "a"), doc(0.1, 0, "b"))
	var zero SearchResults
	zero.Merge(a)
	assert.Equal(t, a.Hits, zero.Hits)
	assert.Equal(t, a.Docs, zero.Docs)
}

func TestMergeCommutative(t *testing.T) {
	a := results(2, doc(0.9, 0, "a"), doc(0.1, 0, "b"))
	b := results(1, doc(0.5, 1, "c"))
	ab := ranked(0, a, b)
	ba := ranked(0, b, a)
	assert.Equal(t, ab, ba)
}

func TestMergeAssociative(t *testing.T) {
	a := results(1, doc(0.9, 0, "a"))
	b := results(1, doc(0.5, 1, "b"))
	c := results(1, doc(0.7, 2, "c"))

	var left SearchResults
	left.Merge(a)
	left.Merge(b)
	left.Merge(c)
	left.Rank(0)

	var bc SearchResults
	bc.Merge(b)
	bc.Merge(c)
	var right SearchResults
	right.Merge(a)
	right.Merge(bc)
	right.Rank(0)

	assert.Equal(t, left, right)
}

func TestMergeSumsHitsAndFacets(t *testing.T) {
	a := SearchResults{Hits: 2, Facets: []Facet{{Field: "/cat/cat1", Value: 1}, {Field: "/cat/cat2", Value: 1}}}
	b := SearchResults{Hits: 3, Facets: []Facet{{Field: "/cat/cat2", Value: 2}}}
	a.Merge(b)
	assert.Equal(t, uint64(5), a.Hits)
	require.Len(t, a.Facets, 2)
	assert.Equal(t, Facet{Field: "/cat/cat1", Value: 1}, a.Facets[0])
	assert.Equal(t, Facet{Field: "/cat/cat2", Value: 3}, a.Facets[1])
}

func TestRankOrdersByScoreThenShardThenID(t *testing.T) {
	merged := ranked(0,
		results(2, doc(0.5, 1, "x"), doc(0.9, 1, "y")),
		results(2, doc(0.5, 0, "z"), doc(0.5, 0, "a")),
	)
	ids := make([]string, 0, len(merged.Docs))
	for _, d := range merged.Docs {
		ids = append(ids, d.ID)
	}
	assert.Equal(t, []string{"y", "a", "z", "x"}, ids)
}

func TestRankTruncatesToLimitButKeepsHitTotal(t *testing.T) {
	merged := ranked(2,
		results(2, doc(0.5, 0, "a"), doc(0.9, 0, "b")),
		results(2, doc(0.7, 1, "c"), doc(0.1, 1, "d")),
	)
	assert.Equal(t, uint64(4), merged.Hits)
	require.Len(t, merged.Docs, 2)
	assert.Equal(t, "b", merged.Docs[0].ID)
	assert.Equal(t, "c", merged.Docs[1].ID)
}

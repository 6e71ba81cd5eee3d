// Package query holds the wire model for search requests and results: the
// tagged query tree accepted from clients and peers, and the mergeable
// SearchResults both halves of a federated search produce. The package knows
// nothing about the engine; translation to engine queries lives with the
// index handles.
package query

import (
	"bytes"
	"encoding/json"

	"github.com/Jason-Cooke/Toshi/internal/errs"
)

// DefaultLimit caps the hit list when the request does not supply one.
const DefaultLimit = 100

// Query is a tagged sum: exactly one variant must be set. Unknown shapes are
// rejected at decode time.
type Query struct {
	Term   map[string]string     `json:"term,omitempty"`
	Phrase map[string]TermPair   `json:"phrase,omitempty"`
	Fuzzy  map[string]FuzzyTerm  `json:"fuzzy,omitempty"`
	Range  map[string]RangeSpec  `json:"range,omitempty"`
	Regex  map[string]string     `json:"regex,omitempty"`
	Bool   *BoolQuery            `json:"bool,omitempty"`
	Raw    string                `json:"raw,omitempty"`
}

// TermPair is a phrase: an ordered list of terms with optional positions.
type TermPair struct {
	Terms   []string `json:"terms"`
	Offsets []int    `json:"offsets,omitempty"`
}

// FuzzyTerm matches value within an edit distance.
type FuzzyTerm struct {
	Value         string `json:"value"`
	Distance      int    `json:"distance,omitempty"`
	Transposition bool   `json:"transposition,omitempty"`
}

// RangeSpec bounds a numeric field. gte/lte are inclusive, gt/lt exclusive;
// a nil bound is open.
type RangeSpec struct {
	Gte *float64 `json:"gte,omitempty"`
	Lte *float64 `json:"lte,omitempty"`
	Gt  *float64 `json:"gt,omitempty"`
	Lt  *float64 `json:"lt,omitempty"`
}

// BoolQuery combines sub-queries. Docs must match every must clause, no
// must_not clause, and score against should clauses.
type BoolQuery struct {
	Must    []Query `json:"must,omitempty"`
	MustNot []Query `json:"must_not,omitempty"`
	Should  []Query `json:"should,omitempty"`
}

// variantCount reports how many variants are populated.
func (q *Query) variantCount() int {
	n := 0
	if len(q.Term) > 0 {
		n++
	}
	if len(q.Phrase) > 0 {
		n++
	}
	if len(q.Fuzzy) > 0 {
		n++
	}
	if len(q.Range) > 0 {
		n++
	}
	if len(q.Regex) > 0 {
		n++
	}
	if q.Bool != nil {
		n++
	}
	if q.Raw != "" {
		n++
	}
	return n
}

// Validate enforces the tagged-sum invariant, recursively for bool clauses.
func (q *Query) Validate() error {
	if q.variantCount() != 1 {
		return errs.New(errs.QueryParse, "query must contain exactly one variant")
	}
	if q.Bool != nil {
		for _, clauses := range [][]Query{q.Bool.Must, q.Bool.MustNot, q.Bool.Should} {
			for i := range clauses {
				if err := clauses[i].Validate(); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// Search is one search request: an optional query tree (absent means all
// documents), optional facet requests keyed by field with path prefixes,
// a hit limit, and an optional sort field.
type Search struct {
	Query  *Query              `json:"query,omitempty"`
	Facets map[string][]string `json:"facets,omitempty"`
	Limit  int                 `json:"limit,omitempty"`
	SortBy string              `json:"sort_by,omitempty"`
}

// AllDocs is the request substituted when the query tree is absent.
func AllDocs() Search {
	return Search{Limit: DefaultLimit}
}

// Normalize fills the default limit and validates the query tree. The
// returned value is what every fan-out participant receives.
func (s Search) Normalize() (Search, error) {
	if s.Limit <= 0 {
		s.Limit = DefaultLimit
	}
	if s.Query != nil {
		if err := s.Query.Validate(); err != nil {
			return Search{}, err
		}
	}
	return s, nil
}

// DecodeSearch parses a request body. Unknown fields anywhere in the tree
// are a QueryParse failure; an empty body is the all-docs request.
func DecodeSearch(body []byte) (Search, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return AllDocs(), nil
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	var s Search
	if err := dec.Decode(&s); err != nil {
		return Search{}, errs.Wrap(errs.QueryParse, err, "invalid search request")
	}
	return s.Normalize()
}

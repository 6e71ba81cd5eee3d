package index

import (
	bquery "github.com/blevesearch/bleve/v2/search/query"

	"github.com/Jason-Cooke/Toshi/internal/errs"
	"github.com/Jason-Cooke/Toshi/internal/query"
)

// toEngineQuery lowers the wire query tree onto the engine's query types.
// A nil tree is the all-documents query.
func toEngineQuery(q *query.Query) (bquery.Query, error) {
	if q == nil {
		return bquery.NewMatchAllQuery(), nil
	}
	switch {
	case len(q.Term) > 0:
		field, value, err := singleString(q.Term)
		if err != nil {
			return nil, err
		}
		tq := bquery.NewTermQuery(value)
		tq.SetField(field)
		return tq, nil
	case len(q.Phrase) > 0:
		if len(q.Phrase) != 1 {
			return nil, errs.New(errs.QueryParse, "phrase query expects a single field")
		}
		for field, pair := range q.Phrase {
			if len(pair.Terms) == 0 {
				return nil, errs.New(errs.QueryParse, "phrase query with no terms")
			}
			return bquery.NewPhraseQuery(pair.Terms, field), nil
		}
	case len(q.Fuzzy) > 0:
		if len(q.Fuzzy) != 1 {
			return nil, errs.New(errs.QueryParse, "fuzzy query expects a single field")
		}
		for field, fz := range q.Fuzzy {
			fq := bquery.NewFuzzyQuery(fz.Value)
			fq.SetField(field)
			fq.SetFuzziness(fz.Distance)
			return fq, nil
		}
	case len(q.Range) > 0:
		if len(q.Range) != 1 {
			return nil, errs.New(errs.QueryParse, "range query expects a single field")
		}
		for field, spec := range q.Range {
			return rangeQuery(field, spec)
		}
	case len(q.Regex) > 0:
		field, pattern, err := singleString(q.Regex)
		if err != nil {
			return nil, err
		}
		rq := bquery.NewRegexpQuery(pattern)
		rq.SetField(field)
		return rq, nil
	case q.Bool != nil:
		return boolQuery(q.Bool)
	case q.Raw != "":
		return bquery.NewQueryStringQuery(q.Raw), nil
	}
	return nil, errs.New(errs.QueryParse, "empty query")
}

func singleString(m map[string]string) (string, string, error) {
	if len(m) != 1 {
		return "", "", errs.New(errs.QueryParse, "query expects a single field")
	}
	for k, v := range m {
		return k, v, nil
	}
	panic("unreachable")
}

func rangeQuery(field string, spec query.RangeSpec) (bquery.Query, error) {
	if spec.Gte != nil && spec.Gt != nil {
		return nil, errs.New(errs.QueryParse, "range on %q sets both gte and gt", field)
	}
	if spec.Lte != nil && spec.Lt != nil {
		return nil, errs.New(errs.QueryParse, "range on %q sets both lte and lt", field)
	}
	var min, max *float64
	minInc, maxInc := true, true
	switch {
	case spec.Gte != nil:
		min = spec.Gte
	case spec.Gt != nil:
		min, minInc = spec.Gt, false
	}
	switch {
	case spec.Lte != nil:
		max = spec.Lte
	case spec.Lt != nil:
		max, maxInc = spec.Lt, false
	}
	if min == nil && max == nil {
		return nil, errs.New(errs.QueryParse, "range on %q has no bounds", field)
	}
	rq := bquery.NewNumericRangeInclusiveQuery(min, max, &minInc, &maxInc)
	rq.SetField(field)
	return rq, nil
}

func boolQuery(b *query.BoolQuery) (bquery.Query, error) {
	lower := func(clauses []query.Query) ([]bquery.Query, error) {
		if len(clauses) == 0 {
			return nil, nil
		}
		out := make([]bquery.Query, 0, len(clauses))
		for i := range clauses {
			sub, err := toEngineQuery(&clauses[i])
			if err != nil {
				return nil, err
			}
			out = append(out, sub)
		}
		return out, nil
	}
	must, err := lower(b.Must)
	if err != nil {
		return nil, err
	}
	mustNot, err := lower(b.MustNot)
	if err != nil {
		return nil, err
	}
	should, err := lower(b.Should)
	if err != nil {
		return nil, err
	}
	if must == nil && should == nil && mustNot == nil {
		return nil, errs.New(errs.QueryParse, "bool query with no clauses")
	}
	return bquery.NewBooleanQuery(must, should, mustNot), nil
}

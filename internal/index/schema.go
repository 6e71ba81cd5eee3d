package index

import (
	"encoding/json"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/Jason-Cooke/Toshi/internal/errs"
)

// FieldDef declares one schema field. Type is one of text, keyword, facet,
// i64, u64, f64, or date. Facet fields hold slash-separated paths and are
// indexed verbatim so facet counting can group on them.
type FieldDef struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Stored  bool   `json:"stored"`
	Indexed bool   `json:"indexed"`
}

// Schema is the descriptor supplied at index creation. The catalog treats it
// as a blob; only this package interprets it.
type Schema []FieldDef

// ParseSchema decodes and validates a schema blob.
func ParseSchema(raw []byte) (Schema, error) {
	var s Schema
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, errs.Wrap(errs.QueryParse, err, "invalid schema in request")
	}
	if len(s) == 0 {
		return nil, errs.New(errs.QueryParse, "schema declares no fields")
	}
	for _, f := range s {
		if f.Name == "" {
			return nil, errs.New(errs.QueryParse, "schema field with empty name")
		}
		switch f.Type {
		case "text", "keyword", "facet", "i64", "u64", "f64", "date":
		default:
			return nil, errs.New(errs.QueryParse, "schema field %q has unknown type %q", f.Name, f.Type)
		}
	}
	return s, nil
}

// Mapping translates the schema into the engine's index mapping.
func (s Schema) Mapping() mapping.IndexMapping {
	doc := bleve.NewDocumentMapping()
	for _, f := range s {
		var fm *mapping.FieldMapping
		switch f.Type {
		case "text":
			fm = bleve.NewTextFieldMapping()
		case "keyword", "facet":
			fm = bleve.NewTextFieldMapping()
			fm.Analyzer = keyword.Name
		case "i64", "u64", "f64":
			fm = bleve.NewNumericFieldMapping()
		case "date":
			fm = bleve.NewDateTimeFieldMapping()
		}
		fm.Store = f.Stored
		fm.Index = f.Indexed
		doc.AddFieldMappingsAt(f.Name, fm)
	}
	m := bleve.NewIndexMapping()
	m.DefaultMapping = doc
	return m
}

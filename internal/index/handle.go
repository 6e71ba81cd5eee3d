// Package index wraps one on-disk inverted index behind a Handle: concurrent
// searches against the engine's current reader, and a single serialized
// writer whose staged mutations become visible on commit.
package index

import (
	"context"
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Jason-Cooke/Toshi/internal/errs"
	"github.com/Jason-Cooke/Toshi/internal/query"
)

// facetSize caps the number of buckets fetched per facet field.
const facetSize = 100

// metaFile is the engine's on-disk manifest inside the index directory.
const metaFile = "index_meta.json"

// WriteOptions modify a mutation; Commit seals the pending batch immediately
// after the mutation is staged.
type WriteOptions struct {
	Commit bool `json:"commit"`
}

// AddDocument is one document to ingest.
type AddDocument struct {
	Options  *WriteOptions          `json:"options,omitempty"`
	Document map[string]interface{} `json:"document"`
}

// DeleteDoc names documents by exact field terms.
type DeleteDoc struct {
	Options *WriteOptions     `json:"options,omitempty"`
	Terms   map[string]string `json:"terms"`
}

// SegmentFile is one file of the on-disk index with its size.
type SegmentFile struct {
	File  string `json:"file"`
	Bytes int64  `json:"bytes"`
}

// SpaceUsage summarizes the on-disk footprint of one index.
type SpaceUsage struct {
	Total int64         `json:"total"`
	Files []SegmentFile `json:"files"`
}

// Handle is the exclusive owner of one local index. Searches may run
// unbounded and concurrently; add, delete, and commit serialize through the
// writer mutex. Staged mutations are invisible to readers until Commit.
type Handle struct {
	name string
	path string
	idx  bleve.Index
	log  *zap.Logger

	// writerMu is the single writer: whoever holds it owns the batch.
	writerMu sync.Mutex
	batch    *bleve.Batch

	spaceMu sync.RWMutex
	space   SpaceUsage
}

// Create materializes a new index at basePath/name from a schema blob.
func Create(basePath, name string, rawSchema []byte, log *zap.Logger) (*Handle, error) {
	schema, err := ParseSchema(rawSchema)
	if err != nil {
		return nil, err
	}
	path := filepath.Join(basePath, name)
	idx, err := bleve.New(path, schema.Mapping())
	if err == bleve.ErrorIndexPathExists {
		return nil, errs.Wrap(errs.Exists, err, "index %q already exists on disk", name)
	}
	if err != nil {
		return nil, errs.Wrap(errs.Engine, err, "could not create index: %s", name)
	}
	return newHandle(name, path, idx, log), nil
}

// Open reopens an existing index directory.
func Open(basePath, name string, log *zap.Logger) (*Handle, error) {
	path := filepath.Join(basePath, name)
	idx, err := bleve.Open(path)
	if err != nil {
		return nil, errs.Wrap(errs.Engine, err, "could not open index: %s", name)
	}
	return newHandle(name, path, idx, log), nil
}

func newHandle(name, path string, idx bleve.Index, log *zap.Logger) *Handle {
	h := &Handle{
		name:  name,
		path:  path,
		idx:   idx,
		batch: idx.NewBatch(),
		log:   log.With(zap.String("index", name)),
	}
	h.refreshSpace()
	return h
}

// Name returns the index name.
func (h *Handle) Name() string { return h.name }

// Path returns the exclusive on-disk directory of this index.
func (h *Handle) Path() string { return h.path }

// Search executes one query against the current reader snapshot. The hit
// order is score-descending with deterministic ties; facet requests are
// answered from the same snapshot.
func (h *Handle) Search(ctx context.Context, s query.Search) (*query.SearchResults, error) {
	eq, err := toEngineQuery(s.Query)
	if err != nil {
		return nil, err
	}
	req := bleve.NewSearchRequestOptions(eq, s.Limit, 0, false)
	req.Fields = []string{"*"}
	if s.SortBy != "" {
		req.SortBy([]string{s.SortBy})
	}
	for field := range s.Facets {
		req.AddFacet(field, bleve.NewFacetRequest(field, facetSize))
	}
	res, err := h.idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, errs.Wrap(errs.Engine, err, "search failed on %s", h.name)
	}
	out := &query.SearchResults{Hits: res.Total}
	for _, hit := range res.Hits {
		score := hit.Score
		out.Docs = append(out.Docs, query.ScoredDoc{
			Score: &score,
			Doc:   hit.Fields,
			ID:    hit.ID,
		})
	}
	out.Facets = collectFacets(res, s.Facets)
	return out, nil
}

// collectFacets flattens the engine's facet buckets into (value, count)
// pairs, keeping only buckets under one of the requested path prefixes.
func collectFacets(res *bleve.SearchResult, requested map[string][]string) []query.Facet {
	var out []query.Facet
	for field, prefixes := range requested {
		fr, ok := res.Facets[field]
		if !ok || fr.Terms == nil {
			continue
		}
		for _, term := range fr.Terms.Terms() {
			for _, prefix := range prefixes {
				if strings.HasPrefix(term.Term, prefix) {
					out = append(out, query.Facet{Field: term.Term, Value: uint64(term.Count)})
					break
				}
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Field < out[j].Field })
	return out
}

// AddDocument stages one document into the writer's uncommitted set. The
// document id is assigned here; the engine never sees client ids.
func (h *Handle) AddDocument(doc AddDocument) error {
	if len(doc.Document) == 0 {
		return errs.New(errs.QueryParse, "document is empty")
	}
	h.writerMu.Lock()
	defer h.writerMu.Unlock()
	if err := h.batch.Index(uuid.NewString(), doc.Document); err != nil {
		return errs.Wrap(errs.Engine, err, "could not stage document for %s", h.name)
	}
	if doc.Options != nil && doc.Options.Commit {
		return h.commitLocked()
	}
	return nil
}

// DeleteByTerms stages deletions for every document matching all given
// terms. Resolution runs against the current reader, so documents still in
// the uncommitted set cannot be deleted.
func (h *Handle) DeleteByTerms(ctx context.Context, del DeleteDoc) error {
	if len(del.Terms) == 0 {
		return errs.New(errs.QueryParse, "delete request names no terms")
	}
	ids, err := h.matchingIDs(ctx, del.Terms)
	if err != nil {
		return err
	}
	h.writerMu.Lock()
	defer h.writerMu.Unlock()
	for _, id := range ids {
		h.batch.Delete(id)
	}
	if del.Options != nil && del.Options.Commit {
		return h.commitLocked()
	}
	return nil
}

func (h *Handle) matchingIDs(ctx context.Context, terms map[string]string) ([]string, error) {
	must := make([]query.Query, 0, len(terms))
	for field, value := range terms {
		must = append(must, query.Query{Term: map[string]string{field: value}})
	}
	eq, err := toEngineQuery(&query.Query{Bool: &query.BoolQuery{Must: must}})
	if err != nil {
		return nil, err
	}
	count, err := h.idx.SearchInContext(ctx, bleve.NewSearchRequestOptions(eq, 0, 0, false))
	if err != nil {
		return nil, errs.Wrap(errs.Engine, err, "delete lookup failed on %s", h.name)
	}
	if count.Total == 0 {
		return nil, nil
	}
	res, err := h.idx.SearchInContext(ctx, bleve.NewSearchRequestOptions(eq, int(count.Total), 0, false))
	if err != nil {
		return nil, errs.Wrap(errs.Engine, err, "delete lookup failed on %s", h.name)
	}
	ids := make([]string, 0, len(res.Hits))
	for _, hit := range res.Hits {
		ids = append(ids, hit.ID)
	}
	return ids, nil
}

// Commit seals the pending mutations, publishes a new reader snapshot, and
// refreshes the cached space usage. A commit in progress always runs to
// completion; cancellation of the surrounding request does not split it.
func (h *Handle) Commit() error {
	h.writerMu.Lock()
	defer h.writerMu.Unlock()
	return h.commitLocked()
}

func (h *Handle) commitLocked() error {
	if h.batch.Size() > 0 {
		if err := h.idx.Batch(h.batch); err != nil {
			return errs.Wrap(errs.Engine, err, "commit failed on %s", h.name)
		}
		h.batch.Reset()
	}
	h.refreshSpace()
	return nil
}

// LoadMeta reads the engine's on-disk manifest verbatim.
func (h *Handle) LoadMeta() (json.RawMessage, error) {
	raw, err := os.ReadFile(filepath.Join(h.path, metaFile))
	if err != nil {
		return nil, errs.Wrap(errs.DataLoss, err, "could not load metas for: %s", h.name)
	}
	if !json.Valid(raw) {
		return nil, errs.New(errs.DataLoss, "could not load metas for: %s", h.name)
	}
	return raw, nil
}

// DocCount reports the number of committed documents.
func (h *Handle) DocCount() (uint64, error) {
	n, err := h.idx.DocCount()
	if err != nil {
		return 0, errs.Wrap(errs.Engine, err, "doc count failed on %s", h.name)
	}
	return n, nil
}

// Space returns the cached segment-size summary.
func (h *Handle) Space() SpaceUsage {
	h.spaceMu.RLock()
	defer h.spaceMu.RUnlock()
	return h.space
}

func (h *Handle) refreshSpace() {
	var usage SpaceUsage
	err := filepath.WalkDir(h.path, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(h.path, p)
		if err != nil {
			return err
		}
		usage.Files = append(usage.Files, SegmentFile{File: rel, Bytes: info.Size()})
		usage.Total += info.Size()
		return nil
	})
	if err != nil {
		h.log.Warn("space usage scan failed", zap.Error(err))
		return
	}
	sort.Slice(usage.Files, func(i, j int) bool { return usage.Files[i].File < usage.Files[j].File })
	h.spaceMu.Lock()
	h.space = usage
	h.spaceMu.Unlock()
}

// Close releases the engine resources. The handle must not be used after.
func (h *Handle) Close() error {
	return h.idx.Close()
}

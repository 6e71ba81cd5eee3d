package api

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jason-Cooke/Toshi/internal/cluster"
	"github.com/Jason-Cooke/Toshi/internal/query"
)

func TestRPCPing(t *testing.T) {
	n := newTestNode(t)
	w := perform(n.rpc, http.MethodGet, "/internal/ping", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"OK"}`, w.Body.String())
}

func TestRPCListIndexes(t *testing.T) {
	n := newTestNode(t)
	n.seedBooks(t)
	w := perform(n.rpc, http.MethodGet, "/internal/indexes", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"indexes":["books"]}`, w.Body.String())
}

func TestRPCSearchIndex(t *testing.T) {
	n := newTestNode(t)
	n.seedBooks(t)
	w := perform(n.rpc, http.MethodPost, "/internal/search/books",
		`{"query":{"term":{"test_text":"document"}},"limit":10}`)
	require.Equal(t, http.StatusOK, w.Code)

	var reply cluster.SearchReply
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &reply))
	assert.Equal(t, cluster.CodeOK, reply.Result.Code)

	var res query.SearchResults
	require.NoError(t, json.Unmarshal(reply.Doc, &res))
	assert.Equal(t, uint64(3), res.Hits)
}

func TestRPCSearchUnknownIndex(t *testing.T) {
	n := newTestNode(t)
	w := perform(n.rpc, http.MethodPost, "/internal/search/books2", `{}`)
	require.Equal(t, http.StatusNotFound, w.Code)

	var body cluster.ErrorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "Index: books2 not found", body.Message)
	assert.Equal(t, "not_found", body.Kind)
}

func TestRPCPlaceIndex(t *testing.T) {
	n := newTestNode(t)
	w := perform(n.rpc, http.MethodPut, "/internal/place/notes", `{"schema":`+testSchema+`}`)
	require.Equal(t, http.StatusOK, w.Code)
	var reply cluster.ResultReply
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &reply))
	assert.Equal(t, cluster.CodeOK, reply.Code)

	// The placed index is immediately part of the local listing.
	_, err := n.catalog.GetLocal("notes")
	assert.NoError(t, err)

	// A second placement collides.
	w = perform(n.rpc, http.MethodPut, "/internal/place/notes", `{"schema":`+testSchema+`}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRPCPlaceDocumentAndSearch(t *testing.T) {
	n := newTestNode(t)
	n.seedBooks(t)
	w := perform(n.rpc, http.MethodPost, "/internal/document/books",
		`{"document":{"test_text":"Test Document 5","test_i64":2021}}`)
	require.Equal(t, http.StatusOK, w.Code)
	var reply cluster.ResultReply
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &reply))
	assert.Equal(t, cluster.CodeOK, reply.Code)

	h, err := n.catalog.GetLocal("books")
	require.NoError(t, err)
	require.NoError(t, h.Commit())

	w = perform(n.rpc, http.MethodPost, "/internal/search/books",
		`{"query":{"term":{"test_text":"document"}},"limit":10}`)
	var search cluster.SearchReply
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &search))
	var res query.SearchResults
	require.NoError(t, json.Unmarshal(search.Doc, &res))
	assert.Equal(t, uint64(4), res.Hits)
}

func TestRPCPlaceDocumentUnknownIndex(t *testing.T) {
	n := newTestNode(t)
	w := perform(n.rpc, http.MethodPost, "/internal/document/books2", `{"document":{"a":1}}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRPCDeleteDocument(t *testing.T) {
	n := newTestNode(t)
	n.seedBooks(t)
	w := perform(n.rpc, http.MethodDelete, "/internal/document/books",
		`{"terms":{"test_text":"duckiment"},"options":{"commit":true}}`)
	require.Equal(t, http.StatusOK, w.Code)
	var reply cluster.ResultReply
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &reply))
	assert.Equal(t, cluster.CodeOK, reply.Code)

	h, err := n.catalog.GetLocal("books")
	require.NoError(t, err)
	count, err := h.DocCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(3), count)
}

func TestRPCGetSummary(t *testing.T) {
	n := newTestNode(t)
	n.seedBooks(t)
	w := perform(n.rpc, http.MethodGet, "/internal/summary/books", "")
	require.Equal(t, http.StatusOK, w.Code)
	var reply cluster.SummaryReply
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &reply))
	assert.True(t, json.Valid(reply.Summary))
}

func TestRPCBulkInsertUnimplemented(t *testing.T) {
	n := newTestNode(t)
	n.seedBooks(t)
	w := perform(n.rpc, http.MethodPost, "/internal/bulk/books", `{}`)
	require.Equal(t, http.StatusNotImplemented, w.Code)
	var body cluster.ErrorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "unimplemented", body.Kind)
}

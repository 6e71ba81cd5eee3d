package cluster

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Jason-Cooke/Toshi/internal/errs"
	"github.com/Jason-Cooke/Toshi/internal/query"
)

func newTestPeer(t *testing.T, handler http.Handler) (*Peer, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewPeer(srv.URL, time.Second, zaptest.NewLogger(t)), srv
}

func writeJSON(t *testing.T, w http.ResponseWriter, status int, v interface{}) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func TestListIndexes(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /internal/indexes", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, ListReply{Indexes: []string{"books", "logs"}})
	})
	peer, _ := newTestPeer(t, mux)

	indexes, err := peer.ListIndexes(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"books", "logs"}, indexes)
}

func TestSearchIndexDecodesResults(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /internal/search/books", func(w http.ResponseWriter, r *http.Request) {
		var s query.Search
		require.NoError(t, json.NewDecoder(r.Body).Decode(&s))
		assert.Equal(t, 10, s.Limit)

		doc, err := json.Marshal(query.SearchResults{Hits: 3})
		require.NoError(t, err)
		writeJSON(t, w, http.StatusOK, SearchReply{Result: OK(), Doc: doc})
	})
	peer, _ := newTestPeer(t, mux)

	res, err := peer.SearchIndex(context.Background(), "books", query.Search{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, uint64(3), res.Hits)
}

func TestSearchIndexEngineCode(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /internal/search/books", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, SearchReply{
			Result: ResultReply{Code: CodeEngine, Message: "query failed"},
		})
	})
	peer, _ := newTestPeer(t, mux)

	_, err := peer.SearchIndex(context.Background(), "books", query.Search{})
	require.Error(t, err)
	assert.Equal(t, errs.Engine, errs.KindOf(err))
	assert.Equal(t, "query failed", err.Error())
}

func TestStatusMapsToKind(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   ErrorBody
		want   errs.Kind
	}{
		{"kinded not found", http.StatusNotFound, ErrorBody{Message: "Index: books not found", Kind: "not_found"}, errs.NotFound},
		{"kinded data loss", http.StatusInternalServerError, ErrorBody{Message: "manifest gone", Kind: "data_loss"}, errs.DataLoss},
		{"bare not found", http.StatusNotFound, ErrorBody{Message: "missing"}, errs.NotFound},
		{"bare unimplemented", http.StatusNotImplemented, ErrorBody{Message: "nope"}, errs.Unimplemented},
		{"bare bad request", http.StatusBadRequest, ErrorBody{Message: "bad"}, errs.QueryParse},
		{"bare internal", http.StatusInternalServerError, ErrorBody{Message: "boom"}, errs.Engine},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mux := http.NewServeMux()
			mux.HandleFunc("GET /internal/summary/books", func(w http.ResponseWriter, r *http.Request) {
				writeJSON(t, w, tc.status, tc.body)
			})
			peer, _ := newTestPeer(t, mux)

			_, err := peer.GetSummary(context.Background(), "books")
			require.Error(t, err)
			assert.Equal(t, tc.want, errs.KindOf(err))
			assert.Equal(t, tc.body.Message, err.Error())
		})
	}
}

func TestTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NewServeMux())
	url := srv.URL
	srv.Close()
	peer := NewPeer(url, time.Second, zaptest.NewLogger(t))

	err := peer.Ping(context.Background())
	require.Error(t, err)
	assert.Equal(t, errs.Transport, errs.KindOf(err))
}

func TestPing(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /internal/ping", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, PingReply{Status: "OK"})
	})
	peer, _ := newTestPeer(t, mux)
	assert.NoError(t, peer.Ping(context.Background()))
}

func TestPlaceDocumentEngineCode(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /internal/document/books", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, ResultReply{Code: CodeEngine, Message: "Add Document Failed: books"})
	})
	peer, _ := newTestPeer(t, mux)

	err := peer.PlaceDocument(context.Background(), "books", json.RawMessage(`{"document":{}}`))
	require.Error(t, err)
	assert.Equal(t, errs.Engine, errs.KindOf(err))
	assert.Equal(t, "Add Document Failed: books", err.Error())
}

func TestDeadlinePropagates(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /internal/ping", func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})
	peer, _ := newTestPeer(t, mux)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := peer.Ping(ctx)
	require.Error(t, err)
	assert.Equal(t, errs.Transport, errs.KindOf(err))
}

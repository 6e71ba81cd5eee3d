package cluster

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Jason-Cooke/Toshi/internal/errs"
	"github.com/Jason-Cooke/Toshi/internal/query"
)

// DefaultTimeout is the connection-level deadline applied to every peer
// call that does not carry a tighter context deadline.
const DefaultTimeout = 10 * time.Second

// Peer is the client end of one long-lived channel to a remote node. The
// underlying transport re-dials transparently between calls; a failure
// inside one call surfaces as a Transport error for that call.
type Peer struct {
	base string
	http *http.Client
	log  *zap.Logger
}

// NewPeer returns a client for the node at uri (scheme://host:port).
func NewPeer(uri string, timeout time.Duration, log *zap.Logger) *Peer {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	base := strings.TrimRight(uri, "/")
	return &Peer{
		base: base,
		http: &http.Client{Timeout: timeout},
		log:  log.With(zap.String("peer", base)),
	}
}

// URI returns the peer's base address. It doubles as the peer id in logs
// and merge tie-breaks.
func (p *Peer) URI() string { return p.base }

// ListIndexes asks the peer which indexes it hosts locally.
func (p *Peer) ListIndexes(ctx context.Context) ([]string, error) {
	var reply ListReply
	if err := p.do(ctx, http.MethodGet, "/internal/indexes", nil, &reply); err != nil {
		return nil, err
	}
	return reply.Indexes, nil
}

// SearchIndex executes one search against the named index on the peer.
func (p *Peer) SearchIndex(ctx context.Context, name string, s query.Search) (*query.SearchResults, error) {
	var reply SearchReply
	if err := p.do(ctx, http.MethodPost, "/internal/search/"+name, s, &reply); err != nil {
		return nil, err
	}
	if reply.Result.Code != CodeOK {
		return nil, errs.New(errs.Engine, "%s", reply.Result.Message)
	}
	var results query.SearchResults
	if err := json.Unmarshal(reply.Doc, &results); err != nil {
		return nil, errs.Wrap(errs.Transport, err, "undecodable search reply from %s", p.base)
	}
	return &results, nil
}

// PlaceIndex creates an index on the peer from a schema blob.
func (p *Peer) PlaceIndex(ctx context.Context, name string, schema json.RawMessage) error {
	var reply ResultReply
	if err := p.do(ctx, http.MethodPut, "/internal/place/"+name, PlaceRequest{Schema: schema}, &reply); err != nil {
		return err
	}
	return replyErr(reply)
}

// PlaceDocument adds one document to the named index on the peer.
func (p *Peer) PlaceDocument(ctx context.Context, name string, document json.RawMessage) error {
	var reply ResultReply
	if err := p.do(ctx, http.MethodPost, "/internal/document/"+name, document, &reply); err != nil {
		return err
	}
	return replyErr(reply)
}

// DeleteDocument deletes documents by term from the named index on the peer.
func (p *Peer) DeleteDocument(ctx context.Context, name string, terms json.RawMessage) error {
	var reply ResultReply
	if err := p.do(ctx, http.MethodDelete, "/internal/document/"+name, terms, &reply); err != nil {
		return err
	}
	return replyErr(reply)
}

// GetSummary fetches the named index's manifest from the peer.
func (p *Peer) GetSummary(ctx context.Context, name string) (json.RawMessage, error) {
	var reply SummaryReply
	if err := p.do(ctx, http.MethodGet, "/internal/summary/"+name, nil, &reply); err != nil {
		return nil, err
	}
	return reply.Summary, nil
}

// Ping probes the peer for liveness.
func (p *Peer) Ping(ctx context.Context) error {
	var reply PingReply
	if err := p.do(ctx, http.MethodGet, "/internal/ping", nil, &reply); err != nil {
		return err
	}
	if reply.Status != "OK" {
		return errs.New(errs.Transport, "peer %s reported status %q", p.base, reply.Status)
	}
	return nil
}

func replyErr(reply ResultReply) error {
	if reply.Code == CodeOK {
		return nil
	}
	return errs.New(errs.Engine, "%s", reply.Message)
}

// do performs one request/response exchange. Transport-level failures map to
// the Transport kind; a semantic status from the peer maps back onto the
// kind it carried.
func (p *Peer) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return errs.Wrap(errs.Transport, err, "could not encode request for %s", p.base)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, p.base+path, reader)
	if err != nil {
		return errs.Wrap(errs.Transport, err, "bad peer request for %s", p.base)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.http.Do(req)
	if err != nil {
		return errs.Wrap(errs.Transport, err, "%s %s on %s failed", method, path, p.base)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return p.statusErr(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errs.Wrap(errs.Transport, err, "undecodable reply from %s", p.base)
	}
	return nil
}

func (p *Peer) statusErr(resp *http.Response) error {
	raw, _ := io.ReadAll(resp.Body)
	var body ErrorBody
	_ = json.Unmarshal(raw, &body)
	msg := body.Message
	if msg == "" {
		msg = fmt.Sprintf("peer %s returned HTTP %d", p.base, resp.StatusCode)
	}
	if body.Kind != "" {
		return errs.New(errs.ParseKind(body.Kind), "%s", msg)
	}
	switch resp.StatusCode {
	case http.StatusNotFound:
		return errs.New(errs.NotFound, "%s", msg)
	case http.StatusNotImplemented:
		return errs.New(errs.Unimplemented, "%s", msg)
	case http.StatusBadRequest:
		return errs.New(errs.QueryParse, "%s", msg)
	default:
		return errs.New(errs.Engine, "%s", msg)
	}
}

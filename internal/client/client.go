// Package client is a typed Go SDK for the public HTTP surface of one node.
// It wraps request building, JSON codecs, and error handling so callers and
// the CLI never touch net/http directly.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Jason-Cooke/Toshi/internal/cluster"
	"github.com/Jason-Cooke/Toshi/internal/index"
	"github.com/Jason-Cooke/Toshi/internal/query"
)

// Client talks to a single node. That node coordinates the federated parts;
// the client never implements distributed logic itself.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a Client for baseURL (e.g. "http://localhost:8080").
func New(baseURL string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// List returns the index names hosted by the node.
func (c *Client) List(ctx context.Context) ([]string, error) {
	var reply cluster.ListReply
	if err := c.do(ctx, http.MethodGet, "/", nil, &reply); err != nil {
		return nil, err
	}
	return reply.Indexes, nil
}

// Search runs a federated search against the named index.
func (c *Client) Search(ctx context.Context, name string, s query.Search) (*query.SearchResults, error) {
	var results query.SearchResults
	if err := c.do(ctx, http.MethodPost, "/"+name, s, &results); err != nil {
		return nil, err
	}
	return &results, nil
}

// CreateIndex creates a new index from a schema blob.
func (c *Client) CreateIndex(ctx context.Context, name string, schema json.RawMessage) error {
	return c.do(ctx, http.MethodPut, "/"+name, cluster.PlaceRequest{Schema: schema}, nil)
}

// AddDocument stages one document; it becomes searchable after Flush unless
// the request itself asks for a commit.
func (c *Client) AddDocument(ctx context.Context, name string, doc index.AddDocument) error {
	return c.do(ctx, http.MethodPost, "/"+name+"/_add", doc, nil)
}

// DeleteTerms stages deletion of all documents matching the given terms.
func (c *Client) DeleteTerms(ctx context.Context, name string, del index.DeleteDoc) error {
	return c.do(ctx, http.MethodDelete, "/"+name, del, nil)
}

// Summary fetches the index manifest, optionally with segment sizes.
func (c *Client) Summary(ctx context.Context, name string, includeSizes bool) (json.RawMessage, error) {
	path := "/" + name + "/_summary"
	if includeSizes {
		path += "?include_sizes=true"
	}
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, path, nil, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// Flush commits pending mutations and publishes a new reader snapshot.
func (c *Client) Flush(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodPost, "/"+name+"/_flush", nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// APIError carries the HTTP status and the error message from the node.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Status, e.Message)
}

// checkStatus converts non-2xx responses into APIErrors, preferring the
// node's {"message": ...} body over the raw payload.
func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(resp.Body)
	var apiErr struct {
		Message string `json:"message"`
	}
	_ = json.Unmarshal(body, &apiErr)
	msg := apiErr.Message
	if msg == "" {
		msg = string(body)
	}
	return &APIError{Status: resp.StatusCode, Message: msg}
}

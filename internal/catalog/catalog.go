// Package catalog is the in-process registry of indexes: the local handles
// this node owns and the remote peers known to host each name. One
// readers-writer lock guards membership; lookups hand out handles and peer
// slices so a request never re-consults the catalog during its fan-out.
package catalog

import (
	"context"
	"os"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/Jason-Cooke/Toshi/internal/cluster"
	"github.com/Jason-Cooke/Toshi/internal/errs"
	"github.com/Jason-Cooke/Toshi/internal/index"
)

// Catalog maps index names to local handles and to the peers hosting them
// remotely. The two maps may overlap. Reads proceed in parallel; creation
// and remote-map updates are exclusive.
type Catalog struct {
	basePath string
	log      *zap.Logger

	mu     sync.RWMutex
	local  map[string]*index.Handle
	remote map[string][]*cluster.Peer
	peers  []*cluster.Peer
}

// New returns an empty catalog rooted at basePath. All local indexes live
// in directories directly under it.
func New(basePath string, log *zap.Logger) *Catalog {
	return &Catalog{
		basePath: basePath,
		log:      log,
		local:    make(map[string]*index.Handle),
		remote:   make(map[string][]*cluster.Peer),
	}
}

// BasePath returns the directory under which all local indexes live.
func (c *Catalog) BasePath() string { return c.basePath }

// LoadManaged discovers every index directory under the base path and
// reopens it. Unopenable directories are skipped and logged so one corrupt
// index does not keep the node down.
func (c *Catalog) LoadManaged() error {
	entries, err := os.ReadDir(c.basePath)
	if os.IsNotExist(err) {
		return os.MkdirAll(c.basePath, 0o755)
	}
	if err != nil {
		return errs.Wrap(errs.Engine, err, "could not read base path %s", c.basePath)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		h, err := index.Open(c.basePath, name, c.log)
		if err != nil {
			c.log.Error("skipping unopenable index", zap.String("index", name), zap.Error(err))
			continue
		}
		if err := c.AddIndex(name, h); err != nil {
			_ = h.Close()
			return err
		}
		c.log.Info("loaded index", zap.String("index", name))
	}
	return nil
}

// Exists reports whether name is known locally or at any peer.
func (c *Catalog) Exists(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if _, ok := c.local[name]; ok {
		return true
	}
	return len(c.remote[name]) > 0
}

// GetLocal returns the local handle for name.
func (c *Catalog) GetLocal(name string) (*index.Handle, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	h, ok := c.local[name]
	if !ok {
		return nil, errs.New(errs.NotFound, "Unknown Index: '%s' does not exist", name)
	}
	return h, nil
}

// RemotePeersFor returns the peers known to host name, possibly empty. The
// returned slice is a copy; membership changes never invalidate it.
func (c *Catalog) RemotePeersFor(name string) []*cluster.Peer {
	c.mu.RLock()
	defer c.mu.RUnlock()
	peers := c.remote[name]
	if len(peers) == 0 {
		return nil
	}
	out := make([]*cluster.Peer, len(peers))
	copy(out, peers)
	return out
}

// Resolve returns the local handle (nil when absent) and the peers hosting
// name, in one consistent membership read. Requests fan out against this
// snapshot and never come back to the catalog.
func (c *Catalog) Resolve(name string) (*index.Handle, []*cluster.Peer) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	h := c.local[name]
	peers := c.remote[name]
	if len(peers) == 0 {
		return h, nil
	}
	out := make([]*cluster.Peer, len(peers))
	copy(out, peers)
	return h, out
}

// AddIndex registers a handle under name.
func (c *Catalog) AddIndex(name string, h *index.Handle) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.local[name]; ok {
		return errs.New(errs.Exists, "index %q already exists", name)
	}
	c.local[name] = h
	return nil
}

// CreateFromManaged materializes a new on-disk index under the base path
// and registers it.
func (c *Catalog) CreateFromManaged(name string, schema []byte) (*index.Handle, error) {
	if name == "" {
		return nil, errs.New(errs.QueryParse, "index name is empty")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.local[name]; ok {
		return nil, errs.New(errs.Exists, "index %q already exists", name)
	}
	h, err := index.Create(c.basePath, name, schema, c.log)
	if err != nil {
		return nil, err
	}
	c.local[name] = h
	return h, nil
}

// DropLocal removes name from the catalog, closes its handle, and deletes
// its directory. The removal is synchronous: once DropLocal returns, no new
// request can obtain the handle.
func (c *Catalog) DropLocal(name string) error {
	c.mu.Lock()
	h, ok := c.local[name]
	if ok {
		delete(c.local, name)
	}
	c.mu.Unlock()
	if !ok {
		return errs.New(errs.NotFound, "Unknown Index: '%s' does not exist", name)
	}
	if err := h.Close(); err != nil {
		return errs.Wrap(errs.Engine, err, "could not close index %q", name)
	}
	return os.RemoveAll(h.Path())
}

// List returns the sorted local index names.
func (c *Catalog) List() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.local))
	for name := range c.local {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RegisterPeer records a configured peer. Peers are fixed at assembly time;
// which indexes they host is refreshed separately.
func (c *Catalog) RegisterPeer(p *cluster.Peer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.peers = append(c.peers, p)
}

// Peers returns all configured peers.
func (c *Catalog) Peers() []*cluster.Peer {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*cluster.Peer, len(c.peers))
	copy(out, c.peers)
	return out
}

// RefreshRemote rebuilds the remote membership map by asking every
// configured peer which indexes it hosts. Unreachable peers keep their
// previous entries; the cluster converges on the next refresh.
func (c *Catalog) RefreshRemote(ctx context.Context) {
	type listing struct {
		peer    *cluster.Peer
		indexes []string
	}
	peers := c.Peers()
	listings := make([]listing, 0, len(peers))
	stale := make(map[string]bool, len(peers))
	for _, p := range peers {
		indexes, err := p.ListIndexes(ctx)
		if err != nil {
			c.log.Warn("peer listing failed", zap.String("peer", p.URI()), zap.Error(err))
			stale[p.URI()] = true
			continue
		}
		listings = append(listings, listing{peer: p, indexes: indexes})
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	next := make(map[string][]*cluster.Peer)
	// Carry forward entries for peers we could not reach this round.
	for name, ps := range c.remote {
		for _, p := range ps {
			if stale[p.URI()] {
				next[name] = append(next[name], p)
			}
		}
	}
	for _, l := range listings {
		for _, name := range l.indexes {
			next[name] = append(next[name], l.peer)
		}
	}
	c.remote = next
}

// AddRemote records that peer hosts name. RefreshRemote rebuilds the remote
// map and keeps a manual entry only when its peer is a registered peer that
// could not be reached in that round.
func (c *Catalog) AddRemote(name string, p *cluster.Peer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.remote[name] = append(c.remote[name], p)
}

// Close closes every local handle.
func (c *Catalog) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var firstErr error
	for name, h := range c.local {
		if err := h.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(c.local, name)
	}
	return firstErr
}

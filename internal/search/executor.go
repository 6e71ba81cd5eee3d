// Package search is the federated query path: it resolves the participants
// for an index name from the catalog, fans one normalized query out to all
// of them in parallel, and folds the partial results into one response.
package search

import (
	"context"
	"sort"
	"sync"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/Jason-Cooke/Toshi/internal/catalog"
	"github.com/Jason-Cooke/Toshi/internal/cluster"
	"github.com/Jason-Cooke/Toshi/internal/errs"
	"github.com/Jason-Cooke/Toshi/internal/query"
)

// Participant is the common capability of a local handle and a remote peer:
// a name for logs and tie-breaks, and one search verb. The executor programs
// only against this.
type Participant interface {
	Name() string
	Search(ctx context.Context, s query.Search) (*query.SearchResults, error)
}

// remoteParticipant binds a peer channel to one index name.
type remoteParticipant struct {
	index string
	peer  *cluster.Peer
}

func (r remoteParticipant) Name() string { return r.peer.URI() }

func (r remoteParticipant) Search(ctx context.Context, s query.Search) (*query.SearchResults, error) {
	return r.peer.SearchIndex(ctx, r.index, s)
}

// Executor fans searches out across every shard of an index.
type Executor struct {
	catalog *catalog.Catalog
	log     *zap.Logger
}

// NewExecutor returns an executor over the given catalog.
func NewExecutor(c *catalog.Catalog, log *zap.Logger) *Executor {
	return &Executor{catalog: c, log: log}
}

// Search runs one federated search. Participants are resolved once; the
// fan-out never re-consults the catalog. If any participant succeeds the
// merged results are returned and failures are only logged; if every
// participant fails, the most severe failure wins.
func (e *Executor) Search(ctx context.Context, name string, s query.Search) (*query.SearchResults, error) {
	req, err := s.Normalize()
	if err != nil {
		return nil, err
	}

	participants := e.participants(name)
	if len(participants) == 0 {
		return nil, errs.New(errs.NotFound, "Unknown Index: '%s' does not exist", name)
	}
	return e.fanout(ctx, name, participants, req)
}

// fanout dispatches the normalized query to every participant in parallel
// and folds whatever comes back. The fold is order-independent, so no
// buffering for a deterministic traversal is needed.
func (e *Executor) fanout(ctx context.Context, name string, participants []Participant, req query.Search) (*query.SearchResults, error) {
	type partial struct {
		shard int
		name  string
		res   *query.SearchResults
		err   error
	}
	results := make(chan partial, len(participants))
	var wg sync.WaitGroup
	for i, p := range participants {
		wg.Add(1)
		go func(shard int, p Participant) {
			defer wg.Done()
			res, err := p.Search(ctx, req)
			results <- partial{shard: shard, name: p.Name(), res: res, err: err}
		}(i, p)
	}
	wg.Wait()
	close(results)

	var (
		merged   query.SearchResults
		failures error
		worst    = errs.NotFound
		ok       int
	)
	for part := range results {
		if part.err != nil {
			if kind := errs.KindOf(part.err); failures == nil || errs.MoreSevere(kind, worst) {
				worst = kind
			}
			failures = multierror.Append(failures, part.err)
			e.log.Warn("participant failed",
				zap.String("index", name),
				zap.String("participant", part.name),
				zap.Error(part.err))
			continue
		}
		ok++
		for i := range part.res.Docs {
			part.res.Docs[i].Shard = part.shard
		}
		merged.Merge(*part.res)
	}

	if ok == 0 {
		return nil, errs.Wrap(worst, failures, "search on %q failed at every participant", name)
	}
	merged.Rank(req.Limit)
	return &merged, nil
}

// participants resolves the local handle (if any) and every remote peer
// hosting name, in one catalog read. The local shard always sorts first so
// tie-breaks prefer local documents; remote peers follow in URI order.
func (e *Executor) participants(name string) []Participant {
	local, peers := e.catalog.Resolve(name)
	sort.Slice(peers, func(i, j int) bool { return peers[i].URI() < peers[j].URI() })
	var out []Participant
	if local != nil {
		out = append(out, local)
	}
	for _, p := range peers {
		out = append(out, remoteParticipant{index: name, peer: p})
	}
	return out
}

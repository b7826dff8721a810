package batch

import (
	"context"

	"github.com/joeycumines/logiface"

	"github.com/xapiens/rvpf-processor/cache"
	"github.com/xapiens/rvpf-processor/point"
	"github.com/xapiens/rvpf-processor/processor"
	"github.com/xapiens/rvpf-processor/stats"
	"github.com/xapiens/rvpf-processor/store"
)

// queryManager accumulates the outstanding store queries of one batch,
// deduplicated by key, and drains them through the point cache first, then
// through the store client. Cache-satisfied queries are cancelled and never
// cross the store boundary; incomplete responses are reissued with their own
// continuation until complete or empty.
type queryManager struct {
	cache  *cache.Cache
	client store.Client
	stats  *stats.Stats
	logger *logiface.Logger[logiface.Event]

	seen    map[store.Key]struct{}
	pending []store.Query
	ready   []*store.Response
}

func newQueryManager(c *cache.Cache, client store.Client, s *stats.Stats, logger *logiface.Logger[logiface.Event]) *queryManager {
	return &queryManager{
		cache:  c,
		client: client,
		stats:  s,
		logger: logger,
		seen:   make(map[store.Key]struct{}),
	}
}

// seed registers an accepted notice with the cache, so queries for the same
// (point, stamp) are answered without a store round trip.
func (x *queryManager) seed(v point.Value) {
	x.cache.AcceptNotice(v)
}

// add files a query unless an identical one was already filed this batch.
// The return reports whether the query was newly filed.
func (x *queryManager) add(q store.Query) bool {
	key := q.Key()
	if _, dup := x.seen[key]; dup {
		return false
	}
	x.seen[key] = struct{}{}
	x.stats.AddQueriesPrepared(1)

	if r, ok := x.cache.HandleQuery(&q); ok {
		x.ready = append(x.ready, r)
		return true
	}

	x.pending = append(x.pending, q)
	return true
}

// hasPending reports whether any query or undelivered response remains.
func (x *queryManager) hasPending() bool {
	return len(x.pending) != 0 || len(x.ready) != 0
}

// isUpdateNeeded applies the cache change test to an update candidate.
func (x *queryManager) isUpdateNeeded(v point.Value) bool {
	return x.cache.AcceptUpdate(v)
}

// drain resolves every outstanding query, delivering each response to the
// dispatcher. Draining with nothing outstanding is a no-op.
func (x *queryManager) drain(ctx context.Context, deliver func(*store.Response) error) error {
	for x.hasPending() {
		ready := x.ready
		x.ready = nil
		for _, r := range ready {
			if err := deliver(r); err != nil {
				return err
			}
		}

		if len(x.pending) == 0 {
			continue
		}
		queries := x.pending
		x.pending = nil
		x.stats.AddQueriesSent(len(queries))

		responses, err := x.client.Select(ctx, queries)
		if err != nil {
			return &processor.StoreAccessError{Err: err}
		}

		for _, r := range responses {
			x.stats.AddValuesReceived(len(r.Values))
			x.cache.RememberResponse(r)
			if err := deliver(r); err != nil {
				return err
			}
			if next, ok := r.NextQuery(); ok {
				// continuations bypass deduplication: their key is new by
				// construction
				x.seen[next.Key()] = struct{}{}
				x.pending = append(x.pending, next)
			}
		}
	}
	return nil
}

// clear releases the manager's accumulation.
func (x *queryManager) clear() {
	x.seen = make(map[store.Key]struct{})
	x.pending = nil
	x.ready = nil
}

// Package cache implements the engine's point cache: a bounded,
// recency-ordered map of per-point time-indexed values with range-validity
// memoization. The cache short-circuits store queries whose answer is
// provably covered by values the engine has already seen.
package cache

import (
	"container/list"

	"github.com/joeycumines/logiface"

	"github.com/xapiens/rvpf-processor/point"
	"github.com/xapiens/rvpf-processor/stats"
	"github.com/xapiens/rvpf-processor/store"
)

// Config models the cache configuration, with documented defaults.
type Config struct {
	// Disabled turns the cache off: notices are refused, queries always
	// miss, updates always report changed.
	Disabled bool

	// Size bounds the number of cached points after Trim.
	// Defaults to 1000, if 0.
	Size int

	// Boost is the hit count granted to freshly inserted values, letting
	// them survive early trim passes without having been consulted.
	// Defaults to 10, if 0.
	Boost int

	// UpdatesFiltered suppresses updates whose value matches the cache; see
	// AcceptUpdate.
	UpdatesFiltered bool

	// Logger receives cache diagnostics. May be nil.
	Logger *logiface.Logger[logiface.Event]

	// Stats receives the cache counters. Defaults to a private instance.
	Stats *stats.Stats
}

// Cache is the point cache. It is mutated only by the engine worker and is
// not safe for concurrent use.
type Cache struct {
	logger   *logiface.Logger[logiface.Event]
	stats    *stats.Stats
	entries  map[point.ID]*list.Element
	order    *list.List // front is least recently used
	size     int
	boost    int
	disabled bool
	filtered bool
}

// New returns a Cache for the given configuration. The config may be nil.
func New(config *Config) *Cache {
	x := &Cache{
		entries: make(map[point.ID]*list.Element),
		order:   list.New(),
		size:    1000,
		boost:   10,
	}
	if config != nil {
		x.logger = config.Logger
		x.stats = config.Stats
		x.disabled = config.Disabled
		x.filtered = config.UpdatesFiltered
		if config.Size != 0 {
			x.size = config.Size
		}
		if config.Boost != 0 {
			x.boost = config.Boost
		}
	}
	if x.stats == nil {
		x.stats = stats.New()
	}
	return x
}

// Len returns the number of cached points.
func (x *Cache) Len() int {
	return len(x.entries)
}

// UpdatesFiltered returns true when unchanged updates are suppressed.
func (x *Cache) UpdatesFiltered() bool {
	return x.filtered
}

// SetUpdatesFiltered switches the update filter, as driven by the external
// filter control point.
func (x *Cache) SetUpdatesFiltered(filtered bool) {
	x.filtered = filtered
}

// entryFor returns the entry for a point, touching its recency. When create
// is false and the point is unknown, nil is returned.
func (x *Cache) entryFor(id point.ID, create bool) *entry {
	if elem, ok := x.entries[id]; ok {
		x.order.MoveToBack(elem)
		return elem.Value.(*entry)
	}
	if !create {
		return nil
	}
	e := &entry{id: id}
	x.entries[id] = x.order.PushBack(e)
	x.stats.AddCacheEntriesAdded(1)
	return e
}

func (x *Cache) removeEntry(elem *list.Element) {
	e := elem.Value.(*entry)
	x.order.Remove(elem)
	delete(x.entries, e.id)
	x.stats.AddCacheEntriesRemoved(1)
	x.stats.AddCacheValuesRemoved(e.values.Len())
}

// AcceptNotice offers a notice to the cache. Uncacheable notices and a
// disabled cache return false.
func (x *Cache) AcceptNotice(v point.Value) bool {
	if x.disabled || !v.IsCacheable() {
		return false
	}
	x.insert(x.entryFor(v.Point, true), v, false)
	return true
}

// AcceptUpdate offers an update to the cache and reports whether it must be
// emitted downstream: true when the value differs from the point's latest
// cached value per the entry's change test, and always true when update
// filtering is disabled. The caller is the single source of truth for
// whether filtering is on.
func (x *Cache) AcceptUpdate(v point.Value) bool {
	if x.disabled {
		return true
	}
	if v.IsDeleted() {
		x.Forget(v)
		return true
	}
	e := x.entryFor(v.Point, true)
	changed := true
	if _, latest, ok := e.values.Max(); ok {
		changed = !latest.value.SameAs(v)
	}
	x.insert(e, v, false)
	return changed || !x.filtered
}

// insert stores v under its stamp, returning true when the entry's content
// changed. remembered marks values learned from store responses.
func (x *Cache) insert(e *entry, v point.Value, remembered bool) (changed bool) {
	existing, ok := e.values.Get(v.Stamp)
	if ok {
		changed = !existing.value.SameAs(v)
		existing.value = v
		if !remembered {
			// the window no longer describes a store-backed observation
			existing.hasAfter = false
			existing.hasBefore = false
			existing.nullsIgnored = false
		}
		x.stats.AddCacheValuesUpdated(1)
		return changed
	}
	e.values.Set(v.Stamp, &cacheValue{value: v, hits: x.boost})
	x.stats.AddCacheValuesAdded(1)
	return true
}

// Forget removes the specific (point, stamp) value, and the whole entry when
// it becomes empty.
func (x *Cache) Forget(v point.Value) {
	elem, ok := x.entries[v.Point]
	if !ok {
		return
	}
	e := elem.Value.(*entry)
	if _, ok := e.values.Delete(v.Stamp); ok {
		x.stats.AddCacheValuesRemoved(1)
	}
	if e.values.Len() == 0 {
		x.order.Remove(elem)
		delete(x.entries, e.id)
		x.stats.AddCacheEntriesRemoved(1)
	}
}

// Trim enforces the size bound: oldest entries are evicted until the cache
// fits, then each retained entry drops the values which have not been
// consulted since the previous pass (always preserving the most recent one).
// Fresh values start with a boost and decay one pass at a time.
func (x *Cache) Trim() {
	for len(x.entries) > x.size {
		x.removeEntry(x.order.Front())
	}
	for elem := x.order.Front(); elem != nil; elem = elem.Next() {
		e := elem.Value.(*entry)
		mostRecent, _, _ := e.values.Max()

		var stale []point.Stamp
		e.values.Scan(func(s point.Stamp, cv *cacheValue) bool {
			if cv.hits <= 0 && s != mostRecent {
				stale = append(stale, s)
			} else if cv.hits > 0 {
				cv.hits--
			}
			return true
		})
		for _, s := range stale {
			e.values.Delete(s)
		}
		x.stats.AddCacheValuesRemoved(len(stale))
	}
}

// Clear drops every entry, rolling the counters up.
func (x *Cache) Clear() {
	for elem := x.order.Front(); elem != nil; {
		next := elem.Next()
		x.removeEntry(elem)
		elem = next
	}
}

// HandleQuery consults the cache before the store is asked. A response is
// returned only when the cached data provably covers the request; the caller
// then cancels the store query.
func (x *Cache) HandleQuery(q *store.Query) (*store.Response, bool) {
	if x.disabled || q.Pull || q.MultiRow || q.Count || q.Sync != nil {
		return nil, false
	}

	e := x.entryFor(q.Point, false)
	if e == nil {
		return nil, false
	}

	var hit *cacheValue

	if s, ok := q.Instant(); ok {
		cv, ok := e.values.Get(s)
		if !ok || (q.NotNull && cv.value.IsNull()) {
			return nil, false
		}
		hit = cv
	} else if q.Reverse {
		hit = e.lastBefore(q)
	} else {
		hit = e.firstAtOrAfter(q)
	}

	if hit == nil {
		return nil, false
	}

	hit.hits++
	x.stats.AddCacheHits(1)
	q.Cancel()

	return &store.Response{
		Query:    *q,
		Values:   []point.Value{hit.value},
		Complete: true,
	}, true
}

// RememberResponse inserts every value of a store response and infers the
// [after, before) windows over which each value is the only one for its
// point: adjacent response values bound each other. The query bound the
// scan started from (after for forward, before for reverse queries) always
// stretches the outermost window; the far bound does so only when the
// response is complete.
func (x *Cache) RememberResponse(r *store.Response) {
	q := r.Query
	if x.disabled || q.Pull || q.MultiRow || q.Count || q.Sync != nil {
		return
	}
	if len(r.Values) == 0 {
		return
	}

	e := x.entryFor(q.Point, true)

	// ascending stamp order
	values := r.Values
	if q.Reverse {
		values = make([]point.Value, len(r.Values))
		for i, v := range r.Values {
			values[len(values)-1-i] = v
		}
	}

	for i, v := range values {
		x.insert(e, v, true)
		cv, _ := e.values.Get(v.Stamp)

		var window struct {
			after, before       point.Stamp
			hasAfter, hasBefore bool
		}
		if i > 0 {
			window.after = values[i-1].Stamp.Next()
			window.hasAfter = true
		} else if after, ok := q.Interval.After(); ok && (r.Complete || !q.Reverse) {
			window.after = after
			window.hasAfter = true
		}
		if i < len(values)-1 {
			window.before = values[i+1].Stamp
			window.hasBefore = true
		} else if before, ok := q.Interval.Before(); ok && (r.Complete || q.Reverse) {
			window.before = before
			window.hasBefore = true
		}

		cv.extendWindow(window.after, window.hasAfter, window.before, window.hasBefore, q.NotNull)
	}
}

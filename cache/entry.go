package cache

import (
	"github.com/tidwall/btree"

	"github.com/xapiens/rvpf-processor/point"
	"github.com/xapiens/rvpf-processor/store"
)

// entry holds the cached values of one point, in stamp order.
type entry struct {
	id     point.ID
	values btree.Map[point.Stamp, *cacheValue]
}

// cacheValue is one cached point value with its memoized validity window:
// when set, no other value exists in the store for this point within
// [after, before), with nulls either counted or ignored as recorded.
type cacheValue struct {
	value        point.Value
	after        point.Stamp
	before       point.Stamp
	hasAfter     bool
	hasBefore    bool
	nullsIgnored bool
	hits         int
}

// extendWindow merges a freshly established window into the value. Windows
// recorded under the same null handling widen each other; a window with
// different null handling replaces the old one.
func (x *cacheValue) extendWindow(after point.Stamp, hasAfter bool, before point.Stamp, hasBefore bool, nullsIgnored bool) {
	if !hasAfter && !hasBefore {
		return
	}
	if x.nullsIgnored != nullsIgnored && (x.hasAfter || x.hasBefore) {
		x.after, x.hasAfter = after, hasAfter
		x.before, x.hasBefore = before, hasBefore
		x.nullsIgnored = nullsIgnored
		return
	}
	x.nullsIgnored = nullsIgnored
	if hasAfter && (!x.hasAfter || after < x.after) {
		x.after, x.hasAfter = after, true
	}
	if hasBefore && (!x.hasBefore || before > x.before) {
		x.before, x.hasBefore = before, true
	}
}

// coversNulls reports whether the window's null handling satisfies the
// query's: a window established while ignoring nulls proves nothing to a
// query that must see them.
func (x *cacheValue) coversNulls(q *store.Query) bool {
	if x.nullsIgnored && !q.NotNull {
		return false
	}
	if q.NotNull && x.value.IsNull() {
		return false
	}
	return true
}

// lastBefore answers a reverse single-value query: the cached value
// immediately before the interval's upper bound, accepted only when its
// window proves nothing else exists up to that bound.
func (x *entry) lastBefore(q *store.Query) *cacheValue {
	before, ok := q.Interval.Before()
	if !ok || q.Limit != 1 {
		return nil
	}

	var hit *cacheValue
	x.values.Descend(before.Prev(), func(s point.Stamp, cv *cacheValue) bool {
		hit = cv
		return false
	})
	if hit == nil || !q.Interval.Contains(hit.value.Stamp) {
		return nil
	}
	if !hit.hasBefore || hit.before < before || !hit.coversNulls(q) {
		return nil
	}
	return hit
}

// firstAtOrAfter answers a forward single-value query, symmetrically.
func (x *entry) firstAtOrAfter(q *store.Query) *cacheValue {
	after, ok := q.Interval.After()
	if !ok || q.Limit != 1 {
		return nil
	}

	var hit *cacheValue
	x.values.Ascend(after, func(s point.Stamp, cv *cacheValue) bool {
		hit = cv
		return false
	})
	if hit == nil || !q.Interval.Contains(hit.value.Stamp) {
		return nil
	}
	if !hit.hasAfter || hit.after > after || !hit.coversNulls(q) {
		return nil
	}
	return hit
}

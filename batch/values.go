package batch

import (
	"github.com/tidwall/btree"

	"github.com/xapiens/rvpf-processor/point"
	"github.com/xapiens/rvpf-processor/processor"
)

// orderedValues is an insertion-ordered value map with key-based
// replacement: refiling a (point, stamp) key updates in place.
type orderedValues struct {
	index map[point.Key]int
	list  []point.Value
}

func (x *orderedValues) set(v point.Value) {
	if i, ok := x.index[v.Key()]; ok {
		x.list[i] = v
		return
	}
	if x.index == nil {
		x.index = make(map[point.Key]int)
	}
	x.index[v.Key()] = len(x.list)
	x.list = append(x.list, v)
}

func (x *orderedValues) get(k point.Key) (point.Value, bool) {
	if i, ok := x.index[k]; ok {
		return x.list[i], true
	}
	return point.Value{}, false
}

func (x *orderedValues) has(k point.Key) bool {
	_, ok := x.index[k]
	return ok
}

func (x *orderedValues) len() int {
	return len(x.list)
}

func (x *orderedValues) values() []point.Value {
	return x.list
}

// valueMaps holds values ordered by (point, stamp), as per-point inner maps
// keyed by stamp: sub-range scans never cross points.
type valueMaps struct {
	points map[point.ID]*btree.Map[point.Stamp, point.Value]
	count  int
}

func (x *valueMaps) set(v point.Value) {
	m := x.points[v.Point]
	if m == nil {
		if x.points == nil {
			x.points = make(map[point.ID]*btree.Map[point.Stamp, point.Value])
		}
		m = new(btree.Map[point.Stamp, point.Value])
		x.points[v.Point] = m
	}
	if _, replaced := m.Set(v.Stamp, v); !replaced {
		x.count++
	}
}

func (x *valueMaps) delete(p point.ID, s point.Stamp) bool {
	m := x.points[p]
	if m == nil {
		return false
	}
	if _, ok := m.Delete(s); !ok {
		return false
	}
	x.count--
	if m.Len() == 0 {
		delete(x.points, p)
	}
	return true
}

func (x *valueMaps) get(p point.ID, s point.Stamp) (point.Value, bool) {
	if m := x.points[p]; m != nil {
		return m.Get(s)
	}
	return point.Value{}, false
}

// ceiling returns the first value of p at or after s.
func (x *valueMaps) ceiling(p point.ID, s point.Stamp) (point.Value, bool) {
	m := x.points[p]
	if m == nil {
		return point.Value{}, false
	}
	var found point.Value
	var ok bool
	m.Ascend(s, func(_ point.Stamp, v point.Value) bool {
		found, ok = v, true
		return false
	})
	return found, ok
}

// lower returns the last value of p strictly before s.
func (x *valueMaps) lower(p point.ID, s point.Stamp) (point.Value, bool) {
	m := x.points[p]
	if m == nil {
		return point.Value{}, false
	}
	var found point.Value
	var ok bool
	m.Descend(s.Prev(), func(_ point.Stamp, v point.Value) bool {
		found, ok = v, true
		return false
	})
	return found, ok
}

// scan visits the values of p within the interval, in stamp order.
func (x *valueMaps) scan(p point.ID, interval point.Interval, fn func(point.Value) bool) {
	m := x.points[p]
	if m == nil {
		return
	}
	pivot := point.StampMin
	if after, ok := interval.After(); ok {
		pivot = after
	}
	m.Ascend(pivot, func(s point.Stamp, v point.Value) bool {
		if !interval.Contains(s) {
			return false
		}
		return fn(v)
	})
}

func (x *valueMaps) len() int {
	return x.count
}

func (x *valueMaps) clear() {
	x.points = nil
	x.count = 0
}

// lookupOrder returns the maps consulted for a query, in priority order:
// inputs first, then the synthesized maps the query enables.
func (x *Batch) lookupOrder(q processor.Query) []*valueMaps {
	maps := []*valueMaps{&x.inputs}
	if q.Polated || q.Interpolated {
		maps = append(maps, &x.interpolated)
	}
	if q.Polated || q.Extrapolated {
		maps = append(maps, &x.extrapolated)
	}
	if q.Polated {
		maps = append(maps, &x.synthesized)
	}
	return maps
}

// admits applies the query's value filters.
func admits(q processor.Query, v point.Value) bool {
	if q.NotNull && v.IsNull() {
		return false
	}
	if q.Sync != nil && !q.Sync.InSync(v.Stamp) {
		return false
	}
	return true
}

// PointValue implements processor.Batch: exact match for instant queries,
// first-at-or-after for forward queries, last-strictly-before for reverse
// queries. Directional lookups that land on a filtered value advance the
// cursor and retry, never revisiting a stamp.
func (x *Batch) PointValue(q processor.Query) (point.Value, bool) {
	maps := x.lookupOrder(q)

	if s, ok := q.Interval.Instant(); ok {
		for _, m := range maps {
			if v, ok := m.get(q.Point, s); ok {
				if !admits(q, v) {
					return point.Value{}, false
				}
				return v, true
			}
		}
		return point.Value{}, false
	}

	if q.Reverse {
		cursor, ok := q.Interval.Before()
		if !ok {
			cursor = point.StampMax
		}
		for {
			v, ok := x.lowerAcross(maps, q.Point, cursor)
			if !ok || !q.Interval.Contains(v.Stamp) {
				return point.Value{}, false
			}
			if admits(q, v) {
				return v, true
			}
			cursor = v.Stamp
		}
	}

	cursor, ok := q.Interval.After()
	if !ok {
		cursor = point.StampMin
	}
	for {
		v, ok := x.ceilingAcross(maps, q.Point, cursor)
		if !ok || !q.Interval.Contains(v.Stamp) {
			return point.Value{}, false
		}
		if admits(q, v) {
			return v, true
		}
		cursor = v.Stamp.Next()
	}
}

// ceilingAcross finds the earliest candidate across the maps; on a stamp tie
// the earlier map wins (priority order).
func (x *Batch) ceilingAcross(maps []*valueMaps, p point.ID, from point.Stamp) (point.Value, bool) {
	var best point.Value
	var ok bool
	for _, m := range maps {
		if v, found := m.ceiling(p, from); found {
			if !ok || v.Stamp < best.Stamp {
				best, ok = v, true
			}
		}
	}
	return best, ok
}

func (x *Batch) lowerAcross(maps []*valueMaps, p point.ID, before point.Stamp) (point.Value, bool) {
	var best point.Value
	var ok bool
	for _, m := range maps {
		if v, found := m.lower(p, before); found {
			if !ok || v.Stamp > best.Stamp {
				best, ok = v, true
			}
		}
	}
	return best, ok
}

// PointValues implements processor.Batch: the filtered sub-range of the
// input values, in stamp order. A polated query with a sync predicate and a
// bounded interval walks the cadence lattice instead, filling gaps from the
// synthesized maps and merging actual inputs in time order.
func (x *Batch) PointValues(q processor.Query) []point.Value {
	var out []point.Value

	if q.Polated && q.Sync != nil {
		_, bounded := q.Interval.Before()
		if after, ok := q.Interval.After(); ok && bounded {
			return x.polatedLattice(q, after)
		}
	}

	x.inputs.scan(q.Point, q.Interval, func(v point.Value) bool {
		if admits(q, v) {
			out = append(out, v)
		}
		return true
	})
	return out
}

// polatedLattice synthesizes the stamp lattice from the sync over the
// interval, preferring actual inputs at each lattice stamp and falling back
// to interpolated, extrapolated and synthesized values.
func (x *Batch) polatedLattice(q processor.Query, after point.Stamp) []point.Value {
	var out []point.Value

	stamp := after
	if !q.Sync.InSync(stamp) {
		next, ok := q.Sync.NextStamp(stamp)
		if !ok {
			return nil
		}
		stamp = next
	}

	maps := x.lookupOrder(q)
	for q.Interval.Contains(stamp) {
		for _, m := range maps {
			if v, ok := m.get(q.Point, stamp); ok {
				if !q.NotNull || !v.IsNull() {
					out = append(out, v)
				}
				break
			}
		}
		next, ok := q.Sync.NextStamp(stamp)
		if !ok {
			break
		}
		stamp = next
	}
	return out
}

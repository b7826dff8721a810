package store

import (
	"context"
	"sync"

	"github.com/tidwall/btree"

	"github.com/xapiens/rvpf-processor/point"
)

// MemStore is an in-memory Client backed by per-point time-ordered maps. It
// stands in for the persistent archive in tests and single-process
// deployments.
type MemStore struct {
	mu      sync.Mutex
	points  map[point.ID]*btree.Map[point.Stamp, point.Value]
	updates []point.Value
}

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{points: make(map[point.ID]*btree.Map[point.Stamp, point.Value])}
}

// Put stores a value directly, bypassing the update staging.
func (x *MemStore) Put(v point.Value) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.put(v)
}

func (x *MemStore) put(v point.Value) {
	if v.IsDeleted() {
		if m := x.points[v.Point]; m != nil {
			m.Delete(v.Stamp)
			if m.Len() == 0 {
				delete(x.points, v.Point)
			}
		}
		return
	}
	m := x.points[v.Point]
	if m == nil {
		m = new(btree.Map[point.Stamp, point.Value])
		x.points[v.Point] = m
	}
	m.Set(v.Stamp, v)
}

// Len returns the number of stored values.
func (x *MemStore) Len() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	var n int
	for _, m := range x.points {
		n += m.Len()
	}
	return n
}

// Value returns the stored value at an exact (point, stamp), if any.
func (x *MemStore) Value(p point.ID, s point.Stamp) (point.Value, bool) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if m := x.points[p]; m != nil {
		return m.Get(s)
	}
	return point.Value{}, false
}

// Select implements Client.
func (x *MemStore) Select(_ context.Context, queries []Query) ([]*Response, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	responses := make([]*Response, 0, len(queries))
	for _, q := range queries {
		if q.IsCancelled() {
			continue
		}
		responses = append(responses, x.query(q))
	}
	return responses, nil
}

func (x *MemStore) query(q Query) *Response {
	r := &Response{Query: q, Complete: true}

	m := x.points[q.Point]
	if m == nil {
		return r
	}

	matches := func(s point.Stamp, v point.Value) bool {
		if !q.Interval.Contains(s) {
			return false
		}
		if q.NotNull && v.IsNull() {
			return false
		}
		if q.Sync != nil && !q.Sync.InSync(s) {
			return false
		}
		return true
	}

	collect := func(s point.Stamp, v point.Value) bool {
		if !q.Interval.Contains(s) {
			return false // past the interval, stop scanning
		}
		if !matches(s, v) {
			return true
		}
		if q.Count {
			r.CountVal++
			return true
		}
		if q.Limit > 0 && len(r.Values) >= q.Limit {
			r.Complete = false
			return false
		}
		if q.Pull {
			v.Flags |= point.FlagVersioned
		}
		r.Values = append(r.Values, v)
		return true
	}

	if q.Reverse {
		pivot := point.StampMax
		if before, ok := q.Interval.Before(); ok {
			pivot = before.Prev()
		}
		m.Descend(pivot, func(s point.Stamp, v point.Value) bool {
			if after, ok := q.Interval.After(); ok && s < after {
				return false
			}
			return collect(s, v)
		})
	} else {
		pivot := point.StampMin
		if after, ok := q.Interval.After(); ok {
			pivot = after
		}
		m.Ascend(pivot, collect)
	}

	return r
}

// AddUpdate implements Client.
func (x *MemStore) AddUpdate(v point.Value) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.updates = append(x.updates, v)
}

// SendUpdates implements Client.
func (x *MemStore) SendUpdates(_ context.Context) ([]error, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	results := make([]error, len(x.updates))
	for _, v := range x.updates {
		x.put(v)
	}
	x.updates = nil
	return results, nil
}

// Package store defines the engine's view of the external value stores: the
// query and response forms exchanged with the persistent archive, the client
// contract used to read and update it, and the receptionist contract feeding
// notices into the engine.
package store

import (
	"fmt"

	"github.com/xapiens/rvpf-processor/point"
)

// Query is a request against the persistent store for values of one point.
//
// The zero value of everything but Point and Interval selects the plain
// forward query: the first values at or after the interval's lower bound.
type Query struct {
	// Point identifies the queried point.
	Point point.ID

	// Interval restricts the queried stamps.
	Interval point.Interval

	// Reverse asks for values scanned backwards from the interval's upper
	// bound (last-before semantics).
	Reverse bool

	// Count asks for the number of matching values instead of the values.
	Count bool

	// Limit bounds the number of returned rows, when positive. A response
	// truncated by Limit is marked incomplete.
	Limit int

	// Sync restricts the returned values to the cadence lattice.
	Sync point.Sync

	// NotNull skips values with an absent payload.
	NotNull bool

	// Pull asks for raw versioned values.
	Pull bool

	// MultiRow allows multiple values per stamp (versioned history).
	MultiRow bool

	// cancelled is set when the point cache satisfied the query; the store
	// must not be asked.
	cancelled bool
}

// Key identifies a query for deduplication: two queries with the same key
// would fetch the same rows.
type Key struct {
	Point    point.ID
	Interval point.Interval
	Sync     point.Sync
	Flags    uint8
	Limit    int
}

const (
	keyReverse = 1 << iota
	keyCount
	keyNotNull
	keyPull
	keyMultiRow
)

// Key returns the deduplication key of the query.
func (x Query) Key() Key {
	k := Key{
		Point:    x.Point,
		Interval: x.Interval,
		Sync:     x.Sync,
		Limit:    x.Limit,
	}
	if x.Reverse {
		k.Flags |= keyReverse
	}
	if x.Count {
		k.Flags |= keyCount
	}
	if x.NotNull {
		k.Flags |= keyNotNull
	}
	if x.Pull {
		k.Flags |= keyPull
	}
	if x.MultiRow {
		k.Flags |= keyMultiRow
	}
	return k
}

// Instant returns the single queried stamp, for exact-match queries.
func (x Query) Instant() (point.Stamp, bool) {
	return x.Interval.Instant()
}

// Cancel marks the query as satisfied without a store round trip.
func (x *Query) Cancel() {
	x.cancelled = true
}

// IsCancelled returns true when the query must not reach the store.
func (x Query) IsCancelled() bool {
	return x.cancelled
}

func (x Query) String() string {
	dir := `forward`
	if x.Reverse {
		dir = `reverse`
	}
	return fmt.Sprintf(`%s %s %s`, dir, x.Point, x.Interval)
}

// Response carries the values returned for one Query, in stamp order
// (reversed for reverse queries). An incomplete response has more rows
// available; NextQuery builds the continuation fetching them.
type Response struct {
	Query    Query
	Values   []point.Value
	CountVal int64
	Complete bool
}

// NextQuery returns the continuation of an incomplete response, advancing the
// interval past the returned rows. The second return is false when the
// response is complete or empty.
func (x *Response) NextQuery() (Query, bool) {
	if x.Complete || len(x.Values) == 0 {
		return Query{}, false
	}
	q := x.Query
	last := x.Values[len(x.Values)-1].Stamp
	if q.Reverse {
		q.Interval = q.Interval.WithBefore(last)
	} else {
		q.Interval = q.Interval.WithAfter(last.Next())
	}
	if q.Interval.IsEmpty() {
		return Query{}, false
	}
	return q, true
}

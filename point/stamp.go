package point

import (
	"math"
	"time"
)

// Stamp is a wall-clock reading with nanosecond resolution, counted from the
// Unix epoch. The zero value is the epoch itself; StampMin and StampMax bound
// the representable range.
type Stamp int64

const (
	StampMin Stamp = math.MinInt64
	StampMax Stamp = math.MaxInt64
)

// StampFromTime converts a time.Time to a Stamp.
func StampFromTime(t time.Time) Stamp {
	return Stamp(t.UnixNano())
}

// Time converts the Stamp back to a time.Time in UTC.
func (x Stamp) Time() time.Time {
	return time.Unix(0, int64(x)).UTC()
}

// Next returns the next representable instant. Saturates at StampMax.
func (x Stamp) Next() Stamp {
	if x == StampMax {
		return x
	}
	return x + 1
}

// Prev returns the previous representable instant. Saturates at StampMin.
func (x Stamp) Prev() Stamp {
	if x == StampMin {
		return x
	}
	return x - 1
}

// Before returns true when x is strictly before o.
func (x Stamp) Before(o Stamp) bool {
	return x < o
}

// After returns true when x is strictly after o.
func (x Stamp) After(o Stamp) bool {
	return x > o
}

// Add returns the stamp offset by d.
func (x Stamp) Add(d time.Duration) Stamp {
	return x + Stamp(d)
}

// Sub returns the duration elapsed from o to x.
func (x Stamp) Sub(o Stamp) time.Duration {
	return time.Duration(x - o)
}

func (x Stamp) String() string {
	return x.Time().Format(time.RFC3339Nano)
}

// Interval is a half-open time range with optional bounds: a stamp is
// contained when it is at or after the After bound (when set) and strictly
// before the Before bound (when set). An interval is an instant when the
// bounds pin a single stamp, i.e. After.Next() == Before.
//
// The zero value is the unlimited interval.
type Interval struct {
	after     Stamp
	before    Stamp
	hasAfter  bool
	hasBefore bool
}

// Unlimited returns the interval containing every stamp.
func Unlimited() Interval {
	return Interval{}
}

// At returns the instant interval containing exactly s.
func At(s Stamp) Interval {
	return Interval{after: s, before: s.Next(), hasAfter: true, hasBefore: true}
}

// NotBefore returns the interval of stamps at or after s.
func NotBefore(s Stamp) Interval {
	return Interval{after: s, hasAfter: true}
}

// Before returns the interval of stamps strictly before s.
func Before(s Stamp) Interval {
	return Interval{before: s, hasBefore: true}
}

// Between returns the interval [after, before).
func Between(after, before Stamp) Interval {
	return Interval{after: after, before: before, hasAfter: true, hasBefore: true}
}

// After returns the inclusive lower bound, when set.
func (x Interval) After() (Stamp, bool) {
	return x.after, x.hasAfter
}

// Before returns the exclusive upper bound, when set.
func (x Interval) Before() (Stamp, bool) {
	return x.before, x.hasBefore
}

// Instant returns the single contained stamp when the interval pins exactly
// one.
func (x Interval) Instant() (Stamp, bool) {
	if x.hasAfter && x.hasBefore && x.after.Next() == x.before {
		return x.after, true
	}
	return 0, false
}

// Contains returns true when s is within the interval.
func (x Interval) Contains(s Stamp) bool {
	if x.hasAfter && s < x.after {
		return false
	}
	if x.hasBefore && s >= x.before {
		return false
	}
	return true
}

// IsEmpty returns true when no stamp can be contained.
func (x Interval) IsEmpty() bool {
	return x.hasAfter && x.hasBefore && x.after >= x.before
}

// WithAfter returns the interval with its lower bound set to s.
func (x Interval) WithAfter(s Stamp) Interval {
	x.after = s
	x.hasAfter = true
	return x
}

// WithBefore returns the interval with its upper bound set to s.
func (x Interval) WithBefore(s Stamp) Interval {
	x.before = s
	x.hasBefore = true
	return x
}

// Trim returns the intersection of both intervals.
func (x Interval) Trim(o Interval) Interval {
	if o.hasAfter && (!x.hasAfter || o.after > x.after) {
		x.after = o.after
		x.hasAfter = true
	}
	if o.hasBefore && (!x.hasBefore || o.before < x.before) {
		x.before = o.before
		x.hasBefore = true
	}
	return x
}

func (x Interval) String() string {
	s := `[`
	if x.hasAfter {
		s += x.after.String()
	}
	s += `,`
	if x.hasBefore {
		s += x.before.String()
	}
	return s + `)`
}

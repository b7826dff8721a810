package point

import (
	"time"
)

// Sync is a predicate over stamps declaring the expected cadence of a point.
// NextStamp and PrevStamp walk the cadence lattice and report false when the
// lattice is exhausted in that direction.
type Sync interface {
	InSync(s Stamp) bool
	NextStamp(s Stamp) (Stamp, bool)
	PrevStamp(s Stamp) (Stamp, bool)
}

// ElapsedSync is a fixed-interval cadence, optionally offset from the epoch.
type ElapsedSync struct {
	// Interval is the cadence period. NewElapsedSync panics if not positive.
	Interval time.Duration

	// Offset shifts the lattice from the epoch.
	Offset time.Duration
}

// NewElapsedSync returns a fixed-interval Sync.
func NewElapsedSync(interval, offset time.Duration) *ElapsedSync {
	if interval <= 0 {
		panic(`point: elapsed sync interval must be positive`)
	}
	return &ElapsedSync{Interval: interval, Offset: offset}
}

func (x *ElapsedSync) phase(s Stamp) int64 {
	p := (int64(s) - int64(x.Offset)) % int64(x.Interval)
	if p < 0 {
		p += int64(x.Interval)
	}
	return p
}

// InSync returns true when s lies on the cadence lattice.
func (x *ElapsedSync) InSync(s Stamp) bool {
	return x.phase(s) == 0
}

// NextStamp returns the first lattice stamp strictly after s.
func (x *ElapsedSync) NextStamp(s Stamp) (Stamp, bool) {
	next := Stamp(int64(s) + int64(x.Interval) - x.phase(s))
	if next <= s { // overflow
		return 0, false
	}
	return next, true
}

// PrevStamp returns the last lattice stamp strictly before s.
func (x *ElapsedSync) PrevStamp(s Stamp) (Stamp, bool) {
	p := x.phase(s)
	if p == 0 {
		p = int64(x.Interval)
	}
	prev := Stamp(int64(s) - p)
	if prev >= s { // overflow
		return 0, false
	}
	return prev, true
}

package point

import (
	"fmt"
	"reflect"
	"strings"
)

// Flags qualify a Value. The variant flags (deleted, purged, synthesized,
// interpolated, extrapolated) identify the concrete kind of a value; the
// remaining flags carry processing hints.
type Flags uint16

const (
	// FlagDeleted marks a deletion tombstone.
	FlagDeleted Flags = 1 << iota
	// FlagPurged marks a value physically removed from the store.
	FlagPurged
	// FlagVersioned marks a raw versioned value, as returned by pull queries.
	FlagVersioned
	// FlagSynthesized marks a value produced inside a batch.
	FlagSynthesized
	// FlagInterpolated marks a synthesized value obtained by interpolation.
	FlagInterpolated
	// FlagExtrapolated marks a synthesized value obtained by extrapolation.
	FlagExtrapolated
	// FlagCacheable allows the value into the point cache.
	FlagCacheable
	// FlagFetched marks a value fetched from the store for a result.
	FlagFetched
	// FlagReplaceable allows a result value to be overwritten by a different
	// concrete variant.
	FlagReplaceable
	// FlagRecalcTrigger marks a notice requesting recomputation of its own
	// point.
	FlagRecalcTrigger
)

// variantMask selects the flags that distinguish concrete value variants.
const variantMask = FlagDeleted | FlagPurged | FlagSynthesized | FlagInterpolated | FlagExtrapolated

// Has returns true when all the given flags are set.
func (x Flags) Has(f Flags) bool {
	return x&f == f
}

// HasAny returns true when at least one of the given flags is set.
func (x Flags) HasAny(f Flags) bool {
	return x&f != 0
}

// Variant returns the concrete-variant subset of the flags.
func (x Flags) Variant() Flags {
	return x & variantMask
}

func (x Flags) String() string {
	var names []string
	for _, f := range [...]struct {
		flag Flags
		name string
	}{
		{FlagDeleted, `deleted`},
		{FlagPurged, `purged`},
		{FlagVersioned, `versioned`},
		{FlagSynthesized, `synthesized`},
		{FlagInterpolated, `interpolated`},
		{FlagExtrapolated, `extrapolated`},
		{FlagCacheable, `cacheable`},
		{FlagFetched, `fetched`},
		{FlagReplaceable, `replaceable`},
		{FlagRecalcTrigger, `recalc-trigger`},
	} {
		if x.Has(f.flag) {
			names = append(names, f.name)
		}
	}
	return strings.Join(names, `|`)
}

// Value is a point value: a timestamped reading for a point, a deletion
// tombstone, or a recompute trigger. A nil Payload means "known absent at
// this instant". Identity is (Point, Stamp); SameAs compares content.
type Value struct {
	Point   ID
	Stamp   Stamp
	State   any
	Payload any
	Flags   Flags
}

// Key is the (point, stamp) identity of a Value.
type Key struct {
	Point ID
	Stamp Stamp
}

// Key returns the identity of the value.
func (x Value) Key() Key {
	return Key{Point: x.Point, Stamp: x.Stamp}
}

// Equal returns true when both values share the same (point, stamp) identity.
func (x Value) Equal(o Value) bool {
	return x.Point == o.Point && x.Stamp == o.Stamp
}

// Less orders values by (point, stamp), point first.
func (x Value) Less(o Value) bool {
	if x.Point != o.Point {
		return lessID(x.Point, o.Point)
	}
	return x.Stamp < o.Stamp
}

func lessID(a, b ID) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// SameAs returns true when o carries the same concrete variant, state and
// payload, by value equality. Identity is not compared.
func (x Value) SameAs(o Value) bool {
	return x.Flags.Variant() == o.Flags.Variant() &&
		reflect.DeepEqual(x.State, o.State) &&
		reflect.DeepEqual(x.Payload, o.Payload)
}

// IsDeleted returns true for deletion tombstones.
func (x Value) IsDeleted() bool {
	return x.Flags.Has(FlagDeleted)
}

// IsNull returns true when the payload is absent.
func (x Value) IsNull() bool {
	return x.Payload == nil
}

// IsCacheable returns true when the value may enter the point cache.
func (x Value) IsCacheable() bool {
	return x.Flags.Has(FlagCacheable)
}

// IsSynthesized returns true for values derived inside a batch, including
// interpolated and extrapolated values.
func (x Value) IsSynthesized() bool {
	return x.Flags.HasAny(FlagSynthesized | FlagInterpolated | FlagExtrapolated)
}

// IsRecalcTrigger classifies the value as a recompute-trigger notice.
func (x Value) IsRecalcTrigger() bool {
	return x.Flags.Has(FlagRecalcTrigger)
}

// WithStamp returns a copy of the value at a different stamp.
func (x Value) WithStamp(s Stamp) Value {
	x.Stamp = s
	return x
}

// Deleted returns the deletion tombstone for this value's identity.
func (x Value) Deleted() Value {
	return Value{
		Point: x.Point,
		Stamp: x.Stamp,
		Flags: FlagDeleted,
	}
}

func (x Value) String() string {
	return fmt.Sprintf(`%s@%s=%v`, x.Point, x.Stamp, x.Payload)
}

// ResultValue is a to-be-computed value for a derived point, produced within
// a batch. It owns the ordered list of input values collected for its
// transform.
type ResultValue struct {
	Value
	Inputs []Value
}

// NewResultValue returns a result for the given point at the given stamp.
func NewResultValue(p ID, s Stamp) *ResultValue {
	return &ResultValue{Value: Value{Point: p, Stamp: s}}
}

// AddInput appends an input value.
func (x *ResultValue) AddInput(v Value) {
	x.Inputs = append(x.Inputs, v)
}

// IsReplaceable returns true when the result may be overwritten by a
// different concrete variant.
func (x *ResultValue) IsReplaceable() bool {
	return x.Flags.Has(FlagReplaceable)
}

// PointValue returns a plain copy of the result, stripped of result-only
// state, for use as an update.
func (x *ResultValue) PointValue() Value {
	return x.Value
}

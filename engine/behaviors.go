package engine

import (
	"github.com/xapiens/rvpf-processor/point"
	"github.com/xapiens/rvpf-processor/processor"
	"github.com/xapiens/rvpf-processor/store"
)

// RecalcBehavior manufactures the result of a recalc-trigger notice: the
// notice's own point is recomputed at the notice stamp.
type RecalcBehavior struct {
	def processor.Definition
}

// NewRecalcBehavior returns the behavior recomputing the given point.
func NewRecalcBehavior(def processor.Definition) *RecalcBehavior {
	if def == nil {
		panic(`engine: nil definition`)
	}
	return &RecalcBehavior{def: def}
}

func (x *RecalcBehavior) PrepareTrigger(point.Value, processor.Batch) bool {
	return true
}

func (x *RecalcBehavior) Trigger(notice point.Value, b processor.Batch) {
	b.SetUpResultFromNotice(notice, notice.Stamp, x.def, x)
}

func (x *RecalcBehavior) PrepareSelect(*point.ResultValue, processor.Batch) bool {
	return true
}

func (x *RecalcBehavior) Select(*point.ResultValue, processor.Batch) bool {
	return true
}

func (x *RecalcBehavior) NewResultValue(stamp point.Stamp) *point.ResultValue {
	r := point.NewResultValue(x.def.ID(), stamp)
	r.Flags |= point.FlagReplaceable
	return r
}

func (x *RecalcBehavior) IsResultFetched(notice point.Value, result *point.ResultValue) bool {
	return notice.Flags.Has(point.FlagFetched) && notice.Equal(result.Value)
}

// PrimaryBehavior is the common relation strategy: a notice on the input
// point derives a result on the result point at the notice stamp, and the
// result selects the input's value at the result stamp plus, optionally, a
// number of preceding values.
type PrimaryBehavior struct {
	// Input is the consumed point.
	Input point.ID

	// Result is the derived point.
	Result point.ID

	// Previous is how many preceding input values the transform needs.
	Previous int

	// NotNull skips null input values.
	NotNull bool
}

func (x *PrimaryBehavior) PrepareTrigger(point.Value, processor.Batch) bool {
	return true
}

func (x *PrimaryBehavior) Trigger(notice point.Value, b processor.Batch) {
	def, ok := b.Resolver().Definition(x.Result)
	if !ok {
		return
	}
	b.SetUpResultFromNotice(notice, notice.Stamp, def, x)
}

// PrepareSelect files the store queries for the missing inputs, settling
// once nothing new had to be filed. The preceding values chain backwards
// from each resolved value, so the chain deepens one store round trip at a
// time.
func (x *PrimaryBehavior) PrepareSelect(result *point.ResultValue, b processor.Batch) bool {
	settled := true

	// the at-stamp input always goes through the query manager: the cache,
	// seeded by the accepted notices, answers it without a round trip
	if b.AddStoreQuery(x.storeQuery(x.atQuery(result.Stamp))) {
		settled = false
	}

	cursor := result.Stamp
	for range x.Previous {
		prev, ok := b.PointValue(x.beforeQuery(cursor))
		if !ok {
			if b.AddStoreQuery(x.storeQuery(x.beforeQuery(cursor))) {
				settled = false
			}
			break
		}
		cursor = prev.Stamp
	}
	return settled
}

// Select collects the inputs, oldest first; a missing input drops the
// result.
func (x *PrimaryBehavior) Select(result *point.ResultValue, b processor.Batch) bool {
	v, ok := b.PointValue(x.atQuery(result.Stamp))
	if !ok {
		return false
	}
	values := []point.Value{v}

	cursor := result.Stamp
	for range x.Previous {
		prev, ok := b.PointValue(x.beforeQuery(cursor))
		if !ok {
			return false
		}
		values = append(values, prev)
		cursor = prev.Stamp
	}

	for i := len(values) - 1; i >= 0; i-- {
		result.AddInput(values[i])
	}
	return true
}

func (x *PrimaryBehavior) atQuery(stamp point.Stamp) processor.Query {
	return processor.Query{
		Point:    x.Input,
		Interval: point.At(stamp),
		NotNull:  x.NotNull,
	}
}

func (x *PrimaryBehavior) beforeQuery(stamp point.Stamp) processor.Query {
	return processor.Query{
		Point:    x.Input,
		Interval: point.Before(stamp),
		Reverse:  true,
		NotNull:  x.NotNull,
	}
}

// storeQuery translates a batch lookup into its store form.
func (x *PrimaryBehavior) storeQuery(q processor.Query) store.Query {
	return store.Query{
		Point:    q.Point,
		Interval: q.Interval,
		Reverse:  q.Reverse,
		NotNull:  q.NotNull,
		Limit:    1,
	}
}

func (x *PrimaryBehavior) NewResultValue(stamp point.Stamp) *point.ResultValue {
	return point.NewResultValue(x.Result, stamp)
}

func (x *PrimaryBehavior) IsResultFetched(notice point.Value, result *point.ResultValue) bool {
	return notice.Flags.Has(point.FlagFetched) && notice.Equal(result.Value)
}

// compile time assertions
var (
	_ processor.Behavior = (*RecalcBehavior)(nil)
	_ processor.Behavior = (*PrimaryBehavior)(nil)
)

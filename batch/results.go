package batch

import (
	"github.com/xapiens/rvpf-processor/point"
	"github.com/xapiens/rvpf-processor/processor"
)

// orderedResults is an insertion-ordered result map with key-based
// replacement.
type orderedResults struct {
	index map[point.Key]int
	list  []*point.ResultValue
}

func (x *orderedResults) get(k point.Key) (*point.ResultValue, bool) {
	if i, ok := x.index[k]; ok && x.list[i] != nil {
		return x.list[i], true
	}
	return nil, false
}

func (x *orderedResults) set(r *point.ResultValue) {
	if i, ok := x.index[r.Key()]; ok {
		x.list[i] = r
		return
	}
	if x.index == nil {
		x.index = make(map[point.Key]int)
	}
	x.index[r.Key()] = len(x.list)
	x.list = append(x.list, r)
}

func (x *orderedResults) remove(k point.Key) bool {
	i, ok := x.index[k]
	if !ok || x.list[i] == nil {
		return false
	}
	x.list[i] = nil // preserve insertion order of the remainder
	delete(x.index, k)
	return true
}

func (x *orderedResults) values() []*point.ResultValue {
	out := make([]*point.ResultValue, 0, len(x.index))
	for _, r := range x.list {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

// SetUpResultValue implements processor.Batch.
func (x *Batch) SetUpResultValue(stamp point.Stamp, def processor.Definition, behavior processor.Behavior) *point.ResultValue {
	return x.setUpResult(nil, stamp, def, behavior)
}

// SetUpResultFromNotice implements processor.Batch.
func (x *Batch) SetUpResultFromNotice(notice point.Value, stamp point.Stamp, def processor.Definition, behavior processor.Behavior) *point.ResultValue {
	return x.setUpResult(&notice, stamp, def, behavior)
}

func (x *Batch) setUpResult(notice *point.Value, stamp point.Stamp, def processor.Definition, behavior processor.Behavior) *point.ResultValue {
	stats := x.controller.Stats()

	if x.resultsFrozen {
		x.logger.Err().
			Str(`point`, def.Name()).
			Log(`result set-up after freeze refused`)
		return nil
	}

	result := behavior.NewResultValue(stamp)
	if result == nil {
		return nil
	}
	if result.Point.IsZero() {
		result.Point = def.ID()
	}

	if !x.controller.ResultAllowed(result) {
		stats.AddCutoffResults(1)
		return nil
	}

	// self-trigger suppression: a regular notice never derives a result at
	// its own (point, stamp)
	if existing, ok := x.notices.get(result.Key()); ok && !existing.IsRecalcTrigger() {
		if notice == nil || notice.Key() == result.Key() {
			x.logger.Warning().
				Str(`point`, def.Name()).
				Stringer(`stamp`, result.Stamp).
				Log(`self-triggered result dropped`)
			stats.AddResultsDropped(1)
			return nil
		}
	}

	if existing, ok := x.results.get(result.Key()); ok {
		if existing.Flags.Variant() == result.Flags.Variant() {
			return existing
		}
		if !existing.IsReplaceable() {
			x.logger.Warning().
				Str(`point`, def.Name()).
				Stringer(`stamp`, result.Stamp).
				Log(`conflicting result variant dropped`)
			stats.AddResultsDropped(1)
			return nil
		}
	}

	x.results.set(result)
	stats.AddResultsPrepared(1)

	if def.RecalcLatest() > 0 {
		if _, seen := x.recalcSeen[result.Key()]; !seen {
			x.recalcSeen[result.Key()] = struct{}{}
			x.recalcLatest = append(x.recalcLatest, result)
		}
	}

	return result
}

// ReplaceResultValue implements processor.Batch: replaceable results are
// substituted with a fresh one from the behavior, others are returned
// unchanged.
func (x *Batch) ReplaceResultValue(r *point.ResultValue, def processor.Definition, behavior processor.Behavior) *point.ResultValue {
	if x.resultsFrozen || r == nil || !r.IsReplaceable() {
		return r
	}
	fresh := behavior.NewResultValue(r.Stamp)
	if fresh == nil {
		return r
	}
	if fresh.Point.IsZero() {
		fresh.Point = def.ID()
	}
	x.results.set(fresh)
	return fresh
}

// ResultValues implements processor.Batch.
func (x *Batch) ResultValues() []*point.ResultValue {
	return x.results.values()
}

// DropResultValue implements processor.Batch.
func (x *Batch) DropResultValue(r *point.ResultValue) {
	if r == nil {
		return
	}
	if x.results.remove(r.Key()) {
		x.controller.Stats().AddResultsDropped(1)
	}
}

// RecalcLatestResults returns the results flagged for the recalc-latest
// fetch step, in arrival order.
func (x *Batch) RecalcLatestResults() []*point.ResultValue {
	return x.recalcLatest
}

// FreezeResults closes the set-up phase: no further result is set up or
// replaced. DropResultValue still removes results after the freeze.
func (x *Batch) FreezeResults() {
	x.resultsFrozen = true
}

// ResultsFrozen reports whether the set-up phase has completed.
func (x *Batch) ResultsFrozen() bool {
	return x.resultsFrozen
}

// Package batch implements the mutable working set of one processing batch:
// the accepted notices, the in-memory value maps fed by store responses, the
// result values under construction, the computed updates, and the
// deduplicated store-query accumulator that routes every lookup through the
// point cache first.
package batch

import (
	"context"

	"github.com/joeycumines/logiface"

	"github.com/xapiens/rvpf-processor/cache"
	"github.com/xapiens/rvpf-processor/point"
	"github.com/xapiens/rvpf-processor/processor"
	"github.com/xapiens/rvpf-processor/stats"
	"github.com/xapiens/rvpf-processor/store"
)

// Controller is the batch's view of its owning controller.
type Controller interface {
	// VerifyMemory checks the in-use memory against the configured cap; a
	// MemoryLimitError aborts the current batch operation. The batch's
	// notice count sizes the retry.
	VerifyMemory(noticeCount int) error

	// ResultAllowed applies the cutoff control to a candidate result.
	ResultAllowed(r *point.ResultValue) bool

	// Resynchronizes reports the engine's resynchronization mode.
	Resynchronizes() bool

	// Cache returns the engine's point cache.
	Cache() *cache.Cache

	// Stats returns the engine's counters.
	Stats() *stats.Stats
}

// Signal is a queued service-level signal.
type Signal struct {
	Name string
	Info string
}

// Batch is one batch's working set. It is created by the controller, mutated
// by a single processing iteration, and cleared when the iteration ends.
type Batch struct {
	logger     *logiface.Logger[logiface.Event]
	controller Controller
	resolver   processor.Resolver
	queries    *queryManager

	notices      orderedValues
	inputs       valueMaps
	interpolated valueMaps
	extrapolated valueMaps
	synthesized  valueMaps

	results      orderedResults
	recalcLatest []*point.ResultValue
	recalcSeen   map[point.Key]struct{}

	updates []point.Value
	signals []Signal

	lookUpPasses  int
	noticesFrozen bool
	resultsFrozen bool
}

// New returns a Batch wired to its controller, definition arena and store
// client. A nil controller, resolver or client panics.
func New(controller Controller, resolver processor.Resolver, client store.Client, logger *logiface.Logger[logiface.Event]) *Batch {
	if controller == nil {
		panic(`batch: nil controller`)
	}
	if resolver == nil {
		panic(`batch: nil resolver`)
	}
	if client == nil {
		panic(`batch: nil store client`)
	}
	return &Batch{
		logger:     logger,
		controller: controller,
		resolver:   resolver,
		queries:    newQueryManager(controller.Cache(), client, controller.Stats(), logger),
		recalcSeen: make(map[point.Key]struct{}),
	}
}

// Resolver implements processor.Batch.
func (x *Batch) Resolver() processor.Resolver {
	return x.resolver
}

// Stats returns the engine counters.
func (x *Batch) Stats() *stats.Stats {
	return x.controller.Stats()
}

// NoticeCount returns the number of accepted notices.
func (x *Batch) NoticeCount() int {
	return x.notices.len()
}

// LookUpPasses returns how many store-query passes the batch has run.
func (x *Batch) LookUpPasses() int {
	return x.lookUpPasses
}

// AcceptNotices files a batch of notices, subject to the acceptance rules:
// unknown points are dropped, recalc triggers require declared inputs,
// regular notices require declared results (relaxed in resynchronization
// mode), and out-of-sync notices are dropped. Memory is verified before each
// insertion; a memory failure aborts the whole call.
func (x *Batch) AcceptNotices(notices []point.Value) error {
	if x.noticesFrozen {
		return processor.ErrNoticesFrozen
	}
	for _, v := range notices {
		if err := x.controller.VerifyMemory(x.notices.len()); err != nil {
			return err
		}
		x.acceptNotice(v)
	}
	return nil
}

func (x *Batch) acceptNotice(v point.Value) {
	stats := x.controller.Stats()

	def, ok := x.resolver.Definition(v.Point.Undeleted())
	if !ok {
		x.logger.Debug().
			Stringer(`point`, v.Point).
			Log(`notice for unknown point dropped`)
		stats.AddNoticesDropped(1)
		return
	}

	if v.IsRecalcTrigger() {
		if len(def.Inputs()) == 0 {
			x.logger.Warning().
				Str(`point`, def.Name()).
				Log(`recalc trigger for point without inputs dropped`)
			stats.AddNoticesDropped(1)
			return
		}
	} else if len(def.Results()) == 0 && !x.controller.Resynchronizes() {
		x.logger.Debug().
			Str(`point`, def.Name()).
			Log(`notice for point without results dropped`)
		stats.AddNoticesDropped(1)
		return
	}

	if sync := def.Sync(); sync != nil && !sync.InSync(v.Stamp) {
		b := x.logger.Warning()
		if def.Resynchronized() {
			b = x.logger.Debug()
		}
		b.Str(`point`, def.Name()).
			Stringer(`stamp`, v.Stamp).
			Log(`out of sync notice dropped`)
		stats.AddNoticesDropped(1)
		return
	}

	if v.IsDeleted() {
		// a deletion supersedes the matching input, if any
		x.inputs.delete(v.Point.Undeleted(), v.Stamp)
		v.Point = v.Point.Undeleted()
	} else if !v.IsRecalcTrigger() {
		x.inputs.set(v)
		x.queries.seed(v)
	}

	x.notices.set(v)
}

// FreezeNotices closes the intake: no further notice is accepted.
func (x *Batch) FreezeNotices() {
	x.noticesFrozen = true
}

// Notices returns the accepted notices, in insertion order.
func (x *Batch) Notices() []point.Value {
	return x.notices.values()
}

// AddStoreQuery implements processor.Batch.
func (x *Batch) AddStoreQuery(q store.Query) bool {
	return x.queries.add(q)
}

// HasPendingQueries reports whether any store query awaits resolution.
func (x *Batch) HasPendingQueries() bool {
	return x.queries.hasPending()
}

// ProcessStoreQueries drains the accumulated store queries, routing each
// response value into the input or synthesized maps, and reissuing
// incomplete responses until done.
func (x *Batch) ProcessStoreQueries(ctx context.Context) error {
	x.lookUpPasses++
	return x.queries.drain(ctx, func(r *store.Response) error {
		for _, v := range r.Values {
			if err := x.controller.VerifyMemory(x.notices.len()); err != nil {
				return err
			}
			v.Flags |= point.FlagFetched
			if v.IsSynthesized() {
				x.acceptSynthesized(v)
			} else {
				x.acceptInput(v)
			}
		}
		return nil
	})
}

func (x *Batch) acceptInput(v point.Value) {
	x.inputs.set(v)
}

func (x *Batch) acceptSynthesized(v point.Value) {
	switch {
	case v.Flags.Has(point.FlagInterpolated):
		x.interpolated.set(v)
	case v.Flags.Has(point.FlagExtrapolated):
		x.extrapolated.set(v)
	default:
		x.synthesized.set(v)
	}
}

// IsUpdateNeeded consults the point cache's change test; with update
// filtering enabled, unchanged updates report false.
func (x *Batch) IsUpdateNeeded(v point.Value) bool {
	return x.queries.isUpdateNeeded(v)
}

// AddUpdate files a computed update for emission, unless the update filter
// proves it redundant.
func (x *Batch) AddUpdate(v point.Value) {
	if !x.IsUpdateNeeded(v) {
		x.logger.Trace().
			Stringer(`point`, v.Point).
			Log(`redundant update dropped`)
		x.controller.Stats().AddUpdatesDropped(1)
		return
	}
	x.updates = append(x.updates, v)
}

// Updates returns the filed updates, in insertion order.
func (x *Batch) Updates() []point.Value {
	return x.updates
}

// QueueSignal implements processor.Batch.
func (x *Batch) QueueSignal(name, info string) {
	x.signals = append(x.signals, Signal{Name: name, Info: info})
}

// Signals returns the queued signals.
func (x *Batch) Signals() []Signal {
	return x.signals
}

// Clear releases the batch's maps to help the allocator.
func (x *Batch) Clear() {
	x.notices = orderedValues{}
	x.inputs.clear()
	x.interpolated.clear()
	x.extrapolated.clear()
	x.synthesized.clear()
	x.results = orderedResults{}
	x.recalcLatest = nil
	x.recalcSeen = make(map[point.Key]struct{})
	x.updates = nil
	x.signals = nil
	x.queries.clear()
}

// compile time assertion
var _ processor.Batch = (*Batch)(nil)

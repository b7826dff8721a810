package engine

import (
	"path/filepath"
	"time"

	"github.com/joeycumines/logiface"
	"github.com/tidwall/btree"

	"github.com/xapiens/rvpf-processor/batch"
	"github.com/xapiens/rvpf-processor/cache"
	"github.com/xapiens/rvpf-processor/point"
	"github.com/xapiens/rvpf-processor/processor"
	"github.com/xapiens/rvpf-processor/stats"
	"github.com/xapiens/rvpf-processor/store"
	"github.com/xapiens/rvpf-processor/trace"
)

// Controller owns the point cache, manufactures batches, enforces the memory
// caps, adapts the batch limit, schedules deferred updates and keeps the
// per-batch trace streams. It is mutated only by the engine worker.
type Controller struct {
	config Config
	logger *logiface.Logger[logiface.Event]
	stats  *stats.Stats
	cache  *cache.Cache
	probe  MemoryProbe
	clock  func() point.Stamp

	controls *Controls

	batchLimit int

	scheduled      btree.Map[point.Stamp, []point.Value]
	scheduledCount int

	received *trace.Stream
	sent     *trace.Stream
}

// ControllerConfig wires a Controller.
type ControllerConfig struct {
	// Config is the engine configuration; it must validate.
	Config Config

	// Logger may be nil.
	Logger *logiface.Logger[logiface.Event]

	// Stats defaults to a fresh instance.
	Stats *stats.Stats

	// Probe defaults to the runtime probe.
	Probe MemoryProbe

	// Clock defaults to the wall clock. Injectable for tests.
	Clock func() point.Stamp

	// Controls is optional; without it every result is admitted.
	Controls *Controls
}

// NewController validates the configuration and opens the trace streams.
func NewController(c *ControllerConfig) (*Controller, error) {
	if c == nil {
		panic(`engine: nil controller config`)
	}
	if err := c.Config.Validate(); err != nil {
		return nil, err
	}

	x := &Controller{
		config:     c.Config,
		logger:     c.Logger,
		stats:      c.Stats,
		probe:      c.Probe,
		clock:      c.Clock,
		controls:   c.Controls,
		batchLimit: c.Config.BatchLimitInitial,
	}
	if x.stats == nil {
		x.stats = stats.New()
	}
	if x.probe == nil {
		x.probe = NewRuntimeProbe()
	}
	if x.clock == nil {
		x.clock = func() point.Stamp { return point.StampFromTime(time.Now()) }
	}
	x.cache = cache.New(&cache.Config{
		Disabled:        c.Config.CacheDisabled,
		Size:            c.Config.CacheSize,
		Boost:           c.Config.CacheBoost,
		UpdatesFiltered: c.Config.CacheUpdatesFiltered,
		Logger:          c.Logger,
		Stats:           x.stats,
	})

	if c.Config.TracesEnabled {
		var err error
		if x.received, err = trace.Open(filepath.Join(c.Config.TracesDir, `received`), c.Logger); err != nil {
			return nil, err
		}
		if x.sent, err = trace.Open(filepath.Join(c.Config.TracesDir, `sent`), c.Logger); err != nil {
			return nil, err
		}
	}

	return x, nil
}

// Now returns the controller's clock reading.
func (x *Controller) Now() point.Stamp {
	return x.clock()
}

// Cache implements batch.Controller.
func (x *Controller) Cache() *cache.Cache {
	return x.cache
}

// Stats implements batch.Controller.
func (x *Controller) Stats() *stats.Stats {
	return x.stats
}

// Resynchronizes implements batch.Controller.
func (x *Controller) Resynchronizes() bool {
	return x.config.Resynchronizes
}

// ResultAllowed implements batch.Controller, applying the cutoff control.
func (x *Controller) ResultAllowed(r *point.ResultValue) bool {
	if x.controls == nil {
		return true
	}
	return x.controls.Cutoff().Verify(r.Value)
}

// BatchLimit returns the current batch limit.
func (x *Controller) BatchLimit() int {
	return x.batchLimit
}

// NewBatch manufactures the working set of the next batch.
func (x *Controller) NewBatch(resolver processor.Resolver, client store.Client) *batch.Batch {
	return batch.New(x, resolver, client, x.logger)
}

// VerifyMemory implements batch.Controller: when the in-use memory exceeds
// the abort cap, the point cache is cleared, the next batch limit is sized
// from the aborted batch, and a memory-limit failure is raised.
func (x *Controller) VerifyMemory(noticeCount int) error {
	max := x.probe.Max() / 100 * uint64(x.config.MemoryTotalUseMaximum)
	used := x.probe.InUse()
	if used <= max {
		return nil
	}

	x.cache.Clear()

	limit := noticeCount / 10
	if limit < 1 {
		limit = 1
	}
	x.batchLimit = limit

	x.logger.Warning().
		Uint64(`used`, used).
		Uint64(`max`, max).
		Int(`limit`, limit).
		Log(`memory limit exceeded, batch aborted`)

	return &processor.MemoryLimitError{Used: used, Max: max}
}

// SetBatchLimit resizes the limit, clamped to [1, maximum]. The loop uses it
// to retry a memory-limited batch at half size.
func (x *Controller) SetBatchLimit(limit int) {
	if limit < 1 {
		limit = 1
	}
	if limit > x.config.BatchLimitMaximum {
		limit = x.config.BatchLimitMaximum
	}
	x.batchLimit = limit
}

// AdaptAfterBatch resizes the batch limit from the post-batch memory
// picture: above the high water the limit halves; below the higher of the
// two low waters (share of maximum, share of committed), after a full
// batch, it doubles.
func (x *Controller) AdaptAfterBatch(fullBatch bool) {
	used := x.probe.InUse()
	high := x.probe.Max() / 100 * uint64(x.config.MemoryTotalUseHigh)

	if used > high {
		if x.batchLimit > 1 {
			x.batchLimit /= 2
			x.logger.Debug().
				Int(`limit`, x.batchLimit).
				Log(`batch limit halved`)
		}
		return
	}

	if !fullBatch {
		return
	}

	totalLow := x.probe.Max() / 100 * uint64(x.config.MemoryTotalUseLow)
	actualLow := x.probe.Committed() / 100 * uint64(x.config.MemoryActualUseLow)
	low := totalLow
	if actualLow > low {
		low = actualLow
	}

	if used < low && x.batchLimit < x.config.BatchLimitMaximum {
		x.batchLimit *= 2
		if x.batchLimit > x.config.BatchLimitMaximum {
			x.batchLimit = x.config.BatchLimitMaximum
		}
		x.logger.Debug().
			Int(`limit`, x.batchLimit).
			Log(`batch limit doubled`)
	}
}

// ScheduleUpdate defers an update until the given stamp.
func (x *Controller) ScheduleUpdate(at point.Stamp, v point.Value) {
	pending, _ := x.scheduled.Get(at)
	x.scheduled.Set(at, append(pending, v))
	x.scheduledCount++
}

// ScheduledCount returns the number of deferred updates.
func (x *Controller) ScheduledCount() int {
	return x.scheduledCount
}

// NextDue returns the stamp of the earliest deferred update.
func (x *Controller) NextDue() (point.Stamp, bool) {
	at, _, ok := x.scheduled.Min()
	return at, ok
}

// DueUpdates pops the deferred updates whose stamp has been reached, up to
// the batch limit, delivering each to the point cache on the way out.
func (x *Controller) DueUpdates(now point.Stamp) []point.Value {
	var due []point.Value
	for len(due) < x.batchLimit {
		at, pending, ok := x.scheduled.Min()
		if !ok || at > now {
			break
		}
		if room := x.batchLimit - len(due); len(pending) > room {
			x.scheduled.Set(at, pending[room:])
			pending = pending[:room]
		} else {
			x.scheduled.Delete(at)
		}
		for _, v := range pending {
			x.cache.AcceptUpdate(v)
		}
		x.scheduledCount -= len(pending)
		due = append(due, pending...)
	}
	return due
}

// TraceReceived appends a notice to the received trace stream.
func (x *Controller) TraceReceived(v point.Value) {
	x.received.Add(v)
}

// TraceSent appends an update to the sent trace stream.
func (x *Controller) TraceSent(v point.Value) {
	x.sent.Add(v)
}

// CommitTraces commits both trace streams.
func (x *Controller) CommitTraces() error {
	if err := x.received.Commit(); err != nil {
		return err
	}
	return x.sent.Commit()
}

// RollbackTraces discards the current batch's trace appends.
func (x *Controller) RollbackTraces() {
	x.received.Rollback()
	x.sent.Rollback()
}

// TrimCache enforces the cache size bound, between batches.
func (x *Controller) TrimCache() {
	x.cache.Trim()
}

// compile time assertion
var _ batch.Controller = (*Controller)(nil)

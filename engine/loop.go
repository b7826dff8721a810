package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"time"

	"github.com/joeycumines/logiface"

	"github.com/xapiens/rvpf-processor/batch"
	"github.com/xapiens/rvpf-processor/point"
	"github.com/xapiens/rvpf-processor/processor"
	"github.com/xapiens/rvpf-processor/store"
)

// SignalSender receives the service-level signals queued by behaviors,
// flushed after each successful batch.
type SignalSender interface {
	SendSignal(name, info string)
}

// Suspender lets the platform hold service suspension off while a batch is
// in flight.
type Suspender interface {
	DisableSuspend()
	EnableSuspend()
}

// Loop is the engine's service loop: fetch notices, run the batch phases,
// emit the updates, commit or roll back, adapt.
type Loop struct {
	logger       *logiface.Logger[logiface.Event]
	controller   *Controller
	receptionist store.Receptionist
	client       store.Client
	resolver     processor.Resolver
	signals      SignalSender
	suspend      Suspender
}

// LoopConfig wires a Loop.
type LoopConfig struct {
	// Controller is required.
	Controller *Controller

	// Receptionist is required.
	Receptionist store.Receptionist

	// Client is the downstream store; required.
	Client store.Client

	// Resolver is the definition arena; required.
	Resolver processor.Resolver

	// Signals is optional; without it queued signals are logged and dropped.
	Signals SignalSender

	// Suspend is optional.
	Suspend Suspender

	// Logger may be nil.
	Logger *logiface.Logger[logiface.Event]
}

// NewLoop wires the service loop. Missing required collaborators panic.
func NewLoop(c *LoopConfig) *Loop {
	if c == nil {
		panic(`engine: nil loop config`)
	}
	if c.Controller == nil {
		panic(`engine: nil controller`)
	}
	if c.Receptionist == nil {
		panic(`engine: nil receptionist`)
	}
	if c.Client == nil {
		panic(`engine: nil store client`)
	}
	if c.Resolver == nil {
		panic(`engine: nil resolver`)
	}
	return &Loop{
		logger:       c.Logger,
		controller:   c.Controller,
		receptionist: c.Receptionist,
		client:       c.Client,
		resolver:     c.Resolver,
		signals:      c.Signals,
		suspend:      c.Suspend,
	}
}

// Run processes batches until the context cancels, the notice stream ends,
// or a store failure requests a restart.
func (x *Loop) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := x.runOnce(ctx); err != nil {
			if errors.Is(err, io.EOF) {
				x.logger.Info().Log(`notice stream closed`)
				return nil
			}
			return err
		}
	}
}

// runOnce is one iteration: due updates, fetch, process, emit, adapt.
func (x *Loop) runOnce(ctx context.Context) error {
	stats := x.controller.Stats()
	now := x.controller.Now()

	if due := x.controller.DueUpdates(now); len(due) > 0 {
		if err := x.emitUpdates(ctx, due); err != nil {
			return err
		}
		if err := x.controller.CommitTraces(); err != nil {
			return err
		}
	}

	// block until notices arrive, the next scheduled update comes due, or
	// cancellation
	wait := time.Duration(-1)
	if at, ok := x.controller.NextDue(); ok {
		wait = at.Sub(now)
		if wait < 0 {
			wait = 0
		}
	}

	fetchStart := time.Now()
	notices, err := x.receptionist.Fetch(ctx, x.controller.BatchLimit(), wait)
	stats.AddReceptionTime(time.Since(fetchStart))
	if err != nil {
		return err
	}
	if len(notices) == 0 {
		return nil
	}

	stats.AddNoticesReceived(len(notices))
	fullBatch := len(notices) == x.controller.BatchLimit()

	if x.suspend != nil {
		x.suspend.DisableSuspend()
		defer x.suspend.EnableSuspend()
	}

	processStart := time.Now()
	b, ok, err := x.process(ctx, notices)
	if b != nil {
		defer b.Clear()
	}
	stats.AddProcessingTime(time.Since(processStart))

	if err != nil {
		x.controller.RollbackTraces()
		if rollbackErr := x.receptionist.Rollback(ctx); rollbackErr != nil {
			x.logger.Err().Err(rollbackErr).Log(`receptionist rollback failed`)
		}
		if errors.Is(err, processor.ErrStoreAccess) {
			x.logger.Err().Err(err).Log(`store access failed, requesting restart`)
			return err
		}
		return err
	}

	if !ok {
		// memory-limit retry: the notices return to the stream and the next
		// fetch uses the reduced limit
		x.controller.RollbackTraces()
		if err := x.receptionist.Rollback(ctx); err != nil {
			return err
		}
		x.controller.AdaptAfterBatch(false)
		return nil
	}

	if b != nil && len(b.Updates()) > 0 {
		updateStart := time.Now()
		err := x.emitUpdates(ctx, b.Updates())
		stats.AddUpdateTime(time.Since(updateStart))
		if err != nil {
			x.controller.RollbackTraces()
			if rollbackErr := x.receptionist.Rollback(ctx); rollbackErr != nil {
				x.logger.Err().Err(rollbackErr).Log(`receptionist rollback failed`)
			}
			return err
		}
	}

	if err := x.receptionist.Commit(ctx); err != nil {
		return fmt.Errorf(`engine: receptionist commit: %w`, err)
	}
	if err := x.controller.CommitTraces(); err != nil {
		return err
	}
	if b != nil {
		x.sendQueuedSignals(b)
	}

	stats.AddBatchesProcessed(1)
	x.controller.TrimCache()
	x.controller.AdaptAfterBatch(fullBatch)

	// hint the collector between batches; the working set just dropped
	runtime.GC()

	return nil
}

// process runs the four batch phases. The boolean reports whether the batch
// completed: a memory-limited batch returns false to be retried smaller. The
// caller clears the returned batch after emitting its updates and signals.
func (x *Loop) process(ctx context.Context, notices []point.Value) (*batch.Batch, bool, error) {
	b := x.controller.NewBatch(x.resolver, x.client)

	for _, n := range notices {
		x.controller.TraceReceived(n)
	}

	// the four phases, each bounded by memory-limit failures
	for _, phase := range [...]func(context.Context, *batch.Batch) error{
		func(_ context.Context, b *batch.Batch) error {
			if err := b.AcceptNotices(notices); err != nil {
				return err
			}
			b.FreezeNotices()
			return nil
		},
		x.setUpResults,
		x.prepareInputs,
		x.computeResults,
	} {
		if err := phase(ctx, b); err != nil {
			if errors.Is(err, processor.ErrMemoryLimit) {
				return x.memoryLimited(b, notices)
			}
			return b, false, err
		}
	}

	return b, true, nil
}

// memoryLimited resolves a memory-limit failure: with more than one notice
// the batch is retried at half size; a singleton notice is dropped.
func (x *Loop) memoryLimited(b *batch.Batch, notices []point.Value) (*batch.Batch, bool, error) {
	b.Clear()

	if len(notices) > 1 {
		x.controller.SetBatchLimit(len(notices) / 2)
		return nil, false, nil
	}

	x.logger.Warning().
		Stringer(`point`, notices[0].Point).
		Log(`notice dropped after repeated memory failures`)
	x.controller.Stats().AddNoticesDropped(1)
	return nil, true, nil
}

// setUpResults is phase 2: the trigger-side fixed point, then the triggers
// themselves, the recalc-latest fetch, and the result freeze.
func (x *Loop) setUpResults(ctx context.Context, b *batch.Batch) error {
	ceiling := x.controller.config.FixedPointCeiling

	for pass := 0; ; pass++ {
		if pass >= ceiling {
			return &processor.ServiceNotAvailableError{Name: `result set-up fixed point`}
		}

		settled := true
		for _, notice := range b.Notices() {
			if notice.IsRecalcTrigger() {
				continue
			}
			def, ok := x.resolver.Definition(notice.Point)
			if !ok {
				continue
			}
			for _, relation := range def.Results() {
				if !relation.Behavior().PrepareTrigger(notice, b) {
					settled = false
				}
			}
		}

		if settled && !b.HasPendingQueries() {
			break
		}
		if err := b.ProcessStoreQueries(ctx); err != nil {
			return err
		}
	}

	for _, notice := range b.Notices() {
		def, ok := x.resolver.Definition(notice.Point)
		if !ok {
			continue
		}
		if notice.IsRecalcTrigger() {
			NewRecalcBehavior(def).Trigger(notice, b)
			continue
		}
		// deletion notices participate too: the derived points reconsider
		// their results without the removed input
		for _, relation := range def.Results() {
			relation.Behavior().Trigger(notice, b)
		}
	}

	if err := x.recalcLatest(ctx, b); err != nil {
		return err
	}

	b.FreezeResults()
	return nil
}

// recalcLatest refetches the latest stored values of the flagged results'
// points and sets up results recomputing them.
func (x *Loop) recalcLatest(ctx context.Context, b *batch.Batch) error {
	flagged := b.RecalcLatestResults()
	if len(flagged) == 0 {
		return nil
	}

	for _, r := range flagged {
		def, ok := x.resolver.Definition(r.Point)
		if !ok || def.RecalcLatest() <= 0 {
			continue
		}
		b.AddStoreQuery(store.Query{
			Point:    r.Point,
			Interval: point.Before(r.Stamp),
			Reverse:  true,
			Limit:    def.RecalcLatest(),
		})
	}
	if err := b.ProcessStoreQueries(ctx); err != nil {
		return err
	}

	// every refetched value gets a result recomputing it
	for _, r := range flagged {
		def, ok := x.resolver.Definition(r.Point)
		if !ok || def.RecalcLatest() <= 0 {
			continue
		}
		values := b.PointValues(processor.Query{
			Point:    r.Point,
			Interval: point.Before(r.Stamp),
		})
		if n := def.RecalcLatest(); len(values) > n {
			values = values[len(values)-n:]
		}
		behavior := NewRecalcBehavior(def)
		for _, v := range values {
			b.SetUpResultValue(v.Stamp, def, behavior)
		}
	}
	return nil
}

// prepareInputs is phase 3: the select-side fixed point, the selects, and
// the fetched-result hint.
func (x *Loop) prepareInputs(ctx context.Context, b *batch.Batch) error {
	ceiling := x.controller.config.FixedPointCeiling

	for pass := 0; ; pass++ {
		if pass >= ceiling {
			return &processor.ServiceNotAvailableError{Name: `input preparation fixed point`}
		}

		settled := true
		for _, result := range b.ResultValues() {
			def, ok := x.resolver.Definition(result.Point)
			if !ok {
				continue
			}
			for _, relation := range def.Inputs() {
				if !relation.Behavior().PrepareSelect(result, b) {
					settled = false
				}
			}
		}

		if settled && !b.HasPendingQueries() {
			break
		}
		if err := b.ProcessStoreQueries(ctx); err != nil {
			return err
		}
	}

	for _, result := range b.ResultValues() {
		def, ok := x.resolver.Definition(result.Point)
		if !ok {
			b.DropResultValue(result)
			continue
		}
		selected := true
		for _, relation := range def.Inputs() {
			if !relation.Behavior().Select(result, b) {
				selected = false
				break
			}
		}
		if !selected {
			b.DropResultValue(result)
		}
	}

	// fetched-result hint: the transform wants the stored value at the
	// result stamp
	for _, result := range b.ResultValues() {
		def, ok := x.resolver.Definition(result.Point)
		if !ok || def.Transform() == nil || !def.Transform().UsesFetchedResult() {
			continue
		}
		if _, ok := b.PointValue(processor.Query{
			Point:    result.Point,
			Interval: point.At(result.Stamp),
		}); !ok {
			b.AddStoreQuery(store.Query{
				Point:    result.Point,
				Interval: point.At(result.Stamp),
				Limit:    1,
			})
		}
	}
	if b.HasPendingQueries() {
		return b.ProcessStoreQueries(ctx)
	}
	return nil
}

// computeResults is phase 4: every surviving result runs its transform, and
// the outcome becomes an update (or a deletion, or nothing).
func (x *Loop) computeResults(ctx context.Context, b *batch.Batch) error {
	stats := x.controller.Stats()

	for _, result := range b.ResultValues() {
		// cooperative cancellation between computations
		if err := ctx.Err(); err != nil {
			return processor.ErrInterrupted
		}

		def, ok := x.resolver.Definition(result.Point)
		if !ok || def.Transform() == nil {
			stats.AddResultsDropped(1)
			continue
		}
		transform := def.Transform()

		v, err := transform.ApplyTo(result, b)
		if err != nil {
			x.logger.Warning().
				Str(`point`, def.Name()).
				Err(err).
				Log(`transform failed, result dropped`)
			stats.AddResultsDropped(1)
			continue
		}
		if v == nil {
			// disabled update
			stats.AddResultsDropped(1)
			continue
		}

		update := *v
		if update.IsNull() && transform.NullRemoves(def) {
			update = update.Deleted()
		}
		b.AddUpdate(update)
	}
	return nil
}

// emitUpdates stages and sends the updates downstream, tracing each
// confirmed one.
func (x *Loop) emitUpdates(ctx context.Context, updates []point.Value) error {
	stats := x.controller.Stats()

	for _, u := range updates {
		x.client.AddUpdate(u)
	}
	results, err := x.client.SendUpdates(ctx)
	if err != nil {
		return &processor.StoreAccessError{Err: err}
	}

	for i, sendErr := range results {
		if i >= len(updates) {
			break
		}
		if sendErr != nil {
			x.logger.Err().
				Stringer(`point`, updates[i].Point).
				Err(sendErr).
				Log(`update refused by store`)
			stats.AddUpdatesDropped(1)
			continue
		}
		x.controller.TraceSent(updates[i])
		stats.AddUpdatesSent(1)
	}
	return nil
}

// sendQueuedSignals flushes the batch's queued signals.
func (x *Loop) sendQueuedSignals(b *batch.Batch) {
	for _, s := range b.Signals() {
		if x.signals != nil {
			x.signals.SendSignal(s.Name, s.Info)
			continue
		}
		x.logger.Debug().
			Str(`name`, s.Name).
			Str(`info`, s.Info).
			Log(`signal dropped, no sender`)
	}
}

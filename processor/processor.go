// Package processor defines the contracts between the processing engine and
// the point-definition metadata it consumes: the Batch surface offered to
// user-supplied code, the Behavior and Transform strategies attached to point
// relations, and the engine's error taxonomy.
package processor

import (
	"github.com/xapiens/rvpf-processor/point"
	"github.com/xapiens/rvpf-processor/store"
)

// Definition is the metadata of one point, as loaded by the platform. The
// engine treats definitions as immutable for the life of a batch.
type Definition interface {
	// ID returns the point's identifier.
	ID() point.ID

	// Name returns the point's display name, for logs.
	Name() string

	// Inputs returns the incoming relations: the points this point's
	// transform consumes.
	Inputs() []Relation

	// Results returns the outgoing relations: the derived points that
	// consume this point.
	Results() []Relation

	// Sync returns the expected cadence of the point, or nil.
	Sync() point.Sync

	// RecalcLatest returns how many of the point's latest values are
	// refetched and recomputed whenever a result is set up for the point;
	// zero disables the step.
	RecalcLatest() int

	// Resynchronized softens the severity of sync mismatches for this point.
	Resynchronized() bool

	// Transform returns the point's computation, or nil for pure inputs.
	Transform() Transform
}

// Relation links an input point to a result point and carries the Behavior
// driving the result's computation.
type Relation interface {
	// InputID returns the consumed point.
	InputID() point.ID

	// ResultID returns the derived point.
	ResultID() point.ID

	// Behavior returns the strategy attached to this relation.
	Behavior() Behavior
}

// Resolver looks up point definitions by identifier. Definitions live in a
// per-engine arena; values reference points by ID only.
type Resolver interface {
	Definition(id point.ID) (Definition, bool)
}

// Batch is the surface offered to Behaviors and Transforms. It is implemented
// by the engine's batch working set; all calls happen on the engine worker.
type Batch interface {
	// AddStoreQuery files a store query for the current phase. Duplicate
	// queries (same key) are filed once. The return reports whether the
	// query was newly filed.
	AddStoreQuery(q store.Query) bool

	// PointValue resolves a single value from the batch's in-memory maps.
	PointValue(q Query) (point.Value, bool)

	// PointValues resolves every matching value, in stamp order.
	PointValues(q Query) []point.Value

	// SetUpResultValue creates (or merges into) the result for a point at a
	// stamp, using the behavior to manufacture the concrete value. A nil
	// return means the result was refused (cutoff, self-trigger, conflict).
	SetUpResultValue(stamp point.Stamp, def Definition, behavior Behavior) *point.ResultValue

	// SetUpResultFromNotice is SetUpResultValue with self-trigger
	// suppression against the originating notice.
	SetUpResultFromNotice(notice point.Value, stamp point.Stamp, def Definition, behavior Behavior) *point.ResultValue

	// ReplaceResultValue substitutes a replaceable result with a fresh one
	// from the behavior. Non-replaceable results are returned unchanged.
	ReplaceResultValue(r *point.ResultValue, def Definition, behavior Behavior) *point.ResultValue

	// ResultValues returns the admitted results, in insertion order.
	ResultValues() []*point.ResultValue

	// DropResultValue removes a result from the batch, counting it dropped.
	DropResultValue(r *point.ResultValue)

	// QueueSignal queues a service-level signal, flushed after a successful
	// batch.
	QueueSignal(name, info string)

	// Resolver exposes the definition arena.
	Resolver() Resolver
}

// Query addresses the batch's in-memory maps: notice inputs first, then (when
// Polated) interpolated, extrapolated and synthesized values, in that
// priority order.
type Query struct {
	// Point identifies the queried point.
	Point point.ID

	// Interval restricts the stamps. An instant interval selects the
	// exact-match lookup; otherwise Reverse selects last-before semantics
	// against the interval's upper bound, and forward selects
	// first-at-or-after against the lower bound.
	Interval point.Interval

	// Reverse selects the last-before lookup.
	Reverse bool

	// NotNull rejects values with an absent payload.
	NotNull bool

	// Interpolated and Extrapolated extend the lookup to the corresponding
	// synthesized maps. Polated extends to all of them.
	Interpolated bool
	Extrapolated bool
	Polated      bool

	// Sync rejects values off the cadence lattice and, combined with an
	// interval and Polated, drives gap filling in PointValues.
	Sync point.Sync
}

// Behavior is the per-relation strategy consumed by the engine: it prepares
// and performs the transition from a notice to result values (trigger side)
// and from result values to their inputs (select side).
type Behavior interface {
	// PrepareTrigger returns true when no further store lookups are needed
	// for this notice; it may file batch store queries and is called again
	// after each store round trip, until it settles.
	PrepareTrigger(notice point.Value, batch Batch) bool

	// Trigger manufactures (or updates) result values for the notice.
	Trigger(notice point.Value, batch Batch)

	// PrepareSelect is the select-side analog of PrepareTrigger, for one
	// result value.
	PrepareSelect(result *point.ResultValue, batch Batch) bool

	// Select collects the result's inputs; returning false drops the result.
	Select(result *point.ResultValue, batch Batch) bool

	// NewResultValue manufactures the concrete result value for a stamp.
	NewResultValue(stamp point.Stamp) *point.ResultValue

	// IsResultFetched reports whether the notice already carries the
	// result's fetched value.
	IsResultFetched(notice point.Value, result *point.ResultValue) bool
}

// Transform is the per-point computation producing an update from a result's
// collected inputs.
type Transform interface {
	// ApplyTo computes the result. A nil value with a nil error disables the
	// update.
	ApplyTo(result *point.ResultValue, batch Batch) (*point.Value, error)

	// UsesFetchedResult asks the engine to fetch the value at the result's
	// stamp before computing.
	UsesFetchedResult() bool

	// NullRemoves maps a null computed payload to a deletion update for the
	// point.
	NullRemoves(def Definition) bool
}

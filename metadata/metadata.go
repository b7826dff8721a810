// Package metadata provides a concrete, in-memory implementation of the
// point-definition contracts: a per-engine arena of definitions indexed by
// point ID, with relations linking input points to the derived points that
// consume them. Values reference points by ID only; the arena owns the
// definitions.
package metadata

import (
	"github.com/xapiens/rvpf-processor/point"
	"github.com/xapiens/rvpf-processor/processor"
)

// Point is a concrete processor.Definition.
type Point struct {
	id             point.ID
	name           string
	sync           point.Sync
	recalcLatest   int
	resynchronized bool
	transform      processor.Transform
	inputs         []processor.Relation
	results        []processor.Relation
}

// NewPoint returns a definition for the given identifier and name.
func NewPoint(id point.ID, name string) *Point {
	return &Point{id: id, name: name}
}

func (x *Point) ID() point.ID { return x.id }
func (x *Point) Name() string { return x.name }
func (x *Point) Inputs() []processor.Relation { return x.inputs }
func (x *Point) Results() []processor.Relation { return x.results }
func (x *Point) Sync() point.Sync { return x.sync }
func (x *Point) RecalcLatest() int { return x.recalcLatest }
func (x *Point) Resynchronized() bool { return x.resynchronized }
func (x *Point) Transform() processor.Transform {
	return x.transform
}

// WithSync sets the point's expected cadence.
func (x *Point) WithSync(sync point.Sync) *Point {
	x.sync = sync
	return x
}

// WithTransform sets the point's computation.
func (x *Point) WithTransform(transform processor.Transform) *Point {
	x.transform = transform
	return x
}

// WithRecalcLatest enables the recalc-latest fetch step for the point.
func (x *Point) WithRecalcLatest(count int) *Point {
	x.recalcLatest = count
	return x
}

// WithResynchronized softens sync-mismatch severity for the point.
func (x *Point) WithResynchronized() *Point {
	x.resynchronized = true
	return x
}

// Relation is a concrete processor.Relation.
type Relation struct {
	input    point.ID
	result   point.ID
	behavior processor.Behavior
}

func (x *Relation) InputID() point.ID { return x.input }
func (x *Relation) ResultID() point.ID { return x.result }
func (x *Relation) Behavior() processor.Behavior { return x.behavior }

// Registry is the definition arena, a processor.Resolver.
type Registry struct {
	points map[point.ID]*Point
}

// NewRegistry returns an empty arena.
func NewRegistry() *Registry {
	return &Registry{points: make(map[point.ID]*Point)}
}

// Add files a definition, replacing any previous one for the same ID.
func (x *Registry) Add(p *Point) *Registry {
	x.points[p.id] = p
	return x
}

// Relate links an input point to a result point under the given behavior.
// Both points must already be filed.
func (x *Registry) Relate(input, result point.ID, behavior processor.Behavior) *Registry {
	in, ok := x.points[input]
	if !ok {
		panic(`metadata: unknown input point`)
	}
	out, ok := x.points[result]
	if !ok {
		panic(`metadata: unknown result point`)
	}
	relation := &Relation{input: input, result: result, behavior: behavior}
	in.results = append(in.results, relation)
	out.inputs = append(out.inputs, relation)
	return x
}

// Definition implements processor.Resolver.
func (x *Registry) Definition(id point.ID) (processor.Definition, bool) {
	p, ok := x.points[id]
	if !ok {
		return nil, false
	}
	return p, true
}

// compile time assertions
var (
	_ processor.Definition = (*Point)(nil)
	_ processor.Relation   = (*Relation)(nil)
	_ processor.Resolver   = (*Registry)(nil)
)

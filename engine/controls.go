package engine

import (
	"context"
	"strconv"
	"time"

	"github.com/joeycumines/logiface"

	"github.com/xapiens/rvpf-processor/cache"
	"github.com/xapiens/rvpf-processor/point"
	"github.com/xapiens/rvpf-processor/processor"
	"github.com/xapiens/rvpf-processor/store"
)

// CutoffControl gates the admission of new result values on a minimum stamp.
// An unset control admits everything.
type CutoffControl struct {
	stamp point.Stamp
	set   bool
}

// Verify returns true when the value may be admitted.
func (x *CutoffControl) Verify(v point.Value) bool {
	return !x.set || v.Stamp >= x.stamp
}

// Set pins the cutoff.
func (x *CutoffControl) Set(s point.Stamp) {
	x.stamp = s
	x.set = true
}

// Unset clears the cutoff.
func (x *CutoffControl) Unset() {
	x.set = false
}

// Stamp returns the cutoff, when set.
func (x *CutoffControl) Stamp() (point.Stamp, bool) {
	return x.stamp, x.set
}

// Controls drives the cutoff and filter controls from their external control
// points. Refresh is called at start-up and on every services-not-ready
// event.
type Controls struct {
	logger *logiface.Logger[logiface.Event]
	client store.Client
	cache  *cache.Cache

	cutoffPoint point.ID
	filterPoint point.ID

	cutoff CutoffControl
}

// NewControls wires the controls. Either control point may be zero,
// disabling that control.
func NewControls(client store.Client, c *cache.Cache, cutoffPoint, filterPoint point.ID, logger *logiface.Logger[logiface.Event]) *Controls {
	return &Controls{
		logger:      logger,
		client:      client,
		cache:       c,
		cutoffPoint: cutoffPoint,
		filterPoint: filterPoint,
	}
}

// Cutoff returns the cutoff control.
func (x *Controls) Cutoff() *CutoffControl {
	return &x.cutoff
}

// Refresh re-reads both control points. Store failures surface as a
// service-not-available error.
func (x *Controls) Refresh(ctx context.Context) error {
	if x == nil || x.client == nil {
		return nil
	}

	var queries []store.Query
	if !x.cutoffPoint.IsZero() {
		queries = append(queries, store.Query{
			Point:    x.cutoffPoint,
			Interval: point.Before(point.StampMax),
			Reverse:  true,
			Limit:    1,
		})
	}
	if !x.filterPoint.IsZero() {
		queries = append(queries, store.Query{
			Point:    x.filterPoint,
			Interval: point.Before(point.StampMax),
			Reverse:  true,
			Limit:    1,
		})
	}
	if len(queries) == 0 {
		return nil
	}

	responses, err := x.client.Select(ctx, queries)
	if err != nil {
		return &processor.ServiceNotAvailableError{Name: `control points`, Err: err}
	}

	for _, r := range responses {
		switch r.Query.Point {
		case x.cutoffPoint:
			x.refreshCutoff(r)
		case x.filterPoint:
			x.refreshFilter(r)
		}
	}
	return nil
}

// refreshCutoff parses the control value as a wall-clock reading in
// milliseconds; an absent or unparseable value unsets the cutoff.
func (x *Controls) refreshCutoff(r *store.Response) {
	if len(r.Values) == 0 {
		x.cutoff.Unset()
		return
	}
	millis, ok := asMillis(r.Values[0].Payload)
	if !ok {
		x.logger.Warning().
			Stringer(`point`, x.cutoffPoint).
			Field(`payload`, r.Values[0].Payload).
			Log(`unusable cutoff control value`)
		x.cutoff.Unset()
		return
	}
	x.cutoff.Set(point.Stamp(millis * int64(time.Millisecond)))
	x.logger.Info().
		Stringer(`cutoff`, point.Stamp(millis*int64(time.Millisecond))).
		Log(`cutoff control updated`)
}

func (x *Controls) refreshFilter(r *store.Response) {
	filtered := false
	if len(r.Values) > 0 {
		filtered = asBool(r.Values[0].Payload)
	}
	x.cache.SetUpdatesFiltered(filtered)
	x.logger.Info().
		Bool(`filtered`, filtered).
		Log(`filter control updated`)
}

func asMillis(payload any) (int64, bool) {
	switch v := payload.(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		return int64(v), true
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}

func asBool(payload any) bool {
	switch v := payload.(type) {
	case bool:
		return v
	case string:
		b, err := strconv.ParseBool(v)
		return b && err == nil
	case int64:
		return v != 0
	case float64:
		return v != 0
	default:
		return false
	}
}

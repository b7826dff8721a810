// Package stats tracks the engine's counters: monotonic integers and
// nanosecond accumulators updated from the processing worker and observed
// from any goroutine.
package stats

import (
	"sync/atomic"
	"time"
)

// Stats is the set of engine counters. All methods are safe for concurrent
// use; reads never block the worker.
type Stats struct {
	batchesProcessed atomic.Int64

	noticesReceived atomic.Int64
	noticesDropped  atomic.Int64

	queriesPrepared atomic.Int64
	queriesSent     atomic.Int64
	valuesReceived  atomic.Int64
	cacheHits       atomic.Int64

	cacheEntriesAdded   atomic.Int64
	cacheEntriesRemoved atomic.Int64
	cacheValuesAdded    atomic.Int64
	cacheValuesUpdated  atomic.Int64
	cacheValuesRemoved  atomic.Int64

	resultsPrepared atomic.Int64
	resultsDropped  atomic.Int64
	cutoffResults   atomic.Int64

	updatesSent    atomic.Int64
	updatesDropped atomic.Int64

	processingTime atomic.Int64 // nanoseconds
	receptionTime  atomic.Int64
	updateTime     atomic.Int64
}

// New returns zeroed Stats.
func New() *Stats {
	return &Stats{}
}

func (x *Stats) AddBatchesProcessed(n int)    { x.batchesProcessed.Add(int64(n)) }
func (x *Stats) AddNoticesReceived(n int)     { x.noticesReceived.Add(int64(n)) }
func (x *Stats) AddNoticesDropped(n int)      { x.noticesDropped.Add(int64(n)) }
func (x *Stats) AddQueriesPrepared(n int)     { x.queriesPrepared.Add(int64(n)) }
func (x *Stats) AddQueriesSent(n int)         { x.queriesSent.Add(int64(n)) }
func (x *Stats) AddValuesReceived(n int)      { x.valuesReceived.Add(int64(n)) }
func (x *Stats) AddCacheHits(n int)           { x.cacheHits.Add(int64(n)) }
func (x *Stats) AddCacheEntriesAdded(n int)   { x.cacheEntriesAdded.Add(int64(n)) }
func (x *Stats) AddCacheEntriesRemoved(n int) { x.cacheEntriesRemoved.Add(int64(n)) }
func (x *Stats) AddCacheValuesAdded(n int)    { x.cacheValuesAdded.Add(int64(n)) }
func (x *Stats) AddCacheValuesUpdated(n int)  { x.cacheValuesUpdated.Add(int64(n)) }
func (x *Stats) AddCacheValuesRemoved(n int)  { x.cacheValuesRemoved.Add(int64(n)) }
func (x *Stats) AddResultsPrepared(n int)     { x.resultsPrepared.Add(int64(n)) }
func (x *Stats) AddResultsDropped(n int)      { x.resultsDropped.Add(int64(n)) }
func (x *Stats) AddCutoffResults(n int)       { x.cutoffResults.Add(int64(n)) }
func (x *Stats) AddUpdatesSent(n int)         { x.updatesSent.Add(int64(n)) }
func (x *Stats) AddUpdatesDropped(n int)      { x.updatesDropped.Add(int64(n)) }

func (x *Stats) AddProcessingTime(d time.Duration) { x.processingTime.Add(int64(d)) }
func (x *Stats) AddReceptionTime(d time.Duration)  { x.receptionTime.Add(int64(d)) }
func (x *Stats) AddUpdateTime(d time.Duration)     { x.updateTime.Add(int64(d)) }

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	BatchesProcessed int64

	NoticesReceived int64
	NoticesDropped  int64

	QueriesPrepared int64
	QueriesSent     int64
	ValuesReceived  int64
	CacheHits       int64

	CacheEntriesAdded   int64
	CacheEntriesRemoved int64
	CacheValuesAdded    int64
	CacheValuesUpdated  int64
	CacheValuesRemoved  int64

	ResultsPrepared int64
	ResultsDropped  int64
	CutoffResults   int64

	UpdatesSent    int64
	UpdatesDropped int64

	ProcessingTime time.Duration
	ReceptionTime  time.Duration
	UpdateTime     time.Duration
}

// Snapshot returns a point-in-time copy of the counters.
func (x *Stats) Snapshot() Snapshot {
	return Snapshot{
		BatchesProcessed:    x.batchesProcessed.Load(),
		NoticesReceived:     x.noticesReceived.Load(),
		NoticesDropped:      x.noticesDropped.Load(),
		QueriesPrepared:     x.queriesPrepared.Load(),
		QueriesSent:         x.queriesSent.Load(),
		ValuesReceived:      x.valuesReceived.Load(),
		CacheHits:           x.cacheHits.Load(),
		CacheEntriesAdded:   x.cacheEntriesAdded.Load(),
		CacheEntriesRemoved: x.cacheEntriesRemoved.Load(),
		CacheValuesAdded:    x.cacheValuesAdded.Load(),
		CacheValuesUpdated:  x.cacheValuesUpdated.Load(),
		CacheValuesRemoved:  x.cacheValuesRemoved.Load(),
		ResultsPrepared:     x.resultsPrepared.Load(),
		ResultsDropped:      x.resultsDropped.Load(),
		CutoffResults:       x.cutoffResults.Load(),
		UpdatesSent:         x.updatesSent.Load(),
		UpdatesDropped:      x.updatesDropped.Load(),
		ProcessingTime:      time.Duration(x.processingTime.Load()),
		ReceptionTime:       time.Duration(x.receptionTime.Load()),
		UpdateTime:          time.Duration(x.updateTime.Load()),
	}
}

// Delta returns the difference between this snapshot and an earlier one, for
// interval reporting.
func (x Snapshot) Delta(prev Snapshot) Snapshot {
	return Snapshot{
		BatchesProcessed:    x.BatchesProcessed - prev.BatchesProcessed,
		NoticesReceived:     x.NoticesReceived - prev.NoticesReceived,
		NoticesDropped:      x.NoticesDropped - prev.NoticesDropped,
		QueriesPrepared:     x.QueriesPrepared - prev.QueriesPrepared,
		QueriesSent:         x.QueriesSent - prev.QueriesSent,
		ValuesReceived:      x.ValuesReceived - prev.ValuesReceived,
		CacheHits:           x.CacheHits - prev.CacheHits,
		CacheEntriesAdded:   x.CacheEntriesAdded - prev.CacheEntriesAdded,
		CacheEntriesRemoved: x.CacheEntriesRemoved - prev.CacheEntriesRemoved,
		CacheValuesAdded:    x.CacheValuesAdded - prev.CacheValuesAdded,
		CacheValuesUpdated:  x.CacheValuesUpdated - prev.CacheValuesUpdated,
		CacheValuesRemoved:  x.CacheValuesRemoved - prev.CacheValuesRemoved,
		ResultsPrepared:     x.ResultsPrepared - prev.ResultsPrepared,
		ResultsDropped:      x.ResultsDropped - prev.ResultsDropped,
		CutoffResults:       x.CutoffResults - prev.CutoffResults,
		UpdatesSent:         x.UpdatesSent - prev.UpdatesSent,
		UpdatesDropped:      x.UpdatesDropped - prev.UpdatesDropped,
		ProcessingTime:      x.ProcessingTime - prev.ProcessingTime,
		ReceptionTime:       x.ReceptionTime - prev.ReceptionTime,
		UpdateTime:          x.UpdateTime - prev.UpdateTime,
	}
}

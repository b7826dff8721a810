package stats

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector adapts Stats to a prometheus.Collector.
type Collector struct {
	stats *Stats

	descs []desc
}

type desc struct {
	desc    *prometheus.Desc
	kind    prometheus.ValueType
	extract func(Snapshot) float64
}

// NewCollector returns a Collector over the given Stats.
func NewCollector(stats *Stats) *Collector {
	if stats == nil {
		panic(`stats: nil stats`)
	}
	counter := func(name, help string, extract func(Snapshot) float64) desc {
		return desc{
			desc:    prometheus.NewDesc(name, help, nil, nil),
			kind:    prometheus.CounterValue,
			extract: extract,
		}
	}
	return &Collector{
		stats: stats,
		descs: []desc{
			counter(`processor_batches_total`, `batches processed`,
				func(s Snapshot) float64 { return float64(s.BatchesProcessed) }),
			counter(`processor_notices_received_total`, `notices received`,
				func(s Snapshot) float64 { return float64(s.NoticesReceived) }),
			counter(`processor_notices_dropped_total`, `notices dropped`,
				func(s Snapshot) float64 { return float64(s.NoticesDropped) }),
			counter(`processor_queries_prepared_total`, `store queries prepared`,
				func(s Snapshot) float64 { return float64(s.QueriesPrepared) }),
			counter(`processor_queries_sent_total`, `store queries sent`,
				func(s Snapshot) float64 { return float64(s.QueriesSent) }),
			counter(`processor_values_received_total`, `values received from stores`,
				func(s Snapshot) float64 { return float64(s.ValuesReceived) }),
			counter(`processor_cache_hits_total`, `store queries satisfied by the point cache`,
				func(s Snapshot) float64 { return float64(s.CacheHits) }),
			counter(`processor_cache_entries_added_total`, `point cache entries added`,
				func(s Snapshot) float64 { return float64(s.CacheEntriesAdded) }),
			counter(`processor_cache_entries_removed_total`, `point cache entries removed`,
				func(s Snapshot) float64 { return float64(s.CacheEntriesRemoved) }),
			counter(`processor_cache_values_added_total`, `point cache values added`,
				func(s Snapshot) float64 { return float64(s.CacheValuesAdded) }),
			counter(`processor_cache_values_updated_total`, `point cache values updated`,
				func(s Snapshot) float64 { return float64(s.CacheValuesUpdated) }),
			counter(`processor_cache_values_removed_total`, `point cache values removed`,
				func(s Snapshot) float64 { return float64(s.CacheValuesRemoved) }),
			counter(`processor_results_prepared_total`, `result values prepared`,
				func(s Snapshot) float64 { return float64(s.ResultsPrepared) }),
			counter(`processor_results_dropped_total`, `result values dropped`,
				func(s Snapshot) float64 { return float64(s.ResultsDropped) }),
			counter(`processor_results_cutoff_total`, `result values blocked by the cutoff`,
				func(s Snapshot) float64 { return float64(s.CutoffResults) }),
			counter(`processor_updates_sent_total`, `updates sent downstream`,
				func(s Snapshot) float64 { return float64(s.UpdatesSent) }),
			counter(`processor_updates_dropped_total`, `updates dropped`,
				func(s Snapshot) float64 { return float64(s.UpdatesDropped) }),
			counter(`processor_processing_seconds_total`, `time spent processing batches`,
				func(s Snapshot) float64 { return s.ProcessingTime.Seconds() }),
			counter(`processor_reception_seconds_total`, `time spent fetching notices`,
				func(s Snapshot) float64 { return s.ReceptionTime.Seconds() }),
			counter(`processor_update_seconds_total`, `time spent sending updates`,
				func(s Snapshot) float64 { return s.UpdateTime.Seconds() }),
		},
	}
}

// Describe implements prometheus.Collector.
func (x *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range x.descs {
		ch <- d.desc
	}
}

// Collect implements prometheus.Collector.
func (x *Collector) Collect(ch chan<- prometheus.Metric) {
	snapshot := x.stats.Snapshot()
	for _, d := range x.descs {
		ch <- prometheus.MustNewConstMetric(d.desc, d.kind, d.extract(snapshot))
	}
}

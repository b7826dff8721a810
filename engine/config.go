// Package engine implements the processing engine proper: the batch
// controller with its memory discipline and scheduled updates, the cutoff and
// filter controls, the processor loop running the per-batch phases, and the
// service wiring.
package engine

import (
	"fmt"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config carries the engine configuration. The zero value is not usable;
// apply DefaultConfig or FromViper.
type Config struct {
	// CacheDisabled turns the point cache off.
	CacheDisabled bool

	// CacheSize bounds the number of cached points. Default 1000.
	CacheSize int

	// CacheBoost is the trim-survival boost of fresh cache values.
	// Default 10.
	CacheBoost int

	// CacheUpdatesFiltered suppresses updates identical to the cached value.
	CacheUpdatesFiltered bool

	// BatchLimitInitial is the starting batch limit. Default 1000.
	BatchLimitInitial int

	// BatchLimitMaximum caps the adaptive batch limit. Default 5000.
	BatchLimitMaximum int

	// MemoryTotalUseLow is the percentage of maximum memory below which a
	// full batch doubles the limit. Default 5.
	MemoryTotalUseLow int

	// MemoryTotalUseHigh is the percentage of maximum memory above which the
	// limit is halved. Default 50.
	MemoryTotalUseHigh int

	// MemoryTotalUseMaximum is the percentage of maximum memory above which
	// the current batch is aborted. Default 75.
	MemoryTotalUseMaximum int

	// MemoryActualUseLow is the percentage of currently committed memory
	// below which a full batch doubles the limit. Default 25.
	MemoryActualUseLow int

	// Resynchronizes relaxes notice acceptance for points without results.
	Resynchronizes bool

	// TracesEnabled persists the received/sent trace streams.
	TracesEnabled bool

	// TracesDir is the data directory of the trace streams.
	// Default "traces".
	TracesDir string

	// FixedPointCeiling bounds the set-up and prepare fixed-point passes per
	// batch; exceeding it surfaces a service error. Default 100.
	FixedPointCeiling int
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		CacheSize:             1000,
		CacheBoost:            10,
		BatchLimitInitial:     1000,
		BatchLimitMaximum:     5000,
		MemoryTotalUseLow:     5,
		MemoryTotalUseHigh:    50,
		MemoryTotalUseMaximum: 75,
		MemoryActualUseLow:    25,
		TracesDir:             `traces`,
		FixedPointCeiling:     100,
	}
}

// Validate refuses configurations the engine cannot start with.
func (x Config) Validate() error {
	if x.CacheSize <= 0 {
		return fmt.Errorf(`engine: cache size must be positive: %d`, x.CacheSize)
	}
	if x.CacheBoost < 0 {
		return fmt.Errorf(`engine: cache boost must not be negative: %d`, x.CacheBoost)
	}
	if x.BatchLimitInitial <= 0 {
		return fmt.Errorf(`engine: initial batch limit must be positive: %d`, x.BatchLimitInitial)
	}
	if x.BatchLimitMaximum < x.BatchLimitInitial {
		return fmt.Errorf(`engine: maximum batch limit %d below initial %d`,
			x.BatchLimitMaximum, x.BatchLimitInitial)
	}
	for _, p := range [...]struct {
		name  string
		value int
	}{
		{`memory.total.use.low`, x.MemoryTotalUseLow},
		{`memory.total.use.high`, x.MemoryTotalUseHigh},
		{`memory.total.use.maximum`, x.MemoryTotalUseMaximum},
		{`memory.actual.use.low`, x.MemoryActualUseLow},
	} {
		if p.value <= 0 || p.value > 100 {
			return fmt.Errorf(`engine: %s must be a percentage in (0, 100]: %d`, p.name, p.value)
		}
	}
	if x.MemoryTotalUseHigh > x.MemoryTotalUseMaximum {
		return fmt.Errorf(`engine: memory high water %d above maximum %d`,
			x.MemoryTotalUseHigh, x.MemoryTotalUseMaximum)
	}
	if x.TracesEnabled && x.TracesDir == `` {
		return fmt.Errorf(`engine: traces enabled without a data directory`)
	}
	if x.FixedPointCeiling <= 0 {
		return fmt.Errorf(`engine: fixed point ceiling must be positive: %d`, x.FixedPointCeiling)
	}
	return nil
}

// AddFlags binds the configuration to command line flags.
func (x *Config) AddFlags(flags *pflag.FlagSet) {
	flags.BoolVar(&x.CacheDisabled, `cache-disabled`, x.CacheDisabled, `Disable the point cache.`)
	flags.IntVar(&x.CacheSize, `cache-size`, x.CacheSize, `Maximum number of cached points.`)
	flags.IntVar(&x.CacheBoost, `cache-boost`, x.CacheBoost, `Trim-survival boost of fresh cache values.`)
	flags.BoolVar(&x.CacheUpdatesFiltered, `cache-updates-filtered`, x.CacheUpdatesFiltered, `Suppress updates identical to the cached value.`)
	flags.IntVar(&x.BatchLimitInitial, `batch-limit-initial`, x.BatchLimitInitial, `Initial batch limit.`)
	flags.IntVar(&x.BatchLimitMaximum, `batch-limit-maximum`, x.BatchLimitMaximum, `Maximum batch limit.`)
	flags.IntVar(&x.MemoryTotalUseLow, `memory-total-use-low`, x.MemoryTotalUseLow, `Low water of maximum memory, percent.`)
	flags.IntVar(&x.MemoryTotalUseHigh, `memory-total-use-high`, x.MemoryTotalUseHigh, `High water of maximum memory, percent.`)
	flags.IntVar(&x.MemoryTotalUseMaximum, `memory-total-use-maximum`, x.MemoryTotalUseMaximum, `Abort threshold of maximum memory, percent.`)
	flags.IntVar(&x.MemoryActualUseLow, `memory-actual-use-low`, x.MemoryActualUseLow, `Low water of committed memory, percent.`)
	flags.BoolVar(&x.Resynchronizes, `resynchronizes`, x.Resynchronizes, `Accept notices for points without results.`)
	flags.BoolVar(&x.TracesEnabled, `traces-enabled`, x.TracesEnabled, `Persist the received/sent trace streams.`)
	flags.StringVar(&x.TracesDir, `traces-dir`, x.TracesDir, `Data directory of the trace streams.`)
}

// configDefaults binds the configuration keys to their defaults.
func configDefaults(v *viper.Viper) {
	defaults := DefaultConfig()
	v.SetDefault(`cache.disabled`, defaults.CacheDisabled)
	v.SetDefault(`cache.size`, defaults.CacheSize)
	v.SetDefault(`cache.boost`, defaults.CacheBoost)
	v.SetDefault(`cache.updates.filtered`, defaults.CacheUpdatesFiltered)
	v.SetDefault(`batch.limit.initial`, defaults.BatchLimitInitial)
	v.SetDefault(`batch.limit.maximum`, defaults.BatchLimitMaximum)
	v.SetDefault(`memory.total.use.low`, defaults.MemoryTotalUseLow)
	v.SetDefault(`memory.total.use.high`, defaults.MemoryTotalUseHigh)
	v.SetDefault(`memory.total.use.maximum`, defaults.MemoryTotalUseMaximum)
	v.SetDefault(`memory.actual.use.low`, defaults.MemoryActualUseLow)
	v.SetDefault(`resynchronizes`, defaults.Resynchronizes)
	v.SetDefault(`traces.enabled`, defaults.TracesEnabled)
	v.SetDefault(`traces.dir`, defaults.TracesDir)
	v.SetDefault(`fixed.point.ceiling`, defaults.FixedPointCeiling)
}

// FromViper loads and validates the configuration.
func FromViper(v *viper.Viper) (Config, error) {
	configDefaults(v)
	config := Config{
		CacheDisabled:         v.GetBool(`cache.disabled`),
		CacheSize:             v.GetInt(`cache.size`),
		CacheBoost:            v.GetInt(`cache.boost`),
		CacheUpdatesFiltered:  v.GetBool(`cache.updates.filtered`),
		BatchLimitInitial:     v.GetInt(`batch.limit.initial`),
		BatchLimitMaximum:     v.GetInt(`batch.limit.maximum`),
		MemoryTotalUseLow:     v.GetInt(`memory.total.use.low`),
		MemoryTotalUseHigh:    v.GetInt(`memory.total.use.high`),
		MemoryTotalUseMaximum: v.GetInt(`memory.total.use.maximum`),
		MemoryActualUseLow:    v.GetInt(`memory.actual.use.low`),
		Resynchronizes:        v.GetBool(`resynchronizes`),
		TracesEnabled:         v.GetBool(`traces.enabled`),
		TracesDir:             v.GetString(`traces.dir`),
		FixedPointCeiling:     v.GetInt(`fixed.point.ceiling`),
	}
	if err := config.Validate(); err != nil {
		return Config{}, err
	}
	return config, nil
}

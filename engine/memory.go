package engine

import (
	"runtime"

	"github.com/KimMachineGun/automemlimit/memlimit"
	"github.com/pbnjay/memory"
)

// MemoryProbe provides the readings behind the memory discipline. The
// percentages of Config apply to Max (the memory this process may use at
// most) and Committed (the memory the runtime has claimed so far).
type MemoryProbe interface {
	// InUse returns the heap bytes currently in use.
	InUse() uint64

	// Committed returns the bytes the runtime has obtained from the system.
	Committed() uint64

	// Max returns the maximum available memory.
	Max() uint64
}

// runtimeProbe reads the Go runtime, throttling the relatively expensive
// ReadMemStats: insertions probe memory constantly, and readings a few
// hundred allocations apart are close enough for water marks.
type runtimeProbe struct {
	max     uint64
	calls   int
	inUse   uint64
	claimed uint64
}

// probeEvery is the refresh cadence of runtimeProbe, in calls.
const probeEvery = 256

// NewRuntimeProbe returns a MemoryProbe over the Go runtime. The maximum is
// the cgroup memory limit when one applies, the total system memory
// otherwise.
func NewRuntimeProbe() MemoryProbe {
	max, err := memlimit.FromCgroupHybrid()
	if err != nil || max == 0 {
		max = memory.TotalMemory()
	}
	return &runtimeProbe{max: max}
}

func (x *runtimeProbe) refresh() {
	if x.calls%probeEvery == 0 {
		var m runtime.MemStats
		runtime.ReadMemStats(&m)
		x.inUse = m.HeapInuse
		x.claimed = m.HeapSys
	}
	x.calls++
}

func (x *runtimeProbe) InUse() uint64 {
	x.refresh()
	return x.inUse
}

func (x *runtimeProbe) Committed() uint64 {
	x.refresh()
	return x.claimed
}

func (x *runtimeProbe) Max() uint64 {
	return x.max
}

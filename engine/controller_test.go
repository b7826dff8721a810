package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xapiens/rvpf-processor/point"
	"github.com/xapiens/rvpf-processor/processor"
)

func newTestController(t *testing.T, config Config, probe *fakeProbe) *Controller {
	t.Helper()
	c, err := NewController(&ControllerConfig{
		Config: config,
		Probe:  probe,
		Clock:  func() point.Stamp { return 0 },
	})
	require.NoError(t, err)
	return c
}

func TestController_VerifyMemory(t *testing.T) {
	probe := newFakeProbe()
	c := newTestController(t, DefaultConfig(), probe)

	require.NoError(t, c.VerifyMemory(100))

	// abort cap is 75% of 1000
	probe.inUse = 800
	err := c.VerifyMemory(100)
	require.ErrorIs(t, err, processor.ErrMemoryLimit)

	// the next limit is sized from the aborted batch
	assert.Equal(t, 10, c.BatchLimit())

	// and never below one
	probe.inUse = 800
	_ = c.VerifyMemory(3)
	assert.Equal(t, 1, c.BatchLimit())
}

func TestController_AdaptAfterBatch(t *testing.T) {
	probe := newFakeProbe()
	config := DefaultConfig()
	config.BatchLimitInitial = 100
	config.BatchLimitMaximum = 400
	c := newTestController(t, config, probe)

	// above the high water (50% of 1000) the limit halves
	probe.inUse = 600
	c.AdaptAfterBatch(false)
	assert.Equal(t, 50, c.BatchLimit())

	// quiet memory after a partial batch changes nothing
	probe.inUse = 10
	c.AdaptAfterBatch(false)
	assert.Equal(t, 50, c.BatchLimit())

	// quiet memory after a full batch doubles, up to the maximum
	c.AdaptAfterBatch(true)
	assert.Equal(t, 100, c.BatchLimit())
	c.AdaptAfterBatch(true)
	c.AdaptAfterBatch(true)
	c.AdaptAfterBatch(true)
	assert.Equal(t, 400, c.BatchLimit())

	// the committed-memory low water can relax the gate: in-use above the
	// total low water blocks doubling while little is committed, but a
	// larger committed footprint raises the effective low water
	c.SetBatchLimit(100)
	probe.inUse = 60
	probe.committed = 100
	c.AdaptAfterBatch(true)
	assert.Equal(t, 100, c.BatchLimit())

	probe.committed = 1000
	c.AdaptAfterBatch(true)
	assert.Equal(t, 200, c.BatchLimit())
}

func TestController_SetBatchLimit_Clamps(t *testing.T) {
	c := newTestController(t, DefaultConfig(), newFakeProbe())

	c.SetBatchLimit(0)
	assert.Equal(t, 1, c.BatchLimit())

	c.SetBatchLimit(100000)
	assert.Equal(t, DefaultConfig().BatchLimitMaximum, c.BatchLimit())
}

func TestController_ScheduledUpdates(t *testing.T) {
	c := newTestController(t, DefaultConfig(), newFakeProbe())
	id := point.NewID()

	c.ScheduleUpdate(30, point.Value{Point: id, Stamp: 30, Payload: 3.0})
	c.ScheduleUpdate(10, point.Value{Point: id, Stamp: 10, Payload: 1.0})
	c.ScheduleUpdate(20, point.Value{Point: id, Stamp: 20, Payload: 2.0})
	require.Equal(t, 3, c.ScheduledCount())

	next, ok := c.NextDue()
	require.True(t, ok)
	assert.Equal(t, point.Stamp(10), next)

	// only updates at or before now fire, in stamp order
	due := c.DueUpdates(20)
	require.Len(t, due, 2)
	assert.Equal(t, point.Stamp(10), due[0].Stamp)
	assert.Equal(t, point.Stamp(20), due[1].Stamp)
	assert.Equal(t, 1, c.ScheduledCount())

	due = c.DueUpdates(100)
	require.Len(t, due, 1)
	assert.Equal(t, 0, c.ScheduledCount())

	_, ok = c.NextDue()
	assert.False(t, ok)
}

func TestController_DueUpdates_LimitBound(t *testing.T) {
	config := DefaultConfig()
	config.BatchLimitInitial = 2
	c := newTestController(t, config, newFakeProbe())
	id := point.NewID()

	for s := point.Stamp(1); s <= 5; s++ {
		c.ScheduleUpdate(s, point.Value{Point: id, Stamp: s})
	}

	assert.Len(t, c.DueUpdates(100), 2)
	assert.Len(t, c.DueUpdates(100), 2)
	assert.Len(t, c.DueUpdates(100), 1)
}

func TestController_Traces(t *testing.T) {
	config := DefaultConfig()
	config.TracesEnabled = true
	config.TracesDir = t.TempDir()
	c := newTestController(t, config, newFakeProbe())

	id := point.NewID()
	c.TraceReceived(point.Value{Point: id, Stamp: 1, Payload: 1.0})
	c.TraceSent(point.Value{Point: id, Stamp: 1, Payload: 2.0})

	// a rollback discards, a commit persists
	c.RollbackTraces()
	require.NoError(t, c.CommitTraces())

	c.TraceReceived(point.Value{Point: id, Stamp: 2, Payload: 3.0})
	require.NoError(t, c.CommitTraces())

	assert.Equal(t, 0, c.received.Len())
}

package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xapiens/rvpf-processor/cache"
	"github.com/xapiens/rvpf-processor/point"
	"github.com/xapiens/rvpf-processor/processor"
	"github.com/xapiens/rvpf-processor/store"
)

func TestCutoffControl(t *testing.T) {
	var cutoff CutoffControl

	// unset admits everything
	assert.True(t, cutoff.Verify(point.Value{Stamp: 0}))

	cutoff.Set(100)
	assert.False(t, cutoff.Verify(point.Value{Stamp: 99}))
	assert.True(t, cutoff.Verify(point.Value{Stamp: 100}))
	assert.True(t, cutoff.Verify(point.Value{Stamp: 101}))

	cutoff.Unset()
	assert.True(t, cutoff.Verify(point.Value{Stamp: 0}))
}

func TestControls_Refresh(t *testing.T) {
	mem := store.NewMemStore()
	c := cache.New(&cache.Config{UpdatesFiltered: false})
	cutoffPoint, filterPoint := point.NewID(), point.NewID()

	// cutoff in milliseconds, filter as a boolean
	mem.Put(point.Value{Point: cutoffPoint, Stamp: 1, Payload: int64(1500)})
	mem.Put(point.Value{Point: filterPoint, Stamp: 1, Payload: true})

	controls := NewControls(mem, c, cutoffPoint, filterPoint, nil)
	require.NoError(t, controls.Refresh(context.Background()))

	stamp, ok := controls.Cutoff().Stamp()
	require.True(t, ok)
	assert.Equal(t, point.Stamp(1_500_000_000), stamp)
	assert.True(t, c.UpdatesFiltered())

	// an unparseable cutoff unsets the control
	mem.Put(point.Value{Point: cutoffPoint, Stamp: 2, Payload: `not a clock`})
	mem.Put(point.Value{Point: filterPoint, Stamp: 2, Payload: false})
	require.NoError(t, controls.Refresh(context.Background()))

	_, ok = controls.Cutoff().Stamp()
	assert.False(t, ok)
	assert.False(t, c.UpdatesFiltered())
}

func TestControls_RefreshAbsentValues(t *testing.T) {
	mem := store.NewMemStore()
	c := cache.New(nil)
	controls := NewControls(mem, c, point.NewID(), point.ID{}, nil)

	require.NoError(t, controls.Refresh(context.Background()))
	_, ok := controls.Cutoff().Stamp()
	assert.False(t, ok)
}

func TestControls_RefreshStoreFailure(t *testing.T) {
	controls := NewControls(&failingStore{}, cache.New(nil), point.NewID(), point.ID{}, nil)

	err := controls.Refresh(context.Background())
	assert.ErrorIs(t, err, processor.ErrServiceNotAvailable)
}

func TestControls_NoControlPoints(t *testing.T) {
	controls := NewControls(store.NewMemStore(), cache.New(nil), point.ID{}, point.ID{}, nil)
	assert.NoError(t, controls.Refresh(context.Background()))
}

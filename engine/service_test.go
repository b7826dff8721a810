package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xapiens/rvpf-processor/metadata"
	"github.com/xapiens/rvpf-processor/point"
	"github.com/xapiens/rvpf-processor/store"
)

func newServiceFixture(t *testing.T) (*Service, *store.Queue, *store.MemStore, *metadata.Registry, *metadata.Point, *metadata.Point) {
	t.Helper()

	mem := store.NewMemStore()
	queue := store.NewQueue(64)
	registry := metadata.NewRegistry()

	input := metadata.NewPoint(point.NewID(), `A`)
	result := metadata.NewPoint(point.NewID(), `S`).WithTransform(&sumTransform{})
	registry.Add(input).Add(result)
	registry.Relate(input.ID(), result.ID(), &PrimaryBehavior{
		Input:  input.ID(),
		Result: result.ID(),
	})

	service, err := NewService(&ServiceConfig{
		Config:       DefaultConfig(),
		Receptionist: queue,
		Store:        mem,
		Resolver:     registry,
		Probe:        newFakeProbe(),
		Logger:       testLogger(t),
	})
	require.NoError(t, err)

	return service, queue, mem, registry, input, result
}

func TestNewService_InvalidConfig(t *testing.T) {
	config := DefaultConfig()
	config.CacheSize = -1

	_, err := NewService(&ServiceConfig{
		Config:       config,
		Receptionist: store.NewQueue(1),
		Store:        store.NewMemStore(),
		Resolver:     metadata.NewRegistry(),
	})
	assert.Error(t, err)
}

func TestService_RunProcessesUntilClosed(t *testing.T) {
	service, queue, mem, _, input, result := newServiceFixture(t)
	ctx := context.Background()

	require.NoError(t, queue.Send(ctx, point.Value{
		Point: input.ID(), Stamp: 100, Payload: 2.5, Flags: point.FlagCacheable,
	}))

	done := make(chan error, 1)
	go func() { done <- service.Run(ctx) }()

	// closing the queue ends the run once the stream drains
	require.Eventually(t, func() bool {
		_, ok := mem.Value(result.ID(), 100)
		return ok
	}, 5*time.Second, 5*time.Millisecond)

	require.NoError(t, queue.Close())

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal(`service did not stop`)
	}

	v, _ := mem.Value(result.ID(), 100)
	assert.Equal(t, 2.5, v.Payload)
	assert.Equal(t, int64(1), service.Stats().Snapshot().UpdatesSent)
}

func TestService_RunCancel(t *testing.T) {
	service, _, _, _, _, _ := newServiceFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- service.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal(`service did not stop`)
	}
}

func TestService_NotifyNotReadyRefreshesControls(t *testing.T) {
	mem := store.NewMemStore()
	queue := store.NewQueue(4)
	t.Cleanup(func() { _ = queue.Close() })
	filterPoint := point.NewID()
	mem.Put(point.Value{Point: filterPoint, Stamp: 1, Payload: true})

	service, err := NewService(&ServiceConfig{
		Config:       DefaultConfig(),
		Receptionist: queue,
		Store:        mem,
		Resolver:     metadata.NewRegistry(),
		Probe:        newFakeProbe(),
		Logger:       testLogger(t),
		FilterPoint:  filterPoint,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- service.Run(ctx) }()

	require.Eventually(t, func() bool {
		return service.Controller().Cache().UpdatesFiltered()
	}, 5*time.Second, 5*time.Millisecond)

	// flip the control point and raise a not-ready event
	mem.Put(point.Value{Point: filterPoint, Stamp: 2, Payload: false})
	service.NotifyNotReady()

	require.Eventually(t, func() bool {
		return !service.Controller().Cache().UpdatesFiltered()
	}, 5*time.Second, 5*time.Millisecond)

	cancel()
	<-done
}

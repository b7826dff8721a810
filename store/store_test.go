package store

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xapiens/rvpf-processor/point"
)

func value(id point.ID, s point.Stamp, payload any) point.Value {
	return point.Value{Point: id, Stamp: s, Payload: payload}
}

func TestQuery_Key(t *testing.T) {
	id := point.NewID()

	a := Query{Point: id, Interval: point.Between(1, 10), Limit: 1}
	b := Query{Point: id, Interval: point.Between(1, 10), Limit: 1}
	assert.Equal(t, a.Key(), b.Key())

	for _, tc := range [...]struct {
		Name  string
		Query Query
	}{
		{`other point`, Query{Point: point.NewID(), Interval: point.Between(1, 10), Limit: 1}},
		{`other interval`, Query{Point: id, Interval: point.Between(1, 11), Limit: 1}},
		{`reverse`, Query{Point: id, Interval: point.Between(1, 10), Limit: 1, Reverse: true}},
		{`not null`, Query{Point: id, Interval: point.Between(1, 10), Limit: 1, NotNull: true}},
		{`limit`, Query{Point: id, Interval: point.Between(1, 10), Limit: 2}},
		{`pull`, Query{Point: id, Interval: point.Between(1, 10), Limit: 1, Pull: true}},
		{`sync`, Query{Point: id, Interval: point.Between(1, 10), Limit: 1, Sync: point.NewElapsedSync(1, 0)}},
	} {
		t.Run(tc.Name, func(t *testing.T) {
			assert.NotEqual(t, a.Key(), tc.Query.Key())
		})
	}
}

func TestResponse_NextQuery(t *testing.T) {
	id := point.NewID()

	// complete responses have no continuation
	r := &Response{
		Query:    Query{Point: id, Interval: point.Between(0, 100)},
		Values:   []point.Value{value(id, 10, 1.0)},
		Complete: true,
	}
	_, ok := r.NextQuery()
	assert.False(t, ok)

	// forward continuations advance past the last row
	r.Complete = false
	next, ok := r.NextQuery()
	require.True(t, ok)
	after, _ := next.Interval.After()
	assert.Equal(t, point.Stamp(11), after)

	// reverse continuations back up before the last row
	r = &Response{
		Query:  Query{Point: id, Interval: point.Between(0, 100), Reverse: true},
		Values: []point.Value{value(id, 90, 1.0), value(id, 80, 2.0)},
	}
	next, ok = r.NextQuery()
	require.True(t, ok)
	before, _ := next.Interval.Before()
	assert.Equal(t, point.Stamp(80), before)

	// empty incomplete responses end the iteration
	r = &Response{Query: Query{Point: id}}
	_, ok = r.NextQuery()
	assert.False(t, ok)
}

func TestMemStore_Select(t *testing.T) {
	id := point.NewID()
	mem := NewMemStore()
	for s := point.Stamp(10); s <= 50; s += 10 {
		mem.Put(value(id, s, float64(s)))
	}
	mem.Put(value(id, 35, nil))

	ctx := context.Background()

	t.Run(`forward range`, func(t *testing.T) {
		rs, err := mem.Select(ctx, []Query{{Point: id, Interval: point.Between(20, 45)}})
		require.NoError(t, err)
		require.Len(t, rs, 1)
		require.True(t, rs[0].Complete)
		require.Len(t, rs[0].Values, 4)
		assert.Equal(t, point.Stamp(20), rs[0].Values[0].Stamp)
		assert.Equal(t, point.Stamp(40), rs[0].Values[3].Stamp)
	})

	t.Run(`not null`, func(t *testing.T) {
		rs, err := mem.Select(ctx, []Query{{Point: id, Interval: point.Between(20, 45), NotNull: true}})
		require.NoError(t, err)
		require.Len(t, rs[0].Values, 3)
	})

	t.Run(`reverse last before`, func(t *testing.T) {
		rs, err := mem.Select(ctx, []Query{{
			Point: id, Interval: point.Before(35), Reverse: true, Limit: 1,
		}})
		require.NoError(t, err)
		require.Len(t, rs[0].Values, 1)
		assert.Equal(t, point.Stamp(30), rs[0].Values[0].Stamp)
	})

	t.Run(`limit marks incomplete`, func(t *testing.T) {
		rs, err := mem.Select(ctx, []Query{{Point: id, Interval: point.NotBefore(0), Limit: 2}})
		require.NoError(t, err)
		assert.False(t, rs[0].Complete)
		assert.Len(t, rs[0].Values, 2)
	})

	t.Run(`count`, func(t *testing.T) {
		rs, err := mem.Select(ctx, []Query{{Point: id, Interval: point.NotBefore(0), Count: true}})
		require.NoError(t, err)
		assert.Equal(t, int64(6), rs[0].CountVal)
		assert.Empty(t, rs[0].Values)
	})

	t.Run(`sync filter`, func(t *testing.T) {
		rs, err := mem.Select(ctx, []Query{{
			Point: id, Interval: point.NotBefore(0), Sync: point.NewElapsedSync(20, 0),
		}})
		require.NoError(t, err)
		require.Len(t, rs[0].Values, 2)
		assert.Equal(t, point.Stamp(20), rs[0].Values[0].Stamp)
		assert.Equal(t, point.Stamp(40), rs[0].Values[1].Stamp)
	})

	t.Run(`cancelled queries are skipped`, func(t *testing.T) {
		q := Query{Point: id, Interval: point.NotBefore(0)}
		q.Cancel()
		rs, err := mem.Select(ctx, []Query{q})
		require.NoError(t, err)
		assert.Empty(t, rs)
	})

	t.Run(`unknown point`, func(t *testing.T) {
		rs, err := mem.Select(ctx, []Query{{Point: point.NewID(), Interval: point.NotBefore(0)}})
		require.NoError(t, err)
		assert.True(t, rs[0].Complete)
		assert.Empty(t, rs[0].Values)
	})
}

func TestMemStore_Updates(t *testing.T) {
	id := point.NewID()
	mem := NewMemStore()

	mem.AddUpdate(value(id, 10, 1.0))
	mem.AddUpdate(value(id, 20, 2.0))

	results, err := mem.SendUpdates(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, e := range results {
		assert.NoError(t, e)
	}
	assert.Equal(t, 2, mem.Len())

	// a deletion update removes the stored value
	mem.AddUpdate(point.Value{Point: id, Stamp: 10, Flags: point.FlagDeleted})
	_, err = mem.SendUpdates(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, mem.Len())

	_, ok := mem.Value(id, 10)
	assert.False(t, ok)
}

func TestQueue_FetchCommitRollback(t *testing.T) {
	q := NewQueue(16)
	ctx := context.Background()
	id := point.NewID()

	for s := point.Stamp(1); s <= 3; s++ {
		require.NoError(t, q.Send(ctx, value(id, s, nil)))
	}

	notices, err := q.Fetch(ctx, 2, 0)
	require.NoError(t, err)
	require.Len(t, notices, 2)

	// rolled-back notices replay in order, before new ones
	require.NoError(t, q.Rollback(ctx))
	notices, err = q.Fetch(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, notices, 2)
	assert.Equal(t, point.Stamp(1), notices[0].Stamp)

	require.NoError(t, q.Commit(ctx))

	notices, err = q.Fetch(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, notices, 1)
	assert.Equal(t, point.Stamp(3), notices[0].Stamp)

	// a commit leaves nothing to roll back
	require.NoError(t, q.Commit(ctx))
	require.NoError(t, q.Rollback(ctx))
	notices, err = q.Fetch(ctx, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, notices)
}

func TestQueue_FetchTimeout(t *testing.T) {
	q := NewQueue(1)

	start := time.Now()
	notices, err := q.Fetch(context.Background(), 1, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, notices)
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
}

func TestQueue_FetchCancel(t *testing.T) {
	q := NewQueue(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := q.Fetch(ctx, 1, -1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestQueue_Close(t *testing.T) {
	q := NewQueue(4)
	ctx := context.Background()
	id := point.NewID()

	require.NoError(t, q.Send(ctx, value(id, 1, nil)))
	require.NoError(t, q.Close())

	// buffered notices drain before end of stream
	notices, err := q.Fetch(ctx, 10, -1)
	require.NoError(t, err)
	require.Len(t, notices, 1)

	_, err = q.Fetch(ctx, 10, -1)
	assert.ErrorIs(t, err, io.EOF)

	assert.ErrorIs(t, q.Send(ctx, value(id, 2, nil)), io.EOF)
}

func TestQueue_FetchPanicsOnBadLimit(t *testing.T) {
	q := NewQueue(1)
	assert.Panics(t, func() {
		_, _ = q.Fetch(context.Background(), 0, 0)
	})
}

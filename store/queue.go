package store

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/xapiens/rvpf-processor/point"
)

// Queue is a channel-backed Receptionist for in-process producers. Fetched
// notices stay uncommitted until Commit; Rollback replays them on the next
// Fetch, oldest first.
type Queue struct {
	ch chan point.Value

	mu        sync.Mutex
	replay    []point.Value // rolled-back notices, consumed before the channel
	pending   []point.Value // fetched since the last commit
	closeOnce sync.Once
	closed    chan struct{}
}

// NewQueue returns a Queue with the given channel capacity.
func NewQueue(capacity int) *Queue {
	return &Queue{
		ch:     make(chan point.Value, capacity),
		closed: make(chan struct{}),
	}
}

// Send queues one notice, blocking while the queue is full.
func (x *Queue) Send(ctx context.Context, v point.Value) error {
	select {
	case <-x.closed:
		return io.EOF
	default:
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-x.closed:
		return io.EOF
	case x.ch <- v:
		return nil
	}
}

// Fetch implements Receptionist. It blocks for at most wait (forever when
// wait < 0) until at least one notice is available, then drains what else is
// immediately available, up to limit. A fetch that replays rolled-back
// notices returns only those.
func (x *Queue) Fetch(ctx context.Context, limit int, wait time.Duration) ([]point.Value, error) {
	if limit <= 0 {
		panic(`store: non-positive fetch limit`)
	}

	var notices []point.Value

	x.mu.Lock()
	if n := len(x.replay); n > 0 {
		if n > limit {
			n = limit
		}
		notices = append(notices, x.replay[:n]...)
		x.replay = x.replay[n:]
	}
	x.mu.Unlock()
	replayed := len(notices) != 0

	if !replayed {
		// blocking wait for the first notice
		var waitCh <-chan time.Time
		if wait >= 0 {
			timer := time.NewTimer(wait)
			defer timer.Stop()
			waitCh = timer.C
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-waitCh:
		case <-x.closed:
			// drain what remains, then report end of stream
			select {
			case v := <-x.ch:
				notices = append(notices, v)
			default:
				return nil, io.EOF
			}
		case v := <-x.ch:
			notices = append(notices, v)
		}
	}

	// drain whatever else is immediately available
DrainLoop:
	for !replayed && len(notices) < limit {
		select {
		case v := <-x.ch:
			notices = append(notices, v)
		default:
			break DrainLoop
		}
	}

	x.mu.Lock()
	x.pending = append(x.pending, notices...)
	x.mu.Unlock()

	return notices, nil
}

// Commit implements Receptionist.
func (x *Queue) Commit(context.Context) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.pending = nil
	return nil
}

// Rollback implements Receptionist.
func (x *Queue) Rollback(context.Context) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if len(x.pending) != 0 {
		x.replay = append(x.pending, x.replay...)
		x.pending = nil
	}
	return nil
}

// Close implements Receptionist. Queued notices remain fetchable until the
// channel drains.
func (x *Queue) Close() error {
	x.closeOnce.Do(func() {
		close(x.closed)
	})
	return nil
}

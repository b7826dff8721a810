package store

import (
	"context"
	"time"

	"github.com/xapiens/rvpf-processor/point"
)

// Client is the contract of one downstream value store. Select is a
// synchronous round trip; a transport or server failure is returned as an
// error wrapping the underlying cause, and aborts the current batch.
//
// Updates are sent in two steps: AddUpdate stages any number of updates, then
// SendUpdates flushes them in one call, returning one entry per staged
// update, nil meaning success.
//
// Implementations must be safe for one call at a time; the engine never
// issues concurrent calls against the same Client.
type Client interface {
	Select(ctx context.Context, queries []Query) ([]*Response, error)

	AddUpdate(v point.Value)

	SendUpdates(ctx context.Context) ([]error, error)
}

// Receptionist yields the inbound notice stream. Fetch blocks for at most
// wait (forever when wait < 0) until at least one notice is available, then
// returns up to limit notices. Commit acknowledges every notice fetched since
// the previous Commit; Rollback returns them to the stream.
type Receptionist interface {
	Fetch(ctx context.Context, limit int, wait time.Duration) ([]point.Value, error)

	Commit(ctx context.Context) error

	Rollback(ctx context.Context) error

	Close() error
}

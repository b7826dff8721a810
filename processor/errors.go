package processor

import (
	"errors"
	"fmt"
)

var (
	// ErrMemoryLimit matches MemoryLimitError via errors.Is.
	ErrMemoryLimit = errors.New(`processor: memory limit exceeded`)

	// ErrStoreAccess matches StoreAccessError via errors.Is.
	ErrStoreAccess = errors.New(`processor: store access failed`)

	// ErrServiceNotAvailable matches ServiceNotAvailableError via errors.Is.
	ErrServiceNotAvailable = errors.New(`processor: service not available`)

	// ErrInterrupted reports cooperative cancellation; the current batch is
	// abandoned without commit.
	ErrInterrupted = errors.New(`processor: interrupted`)

	// ErrResultsFrozen reports a result mutation after the set-up phase
	// completed.
	ErrResultsFrozen = errors.New(`processor: results are frozen`)

	// ErrNoticesFrozen reports a notice acceptance after the intake phase
	// completed.
	ErrNoticesFrozen = errors.New(`processor: notices are frozen`)
)

// MemoryLimitError reports in-use memory beyond the configured cap. It is
// recovered locally: the batch is aborted, the point cache cleared, and the
// batch retried with a smaller limit.
type MemoryLimitError struct {
	Used uint64
	Max  uint64
}

func (x *MemoryLimitError) Error() string {
	return fmt.Sprintf(`%s: %d of %d bytes in use`, ErrMemoryLimit, x.Used, x.Max)
}

func (x *MemoryLimitError) Is(target error) bool {
	return target == ErrMemoryLimit
}

// StoreAccessError wraps a store client failure; the current batch is rolled
// back and the service requests a restart.
type StoreAccessError struct {
	Err error
}

func (x *StoreAccessError) Error() string {
	return fmt.Sprintf(`%s: %v`, ErrStoreAccess, x.Err)
}

func (x *StoreAccessError) Unwrap() error {
	return x.Err
}

func (x *StoreAccessError) Is(target error) bool {
	return target == ErrStoreAccess
}

// ServiceNotAvailableError reports a downstream that could not complete
// during a control refresh or a phase that failed to settle.
type ServiceNotAvailableError struct {
	Name string
	Err  error
}

func (x *ServiceNotAvailableError) Error() string {
	if x.Err != nil {
		return fmt.Sprintf(`%s: %s: %v`, ErrServiceNotAvailable, x.Name, x.Err)
	}
	return fmt.Sprintf(`%s: %s`, ErrServiceNotAvailable, x.Name)
}

func (x *ServiceNotAvailableError) Unwrap() error {
	return x.Err
}

func (x *ServiceNotAvailableError) Is(target error) bool {
	return target == ErrServiceNotAvailable
}

package service

import "context"

// TransactionManager defines the interface for transaction management.
// Services use this to wrap paired record and ledger writes in a single
// database transaction. Nested calls join the ambient transaction.
type TransactionManager interface {
	// WithTransaction executes the given function within a database transaction.
	// If fn returns an error, the transaction is rolled back.
	// Otherwise, it is committed.
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Locker serializes work on a shared resource across processes. The
// conditional database updates stay authoritative; the lock only narrows
// the window in which two writers race.
type Locker interface {
	// WithLock runs fn while holding the named lock.
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

// NoopLocker is a Locker that does no locking. Used where a single
// process owns the resource, and in tests.
type NoopLocker struct{}

func (NoopLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

package domain

import (
	"context"
	"errors"
	"time"
)

// ErrLockHeld is returned by RunLock.Acquire when another ingestion run
// currently owns the lock. It is a clean skip condition, not a failure.
var ErrLockHeld = errors.New("ingestion run lock is held by another process")

// EventStore is the persistence contract for enriched events and ingestion
// cursors. Batch writes must be atomic per batch; cursor rows are append-only.
type EventStore interface {
	// WriteEventBatch writes one batch of fully-enriched events inside a
	// single transaction. A failure rolls back the whole batch.
	WriteEventBatch(ctx context.Context, events []NormalizedEvent) error

	// LatestCursor returns the most recent cursor row by creation time, or
	// (nil, nil) when no run has completed yet.
	LatestCursor(ctx context.Context) (*IngestionCursor, error)

	// AppendCursor appends a new cursor row. It is called exactly once per
	// fully successful run.
	AppendCursor(ctx context.Context, cursor IngestionCursor) error
}

// LogSource is the append-only, time-ordered feed of raw access-log records.
type LogSource interface {
	// FetchSince returns records strictly newer than the given timestamp, in
	// arrival order.
	FetchSince(ctx context.Context, since time.Time) ([]RawLogRecord, error)
}

// ReputationService lists all currently banned client addresses. The denylist
// cache wraps it with a TTL so it is not queried per record.
type ReputationService interface {
	ListBannedAddresses(ctx context.Context) ([]string, error)
}

// RunLock guards against overlapping ingestion runs over the same site set.
type RunLock interface {
	// Acquire takes the lock and returns a release function, or ErrLockHeld
	// when another run is in flight.
	Acquire(ctx context.Context) (release func(), err error)
}

// NopRunLock is a RunLock that always succeeds, for single-process setups
// and tests.
type NopRunLock struct{}

func (NopRunLock) Acquire(context.Context) (func(), error) { return func() {}, nil }

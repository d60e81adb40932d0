// Package persist implements durable storage of cache records: a binary
// record layout, a SQLite key-value store with a pending-write log, and the
// write-back queue that keeps the two in step.
package persist

import (
	"context"
)

// LogEntry is an unconfirmed change recorded in the pending-write log.
type LogEntry struct {
	Seq   int64
	Key   string
	Value []byte
}

// Storage is the durable side of the cache.
//
// Get returns (nil, nil) when the key is absent. A nil value passed to
// Commit or AppendLog deletes the key.
type Storage interface {
	Get(ctx context.Context, key string) ([]byte, error)
	List(ctx context.Context, prefix string) (map[string][]byte, error)

	// AppendLog records a change ahead of the full write and returns its
	// sequence number.
	AppendLog(ctx context.Context, key string, value []byte) (int64, error)
	// Commit writes value under key and drops log entries for key up to and
	// including upTo, atomically.
	Commit(ctx context.Context, key string, value []byte, upTo int64) error
	// PendingLog returns every unconfirmed log entry in sequence order.
	PendingLog(ctx context.Context) ([]LogEntry, error)

	Close() error
}

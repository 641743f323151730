// Package cache provides the bounded-TTL store backing the directory layer.
//
// Entries are opaque byte blobs; a write always replaces the previous value
// for its key. The store is shared process-wide and uses last-write-wins
// semantics without coalescing concurrent refreshes.
package cache

import (
	"context"
	"time"
)

// Keys used by the directory layer. The cache is not partitioned per tenant;
// every session shares the same entries.
const (
	KeyConferenceRooms = "conference_rooms"
	KeyPeople          = "people"
	KeyMockEvents      = "mock_events"
)

// Store is the contract shared by the in-memory and SQLite backends.
type Store interface {
	// Get returns the value stored under key, or false when the key is
	// missing or its TTL has elapsed.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set replaces the value stored under key with the given TTL.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Invalidate drops every entry.
	Invalidate(ctx context.Context) error
	// PurgeExpired removes entries whose TTL has elapsed.
	PurgeExpired(ctx context.Context) error
}

// Package cache provides the process-wide key/value store shared by the
// credential cache, the session manager, and the page cache. The store's
// per-key get/set operations are atomic; no cross-key transactions are
// offered or needed.
package cache

import (
	"context"
	"time"
)

// Store is the key/value contract the rest of the service depends on.
// A miss is reported as ("", false, nil); errors are reserved for transport
// or encoding failures.
type Store interface {
	// Get returns the value for key, and whether the key was present.
	Get(ctx context.Context, key string) (string, bool, error)

	// Set stores value under key with no expiry.
	Set(ctx context.Context, key, value string) error

	// SetEx stores value under key, expiring after ttl.
	SetEx(ctx context.Context, key, value string, ttl time.Duration) error

	// Del removes key. Deleting an absent key is not an error.
	Del(ctx context.Context, key string) error
}

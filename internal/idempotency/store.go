// Package idempotency records keys that must only be acted on once, such as
// reviewer notifications for a draft.
package idempotency

import (
	"context"
	"time"
)

// Store claims keys for a limited time. Claim returns false when the key is
// already held.
type Store interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

package idempotency

import (
	"context"
	"time"
)

// Entry is a stored response replayed for a repeated Idempotency-Key.
type Entry struct {
	Key            string
	ResponseBody   string
	ResponseStatus int
	CreatedAt      time.Time
	ExpiresAt      time.Time
}

// Expired reports whether the entry should no longer be replayed.
func (e *Entry) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt)
}

// Store keeps idempotent responses. Get returns nil, nil when the key is
// unknown or expired.
type Store interface {
	Get(ctx context.Context, key string) (*Entry, error)
	Set(ctx context.Context, entry *Entry) error
}

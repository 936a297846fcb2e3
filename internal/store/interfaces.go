package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a key has no expiry recorded
var ErrNotFound = errors.New("not found")

// ExpiryStore records when each cached file stops being fresh. A key without a
// record is treated as expired by callers.
type ExpiryStore interface {
	Get(ctx context.Context, key string) (time.Time, error)
	Set(ctx context.Context, key string, expiresAt time.Time) error
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	Close() error
}

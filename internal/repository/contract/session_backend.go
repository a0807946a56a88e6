package contract

import (
	"context"
	"errors"
	"time"
)

var ErrRecordNotFound = errors.New("record not found")

// RecordInfo describes a stored session record without decoding it.
type RecordInfo struct {
	ID         string
	ModifiedAt time.Time
}

// SessionBackend persists raw session records keyed by session id.
// Implementations must make Put atomic: a reader never observes a partially
// written record.
type SessionBackend interface {
	Put(ctx context.Context, id string, data []byte) error
	// Get returns ErrRecordNotFound when no record exists for id.
	Get(ctx context.Context, id string) ([]byte, error)
	// Delete reports whether a record was removed.
	Delete(ctx context.Context, id string) (bool, error)
	List(ctx context.Context) ([]RecordInfo, error)
}

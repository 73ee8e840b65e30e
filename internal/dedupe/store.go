// Package dedupe remembers inbound message ids so webhook redeliveries are
// processed at most once.
package dedupe

import (
	"context"
	"errors"
	"time"
)

// ErrEmptyID is returned when an empty message id is checked.
var ErrEmptyID = errors.New("dedupe: message id required")

// Store records message ids. MarkSeen returns true when the id was recorded
// by this call and false when it had already been seen. Forget releases an
// id whose message could not be accepted so a redelivery is processed.
type Store interface {
	MarkSeen(ctx context.Context, messageID string) (bool, error)
	Forget(ctx context.Context, messageID string) error
}

const (
	DefaultSize = 5000
	DefaultTTL  = 20 * time.Minute
)

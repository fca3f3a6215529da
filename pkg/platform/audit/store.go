package audit

import (
	"context"
	"errors"
)

// ErrListUnsupported is returned by sinks that only accept appends.
var ErrListUnsupported = errors.New("audit store does not support listing")

// Store persists audit events. Sinks that cannot be read back return
// ErrListUnsupported from the list methods.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListBySubject(ctx context.Context, subject string) ([]Event, error)
	ListRecent(ctx context.Context, limit int) ([]Event, error)
}

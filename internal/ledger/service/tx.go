package service

import (
	"context"
	"fmt"
	"time"

	id "consent-ledger/pkg/domain"
	dErrors "consent-ledger/pkg/domain-errors"
	platformsync "consent-ledger/pkg/platform/sync"
)

// LedgerTx linearizes mutations of one entity. fn runs with exclusive
// access to key. Implementations backed by a database commit fn's writes
// together; callers check every precondition before the first write so the
// in-memory implementation never leaves a partial transition.
type LedgerTx interface {
	RunInTx(ctx context.Context, key string, fn func(ctx context.Context, store Store) error) error
}

// StudyKey and ConsentKey name the lock held while an entity is mutated.
func StudyKey(studyID id.StudyID) string { return fmt.Sprintf("study:%d", uint64(studyID)) }

func ConsentKey(consentID id.ConsentID) string { return fmt.Sprintf("consent:%d", uint64(consentID)) }

const defaultTxTimeout = 5 * time.Second

// ShardedTx serializes in-memory mutations with a sharded mutex.
type ShardedTx struct {
	mu       *platformsync.ShardedMutex
	store    Store
	timeout  time.Duration
	lockWait func(time.Duration)
}

type ShardedTxOption func(*ShardedTx)

func WithTxTimeout(d time.Duration) ShardedTxOption {
	return func(t *ShardedTx) {
		if d > 0 {
			t.timeout = d
		}
	}
}

// WithLockWaitObserver reports how long each acquisition waited.
func WithLockWaitObserver(fn func(time.Duration)) ShardedTxOption {
	return func(t *ShardedTx) {
		t.lockWait = fn
	}
}

func NewShardedTx(store Store, opts ...ShardedTxOption) *ShardedTx {
	t := &ShardedTx{
		mu:      platformsync.NewShardedMutex(),
		store:   store,
		timeout: defaultTxTimeout,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *ShardedTx) RunInTx(ctx context.Context, key string, fn func(ctx context.Context, store Store) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	// The timeout bounds waiting for the lock only; fn runs on the caller's ctx.
	lockCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	lockStart := time.Now()
	if err := t.mu.LockContext(lockCtx, key); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: lock wait exceeded")
	}
	defer t.mu.Unlock(key)
	if t.lockWait != nil {
		t.lockWait(time.Since(lockStart))
	}

	return fn(ctx, t.store)
}

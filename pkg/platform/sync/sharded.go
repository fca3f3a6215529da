package sync

import (
	"context"
	"hash/fnv"
)

const shardCount = 32

// ShardedMutex spreads keyed locks across a fixed set of shards. Keys that
// hash to the same shard share a lock; distinct keys never need to be held
// together, so sharing cannot deadlock.
//
// Each shard is a one-slot semaphore so acquisition can be abandoned when a
// context ends.
type ShardedMutex struct {
	shards [shardCount]chan struct{}
}

func NewShardedMutex() *ShardedMutex {
	m := &ShardedMutex{}
	for i := range m.shards {
		m.shards[i] = make(chan struct{}, 1)
	}
	return m
}

// Lock acquires the lock for key's shard. Empty keys use shard 0.
func (m *ShardedMutex) Lock(key string) {
	m.shards[m.shardFor(key)] <- struct{}{}
}

// LockContext acquires the lock for key's shard or returns ctx.Err().
func (m *ShardedMutex) LockContext(ctx context.Context, key string) error {
	select {
	case m.shards[m.shardFor(key)] <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Unlock releases the lock for key's shard. Unlocking a shard that is not
// held panics, as with sync.Mutex.
func (m *ShardedMutex) Unlock(key string) {
	select {
	case <-m.shards[m.shardFor(key)]:
	default:
		panic("sync: unlock of unlocked shard")
	}
}

func (m *ShardedMutex) shardFor(key string) int {
	if key == "" {
		return 0
	}
	return int(hashString(key) % shardCount)
}

func hashString(s string) uint32 {
	if s == "" {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return h.Sum32()
}

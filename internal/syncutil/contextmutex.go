// Package syncutil holds the keyed locking primitive the oracle client
// uses to collapse concurrent fetches for the same asset.
package syncutil

import (
	"context"
	"hash/fnv"
)

const shardCount = 256

// ContextShardedMutex is a fixed pool of channel-based locks keyed by
// string. Waiters can abandon the acquisition when their context ends,
// which a sync.Mutex cannot offer. Keys sharing a shard contend with
// each other, which only costs latency, never correctness.
type ContextShardedMutex struct {
	shards [shardCount]chan struct{}
}

// NewContextShardedMutex returns a mutex pool with every shard unlocked.
func NewContextShardedMutex() *ContextShardedMutex {
	m := &ContextShardedMutex{}
	for i := range m.shards {
		m.shards[i] = make(chan struct{}, 1)
		m.shards[i] <- struct{}{}
	}
	return m
}

// LockContext acquires the lock for key, waiting until it is free or ctx
// ends. On success it returns the unlock function, which the caller must
// invoke exactly once. On cancellation it returns ctx.Err() and nothing
// is held.
func (m *ContextShardedMutex) LockContext(ctx context.Context, key string) (func(), error) {
	shard := m.shards[shardFor(key)]
	select {
	case <-shard:
		return func() { shard <- struct{}{} }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func shardFor(key string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return h.Sum32() % shardCount
}

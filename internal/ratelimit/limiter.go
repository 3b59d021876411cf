// Package ratelimit implements a sliding-window counter keyed by an
// opaque caller-namespaced string. Callers consult it synchronously on
// the same task that performs the gated action.
package ratelimit

import (
	"sync"
	"time"
)

const shardCount = 64

// Verdict is the result of a Consume call.
type Verdict struct {
	Allowed    bool
	RetryAfter time.Duration
}

type bucket struct {
	mu   sync.Mutex
	hits []time.Time
}

// Limiter is a sharded map of per-key sliding-window buckets. Sharding
// keeps the top-level map lock short (only held to find-or-create a
// bucket) while per-key serialization happens on the bucket's own lock —
// never a single global lock, per the concurrency design.
type Limiter struct {
	shards [shardCount]*shard
}

type shard struct {
	mu      sync.Mutex
	buckets map[string]*bucket
}

func New() *Limiter {
	l := &Limiter{}
	for i := range l.shards {
		l.shards[i] = &shard{buckets: make(map[string]*bucket)}
	}
	return l
}

func (l *Limiter) shardFor(key string) *shard {
	var h uint32
	for i := 0; i < len(key); i++ {
		h = h*31 + uint32(key[i])
	}
	return l.shards[h%shardCount]
}

func (l *Limiter) bucketFor(key string) *bucket {
	s := l.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buckets[key]
	if !ok {
		b = &bucket{}
		s.buckets[key] = b
	}
	return b
}

// Consume trims timestamps older than now-window, and if fewer than limit
// remain, records now and allows; otherwise denies with the time until
// the oldest timestamp in the window falls out of it.
func (l *Limiter) Consume(key string, window time.Duration, limit int) Verdict {
	return l.consumeAt(key, window, limit, time.Now())
}

func (l *Limiter) consumeAt(key string, window time.Duration, limit int, now time.Time) Verdict {
	b := l.bucketFor(key)
	b.mu.Lock()
	defer b.mu.Unlock()

	cutoff := now.Add(-window)
	kept := b.hits[:0]
	for _, t := range b.hits {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	b.hits = kept

	if len(b.hits) >= limit {
		retryAfter := b.hits[0].Add(window).Sub(now)
		if retryAfter < 0 {
			retryAfter = 0
		}
		return Verdict{Allowed: false, RetryAfter: retryAfter}
	}

	b.hits = append(b.hits, now)
	return Verdict{Allowed: true}
}

// Reset clears the bucket for key, used by tests and administrative
// overrides. Discards every charge in the window, not just the most
// recent one; callers that want to undo a single Consume should use
// Uncharge instead.
func (l *Limiter) Reset(key string) {
	s := l.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.buckets, key)
}

// Uncharge removes the most recently recorded timestamp for key, if any,
// undoing the effect of the last successful Consume without discarding
// the caller's other charges still inside the window.
func (l *Limiter) Uncharge(key string) {
	s := l.shardFor(key)
	s.mu.Lock()
	b, ok := s.buckets[key]
	s.mu.Unlock()
	if !ok {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if n := len(b.hits); n > 0 {
		b.hits = b.hits[:n-1]
	}
}

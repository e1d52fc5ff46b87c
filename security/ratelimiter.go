package security

import (
	"net"
	"sync/atomic"
	"time"

	"tracker/shardedmap"
)

const rateLimitWindow = 60 * time.Second

type bucket struct {
	windowStart atomic.Int64
	count       atomic.Uint32
}

// RateLimiter enforces a fixed 60-second sliding window per source IP. The
// hot path never takes an exclusive lock: the (count, window-start) pair
// lives behind atomics and a compare-and-swap loop handles the window
// reset race.
type RateLimiter struct {
	buckets      *shardedmap.Map[string, *bucket]
	maxPerMinute uint32
}

// NewRateLimiter builds a RateLimiter allowing up to maxPerMinute requests
// per IP in each 60-second window.
func NewRateLimiter(maxPerMinute uint32) *RateLimiter {
	return &RateLimiter{
		buckets:      shardedmap.New[string, *bucket](hashString),
		maxPerMinute: maxPerMinute,
	}
}

// CheckAndIncrement reports whether a request from ip at time now is within
// the per-minute budget, counting it regardless of the outcome: a blocked
// request still occupies a slot in its window.
func (r *RateLimiter) CheckAndIncrement(ip net.IP, now time.Time) bool {
	key := ip.String()
	nowUnix := now.Unix()

	b, ok := r.buckets.Get(key)
	if !ok {
		var installed bool
		r.buckets.Upsert(key, func(old *bucket, existed bool) (*bucket, bool, bool) {
			if existed {
				b = old
				return old, false, false
			}
			nb := &bucket{}
			nb.windowStart.Store(nowUnix)
			nb.count.Store(1)
			b = nb
			installed = true
			return nb, true, false
		})

		if installed {
			return true
		}
	}

	for {
		ws := b.windowStart.Load()
		if nowUnix-ws >= int64(rateLimitWindow/time.Second) {
			if b.windowStart.CompareAndSwap(ws, nowUnix) {
				b.count.Store(1)
				return true
			}
			continue
		}
		break
	}

	count := b.count.Add(1)
	return count <= r.maxPerMinute
}

// CleanupOldEntries evicts buckets whose window has already expired as of
// now. An optimization, not a correctness requirement: a request against
// an evicted bucket just starts a fresh window.
func (r *RateLimiter) CleanupOldEntries(now time.Time) {
	nowUnix := now.Unix()
	windowSeconds := int64(rateLimitWindow / time.Second)

	for _, key := range r.buckets.Snapshot() {
		b, ok := r.buckets.Get(key)
		if !ok {
			continue
		}
		if nowUnix-b.windowStart.Load() >= windowSeconds {
			r.buckets.Delete(key)
		}
	}
}

// Len reports the number of tracked IPs. Exposed for metrics/tests.
func (r *RateLimiter) Len() int {
	return r.buckets.Len()
}

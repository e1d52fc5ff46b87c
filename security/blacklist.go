// Package security implements the IP blacklist, client blacklist, and
// per-IP rate limiter gates the announce orchestrator runs before
// mutating the registry.
package security

import (
	"net"
	"strings"
	"sync"

	"tracker/shardedmap"
)

func hashString(s string) uint64 { return shardedmap.HashBytes([]byte(s)) }

// IPBlacklist holds two disjoint concurrent sets of banned addresses, one
// per address family, with exact-match membership testing.
type IPBlacklist struct {
	v4 *shardedmap.Map[string, struct{}]
	v6 *shardedmap.Map[string, struct{}]
}

// NewIPBlacklist builds an empty IPBlacklist.
func NewIPBlacklist() *IPBlacklist {
	return &IPBlacklist{
		v4: shardedmap.New[string, struct{}](hashString),
		v6: shardedmap.New[string, struct{}](hashString),
	}
}

func (b *IPBlacklist) setFor(ip net.IP) *shardedmap.Map[string, struct{}] {
	if ip.To4() != nil {
		return b.v4
	}
	return b.v6
}

// Ban adds ip to the matching set.
func (b *IPBlacklist) Ban(ip net.IP) {
	b.setFor(ip).Set(ip.String(), struct{}{})
}

// Unban removes ip from the matching set.
func (b *IPBlacklist) Unban(ip net.IP) {
	b.setFor(ip).Delete(ip.String())
}

// IsBanned reports whether ip is present in the matching set.
func (b *IPBlacklist) IsBanned(ip net.IP) bool {
	_, banned := b.setFor(ip).Get(ip.String())
	return banned
}

// ListV4 returns every currently banned IPv4 address.
func (b *IPBlacklist) ListV4() []string {
	return b.v4.Snapshot()
}

// ListV6 returns every currently banned IPv6 address.
func (b *IPBlacklist) ListV6() []string {
	return b.v6.Snapshot()
}

// ClientBlacklist holds a small set of user-agent substrings; a user-agent
// is banned iff any entry occurs as a substring of it. Expected to stay in
// the tens-to-hundreds range, so a single RWMutex-guarded slice (checked
// linearly) outperforms the bookkeeping of sharding it.
type ClientBlacklist struct {
	mu      sync.RWMutex
	entries []string
}

// NewClientBlacklist builds an empty ClientBlacklist.
func NewClientBlacklist() *ClientBlacklist {
	return &ClientBlacklist{}
}

// Ban adds substr to the banned set, if not already present.
func (b *ClientBlacklist) Ban(substr string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, e := range b.entries {
		if e == substr {
			return
		}
	}
	b.entries = append(b.entries, substr)
}

// Unban removes substr from the banned set.
func (b *ClientBlacklist) Unban(substr string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, e := range b.entries {
		if e == substr {
			b.entries = append(b.entries[:i], b.entries[i+1:]...)
			return
		}
	}
}

// IsBanned reports whether userAgent contains any banned substring.
func (b *ClientBlacklist) IsBanned(userAgent string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, e := range b.entries {
		if strings.Contains(userAgent, e) {
			return true
		}
	}
	return false
}

// List returns a copy of every banned substring.
func (b *ClientBlacklist) List() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, len(b.entries))
	copy(out, b.entries)
	return out
}

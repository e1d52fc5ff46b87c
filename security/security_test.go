package security

import (
	"net"
	"testing"
	"time"
)

func TestIPBlacklistExactMatch(t *testing.T) {
	bl := NewIPBlacklist()
	ip := net.ParseIP("1.2.3.4")

	if bl.IsBanned(ip) {
		t.Fatalf("expected not banned")
	}

	bl.Ban(ip)
	if !bl.IsBanned(ip) {
		t.Fatalf("expected banned")
	}

	bl.Unban(ip)
	if bl.IsBanned(ip) {
		t.Fatalf("expected unbanned")
	}
}

func TestIPBlacklistV4V6Disjoint(t *testing.T) {
	bl := NewIPBlacklist()
	bl.Ban(net.ParseIP("1.2.3.4"))

	if bl.IsBanned(net.ParseIP("::1")) {
		t.Fatalf("v6 address should not be affected by v4 ban")
	}
	if len(bl.ListV4()) != 1 || len(bl.ListV6()) != 0 {
		t.Fatalf("got v4=%v v6=%v", bl.ListV4(), bl.ListV6())
	}
}

func TestClientBlacklistSubstring(t *testing.T) {
	cb := NewClientBlacklist()
	cb.Ban("BadClient")

	if !cb.IsBanned("qBittorrent/BadClient-1.0") {
		t.Fatalf("expected substring match to ban")
	}
	if cb.IsBanned("qBittorrent/4.5.0") {
		t.Fatalf("expected no match")
	}

	cb.Unban("BadClient")
	if cb.IsBanned("qBittorrent/BadClient-1.0") {
		t.Fatalf("expected unbanned")
	}
}

func TestRateLimiterWindow(t *testing.T) {
	rl := NewRateLimiter(2)
	ip := net.ParseIP("9.9.9.9")
	base := time.Unix(1_700_000_000, 0)

	if !rl.CheckAndIncrement(ip, base) {
		t.Fatalf("1st request should pass")
	}
	if !rl.CheckAndIncrement(ip, base) {
		t.Fatalf("2nd request should pass")
	}
	if rl.CheckAndIncrement(ip, base) {
		t.Fatalf("3rd request should be blocked")
	}

	later := base.Add(60 * time.Second)
	if !rl.CheckAndIncrement(ip, later) {
		t.Fatalf("request after window elapses should pass and start a new window")
	}
}

func TestRateLimiterPerIPIndependent(t *testing.T) {
	rl := NewRateLimiter(1)
	base := time.Unix(1_700_000_000, 0)

	a := net.ParseIP("1.1.1.1")
	b := net.ParseIP("2.2.2.2")

	if !rl.CheckAndIncrement(a, base) {
		t.Fatalf("a first request should pass")
	}
	if rl.CheckAndIncrement(a, base) {
		t.Fatalf("a second request should be blocked")
	}
	if !rl.CheckAndIncrement(b, base) {
		t.Fatalf("b first request should pass independently of a")
	}
}

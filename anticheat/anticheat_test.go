package anticheat

import (
	"testing"
	"time"
)

func TestAnnounceIntervalTooShort(t *testing.T) {
	if _, bad := AnnounceInterval(1000, 1100, 900*time.Second); !bad {
		t.Fatalf("expected violation for 100s gap with 900s minimum")
	}
	if _, bad := AnnounceInterval(1000, 1901, 900*time.Second); bad {
		t.Fatalf("expected no violation once minimum elapsed")
	}
}

func TestDuplicateIP(t *testing.T) {
	if _, bad := DuplicateIP(3, 3); bad {
		t.Fatalf("expected no violation at the boundary")
	}
	if _, bad := DuplicateIP(4, 3); !bad {
		t.Fatalf("expected violation over the boundary")
	}
}

func TestRatioZeroDownloadNeverFails(t *testing.T) {
	if _, bad := Ratio(1<<40, 0, 1.0); bad {
		t.Fatalf("expected no violation with zero downloaded")
	}
}

func TestRatioOverMax(t *testing.T) {
	if _, bad := Ratio(2000, 1, 1000); !bad {
		t.Fatalf("expected violation")
	}
}

func TestSpeedSkippedWhenElapsedZero(t *testing.T) {
	if _, bad := Speed(0, 1<<40, 0, 0, 0, 1024, 1024); bad {
		t.Fatalf("expected speed check skipped for elapsed<=0")
	}
}

func TestSpeedSaturatesOnRegression(t *testing.T) {
	// newUploaded < oldUploaded (e.g. client restarted counters) must not
	// be treated as a huge negative-turned-positive rate.
	if _, bad := Speed(1000, 10, 0, 0, time.Second, 1, 1); bad {
		t.Fatalf("expected no violation on counter regression")
	}
}

func TestSpeedChecksEachDirectionAgainstItsOwnLimit(t *testing.T) {
	// Upload rate exceeds its limit, but the download limit is much higher:
	// a shared max would have hidden this.
	if _, bad := Speed(0, 1000, 0, 0, time.Second, 100, 10000); !bad {
		t.Fatalf("expected violation when upload rate exceeds the upload limit")
	}
	if _, bad := Speed(0, 50, 0, 0, time.Second, 100, 10000); bad {
		t.Fatalf("expected no violation when upload rate is within the upload limit")
	}
}

func TestGhostSeeder(t *testing.T) {
	if _, bad := GhostSeeder(true, false, 10, 1<<20); !bad {
		t.Fatalf("expected ghost seeder violation")
	}
	if _, bad := GhostSeeder(true, true, 10, 1<<20); bad {
		t.Fatalf("completed event should not trigger ghost seeder")
	}
	if _, bad := GhostSeeder(false, false, 10, 1<<20); bad {
		t.Fatalf("leecher should never trigger ghost seeder")
	}
}

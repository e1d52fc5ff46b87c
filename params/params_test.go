package params

import (
	"testing"

	"tracker/failure"
)

func validAnnounceQuery() string {
	return "passkey=" + string(make32("a")) +
		"&info_hash=" + string(make20('\x01')) +
		"&peer_id=" + string(make20('\x02')) +
		"&port=6881&uploaded=0&downloaded=0&left=1000&compact=1&numwant=50"
}

func make20(b byte) []byte {
	out := make([]byte, 20)
	for i := range out {
		out[i] = b
	}
	return out
}

func make32(prefix string) []byte {
	out := make([]byte, 32)
	copy(out, prefix)
	for i := len(prefix); i < 32; i++ {
		out[i] = 'a'
	}
	return out
}

func TestParseAndValidateHappyPath(t *testing.T) {
	q := Parse(validAnnounceQuery())
	v, fail := Validate(q)
	if fail != nil {
		t.Fatalf("unexpected failure: %+v", fail)
	}
	if v.Port != 6881 || v.Left != 1000 || !v.Compact {
		t.Fatalf("unexpected parsed values: %+v", v)
	}
	if v.Numwant != 50 {
		t.Fatalf("expected numwant 50, got %d", v.Numwant)
	}
}

func TestEmptyQueryIsEmpty(t *testing.T) {
	q := Parse("")
	if !q.Empty() {
		t.Fatalf("expected empty query")
	}
}

func TestOnlyPasskeyIsNotEnoughForValidate(t *testing.T) {
	q := Parse("passkey=" + string(make32("a")))
	_, fail := Validate(q)
	if fail == nil || fail.Kind != failure.MissingParameter {
		t.Fatalf("expected missing parameter failure, got %+v", fail)
	}
}

func TestInvalidPortBlacklisted(t *testing.T) {
	q := Parse("passkey=" + string(make32("a")) +
		"&info_hash=" + string(make20(1)) +
		"&peer_id=" + string(make20(2)) +
		"&port=8080")
	_, fail := Validate(q)
	if fail == nil || fail.Kind != failure.InvalidParameter {
		t.Fatalf("expected invalid parameter for blacklisted port, got %+v", fail)
	}
}

func TestInvalidPortZero(t *testing.T) {
	q := Parse("passkey=" + string(make32("a")) +
		"&info_hash=" + string(make20(1)) +
		"&peer_id=" + string(make20(2)) +
		"&port=0")
	_, fail := Validate(q)
	if fail == nil || fail.Kind != failure.InvalidParameter {
		t.Fatalf("expected invalid parameter for port 0, got %+v", fail)
	}
}

func TestNumwantOverMax(t *testing.T) {
	q := Parse("passkey=" + string(make32("a")) +
		"&info_hash=" + string(make20(1)) +
		"&peer_id=" + string(make20(2)) +
		"&port=6881&numwant=500")
	_, fail := Validate(q)
	if fail == nil || fail.Kind != failure.InvalidParameter {
		t.Fatalf("expected invalid parameter for numwant>200, got %+v", fail)
	}
}

func TestEventValues(t *testing.T) {
	for _, tc := range []struct {
		event string
		want  Event
	}{
		{"started", EventStarted},
		{"stopped", EventStopped},
		{"completed", EventCompleted},
		{"", EventNone},
	} {
		q := Parse("passkey=" + string(make32("a")) +
			"&info_hash=" + string(make20(1)) +
			"&peer_id=" + string(make20(2)) +
			"&port=6881&event=" + tc.event)
		v, fail := Validate(q)
		if fail != nil {
			t.Fatalf("event %q: unexpected failure %+v", tc.event, fail)
		}
		if v.Event != tc.want {
			t.Fatalf("event %q: got %v, want %v", tc.event, v.Event, tc.want)
		}
	}
}

func TestInvalidEventRejected(t *testing.T) {
	q := Parse("passkey=" + string(make32("a")) +
		"&info_hash=" + string(make20(1)) +
		"&peer_id=" + string(make20(2)) +
		"&port=6881&event=bogus")
	_, fail := Validate(q)
	if fail == nil || fail.Kind != failure.InvalidParameter {
		t.Fatalf("expected invalid parameter, got %+v", fail)
	}
}

func TestSuspiciousHeaderDetection(t *testing.T) {
	if !IsSuspiciousHeaderName("want-digest") {
		t.Fatalf("expected case-insensitive match")
	}
	if !IsSuspiciousHeaderName("Want-Digest") {
		t.Fatalf("expected exact match")
	}
	if IsSuspiciousHeaderName("User-Agent") {
		t.Fatalf("expected no match")
	}
}

func TestIPOverrideParsing(t *testing.T) {
	q := Parse("passkey=" + string(make32("a")) +
		"&info_hash=" + string(make20(1)) +
		"&peer_id=" + string(make20(2)) +
		"&port=6881&ip=203.0.113.5")
	v, fail := Validate(q)
	if fail != nil {
		t.Fatalf("unexpected failure: %+v", fail)
	}
	if v.IPOverride == nil || v.IPOverride.String() != "203.0.113.5" {
		t.Fatalf("got %v", v.IPOverride)
	}
}

func TestInvalidIPOverrideRejected(t *testing.T) {
	q := Parse("passkey=" + string(make32("a")) +
		"&info_hash=" + string(make20(1)) +
		"&peer_id=" + string(make20(2)) +
		"&port=6881&ip=not-an-ip")
	_, fail := Validate(q)
	if fail == nil || fail.Kind != failure.InvalidParameter {
		t.Fatalf("expected invalid parameter, got %+v", fail)
	}
}

package params

import (
	"net"
	"strconv"

	"tracker/failure"
)

// Event is the announce lifecycle event, or EventNone for a periodic
// re-announce.
type Event int

const (
	EventNone Event = iota
	EventStarted
	EventCompleted
	EventStopped
)

// blacklistedPorts rejects announces claiming a listen port associated
// with other P2P software or remote-access tools.
var blacklistedPorts = map[uint64]bool{
	1214: true, 3389: true, 4662: true,
	6346: true, 6347: true, 6699: true,
	8080: true, 8081: true,
}

const maxNumwant = 200
const defaultNumwant = 50

// Validated is the fully parsed and range-checked set of announce
// parameters.
type Validated struct {
	Passkey    [32]byte
	InfoHash   [20]byte
	PeerID     [20]byte
	Port       uint16
	Uploaded   uint64
	Downloaded uint64
	Left       uint64
	Event      Event
	Numwant    int
	Compact    bool
	IPOverride net.IP
}

// Validate checks every announce query parameter against the announce contract. It
// does not perform the orchestrator's two browser-access short-circuits or
// the suspicious-header check — those run before Validate is called (see
// the announce package).
func Validate(q *Query) (*Validated, *failure.AnnounceError) {
	v := &Validated{Numwant: defaultNumwant, Compact: true}

	passkey, ok := q.Get("passkey")
	if !ok {
		return nil, failure.New(failure.MissingParameter, "missing passkey")
	}
	if err := decodeFixedASCII(passkey, v.Passkey[:]); err != nil || !isAlnum(passkey) {
		return nil, failure.New(failure.InvalidParameter, "invalid passkey")
	}

	infoHash, ok := q.Get("info_hash")
	if !ok {
		return nil, failure.New(failure.MissingParameter, "missing info_hash")
	}
	if len(infoHash) != len(v.InfoHash) {
		return nil, failure.New(failure.InvalidParameter, "info_hash must be exactly 20 bytes")
	}
	copy(v.InfoHash[:], infoHash)

	peerID, ok := q.Get("peer_id")
	if !ok {
		return nil, failure.New(failure.MissingParameter, "missing peer_id")
	}
	if len(peerID) != len(v.PeerID) {
		return nil, failure.New(failure.InvalidParameter, "peer_id must be exactly 20 bytes")
	}
	copy(v.PeerID[:], peerID)

	port, err := parseUint(q, "port", 16)
	if err != nil {
		return nil, failure.New(failure.MissingParameter, "missing or invalid port")
	}
	if port == 0 || port > 65535 {
		return nil, failure.New(failure.InvalidParameter, "port must be between 1 and 65535")
	}
	if blacklistedPorts[port] {
		return nil, failure.New(failure.InvalidParameter, "port is blacklisted")
	}
	v.Port = uint16(port)

	v.Uploaded, _ = parseUintDefault(q, "uploaded", 64, 0)
	v.Downloaded, _ = parseUintDefault(q, "downloaded", 64, 0)
	v.Left, _ = parseUintDefault(q, "left", 64, 0)

	if numwant, ok := q.Get("numwant"); ok {
		n, err := strconv.ParseUint(numwant, 10, 32)
		if err != nil || n > maxNumwant {
			return nil, failure.New(failure.InvalidParameter, "numwant must be between 0 and 200")
		}
		v.Numwant = int(n)
	}

	if compact, ok := q.Get("compact"); ok {
		switch compact {
		case "0":
			v.Compact = false
		case "1":
			v.Compact = true
		default:
			return nil, failure.New(failure.InvalidParameter, "compact must be 0 or 1")
		}
	}

	if event, ok := q.Get("event"); ok && event != "" {
		switch event {
		case "started":
			v.Event = EventStarted
		case "stopped":
			v.Event = EventStopped
		case "completed":
			v.Event = EventCompleted
		default:
			return nil, failure.New(failure.InvalidParameter, "event must be started, stopped, completed, or empty")
		}
	}

	if ipStr, ok := q.Get("ip"); ok && ipStr != "" {
		ip := net.ParseIP(ipStr)
		if ip == nil {
			return nil, failure.New(failure.InvalidParameter, "ip override must be a valid address")
		}
		v.IPOverride = ip
	}

	return v, nil
}

func isAlnum(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		default:
			return false
		}
	}
	return true
}

func decodeFixedASCII(s string, out []byte) error {
	if len(s) != len(out) {
		return errInvalidLength
	}
	copy(out, s)
	return nil
}

var errInvalidLength = &lengthError{}

type lengthError struct{}

func (*lengthError) Error() string { return "params: invalid fixed-length field" }

func parseUint(q *Query, key string, bitSize int) (uint64, error) {
	s, ok := q.Get(key)
	if !ok {
		return 0, errInvalidLength
	}
	return strconv.ParseUint(s, 10, bitSize)
}

func parseUintDefault(q *Query, key string, bitSize int, def uint64) (uint64, bool) {
	s, ok := q.Get(key)
	if !ok {
		return def, false
	}
	n, err := strconv.ParseUint(s, 10, bitSize)
	if err != nil {
		return def, false
	}
	return n, true
}

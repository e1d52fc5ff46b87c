package params

import "strings"

// WantDigestHeader is the request header whose mere presence is, per the
// reference implementation, a definitive sign of a fake client rather than
// a real BitTorrent client (real clients never send content-negotiation
// headers on an announce request).
const WantDigestHeader = "Want-Digest"

// IsSuspiciousHeaderName reports whether name is the (case-insensitive)
// Want-Digest header.
func IsSuspiciousHeaderName(name string) bool {
	return strings.EqualFold(name, WantDigestHeader)
}

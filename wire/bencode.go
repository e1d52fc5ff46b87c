// Package wire encodes tracker responses in the BitTorrent dictionary
// format (bencode). Writers append directly to a caller-supplied buffer;
// there is no intermediate allocation and no failure mode.
package wire

import (
	"bytes"
	"net"
	"strconv"
)

func writeInt64[T ~int64 | ~int](buf *bytes.Buffer, v T) {
	var lenBuf [20]byte
	buf.Write(strconv.AppendInt(lenBuf[:0], int64(v), 10))
}

func writeString[T ~string | ~[]byte](buf *bytes.Buffer, v T) {
	writeInt64(buf, len(v))
	buf.WriteByte(':')
	buf.Write([]byte(v))
}

func writeNumber[T ~int64 | ~int](buf *bytes.Buffer, v T) {
	buf.WriteByte('i')
	writeInt64(buf, v)
	buf.WriteByte('e')
}

// WriteFailure encodes `d14:failure reason<len>:<message>e`, the always-200
// failure convention every announce error (other than browser-access) uses.
func WriteFailure(buf *bytes.Buffer, reason string) {
	buf.WriteByte('d')
	writeString(buf, "failure reason")
	writeString(buf, reason)
	buf.WriteByte('e')
}

// AnnouncePeer is the minimal peer view the codec needs: an address (v4 or
// v6), a port, and — for the non-compact dictionary form only — a raw
// 20-byte peer id.
type AnnouncePeer struct {
	IP     net.IP
	Port   uint16
	PeerID [20]byte
}

// WriteAnnounceHeader writes the complete/incomplete/interval/min-interval
// keys, in that exact lexicographic order. Call WriteAnnouncePeers next,
// then WriteAnnounceFooter.
func WriteAnnounceHeader(buf *bytes.Buffer, complete, incomplete int64, interval, minInterval int) {
	buf.WriteByte('d')

	writeString(buf, "complete")
	writeNumber(buf, complete)

	writeString(buf, "incomplete")
	writeNumber(buf, incomplete)

	writeString(buf, "interval")
	writeNumber(buf, interval)

	writeString(buf, "min interval")
	writeNumber(buf, minInterval)
}

// WriteAnnouncePeers writes the peers (and, for compact responses, peers6)
// keys. Peers with the wrong address family for a given key are skipped;
// an empty list is encoded as the byte string `0:`.
func WriteAnnouncePeers(buf *bytes.Buffer, peers []AnnouncePeer, compact bool) {
	if compact {
		writeCompactPeers(buf, peers, "peers", 4)
		writeCompactPeers(buf, peers, "peers6", 16)
		return
	}

	writeString(buf, "peers")
	buf.WriteByte('l')

	for _, p := range peers {
		buf.WriteByte('d')

		writeString(buf, "ip")
		ipStr := p.IP.String()
		writeString(buf, ipStr)

		writeString(buf, "peer id")
		writeString(buf, p.PeerID[:])

		writeString(buf, "port")
		writeNumber(buf, int64(p.Port))

		buf.WriteByte('e')
	}

	buf.WriteByte('e')
}

func writeCompactPeers(buf *bytes.Buffer, peers []AnnouncePeer, key string, addrLen int) {
	writeString(buf, key)

	entrySize := addrLen + 2
	n := 0

	for _, p := range peers {
		if addrBytes(p.IP, addrLen) != nil {
			n++
		}
	}

	writeInt64(buf, n*entrySize)
	buf.WriteByte(':')

	for _, p := range peers {
		raw := addrBytes(p.IP, addrLen)
		if raw == nil {
			continue
		}

		buf.Write(raw)
		buf.WriteByte(byte(p.Port >> 8))
		buf.WriteByte(byte(p.Port))
	}
}

// addrBytes returns the addrLen-byte network representation of ip, or nil
// if ip is not of the requested address family.
func addrBytes(ip net.IP, addrLen int) []byte {
	switch addrLen {
	case 4:
		v4 := ip.To4()
		if v4 == nil {
			return nil
		}
		return v4
	case 16:
		if ip.To4() != nil {
			return nil
		}
		v6 := ip.To16()
		if v6 == nil {
			return nil
		}
		return v6
	default:
		return nil
	}
}

// WriteAnnounceFooter closes the announce response dictionary.
func WriteAnnounceFooter(buf *bytes.Buffer) {
	buf.WriteByte('e')
}

package wire

import (
	"bytes"
	"net"
	"testing"

	"github.com/zeebo/bencode"
)

func TestWriteFailure(t *testing.T) {
	var buf bytes.Buffer
	WriteFailure(&buf, "Rate limit exceeded")

	var decoded map[string]interface{}
	if err := bencode.DecodeBytes(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}

	if decoded["failure reason"] != "Rate limit exceeded" {
		t.Fatalf("got %v", decoded["failure reason"])
	}
}

func TestWriteAnnounceCompactEmpty(t *testing.T) {
	var buf bytes.Buffer
	WriteAnnounceHeader(&buf, 0, 1, 1800, 900)
	WriteAnnouncePeers(&buf, nil, true)
	WriteAnnounceFooter(&buf)

	var decoded struct {
		Complete     int64  `bencode:"complete"`
		Incomplete   int64  `bencode:"incomplete"`
		Interval     int64  `bencode:"interval"`
		MinInterval  int64  `bencode:"min interval"`
		Peers        string `bencode:"peers"`
		Peers6       string `bencode:"peers6"`
	}
	if err := bencode.DecodeBytes(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}

	if decoded.Complete != 0 || decoded.Incomplete != 1 {
		t.Fatalf("unexpected stats: %+v", decoded)
	}
	if decoded.Peers != "" || decoded.Peers6 != "" {
		t.Fatalf("expected empty peer strings, got %q / %q", decoded.Peers, decoded.Peers6)
	}
}

func TestWriteAnnounceCompactPeers(t *testing.T) {
	var buf bytes.Buffer
	WriteAnnounceHeader(&buf, 1, 1, 1800, 900)

	peers := []AnnouncePeer{
		{IP: net.ParseIP("10.0.0.2"), Port: 6882},
		{IP: net.ParseIP("fe80::1"), Port: 6883},
	}
	WriteAnnouncePeers(&buf, peers, true)
	WriteAnnounceFooter(&buf)

	var decoded struct {
		Peers  string `bencode:"peers"`
		Peers6 string `bencode:"peers6"`
	}
	if err := bencode.DecodeBytes(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}

	if len(decoded.Peers) != 6 {
		t.Fatalf("expected 6 bytes of v4 peers, got %d", len(decoded.Peers))
	}
	if decoded.Peers[0] != 10 || decoded.Peers[1] != 0 || decoded.Peers[2] != 0 || decoded.Peers[3] != 2 {
		t.Fatalf("unexpected v4 address bytes: %v", []byte(decoded.Peers))
	}
	if decoded.Peers[4] != 0x1a || decoded.Peers[5] != 0xe2 {
		t.Fatalf("unexpected v4 port bytes: %v", []byte(decoded.Peers)[4:6])
	}

	if len(decoded.Peers6) != 18 {
		t.Fatalf("expected 18 bytes of v6 peers, got %d", len(decoded.Peers6))
	}
}

func TestWriteAnnounceDictPeers(t *testing.T) {
	var buf bytes.Buffer
	WriteAnnounceHeader(&buf, 1, 0, 1800, 900)

	var peerID [20]byte
	copy(peerID[:], "aaaaaaaaaaaaaaaaaaaa")

	WriteAnnouncePeers(&buf, []AnnouncePeer{
		{IP: net.ParseIP("10.0.0.2"), Port: 6882, PeerID: peerID},
	}, false)
	WriteAnnounceFooter(&buf)

	var decoded struct {
		Peers []struct {
			IP     string `bencode:"ip"`
			PeerID string `bencode:"peer id"`
			Port   int64  `bencode:"port"`
		} `bencode:"peers"`
	}
	if err := bencode.DecodeBytes(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}

	if len(decoded.Peers) != 1 {
		t.Fatalf("expected 1 peer, got %d", len(decoded.Peers))
	}
	if decoded.Peers[0].IP != "10.0.0.2" || decoded.Peers[0].Port != 6882 {
		t.Fatalf("unexpected peer: %+v", decoded.Peers[0])
	}
	if decoded.Peers[0].PeerID != string(peerID[:]) {
		t.Fatalf("unexpected peer id: %q", decoded.Peers[0].PeerID)
	}
}

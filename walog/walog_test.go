package walog

import (
	"path/filepath"
	"testing"
)

func TestFormatParseRoundTrip(t *testing.T) {
	var ih [20]byte
	for i := range ih {
		ih[i] = byte(i)
	}
	var pk [32]byte
	for i := range pk {
		pk[i] = byte(i + 1)
	}

	ops := []Op{
		{Kind: AddTorrent, TorrentID: 123, InfoHash: ih, Freeleech: true},
		{Kind: RemoveTorrent, InfoHash: ih},
		{Kind: AddUser, UserID: 456, Passkey: pk, Class: 1},
		{Kind: RemoveUser, Passkey: pk},
	}

	for _, op := range ops {
		line := op.format()
		parsed, err := parseOp(line)
		if err != nil {
			t.Fatalf("parse %q: %v", line, err)
		}
		if parsed != op {
			t.Fatalf("round trip mismatch: %+v != %+v", parsed, op)
		}
	}
}

func TestLogAppendAndReplay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.wal")

	l, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer l.Close()

	var ih [20]byte
	ih[0] = 1
	var pk [32]byte
	pk[0] = 2

	ops := []Op{
		{Kind: AddTorrent, TorrentID: 123, InfoHash: ih, Freeleech: true},
		{Kind: AddUser, UserID: 456, Passkey: pk, Class: 1},
		{Kind: RemoveTorrent, InfoHash: ih},
		{Kind: RemoveUser, Passkey: pk},
	}

	for _, op := range ops {
		if err := l.Append(op); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	got, err := l.Replay()
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if len(got) != len(ops) {
		t.Fatalf("got %d ops, want %d", len(got), len(ops))
	}
	for i := range ops {
		if got[i] != ops[i] {
			t.Fatalf("op %d: got %+v, want %+v", i, got[i], ops[i])
		}
	}
}

func TestLogTruncate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.wal")

	l, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer l.Close()

	var ih [20]byte
	ih[0] = 1
	if err := l.Append(Op{Kind: AddTorrent, TorrentID: 1, InfoHash: ih}); err != nil {
		t.Fatalf("append: %v", err)
	}

	ops, err := l.Replay()
	if err != nil || len(ops) != 1 {
		t.Fatalf("expected 1 op before truncate, got %d, err %v", len(ops), err)
	}

	if err := l.Truncate(); err != nil {
		t.Fatalf("truncate: %v", err)
	}

	ops, err = l.Replay()
	if err != nil || len(ops) != 0 {
		t.Fatalf("expected 0 ops after truncate, got %d, err %v", len(ops), err)
	}
}

func TestReplaySkipsMalformedLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.wal")

	l, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer l.Close()

	if _, err := l.file.WriteString("INVALID_OP|data\n"); err != nil {
		t.Fatalf("write: %v", err)
	}

	var ih [20]byte
	for i := range ih {
		ih[i] = 1
	}
	if err := l.Append(Op{Kind: AddTorrent, TorrentID: 123, InfoHash: ih}); err != nil {
		t.Fatalf("append: %v", err)
	}

	ops, err := l.Replay()
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if len(ops) != 1 {
		t.Fatalf("expected 1 valid op, got %d", len(ops))
	}
}

func TestReplayTrailingBlankLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.wal")

	l, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer l.Close()

	var ih [20]byte
	ih[0] = 1
	if err := l.Append(Op{Kind: AddTorrent, TorrentID: 1, InfoHash: ih}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := l.file.WriteString("\n\n"); err != nil {
		t.Fatalf("write: %v", err)
	}

	ops, err := l.Replay()
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if len(ops) != 1 {
		t.Fatalf("expected 1 op, got %d", len(ops))
	}
}

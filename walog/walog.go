// Package walog implements the append-only log: a line-oriented record of
// administrative mutations to known torrents and users, replayed at boot.
// Peer state is deliberately never logged here — peers re-announce within
// one interval and repopulate the registry on their own.
package walog

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"tracker/log"
)

// OpKind tags which of the four record shapes an Op carries.
type OpKind int

const (
	AddTorrent OpKind = iota
	RemoveTorrent
	AddUser
	RemoveUser
)

// Op is one decoded log record.
type Op struct {
	Kind      OpKind
	TorrentID uint32
	InfoHash  [20]byte
	Freeleech bool
	UserID    uint32
	Passkey   [32]byte
	Class     uint8
}

func (o Op) format() string {
	switch o.Kind {
	case AddTorrent:
		flag := "0"
		if o.Freeleech {
			flag = "1"
		}
		return fmt.Sprintf("ADD_TORRENT|%d|%s|%s", o.TorrentID, hex.EncodeToString(o.InfoHash[:]), flag)
	case RemoveTorrent:
		return fmt.Sprintf("REMOVE_TORRENT|%s", hex.EncodeToString(o.InfoHash[:]))
	case AddUser:
		return fmt.Sprintf("ADD_USER|%d|%s|%d", o.UserID, hex.EncodeToString(o.Passkey[:]), o.Class)
	case RemoveUser:
		return fmt.Sprintf("REMOVE_USER|%s", hex.EncodeToString(o.Passkey[:]))
	default:
		panic("walog: unknown op kind")
	}
}

func parseOp(line string) (Op, error) {
	parts := strings.Split(line, "|")

	switch parts[0] {
	case "ADD_TORRENT":
		if len(parts) != 4 {
			return Op{}, fmt.Errorf("walog: malformed ADD_TORRENT record")
		}
		id, err := strconv.ParseUint(parts[1], 10, 32)
		if err != nil {
			return Op{}, fmt.Errorf("walog: invalid torrent id: %w", err)
		}
		ih, err := decodeFixed(parts[2], 20)
		if err != nil {
			return Op{}, fmt.Errorf("walog: invalid info_hash: %w", err)
		}
		var arr [20]byte
		copy(arr[:], ih)
		return Op{Kind: AddTorrent, TorrentID: uint32(id), InfoHash: arr, Freeleech: parts[3] == "1"}, nil

	case "REMOVE_TORRENT":
		if len(parts) != 2 {
			return Op{}, fmt.Errorf("walog: malformed REMOVE_TORRENT record")
		}
		ih, err := decodeFixed(parts[1], 20)
		if err != nil {
			return Op{}, fmt.Errorf("walog: invalid info_hash: %w", err)
		}
		var arr [20]byte
		copy(arr[:], ih)
		return Op{Kind: RemoveTorrent, InfoHash: arr}, nil

	case "ADD_USER":
		if len(parts) != 4 {
			return Op{}, fmt.Errorf("walog: malformed ADD_USER record")
		}
		id, err := strconv.ParseUint(parts[1], 10, 32)
		if err != nil {
			return Op{}, fmt.Errorf("walog: invalid user id: %w", err)
		}
		pk, err := decodeFixed(parts[2], 32)
		if err != nil {
			return Op{}, fmt.Errorf("walog: invalid passkey: %w", err)
		}
		class, err := strconv.ParseUint(parts[3], 10, 8)
		if err != nil {
			return Op{}, fmt.Errorf("walog: invalid class: %w", err)
		}
		var arr [32]byte
		copy(arr[:], pk)
		return Op{Kind: AddUser, UserID: uint32(id), Passkey: arr, Class: uint8(class)}, nil

	case "REMOVE_USER":
		if len(parts) != 2 {
			return Op{}, fmt.Errorf("walog: malformed REMOVE_USER record")
		}
		pk, err := decodeFixed(parts[1], 32)
		if err != nil {
			return Op{}, fmt.Errorf("walog: invalid passkey: %w", err)
		}
		var arr [32]byte
		copy(arr[:], pk)
		return Op{Kind: RemoveUser, Passkey: arr}, nil

	default:
		return Op{}, fmt.Errorf("walog: unknown operation type %q", parts[0])
	}
}

func decodeFixed(s string, n int) ([]byte, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(b) != n {
		return nil, fmt.Errorf("expected %d bytes, got %d", n, len(b))
	}
	return b, nil
}

// Log is the append-only on-disk log. A single mutex guards the write
// handle; writes serialize, flush, and return. Replay uses a separate
// read-only handle so it never contends with the write lock.
type Log struct {
	mu   sync.Mutex
	file *os.File
	path string
}

// Open creates the log file if absent and opens it for appending.
func Open(path string) (*Log, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("walog: open %s: %w", path, err)
	}
	return &Log{file: f, path: path}, nil
}

// Append writes op as one newline-terminated line and flushes.
func (l *Log) Append(op Op) error {
	line := op.format() + "\n"

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.file.WriteString(line); err != nil {
		return fmt.Errorf("walog: write: %w", err)
	}
	return l.file.Sync()
}

// Replay reads every record in the log, in order, skipping and logging
// malformed lines, and returns the decoded operations. It opens its own
// read-only handle so it never blocks concurrent Append calls.
func (l *Log) Replay() ([]Op, error) {
	f, err := os.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("walog: open for replay: %w", err)
	}
	defer f.Close()

	var ops []Op
	scanner := bufio.NewScanner(f)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		op, err := parseOp(line)
		if err != nil {
			log.Warning.Printf("walog: skipping malformed record at line %d: %v", lineNum, err)
			continue
		}
		ops = append(ops, op)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("walog: scan: %w", err)
	}

	return ops, nil
}

// Truncate sets the log's length to zero. Used after a successful bulk
// refresh from the external API, once the caches reflect its contents.
func (l *Log) Truncate() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.file.Truncate(0); err != nil {
		return fmt.Errorf("walog: truncate: %w", err)
	}
	if _, err := l.file.Seek(0, 0); err != nil {
		return fmt.Errorf("walog: seek after truncate: %w", err)
	}
	return l.file.Sync()
}

// Close releases the write handle.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}

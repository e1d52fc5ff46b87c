package bootstrap

import (
	"context"
	"time"

	"tracker/cache"
	"tracker/log"
	"tracker/registry"
	"tracker/walog"
)

// State is the minimal set of components the startup and reload sequence
// needs to touch; the rest of the tracker's global state (security
// tables, config) is wired directly by cmd/tracker and doesn't need to
// flow through bootstrap.
type State struct {
	Log      *walog.Log
	Torrents *cache.TorrentCache
	Users    *cache.UserCache
	Registry *registry.Registry
	Client   *Client
}

// applyOp replays a single logged mutation onto the caches. Unknown op
// kinds are rejected by walog.Replay itself before they ever reach here.
func applyOp(torrents *cache.TorrentCache, users *cache.UserCache, op walog.Op) {
	switch op.Kind {
	case walog.AddTorrent:
		torrents.Add(cache.Torrent{ID: op.TorrentID, InfoHash: cache.InfoHash(op.InfoHash), IsFreeleech: op.Freeleech, IsActive: true})
	case walog.RemoveTorrent:
		torrents.RemoveByKey(cache.InfoHash(op.InfoHash))
	case walog.AddUser:
		users.Add(cache.User{ID: op.UserID, Passkey: cache.Passkey(op.Passkey), Class: op.Class, IsActive: true})
	case walog.RemoveUser:
		users.RemoveByKey(cache.Passkey(op.Passkey))
	}
}

// Start opens the log, replays it onto the caches, and overlays the
// external API (logging but not aborting on failure), then returns — the
// caller is responsible for spawning the reaper and binding the listener
// once Start returns, since those belong to the process lifecycle rather
// than this package.
func Start(ctx context.Context, logPath string, endpoint, apiKey string) (*State, error) {
	l, err := walog.Open(logPath)
	if err != nil {
		return nil, err
	}

	torrents := cache.NewTorrentCache()
	users := cache.NewUserCache()
	reg := registry.New()

	ops, err := l.Replay()
	if err != nil {
		return nil, err
	}
	for _, op := range ops {
		applyOp(torrents, users, op)
	}
	log.Info.Printf("bootstrap: replayed %d log entries", len(ops))

	client := NewClient(endpoint, apiKey)
	if err := client.FetchAll(ctx, torrents, users); err != nil {
		log.Warning.Printf("bootstrap: external API sync failed, continuing with log-derived state: %s", err)
	}

	return &State{Log: l, Torrents: torrents, Users: users, Registry: reg, Client: client}, nil
}

// Reload clears both caches, re-fetches from the external API, and
// truncates the log — the admin-triggered counterpart to Start's initial
// replay-then-overlay sequence, minus the replay (the log no longer has
// anything to add once the caches are about to be fully repopulated from
// the source of truth).
func (s *State) Reload(ctx context.Context) error {
	s.Torrents.Clear()
	s.Users.Clear()

	if err := s.Client.FetchAll(ctx, s.Torrents, s.Users); err != nil {
		return err
	}

	return s.Log.Truncate()
}

// Reap runs one eviction sweep against the registry using timeout.
func (s *State) Reap(timeout time.Duration) int {
	return s.Registry.Reap(timeout, time.Now())
}

// Package registry implements the concurrent in-memory peer registry: a
// sharded map of swarms, each itself a sharded map of peers, with derived
// seeder/leecher counters and a per-(user, torrent) IP index maintained in
// lock-step with peer membership.
package registry

import (
	"encoding/binary"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"tracker/shardedmap"
	"tracker/util"
)

// PeerID is a client-chosen identifier unique per running client instance.
type PeerID [20]byte

// InfoHash is the 20-byte SHA-1 identifier of a torrent's metadata.
type InfoHash [20]byte

// Peer is one active client in a swarm. Values are copied in and out of the
// registry by value; there is no shared mutable state inside a Peer once
// it has been handed to Add/Update, so no field needs to be atomic.
type Peer struct {
	UserID       uint32
	TorrentID    uint32
	ID           PeerID
	IP           net.IP
	Port         uint16
	Uploaded     uint64
	Downloaded   uint64
	Left         uint64
	LastAnnounce int64
	UserAgent    string
}

// IsSeeder reports whether the peer has nothing left to download.
func (p Peer) IsSeeder() bool {
	return p.Left == 0
}

// ErrSwarmNotFound is returned by Update and Remove when no swarm exists
// for the given info-hash.
var ErrSwarmNotFound = errors.New("registry: swarm not found")

type userTorrentKey struct {
	userID    uint32
	torrentID uint32
}

func hashPeerID(id PeerID) uint64    { return shardedmap.HashBytes(id[:]) }
func hashInfoHash(ih InfoHash) uint64 { return shardedmap.HashBytes(ih[:]) }

func hashUserTorrentKey(k userTorrentKey) uint64 {
	var b [8]byte
	binary.BigEndian.PutUint32(b[0:4], k.userID)
	binary.BigEndian.PutUint32(b[4:8], k.torrentID)
	return shardedmap.HashBytes(b[:])
}

// ipSet is a reference-counted set of IP strings: the same textual address
// may belong to more than one peer for a user/torrent pair, and the index
// entry must only disappear once none of them reference it any more.
type ipSet struct {
	mu     sync.Mutex
	counts map[string]int
}

func newIPSet() *ipSet {
	return &ipSet{counts: make(map[string]int)}
}

func (s *ipSet) add(ip string) {
	s.mu.Lock()
	s.counts[ip]++
	s.mu.Unlock()
}

func (s *ipSet) remove(ip string) {
	s.mu.Lock()
	if n := s.counts[ip]; n > 0 {
		if n == 1 {
			delete(s.counts, ip)
		} else {
			s.counts[ip] = n - 1
		}
	}
	s.mu.Unlock()
}

func (s *ipSet) len() int {
	s.mu.Lock()
	n := len(s.counts)
	s.mu.Unlock()
	return n
}

type swarmEntry struct {
	peers    *shardedmap.Map[PeerID, Peer]
	seeders  atomic.Uint32
	leechers atomic.Uint32
}

func newSwarmEntry() *swarmEntry {
	return &swarmEntry{peers: shardedmap.New[PeerID, Peer](hashPeerID)}
}

// Registry is the concurrent swarm table plus the user-IP index.
type Registry struct {
	swarms *shardedmap.Map[InfoHash, *swarmEntry]
	userIP *shardedmap.Map[userTorrentKey, *ipSet]
}

// New builds an empty Registry.
func New() *Registry {
	return &Registry{
		swarms: shardedmap.New[InfoHash, *swarmEntry](hashInfoHash),
		userIP: shardedmap.New[userTorrentKey, *ipSet](hashUserTorrentKey),
	}
}

func (r *Registry) getOrCreateSwarm(ih InfoHash) *swarmEntry {
	var result *swarmEntry
	r.swarms.Upsert(ih, func(old *swarmEntry, existed bool) (*swarmEntry, bool, bool) {
		if existed {
			result = old
			return old, false, false
		}
		result = newSwarmEntry()
		return result, true, false
	})
	return result
}

func (r *Registry) indexIP(userID, torrentID uint32, ip net.IP) {
	if ip == nil {
		return
	}
	key := userTorrentKey{userID, torrentID}
	var set *ipSet
	r.userIP.Upsert(key, func(old *ipSet, existed bool) (*ipSet, bool, bool) {
		if existed {
			set = old
			return old, false, false
		}
		set = newIPSet()
		return set, true, false
	})
	set.add(ip.String())
}

func (r *Registry) unindexIP(userID, torrentID uint32, ip net.IP) {
	if ip == nil {
		return
	}
	key := userTorrentKey{userID, torrentID}
	set, ok := r.userIP.Get(key)
	if !ok {
		return
	}
	set.remove(ip.String())

	// Delete the index entry once empty; re-check under the map's own
	// per-key serialization so a concurrent add can't race the deletion.
	r.userIP.Upsert(key, func(old *ipSet, existed bool) (*ipSet, bool, bool) {
		if !existed {
			return nil, false, false
		}
		if old.len() == 0 {
			return nil, false, true
		}
		return old, false, false
	})
}

// Add inserts or overwrites a peer in the swarm for infoHash, creating the
// swarm on first use. The seeder/leecher counter is only incremented on an
// absent->present transition, making repeated adds of the same peer id
// idempotent with respect to the counters.
func (r *Registry) Add(infoHash InfoHash, p Peer) {
	se := r.getOrCreateSwarm(infoHash)

	var wasPresent bool
	se.peers.Upsert(p.ID, func(_ Peer, existed bool) (Peer, bool, bool) {
		wasPresent = existed
		return p, true, false
	})

	if !wasPresent {
		incrementCounter(se, p.IsSeeder())
	}

	r.indexIP(p.UserID, p.TorrentID, p.IP)
}

// Update overwrites the peer identified by peerID in the swarm for
// infoHash. It fails if the swarm does not exist. If the stored peer's
// seeder flag differs from the incoming one, the counters are adjusted;
// if no prior peer existed under this id (despite the swarm existing),
// update behaves like the add transition.
func (r *Registry) Update(infoHash InfoHash, peerID PeerID, p Peer) error {
	se, ok := r.swarms.Get(infoHash)
	if !ok {
		return ErrSwarmNotFound
	}

	var hadOld, oldSeeder bool
	se.peers.Upsert(peerID, func(old Peer, existed bool) (Peer, bool, bool) {
		hadOld = existed
		if existed {
			oldSeeder = old.IsSeeder()
		}
		return p, true, false
	})

	newSeeder := p.IsSeeder()
	switch {
	case !hadOld:
		incrementCounter(se, newSeeder)
	case oldSeeder != newSeeder:
		decrementCounter(se, oldSeeder)
		incrementCounter(se, newSeeder)
	}

	r.indexIP(p.UserID, p.TorrentID, p.IP)
	return nil
}

// Remove deletes the peer identified by peerID from the swarm for
// infoHash. It fails if the swarm does not exist; removing an id that was
// never present is a no-op on counters and the index.
func (r *Registry) Remove(infoHash InfoHash, peerID PeerID) error {
	se, ok := r.swarms.Get(infoHash)
	if !ok {
		return ErrSwarmNotFound
	}

	removed, wasSeeder, userID, torrentID, ip := removeFromSwarm(se, peerID)
	if removed {
		decrementCounter(se, wasSeeder)
		r.unindexIP(userID, torrentID, ip)
	}
	return nil
}

func removeFromSwarm(se *swarmEntry, peerID PeerID) (removed, wasSeeder bool, userID, torrentID uint32, ip net.IP) {
	se.peers.Upsert(peerID, func(old Peer, existed bool) (Peer, bool, bool) {
		if !existed {
			return old, false, false
		}
		removed = true
		wasSeeder = old.IsSeeder()
		userID = old.UserID
		torrentID = old.TorrentID
		ip = old.IP
		return old, false, true
	})
	return
}

func incrementCounter(se *swarmEntry, seeder bool) {
	if seeder {
		se.seeders.Add(1)
	} else {
		se.leechers.Add(1)
	}
}

func decrementCounter(se *swarmEntry, seeder bool) {
	if seeder {
		se.seeders.Add(^uint32(0))
	} else {
		se.leechers.Add(^uint32(0))
	}
}

// Query returns up to numwant peers from the swarm for infoHash, excluding
// excludePeerID, in a uniformly random order. It returns an empty slice for
// an unknown swarm.
func (r *Registry) Query(infoHash InfoHash, numwant int, excludePeerID PeerID) []Peer {
	se, ok := r.swarms.Get(infoHash)
	if !ok || numwant <= 0 {
		return nil
	}

	all := make([]Peer, 0, numwant)
	se.peers.Range(func(id PeerID, p Peer) bool {
		if id != excludePeerID {
			all = append(all, p)
		}
		return true
	})

	for i := len(all) - 1; i > 0; i-- {
		j := util.UnsafeIntn(i + 1)
		all[i], all[j] = all[j], all[i]
	}

	if numwant < len(all) {
		all = all[:numwant]
	}
	return all
}

// GetPeer looks up the peer identified by (infoHash, peerID) directly,
// without the self-excluding filter a naive reuse of Query would apply.
// Using Query(infoHash, n, peerID) to find "the existing peer for this id"
// would always exclude it by construction, silently turning every
// re-announce into a fresh add instead of an update.
func (r *Registry) GetPeer(infoHash InfoHash, peerID PeerID) (Peer, bool) {
	se, ok := r.swarms.Get(infoHash)
	if !ok {
		return Peer{}, false
	}
	return se.peers.Get(peerID)
}

// Stats returns the seeder/leecher counters for infoHash, (0, 0) if unknown.
func (r *Registry) Stats(infoHash InfoHash) (seeders, leechers uint32) {
	se, ok := r.swarms.Get(infoHash)
	if !ok {
		return 0, 0
	}
	return se.seeders.Load(), se.leechers.Load()
}

// UserIPCount returns the number of distinct IPs currently seen across
// peers belonging to (userID, torrentID).
func (r *Registry) UserIPCount(userID, torrentID uint32) int {
	set, ok := r.userIP.Get(userTorrentKey{userID, torrentID})
	if !ok {
		return 0
	}
	return set.len()
}

// Reap evicts every peer whose last announce is older than timeout,
// relative to now, across every swarm. It returns the number of peers
// evicted. Safe to run concurrently with announces: each swarm is visited
// under its swarm-table shard's read lock; within it, stale peer ids are
// first collected under the peer map's read locks, then each is removed
// under its own peer-map shard's write lock.
func (r *Registry) Reap(timeout time.Duration, now time.Time) int {
	cutoff := now.Add(-timeout).Unix()
	total := 0

	r.swarms.Range(func(_ InfoHash, se *swarmEntry) bool {
		var stale []PeerID
		se.peers.Range(func(id PeerID, p Peer) bool {
			if p.LastAnnounce < cutoff {
				stale = append(stale, id)
			}
			return true
		})

		for _, id := range stale {
			removed, wasSeeder, userID, torrentID, ip := removeFromSwarm(se, id)
			if removed {
				decrementCounter(se, wasSeeder)
				r.unindexIP(userID, torrentID, ip)
				total++
			}
		}
		return true
	})

	return total
}

// SwarmCount returns the number of swarms with at least one lazily-created
// entry, including ones that have since become empty.
func (r *Registry) SwarmCount() int {
	return r.swarms.Len()
}

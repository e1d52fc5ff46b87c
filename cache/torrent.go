// Package cache implements the known-entity caches: sharded maps keyed by
// torrent info-hash and user passkey, holding immutable records shared by
// reference. A cache entry is never mutated in place; every write builds a
// fresh record and swaps the map entry, so a reader holding a pointer from
// an earlier Get never observes a half-applied update.
package cache

import (
	"github.com/jinzhu/copier"

	"tracker/shardedmap"
)

// InfoHash is the 20-byte key a Torrent is stored under.
type InfoHash [20]byte

// Torrent is a known-entity record: source of truth is the external
// bootstrap API and administrative mutations, persisted to the log.
type Torrent struct {
	ID          uint32
	InfoHash    InfoHash
	IsFreeleech bool
	IsActive    bool
}

func hashInfoHash(ih InfoHash) uint64 { return shardedmap.HashBytes(ih[:]) }

// TorrentCache is the info-hash -> *Torrent known-entity cache.
type TorrentCache struct {
	m *shardedmap.Map[InfoHash, *Torrent]
}

// NewTorrentCache builds an empty TorrentCache.
func NewTorrentCache() *TorrentCache {
	return &TorrentCache{m: shardedmap.New[InfoHash, *Torrent](hashInfoHash)}
}

// Add stores t, replacing any existing record for the same info-hash. Used
// for full-record writes: WAL replay and the admin add endpoint.
func (c *TorrentCache) Add(t Torrent) {
	rec := t
	c.m.Set(t.InfoHash, &rec)
}

// RemoveByKey deletes the record for infoHash, reporting whether one existed.
func (c *TorrentCache) RemoveByKey(infoHash InfoHash) bool {
	return c.m.Delete(infoHash)
}

// GetByKey returns the record for infoHash, if any.
func (c *TorrentCache) GetByKey(infoHash InfoHash) (*Torrent, bool) {
	return c.m.Get(infoHash)
}

// Clear empties the cache.
func (c *TorrentCache) Clear() {
	c.m.Clear()
}

// Len returns the number of known torrents.
func (c *TorrentCache) Len() int {
	return c.m.Len()
}

// APITorrent is the subset of a bootstrap API torrent page entry the cache
// needs to overlay. Fields the API omits for a given torrent (it always
// sends id/info_hash/is_freeleech, per the documented contract) are never
// part of this overlay; UpsertFromAPI copies any other Torrent field
// forward from the existing record.
type APITorrent struct {
	ID          uint32
	InfoHash    InfoHash
	IsFreeleech bool
}

// UpsertFromAPI overlays an external-API torrent record onto the cache. If
// a record already exists for the info-hash, its fields are copied forward
// onto the new record before the API-supplied fields are applied, so a
// concurrent reader never sees a record with some fields from the old
// generation and others from the new beyond what this single atomic swap
// produces deliberately. The record is (re)activated, matching the
// bootstrap contract's assumption that anything the API returns is active.
func (c *TorrentCache) UpsertFromAPI(u APITorrent) {
	c.m.Upsert(u.InfoHash, func(old *Torrent, existed bool) (*Torrent, bool, bool) {
		next := &Torrent{}
		if existed {
			_ = copier.Copy(next, old)
		}
		next.ID = u.ID
		next.InfoHash = u.InfoHash
		next.IsFreeleech = u.IsFreeleech
		next.IsActive = true
		return next, true, false
	})
}

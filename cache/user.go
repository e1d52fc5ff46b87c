package cache

import (
	"github.com/jinzhu/copier"

	"tracker/shardedmap"
)

// Passkey is the 32-byte per-user secret a User is stored under.
type Passkey [32]byte

// User is a known-entity record: source of truth is the external bootstrap
// API and administrative mutations, persisted to the log.
type User struct {
	ID       uint32
	Passkey  Passkey
	Class    uint8
	IsActive bool
}

func hashPasskey(k Passkey) uint64 { return shardedmap.HashBytes(k[:]) }

// UserCache is the passkey -> *User known-entity cache.
type UserCache struct {
	m *shardedmap.Map[Passkey, *User]
}

// NewUserCache builds an empty UserCache.
func NewUserCache() *UserCache {
	return &UserCache{m: shardedmap.New[Passkey, *User](hashPasskey)}
}

// Add stores u, replacing any existing record for the same passkey.
func (c *UserCache) Add(u User) {
	rec := u
	c.m.Set(u.Passkey, &rec)
}

// RemoveByKey deletes the record for passkey, reporting whether one existed.
func (c *UserCache) RemoveByKey(passkey Passkey) bool {
	return c.m.Delete(passkey)
}

// GetByKey returns the record for passkey, if any.
func (c *UserCache) GetByKey(passkey Passkey) (*User, bool) {
	return c.m.Get(passkey)
}

// GetByID linear-scans every record for one matching id. Used only by the
// non-core metrics/update reporter, never on the announce hot path.
func (c *UserCache) GetByID(id uint32) (*User, bool) {
	var found *User
	c.m.Range(func(_ Passkey, u *User) bool {
		if u.ID == id {
			found = u
			return false
		}
		return true
	})
	return found, found != nil
}

// Clear empties the cache.
func (c *UserCache) Clear() {
	c.m.Clear()
}

// Len returns the number of known users.
func (c *UserCache) Len() int {
	return c.m.Len()
}

// APIUser is the subset of a bootstrap API user page entry the cache needs
// to overlay.
type APIUser struct {
	ID       uint32
	Passkey  Passkey
	Class    uint8
	IsActive bool
}

// UpsertFromAPI overlays an external-API user record onto the cache,
// copying any existing record's fields forward first (see
// TorrentCache.UpsertFromAPI for the rationale).
func (c *UserCache) UpsertFromAPI(u APIUser) {
	c.m.Upsert(u.Passkey, func(old *User, existed bool) (*User, bool, bool) {
		next := &User{}
		if existed {
			_ = copier.Copy(next, old)
		}
		next.ID = u.ID
		next.Passkey = u.Passkey
		next.Class = u.Class
		next.IsActive = u.IsActive
		return next, true, false
	})
}

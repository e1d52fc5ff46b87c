package shardedmap

// HashBytes computes FNV-1a over an arbitrary byte key. Used to pick shards
// for fixed-width binary keys (info-hashes, passkeys, peer ids) where a
// generic comparable type can't carry its own hash method.
func HashBytes(b []byte) uint64 {
	const (
		offset64 = 14695981039346656037
		prime64  = 1099511628211
	)

	h := uint64(offset64)
	for _, c := range b {
		h ^= uint64(c)
		h *= prime64
	}
	return h
}

// Package anticheat implements the anti-abuse checks run during an
// announce: pure functions that inspect announce deltas and return a
// structured violation. The orchestrator only ever logs what these return;
// none of them may reject a request (see the design note on
// keeping this shape even as future versions may escalate some checks).
package anticheat

import "time"

// Violation names which check failed and carries a human-readable message
// for the log line the orchestrator emits.
type Violation struct {
	Check   string
	Message string
}

// AnnounceInterval fails if the peer re-announced before minInterval has
// elapsed since its last announce.
func AnnounceInterval(lastAnnounce, now int64, minInterval time.Duration) (Violation, bool) {
	delta := now - lastAnnounce
	if delta < int64(minInterval/time.Second) {
		return Violation{
			Check:   "announce_interval",
			Message: "announced again before the minimum interval elapsed",
		}, true
	}
	return Violation{}, false
}

// DuplicateIP fails if the number of distinct IPs seen for this user on
// this torrent exceeds maxIPs.
func DuplicateIP(ipCount, maxIPs int) (Violation, bool) {
	if ipCount > maxIPs {
		return Violation{
			Check:   "duplicate_ip",
			Message: "user exceeds the maximum number of distinct IPs for this torrent",
		}, true
	}
	return Violation{}, false
}

// Ratio fails if the user's cumulative upload/download ratio exceeds
// maxRatio. A zero downloaded total never triggers this check — there is
// nothing to take a ratio of.
func Ratio(uploaded, downloaded uint64, maxRatio float64) (Violation, bool) {
	if downloaded == 0 {
		return Violation{}, false
	}
	if float64(uploaded)/float64(downloaded) > maxRatio {
		return Violation{
			Check:   "ratio",
			Message: "upload/download ratio exceeds the configured maximum",
		}, true
	}
	return Violation{}, false
}

// Speed fails if the implied upload or download rate since the last
// announce exceeds its own configured maximum bytes/second. Subtraction
// saturates at zero (a client reporting a smaller cumulative total than
// last time, e.g. after a restart, never yields a negative delta). The
// check is skipped entirely when elapsed is non-positive.
func Speed(oldUploaded, newUploaded, oldDownloaded, newDownloaded uint64, elapsed time.Duration, maxUploadBytesPerSecond, maxDownloadBytesPerSecond uint64) (Violation, bool) {
	if elapsed <= 0 {
		return Violation{}, false
	}

	seconds := elapsed.Seconds()
	uploadRate := saturatingDelta(oldUploaded, newUploaded) / seconds
	downloadRate := saturatingDelta(oldDownloaded, newDownloaded) / seconds

	if uploadRate > float64(maxUploadBytesPerSecond) || downloadRate > float64(maxDownloadBytesPerSecond) {
		return Violation{
			Check:   "speed",
			Message: "implied transfer rate exceeds the configured maximum",
		}, true
	}
	return Violation{}, false
}

func saturatingDelta(old, new_ uint64) float64 {
	if new_ <= old {
		return 0
	}
	return float64(new_ - old)
}

// GhostSeeder warns when a peer claims to be seeding but has uploaded
// suspiciously little and the current announce isn't the completed event
// that would explain it.
func GhostSeeder(isSeeder bool, isCompletedEvent bool, uploaded, minSeederUpload uint64) (Violation, bool) {
	if isSeeder && !isCompletedEvent && uploaded < minSeederUpload {
		return Violation{
			Check:   "ghost_seeder",
			Message: "peer claims to be seeding with implausibly little upload",
		}, true
	}
	return Violation{}, false
}

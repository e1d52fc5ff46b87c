// Package announce implements the announce orchestrator: the pipeline that
// turns a raw query string and request metadata into either a bencoded
// peer list or a bencoded failure reason. Every step before the
// registry mutation is a check against the caches/security tables (the
// rate limiter also counts the request); the registry is not touched
// until a request has cleared all of them.
package announce

import (
	"bytes"
	"net"
	"time"

	"tracker/anticheat"
	"tracker/cache"
	"tracker/failure"
	"tracker/log"
	"tracker/params"
	"tracker/registry"
	"tracker/security"
	"tracker/wire"
)

// Config holds the tunables the orchestrator needs beyond the caches and
// security tables it's built with. MinAnnounceInterval is a config-file
// value converted once at startup (see the config package);
// AnnounceInterval is set by the caller.
type Config struct {
	AnnounceInterval    time.Duration
	MinAnnounceInterval time.Duration
	MaxIPsPerUser       int
	MaxRatio            float64
	MaxUploadSpeed      uint64
	MaxDownloadSpeed    uint64
	MinSeederUpload     uint64
}

// Request is everything the orchestrator needs from the transport layer,
// gathered up front so this package has no dependency on any particular
// HTTP server.
type Request struct {
	RawQuery            string
	UserAgent           string
	HasWantDigestHeader bool
	SocketIP            net.IP
	Now                 time.Time
}

// Counters is the minimal set of atomic counters the orchestrator bumps on
// every call; metrics.Collector satisfies this by embedding the same
// fields the prometheus collector reads from.
type Counters interface {
	IncSuccessful()
	IncFailed()
	IncBlocked()
}

type noopCounters struct{}

func (noopCounters) IncSuccessful() {}
func (noopCounters) IncFailed()     {}
func (noopCounters) IncBlocked()    {}

// Orchestrator wires together every component the announce pipeline reads
// from or writes to.
type Orchestrator struct {
	Torrents  *cache.TorrentCache
	Users     *cache.UserCache
	Registry  *registry.Registry
	IPBans    *security.IPBlacklist
	ClientBan *security.ClientBlacklist
	Limiter   *security.RateLimiter
	Config    Config
	Counters  Counters
}

// New builds an Orchestrator. counters may be nil, in which case metric
// updates are silently dropped — useful for tests that don't care.
func New(torrents *cache.TorrentCache, users *cache.UserCache, reg *registry.Registry,
	ipBans *security.IPBlacklist, clientBan *security.ClientBlacklist, limiter *security.RateLimiter,
	cfg Config, counters Counters) *Orchestrator {
	if counters == nil {
		counters = noopCounters{}
	}
	return &Orchestrator{
		Torrents:  torrents,
		Users:     users,
		Registry:  reg,
		IPBans:    ipBans,
		ClientBan: clientBan,
		Limiter:   limiter,
		Config:    cfg,
		Counters:  counters,
	}
}

// blockedKind reports failures that count as actively-blocked traffic (bans,
// rate limiting, suspicious clients) rather than ordinary malformed
// requests, for the purposes of the successful/failed/blocked counters.
func blockedKind(k failure.Kind) bool {
	switch k {
	case failure.IPBanned, failure.ClientBanned, failure.RateLimitExceeded, failure.SuspiciousClient:
		return true
	default:
		return false
	}
}

// Announce runs the full pipeline and writes a bencoded response to out.
// It returns the failure that was encoded, or nil on success; the caller
// still gets a fully formed bencoded response either way; only the two
// browser-access short-circuits write nothing to out, and the caller
// answers those with a plain-text body instead (see the BrowserAccess kind).
func (o *Orchestrator) Announce(req Request, out *bytes.Buffer) *failure.AnnounceError {
	q := params.Parse(req.RawQuery)

	// Step 1: browser-access short-circuits. A request with no recognized
	// parameters, or only a passkey, is almost always a browser hitting
	// the announce URL directly rather than a BitTorrent client; these are
	// dropped without a bencoded body.
	if q.Empty() {
		return o.fail(failure.New(failure.BrowserAccess, "empty query"), out, true)
	}
	if _, hasPasskey := q.Get("passkey"); hasPasskey && onlyPasskeyPresent(q) {
		return o.fail(failure.New(failure.BrowserAccess, "only passkey present"), out, true)
	}

	// Step 2: suspicious header check, ahead of full validation since it's
	// cheaper and a definitive signal on its own.
	if req.HasWantDigestHeader {
		return o.fail(failure.New(failure.SuspiciousClient, "Suspicious client detected"), out, false)
	}

	// Step 3: parameter validation.
	v, verr := params.Validate(q)
	if verr != nil {
		return o.fail(verr, out, false)
	}

	// Step 4: resolve source IP.
	ip := req.SocketIP
	if v.IPOverride != nil {
		ip = v.IPOverride
	}
	if ip == nil {
		return o.fail(failure.New(failure.InvalidParameter, "no usable source IP"), out, false)
	}

	// Step 5: authenticate via passkey.
	user, ok := o.Users.GetByKey(v.Passkey)
	if !ok {
		return o.fail(failure.New(failure.InvalidPasskey, "Invalid passkey provided"), out, false)
	}
	if !user.IsActive {
		return o.fail(failure.New(failure.UserDisabled, "user is disabled"), out, false)
	}

	// Step 6: authorize via info_hash.
	torrentKey := cache.InfoHash(v.InfoHash)
	torrent, ok := o.Torrents.GetByKey(torrentKey)
	if !ok {
		return o.fail(failure.New(failure.TorrentNotFound, "Torrent not registered"), out, false)
	}
	if !torrent.IsActive {
		return o.fail(failure.New(failure.TorrentInactive, "Torrent is not active"), out, false)
	}

	// Step 7: IP blacklist.
	if o.IPBans.IsBanned(ip) {
		return o.fail(failure.New(failure.IPBanned, "IP address is banned"), out, true)
	}

	// Step 8: client blacklist, keyed on user-agent.
	if o.ClientBan.IsBanned(req.UserAgent) {
		return o.fail(failure.New(failure.ClientBanned, "Client is banned"), out, true)
	}

	// Step 9: rate limiter.
	if !o.Limiter.CheckAndIncrement(ip, req.Now) {
		return o.fail(failure.New(failure.RateLimitExceeded, "Rate limit exceeded"), out, true)
	}

	infoHash := registry.InfoHash(v.InfoHash)
	peerID := registry.PeerID(v.PeerID)

	// Step 10: locate any existing peer under this exact id, and run the
	// anti-abuse checks against the delta. These never block; a violation
	// only produces a log line.
	existing, hadExisting := o.Registry.GetPeer(infoHash, peerID)
	o.logViolations(user.ID, torrent.ID, v, existing, hadExisting, req.Now)

	// Step 11: stopped peers are removed and get an early, minimal
	// response; they were never counted toward numwant.
	if v.Event == params.EventStopped {
		if hadExisting {
			_ = o.Registry.Remove(infoHash, peerID)
		}
		seeders, leechers := o.Registry.Stats(infoHash)
		wire.WriteAnnounceHeader(out, int64(seeders), int64(leechers),
			intervalSeconds(o.Config.AnnounceInterval), intervalSeconds(o.Config.MinAnnounceInterval))
		wire.WriteAnnouncePeers(out, nil, v.Compact)
		wire.WriteAnnounceFooter(out)
		o.Counters.IncSuccessful()
		return nil
	}

	// Step 12: build the new peer record and mutate the registry.
	newPeer := registry.Peer{
		UserID:       user.ID,
		TorrentID:    torrent.ID,
		ID:           peerID,
		IP:           ip,
		Port:         v.Port,
		Uploaded:     v.Uploaded,
		Downloaded:   v.Downloaded,
		Left:         v.Left,
		LastAnnounce: req.Now.Unix(),
		UserAgent:    req.UserAgent,
	}

	if hadExisting {
		_ = o.Registry.Update(infoHash, peerID, newPeer)
	} else {
		o.Registry.Add(infoHash, newPeer)
	}

	// Step 13: query peers and encode the response.
	peers := o.Registry.Query(infoHash, v.Numwant, peerID)
	seeders, leechers := o.Registry.Stats(infoHash)

	wirePeers := make([]wire.AnnouncePeer, len(peers))
	for i, p := range peers {
		wirePeers[i] = wire.AnnouncePeer{IP: p.IP, Port: p.Port, PeerID: [20]byte(p.ID)}
	}

	wire.WriteAnnounceHeader(out, int64(seeders), int64(leechers),
		intervalSeconds(o.Config.AnnounceInterval), intervalSeconds(o.Config.MinAnnounceInterval))
	wire.WriteAnnouncePeers(out, wirePeers, v.Compact)
	wire.WriteAnnounceFooter(out)

	o.Counters.IncSuccessful()
	return nil
}

// fail encodes the failure reason to out (unless it's a silent
// browser-access drop) and bumps the appropriate counter.
func (o *Orchestrator) fail(err *failure.AnnounceError, out *bytes.Buffer, blocked bool) *failure.AnnounceError {
	if err.Kind == failure.BrowserAccess {
		return err
	}
	wire.WriteFailure(out, err.Message)
	if blocked || blockedKind(err.Kind) {
		o.Counters.IncBlocked()
	} else {
		o.Counters.IncFailed()
	}
	return err
}

func onlyPasskeyPresent(q *params.Query) bool {
	_, hasInfoHash := q.Get("info_hash")
	_, hasPeerID := q.Get("peer_id")
	return !hasInfoHash && !hasPeerID
}

func intervalSeconds(d time.Duration) int {
	return int(d / time.Second)
}

// logViolations runs every anti-abuse check this announce has enough
// context for and logs any that fail. hadExisting distinguishes a brand
// new peer (nothing to compare deltas against) from a re-announce.
func (o *Orchestrator) logViolations(userID, torrentID uint32, v *params.Validated, existing registry.Peer, hadExisting bool, now time.Time) {
	if hadExisting {
		if viol, bad := anticheat.AnnounceInterval(existing.LastAnnounce, now.Unix(), o.Config.MinAnnounceInterval); bad {
			log.Warning.Printf("anti-abuse: user %d torrent %d: %s: %s", userID, torrentID, viol.Check, viol.Message)
		}

		elapsed := time.Duration(now.Unix()-existing.LastAnnounce) * time.Second
		if viol, bad := anticheat.Speed(existing.Uploaded, v.Uploaded, existing.Downloaded, v.Downloaded, elapsed,
			o.Config.MaxUploadSpeed, o.Config.MaxDownloadSpeed); bad {
			log.Warning.Printf("anti-abuse: user %d torrent %d: %s: %s", userID, torrentID, viol.Check, viol.Message)
		}
	}

	if viol, bad := anticheat.Ratio(v.Uploaded, v.Downloaded, o.Config.MaxRatio); bad {
		log.Warning.Printf("anti-abuse: user %d torrent %d: %s: %s", userID, torrentID, viol.Check, viol.Message)
	}

	if viol, bad := anticheat.DuplicateIP(o.Registry.UserIPCount(userID, torrentID), o.Config.MaxIPsPerUser); bad {
		log.Warning.Printf("anti-abuse: user %d torrent %d: %s: %s", userID, torrentID, viol.Check, viol.Message)
	}

	isSeeder := v.Left == 0
	if viol, bad := anticheat.GhostSeeder(isSeeder, v.Event == params.EventCompleted, v.Uploaded, o.Config.MinSeederUpload); bad {
		log.Warning.Printf("anti-abuse: user %d torrent %d: %s: %s", userID, torrentID, viol.Check, viol.Message)
	}
}

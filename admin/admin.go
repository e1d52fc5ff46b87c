// Package admin implements the administrative HTTP surface: thin fasthttp
// handlers gated by a constant-time API key check, each performing one
// cache/blacklist mutation and returning a {success,message} /
// {success:false,error} JSON response. Torrent and user mutations are also
// appended to the append-only log; blacklist edits are kept in memory only.
package admin

import (
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"net"

	"github.com/valyala/fasthttp"

	"tracker/bootstrap"
	"tracker/cache"
	"tracker/log"
	"tracker/security"
	"tracker/walog"
)

type successResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// Handlers wires every admin endpoint to the live state it mutates.
type Handlers struct {
	State     *bootstrap.State
	IPBans    *security.IPBlacklist
	ClientBan *security.ClientBlacklist
	APIKey    string
}

func writeJSON(ctx *fasthttp.RequestCtx, status int, v interface{}) {
	body, err := json.Marshal(v)
	if err != nil {
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		return
	}
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	_, _ = ctx.Write(body)
}

func writeSuccess(ctx *fasthttp.RequestCtx, message string) {
	writeJSON(ctx, fasthttp.StatusOK, successResponse{Success: true, Message: message})
}

func writeError(ctx *fasthttp.RequestCtx, status int, message string) {
	writeJSON(ctx, status, errorResponse{Success: false, Error: message})
}

// checkAPIKey verifies the api_key query parameter in constant time
// against the configured secret, so timing can't leak how many leading
// bytes matched.
func (h *Handlers) checkAPIKey(ctx *fasthttp.RequestCtx) bool {
	got := string(ctx.QueryArgs().Peek("api_key"))
	if len(got) != len(h.APIKey) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(h.APIKey)) == 1
}

func decodeInfoHash(s string) (cache.InfoHash, error) {
	var out cache.InfoHash
	raw, err := hex.DecodeString(s)
	if err != nil {
		return out, err
	}
	if len(raw) != len(out) {
		return out, errWrongLength(len(out), len(raw))
	}
	copy(out[:], raw)
	return out, nil
}

func decodePasskey(s string) (cache.Passkey, error) {
	var out cache.Passkey
	raw, err := hex.DecodeString(s)
	if err != nil {
		return out, err
	}
	if len(raw) != len(out) {
		return out, errWrongLength(len(out), len(raw))
	}
	copy(out[:], raw)
	return out, nil
}

type lengthMismatch struct {
	expected, actual int
}

func (e *lengthMismatch) Error() string {
	return "admin: expected fixed-length field"
}

func errWrongLength(expected, actual int) error {
	return &lengthMismatch{expected: expected, actual: actual}
}

// TorrentAdd handles GET /torrent/add?api_key=&id=&info_hash=&freeleech=.
func (h *Handlers) TorrentAdd(ctx *fasthttp.RequestCtx) {
	if !h.checkAPIKey(ctx) {
		writeError(ctx, fasthttp.StatusUnauthorized, "invalid api key")
		return
	}

	id, err := ctx.QueryArgs().GetUint("id")
	if err != nil {
		writeError(ctx, fasthttp.StatusBadRequest, "invalid id")
		return
	}

	infoHash, err := decodeInfoHash(string(ctx.QueryArgs().Peek("info_hash")))
	if err != nil {
		writeError(ctx, fasthttp.StatusBadRequest, "invalid info_hash")
		return
	}

	freeleech := string(ctx.QueryArgs().Peek("freeleech")) == "1"

	h.State.Torrents.Add(cache.Torrent{ID: uint32(id), InfoHash: infoHash, IsFreeleech: freeleech, IsActive: true})

	if err := h.State.Log.Append(walog.Op{Kind: walog.AddTorrent, TorrentID: uint32(id), InfoHash: infoHash, Freeleech: freeleech}); err != nil {
		log.Warning.Printf("admin: failed to log torrent add to WAL: %s", err)
	}

	writeSuccess(ctx, "torrent added successfully")
}

// TorrentRemove handles GET /torrent/remove?api_key=&info_hash=.
func (h *Handlers) TorrentRemove(ctx *fasthttp.RequestCtx) {
	if !h.checkAPIKey(ctx) {
		writeError(ctx, fasthttp.StatusUnauthorized, "invalid api key")
		return
	}

	infoHash, err := decodeInfoHash(string(ctx.QueryArgs().Peek("info_hash")))
	if err != nil {
		writeError(ctx, fasthttp.StatusBadRequest, "invalid info_hash")
		return
	}

	if !h.State.Torrents.RemoveByKey(infoHash) {
		writeError(ctx, fasthttp.StatusNotFound, "torrent not found")
		return
	}

	if err := h.State.Log.Append(walog.Op{Kind: walog.RemoveTorrent, InfoHash: infoHash}); err != nil {
		log.Warning.Printf("admin: failed to log torrent remove to WAL: %s", err)
	}

	writeSuccess(ctx, "torrent removed successfully")
}

// UserAdd handles GET /user/add?api_key=&id=&passkey=&class=.
func (h *Handlers) UserAdd(ctx *fasthttp.RequestCtx) {
	if !h.checkAPIKey(ctx) {
		writeError(ctx, fasthttp.StatusUnauthorized, "invalid api key")
		return
	}

	id, err := ctx.QueryArgs().GetUint("id")
	if err != nil {
		writeError(ctx, fasthttp.StatusBadRequest, "invalid id")
		return
	}

	passkey, err := decodePasskey(string(ctx.QueryArgs().Peek("passkey")))
	if err != nil {
		writeError(ctx, fasthttp.StatusBadRequest, "invalid passkey")
		return
	}

	class, err := ctx.QueryArgs().GetUint("class")
	if err != nil {
		class = 0
	}

	h.State.Users.Add(cache.User{ID: uint32(id), Passkey: passkey, Class: uint8(class), IsActive: true})

	if err := h.State.Log.Append(walog.Op{Kind: walog.AddUser, UserID: uint32(id), Passkey: passkey, Class: uint8(class)}); err != nil {
		log.Warning.Printf("admin: failed to log user add to WAL: %s", err)
	}

	writeSuccess(ctx, "user added successfully")
}

// UserRemove handles GET /user/remove?api_key=&passkey=.
func (h *Handlers) UserRemove(ctx *fasthttp.RequestCtx) {
	if !h.checkAPIKey(ctx) {
		writeError(ctx, fasthttp.StatusUnauthorized, "invalid api key")
		return
	}

	passkey, err := decodePasskey(string(ctx.QueryArgs().Peek("passkey")))
	if err != nil {
		writeError(ctx, fasthttp.StatusBadRequest, "invalid passkey")
		return
	}

	if !h.State.Users.RemoveByKey(passkey) {
		writeError(ctx, fasthttp.StatusNotFound, "user not found")
		return
	}

	if err := h.State.Log.Append(walog.Op{Kind: walog.RemoveUser, Passkey: passkey}); err != nil {
		log.Warning.Printf("admin: failed to log user remove to WAL: %s", err)
	}

	writeSuccess(ctx, "user removed successfully")
}

// Reload handles POST /reload: clear both caches, re-fetch from the
// external API, and truncate the log.
func (h *Handlers) Reload(ctx *fasthttp.RequestCtx) {
	if !h.checkAPIKey(ctx) {
		writeError(ctx, fasthttp.StatusUnauthorized, "invalid api key")
		return
	}

	if err := h.State.Reload(ctx); err != nil {
		writeError(ctx, fasthttp.StatusInternalServerError, "reload failed: "+err.Error())
		return
	}

	writeSuccess(ctx, "reload complete")
}

func parseIP(ctx *fasthttp.RequestCtx) (net.IP, bool) {
	ip := net.ParseIP(string(ctx.QueryArgs().Peek("ip")))
	return ip, ip != nil
}

// IPBan handles GET /ip/ban?api_key=&ip=.
func (h *Handlers) IPBan(ctx *fasthttp.RequestCtx) {
	if !h.checkAPIKey(ctx) {
		writeError(ctx, fasthttp.StatusUnauthorized, "invalid api key")
		return
	}
	ip, ok := parseIP(ctx)
	if !ok {
		writeError(ctx, fasthttp.StatusBadRequest, "invalid ip")
		return
	}
	h.IPBans.Ban(ip)
	writeSuccess(ctx, "ip banned")
}

// IPUnban handles GET /ip/unban?api_key=&ip=.
func (h *Handlers) IPUnban(ctx *fasthttp.RequestCtx) {
	if !h.checkAPIKey(ctx) {
		writeError(ctx, fasthttp.StatusUnauthorized, "invalid api key")
		return
	}
	ip, ok := parseIP(ctx)
	if !ok {
		writeError(ctx, fasthttp.StatusBadRequest, "invalid ip")
		return
	}
	h.IPBans.Unban(ip)
	writeSuccess(ctx, "ip unbanned")
}

// IPList handles GET /ip/list?api_key=.
func (h *Handlers) IPList(ctx *fasthttp.RequestCtx) {
	if !h.checkAPIKey(ctx) {
		writeError(ctx, fasthttp.StatusUnauthorized, "invalid api key")
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, struct {
		IPv4 []string `json:"ipv4"`
		IPv6 []string `json:"ipv6"`
	}{IPv4: h.IPBans.ListV4(), IPv6: h.IPBans.ListV6()})
}

// ClientBan handles GET /client/ban?api_key=&substr=.
func (h *Handlers) ClientBan(ctx *fasthttp.RequestCtx) {
	if !h.checkAPIKey(ctx) {
		writeError(ctx, fasthttp.StatusUnauthorized, "invalid api key")
		return
	}
	substr := string(ctx.QueryArgs().Peek("substr"))
	if substr == "" {
		writeError(ctx, fasthttp.StatusBadRequest, "missing substr")
		return
	}
	h.ClientBan.Ban(substr)
	writeSuccess(ctx, "client banned")
}

// ClientUnban handles GET /client/unban?api_key=&substr=.
func (h *Handlers) ClientUnban(ctx *fasthttp.RequestCtx) {
	if !h.checkAPIKey(ctx) {
		writeError(ctx, fasthttp.StatusUnauthorized, "invalid api key")
		return
	}
	h.ClientBan.Unban(string(ctx.QueryArgs().Peek("substr")))
	writeSuccess(ctx, "client unbanned")
}

// ClientList handles GET /client/list?api_key=.
func (h *Handlers) ClientList(ctx *fasthttp.RequestCtx) {
	if !h.checkAPIKey(ctx) {
		writeError(ctx, fasthttp.StatusUnauthorized, "invalid api key")
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, struct {
		Clients []string `json:"clients"`
	}{Clients: h.ClientBan.List()})
}

// Fallback handles any admin path that doesn't match a known endpoint.
func Fallback(ctx *fasthttp.RequestCtx) {
	writeError(ctx, fasthttp.StatusNotFound, "unknown admin endpoint")
}

/*
 * This file is part of Chihaya.
 *
 * Chihaya is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * Chihaya is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with Chihaya.  If not, see <http://www.gnu.org/licenses/>.
 */

// Package config loads the tracker's JSON config file into a typed Config
// value. The json.Number decoding discipline is unchanged from the
// original config package; the schema itself is new, built for this
// tracker's domain instead of a MySQL-backed one.
package config

import (
	"encoding/json"
	"errors"
	"os"
	"time"

	"tracker/log"
)

// Server holds listener and concurrency tunables.
type Server struct {
	Port           int    `json:"port"`
	UnixSocket     string `json:"unix_socket"`
	NumThreads     int    `json:"num_threads"`
	MaxConnections int    `json:"max_connections"`
}

// Memory holds the capacity hints the caches and registry are sized with.
type Memory struct {
	PeerCapacity     int `json:"peer_capacity"`
	TorrentCacheSize int `json:"torrent_cache_size"`
	UserCacheSize    int `json:"user_cache_size"`
}

// Performance holds the announce pipeline's timing knobs. The *Seconds
// fields are what's actually decoded from JSON; the plain fields are
// derived once at load time so the rest of the tracker works in
// time.Duration rather than re-deriving it on every use.
type Performance struct {
	MinAnnounceIntervalSeconds int `json:"min_announce_interval"`
	MaxRequestsPerMinute       int `json:"max_requests_per_minute"`
	CleanupIntervalSeconds     int `json:"cleanup_interval"`
	PeerTimeoutSeconds         int `json:"peer_timeout"`

	MinAnnounceInterval time.Duration `json:"-"`
	CleanupInterval     time.Duration `json:"-"`
	PeerTimeout         time.Duration `json:"-"`
}

// Sync holds the bootstrap/reload external API settings.
type Sync struct {
	DataEndpoint string `json:"data_endpoint"`
	APIKey       string `json:"api_key"`
}

// AntiCheat holds the anti-abuse check thresholds.
type AntiCheat struct {
	MaxIPsPerUser    int     `json:"max_ips_per_user"`
	MaxRatio         float64 `json:"max_ratio"`
	MaxUploadSpeed   uint64  `json:"max_upload_speed"`
	MaxDownloadSpeed uint64  `json:"max_download_speed"`
	MinSeederUpload  uint64  `json:"min_seeder_upload"`
}

// Security holds the blacklist entries seeded at startup, in addition to
// whatever the admin endpoints add at runtime.
type Security struct {
	BannedIPs     []string `json:"banned_ips"`
	BannedClients []string `json:"banned_clients"`
}

// Config is the fully decoded configuration file.
type Config struct {
	Server      Server      `json:"server"`
	Memory      Memory      `json:"memory"`
	Performance Performance `json:"performance"`
	Sync        Sync        `json:"sync"`
	AntiCheat   AntiCheat   `json:"anti_cheat"`
	Security    Security    `json:"security"`
}

// ErrPeerTimeoutTooShort is returned by Validate when peer_timeout does
// not exceed cleanup_interval, the one cross-field invariant the config
// carries: the reaper would otherwise evict peers that just announced.
var ErrPeerTimeoutTooShort = errors.New("config: performance.peer_timeout must exceed performance.cleanup_interval")

func defaults() Config {
	return Config{
		Server: Server{
			Port: 34000,
		},
		Memory: Memory{
			PeerCapacity:     1 << 20,
			TorrentCacheSize: 1 << 18,
			UserCacheSize:    1 << 18,
		},
		Performance: Performance{
			MinAnnounceIntervalSeconds: 900,
			MaxRequestsPerMinute:       180,
			CleanupIntervalSeconds:     120,
			PeerTimeoutSeconds:         3900,
		},
		AntiCheat: AntiCheat{
			MaxIPsPerUser:    3,
			MaxRatio:         1000,
			MaxUploadSpeed:   50 << 20,
			MaxDownloadSpeed: 50 << 20,
		},
	}
}

// Load reads and decodes the config file at path, applying defaults for
// whatever the file omits and deriving the time.Duration fields from
// their seconds counterparts. A missing file is not an error — as in the
// original config package, defaults are used and a warning is logged.
func Load(path string) (*Config, error) {
	cfg := defaults()

	f, err := os.Open(path)
	if err != nil {
		log.Warning.Printf("unable to open config file %q, defaults will be used: %s", path, err)
		applyDerived(&cfg)
		return &cfg, nil
	}
	defer f.Close()

	decoder := json.NewDecoder(f)
	decoder.UseNumber()
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	applyDerived(&cfg)
	return &cfg, Validate(&cfg)
}

func applyDerived(cfg *Config) {
	cfg.Performance.MinAnnounceInterval = time.Duration(cfg.Performance.MinAnnounceIntervalSeconds) * time.Second
	cfg.Performance.CleanupInterval = time.Duration(cfg.Performance.CleanupIntervalSeconds) * time.Second
	cfg.Performance.PeerTimeout = time.Duration(cfg.Performance.PeerTimeoutSeconds) * time.Second
}

// Validate checks the one cross-field invariant on timing config: the reaper must not evict peers that just announced.
func Validate(cfg *Config) error {
	if cfg.Performance.PeerTimeout <= cfg.Performance.CleanupInterval {
		return ErrPeerTimeoutTooShort
	}
	return nil
}

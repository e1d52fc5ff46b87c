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

package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, contents map[string]interface{}) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("creating temp config: %v", err)
	}
	defer f.Close()
	if err := json.NewEncoder(f).Encode(contents); err != nil {
		t.Fatalf("encoding temp config: %v", err)
	}
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.json"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 34000 {
		t.Fatalf("expected default port 34000, got %d", cfg.Server.Port)
	}
	if cfg.Performance.PeerTimeout <= cfg.Performance.CleanupInterval {
		t.Fatalf("default config should satisfy peer_timeout > cleanup_interval")
	}
}

func TestLoadDecodesAndDerivesDurations(t *testing.T) {
	path := writeConfig(t, map[string]interface{}{
		"server": map[string]interface{}{"port": 9000},
		"performance": map[string]interface{}{
			"min_announce_interval":   600,
			"cleanup_interval":        60,
			"peer_timeout":            1800,
			"max_requests_per_minute": 120,
		},
		"sync": map[string]interface{}{"data_endpoint": "https://example.test/api", "api_key": "secret"},
	})

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 9000 {
		t.Fatalf("expected port 9000, got %d", cfg.Server.Port)
	}
	if cfg.Performance.PeerTimeout.Seconds() != 1800 {
		t.Fatalf("expected peer timeout 1800s, got %v", cfg.Performance.PeerTimeout)
	}
	if cfg.Sync.APIKey != "secret" {
		t.Fatalf("expected api key to decode, got %q", cfg.Sync.APIKey)
	}
}

func TestLoadRejectsPeerTimeoutNotExceedingCleanupInterval(t *testing.T) {
	path := writeConfig(t, map[string]interface{}{
		"performance": map[string]interface{}{
			"cleanup_interval": 120,
			"peer_timeout":     60,
		},
	})

	if _, err := Load(path); err != ErrPeerTimeoutTooShort {
		t.Fatalf("expected ErrPeerTimeoutTooShort, got %v", err)
	}
}

package bootstrap

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"tracker/cache"
)

func TestDecodeInfoHashRoundTrip(t *testing.T) {
	want := cache.InfoHash{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18, 19, 20}
	got, err := decodeInfoHash(hex.EncodeToString(want[:]))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != want {
		t.Fatalf("got %x want %x", got, want)
	}
}

func TestDecodeInfoHashRejectsWrongLength(t *testing.T) {
	if _, err := decodeInfoHash("abcd"); err == nil {
		t.Fatalf("expected error for short info_hash")
	}
}

func TestFetchAllPaginatesUntilEmpty(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		page := r.URL.Query().Get("page")

		var body apiPage
		if page == "1" {
			var ih cache.InfoHash
			ih[0] = 0xaa
			body = apiPage{Torrents: []apiTorrent{{ID: 1, InfoHash: hex.EncodeToString(ih[:]), IsFreeleech: true}}}
		}
		json.NewEncoder(w).Encode(body)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "key")
	torrents := cache.NewTorrentCache()
	users := cache.NewUserCache()

	if err := client.FetchAll(context.Background(), torrents, users); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected exactly 2 page fetches (one with data, one empty), got %d", calls)
	}
	if torrents.Len() != 1 {
		t.Fatalf("expected 1 torrent overlaid, got %d", torrents.Len())
	}
}

func TestStartWithEmptyLogAndAPILeavesCachesEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(apiPage{})
	}))
	defer srv.Close()

	logPath := filepath.Join(t.TempDir(), "tracker.log")
	state, err := Start(context.Background(), logPath, srv.URL, "key")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer state.Log.Close()

	if state.Torrents.Len() != 0 || state.Users.Len() != 0 {
		t.Fatalf("expected empty caches from an empty log and empty API")
	}
}

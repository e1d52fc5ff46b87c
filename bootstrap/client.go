// Package bootstrap implements the startup and reload sequence: opening
// and replaying the append-only log, then fetching known torrents/users
// from the external sync API and overlaying them onto the caches.
package bootstrap

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"tracker/cache"
	"tracker/log"
)

const (
	apiTimeout  = 30 * time.Second
	maxAPIPages = 1000
)

// apiTorrent mirrors the external API's per-torrent page entry.
type apiTorrent struct {
	ID          uint32 `json:"id"`
	InfoHash    string `json:"info_hash"`
	IsFreeleech bool   `json:"is_freeleech"`
}

// apiUser mirrors the external API's per-user page entry.
type apiUser struct {
	ID           uint32 `json:"id"`
	Passkey      string `json:"passkey"`
	UserClassID  uint8  `json:"user_class_id"`
	CanDownload  bool   `json:"can_download"`
	SecurityLock bool   `json:"security_locked"`
}

type apiPage struct {
	Torrents []apiTorrent `json:"torrents"`
	Users    []apiUser    `json:"users"`
}

// Client fetches known-entity pages from the external sync API.
type Client struct {
	http     *http.Client
	endpoint string
	apiKey   string
}

// NewClient builds a Client with a bounded timeout, so a slow or
// unreachable sync endpoint never leaves bootstrap hanging indefinitely.
func NewClient(endpoint, apiKey string) *Client {
	return &Client{
		http:     &http.Client{Timeout: apiTimeout},
		endpoint: endpoint,
		apiKey:   apiKey,
	}
}

// FetchAll pages through the external API, overlaying every torrent and
// user it returns onto the caches, until a page comes back with both
// arrays empty or the page cap is hit. Hitting the cap is logged rather
// than silently truncating the sync, per the "no silent caps" discipline.
func (c *Client) FetchAll(ctx context.Context, torrents *cache.TorrentCache, users *cache.UserCache) error {
	page := 1
	for {
		if page > maxAPIPages {
			log.Warning.Printf("bootstrap: external API exceeded %d pages, stopping sync early", maxAPIPages)
			return nil
		}

		data, err := c.fetchPage(ctx, page)
		if err != nil {
			return fmt.Errorf("bootstrap: fetching page %d: %w", page, err)
		}

		if len(data.Torrents) == 0 && len(data.Users) == 0 {
			return nil
		}

		for _, t := range data.Torrents {
			ih, err := decodeInfoHash(t.InfoHash)
			if err != nil {
				log.Warning.Printf("bootstrap: skipping torrent %d: %s", t.ID, err)
				continue
			}
			torrents.UpsertFromAPI(cache.APITorrent{ID: t.ID, InfoHash: ih, IsFreeleech: t.IsFreeleech})
		}

		for _, u := range data.Users {
			pk, err := decodePasskey(u.Passkey)
			if err != nil {
				log.Warning.Printf("bootstrap: skipping user %d: %s", u.ID, err)
				continue
			}
			users.UpsertFromAPI(cache.APIUser{
				ID:       u.ID,
				Passkey:  pk,
				Class:    u.UserClassID,
				IsActive: u.CanDownload && !u.SecurityLock,
			})
		}

		page++
	}
}

func (c *Client) fetchPage(ctx context.Context, page int) (*apiPage, error) {
	url := fmt.Sprintf("%s?page=%d", c.endpoint, page)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var data apiPage
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

func decodeInfoHash(s string) (cache.InfoHash, error) {
	var out cache.InfoHash
	raw, err := hex.DecodeString(s)
	if err != nil {
		return out, err
	}
	if len(raw) != len(out) {
		return out, fmt.Errorf("info_hash must decode to 20 bytes, got %d", len(raw))
	}
	copy(out[:], raw)
	return out, nil
}

// decodePasskey stores the API's 32-character passkey verbatim, the same
// raw form the announce parameters are looked up by.
func decodePasskey(s string) (cache.Passkey, error) {
	var out cache.Passkey
	if len(s) != len(out) {
		return out, fmt.Errorf("passkey must be 32 characters, got %d", len(s))
	}
	copy(out[:], s)
	return out, nil
}

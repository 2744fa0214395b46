package checker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/fediwatch/crawler/internal/domain"
)

// mastodonish is the set of software names whose peers live at the
// Mastodon-ish /api/v1/instance/peers endpoint (spec.md §6, Software Map).
var mastodonish = map[string]bool{
	"mastodon":   true,
	"pleroma":    true,
	"misskey":    true,
	"bookwyrm":   true,
	"smithereen": true,
	"lemmy":      true,
	"akkoma":     true,
}

var mastodonishMu sync.Mutex

// RegisterMastodonish extends the built-in Software Map with software
// names an operator's config file names as speaking the same
// /api/v1/instance/peers protocol. Meant to be called once during
// startup, before any fetchPeers call.
func RegisterMastodonish(names []string) {
	mastodonishMu.Lock()
	defer mastodonishMu.Unlock()
	for _, name := range names {
		mastodonish[name] = true
	}
}

const peertubePageSize = 100

// fetchPeers dispatches to the software-specific peers handler keyed on
// software (spec.md §4.2 step 5 / §6 Software Map), normalizing,
// deduplicating, and capping the result at maxPeers.
func fetchPeers(ctx context.Context, client *Client, cfg Config, host, software string, maxPeers int) ([]string, error) {
	var raw []string
	var err error

	switch {
	case mastodonish[software]:
		raw, err = fetchMastodonishPeers(ctx, client, cfg, host)
	case software == "peertube":
		raw, err = fetchPeertubePeers(ctx, client, cfg, host, maxPeers)
	default:
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return normalizePeers(raw, maxPeers), nil
}

func normalizePeers(raw []string, maxPeers int) []string {
	seen := make(map[string]bool, len(raw))
	out := make([]string, 0, len(raw))
	for _, candidate := range raw {
		hostname, err := domain.NormalizeHostname(candidate)
		if err != nil || seen[hostname] {
			continue
		}
		seen[hostname] = true
		out = append(out, hostname)
		if len(out) >= maxPeers {
			break
		}
	}
	return out
}

func fetchMastodonishPeers(ctx context.Context, client *Client, cfg Config, host string) ([]string, error) {
	target := fmt.Sprintf("https://%s/api/v1/instance/peers", host)
	resp, err := client.Get(ctx, target)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, &ProtocolError{Reason: fmt.Sprintf("peers endpoint returned status %d", resp.StatusCode)}
	}
	body, err := readBody(resp, cfg.MaxBodyBytes)
	if err != nil {
		return nil, err
	}

	var peers []string
	if err := json.Unmarshal(body, &peers); err != nil {
		return nil, &ProtocolError{Reason: fmt.Sprintf("decoding peers list: %s", err)}
	}
	return peers, nil
}

type peertubeActor struct {
	Host string `json:"host"`
}

type peertubeFollowEntry struct {
	Following *peertubeActor `json:"following"`
	Follower  *peertubeActor `json:"follower"`
}

type peertubeFollowPage struct {
	Total int                   `json:"total"`
	Data  []peertubeFollowEntry `json:"data"`
}

// fetchPeertubePeers paginates both follow directions (spec.md §6:
// "/api/v1/server/following?count=N&start=0 ..., extract
// .data[].following.host; also /api/v1/server/followers"), stopping once
// a page returns fewer entries than requested or maxPeers is reached.
func fetchPeertubePeers(ctx context.Context, client *Client, cfg Config, host string, maxPeers int) ([]string, error) {
	following, err := paginatePeertube(ctx, client, cfg, host, "following", maxPeers)
	if err != nil {
		return nil, err
	}
	followers, err := paginatePeertube(ctx, client, cfg, host, "followers", maxPeers)
	if err != nil {
		return nil, err
	}
	return append(following, followers...), nil
}

func paginatePeertube(ctx context.Context, client *Client, cfg Config, host, direction string, maxPeers int) ([]string, error) {
	var hosts []string
	for start := 0; len(hosts) < maxPeers; start += peertubePageSize {
		target := fmt.Sprintf("https://%s/api/v1/server/%s?count=%d&start=%d", host, direction, peertubePageSize, start)
		resp, err := client.Get(ctx, target)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			resp.Body.Close()
			return nil, &ProtocolError{Reason: fmt.Sprintf("peertube %s endpoint returned status %d", direction, resp.StatusCode)}
		}

		body, err := readBody(resp, cfg.MaxBodyBytes)
		if err != nil {
			return nil, err
		}

		var page peertubeFollowPage
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, &ProtocolError{Reason: fmt.Sprintf("decoding peertube %s page: %s", direction, err)}
		}

		for _, entry := range page.Data {
			if direction == "following" && entry.Following != nil {
				hosts = append(hosts, entry.Following.Host)
			} else if direction == "followers" && entry.Follower != nil {
				hosts = append(hosts, entry.Follower.Host)
			}
		}

		if len(page.Data) < peertubePageSize {
			break
		}
	}
	return hosts, nil
}

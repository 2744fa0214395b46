package checker

import (
	"context"
	"encoding/json"
	"fmt"
)

// isPrivate checks the family-specific privacy convention for software
// that exposes one (spec.md §4.2 step 4), grounded on
// _examples/original_source/src/checker/mod.rs's is_instance_private. A
// fetch or parse failure is treated as "not private" rather than as a
// check failure — the instance already answered nodeinfo successfully,
// and an unreachable secondary endpoint shouldn't override that.
func isPrivate(ctx context.Context, client *Client, cfg Config, host, software string) bool {
	switch softwareFamily(software) {
	case "gnusocial", "friendica":
		private, err := statusNetPrivate(ctx, client, cfg, host)
		if err != nil {
			return false
		}
		return private
	case "hubzilla":
		hidden, err := hubzillaHidden(ctx, client, cfg, host)
		if err != nil {
			return false
		}
		return hidden
	default:
		return false
	}
}

// softwareFamily normalizes the handful of spellings NodeInfo documents
// use for these three software names (spec.md §6 spells it "gnu-social";
// real instances report "gnusocial").
func softwareFamily(software string) string {
	switch software {
	case "gnu-social", "gnusocial":
		return "gnusocial"
	default:
		return software
	}
}

func statusNetPrivate(ctx context.Context, client *Client, cfg Config, host string) (bool, error) {
	target := fmt.Sprintf("https://%s/api/statusnet/config.json", host)
	resp, err := client.Get(ctx, target)
	if err != nil {
		return false, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return false, fmt.Errorf("checker: statusnet config returned status %d", resp.StatusCode)
	}
	body, err := readBody(resp, cfg.MaxBodyBytes)
	if err != nil {
		return false, err
	}

	var config struct {
		Site struct {
			Private bool `json:"private"`
		} `json:"site"`
	}
	if err := json.Unmarshal(body, &config); err != nil {
		return false, fmt.Errorf("checker: decoding statusnet config: %w", err)
	}
	return config.Site.Private, nil
}

func hubzillaHidden(ctx context.Context, client *Client, cfg Config, host string) (bool, error) {
	target := fmt.Sprintf("https://%s/siteinfo.json", host)
	resp, err := client.Get(ctx, target)
	if err != nil {
		return false, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return false, fmt.Errorf("checker: siteinfo.json returned status %d", resp.StatusCode)
	}
	body, err := readBody(resp, cfg.MaxBodyBytes)
	if err != nil {
		return false, err
	}

	var siteinfo struct {
		HideInStatistics bool `json:"hide_in_statistics"`
	}
	if err := json.Unmarshal(body, &siteinfo); err != nil {
		return false, fmt.Errorf("checker: decoding siteinfo.json: %w", err)
	}
	return siteinfo.HideInStatistics, nil
}

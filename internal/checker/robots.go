package checker

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/temoto/robotstxt"
)

// robotsChecker wraps a parsed robots.txt document. A nil *robotsChecker
// (or one with a nil data field) allows everything, matching the absence
// of a robots.txt entirely.
type robotsChecker struct {
	data *robotstxt.RobotsData
}

// fetchRobots resolves https://<host>/robots.txt once, up front, the way
// the teacher's HttpClient::new primes its matcher before any other
// request is made (_examples/original_source/src/checker/http_client.rs).
// A 4xx/5xx response is treated as "no robots.txt" (allow all), per
// robotstxt.FromStatusAndBytes semantics.
func fetchRobots(ctx context.Context, client *http.Client, cfg Config, host string) (*robotsChecker, error) {
	target := fmt.Sprintf("https://%s/robots.txt", host)
	resp, err := followRedirects(ctx, client, target, cfg, nil, originMismatchOnCrossOrigin)
	if err != nil {
		return nil, err
	}

	body, err := readBody(resp, cfg.MaxBodyBytes)
	if err != nil {
		return nil, err
	}

	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		return nil, fmt.Errorf("checker: parsing robots.txt: %w", err)
	}
	return &robotsChecker{data: data}, nil
}

// Allowed reports whether userAgent may fetch rawURL per the parsed
// robots.txt (spec.md §6: "A User-agent: MinoruFediverseCrawler block
// governing the crawler; Disallow: / opts the host out").
func (c *robotsChecker) Allowed(userAgent, rawURL string) bool {
	if c == nil || c.data == nil {
		return true
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return true
	}
	path := u.Path
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return c.data.FindGroup(userAgent).Test(path)
}

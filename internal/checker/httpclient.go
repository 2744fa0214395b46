// Package checker implements the per-host probe protocol (spec.md §4.2):
// robots check, well-known metadata locator, metadata fetch, privacy
// opt-out check, and software-specific peers fetch, all under strict
// time/size/redirect limits.
package checker

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"
)

// RobotsDeniedError reports that robots.txt disallows the crawler from
// fetching rawURL.
type RobotsDeniedError struct{ URL string }

func (e *RobotsDeniedError) Error() string { return fmt.Sprintf("robots.txt forbids %s", e.URL) }

// OriginMismatchError reports that a request left the probed host's origin
// mid-protocol: either the metadata href (spec.md §4.2 step 3) pointed
// elsewhere, or a redirect crossed origins past the well-known locator.
type OriginMismatchError struct{ Target string }

func (e *OriginMismatchError) Error() string {
	return fmt.Sprintf("left origin for %s", e.Target)
}

// MovedError reports a cross-origin redirect observed while resolving the
// well-known metadata locator itself — distinguished from
// OriginMismatchError because it signals host relocation, not a malformed
// metadata document.
type MovedError struct {
	Permanent bool
	Target    string
}

func (e *MovedError) Error() string {
	if e.Permanent {
		return fmt.Sprintf("permanently moved to %s", e.Target)
	}
	return fmt.Sprintf("temporarily moved to %s", e.Target)
}

// TooManyRedirectsError reports exceeding max_redirects same-origin hops.
type TooManyRedirectsError struct{}

func (e *TooManyRedirectsError) Error() string { return "too many redirects" }

// BodyTooLargeError reports a response body exceeding max_body_bytes.
type BodyTooLargeError struct{ Limit int64 }

func (e *BodyTooLargeError) Error() string {
	return fmt.Sprintf("response body exceeds %d bytes", e.Limit)
}

// Config holds the per-request limits spec.md §6 names for the Checker.
type Config struct {
	// UserAgent is the literal header value sent on every outbound
	// request: the descriptive "Minoru's Fediverse Crawler (+<info
	// URL>)" string, not the bare robots.txt product token.
	UserAgent string
	// RobotsUserAgent is the bare product token robots.txt group
	// matching keys on (e.g. "MinoruFediverseCrawler"), distinct from
	// the descriptive UserAgent actually sent on the wire.
	RobotsUserAgent  string
	ConnectTimeout   time.Duration
	ReadTimeout      time.Duration
	MaxRedirects     int
	MaxBodyBytes     int64
	MaxPeersPerCheck int
}

// Client performs GETs against one host, enforcing robots.txt, the
// same-origin redirect policy, and the hop/size limits in Config. A Client
// is scoped to a single check; it is not reused across hosts.
type Client struct {
	cfg    Config
	http   *http.Client
	robots *robotsChecker
}

// NewClient builds a Client for host, fetching and parsing its robots.txt
// up front — mirroring the teacher's HttpClient::new, which primes the
// robots matcher once per check rather than re-fetching it per request.
func NewClient(ctx context.Context, cfg Config, host string) (*Client, error) {
	dialer := &net.Dialer{Timeout: cfg.ConnectTimeout}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		TLSHandshakeTimeout:   cfg.ConnectTimeout,
		ResponseHeaderTimeout: cfg.ReadTimeout,
	}
	httpClient := &http.Client{
		Transport: transport,
		Timeout:   cfg.ReadTimeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	robots, err := fetchRobots(ctx, httpClient, cfg, host)
	if err != nil {
		return nil, fmt.Errorf("checker: fetching robots.txt: %w", err)
	}

	return &Client{cfg: cfg, http: httpClient, robots: robots}, nil
}

// GetLocator fetches rawURL, treating a cross-origin redirect as a
// relocation signal (MovedError) rather than a protocol failure. Used only
// for the well-known metadata locator (spec.md §4.2 step 2).
func (c *Client) GetLocator(ctx context.Context, rawURL string) (*http.Response, error) {
	return followRedirects(ctx, c.http, rawURL, c.cfg, c.robots.Allowed, movedOnCrossOrigin)
}

// Get fetches rawURL, treating a cross-origin redirect as OriginMismatch.
// Used for the metadata document, privacy endpoints, and peers endpoints.
func (c *Client) Get(ctx context.Context, rawURL string) (*http.Response, error) {
	return followRedirects(ctx, c.http, rawURL, c.cfg, c.robots.Allowed, originMismatchOnCrossOrigin)
}

func movedOnCrossOrigin(target *url.URL, permanent bool) error {
	return &MovedError{Permanent: permanent, Target: target.Hostname()}
}

func originMismatchOnCrossOrigin(target *url.URL, permanent bool) error {
	return &OriginMismatchError{Target: target.Hostname()}
}

// followRedirects GETs rawURL, following only same-origin redirects up to
// cfg.MaxRedirects hops (spec.md §4.2: "Redirect policy (applies to all
// requests)"), so the robots.txt fetch and every metadata/peers request
// share one implementation of the policy. allowed gates each hop against
// robots.txt; pass a function that always returns true to skip that check
// (used while bootstrapping the robots matcher itself).
func followRedirects(ctx context.Context, httpClient *http.Client, rawURL string, cfg Config, allowed func(string, string) bool, onCrossOrigin func(*url.URL, bool) error) (*http.Response, error) {
	origin, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("checker: invalid url %q: %w", rawURL, err)
	}

	current := rawURL
	for hops := 0; ; {
		if allowed != nil && !allowed(cfg.RobotsUserAgent, current) {
			return nil, &RobotsDeniedError{URL: current}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, current, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", cfg.UserAgent)
		req.Header.Set("Accept", "application/json")

		resp, err := httpClient.Do(req)
		if err != nil {
			return nil, err
		}

		if !isRedirect(resp.StatusCode) {
			return resp, nil
		}

		loc := resp.Header.Get("Location")
		resp.Body.Close()
		if loc == "" {
			return nil, fmt.Errorf("checker: redirect from %s carries no Location header", current)
		}
		curURL, err := url.Parse(current)
		if err != nil {
			return nil, err
		}
		target, err := url.Parse(loc)
		if err != nil {
			return nil, fmt.Errorf("checker: invalid redirect location %q: %w", loc, err)
		}
		target = curURL.ResolveReference(target)

		if !sameOrigin(origin, target) {
			permanent := resp.StatusCode == http.StatusMovedPermanently || resp.StatusCode == http.StatusPermanentRedirect
			return nil, onCrossOrigin(target, permanent)
		}

		hops++
		if hops > cfg.MaxRedirects {
			return nil, &TooManyRedirectsError{}
		}
		current = target.String()
	}
}

// readBody reads resp's body up to limit+1 bytes, closing it, and reports
// BodyTooLargeError if the cap was hit (spec.md §4.2, "response body
// capped at max_body_bytes — exceeding produces a failure outcome").
func readBody(resp *http.Response, limit int64) ([]byte, error) {
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("checker: reading response body: %w", err)
	}
	if int64(len(body)) > limit {
		return nil, &BodyTooLargeError{Limit: limit}
	}
	return body, nil
}

func isRedirect(status int) bool {
	switch status {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	default:
		return false
	}
}

// sameOrigin implements spec.md's glossary definition exactly: identical
// scheme, hostname, and port. Unlike the teacher's subdomain-inclusive
// is_same_origin, a subdomain is a different origin here.
func sameOrigin(a, b *url.URL) bool {
	return a.Scheme == b.Scheme && a.Hostname() == b.Hostname() && effectivePort(a) == effectivePort(b)
}

func effectivePort(u *url.URL) string {
	if p := u.Port(); p != "" {
		return p
	}
	switch u.Scheme {
	case "https":
		return "443"
	case "http":
		return "80"
	default:
		return ""
	}
}

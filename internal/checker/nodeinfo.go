package checker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// nodeInfoLink is one entry of a well-known NodeInfo JRD's links array.
type nodeInfoLink struct {
	Rel  string `json:"rel"`
	Href string `json:"href"`
}

// nodeInfoPointer accepts both shapes real-world implementations emit: a
// proper JSON array of links, and the single-object shape some Lemmy
// versions produce (grounded on
// _examples/original_source/src/checker/mod.rs's NodeInfoPointerRaw
// untagged enum and its "broken_lemmy_nodeinfo_pointer" test).
type nodeInfoPointer struct {
	Links []nodeInfoLink
}

func (p *nodeInfoPointer) UnmarshalJSON(data []byte) error {
	var raw struct {
		Links json.RawMessage `json:"links"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var asArray []nodeInfoLink
	if err := json.Unmarshal(raw.Links, &asArray); err == nil {
		p.Links = asArray
		return nil
	}

	var asSingle nodeInfoLink
	if err := json.Unmarshal(raw.Links, &asSingle); err == nil {
		p.Links = []nodeInfoLink{asSingle}
		return nil
	}

	return fmt.Errorf("checker: nodeinfo \"links\" is neither an array nor an object")
}

// supportedNodeInfoSchemas lists the schema URIs this crawler accepts, in
// ascending priority order. spec.md §6 narrows this to 2.0 and 2.1 only —
// unlike the teacher, which also accepted the older 1.0/1.1 schemas.
var supportedNodeInfoSchemas = []string{
	"http://nodeinfo.diaspora.software/ns/schema/2.0",
	"http://nodeinfo.diaspora.software/ns/schema/2.1",
}

func pickNodeInfoHref(p *nodeInfoPointer) (string, error) {
	best := -1
	href := ""
	for _, link := range p.Links {
		for i, schema := range supportedNodeInfoSchemas {
			if link.Rel == schema && i > best {
				best = i
				href = link.Href
			}
		}
	}
	if best < 0 {
		return "", &ProtocolError{Reason: fmt.Sprintf("no supported NodeInfo schema among %d links", len(p.Links))}
	}
	return href, nil
}

// ProtocolError reports a structurally invalid response (spec.md §4.3:
// "oversized or malformed frames" and "must be a JSON object declaring a
// software.name string").
type ProtocolError struct{ Reason string }

func (e *ProtocolError) Error() string { return e.Reason }

func fetchNodeInfoPointer(ctx context.Context, client *Client, cfg Config, host string) (*nodeInfoPointer, error) {
	target := fmt.Sprintf("https://%s/.well-known/nodeinfo", host)
	resp, err := client.GetLocator(ctx, target)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, &ProtocolError{Reason: fmt.Sprintf("nodeinfo locator returned status %d", resp.StatusCode)}
	}

	body, err := readBody(resp, cfg.MaxBodyBytes)
	if err != nil {
		return nil, err
	}

	var pointer nodeInfoPointer
	if err := json.Unmarshal(body, &pointer); err != nil {
		return nil, &ProtocolError{Reason: fmt.Sprintf("decoding nodeinfo pointer: %s", err)}
	}
	return &pointer, nil
}

type nodeInfoDocument struct {
	Software struct {
		Name string `json:"name"`
	} `json:"software"`
}

// fetchSoftwareName resolves the well-known locator, picks the highest
// supported schema's href, enforces that href's origin matches host
// (spec.md §4.2 step 3), fetches it, and extracts software.name.
func fetchSoftwareName(ctx context.Context, client *Client, cfg Config, host string) (string, error) {
	pointer, err := fetchNodeInfoPointer(ctx, client, cfg, host)
	if err != nil {
		return "", err
	}

	href, err := pickNodeInfoHref(pointer)
	if err != nil {
		return "", err
	}

	hrefURL, err := url.Parse(href)
	if err != nil {
		return "", &ProtocolError{Reason: fmt.Sprintf("nodeinfo href %q is not a valid URL", href)}
	}
	hostOrigin := &url.URL{Scheme: "https", Host: host}
	if !sameOrigin(hostOrigin, hrefURL) {
		return "", &OriginMismatchError{Target: hrefURL.Hostname()}
	}

	resp, err := client.Get(ctx, href)
	if err != nil {
		return "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return "", &ProtocolError{Reason: fmt.Sprintf("nodeinfo document returned status %d", resp.StatusCode)}
	}

	body, err := readBody(resp, cfg.MaxBodyBytes)
	if err != nil {
		return "", err
	}

	var doc nodeInfoDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return "", &ProtocolError{Reason: fmt.Sprintf("decoding nodeinfo document: %s", err)}
	}
	if doc.Software.Name == "" {
		return "", &ProtocolError{Reason: "nodeinfo document has no software.name"}
	}

	return strings.ToLower(doc.Software.Name), nil
}

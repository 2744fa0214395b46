// Package softwaremap loads operator-supplied extensions to the
// Software Map (spec.md §6: software.name -> peers endpoint), letting a
// new Mastodon-API-compatible fork be recognized without a rebuild.
package softwaremap

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Map lists software names beyond the built-in set that speak the same
// peers protocol as an existing family.
type Map struct {
	MastodonishExtra []string `yaml:"mastodonish_extra"`
}

// Load reads and parses the Software Map file at path. An empty path is
// the caller's signal to skip loading and fall back to built-in
// defaults, not an error from Load itself.
func Load(path string) (*Map, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading software map %s: %w", path, err)
	}

	var m Map
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing software map %s: %w", path, err)
	}
	return &m, nil
}

// Package marketplace resolves claude-plugin declarations: it loads a
// marketplace catalog from a local directory, a GitHub repo, a git URL, or
// a direct marketplace.json URL, finds the named plugin, and turns its
// source into an ordinary package declaration.
//
// The plugin -> marketplace -> declaration indirection is a single bounded
// resolve step: a marketplace plugin source is never itself a
// claude-plugin declaration.
package marketplace

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tailscale/hujson"

	"github.com/skillkit/sk/internal/skerr"
)

// CatalogPath is where repo-backed marketplaces keep their catalog,
// relative to the marketplace root.
const CatalogPath = ".claude-plugin/marketplace.json"

// Info is a parsed marketplace.json.
type Info struct {
	Name    string   `json:"name"`
	Plugins []Plugin `json:"plugins"`

	// PluginRoot optionally re-roots relative plugin sources inside the
	// marketplace checkout. Only filesystem-backed marketplaces may set
	// it; a URL-fetched catalog has no directory to root against.
	PluginRoot string `json:"pluginRoot,omitempty"`
}

// Plugin is one catalog entry.
type Plugin struct {
	Name   string `json:"name"`
	Source Source `json:"source"`
}

// SourceKind discriminates plugin source shapes.
type SourceKind string

const (
	SourcePath   SourceKind = "path"
	SourceGithub SourceKind = "github"
	SourceURL    SourceKind = "url"
)

// Source is a plugin's origin: a bare relative path string, or a tagged
// object {"source": "github", "repo": ...} / {"source": "url", "url": ...}.
type Source struct {
	Kind SourceKind
	Path string
	Repo string
	URL  string
}

// UnmarshalJSON accepts both the string form and the tagged object form.
func (s *Source) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		*s = Source{Kind: SourcePath, Path: str}
		return nil
	}

	var obj struct {
		Source string `json:"source"`
		Repo   string `json:"repo"`
		URL    string `json:"url"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("plugin source must be a string or an object: %w", err)
	}
	switch obj.Source {
	case "github":
		*s = Source{Kind: SourceGithub, Repo: obj.Repo}
	case "url":
		*s = Source{Kind: SourceURL, URL: obj.URL}
	default:
		return fmt.Errorf("unknown plugin source kind %q", obj.Source)
	}
	return nil
}

// parseInfo parses marketplace.json bytes. hujson standardization tolerates
// the comments and trailing commas common in hand-maintained catalogs.
func parseInfo(data []byte, origin string) (*Info, error) {
	std, err := hujson.Standardize(data)
	if err != nil {
		return nil, skerr.Wrap(skerr.KindParse, err, "standardizing %s", origin)
	}
	var info Info
	if err := json.Unmarshal(std, &info); err != nil {
		return nil, skerr.Wrap(skerr.KindParse, err, "parsing %s", origin)
	}
	if info.Name == "" {
		return nil, skerr.New(skerr.KindValidation, "%s: marketplace name is required", origin)
	}
	return &info, nil
}

// FindPlugin does a linear lookup of a plugin by name.
func FindPlugin(info *Info, name string) (Plugin, error) {
	for _, p := range info.Plugins {
		if p.Name == name {
			return p, nil
		}
	}
	return Plugin{}, skerr.New(skerr.KindNotFound,
		"plugin %q not found in marketplace %q", name, info.Name)
}

// stripGithubPrefix removes the github:/gh: shorthand prefixes.
func stripGithubPrefix(s string) (string, bool) {
	for _, prefix := range []string{"github:", "gh:"} {
		if strings.HasPrefix(s, prefix) {
			return strings.TrimPrefix(s, prefix), true
		}
	}
	return s, false
}

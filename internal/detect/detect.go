// Package detect classifies a fetched package tree into structural
// signatures and selects the one to install from.
//
// A tree may carry several signatures at once (a repo can be both a plugin
// and a dev marketplace); selection picks exactly one winner by a
// specificity ordering: an explicit manifest beats an explicit plugin
// boundary, which beats looser directory conventions.
package detect

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/tailscale/hujson"

	"github.com/skillkit/sk/internal/manifest"
	"github.com/skillkit/sk/internal/skerr"
)

// SkillFileName is the per-skill declaration file.
const SkillFileName = "SKILL.md"

// ClaudePluginDir holds plugin and marketplace metadata in packaged repos.
const ClaudePluginDir = ".claude-plugin"

const (
	pluginJSONName      = "plugin.json"
	marketplaceJSONName = "marketplace.json"
	pluginSkillsDirName = "skills"
)

// Kind discriminates structural signatures.
type Kind string

const (
	KindManifest    Kind = "manifest"
	KindPlugin      Kind = "plugin"
	KindMarketplace Kind = "marketplace"
	KindSubdir      Kind = "subdir"
	KindSingle      Kind = "single"
)

// Structure is one structural signature found under a package root. Only
// the fields for its Kind are set.
type Structure struct {
	Kind Kind

	// manifest
	ManifestPath string
	HasPackage   bool // [package] table present

	// plugin
	PluginJSONPath string
	PluginName     string
	SkillsDir      string // empty when the plugin has no skills directory

	// marketplace
	MarketplaceJSONPath string

	// subdir
	RootDir string

	// single
	SkillPath string
}

// All returns every structural signature found under root.
func All(root string) ([]Structure, error) {
	var structures []Structure

	manifestPath := filepath.Join(root, manifest.FileName)
	if fileExists(manifestPath) {
		m, err := manifest.ParseFile(manifestPath)
		if err != nil {
			return nil, err
		}
		structures = append(structures, Structure{
			Kind:         KindManifest,
			ManifestPath: manifestPath,
			HasPackage:   m.HasPackage(),
		})
	}

	pluginJSON := filepath.Join(root, ClaudePluginDir, pluginJSONName)
	if fileExists(pluginJSON) {
		name, err := readPluginName(pluginJSON)
		if err != nil {
			return nil, err
		}
		s := Structure{Kind: KindPlugin, PluginJSONPath: pluginJSON, PluginName: name}
		if skillsDir := filepath.Join(root, pluginSkillsDirName); dirExists(skillsDir) {
			s.SkillsDir = skillsDir
		}
		structures = append(structures, s)
	}

	marketplaceJSON := filepath.Join(root, ClaudePluginDir, marketplaceJSONName)
	if fileExists(marketplaceJSON) {
		structures = append(structures, Structure{Kind: KindMarketplace, MarketplaceJSONPath: marketplaceJSON})
	}

	hasChildSkills, err := hasSkillSubdirs(root)
	if err != nil {
		return nil, skerr.Wrap(skerr.KindIO, err, "scanning %s", root)
	}
	if hasChildSkills {
		structures = append(structures, Structure{Kind: KindSubdir, RootDir: root})
	}

	if rootSkill := filepath.Join(root, SkillFileName); fileExists(rootSkill) {
		structures = append(structures, Structure{Kind: KindSingle, SkillPath: rootSkill})
	}

	return structures, nil
}

// Select picks the single structure skills are extracted from.
//
// fromPlugin marks packages resolved from a claude-plugin declaration;
// those bypass the general precedence and must present a plugin structure.
func Select(structures []Structure, fromPlugin bool) (Structure, error) {
	if fromPlugin {
		for _, s := range structures {
			if s.Kind == KindPlugin {
				return s, nil
			}
		}
		return Structure{}, skerr.New(skerr.KindValidation,
			"package is not a plugin: expected %s/%s", ClaudePluginDir, pluginJSONName)
	}

	byKind := make(map[Kind]Structure, len(structures))
	for _, s := range structures {
		if _, ok := byKind[s.Kind]; !ok {
			byKind[s.Kind] = s
		}
	}

	// A manifest present purely for dependency bookkeeping (no [package]
	// table) is not installable and drops out of consideration.
	if s, ok := byKind[KindManifest]; ok && s.HasPackage {
		return s, nil
	}
	if s, ok := byKind[KindPlugin]; ok {
		return s, nil
	}
	if s, ok := byKind[KindSubdir]; ok {
		return s, nil
	}
	if s, ok := byKind[KindSingle]; ok {
		return s, nil
	}
	if _, ok := byKind[KindMarketplace]; ok {
		return Structure{}, skerr.New(skerr.KindValidation,
			"package is a marketplace catalog, not an installable package; add a specific plugin with type = \"claude-plugin\"")
	}
	return Structure{}, skerr.New(skerr.KindValidation,
		"no installable structure found: expected a %s, a plugin, skill directories, or a root %s",
		manifest.FileName, SkillFileName)
}

// hasSkillSubdirs reports whether any immediate child directory of root
// contains a skill file.
func hasSkillSubdirs(root string) (bool, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return false, err
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if fileExists(filepath.Join(root, entry.Name(), SkillFileName)) {
			return true, nil
		}
	}
	return false, nil
}

// readPluginName reads the plugin's declared name from plugin.json. Only
// the name field is consumed; everything else in the file is ignored.
func readPluginName(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", skerr.Wrap(skerr.KindIO, err, "reading %s", path)
	}
	std, err := hujson.Standardize(data)
	if err != nil {
		return "", skerr.Wrap(skerr.KindParse, err, "parsing %s", path)
	}
	var meta struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(std, &meta); err != nil {
		return "", skerr.Wrap(skerr.KindParse, err, "parsing %s", path)
	}
	return meta.Name, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

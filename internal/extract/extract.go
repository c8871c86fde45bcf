// Package extract reads skills out of a detected package structure. The
// skill name is authoritative from the skill file's own frontmatter; the
// containing directory name is only a fallback identity for subdir and
// single packages.
package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/skillkit/sk/internal/detect"
	"github.com/skillkit/sk/internal/manifest"
	"github.com/skillkit/sk/internal/skerr"
)

// Skill is one extracted skill: its declared name and the directory its
// files live in.
type Skill struct {
	Name       string
	SourcePath string
}

// NoSkillsError marks a plugin whose skills directory is missing or holds
// no valid skills. During bulk sync the orchestrator downgrades it to a
// warning and skips the package; on an explicit add it stays a hard error.
type NoSkillsError struct {
	PluginPath string
}

// Error implements the error interface.
func (e *NoSkillsError) Error() string {
	return fmt.Sprintf("plugin at %s provides no skills", e.PluginPath)
}

// FromStructure extracts skills from the selected structure.
func FromStructure(s detect.Structure) ([]Skill, error) {
	switch s.Kind {
	case detect.KindManifest:
		return fromManifest(s.ManifestPath)
	case detect.KindPlugin:
		return fromPlugin(s)
	case detect.KindSubdir:
		return fromSubdir(s.RootDir)
	case detect.KindSingle:
		return fromSingle(s.SkillPath)
	case detect.KindMarketplace:
		return nil, skerr.New(skerr.KindValidation, "marketplace catalogs are not directly installable")
	default:
		return nil, skerr.New(skerr.KindValidation, "unknown structure kind %q", s.Kind)
	}
}

// fromManifest reads [exports.auto_discover] and extracts from the
// exported skills directory as if it were a subdir package.
func fromManifest(manifestPath string) ([]Skill, error) {
	m, err := manifest.ParseFile(manifestPath)
	if err != nil {
		return nil, err
	}
	if !m.AutoDiscover.Enabled {
		return nil, skerr.New(skerr.KindValidation,
			"%s disables skill auto-discovery; nothing to install", manifestPath)
	}
	skillsDir := filepath.Join(m.Dir, filepath.FromSlash(m.AutoDiscover.Dir))
	if !dirExists(skillsDir) {
		return nil, skerr.New(skerr.KindValidation,
			"exported skills directory %s does not exist", skillsDir)
	}
	skills, err := fromSubdir(skillsDir)
	if err != nil {
		return nil, err
	}
	if len(skills) == 0 {
		return nil, skerr.New(skerr.KindValidation,
			"exported skills directory %s contains no skills", skillsDir)
	}
	return skills, nil
}

// fromPlugin extracts a plugin's skills directory. A plugin must actually
// provide skills; absence is a NoSkillsError so the caller can decide
// between warning and aborting.
func fromPlugin(s detect.Structure) ([]Skill, error) {
	pluginRoot := filepath.Dir(filepath.Dir(s.PluginJSONPath))
	if s.SkillsDir == "" {
		return nil, &NoSkillsError{PluginPath: pluginRoot}
	}
	skills, err := fromSubdir(s.SkillsDir)
	if err != nil {
		return nil, err
	}
	if len(skills) == 0 {
		return nil, &NoSkillsError{PluginPath: pluginRoot}
	}
	return skills, nil
}

// fromSubdir treats every immediate child directory containing a skill
// file as one skill. Children without a skill file are ignored; children
// with an invalid skill file abort the extraction.
func fromSubdir(root string) ([]Skill, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, skerr.Wrap(skerr.KindIO, err, "reading %s", root)
	}

	var skills []Skill
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		skillDir := filepath.Join(root, entry.Name())
		skillFile := filepath.Join(skillDir, detect.SkillFileName)
		if !fileExists(skillFile) {
			continue
		}
		meta, err := ParseSkillFile(skillFile)
		if err != nil {
			return nil, err
		}
		name := meta.Name
		if name == "" {
			name = entry.Name()
		}
		skills = append(skills, Skill{Name: name, SourcePath: skillDir})
	}

	sort.Slice(skills, func(i, j int) bool { return skills[i].Name < skills[j].Name })
	return skills, nil
}

// fromSingle treats the package root as exactly one skill.
func fromSingle(skillPath string) ([]Skill, error) {
	meta, err := ParseSkillFile(skillPath)
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(skillPath)
	name := meta.Name
	if name == "" {
		name = filepath.Base(dir)
	}
	return []Skill{{Name: name, SourcePath: dir}}, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

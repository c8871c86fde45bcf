// Package manifest parses skills.toml files and coerces raw dependency
// values into validated, immutable declarations.
//
// Parsing is a strict pipeline: TOML syntax, then schema shape, then
// semantic coercion. The first failure aborts the whole parse -- there are
// no partial manifests.
package manifest

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/BurntSushi/toml"

	"github.com/skillkit/sk/internal/skerr"
)

// FileName is the manifest file name sk looks for.
const FileName = "skills.toml"

// DefaultSkillsDir is the auto-discovery root used when
// [exports.auto_discover] does not override it.
const DefaultSkillsDir = "./skills"

// Manifest is a fully coerced skills.toml.
type Manifest struct {
	Package      *PackageSection
	Agents       map[string]bool
	Dependencies map[string]Dependency // keyed by alias
	AutoDiscover AutoDiscover

	Path string // absolute path to the manifest file
	Dir  string // directory containing the manifest
}

// PackageSection is the [package] table. Its presence marks a manifest as
// describing an installable package (structure detection relies on this).
type PackageSection struct {
	Name        string `toml:"name"`
	Version     string `toml:"version,omitempty"`
	Description string `toml:"description,omitempty"`
}

// AutoDiscover is the coerced [exports.auto_discover] table.
type AutoDiscover struct {
	Enabled bool
	Dir     string // relative to the manifest dir; DefaultSkillsDir when unset
}

// Dependency pairs a declaration with its origin.
type Dependency struct {
	Origin PackageOrigin
	Decl   Declaration
}

// Aliases returns the dependency aliases in sorted order for deterministic
// iteration.
func (m *Manifest) Aliases() []string {
	aliases := make([]string, 0, len(m.Dependencies))
	for alias := range m.Dependencies {
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)
	return aliases
}

// EnabledAgents returns the agent IDs enabled in [agents], sorted.
func (m *Manifest) EnabledAgents() []string {
	var ids []string
	for id, enabled := range m.Agents {
		if enabled {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// HasPackage reports whether the manifest declares a [package] table.
func (m *Manifest) HasPackage() bool { return m.Package != nil }

// rawManifest is the schema-level shape decoded straight from TOML.
// Dependency values stay untyped here; coercion dispatches on their shape.
type rawManifest struct {
	Package      *PackageSection `toml:"package"`
	Agents       map[string]bool `toml:"agents"`
	Dependencies map[string]any  `toml:"dependencies"`
	Exports      rawExports      `toml:"exports"`
}

type rawExports struct {
	AutoDiscover rawAutoDiscover `toml:"auto_discover"`
}

type rawAutoDiscover struct {
	// Skills is either a relative path string or false to disable.
	Skills any `toml:"skills"`
}

// ParseFile reads and parses the manifest at path.
func ParseFile(path string) (*Manifest, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, skerr.Wrap(skerr.KindIO, err, "resolving manifest path %s", path)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, skerr.Wrap(skerr.KindIO, err, "reading manifest %s", abs)
	}
	return Parse(data, abs)
}

// Parse parses manifest bytes. manifestPath must be the absolute path of
// the file the bytes came from; relative local dependency paths are
// resolved against its directory.
func Parse(data []byte, manifestPath string) (*Manifest, error) {
	var raw rawManifest
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, skerr.Wrap(skerr.KindParse, err, "parsing %s", manifestPath)
	}

	dir := filepath.Dir(manifestPath)

	m := &Manifest{
		Package:      raw.Package,
		Agents:       raw.Agents,
		Dependencies: make(map[string]Dependency, len(raw.Dependencies)),
		Path:         manifestPath,
		Dir:          dir,
	}

	ad, err := coerceAutoDiscover(raw.Exports.AutoDiscover)
	if err != nil {
		return nil, err
	}
	m.AutoDiscover = ad

	for alias, value := range raw.Dependencies {
		if err := ValidateAlias(alias); err != nil {
			return nil, err
		}
		decl, err := CoerceDeclaration(alias, value, dir)
		if err != nil {
			return nil, err
		}
		m.Dependencies[alias] = Dependency{
			Origin: PackageOrigin{Alias: alias, ManifestPath: manifestPath},
			Decl:   decl,
		}
	}

	return m, nil
}

// coerceAutoDiscover validates [exports.auto_discover].skills, which is
// either a relative path string or the literal false.
func coerceAutoDiscover(raw rawAutoDiscover) (AutoDiscover, error) {
	switch v := raw.Skills.(type) {
	case nil:
		return AutoDiscover{Enabled: true, Dir: DefaultSkillsDir}, nil
	case string:
		if v == "" {
			return AutoDiscover{}, skerr.New(skerr.KindValidation,
				"exports.auto_discover.skills must not be empty")
		}
		if filepath.IsAbs(v) {
			return AutoDiscover{}, skerr.New(skerr.KindValidation,
				"exports.auto_discover.skills must be a relative path, got %q", v)
		}
		return AutoDiscover{Enabled: true, Dir: v}, nil
	case bool:
		if v {
			return AutoDiscover{}, skerr.New(skerr.KindValidation,
				"exports.auto_discover.skills accepts a path or false, got true")
		}
		return AutoDiscover{Enabled: false}, nil
	default:
		return AutoDiscover{}, skerr.New(skerr.KindValidation,
			"exports.auto_discover.skills accepts a path or false, got %T", v)
	}
}

// Find walks upward from startDir looking for a skills.toml. It returns the
// manifest path, or a not_found error if the filesystem root is reached.
func Find(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", skerr.Wrap(skerr.KindIO, err, "resolving %s", startDir)
	}
	for {
		candidate := filepath.Join(dir, FileName)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", skerr.New(skerr.KindNotFound,
				"no %s found in %s or any parent directory", FileName, startDir)
		}
		dir = parent
	}
}

// Package plan maps extracted skills to an agent's target filesystem
// layout. Planning is pure and deterministic, so the same plan backs both
// dry-run previews and real execution.
package plan

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/skillkit/sk/internal/extract"
	"github.com/skillkit/sk/internal/skerr"
)

// PackageSkills is the extraction result of one package, keyed by its
// declaring alias.
type PackageSkills struct {
	Alias  string
	Skills []extract.Skill

	// Link requests symlink installation (local packages: edits to the
	// source directory reflect live without re-syncing).
	Link bool
}

// Task is one planned install: copy or link SourcePath to TargetPath.
type Task struct {
	TargetName string // alias-prefixed directory name under the skills root
	TargetPath string
	SourcePath string
	Link       bool
}

// Plan is the full desired install set for one agent.
type Plan struct {
	Tasks []Task
}

// TargetNames returns the planned target names in plan order.
func (p Plan) TargetNames() []string {
	names := make([]string, len(p.Tasks))
	for i, t := range p.Tasks {
		names[i] = t.TargetName
	}
	return names
}

var sanitizeRegexp = regexp.MustCompile(`[^a-zA-Z0-9-]`)

// SanitizeName normalizes a skill name for use as a directory name.
func SanitizeName(name string) string {
	name = strings.ToLower(name)
	name = sanitizeRegexp.ReplaceAllString(name, "-")
	name = strings.Trim(name, "-")
	if len(name) > 200 {
		name = name[:200]
	}
	if name == "" {
		name = "unnamed-skill"
	}
	return name
}

// TargetName derives the install directory name for a skill. The alias
// prefix keeps identically named skills from different packages apart.
func TargetName(alias, skillName string) string {
	return alias + "-" + SanitizeName(skillName)
}

// Build maps every package's skills onto the agent's skills root.
func Build(skillsRoot string, pkgs []PackageSkills) Plan {
	var tasks []Task
	for _, pkg := range pkgs {
		for _, skill := range pkg.Skills {
			name := TargetName(pkg.Alias, skill.Name)
			tasks = append(tasks, Task{
				TargetName: name,
				TargetPath: filepath.Join(skillsRoot, name),
				SourcePath: skill.SourcePath,
				Link:       pkg.Link,
			})
		}
	}
	return Plan{Tasks: tasks}
}

// Validate rejects target-name collisions across the whole desired set.
// Collisions can only come from duplicate skill names within one package
// (aliases are unique and prefix every name).
func Validate(pkgs []PackageSkills) error {
	seen := make(map[string]string) // target name -> alias
	for _, pkg := range pkgs {
		for _, skill := range pkg.Skills {
			name := TargetName(pkg.Alias, skill.Name)
			if prev, ok := seen[name]; ok {
				return skerr.New(skerr.KindValidation,
					"skill name collision: %q is provided twice (packages %q and %q)",
					name, prev, pkg.Alias)
			}
			seen[name] = pkg.Alias
		}
	}
	return nil
}

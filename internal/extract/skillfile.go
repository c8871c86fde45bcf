package extract

import (
	"bufio"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/skillkit/sk/internal/skerr"
)

// SkillMeta is the YAML frontmatter parsed from a SKILL.md file.
type SkillMeta struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	License     string `yaml:"license,omitempty"`
}

// ParseSkillFile reads and parses the YAML frontmatter of a SKILL.md.
// The frontmatter block is required; the name field is validated by the
// caller, which knows whether a directory-name fallback applies.
func ParseSkillFile(path string) (*SkillMeta, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, skerr.Wrap(skerr.KindIO, err, "opening %s", path)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)

	if !scanner.Scan() {
		return nil, skerr.New(skerr.KindParse, "empty skill file: %s", path)
	}
	if strings.TrimSpace(scanner.Text()) != "---" {
		return nil, skerr.New(skerr.KindParse, "no frontmatter in %s", path)
	}

	var frontmatter strings.Builder
	closed := false
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "---" {
			closed = true
			break
		}
		frontmatter.WriteString(line)
		frontmatter.WriteString("\n")
	}
	if err := scanner.Err(); err != nil {
		return nil, skerr.Wrap(skerr.KindIO, err, "reading %s", path)
	}
	if !closed {
		return nil, skerr.New(skerr.KindParse, "unterminated frontmatter in %s", path)
	}

	var meta SkillMeta
	if err := yaml.Unmarshal([]byte(frontmatter.String()), &meta); err != nil {
		return nil, skerr.Wrap(skerr.KindParse, err, "parsing frontmatter in %s", path)
	}
	return &meta, nil
}

// Package state persists the set of skills sk manages per agent. The
// state file is the sole persistent artifact of the sync engine: it is the
// record of which install targets are safe to remove or overwrite.
package state

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/skillkit/sk/internal/skerr"
)

// FileName is the per-agent state file, stored inside the agent's skills
// directory.
const FileName = ".sk-state.json"

// Version is the only state schema version this build reads or writes.
// Unsupported versions are a hard error; there is no silent migration.
const Version = 1

// AgentState records the managed skill set for one agent.
type AgentState struct {
	Version   int       `json:"version"`
	Skills    []string  `json:"skills"` // sorted, deduplicated target names
	UpdatedAt time.Time `json:"updatedAt"`
}

// Managed returns the skills as a set for membership checks.
func (s *AgentState) Managed() map[string]bool {
	m := make(map[string]bool, len(s.Skills))
	for _, name := range s.Skills {
		m[name] = true
	}
	return m
}

// Path returns the state file path for an agent skills directory.
func Path(skillsRoot string) string {
	return filepath.Join(skillsRoot, FileName)
}

// Read loads the state file from an agent skills directory. A missing file
// returns (nil, nil): the caller distinguishes first-run from empty state.
// A malformed file or unsupported version is a hard error.
func Read(skillsRoot string) (*AgentState, error) {
	data, err := os.ReadFile(Path(skillsRoot))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, skerr.Wrap(skerr.KindIO, err, "reading state file")
	}

	var st AgentState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, skerr.Wrap(skerr.KindParse, err, "parsing state file %s", Path(skillsRoot))
	}
	if st.Version != Version {
		return nil, skerr.New(skerr.KindValidation,
			"unsupported state file version %d in %s (want %d)", st.Version, Path(skillsRoot), Version)
	}
	if st.Skills == nil {
		return nil, skerr.New(skerr.KindValidation,
			"malformed state file %s: missing skills list", Path(skillsRoot))
	}
	return &st, nil
}

// Write persists the managed skill set, fully overwriting any previous
// state. Names are sorted and deduplicated; the write is atomic
// (temp file + rename) so a crashed run never leaves a torn state file.
func Write(skillsRoot string, skills []string) error {
	st := AgentState{
		Version:   Version,
		Skills:    sortedDedupe(skills),
		UpdatedAt: time.Now().UTC(),
	}

	data, err := json.MarshalIndent(&st, "", "  ")
	if err != nil {
		return skerr.Wrap(skerr.KindIO, err, "marshaling state")
	}
	data = append(data, '\n')

	if err := os.MkdirAll(skillsRoot, 0o755); err != nil {
		return skerr.Wrap(skerr.KindIO, err, "creating %s", skillsRoot)
	}

	path := Path(skillsRoot)
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return skerr.Wrap(skerr.KindIO, err, "writing state file")
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return skerr.Wrap(skerr.KindIO, err, "saving state file")
	}
	return nil
}

func sortedDedupe(skills []string) []string {
	seen := make(map[string]bool, len(skills))
	out := make([]string, 0, len(skills))
	for _, s := range skills {
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

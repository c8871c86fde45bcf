// Package agent describes the coding-assistant environments sk installs
// skills for. Agents are consumed as descriptors: an id, a display name, a
// skills directory convention, and optionally a native plugin CLI. sk never
// looks inside an agent beyond this surface.
package agent

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/tailscale/hujson"

	"github.com/skillkit/sk/internal/skerr"
)

//go:embed agents.json
var embeddedAgentsJSON []byte

const pluginInstallTimeout = 120 * time.Second

// Agent defines an AI coding agent and its skill directory convention.
type Agent struct {
	ID          string   `json:"id"`
	DisplayName string   `json:"displayName"`
	SkillsPath  string   `json:"skillsPath"`  // may contain ~ and $VARs
	DetectPaths []string `json:"detectPaths"` // presence of any marks the agent installed

	// PluginCommand, when set, is the host CLI invocation for native
	// plugin installs; sk appends "plugin@marketplace" as the final
	// argument.
	PluginCommand []string `json:"pluginCommand,omitempty"`
}

// SkillsRoot returns the agent's skills directory with ~ and environment
// variables expanded.
func (a Agent) SkillsRoot() string {
	return ExpandPath(a.SkillsPath)
}

// Detect reports whether the agent appears installed on this machine.
func (a Agent) Detect() bool {
	for _, p := range a.DetectPaths {
		if _, err := os.Stat(ExpandPath(p)); err == nil {
			return true
		}
	}
	return false
}

// HasNativePlugins reports whether the agent installs marketplace plugins
// through its own CLI.
func (a Agent) HasNativePlugins() bool {
	return len(a.PluginCommand) > 0
}

// InstallPlugin delegates a plugin install to the agent's own CLI. The
// operation is idempotent: an "already installed" response from the host
// CLI is treated as success.
func (a Agent) InstallPlugin(ctx context.Context, plugin, marketplace string) error {
	if !a.HasNativePlugins() {
		return skerr.New(skerr.KindValidation,
			"agent %s has no native plugin support", a.ID)
	}

	ctx, cancel := context.WithTimeout(ctx, pluginInstallTimeout)
	defer cancel()

	args := append(append([]string{}, a.PluginCommand[1:]...), plugin+"@"+marketplace)
	cmd := exec.CommandContext(ctx, a.PluginCommand[0], args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		if strings.Contains(strings.ToLower(string(output)), "already installed") {
			return nil
		}
		return skerr.Wrap(skerr.KindGit, err, "installing plugin %s@%s via %s: %s",
			plugin, marketplace, a.DisplayName, strings.TrimSpace(string(output)))
	}
	return nil
}

// Load parses the embedded agent definitions. The file is JSONC so the
// default set can carry commentary; hujson standardizes it first.
func Load() ([]Agent, error) {
	std, err := hujson.Standardize(embeddedAgentsJSON)
	if err != nil {
		return nil, skerr.Wrap(skerr.KindParse, err, "standardizing agent definitions")
	}
	var agents []Agent
	if err := json.Unmarshal(std, &agents); err != nil {
		return nil, skerr.Wrap(skerr.KindParse, err, "parsing agent definitions")
	}
	return agents, nil
}

// ByID returns the agent with the given id from agents.
func ByID(agents []Agent, id string) (Agent, error) {
	for _, a := range agents {
		if a.ID == id {
			return a, nil
		}
	}
	var known []string
	for _, a := range agents {
		known = append(known, a.ID)
	}
	return Agent{}, skerr.New(skerr.KindNotFound,
		"unknown agent %q; available: %s", id, strings.Join(known, ", "))
}

// ExpandPath expands a leading ~ and $VAR references to their environment
// values.
func ExpandPath(p string) string {
	if strings.Contains(p, "$") {
		p = os.Expand(p, os.Getenv)
	}
	if strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			p = filepath.Join(home, p[2:])
		}
	} else if p == "~" {
		if home, err := os.UserHomeDir(); err == nil {
			p = home
		}
	}
	return p
}

// Validate checks the descriptor invariants sk relies on.
func (a Agent) Validate() error {
	if a.ID == "" || a.SkillsPath == "" {
		return fmt.Errorf("agent descriptor requires id and skillsPath")
	}
	return nil
}

package sync

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/skillkit/sk/internal/agent"
	"github.com/skillkit/sk/internal/manifest"
	"github.com/skillkit/sk/internal/skerr"
	"github.com/skillkit/sk/internal/state"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

// setupLocalPackage creates a package directory whose immediate children
// are skill directories.
func setupLocalPackage(t *testing.T, skills ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, name := range skills {
		writeFile(t, filepath.Join(dir, name, "SKILL.md"),
			"---\nname: "+name+"\ndescription: test skill\n---\n")
	}
	return dir
}

func parseManifest(t *testing.T, dir, content string) *manifest.Manifest {
	t.Helper()
	path := filepath.Join(dir, manifest.FileName)
	writeFile(t, path, content)
	m, err := manifest.ParseFile(path)
	if err != nil {
		t.Fatalf("ParseFile() error: %v", err)
	}
	return m
}

func testAgent(t *testing.T) agent.Agent {
	t.Helper()
	return agent.Agent{
		ID:          "test-agent",
		DisplayName: "Test Agent",
		SkillsPath:  filepath.Join(t.TempDir(), "skills"),
	}
}

func TestAgent_InstallsLocalPackage(t *testing.T) {
	pkg := setupLocalPackage(t, "lint", "review")
	m := parseManifest(t, t.TempDir(), `
[dependencies]
tools = { path = `+strconv.Quote(pkg)+` }
`)
	ag := testAgent(t)

	result, err := New(Options{}).Agent(context.Background(), m, ag)
	if err != nil {
		t.Fatalf("Agent() error: %v", err)
	}
	if result.Installed != 2 {
		t.Errorf("Installed = %d, want 2", result.Installed)
	}
	if result.Removed != 0 {
		t.Errorf("Removed = %d, want 0", result.Removed)
	}
	if result.NoDependencies {
		t.Error("NoDependencies = true, want false")
	}

	root := ag.SkillsRoot()
	for _, name := range []string{"tools-lint", "tools-review"} {
		target := filepath.Join(root, name)
		info, err := os.Lstat(target)
		if err != nil {
			t.Fatalf("target %s missing: %v", name, err)
		}
		// Local packages install as symlinks to the source directory.
		if info.Mode()&os.ModeSymlink == 0 {
			t.Errorf("target %s is not a symlink", name)
		}
	}

	st, err := state.Read(root)
	if err != nil {
		t.Fatalf("state.Read() error: %v", err)
	}
	if st == nil || len(st.Skills) != 2 {
		t.Fatalf("state = %+v, want 2 managed skills", st)
	}
}

func TestAgent_SecondRunIsIdempotent(t *testing.T) {
	pkg := setupLocalPackage(t, "lint")
	m := parseManifest(t, t.TempDir(), `
[dependencies]
tools = { path = `+strconv.Quote(pkg)+` }
`)
	ag := testAgent(t)
	s := New(Options{})

	if _, err := s.Agent(context.Background(), m, ag); err != nil {
		t.Fatalf("first Agent() error: %v", err)
	}
	result, err := s.Agent(context.Background(), m, ag)
	if err != nil {
		t.Fatalf("second Agent() error: %v", err)
	}
	if result.Installed != 1 {
		t.Errorf("Installed = %d, want 1 (managed targets reinstall cleanly)", result.Installed)
	}
	if result.Removed != 0 {
		t.Errorf("Removed = %d, want 0", result.Removed)
	}
}

func TestAgent_ConflictGuardRefusesUnmanagedTarget(t *testing.T) {
	pkg := setupLocalPackage(t, "lint", "review")
	m := parseManifest(t, t.TempDir(), `
[dependencies]
tools = { path = `+strconv.Quote(pkg)+` }
`)
	ag := testAgent(t)

	// An unmanaged directory already occupies one target.
	marker := filepath.Join(ag.SkillsRoot(), "tools-lint", "precious.txt")
	writeFile(t, marker, "user data")

	_, err := New(Options{}).Agent(context.Background(), m, ag)
	if err == nil {
		t.Fatal("expected conflict error")
	}
	if kind := skerr.KindOf(err); kind != skerr.KindConflict {
		t.Errorf("KindOf(err) = %q, want %q", kind, skerr.KindConflict)
	}
	if skerr.StageOf(err) != skerr.StageInstall {
		t.Errorf("StageOf(err) = %q, want %q", skerr.StageOf(err), skerr.StageInstall)
	}

	// Zero writes happened: the unmanaged data survives, the other skill
	// was not installed, and no state file was created.
	if _, err := os.Stat(marker); err != nil {
		t.Errorf("unmanaged file was touched: %v", err)
	}
	if _, err := os.Lstat(filepath.Join(ag.SkillsRoot(), "tools-review")); err == nil {
		t.Error("tools-review was installed despite the aborted run")
	}
	st, err := state.Read(ag.SkillsRoot())
	if err != nil {
		t.Fatal(err)
	}
	if st != nil {
		t.Errorf("state = %+v, want none after aborted run", st)
	}
}

func TestAgent_ManagedTargetIsReplaced(t *testing.T) {
	pkg := setupLocalPackage(t, "lint")
	m := parseManifest(t, t.TempDir(), `
[dependencies]
tools = { path = `+strconv.Quote(pkg)+` }
`)
	ag := testAgent(t)

	// State claims the target even though its contents are stale.
	writeFile(t, filepath.Join(ag.SkillsRoot(), "tools-lint", "stale.txt"), "old")
	if err := state.Write(ag.SkillsRoot(), []string{"tools-lint"}); err != nil {
		t.Fatal(err)
	}

	result, err := New(Options{}).Agent(context.Background(), m, ag)
	if err != nil {
		t.Fatalf("Agent() error: %v", err)
	}
	if result.Installed != 1 {
		t.Errorf("Installed = %d, want 1", result.Installed)
	}
	if _, err := os.Stat(filepath.Join(ag.SkillsRoot(), "tools-lint", "stale.txt")); err == nil {
		t.Error("stale contents survived a managed reinstall")
	}
}

func TestAgent_NoDependenciesOutcome(t *testing.T) {
	m := parseManifest(t, t.TempDir(), "[agents]\ntest-agent = true\n")
	ag := testAgent(t)

	result, err := New(Options{}).Agent(context.Background(), m, ag)
	if err != nil {
		t.Fatalf("Agent() error: %v", err)
	}
	if !result.NoDependencies {
		t.Error("NoDependencies = false, want true for empty manifest on a cold state")
	}
	if _, err := os.Stat(state.Path(ag.SkillsRoot())); err == nil {
		t.Error("state file was written for a no-dependencies run")
	}
}

func TestAgent_ReconcilesToEmpty(t *testing.T) {
	pkg := setupLocalPackage(t, "lint")
	dir := t.TempDir()
	ag := testAgent(t)
	s := New(Options{})

	m := parseManifest(t, dir, `
[dependencies]
tools = { path = `+strconv.Quote(pkg)+` }
`)
	if _, err := s.Agent(context.Background(), m, ag); err != nil {
		t.Fatalf("first Agent() error: %v", err)
	}

	// Dependency removed from the manifest: the managed skill must go.
	empty := parseManifest(t, dir, "[agents]\ntest-agent = true\n")
	result, err := s.Agent(context.Background(), empty, ag)
	if err != nil {
		t.Fatalf("second Agent() error: %v", err)
	}
	if result.NoDependencies {
		t.Error("NoDependencies = true, want false when previous state exists")
	}
	if result.Removed != 1 {
		t.Errorf("Removed = %d, want 1", result.Removed)
	}
	if _, err := os.Lstat(filepath.Join(ag.SkillsRoot(), "tools-lint")); err == nil {
		t.Error("stale target still present after reconcile")
	}

	st, err := state.Read(ag.SkillsRoot())
	if err != nil {
		t.Fatal(err)
	}
	if st == nil || len(st.Skills) != 0 {
		t.Errorf("state = %+v, want empty managed set", st)
	}
}

func TestAgent_NeverRemovesUnmanagedEntries(t *testing.T) {
	pkg := setupLocalPackage(t, "lint")
	m := parseManifest(t, t.TempDir(), `
[dependencies]
tools = { path = `+strconv.Quote(pkg)+` }
`)
	ag := testAgent(t)

	// A hand-made skill that sk never managed.
	foreign := filepath.Join(ag.SkillsRoot(), "hand-rolled")
	writeFile(t, filepath.Join(foreign, "SKILL.md"), "---\nname: mine\n---\n")

	if _, err := New(Options{}).Agent(context.Background(), m, ag); err != nil {
		t.Fatalf("Agent() error: %v", err)
	}
	if _, err := os.Stat(foreign); err != nil {
		t.Errorf("unmanaged skill was removed: %v", err)
	}
}

func TestAgent_DryRunCommitsNothing(t *testing.T) {
	pkg := setupLocalPackage(t, "lint", "review")
	m := parseManifest(t, t.TempDir(), `
[dependencies]
tools = { path = `+strconv.Quote(pkg)+` }
`)
	ag := testAgent(t)

	result, err := New(Options{DryRun: true}).Agent(context.Background(), m, ag)
	if err != nil {
		t.Fatalf("Agent() error: %v", err)
	}
	if !result.DryRun {
		t.Error("DryRun = false, want true")
	}
	if result.Installed != 2 {
		t.Errorf("Installed = %d, want 2 (planned count)", result.Installed)
	}

	if _, err := os.Stat(ag.SkillsRoot()); err == nil {
		entries, _ := os.ReadDir(ag.SkillsRoot())
		if len(entries) != 0 {
			t.Errorf("dry run wrote %d entries to the skills root", len(entries))
		}
	}
}

func TestAgent_PluginWithoutSkillsIsWarning(t *testing.T) {
	// A filesystem-backed marketplace whose plugin declares no skills.
	market := t.TempDir()
	writeFile(t, filepath.Join(market, ".claude-plugin", "marketplace.json"), `{
  "name": "m",
  "plugins": [{ "name": "empty", "source": "./plugins/empty" }]
}`)
	writeFile(t, filepath.Join(market, "plugins", "empty", ".claude-plugin", "plugin.json"), `{"name": "empty"}`)

	m := parseManifest(t, t.TempDir(), `
[dependencies]
empty = { type = "claude-plugin", plugin = "empty", marketplace = `+strconv.Quote(market)+` }
`)
	ag := testAgent(t)

	result, err := New(Options{}).Agent(context.Background(), m, ag)
	if err != nil {
		t.Fatalf("Agent() error: %v", err)
	}
	if len(result.Warnings) != 1 {
		t.Fatalf("Warnings = %v, want one no-skills warning", result.Warnings)
	}
	if result.Installed != 0 {
		t.Errorf("Installed = %d, want 0", result.Installed)
	}
}

func TestAgent_ResolvesPluginToLocalPackage(t *testing.T) {
	market := t.TempDir()
	writeFile(t, filepath.Join(market, ".claude-plugin", "marketplace.json"), `{
  "name": "m",
  "plugins": [{ "name": "fmt", "source": "./plugins/fmt" }]
}`)
	pluginDir := filepath.Join(market, "plugins", "fmt")
	writeFile(t, filepath.Join(pluginDir, ".claude-plugin", "plugin.json"), `{"name": "fmt"}`)
	writeFile(t, filepath.Join(pluginDir, "skills", "format", "SKILL.md"),
		"---\nname: format\ndescription: formats\n---\n")

	m := parseManifest(t, t.TempDir(), `
[dependencies]
fmt = { type = "claude-plugin", plugin = "fmt", marketplace = `+strconv.Quote(market)+` }
`)
	ag := testAgent(t)

	result, err := New(Options{}).Agent(context.Background(), m, ag)
	if err != nil {
		t.Fatalf("Agent() error: %v", err)
	}
	if result.Installed != 1 {
		t.Fatalf("Installed = %d, want 1", result.Installed)
	}
	if _, err := os.Lstat(filepath.Join(ag.SkillsRoot(), "fmt-format")); err != nil {
		t.Errorf("fmt-format missing: %v", err)
	}
}

func TestAgent_PluginInstallsCopyInsteadOfLink(t *testing.T) {
	market := t.TempDir()
	writeFile(t, filepath.Join(market, ".claude-plugin", "marketplace.json"), `{
  "name": "m",
  "plugins": [{ "name": "fmt", "source": "./plugins/fmt" }]
}`)
	pluginDir := filepath.Join(market, "plugins", "fmt")
	writeFile(t, filepath.Join(pluginDir, ".claude-plugin", "plugin.json"), `{"name": "fmt"}`)
	writeFile(t, filepath.Join(pluginDir, "skills", "format", "SKILL.md"),
		"---\nname: format\ndescription: formats\n---\n")

	m := parseManifest(t, t.TempDir(), `
[dependencies]
fmt = { type = "claude-plugin", plugin = "fmt", marketplace = `+strconv.Quote(market)+` }
`)
	ag := testAgent(t)

	if _, err := New(Options{}).Agent(context.Background(), m, ag); err != nil {
		t.Fatalf("Agent() error: %v", err)
	}

	// Plugin sources live in marketplace-owned trees (cloned ones vanish
	// with the run's temp root), so the install must be a real copy.
	target := filepath.Join(ag.SkillsRoot(), "fmt-format")
	info, err := os.Lstat(target)
	if err != nil {
		t.Fatalf("fmt-format missing: %v", err)
	}
	if info.Mode()&os.ModeSymlink != 0 {
		t.Error("fmt-format is a symlink, want a copied directory")
	}
	if _, err := os.ReadFile(filepath.Join(target, "SKILL.md")); err != nil {
		t.Errorf("installed SKILL.md unreadable: %v", err)
	}
}

func TestAgent_PluginResolvedPackageMustBePlugin(t *testing.T) {
	market := t.TempDir()
	writeFile(t, filepath.Join(market, ".claude-plugin", "marketplace.json"), `{
  "name": "m",
  "plugins": [{ "name": "bare", "source": "./plugins/bare" }]
}`)
	// The source directory exists but carries no plugin manifest.
	writeFile(t, filepath.Join(market, "plugins", "bare", "lint", "SKILL.md"),
		"---\nname: lint\n---\n")

	m := parseManifest(t, t.TempDir(), `
[dependencies]
bare = { type = "claude-plugin", plugin = "bare", marketplace = `+strconv.Quote(market)+` }
`)
	_, err := New(Options{}).Agent(context.Background(), m, testAgent(t))
	if err == nil {
		t.Fatal("expected error: plugin-resolved packages must present a plugin structure")
	}
	if skerr.StageOf(err) != skerr.StageDetect {
		t.Errorf("StageOf(err) = %q, want %q", skerr.StageOf(err), skerr.StageDetect)
	}
}

func TestAgent_NativePluginDelegation(t *testing.T) {
	market := t.TempDir()
	writeFile(t, filepath.Join(market, ".claude-plugin", "marketplace.json"), `{
  "name": "m",
  "plugins": [{ "name": "fmt", "source": "./plugins/fmt" }]
}`)
	if err := os.MkdirAll(filepath.Join(market, "plugins", "fmt"), 0o755); err != nil {
		t.Fatal(err)
	}

	m := parseManifest(t, t.TempDir(), `
[dependencies]
fmt = { type = "claude-plugin", plugin = "fmt", marketplace = `+strconv.Quote(market)+` }
`)
	ag := testAgent(t)
	ag.PluginCommand = []string{"sh", "-c", "exit 0"}

	result, err := New(Options{}).Agent(context.Background(), m, ag)
	if err != nil {
		t.Fatalf("Agent() error: %v", err)
	}
	if result.Plugins != 1 {
		t.Errorf("Plugins = %d, want 1", result.Plugins)
	}
	if result.Installed != 0 {
		t.Errorf("Installed = %d, want 0 (native plugins do not touch the skills dir)", result.Installed)
	}
}

func TestAgent_NativePluginMissingFromMarketplace(t *testing.T) {
	market := t.TempDir()
	writeFile(t, filepath.Join(market, ".claude-plugin", "marketplace.json"),
		`{"name": "m", "plugins": []}`)

	m := parseManifest(t, t.TempDir(), `
[dependencies]
fmt = { type = "claude-plugin", plugin = "fmt", marketplace = `+strconv.Quote(market)+` }
`)
	ag := testAgent(t)
	ag.PluginCommand = []string{"sh", "-c", "exit 0"}

	_, err := New(Options{}).Agent(context.Background(), m, ag)
	if err == nil {
		t.Fatal("expected error before delegating a missing plugin")
	}
	if kind := skerr.KindOf(err); kind != skerr.KindNotFound {
		t.Errorf("KindOf(err) = %q, want %q", kind, skerr.KindNotFound)
	}
}

func TestAgent_InvalidAgentDescriptor(t *testing.T) {
	m := parseManifest(t, t.TempDir(), "[agents]\nx = true\n")
	_, err := New(Options{}).Agent(context.Background(), m, agent.Agent{ID: "x"})
	if err == nil {
		t.Fatal("expected error for agent without skillsPath")
	}
	if skerr.StageOf(err) != skerr.StageAgents {
		t.Errorf("StageOf(err) = %q, want %q", skerr.StageOf(err), skerr.StageAgents)
	}
}

func TestAll_OneFailingAgentDoesNotHideOthers(t *testing.T) {
	pkg := setupLocalPackage(t, "lint")
	m := parseManifest(t, t.TempDir(), `
[dependencies]
tools = { path = `+strconv.Quote(pkg)+` }
`)

	bad := agent.Agent{ID: "bad"} // no skillsPath
	good := testAgent(t)

	outcomes := New(Options{}).All(context.Background(), m, []agent.Agent{bad, good})
	if len(outcomes) != 2 {
		t.Fatalf("len(outcomes) = %d, want 2", len(outcomes))
	}
	if outcomes[0].Err == nil {
		t.Error("outcomes[0].Err = nil, want error for invalid agent")
	}
	if outcomes[1].Err != nil {
		t.Errorf("outcomes[1].Err = %v, want nil", outcomes[1].Err)
	}
	if outcomes[1].Result.Installed != 1 {
		t.Errorf("good agent Installed = %d, want 1", outcomes[1].Result.Installed)
	}
}

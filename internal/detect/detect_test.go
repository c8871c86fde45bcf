package detect

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/skillkit/sk/internal/skerr"
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

func kinds(structures []Structure) []Kind {
	out := make([]Kind, len(structures))
	for i, s := range structures {
		out[i] = s.Kind
	}
	return out
}

func hasKind(structures []Structure, kind Kind) bool {
	for _, s := range structures {
		if s.Kind == kind {
			return true
		}
	}
	return false
}

func TestAll_Manifest(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "skills.toml"), "[package]\nname = \"pkg\"\n")

	structures, err := All(root)
	if err != nil {
		t.Fatalf("All() error: %v", err)
	}
	if len(structures) != 1 || structures[0].Kind != KindManifest {
		t.Fatalf("kinds = %v, want [manifest]", kinds(structures))
	}
	if !structures[0].HasPackage {
		t.Error("HasPackage = false, want true")
	}
}

func TestAll_PluginReadsName(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ClaudePluginDir, "plugin.json"),
		`{"name": "formatter", "version": "1.0.0"}`)
	writeFile(t, filepath.Join(root, "skills", "fmt", SkillFileName), "---\nname: fmt\n---\n")

	structures, err := All(root)
	if err != nil {
		t.Fatalf("All() error: %v", err)
	}
	var plugin *Structure
	for i := range structures {
		if structures[i].Kind == KindPlugin {
			plugin = &structures[i]
		}
	}
	if plugin == nil {
		t.Fatalf("kinds = %v, want a plugin structure", kinds(structures))
	}
	if plugin.PluginName != "formatter" {
		t.Errorf("PluginName = %q, want %q", plugin.PluginName, "formatter")
	}
	if plugin.SkillsDir != filepath.Join(root, "skills") {
		t.Errorf("SkillsDir = %q, want %q", plugin.SkillsDir, filepath.Join(root, "skills"))
	}
}

func TestAll_PluginJSONWithComments(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ClaudePluginDir, "plugin.json"),
		"{\n  // plugin metadata\n  \"name\": \"commented\",\n}\n")

	structures, err := All(root)
	if err != nil {
		t.Fatalf("All() error: %v", err)
	}
	if len(structures) != 1 || structures[0].PluginName != "commented" {
		t.Errorf("structures = %+v, want one plugin named commented", structures)
	}
}

func TestAll_MalformedPluginJSON(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ClaudePluginDir, "plugin.json"), "{not json")

	_, err := All(root)
	if err == nil {
		t.Fatal("expected error for malformed plugin.json")
	}
	if kind := skerr.KindOf(err); kind != skerr.KindParse {
		t.Errorf("KindOf(err) = %q, want %q", kind, skerr.KindParse)
	}
}

func TestAll_MultipleSignatures(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ClaudePluginDir, "plugin.json"), `{"name": "p"}`)
	writeFile(t, filepath.Join(root, ClaudePluginDir, "marketplace.json"), `{"name": "m", "plugins": []}`)
	writeFile(t, filepath.Join(root, "child", SkillFileName), "---\nname: c\n---\n")
	writeFile(t, filepath.Join(root, SkillFileName), "---\nname: r\n---\n")

	structures, err := All(root)
	if err != nil {
		t.Fatalf("All() error: %v", err)
	}
	for _, kind := range []Kind{KindPlugin, KindMarketplace, KindSubdir, KindSingle} {
		if !hasKind(structures, kind) {
			t.Errorf("kinds = %v, missing %q", kinds(structures), kind)
		}
	}
}

func TestSelect_ManifestBeatsPlugin(t *testing.T) {
	structures := []Structure{
		{Kind: KindPlugin, PluginJSONPath: "/r/.claude-plugin/plugin.json"},
		{Kind: KindManifest, ManifestPath: "/r/skills.toml", HasPackage: true},
	}
	selected, err := Select(structures, false)
	if err != nil {
		t.Fatalf("Select() error: %v", err)
	}
	if selected.Kind != KindManifest {
		t.Errorf("Kind = %q, want %q", selected.Kind, KindManifest)
	}
}

func TestSelect_ManifestWithoutPackageDropsOut(t *testing.T) {
	structures := []Structure{
		{Kind: KindManifest, ManifestPath: "/r/skills.toml", HasPackage: false},
		{Kind: KindSubdir, RootDir: "/r"},
	}
	selected, err := Select(structures, false)
	if err != nil {
		t.Fatalf("Select() error: %v", err)
	}
	if selected.Kind != KindSubdir {
		t.Errorf("Kind = %q, want %q", selected.Kind, KindSubdir)
	}
}

func TestSelect_PluginBeatsSubdirAndSingle(t *testing.T) {
	structures := []Structure{
		{Kind: KindSingle, SkillPath: "/r/SKILL.md"},
		{Kind: KindSubdir, RootDir: "/r"},
		{Kind: KindPlugin, PluginJSONPath: "/r/.claude-plugin/plugin.json"},
	}
	selected, err := Select(structures, false)
	if err != nil {
		t.Fatalf("Select() error: %v", err)
	}
	if selected.Kind != KindPlugin {
		t.Errorf("Kind = %q, want %q", selected.Kind, KindPlugin)
	}
}

func TestSelect_SubdirBeatsSingle(t *testing.T) {
	structures := []Structure{
		{Kind: KindSingle, SkillPath: "/r/SKILL.md"},
		{Kind: KindSubdir, RootDir: "/r"},
	}
	selected, err := Select(structures, false)
	if err != nil {
		t.Fatalf("Select() error: %v", err)
	}
	if selected.Kind != KindSubdir {
		t.Errorf("Kind = %q, want %q", selected.Kind, KindSubdir)
	}
}

func TestSelect_MarketplaceOnlyIsError(t *testing.T) {
	_, err := Select([]Structure{{Kind: KindMarketplace}}, false)
	if err == nil {
		t.Fatal("expected error for marketplace-only package")
	}
	if kind := skerr.KindOf(err); kind != skerr.KindValidation {
		t.Errorf("KindOf(err) = %q, want %q", kind, skerr.KindValidation)
	}
}

func TestSelect_NoStructures(t *testing.T) {
	_, err := Select(nil, false)
	if err == nil {
		t.Fatal("expected error for empty structure list")
	}
}

func TestSelect_FromPluginRequiresPlugin(t *testing.T) {
	structures := []Structure{
		{Kind: KindManifest, HasPackage: true},
		{Kind: KindSubdir, RootDir: "/r"},
	}
	_, err := Select(structures, true)
	if err == nil {
		t.Fatal("expected error: plugin-resolved packages must be plugins")
	}

	structures = append(structures, Structure{Kind: KindPlugin, PluginName: "p"})
	selected, err := Select(structures, true)
	if err != nil {
		t.Fatalf("Select() error: %v", err)
	}
	if selected.Kind != KindPlugin {
		t.Errorf("Kind = %q, want %q", selected.Kind, KindPlugin)
	}
}

package plan

import (
	"path/filepath"
	"testing"

	"github.com/skillkit/sk/internal/extract"
	"github.com/skillkit/sk/internal/skerr"
)

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"code-review", "code-review"},
		{"Code Review", "code-review"},
		{"weird!!name", "weird--name"},
		{"--edges--", "edges"},
		{"", "unnamed-skill"},
		{"!!!", "unnamed-skill"},
	}
	for _, tt := range tests {
		if got := SanitizeName(tt.in); got != tt.want {
			t.Errorf("SanitizeName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSanitizeName_CapsLength(t *testing.T) {
	long := make([]byte, 300)
	for i := range long {
		long[i] = 'a'
	}
	if got := SanitizeName(string(long)); len(got) != 200 {
		t.Errorf("len = %d, want 200", len(got))
	}
}

func TestTargetName(t *testing.T) {
	got := TargetName("alpha", "Code Review")
	if got != "alpha-code-review" {
		t.Errorf("TargetName() = %q, want %q", got, "alpha-code-review")
	}
}

func TestBuild(t *testing.T) {
	pkgs := []PackageSkills{
		{
			Alias: "alpha",
			Skills: []extract.Skill{
				{Name: "lint", SourcePath: "/src/lint"},
				{Name: "review", SourcePath: "/src/review"},
			},
		},
		{
			Alias:  "local",
			Skills: []extract.Skill{{Name: "lint", SourcePath: "/pkg/lint"}},
			Link:   true,
		},
	}

	p := Build("/agent/skills", pkgs)
	if len(p.Tasks) != 3 {
		t.Fatalf("len(Tasks) = %d, want 3", len(p.Tasks))
	}

	first := p.Tasks[0]
	if first.TargetName != "alpha-lint" {
		t.Errorf("TargetName = %q, want %q", first.TargetName, "alpha-lint")
	}
	if first.TargetPath != filepath.Join("/agent/skills", "alpha-lint") {
		t.Errorf("TargetPath = %q", first.TargetPath)
	}
	if first.Link {
		t.Error("Link = true for clone package, want false")
	}

	last := p.Tasks[2]
	if last.TargetName != "local-lint" {
		t.Errorf("TargetName = %q, want %q (alias prefix keeps same-named skills apart)", last.TargetName, "local-lint")
	}
	if !last.Link {
		t.Error("Link = false for local package, want true")
	}

	names := p.TargetNames()
	want := []string{"alpha-lint", "alpha-review", "local-lint"}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("TargetNames()[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}

func TestValidate_NoCollision(t *testing.T) {
	pkgs := []PackageSkills{
		{Alias: "a", Skills: []extract.Skill{{Name: "lint"}}},
		{Alias: "b", Skills: []extract.Skill{{Name: "lint"}}},
	}
	if err := Validate(pkgs); err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
}

func TestValidate_CollisionWithinPackage(t *testing.T) {
	pkgs := []PackageSkills{
		{Alias: "a", Skills: []extract.Skill{
			{Name: "Code Review"},
			{Name: "code-review"},
		}},
	}
	err := Validate(pkgs)
	if err == nil {
		t.Fatal("expected collision error")
	}
	if kind := skerr.KindOf(err); kind != skerr.KindValidation {
		t.Errorf("KindOf(err) = %q, want %q", kind, skerr.KindValidation)
	}
}

package manifest

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/skillkit/sk/internal/skerr"
)

// registrySpecPattern matches "name@version".
var registrySpecPattern = regexp.MustCompile(`^([a-zA-Z0-9][a-zA-Z0-9_.-]*)@(.+)$`)

// orgRegistrySpecPattern matches "@org/name@version".
var orgRegistrySpecPattern = regexp.MustCompile(`^@([a-zA-Z0-9][a-zA-Z0-9_.-]*)/([a-zA-Z0-9][a-zA-Z0-9_.-]*)@(.+)$`)

// ownerRepoPattern matches the "owner/repo" GitHub slug shape.
var ownerRepoPattern = regexp.MustCompile(`^[a-zA-Z0-9_.-]+/[a-zA-Z0-9_.-]+$`)

// declTableKeys are the keys accepted on inline dependency tables.
var declTableKeys = map[string]bool{
	"gh": true, "git": true, "path": true,
	"tag": true, "branch": true, "rev": true,
	"type": true, "plugin": true, "marketplace": true,
}

// CoerceDeclaration turns a raw parsed dependency value into a validated
// Declaration. Dispatch is on shape: bare strings are registry specs or
// "owner/repo" GitHub shorthand; tables are dispatched on which of
// gh / git / path / type they carry. manifestDir anchors relative local
// paths.
func CoerceDeclaration(alias string, value any, manifestDir string) (Declaration, error) {
	switch v := value.(type) {
	case string:
		return coerceBareString(alias, v)
	case map[string]any:
		return coerceTable(alias, v, manifestDir)
	default:
		return nil, skerr.New(skerr.KindValidation,
			"dependency %q: expected a string or a table, got %T", alias, value)
	}
}

// coerceBareString handles the string dependency forms: registry specs
// carry an @version, a plain "owner/repo" slug is GitHub shorthand for the
// repository's default branch.
func coerceBareString(alias, spec string) (Declaration, error) {
	spec = strings.TrimSpace(spec)
	if m := orgRegistrySpecPattern.FindStringSubmatch(spec); m != nil {
		return Registry{Org: m[1], Name: m[2], Version: m[3]}, nil
	}
	if m := registrySpecPattern.FindStringSubmatch(spec); m != nil {
		return Registry{Name: m[1], Version: m[2]}, nil
	}
	if slug := strings.TrimSuffix(spec, ".git"); ownerRepoPattern.MatchString(slug) {
		return Github{Repo: slug}, nil
	}
	return nil, skerr.New(skerr.KindValidation,
		"dependency %q: %q is not a valid dependency string (want name@version, @org/name@version, or owner/repo)",
		alias, spec)
}

func coerceTable(alias string, table map[string]any, manifestDir string) (Declaration, error) {
	for key := range table {
		if !declTableKeys[key] {
			return nil, skerr.New(skerr.KindValidation,
				"dependency %q: unknown key %q in declaration", alias, key)
		}
	}

	// gh, git, and type each claim the declaration; path only does when it
	// stands alone (with gh or git it is a repository subpath).
	var sources []string
	for _, key := range []string{"gh", "git", "type"} {
		if _, ok := table[key]; ok {
			sources = append(sources, key)
		}
	}
	if len(sources) > 1 {
		return nil, skerr.New(skerr.KindValidation,
			"dependency %q: declaration has conflicting source keys %s", alias, strings.Join(sources, " and "))
	}
	if len(sources) == 1 && sources[0] == "type" && table["path"] != nil {
		return nil, skerr.New(skerr.KindValidation,
			"dependency %q: path is not valid on a claude-plugin declaration", alias)
	}

	switch {
	case table["type"] != nil:
		return coerceClaudePlugin(alias, table)
	case table["gh"] != nil:
		return coerceGithub(alias, table)
	case table["git"] != nil:
		return coerceGit(alias, table)
	case table["path"] != nil && len(table) == 1:
		return coerceLocal(alias, table, manifestDir)
	default:
		return nil, skerr.New(skerr.KindValidation,
			"dependency %q: declaration must have one of gh, git, path, or type=\"claude-plugin\"", alias)
	}
}

func coerceGithub(alias string, table map[string]any) (Declaration, error) {
	repo, err := stringField(alias, table, "gh")
	if err != nil {
		return nil, err
	}
	repo = strings.TrimSuffix(strings.TrimSpace(repo), ".git")
	if !ownerRepoPattern.MatchString(repo) {
		return nil, skerr.New(skerr.KindValidation,
			"dependency %q: gh must be \"owner/repo\", got %q", alias, repo)
	}
	ref, err := coerceRef(alias, table)
	if err != nil {
		return nil, err
	}
	path, err := optionalStringField(alias, table, "path")
	if err != nil {
		return nil, err
	}
	return Github{Repo: repo, Ref: ref, Path: path}, nil
}

func coerceGit(alias string, table map[string]any) (Declaration, error) {
	rawURL, err := stringField(alias, table, "git")
	if err != nil {
		return nil, err
	}
	rawURL = strings.TrimSpace(rawURL)
	if !isGitURL(rawURL) {
		return nil, skerr.New(skerr.KindValidation,
			"dependency %q: git must be an http(s), ssh, git@ or file URL, got %q", alias, rawURL)
	}
	ref, err := coerceRef(alias, table)
	if err != nil {
		return nil, err
	}
	path, err := optionalStringField(alias, table, "path")
	if err != nil {
		return nil, err
	}
	return Git{URL: rawURL, Ref: ref, Path: path}, nil
}

func coerceLocal(alias string, table map[string]any, manifestDir string) (Declaration, error) {
	path, err := stringField(alias, table, "path")
	if err != nil {
		return nil, err
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, skerr.New(skerr.KindValidation, "dependency %q: path must not be empty", alias)
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(manifestDir, path)
	}
	return Local{Path: filepath.Clean(path)}, nil
}

func coerceClaudePlugin(alias string, table map[string]any) (Declaration, error) {
	typ, err := stringField(alias, table, "type")
	if err != nil {
		return nil, err
	}
	if typ != "claude-plugin" {
		return nil, skerr.New(skerr.KindValidation,
			"dependency %q: unknown declaration type %q", alias, typ)
	}
	plugin, err := stringField(alias, table, "plugin")
	if err != nil {
		return nil, err
	}
	market, err := stringField(alias, table, "marketplace")
	if err != nil {
		return nil, err
	}
	if plugin == "" || market == "" {
		return nil, skerr.New(skerr.KindValidation,
			"dependency %q: claude-plugin declarations require plugin and marketplace", alias)
	}
	return ClaudePlugin{Plugin: plugin, Marketplace: market}, nil
}

// coerceRef enforces that at most one of tag / branch / rev is declared.
func coerceRef(alias string, table map[string]any) (GitRef, error) {
	var ref GitRef
	for _, kind := range []RefKind{RefTag, RefBranch, RefRev} {
		raw, ok := table[string(kind)]
		if !ok {
			continue
		}
		value, ok := raw.(string)
		if !ok || strings.TrimSpace(value) == "" {
			return GitRef{}, skerr.New(skerr.KindValidation,
				"dependency %q: %s must be a non-empty string", alias, kind)
		}
		if !ref.IsZero() {
			return GitRef{}, skerr.New(skerr.KindValidation,
				"dependency %q: field \"ref\" is ambiguous: only one of tag, branch, rev may be set", alias)
		}
		ref = GitRef{Kind: kind, Value: strings.TrimSpace(value)}
	}
	return ref, nil
}

func stringField(alias string, table map[string]any, key string) (string, error) {
	raw, ok := table[key]
	if !ok {
		return "", skerr.New(skerr.KindValidation, "dependency %q: missing %s", alias, key)
	}
	value, ok := raw.(string)
	if !ok {
		return "", skerr.New(skerr.KindValidation,
			"dependency %q: %s must be a string, got %T", alias, key, raw)
	}
	return value, nil
}

func optionalStringField(alias string, table map[string]any, key string) (string, error) {
	raw, ok := table[key]
	if !ok {
		return "", nil
	}
	value, ok := raw.(string)
	if !ok {
		return "", skerr.New(skerr.KindValidation,
			"dependency %q: %s must be a string, got %T", alias, key, raw)
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return "", skerr.New(skerr.KindValidation,
			"dependency %q: %s must not be empty", alias, key)
	}
	return value, nil
}

func isGitURL(s string) bool {
	return strings.HasPrefix(s, "https://") ||
		strings.HasPrefix(s, "http://") ||
		strings.HasPrefix(s, "ssh://") ||
		strings.HasPrefix(s, "git://") ||
		strings.HasPrefix(s, "file://") ||
		strings.HasPrefix(s, "git@")
}

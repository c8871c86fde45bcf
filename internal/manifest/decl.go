package manifest

import (
	"fmt"
	"strings"

	"github.com/skillkit/sk/internal/skerr"
)

// DeclKind discriminates the five dependency declaration kinds.
type DeclKind string

const (
	DeclRegistry     DeclKind = "registry"
	DeclGithub       DeclKind = "github"
	DeclGit          DeclKind = "git"
	DeclLocal        DeclKind = "local"
	DeclClaudePlugin DeclKind = "claude-plugin"
)

// Declaration is a validated dependency declaration. It is a closed sum:
// only the types in this package implement it, and they are constructed
// exclusively by coercion, so a Declaration in hand is always valid.
type Declaration interface {
	Kind() DeclKind
	// Source returns the user-facing source string for error messages.
	Source() string

	sealed()
}

// RefKind discriminates git ref flavors. The zero value means no ref.
type RefKind string

const (
	RefNone   RefKind = ""
	RefTag    RefKind = "tag"
	RefBranch RefKind = "branch"
	RefRev    RefKind = "rev"
)

// GitRef is a tagged git reference. At most one flavor is ever set;
// coercion enforces this before a GitRef is constructed.
type GitRef struct {
	Kind  RefKind
	Value string
}

// IsZero reports whether no ref was declared.
func (r GitRef) IsZero() bool { return r.Kind == RefNone }

// String returns "kind:value", or "" for the zero ref. Used in grouping
// keys and log output.
func (r GitRef) String() string {
	if r.IsZero() {
		return ""
	}
	return string(r.Kind) + ":" + r.Value
}

// PackageOrigin records where a dependency was declared.
type PackageOrigin struct {
	Alias        string
	ManifestPath string
}

// Registry declares a registry-hosted package ("name@version" or
// "@org/name@version"). Registry fetch is not implemented; the declaration
// is validated so manifests using it parse, but sync rejects it.
type Registry struct {
	Name    string
	Org     string
	Version string
}

func (Registry) Kind() DeclKind { return DeclRegistry }
func (Registry) sealed()        {}

func (d Registry) Source() string {
	if d.Org != "" {
		return fmt.Sprintf("@%s/%s@%s", d.Org, d.Name, d.Version)
	}
	return fmt.Sprintf("%s@%s", d.Name, d.Version)
}

// Github declares a package hosted on GitHub as "owner/repo".
type Github struct {
	Repo string // "owner/repo", validated shape
	Ref  GitRef
	Path string // optional subpath within the repo
}

func (Github) Kind() DeclKind   { return DeclGithub }
func (Github) sealed()          {}
func (d Github) Source() string { return d.Repo }

// CloneURL returns the HTTPS clone URL for the repo.
func (d Github) CloneURL() string {
	return "https://github.com/" + d.Repo + ".git"
}

// Git declares a package hosted at an arbitrary git URL.
type Git struct {
	URL  string
	Ref  GitRef
	Path string
}

func (Git) Kind() DeclKind   { return DeclGit }
func (Git) sealed()          {}
func (d Git) Source() string { return d.URL }

// Local declares a package rooted at a local directory. Path is absolute:
// relative paths are resolved against the owning manifest's directory at
// coercion time so downstream code never re-resolves them.
type Local struct {
	Path string
}

func (Local) Kind() DeclKind   { return DeclLocal }
func (Local) sealed()          {}
func (d Local) Source() string { return d.Path }

// ClaudePlugin declares a named plugin from a marketplace catalog.
type ClaudePlugin struct {
	Plugin      string
	Marketplace string
}

func (ClaudePlugin) Kind() DeclKind { return DeclClaudePlugin }
func (ClaudePlugin) sealed()        {}

func (d ClaudePlugin) Source() string {
	return d.Plugin + "@" + d.Marketplace
}

// ValidateAlias enforces the filesystem-safety invariant on dependency
// aliases: non-empty and free of '/', '.', ':' so an alias can always be
// used as a path component of an install target.
func ValidateAlias(alias string) error {
	if alias == "" {
		return skerr.New(skerr.KindValidation, "dependency alias must not be empty")
	}
	if strings.ContainsAny(alias, "/.:") {
		return skerr.New(skerr.KindValidation,
			"dependency alias %q must not contain '/', '.' or ':'", alias)
	}
	return nil
}

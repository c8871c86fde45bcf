// Package fetch materializes canonical packages on disk. Remote packages
// are cloned shallow (sparse when a subpath narrows the clone) into a
// per-run temp root; local packages are validated and used in place.
//
// Packages sharing a repository and ref are grouped so each repo is cloned
// exactly once regardless of how many aliases reference it.
package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/skillkit/sk/internal/logging"
	"github.com/skillkit/sk/internal/manifest"
	"github.com/skillkit/sk/internal/resolve"
)

// Package is a fetched package: the canonical descriptor plus where its
// repository and its own subtree landed on disk. RepoPath is shared by all
// members of a clone group.
type Package struct {
	Canonical   resolve.CanonicalPackage
	RepoPath    string
	PackagePath string
}

// Fetcher executes fetch strategies against a temp root it does not own;
// the sync orchestrator creates and removes the root around each run.
type Fetcher struct {
	tmpRoot string
	timeout time.Duration
	log     *slog.Logger
}

// New creates a Fetcher cloning into tmpRoot.
func New(tmpRoot string) *Fetcher {
	return &Fetcher{
		tmpRoot: tmpRoot,
		timeout: gitTimeout,
		log:     logging.With("component", "fetch"),
	}
}

var githubSlugSegment = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)

// ParseGithubSlug validates and splits an "owner/repo" slug, stripping a
// trailing ".git".
func ParseGithubSlug(slug string) (owner, repo string, err error) {
	trimmed := strings.TrimSuffix(strings.TrimSpace(slug), ".git")
	parts := strings.Split(trimmed, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid GitHub slug %q: want exactly \"owner/repo\"", slug)
	}
	for _, part := range parts {
		if !githubSlugSegment.MatchString(part) {
			return "", "", fmt.Errorf("invalid GitHub slug %q: bad segment %q", slug, part)
		}
	}
	return parts[0], parts[1], nil
}

// NormalizeSparsePath validates a repo subpath for sparse checkout. Empty
// and absolute paths are rejected, as is any path escaping the repo root
// via ".." (directory-traversal guard for all remote subpaths). Redundant
// "." segments are cleaned, so "./a/./b" normalizes to "a/b".
func NormalizeSparsePath(p string) (string, error) {
	if strings.TrimSpace(p) == "" {
		return "", fmt.Errorf("subpath must not be empty")
	}
	slashed := filepath.ToSlash(p)
	if path.IsAbs(slashed) || strings.HasPrefix(slashed, "//") {
		return "", fmt.Errorf("subpath %q must be relative", p)
	}
	for _, seg := range strings.Split(slashed, "/") {
		if seg == ".." {
			return "", fmt.Errorf("subpath %q must not contain \"..\"", p)
		}
	}
	cleaned := path.Clean(slashed)
	if cleaned == "." || cleaned == "" {
		return "", fmt.Errorf("subpath %q resolves to the repository root", p)
	}
	return cleaned, nil
}

// groupKey identifies a set of packages that can share one clone:
// same declaration kind, same repository identity, same ref.
type groupKey struct {
	kind     manifest.DeclKind
	identity string
	ref      string
}

// cloneGroup accumulates the packages of one groupKey. If any member omits
// a subpath the whole group is fetched as a full checkout; otherwise the
// sparse path set is the union of the members' subpaths.
type cloneGroup struct {
	key      groupKey
	cloneURL string
	ref      manifest.GitRef
	full     bool
	paths    []string
	members  []resolve.CanonicalPackage
}

// All fetches every package, returning results in the input order. Local
// packages are validated; registry packages are rejected (registry hosting
// is not implemented); remote packages are grouped and cloned once per
// repository+ref.
func (f *Fetcher) All(ctx context.Context, pkgs []resolve.CanonicalPackage) ([]Package, error) {
	groups := make(map[groupKey]*cloneGroup)
	var order []groupKey

	fetched := make(map[string]Package, len(pkgs)) // keyed by alias

	for _, pkg := range pkgs {
		switch decl := pkg.Decl.(type) {
		case manifest.Local:
			fp, err := f.fetchLocal(pkg, decl)
			if err != nil {
				return nil, err
			}
			fetched[pkg.Alias()] = fp
		case manifest.Registry:
			return nil, &Error{
				Failure: FailInvalidSource,
				Alias:   pkg.Alias(),
				Source:  decl.Source(),
				Err:     fmt.Errorf("registry packages are not supported yet"),
			}
		case manifest.ClaudePlugin:
			// Plugin declarations are resolved to ordinary declarations
			// before fetching; reaching here is a pipeline bug.
			return nil, &Error{
				Failure: FailInvalidSource,
				Alias:   pkg.Alias(),
				Source:  decl.Source(),
				Err:     fmt.Errorf("unresolved claude-plugin declaration reached the fetcher"),
			}
		case manifest.Github:
			if err := f.addToGroup(groups, &order, pkg, DeclIdentity(decl), decl.CloneURL(), decl.Ref, decl.Path); err != nil {
				return nil, err
			}
		case manifest.Git:
			if err := f.addToGroup(groups, &order, pkg, DeclIdentity(decl), decl.URL, decl.Ref, decl.Path); err != nil {
				return nil, err
			}
		}
	}

	for _, key := range order {
		group := groups[key]
		if err := f.fetchGroup(ctx, group, fetched); err != nil {
			return nil, err
		}
	}

	result := make([]Package, 0, len(pkgs))
	for _, pkg := range pkgs {
		result = append(result, fetched[pkg.Alias()])
	}
	return result, nil
}

// DeclIdentity returns the repository identity used for grouping: the slug
// for GitHub declarations, the URL otherwise.
func DeclIdentity(decl manifest.Declaration) string {
	switch d := decl.(type) {
	case manifest.Github:
		return d.Repo
	case manifest.Git:
		return d.URL
	default:
		return decl.Source()
	}
}

func (f *Fetcher) addToGroup(
	groups map[groupKey]*cloneGroup,
	order *[]groupKey,
	pkg resolve.CanonicalPackage,
	identity, cloneURL string,
	ref manifest.GitRef,
	subPath string,
) error {
	if d, ok := pkg.Decl.(manifest.Github); ok {
		if _, _, err := ParseGithubSlug(d.Repo); err != nil {
			return &Error{Failure: FailInvalidSource, Alias: pkg.Alias(), Source: d.Repo, Err: err}
		}
	}

	key := groupKey{kind: pkg.Decl.Kind(), identity: identity, ref: ref.String()}
	group, ok := groups[key]
	if !ok {
		group = &cloneGroup{key: key, cloneURL: cloneURL, ref: ref}
		groups[key] = group
		*order = append(*order, key)
	}
	group.members = append(group.members, pkg)

	if subPath == "" {
		// One alias wants the whole repo: the group degrades to a full
		// checkout even if other aliases asked for subpaths.
		group.full = true
		return nil
	}
	normalized, err := NormalizeSparsePath(subPath)
	if err != nil {
		return &Error{Failure: FailInvalidSource, Alias: pkg.Alias(), Source: pkg.Decl.Source(), Err: err}
	}
	group.paths = append(group.paths, normalized)
	return nil
}

func (f *Fetcher) fetchLocal(pkg resolve.CanonicalPackage, decl manifest.Local) (Package, error) {
	info, err := os.Stat(decl.Path)
	if err != nil {
		return Package{}, &Error{
			Failure: FailInvalidSource,
			Alias:   pkg.Alias(),
			Source:  decl.Path,
			Err:     fmt.Errorf("local path does not exist"),
		}
	}
	if !info.IsDir() {
		return Package{}, &Error{
			Failure: FailInvalidSource,
			Alias:   pkg.Alias(),
			Source:  decl.Path,
			Err:     fmt.Errorf("local path is not a directory"),
		}
	}
	return Package{Canonical: pkg, RepoPath: decl.Path, PackagePath: decl.Path}, nil
}

func (f *Fetcher) fetchGroup(ctx context.Context, group *cloneGroup, fetched map[string]Package) error {
	lead := group.members[0]
	dst := filepath.Join(f.tmpRoot, destName(group.key))

	if _, err := os.Lstat(dst); err == nil {
		return &Error{
			Failure: FailInvalidRepo,
			Alias:   lead.Alias(),
			Source:  lead.Decl.Source(),
			Err:     fmt.Errorf("clone destination %s already exists", dst),
		}
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return &Error{Failure: FailIO, Alias: lead.Alias(), Source: lead.Decl.Source(), Err: err}
	}

	sparse := !group.full && len(group.paths) > 0

	f.log.Debug("cloning repository",
		"url", group.cloneURL, "ref", group.ref.String(),
		"sparse", sparse, "aliases", len(group.members))

	if err := f.clone(ctx, group.cloneURL, dst, sparse); err != nil {
		return &Error{Failure: FailGit, Alias: lead.Alias(), Source: lead.Decl.Source(), Err: err}
	}
	if sparse {
		paths := dedupeSorted(group.paths)
		if err := f.sparseCheckout(ctx, group.cloneURL, dst, paths); err != nil {
			return &Error{Failure: FailGit, Alias: lead.Alias(), Source: lead.Decl.Source(), Err: err}
		}
	}
	if !group.ref.IsZero() {
		if err := f.checkoutRef(ctx, group.cloneURL, dst, group.ref); err != nil {
			return &Error{Failure: FailGit, Alias: lead.Alias(), Source: lead.Decl.Source(), Err: err}
		}
	}

	for _, pkg := range group.members {
		pkgPath := dst
		if sub := pkg.SubPath(); sub != "" {
			normalized, err := NormalizeSparsePath(sub)
			if err != nil {
				return &Error{Failure: FailInvalidSource, Alias: pkg.Alias(), Source: pkg.Decl.Source(), Err: err}
			}
			pkgPath = filepath.Join(dst, filepath.FromSlash(normalized))
			if info, statErr := os.Stat(pkgPath); statErr != nil || !info.IsDir() {
				return &Error{
					Failure: FailInvalidSource,
					Alias:   pkg.Alias(),
					Source:  pkg.Decl.Source(),
					Err:     fmt.Errorf("path %q does not exist in repository", sub),
				}
			}
		}
		fetched[pkg.Alias()] = Package{Canonical: pkg, RepoPath: dst, PackagePath: pkgPath}
	}
	return nil
}

var destSanitizeRegexp = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

// destName derives a stable directory name for a clone group under the
// temp root.
func destName(key groupKey) string {
	name := key.identity
	if key.ref != "" {
		name += "@" + key.ref
	}
	name = destSanitizeRegexp.ReplaceAllString(name, "-")
	if len(name) > 200 {
		name = name[:200]
	}
	return name
}

func dedupeSorted(paths []string) []string {
	seen := make(map[string]bool, len(paths))
	var out []string
	for _, p := range paths {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}

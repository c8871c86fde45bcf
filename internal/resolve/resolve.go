// Package resolve maps validated declarations to canonical package
// descriptors and fetch strategies. Everything here is a pure function of
// its inputs; no I/O happens until the fetcher runs.
package resolve

import (
	"fmt"

	"github.com/skillkit/sk/internal/manifest"
)

// StrategyKind discriminates how a package's files are obtained.
type StrategyKind string

const (
	StrategyClone   StrategyKind = "clone"
	StrategySymlink StrategyKind = "symlink"
)

// FetchStrategy describes how to materialize a package's files.
type FetchStrategy struct {
	Kind   StrategyKind
	Sparse bool // only meaningful for clones
}

// CanonicalPackage is a resolved package descriptor: a declaration, the
// origin that declared it, and the strategy selected for fetching it.
type CanonicalPackage struct {
	Origin   manifest.PackageOrigin
	Decl     manifest.Declaration
	Strategy FetchStrategy
}

// Alias returns the declaring alias, the stable identity used in install
// target names and error messages.
func (p CanonicalPackage) Alias() string { return p.Origin.Alias }

// SubPath returns the declared repository subpath, or "" for declaration
// kinds that have none.
func (p CanonicalPackage) SubPath() string {
	switch d := p.Decl.(type) {
	case manifest.Github:
		return d.Path
	case manifest.Git:
		return d.Path
	default:
		return ""
	}
}

// Ref returns the declared git ref, or the zero ref.
func (p CanonicalPackage) Ref() manifest.GitRef {
	switch d := p.Decl.(type) {
	case manifest.Github:
		return d.Ref
	case manifest.Git:
		return d.Ref
	default:
		return manifest.GitRef{}
	}
}

// Package resolves one dependency into a canonical package. The mapping is
// total over the declaration sum:
//
//   - registry and claude-plugin always clone without sparse checkout
//   - github and git clone, sparse exactly when a subpath narrows the clone
//   - local packages are never cloned; the directory is used in place
func Package(dep manifest.Dependency) CanonicalPackage {
	return CanonicalPackage{
		Origin:   dep.Origin,
		Decl:     dep.Decl,
		Strategy: strategyFor(dep.Decl),
	}
}

// Packages resolves every dependency in the manifest, ordered by alias.
func Packages(m *manifest.Manifest) []CanonicalPackage {
	pkgs := make([]CanonicalPackage, 0, len(m.Dependencies))
	for _, alias := range m.Aliases() {
		pkgs = append(pkgs, Package(m.Dependencies[alias]))
	}
	return pkgs
}

func strategyFor(decl manifest.Declaration) FetchStrategy {
	switch d := decl.(type) {
	case manifest.Registry:
		return FetchStrategy{Kind: StrategyClone}
	case manifest.ClaudePlugin:
		return FetchStrategy{Kind: StrategyClone}
	case manifest.Github:
		return FetchStrategy{Kind: StrategyClone, Sparse: d.Path != ""}
	case manifest.Git:
		return FetchStrategy{Kind: StrategyClone, Sparse: d.Path != ""}
	case manifest.Local:
		return FetchStrategy{Kind: StrategySymlink}
	default:
		panic(fmt.Sprintf("resolve: unhandled declaration kind %q", decl.Kind()))
	}
}

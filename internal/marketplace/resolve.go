package marketplace

import (
	"context"
	"os"
	"path/filepath"

	"github.com/skillkit/sk/internal/fetch"
	"github.com/skillkit/sk/internal/manifest"
	"github.com/skillkit/sk/internal/skerr"
)

// ResolveDeclaration turns a claude-plugin declaration into the ordinary
// declaration its marketplace entry points at, loading (or reusing) the
// marketplace catalog through the loader's cache. sourceDir anchors
// relative marketplace specs.
func (l *Loader) ResolveDeclaration(ctx context.Context, decl manifest.ClaudePlugin, sourceDir string) (manifest.Declaration, error) {
	loaded, err := l.Load(ctx, decl.Marketplace, sourceDir)
	if err != nil {
		return nil, err
	}
	plug, err := FindPlugin(loaded.Info, decl.Plugin)
	if err != nil {
		return nil, err
	}
	resolved, err := ResolvePluginSource(loaded, plug)
	if err != nil {
		return nil, err
	}
	// The indirection is bounded to one step; the source shapes above can
	// never produce another claude-plugin declaration.
	if resolved.Kind() == manifest.DeclClaudePlugin {
		return nil, skerr.New(skerr.KindValidation,
			"plugin %q in marketplace %q resolves to another plugin declaration", decl.Plugin, loaded.Info.Name)
	}
	return resolved, nil
}

// ResolvePluginSource maps a catalog entry's source onto a declaration:
// relative paths become local packages under the plugin root, github
// sources become GitHub packages, url sources become git packages.
func ResolvePluginSource(loaded *Loaded, plug Plugin) (manifest.Declaration, error) {
	switch plug.Source.Kind {
	case SourcePath:
		if loaded.RootDir == "" {
			return nil, skerr.New(skerr.KindValidation,
				"plugin %q: relative source %q requires a filesystem-backed marketplace",
				plug.Name, plug.Source.Path)
		}
		rel, err := fetch.NormalizeSparsePath(plug.Source.Path)
		if err != nil {
			return nil, skerr.Wrap(skerr.KindValidation, err, "plugin %q source", plug.Name)
		}
		dir := filepath.Join(loaded.RootDir, filepath.FromSlash(rel))
		if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
			return nil, skerr.New(skerr.KindValidation,
				"plugin %q: source directory %q does not exist in marketplace %q",
				plug.Name, plug.Source.Path, loaded.Info.Name)
		}
		return manifest.Local{Path: dir}, nil

	case SourceGithub:
		repo, _ := stripGithubPrefix(plug.Source.Repo)
		owner, name, err := fetch.ParseGithubSlug(repo)
		if err != nil {
			return nil, skerr.Wrap(skerr.KindValidation, err, "plugin %q source", plug.Name)
		}
		return manifest.Github{Repo: owner + "/" + name}, nil

	case SourceURL:
		if plug.Source.URL == "" {
			return nil, skerr.New(skerr.KindValidation, "plugin %q: url source is empty", plug.Name)
		}
		return manifest.Git{URL: plug.Source.URL}, nil

	default:
		return nil, skerr.New(skerr.KindValidation,
			"plugin %q: unsupported source kind %q", plug.Name, plug.Source.Kind)
	}
}

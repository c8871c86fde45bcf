package marketplace

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/skillkit/sk/internal/fetch"
	"github.com/skillkit/sk/internal/manifest"
	"github.com/skillkit/sk/internal/resolve"
	"github.com/skillkit/sk/internal/skerr"
)

// urlFetchTimeout bounds a direct marketplace.json download.
const urlFetchTimeout = 10 * time.Second

// maxCatalogSize caps a downloaded catalog at 4 MiB.
const maxCatalogSize = 4 << 20

// Loaded is a marketplace catalog ready for plugin lookup.
type Loaded struct {
	Info *Info

	// RootDir is the directory relative plugin sources resolve against.
	// Empty for URL-backed marketplaces, which have no local backing.
	RootDir string
}

// Loader fetches and caches marketplace catalogs for one sync run. A
// marketplace referenced by many plugin declarations is fetched and parsed
// once; entries are keyed by the raw spec string.
type Loader struct {
	fetcher *fetch.Fetcher
	client  *http.Client
	cache   map[string]*Loaded
}

// NewLoader creates a Loader cloning repo-backed marketplaces through
// fetcher.
func NewLoader(fetcher *fetch.Fetcher) *Loader {
	return &Loader{
		fetcher: fetcher,
		client:  &http.Client{},
		cache:   make(map[string]*Loaded),
	}
}

// Load classifies and loads a marketplace spec. sourceDir anchors relative
// local specs (the directory of the manifest that declared the plugin).
//
// Classification order: GitHub-prefixed shorthand, an absolute URL ending
// in marketplace.json, a generic git URL, an existing local directory, and
// finally a bare GitHub slug attempt.
func (l *Loader) Load(ctx context.Context, spec, sourceDir string) (*Loaded, error) {
	if cached, ok := l.cache[spec]; ok {
		return cached, nil
	}
	loaded, err := l.load(ctx, spec, sourceDir)
	if err != nil {
		return nil, err
	}
	l.cache[spec] = loaded
	return loaded, nil
}

func (l *Loader) load(ctx context.Context, spec, sourceDir string) (*Loaded, error) {
	if slug, ok := stripGithubPrefix(spec); ok {
		return l.loadFromRepo(ctx, spec, manifest.Github{Repo: slug})
	}

	if isHTTPURL(spec) && strings.HasSuffix(spec, "marketplace.json") {
		return l.loadFromURL(ctx, spec)
	}

	if isGitURL(spec) {
		return l.loadFromRepo(ctx, spec, manifest.Git{URL: spec})
	}

	localDir := spec
	if !filepath.IsAbs(localDir) {
		localDir = filepath.Join(sourceDir, localDir)
	}
	if info, err := os.Stat(localDir); err == nil && info.IsDir() {
		return l.loadFromDir(localDir)
	}

	// Last resort: treat the spec as a bare GitHub slug.
	if _, _, err := fetch.ParseGithubSlug(spec); err == nil {
		return l.loadFromRepo(ctx, spec, manifest.Github{Repo: spec})
	}

	return nil, skerr.New(skerr.KindValidation,
		"cannot interpret marketplace spec %q: not a GitHub repo, git URL, marketplace.json URL, or local directory", spec)
}

// loadFromRepo clones the marketplace repository and reads its catalog.
func (l *Loader) loadFromRepo(ctx context.Context, spec string, decl manifest.Declaration) (*Loaded, error) {
	pkg := resolve.Package(manifest.Dependency{
		Origin: manifest.PackageOrigin{Alias: "marketplace"},
		Decl:   decl,
	})
	fetched, err := l.fetcher.All(ctx, []resolve.CanonicalPackage{pkg})
	if err != nil {
		return nil, skerr.Wrap(skerr.KindGit, err, "fetching marketplace %q", spec)
	}
	return l.loadFromDir(fetched[0].RepoPath)
}

// loadFromDir reads the catalog from a marketplace checkout or local
// directory. A pluginRoot declared inside the catalog re-roots plugin
// sources; it must name an existing directory inside the marketplace.
func (l *Loader) loadFromDir(root string) (*Loaded, error) {
	catalogFile := filepath.Join(root, filepath.FromSlash(CatalogPath))
	data, err := os.ReadFile(catalogFile)
	if err != nil {
		return nil, skerr.Wrap(skerr.KindIO, err, "reading %s", catalogFile)
	}
	info, err := parseInfo(data, catalogFile)
	if err != nil {
		return nil, err
	}

	rootDir := root
	if info.PluginRoot != "" {
		rootDir = filepath.Join(root, filepath.FromSlash(info.PluginRoot))
		if fi, err := os.Stat(rootDir); err != nil || !fi.IsDir() {
			return nil, skerr.New(skerr.KindValidation,
				"marketplace %q: pluginRoot %q is not a directory", info.Name, info.PluginRoot)
		}
	}
	return &Loaded{Info: info, RootDir: rootDir}, nil
}

// loadFromURL downloads the catalog directly. There is no filesystem
// backing, so pluginRoot is rejected and relative plugin sources will fail
// resolution later with a validation error rather than a silent
// cwd-relative guess.
func (l *Loader) loadFromURL(ctx context.Context, rawURL string) (*Loaded, error) {
	ctx, cancel := context.WithTimeout(ctx, urlFetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, skerr.Wrap(skerr.KindValidation, err, "invalid marketplace URL %q", rawURL)
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, skerr.Wrap(skerr.KindNetwork, err, "fetching marketplace %q", rawURL)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, skerr.New(skerr.KindNetwork,
			"fetching marketplace %q: status %d", rawURL, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxCatalogSize))
	if err != nil {
		return nil, skerr.Wrap(skerr.KindNetwork, err, "reading marketplace %q", rawURL)
	}

	info, err := parseInfo(data, rawURL)
	if err != nil {
		return nil, err
	}
	if info.PluginRoot != "" {
		return nil, skerr.New(skerr.KindValidation,
			"marketplace %q: pluginRoot is not allowed for URL-backed marketplaces", info.Name)
	}
	return &Loaded{Info: info}, nil
}

func isHTTPURL(s string) bool {
	return strings.HasPrefix(s, "https://") || strings.HasPrefix(s, "http://")
}

func isGitURL(s string) bool {
	return isHTTPURL(s) ||
		strings.HasPrefix(s, "ssh://") ||
		strings.HasPrefix(s, "git://") ||
		strings.HasPrefix(s, "file://") ||
		strings.HasPrefix(s, "git@")
}

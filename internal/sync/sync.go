// Package sync drives the per-agent pipeline: resolve plugin declarations,
// fetch packages, detect structures, extract skills, plan the install, and
// reconcile the agent's skills directory against its persisted state.
//
// The pipeline short-circuits on failure before any filesystem write, and
// the preflight conflict guard ensures sk never overwrites a file it does
// not manage. There is no cross-process locking: concurrent sync runs
// against the same agent are not mutually safe, because the conflict guard
// assumes exclusive access between state read and state write.
package sync

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/skillkit/sk/internal/agent"
	"github.com/skillkit/sk/internal/detect"
	"github.com/skillkit/sk/internal/extract"
	"github.com/skillkit/sk/internal/fetch"
	"github.com/skillkit/sk/internal/logging"
	"github.com/skillkit/sk/internal/manifest"
	"github.com/skillkit/sk/internal/marketplace"
	"github.com/skillkit/sk/internal/plan"
	"github.com/skillkit/sk/internal/resolve"
	"github.com/skillkit/sk/internal/skerr"
	"github.com/skillkit/sk/internal/state"
)

// Options configures a sync run.
type Options struct {
	// DryRun computes and reports the plan but commits nothing: no
	// installs, no removals, no state file write, no native plugin calls.
	DryRun bool
}

// Result is the outcome of syncing one agent.
type Result struct {
	AgentID string
	DryRun  bool

	// NoDependencies marks the distinguished cold outcome: the manifest
	// declares nothing and no state file exists, so there was nothing to
	// install and nothing to reconcile.
	NoDependencies bool

	Installed int
	Removed   int
	Plugins   int // plugins installed natively via the agent's own CLI

	// Warnings holds recoverable conditions, currently plugins skipped
	// for providing no skills.
	Warnings []string

	Plan plan.Plan
}

// Syncer runs the sync pipeline. Agents are synced sequentially; no
// parallel git operations share a temp root.
type Syncer struct {
	opts Options
	log  *slog.Logger
}

// New creates a Syncer.
func New(opts Options) *Syncer {
	return &Syncer{opts: opts, log: logging.With("component", "sync")}
}

// AgentOutcome pairs an agent's result with its error so one failing agent
// does not hide the others' outcomes.
type AgentOutcome struct {
	Agent  agent.Agent
	Result *Result
	Err    error
}

// All syncs every agent in order.
func (s *Syncer) All(ctx context.Context, m *manifest.Manifest, agents []agent.Agent) []AgentOutcome {
	outcomes := make([]AgentOutcome, 0, len(agents))
	for _, ag := range agents {
		result, err := s.Agent(ctx, m, ag)
		outcomes = append(outcomes, AgentOutcome{Agent: ag, Result: result, Err: err})
	}
	return outcomes
}

// nativePlugin is a plugin declaration deferred to the host agent's CLI.
type nativePlugin struct {
	alias string
	decl  manifest.ClaudePlugin
}

// Agent runs the full pipeline for one agent.
func (s *Syncer) Agent(ctx context.Context, m *manifest.Manifest, ag agent.Agent) (*Result, error) {
	if err := ag.Validate(); err != nil {
		return nil, skerr.AtStage(skerr.StageAgents, skerr.KindValidation, err)
	}

	// The temp root owns every clone of this run and is removed on every
	// exit path, success or failure.
	tmpRoot, err := os.MkdirTemp("", "sk-sync-*")
	if err != nil {
		return nil, skerr.AtStage(skerr.StageFetch, skerr.KindIO, err)
	}
	defer func() { _ = os.RemoveAll(tmpRoot) }()

	fetcher := fetch.New(tmpRoot)
	loader := marketplace.NewLoader(fetcher)

	result := &Result{AgentID: ag.ID, DryRun: s.opts.DryRun}

	// resolve-plugins: claude-plugin declarations either defer to the
	// agent's native installer or collapse into ordinary declarations.
	pkgs, natives, fromPlugin, err := s.resolvePlugins(ctx, m, ag, loader)
	if err != nil {
		return nil, err
	}

	// fetch
	fetched, err := fetcher.All(ctx, pkgs)
	if err != nil {
		return nil, skerr.AtStage(skerr.StageFetch, fetchKind(err), err)
	}

	// detect + extract
	pkgSkills, warnings, err := s.extractAll(fetched, fromPlugin)
	if err != nil {
		return nil, err
	}
	result.Warnings = warnings

	// validate: global target-name collision check
	if err := plan.Validate(pkgSkills); err != nil {
		return nil, skerr.AtStage(skerr.StageValidate, skerr.KindValidation, err)
	}

	// plan
	skillsRoot := ag.SkillsRoot()
	p := plan.Build(skillsRoot, pkgSkills)
	result.Plan = p

	// preflight
	prev, err := state.Read(skillsRoot)
	if err != nil {
		return nil, skerr.AtStage(skerr.StageInstall, skerr.KindIO, err)
	}

	if len(p.Tasks) == 0 && len(natives) == 0 && prev == nil {
		result.NoDependencies = true
		return result, nil
	}

	managed := map[string]bool{}
	if prev != nil {
		managed = prev.Managed()
	}
	for _, task := range p.Tasks {
		if pathExists(task.TargetPath) && !managed[task.TargetName] {
			return nil, skerr.AtStage(skerr.StageInstall, skerr.KindConflict,
				skerr.New(skerr.KindConflict,
					"refusing to overwrite %s: it exists but is not managed by sk", task.TargetPath))
		}
	}

	desired := p.TargetNames()
	stale := staleTargets(prev, desired)

	if s.opts.DryRun {
		result.Installed = len(p.Tasks)
		result.Removed = len(stale)
		result.Plugins = len(natives)
		return result, nil
	}

	// Native plugin installs are delegated before file installs so a
	// failing host CLI aborts the run without touching the skills dir.
	for _, np := range natives {
		if err := ag.InstallPlugin(ctx, np.decl.Plugin, np.decl.Marketplace); err != nil {
			return nil, skerr.AtStage(skerr.StageInstall, skerr.KindGit, err)
		}
		result.Plugins++
	}

	// remove-managed-targets, then apply-install
	installed, err := installTasks(p.Tasks)
	result.Installed = installed
	if err != nil {
		return nil, skerr.AtStage(skerr.StageInstall, skerr.KindIO, err)
	}
	for _, task := range p.Tasks {
		s.log.Debug("installed skill", "agent", ag.ID, "target", task.TargetName)
	}

	// reconcile-removals: skills we managed before but that are no longer
	// desired. With no previous state nothing is removed (first-run
	// safety: never delete on a cold state).
	for _, name := range stale {
		if err := removeTarget(filepath.Join(skillsRoot, name)); err != nil {
			return nil, skerr.AtStage(skerr.StageReconcile, skerr.KindIO, err)
		}
		result.Removed++
		s.log.Debug("removed stale skill", "agent", ag.ID, "target", name)
	}

	// persist-state: full overwrite, never a patch.
	if err := state.Write(skillsRoot, desired); err != nil {
		return nil, skerr.AtStage(skerr.StageReconcile, skerr.KindIO, err)
	}

	return result, nil
}

// resolvePlugins splits the manifest's packages into fetchable canonical
// packages and natively installed plugins. For agents without native
// plugin support, claude-plugin declarations are resolved through their
// marketplace into ordinary declarations and flow down the same pipeline;
// the returned set remembers which aliases came from plugin declarations,
// since their resolved declaration no longer says so.
func (s *Syncer) resolvePlugins(
	ctx context.Context,
	m *manifest.Manifest,
	ag agent.Agent,
	loader *marketplace.Loader,
) ([]resolve.CanonicalPackage, []nativePlugin, map[string]bool, error) {
	var pkgs []resolve.CanonicalPackage
	var natives []nativePlugin
	fromPlugin := make(map[string]bool)

	for _, alias := range m.Aliases() {
		dep := m.Dependencies[alias]
		pluginDecl, isPlugin := dep.Decl.(manifest.ClaudePlugin)
		if !isPlugin {
			pkgs = append(pkgs, resolve.Package(dep))
			continue
		}

		if ag.HasNativePlugins() {
			// Validate the plugin exists before delegating; the host CLI
			// error for a missing plugin is less actionable than ours.
			loaded, err := loader.Load(ctx, pluginDecl.Marketplace, m.Dir)
			if err != nil {
				return nil, nil, nil, skerr.AtStage(skerr.StageResolve, skerr.KindValidation, err)
			}
			if _, err := marketplace.FindPlugin(loaded.Info, pluginDecl.Plugin); err != nil {
				return nil, nil, nil, skerr.AtStage(skerr.StageResolve, skerr.KindNotFound, err)
			}
			natives = append(natives, nativePlugin{alias: alias, decl: pluginDecl})
			continue
		}

		resolved, err := loader.ResolveDeclaration(ctx, pluginDecl, m.Dir)
		if err != nil {
			return nil, nil, nil, skerr.AtStage(skerr.StageResolve, skerr.KindValidation, err)
		}
		fromPlugin[alias] = true
		pkgs = append(pkgs, resolve.Package(manifest.Dependency{Origin: dep.Origin, Decl: resolved}))
	}

	return pkgs, natives, fromPlugin, nil
}

// extractAll detects and extracts every fetched package. Plugin packages
// without skills are skipped with a warning during bulk sync rather than
// aborting the run.
func (s *Syncer) extractAll(fetched []fetch.Package, fromPlugin map[string]bool) ([]plan.PackageSkills, []string, error) {
	var pkgSkills []plan.PackageSkills
	var warnings []string

	for _, fp := range fetched {
		structures, err := detect.All(fp.PackagePath)
		if err != nil {
			return nil, nil, skerr.AtStage(skerr.StageDetect, skerr.KindValidation, err)
		}
		selected, err := detect.Select(structures, fromPlugin[fp.Canonical.Alias()])
		if err != nil {
			return nil, nil, skerr.AtStage(skerr.StageDetect, skerr.KindValidation, err)
		}

		skills, err := extract.FromStructure(selected)
		if err != nil {
			var noSkills *extract.NoSkillsError
			if errors.As(err, &noSkills) {
				warning := "skipping " + fp.Canonical.Alias() + ": " + noSkills.Error()
				warnings = append(warnings, warning)
				s.log.Warn("plugin provides no skills; skipping",
					"alias", fp.Canonical.Alias(), "path", noSkills.PluginPath)
				continue
			}
			return nil, nil, skerr.AtStage(skerr.StageExtract, skerr.KindValidation, err)
		}

		// Plugin-collapsed packages materialize inside the run's temp root
		// (or another marketplace-owned tree), so they are always copied;
		// only user-declared local paths install as symlinks.
		link := fp.Canonical.Strategy.Kind == resolve.StrategySymlink &&
			!fromPlugin[fp.Canonical.Alias()]

		pkgSkills = append(pkgSkills, plan.PackageSkills{
			Alias:  fp.Canonical.Alias(),
			Skills: skills,
			Link:   link,
		})
	}

	return pkgSkills, warnings, nil
}

// staleTargets returns previously managed names absent from the new
// desired set. Nil previous state yields nothing: stale removal is skipped
// entirely on a cold state.
func staleTargets(prev *state.AgentState, desired []string) []string {
	if prev == nil {
		return nil
	}
	want := make(map[string]bool, len(desired))
	for _, name := range desired {
		want[name] = true
	}
	var stale []string
	for _, name := range prev.Skills {
		if !want[name] {
			stale = append(stale, name)
		}
	}
	return stale
}

// fetchKind maps the fetcher's failure classification onto error kinds.
func fetchKind(err error) skerr.Kind {
	var fe *fetch.Error
	if !errors.As(err, &fe) {
		return skerr.KindIO
	}
	switch fe.Failure {
	case fetch.FailGit:
		return skerr.KindGit
	case fetch.FailIO:
		return skerr.KindIO
	default:
		return skerr.KindValidation
	}
}

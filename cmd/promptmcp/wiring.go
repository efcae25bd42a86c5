package main

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/viant/afs"

	"github.com/viant/promptmcp/internal/cache"
	"github.com/viant/promptmcp/internal/config"
	"github.com/viant/promptmcp/internal/control"
	"github.com/viant/promptmcp/internal/health"
	"github.com/viant/promptmcp/internal/prompt"
	"github.com/viant/promptmcp/internal/reload"
	"github.com/viant/promptmcp/internal/registry"
	"github.com/viant/promptmcp/internal/render"
	"github.com/viant/promptmcp/internal/source"
)

// app bundles every long-lived component one process instance owns.
type app struct {
	cfg *config.Config
	fs  afs.Service

	fileCache *cache.FileCache
	sources   *source.Manager
	partials  *render.Registry
	store     *registry.Store
	reg       *registry.MCPRegistry
	engine    *reload.Engine
	surface   *control.Surface
	healthSvc *health.Provider

	initialLoad reload.Result
}

// newApp loads configuration, constructs every component, registers the
// Control Surface, and performs the initial load (spec.md §4.3's "Initial
// load" + §6's "no source loads" fatal path).
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	fs := afs.New()
	fileCache := cache.New(fs, 0)

	userSources := make([]source.UserSource, 0, len(cfg.RepoURLs()))
	for i, url := range cfg.RepoURLs() {
		userSources = append(userSources, source.UserSource{Priority: i + 1, Strategy: newStrategy(fs, url, cfg.GitBranch)})
	}
	var system source.Strategy
	if strings.TrimSpace(cfg.SystemRepoURL) != "" {
		system = newStrategy(fs, cfg.SystemRepoURL, cfg.GitBranch)
	}

	mgr := source.NewManager(cfg.StorageDir, cfg.GitBranch, cfg.GitMaxRetries, userSources, system)
	if err := mgr.LoadInitial(ctx); err != nil {
		return nil, err
	}

	partials := render.NewRegistry()
	store := registry.NewStore()
	healthSvc := health.New(mgr, store, fileCache, cfg.CacheCleanupInterval())
	reg := registry.NewMCPRegistry(healthSvc)

	groupsFn := func(systemConfigured bool) prompt.GroupFilter {
		return prompt.NewGroupFilter(cfg.Groups(), systemConfigured)
	}
	engine := reload.New(fs, fileCache, mgr, reg, store, partials, groupsFn, renderHandler)

	surface := control.New(engine, store, mgr, func(url string) (source.Strategy, error) {
		if err := config.ValidateURL(url); err != nil {
			return nil, err
		}
		return newStrategy(fs, url, cfg.GitBranch), nil
	})
	n, err := surface.RegisterAll(reg)
	if err != nil {
		return nil, err
	}
	surface.SetBasicCount(n)

	a := &app{
		cfg: cfg, fs: fs, fileCache: fileCache, sources: mgr, partials: partials,
		store: store, reg: reg, engine: engine, surface: surface, healthSvc: healthSvc,
	}

	res, err := engine.FullReload(ctx)
	if err != nil {
		return nil, fmt.Errorf("initial reload: %w", err)
	}
	a.initialLoad = res
	a.refreshHealthMetadata(ctx)

	if interval := cfg.CacheCleanupInterval(); interval > 0 {
		fileCache.StartSweeper(interval, nil)
	}

	return a, nil
}

// newStrategy classifies url as Git or Local per spec.md §4.2's validate
// checks (scheme prefix vs. filesystem path).
func newStrategy(fs afs.Service, url, branch string) source.Strategy {
	u := strings.TrimSpace(url)
	if strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://") || strings.HasPrefix(u, "git@") {
		return source.NewGitSource(u, branch)
	}
	return source.NewLocalSource(fs, u)
}

// renderHandler builds the registry.Handler closure of spec.md §9's
// "Closures capturing compiled templates" design note: each registered
// tool owns its own compiled template and argument schema by value.
func renderHandler(res *prompt.ParseResult) registry.Handler {
	return func(ctx context.Context, args map[string]interface{}) (string, error) {
		coerced, err := res.ArgSchema.Coerce(args)
		if err != nil {
			return "", err
		}
		return res.Template.Render(coerced)
	}
}

// refreshHealthMetadata updates the health provider's registry-enabled flag
// and observed group set from the current RuntimeState snapshot.
func (a *app) refreshHealthMetadata(ctx context.Context) {
	enabled, err := a.fs.Exists(ctx, joinPath(a.sources.TargetDir(), "registry.yaml"))
	a.healthSvc.SetRegistryStatus(err == nil && enabled)

	seen := make(map[string]bool)
	var groups []string
	for _, p := range a.store.List() {
		if !seen[p.Group] {
			seen[p.Group] = true
			groups = append(groups, p.Group)
		}
	}
	a.healthSvc.SetGroups(groups)
}

func joinPath(root, name string) string {
	return strings.TrimRight(root, "/") + "/" + name
}

// StartWatch starts the active (and system, if configured) source's
// watch/poll mechanism, routing per-file changes to SingleReload and bulk
// changes to FullReload (spec.md §4.3).
func (a *app) StartWatch(ctx context.Context) error {
	pollInterval := a.cfg.GitPollingInterval()
	return a.sources.StartWatch(ctx, pollInterval,
		func(path string) {
			if _, err := a.engine.SingleReload(ctx, path); err != nil {
				log.Printf("promptmcp: single reload for %s failed: %v", path, err)
				return
			}
			a.refreshHealthMetadata(ctx)
		},
		func() {
			if _, err := a.engine.FullReload(ctx); err != nil {
				log.Printf("promptmcp: full reload failed: %v", err)
				return
			}
			a.refreshHealthMetadata(ctx)
		},
	)
}

// Shutdown stops watchers and the cache sweeper. StopWatch/StopSweeper block
// until their goroutines observe the stop signal, so a reload that a Git
// poll tick is running finishes first. A reload started by a LocalSource
// debounce timer (those callbacks run on their own timer goroutines) or by
// a control tool is not waited for.
func (a *app) Shutdown() {
	a.sources.StopWatch()
	a.fileCache.StopSweeper()
}

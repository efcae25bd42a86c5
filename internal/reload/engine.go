// Package reload implements the ReloadEngine of spec.md §4.8: the single
// critical section that re-syncs sources, rebuilds the PartialRegistry,
// re-parses every document, ranks and dual-swap registers the winners, and
// publishes a fresh RuntimeState snapshot — plus its single-file fast path.
//
// Grounded on internal/hotswap/manager.go's loopDispatch/debounce-then-act
// shape for the serialization discipline, generalised from "one watcher
// loop, many small reloads" to "one reload critical section, coalescing
// concurrent requests into an in-flight future".
package reload

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/viant/afs"

	"github.com/viant/promptmcp/internal/cache"
	"github.com/viant/promptmcp/internal/catalog"
	"github.com/viant/promptmcp/internal/prompt"
	"github.com/viant/promptmcp/internal/rank"
	"github.com/viant/promptmcp/internal/registry"
	"github.com/viant/promptmcp/internal/render"
	"github.com/viant/promptmcp/internal/source"
)

// FileError is one per-document failure collected during a reload.
type FileError struct {
	File    string `json:"file"`
	Message string `json:"message"`
}

// Result is the outcome of a completed fullReload.
type Result struct {
	Loaded int         `json:"loaded"`
	Errors []FileError `json:"errors"`
}

// ToolHandlerFactory builds the registry.Handler closure invoking a
// compiled template for one document; kept as an injectable seam so the
// engine does not itself know about argument coercion or rendering wiring
// beyond what ParseResult already gives it.
type ToolHandlerFactory func(res *prompt.ParseResult) registry.Handler

// Engine is the ReloadEngine.
type Engine struct {
	fs       afs.Service
	fileCache *cache.FileCache
	sources  *source.Manager
	reg      *registry.MCPRegistry
	store    *registry.Store
	partials *render.Registry
	groups   func(systemConfigured bool) prompt.GroupFilter
	handler  ToolHandlerFactory

	mu       sync.Mutex
	inFlight *reloadFuture
}

type reloadFuture struct {
	id   string
	done chan struct{}
	res  Result
	err  error
}

// New constructs an Engine. groupsFn builds a GroupFilter from the
// operator-configured active set, given whether a system source is
// configured (spec.md §4.6's systemConfigured flag).
func New(
	fs afs.Service,
	fileCache *cache.FileCache,
	sources *source.Manager,
	reg *registry.MCPRegistry,
	store *registry.Store,
	partials *render.Registry,
	groupsFn func(systemConfigured bool) prompt.GroupFilter,
	handler ToolHandlerFactory,
) *Engine {
	return &Engine{
		fs: fs, fileCache: fileCache, sources: sources, reg: reg,
		store: store, partials: partials, groups: groupsFn, handler: handler,
	}
}

// FullReload runs the bulk/initial/Git-update path of spec.md §4.8.
// Concurrent callers while a reload is in flight coalesce onto the same
// result (re-entrancy protection).
func (e *Engine) FullReload(ctx context.Context) (Result, error) {
	e.mu.Lock()
	if e.inFlight != nil {
		f := e.inFlight
		e.mu.Unlock()
		<-f.done
		return f.res, f.err
	}
	f := &reloadFuture{id: uuid.NewString(), done: make(chan struct{})}
	e.inFlight = f
	e.mu.Unlock()

	log.Printf("reload: starting correlation=%s", f.id)
	res, err := e.runFullReload(ctx, f.id)
	f.res, f.err = res, err
	close(f.done)
	log.Printf("reload: complete correlation=%s loaded=%d errors=%d", f.id, res.Loaded, len(res.Errors))

	e.mu.Lock()
	e.inFlight = nil
	e.mu.Unlock()

	return res, err
}

func (e *Engine) runFullReload(ctx context.Context, correlationID string) (Result, error) {
	active := e.sources.Active()
	if active == nil {
		return Result{}, fmt.Errorf("reload: no active source")
	}
	if err := e.sources.SyncActive(ctx); err != nil {
		return Result{}, err
	}
	if e.sources.HasSystem() {
		// System source sync failure is logged, not fatal (spec.md §4.3/§4.8).
		if err := e.sources.SyncSystem(ctx); err != nil {
			log.Printf("reload[%s]: system source sync failed, proceeding with previous snapshot: %v", correlationID, err)
		}
	}

	e.fileCache.Invalidate(e.sources.TargetDir())
	if e.sources.HasSystem() {
		e.fileCache.Invalidate(e.sources.SystemDir())
	}

	e.partials.Reset()
	if err := e.loadPartials(ctx, e.sources.TargetDir()); err != nil {
		return Result{}, fmt.Errorf("reload: partial registry rebuild: %w", err)
	}
	if e.sources.HasSystem() {
		if err := e.loadPartials(ctx, e.sources.SystemDir()); err != nil {
			log.Printf("reload[%s]: system partial registry rebuild failed: %v", correlationID, err)
		}
	}

	groups := e.groups(e.sources.HasSystem())

	userRegistryIdx, err := prompt.LoadRegistry(ctx, e.fs, e.sources.TargetDir())
	if err != nil {
		log.Printf("reload[%s]: registry.yaml: %v", correlationID, err)
	}
	userParser := prompt.NewParser(e.fs, e.partials, userRegistryIdx, groups)

	userDocs, parsed, errs := e.parseTree(ctx, userParser, e.sources.TargetDir(), false)

	var systemDocs []*catalog.Prompt
	if e.sources.HasSystem() {
		sysRegistryIdx, err := prompt.LoadRegistry(ctx, e.fs, e.sources.SystemDir())
		if err != nil {
			log.Printf("reload[%s]: system registry.yaml: %v", correlationID, err)
		}
		sysParser := prompt.NewParser(e.fs, e.partials, sysRegistryIdx, groups)
		var sysParsed []*prompt.ParseResult
		var sysErrs []FileError
		systemDocs, sysParsed, sysErrs = e.parseTree(ctx, sysParser, e.sources.SystemDir(), true)
		parsed = append(parsed, sysParsed...)
		errs = append(errs, sysErrs...)
	}

	winners, all := rank.Resolve(userDocs, systemDocs)

	// Keyed by file path, not id: two documents can share an id (spec.md §3's
	// duplicate-id scenario), and rank.Resolve's winner is a specific
	// *catalog.Prompt/file, not just a winning id. Keying by id here would
	// make the lookup below resolve to whichever same-id document was parsed
	// last, which need not be the file rank.Resolve actually picked.
	byPath := make(map[string]*prompt.ParseResult, len(parsed))
	for _, p := range parsed {
		byPath[p.Runtime.FilePath] = p
	}

	newHandles := make(map[string]registry.Handle, len(winners))
	for _, w := range winners {
		pr, ok := byPath[w.FilePath]
		if !ok {
			continue
		}
		spec := toolSpec(pr)
		h, err := e.reg.Register(w.ID, spec, e.handler(pr))
		if err != nil {
			errs = append(errs, FileError{File: w.FilePath, Message: err.Error()})
			continue
		}
		newHandles[w.ID] = h
	}

	e.store.Publish(all, winners)
	e.store.SetHandles(newHandles)

	return Result{Loaded: len(winners), Errors: errs}, nil
}

// parseTree walks every file under root (recursively, via FileCache) and
// runs it through parser.ParseFile, collecting successes into docs/parsed
// and classified failures into errs. Filtered files (nil, nil) are silently
// skipped.
func (e *Engine) parseTree(ctx context.Context, parser *prompt.Parser, root string, fromSystem bool) (docs []*catalog.Prompt, parsed []*prompt.ParseResult, errs []FileError) {
	files, err := e.fileCache.List(ctx, root, false)
	if err != nil {
		errs = append(errs, FileError{File: root, Message: err.Error()})
		return nil, nil, errs
	}
	for _, f := range files {
		res, err := parser.ParseFile(ctx, f, root, fromSystem)
		if err != nil {
			errs = append(errs, FileError{File: f, Message: err.Error()})
			continue
		}
		if res == nil {
			continue
		}
		docs = append(docs, res.Runtime)
		parsed = append(parsed, res)
	}
	return docs, parsed, errs
}

const partialExt = ".hbs"

// loadPartials scans root for .hbs files, registering each under its
// basename-without-extension (spec.md §6: "Names collide globally;
// later-loaded wins in a single pass").
func (e *Engine) loadPartials(ctx context.Context, root string) error {
	files, err := e.fileCache.List(ctx, root, false)
	if err != nil {
		return err
	}
	for _, f := range files {
		if strings.ToLower(filepath.Ext(f)) != partialExt {
			continue
		}
		data, err := e.fs.DownloadWithURL(ctx, f)
		if err != nil {
			log.Printf("reload: read partial %s: %v", f, err)
			continue
		}
		name := strings.TrimSuffix(filepath.Base(f), filepath.Ext(f))
		e.partials.Register(name, string(data))
	}
	return nil
}

func toolSpec(pr *prompt.ParseResult) registry.Spec {
	props := make(map[string]map[string]interface{}, len(pr.ArgSchema.Args))
	var required []string
	for _, a := range pr.ArgSchema.Args {
		props[a.Name] = map[string]interface{}{"type": string(a.Type), "description": a.Description}
		if a.Required {
			required = append(required, a.Name)
		}
	}
	return registry.Spec{
		Name:        pr.Runtime.ID,
		Description: pr.Runtime.Title,
		Properties:  props,
		Required:    required,
	}
}

// SingleReload implements the LocalSource per-file fast path of spec.md
// §4.8: a file deletion drops its id; otherwise the file is re-parsed and
// its tool handle replaced, falling back to a full reload on any failure.
func (e *Engine) SingleReload(ctx context.Context, filePath string) (Result, error) {
	e.mu.Lock()
	busy := e.inFlight != nil
	e.mu.Unlock()
	if busy {
		return e.FullReload(ctx)
	}

	exists, err := e.fs.Exists(ctx, filePath)
	if err != nil {
		return e.FullReload(ctx)
	}
	if !exists {
		if id, ok := e.store.IDForPath(filePath); ok {
			e.store.RemoveOne(id)
			return Result{Loaded: 0}, nil
		}
		return Result{Loaded: 0}, nil
	}

	root, fromSystem := e.rootFor(filePath)
	groups := e.groups(e.sources.HasSystem())
	regIdx, _ := prompt.LoadRegistry(ctx, e.fs, root)
	parser := prompt.NewParser(e.fs, e.partials, regIdx, groups)

	res, err := parser.ParseFile(ctx, filePath, root, fromSystem)
	if err != nil {
		return e.FullReload(ctx)
	}
	if res == nil {
		// Filtered out after having previously registered: treat as removal.
		if id, ok := e.store.IDForPath(filePath); ok {
			e.store.RemoveOne(id)
		}
		return Result{Loaded: 0}, nil
	}

	if !res.Runtime.State.Eligible() {
		// The id may have held a handle from a prior eligible state (e.g. an
		// edit turned active into warning); SetOne's nil handle leaves an
		// existing one untouched, so the stale tool must be dropped explicitly.
		e.store.RemoveHandle(res.Runtime.ID)
		e.store.SetOne(res.Runtime, nil)
		return Result{Loaded: 0}, nil
	}

	h, err := e.reg.Register(res.Runtime.ID, toolSpec(res), e.handler(res))
	if err != nil {
		return e.FullReload(ctx)
	}
	e.store.SetOne(res.Runtime, h)
	return Result{Loaded: 1}, nil
}

func (e *Engine) rootFor(filePath string) (root string, fromSystem bool) {
	if e.sources.HasSystem() && strings.HasPrefix(filePath, e.sources.SystemDir()) {
		return e.sources.SystemDir(), true
	}
	return e.sources.TargetDir(), false
}

// Package health implements the system://health resource of spec.md §6: a
// JSON snapshot of the active source, catalogue counts, registry status,
// FileCache size, and process vitals, served through
// registry.ResourceProvider.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime"
	"sync"
	"time"

	mcpschema "github.com/viant/mcp-protocol/schema"

	"github.com/viant/promptmcp/internal/cache"
	"github.com/viant/promptmcp/internal/registry"
	"github.com/viant/promptmcp/internal/source"
)

const (
	resourceURI      = "system://health"
	registryFileName = "registry.yaml"
)

type gitSnapshot struct {
	RepoURL    string  `json:"repoUrl"`
	RepoPath   string  `json:"repoPath"`
	HeadCommit *string `json:"headCommit,omitempty"`
}

type promptSnapshot struct {
	Total       int      `json:"total"`
	Active      int      `json:"active"`
	Legacy      int      `json:"legacy"`
	Invalid     int      `json:"invalid"`
	Disabled    int      `json:"disabled"`
	LoadedCount int      `json:"loadedCount"`
	Groups      []string `json:"groups"`
}

type registrySnapshot struct {
	Enabled bool   `json:"enabled"`
	Source  string `json:"source"`
}

type cacheSnapshot struct {
	Size            int    `json:"size"`
	CleanupInterval *int64 `json:"cleanupInterval,omitempty"`
}

type memSnapshot struct {
	HeapUsed  uint64 `json:"heapUsed"`
	HeapTotal uint64 `json:"heapTotal"`
	RSS       uint64 `json:"rss"`
}

type systemSnapshot struct {
	UptimeMs int64       `json:"uptime_ms"`
	Memory   memSnapshot `json:"memory"`
}

// Snapshot is the full system://health response body of spec.md §6.
type Snapshot struct {
	Git      gitSnapshot      `json:"git"`
	Prompts  promptSnapshot   `json:"prompts"`
	Registry registrySnapshot `json:"registry"`
	Cache    cacheSnapshot    `json:"cache"`
	System   systemSnapshot   `json:"system"`
}

// Provider implements registry.ResourceProvider, serving system://health.
type Provider struct {
	sources *source.Manager
	store   *registry.Store
	cache   *cache.FileCache

	cacheCleanupInterval time.Duration
	startedAt            time.Time

	mu              sync.RWMutex
	registryEnabled bool
	groups          []string
}

// New constructs a Provider. cacheCleanupInterval <= 0 is reported as
// absent (omitted from the JSON response).
func New(sources *source.Manager, store *registry.Store, fileCache *cache.FileCache, cacheCleanupInterval time.Duration) *Provider {
	return &Provider{sources: sources, store: store, cache: fileCache, cacheCleanupInterval: cacheCleanupInterval, startedAt: time.Now()}
}

// SetRegistryStatus records whether a registry.yaml is in use, as reported
// by the caller (cmd/promptmcp passes whether the file exists in the target
// directory), used for the registry.enabled/source fields.
func (p *Provider) SetRegistryStatus(enabled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.registryEnabled = enabled
}

// SetGroups records the set of groups observed during the most recent
// reload, used for prompts.groups.
func (p *Provider) SetGroups(groups []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.groups = append([]string(nil), groups...)
}

// List implements registry.ResourceProvider.
func (p *Provider) List() []mcpschema.Resource {
	desc := "Prompt catalogue and source health snapshot"
	mime := "application/json"
	return []mcpschema.Resource{{Uri: resourceURI, Name: "health", Description: &desc, MimeType: &mime}}
}

// Read implements registry.ResourceProvider.
func (p *Provider) Read(_ context.Context, uri string) (string, string, bool, error) {
	if uri != resourceURI {
		return "", "", false, nil
	}
	data, err := json.Marshal(p.Build())
	if err != nil {
		return "", "", true, fmt.Errorf("health: marshal: %w", err)
	}
	return string(data), "application/json", true, nil
}

// Build assembles a fresh Snapshot from current process and store state.
func (p *Provider) Build() Snapshot {
	st := p.store.Stats()

	p.mu.RLock()
	registryEnabled := p.registryEnabled
	groups := append([]string(nil), p.groups...)
	p.mu.RUnlock()

	registrySource := "none"
	if registryEnabled {
		registrySource = registryFileName
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	var cleanup *int64
	if p.cacheCleanupInterval > 0 {
		ms := p.cacheCleanupInterval.Milliseconds()
		cleanup = &ms
	}

	var repoURL, repoPath string
	if active := p.sources.Active(); active != nil {
		repoURL = active.URL()
	}
	repoPath = p.sources.TargetDir()

	return Snapshot{
		Git: gitSnapshot{RepoURL: repoURL, RepoPath: repoPath},
		Prompts: promptSnapshot{
			Total: st.Total, Active: st.Active, Legacy: st.Legacy,
			Invalid: st.Invalid, Disabled: st.Disabled, LoadedCount: st.Tools,
			Groups: groups,
		},
		Registry: registrySnapshot{Enabled: registryEnabled, Source: registrySource},
		Cache:    cacheSnapshot{Size: p.cache.Size(), CleanupInterval: cleanup},
		System: systemSnapshot{
			UptimeMs: time.Since(p.startedAt).Milliseconds(),
			Memory:   memSnapshot{HeapUsed: mem.HeapAlloc, HeapTotal: mem.HeapSys, RSS: mem.Sys},
		},
	}
}

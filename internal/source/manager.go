package source

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"
)

// UserSource is one configured, priority-ordered candidate for the active
// user source.
type UserSource struct {
	Priority int // lower = earlier
	Strategy Strategy
}

// LoadError aggregates the per-source failures of an initial load where
// every configured user source failed validate/sync (spec.md §4.3).
type LoadError struct {
	Errors []error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("source manager: all %d user source(s) failed to load: %v", len(e.Errors), e.Errors)
}

// Manager is the SourceManager of spec.md §4.3: picks the first user source
// (by ascending priority) that validates and syncs successfully as the
// active source, and optionally syncs a system source to a sibling
// directory supplying the reserved `common` group.
type Manager struct {
	targetDir  string
	systemDir  string
	branch     string
	maxRetries int

	userSources []UserSource
	system      Strategy

	active Strategy
}

// NewManager builds a Manager. targetDir is the directory the active user
// source is synced into; the system source (if any) is synced to
// targetDir+"_system".
func NewManager(targetDir string, branch string, maxRetries int, userSources []UserSource, system Strategy) *Manager {
	sorted := append([]UserSource(nil), userSources...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Priority < sorted[j].Priority })
	return &Manager{
		targetDir:   targetDir,
		systemDir:   targetDir + "_system",
		branch:      branch,
		maxRetries:  maxRetries,
		userSources: sorted,
		system:      system,
	}
}

// TargetDir returns the directory the active user source is synced into.
func (m *Manager) TargetDir() string { return m.targetDir }

// SystemDir returns the directory the system source is synced into, valid
// regardless of whether a system source is configured.
func (m *Manager) SystemDir() string { return m.systemDir }

// HasSystem reports whether a system source is configured.
func (m *Manager) HasSystem() bool { return m.system != nil }

// Active returns the strategy currently active, or nil before LoadInitial.
func (m *Manager) Active() Strategy { return m.active }

// LoadInitial performs the initial load of spec.md §4.3: try each user
// source in priority order, stop at the first to validate and sync; if a
// system source is configured, sync it too (its failure is logged, not
// fatal).
func (m *Manager) LoadInitial(ctx context.Context) error {
	var errs []error
	for _, us := range m.userSources {
		if !us.Strategy.Validate(ctx) {
			errs = append(errs, fmt.Errorf("%s %s: validate failed", us.Strategy.Kind(), us.Strategy.URL()))
			continue
		}
		if err := us.Strategy.Sync(ctx, m.targetDir, m.branch, m.maxRetries); err != nil {
			errs = append(errs, err)
			continue
		}
		m.active = us.Strategy
		break
	}
	if m.active == nil {
		return &LoadError{Errors: errs}
	}

	if m.system != nil {
		if !m.system.Validate(ctx) {
			log.Printf("source manager: system source %s failed validation, proceeding without it", m.system.URL())
		} else if err := m.system.Sync(ctx, m.systemDir, m.branch, m.maxRetries); err != nil {
			log.Printf("source manager: system source sync failed, proceeding without it: %v", err)
		}
	}
	return nil
}

// SyncActive re-syncs the currently active user source into TargetDir,
// used by ReloadEngine.FullReload to re-pull Git updates (or re-mirror a
// local source) on every reload pass.
func (m *Manager) SyncActive(ctx context.Context) error {
	if m.active == nil {
		return fmt.Errorf("source manager: no active source")
	}
	return m.active.Sync(ctx, m.targetDir, m.branch, m.maxRetries)
}

// SyncSystem re-syncs the configured system source into SystemDir, used by
// ReloadEngine.FullReload (spec.md §4.8 step 2: "sync active source and
// system source if configured"). A no-op returning nil if no system source
// is configured.
func (m *Manager) SyncSystem(ctx context.Context) error {
	if m.system == nil {
		return nil
	}
	if !m.system.Validate(ctx) {
		return fmt.Errorf("%s %s: validate failed", m.system.Kind(), m.system.URL())
	}
	return m.system.Sync(ctx, m.systemDir, m.branch, m.maxRetries)
}

// SwitchActive replaces the active user source with s, validating and
// syncing it into targetDir before committing. On failure the previous
// active source is left untouched.
func (m *Manager) SwitchActive(ctx context.Context, s Strategy) error {
	if !s.Validate(ctx) {
		return fmt.Errorf("%s %s: validate failed", s.Kind(), s.URL())
	}
	if err := s.Sync(ctx, m.targetDir, m.branch, m.maxRetries); err != nil {
		return err
	}
	m.active = s
	return nil
}

// StartWatch starts the active source's variant-specific watch/poll
// mechanism, routing every change through onLocalChange (per-file) or
// onBulkChange (whole-tree), per spec.md §4.3: LocalSource fires per-file
// events routed to singleReload; GitSource fires bulk events routed to
// fullReload. If a system source is configured, it is watched the same way
// against onBulkChange (system updates always trigger a full reload, since
// the engine cannot attribute a change to a single group-scoped id safely
// without re-running group filtering from scratch).
func (m *Manager) StartWatch(ctx context.Context, pollInterval time.Duration, onLocalChange func(path string), onBulkChange func()) error {
	if err := m.startWatchFor(ctx, m.active, m.targetDir, pollInterval, onLocalChange, onBulkChange); err != nil {
		return err
	}
	if m.system != nil {
		if err := m.startWatchFor(ctx, m.system, m.systemDir, pollInterval, func(string) { onBulkChange() }, onBulkChange); err != nil {
			log.Printf("source manager: failed to watch system source: %v", err)
		}
	}
	return nil
}

func (m *Manager) startWatchFor(ctx context.Context, s Strategy, dir string, pollInterval time.Duration, onLocalChange func(path string), onBulkChange func()) error {
	switch v := s.(type) {
	case *LocalSource:
		return v.Watch(dir, onLocalChange)
	case *GitSource:
		branch := m.branch
		if branch == "" {
			branch = v.defaultBranch
		}
		v.Poll(ctx, dir, branch, pollInterval, onBulkChange)
		return nil
	default:
		return fmt.Errorf("source manager: unknown strategy kind %T", s)
	}
}

// StopWatch stops whatever watch/poll mechanism is currently running for
// both the active and system sources. Safe to call even if StartWatch was
// never called.
func (m *Manager) StopWatch() {
	stopFor(m.active)
	stopFor(m.system)
}

func stopFor(s Strategy) {
	switch v := s.(type) {
	case *LocalSource:
		v.StopWatch()
	case *GitSource:
		v.StopPoll()
	}
}

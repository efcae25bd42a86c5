// Package source implements the SourceStrategy variants and SourceManager
// of spec.md §4.2/§4.3: the two ways a prompt tree can be kept in sync on
// disk (a local directory, mirrored or read in place; a git remote, cloned
// and periodically pulled) and the priority-ordered manager that picks an
// active user source plus an optional system source.
package source

import (
	"context"
	"fmt"
	"time"
)

// Kind identifies a SourceStrategy variant.
type Kind string

const (
	KindLocal Kind = "local"
	KindGit   Kind = "git"
)

// Strategy is the common contract every source variant implements,
// grounded on internal/hotswap/manager.go's Reloadable/Action shape: a
// small common interface with variant-specific watch primitives layered on
// top (LocalSource.Watch, GitSource.Poll) rather than folded into the
// interface itself, since their shapes differ (per-file vs bulk).
type Strategy interface {
	Kind() Kind
	URL() string
	Validate(ctx context.Context) bool
	// Sync mirrors/updates targetDir from the source. branch is ignored by
	// LocalSource. maxRetries applies to GitSource only (LocalSource sync is
	// not retried: a filesystem copy failure is per-entry, not whole-batch).
	Sync(ctx context.Context, targetDir, branch string, maxRetries int) error
}

// SyncError wraps a sync failure, preserving the last underlying error
// after retries are exhausted (spec.md §7).
type SyncError struct {
	Kind    Kind
	URL     string
	Attempt int
	Err     error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("source %s sync failed for %s after %d attempt(s): %v", e.Kind, e.URL, e.Attempt, e.Err)
}

func (e *SyncError) Unwrap() error { return e.Err }

// backoff is the retry delay for attempt (1-indexed): spec.md §4.2's
// "backoff 1s·attempt".
func backoff(attempt int) time.Duration {
	return time.Duration(attempt) * time.Second
}

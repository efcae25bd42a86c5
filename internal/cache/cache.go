// Package cache memoises recursive directory listings with a short TTL,
// the FileCache of spec.md §4.1.
package cache

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/viant/afs"
	"github.com/viant/afs/url"
)

const defaultTTL = 5 * time.Second

type entry struct {
	files []string
	at    time.Time
}

// FileCache is a thread-safe, keyed memo from absolute directory path to a
// recursive regular-file listing. Each operation takes its own lock, per
// spec.md §5's "FileCache is thread-safe; its internal map uses one lock
// per operation".
type FileCache struct {
	fs  afs.Service
	ttl time.Duration

	mu      sync.RWMutex
	entries map[string]entry

	sweepMu     sync.Mutex
	sweepCancel context.CancelFunc
	sweepDone   chan struct{}
}

// New returns a FileCache backed by fs. A zero ttl defaults to 5s.
func New(fs afs.Service, ttl time.Duration) *FileCache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &FileCache{fs: fs, ttl: ttl, entries: make(map[string]entry)}
}

// List returns the recursive list of regular-file paths under dir, serving
// from cache when useCache is true and the cached entry has not expired.
// Entries whose basename begins with "." are excluded.
func (c *FileCache) List(ctx context.Context, dir string, useCache bool) ([]string, error) {
	if useCache {
		c.mu.RLock()
		e, ok := c.entries[dir]
		c.mu.RUnlock()
		if ok && time.Since(e.at) < c.ttl {
			out := make([]string, len(e.files))
			copy(out, e.files)
			return out, nil
		}
	}

	files, err := c.walk(ctx, dir)
	if err != nil {
		return nil, fmt.Errorf("cache: list %s: %w", dir, err)
	}

	c.mu.Lock()
	c.entries[dir] = entry{files: files, at: time.Now()}
	c.mu.Unlock()

	out := make([]string, len(files))
	copy(out, files)
	return out, nil
}

// walk recurses through dir using fs.List per-directory (afs.List only
// returns immediate children, mirroring internal/workspace/repository/base's
// own manual-recursion pattern), collecting regular, non-dotfile paths.
func (c *FileCache) walk(ctx context.Context, dir string) ([]string, error) {
	objects, err := c.fs.List(ctx, dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, o := range objects {
		base := filepath.Base(o.Name())
		if strings.HasPrefix(base, ".") {
			continue
		}
		if o.IsDir() {
			childURL := url.Join(dir, o.Name())
			if childURL == dir {
				continue
			}
			children, err := c.walk(ctx, childURL)
			if err != nil {
				return nil, err
			}
			files = append(files, children...)
			continue
		}
		files = append(files, url.Join(dir, o.Name()))
	}
	return files, nil
}

// Invalidate drops a single directory entry, or the whole map when dir is
// empty.
func (c *FileCache) Invalidate(dir string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if dir == "" {
		c.entries = make(map[string]entry)
		return
	}
	delete(c.entries, dir)
}

// Sweep removes all expired entries and returns how many were dropped.
func (c *FileCache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	dropped := 0
	now := time.Now()
	for k, e := range c.entries {
		if now.Sub(e.at) >= c.ttl {
			delete(c.entries, k)
			dropped++
		}
	}
	return dropped
}

// Size reports the number of currently cached directory entries, used by
// the health resource's cache.size field.
func (c *FileCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// StartSweeper begins a periodic sweep task, calling onSwept (if non-nil)
// with the count dropped on each tick. It is a scoped acquisition: a prior
// sweeper is stopped first. Safe to call StopSweeper multiple times.
func (c *FileCache) StartSweeper(interval time.Duration, onSwept func(int)) {
	c.StopSweeper()
	if interval <= 0 {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	c.sweepMu.Lock()
	c.sweepCancel = cancel
	c.sweepDone = done
	c.sweepMu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n := c.Sweep()
				if onSwept != nil {
					onSwept(n)
				}
			}
		}
	}()
}

// StopSweeper releases the periodic sweep task, if any. Double-stop is safe.
func (c *FileCache) StopSweeper() {
	c.sweepMu.Lock()
	cancel := c.sweepCancel
	done := c.sweepDone
	c.sweepCancel = nil
	c.sweepDone = nil
	c.sweepMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

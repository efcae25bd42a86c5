package source

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/url"
)

// excludedEntries is the basename-lowercased skip set of spec.md §4.2.
var excludedEntries = map[string]bool{
	".git": true, "node_modules": true, ".ds_store": true, ".vscode": true,
	".idea": true, "dist": true, "build": true, ".next": true, ".nuxt": true,
	".cache": true, "coverage": true, ".nyc_output": true,
}

// LocalSource mirrors (or, in direct-read mode, simply watches) a local
// directory tree.
type LocalSource struct {
	fs   afs.Service
	path string

	watchMu  sync.Mutex
	watcher  *fsnotify.Watcher
	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewLocalSource builds a LocalSource rooted at path.
func NewLocalSource(fs afs.Service, path string) *LocalSource {
	return &LocalSource{fs: fs, path: path}
}

func (s *LocalSource) Kind() Kind  { return KindLocal }
func (s *LocalSource) URL() string { return s.path }

func (s *LocalSource) Validate(ctx context.Context) bool {
	ok, err := s.fs.Exists(ctx, s.path)
	return err == nil && ok
}

// Sync mirrors s.path into targetDir, or is a no-op when the two resolve to
// the same directory ("direct read mode"). It does not touch the FileCache;
// the reload engine invalidates it after every sync.
func (s *LocalSource) Sync(ctx context.Context, targetDir, _ string, _ int) error {
	if resolvePath(s.path) == resolvePath(targetDir) {
		return nil
	}
	if err := s.mirror(ctx, s.path, targetDir); err != nil {
		return &SyncError{Kind: KindLocal, URL: s.path, Attempt: 1, Err: err}
	}
	return nil
}

func resolvePath(p string) string {
	return strings.TrimRight(filepath.Clean(url.Path(p)), "/")
}

// mirror walks src one level at a time (afs.Service.List is non-recursive)
// copying regular files into dst, skipping excluded basenames and
// non-regular entries. A single entry's copy failure is logged and skipped;
// it does not abort the rest of the batch (spec.md §4.2).
func (s *LocalSource) mirror(ctx context.Context, src, dst string) error {
	entries, err := s.fs.List(ctx, src)
	if err != nil {
		return fmt.Errorf("local source: list %s: %w", src, err)
	}
	for _, e := range entries {
		name := e.Name()
		base := filepath.Base(name)
		if base == "." || base == ".." {
			continue
		}
		if excludedEntries[strings.ToLower(base)] {
			continue
		}
		srcChild := url.Join(src, base)
		dstChild := url.Join(dst, base)

		if e.IsDir() {
			if err := s.mirror(ctx, srcChild, dstChild); err != nil {
				log.Printf("local source: mirror %s: %v", srcChild, err)
			}
			continue
		}
		if !e.Mode().IsRegular() {
			log.Printf("local source: skipping non-regular entry %s", srcChild)
			continue
		}
		data, err := s.fs.DownloadWithURL(ctx, srcChild)
		if err != nil {
			log.Printf("local source: read %s: %v", srcChild, err)
			continue
		}
		if err := s.fs.Upload(ctx, dstChild, file.DefaultFileOsMode, bytes.NewReader(data)); err != nil {
			log.Printf("local source: write %s: %v", dstChild, err)
		}
	}
	return nil
}

const (
	watchStabilityWindow = 300 * time.Millisecond
	watchPollInterval    = 100 * time.Millisecond
)

// Watch subscribes to create/modify/delete events under watchDir filtered
// to .yaml/.yml files, debounced per path with a ~300ms stability window,
// grounded on internal/hotswap/manager.go's fsnotify watcher loop. onChange
// receives the absolute path of the changed file. StopWatch releases all OS
// handles; calling it more than once is safe.
func (s *LocalSource) Watch(watchDir string, onChange func(path string)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("local source: new watcher: %w", err)
	}
	if err := addRecursive(w, watchDir); err != nil {
		_ = w.Close()
		return fmt.Errorf("local source: watch %s: %w", watchDir, err)
	}

	s.watchMu.Lock()
	s.watcher = w
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.stopOnce = sync.Once{}
	stopCh, doneCh := s.stopCh, s.doneCh
	s.watchMu.Unlock()

	go s.loopWatch(w, stopCh, doneCh, onChange)
	return nil
}

func (s *LocalSource) loopWatch(w *fsnotify.Watcher, stopCh, doneCh chan struct{}, onChange func(path string)) {
	defer close(doneCh)
	pending := map[string]*time.Timer{}
	var pendingMu sync.Mutex

	fire := func(path string) {
		pendingMu.Lock()
		delete(pending, path)
		pendingMu.Unlock()
		onChange(path)
	}

	for {
		select {
		case <-stopCh:
			pendingMu.Lock()
			for _, t := range pending {
				t.Stop()
			}
			pendingMu.Unlock()
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if !isYAMLPath(ev.Name) {
				continue
			}
			path := ev.Name
			pendingMu.Lock()
			if t, exists := pending[path]; exists {
				t.Stop()
			}
			pending[path] = time.AfterFunc(watchStabilityWindow, func() { fire(path) })
			pendingMu.Unlock()
		case _, ok := <-w.Errors:
			if !ok {
				return
			}
		}
	}
}

// StopWatch releases the watcher's OS handles. Safe to call repeatedly or
// when Watch was never called.
func (s *LocalSource) StopWatch() {
	s.watchMu.Lock()
	w, stopCh, doneCh := s.watcher, s.stopCh, s.doneCh
	s.watchMu.Unlock()
	if w == nil {
		return
	}
	s.stopOnce.Do(func() {
		close(stopCh)
		<-doneCh
		_ = w.Close()
	})
}

// addRecursive watches root and every nested directory under it: fsnotify
// only watches the OS path it is given directly, so nested directories need
// registering individually, grounded on internal/hotswap/manager.go's
// filepath.WalkDir + watcher.Add loop.
func addRecursive(w *fsnotify.Watcher, root string) error {
	return walkDirs(root, func(dir string) error { return w.Add(dir) })
}

func walkDirs(root string, fn func(dir string) error) error {
	if err := fn(root); err != nil {
		return err
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() {
			if err := walkDirs(filepath.Join(root, e.Name()), fn); err != nil {
				return err
			}
		}
	}
	return nil
}

func isYAMLPath(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}

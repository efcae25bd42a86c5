package source

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

// GitSource keeps targetDir in sync with a git remote via clone/fetch/pull,
// falling back to a hard reset on divergence (spec.md §4.2).
type GitSource struct {
	url           string
	defaultBranch string

	pollMu   sync.Mutex
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

// NewGitSource builds a GitSource for url, defaulting new clones to branch.
func NewGitSource(url, branch string) *GitSource {
	return &GitSource{url: url, defaultBranch: branch}
}

func (s *GitSource) Kind() Kind  { return KindGit }
func (s *GitSource) URL() string { return s.url }

// Validate is the cheap check of spec.md §4.2: the URL scheme alone.
func (s *GitSource) Validate(_ context.Context) bool {
	u := strings.TrimSpace(s.url)
	return strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://") || strings.HasPrefix(u, "git@")
}

// Sync clones targetDir fresh if it is not yet a repository, otherwise
// fetches and rebases, falling back to a hard reset to origin/<branch> on
// divergence. Retries up to maxRetries times with backoff(attempt).
func (s *GitSource) Sync(ctx context.Context, targetDir, branch string, maxRetries int) error {
	if branch == "" {
		branch = s.defaultBranch
	}
	if maxRetries < 1 {
		maxRetries = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		if err := s.syncOnce(ctx, targetDir, branch); err != nil {
			lastErr = err
			log.Printf("git source: sync attempt %d/%d for %s failed: %v", attempt, maxRetries, s.url, err)
			if attempt < maxRetries {
				select {
				case <-ctx.Done():
					return &SyncError{Kind: KindGit, URL: s.url, Attempt: attempt, Err: ctx.Err()}
				case <-time.After(backoff(attempt)):
				}
			}
			continue
		}
		return nil
	}
	return &SyncError{Kind: KindGit, URL: s.url, Attempt: maxRetries, Err: lastErr}
}

func (s *GitSource) syncOnce(ctx context.Context, targetDir, branch string) error {
	repo, err := git.PlainOpen(targetDir)
	if err != nil {
		if !errors.Is(err, git.ErrRepositoryNotExists) {
			return fmt.Errorf("open %s: %w", targetDir, err)
		}
		_, err := git.PlainCloneContext(ctx, targetDir, false, &git.CloneOptions{
			URL:           s.url,
			ReferenceName: plumbing.NewBranchReferenceName(branch),
			SingleBranch:  true,
		})
		if err != nil {
			return fmt.Errorf("clone %s: %w", s.url, err)
		}
		return nil
	}

	wt, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("worktree: %w", err)
	}

	pullErr := wt.PullContext(ctx, &git.PullOptions{
		RemoteName:    "origin",
		ReferenceName: plumbing.NewBranchReferenceName(branch),
		SingleBranch:  true,
	})
	if pullErr == nil || errors.Is(pullErr, git.NoErrAlreadyUpToDate) {
		return nil
	}

	log.Printf("git source: pull --rebase diverged for %s, resetting hard to origin/%s: %v", s.url, branch, pullErr)
	if err := repo.FetchContext(ctx, &git.FetchOptions{RemoteName: "origin"}); err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("fetch: %w", err)
	}
	ref, err := repo.Reference(plumbing.NewRemoteReferenceName("origin", branch), true)
	if err != nil {
		return fmt.Errorf("resolve origin/%s: %w", branch, err)
	}
	if err := wt.Reset(&git.ResetOptions{Commit: ref.Hash(), Mode: git.HardReset}); err != nil {
		return fmt.Errorf("reset --hard origin/%s: %w", branch, err)
	}
	return nil
}

// Poll periodically fetches and compares origin/<branch>'s hash to the last
// seen one, calling sync then onUpdate whenever it changes. The first tick
// only records the hash. StopPoll releases the ticker.
func (s *GitSource) Poll(ctx context.Context, targetDir, branch string, interval time.Duration, onUpdate func()) {
	s.pollMu.Lock()
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.stopOnce = sync.Once{}
	stopCh, doneCh := s.stopCh, s.doneCh
	s.pollMu.Unlock()

	go s.loopPoll(ctx, targetDir, branch, interval, onUpdate, stopCh, doneCh)
}

func (s *GitSource) loopPoll(ctx context.Context, targetDir, branch string, interval time.Duration, onUpdate func(), stopCh, doneCh chan struct{}) {
	defer close(doneCh)
	var lastHash string
	first := true
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			repo, err := git.PlainOpen(targetDir)
			if err != nil {
				log.Printf("git source: poll open %s: %v", targetDir, err)
				continue
			}
			if err := repo.FetchContext(ctx, &git.FetchOptions{RemoteName: "origin"}); err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
				log.Printf("git source: poll fetch %s: %v", s.url, err)
				continue
			}
			ref, err := repo.Reference(plumbing.NewRemoteReferenceName("origin", branch), true)
			if err != nil {
				log.Printf("git source: poll resolve origin/%s: %v", branch, err)
				continue
			}
			hash := ref.Hash().String()
			if first {
				lastHash = hash
				first = false
				continue
			}
			if hash == lastHash {
				continue
			}
			if err := s.syncOnce(ctx, targetDir, branch); err != nil {
				log.Printf("git source: poll sync %s: %v", s.url, err)
				continue
			}
			lastHash = hash
			onUpdate()
		}
	}
}

// StopPoll releases the polling goroutine. Safe to call repeatedly or when
// Poll was never called.
func (s *GitSource) StopPoll() {
	s.pollMu.Lock()
	stopCh, doneCh := s.stopCh, s.doneCh
	s.pollMu.Unlock()
	if stopCh == nil {
		return
	}
	s.stopOnce.Do(func() {
		close(stopCh)
		<-doneCh
	})
}

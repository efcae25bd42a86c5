package source

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/afs"
)

func TestLocalSourceValidate(t *testing.T) {
	dir := t.TempDir()
	s := NewLocalSource(afs.New(), dir)
	assert.True(t, s.Validate(context.Background()))

	missing := NewLocalSource(afs.New(), filepath.Join(dir, "nope"))
	assert.False(t, missing.Validate(context.Background()))
}

func TestLocalSourceSyncDirectReadModeIsNoop(t *testing.T) {
	dir := t.TempDir()
	s := NewLocalSource(afs.New(), dir)
	require.NoError(t, s.Sync(context.Background(), dir, "", 0))
}

func TestLocalSourceSyncMirrorsExcludingExcluded(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()

	require.NoError(t, os.MkdirAll(filepath.Join(src, "common"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "common", "a.yaml"), []byte("id: a"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(src, "node_modules"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "node_modules", "junk.yaml"), []byte("x"), 0o644))

	s := NewLocalSource(afs.New(), src)
	require.NoError(t, s.Sync(context.Background(), dst, "", 0))

	data, err := os.ReadFile(filepath.Join(dst, "common", "a.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "id: a", string(data))

	_, err = os.Stat(filepath.Join(dst, "node_modules"))
	assert.True(t, os.IsNotExist(err))
}

func TestLocalSourceWatchFiresOnChange(t *testing.T) {
	dir := t.TempDir()
	s := NewLocalSource(afs.New(), dir)

	changed := make(chan string, 4)
	require.NoError(t, s.Watch(dir, func(path string) { changed <- path }))
	defer s.StopWatch()

	target := filepath.Join(dir, "x.yaml")
	require.NoError(t, os.WriteFile(target, []byte("id: x"), 0o644))

	select {
	case p := <-changed:
		assert.Equal(t, target, p)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for watch event")
	}
}

func TestGitSourceValidate(t *testing.T) {
	s := NewGitSource("https://example.com/repo.git", "main")
	assert.True(t, s.Validate(context.Background()))

	s2 := NewGitSource("git@example.com:repo.git", "main")
	assert.True(t, s2.Validate(context.Background()))

	s3 := NewGitSource("/local/path", "main")
	assert.False(t, s3.Validate(context.Background()))
}

type fakeStrategy struct {
	kind       Kind
	url        string
	validateOK bool
	syncErr    error
	synced     *string
}

func (f *fakeStrategy) Kind() Kind { return f.kind }
func (f *fakeStrategy) URL() string { return f.url }
func (f *fakeStrategy) Validate(context.Context) bool { return f.validateOK }
func (f *fakeStrategy) Sync(_ context.Context, targetDir, _ string, _ int) error {
	if f.syncErr != nil {
		return f.syncErr
	}
	if f.synced != nil {
		*f.synced = targetDir
	}
	return nil
}

func TestManagerLoadInitialPicksFirstValidatingSource(t *testing.T) {
	var synced string
	bad := &fakeStrategy{kind: KindLocal, url: "bad", validateOK: false}
	good := &fakeStrategy{kind: KindLocal, url: "good", validateOK: true, synced: &synced}

	m := NewManager(t.TempDir(), "main", 1, []UserSource{
		{Priority: 1, Strategy: bad},
		{Priority: 2, Strategy: good},
	}, nil)

	require.NoError(t, m.LoadInitial(context.Background()))
	assert.Same(t, good, m.Active())
	assert.Equal(t, m.TargetDir(), synced)
}

func TestManagerLoadInitialAllFailReturnsLoadError(t *testing.T) {
	bad1 := &fakeStrategy{kind: KindLocal, url: "bad1", validateOK: false}
	bad2 := &fakeStrategy{kind: KindLocal, url: "bad2", validateOK: false}

	m := NewManager(t.TempDir(), "main", 1, []UserSource{
		{Priority: 1, Strategy: bad1},
		{Priority: 2, Strategy: bad2},
	}, nil)

	err := m.LoadInitial(context.Background())
	require.Error(t, err)
	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Len(t, loadErr.Errors, 2)
}

func TestManagerRespectsPriorityOrder(t *testing.T) {
	low := &fakeStrategy{kind: KindLocal, url: "low-priority", validateOK: true}
	high := &fakeStrategy{kind: KindLocal, url: "high-priority", validateOK: true}

	m := NewManager(t.TempDir(), "main", 1, []UserSource{
		{Priority: 5, Strategy: low},
		{Priority: 1, Strategy: high},
	}, nil)

	require.NoError(t, m.LoadInitial(context.Background()))
	assert.Same(t, high, m.Active())
}

func TestManagerSystemSourceFailureIsNotFatal(t *testing.T) {
	good := &fakeStrategy{kind: KindLocal, url: "good", validateOK: true}
	sys := &fakeStrategy{kind: KindLocal, url: "system", validateOK: false}

	m := NewManager(t.TempDir(), "main", 1, []UserSource{{Priority: 1, Strategy: good}}, sys)
	require.NoError(t, m.LoadInitial(context.Background()))
	assert.True(t, m.HasSystem())
}

func TestManagerSwitchActive(t *testing.T) {
	first := &fakeStrategy{kind: KindLocal, url: "first", validateOK: true}
	second := &fakeStrategy{kind: KindLocal, url: "second", validateOK: true}

	m := NewManager(t.TempDir(), "main", 1, []UserSource{{Priority: 1, Strategy: first}}, nil)
	require.NoError(t, m.LoadInitial(context.Background()))
	assert.Same(t, first, m.Active())

	require.NoError(t, m.SwitchActive(context.Background(), second))
	assert.Same(t, second, m.Active())
}

func TestManagerSwitchActiveValidateFailureKeepsPreviousActive(t *testing.T) {
	first := &fakeStrategy{kind: KindLocal, url: "first", validateOK: true}
	bad := &fakeStrategy{kind: KindLocal, url: "bad", validateOK: false}

	m := NewManager(t.TempDir(), "main", 1, []UserSource{{Priority: 1, Strategy: first}}, nil)
	require.NoError(t, m.LoadInitial(context.Background()))

	err := m.SwitchActive(context.Background(), bad)
	require.Error(t, err)
	assert.Same(t, first, m.Active())
}

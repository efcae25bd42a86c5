package health

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/afs"

	"github.com/viant/promptmcp/internal/cache"
	"github.com/viant/promptmcp/internal/registry"
	"github.com/viant/promptmcp/internal/source"
)

func newTestProvider(t *testing.T) *Provider {
	t.Helper()
	root := t.TempDir()
	fs := afs.New()
	local := source.NewLocalSource(fs, root)
	mgr := source.NewManager(root, "main", 1, []source.UserSource{{Priority: 1, Strategy: local}}, nil)
	require.NoError(t, mgr.LoadInitial(context.Background()))

	store := registry.NewStore()
	fc := cache.New(fs, time.Hour)
	return New(mgr, store, fc, 30*time.Second)
}

func TestReadHealthResourceReturnsJSON(t *testing.T) {
	p := newTestProvider(t)
	p.SetRegistryStatus(true)
	p.SetGroups([]string{"common", "root"})

	body, mime, found, err := p.Read(context.Background(), "system://health")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "application/json", mime)

	var snap Snapshot
	require.NoError(t, json.Unmarshal([]byte(body), &snap))
	assert.True(t, snap.Registry.Enabled)
	assert.Equal(t, "registry.yaml", snap.Registry.Source)
	assert.ElementsMatch(t, []string{"common", "root"}, snap.Prompts.Groups)
	require.NotNil(t, snap.Cache.CleanupInterval)
	assert.Equal(t, int64(30000), *snap.Cache.CleanupInterval)
}

func TestReadUnknownResourceNotFound(t *testing.T) {
	p := newTestProvider(t)
	_, _, found, err := p.Read(context.Background(), "system://other")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestListAdvertisesHealthResource(t *testing.T) {
	p := newTestProvider(t)
	res := p.List()
	require.Len(t, res, 1)
	assert.Equal(t, "system://health", res[0].Uri)
}

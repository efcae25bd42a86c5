package control

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/afs"

	"github.com/viant/promptmcp/internal/cache"
	"github.com/viant/promptmcp/internal/prompt"
	"github.com/viant/promptmcp/internal/reload"
	"github.com/viant/promptmcp/internal/registry"
	"github.com/viant/promptmcp/internal/render"
	"github.com/viant/promptmcp/internal/source"
)

func handlerFactory(res *prompt.ParseResult) registry.Handler {
	return func(ctx context.Context, args map[string]interface{}) (string, error) {
		coerced, err := res.ArgSchema.Coerce(args)
		if err != nil {
			return "", err
		}
		return res.Template.Render(coerced)
	}
}

// allGroups activates the common group; root-level files are always loaded.
func allGroups(systemConfigured bool) prompt.GroupFilter {
	return prompt.NewGroupFilter([]string{prompt.CommonGroup}, systemConfigured)
}

func writeDoc(t *testing.T, root, name, body string) string {
	t.Helper()
	path := filepath.Join(root, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func newTestSurface(t *testing.T, root string) (*Surface, *registry.MCPRegistry, *registry.Store) {
	t.Helper()
	fs := afs.New()
	fc := cache.New(fs, time.Hour)
	local := source.NewLocalSource(fs, root)
	mgr := source.NewManager(root, "main", 1, []source.UserSource{{Priority: 1, Strategy: local}}, nil)
	require.NoError(t, mgr.LoadInitial(context.Background()))

	reg := registry.NewMCPRegistry(nil)
	store := registry.NewStore()
	partials := render.NewRegistry()
	engine := reload.New(fs, fc, mgr, reg, store, partials, allGroups, handlerFactory)

	newStrategy := func(url string) (source.Strategy, error) {
		return source.NewLocalSource(fs, url), nil
	}
	return New(engine, store, mgr, newStrategy), reg, store
}

func TestRegisterAllRegistersFiveTools(t *testing.T) {
	root := t.TempDir()
	surface, reg, _ := newTestSurface(t, root)

	n, err := surface.RegisterAll(reg)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, 5, reg.Len())
}

func TestReloadToolLoadsDocuments(t *testing.T) {
	root := t.TempDir()
	writeDoc(t, root, "a.yaml", "id: a\ntitle: A\ntemplate: \"hello\"\n")
	surface, _, _ := newTestSurface(t, root)

	out, err := surface.handleReload(context.Background(), nil)
	require.NoError(t, err)

	var resp reloadResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, 1, resp.Loaded)
	assert.Empty(t, resp.Errors)
}

func TestStatsToolCountsByState(t *testing.T) {
	root := t.TempDir()
	writeDoc(t, root, "a.yaml", "id: a\ntitle: A\ntemplate: \"hello\"\n")
	writeDoc(t, root, "b.yaml", `
id: b
title: B
version: 1.0.0
status: stable
template: "hi"
`)
	surface, reg, _ := newTestSurface(t, root)
	n, err := surface.RegisterAll(reg)
	require.NoError(t, err)
	surface.SetBasicCount(n)

	_, err = surface.handleReload(context.Background(), nil)
	require.NoError(t, err)

	out, err := surface.handleStats(context.Background(), nil)
	require.NoError(t, err)

	var resp statsResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, 2, resp.Total)
	assert.Equal(t, 1, resp.Active)
	assert.Equal(t, 1, resp.Legacy)
	assert.Equal(t, 5, resp.Tools.Basic)
	assert.Equal(t, 2, resp.Tools.Prompt)
	assert.Equal(t, 7, resp.Tools.Total)
}

func TestListToolFiltersByGroupAndTag(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "common"), 0o755))
	writeDoc(t, root, filepath.Join("common", "x.yaml"), `
id: x
title: X
version: 1.0.0
status: stable
tags: [quality]
template: "hi"
`)
	surface, _, _ := newTestSurface(t, root)
	_, err := surface.handleReload(context.Background(), nil)
	require.NoError(t, err)

	out, err := surface.handleList(context.Background(), map[string]interface{}{"tag": "quality"})
	require.NoError(t, err)
	var resp listResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Prompts, 1)
	assert.Equal(t, "x", resp.Prompts[0].ID)

	out, err = surface.handleList(context.Background(), map[string]interface{}{"tag": "missing"})
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Empty(t, resp.Prompts)

	out, err = surface.handleList(context.Background(), map[string]interface{}{"group": "common"})
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Prompts, 1)
	assert.Equal(t, "x", resp.Prompts[0].ID)

	out, err = surface.handleList(context.Background(), map[string]interface{}{"group": "laravel"})
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Empty(t, resp.Prompts)
}

func TestInspectToolReturnsNotFound(t *testing.T) {
	root := t.TempDir()
	surface, _, _ := newTestSurface(t, root)
	_, err := surface.handleInspect(context.Background(), map[string]interface{}{"id": "missing"})
	require.Error(t, err)
}

func TestInspectToolReturnsRuntimeRecord(t *testing.T) {
	root := t.TempDir()
	writeDoc(t, root, "a.yaml", "id: a\ntitle: A\ntemplate: \"hello\"\n")
	surface, _, _ := newTestSurface(t, root)
	_, err := surface.handleReload(context.Background(), nil)
	require.NoError(t, err)

	out, err := surface.handleInspect(context.Background(), map[string]interface{}{"id": "a"})
	require.NoError(t, err)
	var item listItem
	require.NoError(t, json.Unmarshal([]byte(out), &item))
	assert.Equal(t, "a", item.ID)
	assert.Equal(t, "legacy", item.RuntimeState)
}

func TestSwitchSourceReloadsFromNewRoot(t *testing.T) {
	root := t.TempDir()
	writeDoc(t, root, "a.yaml", "id: a\ntitle: A\ntemplate: \"hello\"\n")
	surface, _, _ := newTestSurface(t, root)
	_, err := surface.handleReload(context.Background(), nil)
	require.NoError(t, err)

	newRoot := t.TempDir()
	writeDoc(t, newRoot, "b.yaml", "id: b\ntitle: B\ntemplate: \"hello b\"\n")

	out, err := surface.handleSwitchSource(context.Background(), map[string]interface{}{"url": newRoot})
	require.NoError(t, err)
	var resp switchSourceResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	// mirror() only adds files present in the new source; a.yaml, which the
	// old source (root itself, read in place) held, is still physically
	// present under root, so both a and b are loaded after the switch.
	assert.Equal(t, 2, resp.Loaded)
}

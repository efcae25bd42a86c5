package prompt

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/afs"

	"github.com/viant/promptmcp/internal/catalog"
	"github.com/viant/promptmcp/internal/render"
)

func writeFile(t *testing.T, root, rel, content string) string {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func newParser(t *testing.T, root string, registry *RegistryIndex, groups GroupFilter) *Parser {
	t.Helper()
	return NewParser(afs.New(), render.NewRegistry(), registry, groups)
}

// Scenario A — active metadata prompt.
func TestParseFile_ActiveMetadataPrompt(t *testing.T) {
	root := t.TempDir()
	path := writeFile(t, root, "common/code-review.yaml", `
id: code-review
title: Code Review
version: 1.0.0
status: stable
tags: [quality]
use_cases: [review]
args: { code: { type: string, description: "Code (required)" } }
template: "Review: {{code}}"
`)
	groups := NewGroupFilter([]string{"common"}, false)
	p := newParser(t, root, nil, groups)

	res, err := p.ParseFile(context.Background(), path, root, false)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, catalog.StateActive, res.Runtime.State)
	assert.Equal(t, catalog.SourceEmbedded, res.Runtime.Source)

	out, err := res.Template.Render(map[string]interface{}{"code": "x=1"})
	require.NoError(t, err)
	assert.Equal(t, "Review: x=1", out)
}

// Scenario B — legacy prompt promoted by registry.
func TestParseFile_RegistryPromotesLegacy(t *testing.T) {
	root := t.TempDir()
	path := writeFile(t, root, "common/foo.yaml", `
id: foo
title: Foo
template: "hi"
`)
	idx := &RegistryIndex{entries: map[string]RegistryEntry{
		"foo": {ID: "foo", Group: "g1", Visibility: "private", Deprecated: false},
	}}
	groups := NewGroupFilter([]string{"common"}, false)
	p := newParser(t, root, idx, groups)

	res, err := p.ParseFile(context.Background(), path, root, false)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, catalog.StateActive, res.Runtime.State)
	assert.Equal(t, catalog.SourceRegistry, res.Runtime.Source)
	assert.Equal(t, "g1", res.Runtime.Group)
	assert.Equal(t, catalog.VisibilityPrivate, res.Runtime.Visibility)
}

// Scenario C — deprecation disables.
func TestParseFile_RegistryDeprecatedDisables(t *testing.T) {
	root := t.TempDir()
	path := writeFile(t, root, "common/foo.yaml", `
id: foo
title: Foo
template: "hi"
`)
	idx := &RegistryIndex{entries: map[string]RegistryEntry{
		"foo": {ID: "foo", Group: "g1", Visibility: "private", Deprecated: true},
	}}
	groups := NewGroupFilter([]string{"common"}, false)
	p := newParser(t, root, idx, groups)

	res, err := p.ParseFile(context.Background(), path, root, false)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, catalog.StateDisabled, res.Runtime.State)
	assert.False(t, res.Runtime.State.Eligible())
}

// Scenario E — undeclared partial warning.
func TestParseFile_UndeclaredPartialWarns(t *testing.T) {
	root := t.TempDir()
	path := writeFile(t, root, "common/x.yaml", `
id: x
title: X
version: 1.0.0
status: stable
dependencies:
  partials: []
template: "{{> role-expert }}"
`)
	partials := render.NewRegistry()
	partials.Register("role-expert", "You are an expert.")
	groups := NewGroupFilter([]string{"common"}, false)
	p := NewParser(afs.New(), partials, nil, groups)

	res, err := p.ParseFile(context.Background(), path, root, false)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, catalog.StateWarning, res.Runtime.State)
	assert.False(t, res.Runtime.State.Eligible())
	assert.NotEmpty(t, res.Runtime.Warnings)
}

func TestParseFile_SkipsNonYAMLAndExcluded(t *testing.T) {
	root := t.TempDir()
	groups := NewGroupFilter([]string{"common"}, false)
	p := newParser(t, root, nil, groups)

	pkg := writeFile(t, root, "common/package.json", `{}`)
	res, err := p.ParseFile(context.Background(), pkg, root, false)
	require.NoError(t, err)
	assert.Nil(t, res)

	txt := writeFile(t, root, "common/notes.txt", `hi`)
	res, err = p.ParseFile(context.Background(), txt, root, false)
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestParseFile_GroupFilteredOut(t *testing.T) {
	root := t.TempDir()
	path := writeFile(t, root, "laravel/x.yaml", `
id: x
title: X
template: "hi"
`)
	groups := NewGroupFilter([]string{"django"}, false)
	p := newParser(t, root, nil, groups)

	res, err := p.ParseFile(context.Background(), path, root, false)
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestParseFile_CompileFailureClassified(t *testing.T) {
	root := t.TempDir()
	path := writeFile(t, root, "root/bad.yaml", `
id: bad
title: Bad
template: "{{> missing}}"
`)
	groups := NewGroupFilter(nil, false)
	p := newParser(t, root, nil, groups)

	res, err := p.ParseFile(context.Background(), path, root, false)
	assert.Nil(t, res)
	require.Error(t, err)
	perr, ok := err.(*ParseError)
	require.True(t, ok)
	assert.Equal(t, FailCompile, perr.Kind)
}

func TestArgSchemaCoerceRequiredness(t *testing.T) {
	optionalTrue := true
	schema := BuildArgSchema(map[string]ArgSpec{
		"count":    {Type: ArgNumber, Required: &optionalTrue},
		"verbose":  {Type: ArgBoolean, Description: "optional flag"},
		"code":     {Type: ArgString, Description: "Code (required)"},
	})
	missing := schema.MissingRequired(map[string]interface{}{"verbose": "true"})
	assert.ElementsMatch(t, []string{"count", "code"}, missing)

	out, err := schema.Coerce(map[string]interface{}{
		"count":   "42",
		"verbose": "true",
		"code":    "x=1",
	})
	require.NoError(t, err)
	assert.Equal(t, float64(42), out["count"])
	assert.Equal(t, true, out["verbose"])
	assert.Equal(t, "x=1", out["code"])
}

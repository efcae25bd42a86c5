package prompt

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/viant/afs"
	"gopkg.in/yaml.v3"

	"github.com/viant/promptmcp/internal/catalog"
	"github.com/viant/promptmcp/internal/render"
)

// excludedFiles is the non-prompt-document basename set of spec.md §4.4
// step 1.
var excludedFiles = map[string]bool{
	"registry.yaml":     true,
	"pnpm-lock.yaml":     true,
	"yarn.lock":          true,
	"package-lock.json":  true,
	"package.json":       true,
	"composer.lock":      true,
	"go.sum":             true,
	"requirements.txt":   true,
	"poetry.lock":        true,
	"pom.xml":            true,
	"build.gradle":       true,
}

// FailKind classifies why a file did not become a registered tool, mirroring
// the error taxonomy of spec.md §7.
type FailKind string

const (
	FailNone      FailKind = ""
	FailFiltered  FailKind = "filtered"
	FailSchema    FailKind = "SchemaError"
	FailCompile   FailKind = "CompileError"
	FailParse     FailKind = "ParseError"
)

// ParseError carries a classified failure for one file.
type ParseError struct {
	File string
	Kind FailKind
	Msg  string
}

func (e *ParseError) Error() string { return fmt.Sprintf("%s: %s: %s", e.File, e.Kind, e.Msg) }

// ParseResult is the product of successfully parsing one document.
type ParseResult struct {
	Runtime   *catalog.Prompt
	ArgSchema *ArgSchema
	Template  *render.Template
}

// Parser implements the per-file pipeline of spec.md §4.4.
type Parser struct {
	fs       afs.Service
	partials *render.Registry
	registry *RegistryIndex
	groups   GroupFilter
}

// NewParser constructs a Parser. registry may be nil (treated as absent).
func NewParser(fs afs.Service, partials *render.Registry, registry *RegistryIndex, groups GroupFilter) *Parser {
	return &Parser{fs: fs, partials: partials, registry: registry, groups: groups}
}

// ParseFile runs the full pipeline for one file. It returns (nil, nil) when
// the file is filtered out (wrong extension, excluded basename, or group
// filtering rejects it) — this is not an error, the file is simply not a
// prompt document in scope. A non-nil error is always a *ParseError.
func (p *Parser) ParseFile(ctx context.Context, path, root string, fromSystem bool) (*ParseResult, error) {
	base := filepath.Base(path)
	ext := strings.ToLower(filepath.Ext(base))
	if ext != ".yaml" && ext != ".yml" {
		return nil, nil
	}
	if excludedFiles[strings.ToLower(base)] {
		return nil, nil
	}

	group := GroupForPath(root, path)
	if !p.groups.Allowed(group, fromSystem) {
		return nil, nil
	}

	data, err := p.fs.DownloadWithURL(ctx, path)
	if err != nil {
		return nil, &ParseError{File: path, Kind: FailParse, Msg: err.Error()}
	}

	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &ParseError{File: path, Kind: FailParse, Msg: err.Error()}
	}

	if err := validateStructure(&doc); err != nil {
		return nil, &ParseError{File: path, Kind: FailSchema, Msg: err.Error()}
	}

	rt := &catalog.Prompt{
		ID:       doc.ID,
		Title:    doc.Title,
		Tags:     doc.Tags,
		UseCases: doc.UseCases,
		Group:    group,
		FilePath: path,
	}

	classifyMetadata(&doc, rt)

	p.checkPartialDependencies(&doc, rt)

	tpl, err := render.Compile(doc.ID, doc.Template, p.partials)
	if err != nil {
		return nil, &ParseError{File: path, Kind: FailCompile, Msg: err.Error()}
	}

	applyRegistryOverlay(p.registry, rt)

	return &ParseResult{
		Runtime:   rt,
		ArgSchema: BuildArgSchema(doc.Args),
		Template:  tpl,
	}, nil
}

// classifyMetadata implements spec.md §4.4 step 3.
func classifyMetadata(doc *Document, rt *catalog.Prompt) {
	if !doc.HasMetadata() {
		rt.Source = catalog.SourceLegacy
		rt.State = catalog.StateLegacy
		rt.Status = catalog.StatusLegacy
		return
	}

	rt.Source = catalog.SourceEmbedded
	version, okVersion := catalog.ParseVersion(doc.Version)
	status := catalog.Status(doc.Status)
	okStatus := status == catalog.StatusDraft || status == catalog.StatusStable || status == catalog.StatusDeprecated

	if okVersion && okStatus {
		rt.Version = version
		rt.HasVersion = true
		rt.Status = status
		rt.State = catalog.StateActive
		return
	}

	rt.State = catalog.StateWarning
	if okStatus {
		rt.Status = status
	} else {
		rt.Status = catalog.StatusDraft
		rt.Warnings = append(rt.Warnings, fmt.Sprintf("metadata: invalid status %q", doc.Status))
	}
	if !okVersion {
		rt.Warnings = append(rt.Warnings, fmt.Sprintf("metadata: invalid version %q", doc.Version))
	}
}

// checkPartialDependencies implements spec.md §4.4 step 4: referenced
// partials not declared demote an active document to warning; declared but
// unused partials only produce a warning message.
func (p *Parser) checkPartialDependencies(doc *Document, rt *catalog.Prompt) {
	declared := make(map[string]bool, len(doc.Dependencies.Partials))
	for _, name := range doc.Dependencies.Partials {
		declared[name] = true
	}
	used := render.ExtractPartialRefs(doc.Template)
	usedSet := make(map[string]bool, len(used))
	for _, name := range used {
		usedSet[name] = true
		if !declared[name] {
			if rt.State == catalog.StateActive {
				rt.State = catalog.StateWarning
			}
			rt.Warnings = append(rt.Warnings, fmt.Sprintf("template references undeclared partial %q", name))
		}
	}
	for name := range declared {
		if !usedSet[name] {
			rt.Warnings = append(rt.Warnings, fmt.Sprintf("declared partial %q is never referenced", name))
		}
	}
}

// applyRegistryOverlay implements spec.md §4.5.
func applyRegistryOverlay(idx *RegistryIndex, rt *catalog.Prompt) {
	entry, ok := idx.Lookup(rt.ID)
	if !ok {
		return
	}
	rt.Source = catalog.SourceRegistry
	if entry.Deprecated {
		rt.State = catalog.StateDisabled
	} else {
		rt.State = catalog.StateActive
	}
	if entry.Group != "" {
		rt.Group = entry.Group
	}
	if entry.Visibility != "" {
		rt.Visibility = catalog.Visibility(entry.Visibility)
	}
}

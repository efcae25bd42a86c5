// Package prompt implements the Parser & Validator and the registry
// overlay of spec.md §4.4/§4.5: reading one prompt document off disk,
// classifying it into a catalog.Prompt plus a compiled template and
// argument schema, or a classified failure.
package prompt

import (
	"context"
	"fmt"
	"strings"

	validatorpkg "github.com/go-playground/validator/v10"
	"github.com/viant/afs"
	"gopkg.in/yaml.v3"
)

// ArgType is the declared type of a prompt argument.
type ArgType string

const (
	ArgString  ArgType = "string"
	ArgNumber  ArgType = "number"
	ArgBoolean ArgType = "boolean"
)

// ArgSpec is one entry of a document's `args` map.
type ArgSpec struct {
	Type        ArgType     `yaml:"type" validate:"required,oneof=string number boolean"`
	Description string      `yaml:"description,omitempty"`
	Default     interface{} `yaml:"default,omitempty"`
	Required    *bool       `yaml:"required,omitempty"`
}

// Triggers carries the pattern keywords a document is authored with.
type Triggers struct {
	Patterns []string `yaml:"patterns,omitempty"`
}

// Dependencies declares the partials a template body is expected to use.
type Dependencies struct {
	Partials []string `yaml:"partials,omitempty"`
}

// Document is the on-disk prompt-document schema of spec.md §3.
type Document struct {
	ID           string             `yaml:"id" validate:"required"`
	Title        string             `yaml:"title" validate:"required"`
	Description  string             `yaml:"description,omitempty"`
	Triggers     Triggers           `yaml:"triggers,omitempty"`
	Rules        []string           `yaml:"rules,omitempty"`
	Args         map[string]ArgSpec `yaml:"args,omitempty"`
	Template     string             `yaml:"template" validate:"required"`
	Version      string             `yaml:"version,omitempty"`
	Status       string             `yaml:"status,omitempty"`
	Tags         []string           `yaml:"tags,omitempty"`
	UseCases     []string           `yaml:"use_cases,omitempty"`
	Dependencies Dependencies       `yaml:"dependencies,omitempty"`
}

// HasMetadata reports whether both version and status are present and
// non-empty (spec.md §3: "A document is a metadata prompt iff both
// `version` and `status` are present and non-empty").
func (d Document) HasMetadata() bool {
	return strings.TrimSpace(d.Version) != "" && strings.TrimSpace(d.Status) != ""
}

var structValidator = func() *validatorpkg.Validate {
	v := validatorpkg.New()
	return v
}()

// validateStructure runs struct-level validation (required fields, oneof
// constraints on args) — spec.md §4.4 step 2.
func validateStructure(doc *Document) error {
	if err := structValidator.Struct(doc); err != nil {
		return err
	}
	for name, spec := range doc.Args {
		if err := structValidator.Struct(spec); err != nil {
			return fmt.Errorf("args.%s: %w", name, err)
		}
	}
	return nil
}

// RegistryEntry is one entry of registry.yaml.
type RegistryEntry struct {
	ID         string `yaml:"id"`
	Group      string `yaml:"group,omitempty"`
	Visibility string `yaml:"visibility,omitempty"`
	Deprecated bool   `yaml:"deprecated,omitempty"`
}

// registryDocument is the top-level shape of registry.yaml.
type registryDocument struct {
	Prompts []RegistryEntry `yaml:"prompts,omitempty"`
}

// RegistryIndex is the parsed, by-id lookup for registry.yaml.
type RegistryIndex struct {
	entries map[string]RegistryEntry
}

// Lookup returns the registry entry for id, if any.
func (r *RegistryIndex) Lookup(id string) (RegistryEntry, bool) {
	if r == nil {
		return RegistryEntry{}, false
	}
	e, ok := r.entries[id]
	return e, ok
}

// Enabled reports whether a registry.yaml was loaded successfully.
func (r *RegistryIndex) Enabled() bool { return r != nil }

const registryFilename = "registry.yaml"

// LoadRegistry loads <root>/registry.yaml. A missing or unparseable file is
// treated as absent (spec.md §4.5: "A missing or unparseable registry.yaml
// is treated as absent (logged at warn) and must not fail loading."); the
// caller is expected to log the returned error and proceed with a nil
// index.
func LoadRegistry(ctx context.Context, fs afs.Service, root string) (*RegistryIndex, error) {
	path := joinPath(root, registryFilename)
	exists, err := fs.Exists(ctx, path)
	if err != nil || !exists {
		return nil, err
	}
	data, err := fs.DownloadWithURL(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("registry: read %s: %w", path, err)
	}
	var doc registryDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("registry: parse %s: %w", path, err)
	}
	idx := &RegistryIndex{entries: make(map[string]RegistryEntry, len(doc.Prompts))}
	for _, e := range doc.Prompts {
		if e.ID == "" {
			continue
		}
		idx.entries[e.ID] = e
	}
	return idx, nil
}

func joinPath(root, name string) string {
	root = strings.TrimRight(root, "/")
	return root + "/" + name
}

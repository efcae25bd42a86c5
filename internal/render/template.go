package render

import (
	"fmt"
	"regexp"
	"strings"
	"text/template"
)

// Template is a compiled prompt template: compile(source) -> render(ctx) ->
// text, treated as opaque per spec.md §1. Built on text/template, so
// HTML-escaping is never performed.
type Template struct {
	tpl    *template.Template
	source string
}

// Compile expands {{> name}} partial references against partials and then
// parses the result with text/template. It is the sole compilation entry
// point used by the parser (spec.md §4.4 step 5).
func Compile(name, source string, partials *Registry) (*Template, error) {
	expanded, err := expand(source, partials, 0)
	if err != nil {
		return nil, err
	}
	expanded = bareVarPattern.ReplaceAllStringFunc(expanded, func(m string) string {
		name := bareVarPattern.FindStringSubmatch(m)[1]
		if templateKeywords[name] {
			return m
		}
		return "{{." + name + "}}"
	})
	tpl, err := template.New(name).Option("missingkey=zero").Parse(expanded)
	if err != nil {
		return nil, fmt.Errorf("render: compile %q: %w", name, err)
	}
	return &Template{tpl: tpl, source: source}, nil
}

// bareVarPattern matches Handlebars-style bare variable references, e.g.
// "{{code}}" or "{{user.name}}". Prompt documents author templates in this
// leading-dot-free form (see spec.md §8 scenario A: `template: "Review:
// {{code}}"`); text/template requires an explicit leading dot to resolve a
// field off the render context, so Compile rewrites bare references to
// "{{.code}}" before parsing. Block/control constructs ("{{if ...}}",
// "{{range ...}}", pipelines) contain whitespace and do not match this
// pattern; the bare keywords that do match ("{{end}}", "{{else}}" and the
// rest of templateKeywords) are left untouched by Compile.
var bareVarPattern = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_]*(?:\.[A-Za-z_][A-Za-z0-9_]*)*)\s*\}\}`)

var templateKeywords = map[string]bool{
	"end": true, "else": true, "break": true, "continue": true,
	"nil": true, "true": true, "false": true,
}

// Source returns the original, unexpanded template body.
func (t *Template) Source() string { return t.source }

// Render executes the compiled template against ctx.
func (t *Template) Render(ctx map[string]interface{}) (string, error) {
	var sb strings.Builder
	if err := t.tpl.Execute(&sb, ctx); err != nil {
		return "", fmt.Errorf("render: execute: %w", err)
	}
	return sb.String(), nil
}

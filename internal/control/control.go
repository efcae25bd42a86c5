// Package control implements the Control Surface of spec.md §4.9/§6: a
// fixed set of built-in tools (reload, stats, list, inspect, switch_source)
// registered once at startup, bypassing group filtering, never themselves
// reloaded.
//
// Grounded on cmd/agently/mcp.go's McpAddCmd/McpRemoveCmd/McpListCmd triad
// for the shape of "thin handler function returning structured JSON" and
// for the CLI-mirror idea (mirrored here by ControlCmd, grounded on
// cmd/agently/cli.go's flags.NewParser wiring), extended from a one-shot
// CLI command set to long-lived tool handlers per spec.md §4.9.
package control

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/jessevdk/go-flags"

	"github.com/viant/promptmcp/internal/catalog"
	"github.com/viant/promptmcp/internal/reload"
	"github.com/viant/promptmcp/internal/registry"
	"github.com/viant/promptmcp/internal/source"
)

// Surface owns the five built-in tools and registers them on a
// registry.MCPRegistry at startup. It never participates in a reload pass
// (spec.md §4.9: "never reloaded").
type Surface struct {
	engine  *reload.Engine
	store   *registry.Store
	sources *source.Manager

	newStrategy func(url string) (source.Strategy, error)
	basicCount  int
}

// New constructs a Surface. newStrategy builds a source.Strategy from a
// raw URL/path for switch_source — injected so this package does not need
// to know config.isGitURL-style classification itself.
func New(engine *reload.Engine, store *registry.Store, sources *source.Manager, newStrategy func(url string) (source.Strategy, error)) *Surface {
	return &Surface{engine: engine, store: store, sources: sources, newStrategy: newStrategy}
}

// RegisterAll registers all five control tools on reg. It returns the
// number of tools registered, used by stats' tools.basic field (spec.md §9
// Open Question 2: "count actual registered basic tools dynamically").
func (s *Surface) RegisterAll(reg *registry.MCPRegistry) (int, error) {
	tools := []struct {
		name string
		desc string
		fn   registry.Handler
	}{
		{"reload", "Re-synchronise sources and rebuild the prompt catalogue.", s.handleReload},
		{"stats", "Snapshot of the prompt catalogue by runtime state.", s.handleStats},
		{"list", "Filtered projection of the prompt catalogue.", s.handleList},
		{"inspect", "Full runtime record for one prompt id.", s.handleInspect},
		{"switch_source", "Replace the active source configuration and reload.", s.handleSwitchSource},
	}
	for _, t := range tools {
		spec := registry.Spec{Name: t.name, Description: t.desc, Properties: propsFor(t.name), Required: requiredFor(t.name)}
		if _, err := reg.Register(t.name, spec, t.fn); err != nil {
			return 0, fmt.Errorf("control: register %s: %w", t.name, err)
		}
	}
	return len(tools), nil
}

func propsFor(name string) map[string]map[string]interface{} {
	switch name {
	case "list":
		return map[string]map[string]interface{}{
			"status":        {"type": "string"},
			"group":         {"type": "string"},
			"tag":           {"type": "string"},
			"runtime_state": {"type": "string"},
		}
	case "inspect":
		return map[string]map[string]interface{}{"id": {"type": "string"}}
	case "switch_source":
		return map[string]map[string]interface{}{
			"url":    {"type": "string"},
			"branch": {"type": "string"},
		}
	default:
		return nil
	}
}

func requiredFor(name string) []string {
	switch name {
	case "inspect":
		return []string{"id"}
	case "switch_source":
		return []string{"url"}
	default:
		return nil
	}
}

func marshal(v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("control: marshal response: %w", err)
	}
	return string(data), nil
}

// reloadResponse mirrors spec.md §6's reload() -> {loaded, errors} shape.
type reloadResponse struct {
	Loaded int                 `json:"loaded"`
	Errors []reload.FileError `json:"errors"`
}

func (s *Surface) handleReload(ctx context.Context, _ map[string]interface{}) (string, error) {
	res, err := s.engine.FullReload(ctx)
	if err != nil {
		return marshal(reloadResponse{Errors: []reload.FileError{{Message: err.Error()}}})
	}
	return marshal(reloadResponse{Loaded: res.Loaded, Errors: res.Errors})
}

// statsResponse mirrors spec.md §6's stats() -> {total,...,tools:{...}}
// shape.
type statsResponse struct {
	Total    int        `json:"total"`
	Active   int        `json:"active"`
	Legacy   int        `json:"legacy"`
	Invalid  int        `json:"invalid"`
	Disabled int        `json:"disabled"`
	Warning  int        `json:"warning"`
	Tools    toolCounts `json:"tools"`
}

type toolCounts struct {
	Basic  int `json:"basic"`
	Prompt int `json:"prompt"`
	Total  int `json:"total"`
}

// basicCount is set once by RegisterAll's caller via SetBasicCount, since
// Surface does not hold a reference to the registry it was registered on.
func (s *Surface) handleStats(_ context.Context, _ map[string]interface{}) (string, error) {
	st := s.store.Stats()
	return marshal(statsResponse{
		Total: st.Total, Active: st.Active, Legacy: st.Legacy,
		Invalid: st.Invalid, Disabled: st.Disabled, Warning: st.Warning,
		Tools: toolCounts{Basic: s.basicCount, Prompt: st.Tools, Total: s.basicCount + st.Tools},
	})
}

// SetBasicCount records how many control tools were actually registered,
// for stats' tools.basic/tools.total fields.
func (s *Surface) SetBasicCount(n int) { s.basicCount = n }

type listItem struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Version      string   `json:"version"`
	Status       string   `json:"status"`
	RuntimeState string   `json:"runtime_state"`
	Source       string   `json:"source"`
	Tags         []string `json:"tags"`
	UseCases     []string `json:"use_cases"`
	Group        string   `json:"group"`
	Visibility   string   `json:"visibility,omitempty"`
}

type listResponse struct {
	Total   int        `json:"total"`
	Prompts []listItem `json:"prompts"`
}

func (s *Surface) handleList(_ context.Context, args map[string]interface{}) (string, error) {
	status := stringArg(args, "status")
	group := stringArg(args, "group")
	tag := stringArg(args, "tag")
	runtimeState := stringArg(args, "runtime_state")

	all := s.store.List()
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })

	items := make([]listItem, 0, len(all))
	for _, p := range all {
		if status != "" && string(p.Status) != status {
			continue
		}
		if group != "" && p.Group != group {
			continue
		}
		if runtimeState != "" && string(p.State) != runtimeState {
			continue
		}
		if tag != "" && !containsString(p.Tags, tag) {
			continue
		}
		items = append(items, toListItem(p))
	}
	return marshal(listResponse{Total: len(items), Prompts: items})
}

func toListItem(p *catalog.Prompt) listItem {
	return listItem{
		ID: p.ID, Title: p.Title, Version: p.Version.String(), Status: string(p.Status),
		RuntimeState: string(p.State), Source: string(p.Source), Tags: p.Tags,
		UseCases: p.UseCases, Group: p.Group, Visibility: string(p.Visibility),
	}
}

func (s *Surface) handleInspect(_ context.Context, args map[string]interface{}) (string, error) {
	id := stringArg(args, "id")
	if id == "" {
		return "", fmt.Errorf("inspect: missing required argument %q", "id")
	}
	p, ok := s.store.Get(id)
	if !ok {
		return "", fmt.Errorf("inspect: not found: %q", id)
	}
	return marshal(toListItem(p))
}

type switchSourceResponse struct {
	Loaded int `json:"loaded"`
}

func (s *Surface) handleSwitchSource(ctx context.Context, args map[string]interface{}) (string, error) {
	url := stringArg(args, "url")
	if url == "" {
		return "", fmt.Errorf("switch_source: missing required argument %q", "url")
	}
	strat, err := s.newStrategy(url)
	if err != nil {
		return "", fmt.Errorf("switch_source: %w", err)
	}
	if !strat.Validate(ctx) {
		return "", fmt.Errorf("switch_source: %s %s: validate failed", strat.Kind(), strat.URL())
	}
	if err := s.sources.SwitchActive(ctx, strat); err != nil {
		return "", fmt.Errorf("switch_source: %w", err)
	}
	res, err := s.engine.FullReload(ctx)
	if err != nil {
		return "", fmt.Errorf("switch_source: reload: %w", err)
	}
	return marshal(switchSourceResponse{Loaded: res.Loaded})
}

func stringArg(args map[string]interface{}, name string) string {
	v, ok := args[name]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

func containsString(ss []string, v string) bool {
	for _, s := range ss {
		if s == v {
			return true
		}
	}
	return false
}

// ControlCmd mirrors the five control tools as go-flags subcommands
// (reload, stats, list, inspect, switch-source); each one calls the matching
// Surface handler in-process and prints its JSON response. Build the tree
// with NewControlCmd; cmd/promptmcp does not mount it.
type ControlCmd struct {
	Reload       *reloadCmd       `command:"reload" description:"Trigger a full reload"`
	Stats        *statsCmd        `command:"stats" description:"Print catalogue statistics"`
	List         *listCmd         `command:"list" description:"List prompts"`
	Inspect      *inspectCmd      `command:"inspect" description:"Inspect one prompt"`
	SwitchSource *switchSourceCmd `command:"switch-source" description:"Switch the active source"`

	surface *Surface
}

func (c *ControlCmd) Execute(_ []string) error { return flags.ErrHelp }

type reloadCmd struct{ parent *ControlCmd }
type statsCmd struct{ parent *ControlCmd }
type listCmd struct {
	Status       string `long:"status"`
	Group        string `long:"group"`
	Tag          string `long:"tag"`
	RuntimeState string `long:"runtime-state"`
	parent       *ControlCmd
}
type inspectCmd struct {
	ID     string `short:"i" long:"id" required:"yes"`
	parent *ControlCmd
}
type switchSourceCmd struct {
	URL    string `long:"url" required:"yes"`
	Branch string `long:"branch"`
	parent *ControlCmd
}

func (c *reloadCmd) Execute(_ []string) error {
	out, err := c.parent.surface.handleReload(context.Background(), nil)
	return printOrErr(out, err)
}

func (c *statsCmd) Execute(_ []string) error {
	out, err := c.parent.surface.handleStats(context.Background(), nil)
	return printOrErr(out, err)
}

func (c *listCmd) Execute(_ []string) error {
	args := map[string]interface{}{"status": c.Status, "group": c.Group, "tag": c.Tag, "runtime_state": c.RuntimeState}
	out, err := c.parent.surface.handleList(context.Background(), args)
	return printOrErr(out, err)
}

func (c *inspectCmd) Execute(_ []string) error {
	out, err := c.parent.surface.handleInspect(context.Background(), map[string]interface{}{"id": c.ID})
	return printOrErr(out, err)
}

func (c *switchSourceCmd) Execute(_ []string) error {
	out, err := c.parent.surface.handleSwitchSource(context.Background(), map[string]interface{}{"url": c.URL, "branch": c.Branch})
	return printOrErr(out, err)
}

func printOrErr(out string, err error) error {
	if err != nil {
		return err
	}
	fmt.Println(out)
	return nil
}

// NewControlCmd wires surface into a ControlCmd tree for RunWithCommands-
// style CLI embedding.
func NewControlCmd(surface *Surface) *ControlCmd {
	c := &ControlCmd{surface: surface}
	c.Reload = &reloadCmd{parent: c}
	c.Stats = &statsCmd{parent: c}
	c.List = &listCmd{parent: c}
	c.Inspect = &inspectCmd{parent: c}
	c.SwitchSource = &switchSourceCmd{parent: c}
	return c
}

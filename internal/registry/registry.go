// Package registry implements the ToolRegistry external contract of
// spec.md §2/§9 and the RuntimeState Store of spec.md §3.
//
// ToolRegistry is implemented as an MCP server.Operations/server.Handler
// (github.com/viant/mcp-protocol/server), grounded on
// internal/mcp/expose/tool_handler.go and
// internal/mcp/localclient/service_handler.go. The underlying protocol
// library has no native per-id remove() primitive — it is replace-in-place
// — so this package adds the "compatibility wrapper" spec.md §9 calls for:
// a generation-stamped Handle whose Remove() is a safe no-op once its
// registration has been superseded by a later Register call for the same
// id.
package registry

import (
	"context"
	"strings"
	"sync"

	"github.com/viant/jsonrpc"
	mcpschema "github.com/viant/mcp-protocol/schema"
)

// Spec is the protocol-facing description of one tool.
type Spec struct {
	Name        string
	Description string
	Properties  map[string]map[string]interface{}
	Required    []string
}

// Handler executes a tool call, returning the rendered text (or an error
// surfaced to the caller as a tool-error result, never a crash — spec.md
// §7 "Tool invocation: template render failures are returned to the caller
// as a tool-error result, not as a crash.").
type Handler func(ctx context.Context, args map[string]interface{}) (string, error)

// Handle is the opaque object returned by Register. Remove() deletes the
// registration it was handed for, and is a no-op if that registration has
// since been superseded or already removed — it never disturbs whatever
// currently occupies the id (spec.md §3: "old handle is retained until
// explicitly removed to preserve the no-downtime property").
type Handle interface {
	ID() string
	Remove()
}

type registration struct {
	spec    Spec
	handler Handler
	gen     uint64
}

type handle struct {
	id  string
	gen uint64
	reg *MCPRegistry
}

func (h *handle) ID() string { return h.id }

func (h *handle) Remove() {
	h.reg.mu.Lock()
	defer h.reg.mu.Unlock()
	if cur, ok := h.reg.items[h.id]; ok && cur.gen == h.gen {
		delete(h.reg.items, h.id)
	}
}

// MCPRegistry is the ToolRegistry: an MCP server handler backed by a
// mutex-guarded id -> registration map.
type MCPRegistry struct {
	mu         sync.RWMutex
	items      map[string]*registration
	genCounter uint64

	resources ResourceProvider
}

// ResourceProvider serves the one static resource this server exposes
// (system://health, spec.md §6). Implemented by internal/health.
type ResourceProvider interface {
	List() []mcpschema.Resource
	Read(ctx context.Context, uri string) (body string, mimeType string, found bool, err error)
}

// NewMCPRegistry constructs an empty ToolRegistry. resources may be nil.
func NewMCPRegistry(resources ResourceProvider) *MCPRegistry {
	return &MCPRegistry{items: make(map[string]*registration), resources: resources}
}

// Register publishes a tool under id, returning a Handle. A subsequent
// Register for the same id makes the new handler authoritative for the
// next invocation; the previous Handle remains valid (its Remove() is a
// safe no-op) per spec.md §9's dual-swap contract.
func (r *MCPRegistry) Register(id string, spec Spec, fn Handler) (Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.genCounter++
	gen := r.genCounter
	r.items[id] = &registration{spec: spec, handler: fn, gen: gen}
	return &handle{id: id, gen: gen, reg: r}, nil
}

// Len reports how many tools are currently registered.
func (r *MCPRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

func toolFromSpec(s Spec) mcpschema.Tool {
	desc := s.Description
	props := make(mcpschema.ToolInputSchemaProperties, len(s.Properties))
	for k, v := range s.Properties {
		props[k] = v
	}
	return mcpschema.Tool{
		Name:        s.Name,
		Description: &desc,
		InputSchema: mcpschema.ToolInputSchema{
			Type:       "object",
			Properties: props,
			Required:   s.Required,
		},
	}
}

// ---------------- mcp-protocol/server.Operations ----------------

func (r *MCPRegistry) Initialize(_ context.Context, _ *mcpschema.InitializeRequestParams, _ *mcpschema.InitializeResult) {
}

func (r *MCPRegistry) ListResources(_ context.Context, _ *jsonrpc.TypedRequest[*mcpschema.ListResourcesRequest]) (*mcpschema.ListResourcesResult, *jsonrpc.Error) {
	if r.resources == nil {
		return &mcpschema.ListResourcesResult{}, nil
	}
	return &mcpschema.ListResourcesResult{Resources: r.resources.List()}, nil
}

func (r *MCPRegistry) ListResourceTemplates(_ context.Context, _ *jsonrpc.TypedRequest[*mcpschema.ListResourceTemplatesRequest]) (*mcpschema.ListResourceTemplatesResult, *jsonrpc.Error) {
	return &mcpschema.ListResourceTemplatesResult{}, nil
}

func (r *MCPRegistry) ReadResource(ctx context.Context, req *jsonrpc.TypedRequest[*mcpschema.ReadResourceRequest]) (*mcpschema.ReadResourceResult, *jsonrpc.Error) {
	if req == nil || req.Request == nil {
		return nil, jsonrpc.NewInvalidRequest("missing request", nil)
	}
	if r.resources == nil {
		return nil, jsonrpc.NewMethodNotFound("resources/read not implemented", nil)
	}
	body, mimeType, found, err := r.resources.Read(ctx, req.Request.Params.Uri)
	if err != nil {
		return nil, jsonrpc.NewInternalError(err.Error(), nil)
	}
	if !found {
		return nil, jsonrpc.NewInvalidParamsError("resource not found: "+req.Request.Params.Uri, nil)
	}
	return &mcpschema.ReadResourceResult{
		Contents: []mcpschema.ReadResourceResultContentsElem{{
			Uri:      req.Request.Params.Uri,
			MimeType: &mimeType,
			Text:     &body,
		}},
	}, nil
}

func (r *MCPRegistry) Subscribe(_ context.Context, _ *jsonrpc.TypedRequest[*mcpschema.SubscribeRequest]) (*mcpschema.SubscribeResult, *jsonrpc.Error) {
	return nil, jsonrpc.NewMethodNotFound("subscribe not implemented", nil)
}

func (r *MCPRegistry) Unsubscribe(_ context.Context, _ *jsonrpc.TypedRequest[*mcpschema.UnsubscribeRequest]) (*mcpschema.UnsubscribeResult, *jsonrpc.Error) {
	return nil, jsonrpc.NewMethodNotFound("unsubscribe not implemented", nil)
}

func (r *MCPRegistry) ListTools(_ context.Context, _ *jsonrpc.TypedRequest[*mcpschema.ListToolsRequest]) (*mcpschema.ListToolsResult, *jsonrpc.Error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tools := make([]mcpschema.Tool, 0, len(r.items))
	for _, reg := range r.items {
		tools = append(tools, toolFromSpec(reg.spec))
	}
	return &mcpschema.ListToolsResult{Tools: tools}, nil
}

func (r *MCPRegistry) CallTool(ctx context.Context, req *jsonrpc.TypedRequest[*mcpschema.CallToolRequest]) (*mcpschema.CallToolResult, *jsonrpc.Error) {
	if req == nil || req.Request == nil {
		return nil, jsonrpc.NewInvalidRequest("missing request", nil)
	}
	name := strings.TrimSpace(req.Request.Params.Name)
	r.mu.RLock()
	reg, ok := r.items[name]
	r.mu.RUnlock()
	if !ok {
		return nil, mcpschema.NewUnknownTool(name)
	}

	args := map[string]interface{}(req.Request.Params.Arguments)
	text, err := reg.handler(ctx, args)
	if err != nil {
		isErr := true
		return &mcpschema.CallToolResult{
			IsError: &isErr,
			Content: []mcpschema.CallToolResultContentElem{{Type: "text", Text: err.Error()}},
		}, nil
	}
	return &mcpschema.CallToolResult{
		Content: []mcpschema.CallToolResultContentElem{{Type: "text", Text: text}},
	}, nil
}

func (r *MCPRegistry) ListPrompts(_ context.Context, _ *jsonrpc.TypedRequest[*mcpschema.ListPromptsRequest]) (*mcpschema.ListPromptsResult, *jsonrpc.Error) {
	return nil, jsonrpc.NewMethodNotFound("prompts/list not implemented", nil)
}

func (r *MCPRegistry) GetPrompt(_ context.Context, _ *jsonrpc.TypedRequest[*mcpschema.GetPromptRequest]) (*mcpschema.GetPromptResult, *jsonrpc.Error) {
	return nil, jsonrpc.NewMethodNotFound("prompts/get not implemented", nil)
}

func (r *MCPRegistry) Complete(_ context.Context, _ *jsonrpc.TypedRequest[*mcpschema.CompleteRequest]) (*mcpschema.CompleteResult, *jsonrpc.Error) {
	return nil, jsonrpc.NewMethodNotFound("complete not implemented", nil)
}

// ---------------- mcp-protocol/server.Handler ----------------

func (r *MCPRegistry) OnNotification(_ context.Context, _ *jsonrpc.Notification) {}

func (r *MCPRegistry) Implements(method string) bool {
	switch method {
	case mcpschema.MethodToolsList, mcpschema.MethodToolsCall,
		mcpschema.MethodResourcesList, mcpschema.MethodResourcesRead:
		return true
	default:
		return false
	}
}

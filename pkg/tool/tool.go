// Package tool defines the external tool contract (§6): a named,
// schema-typed capability invoked by the runtime on behalf of the LM.
// Individual tool implementations are out of scope for this module;
// only the contract and a minimal registry live here.
package tool

import "context"

// SideEffect classifies what invoking a tool can touch.
type SideEffect string

const (
	SideEffectNone SideEffect = "none"
	SideEffectFS   SideEffect = "fs"
	SideEffectExec SideEffect = "exec"
	SideEffectLLM  SideEffect = "llm"
)

// Safety is the static safety profile a tool declares.
type Safety struct {
	SideEffects SideEffect `json:"side_effects"`
	Allowlist   []string   `json:"allowlist,omitempty"`
}

// Schema is a minimal JSON-Schema-shaped description, sufficient for
// input validation and for rendering a tool index entry. Implementations
// of Tool own the actual schema document; this core only needs to
// marshal it deterministically (see pkg/planner's fingerprinting).
type Schema map[string]any

// Metadata is the static description of a tool.
type Metadata struct {
	Name         string
	Description  string
	Category     string
	Capabilities []string
	InputSchema  Schema
	OutputSchema Schema
	Safety       Safety
	Docs         string
	Examples     []string
}

// ErrorDetail is the structured error a tool can return alongside ok=false.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// ResultMeta carries side-effect observations back to the executor.
type ResultMeta struct {
	TouchedPaths []string `json:"touched_paths,omitempty"`
}

// Result is what a tool invocation returns.
type Result struct {
	OK    bool           `json:"ok"`
	Data  map[string]any `json:"data,omitempty"`
	Error *ErrorDetail   `json:"error,omitempty"`
	Meta  *ResultMeta    `json:"meta,omitempty"`
}

// Memory is the run-scoped state a tool's Run receives: the working
// paths for the app/out/spec trees. It carries no patch paths, touched
// paths or verify result; the executor keeps patch and touched paths on
// agentstate.AgentState, and tools report touched paths back through
// Result.Meta.
type Memory struct {
	AppPath  string
	OutPath  string
	SpecPath string
}

// Tool is the runtime contract every registered capability satisfies.
type Tool interface {
	Metadata() Metadata
	Run(ctx context.Context, mem *Memory, input map[string]any) (Result, error)
}

// Registry is a minimal by-name lookup of registered tools. It is
// deliberately narrow: registration, middleware chains, and lifecycle
// concerns belong to the collaborator that assembles a concrete set of
// tools, not to this core.
type Registry struct {
	tools map[string]Tool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds or replaces a tool by name.
func (r *Registry) Register(t Tool) {
	r.tools[t.Metadata().Name] = t
}

// Lookup returns the tool registered under name, if any.
func (r *Registry) Lookup(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Names returns the registered tool names in no particular order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	return names
}

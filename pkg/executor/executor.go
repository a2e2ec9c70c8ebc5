// Package executor implements the Executor (§4.4): validates a tool
// call against policy and the tool's input schema, invokes the tool,
// merges touched paths into AgentState, and surfaces the patch-review
// hook when a call introduces new patch paths.
package executor

import (
	"context"

	"github.com/odvcencio/cadence/pkg/agentstate"
	"github.com/odvcencio/cadence/pkg/agenterrors"
	"github.com/odvcencio/cadence/pkg/policy"
	"github.com/odvcencio/cadence/pkg/tool"
)

// Call is one tool invocation a task action plan or criteria check
// wants executed.
type Call struct {
	Name  string
	Input map[string]any
}

// HumanReviewDecision is the boolean outcome of a patch-review hook.
type HumanReviewDecision struct {
	Approved bool
	Reason   string
}

// HumanReviewFunc is invoked when a call introduces new patch paths.
// With a nil hook no review takes place: the new patch paths are
// recorded and the call proceeds.
type HumanReviewFunc func(ctx context.Context, newPatchPaths []string) HumanReviewDecision

// Result is what Execute returns to its caller (the turn loop or the
// criteria evaluator).
type Result struct {
	OK           bool
	Note         string
	TouchedPaths []string
	ResultData   map[string]any
	ToolName     string
}

// Executor runs tool calls through the policy/safety/patch-review
// pipeline. It never touches the filesystem itself; all observable
// side effects are the tool's own.
type Executor struct {
	Registry     *tool.Registry
	HumanReview  HumanReviewFunc
}

// New constructs an Executor bound to a registry.
func New(registry *tool.Registry, humanReview HumanReviewFunc) *Executor {
	return &Executor{Registry: registry, HumanReview: humanReview}
}

// Execute runs a single call against state. It is the only writer of
// state's tool-result and touched-path fields (§3, §5).
func (e *Executor) Execute(ctx context.Context, call Call, mem *tool.Memory, state *agentstate.AgentState, pol policy.Policy) (Result, error) {
	if !pol.AllowsTool(call.Name) {
		err := agenterrors.New(agenterrors.Config, "tool not allowed: "+call.Name)
		state.SetLastError(string(agenterrors.Config), err.Error())
		return Result{OK: false, Note: err.Error(), ToolName: call.Name}, err
	}

	t, ok := e.Registry.Lookup(call.Name)
	if !ok {
		err := agenterrors.New(agenterrors.Unknown, "tool not registered: "+call.Name)
		state.SetLastError(string(agenterrors.Unknown), err.Error())
		return Result{OK: false, Note: err.Error(), ToolName: call.Name}, err
	}

	if err := validateInput(t.Metadata().InputSchema, call.Input); err != nil {
		wrapped := agenterrors.Wrap(err, agenterrors.Config, "invalid tool input for "+call.Name)
		state.SetLastError(string(agenterrors.Config), wrapped.Error())
		return Result{OK: false, Note: wrapped.Error(), ToolName: call.Name}, wrapped
	}

	before := make(map[string]bool, len(state.PatchPaths))
	for _, p := range state.PatchPaths {
		before[p] = true
	}

	toolResult, err := t.Run(ctx, mem, call.Input)
	if err != nil {
		wrapped := agenterrors.Wrap(err, agenterrors.Unknown, truncate(err.Error(), 500))
		state.SetLastError(string(agenterrors.Unknown), wrapped.Error())
		return Result{OK: false, Note: wrapped.Error(), ToolName: call.Name}, wrapped
	}

	var touchedPaths []string
	if toolResult.Meta != nil {
		touchedPaths = state.MergeTouchedPaths(toolResult.Meta.TouchedPaths)
	}

	newPatchPaths := newPathsSince(before, touchedPaths)
	if len(newPatchPaths) > 0 {
		state.RecordPatchPaths(newPatchPaths)
		if e.HumanReview != nil {
			decision := e.HumanReview(ctx, newPatchPaths)
			if !decision.Approved {
				err := agenterrors.New(agenterrors.Config, "review rejected").WithContext("reason", decision.Reason)
				state.SetLastError(string(agenterrors.Config), err.Error())
				return Result{OK: false, Note: err.Error(), TouchedPaths: touchedPaths, ToolName: call.Name}, err
			}
		}
	}

	if !toolResult.OK {
		detail := ""
		if toolResult.Error != nil {
			detail = toolResult.Error.Message
		}
		err := agenterrors.New(agenterrors.Unknown, truncate(detail, 500))
		state.SetLastError(string(agenterrors.Unknown), err.Error())
		return Result{OK: false, Note: err.Error(), TouchedPaths: touchedPaths, ToolName: call.Name}, nil
	}

	return Result{
		OK:           true,
		TouchedPaths: touchedPaths,
		ResultData:   toolResult.Data,
		ToolName:     call.Name,
	}, nil
}

// newPathsSince returns the entries of touchedPaths not present in
// before.
func newPathsSince(before map[string]bool, touchedPaths []string) []string {
	var out []string
	for _, p := range touchedPaths {
		if !before[p] {
			out = append(out, p)
		}
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}

// validateInput checks input against a minimal required-field schema:
// { "required": ["field", ...] }. Full JSON-Schema validation is not
// reimplemented here — that is the collaborator tool's concern for
// anything beyond required-field presence, per §6's narrow input
// contract.
func validateInput(schema tool.Schema, input map[string]any) error {
	if schema == nil {
		return nil
	}
	required, ok := schema["required"].([]string)
	if !ok {
		return nil
	}
	for _, field := range required {
		if _, present := input[field]; !present {
			return &fieldError{field: field}
		}
	}
	return nil
}

type fieldError struct{ field string }

func (e *fieldError) Error() string { return "missing required field: " + e.field }

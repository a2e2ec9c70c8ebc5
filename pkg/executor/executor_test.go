package executor_test

import (
	"context"
	"testing"

	"github.com/odvcencio/cadence/pkg/agentstate"
	"github.com/odvcencio/cadence/pkg/executor"
	"github.com/odvcencio/cadence/pkg/policy"
	"github.com/odvcencio/cadence/pkg/tool"
	"github.com/stretchr/testify/require"
)

type fakeTool struct {
	name    string
	result  tool.Result
	err     error
	touched []string
}

func (f *fakeTool) Metadata() tool.Metadata {
	return tool.Metadata{Name: f.name}
}

func (f *fakeTool) Run(ctx context.Context, mem *tool.Memory, input map[string]any) (tool.Result, error) {
	if f.err != nil {
		return tool.Result{}, f.err
	}
	r := f.result
	if len(f.touched) > 0 {
		r.Meta = &tool.ResultMeta{TouchedPaths: f.touched}
	}
	return r, nil
}

func allowAllPolicy(names ...string) policy.Policy {
	return policy.Policy{Safety: policy.Safety{AllowedTools: names}}
}

func TestExecuteRejectsDisallowedTool(t *testing.T) {
	reg := tool.NewRegistry()
	reg.Register(&fakeTool{name: "tool_write_file", result: tool.Result{OK: true}})
	ex := executor.New(reg, nil)
	state := agentstate.New()

	result, err := ex.Execute(context.Background(), executor.Call{Name: "tool_write_file"}, &tool.Memory{}, state, allowAllPolicy("tool_other"))

	require.Error(t, err)
	require.False(t, result.OK)
	// A disallowed-tool call is absorbed into task-failure evidence
	// (§7): it must not itself end the run.
	require.NotEqual(t, agentstate.StatusFailed, state.Status)
	require.NotNil(t, state.LastError)
}

func TestExecuteRejectsUnregisteredTool(t *testing.T) {
	reg := tool.NewRegistry()
	ex := executor.New(reg, nil)
	state := agentstate.New()

	_, err := ex.Execute(context.Background(), executor.Call{Name: "tool_ghost"}, &tool.Memory{}, state, allowAllPolicy("tool_ghost"))
	require.Error(t, err)
}

func TestExecuteMergesTouchedPaths(t *testing.T) {
	reg := tool.NewRegistry()
	reg.Register(&fakeTool{name: "tool_write_file", result: tool.Result{OK: true}, touched: []string{"a.txt"}})
	ex := executor.New(reg, nil)
	state := agentstate.New()

	result, err := ex.Execute(context.Background(), executor.Call{Name: "tool_write_file"}, &tool.Memory{}, state, allowAllPolicy("tool_write_file"))

	require.NoError(t, err)
	require.True(t, result.OK)
	require.Equal(t, []string{"a.txt"}, state.TouchedFiles)
	require.Equal(t, []string{"a.txt"}, state.PatchPaths)
}

func TestExecuteHumanReviewRejectionFailsCall(t *testing.T) {
	reg := tool.NewRegistry()
	reg.Register(&fakeTool{name: "tool_write_file", result: tool.Result{OK: true}, touched: []string{"a.txt"}})
	ex := executor.New(reg, func(ctx context.Context, newPaths []string) executor.HumanReviewDecision {
		return executor.HumanReviewDecision{Approved: false, Reason: "not now"}
	})
	state := agentstate.New()

	result, err := ex.Execute(context.Background(), executor.Call{Name: "tool_write_file"}, &tool.Memory{}, state, allowAllPolicy("tool_write_file"))

	require.Error(t, err)
	require.False(t, result.OK)
	require.Contains(t, err.Error(), "review rejected")
}

func TestExecuteSurfacesToolFailure(t *testing.T) {
	reg := tool.NewRegistry()
	reg.Register(&fakeTool{name: "tool_write_file", result: tool.Result{OK: false, Error: &tool.ErrorDetail{Message: "disk full"}}})
	ex := executor.New(reg, nil)
	state := agentstate.New()

	result, err := ex.Execute(context.Background(), executor.Call{Name: "tool_write_file"}, &tool.Memory{}, state, allowAllPolicy("tool_write_file"))

	require.NoError(t, err)
	require.False(t, result.OK)
	// An ordinary tool failure is task-failure evidence, not a
	// run-terminal condition (§7).
	require.NotEqual(t, agentstate.StatusFailed, state.Status)
	require.NotNil(t, state.LastError)
}

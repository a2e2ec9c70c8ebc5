// Package criteria implements the Criteria Evaluator (§4.3): runs
// command/file/tool-result checks for a task's success criteria,
// collecting all failures rather than short-circuiting on the first.
package criteria

import (
	"context"
	"fmt"

	"github.com/odvcencio/cadence/pkg/agentstate"
	"github.com/odvcencio/cadence/pkg/executor"
	"github.com/odvcencio/cadence/pkg/plan"
	"github.com/odvcencio/cadence/pkg/policy"
	"github.com/odvcencio/cadence/pkg/tool"
)

// ToolResult is one entry from the current turn's issued tool calls,
// as observed by the criteria evaluator.
type ToolResult struct {
	Name string
	OK   bool
}

// Failure describes one violated criterion.
type Failure struct {
	Criterion plan.SuccessCriterion
	Reason    string
}

// ToolAuditEntry records a synthesized check-tool invocation for the
// audit trail.
type ToolAuditEntry struct {
	ToolName string
	OK       bool
}

// Report is the outcome of evaluating a task's success criteria.
type Report struct {
	OK         bool
	Failures   []Failure
	ToolAudit  []ToolAuditEntry
}

// Evaluator runs success criteria for a task, synthesizing check-tool
// calls for anything beyond tool_result and routing them through the
// same Executor used for ordinary actions, so policy/safety apply
// uniformly.
type Evaluator struct {
	Executor *executor.Executor
}

// New constructs an Evaluator bound to the executor it should route
// synthesized checks through.
func New(exec *executor.Executor) *Evaluator {
	return &Evaluator{Executor: exec}
}

// Evaluate runs every criterion on task and collects all failures.
func (e *Evaluator) Evaluate(ctx context.Context, task plan.Task, turnResults []ToolResult, mem *tool.Memory, state *agentstate.AgentState, pol policy.Policy) Report {
	var report Report
	report.OK = true

	for _, c := range task.SuccessCriteria {
		var ok bool
		var reason string
		var audit *ToolAuditEntry

		switch c.Kind {
		case plan.CriterionToolResult:
			ok, reason = evaluateToolResult(c, turnResults)
		case plan.CriterionCommand:
			ok, audit = e.runCheck(ctx, "tool_check_command", map[string]any{
				"cmd": c.Cmd, "args": c.Args, "cwd": c.Cwd, "expect_exit_code": c.ExpectExitCode,
			}, mem, state, pol)
			if !ok {
				reason = fmt.Sprintf("command %q did not exit with code %d", c.Cmd, c.ExpectExitCode)
			}
		case plan.CriterionFileExists:
			ok, audit = e.runCheck(ctx, "tool_check_file_exists", map[string]any{"path": c.Path}, mem, state, pol)
			if !ok {
				reason = fmt.Sprintf("file %q does not exist", c.Path)
			}
		case plan.CriterionFileContains:
			ok, audit = e.runCheck(ctx, "tool_check_file_contains", map[string]any{"path": c.Path, "contains": c.Contains}, mem, state, pol)
			if !ok {
				reason = fmt.Sprintf("file %q does not contain expected content", c.Path)
			}
		default:
			ok = false
			reason = fmt.Sprintf("unknown criterion kind %q", c.Kind)
		}

		if audit != nil {
			report.ToolAudit = append(report.ToolAudit, *audit)
		}
		if !ok {
			report.OK = false
			report.Failures = append(report.Failures, Failure{Criterion: c, Reason: reason})
		}
	}

	return report
}

func evaluateToolResult(c plan.SuccessCriterion, turnResults []ToolResult) (bool, string) {
	for _, r := range turnResults {
		if r.Name == c.ToolName {
			if r.OK == c.ExpectedOK {
				return true, ""
			}
			return false, fmt.Sprintf("tool %q returned ok=%v, expected %v", c.ToolName, r.OK, c.ExpectedOK)
		}
	}
	return false, fmt.Sprintf("tool %q was not invoked this turn", c.ToolName)
}

func (e *Evaluator) runCheck(ctx context.Context, checkTool string, input map[string]any, mem *tool.Memory, state *agentstate.AgentState, pol policy.Policy) (bool, *ToolAuditEntry) {
	result, err := e.Executor.Execute(ctx, executor.Call{Name: checkTool, Input: input}, mem, state, pol)
	audit := &ToolAuditEntry{ToolName: checkTool, OK: result.OK}
	if err != nil {
		return false, audit
	}
	return result.OK, audit
}

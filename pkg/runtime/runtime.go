// Package runtime implements the Turn Loop (§4.7): the outer driver
// that proposes the initial plan, then for each turn selects the next
// ready task, executes it against its success criteria with a bounded
// number of retries, and invokes the Replanner once those retries are
// exhausted. It is the single owner of AgentState's phase transitions;
// every other field is written only by the collaborator §5 names.
package runtime

import (
	"context"
	"fmt"
	"io"

	"github.com/odvcencio/cadence/pkg/agentlog"
	"github.com/odvcencio/cadence/pkg/agentstate"
	"github.com/odvcencio/cadence/pkg/agenterrors"
	"github.com/odvcencio/cadence/pkg/audit"
	"github.com/odvcencio/cadence/pkg/bus"
	"github.com/odvcencio/cadence/pkg/criteria"
	"github.com/odvcencio/cadence/pkg/executor"
	"github.com/odvcencio/cadence/pkg/plan"
	"github.com/odvcencio/cadence/pkg/planner"
	"github.com/odvcencio/cadence/pkg/policy"
	"github.com/odvcencio/cadence/pkg/replanner"
	"github.com/odvcencio/cadence/pkg/tool"
)

// Summary is the run's single-entry-point result (§6): ok/summary text,
// patch paths observed, and the terminal AgentState for inspection.
type Summary struct {
	OK         bool
	Summary    string
	PatchPaths []string
	State      *agentstate.AgentState
}

// Runtime wires the planner, executor, criteria evaluator, and
// replanner collaborators into the turn loop. MaxTurns and
// MaxToolCallsPerTurn are runtime-level bounds distinct from
// policy.Budgets, which the policy/gate subsystem owns.
type Runtime struct {
	Planner   *planner.Client
	Executor  *executor.Executor
	Criteria  *criteria.Evaluator
	Replanner *replanner.Replanner
	Audit     *audit.Collector

	ToolIndex []planner.ToolIndexEntry

	MaxTurns            int
	MaxToolCallsPerTurn int

	// AuditOut, if non-nil, receives the flushed audit document at run
	// termination (§4.8; every path, including failed, flushes exactly
	// once).
	AuditOut io.Writer

	// RunID identifies this run for logging and bus subjects. Generated
	// if left empty.
	RunID string

	// Logger, if non-nil, receives structured events for the major
	// transitions of the turn loop (plan proposed, task completed,
	// replan outcome). Purely observational — never consulted for
	// control flow.
	Logger *agentlog.Logger

	// Bus, if non-nil, is published to with fire-and-forget turn/
	// replan/audit-flush notifications for external observers (§9's
	// event side channel, distinct from the in-memory audit trail).
	Bus bus.Bus
}

// New constructs a Runtime from its collaborators.
func New(planner *planner.Client, exec *executor.Executor, crit *criteria.Evaluator, replan *replanner.Replanner, collector *audit.Collector) *Runtime {
	return &Runtime{
		Planner:             planner,
		Executor:            exec,
		Criteria:            crit,
		Replanner:           replan,
		Audit:               collector,
		MaxTurns:            50,
		MaxToolCallsPerTurn: 10,
	}
}

// publish is a best-effort bus notification; publish failures never
// affect the run (§9: the bus is observability only).
func (rt *Runtime) publish(ctx context.Context, subjectFmt string, data []byte) {
	if rt.Bus == nil {
		return
	}
	_ = rt.Bus.Publish(ctx, fmt.Sprintf(subjectFmt, rt.RunID), data)
}

func (rt *Runtime) log(category agentlog.Category, message string, details map[string]any) {
	if rt.Logger == nil {
		return
	}
	_ = rt.Logger.Info(category, message, details)
}

// Run drives a single end-to-end run for goal under pol.
func (rt *Runtime) Run(ctx context.Context, goal string, pol policy.Policy, mem *tool.Memory) Summary {
	if rt.RunID == "" {
		rt.RunID = audit.NextTurnID()
	}
	state := agentstate.New()

	if err := rt.proposeInitialPlan(ctx, state, goal, pol); err != nil {
		return rt.finish(state)
	}
	state.Status = agentstate.StatusExecuting

	for turn := 1; turn <= rt.MaxTurns; turn++ {
		state.SetUsedTurn(turn)
		rt.publish(ctx, bus.SubjectTurn, []byte(fmt.Sprintf(`{"turn":%d,"status":%q}`, turn, state.Status)))

		task, ok := selectNextReady(state.PlanData, state.Completed)
		if !ok {
			if len(state.Completed) == len(state.PlanData.Tasks) {
				state.Status = agentstate.StatusDone
			} else {
				state.SetStateError(string(agenterrors.Unknown), "dependency cycle or unreachable task")
			}
			break
		}

		succeeded := rt.executeWithRetries(ctx, state, task, pol, mem, turn)
		if state.Status == agentstate.StatusFailed {
			break
		}
		if succeeded {
			continue
		}

		if err := rt.Replanner.Replan(ctx, state, pol, state.FailureHistory[task.ID], summarizeState(state)); err != nil {
			rt.Audit.RecordTurn(audit.TurnRecord{
				ID:   audit.NextTurnID(),
				Turn: turn,
				Note: fmt.Sprintf("plan-change:%s", err.Error()),
			})
			rt.log(agentlog.CategoryReplan, "replan failed", map[string]any{"task_id": task.ID, "error": err.Error()})
			rt.publish(ctx, bus.SubjectReplan, []byte(fmt.Sprintf(`{"task_id":%q,"outcome":"denied"}`, task.ID)))
			break
		}
		rt.Audit.RecordTurn(audit.TurnRecord{
			ID:   audit.NextTurnID(),
			Turn: turn,
			Note: "plan-change:approved",
		})
		rt.log(agentlog.CategoryReplan, "replan approved", map[string]any{"task_id": task.ID, "plan_version": state.PlanVersion})
		rt.publish(ctx, bus.SubjectReplan, []byte(fmt.Sprintf(`{"task_id":%q,"outcome":"approved","plan_version":%d}`, task.ID, state.PlanVersion)))
	}

	if state.Status != agentstate.StatusDone && state.Status != agentstate.StatusFailed {
		state.SetStateError(string(agenterrors.Config), "max turns reached")
	}

	return rt.finish(state)
}

func (rt *Runtime) proposeInitialPlan(ctx context.Context, state *agentstate.AgentState, goal string, pol policy.Policy) error {
	p, callAudit, err := rt.Planner.ProposePlan(ctx, goal, rt.ToolIndex, summarizeState(state), pol, "")
	rt.Audit.RecordTurn(audit.TurnRecord{
		ID:                     audit.NextTurnID(),
		Turn:                   0,
		Note:                   "initial plan",
		PreviousResponseIDSent: callAudit.PreviousResponseIDSent,
		ResponseIDReceived:     callAudit.ResponseID,
	})
	if err != nil {
		state.SetStateError(string(agenterrors.Config), fmt.Sprintf("initial planning failed: %s", err.Error()))
		return err
	}

	state.SetInitialPlan(p)
	state.AppendPlanHistory(agentstate.PlanHistoryEntry{Kind: "initial", Plan: p})
	rt.log(agentlog.CategoryPlan, "initial plan proposed", map[string]any{"task_count": len(p.Tasks)})
	return nil
}

// executeWithRetries runs §4.7 step 4: up to max_retries_per_task
// attempts of propose → act → evaluate for a single selected task.
// Returns true iff the task's criteria passed within its retry budget.
func (rt *Runtime) executeWithRetries(ctx context.Context, state *agentstate.AgentState, task plan.Task, pol policy.Policy, mem *tool.Memory, turn int) bool {
	maxRetries := pol.Budgets.MaxRetriesPerTask
	if maxRetries <= 0 {
		maxRetries = 1
	}

	for attempt := 1; attempt <= maxRetries; attempt++ {
		recentFailures := state.FailureHistory[task.ID]
		actionPlan, callAudit, err := rt.Planner.ProposeTaskActionPlan(ctx, task, summarizeState(state), summarizeState(state), rt.ToolIndex, recentFailures)
		if err != nil {
			state.RecordFailure(task.ID, "task action planning failed: "+err.Error())
			rt.Audit.RecordTurn(audit.TurnRecord{
				ID:   audit.NextTurnID(),
				Turn: turn,
				Note: fmt.Sprintf("task_action_plan:%s", task.ID),
			})
			continue
		}

		actions := truncateActions(actionPlan.Actions, minInt(rt.MaxToolCallsPerTurn, pol.Budgets.MaxActionsPerTask))

		var turnResults []criteria.ToolResult
		var toolAudit []audit.ToolResultRecord
		for _, a := range actions {
			result, execErr := rt.Executor.Execute(ctx, executor.Call{Name: a.Name, Input: a.Input}, mem, state, pol)
			turnResults = append(turnResults, criteria.ToolResult{Name: a.Name, OK: result.OK})
			rec := audit.ToolResultRecord{Name: a.Name, OK: result.OK, TouchedPaths: result.TouchedPaths}
			if execErr != nil {
				rec.Error = execErr.Error()
			} else if !result.OK {
				rec.Error = result.Note
			}
			toolAudit = append(toolAudit, rec)

			if !result.OK && a.OnFail != planner.OnFailContinue {
				break
			}
			if state.Status == agentstate.StatusFailed {
				break
			}
		}

		rt.Audit.RecordTurn(audit.TurnRecord{
			ID:                     audit.NextTurnID(),
			Turn:                   turn,
			RawLMText:              actionPlan.Rationale,
			PreviousResponseIDSent: callAudit.PreviousResponseIDSent,
			ResponseIDReceived:     callAudit.ResponseID,
			Note:                   fmt.Sprintf("task_action_plan:%s", task.ID),
			ToolResults:            toolAudit,
		})

		if state.Status == agentstate.StatusFailed {
			return false
		}

		report := rt.Criteria.Evaluate(ctx, task, turnResults, mem, state, pol)
		if report.OK {
			state.MarkCompleted(task.ID)
			rt.log(agentlog.CategoryCriteria, "task completed", map[string]any{"task_id": task.ID, "attempt": attempt})
			return true
		}

		for _, f := range report.Failures {
			state.RecordFailure(task.ID, f.Reason)
		}
		rt.log(agentlog.CategoryCriteria, "task criteria failed", map[string]any{"task_id": task.ID, "attempt": attempt, "failures": len(report.Failures)})
	}

	return false
}

// selectNextReady returns the first task (in plan order) not yet
// completed whose dependencies are all satisfied.
func selectNextReady(p *plan.Plan, completed map[string]bool) (plan.Task, bool) {
	for _, t := range p.Tasks {
		if completed[t.ID] {
			continue
		}
		if dependenciesSatisfied(t, completed) {
			return t, true
		}
	}
	return plan.Task{}, false
}

func dependenciesSatisfied(t plan.Task, completed map[string]bool) bool {
	for _, dep := range t.Dependencies {
		if !completed[dep] {
			return false
		}
	}
	return true
}

func truncateActions(actions []planner.Action, max int) []planner.Action {
	if max <= 0 || len(actions) <= max {
		return actions
	}
	return actions[:max]
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func summarizeState(state *agentstate.AgentState) string {
	completedCount := len(state.Completed)
	totalTasks := 0
	if state.PlanData != nil {
		totalTasks = len(state.PlanData.Tasks)
	}
	return fmt.Sprintf("status=%s plan_version=%d completed=%d/%d", state.Status, state.PlanVersion, completedCount, totalTasks)
}

func (rt *Runtime) finish(state *agentstate.AgentState) Summary {
	summaryText := "Agent completed successfully"
	ok := state.Status == agentstate.StatusDone
	if !ok && state.LastError != nil {
		summaryText = state.LastError.Message
	}

	if rt.AuditOut != nil {
		final := audit.FinalRecord{
			Status:       string(state.Status),
			PatchPaths:   state.PatchPaths,
			TouchedFiles: state.TouchedFiles,
			Budgets:      state.BudgetsUsed,
		}
		if state.LastError != nil {
			final.LastError = state.LastError
		}
		_ = rt.Audit.Flush(rt.AuditOut, final)
		rt.publish(context.Background(), bus.SubjectAuditFlush, []byte(fmt.Sprintf(`{"status":%q}`, state.Status)))
	}
	rt.log(agentlog.CategoryAudit, "run finished", map[string]any{"status": string(state.Status)})

	return Summary{
		OK:         ok,
		Summary:    summaryText,
		PatchPaths: state.PatchPaths,
		State:      state,
	}
}

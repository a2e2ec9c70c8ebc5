// Package replanner implements the Replanner (§4.6): propose a plan
// change, gate it, optionally route it through human review, and apply
// the resulting patch.
package replanner

import (
	"context"
	"fmt"

	"github.com/odvcencio/cadence/pkg/agentstate"
	"github.com/odvcencio/cadence/pkg/agenterrors"
	"github.com/odvcencio/cadence/pkg/plan"
	"github.com/odvcencio/cadence/pkg/planner"
	"github.com/odvcencio/cadence/pkg/policy"
)

// ReviewDecision is the structured outcome of a human plan-change
// review (§4.6 step 6).
type ReviewDecision struct {
	Status   policy.GateStatus // approved | denied
	Reason   string
	Guidance string
}

// ReviewFunc is the pluggable human-review callback. The default (nil)
// behaves like the teacher's safeguards: reject with guidance rather
// than silently approving an escalated change.
type ReviewFunc func(ctx context.Context, req policy.PlanChangeRequest, gate policy.GateResult) ReviewDecision

// Replanner drives the propose/gate/review/apply sequence.
type Replanner struct {
	Planner *planner.Client
	Gate    *policy.Gate
	Review  ReviewFunc
}

// New constructs a Replanner.
func New(p *planner.Client, gate *policy.Gate, review ReviewFunc) *Replanner {
	return &Replanner{Planner: p, Gate: gate, Review: review}
}

// Replan runs the full §4.6 sequence. On success it applies the patch
// to state (bumping plan_version) and returns nil. On any terminal
// outcome it sets state.Status = failed via SetStateError and returns
// the terminal error.
func (r *Replanner) Replan(ctx context.Context, state *agentstate.AgentState, pol policy.Policy, failureEvidence []string, stateSummary string) error {
	// Step 1: propose.
	req, _, err := r.Planner.ProposePlanChange(ctx, state.PlanData, pol, failureEvidence, stateSummary)
	if err != nil {
		wrapped := agenterrors.Wrap(err, agenterrors.Config, "plan change proposal failed")
		state.SetStateError(string(agenterrors.Config), wrapped.Error())
		return wrapped
	}

	// Step 2: record the raw request.
	state.AppendPlanHistory(agentstate.PlanHistoryEntry{
		Kind:         "change_request",
		ChangeReason: req.Reason,
	})

	// Step 3: gate.
	currentTaskCount := len(state.PlanData.Tasks)
	gateResult := r.Gate.Evaluate(*req, pol, currentTaskCount)

	// Step 4: record the gate result.
	state.AppendPlanHistory(agentstate.PlanHistoryEntry{
		Kind:       "change_gate_result",
		GateStatus: string(gateResult.Status),
		GateReason: gateResult.Reason,
		Guidance:   gateResult.Guidance,
	})

	switch gateResult.Status {
	case policy.StatusDenied:
		// Step 5.
		err := agenterrors.New(agenterrors.Config, "Plan change denied: "+gateResult.Reason).WithRemediation(gateResult.Guidance)
		state.SetStateError(string(agenterrors.Config), err.Error())
		return err

	case policy.StatusNeedsUserReview:
		// Step 6.
		decision := r.defaultReviewOrCall(ctx, *req, gateResult)
		state.AppendPlanHistory(agentstate.PlanHistoryEntry{
			Kind:       "change_user_decision",
			Decision:   string(decision.Status),
			GateReason: decision.Reason,
			Guidance:   decision.Guidance,
		})
		switch decision.Status {
		case policy.StatusDenied:
			err := agenterrors.New(agenterrors.Config, "Plan change denied: "+decision.Reason)
			state.SetStateError(string(agenterrors.Config), err.Error())
			return err
		case policy.StatusApproved:
			return r.applyApproved(state, pol, req.Patch)
		default:
			err := agenterrors.New(agenterrors.Config, "invalid review decision")
			state.SetStateError(string(agenterrors.Config), err.Error())
			return err
		}

	case policy.StatusApproved:
		// Step 7.
		return r.applyApproved(state, pol, req.Patch)

	default:
		err := agenterrors.New(agenterrors.Unknown, "unrecognized gate status")
		state.SetStateError(string(agenterrors.Unknown), err.Error())
		return err
	}
}

func (r *Replanner) defaultReviewOrCall(ctx context.Context, req policy.PlanChangeRequest, gate policy.GateResult) ReviewDecision {
	if r.Review != nil {
		return r.Review(ctx, req, gate)
	}
	return ReviewDecision{Status: policy.StatusDenied, Reason: "no review callback configured", Guidance: gate.Guidance}
}

func (r *Replanner) applyApproved(state *agentstate.AgentState, pol policy.Policy, ops []plan.PatchOp) error {
	if state.BudgetsUsed.UsedReplans >= pol.Budgets.MaxReplans {
		err := agenterrors.New(agenterrors.Config, fmt.Sprintf("Replan budget exceeded: %d >= %d", state.BudgetsUsed.UsedReplans, pol.Budgets.MaxReplans))
		state.SetStateError(string(agenterrors.Config), err.Error())
		return err
	}

	next, err := plan.Apply(state.PlanData, ops)
	if err != nil {
		wrapped := agenterrors.Wrap(err, agenterrors.Config, "patch rejected")
		state.SetStateError(string(agenterrors.Config), wrapped.Error())
		return wrapped
	}

	state.ApplyPlan(next)
	state.BudgetsUsed.UsedReplans++
	return nil
}

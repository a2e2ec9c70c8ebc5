// Package policy implements the deterministic Policy & Gate: a pure
// function from a proposed plan change and the active policy to an
// approve/deny/escalate decision.
package policy

import "github.com/odvcencio/cadence/pkg/plan"

// Budgets bounds the run.
type Budgets struct {
	MaxSteps          int `json:"max_steps"`
	MaxActionsPerTask int `json:"max_actions_per_task"`
	MaxRetriesPerTask int `json:"max_retries_per_task"`
	MaxReplans        int `json:"max_replans"`
}

// Acceptance describes whether the plan's acceptance criteria are
// locked against change.
type Acceptance struct {
	Locked   bool     `json:"locked"`
	Criteria []string `json:"criteria,omitempty"`
}

// Safety names the tools and shell commands a run is permitted to use.
type Safety struct {
	AllowedTools    []string `json:"allowed_tools"`
	AllowedCommands []string `json:"allowed_commands"`
}

// Policy is the active configuration the gate evaluates requests
// against.
type Policy struct {
	TechStack                            map[string]string `json:"tech_stack"`
	TechStackLocked                       bool              `json:"tech_stack_locked"`
	Acceptance                           Acceptance        `json:"acceptance"`
	Safety                               Safety            `json:"safety"`
	Budgets                              Budgets           `json:"budgets"`
	UserExplicitlyAllowedRelaxAcceptance bool              `json:"user_explicitly_allowed_relax_acceptance"`
}

// AllowsTool reports whether name is in the policy's allowed tool list.
func (p Policy) AllowsTool(name string) bool {
	for _, t := range p.Safety.AllowedTools {
		if t == name {
			return true
		}
	}
	return false
}

// ChangeType names the kind of plan change being proposed.
type ChangeType string

const (
	ChangeReorderTasks    ChangeType = "reorder_tasks"
	ChangeAddTask         ChangeType = "add_task"
	ChangeRemoveTask      ChangeType = "remove_task"
	ChangeEditTask        ChangeType = "edit_task"
	ChangeScopeReduce     ChangeType = "scope_reduce"
	ChangeScopeExpand     ChangeType = "scope_expand"
	ChangeReplaceTech     ChangeType = "replace_tech"
	ChangeRelaxAcceptance ChangeType = "relax_acceptance"
)

// Impact estimates the effect of a proposed change.
type Impact struct {
	StepsDelta int    `json:"steps_delta"`
	Risk       string `json:"risk"`
}

// PlanChangeRequest is a proposed plan change (§3, v2): the Replanner
// produces these, the Gate evaluates them, and an approved request's
// Patch is applied by pkg/plan.Apply.
type PlanChangeRequest struct {
	Reason         string         `json:"reason"`
	ChangeType     ChangeType     `json:"change_type"`
	Evidence       []string       `json:"evidence"`
	Impact         Impact         `json:"impact"`
	RequestedTools []string       `json:"requested_tools"`
	Patch          []plan.PatchOp `json:"patch"`
}

// hasOp reports whether the patch contains an op of the given kind.
func (r PlanChangeRequest) hasOp(kind plan.PatchOpKind) bool {
	for _, op := range r.Patch {
		if op.Kind == kind {
			return true
		}
	}
	return false
}

// GateStatus is the outcome of a gate evaluation.
type GateStatus string

const (
	StatusApproved        GateStatus = "approved"
	StatusDenied          GateStatus = "denied"
	StatusNeedsUserReview GateStatus = "needs_user_review"
)

// GateResult is the deterministic decision on a plan-change request.
type GateResult struct {
	Status           GateStatus `json:"status"`
	Reason           string     `json:"reason"`
	Guidance         string     `json:"guidance,omitempty"`
	RequiredEvidence []string   `json:"required_evidence,omitempty"`
}

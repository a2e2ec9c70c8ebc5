package policy

import "regexp"

// migrationImpactPattern grounds the §4.2 rule-9 migration-impact check
// in the same case-insensitive regex idiom the teacher's risk detector
// uses for its safeguard patterns. The stems match anywhere in the
// text, including inside longer words ("migration", "compatibility").
var migrationImpactPattern = regexp.MustCompile(`(?i)(migrat|impact|compat|risk)`)

// Gate evaluates plan-change requests against a Policy. It is a pure
// function of its inputs: the same (request, policy, currentTaskCount)
// always yields the same GateResult.
type Gate struct{}

// NewGate returns a ready-to-use Gate. Gate carries no state; the zero
// value works too.
func NewGate() *Gate {
	return &Gate{}
}

// Evaluate runs the deterministic, ordered rule cascade of §4.2.
func (g *Gate) Evaluate(req PlanChangeRequest, pol Policy, currentTaskCount int) GateResult {
	// Rule 1: disallowed tools.
	for _, tool := range req.RequestedTools {
		if !pol.AllowsTool(tool) {
			return GateResult{
				Status: StatusDenied,
				Reason: "disallowed tools: " + tool,
			}
		}
	}

	// Rule 2: acceptance lock.
	if req.hasOp("edit_acceptance") && !pol.UserExplicitlyAllowedRelaxAcceptance {
		return GateResult{Status: StatusDenied, Reason: "acceptance locked"}
	}

	// Rule 3: tech stack lock.
	if req.hasOp("edit_tech_stack") && pol.TechStackLocked {
		return GateResult{Status: StatusDenied, Reason: "tech stack locked"}
	}

	// Rule 4: explicit relax_acceptance change type.
	if req.ChangeType == ChangeRelaxAcceptance && !pol.UserExplicitlyAllowedRelaxAcceptance {
		return GateResult{Status: StatusDenied, Reason: "acceptance locked"}
	}

	switch req.ChangeType {
	case ChangeReorderTasks:
		// Rule 5.
		if req.hasOp("edit_acceptance") || req.hasOp("edit_tech_stack") {
			return GateResult{Status: StatusDenied, Reason: "reorder_tasks must not touch acceptance or tech stack"}
		}
		return GateResult{Status: StatusApproved, Reason: "reorder within existing scope"}

	case ChangeScopeReduce:
		// Rule 6.
		return GateResult{Status: StatusApproved, Reason: "scope reduction"}

	case ChangeAddTask:
		// Rule 7.
		stepsDelta := req.Impact.StepsDelta
		if stepsDelta < 0 {
			stepsDelta = 0
		}
		withinBudget := currentTaskCount+stepsDelta <= pol.Budgets.MaxSteps
		if withinBudget && hasDebugSignal(req) {
			return GateResult{Status: StatusApproved, Reason: "debug-style task addition within step budget"}
		}
		return GateResult{
			Status:           StatusNeedsUserReview,
			Reason:           "task addition needs review",
			RequiredEvidence: []string{"failure evidence", "step impact estimate"},
		}

	case ChangeScopeExpand:
		// Rule 8.
		return GateResult{
			Status:           StatusNeedsUserReview,
			Reason:           "scope expansion needs review",
			RequiredEvidence: []string{"impact estimate", "approval note"},
		}

	case ChangeReplaceTech:
		// Rule 9.
		hasEvidence := len(req.Evidence) >= 2
		hasMigrationHint := migrationImpactPattern.MatchString(req.Impact.Risk)
		if !hasEvidence || !hasMigrationHint {
			return GateResult{
				Status:           StatusNeedsUserReview,
				Reason:           "tech replacement lacks sufficient evidence or migration-impact assessment",
				RequiredEvidence: []string{"two failures", "migration impact"},
			}
		}
		// Satisfied the evidence bar, but tech replacement always
		// escalates for a human approval note regardless.
		return GateResult{
			Status:           StatusNeedsUserReview,
			Reason:           "tech replacement always requires a human approval note",
			RequiredEvidence: []string{"approval note"},
		}

	case ChangeRemoveTask, ChangeEditTask:
		// Rule 10.
		return GateResult{Status: StatusApproved, Reason: "structural edit permitted by default"}

	default:
		// Rule 11.
		return GateResult{Status: StatusDenied, Reason: "unknown change type"}
	}
}

// hasDebugSignal reports whether the request's reason text or any
// added task's type signals a narrow, auto-approvable debug/build/test
// addition.
func hasDebugSignal(req PlanChangeRequest) bool {
	if debugReasonPattern.MatchString(req.Reason) {
		return true
	}
	for _, op := range req.Patch {
		if op.Kind != "add_task" || op.Task == nil {
			continue
		}
		switch op.Task.TaskType {
		case "debug", "test", "build", "repair", "verify":
			return true
		}
	}
	return false
}

var debugReasonPattern = regexp.MustCompile(`(?i)(debug|test|build|repair|verify)`)

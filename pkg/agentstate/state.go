// Package agentstate defines AgentState, the single mutable record a
// run's components share by reference. Ownership is split by field, not
// by lock: the runtime owns the record and phase transitions; the
// executor is the only writer of tool-result and touched-path fields;
// the replanner is the only writer of plan_data, plan_version, and
// plan_history (§3, §5).
package agentstate

import "github.com/odvcencio/cadence/pkg/plan"

// Status is the run's lifecycle phase. The deprecated "phase" field
// some source variants carry alongside status is intentionally not
// modeled here (§9 Open Question): Status is the single authoritative
// field.
type Status string

const (
	StatusPlanning    Status = "planning"
	StatusExecuting   Status = "executing"
	StatusReviewing   Status = "reviewing"
	StatusReplanning  Status = "replanning"
	StatusDone        Status = "done"
	StatusFailed      Status = "failed"
)

// LastError is the terminal or most recent error observed.
type LastError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// PlanHistoryEntry is one append-only record of the plan's evolution.
// The Kind field names which of the four record shapes this entry
// carries; callers switch on it to know which optional field is
// populated.
type PlanHistoryEntry struct {
	Kind string `json:"kind"` // initial | change_request | change_gate_result | change_user_decision

	Plan         *plan.Plan `json:"plan,omitempty"`
	ChangeReason string     `json:"change_reason,omitempty"`
	GateStatus   string     `json:"gate_status,omitempty"`
	GateReason   string     `json:"gate_reason,omitempty"`
	Decision     string     `json:"decision,omitempty"`
	Guidance     string     `json:"guidance,omitempty"`
}

// BudgetsUsed tracks consumption against policy.Budgets.
type BudgetsUsed struct {
	UsedTurns    int
	UsedReplans  int
	RetriesUsed  map[string]int // task id -> retries consumed
}

// AgentState is the run's single mutable record.
type AgentState struct {
	Status Status

	PlanData    *plan.Plan
	PlanVersion int // monotone, starts at 1

	Completed map[string]bool

	// FailureHistory holds, per task id, every failure message recorded
	// for that task (criteria failures and task-action-planning
	// failures), in the order recorded across all attempts.
	FailureHistory map[string][]string

	PatchPaths   []string
	TouchedFiles []string // deduped, append-ordered

	LastResponseID string

	TruncationFlag      bool
	CompactionThreshold int

	BudgetsUsed BudgetsUsed

	LastError *LastError

	PlanHistory []PlanHistoryEntry
}

// New creates a freshly initialized AgentState for a run start.
func New() *AgentState {
	return &AgentState{
		Status:         StatusPlanning,
		PlanVersion:    0,
		Completed:      make(map[string]bool),
		FailureHistory: make(map[string][]string),
		BudgetsUsed:    BudgetsUsed{RetriesUsed: make(map[string]int)},
	}
}

// SetStateError is the named helper through which any component
// transitions the run to failed with a recorded cause (§9: mutate only
// through named helpers to keep write sites greppable). Use this only
// for conditions that are terminal for the whole run (gate/review
// denial, budget exhaustion, a dependency cycle) — per §7, an ordinary
// tool failure within a task is absorbed into task-failure evidence and
// must not itself end the run; record it with SetLastError instead.
func (s *AgentState) SetStateError(kind, message string) {
	s.LastError = &LastError{Kind: kind, Message: message}
	s.Status = StatusFailed
}

// SetLastError records the most recent error without transitioning the
// run's Status. The executor uses this for tool-level failures (§4.4
// step 7, §7): they become task-failure evidence for the retry/replan
// loop, not a run-terminal condition.
func (s *AgentState) SetLastError(kind, message string) {
	s.LastError = &LastError{Kind: kind, Message: message}
}

// SetUsedTurn records that turn n has been consumed.
func (s *AgentState) SetUsedTurn(n int) {
	s.BudgetsUsed.UsedTurns = n
}

// RecordFailure appends a criteria failure under taskID.
func (s *AgentState) RecordFailure(taskID string, failure string) {
	s.FailureHistory[taskID] = append(s.FailureHistory[taskID], failure)
}

// MarkCompleted adds taskID to the completed set.
func (s *AgentState) MarkCompleted(taskID string) {
	s.Completed[taskID] = true
}

// MergeTouchedPaths appends newly observed touched paths, deduplicating
// against what has already been recorded, preserving first-seen order.
func (s *AgentState) MergeTouchedPaths(paths []string) (newPaths []string) {
	seen := make(map[string]bool, len(s.TouchedFiles))
	for _, p := range s.TouchedFiles {
		seen[p] = true
	}
	for _, p := range paths {
		if seen[p] {
			continue
		}
		seen[p] = true
		s.TouchedFiles = append(s.TouchedFiles, p)
		newPaths = append(newPaths, p)
	}
	return newPaths
}

// RecordPatchPaths appends newly introduced patch paths.
func (s *AgentState) RecordPatchPaths(paths []string) {
	s.PatchPaths = append(s.PatchPaths, paths...)
}

// AppendPlanHistory appends an entry to the append-only plan history.
func (s *AgentState) AppendPlanHistory(entry PlanHistoryEntry) {
	s.PlanHistory = append(s.PlanHistory, entry)
}

// ApplyPlan replaces PlanData atomically and bumps PlanVersion. Only the
// replanner calls this once a run is underway (§3, §5).
func (s *AgentState) ApplyPlan(p *plan.Plan) {
	s.PlanData = p
	s.PlanVersion++
}

// SetInitialPlan records the run's first plan, before any replan has
// occurred. This is the one exception to "only the replanner writes
// plan_data/plan_version": the runtime calls it exactly once, at the
// start of a run, before handing control to the turn loop.
func (s *AgentState) SetInitialPlan(p *plan.Plan) {
	s.PlanData = p
	s.PlanVersion = 1
}

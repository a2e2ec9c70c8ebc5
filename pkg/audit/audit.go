// Package audit implements the Audit Collector (§4.8): an append-only
// per-turn record plus a single final flush keyed by completion status,
// modeled on the teacher's structured logging Event shape
// (pkg/logging/logger.go) and its bounded in-memory audit log
// (pkg/coordination/security/tool_approval.go).
package audit

import (
	"encoding/json"
	"io"

	"github.com/oklog/ulid/v2"
)

// ToolResultRecord is one tool invocation observed during a turn.
type ToolResultRecord struct {
	Name         string   `json:"name"`
	OK           bool     `json:"ok"`
	Error        string   `json:"error,omitempty"`
	TouchedPaths []string `json:"touched_paths,omitempty"`
}

// TurnRecord is one append-only entry of the run's audit trail (§4.8).
type TurnRecord struct {
	ID                       string             `json:"id"`
	Turn                     int                `json:"turn"`
	RawLMText                string             `json:"raw_lm_text"`
	PreviousResponseIDSent   string             `json:"previous_response_id_sent"`
	ResponseIDReceived       string             `json:"response_id_received"`
	Usage                    any                `json:"usage,omitempty"`
	Note                     string             `json:"note"`
	SubmittedToolCalls       []string           `json:"submitted_tool_calls,omitempty"`
	ToolResults              []ToolResultRecord `json:"tool_results,omitempty"`
}

// FinalRecord is the single record written when a run terminates.
type FinalRecord struct {
	Status        string   `json:"status"` // done | failed
	VerifyHistory []string `json:"verify_history,omitempty"`
	PatchPaths    []string `json:"patch_paths,omitempty"`
	TouchedFiles  []string `json:"touched_files,omitempty"` // last 200
	Budgets       any      `json:"budgets"`
	LastError     any      `json:"last_error,omitempty"`
	Policy        any      `json:"policy"`
	ToolIndex     any      `json:"tool_index"`
}

// Document is the top-level Audit JSON shape (§6).
type Document struct {
	Goal  string      `json:"goal"`
	Turns []TurnRecord `json:"turns"`
	Final FinalRecord  `json:"final"`
}

// Collector accumulates turn records in memory and flushes exactly once
// on termination. It never requires transactional storage (§9).
type Collector struct {
	goal  string
	turns []TurnRecord
}

// New constructs a Collector for a run with the given goal.
func New(goal string) *Collector {
	return &Collector{goal: goal}
}

// NextTurnID mints a ulid for a new turn record, giving callers a
// sortable, unique id without depending on wall-clock comparisons
// elsewhere in the audit trail.
func NextTurnID() string {
	return ulid.Make().String()
}

// RecordTurn appends one turn record. Appends are in call order; the
// collector never reorders or drops entries.
func (c *Collector) RecordTurn(r TurnRecord) {
	c.turns = append(c.turns, r)
}

// lastN returns the last n entries of paths (or all of them if shorter).
func lastN(paths []string, n int) []string {
	if len(paths) <= n {
		return paths
	}
	return paths[len(paths)-n:]
}

// Flush writes the full Document (all observed turns plus the final
// record) as JSON to w. It is safe to call exactly once, at run
// termination, on every path including FAILED (§5).
func (c *Collector) Flush(w io.Writer, final FinalRecord) error {
	final.TouchedFiles = lastN(final.TouchedFiles, 200)
	doc := Document{
		Goal:  c.goal,
		Turns: c.turns,
		Final: final,
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

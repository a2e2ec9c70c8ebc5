// Package plan defines the typed plan/task/criteria schema and the
// validated patch engine that transforms one plan into another.
package plan

import (
	"fmt"
	"slices"
	"time"
)

// TaskType categorizes a task's intent. The planner and the policy gate
// both inspect it (a debug-style task type is part of the add_task
// auto-approval signal).
type TaskType string

const (
	TaskBuild      TaskType = "build"
	TaskCodegen    TaskType = "codegen"
	TaskTest       TaskType = "test"
	TaskDebug      TaskType = "debug"
	TaskVerify     TaskType = "verify"
	TaskRepair     TaskType = "repair"
	TaskDesign     TaskType = "design"
	TaskMaterialize TaskType = "materialize"
	TaskOther      TaskType = "other"
)

// Milestone groups a subset of tasks under a title.
type Milestone struct {
	ID      string   `json:"id"`
	Title   string   `json:"title"`
	TaskIDs []string `json:"task_ids"`
}

// Task is a unit of work with dependencies and machine-checkable success
// criteria.
type Task struct {
	ID              string             `json:"id"`
	Title           string             `json:"title"`
	Description     string             `json:"description"`
	Dependencies    []string           `json:"dependencies"`
	ToolHints       []string           `json:"tool_hints"`
	SuccessCriteria []SuccessCriterion `json:"success_criteria"`
	TaskType        TaskType           `json:"task_type"`
}

// CriterionKind tags the variant held by a SuccessCriterion.
type CriterionKind string

const (
	CriterionCommand      CriterionKind = "command"
	CriterionFileExists   CriterionKind = "file_exists"
	CriterionFileContains CriterionKind = "file_contains"
	CriterionToolResult   CriterionKind = "tool_result"
)

// SuccessCriterion is a tagged union of the four check variants a task
// can declare. Exactly one of the variant fields is meaningful for a
// given Kind; callers must switch on Kind before reading fields.
type SuccessCriterion struct {
	Kind CriterionKind `json:"kind"`

	// command
	Cmd            string   `json:"cmd,omitempty"`
	Args           []string `json:"args,omitempty"`
	Cwd            string   `json:"cwd,omitempty"`
	ExpectExitCode int      `json:"expect_exit_code,omitempty"`

	// file_exists, file_contains
	Path     string `json:"path,omitempty"`
	Contains string `json:"contains,omitempty"`

	// tool_result
	ToolName   string `json:"tool_name,omitempty"`
	ExpectedOK bool   `json:"expected_ok,omitempty"`
}

// Validate rejects a criterion with an unrecognized Kind or a missing
// field required by its Kind, at parse time rather than at evaluation
// time.
func (c SuccessCriterion) Validate() error {
	switch c.Kind {
	case CriterionCommand:
		if c.Cmd == "" {
			return fmt.Errorf("command criterion: cmd is required")
		}
	case CriterionFileExists:
		if c.Path == "" {
			return fmt.Errorf("file_exists criterion: path is required")
		}
	case CriterionFileContains:
		if c.Path == "" || c.Contains == "" {
			return fmt.Errorf("file_contains criterion: path and contains are required")
		}
	case CriterionToolResult:
		if c.ToolName == "" {
			return fmt.Errorf("tool_result criterion: tool_name is required")
		}
	default:
		return fmt.Errorf("unknown criterion kind %q", c.Kind)
	}
	return nil
}

// Plan is the top-level, versioned planning artifact (§3: version "v1").
type Plan struct {
	Version          string      `json:"version"`
	Goal             string      `json:"goal"`
	AcceptanceLocked bool        `json:"acceptance_locked"`
	TechStackLocked  bool        `json:"tech_stack_locked"`
	Milestones       []Milestone `json:"milestones"`
	Tasks            []Task      `json:"tasks"`
	CreatedAt        time.Time   `json:"created_at"`
}

// TaskByID returns the task with the given id, or false if absent.
func (p *Plan) TaskByID(id string) (Task, bool) {
	for _, t := range p.Tasks {
		if t.ID == id {
			return t, true
		}
	}
	return Task{}, false
}

// Validate checks the §3 invariants: unique task ids, dependency
// references resolve, milestone task references resolve, unique
// milestone ids, and at least one task.
func (p *Plan) Validate() error {
	if len(p.Tasks) == 0 {
		return fmt.Errorf("plan has no tasks")
	}

	seenTask := make(map[string]bool, len(p.Tasks))
	for _, t := range p.Tasks {
		if t.ID == "" {
			return fmt.Errorf("task has empty id")
		}
		if seenTask[t.ID] {
			return fmt.Errorf("duplicate task id %q", t.ID)
		}
		seenTask[t.ID] = true
		if len(t.SuccessCriteria) == 0 {
			return fmt.Errorf("task %q has no success criteria", t.ID)
		}
		for _, c := range t.SuccessCriteria {
			if err := c.Validate(); err != nil {
				return fmt.Errorf("task %q: %w", t.ID, err)
			}
		}
	}

	for _, t := range p.Tasks {
		for _, dep := range t.Dependencies {
			if !seenTask[dep] {
				return fmt.Errorf("task %q depends on unknown task %q", t.ID, dep)
			}
		}
	}

	seenMilestone := make(map[string]bool, len(p.Milestones))
	for _, m := range p.Milestones {
		if m.ID == "" {
			return fmt.Errorf("milestone has empty id")
		}
		if seenMilestone[m.ID] {
			return fmt.Errorf("duplicate milestone id %q", m.ID)
		}
		seenMilestone[m.ID] = true
		for _, tid := range m.TaskIDs {
			if !seenTask[tid] {
				return fmt.Errorf("milestone %q references unknown task %q", m.ID, tid)
			}
		}
	}

	return nil
}

// Clone returns a deep-enough copy for copy-on-write patch application:
// the task and milestone slices (and their nested slices) are copied so
// mutating the clone never touches the original plan.
func (p *Plan) Clone() *Plan {
	clone := *p
	clone.Tasks = make([]Task, len(p.Tasks))
	for i, t := range p.Tasks {
		clone.Tasks[i] = t
		clone.Tasks[i].Dependencies = slices.Clone(t.Dependencies)
		clone.Tasks[i].ToolHints = slices.Clone(t.ToolHints)
		clone.Tasks[i].SuccessCriteria = slices.Clone(t.SuccessCriteria)
	}
	clone.Milestones = make([]Milestone, len(p.Milestones))
	for i, m := range p.Milestones {
		clone.Milestones[i] = m
		clone.Milestones[i].TaskIDs = slices.Clone(m.TaskIDs)
	}
	return &clone
}

package plan

import (
	"encoding/json"
	"fmt"
)

// PatchOpKind tags the variant held by a PatchOp.
type PatchOpKind string

const (
	OpAddTask        PatchOpKind = "add_task"
	OpRemoveTask     PatchOpKind = "remove_task"
	OpEditTask       PatchOpKind = "edit_task"
	OpReorder        PatchOpKind = "reorder"
	OpEditAcceptance PatchOpKind = "edit_acceptance"
	OpEditTechStack  PatchOpKind = "edit_tech_stack"
)

// PatchOp is a single step of an ordered patch. Exactly the fields
// relevant to Kind are meaningful.
type PatchOp struct {
	Kind PatchOpKind `json:"kind"`

	// add_task
	Task        *Task  `json:"task,omitempty"`
	AfterTaskID string `json:"after_task_id,omitempty"`

	// remove_task, edit_task, reorder (reuses TaskID)
	TaskID string `json:"task_id,omitempty"`

	// edit_task: merged over the existing task, id is immutable
	Changes map[string]any `json:"changes,omitempty"`
}

// Apply applies ops in order against a copy of plan, then re-validates
// the result. On any failure the original plan is untouched and the
// error names the first offending op.
//
// An empty patch is a valid no-op: it still returns a (cloned,
// equivalent) plan.
func Apply(p *Plan, ops []PatchOp) (*Plan, error) {
	next := p.Clone()

	for i, op := range ops {
		var err error
		switch op.Kind {
		case OpAddTask:
			err = applyAddTask(next, op)
		case OpRemoveTask:
			err = applyRemoveTask(next, op)
		case OpEditTask:
			err = applyEditTask(next, op)
		case OpReorder:
			err = applyReorder(next, op)
		case OpEditAcceptance:
			applyEditAcceptance(next, op)
		case OpEditTechStack:
			applyEditTechStack(next, op)
		default:
			err = fmt.Errorf("unknown patch op kind %q", op.Kind)
		}
		if err != nil {
			return nil, fmt.Errorf("patch op %d (%s): %w", i, op.Kind, err)
		}
	}

	if err := next.Validate(); err != nil {
		return nil, fmt.Errorf("patch produced an invalid plan: %w", err)
	}
	return next, nil
}

func applyAddTask(p *Plan, op PatchOp) error {
	if op.Task == nil {
		return fmt.Errorf("add_task requires a task")
	}
	if _, exists := p.TaskByID(op.Task.ID); exists {
		return fmt.Errorf("task %q already exists", op.Task.ID)
	}

	t := *op.Task
	if op.AfterTaskID == "" {
		p.Tasks = append([]Task{t}, p.Tasks...)
		return nil
	}
	idx := indexOfTask(p.Tasks, op.AfterTaskID)
	if idx < 0 {
		// anchor not found: append at the end rather than silently
		// dropping the task.
		p.Tasks = append(p.Tasks, t)
		return nil
	}
	p.Tasks = insertTaskAfter(p.Tasks, idx, t)
	return nil
}

func applyRemoveTask(p *Plan, op PatchOp) error {
	if op.TaskID == "" {
		return fmt.Errorf("remove_task requires a task_id")
	}
	idx := indexOfTask(p.Tasks, op.TaskID)
	if idx < 0 {
		return fmt.Errorf("task %q does not exist", op.TaskID)
	}
	p.Tasks = append(p.Tasks[:idx], p.Tasks[idx+1:]...)

	for mi := range p.Milestones {
		filtered := p.Milestones[mi].TaskIDs[:0]
		for _, tid := range p.Milestones[mi].TaskIDs {
			if tid != op.TaskID {
				filtered = append(filtered, tid)
			}
		}
		p.Milestones[mi].TaskIDs = filtered
	}
	return nil
}

func applyEditTask(p *Plan, op PatchOp) error {
	if op.TaskID == "" {
		return fmt.Errorf("edit_task requires a task_id")
	}
	idx := indexOfTask(p.Tasks, op.TaskID)
	if idx < 0 {
		return fmt.Errorf("task %q does not exist", op.TaskID)
	}
	mergeTaskChanges(&p.Tasks[idx], op.Changes)
	return nil
}

func applyReorder(p *Plan, op PatchOp) error {
	if op.TaskID == "" {
		return fmt.Errorf("reorder requires a task_id")
	}
	idx := indexOfTask(p.Tasks, op.TaskID)
	if idx < 0 {
		return fmt.Errorf("task %q does not exist", op.TaskID)
	}
	t := p.Tasks[idx]
	p.Tasks = append(p.Tasks[:idx], p.Tasks[idx+1:]...)

	if op.AfterTaskID == "" {
		p.Tasks = append([]Task{t}, p.Tasks...)
		return nil
	}
	anchor := indexOfTask(p.Tasks, op.AfterTaskID)
	if anchor < 0 {
		// unknown anchor: no-op, order unchanged (the task goes back
		// to where it was).
		p.Tasks = append(p.Tasks[:idx], append([]Task{t}, p.Tasks[idx:]...)...)
		return nil
	}
	p.Tasks = insertTaskAfter(p.Tasks, anchor, t)
	return nil
}

func applyEditAcceptance(p *Plan, op PatchOp) {
	if locked, ok := boolChange(op.Changes, "locked"); ok {
		p.AcceptanceLocked = locked
	}
}

func applyEditTechStack(p *Plan, op PatchOp) {
	if locked, ok := boolChange(op.Changes, "locked"); ok {
		p.TechStackLocked = locked
	}
}

func boolChange(changes map[string]any, key string) (bool, bool) {
	v, ok := changes[key]
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

// mergeTaskChanges applies a sparse field update over t, leaving id
// untouched regardless of what changes contains.
func mergeTaskChanges(t *Task, changes map[string]any) {
	if title, ok := changes["title"].(string); ok {
		t.Title = title
	}
	if desc, ok := changes["description"].(string); ok {
		t.Description = desc
	}
	// dependencies, tool_hints, and success_criteria arrive as
	// []interface{}/map[string]any when changes was decoded from JSON
	// (the planner's PlanChangeRequest path), so a direct type
	// assertion to []string/[]SuccessCriterion never matches. Round-trip
	// through json.Marshal/Unmarshal into the typed field instead; this
	// also accepts a caller that already built changes with the typed
	// slices in hand (e.g. hand-constructed test patches).
	if deps, ok := decodeChangeField[[]string](changes, "dependencies"); ok {
		t.Dependencies = deps
	}
	if hints, ok := decodeChangeField[[]string](changes, "tool_hints"); ok {
		t.ToolHints = hints
	}
	if criteria, ok := decodeChangeField[[]SuccessCriterion](changes, "success_criteria"); ok {
		t.SuccessCriteria = criteria
	}
	if taskType, ok := changes["task_type"].(TaskType); ok {
		t.TaskType = taskType
	} else if taskType, ok := changes["task_type"].(string); ok {
		t.TaskType = TaskType(taskType)
	}
}

// decodeChangeField extracts changes[key] into a T, whether it arrived
// as a JSON-decoded []interface{}/map[string]any or was already the
// concrete Go type. Round-tripping through json.Marshal/Unmarshal
// handles both uniformly; it reports false if the key is absent or the
// value doesn't decode into T.
func decodeChangeField[T any](changes map[string]any, key string) (T, bool) {
	var zero T
	raw, present := changes[key]
	if !present {
		return zero, false
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return zero, false
	}
	var out T
	if err := json.Unmarshal(b, &out); err != nil {
		return zero, false
	}
	return out, true
}

func indexOfTask(tasks []Task, id string) int {
	for i, t := range tasks {
		if t.ID == id {
			return i
		}
	}
	return -1
}

func insertTaskAfter(tasks []Task, afterIdx int, t Task) []Task {
	out := make([]Task, 0, len(tasks)+1)
	out = append(out, tasks[:afterIdx+1]...)
	out = append(out, t)
	out = append(out, tasks[afterIdx+1:]...)
	return out
}

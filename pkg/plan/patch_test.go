package plan_test

import (
	"encoding/json"
	"testing"

	"github.com/odvcencio/cadence/pkg/plan"
	"github.com/stretchr/testify/require"
)

func basicPlan() *plan.Plan {
	return &plan.Plan{
		Version: "v1",
		Goal:    "ship feature",
		Tasks: []plan.Task{
			{
				ID:    "t1",
				Title: "first",
				SuccessCriteria: []plan.SuccessCriterion{
					{Kind: plan.CriterionFileExists, Path: "a.txt"},
				},
				TaskType: plan.TaskBuild,
			},
			{
				ID:           "t2",
				Title:        "second",
				Dependencies: []string{"t1"},
				SuccessCriteria: []plan.SuccessCriterion{
					{Kind: plan.CriterionFileExists, Path: "b.txt"},
				},
				TaskType: plan.TaskBuild,
			},
		},
		Milestones: []plan.Milestone{
			{ID: "m1", Title: "milestone one", TaskIDs: []string{"t1", "t2"}},
		},
	}
}

func TestApplyEmptyPatchIsNoOp(t *testing.T) {
	p := basicPlan()
	next, err := plan.Apply(p, nil)
	require.NoError(t, err)
	require.Equal(t, p.Tasks, next.Tasks)
	require.Equal(t, p.Milestones, next.Milestones)
}

func TestApplyAddThenRemoveRoundTrips(t *testing.T) {
	p := basicPlan()
	newTask := plan.Task{
		ID:    "t3",
		Title: "third",
		SuccessCriteria: []plan.SuccessCriterion{
			{Kind: plan.CriterionFileExists, Path: "c.txt"},
		},
		TaskType: plan.TaskBuild,
	}

	afterAdd, err := plan.Apply(p, []plan.PatchOp{
		{Kind: plan.OpAddTask, Task: &newTask, AfterTaskID: "t2"},
	})
	require.NoError(t, err)
	require.Len(t, afterAdd.Tasks, 3)

	afterRemove, err := plan.Apply(afterAdd, []plan.PatchOp{
		{Kind: plan.OpRemoveTask, TaskID: "t3"},
	})
	require.NoError(t, err)
	require.Equal(t, p.Tasks, afterRemove.Tasks)
	require.Equal(t, p.Milestones, afterRemove.Milestones)
}

func TestApplyRemoveTaskStripsMilestoneReference(t *testing.T) {
	p := basicPlan()
	next, err := plan.Apply(p, []plan.PatchOp{
		{Kind: plan.OpRemoveTask, TaskID: "t2"},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"t1"}, next.Milestones[0].TaskIDs)
}

func TestApplyRemoveTaskLeavingDanglingDependencyFails(t *testing.T) {
	p := basicPlan()
	_, err := plan.Apply(p, []plan.PatchOp{
		{Kind: plan.OpRemoveTask, TaskID: "t1"},
	})
	require.Error(t, err)
}

func TestApplyEditTaskNeverOverwritesID(t *testing.T) {
	p := basicPlan()
	next, err := plan.Apply(p, []plan.PatchOp{
		{Kind: plan.OpEditTask, TaskID: "t1", Changes: map[string]any{
			"id":    "hijacked",
			"title": "renamed",
		}},
	})
	require.NoError(t, err)
	task, ok := next.TaskByID("t1")
	require.True(t, ok)
	require.Equal(t, "renamed", task.Title)
}

func TestApplyReorderOntoUnknownAnchorIsNoOp(t *testing.T) {
	p := basicPlan()
	next, err := plan.Apply(p, []plan.PatchOp{
		{Kind: plan.OpReorder, TaskID: "t2", AfterTaskID: "does-not-exist"},
	})
	require.NoError(t, err)
	require.Equal(t, p.Tasks, next.Tasks)
}

func TestApplyEditAcceptanceFlipsOnlyBooleanLock(t *testing.T) {
	p := basicPlan()
	p.AcceptanceLocked = true
	next, err := plan.Apply(p, []plan.PatchOp{
		{Kind: plan.OpEditAcceptance, Changes: map[string]any{"locked": false}},
	})
	require.NoError(t, err)
	require.False(t, next.AcceptanceLocked)
	require.True(t, p.AcceptanceLocked, "original plan must be untouched")
}

func TestApplyEditTaskMergesJSONDecodedChanges(t *testing.T) {
	p := basicPlan()

	// Mirrors how a real replan flow builds Changes: a PlanChangeRequest
	// decoded off the wire, whose Patch[].Changes is a map[string]any
	// with []interface{}/map[string]any values, not hand-built Go slices.
	raw := []byte(`{
		"dependencies": [],
		"tool_hints": ["tool_write_file"],
		"success_criteria": [
			{"kind": "tool_result", "tool_name": "tool_write_file", "expected_ok": true}
		]
	}`)
	var changes map[string]any
	require.NoError(t, json.Unmarshal(raw, &changes))

	next, err := plan.Apply(p, []plan.PatchOp{
		{Kind: plan.OpEditTask, TaskID: "t2", Changes: changes},
	})
	require.NoError(t, err)

	task, ok := next.TaskByID("t2")
	require.True(t, ok)
	require.Equal(t, []string{}, task.Dependencies)
	require.Equal(t, []string{"tool_write_file"}, task.ToolHints)
	require.Equal(t, []plan.SuccessCriterion{
		{Kind: plan.CriterionToolResult, ToolName: "tool_write_file", ExpectedOK: true},
	}, task.SuccessCriteria)
}

func TestApplyRejectsInvalidPlanAndLeavesOriginalUntouched(t *testing.T) {
	p := basicPlan()
	badTask := plan.Task{ID: "bad", Dependencies: []string{"no-such-task"},
		SuccessCriteria: []plan.SuccessCriterion{{Kind: plan.CriterionFileExists, Path: "x"}}}
	_, err := plan.Apply(p, []plan.PatchOp{
		{Kind: plan.OpAddTask, Task: &badTask},
	})
	require.Error(t, err)
	require.NoError(t, p.Validate(), "original plan must remain valid")
}

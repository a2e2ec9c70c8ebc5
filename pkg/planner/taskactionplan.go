package planner

import "fmt"

// OnFail names what should happen when an action fails.
type OnFail string

const (
	OnFailStop     OnFail = "stop"
	OnFailContinue OnFail = "continue"
)

// Action is one tool invocation proposed for a task.
type Action struct {
	Name           string         `json:"name"`
	Input          map[string]any `json:"input"`
	OnFail         OnFail         `json:"on_fail,omitempty"`
	IdempotencyKey string         `json:"idempotency_key,omitempty"`
}

// TaskActionPlan is the LM's proposal for how to accomplish one task
// (§3).
type TaskActionPlan struct {
	Version            string   `json:"version"`
	TaskID             string   `json:"task_id"`
	Rationale          string   `json:"rationale"`
	Actions            []Action `json:"actions"`
	ExpectedArtifacts  []string `json:"expected_artifacts,omitempty"`
}

// Validate requires at least one action.
func (t *TaskActionPlan) Validate() error {
	if len(t.Actions) == 0 {
		return fmt.Errorf("task action plan has no actions")
	}
	for i, a := range t.Actions {
		if a.Name == "" {
			return fmt.Errorf("action %d has no name", i)
		}
	}
	return nil
}

// Package agentlog implements the ambient structured-logging stack,
// grounded directly on the teacher's pkg/logging/logger.go Event shape,
// narrowed to this runtime's own categories and writing to a
// caller-supplied io.Writer rather than owning file placement.
package agentlog

import (
	"encoding/json"
	"io"
	"time"
)

// Level mirrors the teacher's debug/info/warn/error levels.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Category narrows the teacher's broader category set to this
// runtime's own components.
type Category string

const (
	CategoryPlan     Category = "plan"
	CategoryPolicy   Category = "policy"
	CategoryCriteria Category = "criteria"
	CategoryExecutor Category = "executor"
	CategoryPlanner  Category = "planner"
	CategoryReplan   Category = "replan"
	CategoryAudit    Category = "audit"
)

// Event is a single structured log line.
type Event struct {
	Timestamp   time.Time      `json:"timestamp"`
	Level       Level          `json:"level"`
	Category    Category       `json:"category"`
	RunID       string         `json:"run_id,omitempty"`
	PlanVersion int            `json:"plan_version,omitempty"`
	TaskID      string         `json:"task_id,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
	Message     string         `json:"message,omitempty"`
}

// Logger writes newline-delimited JSON events to an io.Writer.
type Logger struct {
	w     io.Writer
	runID string
	now   func() time.Time
}

// New constructs a Logger bound to w for the given run id.
func New(w io.Writer, runID string) *Logger {
	return &Logger{w: w, runID: runID, now: time.Now}
}

// Log emits a single event, stamping Timestamp and RunID if unset.
func (l *Logger) Log(e Event) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = l.now()
	}
	if e.RunID == "" {
		e.RunID = l.runID
	}
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	b = append(b, '\n')
	_, err = l.w.Write(b)
	return err
}

// Info is a convenience wrapper for Log at LevelInfo.
func (l *Logger) Info(category Category, message string, details map[string]any) error {
	return l.Log(Event{Level: LevelInfo, Category: category, Message: message, Details: details})
}

// Error is a convenience wrapper for Log at LevelError.
func (l *Logger) Error(category Category, message string, details map[string]any) error {
	return l.Log(Event{Level: LevelError, Category: category, Message: message, Details: details})
}

// Package planner implements the Planner Client (§4.5): JSON-
// constrained LM calls with exactly one retry on parse/schema failure,
// tool-index rendering, and input-schema fingerprinting.
package planner

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/odvcencio/cadence/pkg/plan"
	"github.com/odvcencio/cadence/pkg/policy"
	"github.com/odvcencio/cadence/pkg/tool"
	"golang.org/x/time/rate"
)

// Role is the speaker of a message in the LM conversation.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleDeveloper Role = "developer"
)

// Message is one entry of the ordered conversation sent to the LM.
type Message struct {
	Role    Role
	Content string
}

// Truncation mirrors the LM contract's truncation option (§6).
type Truncation string

const (
	TruncationAuto     Truncation = "auto"
	TruncationDisabled Truncation = "disabled"
)

// CompactionHint is the opaque context-management hint threaded to the
// LM transport; this core never performs compaction itself.
type CompactionHint struct {
	Type             string
	CompactThreshold int
}

// Request is what the core sends to the LM transport collaborator.
type Request struct {
	Messages            []Message
	Temperature         float64
	MaxOutputTokens     int
	Instructions        string
	PreviousResponseID  string
	Truncation          Truncation
	ContextManagement   []CompactionHint
}

// Response is what the LM transport collaborator returns.
type Response struct {
	Text       string
	ResponseID string
	Usage      any
	Raw        any
}

// LMClient is the narrow dependency-inversion boundary to the LM
// transport collaborator (out of scope per §1).
type LMClient interface {
	ChatCompletion(ctx context.Context, req Request) (Response, error)
}

// ToolIndexEntry is one deterministic row of the rendered tool index
// handed to the LM.
type ToolIndexEntry struct {
	Name                 string
	Category             string
	Summary              string
	Safety               tool.Safety
	InputSchemaFingerprint string
}

// CallAudit records both attempts of a JSON-constrained call for the
// audit trail (§4.5, §4.8). RetryPreviousResponseIDSent is only
// meaningful when RetriedOnce is true, and equals the first attempt's
// ResponseID: that is the previous_response_id the retry actually sent.
type CallAudit struct {
	PreviousResponseIDSent      string
	RetryPreviousResponseIDSent string
	ResponseID                  string
	RetriedOnce                 bool
}

// Client drives the three JSON-constrained LM operations of §4.5.
type Client struct {
	LM      LMClient
	Limiter *rate.Limiter
}

// New constructs a Client. limiter may be nil to disable throttling.
func New(lm LMClient, limiter *rate.Limiter) *Client {
	return &Client{LM: lm, Limiter: limiter}
}

// ProposePlan asks the LM to produce a strict-JSON Plan for goal.
func (c *Client) ProposePlan(ctx context.Context, goal string, toolIndex []ToolIndexEntry, stateSummary string, pol policy.Policy, constraints string) (*plan.Plan, CallAudit, error) {
	system := defaultPlanningSystemPrompt()
	user := fmt.Sprintf(
		"Goal: %s\n\nTool index:\n%s\n\nState summary:\n%s\n\nConstraints:\n%s\n\nRespond with STRICT JSON only, matching the Plan schema (version \"v1\").",
		goal, renderToolIndexText(toolIndex), stateSummary, constraints,
	)

	var result plan.Plan
	audit, err := c.jsonConstrainedCall(ctx, system, user, "", &result)
	if err != nil {
		return nil, audit, err
	}
	if err := result.Validate(); err != nil {
		return nil, audit, fmt.Errorf("planner produced an invalid plan: %w", err)
	}
	return &result, audit, nil
}

// ProposeTaskActionPlan asks the LM to produce a TaskActionPlan for a
// single task.
func (c *Client) ProposeTaskActionPlan(ctx context.Context, task plan.Task, planSummary, stateSummary string, toolIndex []ToolIndexEntry, recentFailures []string) (*TaskActionPlan, CallAudit, error) {
	system := "You produce strict JSON TaskActionPlan objects. Reference only allowed tools. Prefer idempotent actions."
	user := fmt.Sprintf(
		"Task: %s (%s)\nPlan summary:\n%s\n\nState summary:\n%s\n\nTool index:\n%s\n\nRecent failures:\n%s\n\nRespond with STRICT JSON only.",
		task.ID, task.Title, planSummary, stateSummary, renderToolIndexText(toolIndex), strings.Join(recentFailures, "\n"),
	)

	var result TaskActionPlan
	audit, err := c.jsonConstrainedCall(ctx, system, user, "", &result)
	if err != nil {
		return nil, audit, err
	}
	if err := result.Validate(); err != nil {
		return nil, audit, fmt.Errorf("planner produced an invalid task action plan: %w", err)
	}
	result.TaskID = task.ID
	return &result, audit, nil
}

// ProposePlanChange asks the LM to produce a PlanChangeRequest after a
// task has exhausted its retries.
func (c *Client) ProposePlanChange(ctx context.Context, currentPlan *plan.Plan, pol policy.Policy, failureEvidence []string, stateSummary string) (*policy.PlanChangeRequest, CallAudit, error) {
	system := "You produce strict JSON PlanChangeRequest objects (version v2). Prefer the narrowest change that unblocks the failing task."
	planJSON, _ := json.Marshal(currentPlan)
	user := fmt.Sprintf(
		"Current plan:\n%s\n\nFailure evidence:\n%s\n\nState summary:\n%s\n\nRespond with STRICT JSON only.",
		string(planJSON), strings.Join(failureEvidence, "\n"), stateSummary,
	)

	var result policy.PlanChangeRequest
	audit, err := c.jsonConstrainedCall(ctx, system, user, "", &result)
	if err != nil {
		return nil, audit, err
	}
	return &result, audit, nil
}

// jsonConstrainedCall implements the one-shot-retry protocol shared by
// all three operations: call, attempt to parse strict JSON into out; on
// failure, append a corrective user message and retry once, sending the
// first response's id as previous_response_id; second failure is
// terminal.
func (c *Client) jsonConstrainedCall(ctx context.Context, system, user, previousResponseID string, out any) (CallAudit, error) {
	audit := CallAudit{PreviousResponseIDSent: previousResponseID}

	messages := []Message{
		{Role: RoleSystem, Content: system},
		{Role: RoleUser, Content: user},
	}

	resp, err := c.call(ctx, messages, previousResponseID)
	if err != nil {
		return audit, err
	}
	audit.ResponseID = resp.ResponseID

	if parseErr := parseJSON(resp.Text, out); parseErr == nil {
		return audit, nil
	} else {
		messages = append(messages,
			Message{Role: RoleAssistant, Content: resp.Text},
			Message{Role: RoleUser, Content: fmt.Sprintf("Invalid JSON/schema: %s. Return STRICT JSON only, no markdown.", parseErr.Error())},
		)
		audit.RetriedOnce = true
		audit.RetryPreviousResponseIDSent = resp.ResponseID

		retryResp, retryErr := c.call(ctx, messages, resp.ResponseID)
		if retryErr != nil {
			return audit, retryErr
		}
		audit.ResponseID = retryResp.ResponseID

		if parseErr := parseJSON(retryResp.Text, out); parseErr != nil {
			return audit, fmt.Errorf("planner call failed after one retry: %w", parseErr)
		}
		return audit, nil
	}
}

func (c *Client) call(ctx context.Context, messages []Message, previousResponseID string) (Response, error) {
	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			return Response{}, err
		}
	}
	return c.LM.ChatCompletion(ctx, Request{
		Messages:           messages,
		Temperature:        0.3,
		PreviousResponseID: previousResponseID,
		Truncation:         TruncationAuto,
	})
}

// parseJSON strips common markdown code-fence wrapping before
// unmarshaling, mirroring the teacher's own sanitize-then-parse
// behavior for LM output.
func parseJSON(text string, out any) error {
	cleaned := strings.TrimSpace(text)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)
	return json.Unmarshal([]byte(cleaned), out)
}

func defaultPlanningSystemPrompt() string {
	return "You are a planning assistant. Produce a strict JSON Plan with machine-checkable success criteria for every task."
}

// RenderToolIndex builds the deterministic tool index entries from a
// registry, including the schema fingerprint used to detect drift.
func RenderToolIndex(meta []tool.Metadata) []ToolIndexEntry {
	entries := make([]ToolIndexEntry, 0, len(meta))
	for _, m := range meta {
		entries = append(entries, ToolIndexEntry{
			Name:                   m.Name,
			Category:               m.Category,
			Summary:                m.Description,
			Safety:                 m.Safety,
			InputSchemaFingerprint: FingerprintSchema(m.InputSchema),
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries
}

// FingerprintSchema computes the SHA-256 of a key-sorted canonical JSON
// encoding of schema, truncated to a 16-hex prefix (§4.5, §9).
func FingerprintSchema(schema tool.Schema) string {
	canonical := canonicalJSON(map[string]any(schema))
	sum := sha256.Sum256(canonical)
	return fmt.Sprintf("%x", sum)[:16]
}

// canonicalJSON produces a key-sorted JSON encoding of an arbitrary
// map-shaped value.
func canonicalJSON(v any) []byte {
	sorted := sortKeys(v)
	b, _ := json.Marshal(sorted)
	return b
}

func sortKeys(v any) any {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		ordered := make(map[string]any, len(val))
		for _, k := range keys {
			ordered[k] = sortKeys(val[k])
		}
		return ordered
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = sortKeys(item)
		}
		return out
	default:
		return v
	}
}

func renderToolIndexText(entries []ToolIndexEntry) string {
	var sb strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&sb, "- %s [%s] (%s): %s\n", e.Name, e.Category, e.InputSchemaFingerprint, e.Summary)
	}
	return sb.String()
}

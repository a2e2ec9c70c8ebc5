package planner_test

import (
	"context"
	"testing"

	"github.com/odvcencio/cadence/pkg/planner"
	"github.com/odvcencio/cadence/pkg/policy"
	"github.com/odvcencio/cadence/pkg/tool"
	"github.com/stretchr/testify/require"
)

type scriptedLM struct {
	responses []planner.Response
	calls     int
	seenPrevResponseIDs []string
}

func (s *scriptedLM) ChatCompletion(ctx context.Context, req planner.Request) (planner.Response, error) {
	s.seenPrevResponseIDs = append(s.seenPrevResponseIDs, req.PreviousResponseID)
	resp := s.responses[s.calls]
	s.calls++
	return resp, nil
}

const validPlanJSON = `{
  "version": "v1",
  "goal": "ship feature",
  "tasks": [
    {"id": "t1", "title": "first", "task_type": "build",
     "success_criteria": [{"kind": "file_exists", "path": "a.txt"}]}
  ]
}`

func TestProposePlanSucceedsOnFirstTry(t *testing.T) {
	lm := &scriptedLM{responses: []planner.Response{
		{Text: validPlanJSON, ResponseID: "resp-1"},
	}}
	c := planner.New(lm, nil)

	p, audit, err := c.ProposePlan(context.Background(), "ship feature", nil, "", policy.Policy{}, "")
	require.NoError(t, err)
	require.Equal(t, "v1", p.Version)
	require.False(t, audit.RetriedOnce)
	require.Equal(t, "resp-1", audit.ResponseID)
}

func TestProposePlanRetriesOnceOnInvalidJSON(t *testing.T) {
	lm := &scriptedLM{responses: []planner.Response{
		{Text: "not json", ResponseID: "resp-1"},
		{Text: validPlanJSON, ResponseID: "resp-2"},
	}}
	c := planner.New(lm, nil)

	p, audit, err := c.ProposePlan(context.Background(), "ship feature", nil, "", policy.Policy{}, "")
	require.NoError(t, err)
	require.NotNil(t, p)
	require.True(t, audit.RetriedOnce)
	require.Equal(t, "resp-2", audit.ResponseID)
	require.Equal(t, "", audit.PreviousResponseIDSent)
	require.Equal(t, "resp-1", audit.RetryPreviousResponseIDSent)
	require.Equal(t, []string{"", "resp-1"}, lm.seenPrevResponseIDs)
}

func TestProposePlanFailsAfterSecondInvalidResponse(t *testing.T) {
	lm := &scriptedLM{responses: []planner.Response{
		{Text: "not json", ResponseID: "resp-1"},
		{Text: "still not json", ResponseID: "resp-2"},
	}}
	c := planner.New(lm, nil)

	_, _, err := c.ProposePlan(context.Background(), "ship feature", nil, "", policy.Policy{}, "")
	require.Error(t, err)
}

func TestFingerprintSchemaIsDeterministicAndOrderIndependent(t *testing.T) {
	a := tool.Schema{"type": "object", "required": []string{"path"}}
	b := tool.Schema{"required": []string{"path"}, "type": "object"}

	require.Equal(t, planner.FingerprintSchema(a), planner.FingerprintSchema(b))
	require.Len(t, planner.FingerprintSchema(a), 16)
}

package agentlog_test

import (
	"bufio"
	"bytes"
	"encoding/json"
	"testing"

	"github.com/odvcencio/cadence/pkg/agentlog"
	"github.com/stretchr/testify/require"
)

func TestLogWritesNDJSONWithRunID(t *testing.T) {
	var buf bytes.Buffer
	logger := agentlog.New(&buf, "run-123")

	require.NoError(t, logger.Info(agentlog.CategoryPlan, "plan created", map[string]any{"tasks": 2}))
	require.NoError(t, logger.Error(agentlog.CategoryExecutor, "tool failed", nil))

	scanner := bufio.NewScanner(&buf)
	var lines []agentlog.Event
	for scanner.Scan() {
		var e agentlog.Event
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &e))
		lines = append(lines, e)
	}
	require.Len(t, lines, 2)
	require.Equal(t, "run-123", lines[0].RunID)
	require.Equal(t, agentlog.LevelInfo, lines[0].Level)
	require.Equal(t, agentlog.LevelError, lines[1].Level)
}

package audit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/chatrules/types/rule"
)

func TestStatusTerminal(t *testing.T) {
	assert.True(t, StatusApplied.Terminal())
	assert.True(t, StatusFailedPermanent.Terminal())

	assert.False(t, StatusSuperseded.Terminal())
	assert.False(t, StatusSkippedDisabled.Terminal())
	assert.False(t, StatusSkippedDuplicate.Terminal())
	assert.False(t, StatusFailedRetrying.Terminal())
}

func TestMemoryLogAppendAndLastStatus(t *testing.T) {
	ctx := context.Background()
	log := NewMemoryLog()

	_, found, err := log.LastStatus(ctx, "e1", "r1", rule.ActionTagging)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, log.Append(ctx, ExecutionResult{
		EventID:        "e1",
		RuleID:         "r1",
		ConversationID: "c1",
		ActionCategory: rule.ActionTagging,
		Status:         StatusFailedRetrying,
		Attempt:        1,
		Error:          "timeout",
	}))
	require.NoError(t, log.Append(ctx, ExecutionResult{
		EventID:        "e1",
		RuleID:         "r1",
		ConversationID: "c1",
		ActionCategory: rule.ActionTagging,
		Status:         StatusApplied,
		Attempt:        2,
	}))

	status, found, err := log.LastStatus(ctx, "e1", "r1", rule.ActionTagging)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, StatusApplied, status)

	// Rows are append-only and timestamped.
	rows, err := log.Results(ctx, "e1")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, StatusFailedRetrying, rows[0].Status)
	assert.Equal(t, StatusApplied, rows[1].Status)
	assert.False(t, rows[0].At.IsZero())
}

func TestMemoryLogTerminalStatusSticks(t *testing.T) {
	ctx := context.Background()
	log := NewMemoryLog()

	row := ExecutionResult{
		EventID:        "e1",
		RuleID:         "r1",
		ConversationID: "c1",
		ActionCategory: rule.ActionAssignment,
		Status:         StatusApplied,
		Attempt:        1,
	}
	require.NoError(t, log.Append(ctx, row))

	// A redelivery records skipped_duplicate, but the index keeps the
	// terminal status so further redeliveries stay deduplicated.
	row.Status = StatusSkippedDuplicate
	require.NoError(t, log.Append(ctx, row))

	status, found, err := log.LastStatus(ctx, "e1", "r1", rule.ActionAssignment)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, StatusApplied, status)

	rows, err := log.Results(ctx, "e1")
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestMemoryLogKeysAreIndependent(t *testing.T) {
	ctx := context.Background()
	log := NewMemoryLog()

	require.NoError(t, log.Append(ctx, ExecutionResult{
		EventID: "e1", RuleID: "r1", ActionCategory: rule.ActionTagging, Status: StatusApplied,
	}))

	for _, probe := range []struct {
		event, ruleID string
		category      rule.ActionCategory
	}{
		{"e2", "r1", rule.ActionTagging},
		{"e1", "r2", rule.ActionTagging},
		{"e1", "r1", rule.ActionRouting},
	} {
		_, found, err := log.LastStatus(ctx, probe.event, probe.ruleID, probe.category)
		require.NoError(t, err)
		assert.False(t, found, "key %v should be independent", probe)
	}
}

func TestMemoryLogResultsFiltersByEvent(t *testing.T) {
	ctx := context.Background()
	log := NewMemoryLog()

	require.NoError(t, log.Append(ctx, ExecutionResult{EventID: "e1", RuleID: "r1", ActionCategory: rule.ActionTagging, Status: StatusApplied}))
	require.NoError(t, log.Append(ctx, ExecutionResult{EventID: "e2", RuleID: "r1", ActionCategory: rule.ActionTagging, Status: StatusApplied}))

	rows, err := log.Results(ctx, "e1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "e1", rows[0].EventID)

	none, err := log.Results(ctx, "unknown")
	require.NoError(t, err)
	assert.Empty(t, none)
}

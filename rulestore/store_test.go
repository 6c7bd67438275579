package rulestore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/chatrules/errors"
	"github.com/c360/chatrules/types/rule"
)

func sampleRule(id string, active bool) *rule.Rule {
	return &rule.Rule{
		ID:              id,
		Name:            "rule " + id,
		Priority:        1,
		ExecutionOrder:  1,
		ConditionsLogic: rule.LogicAND,
		Active:          active,
		Conditions: []rule.TriggerCondition{
			{
				Category: rule.ConditionKeyword,
				Enabled:  true,
				Keyword:  &rule.KeywordParams{Keywords: []string{"help"}},
			},
		},
		Actions: []rule.Action{
			{
				Category: rule.ActionTagging,
				Enabled:  true,
				Tagging:  &rule.TaggingParams{Tags: []string{"triage"}, Mode: rule.TagModeAdd},
			},
		},
	}
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.Put(ctx, sampleRule("r1", true)))

	got, err := store.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "r1", got.ID)

	require.NoError(t, store.Delete(ctx, "r1"))
	_, err = store.Get(ctx, "r1")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrRuleNotFound)
}

func TestMemoryStoreRejectsInvalidRules(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	bad := sampleRule("r1", true)
	bad.Priority = 0
	err := store.Put(ctx, bad)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))

	assert.Error(t, store.Put(ctx, nil))
}

func TestMemoryStoreListActive(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.Put(ctx, sampleRule("zeta", true)))
	require.NoError(t, store.Put(ctx, sampleRule("alpha", true)))
	require.NoError(t, store.Put(ctx, sampleRule("paused", false)))

	active, err := store.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "alpha", active[0].ID)
	assert.Equal(t, "zeta", active[1].ID)
}

func TestMemoryStoreDeleteMissing(t *testing.T) {
	err := NewMemoryStore().Delete(context.Background(), "nope")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrRuleNotFound)
}

func writeRuleFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const singleRuleJSON = `{
  "id": "urgent-escalation",
  "name": "Escalate urgent messages",
  "priority": 1,
  "execution_order": 1,
  "conditions_logic": "AND",
  "active": true,
  "conditions": [
    {"category": "keyword", "enabled": true, "keyword": {"keywords": ["urgent"]}}
  ],
  "actions": [
    {"category": "escalation", "enabled": true, "escalation": {"priority": "high", "department": "support"}}
  ]
}`

func TestLoadFilesSingleAndArray(t *testing.T) {
	single := writeRuleFile(t, "single.json", singleRuleJSON)
	array := writeRuleFile(t, "array.json", "["+singleRuleJSON+"]")

	rules, err := LoadFiles([]string{single, array})
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, "urgent-escalation", rules[0].ID)
}

func TestLoadFilesErrors(t *testing.T) {
	_, err := LoadFiles([]string{"/does/not/exist.json"})
	assert.Error(t, err)

	garbage := writeRuleFile(t, "garbage.json", "not json at all")
	_, err = LoadFiles([]string{garbage})
	assert.Error(t, err)
}

func TestSeedSkipsInvalidRules(t *testing.T) {
	invalid := `{"id": "broken", "name": "no conditions", "priority": 1, "conditions_logic": "AND", "active": true, "actions": []}`
	path := writeRuleFile(t, "mixed.json", "["+singleRuleJSON+","+invalid+"]")

	store := NewMemoryStore()
	loaded, err := Seed(context.Background(), store, []string{path}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, loaded)

	_, err = store.Get(context.Background(), "urgent-escalation")
	assert.NoError(t, err)
	_, err = store.Get(context.Background(), "broken")
	assert.Error(t, err)
}

package automation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/chatrules/types/chat"
	"github.com/c360/chatrules/types/rule"
)

func keywordCond(enabled bool, keywords ...string) rule.TriggerCondition {
	return rule.TriggerCondition{
		Category: rule.ConditionKeyword,
		Enabled:  enabled,
		Keyword:  &rule.KeywordParams{Keywords: keywords},
	}
}

func queueCond(op rule.Operator, value float64) rule.TriggerCondition {
	return rule.TriggerCondition{
		Category:  rule.ConditionQueueLength,
		Enabled:   true,
		Threshold: &rule.ThresholdParams{Operator: op, Value: value},
	}
}

func tagAction() rule.Action {
	return rule.Action{
		Category: rule.ActionTagging,
		Enabled:  true,
		Tagging:  &rule.TaggingParams{Tags: []string{"auto"}, Mode: rule.TagModeAdd},
	}
}

func testRule(id string, priority, order int, logic rule.ConditionsLogic, conds ...rule.TriggerCondition) *rule.Rule {
	return &rule.Rule{
		ID:              id,
		Name:            "rule " + id,
		Priority:        priority,
		ExecutionOrder:  order,
		ConditionsLogic: logic,
		Active:          true,
		Conditions:      conds,
		Actions:         []rule.Action{tagAction()},
	}
}

func TestMatcherLogic(t *testing.T) {
	m := NewMatcher(NewEvaluator())

	snap := openSnapshot()
	snap.LatestMessage = strPtr("I need an urgent refund")
	snap.QueueDepth = intPtr(10)

	t.Run("AND requires every judged condition true", func(t *testing.T) {
		r := testRule("r1", 1, 1, rule.LogicAND,
			keywordCond(true, "urgent"),
			queueCond(rule.OpGreaterThan, 20),
		)
		assert.False(t, m.Matches(r, snap))
	})

	t.Run("AND with all true matches", func(t *testing.T) {
		r := testRule("r1", 1, 1, rule.LogicAND,
			keywordCond(true, "urgent"),
			queueCond(rule.OpGreaterThan, 5),
		)
		assert.True(t, m.Matches(r, snap))
	})

	t.Run("OR needs one true", func(t *testing.T) {
		r := testRule("r1", 1, 1, rule.LogicOR,
			keywordCond(true, "billing"),
			queueCond(rule.OpGreaterThan, 5),
		)
		assert.True(t, m.Matches(r, snap))
	})

	t.Run("skipped conditions are excluded from AND", func(t *testing.T) {
		// Customer history skips (no customer) but the keyword holds.
		r := testRule("r1", 1, 1, rule.LogicAND,
			keywordCond(true, "urgent"),
			rule.TriggerCondition{
				Category: rule.ConditionCustomerHistory,
				Enabled:  true,
				CustomerHistory: &rule.CustomerHistoryParams{
					MinConversations:     1,
					SatisfactionOperator: rule.OpLessThan,
				},
			},
		)
		assert.True(t, m.Matches(r, snap))
	})

	t.Run("all conditions skipped never matches", func(t *testing.T) {
		bare := openSnapshot() // no message, no queue depth
		r := testRule("r1", 1, 1, rule.LogicOR,
			keywordCond(true, "urgent"),
			queueCond(rule.OpGreaterThan, 5),
		)
		assert.False(t, m.Matches(r, bare))
	})

	t.Run("zero enabled conditions never matches", func(t *testing.T) {
		r := testRule("r1", 1, 1, rule.LogicAND, keywordCond(false, "urgent"))
		assert.False(t, m.Matches(r, snap))

		r.ConditionsLogic = rule.LogicOR
		assert.False(t, m.Matches(r, snap))
	})

	t.Run("single condition behaves identically under AND and OR", func(t *testing.T) {
		and := testRule("r1", 1, 1, rule.LogicAND, keywordCond(true, "urgent"))
		or := testRule("r1", 1, 1, rule.LogicOR, keywordCond(true, "urgent"))
		assert.Equal(t, m.Matches(and, snap), m.Matches(or, snap))

		noMatch := openSnapshot()
		noMatch.LatestMessage = strPtr("hello")
		assert.Equal(t, m.Matches(and, noMatch), m.Matches(or, noMatch))
	})
}

func TestMatcherOrdering(t *testing.T) {
	m := NewMatcher(NewEvaluator())

	snap := openSnapshot()
	snap.LatestMessage = strPtr("urgent")

	rules := []*rule.Rule{
		testRule("zeta", 2, 1, rule.LogicAND, keywordCond(true, "urgent")),
		testRule("alpha", 2, 1, rule.LogicAND, keywordCond(true, "urgent")),
		testRule("beta", 1, 2, rule.LogicAND, keywordCond(true, "urgent")),
		testRule("gamma", 1, 1, rule.LogicAND, keywordCond(true, "urgent")),
		testRule("inactive", 1, 0, rule.LogicAND, keywordCond(true, "urgent")),
	}
	rules[4].Active = false

	matched := m.Match(rules, snap)
	require.Len(t, matched, 4)

	ids := make([]string, len(matched))
	for i, r := range matched {
		ids[i] = r.ID
	}
	assert.Equal(t, []string{"gamma", "beta", "alpha", "zeta"}, ids)

	// Same inputs, same order.
	again := m.Match(rules, snap)
	require.Len(t, again, 4)
	for i := range matched {
		assert.Equal(t, matched[i].ID, again[i].ID)
	}
}

func TestMatcherNonMatchingExcluded(t *testing.T) {
	m := NewMatcher(NewEvaluator())

	snap := openSnapshot()
	snap.LatestMessage = strPtr("billing question")

	rules := []*rule.Rule{
		testRule("hit", 1, 1, rule.LogicAND, keywordCond(true, "billing")),
		testRule("miss", 1, 2, rule.LogicAND, keywordCond(true, "urgent")),
	}

	matched := m.Match(rules, snap)
	require.Len(t, matched, 1)
	assert.Equal(t, "hit", matched[0].ID)
}

func TestMatcherNilSnapshot(t *testing.T) {
	m := NewMatcher(NewEvaluator())
	r := testRule("r1", 1, 1, rule.LogicAND, keywordCond(true, "urgent"))
	assert.False(t, m.Matches(r, nil))

	var snap *chat.ConversationSnapshot
	assert.Empty(t, m.Match([]*rule.Rule{r}, snap))
}

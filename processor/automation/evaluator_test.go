package automation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/c360/chatrules/types/chat"
	"github.com/c360/chatrules/types/rule"
)

func strPtr(s string) *string { return &s }

func intPtr(n int) *int { return &n }

func durPtr(d time.Duration) *time.Duration { return &d }

func floatPtr(f float64) *float64 { return &f }

func openSnapshot() *chat.ConversationSnapshot {
	return &chat.ConversationSnapshot{
		ConversationID: "conv-1",
		State:          chat.StateOpen,
		CapturedAt:     time.Now(),
	}
}

func TestEvaluateKeyword(t *testing.T) {
	eval := NewEvaluator()
	cond := rule.TriggerCondition{
		Category: rule.ConditionKeyword,
		Enabled:  true,
		Keyword:  &rule.KeywordParams{Keywords: []string{"refund", "URGENT"}},
	}

	t.Run("case-insensitive substring match", func(t *testing.T) {
		snap := openSnapshot()
		snap.LatestMessage = strPtr("This is Urgent, please help")
		assert.Equal(t, VerdictTrue, eval.Evaluate(cond, snap))
	})

	t.Run("keyword inside larger word still matches", func(t *testing.T) {
		snap := openSnapshot()
		snap.LatestMessage = strPtr("refunds are slow")
		assert.Equal(t, VerdictTrue, eval.Evaluate(cond, snap))
	})

	t.Run("no keyword present", func(t *testing.T) {
		snap := openSnapshot()
		snap.LatestMessage = strPtr("just saying hello")
		assert.Equal(t, VerdictFalse, eval.Evaluate(cond, snap))
	})

	t.Run("no message in snapshot is skipped", func(t *testing.T) {
		assert.Equal(t, VerdictSkipped, eval.Evaluate(cond, openSnapshot()))
	})

	t.Run("empty keyword list is skipped", func(t *testing.T) {
		empty := rule.TriggerCondition{
			Category: rule.ConditionKeyword,
			Enabled:  true,
			Keyword:  &rule.KeywordParams{},
		}
		snap := openSnapshot()
		snap.LatestMessage = strPtr("anything")
		assert.Equal(t, VerdictSkipped, eval.Evaluate(empty, snap))
	})

	t.Run("disabled condition is skipped", func(t *testing.T) {
		disabled := cond
		disabled.Enabled = false
		snap := openSnapshot()
		snap.LatestMessage = strPtr("urgent")
		assert.Equal(t, VerdictSkipped, eval.Evaluate(disabled, snap))
	})
}

func TestEvaluateCustomerType(t *testing.T) {
	eval := NewEvaluator()
	cond := rule.TriggerCondition{
		Category:     rule.ConditionCustomerType,
		Enabled:      true,
		CustomerType: &rule.CustomerTypeParams{Types: []string{"vip", "enterprise"}},
	}

	t.Run("member of set", func(t *testing.T) {
		snap := openSnapshot()
		snap.Customer = &chat.CustomerProfile{ID: "c1", Type: "VIP"}
		assert.Equal(t, VerdictTrue, eval.Evaluate(cond, snap))
	})

	t.Run("not a member", func(t *testing.T) {
		snap := openSnapshot()
		snap.Customer = &chat.CustomerProfile{ID: "c1", Type: "trial"}
		assert.Equal(t, VerdictFalse, eval.Evaluate(cond, snap))
	})

	t.Run("no customer profile is skipped", func(t *testing.T) {
		assert.Equal(t, VerdictSkipped, eval.Evaluate(cond, openSnapshot()))
	})
}

func TestEvaluateTimeWindow(t *testing.T) {
	// Tuesday 2026-01-06 14:30 UTC
	fixed := time.Date(2026, 1, 6, 14, 30, 0, 0, time.UTC)
	eval := NewEvaluatorAt(func() time.Time { return fixed })

	business := rule.TriggerCondition{
		Category: rule.ConditionTimeWindow,
		Enabled:  true,
		TimeWindow: &rule.TimeWindowParams{
			Timezone: "UTC",
			Windows: []rule.Window{
				{Days: []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday}, Start: "09:00", End: "17:00"},
			},
		},
	}

	t.Run("inside business hours", func(t *testing.T) {
		assert.Equal(t, VerdictTrue, eval.Evaluate(business, openSnapshot()))
	})

	t.Run("end is exclusive", func(t *testing.T) {
		atEnd := NewEvaluatorAt(func() time.Time {
			return time.Date(2026, 1, 6, 17, 0, 0, 0, time.UTC)
		})
		assert.Equal(t, VerdictFalse, atEnd.Evaluate(business, openSnapshot()))
	})

	t.Run("wrong weekday", func(t *testing.T) {
		sunday := NewEvaluatorAt(func() time.Time {
			return time.Date(2026, 1, 4, 14, 30, 0, 0, time.UTC)
		})
		assert.Equal(t, VerdictFalse, sunday.Evaluate(business, openSnapshot()))
	})

	t.Run("window crossing midnight", func(t *testing.T) {
		night := rule.TriggerCondition{
			Category: rule.ConditionTimeWindow,
			Enabled:  true,
			TimeWindow: &rule.TimeWindowParams{
				Timezone: "UTC",
				Windows:  []rule.Window{{Start: "22:00", End: "06:00"}},
			},
		}
		at := func(hour int) *Evaluator {
			return NewEvaluatorAt(func() time.Time {
				return time.Date(2026, 1, 6, hour, 0, 0, 0, time.UTC)
			})
		}
		assert.Equal(t, VerdictTrue, at(23).Evaluate(night, openSnapshot()))
		assert.Equal(t, VerdictTrue, at(3).Evaluate(night, openSnapshot()))
		assert.Equal(t, VerdictFalse, at(12).Evaluate(night, openSnapshot()))
	})

	t.Run("timezone shifts the clock", func(t *testing.T) {
		tokyo := rule.TriggerCondition{
			Category: rule.ConditionTimeWindow,
			Enabled:  true,
			TimeWindow: &rule.TimeWindowParams{
				Timezone: "Asia/Tokyo",
				Windows:  []rule.Window{{Start: "09:00", End: "17:00"}},
			},
		}
		// 14:30 UTC is 23:30 in Tokyo
		assert.Equal(t, VerdictFalse, eval.Evaluate(tokyo, openSnapshot()))
	})
}

func TestEvaluateThresholds(t *testing.T) {
	eval := NewEvaluator()

	t.Run("queue length boundary is strict", func(t *testing.T) {
		cond := rule.TriggerCondition{
			Category:  rule.ConditionQueueLength,
			Enabled:   true,
			Threshold: &rule.ThresholdParams{Operator: rule.OpGreaterThan, Value: 5},
		}

		snap := openSnapshot()
		snap.QueueDepth = intPtr(5)
		assert.Equal(t, VerdictFalse, eval.Evaluate(cond, snap))

		snap.QueueDepth = intPtr(6)
		assert.Equal(t, VerdictTrue, eval.Evaluate(cond, snap))
	})

	t.Run("missing queue depth is skipped", func(t *testing.T) {
		cond := rule.TriggerCondition{
			Category:  rule.ConditionQueueLength,
			Enabled:   true,
			Threshold: &rule.ThresholdParams{Operator: rule.OpGreaterThan, Value: 5},
		}
		assert.Equal(t, VerdictSkipped, eval.Evaluate(cond, openSnapshot()))
	})

	t.Run("message count equals", func(t *testing.T) {
		cond := rule.TriggerCondition{
			Category:  rule.ConditionMessageCount,
			Enabled:   true,
			Threshold: &rule.ThresholdParams{Operator: rule.OpEquals, Value: 3},
		}
		snap := openSnapshot()
		snap.MessageCount = intPtr(3)
		assert.Equal(t, VerdictTrue, eval.Evaluate(cond, snap))

		snap.MessageCount = intPtr(4)
		assert.Equal(t, VerdictFalse, eval.Evaluate(cond, snap))
	})

	t.Run("response time compares in seconds", func(t *testing.T) {
		cond := rule.TriggerCondition{
			Category:  rule.ConditionResponseTime,
			Enabled:   true,
			Threshold: &rule.ThresholdParams{Operator: rule.OpGreaterThan, Value: 120},
		}
		snap := openSnapshot()
		snap.SinceLastResponse = durPtr(3 * time.Minute)
		assert.Equal(t, VerdictTrue, eval.Evaluate(cond, snap))

		snap.SinceLastResponse = durPtr(2 * time.Minute)
		assert.Equal(t, VerdictFalse, eval.Evaluate(cond, snap))
	})
}

func TestEvaluateCustomerHistory(t *testing.T) {
	eval := NewEvaluator()
	cond := rule.TriggerCondition{
		Category: rule.ConditionCustomerHistory,
		Enabled:  true,
		CustomerHistory: &rule.CustomerHistoryParams{
			MinConversations:      3,
			SatisfactionOperator:  rule.OpLessThan,
			SatisfactionThreshold: 3.0,
		},
	}

	t.Run("returning unhappy customer matches", func(t *testing.T) {
		snap := openSnapshot()
		snap.Customer = &chat.CustomerProfile{ID: "c1", Conversations: 5, Satisfaction: floatPtr(2.1)}
		assert.Equal(t, VerdictTrue, eval.Evaluate(cond, snap))
	})

	t.Run("too few past conversations", func(t *testing.T) {
		snap := openSnapshot()
		snap.Customer = &chat.CustomerProfile{ID: "c1", Conversations: 2, Satisfaction: floatPtr(2.1)}
		assert.Equal(t, VerdictFalse, eval.Evaluate(cond, snap))
	})

	t.Run("no recorded satisfaction is skipped", func(t *testing.T) {
		snap := openSnapshot()
		snap.Customer = &chat.CustomerProfile{ID: "c1", Conversations: 5}
		assert.Equal(t, VerdictSkipped, eval.Evaluate(cond, snap))
	})

	t.Run("no customer is skipped", func(t *testing.T) {
		assert.Equal(t, VerdictSkipped, eval.Evaluate(cond, openSnapshot()))
	})
}

// Package automation is the rule engine core: it evaluates trigger
// conditions against conversation snapshots, matches rules, and schedules
// action execution with deduplication and exclusive-category arbitration.
package automation

import (
	"strings"
	"time"

	"github.com/c360/chatrules/types/chat"
	"github.com/c360/chatrules/types/rule"
)

// Verdict is the three-valued outcome of evaluating one condition.
// Skipped means the condition could not be judged (absent snapshot data
// or an empty parameter set) and is excluded from the rule's AND/OR
// combination rather than counted as false.
type Verdict int

// Condition verdicts
const (
	VerdictFalse Verdict = iota
	VerdictTrue
	VerdictSkipped
)

// String returns the verdict name
func (v Verdict) String() string {
	switch v {
	case VerdictTrue:
		return "true"
	case VerdictFalse:
		return "false"
	case VerdictSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

func verdictOf(b bool) Verdict {
	if b {
		return VerdictTrue
	}
	return VerdictFalse
}

// Evaluator judges trigger conditions against snapshots. now is injectable
// so time_window conditions are testable; the zero value uses time.Now.
type Evaluator struct {
	now func() time.Time
}

// NewEvaluator creates an evaluator using the wall clock
func NewEvaluator() *Evaluator {
	return &Evaluator{now: time.Now}
}

// NewEvaluatorAt creates an evaluator with a fixed clock for tests
func NewEvaluatorAt(now func() time.Time) *Evaluator {
	return &Evaluator{now: now}
}

// Evaluate judges one condition against the snapshot. Disabled conditions
// and unknown categories are skipped; evaluation never errors because a
// rule that passed validation can only fail here through absent data.
func (e *Evaluator) Evaluate(cond rule.TriggerCondition, snap *chat.ConversationSnapshot) Verdict {
	if !cond.Enabled || snap == nil {
		return VerdictSkipped
	}

	switch cond.Category {
	case rule.ConditionKeyword:
		return e.evalKeyword(cond.Keyword, snap)
	case rule.ConditionCustomerType:
		return e.evalCustomerType(cond.CustomerType, snap)
	case rule.ConditionTimeWindow:
		return e.evalTimeWindow(cond.TimeWindow)
	case rule.ConditionQueueLength:
		return e.evalThresholdInt(cond.Threshold, snap.QueueDepth)
	case rule.ConditionMessageCount:
		return e.evalThresholdInt(cond.Threshold, snap.MessageCount)
	case rule.ConditionResponseTime:
		return e.evalResponseTime(cond.Threshold, snap.SinceLastResponse)
	case rule.ConditionCustomerHistory:
		return e.evalCustomerHistory(cond.CustomerHistory, snap)
	default:
		return VerdictSkipped
	}
}

// evalKeyword matches any keyword as a case-insensitive substring of the
// latest customer message. No message or no keywords means skipped.
func (e *Evaluator) evalKeyword(p *rule.KeywordParams, snap *chat.ConversationSnapshot) Verdict {
	if p == nil || len(p.Keywords) == 0 || snap.LatestMessage == nil {
		return VerdictSkipped
	}

	message := strings.ToLower(*snap.LatestMessage)
	for _, kw := range p.Keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(message, strings.ToLower(kw)) {
			return VerdictTrue
		}
	}
	return VerdictFalse
}

func (e *Evaluator) evalCustomerType(p *rule.CustomerTypeParams, snap *chat.ConversationSnapshot) Verdict {
	if p == nil || snap.Customer == nil || snap.Customer.Type == "" {
		return VerdictSkipped
	}

	for _, t := range p.Types {
		if strings.EqualFold(t, snap.Customer.Type) {
			return VerdictTrue
		}
	}
	return VerdictFalse
}

// evalTimeWindow checks the current time in the configured timezone
// against the windows. An unloadable timezone is skipped, not false;
// validation should have caught it at rule-save time.
func (e *Evaluator) evalTimeWindow(p *rule.TimeWindowParams) Verdict {
	if p == nil || len(p.Windows) == 0 {
		return VerdictSkipped
	}

	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return VerdictSkipped
	}

	now := e.now().In(loc)
	for _, w := range p.Windows {
		if w.Contains(now) {
			return VerdictTrue
		}
	}
	return VerdictFalse
}

func (e *Evaluator) evalThresholdInt(p *rule.ThresholdParams, value *int) Verdict {
	if p == nil || value == nil {
		return VerdictSkipped
	}
	return verdictOf(p.Operator.Compare(float64(*value), p.Value))
}

// evalResponseTime compares elapsed time since the last agent response,
// in seconds, against the threshold
func (e *Evaluator) evalResponseTime(p *rule.ThresholdParams, elapsed *time.Duration) Verdict {
	if p == nil || elapsed == nil {
		return VerdictSkipped
	}
	return verdictOf(p.Operator.Compare(elapsed.Seconds(), p.Value))
}

// evalCustomerHistory matches returning customers by conversation count
// and historical satisfaction. A customer with no recorded satisfaction
// is skipped rather than failed.
func (e *Evaluator) evalCustomerHistory(p *rule.CustomerHistoryParams, snap *chat.ConversationSnapshot) Verdict {
	if p == nil || snap.Customer == nil {
		return VerdictSkipped
	}

	if snap.Customer.Conversations < p.MinConversations {
		return VerdictFalse
	}

	if snap.Customer.Satisfaction == nil {
		return VerdictSkipped
	}
	return verdictOf(p.SatisfactionOperator.Compare(*snap.Customer.Satisfaction, p.SatisfactionThreshold))
}

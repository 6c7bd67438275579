package automation

import (
	"sort"

	"github.com/c360/chatrules/types/chat"
	"github.com/c360/chatrules/types/rule"
)

// Matcher combines condition verdicts into per-rule match decisions and
// orders the matched set for the scheduler.
type Matcher struct {
	evaluator *Evaluator
}

// NewMatcher creates a matcher around an evaluator
func NewMatcher(evaluator *Evaluator) *Matcher {
	return &Matcher{evaluator: evaluator}
}

// Matches reports whether the rule matches the snapshot. Skipped verdicts
// are excluded from the combination; a rule whose enabled conditions all
// skip does not match, and a rule with zero enabled conditions never
// matches regardless of logic mode.
func (m *Matcher) Matches(r *rule.Rule, snap *chat.ConversationSnapshot) bool {
	enabled := r.EnabledConditions()
	if len(enabled) == 0 {
		return false
	}

	judged := 0
	trues := 0
	for _, cond := range enabled {
		switch m.evaluator.Evaluate(cond, snap) {
		case VerdictTrue:
			judged++
			trues++
		case VerdictFalse:
			judged++
			if r.ConditionsLogic == rule.LogicAND {
				return false
			}
		case VerdictSkipped:
			// excluded from the combination
		}
	}

	if judged == 0 {
		return false
	}
	if r.ConditionsLogic == rule.LogicOR {
		return trues > 0
	}
	return trues == judged
}

// Match filters the active rules to those matching the snapshot and
// returns them in execution order: ascending priority, then ascending
// execution order, then rule ID. The ordering is total, so two passes
// over the same inputs schedule identically.
func (m *Matcher) Match(rules []*rule.Rule, snap *chat.ConversationSnapshot) []*rule.Rule {
	var matched []*rule.Rule
	for _, r := range rules {
		if !r.Active {
			continue
		}
		if m.Matches(r, snap) {
			matched = append(matched, r)
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		if a.ExecutionOrder != b.ExecutionOrder {
			return a.ExecutionOrder < b.ExecutionOrder
		}
		return a.ID < b.ID
	})

	return matched
}

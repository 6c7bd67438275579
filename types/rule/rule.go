// Package rule defines the chat automation rule model: rules with typed
// trigger conditions, typed actions, AND/OR combination logic, and
// priority ordering. Every variant is validated at save time so malformed
// rules never reach a live evaluation pass.
package rule

import (
	"fmt"
	"time"

	"github.com/c360/chatrules/errors"
)

// ConditionsLogic determines how a rule's condition verdicts combine
type ConditionsLogic string

// Supported combination policies
const (
	LogicAND ConditionsLogic = "AND"
	LogicOR  ConditionsLogic = "OR"
)

// Valid reports whether the logic value is one of the supported policies
func (l ConditionsLogic) Valid() bool {
	return l == LogicAND || l == LogicOR
}

// Operator is a numeric comparison operator for threshold conditions
type Operator string

// Supported comparison operators
const (
	OpGreaterThan Operator = "greater_than"
	OpLessThan    Operator = "less_than"
	OpEquals      Operator = "equals"
)

// Valid reports whether the operator is supported
func (o Operator) Valid() bool {
	switch o {
	case OpGreaterThan, OpLessThan, OpEquals:
		return true
	default:
		return false
	}
}

// Compare applies the operator to value against threshold.
// Boundaries are strict: greater_than and less_than exclude equality.
func (o Operator) Compare(value, threshold float64) bool {
	switch o {
	case OpGreaterThan:
		return value > threshold
	case OpLessThan:
		return value < threshold
	case OpEquals:
		return value == threshold
	default:
		return false
	}
}

// Rule is a chat automation rule. Rules are immutable for the duration of
// one evaluation pass; a pass works on the snapshot of active rules taken
// at pass start.
type Rule struct {
	ID              string             `json:"id"`
	Name            string             `json:"name"`
	Priority        int                `json:"priority"` // 1 = highest precedence
	ExecutionOrder  int                `json:"execution_order"`
	ConditionsLogic ConditionsLogic    `json:"conditions_logic"`
	Active          bool               `json:"active"`
	Conditions      []TriggerCondition `json:"conditions"`
	Actions         []Action           `json:"actions"`

	// Store bookkeeping
	Version   int       `json:"version,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// EnabledConditions returns the rule's enabled conditions in authored order
func (r *Rule) EnabledConditions() []TriggerCondition {
	enabled := make([]TriggerCondition, 0, len(r.Conditions))
	for _, c := range r.Conditions {
		if c.Enabled {
			enabled = append(enabled, c)
		}
	}
	return enabled
}

// EnabledActions returns the rule's enabled actions in authored order
func (r *Rule) EnabledActions() []Action {
	enabled := make([]Action, 0, len(r.Actions))
	for _, a := range r.Actions {
		if a.Enabled {
			enabled = append(enabled, a)
		}
	}
	return enabled
}

// Validate checks the whole rule definition. A failure here is a
// configuration error: the rule must be rejected at save time and excluded
// from matching, never evaluated.
func (r *Rule) Validate() error {
	if r.ID == "" {
		return errors.WrapInvalid(fmt.Errorf("rule ID cannot be empty"), "Rule", "Validate", "check identity")
	}
	if r.Name == "" {
		return errors.WrapInvalid(fmt.Errorf("rule %s: name cannot be empty", r.ID), "Rule", "Validate", "check identity")
	}
	if r.Priority < 1 {
		return errors.WrapInvalid(
			fmt.Errorf("rule %s: priority must be a positive integer, got %d", r.ID, r.Priority),
			"Rule", "Validate", "check priority")
	}
	if !r.ConditionsLogic.Valid() {
		return errors.WrapInvalid(
			fmt.Errorf("rule %s: conditions_logic must be AND or OR, got %q", r.ID, r.ConditionsLogic),
			"Rule", "Validate", "check conditions logic")
	}

	enabled := 0
	for i := range r.Conditions {
		if err := r.Conditions[i].Validate(); err != nil {
			return fmt.Errorf("rule %s: condition %d: %w", r.ID, i, err)
		}
		if r.Conditions[i].Enabled {
			enabled++
		}
	}
	if enabled == 0 {
		// A rule with zero enabled conditions must never match; reject it
		// at authoring time instead of silently never firing.
		return errors.WrapInvalid(
			fmt.Errorf("rule %s: %w", r.ID, errors.ErrNoEnabledConditions),
			"Rule", "Validate", "check enabled conditions")
	}

	if len(r.Actions) == 0 {
		return errors.WrapInvalid(
			fmt.Errorf("rule %s: rule must define at least one action", r.ID),
			"Rule", "Validate", "check actions")
	}
	seen := make(map[ActionCategory]int, len(r.Actions))
	for i := range r.Actions {
		if err := r.Actions[i].Validate(); err != nil {
			return fmt.Errorf("rule %s: action %d: %w", r.ID, i, err)
		}
		if !r.Actions[i].Enabled {
			continue
		}
		// One enabled action per category: a repeat would share the audit
		// identity (event, rule, category) with its sibling, and a repeated
		// exclusive category would execute twice in one pass.
		if first, dup := seen[r.Actions[i].Category]; dup {
			return errors.WrapInvalid(
				fmt.Errorf("rule %s: actions %d and %d both enable category %s", r.ID, first, i, r.Actions[i].Category),
				"Rule", "Validate", "check action categories")
		}
		seen[r.Actions[i].Category] = i
	}

	return nil
}

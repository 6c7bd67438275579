package rule

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/c360/chatrules/errors"
)

// ConditionCategory identifies a trigger condition variant
type ConditionCategory string

// Supported trigger condition categories
const (
	ConditionKeyword         ConditionCategory = "keyword"
	ConditionCustomerType    ConditionCategory = "customer_type"
	ConditionTimeWindow      ConditionCategory = "time_window"
	ConditionQueueLength     ConditionCategory = "queue_length"
	ConditionCustomerHistory ConditionCategory = "customer_history"
	ConditionMessageCount    ConditionCategory = "message_count"
	ConditionResponseTime    ConditionCategory = "response_time"
)

// Valid reports whether the category is supported
func (c ConditionCategory) Valid() bool {
	switch c {
	case ConditionKeyword, ConditionCustomerType, ConditionTimeWindow,
		ConditionQueueLength, ConditionCustomerHistory,
		ConditionMessageCount, ConditionResponseTime:
		return true
	default:
		return false
	}
}

// TriggerCondition is one typed predicate inside a rule. Exactly one
// parameter variant is set, selected by Category. Threshold covers the
// three numeric categories (queue_length, message_count, response_time).
type TriggerCondition struct {
	Category ConditionCategory `json:"category"`
	Enabled  bool              `json:"enabled"`

	Keyword         *KeywordParams         `json:"keyword,omitempty"`
	CustomerType    *CustomerTypeParams    `json:"customer_type,omitempty"`
	TimeWindow      *TimeWindowParams      `json:"time_window,omitempty"`
	Threshold       *ThresholdParams       `json:"threshold,omitempty"`
	CustomerHistory *CustomerHistoryParams `json:"customer_history,omitempty"`
}

// KeywordParams matches any keyword as a case-insensitive substring of the
// latest message
type KeywordParams struct {
	Keywords []string `json:"keywords"`
}

// CustomerTypeParams matches when the customer's type is in the set
type CustomerTypeParams struct {
	Types []string `json:"types"`
}

// TimeWindowParams restricts a rule to business-hour windows in a timezone
type TimeWindowParams struct {
	Timezone string   `json:"timezone"`
	Windows  []Window `json:"windows"`
}

// Window is one allowed weekly time range. Start and End use "HH:MM"
// 24-hour clock; End is exclusive. Empty Days means every day.
type Window struct {
	Days  []time.Weekday `json:"days,omitempty"`
	Start string         `json:"start"`
	End   string         `json:"end"`
}

// Contains reports whether t (already in the window's timezone) falls
// inside the window
func (w Window) Contains(t time.Time) bool {
	if len(w.Days) > 0 {
		dayOK := false
		for _, d := range w.Days {
			if t.Weekday() == d {
				dayOK = true
				break
			}
		}
		if !dayOK {
			return false
		}
	}

	start, err1 := parseClock(w.Start)
	end, err2 := parseClock(w.End)
	if err1 != nil || err2 != nil {
		return false
	}

	minute := t.Hour()*60 + t.Minute()
	if start <= end {
		return minute >= start && minute < end
	}
	// Window crosses midnight
	return minute >= start || minute < end
}

// parseClock converts "HH:MM" to minutes since midnight
func parseClock(s string) (int, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid clock value %q", s)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	return hour*60 + minute, nil
}

// ThresholdParams is a numeric comparison against a conversation field.
// For response_time the value is in seconds.
type ThresholdParams struct {
	Operator Operator `json:"operator"`
	Value    float64  `json:"value"`
}

// CustomerHistoryParams matches returning customers whose satisfaction
// compares favorably against the threshold
type CustomerHistoryParams struct {
	MinConversations      int      `json:"min_conversations"`
	SatisfactionOperator  Operator `json:"satisfaction_operator"`
	SatisfactionThreshold float64  `json:"satisfaction_threshold"`
}

// Validate checks that the category is known and its parameter variant is
// present and well-formed
func (tc *TriggerCondition) Validate() error {
	if !tc.Category.Valid() {
		return errors.WrapInvalid(
			fmt.Errorf("%w: condition category %q", errors.ErrUnknownCategory, tc.Category),
			"TriggerCondition", "Validate", "check category")
	}

	switch tc.Category {
	case ConditionKeyword:
		if tc.Keyword == nil {
			return missingParams(tc.Category)
		}
		// An empty keyword list is allowed; the evaluator skips it.
	case ConditionCustomerType:
		if tc.CustomerType == nil {
			return missingParams(tc.Category)
		}
		if len(tc.CustomerType.Types) == 0 {
			return errors.WrapInvalid(
				fmt.Errorf("customer_type condition requires at least one type"),
				"TriggerCondition", "Validate", "check params")
		}
	case ConditionTimeWindow:
		if tc.TimeWindow == nil {
			return missingParams(tc.Category)
		}
		if _, err := time.LoadLocation(tc.TimeWindow.Timezone); err != nil {
			return errors.WrapInvalid(
				fmt.Errorf("time_window condition has invalid timezone %q: %w", tc.TimeWindow.Timezone, err),
				"TriggerCondition", "Validate", "check params")
		}
		if len(tc.TimeWindow.Windows) == 0 {
			return errors.WrapInvalid(
				fmt.Errorf("time_window condition requires at least one window"),
				"TriggerCondition", "Validate", "check params")
		}
		for _, w := range tc.TimeWindow.Windows {
			if _, err := parseClock(w.Start); err != nil {
				return errors.WrapInvalid(err, "TriggerCondition", "Validate", "check window start")
			}
			if _, err := parseClock(w.End); err != nil {
				return errors.WrapInvalid(err, "TriggerCondition", "Validate", "check window end")
			}
		}
	case ConditionQueueLength, ConditionMessageCount, ConditionResponseTime:
		if tc.Threshold == nil {
			return missingParams(tc.Category)
		}
		if !tc.Threshold.Operator.Valid() {
			return errors.WrapInvalid(
				fmt.Errorf("%w: %q", errors.ErrUnknownOperator, tc.Threshold.Operator),
				"TriggerCondition", "Validate", "check operator")
		}
		if tc.Threshold.Value < 0 {
			return errors.WrapInvalid(
				fmt.Errorf("%s condition threshold cannot be negative", tc.Category),
				"TriggerCondition", "Validate", "check params")
		}
	case ConditionCustomerHistory:
		if tc.CustomerHistory == nil {
			return missingParams(tc.Category)
		}
		if tc.CustomerHistory.MinConversations < 0 {
			return errors.WrapInvalid(
				fmt.Errorf("customer_history min_conversations cannot be negative"),
				"TriggerCondition", "Validate", "check params")
		}
		if !tc.CustomerHistory.SatisfactionOperator.Valid() {
			return errors.WrapInvalid(
				fmt.Errorf("%w: %q", errors.ErrUnknownOperator, tc.CustomerHistory.SatisfactionOperator),
				"TriggerCondition", "Validate", "check operator")
		}
	}

	return nil
}

func missingParams(category ConditionCategory) error {
	return errors.WrapInvalid(
		fmt.Errorf("condition category %s requires its parameter block", category),
		"TriggerCondition", "Validate", "check params")
}

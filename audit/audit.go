// Package audit provides the append-only execution log. Every
// (event, rule, action) outcome is recorded as an ExecutionResult row;
// the scheduler reads the log to deduplicate redelivered events and the
// reporting surface reads it for dashboards. Rows are never updated in
// place; a retried attempt appends a new row with an incremented attempt
// counter.
package audit

import (
	"context"
	"sync"
	"time"

	"github.com/c360/chatrules/types/rule"
)

// Status is the recorded outcome of one action dispatch
type Status string

// Execution result statuses
const (
	// StatusApplied means the action executed successfully
	StatusApplied Status = "applied"
	// StatusSuperseded means a higher-priority rule already claimed the
	// exclusive category in this pass
	StatusSuperseded Status = "superseded"
	// StatusSkippedDisabled means the action was present but disabled
	StatusSkippedDisabled Status = "skipped_disabled"
	// StatusSkippedDuplicate means the dedupe key was already recorded as
	// applied or failed_permanent (event redelivery)
	StatusSkippedDuplicate Status = "skipped_duplicate"
	// StatusFailedRetrying means a transient failure that will be retried
	StatusFailedRetrying Status = "failed_retrying"
	// StatusFailedPermanent means the action will not be attempted again
	StatusFailedPermanent Status = "failed_permanent"
)

// Terminal reports whether the status closes the dedupe key: a redelivered
// event must not re-dispatch an action recorded with a terminal status.
func (s Status) Terminal() bool {
	return s == StatusApplied || s == StatusFailedPermanent
}

// ExecutionResult is one append-only audit row
type ExecutionResult struct {
	EventID        string              `json:"event_id"`
	RuleID         string              `json:"rule_id"`
	ConversationID string              `json:"conversation_id"`
	ActionCategory rule.ActionCategory `json:"action_category"`
	Status         Status              `json:"status"`
	Attempt        int                 `json:"attempt"`
	Error          string              `json:"error,omitempty"`
	At             time.Time           `json:"at"`
}

// Log is the audit log contract. Append must be durable before the
// scheduler treats an action as recorded; if the log is unreachable the
// whole pass aborts so the event can be redelivered.
type Log interface {
	// Append records one result row
	Append(ctx context.Context, result ExecutionResult) error
	// LastStatus returns the most recent status for a dedupe key, with
	// found=false when the key has never been recorded
	LastStatus(ctx context.Context, eventID, ruleID string, category rule.ActionCategory) (Status, bool, error)
	// Results returns all rows recorded for an event, in append order
	Results(ctx context.Context, eventID string) ([]ExecutionResult, error)
}

// MemoryLog is an in-memory Log used in tests
type MemoryLog struct {
	mu   sync.RWMutex
	rows []ExecutionResult
	last map[string]Status
}

// NewMemoryLog creates an empty in-memory log
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{last: make(map[string]Status)}
}

func dedupeKey(eventID, ruleID string, category rule.ActionCategory) string {
	return eventID + "." + ruleID + "." + string(category)
}

// Append records one result row
func (l *MemoryLog) Append(_ context.Context, result ExecutionResult) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if result.At.IsZero() {
		result.At = time.Now().UTC()
	}
	l.rows = append(l.rows, result)

	// A terminal index entry is never overwritten: redelivery rows such as
	// skipped_duplicate must not reopen a decided dedupe key.
	key := dedupeKey(result.EventID, result.RuleID, result.ActionCategory)
	if existing, ok := l.last[key]; !ok || !existing.Terminal() {
		l.last[key] = result.Status
	}
	return nil
}

// LastStatus returns the most recent status for a dedupe key
func (l *MemoryLog) LastStatus(_ context.Context, eventID, ruleID string, category rule.ActionCategory) (Status, bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	status, ok := l.last[dedupeKey(eventID, ruleID, category)]
	return status, ok, nil
}

// Results returns all rows recorded for an event, in append order
func (l *MemoryLog) Results(_ context.Context, eventID string) ([]ExecutionResult, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []ExecutionResult
	for _, row := range l.rows {
		if row.EventID == eventID {
			out = append(out, row)
		}
	}
	return out, nil
}

// All returns every recorded row; test helper
func (l *MemoryLog) All() []ExecutionResult {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]ExecutionResult, len(l.rows))
	copy(out, l.rows)
	return out
}

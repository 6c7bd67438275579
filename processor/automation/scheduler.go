package automation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/c360/chatrules/audit"
	"github.com/c360/chatrules/errors"
	"github.com/c360/chatrules/executor"
	"github.com/c360/chatrules/types/chat"
	"github.com/c360/chatrules/types/rule"
)

// LivenessProbe checks whether a conversation can still receive actions.
// The scheduler consults it between rules so a pass over a conversation
// that closed mid-pass abandons the remaining rules instead of acting on
// a dead conversation.
type LivenessProbe interface {
	State(ctx context.Context, conversationID string) (chat.ConversationState, error)
}

// Scheduler runs one execution pass per event: it walks the matched rules
// in order, arbitrates exclusive action categories, deduplicates against
// the audit log, and dispatches the surviving actions. Rules run
// sequentially; the enabled actions of one rule fan out concurrently.
type Scheduler struct {
	dispatcher *executor.Dispatcher
	log        audit.Log
	probe      LivenessProbe
	metrics    *ruleMetrics
	logger     *slog.Logger
}

// NewScheduler creates a scheduler. probe may be nil, in which case the
// snapshot's captured state is trusted for the whole pass.
func NewScheduler(dispatcher *executor.Dispatcher, auditLog audit.Log, probe LivenessProbe, metrics *ruleMetrics) *Scheduler {
	return &Scheduler{
		dispatcher: dispatcher,
		log:        auditLog,
		probe:      probe,
		metrics:    metrics,
		logger:     slog.Default().With("component", "scheduler"),
	}
}

// Run executes one pass for the event over the matched rules. The error
// is non-nil only for pass-fatal failures (audit log unreachable), in
// which case the caller must not acknowledge the event.
func (s *Scheduler) Run(ctx context.Context, event chat.ConversationEvent, matched []*rule.Rule) error {
	claimed := make(map[rule.ActionCategory]string) // category -> claiming rule ID

	for i, r := range matched {
		// Re-check liveness between rules; the first rule trusts the
		// snapshot the matcher already used.
		if i > 0 && s.probe != nil {
			state, err := s.probe.State(ctx, event.ConversationID)
			if err == nil && state != chat.StateOpen {
				s.logger.Info("conversation no longer open, abandoning pass",
					"conversation_id", event.ConversationID,
					"state", string(state),
					"rules_remaining", len(matched)-i)
				return nil
			}
		}

		if err := s.runRule(ctx, event, r, claimed); err != nil {
			return err
		}
	}

	return nil
}

// runRule dispatches one rule's actions. Exclusive-category and dedupe
// decisions are made up front, sequentially, so the concurrent dispatch
// below never races on the claimed set or the audit index.
func (s *Scheduler) runRule(ctx context.Context, event chat.ConversationEvent, r *rule.Rule, claimed map[rule.ActionCategory]string) error {
	type job struct {
		action rule.Action
	}

	var jobs []job
	queued := make(map[rule.ActionCategory]bool)
	for _, action := range r.Actions {
		if !action.Enabled {
			if err := s.append(ctx, event, r.ID, action.Category, audit.StatusSkippedDisabled, 0, ""); err != nil {
				return err
			}
			continue
		}

		if action.Category.Exclusive() {
			if owner, taken := claimed[action.Category]; taken {
				s.logger.Debug("exclusive category already claimed",
					"rule_id", r.ID,
					"category", string(action.Category),
					"claimed_by", owner)
				if err := s.append(ctx, event, r.ID, action.Category, audit.StatusSuperseded, 0, ""); err != nil {
					return err
				}
				if s.metrics != nil {
					s.metrics.supersededTotal.WithLabelValues(string(action.Category)).Inc()
				}
				continue
			}
		}

		last, found, err := s.log.LastStatus(ctx, event.EventID, r.ID, action.Category)
		if err != nil {
			return err
		}
		if found && last.Terminal() {
			if err := s.append(ctx, event, r.ID, action.Category, audit.StatusSkippedDuplicate, 0, ""); err != nil {
				return err
			}
			// An already-applied exclusive action still holds its claim on
			// redelivery, so lower-priority rules stay superseded.
			if last == audit.StatusApplied && action.Category.Exclusive() {
				claimed[action.Category] = r.ID
			}
			continue
		}

		// Save-time validation rejects category repeats inside a rule, but a
		// rule reaching the scheduler another way still gets one exclusive
		// execution: the first enabled action in authored order wins.
		if action.Category.Exclusive() && queued[action.Category] {
			if err := s.append(ctx, event, r.ID, action.Category, audit.StatusSuperseded, 0, ""); err != nil {
				return err
			}
			if s.metrics != nil {
				s.metrics.supersededTotal.WithLabelValues(string(action.Category)).Inc()
			}
			continue
		}
		queued[action.Category] = true

		jobs = append(jobs, job{action: action})
	}

	if len(jobs) == 0 {
		return nil
	}

	var wg sync.WaitGroup
	errs := make([]error, len(jobs))
	applied := make([]bool, len(jobs))

	for i, j := range jobs {
		wg.Add(1)
		go func(i int, action rule.Action) {
			defer wg.Done()
			ok, err := s.dispatch(ctx, event, r.ID, action)
			applied[i] = ok
			errs[i] = err
		}(i, j.action)
	}
	wg.Wait()

	// One rule's action failing never blocks its siblings, but an audit
	// failure anywhere aborts the pass.
	for i, err := range errs {
		if err != nil {
			return err
		}
		if applied[i] && jobs[i].action.Category.Exclusive() {
			claimed[jobs[i].action.Category] = r.ID
		}
	}

	return nil
}

// dispatch executes one action with retries, recording one audit row per
// attempt outcome. The bool reports whether the action was applied; the
// error is non-nil only when the audit log is unreachable.
func (s *Scheduler) dispatch(ctx context.Context, event chat.ConversationEvent, ruleID string, action rule.Action) (bool, error) {
	start := time.Now()
	attempts := 1
	var auditErr error

	onRetry := func(attempt int, attemptErr error) {
		attempts = attempt + 1
		if s.metrics != nil {
			s.metrics.retriesTotal.WithLabelValues(string(action.Category)).Inc()
		}
		if err := s.append(ctx, event, ruleID, action.Category, audit.StatusFailedRetrying, attempt, attemptErr.Error()); err != nil && auditErr == nil {
			auditErr = err
		}
	}

	dispatchErr := s.dispatcher.Dispatch(ctx, event.ConversationID, action, onRetry)
	if auditErr != nil {
		return false, auditErr
	}

	if s.metrics != nil {
		s.metrics.dispatchSeconds.WithLabelValues(string(action.Category)).Observe(time.Since(start).Seconds())
	}

	if dispatchErr != nil {
		s.logger.Warn("action failed permanently",
			"event_id", event.EventID,
			"rule_id", ruleID,
			"category", string(action.Category),
			"attempts", attempts,
			"error", dispatchErr)
		if s.metrics != nil {
			s.metrics.actionsTotal.WithLabelValues(string(action.Category), string(audit.StatusFailedPermanent)).Inc()
		}
		return false, s.append(ctx, event, ruleID, action.Category, audit.StatusFailedPermanent, attempts, dispatchErr.Error())
	}

	if s.metrics != nil {
		s.metrics.actionsTotal.WithLabelValues(string(action.Category), string(audit.StatusApplied)).Inc()
	}
	return true, s.append(ctx, event, ruleID, action.Category, audit.StatusApplied, attempts, "")
}

// append writes one audit row; failure is escalated to a pass-fatal error
func (s *Scheduler) append(ctx context.Context, event chat.ConversationEvent, ruleID string, category rule.ActionCategory, status audit.Status, attempt int, errMsg string) error {
	err := s.log.Append(ctx, audit.ExecutionResult{
		EventID:        event.EventID,
		RuleID:         ruleID,
		ConversationID: event.ConversationID,
		ActionCategory: category,
		Status:         status,
		Attempt:        attempt,
		Error:          errMsg,
	})
	if err != nil {
		return errors.WrapFatal(
			fmt.Errorf("%w: %w", errors.ErrAuditUnavailable, err),
			"Scheduler", "append", "record execution result")
	}
	return nil
}

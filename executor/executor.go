// Package executor defines the action executor contracts and dispatches
// rule actions to them. Each executor wraps exactly one external side
// effect; the dispatcher bounds every call with a timeout and retries
// transient failures with exponential backoff.
package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/c360/chatrules/errors"
	"github.com/c360/chatrules/types/rule"
)

// AutoResponder sends an automated message into a conversation
type AutoResponder interface {
	Send(ctx context.Context, conversationID, message string, delay time.Duration) error
}

// Router re-routes a conversation by criteria
type Router interface {
	Assign(ctx context.Context, conversationID string, criteria map[string]string) error
}

// Escalator raises a conversation to a department at a priority
type Escalator interface {
	Raise(ctx context.Context, conversationID, priority, department string) error
}

// Tagger adds or removes conversation tags
type Tagger interface {
	Apply(ctx context.Context, conversationID string, tags []string, mode rule.TagMode) error
}

// Assigner assigns a conversation to an agent
type Assigner interface {
	Set(ctx context.Context, conversationID, agentID string) error
}

// Notifier dispatches a templated notification
type Notifier interface {
	Dispatch(ctx context.Context, channel string, recipients []string, template string, payload map[string]any) error
}

// WorkflowInvoker invokes an ordered workflow step sequence
type WorkflowInvoker interface {
	Invoke(ctx context.Context, conversationID string, steps []rule.WorkflowStep) error
}

// Registry holds one executor per action category
type Registry struct {
	AutoResponder   AutoResponder
	Router          Router
	Escalator       Escalator
	Tagger          Tagger
	Assigner        Assigner
	Notifier        Notifier
	WorkflowInvoker WorkflowInvoker
}

// Execute routes one enabled action to its executor. The action is assumed
// validated at rule-save time; a missing executor or parameter block here
// is an invalid (non-retryable) error.
func (r *Registry) Execute(ctx context.Context, conversationID string, action rule.Action) error {
	switch action.Category {
	case rule.ActionAutoResponse:
		if r.AutoResponder == nil || action.AutoResponse == nil {
			return r.unwired(action.Category)
		}
		delay := time.Duration(action.AutoResponse.DelaySeconds) * time.Second
		return r.AutoResponder.Send(ctx, conversationID, action.AutoResponse.Message, delay)
	case rule.ActionRouting:
		if r.Router == nil || action.Routing == nil {
			return r.unwired(action.Category)
		}
		return r.Router.Assign(ctx, conversationID, action.Routing.Criteria)
	case rule.ActionEscalation:
		if r.Escalator == nil || action.Escalation == nil {
			return r.unwired(action.Category)
		}
		return r.Escalator.Raise(ctx, conversationID, action.Escalation.Priority, action.Escalation.Department)
	case rule.ActionTagging:
		if r.Tagger == nil || action.Tagging == nil {
			return r.unwired(action.Category)
		}
		return r.Tagger.Apply(ctx, conversationID, action.Tagging.Tags, action.Tagging.Mode)
	case rule.ActionAssignment:
		if r.Assigner == nil || action.Assignment == nil {
			return r.unwired(action.Category)
		}
		return r.Assigner.Set(ctx, conversationID, action.Assignment.AgentID)
	case rule.ActionNotification:
		if r.Notifier == nil || action.Notification == nil {
			return r.unwired(action.Category)
		}
		n := action.Notification
		return r.Notifier.Dispatch(ctx, n.Channel, n.Recipients, n.Template, n.Payload)
	case rule.ActionWorkflow:
		if r.WorkflowInvoker == nil || action.Workflow == nil {
			return r.unwired(action.Category)
		}
		return r.WorkflowInvoker.Invoke(ctx, conversationID, action.Workflow.Steps)
	default:
		return errors.WrapInvalid(
			fmt.Errorf("%w: action category %q", errors.ErrUnknownCategory, action.Category),
			"Registry", "Execute", "route action")
	}
}

func (r *Registry) unwired(category rule.ActionCategory) error {
	return errors.WrapInvalid(
		fmt.Errorf("no executor wired for action category %s", category),
		"Registry", "Execute", "route action")
}

package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/c360/chatrules/errors"
	"github.com/c360/chatrules/natsclient"
	"github.com/c360/chatrules/types/rule"
)

// SubjectPrefix is the command subject prefix; commands are published to
// chat.action.<category>
const SubjectPrefix = "chat.action"

// NATSExecutors implements every executor contract by publishing a typed
// command to the category's subject. The chat platform's own services
// consume these subjects and perform the real side effect; publishing
// the same command twice is therefore safe only because the scheduler
// deduplicates on (event, rule, category) before dispatch.
type NATSExecutors struct {
	client *natsclient.Client
}

// NewNATSExecutors creates NATS-backed executors
func NewNATSExecutors(client *natsclient.Client) *NATSExecutors {
	return &NATSExecutors{client: client}
}

// NewNATSRegistry wires all seven categories to NATS-backed executors
func NewNATSRegistry(client *natsclient.Client) *Registry {
	e := NewNATSExecutors(client)
	return &Registry{
		AutoResponder:   e,
		Router:          e,
		Escalator:       e,
		Tagger:          e,
		Assigner:        e,
		Notifier:        e,
		WorkflowInvoker: e,
	}
}

// publish marshals a command and publishes it to the category subject
func (e *NATSExecutors) publish(ctx context.Context, category rule.ActionCategory, command map[string]any) error {
	command["issued_at"] = time.Now().UTC().Format(time.RFC3339Nano)

	data, err := json.Marshal(command)
	if err != nil {
		return errors.WrapInvalid(err, "NATSExecutors", "publish", "marshal command")
	}

	subject := fmt.Sprintf("%s.%s", SubjectPrefix, category)
	if err := e.client.Publish(ctx, subject, data); err != nil {
		return errors.WrapTransient(err, "NATSExecutors", "publish", fmt.Sprintf("publish to %s", subject))
	}

	return nil
}

// Send publishes an auto-response command
func (e *NATSExecutors) Send(ctx context.Context, conversationID, message string, delay time.Duration) error {
	return e.publish(ctx, rule.ActionAutoResponse, map[string]any{
		"conversation_id": conversationID,
		"message":         message,
		"delay_seconds":   int(delay / time.Second),
	})
}

// Assign publishes a routing command
func (e *NATSExecutors) Assign(ctx context.Context, conversationID string, criteria map[string]string) error {
	return e.publish(ctx, rule.ActionRouting, map[string]any{
		"conversation_id": conversationID,
		"criteria":        criteria,
	})
}

// Raise publishes an escalation command
func (e *NATSExecutors) Raise(ctx context.Context, conversationID, priority, department string) error {
	return e.publish(ctx, rule.ActionEscalation, map[string]any{
		"conversation_id": conversationID,
		"priority":        priority,
		"department":      department,
	})
}

// Apply publishes a tagging command
func (e *NATSExecutors) Apply(ctx context.Context, conversationID string, tags []string, mode rule.TagMode) error {
	return e.publish(ctx, rule.ActionTagging, map[string]any{
		"conversation_id": conversationID,
		"tags":            tags,
		"mode":            string(mode),
	})
}

// Set publishes an assignment command
func (e *NATSExecutors) Set(ctx context.Context, conversationID, agentID string) error {
	return e.publish(ctx, rule.ActionAssignment, map[string]any{
		"conversation_id": conversationID,
		"agent_id":        agentID,
	})
}

// Dispatch publishes a notification command
func (e *NATSExecutors) Dispatch(ctx context.Context, channel string, recipients []string, template string, payload map[string]any) error {
	return e.publish(ctx, rule.ActionNotification, map[string]any{
		"channel":    channel,
		"recipients": recipients,
		"template":   template,
		"payload":    payload,
	})
}

// Invoke publishes a workflow invocation command
func (e *NATSExecutors) Invoke(ctx context.Context, conversationID string, steps []rule.WorkflowStep) error {
	return e.publish(ctx, rule.ActionWorkflow, map[string]any{
		"conversation_id": conversationID,
		"steps":           steps,
	})
}

package rule

import (
	"fmt"

	"github.com/c360/chatrules/errors"
)

// ActionCategory identifies an action variant
type ActionCategory string

// Supported action categories
const (
	ActionAutoResponse ActionCategory = "auto_response"
	ActionRouting      ActionCategory = "routing"
	ActionEscalation   ActionCategory = "escalation"
	ActionTagging      ActionCategory = "tagging"
	ActionAssignment   ActionCategory = "assignment"
	ActionNotification ActionCategory = "notification"
	ActionWorkflow     ActionCategory = "workflow"
)

// Valid reports whether the category is supported
func (c ActionCategory) Valid() bool {
	switch c {
	case ActionAutoResponse, ActionRouting, ActionEscalation, ActionTagging,
		ActionAssignment, ActionNotification, ActionWorkflow:
		return true
	default:
		return false
	}
}

// Exclusive reports whether the category represents a single mutable
// conversation field. The first matched rule in priority order claims an
// exclusive category for the pass; later same-category actions are
// superseded. Additive categories run for every matched rule.
func (c ActionCategory) Exclusive() bool {
	switch c {
	case ActionRouting, ActionEscalation, ActionAssignment:
		return true
	default:
		return false
	}
}

// TagMode selects whether tags are added or removed
type TagMode string

// Supported tag modes
const (
	TagModeAdd    TagMode = "add"
	TagModeRemove TagMode = "remove"
)

// Action is one typed side effect inside a rule. Exactly one parameter
// variant is set, selected by Category.
type Action struct {
	Category ActionCategory `json:"category"`
	Enabled  bool           `json:"enabled"`

	AutoResponse *AutoResponseParams `json:"auto_response,omitempty"`
	Routing      *RoutingParams      `json:"routing,omitempty"`
	Escalation   *EscalationParams   `json:"escalation,omitempty"`
	Tagging      *TaggingParams      `json:"tagging,omitempty"`
	Assignment   *AssignmentParams   `json:"assignment,omitempty"`
	Notification *NotificationParams `json:"notification,omitempty"`
	Workflow     *WorkflowParams     `json:"workflow,omitempty"`
}

// AutoResponseParams sends an automated message into the conversation
type AutoResponseParams struct {
	Message      string `json:"message"`
	DelaySeconds int    `json:"delay_seconds,omitempty"`
}

// RoutingParams re-routes the conversation by criteria (queue, skill, ...)
type RoutingParams struct {
	Criteria map[string]string `json:"criteria"`
}

// EscalationParams raises the conversation to a department at a priority
type EscalationParams struct {
	Priority   string `json:"priority"`
	Department string `json:"department"`
}

// TaggingParams adds or removes conversation tags
type TaggingParams struct {
	Tags []string `json:"tags"`
	Mode TagMode  `json:"mode"`
}

// AssignmentParams assigns the conversation to a specific agent
type AssignmentParams struct {
	AgentID string `json:"agent_id"`
}

// NotificationParams dispatches a templated notification to recipients
type NotificationParams struct {
	Channel    string         `json:"channel"`
	Recipients []string       `json:"recipients"`
	Template   string         `json:"template"`
	Payload    map[string]any `json:"payload,omitempty"`
}

// WorkflowParams invokes an ordered sequence of workflow steps
type WorkflowParams struct {
	Steps []WorkflowStep `json:"steps"`
}

// WorkflowStep is one step in a workflow invocation
type WorkflowStep struct {
	Type   string         `json:"type"`
	Params map[string]any `json:"params,omitempty"`
}

// Validate checks that the category is known and its parameter variant is
// present and well-formed
func (a *Action) Validate() error {
	if !a.Category.Valid() {
		return errors.WrapInvalid(
			fmt.Errorf("%w: action category %q", errors.ErrUnknownCategory, a.Category),
			"Action", "Validate", "check category")
	}

	switch a.Category {
	case ActionAutoResponse:
		if a.AutoResponse == nil {
			return missingActionParams(a.Category)
		}
		if a.AutoResponse.Message == "" {
			return invalidActionParams("auto_response requires a message")
		}
		if a.AutoResponse.DelaySeconds < 0 {
			return invalidActionParams("auto_response delay cannot be negative")
		}
	case ActionRouting:
		if a.Routing == nil {
			return missingActionParams(a.Category)
		}
		if len(a.Routing.Criteria) == 0 {
			return invalidActionParams("routing requires at least one criterion")
		}
	case ActionEscalation:
		if a.Escalation == nil {
			return missingActionParams(a.Category)
		}
		if a.Escalation.Priority == "" {
			return invalidActionParams("escalation requires a priority")
		}
	case ActionTagging:
		if a.Tagging == nil {
			return missingActionParams(a.Category)
		}
		if len(a.Tagging.Tags) == 0 {
			return invalidActionParams("tagging requires at least one tag")
		}
		if a.Tagging.Mode != TagModeAdd && a.Tagging.Mode != TagModeRemove {
			return invalidActionParams(fmt.Sprintf("tagging mode must be add or remove, got %q", a.Tagging.Mode))
		}
	case ActionAssignment:
		if a.Assignment == nil {
			return missingActionParams(a.Category)
		}
		if a.Assignment.AgentID == "" {
			return invalidActionParams("assignment requires an agent_id")
		}
	case ActionNotification:
		if a.Notification == nil {
			return missingActionParams(a.Category)
		}
		if a.Notification.Channel == "" {
			return invalidActionParams("notification requires a channel")
		}
		if len(a.Notification.Recipients) == 0 {
			return invalidActionParams("notification requires at least one recipient")
		}
	case ActionWorkflow:
		if a.Workflow == nil {
			return missingActionParams(a.Category)
		}
		if len(a.Workflow.Steps) == 0 {
			return invalidActionParams("workflow requires at least one step")
		}
		for i, step := range a.Workflow.Steps {
			if step.Type == "" {
				return invalidActionParams(fmt.Sprintf("workflow step %d missing type", i))
			}
		}
	}

	return nil
}

func missingActionParams(category ActionCategory) error {
	return errors.WrapInvalid(
		fmt.Errorf("action category %s requires its parameter block", category),
		"Action", "Validate", "check params")
}

func invalidActionParams(msg string) error {
	return errors.WrapInvalid(
		fmt.Errorf("%w: %s", errors.ErrActionValidation, msg),
		"Action", "Validate", "check params")
}

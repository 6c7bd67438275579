// Package chat defines the conversation-side types the engine evaluates:
// inbound conversation events and the read-only snapshot built for each
// evaluation pass.
package chat

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/c360/chatrules/errors"
)

// EventType identifies what happened to a conversation
type EventType string

// Supported conversation event types
const (
	EventConversationCreated EventType = "created"
	EventMessageReceived     EventType = "message_received"
	EventQueueChanged        EventType = "queue_changed"
	EventPeriodicTick        EventType = "periodic_tick"
)

// Valid reports whether the event type is supported
func (t EventType) Valid() bool {
	switch t {
	case EventConversationCreated, EventMessageReceived, EventQueueChanged, EventPeriodicTick:
		return true
	default:
		return false
	}
}

// ConversationEvent is the unit of work delivered by the event source.
// The engine builds a ConversationSnapshot on receipt and runs one
// evaluation pass per event.
type ConversationEvent struct {
	EventID        string    `json:"event_id"`
	ConversationID string    `json:"conversation_id"`
	Type           EventType `json:"type"`
	At             time.Time `json:"at"`
}

// NewConversationEvent creates an event with a fresh event ID
func NewConversationEvent(conversationID string, eventType EventType) ConversationEvent {
	return ConversationEvent{
		EventID:        uuid.NewString(),
		ConversationID: conversationID,
		Type:           eventType,
		At:             time.Now().UTC(),
	}
}

// Validate checks the event is routable
func (e *ConversationEvent) Validate() error {
	if e.EventID == "" {
		return errors.WrapInvalid(fmt.Errorf("event ID cannot be empty"), "ConversationEvent", "Validate", "check identity")
	}
	if e.ConversationID == "" {
		return errors.WrapInvalid(fmt.Errorf("conversation ID cannot be empty"), "ConversationEvent", "Validate", "check identity")
	}
	if !e.Type.Valid() {
		return errors.WrapInvalid(
			fmt.Errorf("%w: event type %q", errors.ErrUnknownCategory, e.Type),
			"ConversationEvent", "Validate", "check type")
	}
	return nil
}

// ConversationState is the lifecycle state of a conversation
type ConversationState string

// Conversation states
const (
	StateOpen    ConversationState = "open"
	StateClosed  ConversationState = "closed"
	StateDeleted ConversationState = "deleted"
)

// Message is one transcript entry
type Message struct {
	ID       string    `json:"id"`
	Sender   string    `json:"sender"` // "customer" or agent ID
	Body     string    `json:"body"`
	SentAt   time.Time `json:"sent_at"`
	Internal bool      `json:"internal,omitempty"`
}

// CustomerProfile summarizes the customer behind a conversation
type CustomerProfile struct {
	ID            string   `json:"id"`
	Type          string   `json:"type"` // e.g. "standard", "vip", "trial"
	Conversations int      `json:"conversations"` // historical conversation count
	Satisfaction  *float64 `json:"satisfaction,omitempty"` // historical average, absent for new customers
}

// ConversationSnapshot is a point-in-time, read-only view of a
// conversation used for one evaluation pass. It is built fresh per event
// and never mutated. Optional fields are pointers: nil means the backing
// store had no value, which the evaluator treats as "skipped" rather than
// false so sparse data cannot veto an otherwise-matching AND rule.
type ConversationSnapshot struct {
	ConversationID string            `json:"conversation_id"`
	State          ConversationState `json:"state"`

	LatestMessage *string   `json:"latest_message,omitempty"`
	Transcript    []Message `json:"transcript,omitempty"`

	Customer *CustomerProfile `json:"customer,omitempty"`

	QueueDepth        *int           `json:"queue_depth,omitempty"`
	MessageCount      *int           `json:"message_count,omitempty"`
	SinceLastResponse *time.Duration `json:"since_last_response,omitempty"`

	CapturedAt time.Time `json:"captured_at"`
}

// Open reports whether the conversation can still receive actions
func (s *ConversationSnapshot) Open() bool {
	return s.State == StateOpen
}

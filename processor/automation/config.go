package automation

import (
	"fmt"
	"time"

	"github.com/c360/chatrules/errors"
)

// Default event plumbing names
const (
	DefaultEventStream  = "CHAT_EVENTS"
	DefaultEventSubject = "chat.event.>"
	DefaultConsumerName = "chatrules-engine"
	DefaultWorkers      = 8
	DefaultQueueSize    = 256
	DefaultMaxDeliver   = 5
	DefaultAckWait      = 30 * time.Second
	DefaultEventMaxAge  = 24 * time.Hour
)

// Config controls the engine processor
type Config struct {
	// EventStream is the JetStream stream carrying conversation events
	EventStream string `json:"event_stream"`
	// EventSubject is the subject filter for the engine's consumer
	EventSubject string `json:"event_subject"`
	// ConsumerName is the durable consumer name; restarts resume from the
	// last acknowledged event
	ConsumerName string `json:"consumer_name"`
	// EventMaxAge bounds event retention in the stream
	EventMaxAge time.Duration `json:"event_max_age"`

	// Workers is the pool size; events for the same conversation always
	// land on the same worker
	Workers int `json:"workers"`
	// QueueSize is the per-worker queue capacity
	QueueSize int `json:"queue_size"`

	// MaxDeliver caps JetStream redeliveries of one event
	MaxDeliver int `json:"max_deliver"`
	// AckWait is how long JetStream waits for an ack before redelivering
	AckWait time.Duration `json:"ack_wait"`

	// CallTimeout bounds one executor call
	CallTimeout time.Duration `json:"call_timeout"`
}

// DefaultConfig returns the engine defaults
func DefaultConfig() Config {
	return Config{
		EventStream:  DefaultEventStream,
		EventSubject: DefaultEventSubject,
		ConsumerName: DefaultConsumerName,
		EventMaxAge:  DefaultEventMaxAge,
		Workers:      DefaultWorkers,
		QueueSize:    DefaultQueueSize,
		MaxDeliver:   DefaultMaxDeliver,
		AckWait:      DefaultAckWait,
		CallTimeout:  0, // dispatcher default
	}
}

// Validate checks the configuration and fills zero values with defaults
func (c *Config) Validate() error {
	if c.EventStream == "" {
		c.EventStream = DefaultEventStream
	}
	if c.EventSubject == "" {
		c.EventSubject = DefaultEventSubject
	}
	if c.ConsumerName == "" {
		c.ConsumerName = DefaultConsumerName
	}
	if c.EventMaxAge <= 0 {
		c.EventMaxAge = DefaultEventMaxAge
	}
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.QueueSize <= 0 {
		c.QueueSize = DefaultQueueSize
	}
	if c.MaxDeliver <= 0 {
		c.MaxDeliver = DefaultMaxDeliver
	}
	if c.AckWait <= 0 {
		c.AckWait = DefaultAckWait
	}
	if c.CallTimeout < 0 {
		return errors.WrapInvalid(
			fmt.Errorf("call_timeout cannot be negative"),
			"Config", "Validate", "check call timeout")
	}
	return nil
}

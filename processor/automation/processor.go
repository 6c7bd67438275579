package automation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/chatrules/audit"
	"github.com/c360/chatrules/component"
	"github.com/c360/chatrules/errors"
	"github.com/c360/chatrules/executor"
	"github.com/c360/chatrules/metric"
	"github.com/c360/chatrules/natsclient"
	"github.com/c360/chatrules/pkg/retry"
	"github.com/c360/chatrules/pkg/worker"
	"github.com/c360/chatrules/rulestore"
	"github.com/c360/chatrules/types/chat"
	"github.com/c360/chatrules/types/rule"
)

// Deps are the processor's external collaborators
type Deps struct {
	Client    *natsclient.Client
	Rules     rulestore.Store
	Snapshots SnapshotSource
	Probe     LivenessProbe
	Executors *executor.Registry
	Audit     audit.Log
	Metrics   *metric.MetricsRegistry
}

// Processor is the engine component: it consumes conversation events from
// JetStream, partitions them by conversation so each conversation's passes
// are serialized, and runs one match-and-schedule pass per event.
type Processor struct {
	cfg  Config
	deps Deps

	matcher   *Matcher
	scheduler *Scheduler
	pool      *worker.KeyedPool[jetstream.Msg]
	metrics   *ruleMetrics
	logger    *slog.Logger

	consumeCtx jetstream.ConsumeContext

	stateMu sync.RWMutex
	state   component.State

	startTime time.Time
	processed atomic.Int64
	failed    atomic.Int64
	lastError atomic.Value // stores string
}

// NewProcessor creates a processor; call Initialize before Start
func NewProcessor(cfg Config, deps Deps) (*Processor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Client == nil {
		return nil, errors.WrapInvalid(fmt.Errorf("NATS client is required"), "Processor", "NewProcessor", "check deps")
	}
	if deps.Rules == nil || deps.Snapshots == nil || deps.Executors == nil || deps.Audit == nil {
		return nil, errors.WrapInvalid(fmt.Errorf("rules, snapshots, executors, and audit log are required"), "Processor", "NewProcessor", "check deps")
	}

	return &Processor{
		cfg:    cfg,
		deps:   deps,
		logger: slog.Default().With("component", "processor"),
		state:  component.StateCreated,
	}, nil
}

// Initialize builds the evaluation pipeline and the worker pool
func (p *Processor) Initialize() error {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()

	if p.state != component.StateCreated {
		return errors.WrapInvalid(
			fmt.Errorf("cannot initialize from state %s", p.state),
			"Processor", "Initialize", "check state")
	}

	p.metrics = newRuleMetrics(p.deps.Metrics)
	p.matcher = NewMatcher(NewEvaluator())

	dispatcher := executor.NewDispatcher(p.deps.Executors, p.cfg.CallTimeout, retry.DefaultConfig())
	p.scheduler = NewScheduler(dispatcher, p.deps.Audit, p.deps.Probe, p.metrics)

	p.pool = worker.NewKeyedPool(p.cfg.Workers, p.cfg.QueueSize, p.processMessage,
		worker.WithMetricsRegistry[jetstream.Msg](p.deps.Metrics, "chatrules_events"))

	p.state = component.StateInitialized
	return nil
}

// Start ensures the event stream exists, starts the pool, and begins
// consuming through a durable consumer
func (p *Processor) Start(ctx context.Context) error {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()

	if p.state != component.StateInitialized {
		return errors.WrapInvalid(
			fmt.Errorf("cannot start from state %s", p.state),
			"Processor", "Start", "check state")
	}

	stream, err := p.deps.Client.EnsureStream(ctx, jetstream.StreamConfig{
		Name:        p.cfg.EventStream,
		Description: "Conversation events feeding the automation engine",
		Subjects:    []string{p.cfg.EventSubject},
		Storage:     jetstream.FileStorage,
		MaxAge:      p.cfg.EventMaxAge,
	})
	if err != nil {
		p.state = component.StateFailed
		return errors.WrapFatal(err, "Processor", "Start", "ensure event stream")
	}

	consumer, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Durable:       p.cfg.ConsumerName,
		FilterSubject: p.cfg.EventSubject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       p.cfg.AckWait,
		MaxDeliver:    p.cfg.MaxDeliver,
	})
	if err != nil {
		p.state = component.StateFailed
		return errors.WrapFatal(err, "Processor", "Start", "create durable consumer")
	}

	if err := p.pool.Start(ctx); err != nil {
		p.state = component.StateFailed
		return errors.Wrap(err, "Processor", "Start", "start worker pool")
	}

	consumeCtx, err := consumer.Consume(p.enqueue)
	if err != nil {
		p.state = component.StateFailed
		return errors.WrapFatal(err, "Processor", "Start", "start consuming")
	}
	p.consumeCtx = consumeCtx

	p.startTime = time.Now()
	p.state = component.StateStarted
	p.logger.Info("processor started",
		"stream", p.cfg.EventStream,
		"consumer", p.cfg.ConsumerName,
		"workers", p.cfg.Workers)
	return nil
}

// enqueue routes one delivered message onto the conversation's partition.
// Undecodable events are terminated so JetStream stops redelivering them;
// a full partition is backpressure, so the message is NAKed for later
// redelivery.
func (p *Processor) enqueue(msg jetstream.Msg) {
	var event chat.ConversationEvent
	if err := json.Unmarshal(msg.Data(), &event); err != nil || event.Validate() != nil {
		p.logger.Warn("dropping undecodable event", "subject", msg.Subject())
		p.metrics.eventsTotal.WithLabelValues("unknown", "invalid").Inc()
		_ = msg.Term()
		return
	}

	if err := p.pool.Submit(event.ConversationID, msg); err != nil {
		p.logger.Warn("partition full, requesting redelivery",
			"conversation_id", event.ConversationID,
			"event_id", event.EventID)
		_ = msg.Nak()
	}
}

// processMessage runs one evaluation pass for one event. It acks the
// message only after the pass completed and every outcome was recorded;
// pass-fatal errors leave the message unacked so JetStream redelivers it.
func (p *Processor) processMessage(ctx context.Context, msg jetstream.Msg) error {
	var event chat.ConversationEvent
	if err := json.Unmarshal(msg.Data(), &event); err != nil {
		_ = msg.Term()
		return errors.WrapInvalid(err, "Processor", "processMessage", "decode event")
	}

	err := p.Process(ctx, event)
	switch {
	case err == nil:
		_ = msg.Ack()
		return nil
	case errors.IsInvalid(err):
		// Retrying cannot fix an invalid event; record and move on.
		p.logger.Warn("dropping invalid event",
			"event_id", event.EventID,
			"conversation_id", event.ConversationID,
			"error", err)
		_ = msg.Term()
		return err
	default:
		p.lastError.Store(err.Error())
		_ = msg.Nak()
		return err
	}
}

// Process runs one evaluation pass: snapshot, match, schedule. Exported
// for in-process callers; the JetStream path adds ack handling on top.
func (p *Processor) Process(ctx context.Context, event chat.ConversationEvent) error {
	start := time.Now()

	snap, err := p.deps.Snapshots.Snapshot(ctx, event.ConversationID)
	if err != nil {
		p.failed.Add(1)
		p.metrics.eventsTotal.WithLabelValues(string(event.Type), "failed").Inc()
		return err
	}

	// Closed and deleted conversations no longer receive actions.
	if !snap.Open() {
		p.metrics.eventsTotal.WithLabelValues(string(event.Type), "ignored").Inc()
		return nil
	}

	active, err := p.deps.Rules.ListActive(ctx)
	if err != nil {
		p.failed.Add(1)
		p.metrics.eventsTotal.WithLabelValues(string(event.Type), "failed").Inc()
		return err
	}
	p.metrics.activeRules.Set(float64(len(active)))

	rules := make([]*rule.Rule, len(active))
	for i := range active {
		rules[i] = &active[i]
	}

	matched := p.matcher.Match(rules, snap)
	p.metrics.rulesMatched.Observe(float64(len(matched)))

	if err := p.scheduler.Run(ctx, event, matched); err != nil {
		p.failed.Add(1)
		p.metrics.eventsTotal.WithLabelValues(string(event.Type), "failed").Inc()
		return err
	}

	p.processed.Add(1)
	p.metrics.eventsTotal.WithLabelValues(string(event.Type), "processed").Inc()
	p.metrics.passSeconds.Observe(time.Since(start).Seconds())
	return nil
}

// Stop drains the consumer and the pool
func (p *Processor) Stop(timeout time.Duration) error {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()

	if p.state != component.StateStarted {
		return nil
	}

	if p.consumeCtx != nil {
		p.consumeCtx.Drain()
		p.consumeCtx = nil
	}

	if err := p.pool.Stop(timeout); err != nil {
		p.state = component.StateFailed
		return errors.Wrap(err, "Processor", "Stop", "stop worker pool")
	}

	p.state = component.StateStopped
	p.logger.Info("processor stopped")
	return nil
}

// Meta returns component metadata
func (p *Processor) Meta() component.Metadata {
	return component.Metadata{
		Name:        "automation-processor",
		Type:        "processor",
		Description: "Evaluates automation rules against conversation events",
		Version:     "1.0.0",
	}
}

// Health reports component health
func (p *Processor) Health() component.HealthStatus {
	p.stateMu.RLock()
	state := p.state
	p.stateMu.RUnlock()

	lastErr, _ := p.lastError.Load().(string)
	var uptime time.Duration
	if !p.startTime.IsZero() {
		uptime = time.Since(p.startTime)
	}

	return component.HealthStatus{
		Healthy:    state == component.StateStarted && p.deps.Client.IsHealthy(),
		LastCheck:  time.Now(),
		LastError:  lastErr,
		ErrorCount: int(p.failed.Load()),
		Uptime:     uptime,
	}
}

// DataFlow reports processing throughput
func (p *Processor) DataFlow() component.FlowMetrics {
	var rate, errRate float64
	processed := p.processed.Load()
	failed := p.failed.Load()

	if !p.startTime.IsZero() {
		if secs := time.Since(p.startTime).Seconds(); secs > 0 {
			rate = float64(processed) / secs
		}
	}
	if total := processed + failed; total > 0 {
		errRate = float64(failed) / float64(total)
	}

	return component.FlowMetrics{
		MessagesPerSecond: rate,
		ErrorRate:         errRate,
		LastActivity:      time.Now(),
	}
}

package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/chatrules/errors"
	"github.com/c360/chatrules/natsclient"
	"github.com/c360/chatrules/types/rule"
)

const (
	// StreamName is the JetStream stream holding audit rows
	StreamName = "CHAT_AUDIT"
	// SubjectPrefix is the audit row subject prefix; rows are published to
	// chat.audit.<event_id>
	SubjectPrefix = "chat.audit"
	// IndexBucket is the KV bucket holding the latest status per dedupe key
	IndexBucket = "chat_audit_index"
)

// NATSLog stores audit rows in a JetStream stream and keeps a KV index of
// the latest status per (event, rule, category) for dedupe lookups. The
// stream is the durable append-only record; the index is derived state.
type NATSLog struct {
	client *natsclient.Client
	stream jetstream.Stream
	index  jetstream.KeyValue
}

// NewNATSLog creates the audit stream and index bucket
func NewNATSLog(ctx context.Context, client *natsclient.Client, maxAge time.Duration) (*NATSLog, error) {
	if client == nil {
		return nil, errors.WrapInvalid(fmt.Errorf("nats client cannot be nil"), "audit", "NewNATSLog", "check client")
	}
	if maxAge <= 0 {
		maxAge = 30 * 24 * time.Hour
	}

	stream, err := client.EnsureStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Description: "Append-only chat automation execution results",
		Subjects:    []string{SubjectPrefix + ".>"},
		Storage:     jetstream.FileStorage,
		MaxAge:      maxAge,
	})
	if err != nil {
		return nil, errors.WrapFatal(err, "audit", "NewNATSLog", "ensure audit stream")
	}

	index, err := client.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{
		Bucket:      IndexBucket,
		Description: "Latest execution status per (event, rule, category)",
		TTL:         maxAge,
	})
	if err != nil {
		return nil, errors.WrapFatal(err, "audit", "NewNATSLog", "create index bucket")
	}

	return &NATSLog{client: client, stream: stream, index: index}, nil
}

// Append publishes the row to the audit stream and updates the dedupe
// index. Either failure is fatal to the pass: the scheduler must not
// dispatch actions it cannot record.
func (l *NATSLog) Append(ctx context.Context, result ExecutionResult) error {
	if result.At.IsZero() {
		result.At = time.Now().UTC()
	}

	data, err := json.Marshal(result)
	if err != nil {
		return errors.WrapFatal(err, "audit", "Append", "marshal result")
	}

	subject := fmt.Sprintf("%s.%s", SubjectPrefix, result.EventID)
	if err := l.client.PublishStream(ctx, subject, data); err != nil {
		return errors.WrapFatal(errors.ErrAuditUnavailable, "audit", "Append", "publish audit row")
	}

	// A terminal index entry is never overwritten: redelivery rows such as
	// skipped_duplicate must not reopen a decided dedupe key. The event's
	// conversation is serialized upstream, so read-then-put does not race.
	key := dedupeKey(result.EventID, result.RuleID, result.ActionCategory)
	if entry, err := l.index.Get(ctx, key); err == nil && Status(entry.Value()).Terminal() {
		return nil
	}
	if _, err := l.index.Put(ctx, key, []byte(result.Status)); err != nil {
		return errors.WrapFatal(errors.ErrAuditUnavailable, "audit", "Append", "update dedupe index")
	}

	return nil
}

// LastStatus returns the most recent status for a dedupe key
func (l *NATSLog) LastStatus(ctx context.Context, eventID, ruleID string, category rule.ActionCategory) (Status, bool, error) {
	entry, err := l.index.Get(ctx, dedupeKey(eventID, ruleID, category))
	if err != nil {
		if err == jetstream.ErrKeyNotFound {
			return "", false, nil
		}
		return "", false, errors.WrapFatal(errors.ErrAuditUnavailable, "audit", "LastStatus", "read dedupe index")
	}
	return Status(entry.Value()), true, nil
}

// Results reads back all rows for an event from the audit stream using an
// ephemeral filtered consumer. Used by the reporting surface, not the hot
// path.
func (l *NATSLog) Results(ctx context.Context, eventID string) ([]ExecutionResult, error) {
	consumer, err := l.stream.CreateConsumer(ctx, jetstream.ConsumerConfig{
		FilterSubject: fmt.Sprintf("%s.%s", SubjectPrefix, eventID),
		AckPolicy:     jetstream.AckNonePolicy,
	})
	if err != nil {
		return nil, errors.WrapTransient(err, "audit", "Results", "create consumer")
	}

	var out []ExecutionResult
	for {
		batch, err := consumer.FetchNoWait(64)
		if err != nil {
			return nil, errors.WrapTransient(err, "audit", "Results", "fetch rows")
		}

		count := 0
		for msg := range batch.Messages() {
			count++
			var row ExecutionResult
			if err := json.Unmarshal(msg.Data(), &row); err != nil {
				continue // skip undecodable rows rather than failing the report
			}
			out = append(out, row)
		}
		if count == 0 {
			break
		}
	}

	return out, nil
}

package automation

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/chatrules/errors"
	"github.com/c360/chatrules/natsclient"
	"github.com/c360/chatrules/types/chat"
)

// SnapshotBucket is the KV bucket holding conversation snapshots,
// maintained by the chat platform's conversation service
const SnapshotBucket = "chat_conversations"

// SnapshotSource builds the point-in-time conversation view used for one
// evaluation pass
type SnapshotSource interface {
	Snapshot(ctx context.Context, conversationID string) (*chat.ConversationSnapshot, error)
}

// KVSnapshotSource reads snapshots from the platform's conversation KV
// bucket. It also serves as the scheduler's liveness probe, reading only
// the state field between rules.
type KVSnapshotSource struct {
	kv jetstream.KeyValue
}

// NewKVSnapshotSource binds to the conversation snapshot bucket
func NewKVSnapshotSource(ctx context.Context, client *natsclient.Client) (*KVSnapshotSource, error) {
	kv, err := client.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{
		Bucket:      SnapshotBucket,
		Description: "Point-in-time conversation snapshots",
	})
	if err != nil {
		return nil, errors.WrapFatal(err, "KVSnapshotSource", "NewKVSnapshotSource", "bind snapshot bucket")
	}
	return &KVSnapshotSource{kv: kv}, nil
}

// Snapshot fetches the conversation's current snapshot. A missing key is
// invalid, not transient: an event for an unknown conversation will not
// become known by retrying.
func (s *KVSnapshotSource) Snapshot(ctx context.Context, conversationID string) (*chat.ConversationSnapshot, error) {
	entry, err := s.kv.Get(ctx, conversationID)
	if err != nil {
		if err == jetstream.ErrKeyNotFound {
			return nil, errors.WrapInvalid(
				fmt.Errorf("no snapshot for conversation %s", conversationID),
				"KVSnapshotSource", "Snapshot", "read snapshot")
		}
		return nil, errors.WrapTransient(err, "KVSnapshotSource", "Snapshot", "read snapshot")
	}

	var snap chat.ConversationSnapshot
	if err := json.Unmarshal(entry.Value(), &snap); err != nil {
		return nil, errors.WrapInvalid(err, "KVSnapshotSource", "Snapshot", "decode snapshot")
	}
	return &snap, nil
}

// State reads only the conversation's lifecycle state
func (s *KVSnapshotSource) State(ctx context.Context, conversationID string) (chat.ConversationState, error) {
	snap, err := s.Snapshot(ctx, conversationID)
	if err != nil {
		return "", err
	}
	return snap.State, nil
}

// MemorySnapshotSource is an in-memory SnapshotSource and LivenessProbe
// used in tests
type MemorySnapshotSource struct {
	mu    sync.RWMutex
	snaps map[string]*chat.ConversationSnapshot
}

// NewMemorySnapshotSource creates an empty in-memory source
func NewMemorySnapshotSource() *MemorySnapshotSource {
	return &MemorySnapshotSource{snaps: make(map[string]*chat.ConversationSnapshot)}
}

// Set stores a snapshot for a conversation
func (s *MemorySnapshotSource) Set(snap *chat.ConversationSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snaps[snap.ConversationID] = snap
}

// Snapshot returns the stored snapshot for the conversation
func (s *MemorySnapshotSource) Snapshot(_ context.Context, conversationID string) (*chat.ConversationSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.snaps[conversationID]
	if !ok {
		return nil, errors.WrapInvalid(
			fmt.Errorf("no snapshot for conversation %s", conversationID),
			"MemorySnapshotSource", "Snapshot", "read snapshot")
	}
	return snap, nil
}

// State returns the stored conversation state
func (s *MemorySnapshotSource) State(_ context.Context, conversationID string) (chat.ConversationState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.snaps[conversationID]
	if !ok {
		return "", errors.WrapInvalid(
			fmt.Errorf("no snapshot for conversation %s", conversationID),
			"MemorySnapshotSource", "State", "read snapshot")
	}
	return snap.State, nil
}

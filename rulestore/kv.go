package rulestore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/chatrules/errors"
	"github.com/c360/chatrules/natsclient"
	"github.com/c360/chatrules/types/rule"
)

// DefaultBucket is the KV bucket holding rule definitions
const DefaultBucket = "chat_rules"

// KVStore persists rules in a NATS KV bucket with optimistic concurrency.
// The rule-authoring surface writes through Put, which validates before
// storing; the engine reads through ListActive at pass start.
type KVStore struct {
	bucket jetstream.KeyValue
}

// NewKVStore creates or opens the rule bucket
func NewKVStore(ctx context.Context, client *natsclient.Client) (*KVStore, error) {
	if client == nil {
		return nil, errors.WrapInvalid(fmt.Errorf("nats client cannot be nil"), "rulestore", "NewKVStore", "check client")
	}

	bucket, err := client.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{
		Bucket:      DefaultBucket,
		Description: "Chat automation rule definitions",
		History:     10, // Keep last 10 versions for authoring history
	})
	if err != nil {
		return nil, errors.WrapTransient(err, "rulestore", "NewKVStore", "create KV bucket")
	}

	return &KVStore{bucket: bucket}, nil
}

// ListActive returns all active rules sorted by ID. Failure here is fatal
// to the pass: the event must not be consumed so it can be redelivered.
func (s *KVStore) ListActive(ctx context.Context) ([]rule.Rule, error) {
	lister, err := s.bucket.ListKeys(ctx)
	if err != nil {
		return nil, errors.WrapFatal(err, "rulestore", "ListActive", "list rule keys")
	}

	var active []rule.Rule
	for key := range lister.Keys() {
		entry, err := s.bucket.Get(ctx, key)
		if err != nil {
			if err == jetstream.ErrKeyNotFound {
				continue // deleted between list and get
			}
			return nil, errors.WrapFatal(err, "rulestore", "ListActive", fmt.Sprintf("get rule %s", key))
		}

		var r rule.Rule
		if err := json.Unmarshal(entry.Value(), &r); err != nil {
			// A corrupt record is a configuration defect in that one rule;
			// it is excluded without failing the rest of the pass.
			continue
		}
		if r.Active {
			active = append(active, r)
		}
	}

	sort.Slice(active, func(i, j int) bool { return active[i].ID < active[j].ID })
	return active, nil
}

// Get retrieves a rule by ID
func (s *KVStore) Get(ctx context.Context, id string) (*rule.Rule, error) {
	if id == "" {
		return nil, errors.WrapInvalid(fmt.Errorf("rule ID cannot be empty"), "rulestore", "Get", "check id")
	}

	entry, err := s.bucket.Get(ctx, id)
	if err != nil {
		if err == jetstream.ErrKeyNotFound {
			return nil, errors.WrapInvalid(errors.ErrRuleNotFound, "rulestore", "Get", "lookup rule")
		}
		return nil, errors.WrapTransient(err, "rulestore", "Get", "get from KV")
	}

	var r rule.Rule
	if err := json.Unmarshal(entry.Value(), &r); err != nil {
		return nil, errors.WrapFatal(err, "rulestore", "Get", "unmarshal rule")
	}

	return &r, nil
}

// Put validates and stores a rule with optimistic concurrency control.
// Validation failures surface to the authoring UI as configuration errors.
func (s *KVStore) Put(ctx context.Context, r *rule.Rule) error {
	if r == nil {
		return errors.WrapInvalid(errors.ErrInvalidRule, "rulestore", "Put", "check rule")
	}
	if err := r.Validate(); err != nil {
		return err
	}

	now := time.Now().UTC()

	current, err := s.Get(ctx, r.ID)
	switch {
	case err == nil:
		// Update path: check version for optimistic concurrency
		if current.Version != r.Version {
			return errors.WrapInvalid(
				fmt.Errorf("version mismatch: expected %d, got %d", current.Version, r.Version),
				"rulestore", "Put", "conflict: rule was modified by another author")
		}
		r.Version++
		r.CreatedAt = current.CreatedAt
		r.UpdatedAt = now
	case errors.IsInvalid(err):
		// Create path
		r.Version = 1
		r.CreatedAt = now
		r.UpdatedAt = now
	default:
		return err
	}

	data, err := json.Marshal(r)
	if err != nil {
		return errors.WrapFatal(err, "rulestore", "Put", "marshal rule")
	}

	if _, err := s.bucket.Put(ctx, r.ID, data); err != nil {
		return errors.WrapTransient(err, "rulestore", "Put", "put to KV")
	}

	return nil
}

// Delete removes a rule by ID
func (s *KVStore) Delete(ctx context.Context, id string) error {
	if id == "" {
		return errors.WrapInvalid(fmt.Errorf("rule ID cannot be empty"), "rulestore", "Delete", "check id")
	}

	if err := s.bucket.Delete(ctx, id); err != nil {
		return errors.WrapTransient(err, "rulestore", "Delete", "delete from KV")
	}

	return nil
}

// Package rulestore provides persistence for chat automation rules.
// The engine consumes it through the Store interface; the production
// implementation is backed by a NATS KV bucket, with an in-memory
// implementation for tests and a file loader for bootstrapping.
package rulestore

import (
	"context"
	"sort"
	"sync"

	"github.com/c360/chatrules/errors"
	"github.com/c360/chatrules/types/rule"
)

// Store is the rule repository contract. ListActive returns the set used
// for one evaluation pass; concurrent edits take effect on the next pass.
type Store interface {
	ListActive(ctx context.Context) ([]rule.Rule, error)
	Get(ctx context.Context, id string) (*rule.Rule, error)
	Put(ctx context.Context, r *rule.Rule) error
	Delete(ctx context.Context, id string) error
}

// MemoryStore is an in-memory Store used in tests and single-process runs
type MemoryStore struct {
	mu    sync.RWMutex
	rules map[string]rule.Rule
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rules: make(map[string]rule.Rule)}
}

// ListActive returns a copy of all active rules sorted by ID for
// reproducible iteration
func (s *MemoryStore) ListActive(_ context.Context) ([]rule.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	active := make([]rule.Rule, 0, len(s.rules))
	for _, r := range s.rules {
		if r.Active {
			active = append(active, r)
		}
	}
	sort.Slice(active, func(i, j int) bool { return active[i].ID < active[j].ID })
	return active, nil
}

// Get retrieves a rule by ID
func (s *MemoryStore) Get(_ context.Context, id string) (*rule.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rules[id]
	if !ok {
		return nil, errors.WrapInvalid(errors.ErrRuleNotFound, "MemoryStore", "Get", "lookup rule")
	}
	copied := r
	return &copied, nil
}

// Put validates and stores a rule. Malformed rules are rejected here so
// they never reach evaluation.
func (s *MemoryStore) Put(_ context.Context, r *rule.Rule) error {
	if r == nil {
		return errors.WrapInvalid(errors.ErrInvalidRule, "MemoryStore", "Put", "check rule")
	}
	if err := r.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules[r.ID] = *r
	return nil
}

// Delete removes a rule by ID
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rules[id]; !ok {
		return errors.WrapInvalid(errors.ErrRuleNotFound, "MemoryStore", "Delete", "lookup rule")
	}
	delete(s.rules, id)
	return nil
}

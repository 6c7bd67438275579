package rulestore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/c360/chatrules/errors"
	"github.com/c360/chatrules/types/rule"
)

// LoadFiles reads rule definitions from JSON files. Each file may contain
// a single rule object or an array of rules.
func LoadFiles(paths []string) ([]rule.Rule, error) {
	var all []rule.Rule

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.WrapInvalid(err, "rulestore", "LoadFiles", fmt.Sprintf("read rules file %s", path))
		}

		// Support both a single rule and an array of rules
		var rules []rule.Rule
		if err := json.Unmarshal(data, &rules); err != nil {
			var single rule.Rule
			if err2 := json.Unmarshal(data, &single); err2 != nil {
				return nil, errors.WrapInvalid(
					fmt.Errorf("failed to parse rules file %s: %w (also tried as single rule: %v)", path, err, err2),
					"rulestore", "LoadFiles", "parse rules file")
			}
			rules = []rule.Rule{single}
		}

		all = append(all, rules...)
	}

	return all, nil
}

// Seed loads rule files into a store. Invalid rules are logged and
// skipped so one malformed definition does not block the others; this is
// the same isolation the evaluator applies at runtime.
func Seed(ctx context.Context, store Store, paths []string, logger *slog.Logger) (int, error) {
	if logger == nil {
		logger = slog.Default().With("component", "rulestore")
	}

	rules, err := LoadFiles(paths)
	if err != nil {
		return 0, err
	}

	loaded := 0
	for i := range rules {
		r := rules[i]
		if err := store.Put(ctx, &r); err != nil {
			if errors.IsInvalid(err) {
				logger.Error("Skipping invalid rule definition", "rule_id", r.ID, "error", err)
				continue
			}
			return loaded, err
		}
		loaded++
		logger.Info("Loaded rule", "rule_id", r.ID, "rule_name", r.Name)
	}

	return loaded, nil
}

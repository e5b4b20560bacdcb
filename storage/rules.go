package storage

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/flowkit/topicflow/errors"
	"github.com/flowkit/topicflow/natsclient"
	"github.com/flowkit/topicflow/types"
)

// RuleStore persists rules in a KV bucket, one JSON document per rule,
// keyed by ID. Implements types.RuleRepository.
type RuleStore struct {
	bucket kvBucket
}

// NewRuleStore creates a rule repository over the given bucket.
func NewRuleStore(bucket kvBucket) *RuleStore {
	return &RuleStore{bucket: bucket}
}

func ruleKey(id int64) string {
	return "rule." + strconv.FormatInt(id, 10)
}

// List returns all rules sorted by ID, which is insertion order since
// IDs are assigned from a monotonic counter.
func (s *RuleStore) List(ctx context.Context) ([]types.Rule, error) {
	rules, err := listJSON[types.Rule](ctx, s.bucket)
	if err != nil {
		return nil, errors.WrapTransient(err, "storage", "List", "list rules")
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].ID < rules[j].ID })
	return rules, nil
}

// Save creates or updates a rule. New rules (ID zero) get the next ID
// from the bucket counter; the assigned ID is written back to the rule.
func (s *RuleStore) Save(ctx context.Context, rule *types.Rule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	if rule.ID == 0 {
		id, err := nextID(ctx, s.bucket)
		if err != nil {
			return errors.WrapTransient(err, "storage", "Save", "assign rule ID")
		}
		rule.ID = id
	}
	if err := putJSON(ctx, s.bucket, ruleKey(rule.ID), rule); err != nil {
		return errors.WrapTransient(err, "storage", "Save", "store rule")
	}
	return nil
}

// Delete removes a rule by ID. Unknown IDs are an error.
func (s *RuleStore) Delete(ctx context.Context, id int64) error {
	if err := s.bucket.Delete(ctx, ruleKey(id)); err != nil {
		if natsclient.IsKVNotFoundError(err) {
			return errors.WrapInvalid(
				fmt.Errorf("%w: rule %d", errors.ErrKeyNotFound, id),
				"storage", "Delete", "delete rule")
		}
		return errors.WrapTransient(err, "storage", "Delete", "delete rule")
	}
	return nil
}

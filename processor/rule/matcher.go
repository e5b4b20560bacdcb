package rule

import (
	"context"
	"sort"
	"sync/atomic"

	"github.com/flowkit/topicflow/errors"
	"github.com/flowkit/topicflow/types"
)

// matchKey identifies one rule bucket. Topic matching is exact string
// equality; there are no wildcards.
type matchKey struct {
	sourceTopic string
	project     string
}

// matcher holds the enabled-rule index behind an atomic snapshot swap.
// Readers never block each other or the refresher; Match during a
// Refresh sees either the old or the new snapshot, never a mix.
type matcher struct {
	repo     types.RuleRepository
	snapshot atomic.Value // map[matchKey][]types.Rule
}

func newMatcher(repo types.RuleRepository) *matcher {
	m := &matcher{repo: repo}
	m.snapshot.Store(map[matchKey][]types.Rule{})
	return m
}

// Refresh re-reads the repository and swaps in a new index. Disabled
// rules are dropped here so Match never sees them. Rules keep repository
// order (ascending ID) within each bucket.
func (m *matcher) Refresh(ctx context.Context) error {
	rules, err := m.repo.List(ctx)
	if err != nil {
		return errors.WrapTransient(err, "rule", "Refresh", "list rules")
	}

	index := make(map[matchKey][]types.Rule)
	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}
		key := matchKey{sourceTopic: rule.SourceTopic, project: rule.Project}
		index[key] = append(index[key], rule)
	}
	m.snapshot.Store(index)
	return nil
}

// Match returns the enabled rules for an exact source topic. Rules bound
// to a project match only that project; rules with an empty project
// match any.
func (m *matcher) Match(sourceTopic, project string) []types.Rule {
	index := m.snapshot.Load().(map[matchKey][]types.Rule)

	matched := index[matchKey{sourceTopic: sourceTopic, project: ""}]
	if project != "" {
		scoped := index[matchKey{sourceTopic: sourceTopic, project: project}]
		if len(matched) == 0 {
			return scoped
		}
		merged := make([]types.Rule, 0, len(matched)+len(scoped))
		merged = append(merged, matched...)
		merged = append(merged, scoped...)
		sort.Slice(merged, func(i, j int) bool { return merged[i].ID < merged[j].ID })
		return merged
	}
	return matched
}

// Size returns the number of enabled rules in the current snapshot.
func (m *matcher) Size() int {
	index := m.snapshot.Load().(map[matchKey][]types.Rule)
	total := 0
	for _, rules := range index {
		total += len(rules)
	}
	return total
}

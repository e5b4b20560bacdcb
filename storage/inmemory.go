package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/flowkit/topicflow/errors"
	"github.com/flowkit/topicflow/types"
)

// In-memory repository variants. Used by tests and by setups that do not
// persist definitions across restarts; semantics match the KV stores.

// InMemoryRules implements types.RuleRepository.
type InMemoryRules struct {
	mu     sync.Mutex
	rules  map[int64]types.Rule
	nextID int64
}

// NewInMemoryRules creates an empty in-memory rule repository.
func NewInMemoryRules() *InMemoryRules {
	return &InMemoryRules{rules: make(map[int64]types.Rule)}
}

func (r *InMemoryRules) List(_ context.Context) ([]types.Rule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rules := make([]types.Rule, 0, len(r.rules))
	for _, rule := range r.rules {
		rules = append(rules, rule)
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].ID < rules[j].ID })
	return rules, nil
}

func (r *InMemoryRules) Save(_ context.Context, rule *types.Rule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if rule.ID == 0 {
		r.nextID++
		rule.ID = r.nextID
	} else if rule.ID > r.nextID {
		r.nextID = rule.ID
	}
	r.rules[rule.ID] = *rule
	return nil
}

func (r *InMemoryRules) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rules[id]; !ok {
		return fmt.Errorf("%w: rule %d", errors.ErrKeyNotFound, id)
	}
	delete(r.rules, id)
	return nil
}

// InMemoryScripts implements types.ScriptRepository.
type InMemoryScripts struct {
	mu      sync.Mutex
	scripts map[string]types.Script
}

// NewInMemoryScripts creates an empty in-memory script repository.
func NewInMemoryScripts() *InMemoryScripts {
	return &InMemoryScripts{scripts: make(map[string]types.Script)}
}

func (r *InMemoryScripts) Get(_ context.Context, name string) (*types.Script, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	script, ok := r.scripts[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", errors.ErrScriptNotFound, name)
	}
	return &script, nil
}

func (r *InMemoryScripts) Save(_ context.Context, script *types.Script) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scripts[script.Name] = *script
	return nil
}

func (r *InMemoryScripts) Delete(_ context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.scripts[name]; !ok {
		return fmt.Errorf("%w: %s", errors.ErrScriptNotFound, name)
	}
	delete(r.scripts, name)
	return nil
}

// InMemoryCronJobs implements types.CronJobRepository.
type InMemoryCronJobs struct {
	mu     sync.Mutex
	jobs   map[int64]types.CronJob
	nextID int64
}

// NewInMemoryCronJobs creates an empty in-memory cron job repository.
func NewInMemoryCronJobs() *InMemoryCronJobs {
	return &InMemoryCronJobs{jobs: make(map[int64]types.CronJob)}
}

func (r *InMemoryCronJobs) List(_ context.Context) ([]types.CronJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	jobs := make([]types.CronJob, 0, len(r.jobs))
	for _, job := range r.jobs {
		jobs = append(jobs, job)
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].ID < jobs[j].ID })
	return jobs, nil
}

func (r *InMemoryCronJobs) ListByProject(ctx context.Context, project string) ([]types.CronJob, error) {
	jobs, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	filtered := jobs[:0]
	for _, job := range jobs {
		if job.Project == project {
			filtered = append(filtered, job)
		}
	}
	return filtered, nil
}

func (r *InMemoryCronJobs) Save(_ context.Context, job *types.CronJob) error {
	if _, err := cronParser.Parse(job.CronExpression); err != nil {
		return fmt.Errorf("%w: %q: %v", errors.ErrInvalidSchedule, job.CronExpression, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if job.ID == 0 {
		r.nextID++
		job.ID = r.nextID
	} else if job.ID > r.nextID {
		r.nextID = job.ID
	}
	r.jobs[job.ID] = *job
	return nil
}

func (r *InMemoryCronJobs) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[id]; !ok {
		return fmt.Errorf("%w: cron job %d", errors.ErrKeyNotFound, id)
	}
	delete(r.jobs, id)
	return nil
}

// InMemorySettings implements types.SettingsRepository.
type InMemorySettings struct {
	mu       sync.Mutex
	settings types.Settings
}

// NewInMemorySettings creates an in-memory settings repository.
func NewInMemorySettings() *InMemorySettings {
	return &InMemorySettings{}
}

func (r *InMemorySettings) Get(_ context.Context) (*types.Settings, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	settings := r.settings
	return &settings, nil
}

func (r *InMemorySettings) Save(_ context.Context, settings *types.Settings) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settings = *settings
	return nil
}

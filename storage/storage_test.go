package storage

import (
	"context"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowkit/topicflow/errors"
	"github.com/flowkit/topicflow/natsclient"
	"github.com/flowkit/topicflow/types"
)

// fakeBucket is an in-process kvBucket for repository tests.
type fakeBucket struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newFakeBucket() *fakeBucket {
	return &fakeBucket{data: make(map[string][]byte)}
}

func (b *fakeBucket) Get(_ context.Context, key string) (*natsclient.KVEntry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	value, ok := b.data[key]
	if !ok {
		return nil, natsclient.ErrKVKeyNotFound
	}
	return &natsclient.KVEntry{Key: key, Value: value, Revision: 1}, nil
}

func (b *fakeBucket) Put(_ context.Context, key string, value []byte) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data[key] = value
	return 1, nil
}

func (b *fakeBucket) Delete(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.data[key]; !ok {
		return natsclient.ErrKVKeyNotFound
	}
	delete(b.data, key)
	return nil
}

func (b *fakeBucket) Keys(_ context.Context) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	keys := make([]string, 0, len(b.data))
	for key := range b.data {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

func (b *fakeBucket) UpdateWithRetry(_ context.Context, key string, updateFn func([]byte) ([]byte, error)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	newValue, err := updateFn(b.data[key])
	if err != nil {
		return err
	}
	b.data[key] = newValue
	return nil
}

func testRule(source, target string) *types.Rule {
	return &types.Rule{
		Project:       "house",
		SourceTopic:   source,
		TargetTopic:   target,
		TargetPayload: "input",
		Enabled:       true,
	}
}

func TestRuleStore_SaveAssignsSequentialIDs(t *testing.T) {
	store := NewRuleStore(newFakeBucket())
	ctx := context.Background()

	first := testRule("a", "b")
	second := testRule("c", "d")
	require.NoError(t, store.Save(ctx, first))
	require.NoError(t, store.Save(ctx, second))

	assert.Equal(t, int64(1), first.ID)
	assert.Equal(t, int64(2), second.ID)

	rules, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, "a", rules[0].SourceTopic)
	assert.Equal(t, "c", rules[1].SourceTopic)
}

func TestRuleStore_SaveRejectsInvalidRule(t *testing.T) {
	store := NewRuleStore(newFakeBucket())

	err := store.Save(context.Background(), testRule("", "target"))
	require.Error(t, err)
}

func TestRuleStore_UpdateKeepsID(t *testing.T) {
	store := NewRuleStore(newFakeBucket())
	ctx := context.Background()

	rule := testRule("a", "b")
	require.NoError(t, store.Save(ctx, rule))

	rule.TargetPayload = "Calc(input*2)"
	require.NoError(t, store.Save(ctx, rule))

	rules, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, "Calc(input*2)", rules[0].TargetPayload)
}

func TestRuleStore_DeleteUnknownID(t *testing.T) {
	store := NewRuleStore(newFakeBucket())

	err := store.Delete(context.Background(), 42)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrKeyNotFound)
}

func TestScriptStore_RoundTrip(t *testing.T) {
	store := NewScriptStore(newFakeBucket())
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, &types.Script{
		Name:       "GetCalendarWeek",
		SourceCode: "function GetCalendarWeek() { return 35; }",
	}))

	script, err := store.Get(ctx, "GetCalendarWeek")
	require.NoError(t, err)
	assert.Contains(t, script.SourceCode, "return 35")

	_, err = store.Get(ctx, "Absent")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrScriptNotFound)

	require.NoError(t, store.Delete(ctx, "GetCalendarWeek"))
	err = store.Delete(ctx, "GetCalendarWeek")
	assert.ErrorIs(t, err, errors.ErrScriptNotFound)
}

func TestScriptStore_EmptyNameRejected(t *testing.T) {
	store := NewScriptStore(newFakeBucket())

	_, err := store.Get(context.Background(), "  ")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrInvalidData)
}

func TestCronJobStore_SaveValidatesSchedule(t *testing.T) {
	store := NewCronJobStore(newFakeBucket())
	ctx := context.Background()

	err := store.Save(ctx, &types.CronJob{
		Project:        "house",
		Topic:          "clock",
		CronExpression: "not a schedule",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrInvalidSchedule)

	require.NoError(t, store.Save(ctx, &types.CronJob{
		Project:        "house",
		Topic:          "clock",
		CronExpression: "*/5 * * * * *",
		Enabled:        true,
	}))
}

func TestCronJobStore_ListByProject(t *testing.T) {
	store := NewCronJobStore(newFakeBucket())
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, &types.CronJob{Project: "house", Topic: "a", CronExpression: "@hourly"}))
	require.NoError(t, store.Save(ctx, &types.CronJob{Project: "garden", Topic: "b", CronExpression: "@hourly"}))
	require.NoError(t, store.Save(ctx, &types.CronJob{Project: "house", Topic: "c", CronExpression: "@hourly"}))

	jobs, err := store.ListByProject(ctx, "house")
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "a", jobs[0].Topic)
	assert.Equal(t, "c", jobs[1].Topic)
}

func TestSettingsStore_DefaultsWhenUnset(t *testing.T) {
	store := NewSettingsStore(newFakeBucket())
	ctx := context.Background()

	settings, err := store.Get(ctx)
	require.NoError(t, err)
	assert.Zero(t, settings.Latitude)
	assert.Zero(t, settings.Longitude)

	require.NoError(t, store.Save(ctx, &types.Settings{Latitude: 51.16, Longitude: 10.45}))

	settings, err = store.Get(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 51.16, settings.Latitude, 0.001)
	assert.InDelta(t, 10.45, settings.Longitude, 0.001)
}

func TestInMemoryRepositories(t *testing.T) {
	ctx := context.Background()

	rules := NewInMemoryRules()
	rule := testRule("x", "y")
	require.NoError(t, rules.Save(ctx, rule))
	assert.Equal(t, int64(1), rule.ID)
	listed, err := rules.List(ctx)
	require.NoError(t, err)
	assert.Len(t, listed, 1)
	require.NoError(t, rules.Delete(ctx, rule.ID))
	assert.ErrorIs(t, rules.Delete(ctx, rule.ID), errors.ErrKeyNotFound)

	scripts := NewInMemoryScripts()
	require.NoError(t, scripts.Save(ctx, &types.Script{Name: "S", SourceCode: "function S() {}"}))
	script, err := scripts.Get(ctx, "S")
	require.NoError(t, err)
	assert.Equal(t, "S", script.Name)
	_, err = scripts.Get(ctx, "missing")
	assert.ErrorIs(t, err, errors.ErrScriptNotFound)

	jobs := NewInMemoryCronJobs()
	require.NoError(t, jobs.Save(ctx, &types.CronJob{Project: "p", Topic: "t", CronExpression: "@hourly"}))
	assert.ErrorIs(t,
		jobs.Save(ctx, &types.CronJob{Project: "p", Topic: "t", CronExpression: "bogus"}),
		errors.ErrInvalidSchedule)
	byProject, err := jobs.ListByProject(ctx, "p")
	require.NoError(t, err)
	assert.Len(t, byProject, 1)

	settings := NewInMemorySettings()
	got, err := settings.Get(ctx)
	require.NoError(t, err)
	assert.Zero(t, got.Latitude)
	require.NoError(t, settings.Save(ctx, &types.Settings{Latitude: 1, Longitude: 2}))
	got, err = settings.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1.0, got.Latitude)
}

package scheduler

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/nathan-osman/go-sunrise"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowkit/topicflow/storage"
	"github.com/flowkit/topicflow/types"
)

type capturingPublisher struct {
	mu      sync.Mutex
	entries []types.TopicEntry
}

func (c *capturingPublisher) PublishEntry(_ context.Context, entry *types.TopicEntry, _ int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, *entry)
	return nil
}

func (c *capturingPublisher) published() []types.TopicEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]types.TopicEntry(nil), c.entries...)
}

func (c *capturingPublisher) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

type fixture struct {
	scheduler *Scheduler
	publisher *capturingPublisher
	jobs      *storage.InMemoryCronJobs
	settings  *storage.InMemorySettings
}

func newFixture(t *testing.T, options ...Option) *fixture {
	t.Helper()
	publisher := &capturingPublisher{}
	jobs := storage.NewInMemoryCronJobs()
	settings := storage.NewInMemorySettings()
	options = append([]Option{WithCountdownInterval(5 * time.Millisecond)}, options...)
	return &fixture{
		scheduler: New(publisher, jobs, settings, options...),
		publisher: publisher,
		jobs:      jobs,
		settings:  settings,
	}
}

func startScheduler(t *testing.T, f *fixture) {
	t.Helper()
	require.NoError(t, f.scheduler.Start(context.Background()))
	t.Cleanup(func() { _ = f.scheduler.Stop(time.Second) })
}

func TestScheduler_StartTwiceFails(t *testing.T) {
	f := newFixture(t)
	startScheduler(t, f)

	assert.Error(t, f.scheduler.Start(context.Background()))
}

func TestCountdown_WithProgressPublishesEachSecondAndTerminal(t *testing.T) {
	f := newFixture(t)
	startScheduler(t, f)

	_, err := f.scheduler.StartCountdown(types.CountDownData{
		Project:        "house",
		Seconds:        3,
		ReportProgress: true,
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return f.scheduler.ActiveCountdowns() == 0 },
		time.Second, time.Millisecond)

	published := f.publisher.published()
	require.Len(t, published, 4)

	for i, expected := range []int{2, 1, 0} {
		assert.Equal(t, "house/count_down", published[i].Topic)
		var data types.CountDownData
		require.NoError(t, json.Unmarshal([]byte(published[i].Payload), &data))
		assert.Equal(t, expected, data.Seconds)
	}
	assert.Equal(t, "house/count_down_elapsed", published[3].Topic)
}

func TestCountdown_WithoutProgressPublishesOnlyTerminal(t *testing.T) {
	f := newFixture(t)
	startScheduler(t, f)

	_, err := f.scheduler.StartCountdown(types.CountDownData{
		Project: "house",
		Seconds: 3,
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return f.scheduler.ActiveCountdowns() == 0 },
		time.Second, time.Millisecond)

	published := f.publisher.published()
	require.Len(t, published, 1)
	assert.Equal(t, "house/count_down_elapsed", published[0].Topic)
}

func TestCountdown_CancelDisposesTimer(t *testing.T) {
	f := newFixture(t, WithCountdownInterval(time.Hour))
	startScheduler(t, f)

	id, err := f.scheduler.StartCountdown(types.CountDownData{
		Project:        "house",
		Seconds:        10,
		ReportProgress: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, f.scheduler.ActiveCountdowns())

	assert.True(t, f.scheduler.CancelCountdown(id))
	assert.False(t, f.scheduler.CancelCountdown(id))
	assert.Equal(t, 0, f.scheduler.ActiveCountdowns())
	assert.Zero(t, f.publisher.count())
}

func TestCountdown_RejectsNonPositiveSeconds(t *testing.T) {
	f := newFixture(t)
	startScheduler(t, f)

	_, err := f.scheduler.StartCountdown(types.CountDownData{Project: "house", Seconds: 0})
	require.Error(t, err)
}

func TestCountdown_RequiresStartedScheduler(t *testing.T) {
	f := newFixture(t)

	_, err := f.scheduler.StartCountdown(types.CountDownData{Project: "house", Seconds: 1})
	require.Error(t, err)
}

func TestTimeBroadcast_PayloadAndTopic(t *testing.T) {
	at := time.Date(2026, 8, 30, 16, 30, 45, 0, time.UTC)
	f := newFixture(t, WithClock(func() time.Time { return at }))

	f.scheduler.publishTimeBroadcast(context.Background(), types.CronJob{
		Project:        "house",
		Topic:          "clock",
		CronExpression: "0 * * * * *",
	})

	published := f.publisher.published()
	require.Len(t, published, 1)
	assert.Equal(t, "house/clock", published[0].Topic)

	var broadcast types.TimeBroadcast
	require.NoError(t, json.Unmarshal([]byte(published[0].Payload), &broadcast))
	assert.Equal(t, "2026-08-30 16:30:45", broadcast.DateTime)
	assert.Equal(t, "16:30", broadcast.TimeShort)
}

func TestProjectJobs_StartAndStop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.jobs.Save(ctx, &types.CronJob{
		Project: "house", Topic: "clock", CronExpression: "@every 1h", Enabled: true,
	}))
	require.NoError(t, f.jobs.Save(ctx, &types.CronJob{
		Project: "house", Topic: "slow", CronExpression: "@every 2h", Enabled: false,
	}))
	require.NoError(t, f.jobs.Save(ctx, &types.CronJob{
		Project: "garden", Topic: "clock", CronExpression: "@every 1h", Enabled: true,
	}))

	startScheduler(t, f)

	// Start loaded only the enabled jobs.
	assert.Len(t, f.scheduler.entries, 2)

	require.NoError(t, f.scheduler.StopProjectJobs(ctx, "house"))
	assert.Len(t, f.scheduler.entries, 1)

	require.NoError(t, f.scheduler.StartProjectJobs(ctx, "house"))
	assert.Len(t, f.scheduler.entries, 2)

	// Starting again is idempotent.
	require.NoError(t, f.scheduler.StartProjectJobs(ctx, "house"))
	assert.Len(t, f.scheduler.entries, 2)
}

func TestSunReport_DayAndNight(t *testing.T) {
	// Berlin.
	const lat, lon = 52.52, 13.405

	noon := time.Date(2026, 6, 21, 12, 0, 0, 0, time.UTC)
	day := computeSunReport(noon, lat, lon)
	assert.True(t, day.afterSunrise)
	assert.False(t, day.afterSunset)
	assert.True(t, day.isDay)
	assert.Positive(t, day.minutesNextSunset)
	assert.Positive(t, day.minutesAfterSunrise)
	assert.Positive(t, day.minutesNextSunrise) // rolled to tomorrow

	midnight := time.Date(2026, 6, 21, 0, 0, 0, 0, time.UTC)
	night := computeSunReport(midnight, lat, lon)
	assert.False(t, night.afterSunrise)
	assert.False(t, night.isDay)
	assert.Positive(t, night.minutesNextSunrise)
}

func TestSunReport_SunriseNowWindow(t *testing.T) {
	const lat, lon = 52.52, 13.405

	rise, _ := sunrise.SunriseSunset(lat, lon, 2026, time.June, 21)

	report := computeSunReport(rise.Add(-30*time.Second), lat, lon)
	assert.True(t, report.sunriseNow)

	report = computeSunReport(rise.Add(-10*time.Minute), lat, lon)
	assert.False(t, report.sunriseNow)
}

func TestPublishSunReport_ScopesTopics(t *testing.T) {
	f := newFixture(t)

	report := sunReport{
		minutesNextSunrise:  600,
		minutesNextSunset:   45,
		minutesAfterSunrise: 300,
		afterSunrise:        true,
		isDay:               true,
		sunsetNow:           false,
	}
	f.scheduler.publishSunReport(context.Background(), report, []string{"house"})

	topics := make(map[string]string)
	for _, entry := range f.publisher.published() {
		topics[entry.Topic] = entry.Payload
	}

	assert.Equal(t, "600", topics["minutes_next_sunrise"])
	assert.Equal(t, "600", topics["house/minutes_next_sunrise"])
	assert.Equal(t, "45", topics["house/minutes_next_sunset"])
	assert.Equal(t, "300", topics["house/minutes_after_sunrise"])
	assert.Equal(t, "1", topics["is_day_mode"])
	_, hasSunsetNow := topics["house/sunset_now"]
	assert.False(t, hasSunsetNow)
	_, hasAfterSunset := topics["house/minutes_after_sunset"]
	assert.False(t, hasAfterSunset)
}

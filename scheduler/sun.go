package scheduler

import (
	"context"
	"strconv"
	"time"

	"github.com/nathan-osman/go-sunrise"

	"github.com/flowkit/topicflow/types"
)

// sunReport captures one evaluation of the sun position relative to now.
// Minutes are rounded the way wall clocks read them, no decimals.
type sunReport struct {
	minutesNextSunrise  int
	minutesNextSunset   int
	minutesAfterSunrise int
	minutesAfterSunset  int
	afterSunrise        bool // sun already rose today
	afterSunset         bool // sun already set today
	isDay               bool
	sunriseNow          bool // next sunrise within the final minute
	sunsetNow           bool
}

// computeSunReport evaluates sunrise/sunset countdowns for a location.
// When today's event has passed, the countdown rolls to tomorrow's and
// the minutes-after value reports how long ago today's happened.
func computeSunReport(now time.Time, latitude, longitude float64) sunReport {
	var report sunReport
	utc := now.UTC()

	todayRise, todaySet := sunrise.SunriseSunset(latitude, longitude, utc.Year(), utc.Month(), utc.Day())
	tomorrow := utc.AddDate(0, 0, 1)
	tomorrowRise, tomorrowSet := sunrise.SunriseSunset(latitude, longitude, tomorrow.Year(), tomorrow.Month(), tomorrow.Day())

	untilRise := todayRise.Sub(utc).Minutes()
	if untilRise < 0 {
		report.afterSunrise = true
		report.minutesAfterSunrise = int(-untilRise)
		untilRise = tomorrowRise.Sub(utc).Minutes()
	}
	report.minutesNextSunrise = int(untilRise)

	untilSet := todaySet.Sub(utc).Minutes()
	if untilSet < 0 {
		report.afterSunset = true
		report.minutesAfterSunset = int(-untilSet)
		untilSet = tomorrowSet.Sub(utc).Minutes()
	}
	report.minutesNextSunset = int(untilSet)

	report.isDay = report.afterSunrise && !report.afterSunset
	report.sunriseNow = untilRise > 0 && untilRise <= 1
	report.sunsetNow = untilSet > 0 && untilSet <= 1
	return report
}

// runSunJob publishes the sun countdown topics globally and per project.
// Projects are the distinct owners of stored cron jobs.
func (s *Scheduler) runSunJob(ctx context.Context) {
	settings, err := s.settings.Get(ctx)
	if err != nil {
		s.logger.Warn("Sun job skipped, settings unavailable", "error", err)
		return
	}
	if settings.Latitude == 0 && settings.Longitude == 0 {
		// No location configured yet.
		return
	}

	projects, err := s.projectNames(ctx)
	if err != nil {
		s.logger.Warn("Sun job using global topics only", "error", err)
		projects = nil
	}

	report := computeSunReport(s.now(), settings.Latitude, settings.Longitude)
	s.publishSunReport(ctx, report, projects)
}

// publishSunReport fans a report out to the sun topics.
func (s *Scheduler) publishSunReport(ctx context.Context, report sunReport, projects []string) {
	scopes := append([]string{""}, projects...)

	for _, scope := range scopes {
		s.publish(ctx, scope, types.TopicMinutesNextSunrise, strconv.Itoa(report.minutesNextSunrise))
		s.publish(ctx, scope, types.TopicMinutesNextSunset, strconv.Itoa(report.minutesNextSunset))
		if report.afterSunrise {
			s.publish(ctx, scope, types.TopicMinutesAfterSunrise, strconv.Itoa(report.minutesAfterSunrise))
		}
		if report.afterSunset {
			s.publish(ctx, scope, types.TopicMinutesAfterSunset, strconv.Itoa(report.minutesAfterSunset))
		}
		s.publish(ctx, scope, types.TopicIsDayMode, boolPayload(report.isDay))
		if report.sunriseNow {
			s.publish(ctx, scope, types.TopicSunriseNow, "1")
		}
		if report.sunsetNow {
			s.publish(ctx, scope, types.TopicSunsetNow, "1")
		}
	}
}

// projectNames returns the distinct projects owning cron jobs, in first
// seen order.
func (s *Scheduler) projectNames(ctx context.Context) ([]string, error) {
	jobs, err := s.jobs.List(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	var projects []string
	for _, job := range jobs {
		if job.Project == "" {
			continue
		}
		if _, ok := seen[job.Project]; ok {
			continue
		}
		seen[job.Project] = struct{}{}
		projects = append(projects, job.Project)
	}
	return projects, nil
}

func boolPayload(v bool) string {
	if v {
		return "1"
	}
	return "0"
}

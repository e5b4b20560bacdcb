// Package types defines the core data model shared across the runtime:
// topic entries, rules, scheduled jobs, scripts, and the repository
// contracts their storage implements.
package types

import (
	"strings"
	"time"

	"github.com/flowkit/topicflow/errors"
)

// TopicEntry is a single observed message on the bus. ReceivedAt is set
// by the receiver, not the sender.
type TopicEntry struct {
	Topic      string    `json:"topic"`
	Payload    string    `json:"payload"`
	QoS        int       `json:"qos"`
	Retain     bool      `json:"retain"`
	Project    string    `json:"project"`
	ReceivedAt time.Time `json:"received_at"`
}

// Rule maps a source topic to a derived publication. TargetPayload is a
// template resolved against the triggering entry; Expression is an
// optional guard that must evaluate truthy for the rule to fire.
type Rule struct {
	ID            int64  `json:"id"`
	Project       string `json:"project"`
	SourceTopic   string `json:"source_topic"`
	TargetTopic   string `json:"target_topic"`
	TargetPayload string `json:"target_payload"`
	Expression    string `json:"expression,omitempty"`
	Enabled       bool   `json:"enabled"`
	QoS           int    `json:"qos"`
	Retain        bool   `json:"retain"`
	Priority      int    `json:"priority"`
}

// Validate checks the invariants every stored rule must satisfy.
func (r *Rule) Validate() error {
	if strings.TrimSpace(r.SourceTopic) == "" {
		return errors.WrapInvalid(errors.ErrInvalidRule, "Rule", "Validate", "source topic must not be empty")
	}
	if strings.TrimSpace(r.TargetTopic) == "" {
		return errors.WrapInvalid(errors.ErrInvalidRule, "Rule", "Validate", "target topic must not be empty")
	}
	if r.QoS < 0 || r.QoS > 2 {
		return errors.WrapInvalid(errors.ErrInvalidRule, "Rule", "Validate", "qos must be 0, 1 or 2")
	}
	return nil
}

// CronJob describes a schedule that broadcasts the current time to a
// project topic.
type CronJob struct {
	ID             int64  `json:"id"`
	Project        string `json:"project"`
	Topic          string `json:"topic"`
	CronExpression string `json:"cron_expression"`
	Description    string `json:"description,omitempty"`
	Enabled        bool   `json:"enabled"`
}

// CountDownData parameterizes a countdown timer. With ReportProgress the
// remaining seconds are published every second; without it only the
// terminal message is sent.
type CountDownData struct {
	Project        string `json:"project"`
	Topic          string `json:"topic,omitempty"`
	Seconds        int    `json:"seconds"`
	ReportProgress bool   `json:"report_progress"`
}

// Script is a stored JavaScript function invocable from rule payloads.
type Script struct {
	Name       string `json:"name"`
	SourceCode string `json:"source_code"`
}

// Settings holds per-installation configuration read by the scheduler.
type Settings struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// TimeBroadcast is the JSON payload published by scheduled time jobs.
type TimeBroadcast struct {
	DateTime  string `json:"DateTime"`
	Date      string `json:"Date"`
	Time      string `json:"Time"`
	TimeShort string `json:"TimeShort"`
}

// NewTimeBroadcast renders t into the broadcast wire format.
func NewTimeBroadcast(t time.Time) TimeBroadcast {
	return TimeBroadcast{
		DateTime:  t.Format("2006-01-02 15:04:05"),
		Date:      t.Format("2006-01-02"),
		Time:      t.Format("15:04:05"),
		TimeShort: t.Format("15:04"),
	}
}

package rule

import (
	"fmt"

	"github.com/flowkit/topicflow/errors"
)

// Config holds configuration for the rule processor.
type Config struct {
	// Subscriptions are the NATS subject patterns the processor consumes.
	Subscriptions []string `yaml:"subscriptions" json:"subscriptions"`

	// TopicRoot is the subject prefix under which topics live on the bus.
	// A topic "house/temperature" travels on "<root>.house.temperature".
	TopicRoot string `yaml:"topic_root" json:"topic_root"`

	// Stream is the JetStream stream receiving publishes with QoS >= 1.
	Stream string `yaml:"stream" json:"stream"`

	// RetainedBucket is the KV bucket holding retained payloads for late
	// joiners.
	RetainedBucket string `yaml:"retained_bucket" json:"retained_bucket"`

	// HopLimit bounds chained rule triggering. Messages whose hop count
	// reaches the limit no longer derive new messages.
	HopLimit int `yaml:"hop_limit" json:"hop_limit"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Subscriptions:  []string{"tf.>"},
		TopicRoot:      "tf",
		Stream:         "TOPICFLOW_EVENTS",
		RetainedBucket: "topicflow-retained",
		HopLimit:       25,
	}
}

// Validate checks the configuration for usability.
func (c *Config) Validate() error {
	if len(c.Subscriptions) == 0 {
		return errors.WrapInvalid(
			fmt.Errorf("%w: no subscriptions", errors.ErrInvalidConfig),
			"rule", "Validate", "validate subscriptions")
	}
	if c.TopicRoot == "" {
		return errors.WrapInvalid(
			fmt.Errorf("%w: topic_root is required", errors.ErrInvalidConfig),
			"rule", "Validate", "validate topic root")
	}
	if c.Stream == "" {
		return errors.WrapInvalid(
			fmt.Errorf("%w: stream is required", errors.ErrInvalidConfig),
			"rule", "Validate", "validate stream")
	}
	if c.RetainedBucket == "" {
		return errors.WrapInvalid(
			fmt.Errorf("%w: retained_bucket is required", errors.ErrInvalidConfig),
			"rule", "Validate", "validate retained bucket")
	}
	if c.HopLimit <= 0 {
		return errors.WrapInvalid(
			fmt.Errorf("%w: hop_limit must be positive, got %d", errors.ErrInvalidConfig, c.HopLimit),
			"rule", "Validate", "validate hop limit")
	}
	return nil
}

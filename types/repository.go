package types

import "context"

// RuleRepository stores rule definitions.
type RuleRepository interface {
	// List returns all rules in stable insertion order.
	List(ctx context.Context) ([]Rule, error)

	// Save creates or updates a rule. The rule must validate.
	Save(ctx context.Context, rule *Rule) error

	// Delete removes a rule by ID. Deleting an unknown ID is an error.
	Delete(ctx context.Context, id int64) error
}

// ScriptRepository stores named scripts.
type ScriptRepository interface {
	// Get returns the script by name; errors.ErrScriptNotFound when absent.
	Get(ctx context.Context, name string) (*Script, error)

	Save(ctx context.Context, script *Script) error
	Delete(ctx context.Context, name string) error
}

// CronJobRepository stores scheduled time broadcasts.
type CronJobRepository interface {
	// List returns all jobs; ListByProject filters to one project.
	List(ctx context.Context) ([]CronJob, error)
	ListByProject(ctx context.Context, project string) ([]CronJob, error)

	Save(ctx context.Context, job *CronJob) error
	Delete(ctx context.Context, id int64) error
}

// SettingsRepository stores installation settings such as the location
// used for sunrise/sunset computation.
type SettingsRepository interface {
	Get(ctx context.Context) (*Settings, error)
	Save(ctx context.Context, settings *Settings) error
}

// Publisher is the outbound transport surface used by the pipeline and
// scheduler. Implementations map QoS and retain onto the bus semantics.
type Publisher interface {
	// PublishEntry publishes entry.Payload to entry.Topic honoring the
	// entry's QoS and retain flags. hops is the derivation depth carried
	// forward for loop protection.
	PublishEntry(ctx context.Context, entry *TopicEntry, hops int) error
}

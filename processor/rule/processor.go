// Package rule implements the topic-triggered rule pipeline: inbound bus
// messages are remembered, matched against enabled rules, guarded,
// resolved, and republished to their target topics.
package rule

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/flowkit/topicflow/component"
	"github.com/flowkit/topicflow/errors"
	"github.com/flowkit/topicflow/expression"
	"github.com/flowkit/topicflow/memory"
	"github.com/flowkit/topicflow/metric"
	"github.com/flowkit/topicflow/natsclient"
	"github.com/flowkit/topicflow/types"
)

var _ component.Discoverable = (*Processor)(nil)

// DerivedCallback observes every successfully published derived message.
type DerivedCallback func(entry types.TopicEntry)

// Processor subscribes to the bus and drives the rule pipeline.
type Processor struct {
	metadata    component.Metadata
	inputPorts  []component.Port
	outputPorts []component.Port
	health      component.HealthStatus
	flowMetrics component.FlowMetrics

	natsClient *natsclient.Client
	config     Config

	store     *memory.Store
	matcher   *matcher
	resolver  *expression.Resolver
	publisher types.Publisher

	derivedCallbacks []DerivedCallback

	metrics *procMetrics
	logger  *slog.Logger

	shutdown     chan struct{}
	done         chan struct{}
	startTime    time.Time
	handled      atomic.Int64
	errorCount   atomic.Int64
	lastError    string
	lastActivity time.Time
	mu           sync.RWMutex
}

// NewProcessor creates a rule processor. metricsReg may be nil to
// disable Prometheus metrics.
func NewProcessor(natsClient *natsclient.Client, config Config, store *memory.Store,
	ruleRepo types.RuleRepository, resolver *expression.Resolver, publisher types.Publisher,
	metricsReg *metric.MetricsRegistry) (*Processor, error) {

	if err := config.Validate(); err != nil {
		return nil, err
	}

	metrics, err := newProcMetrics(metricsReg)
	if err != nil {
		return nil, errors.Wrap(err, "rule", "NewProcessor", "register metrics")
	}

	p := &Processor{
		metadata: component.Metadata{
			Name:        "rule-processor",
			Type:        "processor",
			Description: "Evaluates topic-triggered rules and republishes derived messages",
			Version:     "1.0.0",
		},
		natsClient: natsClient,
		config:     config,
		store:      store,
		matcher:    newMatcher(ruleRepo),
		resolver:   resolver,
		publisher:  publisher,
		metrics:    metrics,
		logger:     slog.Default().With("component", "rule-processor"),
		health: component.HealthStatus{
			Healthy:   true,
			LastCheck: time.Now(),
		},
	}
	p.setupPorts()
	return p, nil
}

func (p *Processor) setupPorts() {
	p.inputPorts = make([]component.Port, 0, len(p.config.Subscriptions))
	for _, subject := range p.config.Subscriptions {
		p.inputPorts = append(p.inputPorts, component.Port{
			Name:        "bus-in",
			Direction:   component.DirectionInput,
			Required:    true,
			Description: "Inbound topic messages",
			Config:      component.NATSPort{Subject: subject},
		})
	}
	p.outputPorts = []component.Port{
		{
			Name:        "bus-out",
			Direction:   component.DirectionOutput,
			Required:    true,
			Description: "Derived messages for rule target topics",
			Config:      component.NATSPort{Subject: p.config.TopicRoot + ".>"},
		},
		{
			Name:        "events",
			Direction:   component.DirectionOutput,
			Required:    false,
			Description: "At-least-once derived messages",
			Config:      component.StreamPort{Stream: p.config.Stream, Subject: p.config.TopicRoot + ".>"},
		},
		{
			Name:        "retained",
			Direction:   component.DirectionOutput,
			Required:    false,
			Description: "Retained payloads for late joiners",
			Config:      component.KVWritePort{Bucket: p.config.RetainedBucket},
		},
	}
}

// Meta returns component metadata.
func (p *Processor) Meta() component.Metadata { return p.metadata }

// InputPorts returns declared input ports.
func (p *Processor) InputPorts() []component.Port { return p.inputPorts }

// OutputPorts returns declared output ports.
func (p *Processor) OutputPorts() []component.Port { return p.outputPorts }

// Health returns current health status.
func (p *Processor) Health() component.HealthStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()

	health := p.health
	health.LastCheck = time.Now()
	health.ErrorCount = int(p.errorCount.Load())
	health.LastError = p.lastError
	if !p.startTime.IsZero() {
		health.Uptime = time.Since(p.startTime)
	}
	return health
}

// DataFlow returns current data flow metrics.
func (p *Processor) DataFlow() component.FlowMetrics {
	p.mu.RLock()
	defer p.mu.RUnlock()

	flow := p.flowMetrics
	handled := p.handled.Load()
	if !p.startTime.IsZero() && handled > 0 {
		if seconds := time.Since(p.startTime).Seconds(); seconds > 0 {
			flow.MessagesPerSecond = float64(handled) / seconds
		}
		flow.ErrorRate = float64(p.errorCount.Load()) / float64(handled)
	}
	flow.LastActivity = p.lastActivity
	return flow
}

// OnDerived registers a best-effort callback invoked after every
// successful derived publish.
func (p *Processor) OnDerived(callback DerivedCallback) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.derivedCallbacks = append(p.derivedCallbacks, callback)
}

// Refresh reloads the rule index from the repository. Editors call this
// after Save or Delete so running matchers see the change.
func (p *Processor) Refresh(ctx context.Context) error {
	if err := p.matcher.Refresh(ctx); err != nil {
		return err
	}
	p.metrics.recordActiveRules(p.matcher.Size())
	return nil
}

// Initialize loads the rule index.
func (p *Processor) Initialize() error {
	if err := p.Refresh(context.Background()); err != nil {
		return errors.Wrap(err, "rule", "Initialize", "load rules")
	}
	p.logger.Info("Rule processor initialized", "rule_count", p.matcher.Size())
	return nil
}

// Start subscribes to the configured bus subjects and begins processing.
func (p *Processor) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.shutdown != nil {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "rule", "Start", "check processor state")
	}
	if !p.natsClient.IsHealthy() {
		return errors.WrapFatal(errors.ErrNoConnection, "rule", "Start", "check NATS health")
	}

	p.shutdown = make(chan struct{})
	p.done = make(chan struct{})
	p.startTime = time.Now()
	p.health.Healthy = true

	go p.run(ctx)

	p.logger.Info("Rule processor started", "subscriptions", p.config.Subscriptions)
	return nil
}

func (p *Processor) run(ctx context.Context) {
	defer close(p.done)

	for _, subject := range p.config.Subscriptions {
		err := p.natsClient.Subscribe(ctx, subject, func(msgCtx context.Context, msg *natsclient.Message) {
			p.handleMessage(msgCtx, msg)
		})
		if err != nil {
			p.logger.Error("Subscription failed", "subject", subject, "error", err)
			p.recordRuleError(errors.Wrap(err, "rule", "run", fmt.Sprintf("subscribe to %s", subject)))
			return
		}
		p.logger.Info("Rule processor subscribed", "subject", subject)
	}

	select {
	case <-p.shutdown:
		p.logger.Info("Rule processor shutdown requested")
	case <-ctx.Done():
		p.logger.Info("Rule processor context cancelled", "error", ctx.Err())
	}
}

// handleMessage converts a bus message into a topic entry and runs the
// pipeline.
func (p *Processor) handleMessage(ctx context.Context, msg *natsclient.Message) {
	topic := SubjectToTopic(p.config.TopicRoot, msg.Subject)
	entry := types.TopicEntry{
		Topic:      topic,
		Payload:    string(msg.Data),
		Project:    projectForTopic(topic),
		ReceivedAt: time.Now(),
	}
	p.handled.Add(1)
	p.handleEntry(ctx, entry, HopsFromHeader(msg.Header))
}

// Stop stops the processor.
func (p *Processor) Stop(timeout time.Duration) error {
	p.mu.Lock()
	if p.shutdown == nil {
		p.mu.Unlock()
		return nil
	}
	close(p.shutdown)
	done := p.done
	p.mu.Unlock()

	select {
	case <-done:
	case <-time.After(timeout):
		p.logger.Warn("Rule processor shutdown timeout", "timeout", timeout)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.shutdown = nil
	p.done = nil
	p.health.Healthy = false

	p.logger.Info("Rule processor stopped")
	return nil
}

func (p *Processor) recordRuleError(err error) {
	p.errorCount.Add(1)
	p.mu.Lock()
	p.lastError = err.Error()
	p.mu.Unlock()
}

func (p *Processor) touchActivity() {
	p.mu.Lock()
	p.lastActivity = time.Now()
	p.mu.Unlock()
}

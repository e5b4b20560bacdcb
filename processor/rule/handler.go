package rule

import (
	"context"
	"strings"
	"time"

	"github.com/flowkit/topicflow/types"
)

// Pipeline stages per inbound message:
// received -> memory updated -> matched -> per rule {skip | publish} -> done.
// Rules evaluate independently; one failing rule never blocks the rest.

// handleEntry runs one inbound topic entry through the pipeline. hops is
// the derivation depth the entry arrived with.
func (p *Processor) handleEntry(ctx context.Context, entry types.TopicEntry, hops int) {
	p.metrics.recordReceived()
	p.touchActivity()

	p.store.Remember(entry)

	matched := p.matcher.Match(entry.Topic, entry.Project)
	p.metrics.recordMatched(len(matched))
	if len(matched) == 0 {
		return
	}

	if hops >= p.config.HopLimit {
		p.metrics.recordHopLimit()
		p.logger.Warn("Hop limit reached, message no longer derives",
			"topic", entry.Topic, "hops", hops, "limit", p.config.HopLimit)
		return
	}

	for _, rule := range matched {
		p.applyRule(ctx, rule, &entry, hops)
	}
}

// applyRule evaluates one rule against the triggering entry: guard,
// payload resolution, publish. Failures skip this rule only.
func (p *Processor) applyRule(ctx context.Context, rule types.Rule, entry *types.TopicEntry, hops int) {
	start := time.Now()
	defer func() { p.metrics.recordEvaluation(time.Since(start)) }()

	fires, err := p.resolver.ResolveGuard(ctx, rule.Expression, entry)
	if err != nil {
		p.metrics.recordError("guard")
		p.recordRuleError(err)
		p.logger.Warn("Guard evaluation failed, rule skipped",
			"rule_id", rule.ID, "source", rule.SourceTopic, "error", err)
		return
	}
	if !fires {
		p.metrics.recordSkipped("guard")
		return
	}

	payload, err := p.resolver.PreparePayload(ctx, rule.TargetPayload, entry)
	if err != nil {
		p.metrics.recordError("resolve")
		p.recordRuleError(err)
		p.logger.Warn("Payload resolution failed, rule skipped",
			"rule_id", rule.ID, "target", rule.TargetTopic, "error", err)
		return
	}

	derived := types.TopicEntry{
		Topic:      rule.TargetTopic,
		Payload:    payload,
		Project:    rule.Project,
		QoS:        rule.QoS,
		Retain:     rule.Retain,
		ReceivedAt: time.Now(),
	}
	if err := p.publisher.PublishEntry(ctx, &derived, hops+1); err != nil {
		p.metrics.recordError("publish")
		p.recordRuleError(err)
		p.logger.Error("Derived publish failed",
			"rule_id", rule.ID, "target", rule.TargetTopic, "error", err)
		return
	}
	p.metrics.recordPublished()
	p.notifyDerived(derived)
}

// notifyDerived invokes registered derived-message callbacks. Callbacks
// are best-effort observers for history and auditing; a panicking
// callback is contained.
func (p *Processor) notifyDerived(entry types.TopicEntry) {
	p.mu.RLock()
	callbacks := p.derivedCallbacks
	p.mu.RUnlock()

	for _, callback := range callbacks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					p.logger.Error("Derived-message callback panicked", "panic", r)
				}
			}()
			callback(entry)
		}()
	}
}

// projectForTopic derives the project of an inbound message from its
// first topic segment. Single-segment topics are global.
func projectForTopic(topic string) string {
	if i := strings.Index(topic, "/"); i > 0 {
		return topic[:i]
	}
	return ""
}

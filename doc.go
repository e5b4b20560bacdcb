// Package topicflow provides a topic-triggered rule and scheduling engine
// for message-bus events.
//
// # Overview
//
// TopicFlow reacts to inbound topic/payload pairs: rules declare a source
// topic, an optional guard expression, and a target payload template.
// When a message arrives on a rule's source topic the template is resolved
// (embedded function calls, memory lookups, script invocations, arithmetic)
// and the result is published to the rule's target topic. Time-driven
// triggers (cron jobs, sunrise/sunset countdowns, one-shot countdowns)
// synthesize outbound messages through the same publish path.
//
// # Architecture
//
//	┌─────────────────────────────────────┐
//	│        Rule Processor               │  subscribe, match, resolve,
//	│     (processor/rule)                │  guard, publish
//	└─────────────────────────────────────┘
//	        ↓ uses                ↓ uses
//	┌───────────────┐   ┌─────────────────┐
//	│  Expression   │   │   Memory Store  │  last value per topic,
//	│  Resolver     │   │   (memory)      │  recent-entry ring
//	└───────────────┘   └─────────────────┘
//	        ↓ delegates
//	┌───────────────┐   ┌─────────────────┐
//	│  Script       │   │   Scheduler     │  cron, sun events,
//	│  Executor     │   │   (scheduler)   │  countdown timers
//	└───────────────┘   └─────────────────┘
//
// All components publish through the shared NATS client (natsclient) and
// load their collaborating data (rules, scripts, cron jobs, settings)
// through repository interfaces backed by JetStream KV (storage).
//
// # Packages
//
//   - types: core value structs and repository interfaces
//   - memory: concurrent last-value store with a recent-entry ring
//   - expression: template/function-call resolution and Calc evaluation
//   - script: stored-script compilation and execution
//   - processor/rule: the rule application pipeline component
//   - scheduler: cron, sunrise/sunset and countdown publishing
//   - storage: KV-backed and in-memory repositories
//   - natsclient: NATS connection management with circuit breaker
//   - component, config, errors, health, metric, pkg/cache, pkg/retry:
//     framework infrastructure shared by all components
package topicflow

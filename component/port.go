package component

import "fmt"

// Direction for data flow
type Direction string

// Direction constants for port data flow
const (
	DirectionInput  Direction = "input"
	DirectionOutput Direction = "output"
)

// Port describes a component I/O interface
type Port struct {
	Name        string    `json:"name"`
	Direction   Direction `json:"direction"`
	Required    bool      `json:"required"`
	Description string    `json:"description"`
	Config      Portable  `json:"config"`
}

// Portable identifies the resource behind a port
type Portable interface {
	ResourceID() string // Unique identifier for conflict detection
	IsExclusive() bool  // Whether multiple components can share
	Type() string       // Port type identifier
}

// NATSPort - core NATS pub/sub
type NATSPort struct {
	Subject string `json:"subject"`
	Queue   string `json:"queue,omitempty"`
}

// ResourceID returns unique identifier for NATS ports
func (n NATSPort) ResourceID() string {
	return fmt.Sprintf("nats:%s", n.Subject)
}

// IsExclusive returns false as multiple components can subscribe
func (n NATSPort) IsExclusive() bool {
	return false
}

// Type returns the port type identifier
func (n NATSPort) Type() string {
	return "nats"
}

// StreamPort - JetStream publish for at-least-once delivery
type StreamPort struct {
	Stream  string `json:"stream"`
	Subject string `json:"subject"`
}

// ResourceID returns unique identifier for stream ports
func (s StreamPort) ResourceID() string {
	return fmt.Sprintf("stream:%s:%s", s.Stream, s.Subject)
}

// IsExclusive returns false as multiple publishers are allowed
func (s StreamPort) IsExclusive() bool {
	return false
}

// Type returns the port type identifier
func (s StreamPort) Type() string {
	return "stream"
}

// KVWatchPort - NATS KV watch for configuration observation
type KVWatchPort struct {
	Bucket string   `json:"bucket"`
	Keys   []string `json:"keys,omitempty"` // Keys to watch, empty = all
}

// ResourceID returns unique identifier for KV watch ports
func (k KVWatchPort) ResourceID() string {
	return fmt.Sprintf("kvwatch:%s", k.Bucket)
}

// IsExclusive returns false as multiple watchers are allowed
func (k KVWatchPort) IsExclusive() bool {
	return false
}

// Type returns the port type identifier
func (k KVWatchPort) Type() string {
	return "kvwatch"
}

// KVWritePort - NATS KV write for state persistence
type KVWritePort struct {
	Bucket string `json:"bucket"`
}

// ResourceID returns unique identifier for KV write ports
func (k KVWritePort) ResourceID() string {
	return fmt.Sprintf("kvwrite:%s", k.Bucket)
}

// IsExclusive returns false as multiple writers are allowed
func (k KVWritePort) IsExclusive() bool {
	return false
}

// Type returns the port type identifier
func (k KVWritePort) Type() string {
	return "kvwrite"
}

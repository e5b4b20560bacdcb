// Package memory keeps the latest observed payload per topic plus a
// bounded queue of recent entries. The rule pipeline reads it on every
// message, so lookups must never contend across unrelated topics.
package memory

import (
	"sync"
	"time"

	"github.com/flowkit/topicflow/types"
)

// DefaultRecentCapacity bounds the recent-entries queue.
const DefaultRecentCapacity = 1024

// Store holds the latest payload per topic and a ring of recent entries.
// Latest values live in a sync.Map so concurrent writers to different
// topics never block each other; per-topic writes are last-write-wins.
type Store struct {
	latest sync.Map // topic -> *types.TopicEntry
	recent *ring[types.TopicEntry]

	mu     sync.RWMutex
	topics int
}

// NewStore creates a store with the given recent-entries capacity.
// capacity <= 0 uses DefaultRecentCapacity.
func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultRecentCapacity
	}
	return &Store{
		recent: newRing[types.TopicEntry](capacity),
	}
}

// Remember records entry as the latest value for its topic and appends it
// to the recent queue. A zero ReceivedAt is stamped with the current time.
func (s *Store) Remember(entry types.TopicEntry) {
	if entry.ReceivedAt.IsZero() {
		entry.ReceivedAt = time.Now()
	}

	stored := entry
	if _, loaded := s.latest.Swap(entry.Topic, &stored); !loaded {
		s.mu.Lock()
		s.topics++
		s.mu.Unlock()
	}

	s.recent.Enqueue(entry)
}

// ReadLatest returns the most recent payload for topic.
func (s *Store) ReadLatest(topic string) (string, bool) {
	v, ok := s.latest.Load(topic)
	if !ok {
		return "", false
	}
	return v.(*types.TopicEntry).Payload, true
}

// LatestEntry returns a copy of the full latest entry for topic.
func (s *Store) LatestEntry(topic string) (types.TopicEntry, bool) {
	v, ok := s.latest.Load(topic)
	if !ok {
		return types.TopicEntry{}, false
	}
	return *v.(*types.TopicEntry), true
}

// Recent returns the recent entries oldest-first without removing them.
func (s *Store) Recent() []types.TopicEntry {
	return s.recent.Snapshot()
}

// Drain removes and returns the recent entries oldest-first.
func (s *Store) Drain() []types.TopicEntry {
	return s.recent.Drain()
}

// Forget removes the latest value for a topic.
func (s *Store) Forget(topic string) {
	if _, loaded := s.latest.LoadAndDelete(topic); loaded {
		s.mu.Lock()
		s.topics--
		s.mu.Unlock()
	}
}

// Clear drops all latest values and the recent queue.
func (s *Store) Clear() {
	s.latest.Range(func(key, _ any) bool {
		s.latest.Delete(key)
		return true
	})
	s.mu.Lock()
	s.topics = 0
	s.mu.Unlock()
	s.recent.Clear()
}

// TopicCount returns the number of topics with a stored latest value.
func (s *Store) TopicCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.topics
}

// RecentSize returns the number of queued recent entries.
func (s *Store) RecentSize() int {
	return s.recent.Size()
}

// RecentDropped returns how many recent entries were evicted by overflow.
func (s *Store) RecentDropped() uint64 {
	return s.recent.Dropped()
}

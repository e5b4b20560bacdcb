package memory

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowkit/topicflow/types"
)

func entry(topic, payload string) types.TopicEntry {
	return types.TopicEntry{Topic: topic, Payload: payload}
}

func TestStore_RememberAndReadLatest(t *testing.T) {
	s := NewStore(16)

	s.Remember(entry("esp32/1/temp", "21.5"))

	got, ok := s.ReadLatest("esp32/1/temp")
	require.True(t, ok)
	assert.Equal(t, "21.5", got)

	_, ok = s.ReadLatest("esp32/1/humidity")
	assert.False(t, ok)
}

func TestStore_RememberOverwrites(t *testing.T) {
	s := NewStore(16)

	s.Remember(entry("esp32/1/count", "1"))
	s.Remember(entry("esp32/1/count", "2"))
	s.Remember(entry("esp32/1/count", "3"))

	got, ok := s.ReadLatest("esp32/1/count")
	require.True(t, ok)
	assert.Equal(t, "3", got)
	assert.Equal(t, 1, s.TopicCount())
	assert.Equal(t, 3, s.RecentSize())
}

func TestStore_StampsReceivedAt(t *testing.T) {
	s := NewStore(16)
	s.Remember(entry("a", "1"))

	e, ok := s.LatestEntry("a")
	require.True(t, ok)
	assert.False(t, e.ReceivedAt.IsZero())
}

func TestStore_RecentOrderAndDrain(t *testing.T) {
	s := NewStore(16)

	s.Remember(entry("a", "1"))
	s.Remember(entry("b", "2"))
	s.Remember(entry("a", "3"))

	recent := s.Recent()
	require.Len(t, recent, 3)
	assert.Equal(t, "1", recent[0].Payload)
	assert.Equal(t, "2", recent[1].Payload)
	assert.Equal(t, "3", recent[2].Payload)

	drained := s.Drain()
	assert.Len(t, drained, 3)
	assert.Equal(t, 0, s.RecentSize())

	// Latest values survive a drain.
	got, ok := s.ReadLatest("a")
	require.True(t, ok)
	assert.Equal(t, "3", got)
}

func TestStore_RecentOverflowDropsOldest(t *testing.T) {
	s := NewStore(2)

	s.Remember(entry("a", "1"))
	s.Remember(entry("b", "2"))
	s.Remember(entry("c", "3"))

	recent := s.Recent()
	require.Len(t, recent, 2)
	assert.Equal(t, "2", recent[0].Payload)
	assert.Equal(t, "3", recent[1].Payload)
	assert.Equal(t, uint64(1), s.RecentDropped())
}

func TestStore_ForgetAndClear(t *testing.T) {
	s := NewStore(16)

	s.Remember(entry("a", "1"))
	s.Remember(entry("b", "2"))

	s.Forget("a")
	_, ok := s.ReadLatest("a")
	assert.False(t, ok)
	assert.Equal(t, 1, s.TopicCount())

	s.Clear()
	_, ok = s.ReadLatest("b")
	assert.False(t, ok)
	assert.Equal(t, 0, s.TopicCount())
	assert.Equal(t, 0, s.RecentSize())
}

func TestStore_ConcurrentRememberPerTopicLastWriteWins(t *testing.T) {
	s := NewStore(4096)

	const topics = 8
	const writes = 200

	var wg sync.WaitGroup
	for i := 0; i < topics; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			topic := fmt.Sprintf("device/%d/value", n)
			for j := 0; j <= writes; j++ {
				s.Remember(entry(topic, fmt.Sprintf("%d", j)))
			}
		}(i)
	}
	wg.Wait()

	// Each topic must hold its own final write.
	for i := 0; i < topics; i++ {
		topic := fmt.Sprintf("device/%d/value", i)
		got, ok := s.ReadLatest(topic)
		require.True(t, ok)
		assert.Equal(t, fmt.Sprintf("%d", writes), got)
	}
	assert.Equal(t, topics, s.TopicCount())
}

func TestRing_Basics(t *testing.T) {
	r := newRing[int](3)

	assert.Equal(t, 3, r.Capacity())
	r.Enqueue(1)
	r.Enqueue(2)
	assert.Equal(t, 2, r.Size())

	snap := r.Snapshot()
	assert.Equal(t, []int{1, 2}, snap)
	assert.Equal(t, 2, r.Size(), "snapshot must not consume")

	out := r.Drain()
	assert.Equal(t, []int{1, 2}, out)
	assert.Nil(t, r.Drain())
}

func TestRing_WrapAround(t *testing.T) {
	r := newRing[int](3)
	for i := 1; i <= 5; i++ {
		r.Enqueue(i)
	}
	assert.Equal(t, []int{3, 4, 5}, r.Drain())
	assert.Equal(t, uint64(2), r.Dropped())
}

package gateway

import (
	"sync"

	"smc-systemv1/internal/ringbuf"
)

// replayEntry holds a single broadcasted message for replay.
type replayEntry struct {
	Seq  int64
	Data []byte // pre-built envelope JSON
}

// ReplayBuffer keeps the most recent envelopes of one channel so a client
// that detects a channel_seq gap can backfill over REST.
type ReplayBuffer struct {
	mu   sync.RWMutex
	ring *ringbuf.Ring[replayEntry]
}

// NewReplayBuffer creates a replay buffer holding at least capacity entries.
func NewReplayBuffer(capacity int) *ReplayBuffer {
	if capacity <= 0 {
		capacity = 512
	}
	return &ReplayBuffer{ring: ringbuf.New[replayEntry](capacity)}
}

// Push stores a copy of data under seq, evicting the oldest entry when full.
func (rb *ReplayBuffer) Push(seq int64, data []byte) {
	cp := make([]byte, len(data))
	copy(cp, data)

	rb.mu.Lock()
	rb.ring.Push(replayEntry{Seq: seq, Data: cp})
	rb.mu.Unlock()
}

// Range returns all entries with seq in [fromSeq, toSeq], in seq order.
func (rb *ReplayBuffer) Range(fromSeq, toSeq int64) []replayEntry {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	var result []replayEntry
	rb.ring.Do(func(e replayEntry) bool {
		if e.Seq > toSeq {
			return false
		}
		if e.Seq >= fromSeq {
			result = append(result, e)
		}
		return true
	})
	return result
}

// Len returns the number of entries currently in the buffer.
func (rb *ReplayBuffer) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.ring.Len()
}

package gateway

import (
	"strconv"
	"time"
)

// Broadcaster constructs envelope JSON and sends filtered messages to clients.
type Broadcaster struct {
	hub *Hub
	now func() time.Time
}

// NewBroadcaster creates a Broadcaster backed by the given Hub.
func NewBroadcaster(hub *Hub) *Broadcaster {
	return &Broadcaster{hub: hub, now: time.Now}
}

// Broadcast sends data on a channel to all subscribed clients.
// The envelope is assembled by hand: data is already JSON and is embedded
// verbatim. Each envelope carries a global seq and a per-channel seq for
// client-side gap detection.
func (b *Broadcaster) Broadcast(channel string, data []byte) {
	now := b.now().UTC()

	b.hub.mu.Lock()
	b.hub.channelSeqs[channel]++
	channelSeq := b.hub.channelSeqs[channel]
	b.hub.latest[channel] = latestEntry{Data: data, TS: now, Seq: channelSeq}
	b.hub.seq++
	seq := b.hub.seq

	rb, exists := b.hub.replayBufs[channel]
	if !exists {
		rb = NewReplayBuffer(512)
		b.hub.replayBufs[channel] = rb
	}
	b.hub.mu.Unlock()

	buf := buildEnvelope(channel, data, now, seq, channelSeq)
	rb.Push(channelSeq, buf)

	b.hub.mu.RLock()
	defer b.hub.mu.RUnlock()
	for client := range b.hub.clients {
		if !client.matchesChannel(channel) {
			continue
		}
		client.trySend(buf)
	}
	if b.hub.OnBroadcast != nil {
		b.hub.OnBroadcast()
	}
}

func buildEnvelope(channel string, data []byte, now time.Time, seq, channelSeq int64) []byte {
	buf := make([]byte, 0, len(channel)+len(data)+160)
	buf = append(buf, `{"channel":"`...)
	buf = append(buf, channel...)
	buf = append(buf, `","data":`...)
	buf = append(buf, data...)
	buf = append(buf, `,"ts":"`...)
	buf = now.AppendFormat(buf, time.RFC3339Nano)
	buf = append(buf, `","seq":`...)
	buf = strconv.AppendInt(buf, seq, 10)
	buf = append(buf, `,"channel_seq":`...)
	buf = strconv.AppendInt(buf, channelSeq, 10)
	buf = append(buf, '}')
	return buf
}

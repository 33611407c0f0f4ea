// SPDX-License-Identifier: MPL-2.0

package server

import (
	"sync"

	"instagent/internal/pipeline"
)

const (
	// subscriberBuffer is each subscriber's channel capacity. Events to a
	// full channel are dropped rather than stalling the pipeline.
	subscriberBuffer = 64

	// replayBuffer caps how many events of the current run are replayed to
	// new subscribers.
	replayBuffer = 256
)

// eventHub fans pipeline progress events out to SSE subscribers. A new
// subscriber first receives a replay of the current run's events, so a
// client attaching mid-run still sees the earlier stages.
type eventHub struct {
	mu     sync.Mutex
	subs   map[chan pipeline.Event]struct{}
	recent []pipeline.Event
}

func newEventHub() *eventHub {
	return &eventHub{subs: make(map[chan pipeline.Event]struct{})}
}

// Publish delivers e to every subscriber. A run start resets the replay
// buffer.
func (h *eventHub) Publish(e pipeline.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if e.Stage == pipeline.StageStart {
		h.recent = h.recent[:0]
	}
	if len(h.recent) < replayBuffer {
		h.recent = append(h.recent, e)
	}

	for ch := range h.subs {
		select {
		case ch <- e:
		default: // slow subscriber
		}
	}
}

// Subscribe registers a subscriber and replays the current run's events into
// it. The returned cancel function releases the subscription and must be
// called exactly once.
func (h *eventHub) Subscribe() (<-chan pipeline.Event, func()) {
	ch := make(chan pipeline.Event, subscriberBuffer)

	h.mu.Lock()
	for _, e := range h.recent {
		select {
		case ch <- e:
		default:
		}
	}
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if _, ok := h.subs[ch]; ok {
			delete(h.subs, ch)
			close(ch)
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

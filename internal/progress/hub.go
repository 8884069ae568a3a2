package progress

import (
	"context"
	"sync"
	"time"

	"github.com/local/inkcost/internal/metrics"
)

// subscriberBuffer is the per-subscriber queue length; events beyond it are dropped.
const subscriberBuffer = 16

// Hub is an in-process Broker.
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[*subscriber]struct{}
	last map[string]lastEvent
	ttl  time.Duration
}

type subscriber struct {
	ch   chan Event
	once sync.Once
}

type lastEvent struct {
	ev Event
	at time.Time
}

// NewHub creates an in-memory broker that remembers the last event of a job for ttl.
func NewHub(ttl time.Duration) *Hub {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Hub{
		subs: map[string]map[*subscriber]struct{}{},
		last: map[string]lastEvent{},
		ttl:  ttl,
	}
}

// Publish implements Broker. It never blocks.
func (h *Hub) Publish(_ context.Context, ev Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := time.Now()
	h.last[ev.JobID] = lastEvent{ev: ev, at: now}
	h.expireLocked(now)

	for s := range h.subs[ev.JobID] {
		select {
		case s.ch <- ev:
		default:
			metrics.IncProgressDropped()
		}
	}
	return nil
}

// Subscribe implements Broker.
func (h *Hub) Subscribe(ctx context.Context, jobID string) (<-chan Event, func()) {
	s := &subscriber{ch: make(chan Event, subscriberBuffer)}

	h.mu.Lock()
	if h.subs[jobID] == nil {
		h.subs[jobID] = map[*subscriber]struct{}{}
	}
	h.subs[jobID][s] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		delete(h.subs[jobID], s)
		if len(h.subs[jobID]) == 0 {
			delete(h.subs, jobID)
		}
		h.mu.Unlock()
		s.once.Do(func() { close(s.ch) })
	}
	stop := context.AfterFunc(ctx, cancel)
	return s.ch, func() {
		stop()
		cancel()
	}
}

// Last implements Broker.
func (h *Hub) Last(_ context.Context, jobID string) (Event, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	le, ok := h.last[jobID]
	if !ok || time.Since(le.at) > h.ttl {
		return Event{}, false
	}
	return le.ev, true
}

// Subscribers returns the number of live subscribers for jobID.
func (h *Hub) Subscribers(jobID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[jobID])
}

func (h *Hub) expireLocked(now time.Time) {
	for id, le := range h.last {
		if now.Sub(le.at) > h.ttl {
			delete(h.last, id)
		}
	}
}

package pipeline

import (
	"sync"
	"time"

	"studykit-backend/internal/jobs"
)

// Event is a progress notification for one job.
type Event struct {
	JobID      string     `json:"jobId"`
	OwnerID    string     `json:"-"`
	Phase      jobs.Phase `json:"phase"`
	Detail     string     `json:"detail,omitempty"`
	Progress   int        `json:"progress"`
	EtaSeconds int        `json:"etaSeconds,omitempty"`
	Error      string     `json:"error,omitempty"`
	At         time.Time  `json:"at"`
}

const defaultSubscriberBuffer = 16

type subscriber struct {
	ch     chan Event
	filter func(Event) bool
}

// Hub fans progress events out to subscribers. Publishing never blocks: a subscriber
// whose buffer is full misses the event.
type Hub struct {
	mu     sync.RWMutex
	subs   map[uint64]*subscriber
	nextID uint64
	buffer int
	last   map[string]Event
}

// NewHub returns a hub whose subscriptions buffer up to buffer events.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	return &Hub{
		subs:   make(map[uint64]*subscriber),
		buffer: buffer,
		last:   make(map[string]Event),
	}
}

// Subscribe registers a listener. A nil filter receives every event. The returned
// cancel function closes the channel and is safe to call more than once.
func (h *Hub) Subscribe(filter func(Event) bool) (<-chan Event, func()) {
	sub := &subscriber{ch: make(chan Event, h.buffer), filter: filter}

	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = sub
	h.mu.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(sub.ch)
		})
	}
}

// Publish delivers ev to every matching subscriber and remembers it as the job's latest.
func (h *Hub) Publish(ev Event) {
	h.mu.Lock()
	h.last[ev.JobID] = ev
	h.mu.Unlock()

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subs {
		if sub.filter != nil && !sub.filter(ev) {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
		}
	}
}

// Last returns the most recent event published for jobID.
func (h *Hub) Last(jobID string) (Event, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ev, ok := h.last[jobID]
	return ev, ok
}

// ForgetBefore drops remembered events older than cutoff and returns how many were dropped.
func (h *Hub) ForgetBefore(cutoff time.Time) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for id, ev := range h.last {
		if ev.At.Before(cutoff) {
			delete(h.last, id)
			n++
		}
	}
	return n
}

// Subscribers reports the number of active subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// ForJob returns a filter matching events of one job.
func ForJob(jobID string) func(Event) bool {
	return func(ev Event) bool { return ev.JobID == jobID }
}

package printer

import (
	"sync"

	"github.com/seantiz/bambubridge/internal/model"
)

// subscriberBufferSize is the channel buffer for each event subscriber.
// Events are dropped if a subscriber falls this far behind.
const subscriberBufferSize = 64

// EventBroker fans job events out to live subscribers, keyed by job ID.
// It is safe for concurrent use.
//
// Closed jobs are kept as markers so a subscriber arriving after the job
// finished gets a closed channel instead of waiting forever.
type EventBroker struct {
	mu     sync.Mutex
	topics map[string]*eventTopic
}

type eventTopic struct {
	subs   map[int]chan model.JobEvent
	nextID int
	closed bool
}

// NewEventBroker creates an empty broker.
func NewEventBroker() *EventBroker {
	return &EventBroker{
		topics: make(map[string]*eventTopic),
	}
}

func (b *EventBroker) topic(jobID string) *eventTopic {
	t, ok := b.topics[jobID]
	if !ok {
		t = &eventTopic{subs: make(map[int]chan model.JobEvent)}
		b.topics[jobID] = t
	}
	return t
}

// Subscribe returns a channel receiving events for jobID and a function that
// cancels the subscription. The channel is already closed when the job has
// finished.
func (b *EventBroker) Subscribe(jobID string) (<-chan model.JobEvent, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t := b.topic(jobID)
	ch := make(chan model.JobEvent, subscriberBufferSize)
	if t.closed {
		close(ch)
		return ch, func() {}
	}

	id := t.nextID
	t.nextID++
	t.subs[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(t.subs, id)
	}
}

// Publish delivers ev to every subscriber of ev.JobID without blocking.
func (b *EventBroker) Publish(ev model.JobEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[ev.JobID]
	if !ok || t.closed {
		return
	}

	for _, ch := range t.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Close ends the stream for jobID. Subscriber channels are closed and later
// subscribers receive a closed channel.
func (b *EventBroker) Close(jobID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t := b.topic(jobID)
	t.closed = true
	for id, ch := range t.subs {
		close(ch)
		delete(t.subs, id)
	}
}

// Closed reports whether jobID's stream has ended.
func (b *EventBroker) Closed(jobID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[jobID]
	return ok && t.closed
}

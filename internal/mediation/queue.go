package mediation

import "sync"

// EventRecord is one pending adapter event
type EventRecord struct {
	AdType   AdType
	Event    AdEvent
	Instance *AdInstance
}

// EventQueue buffers events raised from vendor callbacks until the next tick
// so mediation logic is never re-entered from inside a vendor SDK call.
//
// Enqueue never blocks on delivery. Flush delivers a snapshot of the queue;
// records enqueued while a flush is delivering wait for the next flush.
type EventQueue struct {
	mu      sync.Mutex
	pending []EventRecord
}

// Enqueue appends an event
func (q *EventQueue) Enqueue(adType AdType, event AdEvent, inst *AdInstance) {
	q.mu.Lock()
	q.pending = append(q.pending, EventRecord{AdType: adType, Event: event, Instance: inst})
	q.mu.Unlock()
}

// Flush delivers every queued record in FIFO order and returns how many were delivered
func (q *EventQueue) Flush(deliver func(EventRecord)) int {
	q.mu.Lock()
	batch := q.pending
	q.pending = nil
	q.mu.Unlock()

	for _, rec := range batch {
		deliver(rec)
	}
	return len(batch)
}

// Len returns the number of pending records
func (q *EventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

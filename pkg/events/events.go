// Package events exports committed mediation events to an HTTP collector
package events

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/thenexusengine/tne_mediation/pkg/logger"
)

const (
	// flushWorkerCount is the number of concurrent senders
	flushWorkerCount = 2
	// flushQueueSize is the max pending batches before new batches are dropped
	flushQueueSize = 10
	// flushTimeout bounds one send
	flushTimeout = 2 * time.Second
	// defaultBufferSize is the batch size when none is configured
	defaultBufferSize = 100
)

// Event is the exported form of one committed ad event
type Event struct {
	Network   string    `json:"network"`
	AdType    string    `json:"ad_type"`
	Event     string    `json:"event"`
	Instance  string    `json:"instance"`
	AdID      string    `json:"ad_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Config configures an Exporter
type Config struct {
	URL           string        // Collector base URL, events are POSTed to URL/api/events
	BufferSize    int           // Events per batch
	FlushInterval time.Duration // Partial batches are sent this often, 0 disables
	Breaker       BreakerConfig
}

// Exporter batches events and sends them from a bounded worker pool. Batches
// that do not fit the queue are dropped rather than blocking the caller.
type Exporter struct {
	url        string
	httpClient *http.Client
	breaker    *Breaker
	bufferSize int

	mu     sync.Mutex
	buffer []Event
	closed bool

	flushQueue chan []Event
	stopCh     chan struct{}
	closeOnce  sync.Once
	closeErr   error
	workers    sync.WaitGroup
	loop       sync.WaitGroup

	totalEvents    atomic.Int64
	sentEvents     atomic.Int64
	droppedEvents  atomic.Int64
	droppedBatches atomic.Int64
	failedBatches  atomic.Int64
}

// NewExporter creates an exporter and starts its workers
func NewExporter(cfg Config) *Exporter {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultBufferSize
	}

	log := logger.Component("events")
	onChange := cfg.Breaker.OnStateChange
	cfg.Breaker.OnStateChange = func(from, to State) {
		log.Warn().Str("from", from.String()).Str("to", to.String()).Msg("Event collector circuit changed state")
		if onChange != nil {
			onChange(from, to)
		}
	}

	x := &Exporter{
		url: cfg.URL,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
		breaker:    NewBreaker(cfg.Breaker),
		bufferSize: cfg.BufferSize,
		buffer:     make([]Event, 0, cfg.BufferSize),
		flushQueue: make(chan []Event, flushQueueSize),
		stopCh:     make(chan struct{}),
	}

	for i := 0; i < flushWorkerCount; i++ {
		x.workers.Add(1)
		go x.flushWorker()
	}
	if cfg.FlushInterval > 0 {
		x.loop.Add(1)
		go x.flushLoop(cfg.FlushInterval)
	}
	return x
}

func (x *Exporter) flushWorker() {
	defer x.workers.Done()
	for batch := range x.flushQueue {
		ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
		if err := x.send(ctx, batch); err != nil {
			x.failedBatches.Add(1)
			logger.Log.Debug().Err(err).Int("events", len(batch)).Msg("Event batch not delivered")
		}
		cancel()
	}
}

func (x *Exporter) flushLoop(interval time.Duration) {
	defer x.loop.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-x.stopCh:
			return
		case <-ticker.C:
			x.mu.Lock()
			if len(x.buffer) > 0 {
				x.enqueueLocked(x.swapLocked())
			}
			x.mu.Unlock()
		}
	}
}

// send POSTs one batch through the breaker
func (x *Exporter) send(ctx context.Context, batch []Event) error {
	if len(batch) == 0 {
		return nil
	}
	return x.breaker.Execute(func() error {
		body, err := json.Marshal(map[string]interface{}{"events": batch})
		if err != nil {
			return fmt.Errorf("failed to marshal events: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, x.url+"/api/events", bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := x.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("failed to send events: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("event collector returned status %d", resp.StatusCode)
		}
		x.sentEvents.Add(int64(len(batch)))
		return nil
	})
}

// Record buffers an event, queueing the buffer once it is full. Events
// recorded after Close are dropped.
func (x *Exporter) Record(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	x.totalEvents.Add(1)

	x.mu.Lock()
	defer x.mu.Unlock()
	if x.closed {
		x.droppedEvents.Add(1)
		return
	}
	x.buffer = append(x.buffer, e)
	if len(x.buffer) >= x.bufferSize {
		x.enqueueLocked(x.swapLocked())
	}
}

// swapLocked takes the buffer, mu must be held
func (x *Exporter) swapLocked() []Event {
	batch := x.buffer
	x.buffer = make([]Event, 0, x.bufferSize)
	return batch
}

// enqueueLocked hands a batch to the workers without blocking, mu must be held
func (x *Exporter) enqueueLocked(batch []Event) {
	select {
	case x.flushQueue <- batch:
	default:
		x.droppedEvents.Add(int64(len(batch)))
		x.droppedBatches.Add(1)
	}
}

// Flush sends the buffered events synchronously
func (x *Exporter) Flush(ctx context.Context) error {
	x.mu.Lock()
	if len(x.buffer) == 0 {
		x.mu.Unlock()
		return nil
	}
	batch := x.swapLocked()
	x.mu.Unlock()

	if err := x.send(ctx, batch); err != nil {
		x.failedBatches.Add(1)
		return err
	}
	return nil
}

// Close sends what is buffered and stops the workers once queued batches are
// sent. Later calls return the first call's result.
func (x *Exporter) Close() error {
	x.closeOnce.Do(func() {
		close(x.stopCh)
		x.loop.Wait()

		ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
		defer cancel()
		x.closeErr = x.Flush(ctx)

		x.mu.Lock()
		x.closed = true
		close(x.flushQueue)
		x.mu.Unlock()
		x.workers.Wait()
	})
	return x.closeErr
}

// Stats contains exporter counters
type Stats struct {
	TotalEvents    int64  `json:"total_events"`
	SentEvents     int64  `json:"sent_events"`
	DroppedEvents  int64  `json:"dropped_events"`
	DroppedBatches int64  `json:"dropped_batches"`
	FailedBatches  int64  `json:"failed_batches"`
	BufferedEvents int    `json:"buffered_events"`
	QueuedBatches  int    `json:"queued_batches"`
	Circuit        string `json:"circuit"`
}

// Stats returns the current counters
func (x *Exporter) Stats() Stats {
	x.mu.Lock()
	buffered := len(x.buffer)
	x.mu.Unlock()

	return Stats{
		TotalEvents:    x.totalEvents.Load(),
		SentEvents:     x.sentEvents.Load(),
		DroppedEvents:  x.droppedEvents.Load(),
		DroppedBatches: x.droppedBatches.Load(),
		FailedBatches:  x.failedBatches.Load(),
		BufferedEvents: buffered,
		QueuedBatches:  len(x.flushQueue),
		Circuit:        x.breaker.State().String(),
	}
}

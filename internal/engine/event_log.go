package engine

import (
	"encoding/json"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

const (
	EventBufferSize    = 1024                   // Circular buffer size
	BatchFlushSize     = 64                     // Events per batch write
	BatchFlushInterval = 100 * time.Millisecond // How often to flush
)

// EventLog provides bounded, rate-limited event logging with backpressure.
// Events are written as newline-delimited JSON by a background goroutine.
type EventLog struct {
	mu        sync.Mutex // guards buffer, writeHead, readHead
	buffer    [EventBufferSize]Event
	writeHead uint64
	readHead  uint64

	limiter *rate.Limiter

	writerWg sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
	running  atomic.Bool

	file   *os.File
	fileMu sync.Mutex

	droppedCount atomic.Uint64
	totalCount   atomic.Uint64
}

// NewEventLog creates an event log admitting at most perSec events per
// second with the given burst.
func NewEventLog(perSec float64, burst int) *EventLog {
	if burst < 1 {
		burst = 1
	}
	return &EventLog{
		limiter:  rate.NewLimiter(rate.Limit(perSec), burst),
		stopChan: make(chan struct{}),
	}
}

// Start opens filePath for append and begins the async writer. An empty path
// keeps events in memory only.
func (el *EventLog) Start(filePath string) error {
	if el.running.Load() {
		return nil
	}

	if filePath != "" {
		file, err := os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return err
		}
		el.file = file
	}

	el.running.Store(true)
	el.writerWg.Add(1)
	go el.writerLoop()

	return nil
}

// Stop flushes pending events and closes the file.
func (el *EventLog) Stop() {
	if !el.running.Load() {
		return
	}
	el.stopOnce.Do(func() {
		el.running.Store(false)
		close(el.stopChan)
		el.writerWg.Wait()

		el.fileMu.Lock()
		if el.file != nil {
			el.file.Close()
			el.file = nil
		}
		el.fileMu.Unlock()
	})
}

// Emit adds an event. It returns false when the log is stopped or the event
// was rate limited. A full buffer drops the oldest event.
func (el *EventLog) Emit(event Event) bool {
	if !el.running.Load() {
		return false
	}

	if !el.limiter.Allow() {
		el.droppedCount.Add(1)
		return false
	}

	el.mu.Lock()
	if el.writeHead-el.readHead >= EventBufferSize {
		el.readHead++
		el.droppedCount.Add(1)
	}
	el.writeHead++
	event.Sequence = el.writeHead
	el.buffer[el.writeHead%EventBufferSize] = event
	el.mu.Unlock()

	el.totalCount.Add(1)
	return true
}

// EmitSimple builds and emits an event.
func (el *EventLog) EmitSimple(eventType EventType, tickNum uint64, payload interface{}) bool {
	if !el.running.Load() {
		return false
	}
	return el.Emit(NewEvent(eventType, tickNum, payload))
}

// writerLoop batches and writes events to disk asynchronously
func (el *EventLog) writerLoop() {
	defer el.writerWg.Done()

	ticker := time.NewTicker(BatchFlushInterval)
	defer ticker.Stop()

	batch := make([]Event, 0, BatchFlushSize)

	for {
		select {
		case <-el.stopChan:
			// Final flush
			for {
				batch = el.collectBatch(batch[:0])
				if len(batch) == 0 {
					return
				}
				el.flushBatch(batch)
			}

		case <-ticker.C:
			batch = el.collectBatch(batch[:0])
			if len(batch) > 0 {
				el.flushBatch(batch)
			}
		}
	}
}

// collectBatch reads available events from the circular buffer.
func (el *EventLog) collectBatch(batch []Event) []Event {
	el.mu.Lock()
	defer el.mu.Unlock()

	for el.readHead < el.writeHead && len(batch) < BatchFlushSize {
		el.readHead++
		batch = append(batch, el.buffer[el.readHead%EventBufferSize])
	}
	return batch
}

// flushBatch writes events to disk (append-only, newline-delimited JSON)
func (el *EventLog) flushBatch(batch []Event) {
	el.fileMu.Lock()
	defer el.fileMu.Unlock()

	if el.file == nil {
		return
	}

	for _, event := range batch {
		data, err := json.Marshal(event)
		if err != nil {
			continue
		}
		el.file.Write(append(data, '\n'))
	}
}

// EventLogStats reports event log counters.
type EventLogStats struct {
	Total   uint64 `json:"total"`
	Dropped uint64 `json:"dropped"`
	Pending uint64 `json:"pending"`
	Running bool   `json:"running"`
}

// Stats returns counters for monitoring.
func (el *EventLog) Stats() EventLogStats {
	el.mu.Lock()
	pending := el.writeHead - el.readHead
	el.mu.Unlock()

	return EventLogStats{
		Total:   el.totalCount.Load(),
		Dropped: el.droppedCount.Load(),
		Pending: pending,
		Running: el.running.Load(),
	}
}

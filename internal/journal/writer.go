package journal

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Swind/go-affinity-scheduler/core"
)

const (
	defaultBufferSize = 256
	maxBatch          = 64
)

type event struct {
	execution  *core.TaskExecutionRecord
	completion core.TaskID
	at         time.Time
}

// Writer feeds scheduler events into a Store from a single goroutine. It
// implements core.ExecutionObserver and subscribes to task completion, and
// never blocks the worker that reports an event: when the buffer is full the
// event is dropped and counted.
type Writer struct {
	store      *Store
	instanceID string
	logger     *slog.Logger

	events  chan event
	dropped atomic.Int64

	closeOnce sync.Once
	done      chan struct{}
	finished  chan struct{}
}

var _ core.ExecutionObserver = (*Writer)(nil)

// NewWriter starts a writer for the scheduler instance instanceID.
func NewWriter(store *Store, instanceID string, bufferSize int, logger *slog.Logger) *Writer {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	w := &Writer{
		store:      store,
		instanceID: instanceID,
		logger:     logger.With("component", "journal"),
		events:     make(chan event, bufferSize),
		done:       make(chan struct{}),
		finished:   make(chan struct{}),
	}
	go w.loop()
	return w
}

// Attach subscribes w to completions of s. The returned function detaches it.
func (w *Writer) Attach(s *core.Scheduler) func() {
	id := s.RegisterTaskFinishedDelegate(w.ObserveCompletion)
	return func() { s.UnregisterTaskFinishedDelegate(id) }
}

// ObserveExecution queues an execution record.
func (w *Writer) ObserveExecution(record core.TaskExecutionRecord) {
	w.enqueue(event{execution: &record})
}

// ObserveCompletion queues a completion.
func (w *Writer) ObserveCompletion(id core.TaskID) {
	w.enqueue(event{completion: id, at: time.Now()})
}

func (w *Writer) enqueue(ev event) {
	select {
	case <-w.done:
		w.dropped.Add(1)
		return
	default:
	}
	select {
	case w.events <- ev:
	default:
		if n := w.dropped.Add(1); n == 1 || n%100 == 0 {
			w.logger.Warn("journal buffer full, dropping events", "dropped", n)
		}
	}
}

// Dropped returns the number of events lost to a full buffer or a closed writer.
func (w *Writer) Dropped() int64 { return w.dropped.Load() }

// Close stops accepting events and blocks until buffered ones are written.
func (w *Writer) Close() {
	w.closeOnce.Do(func() {
		close(w.done)
	})
	<-w.finished
}

func (w *Writer) loop() {
	defer close(w.finished)

	batch := make([]core.TaskExecutionRecord, 0, maxBatch)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := w.store.AppendExecutions(context.Background(), w.instanceID, batch); err != nil {
			w.logger.Error("journal write failed", "rows", len(batch), "error", err)
		}
		batch = batch[:0]
	}
	handle := func(ev event) {
		if ev.execution != nil {
			batch = append(batch, *ev.execution)
			if len(batch) == maxBatch {
				flush()
			}
			return
		}
		flush()
		if err := w.store.AppendCompletion(context.Background(), w.instanceID, ev.completion, ev.at); err != nil {
			w.logger.Error("journal write failed", "task_id", ev.completion, "error", err)
		}
	}

	for {
		select {
		case ev := <-w.events:
			handle(ev)
			if len(w.events) == 0 {
				flush()
			}
		case <-w.done:
			for {
				select {
				case ev := <-w.events:
					handle(ev)
				default:
					flush()
					return
				}
			}
		}
	}
}

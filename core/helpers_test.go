package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/gogpu/gpucontext"
)

const (
	testPollInterval = 5 * time.Millisecond
	testTimeout      = time.Second
)

func waitForCondition(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}

// newTestScheduler creates a scheduler with one regular and one context
// worker per window. It is shut down when the test ends.
func newTestScheduler(t *testing.T, mutate ...func(*Options)) (*Scheduler, *recordingLogger) {
	t.Helper()
	logger := &recordingLogger{}
	opts := Options{
		Regular:         PoolSizing{Min: 1, Max: 1},
		Context:         PoolSizing{Min: 1, Max: 1},
		HardwareThreads: 4,
		PollInterval:    testPollInterval,
		Logger:          logger,
	}
	for _, m := range mutate {
		m(&opts)
	}
	s := New(opts)
	t.Cleanup(s.Shutdown)
	return s, logger
}

// =============================================================================
// recordingLogger
// =============================================================================

type logEntry struct {
	level  string
	msg    string
	fields []Field
}

type recordingLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (l *recordingLogger) log(level, msg string, fields []Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry{level: level, msg: msg, fields: fields})
}

func (l *recordingLogger) Debug(msg string, fields ...Field) { l.log("debug", msg, fields) }
func (l *recordingLogger) Info(msg string, fields ...Field)  { l.log("info", msg, fields) }
func (l *recordingLogger) Warn(msg string, fields ...Field)  { l.log("warn", msg, fields) }
func (l *recordingLogger) Error(msg string, fields ...Field) { l.log("error", msg, fields) }

func (l *recordingLogger) count(level string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.entries {
		if e.level == level {
			n++
		}
	}
	return n
}

func (l *recordingLogger) has(level, msg string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		if e.level == level && e.msg == msg {
			return true
		}
	}
	return false
}

// =============================================================================
// completionRecorder
// =============================================================================

type completionRecorder struct {
	mu    sync.Mutex
	order []TaskID
	count map[TaskID]int
}

func newCompletionRecorder(s *Scheduler) *completionRecorder {
	r := &completionRecorder{count: make(map[TaskID]int)}
	s.RegisterTaskFinishedDelegate(r.record)
	return r
}

func (r *completionRecorder) record(id TaskID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.order = append(r.order, id)
	r.count[id]++
}

func (r *completionRecorder) times(id TaskID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count[id]
}

func (r *completionRecorder) total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.order)
}

// =============================================================================
// testWindow
// =============================================================================

type testContext struct {
	NullContext
	id int
}

var _ gpucontext.DeviceProvider = (*testContext)(nil)

var errNoContext = errors.New("context creation refused")

// testWindow hands out testContexts and records on which thread each one was
// created and released. The first failFirst creations fail.
type testWindow struct {
	name string

	mu        sync.Mutex
	failFirst int
	attempts  int
	nextCtxID int
	created   map[int]int // context id -> creating thread
	released  map[int]int // context id -> releasing thread
}

func newTestWindow(name string) *testWindow {
	return &testWindow{
		name:     name,
		created:  make(map[int]int),
		released: make(map[int]int),
	}
}

func (w *testWindow) Name() string { return w.name }

func (w *testWindow) CreateContext() (gpucontext.DeviceProvider, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.attempts++
	if w.attempts <= w.failFirst {
		return nil, fmt.Errorf("%s: %w", w.name, errNoContext)
	}
	w.nextCtxID++
	c := &testContext{id: w.nextCtxID}
	w.created[c.id] = currentThreadID()
	return c, nil
}

func (w *testWindow) ReleaseContext(p gpucontext.DeviceProvider) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if c, ok := p.(*testContext); ok {
		w.released[c.id] = currentThreadID()
	}
}

func (w *testWindow) contexts() (created, released map[int]int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	created = make(map[int]int, len(w.created))
	for k, v := range w.created {
		created[k] = v
	}
	released = make(map[int]int, len(w.released))
	for k, v := range w.released {
		released[k] = v
	}
	return created, released
}

// gatedWindow holds every context creation until release is closed.
type gatedWindow struct {
	*testWindow
	entered chan struct{}
	release chan struct{}
}

func newGatedWindow(name string) *gatedWindow {
	return &gatedWindow{
		testWindow: newTestWindow(name),
		entered:    make(chan struct{}, 1),
		release:    make(chan struct{}),
	}
}

func (w *gatedWindow) CreateContext() (gpucontext.DeviceProvider, error) {
	select {
	case w.entered <- struct{}{}:
	default:
	}
	<-w.release
	return w.testWindow.CreateContext()
}

// =============================================================================
// alwaysRepeatingTask
// =============================================================================

// alwaysRepeatingTask keeps reporting itself as repeating after Abort.
type alwaysRepeatingTask struct {
	*FuncTask
}

func (*alwaysRepeatingTask) IsRepeating() bool { return true }

// blockUntilAborted returns a task body that signals started on its first run
// and then blocks until its run context is cancelled.
func blockUntilAborted(started chan struct{}) func(context.Context) {
	var once sync.Once
	return func(ctx context.Context) {
		once.Do(func() { close(started) })
		<-ctx.Done()
	}
}

package core

import (
	"context"
	"fmt"
	"reflect"
	"strconv"
	"sync"
	"sync/atomic"
)

// =============================================================================
// TaskID: process-unique task identity
// =============================================================================

// TaskID identifies a task for its whole lifetime. Zero is never generated.
type TaskID uint64

var lastTaskID atomic.Uint64

// GenerateTaskID returns the next process-unique task id.
func GenerateTaskID() TaskID {
	return TaskID(lastTaskID.Add(1))
}

// IsZero reports whether the id was never assigned.
func (id TaskID) IsZero() bool {
	return id == 0
}

func (id TaskID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// =============================================================================
// Affinity and Priority
// =============================================================================

// Affinity selects which worker pool may execute a task.
type Affinity int

const (
	// AffinityDefault tasks run on any generic worker.
	AffinityDefault Affinity = iota

	// AffinityContextBound tasks run only on workers bound to the task's window.
	AffinityContextBound
)

func (a Affinity) String() string {
	switch a {
	case AffinityDefault:
		return "default"
	case AffinityContextBound:
		return "context_bound"
	default:
		return "unknown"
	}
}

// MarshalText renders the affinity by name in JSON and logs.
func (a Affinity) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText parses a name produced by MarshalText.
func (a *Affinity) UnmarshalText(text []byte) error {
	switch string(text) {
	case "default":
		*a = AffinityDefault
	case "context_bound":
		*a = AffinityContextBound
	default:
		return fmt.Errorf("unknown affinity %q", text)
	}
	return nil
}

// Priority orders queued tasks. Lower values run first.
type Priority int

const (
	PriorityHighest Priority = -100
	PriorityDefault Priority = 0
	PriorityLowest  Priority = 100
)

// =============================================================================
// Task: the contract every scheduled unit of work implements
// =============================================================================

// Task is a cancellable, possibly repeating unit of work.
//
// Implementations embed *BaseTask (see NewBaseTask) and provide Run. BaseTask
// carries the bookkeeping the scheduler relies on, so a Task cannot be
// implemented without it.
type Task interface {
	ID() TaskID
	Name() string
	Priority() Priority
	Affinity() Affinity
	Window() Window

	// Run performs one unit of work. It must return early once Aborted()
	// reports true; ctx is cancelled when the task is aborted.
	Run(ctx context.Context)

	// Abort requests cooperative cancellation. It never blocks.
	Abort()
	Aborted() bool

	// IsRunning is true from the moment a worker moves the task into its
	// running list until Run has returned.
	IsRunning() bool

	// IsRepeating is queried once after each Run to decide between
	// re-queueing and removal.
	IsRepeating() bool

	base() *BaseTask
}

// TaskOption configures a BaseTask at construction.
type TaskOption func(*BaseTask)

// WithPriority sets the initial priority.
func WithPriority(p Priority) TaskOption {
	return func(b *BaseTask) { b.priority.Store(int64(p)) }
}

// WithRepeating marks the task as repeating.
func WithRepeating() TaskOption {
	return func(b *BaseTask) { b.repeating.Store(true) }
}

// WithWindow binds the task to the rendering context of w.
func WithWindow(w Window) TaskOption {
	return func(b *BaseTask) {
		b.window = w
		b.affinity = AffinityContextBound
	}
}

// WithAffinity overrides the affinity tag. WithWindow already implies
// AffinityContextBound.
func WithAffinity(a Affinity) TaskOption {
	return func(b *BaseTask) { b.affinity = a }
}

// WithID assigns an explicit id instead of a generated one.
func WithID(id TaskID) TaskOption {
	return func(b *BaseTask) { b.id = id }
}

// WithName sets a human readable name used in logs and execution history.
func WithName(name string) TaskOption {
	return func(b *BaseTask) { b.name = name }
}

// BaseTask implements every Task method except Run.
type BaseTask struct {
	id       TaskID
	name     string
	affinity Affinity
	window   Window

	priority  atomic.Int64
	repeating atomic.Bool
	aborted   atomic.Bool
	running   atomic.Bool
	runs      atomic.Int64

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewBaseTask creates the bookkeeping half of a task.
func NewBaseTask(opts ...TaskOption) *BaseTask {
	b := &BaseTask{}
	for _, opt := range opts {
		opt(b)
	}
	if b.id.IsZero() {
		b.id = GenerateTaskID()
	}
	if b.name == "" {
		b.name = "task-" + b.id.String()
	}
	return b
}

func (b *BaseTask) ID() TaskID         { return b.id }
func (b *BaseTask) Name() string       { return b.name }
func (b *BaseTask) Affinity() Affinity { return b.affinity }
func (b *BaseTask) Window() Window     { return b.window }
func (b *BaseTask) Priority() Priority { return Priority(b.priority.Load()) }
func (b *BaseTask) IsRunning() bool    { return b.running.Load() }
func (b *BaseTask) Aborted() bool      { return b.aborted.Load() }

// Runs returns how many times Run has returned for this task.
func (b *BaseTask) Runs() int64 { return b.runs.Load() }

// SetPriority changes the priority used from the next time the task is
// queued.
func (b *BaseTask) SetPriority(p Priority) {
	b.priority.Store(int64(p))
}

// SetRepeating changes whether the task is re-queued after its current run.
func (b *BaseTask) SetRepeating(repeating bool) {
	b.repeating.Store(repeating)
}

// IsRepeating reports false once the task has been aborted so an aborted
// repeating task retires after the run that observed the abort.
func (b *BaseTask) IsRepeating() bool {
	return b.repeating.Load() && !b.aborted.Load()
}

// Abort sets the abort flag and cancels the context of an in-progress Run.
func (b *BaseTask) Abort() {
	b.aborted.Store(true)

	b.mu.Lock()
	cancel := b.cancel
	b.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (b *BaseTask) base() *BaseTask { return b }

// isNilTask reports whether t has no usable BaseTask, typed nil pointers included.
func isNilTask(t Task) bool {
	if t == nil {
		return true
	}
	if v := reflect.ValueOf(t); v.Kind() == reflect.Pointer && v.IsNil() {
		return true
	}
	return t.base() == nil
}

func (b *BaseTask) markRunning() {
	b.running.Store(true)
}

// beginRun derives the context handed to Run. An already aborted task gets a
// cancelled context.
func (b *BaseTask) beginRun(parent context.Context) context.Context {
	ctx, cancel := context.WithCancel(parent)

	b.mu.Lock()
	b.cancel = cancel
	b.mu.Unlock()

	if b.aborted.Load() {
		cancel()
	}
	return ctx
}

func (b *BaseTask) endRun() {
	b.mu.Lock()
	cancel := b.cancel
	b.cancel = nil
	b.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	b.runs.Add(1)
	b.running.Store(false)
}

// =============================================================================
// FuncTask: closure-backed task
// =============================================================================

// FuncTask adapts a function to the Task interface.
type FuncTask struct {
	*BaseTask
	fn func(ctx context.Context)
}

// NewFuncTask creates a task that calls fn on every run.
func NewFuncTask(fn func(ctx context.Context), opts ...TaskOption) *FuncTask {
	return &FuncTask{
		BaseTask: NewBaseTask(opts...),
		fn:       fn,
	}
}

// Run calls the wrapped function.
func (t *FuncTask) Run(ctx context.Context) {
	if t.fn != nil {
		t.fn(ctx)
	}
}

// =============================================================================
// Context Helper
// =============================================================================

type schedulerKeyType struct{}

var schedulerKey schedulerKeyType

// SchedulerFromContext returns the scheduler executing the current task, so a
// task body can submit follow-up work.
func SchedulerFromContext(ctx context.Context) *Scheduler {
	if v := ctx.Value(schedulerKey); v != nil {
		return v.(*Scheduler)
	}
	return nil
}

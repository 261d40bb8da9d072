package core

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

const (
	stateCreated int32 = iota
	stateRunning
	stateStopped
)

const regularPoolName = "regular"

// Scheduler accepts tasks and runs them on a regular worker pool or on the
// context-bound workers of the window they belong to.
//
// A Scheduler is created with New, started with Start and torn down with
// Shutdown. Shutdown and DestroyContextWorkers wait for running tasks to
// retire, so neither may be called from inside a task.
type Scheduler struct {
	opts Options

	// lifecycleMu serialises state transitions against submissions and
	// context worker creation.
	lifecycleMu sync.RWMutex
	state       atomic.Int32
	stopWatch   func() bool
	stopped     chan struct{} // closed once Shutdown has finished

	registry *Registry
	regular  *pipeline

	windowsMu sync.RWMutex
	windows   map[Window]*pipeline
	pending   map[Window]struct{} // windows whose context workers are starting

	notifier *completionNotifier
	history  *executionHistory

	completed    atomic.Int64
	rejected     atomic.Int64
	nextWorkerID atomic.Int64

	logger              Logger
	panicHandler        PanicHandler
	metrics             Metrics
	rejectedTaskHandler RejectedTaskHandler
	observer            ExecutionObserver
}

// New creates a stopped scheduler. Zero-valued options fall back to
// DefaultOptions.
func New(opts Options) *Scheduler {
	defaults := DefaultOptions()
	if opts.Regular == (PoolSizing{}) {
		opts.Regular = defaults.Regular
	}
	if opts.Context == (PoolSizing{}) {
		opts.Context = defaults.Context
	}
	if opts.HardwareThreads <= 0 {
		opts.HardwareThreads = defaults.HardwareThreads
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaults.PollInterval
	}
	if opts.HistoryCapacity <= 0 {
		opts.HistoryCapacity = defaults.HistoryCapacity
	}
	if opts.InstanceID == "" {
		opts.InstanceID = uuid.NewString()
	}

	s := &Scheduler{
		opts:     opts,
		registry: NewRegistry(),
		windows:  make(map[Window]*pipeline),
		pending:  make(map[Window]struct{}),
		history:  newExecutionHistory(opts.HistoryCapacity),
		stopped:  make(chan struct{}),
	}

	s.logger = opts.Logger
	if s.logger == nil {
		s.logger = NewSlogLogger(nil)
	}
	if sl, ok := s.logger.(*SlogLogger); ok {
		s.logger = sl.With(F("component", "scheduler"), F("instance", opts.InstanceID))
	}

	s.panicHandler = opts.PanicHandler
	if s.panicHandler == nil {
		s.panicHandler = &DefaultPanicHandler{Logger: s.logger}
	}
	s.metrics = opts.Metrics
	if s.metrics == nil {
		s.metrics = &NilMetrics{}
	}
	s.rejectedTaskHandler = opts.RejectedTaskHandler
	if s.rejectedTaskHandler == nil {
		s.rejectedTaskHandler = &DefaultRejectedTaskHandler{Logger: s.logger}
	}

	s.observer = opts.ExecutionObserver

	regularWorkers := ResolvePoolSize(opts.Regular, opts.HardwareThreads)
	s.regular = newPipeline(regularPoolName, AffinityDefault, nil, regularWorkers)
	s.notifier = newCompletionNotifier(s.logger)
	return s
}

// Start launches the regular workers. Tasks submitted before Start wait in
// the incoming list. Cancelling ctx shuts the scheduler down.
func (s *Scheduler) Start(ctx context.Context) error {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	switch s.state.Load() {
	case stateRunning:
		return nil
	case stateStopped:
		return ErrSchedulerStopped
	}
	s.state.Store(stateRunning)

	n := ResolvePoolSize(s.opts.Regular, s.opts.HardwareThreads)
	for range n {
		s.startRegularWorker(s.regular)
	}
	s.regular.notify()

	if ctx != nil && ctx.Done() != nil {
		s.stopWatch = context.AfterFunc(ctx, s.Shutdown)
	}

	s.logger.Info("scheduler started",
		F("regular_workers", n), F("hardware_threads", s.opts.HardwareThreads))
	return nil
}

// IsRunning reports whether the scheduler is started and not yet shut down.
func (s *Scheduler) IsRunning() bool {
	return s.state.Load() == stateRunning
}

// Submit transfers ownership of t to the scheduler. A rejected task stays
// with the caller.
func (s *Scheduler) Submit(t Task) (TaskID, error) {
	if isNilTask(t) {
		return 0, ErrNilTask
	}

	s.lifecycleMu.RLock()
	defer s.lifecycleMu.RUnlock()

	if s.state.Load() == stateStopped {
		return 0, s.reject(poolNameOf(t), t, ErrSchedulerStopped)
	}

	s.windowsMu.RLock()
	p, err := s.pipelineForLocked(t)
	if err != nil {
		s.windowsMu.RUnlock()
		return 0, s.reject(poolNameOf(t), t, err)
	}

	if err := s.registry.Add(t); err != nil {
		s.windowsMu.RUnlock()
		s.logger.Warn("duplicate task id submitted", F("task_id", t.ID()), F("name", t.Name()))
		return 0, s.reject(p.name, t, err)
	}
	p.incoming.push(t)
	s.windowsMu.RUnlock()

	p.notify()
	return t.ID(), nil
}

// pipelineForLocked picks the pipeline for t. The caller holds windowsMu.
func (s *Scheduler) pipelineForLocked(t Task) (*pipeline, error) {
	if t.Affinity() == AffinityDefault {
		return s.regular, nil
	}
	w := t.Window()
	if w == nil {
		return nil, ErrMissingWindow
	}
	p, ok := s.windows[w]
	if !ok {
		return nil, fmt.Errorf("window %q: %w", w.Name(), ErrUnknownWindow)
	}
	return p, nil
}

func poolNameOf(t Task) string {
	if t.Affinity() == AffinityContextBound && t.Window() != nil {
		return windowPoolName(t.Window())
	}
	return regularPoolName
}

func (s *Scheduler) reject(pool string, t Task, err error) error {
	s.rejected.Add(1)
	s.metrics.RecordTaskRejected(pool, rejectReason(err))
	s.rejectedTaskHandler.HandleRejectedTask(pool, t.ID(), err.Error())
	return err
}

// rejectReason maps a rejection to a bounded metric label.
func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrDuplicateTask):
		return "duplicate"
	case errors.Is(err, ErrSchedulerStopped):
		return "stopped"
	case errors.Is(err, ErrMissingWindow):
		return "missing_window"
	case errors.Is(err, ErrUnknownWindow):
		return "unknown_window"
	default:
		return "other"
	}
}

// Abort requests cancellation of the task registered under id. Unknown ids
// are ignored. A queued task still runs once and observes the request.
func (s *Scheduler) Abort(id TaskID) bool {
	t, ok := s.registry.Get(id)
	if !ok {
		return false
	}
	t.Abort()
	s.logger.Debug("task abort requested", F("task_id", id))
	return true
}

// Lookup returns the registered task with the given id.
func (s *Scheduler) Lookup(id TaskID) (Task, bool) {
	return s.registry.Get(id)
}

// CreateContextWorkers starts the context-bound workers of w. Each worker
// locks its own OS thread and creates a rendering context for w on it.
// Workers whose context cannot be created are discarded; it returns the
// number of workers that came up.
func (s *Scheduler) CreateContextWorkers(w Window) (int, error) {
	if w == nil {
		return 0, ErrMissingWindow
	}

	s.lifecycleMu.RLock()
	defer s.lifecycleMu.RUnlock()

	switch s.state.Load() {
	case stateCreated:
		return 0, ErrSchedulerNotStarted
	case stateStopped:
		return 0, ErrSchedulerStopped
	}

	if err := s.reserveWindow(w); err != nil {
		return 0, err
	}

	want := ResolvePoolSize(s.opts.Context, s.opts.HardwareThreads)
	p := newPipeline(windowPoolName(w), AffinityContextBound, w, want)

	ready := make(chan bool, want)
	for range want {
		s.startContextWorker(p, ready)
	}
	created := 0
	for range want {
		if <-ready {
			created++
		}
	}

	if created == 0 {
		p.requestStop()
		p.workers.Wait()
		s.windowsMu.Lock()
		delete(s.pending, w)
		s.windowsMu.Unlock()
		return 0, fmt.Errorf("window %q: %w", w.Name(), ErrContextUnavailable)
	}
	if created < want {
		s.logger.Warn("context pool smaller than requested",
			F("pool", p.name), F("requested", want), F("created", created))
	}

	s.windowsMu.Lock()
	delete(s.pending, w)
	s.windows[w] = p
	s.windowsMu.Unlock()

	s.logger.Info("context workers started", F("pool", p.name), F("workers", created))
	return created, nil
}

// reserveWindow marks w as starting so a concurrent CreateContextWorkers for
// the same window is refused while contexts are created outside windowsMu.
func (s *Scheduler) reserveWindow(w Window) error {
	s.windowsMu.Lock()
	defer s.windowsMu.Unlock()

	_, live := s.windows[w]
	_, starting := s.pending[w]
	if live || starting {
		return fmt.Errorf("window %q: %w", w.Name(), ErrWindowExists)
	}
	s.pending[w] = struct{}{}
	return nil
}

// DestroyContextWorkers tears down the workers of w only. Tasks of w that
// have not started are dropped without completion. Running ones are aborted
// and awaited, and each worker releases its rendering context on its own
// thread before it is joined. Other windows and the regular pool keep going.
func (s *Scheduler) DestroyContextWorkers(w Window) error {
	if w == nil {
		return ErrMissingWindow
	}

	s.windowsMu.Lock()
	p, ok := s.windows[w]
	delete(s.windows, w)
	s.windowsMu.Unlock()

	if !ok {
		return fmt.Errorf("window %q: %w", w.Name(), ErrUnknownWindow)
	}

	p.requestStop()
	dropped := s.discard(p)
	aborted := s.abortRunning(p)
	p.running.waitDrained()
	p.workers.Wait()
	dropped += s.discard(p)

	s.logger.Info("context workers destroyed",
		F("pool", p.name), F("dropped", dropped), F("aborted", aborted))
	return nil
}

// Shutdown stops the scheduler. Further submissions are rejected, running
// tasks are aborted and awaited, every worker is joined and the tasks that
// never started are dropped. It is safe to call more than once; later calls
// block until the first one has finished.
func (s *Scheduler) Shutdown() {
	s.lifecycleMu.Lock()
	if s.state.Load() == stateStopped {
		s.lifecycleMu.Unlock()
		<-s.stopped
		return
	}
	s.state.Store(stateStopped)
	stopWatch := s.stopWatch
	s.stopWatch = nil
	s.lifecycleMu.Unlock()

	if stopWatch != nil {
		stopWatch()
	}

	s.windowsMu.Lock()
	windows := make([]*pipeline, 0, len(s.windows))
	for _, p := range s.windows {
		windows = append(windows, p)
	}
	s.windows = make(map[Window]*pipeline)
	s.windowsMu.Unlock()

	all := append([]*pipeline{s.regular}, windows...)

	dropped, aborted := 0, 0
	for _, p := range all {
		p.requestStop()
		dropped += s.discard(p)
		aborted += s.abortRunning(p)
	}
	for _, p := range all {
		p.running.waitDrained()
	}

	s.regular.workers.Wait()
	for _, p := range windows {
		p.workers.Wait()
	}

	for _, p := range all {
		dropped += s.discard(p)
	}
	if n := s.registry.Clear(); n > 0 {
		s.logger.Error("registry not empty after shutdown", F("tasks", n))
	}

	s.logger.Info("scheduler stopped",
		F("dropped", dropped), F("aborted", aborted), F("completed", s.completed.Load()))
	close(s.stopped)
}

// RegisterTaskFinishedDelegate subscribes fn to task completion. fn runs on
// the worker that retired the task.
func (s *Scheduler) RegisterTaskFinishedDelegate(fn TaskFinishedFunc) DelegateID {
	return s.notifier.register(fn)
}

// UnregisterTaskFinishedDelegate removes a delegate. Unknown ids are ignored.
func (s *Scheduler) UnregisterTaskFinishedDelegate(id DelegateID) bool {
	return s.notifier.unregister(id)
}

// CompletedCount returns the number of tasks removed after their final run.
func (s *Scheduler) CompletedCount() int64 { return s.completed.Load() }

// RejectedCount returns the number of refused submissions.
func (s *Scheduler) RejectedCount() int64 { return s.rejected.Load() }

// RegisteredCount returns the number of tasks currently owned.
func (s *Scheduler) RegisteredCount() int { return s.registry.Len() }

// QueuedTaskCount returns the incoming plus queued tasks of one category.
func (s *Scheduler) QueuedTaskCount(a Affinity) int {
	return s.Stats().Queued(a)
}

// RunningTaskCount returns the executing tasks of one category.
func (s *Scheduler) RunningTaskCount(a Affinity) int {
	return s.Stats().RunningCount(a)
}

// InstanceID returns the id tagging this scheduler's logs.
func (s *Scheduler) InstanceID() string { return s.opts.InstanceID }

// Stats returns a point-in-time snapshot of every pool.
func (s *Scheduler) Stats() SchedulerStats {
	s.windowsMu.RLock()
	windows := make([]PoolStats, 0, len(s.windows))
	for _, p := range s.windows {
		windows = append(windows, p.stats())
	}
	s.windowsMu.RUnlock()
	slices.SortFunc(windows, func(a, b PoolStats) int { return cmp.Compare(a.Name, b.Name) })

	return SchedulerStats{
		InstanceID: s.opts.InstanceID,
		Running:    s.IsRunning(),
		Registered: s.registry.Len(),
		Completed:  s.completed.Load(),
		Rejected:   s.rejected.Load(),
		Regular:    s.regular.stats(),
		Windows:    windows,
	}
}

// RecentExecutions returns up to limit execution records, newest first.
func (s *Scheduler) RecentExecutions(limit int) []TaskExecutionRecord {
	return s.history.Recent(limit)
}

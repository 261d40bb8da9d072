package core

import (
	"context"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/gogpu/gpucontext"
)

// worker is one goroutine serving a pipeline. Context workers additionally
// own a rendering context and stay locked to one OS thread.
type worker struct {
	id       int
	pool     *pipeline
	window   Window
	provider gpucontext.DeviceProvider
	threadID int
	ctx      context.Context
}

func (s *Scheduler) newWorker(p *pipeline, provider gpucontext.DeviceProvider, threadID int) *worker {
	w := &worker{
		id:       int(s.nextWorkerID.Add(1)),
		pool:     p,
		window:   p.window,
		provider: provider,
		threadID: threadID,
	}
	ctx := context.WithValue(p.ctx, schedulerKey, s)
	w.ctx = context.WithValue(ctx, workerKey, w)
	return w
}

func (s *Scheduler) startRegularWorker(p *pipeline) {
	w := s.newWorker(p, nil, -1)
	p.addWorker(w)
	p.workers.Add(1)

	go func() {
		defer p.workers.Done()
		defer p.removeWorker(w)
		s.workerLoop(p, w)
	}()
}

// startContextWorker spawns a worker pinned to its own OS thread. It reports
// on ready whether the window produced a rendering context; a worker without
// one exits immediately and is not counted.
func (s *Scheduler) startContextWorker(p *pipeline, ready chan<- bool) {
	p.workers.Add(1)

	go func() {
		defer p.workers.Done()

		runtime.LockOSThread()
		defer runtime.UnlockOSThread()

		provider, err := p.window.CreateContext()
		if err != nil {
			s.logger.Warn("rendering context creation failed, discarding worker",
				F("pool", p.name), F("error", err))
			ready <- false
			return
		}
		defer p.window.ReleaseContext(provider)

		w := s.newWorker(p, provider, currentThreadID())
		p.addWorker(w)
		defer p.removeWorker(w)

		s.logger.Debug("context worker bound",
			F("pool", p.name), F("worker", w.id), F("thread", w.threadID),
			F("surface_format", provider.SurfaceFormat()))
		ready <- true

		s.workerLoop(p, w)
	}()
}

func (s *Scheduler) workerLoop(p *pipeline, w *worker) {
	timer := time.NewTimer(s.opts.PollInterval)
	defer timer.Stop()

	for s.state.Load() == stateRunning && !p.stopping.Load() {
		s.flush(p)

		task, ok := p.dequeue()
		if !ok {
			p.idle(timer, s.opts.PollInterval)
			continue
		}

		s.execute(p, w, task)
		s.retire(p, task)
	}
	s.logger.Debug("worker stopped", F("pool", p.name), F("worker", w.id))
}

// flush moves the pipeline's incoming batch into its queued list. A task
// whose affinity does not match is handed to the pipeline it belongs to.
func (s *Scheduler) flush(p *pipeline) {
	batch := p.incoming.swap()
	if len(batch) == 0 {
		return
	}

	own := make([]Task, 0, len(batch))
	for _, t := range batch {
		if p.accepts(t) {
			own = append(own, t)
			continue
		}
		s.logger.Error("task found in foreign incoming list",
			F("pool", p.name), F("task_id", t.ID()), F("affinity", t.Affinity()))
		s.reroute(t)
	}

	depth := p.queued.pushAll(own)
	s.metrics.RecordQueueDepth(p.name, depth)
}

func (s *Scheduler) reroute(t Task) {
	s.windowsMu.RLock()
	target, err := s.pipelineForLocked(t)
	s.windowsMu.RUnlock()

	if err != nil {
		s.registry.Remove(t.ID())
		s.logger.Error("dropping task without a pool", F("task_id", t.ID()), F("error", err))
		return
	}
	target.incoming.push(t)
	target.notify()
}

func (s *Scheduler) execute(p *pipeline, w *worker, t Task) {
	b := t.base()
	if p.stopping.Load() {
		// Dequeued after teardown took its abort snapshot.
		t.Abort()
	}
	runCtx := b.beginRun(w.ctx)
	startedAt := time.Now()
	panicked := false

	func() {
		defer func() {
			if r := recover(); r != nil {
				panicked = true
				s.metrics.RecordTaskPanic(p.name, r)
				s.panicHandler.HandlePanic(runCtx, p.name, w.id, r, debug.Stack())
			}
		}()
		t.Run(runCtx)
	}()

	b.endRun()
	finishedAt := time.Now()

	if w.provider != nil {
		pumpContext(w.provider)
	}

	duration := finishedAt.Sub(startedAt)
	s.metrics.RecordTaskDuration(p.name, t.Priority(), duration)
	record := TaskExecutionRecord{
		TaskID:     t.ID(),
		Name:       t.Name(),
		PoolName:   p.name,
		Affinity:   p.affinity,
		WorkerID:   w.id,
		ThreadID:   w.threadID,
		Priority:   t.Priority(),
		StartedAt:  startedAt,
		FinishedAt: finishedAt,
		Duration:   duration,
		Panicked:   panicked,
		Aborted:    t.Aborted(),
		Repeating:  t.IsRepeating(),
	}
	s.history.Add(record)
	if s.observer != nil {
		s.observer.ObserveExecution(record)
	}
}

// retire takes t out of the running list and either re-queues it or removes
// it from the scheduler for good. Once the pipeline is stopping every task
// is removed, whatever it reports for IsRepeating.
func (s *Scheduler) retire(p *pipeline, t Task) {
	if !p.running.beginRetire(t) {
		s.logger.Error("retiring task missing from running list",
			F("pool", p.name), F("task_id", t.ID()))
	}
	defer p.running.endRetire(t)

	if t.IsRepeating() && !p.stopping.Load() {
		p.incoming.push(t)
		return
	}
	s.finish(p, t)
}

func (s *Scheduler) finish(p *pipeline, t Task) {
	if !s.registry.Remove(t.ID()) {
		s.logger.Error("finished task missing from registry",
			F("pool", p.name), F("task_id", t.ID()))
	}
	s.completed.Add(1)
	s.metrics.RecordTaskCompleted(p.name)
	s.notifier.fire(t.ID())
}

// discard empties the incoming and queued lists of p without running the
// tasks. Discarded tasks leave the registry silently.
func (s *Scheduler) discard(p *pipeline) int {
	tasks := p.incoming.swap()
	tasks = append(tasks, p.queued.drain()...)
	for _, t := range tasks {
		s.registry.Remove(t.ID())
	}
	return len(tasks)
}

// abortRunning requests cancellation of every task currently executing in p.
func (s *Scheduler) abortRunning(p *pipeline) int {
	running := p.running.snapshot()
	for _, t := range running {
		t.Abort()
	}
	return len(running)
}

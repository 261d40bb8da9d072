package core

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// pipeline is one incoming → queued → running chain together with the
// workers that serve it. The scheduler owns one regular pipeline and one
// pipeline per window with live context workers.
type pipeline struct {
	name     string
	affinity Affinity
	window   Window

	incoming *incomingList
	queued   *queuedList
	running  *runningSet

	wake     chan struct{}
	ctx      context.Context
	cancel   context.CancelFunc
	stopping atomic.Bool
	workers  sync.WaitGroup

	liveMu sync.Mutex
	live   []*worker
}

func newPipeline(name string, affinity Affinity, window Window, workerHint int) *pipeline {
	ctx, cancel := context.WithCancel(context.Background())
	return &pipeline{
		name:     name,
		affinity: affinity,
		window:   window,
		incoming: newIncomingList(),
		queued:   newQueuedList(),
		running:  newRunningSet(),
		wake:     make(chan struct{}, max(workerHint, 1)*2),
		ctx:      ctx,
		cancel:   cancel,
	}
}

func windowPoolName(w Window) string {
	return "window:" + w.Name()
}

// accepts reports whether t belongs to this pipeline.
func (p *pipeline) accepts(t Task) bool {
	if t.Affinity() != p.affinity {
		return false
	}
	return p.affinity == AffinityDefault || t.Window() == p.window
}

// notify wakes one idle worker. A full channel already guarantees a wakeup.
func (p *pipeline) notify() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// requestStop makes every worker of the pipeline leave its loop after the
// task it is currently executing.
func (p *pipeline) requestStop() {
	p.stopping.Store(true)
	p.cancel()
}

// dequeue moves the head of the queued list into the running list. Both
// locks are held so the task is never absent from both lists.
func (p *pipeline) dequeue() (Task, bool) {
	p.queued.mu.Lock()
	defer p.queued.mu.Unlock()

	t, ok := p.queued.popLocked()
	if !ok {
		return nil, false
	}

	p.running.mu.Lock()
	p.running.addLocked(t)
	t.base().markRunning()
	p.running.mu.Unlock()
	return t, true
}

// idle waits for a wakeup, a stop request or the poll interval.
func (p *pipeline) idle(timer *time.Timer, interval time.Duration) {
	timer.Reset(interval)
	select {
	case <-p.wake:
	case <-p.ctx.Done():
	case <-timer.C:
	}
	timer.Stop()
}

func (p *pipeline) addWorker(w *worker) {
	p.liveMu.Lock()
	p.live = append(p.live, w)
	p.liveMu.Unlock()
}

func (p *pipeline) removeWorker(w *worker) {
	p.liveMu.Lock()
	defer p.liveMu.Unlock()
	for i, cur := range p.live {
		if cur == w {
			p.live = append(p.live[:i], p.live[i+1:]...)
			return
		}
	}
}

func (p *pipeline) stats() PoolStats {
	p.liveMu.Lock()
	workers := len(p.live)
	var threads []int
	if p.affinity == AffinityContextBound {
		threads = make([]int, 0, workers)
		for _, w := range p.live {
			threads = append(threads, w.threadID)
		}
	}
	p.liveMu.Unlock()

	return PoolStats{
		Name:      p.name,
		Affinity:  p.affinity,
		Workers:   workers,
		ThreadIDs: threads,
		Incoming:  p.incoming.len(),
		Queued:    p.queued.len(),
		Running:   p.running.len(),
		Stopping:  p.stopping.Load(),
	}
}

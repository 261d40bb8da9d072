package core

import (
	"sync"

	"github.com/emirpasic/gods/trees/redblacktree"
)

const defaultQueueCap = 16

// =============================================================================
// incomingList: unsorted ingress buffer, swapped out wholesale by workers
// =============================================================================

type incomingList struct {
	mu    sync.Mutex
	tasks []Task
}

func newIncomingList() *incomingList {
	return &incomingList{tasks: make([]Task, 0, defaultQueueCap)}
}

func (l *incomingList) push(t Task) {
	l.mu.Lock()
	l.tasks = append(l.tasks, t)
	l.mu.Unlock()
}

// swap takes every buffered task and leaves an empty list behind.
func (l *incomingList) swap() []Task {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.tasks) == 0 {
		return nil
	}
	batch := l.tasks
	l.tasks = make([]Task, 0, defaultQueueCap)
	return batch
}

func (l *incomingList) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.tasks)
}

// =============================================================================
// queuedList: tasks ordered by priority, FIFO among equal priorities
// =============================================================================

// queueKey orders the tree. seq keeps the order stable for equal priorities.
type queueKey struct {
	priority Priority
	seq      uint64
}

func compareQueueKeys(a, b any) int {
	ka, kb := a.(queueKey), b.(queueKey)
	switch {
	case ka.priority < kb.priority:
		return -1
	case ka.priority > kb.priority:
		return 1
	case ka.seq < kb.seq:
		return -1
	case ka.seq > kb.seq:
		return 1
	default:
		return 0
	}
}

type queuedList struct {
	mu      sync.Mutex
	tree    *redblacktree.Tree
	nextSeq uint64
}

func newQueuedList() *queuedList {
	return &queuedList{tree: redblacktree.NewWith(compareQueueKeys)}
}

// pushAll inserts a flushed batch, keyed by each task's current priority.
func (q *queuedList) pushAll(tasks []Task) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, t := range tasks {
		q.tree.Put(queueKey{priority: t.Priority(), seq: q.nextSeq}, t)
		q.nextSeq++
	}
	return q.tree.Size()
}

// popLocked removes the head. The caller holds q.mu.
func (q *queuedList) popLocked() (Task, bool) {
	node := q.tree.Left()
	if node == nil {
		return nil, false
	}
	q.tree.Remove(node.Key)
	return node.Value.(Task), true
}

// drain empties the list, returning the tasks in dequeue order.
func (q *queuedList) drain() []Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	values := q.tree.Values()
	out := make([]Task, 0, len(values))
	for _, v := range values {
		out = append(out, v.(Task))
	}
	q.tree.Clear()
	return out
}

func (q *queuedList) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.tree.Size()
}

// =============================================================================
// runningSet: tasks currently executing, with a retirement condition
// =============================================================================

// runningSet tracks tasks between dequeue and the end of their retirement.
// A task leaves tasks when its worker starts retiring it and leaves retiring
// once the requeue or completion work is done; retired is broadcast then.
type runningSet struct {
	mu       sync.Mutex
	retired  *sync.Cond
	tasks    map[TaskID]Task
	retiring map[TaskID]Task
}

func newRunningSet() *runningSet {
	s := &runningSet{
		tasks:    make(map[TaskID]Task),
		retiring: make(map[TaskID]Task),
	}
	s.retired = sync.NewCond(&s.mu)
	return s
}

// addLocked records t as running. The caller holds s.mu.
func (s *runningSet) addLocked(t Task) {
	s.tasks[t.ID()] = t
}

// beginRetire moves t from running to retiring. It reports false when t was
// not in the running list.
func (s *runningSet) beginRetire(t Task) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.tasks[t.ID()]
	if ok && cur == t {
		delete(s.tasks, t.ID())
	} else {
		ok = false
	}
	s.retiring[t.ID()] = t
	return ok
}

// endRetire finishes retirement of t and wakes teardown waiters.
func (s *runningSet) endRetire(t Task) {
	s.mu.Lock()
	delete(s.retiring, t.ID())
	s.mu.Unlock()
	s.retired.Broadcast()
}

func (s *runningSet) snapshot() []Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t)
	}
	return out
}

// waitDrained blocks until no task is running or retiring.
func (s *runningSet) waitDrained() {
	s.mu.Lock()
	for len(s.tasks) > 0 || len(s.retiring) > 0 {
		s.retired.Wait()
	}
	s.mu.Unlock()
}

func (s *runningSet) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

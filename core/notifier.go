package core

import (
	"runtime/debug"
	"sync"
)

// DelegateID identifies a registered task-finished delegate.
type DelegateID uint64

// TaskFinishedFunc is called once per task when it is removed from the
// registry. It runs on the worker that retired the task and must not block.
type TaskFinishedFunc func(id TaskID)

type delegateEntry struct {
	id DelegateID
	fn TaskFinishedFunc
}

// completionNotifier is a multicast event. Delegates are kept in
// registration order in a copy-on-write slice so fire never holds the lock
// while calling out.
type completionNotifier struct {
	mu        sync.Mutex
	nextID    DelegateID
	delegates []delegateEntry

	logger Logger
}

func newCompletionNotifier(logger Logger) *completionNotifier {
	return &completionNotifier{logger: logger}
}

func (n *completionNotifier) register(fn TaskFinishedFunc) DelegateID {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.nextID++
	next := make([]delegateEntry, len(n.delegates), len(n.delegates)+1)
	copy(next, n.delegates)
	n.delegates = append(next, delegateEntry{id: n.nextID, fn: fn})
	return n.nextID
}

func (n *completionNotifier) unregister(id DelegateID) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	for i, d := range n.delegates {
		if d.id != id {
			continue
		}
		next := make([]delegateEntry, 0, len(n.delegates)-1)
		next = append(next, n.delegates[:i]...)
		next = append(next, n.delegates[i+1:]...)
		n.delegates = next
		return true
	}
	return false
}

func (n *completionNotifier) len() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.delegates)
}

func (n *completionNotifier) fire(id TaskID) {
	n.mu.Lock()
	delegates := n.delegates
	n.mu.Unlock()

	for _, d := range delegates {
		n.call(d, id)
	}
}

func (n *completionNotifier) call(d delegateEntry, id TaskID) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Error("task finished delegate panicked",
				F("delegate", d.id), F("task_id", id), F("panic", r), F("stack", string(debug.Stack())))
		}
	}()
	d.fn(id)
}

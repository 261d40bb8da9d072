package core

import (
	"testing"
	"time"
)

// TestQueuedList_PriorityOrder verifies priority ordering with FIFO ties
// Given: A queued list filled with mixed priorities in two batches
// When: Tasks are popped
// Then: Lower priorities come first and equal priorities keep insertion order
func TestQueuedList_PriorityOrder(t *testing.T) {
	// Arrange
	q := newQueuedList()
	low1 := NewFuncTask(nil, WithPriority(10))
	high1 := NewFuncTask(nil, WithPriority(-5))
	mid := NewFuncTask(nil, WithPriority(0))
	high2 := NewFuncTask(nil, WithPriority(-5))
	low2 := NewFuncTask(nil, WithPriority(10))

	// Act
	q.pushAll([]Task{low1, high1, mid})
	if size := q.pushAll([]Task{high2, low2}); size != 5 {
		t.Fatalf("pushAll() size = %d, want 5", size)
	}

	// Assert
	want := []Task{high1, high2, mid, low1, low2}
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, w := range want {
		got, ok := q.popLocked()
		if !ok {
			t.Fatalf("Step %d: queue is empty", i)
		}
		if got != w {
			t.Errorf("Step %d: got task %s (priority %d), want %s (priority %d)",
				i, got.ID(), got.Priority(), w.ID(), w.Priority())
		}
	}
	if _, ok := q.popLocked(); ok {
		t.Error("queue not empty after popping every task")
	}
}

// TestQueuedList_Drain verifies drain empties the list in dequeue order
func TestQueuedList_Drain(t *testing.T) {
	q := newQueuedList()
	a := NewFuncTask(nil, WithPriority(2))
	b := NewFuncTask(nil, WithPriority(1))
	q.pushAll([]Task{a, b})

	got := q.drain()

	if len(got) != 2 || got[0] != Task(b) || got[1] != Task(a) {
		t.Fatalf("drain() = %v, want [b a]", got)
	}
	if q.len() != 0 {
		t.Errorf("len() after drain = %d, want 0", q.len())
	}
}

// TestIncomingList_Swap verifies the incoming list hands out whole batches
func TestIncomingList_Swap(t *testing.T) {
	l := newIncomingList()
	if batch := l.swap(); batch != nil {
		t.Fatalf("swap() on empty list = %v, want nil", batch)
	}

	l.push(NewFuncTask(nil))
	l.push(NewFuncTask(nil))

	if batch := l.swap(); len(batch) != 2 {
		t.Fatalf("len(swap()) = %d, want 2", len(batch))
	}
	if l.len() != 0 {
		t.Errorf("len() after swap = %d, want 0", l.len())
	}
}

// TestRunningSet_WaitDrained verifies teardown waiters wake after retirement
// Given: A running set holding one task
// When: Another goroutine retires it
// Then: waitDrained returns only after endRetire
func TestRunningSet_WaitDrained(t *testing.T) {
	// Arrange
	s := newRunningSet()
	task := NewFuncTask(nil)
	s.mu.Lock()
	s.addLocked(task)
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.waitDrained()
		close(done)
	}()

	// Act
	if !s.beginRetire(task) {
		t.Fatal("beginRetire() = false for a running task")
	}
	select {
	case <-done:
		t.Fatal("waitDrained returned while the task was still retiring")
	case <-time.After(20 * time.Millisecond):
	}
	s.endRetire(task)

	// Assert
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("waitDrained did not return after endRetire")
	}
}

// TestRunningSet_BeginRetireMissing verifies a missing task is reported
func TestRunningSet_BeginRetireMissing(t *testing.T) {
	s := newRunningSet()
	task := NewFuncTask(nil)

	if s.beginRetire(task) {
		t.Error("beginRetire() = true for a task never added")
	}
	s.endRetire(task)
	s.waitDrained()
}

package core

import "time"

// TaskExecutionRecord captures one completed run of a task.
type TaskExecutionRecord struct {
	TaskID     TaskID
	Name       string
	PoolName   string
	Affinity   Affinity
	WorkerID   int
	ThreadID   int
	Priority   Priority
	StartedAt  time.Time
	FinishedAt time.Time
	Duration   time.Duration
	Panicked   bool
	Aborted    bool
	Repeating  bool
}

// PoolStats represents runtime observability state for one worker pool and
// its incoming/queued/running lists.
type PoolStats struct {
	Name      string
	Affinity  Affinity
	Workers   int
	ThreadIDs []int
	Incoming  int
	Queued    int
	Running   int
	Stopping  bool
}

// SchedulerStats is a point-in-time snapshot of a scheduler.
type SchedulerStats struct {
	InstanceID string
	Running    bool
	Registered int
	Completed  int64
	Rejected   int64
	Regular    PoolStats
	Windows    []PoolStats
}

// Queued returns the queued count (incoming included) for a category.
func (s SchedulerStats) Queued(a Affinity) int {
	if a == AffinityDefault {
		return s.Regular.Incoming + s.Regular.Queued
	}
	n := 0
	for _, w := range s.Windows {
		n += w.Incoming + w.Queued
	}
	return n
}

// RunningCount returns the running count for a category.
func (s SchedulerStats) RunningCount(a Affinity) int {
	if a == AffinityDefault {
		return s.Regular.Running
	}
	n := 0
	for _, w := range s.Windows {
		n += w.Running
	}
	return n
}

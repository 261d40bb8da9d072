package httpapi

import (
	"time"

	"github.com/Swind/go-affinity-scheduler/core"
	"github.com/Swind/go-affinity-scheduler/internal/journal"
)

type poolView struct {
	Name      string        `json:"name"`
	Affinity  core.Affinity `json:"affinity"`
	Workers   int           `json:"workers"`
	ThreadIDs []int         `json:"thread_ids,omitempty"`
	Incoming  int           `json:"incoming"`
	Queued    int           `json:"queued"`
	Running   int           `json:"running"`
	Stopping  bool          `json:"stopping"`
}

type statusView struct {
	InstanceID string     `json:"instance_id"`
	Running    bool       `json:"running"`
	Registered int        `json:"registered"`
	Completed  int64      `json:"completed"`
	Rejected   int64      `json:"rejected"`
	Regular    poolView   `json:"regular"`
	Windows    []poolView `json:"windows"`
}

type taskView struct {
	ID        core.TaskID   `json:"id"`
	Name      string        `json:"name"`
	Priority  core.Priority `json:"priority"`
	Affinity  core.Affinity `json:"affinity"`
	Window    string        `json:"window,omitempty"`
	Running   bool          `json:"running"`
	Repeating bool          `json:"repeating"`
	Aborted   bool          `json:"aborted"`
	Runs      *int64        `json:"runs,omitempty"`
}

type executionView struct {
	TaskID     core.TaskID   `json:"task_id"`
	Name       string        `json:"name"`
	Pool       string        `json:"pool"`
	Affinity   core.Affinity `json:"affinity"`
	WorkerID   int           `json:"worker_id"`
	ThreadID   int           `json:"thread_id,omitempty"`
	Priority   core.Priority `json:"priority"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Duration   string        `json:"duration"`
	Panicked   bool          `json:"panicked,omitempty"`
	Aborted    bool          `json:"aborted,omitempty"`
	Repeating  bool          `json:"repeating,omitempty"`
}

func toPoolView(p core.PoolStats) poolView {
	return poolView{
		Name:      p.Name,
		Affinity:  p.Affinity,
		Workers:   p.Workers,
		ThreadIDs: p.ThreadIDs,
		Incoming:  p.Incoming,
		Queued:    p.Queued,
		Running:   p.Running,
		Stopping:  p.Stopping,
	}
}

func toStatusView(s core.SchedulerStats) statusView {
	v := statusView{
		InstanceID: s.InstanceID,
		Running:    s.Running,
		Registered: s.Registered,
		Completed:  s.Completed,
		Rejected:   s.Rejected,
		Regular:    toPoolView(s.Regular),
		Windows:    make([]poolView, 0, len(s.Windows)),
	}
	for _, w := range s.Windows {
		v.Windows = append(v.Windows, toPoolView(w))
	}
	return v
}

// runCounter is implemented by tasks built on core.BaseTask.
type runCounter interface {
	Runs() int64
}

func toTaskView(t core.Task) taskView {
	v := taskView{
		ID:        t.ID(),
		Name:      t.Name(),
		Priority:  t.Priority(),
		Affinity:  t.Affinity(),
		Running:   t.IsRunning(),
		Repeating: t.IsRepeating(),
		Aborted:   t.Aborted(),
	}
	if w := t.Window(); w != nil {
		v.Window = w.Name()
	}
	if rc, ok := t.(runCounter); ok {
		runs := rc.Runs()
		v.Runs = &runs
	}
	return v
}

func toExecutionView(r core.TaskExecutionRecord) executionView {
	return executionView{
		TaskID:     r.TaskID,
		Name:       r.Name,
		Pool:       r.PoolName,
		Affinity:   r.Affinity,
		WorkerID:   r.WorkerID,
		ThreadID:   r.ThreadID,
		Priority:   r.Priority,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		Duration:   r.Duration.String(),
		Panicked:   r.Panicked,
		Aborted:    r.Aborted,
		Repeating:  r.Repeating,
	}
}

func executionViews(records []core.TaskExecutionRecord) []executionView {
	out := make([]executionView, 0, len(records))
	for _, r := range records {
		out = append(out, toExecutionView(r))
	}
	return out
}

func journalViews(entries []journal.Execution) []executionView {
	out := make([]executionView, 0, len(entries))
	for _, e := range entries {
		out = append(out, toExecutionView(e.TaskExecutionRecord))
	}
	return out
}

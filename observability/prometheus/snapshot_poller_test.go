package prometheus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Swind/go-affinity-scheduler/core"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type schedulerStub struct {
	mu    sync.Mutex
	stats core.SchedulerStats
}

func (s *schedulerStub) Stats() core.SchedulerStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func (s *schedulerStub) set(stats core.SchedulerStats) {
	s.mu.Lock()
	s.stats = stats
	s.mu.Unlock()
}

func TestSnapshotPoller_CollectsSchedulerAndPoolStats(t *testing.T) {
	reg := prom.NewRegistry()
	poller, err := NewSnapshotPoller("affinity", reg, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("NewSnapshotPoller failed: %v", err)
	}

	poller.AddScheduler("main", &schedulerStub{stats: core.SchedulerStats{
		Running:    true,
		Registered: 5,
		Completed:  9,
		Rejected:   2,
		Regular:    core.PoolStats{Name: "regular", Queued: 3, Running: 1, Workers: 4},
		Windows: []core.PoolStats{
			{Name: "window:a", Incoming: 2, Workers: 1, Stopping: true},
		},
	}})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	poller.Start(ctx)
	defer poller.Stop()

	assertEventually(t, 2*time.Second, func() bool {
		queued := testutil.ToFloat64(poller.poolQueued.WithLabelValues("main", "regular"))
		incoming := testutil.ToFloat64(poller.poolIncoming.WithLabelValues("main", "window:a"))
		return queued == 3 && incoming == 2
	})

	if got := testutil.ToFloat64(poller.schedulerRunning.WithLabelValues("main")); got != 1 {
		t.Fatalf("scheduler running gauge = %v, want 1", got)
	}
	if got := testutil.ToFloat64(poller.schedulerCompleted.WithLabelValues("main")); got != 9 {
		t.Fatalf("scheduler completed gauge = %v, want 9", got)
	}
	if got := testutil.ToFloat64(poller.poolStopping.WithLabelValues("main", "window:a")); got != 1 {
		t.Fatalf("pool stopping gauge = %v, want 1", got)
	}
}

func TestSnapshotPoller_DropsVanishedWindows(t *testing.T) {
	reg := prom.NewRegistry()
	poller, err := NewSnapshotPoller("affinity", reg, time.Hour)
	if err != nil {
		t.Fatalf("NewSnapshotPoller failed: %v", err)
	}
	stub := &schedulerStub{}
	stub.set(core.SchedulerStats{
		Regular: core.PoolStats{Name: "regular"},
		Windows: []core.PoolStats{{Name: "window:a", Workers: 1}},
	})
	poller.AddScheduler("main", stub)

	poller.collectOnce()
	if got := testutil.CollectAndCount(poller.poolWorkers); got != 2 {
		t.Fatalf("pool_workers series = %d, want 2", got)
	}

	stub.set(core.SchedulerStats{Regular: core.PoolStats{Name: "regular"}})
	poller.collectOnce()

	if got := testutil.CollectAndCount(poller.poolWorkers); got != 1 {
		t.Fatalf("pool_workers series after window teardown = %d, want 1", got)
	}
}

func TestSnapshotPoller_StartStop_Idempotent(t *testing.T) {
	reg := prom.NewRegistry()
	poller, err := NewSnapshotPoller("affinity", reg, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("NewSnapshotPoller failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	poller.Start(ctx)
	poller.Start(ctx)
	poller.Stop()
	poller.Stop()
}

func assertEventually(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met within timeout")
}

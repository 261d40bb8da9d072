package prometheus

import (
	"context"
	"sync"
	"time"

	"github.com/Swind/go-affinity-scheduler/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// SchedulerSnapshotProvider provides current scheduler stats snapshots.
type SchedulerSnapshotProvider interface {
	Stats() core.SchedulerStats
}

// SnapshotPoller periodically exports scheduler Stats() snapshots into
// Prometheus gauges. Window pools that disappear between polls have their
// series deleted.
type SnapshotPoller struct {
	interval time.Duration

	schedulersMu sync.RWMutex
	schedulers   map[string]SchedulerSnapshotProvider
	seenPools    map[string]map[string]struct{}

	schedulerRunning    *prom.GaugeVec
	schedulerRegistered *prom.GaugeVec
	schedulerCompleted  *prom.GaugeVec
	schedulerRejected   *prom.GaugeVec

	poolIncoming *prom.GaugeVec
	poolQueued   *prom.GaugeVec
	poolRunning  *prom.GaugeVec
	poolWorkers  *prom.GaugeVec
	poolStopping *prom.GaugeVec

	stateMu sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSnapshotPoller creates a snapshot poller and registers its collectors.
func NewSnapshotPoller(namespace string, reg prom.Registerer, interval time.Duration) (*SnapshotPoller, error) {
	if namespace == "" {
		namespace = defaultNamespace
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	if interval <= 0 {
		interval = time.Second
	}

	gauge := func(name, help string, labels ...string) *prom.GaugeVec {
		return prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		}, labels)
	}

	p := &SnapshotPoller{
		interval:   interval,
		schedulers: make(map[string]SchedulerSnapshotProvider),
		seenPools:  make(map[string]map[string]struct{}),

		schedulerRunning:    gauge("scheduler_running", "Scheduler running state (1=running, 0=stopped).", "scheduler"),
		schedulerRegistered: gauge("scheduler_registered_tasks", "Tasks currently owned by the scheduler.", "scheduler"),
		schedulerCompleted:  gauge("scheduler_completed_tasks", "Completed task count snapshot.", "scheduler"),
		schedulerRejected:   gauge("scheduler_rejected_tasks", "Rejected submission count snapshot.", "scheduler"),

		poolIncoming: gauge("pool_incoming", "Tasks in the incoming list per pool.", "scheduler", "pool"),
		poolQueued:   gauge("pool_queued", "Tasks in the queued list per pool.", "scheduler", "pool"),
		poolRunning:  gauge("pool_running", "Tasks executing per pool.", "scheduler", "pool"),
		poolWorkers:  gauge("pool_workers", "Live workers per pool.", "scheduler", "pool"),
		poolStopping: gauge("pool_stopping", "Pool stop requested (1=stopping, 0=serving).", "scheduler", "pool"),
	}

	for _, vec := range []**prom.GaugeVec{
		&p.schedulerRunning, &p.schedulerRegistered, &p.schedulerCompleted, &p.schedulerRejected,
		&p.poolIncoming, &p.poolQueued, &p.poolRunning, &p.poolWorkers, &p.poolStopping,
	} {
		registered, err := registerCollector(reg, *vec)
		if err != nil {
			return nil, err
		}
		*vec = registered
	}
	return p, nil
}

// AddScheduler adds or replaces a scheduler snapshot provider by name.
func (p *SnapshotPoller) AddScheduler(name string, provider SchedulerSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	name = normalizeLabel(name, "scheduler")
	p.schedulersMu.Lock()
	p.schedulers[name] = provider
	p.schedulersMu.Unlock()
}

// Start begins periodic polling; repeated calls are no-ops.
func (p *SnapshotPoller) Start(ctx context.Context) {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if p.running {
		p.stateMu.Unlock()
		return
	}
	pollCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true
	p.stateMu.Unlock()

	go p.loop(pollCtx)
}

// Stop stops periodic polling; repeated calls are safe.
func (p *SnapshotPoller) Stop() {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if !p.running {
		p.stateMu.Unlock()
		return
	}
	cancel := p.cancel
	done := p.done
	p.stateMu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	p.stateMu.Lock()
	p.running = false
	p.cancel = nil
	p.done = nil
	p.stateMu.Unlock()
}

func (p *SnapshotPoller) loop(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.collectOnce()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.collectOnce()
		}
	}
}

func (p *SnapshotPoller) collectOnce() {
	p.schedulersMu.Lock()
	defer p.schedulersMu.Unlock()

	for name, provider := range p.schedulers {
		stats := provider.Stats()
		p.schedulerRunning.WithLabelValues(name).Set(boolGauge(stats.Running))
		p.schedulerRegistered.WithLabelValues(name).Set(float64(stats.Registered))
		p.schedulerCompleted.WithLabelValues(name).Set(float64(stats.Completed))
		p.schedulerRejected.WithLabelValues(name).Set(float64(stats.Rejected))

		seen := make(map[string]struct{}, len(stats.Windows)+1)
		for _, pool := range append([]core.PoolStats{stats.Regular}, stats.Windows...) {
			p.setPool(name, pool)
			seen[pool.Name] = struct{}{}
		}
		for pool := range p.seenPools[name] {
			if _, ok := seen[pool]; !ok {
				p.deletePool(name, pool)
			}
		}
		p.seenPools[name] = seen
	}
}

func (p *SnapshotPoller) setPool(scheduler string, pool core.PoolStats) {
	p.poolIncoming.WithLabelValues(scheduler, pool.Name).Set(float64(pool.Incoming))
	p.poolQueued.WithLabelValues(scheduler, pool.Name).Set(float64(pool.Queued))
	p.poolRunning.WithLabelValues(scheduler, pool.Name).Set(float64(pool.Running))
	p.poolWorkers.WithLabelValues(scheduler, pool.Name).Set(float64(pool.Workers))
	p.poolStopping.WithLabelValues(scheduler, pool.Name).Set(boolGauge(pool.Stopping))
}

func (p *SnapshotPoller) deletePool(scheduler, pool string) {
	for _, vec := range []*prom.GaugeVec{p.poolIncoming, p.poolQueued, p.poolRunning, p.poolWorkers, p.poolStopping} {
		vec.DeleteLabelValues(scheduler, pool)
	}
}

func boolGauge(v bool) float64 {
	if v {
		return 1
	}
	return 0
}

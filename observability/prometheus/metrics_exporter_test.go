package prometheus

import (
	"context"
	"testing"
	"time"

	"github.com/Swind/go-affinity-scheduler/core"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestMetricsExporter_RecordMethods(t *testing.T) {
	reg := prom.NewRegistry()
	exporter, err := NewMetricsExporter("affinity", reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("NewMetricsExporter failed: %v", err)
	}

	exporter.RecordTaskDuration("regular", core.PriorityHighest, 250*time.Millisecond)
	exporter.RecordTaskPanic("regular", "panic")
	exporter.RecordQueueDepth("window:main", 7)
	exporter.RecordTaskRejected("regular", "duplicate")
	exporter.RecordTaskCompleted("window:main")

	panicTotal := testutil.ToFloat64(exporter.taskPanicTotal.WithLabelValues("regular"))
	if panicTotal != 1 {
		t.Fatalf("panic total = %v, want 1", panicTotal)
	}

	queueDepth := testutil.ToFloat64(exporter.queueDepth.WithLabelValues("window:main"))
	if queueDepth != 7 {
		t.Fatalf("queue depth = %v, want 7", queueDepth)
	}

	rejected := testutil.ToFloat64(exporter.taskRejectedTotal.WithLabelValues("regular", "duplicate"))
	if rejected != 1 {
		t.Fatalf("rejected total = %v, want 1", rejected)
	}

	completed := testutil.ToFloat64(exporter.taskCompletedTotal.WithLabelValues("window:main"))
	if completed != 1 {
		t.Fatalf("completed total = %v, want 1", completed)
	}

	histCount, err := histogramSampleCount(exporter.taskDurationSeconds.WithLabelValues("regular", "high"))
	if err != nil {
		t.Fatalf("histogramSampleCount failed: %v", err)
	}
	if histCount != 1 {
		t.Fatalf("duration sample count = %d, want 1", histCount)
	}
}

func TestMetricsExporter_AlreadyRegisteredReuse(t *testing.T) {
	reg := prom.NewRegistry()
	first, err := NewMetricsExporter("affinity", reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("first NewMetricsExporter failed: %v", err)
	}
	second, err := NewMetricsExporter("affinity", reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("second NewMetricsExporter failed: %v", err)
	}

	first.RecordTaskPanic("regular", nil)
	second.RecordTaskPanic("regular", nil)

	got := testutil.ToFloat64(first.taskPanicTotal.WithLabelValues("regular"))
	if got != 2 {
		t.Fatalf("shared panic counter = %v, want 2", got)
	}
}

func TestPriorityLabel(t *testing.T) {
	cases := map[core.Priority]string{
		core.PriorityHighest: "high",
		-1:                   "high",
		core.PriorityDefault: "default",
		3:                    "low",
		core.PriorityLowest:  "low",
	}
	for p, want := range cases {
		if got := priorityLabel(p); got != want {
			t.Errorf("priorityLabel(%d) = %q, want %q", p, got, want)
		}
	}
}

// TestMetricsExporter_WiredIntoScheduler verifies the scheduler drives the exporter
func TestMetricsExporter_WiredIntoScheduler(t *testing.T) {
	reg := prom.NewRegistry()
	exporter, err := NewMetricsExporter("affinity", reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("NewMetricsExporter failed: %v", err)
	}
	s := core.New(core.Options{
		Regular:      core.PoolSizing{Min: 1, Max: 1},
		PollInterval: 5 * time.Millisecond,
		Metrics:      exporter,
	})
	defer s.Shutdown()
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	done := make(chan struct{})
	s.RegisterTaskFinishedDelegate(func(core.TaskID) { close(done) })
	if _, err := s.Submit(core.NewFuncTask(nil)); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("task did not complete")
	}

	assertEventually(t, time.Second, func() bool {
		return testutil.ToFloat64(exporter.taskCompletedTotal.WithLabelValues("regular")) == 1
	})
}

func histogramSampleCount(observer prom.Observer) (uint64, error) {
	collector, ok := observer.(prom.Collector)
	if !ok {
		return 0, nil
	}

	metricCh := make(chan prom.Metric, 1)
	collector.Collect(metricCh)
	close(metricCh)
	for metric := range metricCh {
		msg := &dto.Metric{}
		if err := metric.Write(msg); err != nil {
			return 0, err
		}
		if msg.Histogram != nil {
			return msg.Histogram.GetSampleCount(), nil
		}
	}
	return 0, nil
}

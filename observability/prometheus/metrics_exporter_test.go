package prometheus

import (
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestMetricsExporter_RecordMethods(t *testing.T) {
	reg := prom.NewRegistry()
	exporter, err := NewMetricsExporter("fiberruntime", reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("NewMetricsExporter failed: %v", err)
	}

	exporter.RecordTaskDuration("scheduler-a", 250*time.Millisecond)
	exporter.RecordTaskPanic("scheduler-a", "panic")
	exporter.RecordQueueDepth("scheduler-a", 7)
	exporter.RecordTaskRejected("scheduler-a", "shutdown")
	exporter.RecordFiberPoolSize("scheduler-a", 5, 2)

	panicTotal := testutil.ToFloat64(exporter.taskPanicTotal.WithLabelValues("scheduler-a"))
	if panicTotal != 1 {
		t.Fatalf("panic total = %v, want 1", panicTotal)
	}

	queueDepth := testutil.ToFloat64(exporter.queueDepth.WithLabelValues("scheduler-a"))
	if queueDepth != 7 {
		t.Fatalf("queue depth = %v, want 7", queueDepth)
	}

	rejected := testutil.ToFloat64(exporter.taskRejectedTotal.WithLabelValues("scheduler-a", "shutdown"))
	if rejected != 1 {
		t.Fatalf("rejected total = %v, want 1", rejected)
	}

	live := testutil.ToFloat64(exporter.fiberPoolLive.WithLabelValues("scheduler-a"))
	idle := testutil.ToFloat64(exporter.fiberPoolIdle.WithLabelValues("scheduler-a"))
	if live != 5 || idle != 2 {
		t.Fatalf("fiber pool gauges = live:%v idle:%v, want live:5 idle:2", live, idle)
	}

	histCount, err := histogramSampleCount(exporter.taskDurationSeconds.WithLabelValues("scheduler-a"))
	if err != nil {
		t.Fatalf("histogramSampleCount failed: %v", err)
	}
	if histCount != 1 {
		t.Fatalf("duration sample count = %d, want 1", histCount)
	}
}

func TestMetricsExporter_AlreadyRegisteredReuse(t *testing.T) {
	reg := prom.NewRegistry()
	first, err := NewMetricsExporter("fiberruntime", reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("first NewMetricsExporter failed: %v", err)
	}
	second, err := NewMetricsExporter("fiberruntime", reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("second NewMetricsExporter failed: %v", err)
	}

	first.RecordTaskPanic("scheduler-a", nil)
	second.RecordTaskPanic("scheduler-a", nil)

	got := testutil.ToFloat64(first.taskPanicTotal.WithLabelValues("scheduler-a"))
	if got != 2 {
		t.Fatalf("shared panic counter = %v, want 2", got)
	}
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

package prometheus

import (
	"errors"
	"fmt"
	"time"

	"github.com/Swind/go-fiber-runtime/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// ExporterOptions controls collector configuration.
type ExporterOptions struct {
	DurationBuckets []float64
}

// MetricsExporter adapts core.Metrics to Prometheus collectors.
type MetricsExporter struct {
	taskDurationSeconds *prom.HistogramVec
	taskPanicTotal      *prom.CounterVec
	taskRejectedTotal   *prom.CounterVec
	queueDepth          *prom.GaugeVec
	fiberPoolLive       *prom.GaugeVec
	fiberPoolIdle       *prom.GaugeVec
}

var _ core.Metrics = (*MetricsExporter)(nil)

// NewMetricsExporter creates and registers Prometheus collectors for core.Metrics.
func NewMetricsExporter(namespace string, reg prom.Registerer, opts ExporterOptions) (*MetricsExporter, error) {
	if namespace == "" {
		namespace = "fiberruntime"
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	buckets := opts.DurationBuckets
	if len(buckets) == 0 {
		buckets = prom.DefBuckets
	}

	durationVec := prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "task_duration_seconds",
		Help:      "Task instance duration in seconds.",
		Buckets:   buckets,
	}, []string{"scheduler"})
	panicVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "task_panic_total",
		Help:      "Total number of task panics.",
	}, []string{"scheduler"})
	rejectedVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "task_rejected_total",
		Help:      "Total number of rejected spawns.",
	}, []string{"scheduler", "reason"})
	queueDepthVec := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "queue_depth",
		Help:      "Current ready-queue depth.",
	}, []string{"scheduler"})
	fiberPoolLiveVec := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "fiber_pool_live",
		Help:      "Fibers currently allocated (in use or idle).",
	}, []string{"scheduler"})
	fiberPoolIdleVec := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "fiber_pool_idle",
		Help:      "Fibers currently recycled and waiting for reuse.",
	}, []string{"scheduler"})

	var err error
	if durationVec, err = registerCollector(reg, durationVec); err != nil {
		return nil, err
	}
	if panicVec, err = registerCollector(reg, panicVec); err != nil {
		return nil, err
	}
	if rejectedVec, err = registerCollector(reg, rejectedVec); err != nil {
		return nil, err
	}
	if queueDepthVec, err = registerCollector(reg, queueDepthVec); err != nil {
		return nil, err
	}
	if fiberPoolLiveVec, err = registerCollector(reg, fiberPoolLiveVec); err != nil {
		return nil, err
	}
	if fiberPoolIdleVec, err = registerCollector(reg, fiberPoolIdleVec); err != nil {
		return nil, err
	}

	return &MetricsExporter{
		taskDurationSeconds: durationVec,
		taskPanicTotal:      panicVec,
		taskRejectedTotal:   rejectedVec,
		queueDepth:          queueDepthVec,
		fiberPoolLive:       fiberPoolLiveVec,
		fiberPoolIdle:       fiberPoolIdleVec,
	}, nil
}

// RecordTaskDuration records task instance duration.
func (m *MetricsExporter) RecordTaskDuration(schedulerName string, duration time.Duration) {
	if m == nil {
		return
	}
	m.taskDurationSeconds.WithLabelValues(normalizeLabel(schedulerName, "unknown")).Observe(duration.Seconds())
}

// RecordTaskPanic records task panic events.
func (m *MetricsExporter) RecordTaskPanic(schedulerName string, panicInfo any) {
	if m == nil {
		return
	}
	m.taskPanicTotal.WithLabelValues(normalizeLabel(schedulerName, "unknown")).Inc()
}

// RecordQueueDepth records queue depth.
func (m *MetricsExporter) RecordQueueDepth(schedulerName string, depth int) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues(normalizeLabel(schedulerName, "unknown")).Set(float64(depth))
}

// RecordTaskRejected records spawn rejection events.
func (m *MetricsExporter) RecordTaskRejected(schedulerName string, reason string) {
	if m == nil {
		return
	}
	m.taskRejectedTotal.WithLabelValues(normalizeLabel(schedulerName, "unknown"), normalizeLabel(reason, "unknown")).Inc()
}

// RecordFiberPoolSize records the pool's live/idle fiber counts.
func (m *MetricsExporter) RecordFiberPoolSize(schedulerName string, live, idle int) {
	if m == nil {
		return
	}
	label := normalizeLabel(schedulerName, "unknown")
	m.fiberPoolLive.WithLabelValues(label).Set(float64(live))
	m.fiberPoolIdle.WithLabelValues(label).Set(float64(idle))
}

func normalizeLabel(v string, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func registerCollector[T prom.Collector](reg prom.Registerer, collector T) (T, error) {
	err := reg.Register(collector)
	if err == nil {
		return collector, nil
	}

	var alreadyRegisteredErr prom.AlreadyRegisteredError
	if errors.As(err, &alreadyRegisteredErr) {
		existing, ok := alreadyRegisteredErr.ExistingCollector.(T)
		if !ok {
			return collector, fmt.Errorf("collector type mismatch for %T", collector)
		}
		return existing, nil
	}

	return collector, err
}

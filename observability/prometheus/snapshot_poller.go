package prometheus

import (
	"context"
	"sync"
	"time"

	"github.com/Swind/go-fiber-runtime/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// SchedulerSnapshotProvider provides current scheduler stats snapshots.
type SchedulerSnapshotProvider interface {
	Stats() core.SchedulerStats
}

// SnapshotPoller periodically exports TaskScheduler.Stats() snapshots into
// Prometheus gauges, for state that is cheaper to sample on an interval
// than to push on every change (fiber pool occupancy, ready-queue depth).
type SnapshotPoller struct {
	interval time.Duration

	schedulersMu sync.RWMutex
	schedulers   map[string]SchedulerSnapshotProvider

	pending             *prom.GaugeVec
	running             *prom.GaugeVec
	fibersLive          *prom.GaugeVec
	fibersIdle          *prom.GaugeVec
	generationBumps     *prom.GaugeVec
	interruptsDelivered *prom.GaugeVec
	rejected            *prom.GaugeVec

	stateMu sync.Mutex
	active  bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSnapshotPoller creates a snapshot poller and registers its collectors.
func NewSnapshotPoller(reg prom.Registerer, interval time.Duration) (*SnapshotPoller, error) {
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	if interval <= 0 {
		interval = time.Second
	}

	pending := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "fiberruntime",
		Name:      "scheduler_pending",
		Help:      "Fibers linked into the ready queue.",
	}, []string{"scheduler"})
	running := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "fiberruntime",
		Name:      "scheduler_running",
		Help:      "Task instances started and not yet ended.",
	}, []string{"scheduler"})
	fibersLive := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "fiberruntime",
		Name:      "scheduler_fibers_live",
		Help:      "Fibers currently allocated by the scheduler's pool.",
	}, []string{"scheduler"})
	fibersIdle := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "fiberruntime",
		Name:      "scheduler_fibers_idle",
		Help:      "Fibers currently recycled and waiting for reuse.",
	}, []string{"scheduler"})
	generationBumps := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "fiberruntime",
		Name:      "scheduler_generation_bumps_total",
		Help:      "Task instances that have completed across every fiber.",
	}, []string{"scheduler"})
	interruptsDelivered := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "fiberruntime",
		Name:      "scheduler_interrupts_delivered_total",
		Help:      "InterruptException instances actually raised.",
	}, []string{"scheduler"})
	rejected := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "fiberruntime",
		Name:      "scheduler_rejected_total",
		Help:      "Spawns rejected by the scheduler.",
	}, []string{"scheduler"})

	var err error
	if pending, err = registerCollector(reg, pending); err != nil {
		return nil, err
	}
	if running, err = registerCollector(reg, running); err != nil {
		return nil, err
	}
	if fibersLive, err = registerCollector(reg, fibersLive); err != nil {
		return nil, err
	}
	if fibersIdle, err = registerCollector(reg, fibersIdle); err != nil {
		return nil, err
	}
	if generationBumps, err = registerCollector(reg, generationBumps); err != nil {
		return nil, err
	}
	if interruptsDelivered, err = registerCollector(reg, interruptsDelivered); err != nil {
		return nil, err
	}
	if rejected, err = registerCollector(reg, rejected); err != nil {
		return nil, err
	}

	return &SnapshotPoller{
		interval:            interval,
		schedulers:          make(map[string]SchedulerSnapshotProvider),
		pending:             pending,
		running:             running,
		fibersLive:          fibersLive,
		fibersIdle:          fibersIdle,
		generationBumps:     generationBumps,
		interruptsDelivered: interruptsDelivered,
		rejected:            rejected,
	}, nil
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
	if p.active {
		p.stateMu.Unlock()
		return
	}
	pollCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.active = true
	p.stateMu.Unlock()

	go p.loop(pollCtx)
}

// Stop stops periodic polling; repeated calls are safe.
func (p *SnapshotPoller) Stop() {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if !p.active {
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
	p.active = false
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
	p.schedulersMu.RLock()
	defer p.schedulersMu.RUnlock()

	for name, provider := range p.schedulers {
		stats := provider.Stats()
		p.pending.WithLabelValues(name).Set(float64(stats.Pending))
		p.running.WithLabelValues(name).Set(float64(stats.Running))
		p.fibersLive.WithLabelValues(name).Set(float64(stats.FibersLive))
		p.fibersIdle.WithLabelValues(name).Set(float64(stats.FibersIdle))
		p.generationBumps.WithLabelValues(name).Set(float64(stats.GenerationBumps))
		p.interruptsDelivered.WithLabelValues(name).Set(float64(stats.InterruptsDelivered))
		p.rejected.WithLabelValues(name).Set(float64(stats.Rejected))
	}
}
